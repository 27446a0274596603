// Package entity mints and parses opaque entity identities.
//
// An Entity is 32 random bytes rendered as "entity:" followed by 43
// characters of unpadded URL-safe base64.
package entity

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// Prefix is prepended to every textual entity.
const Prefix = "entity:"

// Size is the length of an entity in bytes.
const Size = 32

// encodedLen is the unpadded base64 length of Size bytes.
var encodedLen = base64.RawURLEncoding.EncodedLen(Size)

// maxURLSafeAttempts bounds NewURLSafe's retry loop.
const maxURLSafeAttempts = 1000

// ErrMalformedEntity is returned (wrapped) when text cannot be parsed as an entity.
var ErrMalformedEntity = errors.New("malformed entity")

// Entity is an opaque identity token. Compare with ==.
type Entity [Size]byte

// Nil is the zero entity. It is never minted by New.
var Nil Entity

// New returns a cryptographically random entity.
func New() (Entity, error) {
	var e Entity
	if _, err := rand.Read(e[:]); err != nil {
		return Nil, fmt.Errorf("generate entity: %w", err)
	}
	return e, nil
}

// MustNew is like New but panics on error.
func MustNew() Entity {
	e, err := New()
	if err != nil {
		panic(err)
	}
	return e
}

// NewURLSafe returns an entity whose encoding contains no '-' or '_', so it
// can be selected by double-click and embedded in prose. After
// maxURLSafeAttempts draws the last candidate is accepted as is.
func NewURLSafe() (Entity, error) {
	var e Entity
	var err error
	for i := 0; i < maxURLSafeAttempts; i++ {
		e, err = New()
		if err != nil {
			return Nil, err
		}
		if !strings.ContainsAny(e.encoded(), "-_") {
			return e, nil
		}
	}
	return e, nil
}

// FromBytes copies b into an Entity. b must be exactly Size bytes.
func FromBytes(b []byte) (Entity, error) {
	if len(b) != Size {
		return Nil, fmt.Errorf("%w: decoded length %d, want %d", ErrMalformedEntity, len(b), Size)
	}
	var e Entity
	copy(e[:], b)
	return e, nil
}

// Parse decodes the textual form produced by String.
func Parse(s string) (Entity, error) {
	body, ok := strings.CutPrefix(s, Prefix)
	if !ok {
		return Nil, fmt.Errorf("%w: missing %q prefix", ErrMalformedEntity, Prefix)
	}
	if len(body) != encodedLen {
		return Nil, fmt.Errorf("%w: encoded length %d, want %d", ErrMalformedEntity, len(body), encodedLen)
	}
	raw, err := base64.RawURLEncoding.Strict().DecodeString(body)
	if err != nil {
		return Nil, fmt.Errorf("%w: %v", ErrMalformedEntity, err)
	}
	return FromBytes(raw)
}

// MustParse is like Parse but panics on error. Use only in tests.
func MustParse(s string) Entity {
	e, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return e
}

// String returns the prefixed textual form.
func (e Entity) String() string {
	return Prefix + e.encoded()
}

func (e Entity) encoded() string {
	return base64.RawURLEncoding.EncodeToString(e[:])
}

// Bytes returns a copy of the raw bytes.
func (e Entity) Bytes() []byte {
	b := make([]byte, Size)
	copy(b, e[:])
	return b
}

// IsNil reports whether e is the zero entity.
func (e Entity) IsNil() bool {
	return e == Nil
}

// MarshalText implements encoding.TextMarshaler.
func (e Entity) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (e *Entity) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}
