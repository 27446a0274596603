package entity

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestNewRoundTrip(t *testing.T) {
	for i := 0; i < 100; i++ {
		e := MustNew()
		text := e.String()

		assert.True(t, strings.HasPrefix(text, Prefix))
		assert.Len(t, text, len(Prefix)+43)

		parsed, err := Parse(text)
		require.NoError(t, err)
		assert.Equal(t, e, parsed)
	}
}

func TestNewIsUnique(t *testing.T) {
	seen := make(map[Entity]bool)
	for i := 0; i < 1000; i++ {
		e := MustNew()
		require.False(t, seen[e], "duplicate entity minted")
		seen[e] = true
	}
}

func TestParseErrors(t *testing.T) {
	valid := MustNew().String()
	body := strings.TrimPrefix(valid, Prefix)

	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"missing prefix", body},
		{"wrong prefix", "ent:" + body},
		{"too short", Prefix + body[:42]},
		{"too long", Prefix + body + "A"},
		{"padded", Prefix + base64.URLEncoding.EncodeToString(make([]byte, Size))},
		{"standard alphabet", Prefix + strings.Repeat("+", 43)},
		{"short decode", Prefix + base64.RawURLEncoding.EncodeToString(make([]byte, 16))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.input)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedEntity))
		})
	}
}

func TestParseKnownValue(t *testing.T) {
	var e Entity
	for i := range e {
		e[i] = byte(i)
	}
	text := e.String()
	assert.Equal(t, "entity:AAECAwQFBgcICQoLDA0ODxAREhMUFRYXGBkaGxwdHh8", text)
	assert.Equal(t, e, MustParse(text))
}

func TestFromBytes(t *testing.T) {
	e := MustNew()
	got, err := FromBytes(e.Bytes())
	require.NoError(t, err)
	assert.Equal(t, e, got)

	_, err = FromBytes([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrMalformedEntity)
}

func TestBytesIsCopy(t *testing.T) {
	e := MustNew()
	b := e.Bytes()
	b[0] ^= 0xff
	assert.NotEqual(t, b[0], e[0])
}

func TestNewURLSafe(t *testing.T) {
	for i := 0; i < 20; i++ {
		e, err := NewURLSafe()
		require.NoError(t, err)
		assert.False(t, e.IsNil())
		assert.NotContains(t, e.String()[len(Prefix):], "-")
		assert.NotContains(t, e.String()[len(Prefix):], "_")
	}
}

func TestTextMarshaling(t *testing.T) {
	type record struct {
		ID Entity `json:"id" yaml:"id"`
	}
	e := MustNew()

	data, err := json.Marshal(record{ID: e})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"`+e.String()+`"}`, string(data))

	var back record
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, e, back.ID)

	var fromYAML record
	require.NoError(t, yaml.Unmarshal([]byte("id: "+e.String()+"\n"), &fromYAML))
	assert.Equal(t, e, fromYAML.ID)

	err = json.Unmarshal([]byte(`{"id":"nope"}`), &back)
	assert.ErrorIs(t, err, ErrMalformedEntity)
}
