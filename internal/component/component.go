// Package component defines component names, definitions and instances.
//
// A component definition pairs a name with a schema. An instance is the
// data one entity holds under one name; at most one exists per
// (entity, name) pair.
package component

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/stigmergy/internal/entity"
	"github.com/roach88/stigmergy/internal/ir"
	"github.com/roach88/stigmergy/internal/schema"
)

// ValidName reports whether s is a "::"-separated path of identifiers,
// each starting with an ASCII letter or underscore and continuing with
// letters, digits or underscores. Examples: "Health", "ghai::Issue".
func ValidName(s string) bool {
	if s == "" {
		return false
	}
	for _, seg := range strings.Split(s, "::") {
		if !validIdent(seg) {
			return false
		}
	}
	return true
}

func validIdent(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// CheckName returns an error describing why s is not a valid name.
func CheckName(s string) error {
	if !ValidName(s) {
		return fmt.Errorf("invalid component name %q: want identifiers separated by \"::\"", s)
	}
	return nil
}

// Definition is a named schema.
type Definition struct {
	Name   string         `json:"name"`
	Schema *schema.Schema `json:"schema"`
}

// NewDefinition checks the name and schema and returns a definition.
func NewDefinition(name string, s *schema.Schema) (Definition, error) {
	if err := CheckName(name); err != nil {
		return Definition{}, err
	}
	if err := s.Check(); err != nil {
		return Definition{}, fmt.Errorf("definition %s: %w", name, err)
	}
	return Definition{Name: name, Schema: s}, nil
}

// Validate checks data against the definition's schema.
func (d Definition) Validate(data ir.IRValue) error {
	if err := schema.Validate(d.Schema, data); err != nil {
		return fmt.Errorf("component %s: %w", d.Name, err)
	}
	return nil
}

// State distinguishes the three ways an (entity, name) slot can look.
type State int

const (
	// Absent means no row exists for the pair.
	Absent State = iota
	// Present means the pair holds live data.
	Present
	// Tombstoned means the pair was logically deleted but the row remains.
	Tombstoned
)

// String returns a lowercase label.
func (s State) String() string {
	switch s {
	case Absent:
		return "absent"
	case Present:
		return "present"
	case Tombstoned:
		return "tombstoned"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Instance is the data one entity holds under one component name.
// Data is nil for a tombstone.
type Instance struct {
	Entity entity.Entity `json:"entity"`
	Name   string        `json:"component"`
	Data   ir.IRValue    `json:"data"`
}

// State reports Present or Tombstoned.
func (i Instance) State() State {
	if i.Data == nil {
		return Tombstoned
	}
	return Present
}

// MarshalJSON renders a tombstone's data as null.
func (i Instance) MarshalJSON() ([]byte, error) {
	data, err := ir.MarshalIRValue(i.Data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		Entity entity.Entity   `json:"entity"`
		Name   string          `json:"component"`
		Data   json.RawMessage `json:"data"`
		State  string          `json:"state"`
	}{i.Entity, i.Name, data, i.State().String()})
}
