// Package system models the agents that bid on entities.
//
// A Definition declares which components a system may touch and how
// (its grants) and an ordered list of bid rules. Bid rules may only
// reference components the system can read; Validate enforces this
// along with the field limits of a system record.
package system

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/roach88/stigmergy/internal/bid"
	"github.com/roach88/stigmergy/internal/component"
)

// Limits on a system record.
const (
	MaxNameLen         = 100
	MaxDescriptionLen  = 500
	MaxInstructionsLen = 10 * 1024
	MaxRules           = 100
	MaxGrants          = 100
)

// BasicColors are the named colors a system may use besides #RRGGBB.
var BasicColors = []string{
	"red", "blue", "green", "yellow", "orange", "purple", "pink", "gray", "black", "white",
}

// Definition is a system record.
type Definition struct {
	Name         string     `json:"name" yaml:"name"`
	Description  string     `json:"description" yaml:"description"`
	Model        string     `json:"model" yaml:"model"`
	Color        string     `json:"color" yaml:"color"`
	Grants       []Grant    `json:"component" yaml:"component"`
	Rules        []bid.Rule `json:"bid" yaml:"bid"`
	Instructions string     `json:"instructions,omitempty" yaml:"instructions,omitempty"`
}

// GrantsFor returns a copy of the system's grants in declaration order.
func GrantsFor(d *Definition) []Grant {
	out := make([]Grant, len(d.Grants))
	copy(out, d.Grants)
	return out
}

// BidRules returns the system's bid rules in declaration order.
func BidRules(d *Definition) []bid.Rule {
	out := make([]bid.Rule, len(d.Rules))
	copy(out, d.Rules)
	return out
}

// Mode returns the declared mode for a component.
func (d *Definition) Mode(name string) (AccessMode, bool) {
	for _, g := range d.Grants {
		if g.Component == name {
			return g.Mode, true
		}
	}
	return "", false
}

// CanRead reports whether bid rules may reference name.
func (d *Definition) CanRead(name string) bool {
	m, ok := d.Mode(name)
	return ok && m.CanRead()
}

// CanWrite reports whether the system may write name when it wins.
func (d *Definition) CanWrite(name string) bool {
	m, ok := d.Mode(name)
	return ok && m.CanWrite()
}

// CanView reports whether the system's invocation view exposes name.
func (d *Definition) CanView(name string) bool {
	m, ok := d.Mode(name)
	return ok && m.CanView()
}

// Components lists every granted component name.
func (d *Definition) Components() []string {
	out := make([]string, len(d.Grants))
	for i, g := range d.Grants {
		out[i] = g.Component
	}
	return out
}

// Readable returns the set of components bid rules may reference.
func (d *Definition) Readable() map[string]bool {
	out := make(map[string]bool, len(d.Grants))
	for _, g := range d.Grants {
		if g.Mode.CanRead() {
			out[g.Component] = true
		}
	}
	return out
}

// Interested reports whether any granted component is in present.
// Only interested systems are auction candidates for an entity.
func (d *Definition) Interested(present map[string]bool) bool {
	for _, g := range d.Grants {
		if present[g.Component] {
			return true
		}
	}
	return false
}

// Definition error codes.
const (
	CodeInvalidName         = "INVALID_NAME"
	CodeInvalidDescription  = "INVALID_DESCRIPTION"
	CodeInvalidModel        = "INVALID_MODEL"
	CodeInvalidColor        = "INVALID_COLOR"
	CodeInstructionsTooLong = "INSTRUCTIONS_TOO_LONG"
	CodeTooManyRules        = "TOO_MANY_RULES"
	CodeTooManyGrants       = "TOO_MANY_GRANTS"
	CodeInvalidGrant        = "INVALID_GRANT"
	CodeDuplicateGrant      = "DUPLICATE_GRANT"
	CodeInvalidRule         = "INVALID_RULE"
	CodeUndeclaredAccess    = "UNDECLARED_COMPONENT_ACCESS"
)

// DefinitionError describes one problem with a system record.
type DefinitionError struct {
	System  string
	Field   string
	Message string
	Code    string
}

// Error implements the error interface.
func (e *DefinitionError) Error() string {
	if e.System == "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] system %s: %s: %s", e.Code, e.System, e.Field, e.Message)
}

// IsDefinitionError returns true if err wraps a *DefinitionError.
func IsDefinitionError(err error) bool {
	var de *DefinitionError
	return errors.As(err, &de)
}

// IsUndeclaredAccess returns true if err reports a bid rule referencing a
// component the system cannot read.
func IsUndeclaredAccess(err error) bool {
	var de *DefinitionError
	return errors.As(err, &de) && de.Code == CodeUndeclaredAccess
}

// Problems returns every problem with d. It does not fail fast.
func (d *Definition) Problems() []*DefinitionError {
	var errs []*DefinitionError
	add := func(field, code, format string, args ...any) {
		errs = append(errs, &DefinitionError{System: d.Name, Field: field, Code: code, Message: fmt.Sprintf(format, args...)})
	}

	switch n := utf8.RuneCountInString(d.Name); {
	case strings.TrimSpace(d.Name) == "":
		add("name", CodeInvalidName, "name cannot be empty")
	case n > MaxNameLen:
		add("name", CodeInvalidName, "name cannot exceed %d characters", MaxNameLen)
	case strings.TrimSpace(d.Name) != d.Name:
		add("name", CodeInvalidName, "name has leading or trailing whitespace")
	}

	switch n := utf8.RuneCountInString(d.Description); {
	case strings.TrimSpace(d.Description) == "":
		add("description", CodeInvalidDescription, "description cannot be empty")
	case n > MaxDescriptionLen:
		add("description", CodeInvalidDescription, "description cannot exceed %d characters", MaxDescriptionLen)
	}

	if strings.TrimSpace(d.Model) == "" {
		add("model", CodeInvalidModel, "model cannot be empty")
	}
	if !validColor(d.Color) {
		add("color", CodeInvalidColor, "invalid color %q: use a basic color name or #RRGGBB", d.Color)
	}
	if len(d.Instructions) > MaxInstructionsLen {
		add("instructions", CodeInstructionsTooLong, "instructions cannot exceed 10KB")
	}
	if len(d.Rules) > MaxRules {
		add("bid", CodeTooManyRules, "cannot have more than %d bid rules", MaxRules)
	}
	if len(d.Grants) > MaxGrants {
		add("component", CodeTooManyGrants, "cannot have more than %d component grants", MaxGrants)
	}

	seen := make(map[string]bool, len(d.Grants))
	for i, g := range d.Grants {
		field := fmt.Sprintf("component[%d]", i)
		if !component.ValidName(g.Component) || !g.Mode.Valid() {
			add(field, CodeInvalidGrant, "invalid grant %q", g.String())
			continue
		}
		if seen[g.Component] {
			add(field, CodeDuplicateGrant, "component %s is granted more than once", g.Component)
			continue
		}
		seen[g.Component] = true
	}

	for i, r := range d.Rules {
		field := fmt.Sprintf("bid[%d]", i)
		if r.Condition == nil || r.Value == nil {
			add(field, CodeInvalidRule, "rule is empty")
			continue
		}
		for _, name := range r.References() {
			if d.CanRead(name) {
				continue
			}
			if m, ok := d.Mode(name); ok {
				add(field, CodeUndeclaredAccess, "rule references %s but the grant is %s", name, m)
			} else {
				add(field, CodeUndeclaredAccess, "rule references undeclared component %s", name)
			}
		}
	}
	return errs
}

// Validate returns nil when d is well formed, otherwise every problem
// joined into one error.
func (d *Definition) Validate() error {
	problems := d.Problems()
	if len(problems) == 0 {
		return nil
	}
	errs := make([]error, len(problems))
	for i, p := range problems {
		errs[i] = p
	}
	return errors.Join(errs...)
}

func validColor(c string) bool {
	if strings.HasPrefix(c, "#") {
		if len(c) != 7 {
			return false
		}
		for i := 1; i < len(c); i++ {
			if !isHex(c[i]) {
				return false
			}
		}
		return true
	}
	for _, b := range BasicColors {
		if c == b {
			return true
		}
	}
	return false
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}
