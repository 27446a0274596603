package system

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/stigmergy/internal/component"
)

// AccessMode is the capability a system holds on one component.
type AccessMode string

const (
	Read      AccessMode = "read"
	Write     AccessMode = "write"
	Execute   AccessMode = "execute"
	ReadWrite AccessMode = "read+write"
)

// ParseAccessMode accepts the canonical names plus the aliases "tool",
// "readwrite" and "read-write". Matching is case-insensitive.
func ParseAccessMode(s string) (AccessMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "read":
		return Read, nil
	case "write":
		return Write, nil
	case "execute", "tool":
		return Execute, nil
	case "read+write", "readwrite", "read-write":
		return ReadWrite, nil
	}
	return "", fmt.Errorf("invalid access mode %q", s)
}

// Valid reports whether m is one of the four modes.
func (m AccessMode) Valid() bool {
	switch m {
	case Read, Write, Execute, ReadWrite:
		return true
	}
	return false
}

// CanRead reports whether bid rules may reference a component under m.
func (m AccessMode) CanRead() bool { return m == Read || m == ReadWrite }

// CanWrite reports whether a winner may write a component under m.
func (m AccessMode) CanWrite() bool { return m == Write || m == ReadWrite }

// CanView reports whether a winner's invocation view exposes the component.
// Execute grants are visible to the invoked system but not to its bids.
func (m AccessMode) CanView() bool { return m == Read || m == ReadWrite || m == Execute }

// Grant is one declared (component, mode) pair.
type Grant struct {
	Component string
	Mode      AccessMode
}

// String renders "Component: mode".
func (g Grant) String() string {
	return g.Component + ": " + string(g.Mode)
}

// ParseGrant reads "Component: mode" or a bare component name, which
// grants read+write. The separator is the last single colon, so
// namespaced names like "ghai::Issue: read" work.
func ParseGrant(s string) (Grant, error) {
	s = strings.TrimSpace(s)
	name, mode := s, ReadWrite
	if i := separatorIndex(s); i >= 0 {
		name = strings.TrimSpace(s[:i])
		m, err := ParseAccessMode(s[i+1:])
		if err != nil {
			return Grant{}, fmt.Errorf("grant %q: %w", s, err)
		}
		mode = m
	}
	if err := component.CheckName(name); err != nil {
		return Grant{}, fmt.Errorf("grant %q: %w", s, err)
	}
	return Grant{Component: name, Mode: mode}, nil
}

// separatorIndex finds the last ':' that is not half of a "::".
func separatorIndex(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] != ':' {
			continue
		}
		if (i > 0 && s[i-1] == ':') || (i+1 < len(s) && s[i+1] == ':') {
			continue
		}
		return i
	}
	return -1
}

// MarshalText implements encoding.TextMarshaler.
func (g Grant) MarshalText() ([]byte, error) {
	return []byte(g.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (g *Grant) UnmarshalText(text []byte) error {
	parsed, err := ParseGrant(string(text))
	if err != nil {
		return err
	}
	*g = parsed
	return nil
}

// UnmarshalYAML accepts either "Component: mode" strings or single-entry
// mappings such as {Health: read}.
func (g *Grant) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		return g.UnmarshalText([]byte(node.Value))
	case yaml.MappingNode:
		if len(node.Content) != 2 {
			return fmt.Errorf("line %d: component map must have exactly one entry", node.Line)
		}
		key, val := node.Content[0], node.Content[1]
		if key.Kind != yaml.ScalarNode || val.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: component name and access mode must be strings", node.Line)
		}
		return g.UnmarshalText([]byte(key.Value + ": " + val.Value))
	}
	return fmt.Errorf("line %d: component must be a string or a map", node.Line)
}

// CapabilityError reports an access outside a system's declared grants.
type CapabilityError struct {
	System    string
	Component string
	// Op is the attempted operation: "read", "write" or "delete".
	Op string
	// Mode is the declared grant, empty when the component is undeclared.
	Mode AccessMode
}

// Error implements the error interface.
func (e *CapabilityError) Error() string {
	if e.Mode == "" {
		return fmt.Sprintf("system %s: %s %s denied: component not declared", e.System, e.Op, e.Component)
	}
	return fmt.Sprintf("system %s: %s %s denied: grant is %s", e.System, e.Op, e.Component, e.Mode)
}

// IsCapabilityError returns true if err wraps a *CapabilityError.
func IsCapabilityError(err error) bool {
	var ce *CapabilityError
	return errors.As(err, &ce)
}
