package store

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/stigmergy/internal/ir"
	"github.com/roach88/stigmergy/internal/schema"
	"github.com/roach88/stigmergy/internal/system"
)

// marshalData converts component data to JSON TEXT for storage.
// IRFloat keeps its fraction ("2.0") so integers and floats survive the
// round trip as distinct types.
func marshalData(v ir.IRValue) (string, error) {
	data, err := ir.MarshalIRValue(v)
	if err != nil {
		return "", fmt.Errorf("marshal data: %w", err)
	}
	return string(data), nil
}

// unmarshalData parses stored component data. A NULL column is a tombstone
// and comes back as a nil IRValue.
func unmarshalData(data sql.NullString) (ir.IRValue, error) {
	if !data.Valid {
		return nil, nil
	}
	v, err := ir.UnmarshalIRValue([]byte(data.String))
	if err != nil {
		return nil, fmt.Errorf("unmarshal data: %w", err)
	}
	return v, nil
}

func marshalSchema(s *schema.Schema) (string, error) {
	data, err := s.MarshalJSON()
	if err != nil {
		return "", fmt.Errorf("marshal schema: %w", err)
	}
	return string(data), nil
}

func unmarshalSchema(data string) (*schema.Schema, error) {
	s, err := schema.Parse([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}
	return s, nil
}

// marshalJSON encodes records that are not IR values (systems, bid
// records). HTML escaping is disabled so bid rules stay readable in the
// database.
func marshalJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	// Encoder adds a trailing newline, remove it
	return strings.TrimSpace(buf.String()), nil
}

func marshalSystem(d system.Definition) (string, error) {
	data, err := marshalJSON(d)
	if err != nil {
		return "", fmt.Errorf("marshal system: %w", err)
	}
	return data, nil
}

func unmarshalSystem(data string) (system.Definition, error) {
	var d system.Definition
	if err := json.Unmarshal([]byte(data), &d); err != nil {
		return system.Definition{}, fmt.Errorf("unmarshal system: %w", err)
	}
	return d, nil
}
