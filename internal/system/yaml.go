package system

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// DecodeYAML reads a stream of system documents separated by "---".
// Grants may be written as "Component: mode" strings or single-entry
// maps; bid rules are "ON ... BID ..." strings. Unknown fields are
// rejected. Each decoded system is validated.
func DecodeYAML(r io.Reader) ([]Definition, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var defs []Definition
	for i := 0; ; i++ {
		var d Definition
		err := dec.Decode(&d)
		if errors.Is(err, io.EOF) {
			return defs, nil
		}
		if err != nil {
			return nil, fmt.Errorf("decode system document %d: %w", i, err)
		}
		if err := d.Validate(); err != nil {
			return nil, err
		}
		defs = append(defs, d)
	}
}

// ParseYAML decodes exactly one system document.
func ParseYAML(data []byte) (Definition, error) {
	defs, err := DecodeYAML(bytes.NewReader(data))
	if err != nil {
		return Definition{}, err
	}
	if len(defs) != 1 {
		return Definition{}, fmt.Errorf("expected one system document, found %d", len(defs))
	}
	return defs[0], nil
}

// EncodeYAML writes defs as a "---"-separated stream.
func EncodeYAML(w io.Writer, defs []Definition) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	for _, d := range defs {
		if err := enc.Encode(d); err != nil {
			return fmt.Errorf("encode system %s: %w", d.Name, err)
		}
	}
	return enc.Close()
}
