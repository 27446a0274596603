package schema

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stigmergy/internal/ir"
)

func TestParseHealthDocument(t *testing.T) {
	s, err := Parse([]byte(`{
		"type": "object",
		"description": "hit points",
		"properties": {
			"maximum": {"type": "integer", "minimum": 1},
			"current": {"type": "integer", "minimum": 0}
		},
		"required": ["current", "maximum"]
	}`))
	require.NoError(t, err)

	assert.Equal(t, KindObject, s.Kind)
	require.Len(t, s.Properties, 2)
	assert.Equal(t, "maximum", s.Properties[0].Name)
	assert.Equal(t, "current", s.Properties[1].Name)
	assert.Equal(t, []string{"current", "maximum"}, s.Required)
	assert.Nil(t, s.Additional)

	cur, ok := s.Property("current")
	require.True(t, ok)
	require.NotNil(t, cur.Minimum)
	assert.Equal(t, float64(0), *cur.Minimum)
}

func TestParseRoundTrip(t *testing.T) {
	docs := []string{
		`{"type":"null"}`,
		`{"type":"number","minimum":-1.5,"maximum":2}`,
		`{"type":"string","enum":["a","b"]}`,
		`{"type":"array","items":{"type":"integer"},"maxItems":4}`,
		`{"type":"object","properties":{"z":{"type":"boolean"},"a":{"type":"string"}},"required":["z"]}`,
		`{"type":"object","additionalProperties":true}`,
		`{"type":"object","additionalProperties":{"type":"integer"}}`,
		`{"oneOf":[{"type":"string"},{"type":"null"}]}`,
	}
	for _, doc := range docs {
		t.Run(doc, func(t *testing.T) {
			s, err := Parse([]byte(doc))
			require.NoError(t, err)
			out, err := json.Marshal(s)
			require.NoError(t, err)
			assert.Equal(t, doc, string(out))
		})
	}
}

func TestParseTypeListShorthand(t *testing.T) {
	s, err := Parse([]byte(`{"type":["integer","null"],"minimum":0}`))
	require.NoError(t, err)
	require.Equal(t, KindOneOf, s.Kind)
	require.Len(t, s.OneOf, 2)
	assert.Equal(t, KindInteger, s.OneOf[0].Kind)
	assert.NotNil(t, s.OneOf[0].Minimum)
	assert.Equal(t, KindNull, s.OneOf[1].Kind)

	assert.NoError(t, Validate(s, ir.IRNull{}))
	assert.Error(t, Validate(s, ir.IRInt(-1)))
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		path string
	}{
		{"not an object", `"string"`, ""},
		{"missing type", `{}`, ""},
		{"unknown type", `{"type":"date"}`, ""},
		{"unknown keyword", `{"type":"string","pattern":"^a"}`, ""},
		{"min above max", `{"type":"integer","minimum":5,"maximum":1}`, ""},
		{"negative maxItems", `{"type":"array","maxItems":-1}`, ""},
		{"empty oneOf", `{"oneOf":[]}`, ""},
		{"oneOf with type", `{"type":"string","oneOf":[{"type":"null"}]}`, ""},
		{"enum on integer", `{"type":"integer","enum":["a"]}`, ""},
		{"empty enum", `{"type":"string","enum":[]}`, ""},
		{"required unknown", `{"type":"object","required":["x"]}`, ""},
		{"nested bad", `{"type":"object","properties":{"a":{"type":"bogus"}}}`, "/a"},
		{"bad items", `{"type":"array","items":[{"type":"string"}]}`, "/items"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			var se *SchemaError
			require.True(t, errors.As(err, &se), "expected *SchemaError, got %T: %v", err, err)
			assert.Equal(t, tt.path, se.Path.String())
		})
	}
}

func TestParseRejectsMalformedJSON(t *testing.T) {
	_, err := Parse([]byte(`{"type":"string"`))
	require.Error(t, err)

	_, err = Parse([]byte(`{"type":"string"} {}`))
	require.Error(t, err)

	_, err = Parse([]byte(`{"type":"string","type":"integer"}`))
	require.Error(t, err)
}

func TestFromValueSortsProperties(t *testing.T) {
	v := ir.IRObject{
		"type": ir.IRString("object"),
		"properties": ir.IRObject{
			"b": ir.IRObject{"type": ir.IRString("string")},
			"a": ir.IRObject{"type": ir.IRString("integer")},
		},
	}
	s, err := FromValue(v)
	require.NoError(t, err)
	require.Len(t, s.Properties, 2)
	assert.Equal(t, "a", s.Properties[0].Name)
}

func TestSchemaUnmarshalJSON(t *testing.T) {
	var wrapper struct {
		Schema *Schema `json:"schema"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"schema":{"type":"boolean"}}`), &wrapper))
	assert.Equal(t, KindBoolean, wrapper.Schema.Kind)

	err := json.Unmarshal([]byte(`{"schema":{"type":"nope"}}`), &wrapper)
	require.Error(t, err)
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal(healthSchema(), healthSchema()))
	assert.False(t, Equal(healthSchema(), Object()))
}
