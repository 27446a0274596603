package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stigmergy/internal/ir"
)

func TestInfer(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"null", `null`, `{"type":"null"}`},
		{"int", `1`, `{"type":"integer"}`},
		{"float", `1.5`, `{"type":"number"}`},
		{"empty array", `[]`, `{"type":"array","items":{"type":"null"}}`},
		{"uniform array", `[1,2]`, `{"type":"array","items":{"type":"integer"}}`},
		{"mixed array", `[1,"a",2]`, `{"type":"array","items":{"oneOf":[{"type":"integer"},{"type":"string"}]}}`},
		{"object", `{"y":2.5,"x":true}`,
			`{"type":"object","properties":{"x":{"type":"boolean"},"y":{"type":"number"}},"required":["x","y"]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := ir.UnmarshalIRValue([]byte(tt.data))
			require.NoError(t, err)

			s := Infer(v)
			require.NoError(t, s.Check())
			out, err := json.Marshal(s)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(out))
			assert.NoError(t, Validate(s, v))
		})
	}
}
