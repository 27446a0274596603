package component

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stigmergy/internal/entity"
	"github.com/roach88/stigmergy/internal/ir"
	"github.com/roach88/stigmergy/internal/schema"
)

func TestValidName(t *testing.T) {
	valid := []string{"Health", "_bar", "baz123", "ghai::Issue", "std::collections::HashMap"}
	invalid := []string{"", "::", "foo::", "::foo", "123foo", "foo-bar", "foo:bar", "foo bar", "Héalth"}

	for _, name := range valid {
		assert.True(t, ValidName(name), name)
		assert.NoError(t, CheckName(name))
	}
	for _, name := range invalid {
		assert.False(t, ValidName(name), name)
		assert.Error(t, CheckName(name))
	}
}

func TestNewDefinition(t *testing.T) {
	d, err := NewDefinition("Health", schema.Object(schema.Prop("current", schema.Integer())))
	require.NoError(t, err)
	assert.Equal(t, "Health", d.Name)

	_, err = NewDefinition("bad name", schema.Null())
	require.Error(t, err)

	_, err = NewDefinition("Health", &schema.Schema{Kind: "date"})
	require.Error(t, err)
	var se *schema.SchemaError
	assert.ErrorAs(t, err, &se)
}

func TestDefinitionValidate(t *testing.T) {
	d, err := NewDefinition("Name", schema.Object(schema.Prop("value", schema.String())))
	require.NoError(t, err)

	assert.NoError(t, d.Validate(ir.IRObject{"value": ir.IRString("x")}))

	err = d.Validate(ir.IRObject{"extra": ir.IRString("field")})
	require.Error(t, err)
	var ve *schema.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, schema.CodeUnexpectedField, ve.Code)
	assert.Contains(t, err.Error(), "component Name")
}

func TestDefinitionJSON(t *testing.T) {
	d := Definition{Name: "Flag", Schema: schema.Boolean()}
	data, err := json.Marshal(d)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Flag","schema":{"type":"boolean"}}`, string(data))

	var back Definition
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, schema.Equal(d.Schema, back.Schema))
}

func TestInstanceState(t *testing.T) {
	e := entity.MustNew()
	live := Instance{Entity: e, Name: "Health", Data: ir.IRObject{}}
	dead := Instance{Entity: e, Name: "Health"}

	assert.Equal(t, Present, live.State())
	assert.Equal(t, Tombstoned, dead.State())
	assert.Equal(t, "absent", Absent.String())

	data, err := json.Marshal(dead)
	require.NoError(t, err)
	assert.JSONEq(t, `{"entity":"`+e.String()+`","component":"Health","data":null,"state":"tombstoned"}`, string(data))
}
