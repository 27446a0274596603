package invariant

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/roach88/stigmergy/internal/bid"
	"github.com/roach88/stigmergy/internal/ir"
)

func mapSnapshot(c map[string]ir.IRValue) bid.MapSnapshot {
	return bid.MapSnapshot{Components: c}
}

func components() map[string]ir.IRValue {
	return map[string]ir.IRValue{
		"Health": ir.IRObject{"current": ir.IRInt(120), "maximum": ir.IRInt(100)},
		"Name":   ir.IRObject{"value": ir.IRString("goblin")},
	}
}

func TestNew(t *testing.T) {
	inv, err := New("health_bounded", "Health.current <= Health.maximum")
	require.NoError(t, err)
	assert.Equal(t, []string{"Health"}, inv.References())

	_, err = New("", "true")
	assert.Error(t, err)

	_, err = New("broken", "Health.current <=")
	assert.Error(t, err)
}

func TestCheck(t *testing.T) {
	tests := []struct {
		asserts string
		want    Status
	}{
		{"Health.current <= Health.maximum", Violated},
		{"Health.current >= 0", Held},
		{`Name.value ~= "^gob"`, Held},
		{"Health.current", Violated},
		{"Mana.current >= 0", NotApplicable},
		{"!Mana || Mana.current >= 0", Held},
		{"Health.current / 0 > 1", Errored},
	}
	for _, tt := range tests {
		t.Run(tt.asserts, func(t *testing.T) {
			res := MustNew("inv", tt.asserts).Check(mapSnapshot(components()))
			assert.Equal(t, tt.want, res.Status)
			assert.Equal(t, "inv", res.Name)
			if tt.want == Errored {
				assert.Contains(t, res.Error, "DIVISION_BY_ZERO")
			}
		})
	}

	assert.Equal(t, Errored, Invariant{Name: "raw"}.Check(mapSnapshot(nil)).Status)
}

func TestCheckAllSortsAndFilters(t *testing.T) {
	invs := []Invariant{
		MustNew("z_named", "Name.present"),
		MustNew("a_bounded", "Health.current <= Health.maximum"),
		MustNew("m_mana", "Mana.current > 0"),
	}
	results := CheckAll(invs, components())
	require.Len(t, results, 3)
	assert.Equal(t, []string{"a_bounded", "m_mana", "z_named"}, []string{results[0].Name, results[1].Name, results[2].Name})
	assert.Equal(t, []Status{Violated, NotApplicable, Held}, []Status{results[0].Status, results[1].Status, results[2].Status})

	violations := Violations(results)
	require.Len(t, violations, 1)
	assert.Equal(t, "a_bounded", violations[0].Name)
}

func TestEncoding(t *testing.T) {
	inv := MustNew("health_bounded", "Health.current <= Health.maximum")

	data, err := json.Marshal(inv)
	require.NoError(t, err)
	var back Invariant
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, inv.Name, back.Name)
	assert.Equal(t, inv.Asserts, back.Asserts)
	assert.Equal(t, Held, back.Check(mapSnapshot(map[string]ir.IRValue{
		"Health": ir.IRObject{"current": ir.IRInt(1), "maximum": ir.IRInt(2)},
	})).Status)

	out, err := yaml.Marshal(inv)
	require.NoError(t, err)
	var fromYAML Invariant
	require.NoError(t, yaml.Unmarshal(out, &fromYAML))
	assert.Equal(t, inv.Asserts, fromYAML.Asserts)

	assert.Error(t, json.Unmarshal([]byte(`{"name":"x","asserts":"BID"}`), &back))
}
