package auction

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stigmergy/internal/catalog"
	"github.com/roach88/stigmergy/internal/entity"
	"github.com/roach88/stigmergy/internal/ir"
	"github.com/roach88/stigmergy/internal/schema"
	"github.com/roach88/stigmergy/internal/store"
	"github.com/roach88/stigmergy/internal/system"
)

func testView(t *testing.T, grants ...string) *View {
	t.Helper()
	c := catalog.New(nil)
	for _, d := range definitions {
		require.NoError(t, c.PutDefinition(context.Background(), d, false))
	}
	return newView(entity.MustNew(), sys("tester", grants), woundedHealer(), c.Current())
}

func TestViewGrants(t *testing.T) {
	v := testView(t, "Health: read+write", "Healer: read", "Position: write", "Mana: execute")

	assert.Equal(t, []string{"Healer", "Health", "Mana"}, v.Readable())
	assert.Equal(t, []string{"Health", "Position"}, v.Writable())
	assert.Equal(t, "tester", v.System())
}

func TestViewRead(t *testing.T) {
	v := testView(t, "Health: read", "Healer: execute", "Position: write")

	data, ok, err := v.Read("Health")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, ir.Equal(health(5, 100), data))

	_, ok, err = v.Read("Healer")
	require.NoError(t, err, "execute grants can view")
	assert.True(t, ok)

	_, _, err = v.Read("Position")
	var ce *system.CapabilityError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "read", ce.Op)
	assert.Equal(t, system.Write, ce.Mode)

	_, _, err = v.Read("Inventory")
	require.ErrorAs(t, err, &ce)
	assert.Empty(t, ce.Mode)
	assert.Contains(t, err.Error(), "component not declared")
}

func TestViewWriteChecksGrantAndSchema(t *testing.T) {
	v := testView(t, "Health: read+write", "Healer: read", "Position: write")

	err := v.Write("Healer", ir.IRObject{"power": ir.IRInt(1)})
	assert.True(t, system.IsCapabilityError(err))
	assert.True(t, system.IsCapabilityError(v.Delete("Healer")))

	err = v.Write("Health", ir.IRObject{"current": ir.IRInt(1)})
	assert.True(t, schema.IsValidationError(err))

	assert.Error(t, v.Write("Health", nil))
	assert.Empty(t, v.close(), "rejected writes are never staged")
}

func TestViewStagesWrites(t *testing.T) {
	v := testView(t, "Health: read+write", "Healer: read+write", "Position: write")

	require.NoError(t, v.Write("Health", health(6, 100)))
	require.NoError(t, v.Write("Position", ir.IRObject{"x": ir.IRInt(1), "y": ir.IRInt(2)}))
	require.NoError(t, v.Delete("Healer"))
	require.NoError(t, v.Write("Health", health(7, 100)))

	data, ok, err := v.Read("Health")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, ir.Equal(health(7, 100), data), "reads see staged writes")

	_, ok, err = v.Read("Healer")
	require.NoError(t, err)
	assert.False(t, ok, "a staged delete reads as absent")

	writes := v.close()
	assert.Equal(t, []store.Write{
		{Name: "Health", Data: health(7, 100)},
		{Name: "Position", Data: ir.IRObject{"x": ir.IRInt(1), "y": ir.IRInt(2)}},
		{Name: "Healer", Data: nil},
	}, writes)

	assert.ErrorIs(t, v.Write("Health", health(8, 100)), ErrViewClosed)
	_, _, err = v.Read("Health")
	assert.ErrorIs(t, err, ErrViewClosed)
}
