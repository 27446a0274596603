package auction

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/stigmergy/internal/bid"
	"github.com/roach88/stigmergy/internal/catalog"
	"github.com/roach88/stigmergy/internal/component"
	"github.com/roach88/stigmergy/internal/entity"
	"github.com/roach88/stigmergy/internal/ir"
	"github.com/roach88/stigmergy/internal/schema"
	"github.com/roach88/stigmergy/internal/store"
	"github.com/roach88/stigmergy/internal/system"
	"github.com/roach88/stigmergy/internal/testutil"
)

var definitions = []component.Definition{
	{Name: "Health", Schema: schema.MustParse(`{
		"type": "object",
		"properties": {
			"current": {"type": "integer", "minimum": 0},
			"maximum": {"type": "integer", "minimum": 1}
		},
		"required": ["current", "maximum"]
	}`)},
	{Name: "Healer", Schema: schema.MustParse(`{
		"type": "object",
		"properties": {"power": {"type": "integer"}, "aura_radius": {"type": "integer"}},
		"required": ["power"]
	}`)},
	{Name: "Position", Schema: schema.MustParse(`{
		"type": "object",
		"properties": {"x": {"type": "number"}, "y": {"type": "number"}},
		"required": ["x", "y"]
	}`)},
}

func health(current, maximum int64) ir.IRObject {
	return ir.IRObject{"current": ir.IRInt(current), "maximum": ir.IRInt(maximum)}
}

// sys builds a valid system from "Component: mode" grants and rule sources.
func sys(name string, grants []string, rules ...string) system.Definition {
	d := system.Definition{
		Name:        name,
		Description: "test system " + name,
		Model:       "sonnet",
		Color:       "blue",
	}
	for _, g := range grants {
		parsed, err := system.ParseGrant(g)
		if err != nil {
			panic(err)
		}
		d.Grants = append(d.Grants, parsed)
	}
	for _, r := range rules {
		d.Rules = append(d.Rules, bid.MustParseRule(r))
	}
	return d
}

func healerSystem() system.Definition {
	return sys("healer", []string{"Health: read+write", "Healer: read"},
		"ON Healer && Health.current < Health.maximum BID Healer.power * 10")
}

type world struct {
	store   *store.Store
	catalog *catalog.Catalog
	reg     *Registry
	engine  *Engine
}

func newWorld(t *testing.T, systems []system.Definition, opts ...Option) *world {
	t.Helper()
	ctx := context.Background()
	s := testutil.OpenStore(t)
	c := catalog.New(s)
	for _, d := range definitions {
		require.NoError(t, c.PutDefinition(ctx, d, false))
	}
	for _, d := range systems {
		require.NoError(t, c.PutSystem(ctx, d))
	}
	reg := NewRegistry()
	opts = append([]Option{WithRoundIDs(testutil.NewSequentialIDs("")), WithClock(testutil.NewDeterministicClock())}, opts...)
	return &world{store: s, catalog: c, reg: reg, engine: New(s, c, reg, opts...)}
}

// spawn creates an entity holding the given components.
func (w *world) spawn(t *testing.T, components map[string]ir.IRValue) entity.Entity {
	t.Helper()
	ctx := context.Background()
	e, err := w.store.CreateEntity(ctx)
	require.NoError(t, err)
	for name, data := range components {
		_, err := w.store.PutComponent(ctx, e, name, data)
		require.NoError(t, err)
	}
	return e
}

func (w *world) snapshot(t *testing.T, e entity.Entity) map[string]ir.IRValue {
	t.Helper()
	snap, err := w.store.Snapshot(context.Background(), e)
	require.NoError(t, err)
	return snap
}
