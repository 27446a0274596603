package compiler

import (
	"context"
	"fmt"

	"github.com/roach88/stigmergy/internal/catalog"
)

// Install writes the world into c: definitions first, so systems and
// invariants referencing them land after, then systems, then invariants.
// force is passed to every definition put; without it a schema that
// existing instances no longer satisfy is rejected.
//
// Install stops at the first failure. Records already written stay.
func (w *World) Install(ctx context.Context, c *catalog.Catalog, force bool) error {
	for _, def := range w.Components {
		if err := c.PutDefinition(ctx, def, force); err != nil {
			return fmt.Errorf("install component %s: %w", def.Name, err)
		}
	}
	for _, sys := range w.Systems {
		if err := c.PutSystem(ctx, sys); err != nil {
			return fmt.Errorf("install system %s: %w", sys.Name, err)
		}
	}
	for _, inv := range w.Invariants {
		if err := c.PutInvariant(ctx, inv); err != nil {
			return fmt.Errorf("install invariant %s: %w", inv.Name, err)
		}
	}
	return nil
}
