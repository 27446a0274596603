// Package catalog holds the process-wide registries of component
// definitions, systems and invariants.
//
// Readers take an immutable Snapshot and never observe a half-applied
// update: writers serialize on a mutex, copy the current snapshot, mutate
// the copy and publish it with a single atomic swap. A schema replaced
// while a validation is in flight leaves that validation on the old
// schema.
package catalog

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/roach88/stigmergy/internal/component"
	"github.com/roach88/stigmergy/internal/invariant"
	"github.com/roach88/stigmergy/internal/ir"
	"github.com/roach88/stigmergy/internal/system"
)

// Backing is the persistence a Catalog writes through to.
// *store.Store implements it.
type Backing interface {
	ListDefinitions(ctx context.Context) ([]component.Definition, error)
	PutDefinition(ctx context.Context, def component.Definition, force bool) (bool, error)
	DeleteDefinition(ctx context.Context, name string) error

	ListSystems(ctx context.Context) ([]system.Definition, error)
	PutSystem(ctx context.Context, d system.Definition) (bool, error)
	DeleteSystem(ctx context.Context, name string) error

	ListInvariants(ctx context.Context) ([]invariant.Invariant, error)
	PutInvariant(ctx context.Context, inv invariant.Invariant) (bool, error)
	DeleteInvariant(ctx context.Context, name string) error
}

// Catalog publishes Snapshots. The zero value is not usable; call New.
type Catalog struct {
	mu      sync.Mutex // serializes writers
	current atomic.Pointer[Snapshot]
	backing Backing
}

// New returns an empty catalog. With a nil backing the catalog is memory
// only.
func New(backing Backing) *Catalog {
	c := &Catalog{backing: backing}
	c.current.Store(emptySnapshot())
	return c
}

// Current returns the latest snapshot. It never returns nil.
func (c *Catalog) Current() *Snapshot {
	return c.current.Load()
}

// Load replaces the catalog contents with everything in the backing store.
func (c *Catalog) Load(ctx context.Context) error {
	if c.backing == nil {
		return fmt.Errorf("load catalog: no backing store")
	}
	defs, err := c.backing.ListDefinitions(ctx)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	systems, err := c.backing.ListSystems(ctx)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	invs, err := c.backing.ListInvariants(ctx)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	next := emptySnapshot()
	for _, d := range defs {
		next.definitions[d.Name] = d
	}
	for _, s := range systems {
		next.systems[s.Name] = s
	}
	for _, inv := range invs {
		next.invariants[inv.Name] = inv
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.current.Store(next)
	return nil
}

// update runs persist (when there is a backing store) and then publishes
// the copy produced by mutate. Nothing is published if persist fails.
func (c *Catalog) update(persist func(Backing) error, mutate func(*Snapshot)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.backing != nil {
		if err := persist(c.backing); err != nil {
			return err
		}
	}
	next := c.current.Load().clone()
	mutate(next)
	c.current.Store(next)
	return nil
}

// PutDefinition stores def and publishes it. See store.PutDefinition for
// how force interacts with existing instances.
func (c *Catalog) PutDefinition(ctx context.Context, def component.Definition, force bool) error {
	if _, err := component.NewDefinition(def.Name, def.Schema); err != nil {
		return err
	}
	return c.update(
		func(b Backing) error {
			_, err := b.PutDefinition(ctx, def, force)
			return err
		},
		func(s *Snapshot) { s.definitions[def.Name] = def },
	)
}

// DeleteDefinition removes a definition. The backing store also removes
// every instance of it.
func (c *Catalog) DeleteDefinition(ctx context.Context, name string) error {
	return c.update(
		func(b Backing) error { return b.DeleteDefinition(ctx, name) },
		func(s *Snapshot) { delete(s.definitions, name) },
	)
}

// PutSystem validates, stores and publishes d.
func (c *Catalog) PutSystem(ctx context.Context, d system.Definition) error {
	if err := d.Validate(); err != nil {
		return err
	}
	return c.update(
		func(b Backing) error {
			_, err := b.PutSystem(ctx, d)
			return err
		},
		func(s *Snapshot) { s.systems[d.Name] = d },
	)
}

// DeleteSystem removes the system named name.
func (c *Catalog) DeleteSystem(ctx context.Context, name string) error {
	return c.update(
		func(b Backing) error { return b.DeleteSystem(ctx, name) },
		func(s *Snapshot) { delete(s.systems, name) },
	)
}

// PutInvariant stores and publishes inv.
func (c *Catalog) PutInvariant(ctx context.Context, inv invariant.Invariant) error {
	if _, err := invariant.New(inv.Name, inv.Asserts); err != nil {
		return err
	}
	return c.update(
		func(b Backing) error {
			_, err := b.PutInvariant(ctx, inv)
			return err
		},
		func(s *Snapshot) { s.invariants[inv.Name] = inv },
	)
}

// DeleteInvariant removes the invariant named name.
func (c *Catalog) DeleteInvariant(ctx context.Context, name string) error {
	return c.update(
		func(b Backing) error { return b.DeleteInvariant(ctx, name) },
		func(s *Snapshot) { delete(s.invariants, name) },
	)
}

// Snapshot is an immutable view of the catalog. Its maps are never
// written after publication.
type Snapshot struct {
	definitions map[string]component.Definition
	systems     map[string]system.Definition
	invariants  map[string]invariant.Invariant
}

func emptySnapshot() *Snapshot {
	return &Snapshot{
		definitions: map[string]component.Definition{},
		systems:     map[string]system.Definition{},
		invariants:  map[string]invariant.Invariant{},
	}
}

func (s *Snapshot) clone() *Snapshot {
	out := &Snapshot{
		definitions: make(map[string]component.Definition, len(s.definitions)+1),
		systems:     make(map[string]system.Definition, len(s.systems)+1),
		invariants:  make(map[string]invariant.Invariant, len(s.invariants)+1),
	}
	for k, v := range s.definitions {
		out.definitions[k] = v
	}
	for k, v := range s.systems {
		out.systems[k] = v
	}
	for k, v := range s.invariants {
		out.invariants[k] = v
	}
	return out
}

// Definition returns the definition named name.
func (s *Snapshot) Definition(name string) (component.Definition, bool) {
	d, ok := s.definitions[name]
	return d, ok
}

// Definitions returns every definition sorted by name.
func (s *Snapshot) Definitions() []component.Definition {
	out := make([]component.Definition, 0, len(s.definitions))
	for _, d := range s.definitions {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Validate checks data against the definition of name.
func (s *Snapshot) Validate(name string, data ir.IRValue) error {
	def, ok := s.definitions[name]
	if !ok {
		return fmt.Errorf("component %s: no definition", name)
	}
	return def.Validate(data)
}

// System returns the system named name.
func (s *Snapshot) System(name string) (system.Definition, bool) {
	d, ok := s.systems[name]
	return d, ok
}

// Systems returns every system sorted by name.
func (s *Snapshot) Systems() []system.Definition {
	out := make([]system.Definition, 0, len(s.systems))
	for _, d := range s.systems {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Invariants returns every invariant sorted by name.
func (s *Snapshot) Invariants() []invariant.Invariant {
	out := make([]invariant.Invariant, 0, len(s.invariants))
	for _, inv := range s.invariants {
		out = append(out, inv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
