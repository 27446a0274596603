package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/stigmergy/internal/component"
	"github.com/roach88/stigmergy/internal/entity"
	"github.com/roach88/stigmergy/internal/invariant"
	"github.com/roach88/stigmergy/internal/ir"
	"github.com/roach88/stigmergy/internal/system"
)

// EntityExists reports whether e has been created and not deleted.
func (s *Store) EntityExists(ctx context.Context, e entity.Entity) (bool, error) {
	return entityExists(ctx, s.db, e)
}

func entityExists(ctx context.Context, q querier, e entity.Entity) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM entities WHERE id = ?`, e.String()).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("query entity: %w", err)
	}
	return n > 0, nil
}

// ListEntities returns every entity ordered by id.
// Returns an empty slice (not nil) when there are none.
func (s *Store) ListEntities(ctx context.Context) ([]entity.Entity, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM entities ORDER BY id COLLATE BINARY ASC`)
	if err != nil {
		return nil, fmt.Errorf("query entities: %w", err)
	}
	return scanEntities(rows)
}

// EntitiesWith returns entities holding a live instance of at least one of
// names, ordered by id. These are the entities an auction could have
// candidates for.
func (s *Store) EntitiesWith(ctx context.Context, names ...string) ([]entity.Entity, error) {
	if len(names) == 0 {
		return []entity.Entity{}, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(names)), ",")
	args := make([]any, len(names))
	for i, n := range names {
		args[i] = n
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT entity_id FROM components
		WHERE name IN (`+placeholders+`) AND data IS NOT NULL
		ORDER BY entity_id COLLATE BINARY ASC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("query entities with components: %w", err)
	}
	return scanEntities(rows)
}

func scanEntities(rows *sql.Rows) ([]entity.Entity, error) {
	defer rows.Close()

	out := []entity.Entity{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		e, err := entity.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entities: %w", err)
	}
	return out, nil
}

// GetDefinition returns the component definition for name.
// Returns an error wrapping ErrNotFound if none exists.
func (s *Store) GetDefinition(ctx context.Context, name string) (component.Definition, error) {
	return getDefinition(ctx, s.db, name)
}

func getDefinition(ctx context.Context, q querier, name string) (component.Definition, error) {
	var text string
	err := q.QueryRowContext(ctx, `SELECT schema FROM component_definitions WHERE name = ?`, name).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return component.Definition{}, fmt.Errorf("component definition %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return component.Definition{}, fmt.Errorf("query component definition %s: %w", name, err)
	}
	sch, err := unmarshalSchema(text)
	if err != nil {
		return component.Definition{}, fmt.Errorf("component definition %s: %w", name, err)
	}
	return component.Definition{Name: name, Schema: sch}, nil
}

// ListDefinitions returns every component definition ordered by name.
func (s *Store) ListDefinitions(ctx context.Context) ([]component.Definition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, schema FROM component_definitions ORDER BY name COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query component definitions: %w", err)
	}
	defer rows.Close()

	out := []component.Definition{}
	for rows.Next() {
		var name, text string
		if err := rows.Scan(&name, &text); err != nil {
			return nil, fmt.Errorf("scan component definition: %w", err)
		}
		sch, err := unmarshalSchema(text)
		if err != nil {
			return nil, fmt.Errorf("component definition %s: %w", name, err)
		}
		out = append(out, component.Definition{Name: name, Schema: sch})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate component definitions: %w", err)
	}
	return out, nil
}

// GetComponent returns the data and state of one (entity, name) slot.
// Absent slots return component.Absent with a nil error; a tombstone
// returns component.Tombstoned and nil data. An unknown entity is
// ErrNotFound.
func (s *Store) GetComponent(ctx context.Context, e entity.Entity, name string) (ir.IRValue, component.State, error) {
	var data sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT data FROM components WHERE entity_id = ? AND name = ?
	`, e.String(), name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		ok, err := s.EntityExists(ctx, e)
		if err != nil {
			return nil, component.Absent, err
		}
		if !ok {
			return nil, component.Absent, fmt.Errorf("entity %s: %w", e, ErrNotFound)
		}
		return nil, component.Absent, nil
	}
	if err != nil {
		return nil, component.Absent, fmt.Errorf("query component: %w", err)
	}
	v, err := unmarshalData(data)
	if err != nil {
		return nil, component.Absent, fmt.Errorf("component %s on %s: %w", name, e, err)
	}
	if v == nil {
		return nil, component.Tombstoned, nil
	}
	return v, component.Present, nil
}

// Components returns every instance row on e, tombstones included,
// ordered by component name.
func (s *Store) Components(ctx context.Context, e entity.Entity) ([]component.Instance, error) {
	return components(ctx, s.db, e)
}

func components(ctx context.Context, q querier, e entity.Entity) ([]component.Instance, error) {
	ok, err := entityExists(ctx, q, e)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("entity %s: %w", e, ErrNotFound)
	}

	rows, err := q.QueryContext(ctx, `
		SELECT name, data FROM components
		WHERE entity_id = ?
		ORDER BY name COLLATE BINARY ASC
	`, e.String())
	if err != nil {
		return nil, fmt.Errorf("query components: %w", err)
	}
	defer rows.Close()

	out := []component.Instance{}
	for rows.Next() {
		var name string
		var data sql.NullString
		if err := rows.Scan(&name, &data); err != nil {
			return nil, fmt.Errorf("scan component: %w", err)
		}
		v, err := unmarshalData(data)
		if err != nil {
			return nil, fmt.Errorf("component %s on %s: %w", name, e, err)
		}
		out = append(out, component.Instance{Entity: e, Name: name, Data: v})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate components: %w", err)
	}
	return out, nil
}

// ListComponents returns the names of live (non-tombstoned) components on e.
func (s *Store) ListComponents(ctx context.Context, e entity.Entity) ([]string, error) {
	instances, err := s.Components(ctx, e)
	if err != nil {
		return nil, err
	}
	names := []string{}
	for _, inst := range instances {
		if inst.Data != nil {
			names = append(names, inst.Name)
		}
	}
	return names, nil
}

// Snapshot returns the live components on e keyed by name, read inside
// one transaction so it never mixes two rounds' writes.
func (s *Store) Snapshot(ctx context.Context, e entity.Entity) (map[string]ir.IRValue, error) {
	var instances []component.Instance
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		instances, err = components(ctx, tx, e)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	out := make(map[string]ir.IRValue, len(instances))
	for _, inst := range instances {
		if inst.Data != nil {
			out[inst.Name] = inst.Data
		}
	}
	return out, nil
}

// GetSystem returns the system named name.
func (s *Store) GetSystem(ctx context.Context, name string) (system.Definition, error) {
	var text string
	err := s.db.QueryRowContext(ctx, `SELECT record FROM systems WHERE name = ?`, name).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return system.Definition{}, fmt.Errorf("system %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return system.Definition{}, fmt.Errorf("query system %s: %w", name, err)
	}
	return unmarshalSystem(text)
}

// ListSystems returns every system ordered by name.
func (s *Store) ListSystems(ctx context.Context) ([]system.Definition, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT record FROM systems ORDER BY name COLLATE BINARY ASC`)
	if err != nil {
		return nil, fmt.Errorf("query systems: %w", err)
	}
	defer rows.Close()

	out := []system.Definition{}
	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return nil, fmt.Errorf("scan system: %w", err)
		}
		d, err := unmarshalSystem(text)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate systems: %w", err)
	}
	return out, nil
}

// GetInvariant returns the invariant named name.
func (s *Store) GetInvariant(ctx context.Context, name string) (invariant.Invariant, error) {
	var asserts string
	err := s.db.QueryRowContext(ctx, `SELECT asserts FROM invariants WHERE name = ?`, name).Scan(&asserts)
	if errors.Is(err, sql.ErrNoRows) {
		return invariant.Invariant{}, fmt.Errorf("invariant %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return invariant.Invariant{}, fmt.Errorf("query invariant %s: %w", name, err)
	}
	return invariant.New(name, asserts)
}

// ListInvariants returns every invariant ordered by name.
func (s *Store) ListInvariants(ctx context.Context) ([]invariant.Invariant, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, asserts FROM invariants ORDER BY name COLLATE BINARY ASC`)
	if err != nil {
		return nil, fmt.Errorf("query invariants: %w", err)
	}
	defer rows.Close()

	out := []invariant.Invariant{}
	for rows.Next() {
		var name, asserts string
		if err := rows.Scan(&name, &asserts); err != nil {
			return nil, fmt.Errorf("scan invariant: %w", err)
		}
		inv, err := invariant.New(name, asserts)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate invariants: %w", err)
	}
	return out, nil
}
