package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/stigmergy/internal/component"
	"github.com/roach88/stigmergy/internal/entity"
	"github.com/roach88/stigmergy/internal/invariant"
	"github.com/roach88/stigmergy/internal/ir"
	"github.com/roach88/stigmergy/internal/system"
)

// CreateEntity mints a new entity and stores it.
func (s *Store) CreateEntity(ctx context.Context) (entity.Entity, error) {
	e, err := entity.NewURLSafe()
	if err != nil {
		return entity.Nil, fmt.Errorf("create entity: %w", err)
	}
	if _, err := insertEntity(ctx, s.db, e); err != nil {
		return entity.Nil, err
	}
	return e, nil
}

// InsertEntity stores a caller-chosen entity. It reports false, without
// error, when the entity already exists.
func (s *Store) InsertEntity(ctx context.Context, e entity.Entity) (bool, error) {
	return insertEntity(ctx, s.db, e)
}

func insertEntity(ctx context.Context, q querier, e entity.Entity) (bool, error) {
	if e.IsNil() {
		return false, fmt.Errorf("insert entity: nil entity")
	}
	res, err := q.ExecContext(ctx, `INSERT INTO entities (id) VALUES (?) ON CONFLICT(id) DO NOTHING`, e.String())
	if err != nil {
		return false, fmt.Errorf("insert entity: %w", err)
	}
	return affected(res, "insert entity")
}

// DeleteEntity removes e and, by cascade, every component on it and every
// edge naming it as source, destination or label.
func (s *Store) DeleteEntity(ctx context.Context, e entity.Entity) error {
	ok, err := deleteEntity(ctx, s.db, e)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("entity %s: %w", e, ErrNotFound)
	}
	return nil
}

func deleteEntity(ctx context.Context, q querier, e entity.Entity) (bool, error) {
	res, err := q.ExecContext(ctx, `DELETE FROM entities WHERE id = ?`, e.String())
	if err != nil {
		return false, fmt.Errorf("delete entity: %w", err)
	}
	return affected(res, "delete entity")
}

// PutDefinition creates or replaces a component definition and reports
// whether it was created.
//
// Replacing a schema re-validates every live instance of the component
// against the new schema; the first non-conforming instance aborts the
// update with its validation error. With force set the check is skipped
// and existing instances are left as they are.
func (s *Store) PutDefinition(ctx context.Context, def component.Definition, force bool) (bool, error) {
	var created bool
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		created, err = putDefinition(ctx, tx, def, force)
		return err
	})
	return created, err
}

func putDefinition(ctx context.Context, q querier, def component.Definition, force bool) (bool, error) {
	if _, err := component.NewDefinition(def.Name, def.Schema); err != nil {
		return false, fmt.Errorf("put component definition: %w", err)
	}
	text, err := marshalSchema(def.Schema)
	if err != nil {
		return false, fmt.Errorf("put component definition %s: %w", def.Name, err)
	}

	_, err = getDefinition(ctx, q, def.Name)
	exists := err == nil
	if err != nil && !IsNotFound(err) {
		return false, err
	}

	if exists && !force {
		if err := checkInstances(ctx, q, def); err != nil {
			return false, err
		}
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO component_definitions (name, schema) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET schema = excluded.schema
	`, def.Name, text)
	if err != nil {
		return false, fmt.Errorf("put component definition %s: %w", def.Name, err)
	}
	return !exists, nil
}

// checkInstances validates every live instance of def.Name against def.
func checkInstances(ctx context.Context, q querier, def component.Definition) error {
	rows, err := q.QueryContext(ctx, `
		SELECT entity_id, data FROM components
		WHERE name = ? AND data IS NOT NULL
		ORDER BY entity_id COLLATE BINARY ASC
	`, def.Name)
	if err != nil {
		return fmt.Errorf("query instances of %s: %w", def.Name, err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var data sql.NullString
		if err := rows.Scan(&id, &data); err != nil {
			return fmt.Errorf("scan instance of %s: %w", def.Name, err)
		}
		v, err := unmarshalData(data)
		if err != nil {
			return fmt.Errorf("instance of %s on %s: %w", def.Name, id, err)
		}
		if err := def.Validate(v); err != nil {
			return fmt.Errorf("schema change rejected: instance on %s: %w", id, err)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate instances of %s: %w", def.Name, err)
	}
	return nil
}

// DeleteDefinition removes a component definition and, by cascade, every
// instance of it.
func (s *Store) DeleteDefinition(ctx context.Context, name string) error {
	ok, err := deleteDefinition(ctx, s.db, name)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("component definition %s: %w", name, ErrNotFound)
	}
	return nil
}

func deleteDefinition(ctx context.Context, q querier, name string) (bool, error) {
	res, err := q.ExecContext(ctx, `DELETE FROM component_definitions WHERE name = ?`, name)
	if err != nil {
		return false, fmt.Errorf("delete component definition: %w", err)
	}
	return affected(res, "delete component definition")
}

// PutComponent validates data against the component's definition and
// writes it, replacing any previous instance or tombstone. It reports
// whether no live instance existed before. Nothing is written when
// validation fails.
func (s *Store) PutComponent(ctx context.Context, e entity.Entity, name string, data ir.IRValue) (bool, error) {
	var created bool
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		created, err = putComponent(ctx, tx, e, name, data)
		return err
	})
	return created, err
}

func putComponent(ctx context.Context, q querier, e entity.Entity, name string, data ir.IRValue) (bool, error) {
	if data == nil {
		return false, fmt.Errorf("put component %s: nil data, use DeleteComponent", name)
	}
	ok, err := entityExists(ctx, q, e)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, fmt.Errorf("put component %s: entity %s: %w", name, e, ErrNotFound)
	}
	def, err := getDefinition(ctx, q, name)
	if err != nil {
		return false, fmt.Errorf("put component: %w", err)
	}
	if err := def.Validate(data); err != nil {
		return false, err
	}
	text, err := marshalData(data)
	if err != nil {
		return false, fmt.Errorf("put component %s: %w", name, err)
	}

	var live int
	err = q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM components WHERE entity_id = ? AND name = ? AND data IS NOT NULL
	`, e.String(), name).Scan(&live)
	if err != nil {
		return false, fmt.Errorf("put component %s: %w", name, err)
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO components (entity_id, name, data) VALUES (?, ?, ?)
		ON CONFLICT(entity_id, name) DO UPDATE SET data = excluded.data
	`, e.String(), name, text)
	if err != nil {
		return false, fmt.Errorf("put component %s: %w", name, err)
	}
	return live == 0, nil
}

// DeleteComponent tombstones the component: the row stays with NULL data
// so later reads report Tombstoned rather than Absent. Returns ErrNotFound
// when there is no live instance.
func (s *Store) DeleteComponent(ctx context.Context, e entity.Entity, name string) error {
	ok, err := tombstoneComponent(ctx, s.db, e, name)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("component %s on %s: %w", name, e, ErrNotFound)
	}
	return nil
}

func tombstoneComponent(ctx context.Context, q querier, e entity.Entity, name string) (bool, error) {
	res, err := q.ExecContext(ctx, `
		UPDATE components SET data = NULL
		WHERE entity_id = ? AND name = ? AND data IS NOT NULL
	`, e.String(), name)
	if err != nil {
		return false, fmt.Errorf("delete component %s: %w", name, err)
	}
	return affected(res, "delete component")
}

// PurgeComponent removes the component row entirely, live or tombstoned.
func (s *Store) PurgeComponent(ctx context.Context, e entity.Entity, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM components WHERE entity_id = ? AND name = ?`, e.String(), name)
	if err != nil {
		return fmt.Errorf("purge component %s: %w", name, err)
	}
	ok, err := affected(res, "purge component")
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("component %s on %s: %w", name, e, ErrNotFound)
	}
	return nil
}

// PutSystem validates and stores d, replacing any system with the same
// name. It reports whether the system was created.
func (s *Store) PutSystem(ctx context.Context, d system.Definition) (bool, error) {
	return putSystem(ctx, s.db, d)
}

func putSystem(ctx context.Context, q querier, d system.Definition) (bool, error) {
	if err := d.Validate(); err != nil {
		return false, err
	}
	text, err := marshalSystem(d)
	if err != nil {
		return false, err
	}
	var n int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM systems WHERE name = ?`, d.Name).Scan(&n); err != nil {
		return false, fmt.Errorf("put system %s: %w", d.Name, err)
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO systems (name, record) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET record = excluded.record
	`, d.Name, text)
	if err != nil {
		return false, fmt.Errorf("put system %s: %w", d.Name, err)
	}
	return n == 0, nil
}

// DeleteSystem removes the system named name.
func (s *Store) DeleteSystem(ctx context.Context, name string) error {
	ok, err := deleteSystem(ctx, s.db, name)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("system %s: %w", name, ErrNotFound)
	}
	return nil
}

func deleteSystem(ctx context.Context, q querier, name string) (bool, error) {
	res, err := q.ExecContext(ctx, `DELETE FROM systems WHERE name = ?`, name)
	if err != nil {
		return false, fmt.Errorf("delete system: %w", err)
	}
	return affected(res, "delete system")
}

// PutInvariant stores inv and reports whether it was created.
func (s *Store) PutInvariant(ctx context.Context, inv invariant.Invariant) (bool, error) {
	return putInvariant(ctx, s.db, inv)
}

func putInvariant(ctx context.Context, q querier, inv invariant.Invariant) (bool, error) {
	if _, err := invariant.New(inv.Name, inv.Asserts); err != nil {
		return false, fmt.Errorf("put invariant: %w", err)
	}
	var n int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM invariants WHERE name = ?`, inv.Name).Scan(&n); err != nil {
		return false, fmt.Errorf("put invariant %s: %w", inv.Name, err)
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO invariants (name, asserts) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET asserts = excluded.asserts
	`, inv.Name, inv.Asserts)
	if err != nil {
		return false, fmt.Errorf("put invariant %s: %w", inv.Name, err)
	}
	return n == 0, nil
}

// DeleteInvariant removes the invariant named name.
func (s *Store) DeleteInvariant(ctx context.Context, name string) error {
	ok, err := deleteInvariant(ctx, s.db, name)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("invariant %s: %w", name, ErrNotFound)
	}
	return nil
}

func deleteInvariant(ctx context.Context, q querier, name string) (bool, error) {
	res, err := q.ExecContext(ctx, `DELETE FROM invariants WHERE name = ?`, name)
	if err != nil {
		return false, fmt.Errorf("delete invariant: %w", err)
	}
	return affected(res, "delete invariant")
}

func affected(res sql.Result, op string) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: rows affected: %w", op, err)
	}
	return n > 0, nil
}
