package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/roach88/stigmergy/internal/component"
	"github.com/roach88/stigmergy/internal/entity"
	"github.com/roach88/stigmergy/internal/invariant"
	"github.com/roach88/stigmergy/internal/ir"
	"github.com/roach88/stigmergy/internal/schema"
	"github.com/roach88/stigmergy/internal/system"
)

// OpType names a batch operation.
type OpType string

const (
	OpCreateEntity     OpType = "create_entity"
	OpDeleteEntity     OpType = "delete_entity"
	OpUpsertComponent  OpType = "upsert_component"
	OpDeleteComponent  OpType = "delete_component"
	OpUpsertDefinition OpType = "upsert_component_definition"
	OpDeleteDefinition OpType = "delete_component_definition"
	OpUpsertInvariant  OpType = "upsert_invariant"
	OpDeleteInvariant  OpType = "delete_invariant"
	OpUpsertSystem     OpType = "upsert_system"
	OpDeleteSystem     OpType = "delete_system"
)

// Operation is one step of a batch. Which fields apply depends on Type:
//
//	create_entity                 Entity (optional; minted when nil)
//	delete_entity                 Entity
//	upsert_component              Entity, Component, Data
//	delete_component              Entity, Component
//	upsert_component_definition   Component, Schema, Force
//	delete_component_definition   Component
//	upsert_invariant              Name, Asserts
//	delete_invariant              Name
//	upsert_system                 System
//	delete_system                 Name
type Operation struct {
	Type      OpType
	Entity    *entity.Entity
	Component string
	Data      ir.IRValue
	Schema    *schema.Schema
	Force     bool
	Name      string
	Asserts   string
	System    *system.Definition
}

// opDoc is the wire shape of an Operation. Data and Schema are decoded
// separately so integers stay integers.
type opDoc struct {
	Type      OpType             `json:"type" yaml:"type"`
	Entity    *entity.Entity     `json:"entity,omitempty" yaml:"entity,omitempty"`
	Component string             `json:"component,omitempty" yaml:"component,omitempty"`
	Force     bool               `json:"force,omitempty" yaml:"force,omitempty"`
	Name      string             `json:"name,omitempty" yaml:"name,omitempty"`
	Asserts   string             `json:"asserts,omitempty" yaml:"asserts,omitempty"`
	System    *system.Definition `json:"system,omitempty" yaml:"system,omitempty"`
}

// UnmarshalJSON implements json.Unmarshaler.
func (op *Operation) UnmarshalJSON(data []byte) error {
	var doc struct {
		opDoc
		Data   json.RawMessage `json:"data"`
		Schema json.RawMessage `json:"schema"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	*op = doc.opDoc.operation()
	if len(doc.Data) > 0 {
		v, err := ir.UnmarshalIRValue(doc.Data)
		if err != nil {
			return fmt.Errorf("%s: data: %w", op.Type, err)
		}
		op.Data = v
	}
	if len(doc.Schema) > 0 {
		s, err := schema.Parse(doc.Schema)
		if err != nil {
			return fmt.Errorf("%s: schema: %w", op.Type, err)
		}
		op.Schema = s
	}
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler. Schema properties written in
// YAML are declared in sorted order.
func (op *Operation) UnmarshalYAML(node *yaml.Node) error {
	var doc struct {
		opDoc  `yaml:",inline"`
		Data   any `yaml:"data"`
		Schema any `yaml:"schema"`
	}
	if err := node.Decode(&doc); err != nil {
		return err
	}
	*op = doc.opDoc.operation()
	if doc.Data != nil {
		v, err := ir.FromGo(doc.Data)
		if err != nil {
			return fmt.Errorf("line %d: %s: data: %w", node.Line, op.Type, err)
		}
		op.Data = v
	}
	if doc.Schema != nil {
		v, err := ir.FromGo(doc.Schema)
		if err != nil {
			return fmt.Errorf("line %d: %s: schema: %w", node.Line, op.Type, err)
		}
		s, err := schema.FromValue(v)
		if err != nil {
			return fmt.Errorf("line %d: %s: schema: %w", node.Line, op.Type, err)
		}
		op.Schema = s
	}
	return nil
}

func (d opDoc) operation() Operation {
	return Operation{
		Type:      d.Type,
		Entity:    d.Entity,
		Component: d.Component,
		Force:     d.Force,
		Name:      d.Name,
		Asserts:   d.Asserts,
		System:    d.System,
	}
}

// Batch is a document of operations applied together.
type Batch struct {
	Operations []Operation `json:"operations" yaml:"operations"`
}

// DecodeBatchYAML reads a batch document.
func DecodeBatchYAML(r io.Reader) (Batch, error) {
	var b Batch
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&b); err != nil && !errors.Is(err, io.EOF) {
		return Batch{}, fmt.Errorf("decode batch: %w", err)
	}
	return b, nil
}

// OpResult is the outcome of one batch operation.
type OpResult struct {
	Index int    `json:"index"`
	Type  OpType `json:"type"`
	// Entity is set for entity and component operations.
	Entity string `json:"entity,omitempty"`
	// Name is the component, invariant or system the operation touched.
	Name string `json:"name,omitempty"`
	// Changed is true when a record was created (upserts, create_entity)
	// or removed (deletes).
	Changed bool   `json:"changed"`
	Error   string `json:"error,omitempty"`

	err error
}

// ApplyResult reports every operation and whether the batch committed.
type ApplyResult struct {
	Results   []OpResult `json:"results"`
	Committed bool       `json:"committed"`
}

// Err joins the errors of failed operations, or returns nil.
func (r ApplyResult) Err() error {
	var errs []error
	for _, res := range r.Results {
		if res.err != nil {
			errs = append(errs, fmt.Errorf("operation %d (%s): %w", res.Index, res.Type, res.err))
		}
	}
	return errors.Join(errs...)
}

// Apply runs ops in order inside one transaction. Every operation runs
// even after an earlier one fails, so the caller sees all problems at
// once; the transaction commits only if none failed.
//
// The returned error is for infrastructure failures (begin, commit).
// Operation failures are reported in the result with Committed false.
func (s *Store) Apply(ctx context.Context, ops []Operation) (ApplyResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ApplyResult{}, fmt.Errorf("apply: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	result := ApplyResult{Results: make([]OpResult, 0, len(ops))}
	failed := false
	for i, op := range ops {
		res := applyOp(ctx, tx, op)
		res.Index = i
		res.Type = op.Type
		if res.err != nil {
			res.Error = res.err.Error()
			failed = true
		}
		result.Results = append(result.Results, res)
	}

	if failed {
		return result, nil
	}
	if err := tx.Commit(); err != nil {
		return result, fmt.Errorf("apply: commit tx: %w", err)
	}
	result.Committed = true
	return result, nil
}

func applyOp(ctx context.Context, tx *sql.Tx, op Operation) OpResult {
	var res OpResult
	needEntity := func() (entity.Entity, bool) {
		if op.Entity == nil || op.Entity.IsNil() {
			res.err = fmt.Errorf("entity is required")
			return entity.Nil, false
		}
		res.Entity = op.Entity.String()
		return *op.Entity, true
	}

	switch op.Type {
	case OpCreateEntity:
		e := entity.Nil
		if op.Entity != nil {
			e = *op.Entity
		}
		if e.IsNil() {
			minted, err := entity.NewURLSafe()
			if err != nil {
				res.err = err
				return res
			}
			e = minted
		}
		res.Entity = e.String()
		res.Changed, res.err = insertEntity(ctx, tx, e)

	case OpDeleteEntity:
		if e, ok := needEntity(); ok {
			res.Changed, res.err = deleteEntity(ctx, tx, e)
		}

	case OpUpsertComponent:
		res.Name = op.Component
		if e, ok := needEntity(); ok {
			res.Changed, res.err = putComponent(ctx, tx, e, op.Component, op.Data)
		}

	case OpDeleteComponent:
		res.Name = op.Component
		if e, ok := needEntity(); ok {
			res.Changed, res.err = tombstoneComponent(ctx, tx, e, op.Component)
		}

	case OpUpsertDefinition:
		res.Name = op.Component
		if op.Schema == nil {
			res.err = fmt.Errorf("schema is required")
			return res
		}
		res.Changed, res.err = putDefinition(ctx, tx, component.Definition{Name: op.Component, Schema: op.Schema}, op.Force)

	case OpDeleteDefinition:
		res.Name = op.Component
		res.Changed, res.err = deleteDefinition(ctx, tx, op.Component)

	case OpUpsertInvariant:
		res.Name = op.Name
		inv, err := invariant.New(op.Name, op.Asserts)
		if err != nil {
			res.err = err
			return res
		}
		res.Changed, res.err = putInvariant(ctx, tx, inv)

	case OpDeleteInvariant:
		res.Name = op.Name
		res.Changed, res.err = deleteInvariant(ctx, tx, op.Name)

	case OpUpsertSystem:
		if op.System == nil {
			res.err = fmt.Errorf("system is required")
			return res
		}
		res.Name = op.System.Name
		res.Changed, res.err = putSystem(ctx, tx, *op.System)

	case OpDeleteSystem:
		res.Name = op.Name
		res.Changed, res.err = deleteSystem(ctx, tx, op.Name)

	default:
		res.err = fmt.Errorf("unknown operation type %q", op.Type)
	}
	return res
}
