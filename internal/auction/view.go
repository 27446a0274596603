package auction

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/roach88/stigmergy/internal/catalog"
	"github.com/roach88/stigmergy/internal/entity"
	"github.com/roach88/stigmergy/internal/ir"
	"github.com/roach88/stigmergy/internal/store"
	"github.com/roach88/stigmergy/internal/system"
)

// ErrViewClosed is returned by View methods after the round that issued
// the view has ended, for example because the invocation timed out.
var ErrViewClosed = errors.New("view closed: round is over")

// View is the winner's capability-scoped access to one entity for the
// duration of one round.
//
// Reads see the round's snapshot overlaid with the view's own staged
// writes. Writes are checked against the system's grants and validated
// against the component schema at call time, then staged; the engine
// commits them together when the invocation returns. A rejected write or
// delete fails the round even if the system ignores the error, so a round
// never commits part of what its winner attempted.
//
// Safe for concurrent use by the invoked system.
type View struct {
	entity   entity.Entity
	system   system.Definition
	snapshot map[string]ir.IRValue
	defs     *catalog.Snapshot

	mu     sync.Mutex
	order  []string
	staged map[string]ir.IRValue // nil value = delete
	closed bool
	failed error // first rejected write or delete
}

func newView(e entity.Entity, sys system.Definition, snapshot map[string]ir.IRValue, defs *catalog.Snapshot) *View {
	return &View{
		entity:   e,
		system:   sys,
		snapshot: snapshot,
		defs:     defs,
		staged:   map[string]ir.IRValue{},
	}
}

// Entity returns the entity the view is scoped to.
func (v *View) Entity() entity.Entity { return v.entity }

// System returns the name of the system holding the view.
func (v *View) System() string { return v.system.Name }

// Read returns the live value of name and whether it is present. Requires
// a read, read+write or execute grant.
func (v *View) Read(name string) (ir.IRValue, bool, error) {
	if !v.system.CanView(name) {
		return nil, false, v.denied("read", name)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return nil, false, ErrViewClosed
	}
	if data, ok := v.staged[name]; ok {
		return data, data != nil, nil
	}
	data, ok := v.snapshot[name]
	return data, ok && data != nil, nil
}

// Write stages data for name. Requires a write or read+write grant, and
// data must satisfy the component's schema.
func (v *View) Write(name string, data ir.IRValue) error {
	if !v.system.CanWrite(name) {
		return v.reject(v.denied("write", name))
	}
	if data == nil {
		return v.reject(fmt.Errorf("write %s: nil data, use Delete", name))
	}
	if err := v.defs.Validate(name, data); err != nil {
		return v.reject(err)
	}
	return v.stage(name, data)
}

// Delete stages removal of name. Requires a write or read+write grant.
func (v *View) Delete(name string) error {
	if !v.system.CanWrite(name) {
		return v.reject(v.denied("delete", name))
	}
	return v.stage(name, nil)
}

// reject records the first rejected mutation and returns err.
func (v *View) reject(err error) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.failed == nil && !v.closed {
		v.failed = err
	}
	return err
}

// rejected returns the first rejected mutation, or nil.
func (v *View) rejected() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.failed
}

func (v *View) stage(name string, data ir.IRValue) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return ErrViewClosed
	}
	if _, ok := v.staged[name]; !ok {
		v.order = append(v.order, name)
	}
	v.staged[name] = data
	return nil
}

// Readable lists the components the view can read, sorted.
func (v *View) Readable() []string {
	return v.granted(func(m system.AccessMode) bool { return m.CanView() })
}

// Writable lists the components the view can write, sorted.
func (v *View) Writable() []string {
	return v.granted(func(m system.AccessMode) bool { return m.CanWrite() })
}

func (v *View) granted(keep func(system.AccessMode) bool) []string {
	var out []string
	for _, g := range v.system.Grants {
		if keep(g.Mode) {
			out = append(out, g.Component)
		}
	}
	sort.Strings(out)
	return out
}

func (v *View) denied(op, name string) error {
	mode, _ := v.system.Mode(name)
	return &system.CapabilityError{System: v.system.Name, Component: name, Op: op, Mode: mode}
}

// close ends the view and returns the staged writes in first-write order,
// one per component.
func (v *View) close() []store.Write {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
	writes := make([]store.Write, len(v.order))
	for i, name := range v.order {
		writes[i] = store.Write{Name: name, Data: v.staged[name]}
	}
	return writes
}
