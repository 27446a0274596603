package harness

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/roach88/stigmergy/internal/auction"
	"github.com/roach88/stigmergy/internal/bid"
	"github.com/roach88/stigmergy/internal/ir"
)

// scriptInvoker replays a system's scripted steps, one per invocation.
// The last step repeats once the script runs out.
type scriptInvoker struct {
	mu    sync.Mutex
	steps []Step
	calls int
}

func newScriptInvoker(steps []Step) *scriptInvoker {
	return &scriptInvoker{steps: steps}
}

func (s *scriptInvoker) next() Step {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := min(s.calls, len(s.steps)-1)
	s.calls++
	return s.steps[i]
}

// Invoke implements auction.Invoker.
func (s *scriptInvoker) Invoke(ctx context.Context, req auction.Request) error {
	return runStep(ctx, s.next(), req.View)
}

func runStep(ctx context.Context, step Step, view *auction.View) error {
	if step.Sleep > 0 {
		timer := time.NewTimer(step.Sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	for _, name := range step.Delete {
		if err := view.Delete(name); err != nil {
			return err
		}
	}

	// Map iteration order is random; stage writes deterministically.
	for _, name := range sortedKeys(step.Write) {
		data, err := ir.FromGo(step.Write[name])
		if err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
		if err := view.Write(name, data); err != nil {
			return err
		}
	}

	for _, target := range sortedKeys(step.Set) {
		if err := setField(view, target, step.Set[target]); err != nil {
			return err
		}
	}

	if step.Panic != "" {
		panic(step.Panic)
	}
	if step.Fail != "" {
		return errors.New(step.Fail)
	}
	return nil
}

// setField evaluates src over the view and stores the result at target,
// a "Component.field.path" reference. Missing intermediate objects are
// created; an absent component starts as an empty object.
func setField(view *auction.View, target, src string) error {
	name, path, ok := splitTarget(target)
	if !ok {
		return fmt.Errorf("set %s: want Component.field", target)
	}
	expr, err := bid.ParseExpr(src)
	if err != nil {
		return fmt.Errorf("set %s: %w", target, err)
	}
	value, err := bid.Eval(expr, viewSnapshot{view})
	if err != nil {
		return fmt.Errorf("set %s: %w", target, err)
	}

	current, present, err := view.Read(name)
	if err != nil {
		return err
	}
	root := ir.IRObject{}
	if present {
		obj, ok := current.(ir.IRObject)
		if !ok {
			return fmt.Errorf("set %s: component is %s, not an object", target, ir.TypeName(current))
		}
		root = ir.Clone(obj).(ir.IRObject)
	}

	obj := root
	for _, f := range path[:len(path)-1] {
		child, ok := obj[f].(ir.IRObject)
		if !ok {
			child = ir.IRObject{}
			obj[f] = child
		}
		obj = child
	}
	obj[path[len(path)-1]] = value
	return view.Write(name, root)
}

// splitTarget splits "ns::Comp.a.b" into the component name and field
// path. Component names may contain "::" but never ".".
func splitTarget(target string) (string, []string, bool) {
	parts := strings.Split(target, ".")
	if len(parts) < 2 || parts[0] == "" {
		return "", nil, false
	}
	for _, p := range parts[1:] {
		if p == "" {
			return "", nil, false
		}
	}
	return parts[0], parts[1:], true
}

// viewSnapshot lets bid expressions read through a View, so they see
// writes staged earlier in the same step.
type viewSnapshot struct {
	view *auction.View
}

func (s viewSnapshot) Readable(name string) bool {
	for _, r := range s.view.Readable() {
		if r == name {
			return true
		}
	}
	return false
}

func (s viewSnapshot) Component(name string) (ir.IRValue, bool) {
	v, ok, err := s.view.Read(name)
	if err != nil || !ok {
		return nil, false
	}
	return v, true
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
