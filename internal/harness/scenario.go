package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/stigmergy/internal/store"
)

// Scenario defines an auction test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// World is an optional CUE world directory. Relative paths are
	// resolved against the scenario file.
	World string `yaml:"world,omitempty"`

	// Setup is a store batch applied after the world is loaded. It may
	// add definitions, systems and invariants; entity operations are
	// rejected because entities are addressed by alias.
	Setup []store.Operation `yaml:"setup,omitempty"`

	// Entities are created in order before the first round.
	Entities []EntitySpec `yaml:"entities"`

	// Scripts maps system names to what they do when they win.
	Scripts map[string][]Step `yaml:"scripts,omitempty"`

	// InvokeTimeout bounds each winner invocation. Zero means one second.
	InvokeTimeout time.Duration `yaml:"invoke_timeout,omitempty"`

	// Rounds run sequentially.
	Rounds []RoundStep `yaml:"rounds"`

	// Assertions validate the final trace and state.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// EntitySpec creates one entity with initial components.
type EntitySpec struct {
	Alias      string         `yaml:"alias"`
	Components map[string]any `yaml:"components,omitempty"`
}

// Step is one scripted invocation. Its parts run in field order: sleep,
// delete, write, set, then panic or fail.
type Step struct {
	// Sleep waits, returning early when the invocation is cancelled.
	Sleep time.Duration `yaml:"sleep,omitempty"`

	// Delete lists components to tombstone.
	Delete []string `yaml:"delete,omitempty"`

	// Write replaces whole components.
	Write map[string]any `yaml:"write,omitempty"`

	// Set maps "Component.field.path" to a bid-language expression. The
	// expression sees the system's view including writes staged earlier
	// in the same step.
	Set map[string]string `yaml:"set,omitempty"`

	// Panic makes the handler panic with this message.
	Panic string `yaml:"panic,omitempty"`

	// Fail makes the handler return an error with this message. Writes
	// staged by the step are discarded by the engine.
	Fail string `yaml:"fail,omitempty"`
}

// RoundStep runs one or more rounds on an entity.
type RoundStep struct {
	Entity string `yaml:"entity"`

	// Repeat runs the round this many times. Zero means once.
	Repeat int `yaml:"repeat,omitempty"`

	// Expect is checked against every repetition.
	Expect *RoundExpect `yaml:"expect,omitempty"`
}

// RoundExpect specifies how a round should end.
type RoundExpect struct {
	// Outcome is won, no_winner or failed.
	Outcome string `yaml:"outcome"`

	Winner    string   `yaml:"winner,omitempty"`
	Bid       *float64 `yaml:"bid,omitempty"`
	ErrorCode string   `yaml:"error_code,omitempty"`

	// Writes lists the components the round must have written, in order.
	Writes []string `yaml:"writes,omitempty"`
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Entity is the alias the assertion is about.
	Entity string `yaml:"entity"`

	// Component and Expect are used by component and component_absent.
	// Expect is a subset match.
	Component string         `yaml:"component,omitempty"`
	Expect    map[string]any `yaml:"expect,omitempty"`

	// Name and Status are used by invariant.
	Name   string `yaml:"name,omitempty"`
	Status string `yaml:"status,omitempty"`

	// Count is used by round_count.
	Count int `yaml:"count,omitempty"`

	// Outcome and Winner are used by trace_contains.
	Outcome string `yaml:"outcome,omitempty"`
	Winner  string `yaml:"winner,omitempty"`

	// Winners is used by trace_order.
	Winners []string `yaml:"winners,omitempty"`
}

// Assertion type constants.
const (
	AssertComponent       = "component"
	AssertComponentAbsent = "component_absent"
	AssertInvariant       = "invariant"
	AssertRoundCount      = "round_count"
	AssertTraceContains   = "trace_contains"
	AssertTraceOrder      = "trace_order"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	if scenario.World != "" && !filepath.IsAbs(scenario.World) {
		scenario.World = filepath.Join(filepath.Dir(path), scenario.World)
	}
	if scenario.World != "" {
		if _, err := os.Stat(scenario.World); os.IsNotExist(err) {
			return nil, fmt.Errorf("invalid scenario: world directory not found: %s", scenario.World)
		}
	}
	return scenario, nil
}

// ParseScenario parses scenario YAML without resolving the world path.
func ParseScenario(data []byte) (*Scenario, error) {
	// Reject unknown fields so typos like "assertion:" surface.
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Entities) == 0 {
		return fmt.Errorf("entities list is required and must be non-empty")
	}
	if len(s.Rounds) == 0 {
		return fmt.Errorf("rounds list is required and must be non-empty")
	}
	if s.InvokeTimeout < 0 {
		return fmt.Errorf("invoke_timeout must not be negative")
	}

	for i, op := range s.Setup {
		switch op.Type {
		case store.OpCreateEntity, store.OpDeleteEntity, store.OpUpsertComponent, store.OpDeleteComponent:
			return fmt.Errorf("setup[%d]: %s is not allowed in setup; use entities", i, op.Type)
		}
	}

	aliases := make(map[string]bool, len(s.Entities))
	for i, e := range s.Entities {
		if e.Alias == "" {
			return fmt.Errorf("entities[%d]: alias is required", i)
		}
		if aliases[e.Alias] {
			return fmt.Errorf("entities[%d]: duplicate alias %q", i, e.Alias)
		}
		aliases[e.Alias] = true
	}

	for name, steps := range s.Scripts {
		if len(steps) == 0 {
			return fmt.Errorf("scripts.%s: at least one step is required", name)
		}
		for i, step := range steps {
			if step.Sleep < 0 {
				return fmt.Errorf("scripts.%s[%d]: sleep must not be negative", name, i)
			}
		}
	}

	for i, r := range s.Rounds {
		if !aliases[r.Entity] {
			return fmt.Errorf("rounds[%d]: unknown entity %q", i, r.Entity)
		}
		if r.Repeat < 0 {
			return fmt.Errorf("rounds[%d]: repeat must not be negative", i)
		}
		if r.Expect != nil {
			switch store.Outcome(r.Expect.Outcome) {
			case store.OutcomeWon, store.OutcomeNoWinner, store.OutcomeFailed:
			default:
				return fmt.Errorf("rounds[%d].expect: outcome must be won, no_winner or failed", i)
			}
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i], aliases); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, aliases map[string]bool) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}
	if !aliases[a.Entity] {
		return fmt.Errorf("assertions[%d]: unknown entity %q", index, a.Entity)
	}

	switch a.Type {
	case AssertComponent:
		if a.Component == "" {
			return fmt.Errorf("assertions[%d]: component is required for component", index)
		}
	case AssertComponentAbsent:
		if a.Component == "" {
			return fmt.Errorf("assertions[%d]: component is required for component_absent", index)
		}
	case AssertInvariant:
		if a.Name == "" || a.Status == "" {
			return fmt.Errorf("assertions[%d]: name and status are required for invariant", index)
		}
	case AssertRoundCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for round_count", index)
		}
	case AssertTraceContains:
		if a.Outcome == "" && a.Winner == "" {
			return fmt.Errorf("assertions[%d]: outcome or winner is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Winners) == 0 {
			return fmt.Errorf("assertions[%d]: winners list is required for trace_order", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
