package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/stigmergy/internal/ir"
)

// TraceSnapshot captures the complete trace for a scenario execution.
// Entities appear by alias and rounds carry sequential ids, so a trace is
// identical across runs.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	Trace        []TraceEvent `json:"trace"`
}

// toCanonicalMap converts a TraceSnapshot to a map[string]any for canonical JSON serialization.
// This is required because ir.MarshalCanonical only handles IR types and primitives.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	traceList := make([]any, len(s.Trace))
	for i, event := range s.Trace {
		bids := make([]any, len(event.Bids))
		for j, b := range event.Bids {
			bids[j] = map[string]any{
				"system": b.System,
				"active": b.Active,
				"value":  b.Value,
			}
		}
		eventMap := map[string]any{
			"round":   event.Round,
			"seq":     event.Seq,
			"entity":  event.Entity,
			"outcome": event.Outcome,
			"bids":    bids,
		}
		if event.Winner != "" {
			eventMap["winner"] = event.Winner
			eventMap["bid"] = event.Bid
		}
		if len(event.Writes) > 0 {
			writes := make([]any, len(event.Writes))
			for j, w := range event.Writes {
				writes[j] = map[string]any{
					"component": w.Component,
					"data":      w.Data,
				}
			}
			eventMap["writes"] = writes
		}
		if event.ErrorCode != "" {
			eventMap["error_code"] = event.ErrorCode
		}
		traceList[i] = eventMap
	}

	return map[string]any{
		"scenario_name": s.ScenarioName,
		"trace":         traceList,
	}
}

// MarshalCanonical renders the snapshot as RFC 8785 canonical JSON, the
// form golden files hold.
func (s *TraceSnapshot) MarshalCanonical() ([]byte, error) {
	return ir.MarshalCanonical(s.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if trace doesn't match golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}
	return AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares the given result's trace against a golden file.
// This is useful when you've already run a scenario and want to compare
// the result against a golden file without re-running.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	snapshot := TraceSnapshot{
		ScenarioName: scenarioName,
		Trace:        result.Trace,
	}
	traceJSON, err := snapshot.MarshalCanonical()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)
	return nil
}
