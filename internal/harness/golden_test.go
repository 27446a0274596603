package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stigmergy/internal/ir"
)

func TestRunWithGolden_HealWounded(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/heal_wounded.yaml")
	require.NoError(t, err)

	// Regenerate with: go test ./internal/harness -run TestRunWithGolden -update
	require.NoError(t, RunWithGolden(t, scenario))
}

func TestRunWithGolden_Deterministic(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/flaky_healer.yaml")
	require.NoError(t, err)

	first, err := Run(scenario)
	require.NoError(t, err)
	second, err := Run(scenario)
	require.NoError(t, err)

	a := TraceSnapshot{ScenarioName: scenario.Name, Trace: first.Trace}
	b := TraceSnapshot{ScenarioName: scenario.Name, Trace: second.Trace}
	ja, err := a.MarshalCanonical()
	require.NoError(t, err)
	jb, err := b.MarshalCanonical()
	require.NoError(t, err)
	assert.Equal(t, string(ja), string(jb))
}

func TestTraceSnapshot_MarshalCanonical(t *testing.T) {
	snap := TraceSnapshot{
		ScenarioName: "s",
		Trace: []TraceEvent{
			{
				Round:   "round-0001",
				Seq:     1,
				Entity:  "a",
				Outcome: "won",
				Winner:  "healer",
				Bid:     2.5,
				Bids:    []BidEvent{{System: "healer", Active: true, Value: 2.5}},
				Writes: []WriteEvent{
					{Component: "Health", Data: ir.IRObject{"current": ir.IRInt(3)}},
					{Component: "Mana", Data: nil},
				},
			},
			{
				Round:     "round-0002",
				Seq:       2,
				Entity:    "a",
				Outcome:   "failed",
				Winner:    "healer",
				Bid:       1,
				Bids:      []BidEvent{},
				ErrorCode: "NO_HANDLER",
			},
		},
	}

	got, err := snap.MarshalCanonical()
	require.NoError(t, err)
	want := `{"scenario_name":"s","trace":[` +
		`{"bid":2.5,"bids":[{"active":true,"system":"healer","value":2.5}],"entity":"a","outcome":"won","round":"round-0001","seq":1,"winner":"healer",` +
		`"writes":[{"component":"Health","data":{"current":3}},{"component":"Mana","data":null}]},` +
		`{"bid":1,"bids":[],"entity":"a","error_code":"NO_HANDLER","outcome":"failed","round":"round-0002","seq":2,"winner":"healer"}]}`
	assert.Equal(t, want, string(got))
}
