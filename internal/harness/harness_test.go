package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stigmergy/internal/ir"
)

// healthWorld declares Health, Mana and one healer system through setup
// operations, so these scenarios do not depend on a CUE world.
const healthWorld = `
setup:
  - type: upsert_component_definition
    component: Health
    schema:
      type: object
      properties:
        current: {type: integer, minimum: 0}
        maximum: {type: integer, minimum: 1}
      required: [current, maximum]
  - type: upsert_component_definition
    component: Mana
    schema:
      type: object
      properties:
        points: {type: integer, minimum: 0}
      required: [points]
  - type: upsert_system
    system:
      name: healer
      description: "Restores health"
      model: sonnet
      color: green
      component: ["Health: read+write", "Mana: read"]
      bid: ["ON Health.current < Health.maximum BID Health.maximum - Health.current"]
`

func parse(t *testing.T, body string) *Scenario {
	t.Helper()
	scenario, err := ParseScenario([]byte("name: test\ndescription: test\n" + healthWorld + body))
	require.NoError(t, err)
	return scenario
}

func TestRun_HealWounded(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/heal_wounded.yaml")
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Empty(t, result.Errors)

	require.Len(t, result.Trace, 3)
	first := result.Trace[0]
	assert.Equal(t, "round-0001", first.Round)
	assert.Equal(t, int64(1), first.Seq)
	assert.Equal(t, "knight", first.Entity)
	require.Len(t, first.Writes, 1)
	assert.True(t, ir.Equal(ir.IRObject{"current": ir.IRInt(7), "maximum": ir.IRInt(10)}, first.Writes[0].Data))

	last := result.Trace[2]
	assert.Equal(t, "no_winner", last.Outcome)
	assert.Empty(t, last.Winner)
	assert.Contains(t, result.Entities, "knight")
}

func TestRun_FlakyHealer(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/flaky_healer.yaml")
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	require.Len(t, result.Trace, 5)
	for _, ev := range result.Trace[:3] {
		assert.Equal(t, "failed", ev.Outcome)
		assert.Empty(t, ev.Writes, "failed rounds commit nothing")
	}
	assert.Equal(t, "INVOCATION_TIMEOUT", result.Trace[1].ErrorCode)
}

func TestRun_NoScriptSucceedsWithoutWrites(t *testing.T) {
	scenario := parse(t, `
entities:
  - alias: a
    components:
      Health: {current: 1, maximum: 3}
rounds:
  - entity: a
    repeat: 2
    expect: {outcome: won, winner: healer, bid: 2}
assertions:
  - type: component
    entity: a
    component: Health
    expect: {current: 1}
  - type: round_count
    entity: a
    count: 2
`)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	require.Len(t, result.Trace, 2)
	assert.Empty(t, result.Trace[0].Writes)
	assert.Equal(t, "round-0002", result.Trace[1].Round)
}

func TestRun_NoCandidates(t *testing.T) {
	scenario := parse(t, `
entities:
  - alias: a
    components:
      Mana: {points: 3}
  - alias: b
rounds:
  - entity: b
    expect: {outcome: no_winner}
assertions:
  - type: component_absent
    entity: b
    component: Health
`)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	require.Len(t, result.Trace, 1)
	assert.Empty(t, result.Trace[0].Bids)
}

func TestRun_SetAndDelete(t *testing.T) {
	scenario := parse(t, `
entities:
  - alias: a
    components:
      Health: {current: 0, maximum: 4}
      Mana: {points: 2}
scripts:
  healer:
    - set:
        Health.current: "Health.current + Mana.points"
    - delete: [Health]
rounds:
  - entity: a
    expect: {outcome: won, writes: [Health]}
  - entity: a
    expect: {outcome: won, bid: 2, writes: [Health]}
assertions:
  - type: component_absent
    entity: a
    component: Health
  - type: trace_order
    entity: a
    winners: [healer, healer]
`)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	require.Len(t, result.Trace, 2)
	assert.Nil(t, result.Trace[1].Writes[0].Data)
}

func TestRun_WriteOutsideGrantFails(t *testing.T) {
	scenario := parse(t, `
entities:
  - alias: a
    components:
      Health: {current: 0, maximum: 4}
      Mana: {points: 2}
scripts:
  healer:
    - write:
        Mana: {points: 0}
rounds:
  - entity: a
    expect: {outcome: failed, error_code: INVOCATION_FAILED}
assertions:
  - type: component
    entity: a
    component: Mana
    expect: {points: 2}
`)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_SchemaViolationFails(t *testing.T) {
	scenario := parse(t, `
entities:
  - alias: a
    components:
      Health: {current: 0, maximum: 4}
scripts:
  healer:
    - write:
        Health: {current: -1, maximum: 4}
rounds:
  - entity: a
    expect: {outcome: failed, error_code: INVOCATION_FAILED}
assertions:
  - type: component
    entity: a
    component: Health
    expect: {current: 0}
`)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_ExpectationMismatchIsReported(t *testing.T) {
	scenario := parse(t, `
entities:
  - alias: a
    components:
      Health: {current: 1, maximum: 3}
rounds:
  - entity: a
    expect: {outcome: no_winner}
  - entity: a
    expect: {outcome: won, winner: medic, bid: 5, writes: [Health]}
`)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors, "rounds[0]: expected outcome no_winner, got won")
	assert.Contains(t, result.Errors, `rounds[1]: expected winner medic, got "healer"`)
	assert.Contains(t, result.Errors, "rounds[1]: expected bid 5, got 2")
	assert.Contains(t, result.Errors, "rounds[1]: expected writes [Health], got []")
}

func TestRun_FailedAssertionIsReported(t *testing.T) {
	scenario := parse(t, `
entities:
  - alias: a
    components:
      Health: {current: 1, maximum: 3}
rounds:
  - entity: a
assertions:
  - type: round_count
    entity: a
    count: 2
`)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "assertions[0]")
	assert.Contains(t, result.Errors[0], "Expected: 2 rounds")
}

func TestRun_InvalidComponentData(t *testing.T) {
	scenario := parse(t, `
entities:
  - alias: a
    components:
      Health: {current: "full", maximum: 3}
rounds:
  - entity: a
`)

	_, err := Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create entities")
}

func TestRun_RejectedSetup(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: bad_setup
description: d
setup:
  - type: upsert_invariant
    name: broken
    asserts: "Health.current <"
entities: [{alias: a}]
rounds: [{entity: a}]
`))
	require.NoError(t, err)

	_, err = Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "setup rejected")
}

func TestResult_RoundsFor(t *testing.T) {
	r := NewResult()
	r.AddRound(TraceEvent{Entity: "a", Seq: 1})
	r.AddRound(TraceEvent{Entity: "b", Seq: 2})
	r.AddRound(TraceEvent{Entity: "a", Seq: 3})

	rounds := r.RoundsFor("a")
	require.Len(t, rounds, 2)
	assert.Equal(t, int64(3), rounds[1].Seq)
	assert.Empty(t, r.RoundsFor("c"))

	assert.True(t, r.Pass)
	r.AddError("boom")
	assert.False(t, r.Pass)
}
