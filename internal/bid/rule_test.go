package bid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stigmergy/internal/ir"
)

func TestRuleEvaluateHealerBid(t *testing.T) {
	r := MustParseRule("ON Healer && Health.current < Health.maximum BID Healer.power*10")

	v, active, err := r.Evaluate(snapshot())
	require.NoError(t, err)
	assert.True(t, active)
	assert.Equal(t, float64(150), v)
}

func TestRuleInactive(t *testing.T) {
	tests := []string{
		"ON false BID 1",
		"ON Missing BID 1",
		"ON Missing.x > 0 BID 1",
		"ON true BID Missing.x",
		// Only boolean true activates a rule.
		"ON 1 BID 1",
		`ON "yes" BID 1`,
	}
	for _, src := range tests {
		t.Run(src, func(t *testing.T) {
			_, active, err := MustParseRule(src).Evaluate(snapshot())
			require.NoError(t, err)
			assert.False(t, active)
		})
	}
}

func TestRuleEvaluateErrors(t *testing.T) {
	tests := []struct {
		src  string
		code EvalErrorCode
	}{
		{"ON true BID 1 / 0", CodeDivisionByZero},
		{`ON true BID "high"`, CodeNotNumeric},
		{"ON true BID true", CodeNotNumeric},
		{"ON Health.nope > 1 BID 1", CodeFieldNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			_, active, err := MustParseRule(tt.src).Evaluate(snapshot())
			require.Error(t, err)
			assert.False(t, active)
			ee, ok := err.(*EvalError)
			require.True(t, ok)
			assert.Equal(t, tt.code, ee.Code)
		})
	}
}

func TestEvaluateRulesTakesMaximum(t *testing.T) {
	rules := []Rule{
		MustParseRule("ON Health BID 10"),
		MustParseRule("ON Health.current < 50 BID 40"),
		MustParseRule("ON Health.current < 10 BID 25"),
		MustParseRule("ON Missing BID 1000"),
	}

	res := EvaluateRules(rules, snapshot())
	assert.True(t, res.Active)
	assert.Equal(t, float64(40), res.Value)
	assert.Equal(t, 1, res.Rule)
	assert.NoError(t, res.Err())
}

func TestEvaluateRulesFirstRuleWinsTies(t *testing.T) {
	rules := []Rule{
		MustParseRule("ON true BID 5"),
		MustParseRule("ON true BID 5.0"),
	}
	res := EvaluateRules(rules, snapshot())
	assert.Equal(t, 0, res.Rule)
}

func TestEvaluateRulesIsolatesFailures(t *testing.T) {
	rules := []Rule{
		MustParseRule("ON true BID 1 / 0"),
		MustParseRule("ON Health BID 7"),
	}
	res := EvaluateRules(rules, snapshot())
	assert.True(t, res.Active)
	assert.Equal(t, float64(7), res.Value)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, 0, res.Errors[0].Rule)
	assert.Error(t, res.Err())
	assert.Contains(t, res.Err().Error(), "rule 0: DIVISION_BY_ZERO")
}

func TestEvaluateRulesNoBid(t *testing.T) {
	res := EvaluateRules([]Rule{MustParseRule("ON false BID 1")}, snapshot())
	assert.False(t, res.Active)
	assert.Equal(t, -1, res.Rule)

	res = EvaluateRules(nil, MapSnapshot{Components: map[string]ir.IRValue{}})
	assert.False(t, res.Active)
}
