package bid

import (
	"errors"
	"fmt"

	"github.com/roach88/stigmergy/internal/ir"
)

// Rule is one ON <condition> BID <value> clause of a system.
type Rule struct {
	Condition Expr
	Value     Expr
	// Source is the text the rule was parsed from.
	Source string
}

// ParseRule parses "ON <condition> BID <value>".
func ParseRule(src string) (Rule, error) {
	p, err := newParser(src)
	if err != nil {
		return Rule{}, err
	}
	cond, val, err := p.rule()
	if err != nil {
		return Rule{}, err
	}
	return Rule{Condition: cond, Value: val, Source: src}, nil
}

// MustParseRule is like ParseRule but panics on error. Use only in tests.
func MustParseRule(src string) Rule {
	r, err := ParseRule(src)
	if err != nil {
		panic(err)
	}
	return r
}

// String returns the original source when known, otherwise a normalized
// rendering that parses back to the same tree.
func (r Rule) String() string {
	if r.Source != "" {
		return r.Source
	}
	return "ON " + r.Condition.String() + " BID " + r.Value.String()
}

// References lists components mentioned by the condition and value.
func (r Rule) References() []string {
	out := References(r.Condition)
	seen := make(map[string]bool, len(out))
	for _, n := range out {
		seen[n] = true
	}
	for _, n := range References(r.Value) {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}

// MarshalText implements encoding.TextMarshaler.
func (r Rule) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Rule) UnmarshalText(text []byte) error {
	parsed, err := ParseRule(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Evaluate returns the rule's bid value and whether the rule is active.
// A rule is active only when its condition evaluates to boolean true.
// References into absent components make the rule inactive without error.
func (r Rule) Evaluate(s Snapshot) (float64, bool, error) {
	cond, err := Eval(r.Condition, s)
	if err != nil {
		if IsComponentAbsent(err) {
			return 0, false, nil
		}
		return 0, false, err
	}
	if b, ok := cond.(ir.IRBool); !ok || !bool(b) {
		return 0, false, nil
	}

	val, err := Eval(r.Value, s)
	if err != nil {
		if IsComponentAbsent(err) {
			return 0, false, nil
		}
		return 0, false, err
	}
	f, ok := ir.AsFloat(val)
	if !ok {
		return 0, false, evalErr(CodeNotNumeric, r.Value.Pos(), "bid value is %s, not a number", ir.TypeName(val))
	}
	return f, true, nil
}

// RuleError pairs an evaluation failure with the index of the rule that raised it.
type RuleError struct {
	Rule int
	Err  error
}

func (e RuleError) Error() string {
	return fmt.Sprintf("rule %d: %v", e.Rule, e.Err)
}

func (e RuleError) Unwrap() error { return e.Err }

// Result is the combined bid of a system's rules against one snapshot.
type Result struct {
	// Value is the maximum over active rules. Meaningful only when Active.
	Value float64
	// Active is false for "no bid".
	Active bool
	// Rule is the index of the first rule that produced Value.
	Rule int
	// Errors holds failures of individual rules; each failed rule counts as inactive.
	Errors []RuleError
}

// Err joins the individual rule errors, or returns nil.
func (r Result) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	errs := make([]error, len(r.Errors))
	for i, e := range r.Errors {
		errs[i] = e
	}
	return errors.Join(errs...)
}

// EvaluateRules combines rules by maximum: every active rule is evaluated
// and the highest value wins. A failing rule is recorded and skipped so it
// cannot suppress the others.
func EvaluateRules(rules []Rule, s Snapshot) Result {
	res := Result{Rule: -1}
	for i, rule := range rules {
		v, active, err := rule.Evaluate(s)
		if err != nil {
			res.Errors = append(res.Errors, RuleError{Rule: i, Err: err})
			continue
		}
		if !active {
			continue
		}
		if !res.Active || v > res.Value {
			res.Value = v
			res.Active = true
			res.Rule = i
		}
	}
	return res
}
