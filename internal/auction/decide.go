package auction

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/stigmergy/internal/bid"
	"github.com/roach88/stigmergy/internal/ir"
	"github.com/roach88/stigmergy/internal/system"
)

// Bid is one candidate's combined bid.
type Bid struct {
	System string
	// Active is false for "no bid".
	Active bool
	Value  float64
	// Rule is the index of the rule that produced Value, or -1.
	Rule   int
	Errors []bid.RuleError
}

// Decision is the pure outcome of bidding over one snapshot.
type Decision struct {
	// Candidates are the interested systems, sorted by name.
	Candidates []string
	// Bids holds one entry per candidate, in Candidates order.
	Bids []Bid
	// Winner is empty when no candidate bid.
	Winner string
	Value  float64
}

// HasWinner reports whether some candidate bid.
func (d Decision) HasWinner() bool { return d.Winner != "" }

// Decide runs candidate gathering, bid evaluation and winner selection
// sequentially. It reads nothing but its arguments.
func Decide(components map[string]ir.IRValue, systems []system.Definition) Decision {
	d, _ := decide(context.Background(), components, systems, 1)
	return d
}

// decide evaluates candidates with at most parallelism concurrent
// evaluations. The result does not depend on parallelism.
func decide(ctx context.Context, components map[string]ir.IRValue, systems []system.Definition, parallelism int) (Decision, error) {
	candidates := Candidates(components, systems)

	d := Decision{
		Candidates: make([]string, len(candidates)),
		Bids:       make([]Bid, len(candidates)),
	}
	for i := range candidates {
		d.Candidates[i] = candidates[i].Name
	}

	g, ctx := errgroup.WithContext(ctx)
	if parallelism > 0 {
		g.SetLimit(parallelism)
	}
	for i := range candidates {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			d.Bids[i] = evaluate(&candidates[i], components)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Decision{}, err
	}

	d.Winner, d.Value = selectWinner(d.Bids)
	return d, nil
}

// Candidates returns the systems with at least one granted component
// live on the entity, sorted by name.
func Candidates(components map[string]ir.IRValue, systems []system.Definition) []system.Definition {
	present := make(map[string]bool, len(components))
	for name, v := range components {
		if v != nil {
			present[name] = true
		}
	}
	var out []system.Definition
	for _, s := range systems {
		if s.Interested(present) {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// evaluate bids one system against the snapshot filtered to its read grants.
func evaluate(s *system.Definition, components map[string]ir.IRValue) Bid {
	snap := bid.MapSnapshot{Components: components, Allowed: s.Readable()}
	res := bid.EvaluateRules(s.Rules, snap)
	return Bid{
		System: s.Name,
		Active: res.Active,
		Value:  res.Value,
		Rule:   res.Rule,
		Errors: res.Errors,
	}
}

// selectWinner returns the strictly highest active bid. Bids arrive
// sorted by system name, so keeping the first maximum breaks ties by
// smallest name.
func selectWinner(bids []Bid) (string, float64) {
	var (
		winner string
		value  float64
	)
	for _, b := range bids {
		if !b.Active {
			continue
		}
		if winner == "" || b.Value > value {
			winner, value = b.System, b.Value
		}
	}
	return winner, value
}
