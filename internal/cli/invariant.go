package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/stigmergy/internal/entity"
	"github.com/roach88/stigmergy/internal/invariant"
)

// NewInvariantCommand creates the invariant command group.
func NewInvariantCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "invariant",
		Short: "Manage and check invariants",
	}
	cmd.AddCommand(newInvariantListCommand(rootOpts))
	cmd.AddCommand(newInvariantPutCommand(rootOpts))
	cmd.AddCommand(newInvariantDeleteCommand(rootOpts))
	cmd.AddCommand(newInvariantCheckCommand(rootOpts))
	return cmd
}

// CheckResult is the invariant outcome for one entity.
type CheckResult struct {
	Entity  string             `json:"entity"`
	Results []invariant.Result `json:"results"`
}

func newInvariantListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List invariants",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := opts.formatter(cmd)
			sess, err := openSession(cmd.Context(), opts)
			if err != nil {
				_ = formatter.Error(CodeGeneric, err.Error(), nil)
				return err
			}
			defer sess.Close()

			invs := sess.catalog.Current().Invariants()
			return formatter.Render(invs, func(w io.Writer) {
				for _, inv := range invs {
					fmt.Fprintf(w, "%s: %s\n", inv.Name, inv.Asserts)
				}
			})
		},
	}
}

func newInvariantPutCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "put <name> <expression>",
		Short: "Create or replace an invariant",
		Long: `Create or replace an invariant. The expression uses the bid language
and must evaluate to a boolean.

Example:
  stigmergy invariant put health_bounded 'Health.current <= Health.maximum'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := opts.formatter(cmd)
			inv, err := invariant.New(args[0], args[1])
			if err != nil {
				return formatter.Fail("put invariant", err)
			}

			sess, err := openSession(cmd.Context(), opts)
			if err != nil {
				_ = formatter.Error(CodeGeneric, err.Error(), nil)
				return err
			}
			defer sess.Close()

			if err := sess.catalog.PutInvariant(cmd.Context(), inv); err != nil {
				return formatter.Fail("put invariant", err)
			}
			return formatter.Render(inv, func(w io.Writer) {
				fmt.Fprintf(w, "✓ Stored invariant %s\n", inv.Name)
			})
		},
	}
}

func newInvariantDeleteCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete an invariant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := opts.formatter(cmd)
			sess, err := openSession(cmd.Context(), opts)
			if err != nil {
				_ = formatter.Error(CodeGeneric, err.Error(), nil)
				return err
			}
			defer sess.Close()

			if err := sess.catalog.DeleteInvariant(cmd.Context(), args[0]); err != nil {
				return formatter.Fail("delete invariant", err)
			}
			return formatter.Render(map[string]string{"deleted": args[0]}, func(w io.Writer) {
				fmt.Fprintf(w, "✓ Deleted invariant %s\n", args[0])
			})
		},
	}
}

func newInvariantCheckCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check [entity]",
		Short: "Check invariants against one entity or all of them",
		Long: `Evaluate every invariant against an entity's live components. Without an
argument every entity is checked. Exits 1 if any invariant is violated or
fails to evaluate; invariants that reference a missing component are
reported as not_applicable.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := opts.formatter(cmd)
			ctx := cmd.Context()

			var targets []entity.Entity
			if len(args) == 1 {
				e, err := parseEntity(args[0])
				if err != nil {
					return formatter.Fail("check invariants", err)
				}
				targets = []entity.Entity{e}
			}

			sess, err := openSession(ctx, opts)
			if err != nil {
				_ = formatter.Error(CodeGeneric, err.Error(), nil)
				return err
			}
			defer sess.Close()

			if targets == nil {
				targets, err = sess.store.ListEntities(ctx)
				if err != nil {
					return formatter.Fail("list entities", err)
				}
			}

			invs := sess.catalog.Current().Invariants()
			checks := make([]CheckResult, 0, len(targets))
			violations := 0
			for _, e := range targets {
				snap, err := sess.store.Snapshot(ctx, e)
				if err != nil {
					return formatter.Fail("read entity", err)
				}
				results := invariant.CheckAll(invs, snap)
				violations += len(invariant.Violations(results))
				checks = append(checks, CheckResult{Entity: e.String(), Results: results})
			}

			if err := formatter.Render(checks, func(w io.Writer) {
				for _, c := range checks {
					fmt.Fprintln(w, c.Entity)
					for _, r := range c.Results {
						mark := "✓"
						if r.Status == invariant.Violated || r.Status == invariant.Errored {
							mark = "✗"
						}
						line := fmt.Sprintf("  %s %s: %s", mark, r.Name, r.Status)
						if r.Error != "" {
							line += " (" + r.Error + ")"
						}
						fmt.Fprintln(w, line)
					}
				}
			}); err != nil {
				return err
			}
			if violations > 0 {
				return NewExitError(ExitFailure, fmt.Sprintf("%d invariant violation(s)", violations))
			}
			return nil
		},
	}
}
