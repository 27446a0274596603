package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/stigmergy/internal/store"
)

// NewApplyCommand creates the apply command.
func NewApplyCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "apply <file.yaml|->",
		Short: "Apply a batch of operations in one transaction",
		Long: `Apply a YAML batch of operations. Every operation is attempted so that all
problems are reported at once, but the batch commits only if all succeed.

Example batch:
  operations:
    - type: upsert_component_definition
      component: Health
      schema: {type: object, properties: {current: {type: integer}}}
    - type: create_entity
      entity: entity:...
    - type: upsert_component
      entity: entity:...
      component: Health
      data: {current: 4}`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := rootOpts.formatter(cmd)
			ctx := cmd.Context()

			r, closeFn, err := openInput(cmd, args[0])
			if err != nil {
				_ = formatter.Error(CodeBadArgument, err.Error(), nil)
				return WrapExitError(ExitCommandError, "open input", err)
			}
			batch, err := store.DecodeBatchYAML(r)
			closeFn()
			if err != nil {
				_ = formatter.Error(CodeBadArgument, err.Error(), nil)
				return WrapExitError(ExitCommandError, "decode batch", err)
			}

			sess, err := openSession(ctx, rootOpts)
			if err != nil {
				_ = formatter.Error(CodeGeneric, err.Error(), nil)
				return err
			}
			defer sess.Close()

			res, err := sess.store.Apply(ctx, batch.Operations)
			if err != nil {
				return formatter.Fail("apply batch", err)
			}
			rootOpts.Logger.Info("batch applied", "operations", len(res.Results), "committed", res.Committed)

			if err := formatter.Render(res, func(w io.Writer) { writeApplyResult(w, res) }); err != nil {
				return err
			}
			if !res.Committed {
				return WrapExitError(ExitFailure, "batch rejected", res.Err())
			}
			return nil
		},
	}
}

func writeApplyResult(w io.Writer, res store.ApplyResult) {
	for _, r := range res.Results {
		target := r.Name
		if r.Entity != "" {
			target = r.Entity
			if r.Name != "" {
				target += " " + r.Name
			}
		}
		if r.Error != "" {
			fmt.Fprintf(w, "✗ [%d] %s %s: %s\n", r.Index, r.Type, target, r.Error)
			continue
		}
		fmt.Fprintf(w, "✓ [%d] %s %s\n", r.Index, r.Type, target)
	}
	if res.Committed {
		fmt.Fprintf(w, "Committed %d operation(s)\n", len(res.Results))
	} else {
		fmt.Fprintln(w, "Batch rejected; nothing was written")
	}
}
