package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/stigmergy/internal/entity"
	"github.com/roach88/stigmergy/internal/store"
)

// NewEdgeCommand creates the edge command group.
func NewEdgeCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edge",
		Short: "Manage directed, labeled edges between entities",
		Long: `Manage edges. An edge links a source entity to a destination entity and is
labeled by a third entity; components on the label entity carry the edge's
metadata. Deleting any of the three entities deletes the edge.`,
	}
	cmd.AddCommand(newEdgeCreateCommand(rootOpts))
	cmd.AddCommand(newEdgeListCommand(rootOpts))
	cmd.AddCommand(newEdgeGetCommand(rootOpts))
	cmd.AddCommand(newEdgeDeleteCommand(rootOpts))
	return cmd
}

// EdgeResult reports a created edge.
type EdgeResult struct {
	Edge    store.Edge `json:"edge"`
	Created bool       `json:"created"`
}

// parseEdgeArgs reads <src> <dst> <label>.
func parseEdgeArgs(args []string) (store.Edge, error) {
	var e store.Edge
	var err error
	if e.Src, err = parseEntity(args[0]); err != nil {
		return store.Edge{}, err
	}
	if e.Dst, err = parseEntity(args[1]); err != nil {
		return store.Edge{}, err
	}
	if e.Label, err = parseEntity(args[2]); err != nil {
		return store.Edge{}, err
	}
	return e, nil
}

func newEdgeCreateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "create <src> <dst> <label>",
		Short: "Create an edge; creating an existing edge is a no-op",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := opts.formatter(cmd)
			edge, err := parseEdgeArgs(args)
			if err != nil {
				return formatter.Fail("create edge", err)
			}

			sess, err := openSession(cmd.Context(), opts)
			if err != nil {
				_ = formatter.Error(CodeGeneric, err.Error(), nil)
				return err
			}
			defer sess.Close()

			created, err := sess.store.PutEdge(cmd.Context(), edge)
			if err != nil {
				return formatter.Fail("create edge", err)
			}
			opts.Logger.Info("edge stored", "edge", edge.String(), "created", created)

			result := EdgeResult{Edge: edge, Created: created}
			return formatter.Render(result, func(w io.Writer) {
				if created {
					fmt.Fprintf(w, "✓ Created %s\n", edge)
				} else {
					fmt.Fprintf(w, "Edge already exists: %s\n", edge)
				}
			})
		},
	}
}

func newEdgeListCommand(opts *RootOptions) *cobra.Command {
	var from, to, labeled string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List edges",
		Long: `List every edge, or filter with --from, --to or --labeled. Combining
--from and --to lists the edges between two entities.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := opts.formatter(cmd)
			filters := map[string]*entity.Entity{}
			for name, raw := range map[string]string{"from": from, "to": to, "labeled": labeled} {
				if raw == "" {
					continue
				}
				e, err := parseEntity(raw)
				if err != nil {
					return formatter.Fail("list edges", err)
				}
				filters[name] = &e
			}

			sess, err := openSession(cmd.Context(), opts)
			if err != nil {
				_ = formatter.Error(CodeGeneric, err.Error(), nil)
				return err
			}
			defer sess.Close()

			ctx := cmd.Context()
			var edges []store.Edge
			switch {
			case filters["from"] != nil && filters["to"] != nil:
				edges, err = sess.store.ListEdgesBetween(ctx, *filters["from"], *filters["to"])
			case filters["from"] != nil:
				edges, err = sess.store.ListEdgesFrom(ctx, *filters["from"])
			case filters["to"] != nil:
				edges, err = sess.store.ListEdgesTo(ctx, *filters["to"])
			case filters["labeled"] != nil:
				edges, err = sess.store.ListEdgesLabeled(ctx, *filters["labeled"])
			default:
				edges, err = sess.store.ListEdges(ctx)
			}
			if err != nil {
				return formatter.Fail("list edges", err)
			}

			return formatter.Render(edges, func(w io.Writer) {
				if len(edges) == 0 {
					fmt.Fprintln(w, "No edges found")
					return
				}
				for _, e := range edges {
					fmt.Fprintln(w, e)
				}
			})
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "only edges leaving this entity")
	cmd.Flags().StringVar(&to, "to", "", "only edges arriving at this entity")
	cmd.Flags().StringVar(&labeled, "labeled", "", "only edges labeled by this entity")
	cmd.MarkFlagsMutuallyExclusive("from", "labeled")
	cmd.MarkFlagsMutuallyExclusive("to", "labeled")
	return cmd
}

func newEdgeGetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <src> <dst> <label>",
		Short: "Show one edge",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := opts.formatter(cmd)
			edge, err := parseEdgeArgs(args)
			if err != nil {
				return formatter.Fail("get edge", err)
			}

			sess, err := openSession(cmd.Context(), opts)
			if err != nil {
				_ = formatter.Error(CodeGeneric, err.Error(), nil)
				return err
			}
			defer sess.Close()

			got, err := sess.store.GetEdge(cmd.Context(), edge)
			if err != nil {
				return formatter.Fail("get edge", err)
			}
			return formatter.Render(got, func(w io.Writer) {
				fmt.Fprintln(w, got)
			})
		},
	}
}

func newEdgeDeleteCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <src> <dst> <label>",
		Short: "Delete an edge",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := opts.formatter(cmd)
			edge, err := parseEdgeArgs(args)
			if err != nil {
				return formatter.Fail("delete edge", err)
			}

			sess, err := openSession(cmd.Context(), opts)
			if err != nil {
				_ = formatter.Error(CodeGeneric, err.Error(), nil)
				return err
			}
			defer sess.Close()

			if err := sess.store.DeleteEdge(cmd.Context(), edge); err != nil {
				return formatter.Fail("delete edge", err)
			}
			opts.Logger.Info("edge deleted", "edge", edge.String())
			return formatter.Render(edge, func(w io.Writer) {
				fmt.Fprintf(w, "✓ Deleted %s\n", edge)
			})
		},
	}
}
