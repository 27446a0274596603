package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/stigmergy/internal/entity"
	"github.com/roach88/stigmergy/internal/store"
)

// NewEntityCommand creates the entity command group.
func NewEntityCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entity",
		Short: "Create, delete and list entities",
	}
	cmd.AddCommand(newEntityCreateCommand(rootOpts))
	cmd.AddCommand(newEntityDeleteCommand(rootOpts))
	cmd.AddCommand(newEntityListCommand(rootOpts))
	return cmd
}

// EntityResult reports a created entity.
type EntityResult struct {
	Entity     string   `json:"entity"`
	Components []string `json:"components,omitempty"`
}

func newEntityCreateCommand(opts *RootOptions) *cobra.Command {
	var components []string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an entity, optionally with initial components",
		Long: `Create an entity. Each --component flag adds an initial component as
Name=JSON or Name=@file.json. The entity and its components are written in
one transaction: if any component fails validation, nothing is created.

Example:
  stigmergy entity create -c 'Health={"current":4,"maximum":10}'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := opts.formatter(cmd)
			ctx := cmd.Context()

			e, err := entity.NewURLSafe()
			if err != nil {
				return formatter.Fail("create entity", err)
			}
			ops := []store.Operation{{Type: store.OpCreateEntity, Entity: &e}}
			result := EntityResult{Entity: e.String()}
			for _, spec := range components {
				name, raw, ok := strings.Cut(spec, "=")
				if !ok || name == "" {
					_ = formatter.Error(CodeBadArgument, fmt.Sprintf("invalid --component %q: want Name=JSON", spec), nil)
					return NewExitError(ExitCommandError, "invalid --component")
				}
				data, err := parseData(raw)
				if err != nil {
					return formatter.Fail("component "+name, err)
				}
				ops = append(ops, store.Operation{Type: store.OpUpsertComponent, Entity: &e, Component: name, Data: data})
				result.Components = append(result.Components, name)
			}

			sess, err := openSession(ctx, opts)
			if err != nil {
				_ = formatter.Error(CodeGeneric, err.Error(), nil)
				return err
			}
			defer sess.Close()

			res, err := sess.store.Apply(ctx, ops)
			if err != nil {
				return formatter.Fail("create entity", err)
			}
			if err := res.Err(); err != nil {
				return formatter.Fail("create entity", err)
			}
			opts.Logger.Info("entity created", "entity", e.String(), "components", len(result.Components))

			return formatter.Render(result, func(w io.Writer) {
				fmt.Fprintln(w, result.Entity)
			})
		},
	}

	cmd.Flags().StringArrayVarP(&components, "component", "c", nil, "initial component as Name=JSON or Name=@file (repeatable)")
	return cmd
}

func newEntityDeleteCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <entity>",
		Short: "Delete an entity with its components and every edge naming it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := opts.formatter(cmd)
			e, err := parseEntity(args[0])
			if err != nil {
				return formatter.Fail("delete entity", err)
			}

			sess, err := openSession(cmd.Context(), opts)
			if err != nil {
				_ = formatter.Error(CodeGeneric, err.Error(), nil)
				return err
			}
			defer sess.Close()

			if err := sess.store.DeleteEntity(cmd.Context(), e); err != nil {
				return formatter.Fail("delete entity", err)
			}
			opts.Logger.Info("entity deleted", "entity", e.String())
			return formatter.Render(EntityResult{Entity: e.String()}, func(w io.Writer) {
				fmt.Fprintf(w, "✓ Deleted %s\n", e)
			})
		},
	}
}

func newEntityListCommand(opts *RootOptions) *cobra.Command {
	var with []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List entities",
		Long: `List every entity, or with --with only those holding a live instance of
at least one of the named components.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := opts.formatter(cmd)
			sess, err := openSession(cmd.Context(), opts)
			if err != nil {
				_ = formatter.Error(CodeGeneric, err.Error(), nil)
				return err
			}
			defer sess.Close()

			var entities []entity.Entity
			if len(with) > 0 {
				entities, err = sess.store.EntitiesWith(cmd.Context(), with...)
			} else {
				entities, err = sess.store.ListEntities(cmd.Context())
			}
			if err != nil {
				return formatter.Fail("list entities", err)
			}

			ids := make([]string, len(entities))
			for i, e := range entities {
				ids[i] = e.String()
			}
			return formatter.Render(ids, func(w io.Writer) {
				for _, id := range ids {
					fmt.Fprintln(w, id)
				}
			})
		},
	}

	cmd.Flags().StringSliceVar(&with, "with", nil, "only entities holding one of these components")
	return cmd
}
