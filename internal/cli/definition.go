package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/stigmergy/internal/component"
	"github.com/roach88/stigmergy/internal/ir"
	"github.com/roach88/stigmergy/internal/schema"
	"github.com/roach88/stigmergy/internal/store"
)

// NewDefinitionCommand creates the definition command group.
func NewDefinitionCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "definition",
		Short: "Manage component definitions",
	}
	cmd.AddCommand(newDefinitionListCommand(rootOpts))
	cmd.AddCommand(newDefinitionGetCommand(rootOpts))
	cmd.AddCommand(newDefinitionPutCommand(rootOpts))
	cmd.AddCommand(newDefinitionDeleteCommand(rootOpts))
	return cmd
}

func newDefinitionListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List component definitions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := opts.formatter(cmd)
			sess, err := openSession(cmd.Context(), opts)
			if err != nil {
				_ = formatter.Error(CodeGeneric, err.Error(), nil)
				return err
			}
			defer sess.Close()

			defs := sess.catalog.Current().Definitions()
			return formatter.Render(defs, func(w io.Writer) {
				for _, d := range defs {
					fmt.Fprintln(w, d.Name)
				}
			})
		},
	}
}

func newDefinitionGetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <name>",
		Short: "Print a component definition's schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := opts.formatter(cmd)
			sess, err := openSession(cmd.Context(), opts)
			if err != nil {
				_ = formatter.Error(CodeGeneric, err.Error(), nil)
				return err
			}
			defer sess.Close()

			def, ok := sess.catalog.Current().Definition(args[0])
			if !ok {
				return formatter.Fail("get definition", fmt.Errorf("definition %s: %w", args[0], store.ErrNotFound))
			}
			return formatter.Render(def, func(w io.Writer) {
				raw, err := def.Schema.MarshalJSON()
				if err != nil {
					fmt.Fprintf(w, "%s: %v\n", def.Name, err)
					return
				}
				fmt.Fprintf(w, "%s %s\n", def.Name, raw)
			})
		},
	}
}

func newDefinitionPutCommand(opts *RootOptions) *cobra.Command {
	var (
		force bool
		infer bool
	)

	cmd := &cobra.Command{
		Use:   "put <name> <schema-json|@file>",
		Short: "Create or replace a component definition",
		Long: `Create or replace a component definition. Replacing a schema re-validates
every existing instance and is refused if any fails, unless --force is given.

With --infer the argument is an example component value instead of a schema;
the schema is derived from it, with every observed key required.

Examples:
  stigmergy definition put Health '{"type":"object","properties":{"current":{"type":"integer"}}}'
  stigmergy definition put Health --infer '{"current":4,"maximum":10}'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := opts.formatter(cmd)
			raw := []byte(args[1])
			if path, ok := strings.CutPrefix(args[1], "@"); ok {
				b, err := os.ReadFile(path)
				if err != nil {
					_ = formatter.Error(CodeBadArgument, err.Error(), nil)
					return WrapExitError(ExitCommandError, "read schema file", err)
				}
				raw = b
			}
			s, err := parseSchemaArg(raw, infer)
			if err != nil {
				return formatter.Fail("parse schema", err)
			}
			def, err := component.NewDefinition(args[0], s)
			if err != nil {
				return formatter.Fail("put definition", err)
			}

			sess, err := openSession(cmd.Context(), opts)
			if err != nil {
				_ = formatter.Error(CodeGeneric, err.Error(), nil)
				return err
			}
			defer sess.Close()

			if err := sess.catalog.PutDefinition(cmd.Context(), def, force); err != nil {
				return formatter.Fail("put definition", err)
			}
			return formatter.Render(def, func(w io.Writer) {
				fmt.Fprintf(w, "✓ Stored definition %s\n", def.Name)
			})
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "replace the schema even if existing instances no longer validate")
	cmd.Flags().BoolVar(&infer, "infer", false, "derive the schema from an example value")
	return cmd
}

// parseSchemaArg reads raw as a schema document, or with infer as an
// example value to derive one from.
func parseSchemaArg(raw []byte, infer bool) (*schema.Schema, error) {
	if !infer {
		return schema.Parse(raw)
	}
	example, err := ir.UnmarshalIRValue(raw)
	if err != nil {
		return nil, fmt.Errorf("example value: %w", err)
	}
	return schema.Infer(example), nil
}

func newDefinitionDeleteCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a component definition and every instance of it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := opts.formatter(cmd)
			sess, err := openSession(cmd.Context(), opts)
			if err != nil {
				_ = formatter.Error(CodeGeneric, err.Error(), nil)
				return err
			}
			defer sess.Close()

			if err := sess.catalog.DeleteDefinition(cmd.Context(), args[0]); err != nil {
				return formatter.Fail("delete definition", err)
			}
			return formatter.Render(map[string]string{"deleted": args[0]}, func(w io.Writer) {
				fmt.Fprintf(w, "✓ Deleted definition %s\n", args[0])
			})
		},
	}
}
