package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/stigmergy/internal/store"
	"github.com/roach88/stigmergy/internal/system"
)

// NewSystemCommand creates the system command group.
func NewSystemCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "system",
		Short: "Manage system definitions",
	}
	cmd.AddCommand(newSystemListCommand(rootOpts))
	cmd.AddCommand(newSystemGetCommand(rootOpts))
	cmd.AddCommand(newSystemPutCommand(rootOpts))
	cmd.AddCommand(newSystemDeleteCommand(rootOpts))
	return cmd
}

// SystemSummary is one row of system list output.
type SystemSummary struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Model       string   `json:"model"`
	Components  []string `json:"components"`
	Rules       int      `json:"rules"`
}

func newSystemListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List systems",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := opts.formatter(cmd)
			sess, err := openSession(cmd.Context(), opts)
			if err != nil {
				_ = formatter.Error(CodeGeneric, err.Error(), nil)
				return err
			}
			defer sess.Close()

			systems := sess.catalog.Current().Systems()
			summaries := make([]SystemSummary, len(systems))
			for i := range systems {
				d := &systems[i]
				summaries[i] = SystemSummary{
					Name:        d.Name,
					Description: d.Description,
					Model:       d.Model,
					Components:  d.Components(),
					Rules:       len(d.Rules),
				}
			}
			return formatter.Render(summaries, func(w io.Writer) {
				for _, s := range summaries {
					fmt.Fprintf(w, "%s\t%s\t%d rules\n", s.Name, s.Model, s.Rules)
				}
			})
		},
	}
}

func newSystemGetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <name>",
		Short: "Print a system definition as YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := opts.formatter(cmd)
			sess, err := openSession(cmd.Context(), opts)
			if err != nil {
				_ = formatter.Error(CodeGeneric, err.Error(), nil)
				return err
			}
			defer sess.Close()

			def, ok := sess.catalog.Current().System(args[0])
			if !ok {
				return formatter.Fail("get system", fmt.Errorf("system %s: %w", args[0], store.ErrNotFound))
			}
			if opts.Format == "json" {
				return formatter.Success(def)
			}
			if err := system.EncodeYAML(cmd.OutOrStdout(), []system.Definition{def}); err != nil {
				return formatter.Fail("encode system", err)
			}
			return nil
		},
	}
}

func newSystemPutCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "put <file.yaml|->",
		Short: "Create or replace systems from a YAML document stream",
		Long: `Create or replace systems. The file holds one or more system documents
separated by "---". Every document is validated before any is stored.

Example:
  stigmergy system put healer.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := opts.formatter(cmd)
			r, closeFn, err := openInput(cmd, args[0])
			if err != nil {
				_ = formatter.Error(CodeBadArgument, err.Error(), nil)
				return WrapExitError(ExitCommandError, "open input", err)
			}
			defs, err := system.DecodeYAML(r)
			closeFn()
			if err != nil {
				return formatter.Fail("decode systems", err)
			}

			sess, err := openSession(cmd.Context(), opts)
			if err != nil {
				_ = formatter.Error(CodeGeneric, err.Error(), nil)
				return err
			}
			defer sess.Close()

			names := make([]string, 0, len(defs))
			for _, d := range defs {
				if err := sess.catalog.PutSystem(cmd.Context(), d); err != nil {
					return formatter.Fail("put system "+d.Name, err)
				}
				names = append(names, d.Name)
			}
			return formatter.Render(names, func(w io.Writer) {
				for _, n := range names {
					fmt.Fprintf(w, "✓ Stored system %s\n", n)
				}
			})
		},
	}
}

func newSystemDeleteCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a system",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := opts.formatter(cmd)
			sess, err := openSession(cmd.Context(), opts)
			if err != nil {
				_ = formatter.Error(CodeGeneric, err.Error(), nil)
				return err
			}
			defer sess.Close()

			if err := sess.catalog.DeleteSystem(cmd.Context(), args[0]); err != nil {
				return formatter.Fail("delete system", err)
			}
			return formatter.Render(map[string]string{"deleted": args[0]}, func(w io.Writer) {
				fmt.Fprintf(w, "✓ Deleted system %s\n", args[0])
			})
		},
	}
}

// openInput opens path for reading, or the command's stdin for "-".
func openInput(cmd *cobra.Command, path string) (io.Reader, func(), error) {
	if path == "-" {
		return cmd.InOrStdin(), func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}
