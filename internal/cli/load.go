package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// LoadOptions holds flags for the load command.
type LoadOptions struct {
	*RootOptions
	Force bool
}

// LoadResult reports what a load installed.
type LoadResult struct {
	Components []string `json:"components"`
	Systems    []string `json:"systems"`
	Invariants []string `json:"invariants"`
}

// NewLoadCommand creates the load command.
func NewLoadCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LoadOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "load <world-dir>",
		Short: "Validate a CUE world and install it into the database",
		Long: `Validate a CUE world and install its component definitions, systems and
invariants into the database. Records with the same name are replaced.

A changed schema is checked against every stored instance of the component
and rejected if any no longer conforms, unless --force is given.

Example:
  stigmergy load ./world --db ./stigmergy.db`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoad(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Force, "force", false, "replace schemas even if stored instances no longer conform")
	return cmd
}

func runLoad(opts *LoadOptions, dir string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	world, errs, err := loadWorld(dir, formatter)
	if err != nil {
		return err
	}
	if len(errs) > 0 {
		return outputValidationErrors(formatter, errs)
	}

	ctx := cmd.Context()
	sess, err := openSession(ctx, opts.RootOptions)
	if err != nil {
		_ = formatter.Error(CodeGeneric, err.Error(), nil)
		return err
	}
	defer sess.Close()

	if err := world.Install(ctx, sess.catalog, opts.Force); err != nil {
		return formatter.Fail("load failed", err)
	}

	result := LoadResult{}
	for _, d := range world.Components {
		result.Components = append(result.Components, d.Name)
	}
	for _, s := range world.Systems {
		result.Systems = append(result.Systems, s.Name)
	}
	for _, i := range world.Invariants {
		result.Invariants = append(result.Invariants, i.Name)
	}
	opts.Logger.Info("world loaded", "dir", dir, "components", len(result.Components),
		"systems", len(result.Systems), "invariants", len(result.Invariants))

	return formatter.Render(result, func(w io.Writer) {
		fmt.Fprintf(w, "✓ Loaded %d component(s), %d system(s), %d invariant(s) into %s\n",
			len(result.Components), len(result.Systems), len(result.Invariants), opts.Config.DB)
	})
}
