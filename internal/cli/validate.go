package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/stigmergy/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid      bool                       `json:"valid"`
	Components int                        `json:"components"`
	Systems    int                        `json:"systems"`
	Invariants int                        `json:"invariants"`
	Errors     []compiler.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <world-dir>",
		Short: "Validate a CUE world without touching the database",
		Long: `Validate the component definitions, systems and invariants declared
by the .cue files in a world directory.

Reports every problem at once: malformed schemas, invalid system fields,
bid rules reading components without a read grant, grants and invariants
naming undefined components.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	world, errs, err := loadWorld(dir, formatter)
	if err != nil {
		return err
	}
	if len(errs) > 0 {
		return outputValidationErrors(formatter, errs)
	}

	result := ValidationResult{
		Valid:      true,
		Components: len(world.Components),
		Systems:    len(world.Systems),
		Invariants: len(world.Invariants),
	}
	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "✓ World valid: %d component(s), %d system(s), %d invariant(s)\n",
		result.Components, result.Systems, result.Invariants)
	return nil
}

// loadWorld loads and validates a world directory, collecting every
// problem. A directory that cannot be read at all is reported and
// returned as a command error; compile and validation problems are
// returned for the caller to report.
func loadWorld(dir string, formatter *OutputFormatter) (*compiler.World, []compiler.ValidationError, error) {
	world, loadErrs := compiler.LoadWorld(dir, compiler.LoadModeCollectAll)
	if world == nil {
		var loadErr *compiler.LoadError
		if errors.As(loadErrs[0], &loadErr) {
			_ = formatter.Error(loadErr.Code, loadErr.Message, nil)
			return nil, nil, NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", loadErr.Code, loadErr.Message))
		}
		_ = formatter.Error(CodeGeneric, loadErrs[0].Error(), nil)
		return nil, nil, WrapExitError(ExitCommandError, "failed to load world", loadErrs[0])
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", world.FileCount, dir)

	var errs []compiler.ValidationError
	for _, err := range loadErrs {
		var loadErr *compiler.LoadError
		if !errors.As(err, &loadErr) {
			errs = append(errs, compiler.ValidationError{Field: "load", Message: err.Error(), Code: CodeGeneric})
			continue
		}
		line := 0
		if loadErr.Pos.IsValid() {
			line = loadErr.Pos.Line()
		}
		errs = append(errs, compiler.ValidationError{
			Field:   "load",
			Message: loadErr.Message,
			Code:    loadErr.Code,
			Line:    line,
		})
	}
	errs = append(errs, compiler.Validate(world)...)
	return world, errs, nil
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, errs []compiler.ValidationError) error {
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: errs},
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		if err.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", err.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n\n", err.Code, err.Field, err.Message)
	}
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
