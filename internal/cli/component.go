package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/stigmergy/internal/component"
	"github.com/roach88/stigmergy/internal/ir"
)

// NewComponentCommand creates the component command group.
func NewComponentCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "component",
		Short: "Read and write components on an entity",
	}
	cmd.AddCommand(newComponentPutCommand(rootOpts))
	cmd.AddCommand(newComponentGetCommand(rootOpts))
	cmd.AddCommand(newComponentDeleteCommand(rootOpts))
	cmd.AddCommand(newComponentListCommand(rootOpts))
	return cmd
}

// ComponentResult is one component in command output.
type ComponentResult struct {
	Entity    string     `json:"entity"`
	Component string     `json:"component"`
	State     string     `json:"state"`
	Data      ir.IRValue `json:"data"`
	Created   bool       `json:"created,omitempty"`
}

// parseData decodes a JSON argument, or the file named after a leading @.
func parseData(arg string) (ir.IRValue, error) {
	raw := []byte(arg)
	if path, ok := strings.CutPrefix(arg, "@"); ok {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read data file: %w", err)
		}
		raw = b
	}
	v, err := ir.UnmarshalIRValue(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid JSON data: %w", err)
	}
	return v, nil
}

func renderData(v ir.IRValue) string {
	b, err := ir.MarshalIRValue(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

func newComponentPutCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "put <entity> <component> <json|@file>",
		Short: "Create or replace a component after validating it",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := opts.formatter(cmd)
			e, err := parseEntity(args[0])
			if err != nil {
				return formatter.Fail("put component", err)
			}
			data, err := parseData(args[2])
			if err != nil {
				_ = formatter.Error(CodeBadArgument, err.Error(), nil)
				return WrapExitError(ExitCommandError, "put component", err)
			}

			sess, err := openSession(cmd.Context(), opts)
			if err != nil {
				_ = formatter.Error(CodeGeneric, err.Error(), nil)
				return err
			}
			defer sess.Close()

			created, err := sess.store.PutComponent(cmd.Context(), e, args[1], data)
			if err != nil {
				return formatter.Fail("put component", err)
			}
			opts.Logger.Info("component stored", "entity", e.String(), "component", args[1], "created", created)
			result := ComponentResult{
				Entity:    e.String(),
				Component: args[1],
				State:     component.Present.String(),
				Data:      data,
				Created:   created,
			}
			return formatter.Render(result, func(w io.Writer) {
				verb := "Updated"
				if created {
					verb = "Created"
				}
				fmt.Fprintf(w, "✓ %s %s on %s\n", verb, args[1], e)
			})
		},
	}
}

func newComponentGetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <entity> <component>",
		Short: "Print a component's data",
		Long: `Print a component's data. A tombstoned component prints null and is
reported as tombstoned; a component that was never written is an error.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := opts.formatter(cmd)
			e, err := parseEntity(args[0])
			if err != nil {
				return formatter.Fail("get component", err)
			}

			sess, err := openSession(cmd.Context(), opts)
			if err != nil {
				_ = formatter.Error(CodeGeneric, err.Error(), nil)
				return err
			}
			defer sess.Close()

			data, state, err := sess.store.GetComponent(cmd.Context(), e, args[1])
			if err != nil {
				return formatter.Fail("get component", err)
			}
			if state == component.Absent {
				_ = formatter.Error(CodeNotFound, fmt.Sprintf("component %s not found on %s", args[1], e), nil)
				return NewExitError(ExitFailure, "component not found")
			}
			result := ComponentResult{Entity: e.String(), Component: args[1], State: state.String(), Data: data}
			return formatter.Render(result, func(w io.Writer) {
				if state == component.Tombstoned {
					fmt.Fprintln(w, "null (tombstoned)")
					return
				}
				fmt.Fprintln(w, renderData(data))
			})
		},
	}
}

func newComponentDeleteCommand(opts *RootOptions) *cobra.Command {
	var purge bool

	cmd := &cobra.Command{
		Use:   "delete <entity> <component>",
		Short: "Tombstone a component, or remove it entirely with --purge",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := opts.formatter(cmd)
			e, err := parseEntity(args[0])
			if err != nil {
				return formatter.Fail("delete component", err)
			}

			sess, err := openSession(cmd.Context(), opts)
			if err != nil {
				_ = formatter.Error(CodeGeneric, err.Error(), nil)
				return err
			}
			defer sess.Close()

			state := component.Tombstoned
			if purge {
				state = component.Absent
				err = sess.store.PurgeComponent(cmd.Context(), e, args[1])
			} else {
				err = sess.store.DeleteComponent(cmd.Context(), e, args[1])
			}
			if err != nil {
				return formatter.Fail("delete component", err)
			}
			opts.Logger.Info("component deleted", "entity", e.String(), "component", args[1], "state", state.String())
			result := ComponentResult{Entity: e.String(), Component: args[1], State: state.String()}
			return formatter.Render(result, func(w io.Writer) {
				fmt.Fprintf(w, "✓ %s is now %s on %s\n", args[1], state, e)
			})
		},
	}

	cmd.Flags().BoolVar(&purge, "purge", false, "remove the row instead of leaving a tombstone")
	return cmd
}

func newComponentListCommand(opts *RootOptions) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "list <entity>",
		Short: "List the components on an entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := opts.formatter(cmd)
			e, err := parseEntity(args[0])
			if err != nil {
				return formatter.Fail("list components", err)
			}

			sess, err := openSession(cmd.Context(), opts)
			if err != nil {
				_ = formatter.Error(CodeGeneric, err.Error(), nil)
				return err
			}
			defer sess.Close()

			instances, err := sess.store.Components(cmd.Context(), e)
			if err != nil {
				return formatter.Fail("list components", err)
			}
			results := []ComponentResult{}
			for _, inst := range instances {
				if inst.Data == nil && !all {
					continue
				}
				results = append(results, ComponentResult{
					Entity:    e.String(),
					Component: inst.Name,
					State:     inst.State().String(),
					Data:      inst.Data,
				})
			}
			return formatter.Render(results, func(w io.Writer) {
				for _, r := range results {
					if r.Data == nil {
						fmt.Fprintf(w, "%s (tombstoned)\n", r.Component)
						continue
					}
					fmt.Fprintf(w, "%s %s\n", r.Component, renderData(r.Data))
				}
			})
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "include tombstoned components")
	return cmd
}
