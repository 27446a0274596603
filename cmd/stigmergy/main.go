// Command stigmergy is the command-line entrypoint for the coordination
// substrate.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/roach88/stigmergy/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
