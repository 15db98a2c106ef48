// Command docsmcp crawls, indexes, and serves semantic search over
// documentation sites. See internal/cli for the command surface.
package main

import (
	"fmt"
	"os"

	"docsmcp/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(cli.ExitCode(err))
	}
}
