// Command soupstore manages JSON document soups stored in SQLite.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/soupstore/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
