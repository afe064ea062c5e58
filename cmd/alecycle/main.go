// Command alecycle runs and inspects ALE event and port cycles.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/alecycle/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
