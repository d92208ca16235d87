// Command cnyre loads New York assessment rolls and assessment ratios into
// SQLite, derives full-value trends and serves filtered reads.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/cnyre/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "cnyre:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
