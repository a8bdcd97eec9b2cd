// Command canonicald serves canonical redirects for a site.
package main

import (
	"fmt"
	"os"

	"code.soquee.net/canonical/cmd/canonicald/commands"
)

// Version information (set at build time)
var (
	version = "1.0.0"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersion(version, commit, date)

	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
