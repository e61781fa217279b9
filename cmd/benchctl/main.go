// Package main provides the benchctl CLI tool.
//
// Usage:
//
//	benchctl [flags] <command> [args]
//
// Commands:
//
//	eval  - Evaluate keyword models over an annotated corpus
//	sweep - Sweep detection thresholds for one keyword
//	scan  - Inspect the training workspace
//
// Results are printed as JSON on stdout so they can be piped into other
// tools.
package main

import (
	"fmt"
	"os"

	"github.com/voicepage/kwsbench/cmd/benchctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
