// Package main is the entry point for the proofreel media pipeline.
package main

import (
	"os"

	"github.com/jmylchreest/proofreel/cmd/proofreel/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
