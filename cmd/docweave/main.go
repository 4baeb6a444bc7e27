// Package main provides the entry point for the docweave CLI.
package main

import (
	"os"

	"github.com/docweave/docweave/cmd/docweave/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
