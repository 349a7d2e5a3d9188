// Package main provides the entry point for the scholarsearch CLI.
package main

import (
	"os"

	"github.com/scholargraph/scholarsearch/cmd/scholarsearch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
