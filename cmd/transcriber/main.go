// Package main provides the entry point for the headless transcriber CLI.
package main

import (
	"fmt"
	"os"

	"batch-transcriber/cmd/transcriber/commands"
)

func main() {
	err := commands.NewRootCommand().Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
