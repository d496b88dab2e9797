// Package main is the entry point for the aura application.
package main

import (
	"os"

	"github.com/aura-studio/aura/cmd/aura/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
