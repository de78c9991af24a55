// Package main is the entry point for the revrec CLI.
package main

import (
	"os"

	"github.com/warp/revrec-engine/cmd/revrec/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
