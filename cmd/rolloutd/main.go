// rolloutd is the rollout orchestrator: an HTTP API server plus operator
// commands for triggering releases and reading their reports.
package main

import (
	"os"

	"github.com/f4biogr/rollout/internal/cmd"
)

func main() {
	if err := cmd.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
