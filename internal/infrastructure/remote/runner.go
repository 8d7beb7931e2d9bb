// Package remote runs commands on fleet hosts.
package remote

import (
	"context"

	"github.com/f4biogr/rollout/internal/domain"
)

// Result is the outcome of one command that reached the host. A non-zero
// ExitCode is not an error at this layer; callers decide what exit codes
// mean for their command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner executes one command, given as an argv, on a host. The error is
// reserved for transport failures; a command that ran and exited non-zero
// returns a Result and a nil error.
type Runner interface {
	Run(ctx context.Context, host domain.Host, args ...string) (Result, error)
}
