package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates that a requested resource does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates that a resource with the same identity
	// already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidArgument indicates that a caller-provided value violates
	// a precondition.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidTopology indicates that a fleet's host layout cannot be
	// deployed to: no hosts, a nonsensical worker count, or ports that
	// cannot exist.
	ErrInvalidTopology = errors.New("invalid topology")

	// ErrInconsistentFleetVersion indicates that hosts disagree about the
	// currently installed version before an attempt begins, so there is
	// no single previous version to roll back to.
	ErrInconsistentFleetVersion = errors.New("inconsistent fleet version")

	// ErrAttemptInProgress indicates that another deployment attempt is
	// already active against the same fleet.
	ErrAttemptInProgress = errors.New("attempt already in progress")
)

// SupervisionError reports a failed stop/start/reload against a host's
// supervised process group. It is fatal for that host's side of an attempt;
// retries, if any, belong to the rollback pass, not this layer.
type SupervisionError struct {
	Host  string
	Group string
	Op    string
	Cause error
}

func (e *SupervisionError) Error() string {
	return fmt.Sprintf("supervision %s on %s group %q: %v", e.Op, e.Host, e.Group, e.Cause)
}

func (e *SupervisionError) Unwrap() error { return e.Cause }

// InstallError reports a failed package install on a host. Fatal for that
// host's side of an attempt.
type InstallError struct {
	Host  string
	Cause error
}

func (e *InstallError) Error() string {
	return fmt.Sprintf("install on %s: %v", e.Host, e.Cause)
}

func (e *InstallError) Unwrap() error { return e.Cause }
