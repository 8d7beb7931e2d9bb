package domain

import (
	"fmt"
	"time"

	"github.com/Masterminds/semver/v3"
)

// ReleaseID uniquely identifies a release request.
type ReleaseID string

// VersionLatest is the sentinel version meaning "whatever the package source
// considers newest at install time". Resolution is deliberately
// non-deterministic across calls.
const VersionLatest = "latest"

// ReleaseState indicates the lifecycle state of a release.
type ReleaseState string

const (
	ReleaseStatePending    ReleaseState = "pending"
	ReleaseStateRolling    ReleaseState = "rolling"
	ReleaseStateCommitted  ReleaseState = "committed"
	ReleaseStateRolledBack ReleaseState = "rolled_back"
	ReleaseStateFailed     ReleaseState = "failed"
)

// ProbePolicy bounds one worker's health polling. Timeout caps a single
// probe attempt; MaxRetries is the retry budget after the initial attempt
// (zero means exactly one attempt); RetryDelay spaces attempts (zero is a
// legal busy-poll). Path is the worker's health endpoint.
type ProbePolicy struct {
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
	Path       string
}

// DefaultHealthPath is used when a policy does not name an endpoint path.
const DefaultHealthPath = "/health"

// EndpointPath returns the configured health path or the default.
func (p ProbePolicy) EndpointPath() string {
	if p.Path == "" {
		return DefaultHealthPath
	}
	return p.Path
}

// Attempts returns the total probe attempts the policy allows.
func (p ProbePolicy) Attempts() int {
	return p.MaxRetries + 1
}

// Validate checks the policy bounds.
func (p ProbePolicy) Validate() error {
	if p.Timeout <= 0 {
		return fmt.Errorf("%w: probe timeout must be positive", ErrInvalidArgument)
	}
	if p.MaxRetries < 0 {
		return fmt.Errorf("%w: probe retries must not be negative", ErrInvalidArgument)
	}
	if p.RetryDelay < 0 {
		return fmt.Errorf("%w: probe retry delay must not be negative", ErrInvalidArgument)
	}
	return nil
}

// Release is one requested deployment: push Package at Version to the fleet,
// gated by Probe, with backups taken unless disabled.
type Release struct {
	ID            ReleaseID
	FleetID       FleetID
	Package       string
	Version       string
	Probe         ProbePolicy
	BackupEnabled bool
	State         ReleaseState
	CreatedAt     time.Time
}

// Validate checks the caller-provided fields of a release.
func (r Release) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("%w: release ID is required", ErrInvalidArgument)
	}
	if r.FleetID == "" {
		return fmt.Errorf("%w: fleet ID is required", ErrInvalidArgument)
	}
	if r.Package == "" {
		return fmt.Errorf("%w: package is required", ErrInvalidArgument)
	}
	if r.Version == "" {
		return fmt.Errorf("%w: version is required (use %q for newest)", ErrInvalidArgument, VersionLatest)
	}
	return r.Probe.Validate()
}

// VersionDirection classifies a version change for reporting.
type VersionDirection string

const (
	DirectionUpgrade   VersionDirection = "upgrade"
	DirectionDowngrade VersionDirection = "downgrade"
	DirectionUnchanged VersionDirection = "unchanged"
	DirectionUnknown   VersionDirection = "unknown"
)

// ClassifyVersionChange compares two version strings for display. Versions
// are otherwise opaque to the orchestrator; when either side is empty, is
// the latest sentinel, or does not parse as semver, the direction is
// unknown.
func ClassifyVersionChange(from, to string) VersionDirection {
	if from == to {
		return DirectionUnchanged
	}
	if from == "" || to == "" || from == VersionLatest || to == VersionLatest {
		return DirectionUnknown
	}
	fv, err := semver.NewVersion(from)
	if err != nil {
		return DirectionUnknown
	}
	tv, err := semver.NewVersion(to)
	if err != nil {
		return DirectionUnknown
	}
	switch {
	case tv.GreaterThan(fv):
		return DirectionUpgrade
	case tv.LessThan(fv):
		return DirectionDowngrade
	default:
		return DirectionUnchanged
	}
}
