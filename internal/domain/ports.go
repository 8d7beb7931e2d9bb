package domain

import "context"

// ProcessController drives the supervisor managing a host's worker
// processes. Implementations address the whole supervision group at once;
// per-worker process names are derived from the group by the supervisor
// configuration, not by callers.
type ProcessController interface {
	// StopGroup stops every worker in the host's supervision group. Stopping
	// a group that is already down is not an error.
	StopGroup(ctx context.Context, host Host) error
	// StartGroup starts every worker in the host's supervision group.
	StartGroup(ctx context.Context, host Host) error
	// Reload makes the supervisor re-read its configuration so new process
	// definitions are picked up before a start.
	Reload(ctx context.Context, host Host) error
}

// Installer manages the application package inside a host's runtime
// environment.
type Installer interface {
	// Install puts the requested package version in place. version may be
	// VersionLatest, in which case the newest published version is chosen by
	// the package tooling.
	Install(ctx context.Context, host Host, pkg, version string) error
	// InstalledVersion reports the concrete version currently present, or
	// "" when the package is not installed.
	InstalledVersion(ctx context.Context, host Host, pkg string) (string, error)
	// Snapshot captures a best-effort backup of the current installation and
	// returns a handle to it. Failure here must not abort a rollout.
	Snapshot(ctx context.Context, host Host, pkg string) (string, error)
}

// HealthProber polls one worker's health endpoint until it reports healthy
// or the policy's retry budget is exhausted. The returned ProbeResult is
// always meaningful; the error is reserved for malformed input or a
// canceled context.
type HealthProber interface {
	Probe(ctx context.Context, host Host, workerIndex int, policy ProbePolicy) (ProbeResult, error)
}
