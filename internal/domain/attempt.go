package domain

import "time"

// ProbeState is the final verdict of one worker's health polling.
type ProbeState string

const (
	// ProbeHealthy: the worker answered 200 within the retry budget.
	ProbeHealthy ProbeState = "healthy"
	// ProbeUnhealthy: at least one attempt reached the worker but the
	// budget ran out without a 200.
	ProbeUnhealthy ProbeState = "unhealthy"
	// ProbeErrored: every attempt failed at the transport level. Treated
	// exactly like unhealthy for control decisions; kept distinct for
	// diagnostics.
	ProbeErrored ProbeState = "errored"
)

// ProbeResult records one worker's health polling outcome.
type ProbeResult struct {
	WorkerIndex int
	Port        int
	State       ProbeState
	Attempts    int
	Elapsed     time.Duration
	LastStatus  int    // 0 when no HTTP response was ever received
	LastError   string // transport diagnostics, empty on clean 200
	BodySnippet string // bounded excerpt of the last response body
}

// Healthy reports whether the worker ended up healthy.
func (r ProbeResult) Healthy() bool { return r.State == ProbeHealthy }

// RolloutStep names the per-host step a failure occurred in.
type RolloutStep string

const (
	StepStop    RolloutStep = "stop"
	StepBackup  RolloutStep = "backup"
	StepInstall RolloutStep = "install"
	StepReload  RolloutStep = "reload"
	StepStart   RolloutStep = "start"
	StepProbe   RolloutStep = "probe"
	// StepInternal marks a workflow engine fault where the host's true
	// state is unknown. Such hosts are treated as mutated.
	StepInternal RolloutStep = "internal"
)

// HostFailure pins a host's forward or rollback failure to a step.
type HostFailure struct {
	Step    RolloutStep
	Message string
}

// BackupStatus records the best-effort backup outcome. A skipped or failed
// backup never fails the host; it is surfaced for manual recovery only.
type BackupStatus struct {
	Requested bool
	Skipped   bool
	Path      string
	Reason    string // why the backup was skipped, when it was
}

// HostOutcome is the record of one host's pass (forward rollout or
// rollback): which steps ran, whether the host was mutated at all, the
// backup side-channel, every worker's probe result, and the version left
// running as best known.
type HostOutcome struct {
	Host         string
	Skipped      bool // canceled before any operation; host untouched
	Mutated      bool // at least one state-changing operation was attempted
	Backup       BackupStatus
	Failure      *HostFailure
	Probes       []ProbeResult
	FinalVersion string
}

// Healthy reports whether the host completed its pass cleanly with every
// worker healthy. A skipped host is not healthy: its state is unknown for
// the requested version.
func (o HostOutcome) Healthy() bool {
	if o.Skipped || o.Failure != nil {
		return false
	}
	if len(o.Probes) == 0 {
		return false
	}
	for _, p := range o.Probes {
		if !p.Healthy() {
			return false
		}
	}
	return true
}

// AttemptState is the terminal state of one orchestrated attempt.
type AttemptState string

const (
	AttemptCommitted  AttemptState = "committed"
	AttemptRolledBack AttemptState = "rolled_back"
	AttemptFailed     AttemptState = "failed"
)

// AttemptReport is the full record of one deployment attempt: the forward
// pass over every host, the rollback pass when one ran, and the terminal
// verdict. It is owned exclusively by its attempt and persisted only once
// terminal; a retried deployment starts a fresh attempt.
type AttemptReport struct {
	AttemptID       string
	ReleaseID       ReleaseID
	FleetID         FleetID
	Package         string
	TargetVersion   string
	PreviousVersion string
	Direction       VersionDirection
	State           AttemptState
	Canceled        bool
	Forward         []HostOutcome
	Rollback        []HostOutcome
	StartedAt       time.Time
	FinishedAt      time.Time
}

// ForwardHealthy reports the aggregate forward verdict: true iff every host
// rolled out cleanly and every worker probe on every host is healthy.
// Partial fleet success is never enough; a single failing or skipped host
// fails the whole attempt.
func ForwardHealthy(outcomes []HostOutcome) bool {
	if len(outcomes) == 0 {
		return false
	}
	for _, o := range outcomes {
		if !o.Healthy() {
			return false
		}
	}
	return true
}

// MutatedHosts returns the addresses of hosts that were touched during the
// forward pass. Only these need rolling back; skipped hosts still run the
// previous version untouched.
func MutatedHosts(outcomes []HostOutcome) []string {
	var hosts []string
	for _, o := range outcomes {
		if o.Mutated {
			hosts = append(hosts, o.Host)
		}
	}
	return hosts
}

// RollbackClean reports whether a rollback pass restored every host it
// covered: each rolled-back host healthy on the previous version.
func RollbackClean(outcomes []HostOutcome) bool {
	for _, o := range outcomes {
		if !o.Healthy() {
			return false
		}
	}
	return true
}

// ReleaseStateFor maps a terminal attempt state onto the release lifecycle.
func ReleaseStateFor(state AttemptState) ReleaseState {
	switch state {
	case AttemptCommitted:
		return ReleaseStateCommitted
	case AttemptRolledBack:
		return ReleaseStateRolledBack
	default:
		return ReleaseStateFailed
	}
}
