package domain

import (
	"context"
	"fmt"
	"time"
)

// RolloutWorkflow deploys one release across its fleet: capture the
// previous version from every host, roll each host forward under a
// concurrency bound, and either commit or roll the mutated hosts back.
// All I/O runs inside named activities so the workflow can execute on any
// [WorkflowEngine].
type RolloutWorkflow struct {
	Releases  ReleaseRepository
	Fleets    FleetRepository
	Attempts  AttemptRepository
	Processes ProcessController
	Packages  Installer
	Prober    HealthProber

	// MaxConcurrentHosts bounds the per-host fan-out. Zero or negative
	// means one host at a time.
	MaxConcurrentHosts int
}

// Name returns the stable workflow registration name.
func (wf *RolloutWorkflow) Name() string { return "rollout-release" }

func (wf *RolloutWorkflow) hostLimit() int {
	if wf.MaxConcurrentHosts > 0 {
		return wf.MaxConcurrentHosts
	}
	return 1
}

// LoadReleaseInput identifies the release to deploy.
type LoadReleaseInput struct {
	ReleaseID ReleaseID
}

// LoadReleaseOutput carries the validated release and the attempt's start
// time, stamped inside the activity so durable replays see one value.
type LoadReleaseOutput struct {
	Release   Release
	StartedAt time.Time
}

// LoadFleetInput identifies the fleet to deploy to.
type LoadFleetInput struct {
	FleetID FleetID
}

// CaptureVersionInput asks one host for its installed package version.
type CaptureVersionInput struct {
	Host    Host
	Package string
}

// CaptureVersionOutput reports one host's installed version; empty means
// the package is not installed there.
type CaptureVersionOutput struct {
	Host    string
	Version string
}

// RolloutHostInput drives one host's forward pass.
type RolloutHostInput struct {
	Host          Host
	Package       string
	Version       string
	Probe         ProbePolicy
	BackupEnabled bool
}

// RollbackHostInput drives one host's restore to the previous version.
type RollbackHostInput struct {
	Host            Host
	Package         string
	PreviousVersion string
	Probe           ProbePolicy
}

// RecordAttemptInput carries the finished report for persistence.
type RecordAttemptInput struct {
	Report AttemptReport
}

// LoadRelease returns the activity that loads and validates the release.
func (wf *RolloutWorkflow) LoadRelease() Activity[LoadReleaseInput, LoadReleaseOutput] {
	return NewActivity("load-release", func(ctx context.Context, in LoadReleaseInput) (LoadReleaseOutput, error) {
		release, err := wf.Releases.Get(ctx, in.ReleaseID)
		if err != nil {
			return LoadReleaseOutput{}, fmt.Errorf("load release %s: %w", in.ReleaseID, err)
		}
		if err := release.Validate(); err != nil {
			return LoadReleaseOutput{}, err
		}
		return LoadReleaseOutput{Release: release, StartedAt: time.Now().UTC()}, nil
	})
}

// LoadFleet returns the activity that loads and validates the fleet
// topology.
func (wf *RolloutWorkflow) LoadFleet() Activity[LoadFleetInput, Fleet] {
	return NewActivity("load-fleet", func(ctx context.Context, in LoadFleetInput) (Fleet, error) {
		fleet, err := wf.Fleets.Get(ctx, in.FleetID)
		if err != nil {
			return Fleet{}, fmt.Errorf("load fleet %s: %w", in.FleetID, err)
		}
		if err := fleet.Validate(); err != nil {
			return Fleet{}, err
		}
		return fleet, nil
	})
}

// CaptureHostVersion returns the activity that reads one host's installed
// version before anything is mutated.
func (wf *RolloutWorkflow) CaptureHostVersion() Activity[CaptureVersionInput, CaptureVersionOutput] {
	return NewActivity("capture-host-version", func(ctx context.Context, in CaptureVersionInput) (CaptureVersionOutput, error) {
		version, err := wf.Packages.InstalledVersion(ctx, in.Host, in.Package)
		if err != nil {
			return CaptureVersionOutput{}, &InstallError{Host: in.Host.Address, Cause: err}
		}
		return CaptureVersionOutput{Host: in.Host.Address, Version: version}, nil
	})
}

// RolloutHost returns the activity that runs one host's forward pass:
// stop, backup, install, reload, start, probe. Operational failures land
// in the returned [HostOutcome]; the error is reserved for engine faults.
func (wf *RolloutWorkflow) RolloutHost() Activity[RolloutHostInput, HostOutcome] {
	return NewActivity("rollout-host", func(ctx context.Context, in RolloutHostInput) (HostOutcome, error) {
		out := HostOutcome{
			Host:   in.Host.Address,
			Backup: BackupStatus{Requested: in.BackupEnabled},
		}
		if ctx.Err() != nil {
			out.Skipped = true
			return out, nil
		}
		// Once the first operation is issued the host must reach a
		// defined end state, so the remaining steps ignore cancellation.
		// The adapters bound each operation with their own timeouts.
		ctx = context.WithoutCancel(ctx)

		out.Mutated = true
		if err := wf.Processes.StopGroup(ctx, in.Host); err != nil {
			out.Failure = &HostFailure{Step: StepStop, Message: err.Error()}
			return out, nil
		}

		if in.BackupEnabled {
			path, err := wf.Packages.Snapshot(ctx, in.Host, in.Package)
			if err != nil {
				out.Backup.Skipped = true
				out.Backup.Reason = err.Error()
			} else {
				out.Backup.Path = path
			}
		} else {
			out.Backup.Skipped = true
			out.Backup.Reason = "disabled by release"
		}

		if err := wf.Packages.Install(ctx, in.Host, in.Package, in.Version); err != nil {
			out.Failure = &HostFailure{Step: StepInstall, Message: err.Error()}
			return out, nil
		}
		if err := wf.Processes.Reload(ctx, in.Host); err != nil {
			out.Failure = &HostFailure{Step: StepReload, Message: err.Error()}
			return out, nil
		}
		if err := wf.Processes.StartGroup(ctx, in.Host); err != nil {
			out.Failure = &HostFailure{Step: StepStart, Message: err.Error()}
			return out, nil
		}

		out.Probes, out.Failure = wf.probeWorkers(ctx, in.Host, in.Probe)

		if version, err := wf.Packages.InstalledVersion(ctx, in.Host, in.Package); err == nil {
			out.FinalVersion = version
		}
		return out, nil
	})
}

// RollbackHost returns the activity that restores one host to the previous
// version. Rollback never takes a backup and never skips on cancellation.
func (wf *RolloutWorkflow) RollbackHost() Activity[RollbackHostInput, HostOutcome] {
	return NewActivity("rollback-host", func(ctx context.Context, in RollbackHostInput) (HostOutcome, error) {
		ctx = context.WithoutCancel(ctx)
		out := HostOutcome{
			Host:    in.Host.Address,
			Mutated: true,
			Backup:  BackupStatus{Skipped: true, Reason: "rollback pass"},
		}

		if err := wf.Processes.StopGroup(ctx, in.Host); err != nil {
			out.Failure = &HostFailure{Step: StepStop, Message: err.Error()}
			return out, nil
		}
		if err := wf.Packages.Install(ctx, in.Host, in.Package, in.PreviousVersion); err != nil {
			out.Failure = &HostFailure{Step: StepInstall, Message: err.Error()}
			return out, nil
		}
		if err := wf.Processes.Reload(ctx, in.Host); err != nil {
			out.Failure = &HostFailure{Step: StepReload, Message: err.Error()}
			return out, nil
		}
		if err := wf.Processes.StartGroup(ctx, in.Host); err != nil {
			out.Failure = &HostFailure{Step: StepStart, Message: err.Error()}
			return out, nil
		}

		out.Probes, out.Failure = wf.probeWorkers(ctx, in.Host, in.Probe)

		if version, err := wf.Packages.InstalledVersion(ctx, in.Host, in.Package); err == nil {
			out.FinalVersion = version
		}
		return out, nil
	})
}

// RecordAttempt returns the activity that stamps, persists, and publishes
// the terminal report. It runs even when the attempt was canceled.
func (wf *RolloutWorkflow) RecordAttempt() Activity[RecordAttemptInput, AttemptReport] {
	return NewActivity("record-attempt", func(ctx context.Context, in RecordAttemptInput) (AttemptReport, error) {
		ctx = context.WithoutCancel(ctx)
		report := in.Report
		report.FinishedAt = time.Now().UTC()

		if err := wf.Attempts.Put(ctx, report); err != nil {
			return AttemptReport{}, fmt.Errorf("record attempt %s: %w", report.AttemptID, err)
		}
		if err := wf.Releases.UpdateState(ctx, report.ReleaseID, ReleaseStateFor(report.State)); err != nil {
			return AttemptReport{}, fmt.Errorf("update release %s state: %w", report.ReleaseID, err)
		}
		return report, nil
	})
}

// probeWorkers polls each worker in index order and stops at the first one
// that ends unhealthy or errored. The returned failure is nil when every
// worker came up healthy.
func (wf *RolloutWorkflow) probeWorkers(ctx context.Context, host Host, policy ProbePolicy) ([]ProbeResult, *HostFailure) {
	var results []ProbeResult
	for i := 1; i <= host.WorkerCount; i++ {
		result, err := wf.Prober.Probe(ctx, host, i, policy)
		if err != nil {
			result = ProbeResult{
				WorkerIndex: i,
				Port:        host.WorkerPort(i),
				State:       ProbeErrored,
				LastError:   err.Error(),
			}
		}
		results = append(results, result)
		if !result.Healthy() {
			return results, &HostFailure{
				Step: StepProbe,
				Message: fmt.Sprintf("worker %d on port %d %s after %d attempts",
					result.WorkerIndex, result.Port, result.State, result.Attempts),
			}
		}
	}
	return results, nil
}

// Run executes one deployment attempt and returns its terminal report.
// Host passes fan out through the runner so a durable engine records each
// host's outcome exactly once.
func (wf *RolloutWorkflow) Run(runner DurableRunner, releaseID ReleaseID) (AttemptReport, error) {
	loaded, err := RunActivity(runner, wf.LoadRelease(), LoadReleaseInput{ReleaseID: releaseID})
	if err != nil {
		return AttemptReport{}, err
	}
	release := loaded.Release

	fleet, err := RunActivity(runner, wf.LoadFleet(), LoadFleetInput{FleetID: release.FleetID})
	if err != nil {
		return AttemptReport{}, err
	}

	limit := wf.hostLimit()

	captureIns := make([]CaptureVersionInput, len(fleet.Hosts))
	for i, host := range fleet.Hosts {
		captureIns[i] = CaptureVersionInput{Host: host, Package: release.Package}
	}
	captured, captureErrs := RunActivityAll(runner, wf.CaptureHostVersion(), captureIns, limit)
	for i, err := range captureErrs {
		if err != nil {
			return AttemptReport{}, fmt.Errorf("capture version on %s: %w", fleet.Hosts[i].Address, err)
		}
	}
	previous, err := consensusVersion(captured)
	if err != nil {
		return AttemptReport{}, err
	}

	report := AttemptReport{
		AttemptID:       runner.ID(),
		ReleaseID:       release.ID,
		FleetID:         fleet.ID,
		Package:         release.Package,
		TargetVersion:   release.Version,
		PreviousVersion: previous,
		Direction:       ClassifyVersionChange(previous, release.Version),
		StartedAt:       loaded.StartedAt,
	}

	forwardIns := make([]RolloutHostInput, len(fleet.Hosts))
	for i, host := range fleet.Hosts {
		forwardIns[i] = RolloutHostInput{
			Host:          host,
			Package:       release.Package,
			Version:       release.Version,
			Probe:         release.Probe,
			BackupEnabled: release.BackupEnabled,
		}
	}
	forwardOuts, forwardErrs := RunActivityAll(runner, wf.RolloutHost(), forwardIns, limit)
	report.Forward = collectOutcomes(fleet.Hosts, forwardOuts, forwardErrs)
	report.Canceled = runner.Context().Err() != nil || anySkipped(report.Forward)

	if ForwardHealthy(report.Forward) {
		report.State = AttemptCommitted
		return RunActivity(runner, wf.RecordAttempt(), RecordAttemptInput{Report: report})
	}

	mutated := MutatedHosts(report.Forward)
	if len(mutated) == 0 || previous == "" {
		// Nothing to restore, or nothing to restore to.
		report.State = AttemptFailed
		return RunActivity(runner, wf.RecordAttempt(), RecordAttemptInput{Report: report})
	}

	rollbackHosts := make([]Host, 0, len(mutated))
	rollbackIns := make([]RollbackHostInput, 0, len(mutated))
	for _, address := range mutated {
		host, ok := fleet.HostByAddress(address)
		if !ok {
			return AttemptReport{}, fmt.Errorf("%w: host %q not in fleet %s", ErrNotFound, address, fleet.ID)
		}
		rollbackHosts = append(rollbackHosts, host)
		rollbackIns = append(rollbackIns, RollbackHostInput{
			Host:            host,
			Package:         release.Package,
			PreviousVersion: previous,
			Probe:           release.Probe,
		})
	}
	rollbackOuts, rollbackErrs := RunActivityAll(runner, wf.RollbackHost(), rollbackIns, limit)
	report.Rollback = collectOutcomes(rollbackHosts, rollbackOuts, rollbackErrs)

	if RollbackClean(report.Rollback) {
		report.State = AttemptRolledBack
	} else {
		report.State = AttemptFailed
	}
	return RunActivity(runner, wf.RecordAttempt(), RecordAttemptInput{Report: report})
}

// consensusVersion reduces per-host captures to the fleet's single previous
// version. Hosts must agree; a fleet that disagrees with itself has no
// defined version to roll back to.
func consensusVersion(captured []CaptureVersionOutput) (string, error) {
	if len(captured) == 0 {
		return "", fmt.Errorf("%w: no hosts reported a version", ErrInvalidTopology)
	}
	version := captured[0].Version
	for _, c := range captured[1:] {
		if c.Version != version {
			return "", fmt.Errorf("%w: %s reports %q, %s reports %q",
				ErrInconsistentFleetVersion, captured[0].Host, version, c.Host, c.Version)
		}
	}
	return version, nil
}

// collectOutcomes merges activity outputs and engine faults into one
// outcome per host, in host order. An engine fault leaves the host's true
// state unknown, so it is recorded as mutated.
func collectOutcomes(hosts []Host, outs []HostOutcome, errs []error) []HostOutcome {
	outcomes := make([]HostOutcome, len(hosts))
	for i := range hosts {
		if errs[i] != nil {
			outcomes[i] = HostOutcome{
				Host:    hosts[i].Address,
				Mutated: true,
				Failure: &HostFailure{Step: StepInternal, Message: errs[i].Error()},
			}
			continue
		}
		outcomes[i] = outs[i]
	}
	return outcomes
}

func anySkipped(outcomes []HostOutcome) bool {
	for _, o := range outcomes {
		if o.Skipped {
			return true
		}
	}
	return false
}
