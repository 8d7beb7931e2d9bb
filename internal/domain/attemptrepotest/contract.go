// Package attemptrepotest provides contract tests for [domain.AttemptRepository]
// implementations.
package attemptrepotest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/f4biogr/rollout/internal/domain"
)

// Factory creates a fresh [domain.AttemptRepository] for each test invocation.
type Factory func(t *testing.T) domain.AttemptRepository

func sampleReport(id string, releaseID domain.ReleaseID, fleetID domain.FleetID) domain.AttemptReport {
	started := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	return domain.AttemptReport{
		AttemptID:       id,
		ReleaseID:       releaseID,
		FleetID:         fleetID,
		Package:         "acme-search",
		TargetVersion:   "2.4.0",
		PreviousVersion: "2.3.9",
		Direction:       domain.DirectionUpgrade,
		State:           domain.AttemptRolledBack,
		Forward: []domain.HostOutcome{
			{
				Host:    "10.0.0.1",
				Mutated: true,
				Backup:  domain.BackupStatus{Requested: true, Path: "/backups/10.0.0.1.tar.gz"},
				Probes: []domain.ProbeResult{
					{WorkerIndex: 1, Port: 9001, State: domain.ProbeHealthy, Attempts: 1},
				},
				FinalVersion: "2.4.0",
			},
			{
				Host:    "10.0.0.2",
				Mutated: true,
				Backup:  domain.BackupStatus{Requested: true, Skipped: true, Reason: "disk full"},
				Failure: &domain.HostFailure{Step: domain.StepProbe, Message: "worker 1 on port 9001 unhealthy after 6 attempts"},
				Probes: []domain.ProbeResult{
					{WorkerIndex: 1, Port: 9001, State: domain.ProbeUnhealthy, Attempts: 6, LastStatus: 503},
				},
				FinalVersion: "2.4.0",
			},
		},
		Rollback: []domain.HostOutcome{
			{Host: "10.0.0.1", Mutated: true, FinalVersion: "2.3.9",
				Probes: []domain.ProbeResult{{WorkerIndex: 1, Port: 9001, State: domain.ProbeHealthy, Attempts: 1}}},
			{Host: "10.0.0.2", Mutated: true, FinalVersion: "2.3.9",
				Probes: []domain.ProbeResult{{WorkerIndex: 1, Port: 9001, State: domain.ProbeHealthy, Attempts: 2}}},
		},
		StartedAt:  started,
		FinishedAt: started.Add(3 * time.Minute),
	}
}

// Run exercises the [domain.AttemptRepository] contract.
func Run(t *testing.T, factory Factory) {
	t.Run("PutAndGet", func(t *testing.T) {
		repo := factory(t)
		ctx := context.Background()
		report := sampleReport("a1", "r1", "f1")

		if err := repo.Put(ctx, report); err != nil {
			t.Fatalf("Put: %v", err)
		}

		got, err := repo.Get(ctx, "a1")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.State != domain.AttemptRolledBack {
			t.Errorf("State = %s, want rolled_back", got.State)
		}
		if got.Direction != domain.DirectionUpgrade {
			t.Errorf("Direction = %s, want upgrade", got.Direction)
		}
		if len(got.Forward) != 2 || len(got.Rollback) != 2 {
			t.Fatalf("Forward/Rollback = %d/%d, want 2/2", len(got.Forward), len(got.Rollback))
		}
		failed := got.Forward[1]
		if failed.Failure == nil || failed.Failure.Step != domain.StepProbe {
			t.Errorf("Forward[1].Failure = %+v, want probe step", failed.Failure)
		}
		if failed.Backup.Reason != "disk full" {
			t.Errorf("Backup.Reason = %q, want disk full", failed.Backup.Reason)
		}
		if got.Forward[0].Probes[0].Port != 9001 {
			t.Errorf("probe port = %d, want 9001", got.Forward[0].Probes[0].Port)
		}
		if !got.StartedAt.Equal(report.StartedAt) || !got.FinishedAt.Equal(report.FinishedAt) {
			t.Errorf("times = %v..%v, want %v..%v", got.StartedAt, got.FinishedAt, report.StartedAt, report.FinishedAt)
		}
	})

	t.Run("PutDuplicate", func(t *testing.T) {
		repo := factory(t)
		ctx := context.Background()

		if err := repo.Put(ctx, sampleReport("a1", "r1", "f1")); err != nil {
			t.Fatalf("first Put: %v", err)
		}
		err := repo.Put(ctx, sampleReport("a1", "r1", "f1"))
		if !errors.Is(err, domain.ErrAlreadyExists) {
			t.Fatalf("second Put: got %v, want ErrAlreadyExists", err)
		}
	})

	t.Run("GetNotFound", func(t *testing.T) {
		repo := factory(t)
		_, err := repo.Get(context.Background(), "nonexistent")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("Get: got %v, want ErrNotFound", err)
		}
	})

	t.Run("ListByRelease", func(t *testing.T) {
		repo := factory(t)
		ctx := context.Background()

		if err := repo.Put(ctx, sampleReport("a1", "r1", "f1")); err != nil {
			t.Fatal(err)
		}
		if err := repo.Put(ctx, sampleReport("a2", "r1", "f1")); err != nil {
			t.Fatal(err)
		}
		if err := repo.Put(ctx, sampleReport("a3", "r2", "f1")); err != nil {
			t.Fatal(err)
		}

		got, err := repo.ListByRelease(ctx, "r1")
		if err != nil {
			t.Fatalf("ListByRelease: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("ListByRelease(r1): got %d, want 2", len(got))
		}
	})

	t.Run("ListByFleet", func(t *testing.T) {
		repo := factory(t)
		ctx := context.Background()

		if err := repo.Put(ctx, sampleReport("a1", "r1", "f1")); err != nil {
			t.Fatal(err)
		}
		if err := repo.Put(ctx, sampleReport("a2", "r2", "f2")); err != nil {
			t.Fatal(err)
		}

		got, err := repo.ListByFleet(ctx, "f2")
		if err != nil {
			t.Fatalf("ListByFleet: %v", err)
		}
		if len(got) != 1 || got[0].AttemptID != "a2" {
			t.Fatalf("ListByFleet(f2) = %+v, want attempt a2 only", got)
		}
	})

	t.Run("EmptyRollbackRoundTrips", func(t *testing.T) {
		repo := factory(t)
		ctx := context.Background()
		report := sampleReport("a1", "r1", "f1")
		report.State = domain.AttemptCommitted
		report.Rollback = nil

		if err := repo.Put(ctx, report); err != nil {
			t.Fatalf("Put: %v", err)
		}
		got, err := repo.Get(ctx, "a1")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if len(got.Rollback) != 0 {
			t.Errorf("Rollback = %+v, want empty", got.Rollback)
		}
	})
}
