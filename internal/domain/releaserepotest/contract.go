// Package releaserepotest provides contract tests for [domain.ReleaseRepository]
// implementations.
package releaserepotest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/f4biogr/rollout/internal/domain"
)

// Factory creates a fresh [domain.ReleaseRepository] for each test invocation.
type Factory func(t *testing.T) domain.ReleaseRepository

func sampleRelease(id domain.ReleaseID, fleetID domain.FleetID) domain.Release {
	return domain.Release{
		ID:      id,
		FleetID: fleetID,
		Package: "acme-search",
		Version: "2.4.0",
		Probe: domain.ProbePolicy{
			Timeout:    5 * time.Second,
			MaxRetries: 5,
			RetryDelay: 10 * time.Second,
			Path:       "/health",
		},
		BackupEnabled: true,
		State:         domain.ReleaseStatePending,
		CreatedAt:     time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
	}
}

// Run exercises the [domain.ReleaseRepository] contract.
func Run(t *testing.T, factory Factory) {
	t.Run("CreateAndGet", func(t *testing.T) {
		repo := factory(t)
		ctx := context.Background()
		release := sampleRelease("r1", "f1")

		if err := repo.Create(ctx, release); err != nil {
			t.Fatalf("Create: %v", err)
		}

		got, err := repo.Get(ctx, "r1")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.Package != "acme-search" || got.Version != "2.4.0" {
			t.Errorf("got %s@%s, want acme-search@2.4.0", got.Package, got.Version)
		}
		if got.Probe.MaxRetries != 5 || got.Probe.RetryDelay != 10*time.Second {
			t.Errorf("Probe = %+v, want the stored policy back", got.Probe)
		}
		if !got.BackupEnabled {
			t.Error("BackupEnabled lost on round trip")
		}
		if got.State != domain.ReleaseStatePending {
			t.Errorf("State = %s, want pending", got.State)
		}
		if !got.CreatedAt.Equal(release.CreatedAt) {
			t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, release.CreatedAt)
		}
	})

	t.Run("CreateDuplicate", func(t *testing.T) {
		repo := factory(t)
		ctx := context.Background()

		if err := repo.Create(ctx, sampleRelease("r1", "f1")); err != nil {
			t.Fatalf("first Create: %v", err)
		}
		err := repo.Create(ctx, sampleRelease("r1", "f1"))
		if !errors.Is(err, domain.ErrAlreadyExists) {
			t.Fatalf("second Create: got %v, want ErrAlreadyExists", err)
		}
	})

	t.Run("GetNotFound", func(t *testing.T) {
		repo := factory(t)
		_, err := repo.Get(context.Background(), "nonexistent")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("Get: got %v, want ErrNotFound", err)
		}
	})

	t.Run("ListByFleet", func(t *testing.T) {
		repo := factory(t)
		ctx := context.Background()

		if err := repo.Create(ctx, sampleRelease("r1", "f1")); err != nil {
			t.Fatal(err)
		}
		if err := repo.Create(ctx, sampleRelease("r2", "f2")); err != nil {
			t.Fatal(err)
		}
		if err := repo.Create(ctx, sampleRelease("r3", "f1")); err != nil {
			t.Fatal(err)
		}

		got, err := repo.ListByFleet(ctx, "f1")
		if err != nil {
			t.Fatalf("ListByFleet: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("ListByFleet(f1): got %d, want 2", len(got))
		}

		all, err := repo.List(ctx)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(all) != 3 {
			t.Fatalf("List: got %d, want 3", len(all))
		}
	})

	t.Run("UpdateState", func(t *testing.T) {
		repo := factory(t)
		ctx := context.Background()

		if err := repo.Create(ctx, sampleRelease("r1", "f1")); err != nil {
			t.Fatal(err)
		}
		if err := repo.UpdateState(ctx, "r1", domain.ReleaseStateCommitted); err != nil {
			t.Fatalf("UpdateState: %v", err)
		}
		got, err := repo.Get(ctx, "r1")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.State != domain.ReleaseStateCommitted {
			t.Errorf("State = %s, want committed", got.State)
		}
	})

	t.Run("UpdateStateNotFound", func(t *testing.T) {
		repo := factory(t)
		err := repo.UpdateState(context.Background(), "nonexistent", domain.ReleaseStateFailed)
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("UpdateState: got %v, want ErrNotFound", err)
		}
	})
}
