// Package fleetrepotest provides contract tests for [domain.FleetRepository]
// implementations.
package fleetrepotest

import (
	"context"
	"errors"
	"testing"

	"github.com/f4biogr/rollout/internal/domain"
)

// Factory creates a fresh [domain.FleetRepository] for each test invocation.
type Factory func(t *testing.T) domain.FleetRepository

func sampleFleet(id domain.FleetID, environment string) domain.Fleet {
	return domain.Fleet{
		ID:          id,
		Name:        "search-" + string(id),
		Environment: environment,
		Hosts: []domain.Host{
			{Address: "10.0.0.1", CredentialsRef: "vault://deploy", SupervisionGroup: "app", WorkerCount: 4, BasePort: 9000},
			{Address: "10.0.0.2", CredentialsRef: "vault://deploy", SupervisionGroup: "app", WorkerCount: 4, BasePort: 9000},
		},
	}
}

// Run exercises the [domain.FleetRepository] contract.
func Run(t *testing.T, factory Factory) {
	t.Run("CreateAndGet", func(t *testing.T) {
		repo := factory(t)
		ctx := context.Background()
		fleet := sampleFleet("f1", "prod")

		if err := repo.Create(ctx, fleet); err != nil {
			t.Fatalf("Create: %v", err)
		}

		got, err := repo.Get(ctx, "f1")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.Name != fleet.Name || got.Environment != "prod" {
			t.Errorf("got %q in %q, want %q in prod", got.Name, got.Environment, fleet.Name)
		}
		if len(got.Hosts) != 2 {
			t.Fatalf("len(Hosts) = %d, want 2", len(got.Hosts))
		}
		host := got.Hosts[1]
		if host.Address != "10.0.0.2" || host.WorkerCount != 4 || host.BasePort != 9000 {
			t.Errorf("Hosts[1] = %+v, want the stored topology back", host)
		}
		if host.CredentialsRef != "vault://deploy" {
			t.Errorf("CredentialsRef = %q, want vault://deploy", host.CredentialsRef)
		}
	})

	t.Run("CreateDuplicate", func(t *testing.T) {
		repo := factory(t)
		ctx := context.Background()

		if err := repo.Create(ctx, sampleFleet("f1", "prod")); err != nil {
			t.Fatalf("first Create: %v", err)
		}
		err := repo.Create(ctx, sampleFleet("f1", "staging"))
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

	t.Run("List", func(t *testing.T) {
		repo := factory(t)
		ctx := context.Background()

		for _, id := range []domain.FleetID{"f1", "f2"} {
			if err := repo.Create(ctx, sampleFleet(id, "prod")); err != nil {
				t.Fatalf("Create %s: %v", id, err)
			}
		}

		got, err := repo.List(ctx)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("List: got %d, want 2", len(got))
		}
	})

	t.Run("FindByEnvironment", func(t *testing.T) {
		repo := factory(t)
		ctx := context.Background()

		if err := repo.Create(ctx, sampleFleet("f1", "prod")); err != nil {
			t.Fatal(err)
		}
		if err := repo.Create(ctx, sampleFleet("f2", "staging")); err != nil {
			t.Fatal(err)
		}
		if err := repo.Create(ctx, sampleFleet("f3", "prod")); err != nil {
			t.Fatal(err)
		}

		got, err := repo.FindByEnvironment(ctx, "prod")
		if err != nil {
			t.Fatalf("FindByEnvironment: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("FindByEnvironment(prod): got %d fleets, want 2", len(got))
		}
		for _, f := range got {
			if f.Environment != "prod" {
				t.Errorf("fleet %s environment = %q, want prod", f.ID, f.Environment)
			}
		}

		none, err := repo.FindByEnvironment(ctx, "qa")
		if err != nil {
			t.Fatalf("FindByEnvironment(qa): %v", err)
		}
		if len(none) != 0 {
			t.Errorf("FindByEnvironment(qa): got %d fleets, want 0", len(none))
		}
	})

	t.Run("Delete", func(t *testing.T) {
		repo := factory(t)
		ctx := context.Background()

		if err := repo.Create(ctx, sampleFleet("f1", "prod")); err != nil {
			t.Fatal(err)
		}
		if err := repo.Delete(ctx, "f1"); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		_, err := repo.Get(ctx, "f1")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("Get after Delete: got %v, want ErrNotFound", err)
		}
	})

	t.Run("DeleteNotFound", func(t *testing.T) {
		repo := factory(t)
		err := repo.Delete(context.Background(), "nonexistent")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("Delete: got %v, want ErrNotFound", err)
		}
	})
}
