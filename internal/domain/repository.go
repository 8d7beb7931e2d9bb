package domain

import "context"

// FleetRepository persists and retrieves fleet topologies.
type FleetRepository interface {
	Create(ctx context.Context, fleet Fleet) error
	Get(ctx context.Context, id FleetID) (Fleet, error)
	List(ctx context.Context) ([]Fleet, error)
	FindByEnvironment(ctx context.Context, environment string) ([]Fleet, error)
	Delete(ctx context.Context, id FleetID) error
}

// ReleaseRepository persists and retrieves releases.
type ReleaseRepository interface {
	Create(ctx context.Context, release Release) error
	Get(ctx context.Context, id ReleaseID) (Release, error)
	List(ctx context.Context) ([]Release, error)
	ListByFleet(ctx context.Context, fleetID FleetID) ([]Release, error)
	UpdateState(ctx context.Context, id ReleaseID, state ReleaseState) error
}

// AttemptRepository persists deployment attempt reports. Reports are
// written once, terminal, and never updated.
type AttemptRepository interface {
	Put(ctx context.Context, report AttemptReport) error
	Get(ctx context.Context, attemptID string) (AttemptReport, error)
	ListByRelease(ctx context.Context, releaseID ReleaseID) ([]AttemptReport, error)
	ListByFleet(ctx context.Context, fleetID FleetID) ([]AttemptReport, error)
}
