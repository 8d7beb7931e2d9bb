package application

import (
	"context"
	"fmt"

	"github.com/f4biogr/rollout/internal/domain"
)

// FleetService manages fleet registration and queries.
type FleetService struct {
	Fleets domain.FleetRepository
}

func (s *FleetService) Register(ctx context.Context, fleet domain.Fleet) error {
	if fleet.ID == "" {
		return fmt.Errorf("%w: fleet ID is required", domain.ErrInvalidArgument)
	}
	if fleet.Name == "" {
		return fmt.Errorf("%w: fleet name is required", domain.ErrInvalidArgument)
	}
	if err := fleet.Validate(); err != nil {
		return err
	}
	return s.Fleets.Create(ctx, fleet)
}

func (s *FleetService) Get(ctx context.Context, id domain.FleetID) (domain.Fleet, error) {
	return s.Fleets.Get(ctx, id)
}

func (s *FleetService) List(ctx context.Context) ([]domain.Fleet, error) {
	return s.Fleets.List(ctx)
}

// ResolveEnvironment returns the single fleet serving an environment.
// Release requests name an environment, not a fleet, so an ambiguous
// environment is an error rather than a fan-out.
func (s *FleetService) ResolveEnvironment(ctx context.Context, environment string) (domain.Fleet, error) {
	fleets, err := s.Fleets.FindByEnvironment(ctx, environment)
	if err != nil {
		return domain.Fleet{}, err
	}
	switch len(fleets) {
	case 0:
		return domain.Fleet{}, fmt.Errorf("%w: no fleet serves environment %q", domain.ErrNotFound, environment)
	case 1:
		return fleets[0], nil
	default:
		return domain.Fleet{}, fmt.Errorf("%w: environment %q has %d fleets, target one by fleet ID", domain.ErrInvalidArgument, environment, len(fleets))
	}
}

func (s *FleetService) Delete(ctx context.Context, id domain.FleetID) error {
	return s.Fleets.Delete(ctx, id)
}
