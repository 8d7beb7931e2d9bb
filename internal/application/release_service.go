package application

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/f4biogr/rollout/internal/domain"
	"github.com/f4biogr/rollout/internal/metrics"
)

// DefaultProbe is the probe policy applied when a release does not set one.
var DefaultProbe = domain.ProbePolicy{
	Timeout:    5 * time.Second,
	MaxRetries: 5,
	RetryDelay: 10 * time.Second,
}

// CreateReleaseInput is the caller-provided input for rolling out a release.
// A zero Probe takes [DefaultProbe]; backups are on unless disabled.
type CreateReleaseInput struct {
	FleetID       domain.FleetID
	Package       string
	Version       string
	Probe         domain.ProbePolicy
	DisableBackup bool
}

// ReleaseService manages release lifecycle and triggers rollout attempts.
type ReleaseService struct {
	Releases      domain.ReleaseRepository
	Fleets        domain.FleetRepository
	Attempts      domain.AttemptRepository
	Orchestration *OrchestrationService
	Logger        *slog.Logger
	Metrics       *metrics.Metrics

	mu       sync.Mutex
	inFlight map[domain.FleetID]bool
}

// Create persists a new release and rolls it out to its fleet, returning the
// release in its terminal state. The full per-host report is available via
// [ReleaseService.Report].
func (s *ReleaseService) Create(ctx context.Context, in CreateReleaseInput) (domain.Release, error) {
	if _, err := s.Fleets.Get(ctx, in.FleetID); err != nil {
		return domain.Release{}, err
	}

	probe := in.Probe
	if probe == (domain.ProbePolicy{}) {
		probe = DefaultProbe
	}

	rel := domain.Release{
		ID:            domain.ReleaseID(uuid.NewString()),
		FleetID:       in.FleetID,
		Package:       in.Package,
		Version:       in.Version,
		Probe:         probe,
		BackupEnabled: !in.DisableBackup,
		State:         domain.ReleaseStatePending,
		CreatedAt:     time.Now().UTC(),
	}
	if err := rel.Validate(); err != nil {
		return domain.Release{}, err
	}

	if err := s.Releases.Create(ctx, rel); err != nil {
		return domain.Release{}, err
	}

	if _, err := s.deploy(ctx, rel); err != nil {
		return domain.Release{}, err
	}

	return s.Releases.Get(ctx, rel.ID)
}

func (s *ReleaseService) Get(ctx context.Context, id domain.ReleaseID) (domain.Release, error) {
	return s.Releases.Get(ctx, id)
}

func (s *ReleaseService) List(ctx context.Context) ([]domain.Release, error) {
	return s.Releases.List(ctx)
}

func (s *ReleaseService) ListByFleet(ctx context.Context, fleetID domain.FleetID) ([]domain.Release, error) {
	return s.Releases.ListByFleet(ctx, fleetID)
}

// Report returns the newest attempt report recorded for a release.
func (s *ReleaseService) Report(ctx context.Context, releaseID domain.ReleaseID) (domain.AttemptReport, error) {
	reports, err := s.Attempts.ListByRelease(ctx, releaseID)
	if err != nil {
		return domain.AttemptReport{}, err
	}
	if len(reports) == 0 {
		return domain.AttemptReport{}, fmt.Errorf("%w: no attempt recorded for release %s", domain.ErrNotFound, releaseID)
	}
	return reports[0], nil
}

// deploy runs one rollout attempt. One attempt per fleet may be in flight;
// concurrent attempts fail with ErrAttemptInProgress before touching a host.
func (s *ReleaseService) deploy(ctx context.Context, rel domain.Release) (domain.AttemptReport, error) {
	if !s.acquire(rel.FleetID) {
		err := fmt.Errorf("%w: fleet %s", domain.ErrAttemptInProgress, rel.FleetID)
		s.markFailed(ctx, rel.ID)
		return domain.AttemptReport{}, err
	}
	defer s.release(rel.FleetID)

	if err := s.Releases.UpdateState(ctx, rel.ID, domain.ReleaseStateRolling); err != nil {
		return domain.AttemptReport{}, err
	}

	s.logger().Info("rollout started",
		"release", rel.ID, "fleet", rel.FleetID,
		"package", rel.Package, "version", rel.Version)

	report, err := s.Orchestration.Orchestrate(ctx, rel.ID)
	if err != nil {
		s.logger().Error("rollout did not finish", "release", rel.ID, "error", err)
		s.markFailed(ctx, rel.ID)
		return domain.AttemptReport{}, fmt.Errorf("rollout release %s: %w", rel.ID, err)
	}

	for _, h := range report.Forward {
		if h.Backup.Requested && h.Backup.Skipped {
			s.logger().Warn("backup skipped", "release", rel.ID, "host", h.Host, "reason", h.Backup.Reason)
		}
	}
	s.logger().Info("rollout finished",
		"release", rel.ID, "state", report.State, "canceled", report.Canceled,
		"duration", report.FinishedAt.Sub(report.StartedAt))
	s.Metrics.ObserveAttempt(report)

	return report, nil
}

// markFailed is best-effort: the attempt outcome matters more than the
// release row, so a failed update is logged and swallowed.
func (s *ReleaseService) markFailed(ctx context.Context, id domain.ReleaseID) {
	if err := s.Releases.UpdateState(ctx, id, domain.ReleaseStateFailed); err != nil {
		s.logger().Error("mark release failed", "release", id, "error", err)
	}
}

func (s *ReleaseService) acquire(fleetID domain.FleetID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight[fleetID] {
		return false
	}
	if s.inFlight == nil {
		s.inFlight = make(map[domain.FleetID]bool)
	}
	s.inFlight[fleetID] = true
	return true
}

func (s *ReleaseService) release(fleetID domain.FleetID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, fleetID)
}

func (s *ReleaseService) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
