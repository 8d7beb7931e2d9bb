package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/f4biogr/rollout/internal/domain"
)

// AttemptRepo implements [domain.AttemptRepository] backed by SQLite.
// Reports are insert-only.
type AttemptRepo struct {
	DB *sql.DB
}

func (r *AttemptRepo) Put(ctx context.Context, report domain.AttemptReport) error {
	forward, err := json.Marshal(report.Forward)
	if err != nil {
		return fmt.Errorf("marshal forward outcomes: %w", err)
	}
	rollback, err := json.Marshal(report.Rollback)
	if err != nil {
		return fmt.Errorf("marshal rollback outcomes: %w", err)
	}

	_, err = r.DB.ExecContext(ctx,
		`INSERT INTO attempts (id, release_id, fleet_id, package, target_version, previous_version,
		                       direction, state, canceled, forward_outcomes, rollback_outcomes,
		                       started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		report.AttemptID, string(report.ReleaseID), string(report.FleetID), report.Package,
		report.TargetVersion, report.PreviousVersion, string(report.Direction), string(report.State),
		boolToInt(report.Canceled), string(forward), string(rollback),
		report.StartedAt.UTC().Format(time.RFC3339Nano),
		report.FinishedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("attempt %q: %w", report.AttemptID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

func (r *AttemptRepo) Get(ctx context.Context, attemptID string) (domain.AttemptReport, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT id, release_id, fleet_id, package, target_version, previous_version,
		        direction, state, canceled, forward_outcomes, rollback_outcomes,
		        started_at, finished_at
		 FROM attempts WHERE id = ?`,
		attemptID,
	)
	return scanAttempt(row)
}

func (r *AttemptRepo) ListByRelease(ctx context.Context, releaseID domain.ReleaseID) ([]domain.AttemptReport, error) {
	return r.queryAttempts(ctx,
		`SELECT id, release_id, fleet_id, package, target_version, previous_version,
		        direction, state, canceled, forward_outcomes, rollback_outcomes,
		        started_at, finished_at
		 FROM attempts WHERE release_id = ? ORDER BY started_at DESC`,
		string(releaseID),
	)
}

func (r *AttemptRepo) ListByFleet(ctx context.Context, fleetID domain.FleetID) ([]domain.AttemptReport, error) {
	return r.queryAttempts(ctx,
		`SELECT id, release_id, fleet_id, package, target_version, previous_version,
		        direction, state, canceled, forward_outcomes, rollback_outcomes,
		        started_at, finished_at
		 FROM attempts WHERE fleet_id = ? ORDER BY started_at DESC`,
		string(fleetID),
	)
}

func (r *AttemptRepo) queryAttempts(ctx context.Context, query string, args ...any) ([]domain.AttemptReport, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	var reports []domain.AttemptReport
	for rows.Next() {
		report, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	return reports, rows.Err()
}

func scanAttempt(s scanner) (domain.AttemptReport, error) {
	var report domain.AttemptReport
	var releaseID, fleetID, direction, state string
	var canceled int
	var forwardJSON, rollbackJSON, startedAt, finishedAt string
	if err := s.Scan(&report.AttemptID, &releaseID, &fleetID, &report.Package,
		&report.TargetVersion, &report.PreviousVersion, &direction, &state,
		&canceled, &forwardJSON, &rollbackJSON, &startedAt, &finishedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return report, fmt.Errorf("%w", domain.ErrNotFound)
		}
		return report, fmt.Errorf("scan attempt: %w", err)
	}
	report.ReleaseID = domain.ReleaseID(releaseID)
	report.FleetID = domain.FleetID(fleetID)
	report.Direction = domain.VersionDirection(direction)
	report.State = domain.AttemptState(state)
	report.Canceled = canceled != 0

	if err := json.Unmarshal([]byte(forwardJSON), &report.Forward); err != nil {
		return report, fmt.Errorf("unmarshal forward outcomes: %w", err)
	}
	if err := json.Unmarshal([]byte(rollbackJSON), &report.Rollback); err != nil {
		return report, fmt.Errorf("unmarshal rollback outcomes: %w", err)
	}

	started, err := time.Parse(time.RFC3339Nano, startedAt)
	if err != nil {
		return report, fmt.Errorf("parse started_at: %w", err)
	}
	finished, err := time.Parse(time.RFC3339Nano, finishedAt)
	if err != nil {
		return report, fmt.Errorf("parse finished_at: %w", err)
	}
	report.StartedAt = started
	report.FinishedAt = finished
	return report, nil
}
