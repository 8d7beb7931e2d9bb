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

// ReleaseRepo implements [domain.ReleaseRepository] backed by SQLite.
type ReleaseRepo struct {
	DB *sql.DB
}

func (r *ReleaseRepo) Create(ctx context.Context, release domain.Release) error {
	probe, err := json.Marshal(release.Probe)
	if err != nil {
		return fmt.Errorf("marshal probe policy: %w", err)
	}

	_, err = r.DB.ExecContext(ctx,
		`INSERT INTO releases (id, fleet_id, package, version, probe, backup_enabled, state, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		string(release.ID), string(release.FleetID), release.Package, release.Version,
		string(probe), boolToInt(release.BackupEnabled), string(release.State),
		release.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("release %q: %w", release.ID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("insert release: %w", err)
	}
	return nil
}

func (r *ReleaseRepo) Get(ctx context.Context, id domain.ReleaseID) (domain.Release, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT id, fleet_id, package, version, probe, backup_enabled, state, created_at
		 FROM releases WHERE id = ?`,
		string(id),
	)
	return scanRelease(row)
}

func (r *ReleaseRepo) List(ctx context.Context) ([]domain.Release, error) {
	return r.queryReleases(ctx,
		`SELECT id, fleet_id, package, version, probe, backup_enabled, state, created_at
		 FROM releases ORDER BY created_at DESC`,
	)
}

func (r *ReleaseRepo) ListByFleet(ctx context.Context, fleetID domain.FleetID) ([]domain.Release, error) {
	return r.queryReleases(ctx,
		`SELECT id, fleet_id, package, version, probe, backup_enabled, state, created_at
		 FROM releases WHERE fleet_id = ? ORDER BY created_at DESC`,
		string(fleetID),
	)
}

func (r *ReleaseRepo) queryReleases(ctx context.Context, query string, args ...any) ([]domain.Release, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query releases: %w", err)
	}
	defer rows.Close()

	var releases []domain.Release
	for rows.Next() {
		release, err := scanRelease(rows)
		if err != nil {
			return nil, err
		}
		releases = append(releases, release)
	}
	return releases, rows.Err()
}

func (r *ReleaseRepo) UpdateState(ctx context.Context, id domain.ReleaseID, state domain.ReleaseState) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE releases SET state = ? WHERE id = ?`,
		string(state), string(id),
	)
	if err != nil {
		return fmt.Errorf("update release state: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("release %q: %w", id, domain.ErrNotFound)
	}
	return nil
}

func scanRelease(s scanner) (domain.Release, error) {
	var release domain.Release
	var id, fleetID, probeJSON, stateStr, createdAt string
	var backupEnabled int
	if err := s.Scan(&id, &fleetID, &release.Package, &release.Version,
		&probeJSON, &backupEnabled, &stateStr, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return release, fmt.Errorf("%w", domain.ErrNotFound)
		}
		return release, fmt.Errorf("scan release: %w", err)
	}
	release.ID = domain.ReleaseID(id)
	release.FleetID = domain.FleetID(fleetID)
	release.BackupEnabled = backupEnabled != 0
	release.State = domain.ReleaseState(stateStr)

	if err := json.Unmarshal([]byte(probeJSON), &release.Probe); err != nil {
		return release, fmt.Errorf("unmarshal probe policy: %w", err)
	}
	created, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return release, fmt.Errorf("parse created_at: %w", err)
	}
	release.CreatedAt = created
	return release, nil
}
