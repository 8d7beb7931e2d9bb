package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/f4biogr/rollout/internal/domain"
)

// FleetRepo implements [domain.FleetRepository] backed by SQLite.
type FleetRepo struct {
	DB *sql.DB
}

func (r *FleetRepo) Create(ctx context.Context, fleet domain.Fleet) error {
	hosts, err := json.Marshal(fleet.Hosts)
	if err != nil {
		return fmt.Errorf("marshal hosts: %w", err)
	}

	_, err = r.DB.ExecContext(ctx,
		`INSERT INTO fleets (id, name, environment, hosts) VALUES (?, ?, ?, ?)`,
		string(fleet.ID), fleet.Name, fleet.Environment, string(hosts),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("fleet %q: %w", fleet.ID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("insert fleet: %w", err)
	}
	return nil
}

func (r *FleetRepo) Get(ctx context.Context, id domain.FleetID) (domain.Fleet, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT id, name, environment, hosts FROM fleets WHERE id = ?`,
		string(id),
	)
	return scanFleet(row)
}

func (r *FleetRepo) List(ctx context.Context) ([]domain.Fleet, error) {
	return r.queryFleets(ctx, `SELECT id, name, environment, hosts FROM fleets ORDER BY id`)
}

func (r *FleetRepo) FindByEnvironment(ctx context.Context, environment string) ([]domain.Fleet, error) {
	return r.queryFleets(ctx,
		`SELECT id, name, environment, hosts FROM fleets WHERE environment = ? ORDER BY id`,
		environment,
	)
}

func (r *FleetRepo) queryFleets(ctx context.Context, query string, args ...any) ([]domain.Fleet, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query fleets: %w", err)
	}
	defer rows.Close()

	var fleets []domain.Fleet
	for rows.Next() {
		fleet, err := scanFleet(rows)
		if err != nil {
			return nil, err
		}
		fleets = append(fleets, fleet)
	}
	return fleets, rows.Err()
}

func (r *FleetRepo) Delete(ctx context.Context, id domain.FleetID) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM fleets WHERE id = ?`, string(id))
	if err != nil {
		return fmt.Errorf("delete fleet: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("fleet %q: %w", id, domain.ErrNotFound)
	}
	return nil
}

func scanFleet(s scanner) (domain.Fleet, error) {
	var fleet domain.Fleet
	var id, hostsJSON string
	if err := s.Scan(&id, &fleet.Name, &fleet.Environment, &hostsJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fleet, fmt.Errorf("%w", domain.ErrNotFound)
		}
		return fleet, fmt.Errorf("scan fleet: %w", err)
	}
	fleet.ID = domain.FleetID(id)
	if err := json.Unmarshal([]byte(hostsJSON), &fleet.Hosts); err != nil {
		return fleet, fmt.Errorf("unmarshal hosts: %w", err)
	}
	return fleet, nil
}
