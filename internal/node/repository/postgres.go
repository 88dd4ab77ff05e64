package repository

import (
	"context"
	"database/sql"
	"errors"

	"bb-mesh-service/internal/node/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a node repository that uses the given db for
// persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByID returns the record for nodeID, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, nodeID uint32) (*domain.NodeRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT node_id, shortname, longname, latitude, longitude,
		       last_known_voltage, last_known_battery_percent,
		       last_seen_battery, last_seen_location, last_seen
		FROM mesh_nodes WHERE node_id = $1`, int64(nodeID))
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

// ListAll returns every stored record.
func (r *PostgresRepository) ListAll(ctx context.Context) ([]*domain.NodeRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT node_id, shortname, longname, latitude, longitude,
		       last_known_voltage, last_known_battery_percent,
		       last_seen_battery, last_seen_location, last_seen
		FROM mesh_nodes ORDER BY node_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.NodeRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Upsert writes the full record, inserting or overwriting by node id.
func (r *PostgresRepository) Upsert(ctx context.Context, rec *domain.NodeRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO mesh_nodes (
			node_id, shortname, longname, latitude, longitude,
			last_known_voltage, last_known_battery_percent,
			last_seen_battery, last_seen_location, last_seen
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (node_id) DO UPDATE SET
			shortname = EXCLUDED.shortname,
			longname = EXCLUDED.longname,
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			last_known_voltage = EXCLUDED.last_known_voltage,
			last_known_battery_percent = EXCLUDED.last_known_battery_percent,
			last_seen_battery = EXCLUDED.last_seen_battery,
			last_seen_location = EXCLUDED.last_seen_location,
			last_seen = EXCLUDED.last_seen`,
		int64(rec.NodeID), rec.Shortname, rec.Longname, rec.Latitude, rec.Longitude,
		rec.LastKnownVoltage, rec.LastKnownBatteryPercent,
		rec.LastSeenBattery, rec.LastSeenLocation, rec.LastSeen)
	return err
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*domain.NodeRecord, error) {
	var (
		nodeID int64
		rec    domain.NodeRecord
	)
	if err := s.Scan(&nodeID, &rec.Shortname, &rec.Longname, &rec.Latitude, &rec.Longitude,
		&rec.LastKnownVoltage, &rec.LastKnownBatteryPercent,
		&rec.LastSeenBattery, &rec.LastSeenLocation, &rec.LastSeen); err != nil {
		return nil, err
	}
	rec.NodeID = uint32(nodeID)
	return &rec, nil
}
