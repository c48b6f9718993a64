package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const vehicleColumns = "samsara_id, name, make, model, year, license_plate, vin, tag_ids_json, data_hash, synced_at"

func scanVehicle(row interface{ Scan(...any) error }) (*Vehicle, error) {
	var (
		v                                   Vehicle
		mk, model, year, plate, vin, tagJSON sql.NullString
	)
	if err := row.Scan(&v.SamsaraID, &v.Name, &mk, &model, &year, &plate, &vin, &tagJSON, &v.DataHash, &v.SyncedAt); err != nil {
		return nil, err
	}
	v.Make, v.Model, v.Year = mk.String, model.String, year.String
	v.LicensePlate, v.VIN = plate.String, vin.String
	if tagJSON.Valid && tagJSON.String != "" {
		if err := json.Unmarshal([]byte(tagJSON.String), &v.TagIDs); err != nil {
			return nil, fmt.Errorf("failed to decode tag ids for vehicle %s: %w", v.SamsaraID, err)
		}
	}
	return &v, nil
}

func (s *SQLiteStore) queryVehicles(ctx context.Context, query string, args ...any) ([]Vehicle, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query vehicles: %w", err)
	}
	defer rows.Close()

	var vehicles []Vehicle
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan vehicle row: %w", err)
		}
		vehicles = append(vehicles, *v)
	}
	return vehicles, rows.Err()
}

// GetVehicleByName returns nil, nil when no vehicle has exactly this name.
func (s *SQLiteStore) GetVehicleByName(ctx context.Context, name string) (*Vehicle, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+vehicleColumns+" FROM vehicles WHERE name = ? ORDER BY samsara_id LIMIT 1", name)
	v, err := scanVehicle(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get vehicle by name: %w", err)
	}
	return v, nil
}

// GetVehicleByID returns nil, nil when the id is unknown.
func (s *SQLiteStore) GetVehicleByID(ctx context.Context, id string) (*Vehicle, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+vehicleColumns+" FROM vehicles WHERE samsara_id = ?", id)
	v, err := scanVehicle(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get vehicle: %w", err)
	}
	return v, nil
}

// VehiclesContaining is a case-sensitive substring match ordered by name.
func (s *SQLiteStore) VehiclesContaining(ctx context.Context, term string, limit int) ([]Vehicle, error) {
	return s.queryVehicles(ctx,
		"SELECT "+vehicleColumns+" FROM vehicles WHERE instr(name, ?) > 0 ORDER BY name ASC LIMIT ?",
		term, limit)
}

// ListVehicles applies the filter and also returns the unpaged match count.
func (s *SQLiteStore) ListVehicles(ctx context.Context, f VehicleFilter) ([]Vehicle, int, error) {
	var (
		where []string
		args  []any
	)
	if f.Search != "" {
		where = append(where, "(instr(lower(name), lower(?)) > 0 OR instr(lower(coalesce(license_plate, '')), lower(?)) > 0)")
		args = append(args, f.Search, f.Search)
	}
	if f.IDs != nil {
		if len(f.IDs) == 0 {
			return nil, 0, nil
		}
		where = append(where, "samsara_id IN (?"+strings.Repeat(", ?", len(f.IDs)-1)+")")
		for _, id := range f.IDs {
			args = append(args, id)
		}
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM vehicles"+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count vehicles: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	vehicles, err := s.queryVehicles(ctx, "SELECT "+vehicleColumns+" FROM vehicles"+clause+" ORDER BY name ASC LIMIT ?", append(args, limit)...)
	if err != nil {
		return nil, 0, err
	}
	return vehicles, total, nil
}

// GetVehicleHash returns the stored data hash, or "" for an unknown vehicle.
func (s *SQLiteStore) GetVehicleHash(ctx context.Context, id string) (string, error) {
	var hash string
	err := s.db.QueryRowContext(ctx, "SELECT data_hash FROM vehicles WHERE samsara_id = ?", id).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get vehicle hash: %w", err)
	}
	return hash, nil
}

func (s *SQLiteStore) UpsertVehicle(ctx context.Context, v *Vehicle) error {
	tagJSON, err := json.Marshal(v.TagIDs)
	if err != nil {
		return fmt.Errorf("failed to encode tag ids: %w", err)
	}
	if v.SyncedAt.IsZero() {
		v.SyncedAt = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx, `
        INSERT INTO vehicles (`+vehicleColumns+`)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(samsara_id) DO UPDATE SET
            name = excluded.name,
            make = excluded.make,
            model = excluded.model,
            year = excluded.year,
            license_plate = excluded.license_plate,
            vin = excluded.vin,
            tag_ids_json = excluded.tag_ids_json,
            data_hash = excluded.data_hash,
            synced_at = excluded.synced_at`,
		v.SamsaraID, v.Name, v.Make, v.Model, v.Year, v.LicensePlate, v.VIN, string(tagJSON), v.DataHash, v.SyncedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert vehicle %s: %w", v.SamsaraID, err)
	}
	return nil
}

func (s *SQLiteStore) CountVehicles(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM vehicles").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count vehicles: %w", err)
	}
	return n, nil
}
