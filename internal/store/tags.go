package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const tagColumns = "samsara_id, name, parent_tag_id, vehicles_json, drivers_json, assets_json, data_hash, updated_at"

func scanTag(row interface{ Scan(...any) error }) (*Tag, error) {
	var (
		t                         Tag
		parent                    sql.NullString
		vehicles, drivers, assets sql.NullString
	)
	if err := row.Scan(&t.SamsaraID, &t.Name, &parent, &vehicles, &drivers, &assets, &t.DataHash, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.ParentTagID = parent.String
	for _, m := range []struct {
		raw sql.NullString
		dst *[]TagMember
	}{{vehicles, &t.Vehicles}, {drivers, &t.Drivers}, {assets, &t.Assets}} {
		if !m.raw.Valid || m.raw.String == "" {
			continue
		}
		if err := json.Unmarshal([]byte(m.raw.String), m.dst); err != nil {
			return nil, fmt.Errorf("failed to decode members of tag %s: %w", t.SamsaraID, err)
		}
	}
	return &t, nil
}

func (s *SQLiteStore) queryTags(ctx context.Context, query string, args ...any) ([]Tag, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tags: %w", err)
	}
	defer rows.Close()

	var tags []Tag
	for rows.Next() {
		t, err := scanTag(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tag row: %w", err)
		}
		tags = append(tags, *t)
	}
	return tags, rows.Err()
}

// GetTagByID returns nil, nil when the tag is unknown.
func (s *SQLiteStore) GetTagByID(ctx context.Context, id string) (*Tag, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+tagColumns+" FROM tags WHERE samsara_id = ?", id)
	t, err := scanTag(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get tag: %w", err)
	}
	return t, nil
}

func (s *SQLiteStore) GetTagHash(ctx context.Context, id string) (string, error) {
	var hash string
	err := s.db.QueryRowContext(ctx, "SELECT data_hash FROM tags WHERE samsara_id = ?", id).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get tag hash: %w", err)
	}
	return hash, nil
}

func (s *SQLiteStore) UpsertTag(ctx context.Context, t *Tag) error {
	encode := func(m []TagMember) (string, error) {
		if m == nil {
			m = []TagMember{}
		}
		b, err := json.Marshal(m)
		return string(b), err
	}
	vehicles, err := encode(t.Vehicles)
	if err != nil {
		return fmt.Errorf("failed to encode tag vehicles: %w", err)
	}
	drivers, err := encode(t.Drivers)
	if err != nil {
		return fmt.Errorf("failed to encode tag drivers: %w", err)
	}
	assets, err := encode(t.Assets)
	if err != nil {
		return fmt.Errorf("failed to encode tag assets: %w", err)
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = time.Now().UTC()
	}
	parent := sql.NullString{String: t.ParentTagID, Valid: t.ParentTagID != ""}

	_, err = s.db.ExecContext(ctx, `
        INSERT INTO tags (`+tagColumns+`, vehicle_count, driver_count, asset_count)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(samsara_id) DO UPDATE SET
            name = excluded.name,
            parent_tag_id = excluded.parent_tag_id,
            vehicles_json = excluded.vehicles_json,
            drivers_json = excluded.drivers_json,
            assets_json = excluded.assets_json,
            data_hash = excluded.data_hash,
            updated_at = excluded.updated_at,
            vehicle_count = excluded.vehicle_count,
            driver_count = excluded.driver_count,
            asset_count = excluded.asset_count`,
		t.SamsaraID, t.Name, parent, vehicles, drivers, assets, t.DataHash, t.UpdatedAt,
		len(t.Vehicles), len(t.Drivers), len(t.Assets))
	if err != nil {
		return fmt.Errorf("failed to upsert tag %s: %w", t.SamsaraID, err)
	}
	return nil
}

// ListTags returns tags ordered by name plus the unpaged match count.
func (s *SQLiteStore) ListTags(ctx context.Context, f TagFilter) ([]Tag, int, error) {
	var (
		where []string
		args  []any
	)
	if f.Search != "" {
		where = append(where, "instr(lower(name), lower(?)) > 0")
		args = append(args, f.Search)
	}
	if f.WithVehicles {
		where = append(where, "vehicle_count > 0")
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tags"+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count tags: %w", err)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = -1
	}
	tags, err := s.queryTags(ctx, "SELECT "+tagColumns+" FROM tags"+clause+" ORDER BY name ASC LIMIT ?", append(args, limit)...)
	if err != nil {
		return nil, 0, err
	}
	return tags, total, nil
}

func (s *SQLiteStore) GetTagChildren(ctx context.Context, parentID string) ([]Tag, error) {
	return s.queryTags(ctx, "SELECT "+tagColumns+" FROM tags WHERE parent_tag_id = ? ORDER BY name ASC", parentID)
}

func (s *SQLiteStore) GetTagSummary(ctx context.Context) (TagSummary, error) {
	var sum TagSummary
	err := s.db.QueryRowContext(ctx, `
        SELECT
            COUNT(*),
            COALESCE(SUM(CASE WHEN parent_tag_id IS NULL THEN 1 ELSE 0 END), 0),
            COALESCE(SUM(CASE WHEN parent_tag_id IS NOT NULL THEN 1 ELSE 0 END), 0),
            COALESCE(SUM(CASE WHEN vehicle_count > 0 THEN 1 ELSE 0 END), 0),
            COALESCE(SUM(CASE WHEN driver_count > 0 THEN 1 ELSE 0 END), 0)
        FROM tags`).Scan(&sum.TotalTags, &sum.RootTags, &sum.ChildTags, &sum.TagsWithVehicles, &sum.TagsWithDrivers)
	if err != nil {
		return TagSummary{}, fmt.Errorf("failed to summarize tags: %w", err)
	}
	return sum, nil
}
