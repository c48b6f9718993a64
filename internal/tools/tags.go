package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gwi.com/fleet-copilot/internal/catalog"
	"gwi.com/fleet-copilot/internal/store"
)

const (
	defaultTagLimit = 50
	maxTagVehicles  = 10
)

type GetTags struct {
	deps Deps
}

func (*GetTags) Name() string { return "GetTags" }

func (*GetTags) Description() string {
	return "List the tags that organize the fleet into groups, with their vehicles, drivers and assets. " +
		"Tags form a hierarchy; use include_hierarchy to see parents, children and the full path."
}

func (*GetTags) Parameters() Schema {
	return object(map[string]Property{
		"force_sync":        {Type: "boolean", Description: "Refresh tags from the telematics platform first. Only when the user asks for fresh data."},
		"search":            {Type: "string", Description: "Only tags whose name contains this text."},
		"limit":             {Type: "integer", Description: "Maximum tags to list. Defaults to 50."},
		"include_hierarchy": {Type: "boolean", Description: "Include parent, children and hierarchy path of each tag."},
		"with_vehicles":     {Type: "boolean", Description: "Only tags that have vehicles."},
	})
}

type tagRow struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	ParentTagID   *string           `json:"parent_tag_id"`
	VehicleCount  int               `json:"vehicle_count"`
	DriverCount   int               `json:"driver_count"`
	AssetCount    int               `json:"asset_count"`
	Vehicles      []store.TagMember `json:"vehicles,omitempty"`
	VehiclesNote  string            `json:"vehicles_note,omitempty"`
	Parent        *store.TagMember  `json:"parent,omitempty"`
	Children      []store.TagMember `json:"children,omitempty"`
	HierarchyPath []string          `json:"hierarchy_path,omitempty"`
	HierarchyNote string            `json:"hierarchy_note,omitempty"`
}

type tagsResult struct {
	TotalTags  int              `json:"total_tags"`
	SyncStatus string           `json:"sync_status"`
	Showing    int              `json:"showing"`
	Limit      int              `json:"limit"`
	Tags       []tagRow         `json:"tags"`
	Note       string           `json:"note,omitempty"`
	Summary    store.TagSummary `json:"summary"`
}

func (t *GetTags) Invoke(ctx context.Context, raw json.RawMessage) (any, error) {
	a, err := parseArgs(raw)
	if err != nil {
		return nil, err
	}
	d := t.deps
	limit := a.integer("limit", defaultTagLimit)
	if limit < 1 {
		limit = defaultTagLimit
	}

	res := tagsResult{Limit: limit, Tags: []tagRow{}}
	synced, sr, err := d.Tags.EnsureFresh(ctx, a.boolean("force_sync"))
	switch {
	case err != nil:
		d.Logger.Warn("tag sync failed, serving local tags", "error", err)
		res.SyncStatus = fmt.Sprintf("Sync failed: %v", err)
	case synced:
		res.SyncStatus = sr.String()
	default:
		res.SyncStatus = fmt.Sprintf("Cached data (last sync: %s)", t.lastSync())
	}

	tags, total, err := d.Tags.Search(ctx, store.TagFilter{
		Search:       a.str("search"),
		WithVehicles: a.boolean("with_vehicles"),
		Limit:        limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	res.TotalTags = total
	res.Showing = len(tags)

	hierarchy := a.boolean("include_hierarchy")
	for _, tag := range tags {
		row, err := t.row(ctx, tag, hierarchy)
		if err != nil {
			return nil, err
		}
		res.Tags = append(res.Tags, row)
	}
	if total > limit {
		res.Note = fmt.Sprintf("Showing %d of %d tags. Use limit to see more or search to filter.", limit, total)
	}

	if res.Summary, err = d.Tags.Summary(ctx); err != nil {
		return nil, fmt.Errorf("failed to summarize tags: %w", err)
	}
	return res, nil
}

func (t *GetTags) row(ctx context.Context, tag store.Tag, hierarchy bool) (tagRow, error) {
	row := tagRow{
		ID:           tag.SamsaraID,
		Name:         tag.Name,
		VehicleCount: len(tag.Vehicles),
		DriverCount:  len(tag.Drivers),
		AssetCount:   len(tag.Assets),
	}
	if !tag.IsRoot() {
		parent := tag.ParentTagID
		row.ParentTagID = &parent
	}
	if n := len(tag.Vehicles); n > 0 {
		row.Vehicles = tag.Vehicles[:min(n, maxTagVehicles)]
		if n > maxTagVehicles {
			row.VehiclesNote = fmt.Sprintf("Showing %d of %d vehicles", maxTagVehicles, n)
		}
	}
	if !hierarchy {
		return row, nil
	}

	if !tag.IsRoot() {
		parent, err := t.deps.Tags.Get(ctx, tag.ParentTagID)
		if err != nil {
			return row, err
		}
		if parent != nil {
			row.Parent = &store.TagMember{ID: parent.SamsaraID, Name: parent.Name}
		}
	}
	children, err := t.deps.Tags.Children(ctx, tag.SamsaraID)
	if err != nil {
		return row, err
	}
	for _, c := range children {
		row.Children = append(row.Children, store.TagMember{ID: c.SamsaraID, Name: c.Name})
	}

	path, err := t.deps.Tags.HierarchyPath(ctx, tag)
	switch {
	case errors.Is(err, catalog.ErrHierarchyCycle):
		t.deps.Logger.Warn("tag hierarchy contains a cycle", "tag_id", tag.SamsaraID)
		row.HierarchyNote = "The tag hierarchy contains a cycle; the path is incomplete."
	case err != nil:
		return row, err
	}
	row.HierarchyPath = path
	return row, nil
}

func (t *GetTags) lastSync() string {
	at, ok := t.deps.Tags.LastSync()
	if !ok {
		return "never"
	}
	ago := t.deps.Clock.Now().Sub(at).Round(time.Second)
	return fmt.Sprintf("%s ago", ago)
}
