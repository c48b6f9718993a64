package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"gwi.com/fleet-copilot/internal/store"
	"gwi.com/fleet-copilot/internal/utils"
)

const defaultVehicleLimit = 20

type GetVehicles struct {
	deps Deps
}

func (*GetVehicles) Name() string { return "GetVehicles" }

func (*GetVehicles) Description() string {
	return "List the vehicles of the fleet with make, model, year and license plate. " +
		"Use summary_only for counts, search for a name or plate, and tag_name or tag_ids to list the vehicles of a group."
}

func (*GetVehicles) Parameters() Schema {
	return object(map[string]Property{
		"search":       {Type: "string", Description: "Case-insensitive text matched against vehicle name and license plate."},
		"tag_name":     {Type: "string", Description: "Only vehicles belonging to tags whose name contains this text."},
		"tag_ids":      {Type: "string", Description: "Comma separated tag ids whose vehicles should be listed."},
		"summary_only": {Type: "boolean", Description: "Return only the vehicle count. Defaults to false."},
		"limit":        {Type: "integer", Description: "Maximum vehicles to list. Defaults to 20."},
		"force_sync":   {Type: "boolean", Description: "Refresh the vehicle directory first. Only when the user asks for fresh data."},
	})
}

type vehicleRow struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Make         string `json:"make,omitempty"`
	Model        string `json:"model,omitempty"`
	Year         string `json:"year,omitempty"`
	LicensePlate string `json:"license_plate,omitempty"`
}

type vehiclesResult struct {
	TotalVehicles int          `json:"total_vehicles"`
	Showing       *int         `json:"showing,omitempty"`
	Vehicles      []vehicleRow `json:"vehicles,omitempty"`
	Tags          []string     `json:"tags,omitempty"`
	SyncStatus    string       `json:"sync_status,omitempty"`
	Note          string       `json:"note,omitempty"`
}

func (t *GetVehicles) Invoke(ctx context.Context, raw json.RawMessage) (any, error) {
	a, err := parseArgs(raw)
	if err != nil {
		return nil, err
	}
	d := t.deps
	var res vehiclesResult

	if d.Fleet != nil {
		synced, sr, err := d.Fleet.EnsureFresh(ctx, a.boolean("force_sync"))
		switch {
		case err != nil:
			d.Logger.Warn("vehicle sync failed, serving local directory", "error", err)
			res.SyncStatus = "Sync failed, showing cached data."
		case synced:
			res.SyncStatus = sr.String()
		}
	}

	filter := store.VehicleFilter{Search: a.str("search")}
	if tagName, tagIDs := a.str("tag_name"), utils.SplitCSV(a.str("tag_ids")); tagName != "" || len(tagIDs) > 0 {
		ids, names, err := t.tagVehicles(ctx, tagName, tagIDs)
		if err != nil {
			return nil, err
		}
		if len(names) == 0 {
			return Failure(fmt.Sprintf("No tags found matching %q.", tagName+a.str("tag_ids"))), nil
		}
		filter.IDs = ids
		res.Tags = names
	}

	if a.boolean("summary_only") {
		_, total, err := d.Vehicles.ListVehicles(ctx, store.VehicleFilter{Search: filter.Search, IDs: filter.IDs, Limit: 1})
		if err != nil {
			return nil, err
		}
		res.TotalVehicles = total
		return res, nil
	}

	filter.Limit = utils.Clamp(a.integer("limit", defaultVehicleLimit), 1, 500)
	vehicles, total, err := d.Vehicles.ListVehicles(ctx, filter)
	if err != nil {
		return nil, err
	}
	res.TotalVehicles = total
	res.Vehicles = make([]vehicleRow, 0, len(vehicles))
	for _, v := range vehicles {
		res.Vehicles = append(res.Vehicles, vehicleRow{
			ID: v.SamsaraID, Name: v.Name, Make: v.Make, Model: v.Model, Year: v.Year, LicensePlate: v.LicensePlate,
		})
	}
	showing := len(res.Vehicles)
	res.Showing = &showing
	if total > showing {
		res.Note = fmt.Sprintf("Showing %d of %d vehicles. Use limit or search to see others.", showing, total)
	}
	return res, nil
}

// tagVehicles collects the vehicle ids of the matching tags.
func (t *GetVehicles) tagVehicles(ctx context.Context, tagName string, tagIDs []string) ([]string, []string, error) {
	var tags []store.Tag
	if tagName != "" {
		found, _, err := t.deps.Tags.Search(ctx, store.TagFilter{Search: tagName})
		if err != nil {
			return nil, nil, err
		}
		tags = append(tags, found...)
	}
	for _, id := range tagIDs {
		tag, err := t.deps.Tags.Get(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		if tag != nil {
			tags = append(tags, *tag)
		}
	}

	ids := []string{}
	var names []string
	for _, tag := range tags {
		names = append(names, tag.Name)
		for _, v := range tag.Vehicles {
			ids = append(ids, v.ID)
		}
	}
	return utils.Unique(ids), utils.Unique(names), nil
}
