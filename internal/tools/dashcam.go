package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"gwi.com/fleet-copilot/internal/lookback"
	"gwi.com/fleet-copilot/internal/media"
	"gwi.com/fleet-copilot/internal/telematics"
	"gwi.com/fleet-copilot/internal/utils"
)

const (
	mediaIncrement       = 5 * time.Minute
	mediaStepCeiling     = 288
	defaultMediaMinutes  = 60
	maxMediaMinutes      = 24 * 60
	noMediaFoundMessage  = "No images or videos were found in the searched range. The dashcams may not have captured media recently, or the vehicles may not have dashcams installed."
	dashcamRenderingHint = "Render the dashcam images with the dashcamMedia block using _cardData."
)

var defaultMediaInputs = []string{"dashcamRoadFacing", "dashcamDriverFacing"}

type GetDashcamMedia struct {
	deps Deps
}

func (*GetDashcamMedia) Name() string { return "GetDashcamMedia" }

func (*GetDashcamMedia) Description() string {
	return "Get recent dashcam images and videos of one or more vehicles, from the road facing and the driver facing cameras. " +
		"Searches backward in time automatically until the most recent media is found."
}

func (*GetDashcamMedia) Parameters() Schema {
	return object(map[string]Property{
		"vehicle_ids":        {Type: "string", Description: "Comma separated vehicle ids."},
		"vehicle_names":      {Type: "string", Description: "Comma separated vehicle names or numbers, e.g. \"Truck 1, TR-601\"."},
		"media_types":        {Type: "string", Description: "Comma separated cameras: dashcamRoadFacing, dashcamDriverFacing. Defaults to both."},
		"max_search_minutes": {Type: "integer", Description: "How far back to search, in minutes. Defaults to 60, at most 1440."},
	})
}

type searchInfo struct {
	Attempts     int    `json:"attempts"`
	RangeMinutes int    `json:"range_minutes"`
	StartTime    string `json:"start_time,omitempty"`
	EndTime      string `json:"end_time,omitempty"`
}

type vehicleMedia struct {
	VehicleID   string                       `json:"vehicleId"`
	VehicleName string                       `json:"vehicleName"`
	TotalItems  int                          `json:"totalItems"`
	ByType      map[string][]media.Persisted `json:"byType"`
	Card        CardData                     `json:"_cardData"`
}

type dashcamResult struct {
	Found          bool           `json:"found"`
	SearchInfo     searchInfo     `json:"search_info"`
	TotalMedia     int            `json:"total_media"`
	Media          []vehicleMedia `json:"media"`
	Message        string         `json:"message,omitempty"`
	Hint           string         `json:"_hint,omitempty"`
	Clarifications *Partial       `json:"clarifications,omitempty"`
}

func (t *GetDashcamMedia) Invoke(ctx context.Context, raw json.RawMessage) (any, error) {
	a, err := parseArgs(raw)
	if err != nil {
		return nil, err
	}
	idsCSV, namesCSV := a.str("vehicle_ids"), a.str("vehicle_names")
	if idsCSV == "" && namesCSV == "" {
		return Failure("Provide vehicle_ids or vehicle_names."), nil
	}
	sel, early, err := selectVehicles(ctx, t.deps, idsCSV, namesCSV)
	if err != nil || early != nil {
		return early, err
	}

	inputs := mediaInputs(a.str("media_types"))
	minutes := utils.Clamp(a.integer("max_search_minutes", defaultMediaMinutes), 1, maxMediaMinutes)
	window := lookback.Window{
		Increment: mediaIncrement,
		Steps:     lookback.Steps(time.Duration(minutes)*time.Minute, mediaIncrement, mediaStepCeiling),
		Clock:     t.deps.Clock,
	}
	found, err := lookback.Search(ctx, window, func(ctx context.Context, start, end time.Time) ([]telematics.Media, error) {
		return t.deps.API.DashcamMedia(ctx, sel.IDs, inputs, start, end)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch dashcam media: %w", err)
	}

	res := dashcamResult{
		Found: found.Found,
		SearchInfo: searchInfo{
			Attempts:     found.Attempts,
			RangeMinutes: found.RangeMinutes,
			StartTime:    formatTime(found.StartTime),
			EndTime:      formatTime(found.EndTime),
		},
		TotalMedia:     len(found.Data),
		Media:          []vehicleMedia{},
		Clarifications: sel.Partial,
	}
	if len(found.Data) == 0 {
		res.Message = noMediaFoundMessage
		return res, nil
	}

	var order []string
	byVehicle := map[string][]media.Item{}
	for _, m := range found.Data {
		id := m.VehicleID
		if id == "" {
			id = "unknown"
		}
		if _, ok := byVehicle[id]; !ok {
			order = append(order, id)
		}
		byVehicle[id] = append(byVehicle[id], media.Item{
			VehicleID:     id,
			Input:         m.Input,
			MediaType:     m.MediaType,
			CapturedAt:    m.StartTime,
			URL:           m.URLInfo.URL,
			TriggerReason: m.TriggerReason,
		})
	}

	for _, id := range order {
		items := t.deps.Media.PersistAll(ctx, byVehicle[id])
		sortNewestFirst(items)

		byType := map[string][]media.Persisted{}
		for _, p := range items {
			byType[p.Type] = append(byType[p.Type], p)
		}
		name := vehicleName(ctx, t.deps, sel, id, "")
		res.Media = append(res.Media, vehicleMedia{
			VehicleID:   id,
			VehicleName: name,
			TotalItems:  len(items),
			ByType:      byType,
			Card:        CardData{Card: dashcamCard(id, name, items)},
		})
	}
	res.Hint = dashcamRenderingHint
	return res, nil
}

func mediaInputs(csv string) []string {
	var out []string
	for _, s := range utils.SplitCSV(csv) {
		if media.KnownInput(s) {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return slices.Clone(defaultMediaInputs)
	}
	return utils.Unique(out)
}

func sortNewestFirst(items []media.Persisted) {
	slices.SortStableFunc(items, func(a, b media.Persisted) int {
		return parseTime(b.Timestamp).Compare(parseTime(a.Timestamp))
	})
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
