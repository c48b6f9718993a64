package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gwi.com/fleet-copilot/internal/lookback"
	"gwi.com/fleet-copilot/internal/telematics"
	"gwi.com/fleet-copilot/internal/utils"
)

const (
	maxEventVehicles    = 5
	maxEventsPerVehicle = 5
	maxEventHours       = 12
	maxEventLimit       = 10
	defaultEventLimit   = 5
)

type GetSafetyEvents struct {
	deps Deps
}

func (*GetSafetyEvents) Name() string { return "GetSafetyEvents" }

func (*GetSafetyEvents) Description() string {
	return "Get the latest safety events of the fleet: harsh braking, harsh acceleration, speeding, driver distraction, collisions, cell phone usage and more. " +
		"Returns vehicle, driver, location with address, camera video and review state of each event."
}

func (*GetSafetyEvents) Parameters() Schema {
	return object(map[string]Property{
		"vehicle_ids":   {Type: "string", Description: "Comma separated vehicle ids, at most 5."},
		"vehicle_names": {Type: "string", Description: "Comma separated vehicle names or numbers, at most 5."},
		"hours_back":    {Type: "integer", Description: "Hours to search back from now. Defaults to 1, at most 12."},
		"limit":         {Type: "integer", Description: "Maximum number of events. Defaults to 5, at most 10."},
		"event_state": {
			Type:        "string",
			Description: "Comma separated review states to filter by.",
			Enum:        []string{"needsReview", "needsCoaching", "dismissed", "coached"},
		},
	})
}

type eventDriver struct {
	Name string `json:"name"`
}

type SafetyEventSummary struct {
	TypeDescription       string       `json:"type_description"`
	EventStateDescription string       `json:"event_state_description,omitempty"`
	Timestamp             string       `json:"timestamp"`
	Location              *Place       `json:"location,omitempty"`
	Driver                *eventDriver `json:"driver,omitempty"`
	VideoURL              string       `json:"video_url,omitempty"`
}

type VehicleEvents struct {
	VehicleID   string               `json:"vehicle_id"`
	VehicleName string               `json:"vehicle_name"`
	Events      []SafetyEventSummary `json:"events"`
}

type period struct {
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

type safetyEventsResult struct {
	TotalEvents      int             `json:"total_events"`
	SearchRangeHours float64         `json:"search_range_hours"`
	Period           period          `json:"period"`
	Events           []VehicleEvents `json:"events"`
	SummaryByType    map[string]int  `json:"summary_by_type,omitempty"`
	SummaryByState   map[string]int  `json:"summary_by_state,omitempty"`
	Message          string          `json:"message,omitempty"`
	Clarifications   *Partial        `json:"clarifications,omitempty"`
	Card             *CardData       `json:"_cardData,omitempty"`
}

func (t *GetSafetyEvents) Invoke(ctx context.Context, raw json.RawMessage) (any, error) {
	a, err := parseArgs(raw)
	if err != nil {
		return nil, err
	}
	sel, early, err := selectVehicles(ctx, t.deps, a.str("vehicle_ids"), a.str("vehicle_names"))
	if err != nil || early != nil {
		return early, err
	}
	ids := sel.IDs
	if len(ids) > maxEventVehicles {
		ids = ids[:maxEventVehicles]
	}
	hours := utils.Clamp(a.integer("hours_back", 1), 1, maxEventHours)
	limit := utils.Clamp(a.integer("limit", defaultEventLimit), 1, maxEventLimit)
	states := utils.SplitCSV(a.str("event_state"))

	window := lookback.Window{Increment: time.Hour, Steps: hours, Clock: t.deps.Clock}
	found, err := lookback.Search(ctx, window, func(ctx context.Context, start, end time.Time) ([]telematics.SafetyEvent, error) {
		return t.deps.API.SafetyEvents(ctx, ids, states, start, end, limit)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch safety events: %w", err)
	}

	rangeMinutes := found.RangeMinutes
	if rangeMinutes == 0 {
		rangeMinutes = 60
	}
	res := safetyEventsResult{
		TotalEvents:      len(found.Data),
		SearchRangeHours: round1(float64(rangeMinutes) / 60),
		Period:           period{Start: formatTime(found.StartTime), End: formatTime(found.EndTime)},
		Events:           []VehicleEvents{},
		Clarifications:   sel.Partial,
	}
	if len(found.Data) == 0 {
		res.Message = "No safety events were found in the requested period."
		return res, nil
	}

	index := map[string]int{}
	res.SummaryByType = map[string]int{}
	res.SummaryByState = map[string]int{}
	for _, e := range found.Data {
		res.SummaryByType[label(eventTypeLabels, e.Type())]++
		state := e.EventState
		if state == "" {
			state = "unknown"
		}
		res.SummaryByState[label(eventStateLabels, state)]++

		id, upstream := "unknown", ""
		if e.Asset != nil {
			id, upstream = e.Asset.ID, e.Asset.Name
		}
		i, ok := index[id]
		if !ok {
			i = len(res.Events)
			index[id] = i
			res.Events = append(res.Events, VehicleEvents{
				VehicleID:   id,
				VehicleName: vehicleName(ctx, t.deps, sel, id, upstream),
				Events:      []SafetyEventSummary{},
			})
		}
		if len(res.Events[i].Events) >= maxEventsPerVehicle {
			continue
		}
		res.Events[i].Events = append(res.Events[i].Events, summarizeEvent(e))
	}

	res.Card = &CardData{Card: SafetyEventsCard{
		TotalEvents:      res.TotalEvents,
		SearchRangeHours: res.SearchRangeHours,
		PeriodStart:      res.Period.Start,
		PeriodEnd:        res.Period.End,
		SummaryByType:    res.SummaryByType,
		SummaryByState:   res.SummaryByState,
		Events:           res.Events,
	}}
	return res, nil
}

func summarizeEvent(e telematics.SafetyEvent) SafetyEventSummary {
	s := SafetyEventSummary{
		TypeDescription: label(eventTypeLabels, e.Type()),
		Timestamp:       e.CreatedAtTime,
		Location:        place(e.Location),
	}
	if e.EventState != "" {
		s.EventStateDescription = label(eventStateLabels, e.EventState)
	}
	if e.Driver != nil && e.Driver.Name != "" {
		s.Driver = &eventDriver{Name: e.Driver.Name}
	}
	if len(e.Media) > 0 {
		s.VideoURL = e.Media[0].URL
	}
	return s
}
