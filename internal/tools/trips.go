package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gwi.com/fleet-copilot/internal/store"
	"gwi.com/fleet-copilot/internal/telematics"
	"gwi.com/fleet-copilot/internal/utils"
)

const (
	maxTripVehicles    = 5
	maxTripsPerVehicle = 5
	defaultTripHours   = 24
	maxTripHours       = 72
	defaultTripLimit   = 5
	maxTripLimit       = 10
)

type GetTrips struct {
	deps Deps
}

func (*GetTrips) Name() string { return "GetTrips" }

func (*GetTrips) Description() string {
	return "Get the recent trips of one or more vehicles with start and end time, duration, start and end location and completion status."
}

func (*GetTrips) Parameters() Schema {
	return object(map[string]Property{
		"vehicle_ids":   {Type: "string", Description: "Comma separated vehicle ids, at most 5."},
		"vehicle_names": {Type: "string", Description: "Comma separated vehicle names or numbers, at most 5."},
		"hours_back":    {Type: "integer", Description: "Hours to search back from now. Defaults to 24, at most 72."},
		"limit":         {Type: "integer", Description: "Maximum number of trips. Defaults to 5, at most 10."},
	})
}

type TripSummary struct {
	StatusDescription string `json:"status_description"`
	TripStartTime     string `json:"trip_start_time,omitempty"`
	TripEndTime       string `json:"trip_end_time,omitempty"`
	DurationFormatted string `json:"duration_formatted,omitempty"`
	StartLocation     *Place `json:"start_location"`
	EndLocation       *Place `json:"end_location"`
}

type VehicleTrips struct {
	VehicleID              string        `json:"vehicle_id"`
	VehicleName            string        `json:"vehicle_name"`
	VehicleTypeDescription string        `json:"vehicle_type_description"`
	TripCount              int           `json:"trip_count"`
	Trips                  []TripSummary `json:"trips"`
}

type tripsResult struct {
	TotalTrips       int            `json:"total_trips"`
	SearchRangeHours int            `json:"search_range_hours"`
	Period           period         `json:"period"`
	Trips            []VehicleTrips `json:"trips"`
	SummaryByStatus  map[string]int `json:"summary_by_status,omitempty"`
	SummaryByVehicle map[string]int `json:"summary_by_vehicle,omitempty"`
	Message          string         `json:"message,omitempty"`
	Clarifications   *Partial       `json:"clarifications,omitempty"`
	Card             *CardData      `json:"_cardData,omitempty"`
}

func (t *GetTrips) Invoke(ctx context.Context, raw json.RawMessage) (any, error) {
	a, err := parseArgs(raw)
	if err != nil {
		return nil, err
	}
	sel, early, err := selectVehicles(ctx, t.deps, a.str("vehicle_ids"), a.str("vehicle_names"))
	if err != nil || early != nil {
		return early, err
	}
	if len(sel.IDs) == 0 {
		vehicles, _, err := t.deps.Vehicles.ListVehicles(ctx, store.VehicleFilter{Limit: maxTripVehicles})
		if err != nil {
			return nil, err
		}
		if len(vehicles) == 0 {
			return Failure("No vehicles registered"), nil
		}
		for _, v := range vehicles {
			sel.IDs = append(sel.IDs, v.SamsaraID)
			sel.Names[v.SamsaraID] = v.Name
		}
	}
	ids := sel.IDs
	if len(ids) > maxTripVehicles {
		ids = ids[:maxTripVehicles]
	}
	hours := utils.Clamp(a.integer("hours_back", defaultTripHours), 1, maxTripHours)
	limit := utils.Clamp(a.integer("limit", defaultTripLimit), 1, maxTripLimit)

	end := t.deps.Clock.Now().UTC()
	start := end.Add(-time.Duration(hours) * time.Hour)
	trips, err := t.deps.API.Trips(ctx, ids, start, end, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch trips: %w", err)
	}

	res := tripsResult{
		TotalTrips:       len(trips),
		SearchRangeHours: hours,
		Period:           period{Start: formatTime(start), End: formatTime(end)},
		Trips:            []VehicleTrips{},
		Clarifications:   sel.Partial,
	}
	if len(trips) == 0 {
		res.Message = "No trips were found in the requested period."
		return res, nil
	}

	index := map[string]int{}
	res.SummaryByStatus = map[string]int{}
	for _, tr := range trips {
		status := tr.CompletionStatus
		if status == "" {
			status = "unknown"
		}
		res.SummaryByStatus[label(tripStatusLabels, status)]++

		id := tr.Asset.ID
		if id == "" {
			id = "unknown"
		}
		i, ok := index[id]
		if !ok {
			assetType := tr.Asset.Type
			if assetType == "" {
				assetType = "vehicle"
			}
			i = len(res.Trips)
			index[id] = i
			res.Trips = append(res.Trips, VehicleTrips{
				VehicleID:              id,
				VehicleName:            vehicleName(ctx, t.deps, sel, id, tr.Asset.Name),
				VehicleTypeDescription: label(assetTypeLabels, assetType),
				Trips:                  []TripSummary{},
			})
		}
		if len(res.Trips[i].Trips) >= maxTripsPerVehicle {
			continue
		}
		res.Trips[i].Trips = append(res.Trips[i].Trips, summarizeTrip(tr, status))
		res.Trips[i].TripCount++
	}

	res.SummaryByVehicle = map[string]int{}
	for _, v := range res.Trips {
		res.SummaryByVehicle[v.VehicleName] = v.TripCount
	}
	res.Card = &CardData{Card: TripsCard{
		TotalTrips:       res.TotalTrips,
		SearchRangeHours: res.SearchRangeHours,
		PeriodStart:      res.Period.Start,
		PeriodEnd:        res.Period.End,
		SummaryByStatus:  res.SummaryByStatus,
		SummaryByVehicle: res.SummaryByVehicle,
		Trips:            res.Trips,
	}}
	return res, nil
}

func summarizeTrip(tr telematics.Trip, status string) TripSummary {
	s := TripSummary{
		StatusDescription: label(tripStatusLabels, status),
		TripStartTime:     tr.TripStartTime,
		TripEndTime:       tr.TripEndTime,
		StartLocation:     place(tr.StartLocation),
		EndLocation:       place(tr.EndLocation),
	}
	if tr.TripStartTime != "" && tr.TripEndTime != "" {
		start, errStart := time.Parse(time.RFC3339, tr.TripStartTime)
		end, errEnd := time.Parse(time.RFC3339, tr.TripEndTime)
		if errStart == nil && errEnd == nil && !end.Before(start) {
			s.DurationFormatted = formatDuration(int(end.Sub(start) / time.Minute))
		}
	}
	return s
}
