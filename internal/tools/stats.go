package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"gwi.com/fleet-copilot/internal/telematics"
	"gwi.com/fleet-copilot/internal/utils"
)

var (
	defaultStatTypes = []string{"gps", "engineStates", "fuelPercents"}
	knownStatTypes   = []string{"gps", "engineStates", "fuelPercents", "obdOdometerMeters", "engineRpm"}
)

type GetVehicleStats struct {
	deps Deps
}

func (*GetVehicleStats) Name() string { return "GetVehicleStats" }

func (*GetVehicleStats) Description() string {
	return "Get the latest location, engine state and fuel level of one or more vehicles. " +
		"Use stat_types=gps when the user only asks where a vehicle is."
}

func (*GetVehicleStats) Parameters() Schema {
	return object(map[string]Property{
		"vehicle_ids":   {Type: "string", Description: "Comma separated vehicle ids."},
		"vehicle_names": {Type: "string", Description: "Comma separated vehicle names or numbers, e.g. \"606, truck 12\"."},
		"stat_types":    {Type: "string", Description: "Comma separated stat types: gps, engineStates, fuelPercents. Defaults to all three."},
	})
}

type vehicleStatsRow struct {
	VehicleID   string        `json:"vehicle_id"`
	VehicleName string        `json:"vehicle_name"`
	Location    *LocationCard `json:"location,omitempty"`
	EngineState string        `json:"engine_state,omitempty"`
	FuelPercent *float64      `json:"fuel_percent,omitempty"`
}

type vehicleStatsResult struct {
	TotalVehicles  int               `json:"total_vehicles"`
	StatTypes      []string          `json:"stat_types"`
	Vehicles       []vehicleStatsRow `json:"vehicles"`
	Message        string            `json:"message,omitempty"`
	Clarifications *Partial          `json:"clarifications,omitempty"`
	Card           CardData          `json:"_cardData"`
}

func (t *GetVehicleStats) Invoke(ctx context.Context, raw json.RawMessage) (any, error) {
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
	if len(sel.IDs) == 0 {
		return Failure(fmt.Sprintf("No vehicles found matching: %s", idsCSV)), nil
	}

	types := statTypes(a.str("stat_types"))
	stats, err := t.deps.API.VehicleStats(ctx, sel.IDs, types)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch vehicle stats: %w", err)
	}

	res := vehicleStatsResult{StatTypes: types, Clarifications: sel.Partial, Vehicles: []vehicleStatsRow{}}
	for _, s := range stats {
		row := vehicleStatsRow{
			VehicleID:   s.ID,
			VehicleName: vehicleName(ctx, t.deps, sel, s.ID, s.Name),
			Location:    locationCard(s.ID, "", s.GPS),
		}
		if row.Location != nil {
			row.Location.VehicleName = row.VehicleName
		}
		if s.EngineState != nil {
			row.EngineState = s.EngineState.Value
		}
		if s.FuelPercent != nil {
			v := s.FuelPercent.Value
			row.FuelPercent = &v
		}
		res.Vehicles = append(res.Vehicles, row)
	}
	res.TotalVehicles = len(res.Vehicles)
	if res.TotalVehicles == 0 {
		res.Message = "No recent stats reported for the requested vehicles."
		return res, nil
	}

	first := res.Vehicles[0]
	if len(types) == 1 && types[0] == "gps" && first.Location != nil {
		res.Card = CardData{Card: *first.Location}
		return res, nil
	}
	card := VehicleStatsCard{
		VehicleID:   first.VehicleID,
		VehicleName: first.VehicleName,
		Location:    first.Location,
		EngineState: first.EngineState,
		FuelPercent: first.FuelPercent,
	}
	if first.Location != nil {
		speed := first.Location.SpeedKmh
		card.SpeedKmh = &speed
		card.UpdatedAt = first.Location.Time
	}
	res.Card = CardData{Card: card}
	return res, nil
}

// statTypes keeps the known requested types, falling back to the defaults.
func statTypes(csv string) []string {
	var out []string
	for _, s := range utils.SplitCSV(csv) {
		if slices.Contains(knownStatTypes, s) {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return slices.Clone(defaultStatTypes)
	}
	return utils.Unique(out)
}

func locationCard(vehicleID, vehicleName string, gps *telematics.GPS) *LocationCard {
	if gps == nil {
		return nil
	}
	c := &LocationCard{
		VehicleID:   vehicleID,
		VehicleName: vehicleName,
		Latitude:    gps.Latitude,
		Longitude:   gps.Longitude,
		Heading:     gps.HeadingDegrees,
		SpeedKmh:    mphToKmh(gps.SpeedMilesPerHour),
		Time:        gps.Time,
		MapsLink:    mapsLink(gps.Latitude, gps.Longitude),
	}
	if gps.ReverseGeo != nil {
		c.Address = gps.ReverseGeo.FormattedLocation
	}
	return c
}
