package tools

import (
	"encoding/json"

	"gwi.com/fleet-copilot/internal/media"
	"gwi.com/fleet-copilot/internal/resolver"
)

type ErrorResult struct {
	Error   bool   `json:"error"`
	Message string `json:"message"`
}

func Failure(message string) ErrorResult {
	return ErrorResult{Error: true, Message: message}
}

// Clarification asks the user to pick among candidates for each ambiguous term.
type Clarification struct {
	Error              bool                             `json:"error"`
	NeedsClarification bool                             `json:"needs_clarification"`
	Message            string                           `json:"message"`
	Suggestions        map[string][]resolver.Suggestion `json:"suggestions"`
}

func clarify(suggestions map[string][]resolver.Suggestion) Clarification {
	return Clarification{
		NeedsClarification: true,
		Message:            "Several vehicles match your search. Please specify which one you mean:",
		Suggestions:        suggestions,
	}
}

// Partial lists terms that were not used because they were ambiguous or matched
// nothing, while other terms resolved.
type Partial struct {
	Message     string                           `json:"message"`
	Suggestions map[string][]resolver.Suggestion `json:"suggestions,omitempty"`
	Unmatched   []string                         `json:"unmatched,omitempty"`
}

// Card is a rich payload rendered by the client. The set of kinds is closed.
type Card interface {
	cardKind() string
}

// CardData marshals as {"<kind>": {...}}.
type CardData struct {
	Card Card
}

func (c CardData) MarshalJSON() ([]byte, error) {
	if c.Card == nil {
		return []byte("null"), nil
	}
	return json.Marshal(map[string]Card{c.Card.cardKind(): c.Card})
}

type LocationCard struct {
	VehicleID   string  `json:"vehicleId"`
	VehicleName string  `json:"vehicleName"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Address     string  `json:"address,omitempty"`
	Heading     float64 `json:"heading"`
	SpeedKmh    float64 `json:"speedKmh"`
	Time        string  `json:"time,omitempty"`
	MapsLink    string  `json:"mapsLink"`
}

type VehicleStatsCard struct {
	VehicleID   string        `json:"vehicleId"`
	VehicleName string        `json:"vehicleName"`
	Location    *LocationCard `json:"location,omitempty"`
	EngineState string        `json:"engineState,omitempty"`
	FuelPercent *float64      `json:"fuelPercent,omitempty"`
	SpeedKmh    *float64      `json:"speedKmh,omitempty"`
	UpdatedAt   string        `json:"updatedAt,omitempty"`
}

type DashcamImage struct {
	ID              string `json:"id"`
	Type            string `json:"type"`
	TypeDescription string `json:"typeDescription"`
	Timestamp       string `json:"timestamp"`
	URL             string `json:"url"`
	IsPersisted     bool   `json:"isPersisted"`
}

type DashcamMediaCard struct {
	VehicleID   string         `json:"vehicleId"`
	VehicleName string         `json:"vehicleName"`
	TotalImages int            `json:"totalImages"`
	Images      []DashcamImage `json:"images"`
}

type SafetyEventsCard struct {
	TotalEvents      int             `json:"totalEvents"`
	SearchRangeHours float64         `json:"searchRangeHours"`
	PeriodStart      string          `json:"periodStart"`
	PeriodEnd        string          `json:"periodEnd"`
	SummaryByType    map[string]int  `json:"summaryByType"`
	SummaryByState   map[string]int  `json:"summaryByState"`
	Events           []VehicleEvents `json:"events"`
}

type TripsCard struct {
	TotalTrips       int            `json:"totalTrips"`
	SearchRangeHours int            `json:"searchRangeHours"`
	PeriodStart      string         `json:"periodStart"`
	PeriodEnd        string         `json:"periodEnd"`
	SummaryByStatus  map[string]int `json:"summaryByStatus"`
	SummaryByVehicle map[string]int `json:"summaryByVehicle"`
	Trips            []VehicleTrips `json:"trips"`
}

func (LocationCard) cardKind() string     { return "location" }
func (VehicleStatsCard) cardKind() string { return "vehicleStats" }
func (DashcamMediaCard) cardKind() string { return "dashcamMedia" }
func (SafetyEventsCard) cardKind() string { return "safetyEvents" }
func (TripsCard) cardKind() string        { return "trips" }

func dashcamCard(vehicleID, vehicleName string, items []media.Persisted) DashcamMediaCard {
	images := make([]DashcamImage, 0, len(items))
	for _, m := range items {
		images = append(images, DashcamImage{
			ID:              m.ID,
			Type:            m.Type,
			TypeDescription: m.TypeDescription,
			Timestamp:       m.Timestamp,
			URL:             m.URL,
			IsPersisted:     m.IsPersisted,
		})
	}
	return DashcamMediaCard{VehicleID: vehicleID, VehicleName: vehicleName, TotalImages: len(images), Images: images}
}
