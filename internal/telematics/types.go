package telematics

import "encoding/json"

type Ref struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Address struct {
	Street          string `json:"street,omitempty"`
	City            string `json:"city,omitempty"`
	State           string `json:"state,omitempty"`
	PointOfInterest string `json:"pointOfInterest,omitempty"`
}

type Location struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Address   *Address `json:"address,omitempty"`
}

type Vehicle struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Make         string `json:"make,omitempty"`
	Model        string `json:"model,omitempty"`
	Year         string `json:"year,omitempty"`
	LicensePlate string `json:"licensePlate,omitempty"`
	VIN          string `json:"vin,omitempty"`
	Tags         []Ref  `json:"tags,omitempty"`

	Raw json.RawMessage `json:"-"`
}

type GPS struct {
	Time              string   `json:"time"`
	Latitude          float64  `json:"latitude"`
	Longitude         float64  `json:"longitude"`
	HeadingDegrees    float64  `json:"headingDegrees"`
	SpeedMilesPerHour float64  `json:"speedMilesPerHour"`
	ReverseGeo        *struct {
		FormattedLocation string `json:"formattedLocation"`
	} `json:"reverseGeo,omitempty"`
}

type EngineState struct {
	Time  string `json:"time"`
	Value string `json:"value"` // "On", "Off" or "Idle"
}

type FuelPercent struct {
	Time  string  `json:"time"`
	Value float64 `json:"value"`
}

type VehicleStats struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	GPS         *GPS         `json:"gps,omitempty"`
	EngineState *EngineState `json:"engineState,omitempty"`
	FuelPercent *FuelPercent `json:"fuelPercent,omitempty"`
}

// Media is a dashcam capture. Input is the camera, MediaType is image or video.
type Media struct {
	VehicleID     string `json:"vehicleId"`
	Input         string `json:"input"`
	MediaType     string `json:"mediaType"`
	StartTime     string `json:"startTime"`
	TriggerReason string `json:"triggerReason,omitempty"`
	URLInfo       struct {
		URL string `json:"url"`
	} `json:"urlInfo"`
}

type BehaviorLabel struct {
	Label string `json:"label"`
	Name  string `json:"name"`
}

type SafetyEvent struct {
	ID             string          `json:"id"`
	CreatedAtTime  string          `json:"createdAtTime"`
	EventState     string          `json:"eventState"`
	Asset          *Ref            `json:"asset,omitempty"`
	Driver         *Ref            `json:"driver,omitempty"`
	Location       *Location       `json:"location,omitempty"`
	BehaviorLabels []BehaviorLabel `json:"behaviorLabels,omitempty"`
	Media          []struct {
		URL   string `json:"url"`
		Input string `json:"input"`
	} `json:"media,omitempty"`
}

// Type returns the primary behavior label of the event.
func (e SafetyEvent) Type() string {
	if len(e.BehaviorLabels) > 0 {
		if l := e.BehaviorLabels[0].Label; l != "" {
			return l
		}
		if n := e.BehaviorLabels[0].Name; n != "" {
			return n
		}
	}
	return "unknown"
}

type TripAsset struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

type Trip struct {
	Asset            TripAsset `json:"asset"`
	TripStartTime    string    `json:"tripStartTime"`
	TripEndTime      string    `json:"tripEndTime,omitempty"`
	CompletionStatus string    `json:"completionStatus"`
	StartLocation    *Location `json:"startLocation,omitempty"`
	EndLocation      *Location `json:"endLocation,omitempty"`
}

type Tag struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ParentTagID string `json:"parentTagId,omitempty"`
	Vehicles    []Ref  `json:"vehicles,omitempty"`
	Drivers     []Ref  `json:"drivers,omitempty"`
	Assets      []Ref  `json:"assets,omitempty"`

	Raw json.RawMessage `json:"-"`
}
