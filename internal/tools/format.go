package tools

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"gwi.com/fleet-copilot/internal/telematics"
)

var eventTypeLabels = map[string]string{
	"harshAcceleration":  "Harsh acceleration",
	"harshBraking":       "Harsh braking",
	"harshTurn":          "Harsh turn",
	"crash":              "Crash",
	"speeding":           "Speeding",
	"distraction":        "Driver distraction",
	"genericDistraction": "Driver distraction",
	"drowsiness":         "Drowsiness",
	"obstructedCamera":   "Obstructed camera",
	"nearCollision":      "Near collision",
	"followingDistance":  "Unsafe following distance",
	"laneViolation":      "Lane violation",
	"rollingStop":        "Rolling stop",
	"cellPhoneUsage":     "Cell phone usage",
	"seatbeltViolation":  "No seatbelt",
	"smoking":            "Smoking",
	"foodDrink":          "Eating or drinking",
	"Acceleration":       "Harsh acceleration",

	// display names sent by the stream endpoint
	"Inattentive Driving": "Inattentive driving",
	"Harsh Acceleration":  "Harsh acceleration",
	"Harsh Braking":       "Harsh braking",
	"Harsh Turn":          "Harsh turn",
	"Near Collision":      "Near collision",
	"Following Distance":  "Unsafe following distance",
	"Cell Phone Usage":    "Cell phone usage",
	"Seatbelt Violation":  "No seatbelt",
	"Eating or Drinking":  "Eating or drinking",
}

var eventStateLabels = map[string]string{
	"needsReview":   "Needs review",
	"needsCoaching": "Needs coaching",
	"dismissed":     "Dismissed",
	"coached":       "Coached",
}

var tripStatusLabels = map[string]string{
	"completed":  "Completed",
	"inProgress": "In progress",
	"unknown":    "Unknown",
}

var assetTypeLabels = map[string]string{
	"vehicle":   "Vehicle",
	"trailer":   "Trailer",
	"equipment": "Equipment",
}

func label(labels map[string]string, key string) string {
	if l, ok := labels[key]; ok {
		return l
	}
	return key
}

func mapsLink(lat, lng float64) string {
	if lat == 0 && lng == 0 {
		return ""
	}
	return fmt.Sprintf("https://www.google.com/maps?q=%s,%s",
		strconv.FormatFloat(lat, 'f', -1, 64), strconv.FormatFloat(lng, 'f', -1, 64))
}

// Place is a reduced location: a short address and a maps link.
type Place struct {
	Address         string `json:"address,omitempty"`
	PointOfInterest string `json:"point_of_interest,omitempty"`
	MapsLink        string `json:"maps_link,omitempty"`
}

func place(loc *telematics.Location) *Place {
	if loc == nil {
		return nil
	}
	p := &Place{MapsLink: mapsLink(loc.Latitude, loc.Longitude)}
	if a := loc.Address; a != nil {
		var parts []string
		for _, s := range []string{a.Street, a.City, a.State} {
			if s != "" {
				parts = append(parts, s)
			}
		}
		p.Address = strings.Join(parts, ", ")
		p.PointOfInterest = a.PointOfInterest
	}
	return p
}

// formatDuration renders minutes as "X min", "H h" or "H h M min".
func formatDuration(minutes int) string {
	if minutes < 60 {
		return fmt.Sprintf("%d min", minutes)
	}
	h, m := minutes/60, minutes%60
	if m == 0 {
		return fmt.Sprintf("%d h", h)
	}
	return fmt.Sprintf("%d h %d min", h, m)
}

func mphToKmh(mph float64) float64 {
	return round1(mph * 1.609344)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
