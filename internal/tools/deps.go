package tools

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gwi.com/fleet-copilot/internal/catalog"
	"gwi.com/fleet-copilot/internal/media"
	"gwi.com/fleet-copilot/internal/resolver"
	"gwi.com/fleet-copilot/internal/store"
	"gwi.com/fleet-copilot/internal/telematics"
	"gwi.com/fleet-copilot/internal/utils"
)

// FleetAPI is the part of the telematics client the tools read from.
type FleetAPI interface {
	VehicleStats(ctx context.Context, vehicleIDs, types []string) ([]telematics.VehicleStats, error)
	DashcamMedia(ctx context.Context, vehicleIDs, inputs []string, start, end time.Time) ([]telematics.Media, error)
	SafetyEvents(ctx context.Context, vehicleIDs, states []string, start, end time.Time, limit int) ([]telematics.SafetyEvent, error)
	Trips(ctx context.Context, vehicleIDs []string, start, end time.Time, limit int) ([]telematics.Trip, error)
}

type VehicleDirectory interface {
	resolver.Directory
	ListVehicles(ctx context.Context, f store.VehicleFilter) ([]store.Vehicle, int, error)
}

type Syncer interface {
	EnsureFresh(ctx context.Context, force bool) (bool, catalog.SyncResult, error)
}

type TagDirectory interface {
	Syncer
	LastSync() (time.Time, bool)
	Search(ctx context.Context, f store.TagFilter) ([]store.Tag, int, error)
	Get(ctx context.Context, id string) (*store.Tag, error)
	Children(ctx context.Context, id string) ([]store.Tag, error)
	HierarchyPath(ctx context.Context, t store.Tag) ([]string, error)
	Summary(ctx context.Context) (store.TagSummary, error)
}

// Deps are the collaborators shared by every fleet tool.
type Deps struct {
	API      FleetAPI
	Vehicles VehicleDirectory
	Resolver *resolver.Resolver
	Media    *media.Store
	Tags     TagDirectory
	Fleet    Syncer // vehicle directory sync
	Clock    utils.Clock
	Logger   *slog.Logger
}

func (d *Deps) defaults() {
	if d.Clock == nil {
		d.Clock = utils.SystemClock{}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Resolver == nil && d.Vehicles != nil {
		d.Resolver = resolver.NewResolver(d.Vehicles)
	}
}

// NewFleetRegistry returns the registry of every fleet tool.
func NewFleetRegistry(d Deps, observer Observer) *Registry {
	d.defaults()
	return NewRegistry(d.Logger, observer,
		&GetVehicles{deps: d},
		&GetVehicleStats{deps: d},
		&GetDashcamMedia{deps: d},
		&GetSafetyEvents{deps: d},
		&GetTrips{deps: d},
		&GetTags{deps: d},
	)
}

// selection is the set of vehicles a call targets.
type selection struct {
	IDs     []string
	Names   map[string]string
	Partial *Partial
}

func (s selection) name(id string) string {
	if n, ok := s.Names[id]; ok && n != "" {
		return n
	}
	return ""
}

// selectVehicles applies the resolution policy shared by every tool:
// nothing confident plus an ambiguous term asks for clarification, nothing
// confident and no candidates is a not-found failure, and otherwise the call
// proceeds with what resolved while reporting what was left out.
// When early is non-nil it must be returned as the tool result.
func selectVehicles(ctx context.Context, d Deps, idsCSV, namesCSV string) (sel selection, early any, err error) {
	sel.Names = map[string]string{}

	var byName resolver.Resolution
	if namesCSV != "" {
		byName, err = d.Resolver.ResolveNames(ctx, namesCSV)
		if err != nil {
			return sel, nil, err
		}
	}
	byID, err := d.Resolver.ResolveIDs(ctx, utils.SplitCSV(idsCSV))
	if err != nil {
		return sel, nil, err
	}

	sel.IDs = utils.Unique(append(append([]string{}, byName.IDs...), byID.IDs...))
	for id, n := range byName.Names {
		sel.Names[id] = n
	}
	for id, n := range byID.Names {
		if _, ok := sel.Names[id]; !ok {
			sel.Names[id] = n
		}
	}

	if namesCSV == "" {
		return sel, nil, nil
	}
	if len(sel.IDs) == 0 {
		if byName.Ambiguous() {
			return sel, clarify(byName.Suggestions), nil
		}
		return sel, Failure(fmt.Sprintf("No vehicles found matching: %s", namesCSV)), nil
	}
	if byName.Ambiguous() || len(byName.Unmatched) > 0 {
		p := &Partial{
			Message:   "Some names were not used. Ask the user to pick one of the suggestions if they meant another vehicle.",
			Unmatched: byName.Unmatched,
		}
		if byName.Ambiguous() {
			p.Suggestions = byName.Suggestions
		}
		sel.Partial = p
	}
	return sel, nil, nil
}

// vehicleName resolves a display name from the selection, the local directory,
// or the upstream payload, in that order.
func vehicleName(ctx context.Context, d Deps, sel selection, id, upstream string) string {
	if n := sel.name(id); n != "" && n != id {
		return n
	}
	if d.Vehicles != nil {
		if v, err := d.Vehicles.GetVehicleByID(ctx, id); err == nil && v != nil {
			return v.Name
		}
	}
	if upstream != "" {
		return upstream
	}
	return "Unknown vehicle"
}
