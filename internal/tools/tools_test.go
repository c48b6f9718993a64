package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gwi.com/fleet-copilot/internal/catalog"
	"gwi.com/fleet-copilot/internal/media"
	"gwi.com/fleet-copilot/internal/store"
	"gwi.com/fleet-copilot/internal/telematics"
	"gwi.com/fleet-copilot/internal/utils"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type fakeAPI struct {
	mu sync.Mutex

	stats     []telematics.VehicleStats
	media     [][]telematics.Media // one page per attempt; the last one repeats
	events    []telematics.SafetyEvent
	trips     []telematics.Trip
	err       error
	calls     int
	lastIDs   []string
	lastLimit int
	lastRange time.Duration
}

func (f *fakeAPI) record(ids []string, start, end time.Time, limit int) {
	f.calls++
	f.lastIDs = ids
	f.lastRange = end.Sub(start)
	f.lastLimit = limit
}

func (f *fakeAPI) VehicleStats(_ context.Context, ids, _ []string) ([]telematics.VehicleStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(ids, time.Time{}, time.Time{}, 0)
	return f.stats, f.err
}

func (f *fakeAPI) DashcamMedia(_ context.Context, ids, _ []string, start, end time.Time) ([]telematics.Media, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(ids, start, end, 0)
	if f.err != nil || len(f.media) == 0 {
		return nil, f.err
	}
	return f.media[min(f.calls, len(f.media))-1], nil
}

func (f *fakeAPI) SafetyEvents(_ context.Context, ids, _ []string, start, end time.Time, limit int) ([]telematics.SafetyEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(ids, start, end, limit)
	return f.events, f.err
}

func (f *fakeAPI) Trips(_ context.Context, ids []string, start, end time.Time, limit int) ([]telematics.Trip, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(ids, start, end, limit)
	return f.trips, f.err
}

type tagSource struct{ tags []telematics.Tag }

func (s tagSource) Tags(context.Context) ([]telematics.Tag, error) { return s.tags, nil }

type fixture struct {
	api      *fakeAPI
	store    *store.SQLiteStore
	clock    *utils.ManualClock
	registry *Registry
}

func newFixture(t *testing.T, vehicles ...string) *fixture {
	t.Helper()
	ctx := context.Background()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "tools.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	for i, name := range vehicles {
		require.NoError(t, st.UpsertVehicle(ctx, &store.Vehicle{SamsaraID: fmt.Sprintf("id-%d", i+1), Name: name}))
	}

	blobs, err := media.NewFSStore(t.TempDir(), "/storage")
	require.NoError(t, err)
	clock := utils.NewManualClock(testNow)

	tags, err := catalog.NewTagCatalog(tagSource{tags: []telematics.Tag{
		{ID: "t1", Name: "North", Vehicles: []telematics.Ref{{ID: "id-1", Name: "T-606"}, {ID: "id-2", Name: "TR-608"}}},
		{ID: "t2", Name: "Depot A", ParentTagID: "t1", Vehicles: []telematics.Ref{{ID: "id-1", Name: "T-606"}}},
	}}, st, catalog.Options{Clock: clock})
	require.NoError(t, err)

	f := &fixture{api: &fakeAPI{}, store: st, clock: clock}
	f.registry = NewFleetRegistry(Deps{
		API:      f.api,
		Vehicles: st,
		Media:    media.NewStore(blobs, media.Options{}),
		Tags:     tags,
		Clock:    clock,
	}, nil)
	return f
}

func (f *fixture) call(t *testing.T, name, args string) map[string]any {
	t.Helper()
	out := f.registry.Invoke(context.Background(), name, json.RawMessage(args))
	var m map[string]any
	require.NoError(t, json.Unmarshal(out, &m), string(out))
	return m
}

type panicTool struct{}

func (panicTool) Name() string        { return "Boom" }
func (panicTool) Description() string { return "" }
func (panicTool) Parameters() Schema  { return object(nil) }
func (panicTool) Invoke(context.Context, json.RawMessage) (any, error) {
	panic("boom")
}

type failingTool struct{ panicTool }

func (failingTool) Name() string { return "Fail" }
func (failingTool) Invoke(context.Context, json.RawMessage) (any, error) {
	return nil, errors.New("upstream down")
}

type outcomes struct{ seen map[string]string }

func (o *outcomes) ObserveTool(name, outcome string, _ time.Duration) { o.seen[name] = outcome }

func TestRegistryWrapsFailures(t *testing.T) {
	obs := &outcomes{seen: map[string]string{}}
	r := NewRegistry(nil, obs, panicTool{}, failingTool{})
	ctx := context.Background()

	assert.JSONEq(t, `{"error":true,"message":"Boom failed unexpectedly"}`, string(r.Invoke(ctx, "Boom", nil)))
	assert.JSONEq(t, `{"error":true,"message":"Fail failed: upstream down"}`, string(r.Invoke(ctx, "Fail", nil)))
	assert.JSONEq(t, `{"error":true,"message":"unknown tool \"Nope\""}`, string(r.Invoke(ctx, "Nope", nil)))

	assert.Equal(t, map[string]string{"Boom": "panic", "Fail": "error", "Nope": "error"}, obs.seen)
}

func TestDisplayFor(t *testing.T) {
	assert.Equal(t, Display{Label: "Retrieving dashcam images...", Icon: "camera"}, DisplayFor("GetDashcamMedia"))
	assert.Equal(t, Display{Label: "Processing...", Icon: "loader"}, DisplayFor("SomethingNew"))
}

func TestCardDataShape(t *testing.T) {
	b, err := json.Marshal(CardData{Card: LocationCard{VehicleID: "1", VehicleName: "T-606", MapsLink: "x"}})
	require.NoError(t, err)
	var m map[string]map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	require.Contains(t, m, "location")
	assert.Equal(t, "T-606", m["location"]["vehicleName"])

	b, err = json.Marshal(CardData{})
	require.NoError(t, err)
	assert.Equal(t, "null", string(b))
}

func TestFleetRegistryOffersEveryTool(t *testing.T) {
	f := newFixture(t)
	var names []string
	for _, tool := range f.registry.All() {
		names = append(names, tool.Name())
		assert.Equal(t, "object", tool.Parameters().Type)
		assert.NotEmpty(t, tool.Description())
	}
	assert.Equal(t, []string{"GetVehicles", "GetVehicleStats", "GetDashcamMedia", "GetSafetyEvents", "GetTrips", "GetTags"}, names)
}

func TestVehicleSelectionPolicy(t *testing.T) {
	f := newFixture(t, "T-606", "TR-608", "Truck 12", "Truck 15")
	f.api.stats = []telematics.VehicleStats{{ID: "id-1"}}

	t.Run("numeric token resolves", func(t *testing.T) {
		f.call(t, "GetVehicleStats", `{"vehicle_names":"606"}`)
		assert.Equal(t, []string{"id-1"}, f.api.lastIDs)
	})

	t.Run("ambiguous term asks for clarification", func(t *testing.T) {
		calls := f.api.calls
		out := f.call(t, "GetVehicleStats", `{"vehicle_names":"Truck"}`)
		assert.Equal(t, true, out["needs_clarification"])
		assert.Equal(t, false, out["error"])
		suggestions := out["suggestions"].(map[string]any)["Truck"].([]any)
		assert.Len(t, suggestions, 2)
		assert.Equal(t, calls, f.api.calls, "no upstream call on clarification")
	})

	t.Run("unknown term fails with the input", func(t *testing.T) {
		out := f.call(t, "GetVehicleStats", `{"vehicle_names":"nope"}`)
		assert.Equal(t, true, out["error"])
		assert.Equal(t, "No vehicles found matching: nope", out["message"])
	})

	t.Run("confident terms proceed and report the rest", func(t *testing.T) {
		out := f.call(t, "GetVehicleStats", `{"vehicle_names":"606, Truck, ghost"}`)
		assert.Equal(t, []string{"id-1"}, f.api.lastIDs)
		partial := out["clarifications"].(map[string]any)
		assert.Equal(t, []any{"ghost"}, partial["unmatched"])
		assert.Contains(t, partial["suggestions"], "Truck")
	})
}

func TestGetVehicleStatsCards(t *testing.T) {
	f := newFixture(t, "T-606")
	f.api.stats = []telematics.VehicleStats{{
		ID:          "id-1",
		GPS:         &telematics.GPS{Time: "2026-03-10T11:59:00Z", Latitude: 19.43, Longitude: -99.13, SpeedMilesPerHour: 60},
		EngineState: &telematics.EngineState{Value: "On"},
		FuelPercent: &telematics.FuelPercent{Value: 42},
	}}

	out := f.call(t, "GetVehicleStats", `{"vehicle_ids":"id-1","stat_types":"gps"}`)
	card := out["_cardData"].(map[string]any)["location"].(map[string]any)
	assert.Equal(t, "T-606", card["vehicleName"])
	assert.Equal(t, 96.6, card["speedKmh"])
	assert.Equal(t, "https://www.google.com/maps?q=19.43,-99.13", card["mapsLink"])

	out = f.call(t, "GetVehicleStats", `{"vehicle_ids":"id-1"}`)
	stats := out["_cardData"].(map[string]any)["vehicleStats"].(map[string]any)
	assert.Equal(t, "On", stats["engineState"])
	assert.Equal(t, 42.0, stats["fuelPercent"])
	assert.Equal(t, []any{"gps", "engineStates", "fuelPercents"}, out["stat_types"])

	out = f.call(t, "GetVehicleStats", `{}`)
	assert.Equal(t, true, out["error"])
}

func TestGetDashcamMediaSearchesBackward(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("jpeg"))
	}))
	defer srv.Close()

	f := newFixture(t, "T-606")
	f.api.media = [][]telematics.Media{nil, nil, {
		{VehicleID: "id-1", Input: "dashcamRoadFacing", MediaType: "image", StartTime: "2026-03-10T11:50:00Z"},
		{VehicleID: "id-1", Input: "dashcamDriverFacing", MediaType: "image", StartTime: "2026-03-10T11:55:00Z"},
	}}
	f.api.media[2][0].URLInfo.URL = srv.URL + "/road.jpeg"
	f.api.media[2][1].URLInfo.URL = srv.URL + "/driver.jpeg"

	out := f.call(t, "GetDashcamMedia", `{"vehicle_names":"606","media_types":"dashcamRoadFacing,bogus,dashcamDriverFacing","max_search_minutes":5000}`)

	assert.Equal(t, true, out["found"])
	info := out["search_info"].(map[string]any)
	assert.Equal(t, 3.0, info["attempts"])
	assert.Equal(t, 15.0, info["range_minutes"])
	assert.Equal(t, "2026-03-10T12:00:00Z", info["end_time"])
	assert.Equal(t, 2.0, out["total_media"])

	groups := out["media"].([]any)
	require.Len(t, groups, 1)
	group := groups[0].(map[string]any)
	assert.Equal(t, "T-606", group["vehicleName"])
	assert.Contains(t, group["byType"], "dashcamRoadFacing")

	card := group["_cardData"].(map[string]any)["dashcamMedia"].(map[string]any)
	images := card["images"].([]any)
	require.Len(t, images, 2)
	newest := images[0].(map[string]any)
	assert.Equal(t, "dashcamDriverFacing", newest["type"], "newest first")
	assert.Equal(t, true, newest["isPersisted"])
	assert.Regexp(t, `^/storage/dashcam-media/id-1/`, newest["url"])
}

func TestGetDashcamMediaNothingFound(t *testing.T) {
	f := newFixture(t, "T-606")
	out := f.call(t, "GetDashcamMedia", `{"vehicle_ids":"id-1","max_search_minutes":20}`)

	assert.Equal(t, false, out["found"])
	assert.Equal(t, 4, f.api.calls)
	assert.Equal(t, 20*time.Minute, f.api.lastRange)
	assert.NotEmpty(t, out["message"])
	assert.Empty(t, out["media"])
}

func TestGetSafetyEventsClampsAndGroups(t *testing.T) {
	f := newFixture(t, "T-606")
	for i := range 7 {
		f.api.events = append(f.api.events, telematics.SafetyEvent{
			ID:             fmt.Sprint(i),
			CreatedAtTime:  "2026-03-10T11:00:00Z",
			EventState:     "needsReview",
			Asset:          &telematics.Ref{ID: "id-1"},
			BehaviorLabels: []telematics.BehaviorLabel{{Label: "harshBraking"}},
		})
	}
	f.api.events[0].Location = &telematics.Location{Latitude: 1.5, Longitude: 2.5, Address: &telematics.Address{Street: "Av. Reforma", City: "CDMX"}}

	out := f.call(t, "GetSafetyEvents", `{"vehicle_ids":"id-1","hours_back":50,"limit":99}`)

	assert.Equal(t, 10, f.api.lastLimit)
	assert.Equal(t, time.Hour, f.api.lastRange, "found on the first hourly step")
	assert.Equal(t, 7.0, out["total_events"])
	assert.Equal(t, 1.0, out["search_range_hours"])
	assert.Equal(t, map[string]any{"Harsh braking": 7.0}, out["summary_by_type"])
	assert.Equal(t, map[string]any{"Needs review": 7.0}, out["summary_by_state"])

	groups := out["events"].([]any)
	require.Len(t, groups, 1)
	group := groups[0].(map[string]any)
	assert.Equal(t, "T-606", group["vehicle_name"])
	events := group["events"].([]any)
	assert.Len(t, events, 5)
	loc := events[0].(map[string]any)["location"].(map[string]any)
	assert.Equal(t, "Av. Reforma, CDMX", loc["address"])
	assert.Equal(t, "https://www.google.com/maps?q=1.5,2.5", loc["maps_link"])

	assert.Contains(t, out["_cardData"], "safetyEvents")
}

func TestGetSafetyEventsEmptyWindow(t *testing.T) {
	f := newFixture(t)
	out := f.call(t, "GetSafetyEvents", `{"hours_back":3}`)
	assert.Equal(t, 3, f.api.calls)
	assert.Equal(t, 3.0, out["search_range_hours"])
	assert.Equal(t, 0.0, out["total_events"])
	assert.NotContains(t, out, "_cardData")
}

func TestGetTripsDefaultsToDirectory(t *testing.T) {
	f := newFixture(t, "A", "B", "C", "D", "E", "F")
	f.api.trips = []telematics.Trip{{
		Asset:            telematics.TripAsset{ID: "id-1", Type: "vehicle"},
		TripStartTime:    "2026-03-10T08:00:00Z",
		TripEndTime:      "2026-03-10T09:30:00Z",
		CompletionStatus: "completed",
	}}

	out := f.call(t, "GetTrips", `{"hours_back":100}`)

	assert.Len(t, f.api.lastIDs, 5)
	assert.Equal(t, 72*time.Hour, f.api.lastRange)
	assert.Equal(t, 72.0, out["search_range_hours"])
	group := out["trips"].([]any)[0].(map[string]any)
	assert.Equal(t, "A", group["vehicle_name"])
	assert.Equal(t, "Vehicle", group["vehicle_type_description"])
	assert.Equal(t, 1.0, group["trip_count"])
	trip := group["trips"].([]any)[0].(map[string]any)
	assert.Equal(t, "1 h 30 min", trip["duration_formatted"])
	assert.Equal(t, "Completed", trip["status_description"])
	assert.Equal(t, map[string]any{"A": 1.0}, out["summary_by_vehicle"])
}

func TestGetTripsWithoutVehicles(t *testing.T) {
	f := newFixture(t)
	out := f.call(t, "GetTrips", `{}`)
	assert.Equal(t, map[string]any{"error": true, "message": "No vehicles registered"}, out)
	assert.Zero(t, f.api.calls)
}

func TestGetTagsSyncsThenServesCache(t *testing.T) {
	f := newFixture(t, "T-606", "TR-608")

	out := f.call(t, "GetTags", `{"include_hierarchy":true}`)
	assert.Equal(t, "Sync completed: 2 created, 0 updated, 0 unchanged.", out["sync_status"])
	assert.Equal(t, 2.0, out["total_tags"])

	var depot map[string]any
	for _, tag := range out["tags"].([]any) {
		if m := tag.(map[string]any); m["name"] == "Depot A" {
			depot = m
		}
	}
	require.NotNil(t, depot)
	assert.Equal(t, []any{"North", "Depot A"}, depot["hierarchy_path"])
	assert.Equal(t, "North", depot["parent"].(map[string]any)["name"])

	f.clock.Advance(10 * time.Second)
	out = f.call(t, "GetTags", `{"search":"Nor","limit":1}`)
	assert.Equal(t, "Cached data (last sync: 10s ago)", out["sync_status"])
	assert.Equal(t, 1.0, out["total_tags"])
	summary := out["summary"].(map[string]any)
	assert.Equal(t, 1.0, summary["root_tags"])
	assert.Equal(t, 1.0, summary["child_tags"])
}

func TestGetVehiclesByTag(t *testing.T) {
	f := newFixture(t, "T-606", "TR-608", "Truck 12")
	f.call(t, "GetTags", `{}`)

	out := f.call(t, "GetVehicles", `{"tag_name":"North"}`)
	assert.Equal(t, 2.0, out["total_vehicles"])
	assert.Equal(t, []any{"North"}, out["tags"])

	out = f.call(t, "GetVehicles", `{"summary_only":true}`)
	assert.Equal(t, 3.0, out["total_vehicles"])
	assert.NotContains(t, out, "vehicles")

	out = f.call(t, "GetVehicles", `{"limit":1}`)
	assert.Len(t, out["vehicles"], 1)
	assert.NotEmpty(t, out["note"])
}

func TestFormatDuration(t *testing.T) {
	for minutes, want := range map[int]string{0: "0 min", 45: "45 min", 60: "1 h", 150: "2 h 30 min"} {
		assert.Equal(t, want, formatDuration(minutes))
	}
}
