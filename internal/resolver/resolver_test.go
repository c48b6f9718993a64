package resolver

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gwi.com/fleet-copilot/internal/store"
)

type fakeDirectory struct {
	vehicles []store.Vehicle
	err      error
}

func newFakeDirectory(names ...string) *fakeDirectory {
	d := &fakeDirectory{}
	for i, n := range names {
		d.vehicles = append(d.vehicles, store.Vehicle{SamsaraID: fmt.Sprintf("id-%d", i+1), Name: n})
	}
	return d
}

func (d *fakeDirectory) GetVehicleByName(_ context.Context, name string) (*store.Vehicle, error) {
	if d.err != nil {
		return nil, d.err
	}
	for i := range d.vehicles {
		if d.vehicles[i].Name == name {
			return &d.vehicles[i], nil
		}
	}
	return nil, nil
}

func (d *fakeDirectory) VehiclesContaining(_ context.Context, term string, limit int) ([]store.Vehicle, error) {
	if d.err != nil {
		return nil, d.err
	}
	var out []store.Vehicle
	for _, v := range d.vehicles {
		if strings.Contains(v.Name, term) {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (d *fakeDirectory) GetVehicleByID(_ context.Context, id string) (*store.Vehicle, error) {
	for i := range d.vehicles {
		if d.vehicles[i].SamsaraID == id {
			return &d.vehicles[i], nil
		}
	}
	return nil, nil
}

func TestResolveNumericToken(t *testing.T) {
	r := NewResolver(newFakeDirectory("T-606", "TR-608"))

	m, err := r.Resolve(context.Background(), "606")
	require.NoError(t, err)
	assert.True(t, m.Exact)
	require.NotNil(t, m.Vehicle)
	assert.Equal(t, "T-606", m.Vehicle.Name)

	m, err = r.Resolve(context.Background(), "truck 606")
	require.NoError(t, err)
	assert.True(t, m.Exact, "falls back to the digit run")
	assert.Equal(t, "T-606", m.Vehicle.Name)
}

func TestResolveExactBeatsSubstring(t *testing.T) {
	r := NewResolver(newFakeDirectory("Van 1", "Van 10", "Van 11"))

	m, err := r.Resolve(context.Background(), "Van 1")
	require.NoError(t, err)
	assert.True(t, m.Exact)
	assert.Equal(t, "Van 1", m.Vehicle.Name)
}

func TestResolveAmbiguousIsBoundedAndOrdered(t *testing.T) {
	var names []string
	for i := 14; i >= 1; i-- {
		names = append(names, fmt.Sprintf("Bus %02d", i))
	}
	r := NewResolver(newFakeDirectory(names...))

	m, err := r.Resolve(context.Background(), "Bus")
	require.NoError(t, err)
	assert.False(t, m.Exact)
	assert.True(t, m.Ambiguous())
	require.Len(t, m.Suggestions, MaxSuggestions)
	assert.True(t, sort.SliceIsSorted(m.Suggestions, func(i, j int) bool {
		return m.Suggestions[i].Name < m.Suggestions[j].Name
	}))
	assert.Equal(t, "Bus 01", m.Suggestions[0].Name)
}

func TestResolveFirstAmbiguousDigitRunStops(t *testing.T) {
	r := NewResolver(newFakeDirectory("T-60A", "T-60B", "X-7"))

	m, err := r.Resolve(context.Background(), "unit 60 or 7")
	require.NoError(t, err)
	assert.False(t, m.Exact)
	require.Len(t, m.Suggestions, 2, "the ambiguous run 60 stops before 7 is tried")
}

func TestResolveIsCaseSensitive(t *testing.T) {
	r := NewResolver(newFakeDirectory("Tractor"))

	m, err := r.Resolve(context.Background(), "tractor")
	require.NoError(t, err)
	assert.False(t, m.Exact)
	assert.Empty(t, m.Suggestions)
}

func TestResolveNamesBatch(t *testing.T) {
	r := NewResolver(newFakeDirectory("T-606", "TR-608", "Van 1", "Van 2"))

	res, err := r.ResolveNames(context.Background(), "T-606, Van, 606, ghost")
	require.NoError(t, err)
	assert.Equal(t, []string{"id-1"}, res.IDs, "duplicates collapse")
	assert.Equal(t, "T-606", res.Names["id-1"])
	require.Contains(t, res.Suggestions, "Van")
	assert.Len(t, res.Suggestions["Van"], 2)
	assert.Equal(t, []string{"ghost"}, res.Unmatched)
	assert.False(t, res.NeedsClarification(), "a confident id lets the call proceed")
	assert.True(t, res.Ambiguous())
}

func TestResolveNamesPolicy(t *testing.T) {
	r := NewResolver(newFakeDirectory("Van 1", "Van 2"))

	res, err := r.ResolveNames(context.Background(), "Van")
	require.NoError(t, err)
	assert.True(t, res.NeedsClarification())
	assert.False(t, res.NotFound())

	res, err = r.ResolveNames(context.Background(), "ghost, phantom")
	require.NoError(t, err)
	assert.True(t, res.NotFound())
	err = res.NotFoundError()
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Contains(t, err.Error(), "ghost, phantom")
}

func TestResolveIDs(t *testing.T) {
	r := NewResolver(newFakeDirectory("T-606"))

	res, err := r.ResolveIDs(context.Background(), []string{"id-1", "id-9", "id-1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"id-1", "id-9"}, res.IDs)
	assert.Equal(t, "T-606", res.Names["id-1"])
	assert.Equal(t, "id-9", res.Names["id-9"])
}

func TestResolvePropagatesDirectoryErrors(t *testing.T) {
	d := newFakeDirectory("T-606")
	d.err = errors.New("database is locked")
	r := NewResolver(d)

	_, err := r.Resolve(context.Background(), "606")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database is locked")
}
