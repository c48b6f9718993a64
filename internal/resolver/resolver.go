// Package resolver maps free-text vehicle references to canonical vehicle ids.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"gwi.com/fleet-copilot/internal/store"
	"gwi.com/fleet-copilot/internal/utils"
)

// MaxSuggestions bounds the candidates returned for an ambiguous term.
const MaxSuggestions = 10

var ErrNotFound = errors.New("no vehicle matches")

var digitRun = regexp.MustCompile(`\d+`)

// Directory is the read side of the local vehicle directory.
type Directory interface {
	GetVehicleByName(ctx context.Context, name string) (*store.Vehicle, error)
	VehiclesContaining(ctx context.Context, term string, limit int) ([]store.Vehicle, error)
	GetVehicleByID(ctx context.Context, id string) (*store.Vehicle, error)
}

type Suggestion struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Match is the outcome for a single term. Exact with a nil Vehicle never happens;
// a non-exact match with no suggestions means nothing matched.
type Match struct {
	Exact       bool
	Vehicle     *store.Vehicle
	Suggestions []Suggestion
}

func (m Match) Ambiguous() bool { return !m.Exact && len(m.Suggestions) > 0 }

// Resolution is the outcome for a comma-separated list of terms.
type Resolution struct {
	Input       string
	IDs         []string
	Names       map[string]string
	Suggestions map[string][]Suggestion
	Unmatched   []string
}

func (r Resolution) Ambiguous() bool { return len(r.Suggestions) > 0 }

// NeedsClarification holds when nothing resolved confidently but some term had candidates.
func (r Resolution) NeedsClarification() bool { return len(r.IDs) == 0 && r.Ambiguous() }

// NotFound holds when nothing resolved and no term had candidates.
func (r Resolution) NotFound() bool { return len(r.IDs) == 0 && !r.Ambiguous() }

type Resolver struct {
	dir Directory
}

func NewResolver(dir Directory) *Resolver {
	return &Resolver{dir: dir}
}

// Resolve tries, in order: exact name, substring, then each digit run of the term.
func (r *Resolver) Resolve(ctx context.Context, term string) (Match, error) {
	exact, err := r.dir.GetVehicleByName(ctx, term)
	if err != nil {
		return Match{}, fmt.Errorf("failed to match vehicle name %q: %w", term, err)
	}
	if exact != nil {
		return Match{Exact: true, Vehicle: exact}, nil
	}

	m, err := r.contains(ctx, term)
	if err != nil || m.Exact || m.Ambiguous() {
		return m, err
	}

	for _, number := range digitRun.FindAllString(term, -1) {
		m, err := r.contains(ctx, number)
		if err != nil || m.Exact || m.Ambiguous() {
			return m, err
		}
	}
	return Match{}, nil
}

func (r *Resolver) contains(ctx context.Context, term string) (Match, error) {
	candidates, err := r.dir.VehiclesContaining(ctx, term, MaxSuggestions)
	if err != nil {
		return Match{}, fmt.Errorf("failed to search vehicles for %q: %w", term, err)
	}
	switch len(candidates) {
	case 0:
		return Match{}, nil
	case 1:
		return Match{Exact: true, Vehicle: &candidates[0]}, nil
	}
	suggestions := make([]Suggestion, 0, len(candidates))
	for _, v := range candidates {
		suggestions = append(suggestions, Suggestion{ID: v.SamsaraID, Name: v.Name})
	}
	return Match{Suggestions: suggestions}, nil
}

// ResolveNames resolves each comma-separated term independently.
func (r *Resolver) ResolveNames(ctx context.Context, names string) (Resolution, error) {
	res := Resolution{
		Input:       names,
		Names:       map[string]string{},
		Suggestions: map[string][]Suggestion{},
	}
	for _, term := range utils.SplitCSV(names) {
		m, err := r.Resolve(ctx, term)
		if err != nil {
			return Resolution{}, err
		}
		switch {
		case m.Exact:
			if _, seen := res.Names[m.Vehicle.SamsaraID]; !seen {
				res.IDs = append(res.IDs, m.Vehicle.SamsaraID)
			}
			res.Names[m.Vehicle.SamsaraID] = m.Vehicle.Name
		case m.Ambiguous():
			res.Suggestions[term] = m.Suggestions
		default:
			res.Unmatched = append(res.Unmatched, term)
		}
	}
	return res, nil
}

// ResolveIDs looks up explicit vehicle ids, keeping order and dropping duplicates.
// Unknown ids are kept so the upstream API can still be queried for them.
func (r *Resolver) ResolveIDs(ctx context.Context, ids []string) (Resolution, error) {
	res := Resolution{
		Input:       strings.Join(ids, ","),
		Names:       map[string]string{},
		Suggestions: map[string][]Suggestion{},
	}
	for _, id := range utils.Unique(ids) {
		v, err := r.dir.GetVehicleByID(ctx, id)
		if err != nil {
			return Resolution{}, fmt.Errorf("failed to look up vehicle %s: %w", id, err)
		}
		res.IDs = append(res.IDs, id)
		if v != nil {
			res.Names[id] = v.Name
		} else {
			res.Names[id] = id
		}
	}
	return res, nil
}

// NotFoundError names the original input.
func (r Resolution) NotFoundError() error {
	return fmt.Errorf("%w: %q", ErrNotFound, r.Input)
}
