// Package lookback searches backward in time for telematics data that may not
// have been ingested yet. Each attempt widens the query window by a fixed
// increment until something is found or the step ceiling is reached.
package lookback

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"gwi.com/fleet-copilot/internal/utils"
)

// Window describes a stepped search. Attempt k (1-based) queries
// [now - k*Increment, now].
type Window struct {
	Increment time.Duration
	Steps     int
	Clock     utils.Clock
}

// FetchFunc performs a single upstream call for the given range.
type FetchFunc[T any] func(ctx context.Context, start, end time.Time) ([]T, error)

type Result[T any] struct {
	Found        bool
	Attempts     int
	RangeMinutes int
	StartTime    time.Time
	EndTime      time.Time
	Data         []T
}

var ErrInvalidWindow = errors.New("invalid lookback window")

// Steps returns how many attempts are needed to cover desiredMax with the given
// increment, capped at ceiling. It never returns less than one.
func Steps(desiredMax, increment time.Duration, ceiling int) int {
	if increment <= 0 {
		return 1
	}
	n := int(math.Ceil(float64(desiredMax) / float64(increment)))
	if ceiling > 0 && n > ceiling {
		n = ceiling
	}
	if n < 1 {
		n = 1
	}
	return n
}

// Search runs the stepped lookup. Calls are sequential. An upstream error
// stops the search and is returned as is; there is no retry of a failed call.
func Search[T any](ctx context.Context, w Window, fetch FetchFunc[T]) (Result[T], error) {
	if w.Increment <= 0 || w.Steps <= 0 {
		return Result[T]{}, fmt.Errorf("%w: increment=%s steps=%d", ErrInvalidWindow, w.Increment, w.Steps)
	}
	clock := w.Clock
	if clock == nil {
		clock = utils.SystemClock{}
	}

	end := clock.Now().UTC()
	var res Result[T]
	for attempt := 1; attempt <= w.Steps; attempt++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		span := time.Duration(attempt) * w.Increment
		start := end.Add(-span)

		data, err := fetch(ctx, start, end)
		res.Attempts = attempt
		res.RangeMinutes = int(span / time.Minute)
		res.StartTime = start
		res.EndTime = end
		if err != nil {
			return res, fmt.Errorf("lookback attempt %d (%d min): %w", attempt, res.RangeMinutes, err)
		}
		if len(data) > 0 {
			res.Found = true
			res.Data = data
			return res, nil
		}
	}
	return res, nil
}
