package lookback

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gwi.com/fleet-copilot/internal/utils"
)

var now = time.Date(2025, 12, 30, 12, 0, 0, 0, time.UTC)

func TestSteps(t *testing.T) {
	assert.Equal(t, 12, Steps(60*time.Minute, 5*time.Minute, 288))
	assert.Equal(t, 13, Steps(61*time.Minute, 5*time.Minute, 288))
	assert.Equal(t, 288, Steps(10000*time.Minute, 5*time.Minute, 288))
	assert.Equal(t, 1, Steps(0, 5*time.Minute, 288))
	assert.Equal(t, 1, Steps(time.Hour, 0, 288))
}

func TestSearchNeverFoundStopsAtCeiling(t *testing.T) {
	calls := 0
	w := Window{Increment: 5 * time.Minute, Steps: 7, Clock: utils.NewManualClock(now)}

	res, err := Search(context.Background(), w, func(ctx context.Context, start, end time.Time) ([]string, error) {
		calls++
		return nil, nil
	})
	require.NoError(t, err)
	assert.False(t, res.Found)
	assert.Equal(t, 7, res.Attempts)
	assert.Equal(t, 7, calls)
	assert.Equal(t, 35, res.RangeMinutes)
	assert.Equal(t, now.Add(-35*time.Minute), res.StartTime)
	assert.Equal(t, now, res.EndTime)
}

func TestSearchWidensUntilFound(t *testing.T) {
	var spans []time.Duration
	w := Window{Increment: 5 * time.Minute, Steps: 288, Clock: utils.NewManualClock(now)}

	res, err := Search(context.Background(), w, func(ctx context.Context, start, end time.Time) ([]int, error) {
		spans = append(spans, end.Sub(start))
		if end.Sub(start) >= 15*time.Minute {
			return []int{1, 2}, nil
		}
		return nil, nil
	})
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, 15, res.RangeMinutes)
	assert.Equal(t, []int{1, 2}, res.Data)
	assert.Equal(t, []time.Duration{5 * time.Minute, 10 * time.Minute, 15 * time.Minute}, spans)
}

func TestSearchStopsOnUpstreamError(t *testing.T) {
	boom := errors.New("upstream 503")
	calls := 0
	w := Window{Increment: time.Hour, Steps: 12, Clock: utils.NewManualClock(now)}

	res, err := Search(context.Background(), w, func(ctx context.Context, start, end time.Time) ([]int, error) {
		calls++
		if calls == 2 {
			return nil, boom
		}
		return nil, nil
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 2, res.Attempts)
	assert.False(t, res.Found)
}

func TestSearchRejectsInvalidWindow(t *testing.T) {
	_, err := Search(context.Background(), Window{}, func(ctx context.Context, start, end time.Time) ([]int, error) {
		return nil, nil
	})
	assert.ErrorIs(t, err, ErrInvalidWindow)
}

func TestSearchHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w := Window{Increment: time.Minute, Steps: 3, Clock: utils.NewManualClock(now)}

	_, err := Search(ctx, w, func(ctx context.Context, start, end time.Time) ([]int, error) {
		t.Fatal("fetch should not run")
		return nil, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}
