// Package metrics exports copilot telemetry to Prometheus.
package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"gwi.com/fleet-copilot/internal/catalog"
)

const namespace = "fleet_copilot"

// Metrics implements the observers of the tools, media, catalog and core packages.
type Metrics struct {
	turns        *prometheus.CounterVec
	turnDuration prometheus.Histogram
	tokens       *prometheus.CounterVec
	toolCalls    *prometheus.CounterVec
	toolDuration *prometheus.HistogramVec
	media        *prometheus.CounterVec
	syncs        *prometheus.CounterVec
	syncChanges  *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Conversation turns by outcome.",
		}, []string{"outcome"}),
		turnDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "Wall time of a streamed turn.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
		}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_total",
			Help:      "LLM tokens by model and direction.",
		}, []string{"model", "direction"}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool invocations by tool and outcome.",
		}, []string{"tool", "outcome"}),
		toolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_duration_seconds",
			Help:      "Tool invocation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tool"}),
		media: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "media_items_total",
			Help:      "Dashcam media items by persistence outcome.",
		}, []string{"outcome"}),
		syncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_runs_total",
			Help:      "Directory sync runs by kind and result.",
		}, []string{"kind", "result"}),
		syncChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_records_total",
			Help:      "Records seen by directory syncs, by change.",
		}, []string{"kind", "change"}),
	}
	collectors := []prometheus.Collector{
		m.turns, m.turnDuration, m.tokens, m.toolCalls, m.toolDuration, m.media, m.syncs, m.syncChanges,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return nil, fmt.Errorf("register metric: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) ObserveTurn(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.turns.WithLabelValues(outcome).Inc()
	m.turnDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveTokens(model string, input, output int) {
	if m == nil {
		return
	}
	m.tokens.WithLabelValues(model, "input").Add(float64(input))
	m.tokens.WithLabelValues(model, "output").Add(float64(output))
}

func (m *Metrics) ObserveTool(name, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.toolCalls.WithLabelValues(name, outcome).Inc()
	m.toolDuration.WithLabelValues(name).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveMedia(outcome string) {
	if m == nil {
		return
	}
	m.media.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveSync(kind string, res catalog.SyncResult, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.syncs.WithLabelValues(kind, "error").Inc()
		return
	}
	m.syncs.WithLabelValues(kind, "ok").Inc()
	m.syncChanges.WithLabelValues(kind, "created").Add(float64(res.Created))
	m.syncChanges.WithLabelValues(kind, "updated").Add(float64(res.Updated))
	m.syncChanges.WithLabelValues(kind, "unchanged").Add(float64(res.Unchanged))
}
