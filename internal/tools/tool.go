// Package tools holds the fleet data tools the agent can call and the
// registry that dispatches and guards those calls.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"
)

// Tool is one callable unit. Implementations keep all per-call state inside Invoke.
type Tool interface {
	Name() string
	Description() string
	Parameters() Schema
	Invoke(ctx context.Context, args json.RawMessage) (any, error)
}

// Schema is the JSON schema of a tool's arguments object.
type Schema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

type Property struct {
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Enum        []string `json:"enum,omitempty"`
}

func object(props map[string]Property) Schema {
	return Schema{Type: "object", Properties: props}
}

// Display is how a running tool is announced to the user.
type Display struct {
	Label string `json:"label"`
	Icon  string `json:"icon"`
}

var displays = map[string]Display{
	"GetVehicles":     {Label: "Checking fleet vehicles...", Icon: "truck"},
	"GetVehicleStats": {Label: "Fetching real-time statistics...", Icon: "activity"},
	"GetDashcamMedia": {Label: "Retrieving dashcam images...", Icon: "camera"},
	"GetSafetyEvents": {Label: "Reviewing safety events...", Icon: "shield-alert"},
	"GetTrips":        {Label: "Loading recent trips...", Icon: "route"},
	"GetTags":         {Label: "Loading fleet tags...", Icon: "tag"},
}

// DisplayFor falls back to a generic label for unknown tools.
func DisplayFor(name string) Display {
	if d, ok := displays[name]; ok {
		return d
	}
	return Display{Label: "Processing...", Icon: "loader"}
}

// Observer is told the outcome of every invocation:
// "ok", "clarification", "error" or "panic".
type Observer interface {
	ObserveTool(name, outcome string, elapsed time.Duration)
}

// Registry is the static set of tools offered to the agent.
type Registry struct {
	tools    []Tool
	byName   map[string]Tool
	logger   *slog.Logger
	observer Observer
}

func NewRegistry(logger *slog.Logger, observer Observer, tools ...Tool) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{byName: make(map[string]Tool, len(tools)), logger: logger, observer: observer}
	for _, t := range tools {
		r.tools = append(r.tools, t)
		r.byName[t.Name()] = t
	}
	return r
}

func (r *Registry) All() []Tool { return r.tools }

func (r *Registry) Lookup(name string) (Tool, bool) {
	t, ok := r.byName[name]
	return t, ok
}

// Invoke runs a tool and always returns a JSON result. Errors and panics
// become {"error":true,"message":...} so the agent can react to them.
func (r *Registry) Invoke(ctx context.Context, name string, args json.RawMessage) (out json.RawMessage) {
	start := time.Now()
	outcome := "ok"
	defer func() {
		if p := recover(); p != nil {
			outcome = "panic"
			r.logger.Error("tool panicked", "tool", name, "panic", p, "stack", string(debug.Stack()))
			out = encode(Failure(fmt.Sprintf("%s failed unexpectedly", name)))
		}
		if r.observer != nil {
			r.observer.ObserveTool(name, outcome, time.Since(start))
		}
	}()

	t, ok := r.byName[name]
	if !ok {
		outcome = "error"
		return encode(Failure(fmt.Sprintf("unknown tool %q", name)))
	}

	res, err := t.Invoke(ctx, args)
	if err != nil {
		outcome = "error"
		r.logger.Warn("tool failed", "tool", name, "error", err)
		return encode(Failure(fmt.Sprintf("%s failed: %v", name, err)))
	}
	if _, ok := res.(Clarification); ok {
		outcome = "clarification"
	}
	if e, ok := res.(ErrorResult); ok && e.Error {
		outcome = "error"
	}
	return encode(res)
}

func encode(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		b, _ = json.Marshal(Failure("failed to encode tool result: " + err.Error()))
	}
	return b
}
