package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gwi.com/fleet-copilot/internal/store"
	"gwi.com/fleet-copilot/internal/tools"
)

type stubTool struct{ name string }

func (s stubTool) Name() string        { return s.name }
func (s stubTool) Description() string { return "stub" }
func (s stubTool) Parameters() tools.Schema {
	return tools.Schema{Type: "object", Properties: map[string]tools.Property{"vehicle_names": {Type: "string"}}}
}
func (s stubTool) Invoke(context.Context, json.RawMessage) (any, error) { return nil, nil }

type recordingBox struct {
	mu    sync.Mutex
	calls []string
}

func (b *recordingBox) All() []tools.Tool { return []tools.Tool{stubTool{name: "GetVehicleStats"}} }

func (b *recordingBox) Invoke(_ context.Context, name string, args json.RawMessage) json.RawMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, name+" "+string(args))
	return json.RawMessage(`{"total_vehicles":1}`)
}

type usageSum struct {
	mu            sync.Mutex
	input, output int
}

func (u *usageSum) ObserveUsage(_ context.Context, usage Usage) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.input += usage.InputTokens
	u.output += usage.OutputTokens
}

func sse(w io.Writer, chunks ...string) {
	for _, c := range chunks {
		fmt.Fprintf(w, "data: %s\n\n", c)
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
}

// newCompletionServer answers the first request with a streamed tool call and
// every later one with streamed text.
func newCompletionServer(t *testing.T, bodies *[]map[string]any) *httptest.Server {
	t.Helper()
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		mu.Lock()
		*bodies = append(*bodies, body)
		n := len(*bodies)
		mu.Unlock()

		w.Header().Set("Content-Type", "text/event-stream")
		if n == 1 {
			sse(w,
				`{"choices":[{"index":0,"delta":{"role":"assistant","tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"GetVehicleStats","arguments":""}}]}}]}`,
				`{"choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"vehicle_names\":"}}]}}]}`,
				`{"choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"606\"}"}}]}}]}`,
				`{"choices":[],"usage":{"prompt_tokens":100,"completion_tokens":10,"total_tokens":110}}`,
			)
			return
		}
		sse(w,
			`{"choices":[{"index":0,"delta":{"content":"T-606 is "}}]}`,
			`{"choices":[{"index":0,"delta":{"content":"moving."}}]}`,
			`{"choices":[],"usage":{"prompt_tokens":150,"completion_tokens":5,"total_tokens":155}}`,
		)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIAgentRunsToolsAndStreamsText(t *testing.T) {
	var bodies []map[string]any
	srv := newCompletionServer(t, &bodies)
	box := &recordingBox{}
	a := NewOpenAIAgent("test-key", srv.URL+"/v1", "test-model", box, nil)

	usage := &usageSum{}
	req := Request{
		ThreadID: "thread-1",
		History: []store.Message{
			{Role: store.RoleUser, Content: "hi"},
			{Role: store.RoleToolCall, Content: "{}"},
			{Role: store.RoleAssistant, Content: "hello"},
		},
		Message: "where is 606?",
		Usage:   usage,
	}

	var kinds []string
	var text strings.Builder
	for item, err := range a.Stream(context.Background(), req) {
		require.NoError(t, err)
		switch it := item.(type) {
		case TextChunk:
			kinds = append(kinds, "chunk")
			text.WriteString(it.Content)
		case ToolCall:
			kinds = append(kinds, "tool_call")
			require.Len(t, it.Calls, 1)
			assert.Equal(t, "call_1", it.Calls[0].ID)
			assert.JSONEq(t, `{"vehicle_names":"606"}`, string(it.Calls[0].Args))
		case ToolResult:
			kinds = append(kinds, "tool_result")
			assert.JSONEq(t, `{"total_vehicles":1}`, string(it.Results[0].Output))
		}
	}

	assert.Equal(t, []string{"tool_call", "tool_result", "chunk", "chunk"}, kinds)
	assert.Equal(t, "T-606 is moving.", text.String())
	assert.Equal(t, []string{`GetVehicleStats {"vehicle_names":"606"}`}, box.calls)
	assert.Equal(t, 250, usage.input)
	assert.Equal(t, 15, usage.output)

	require.Len(t, bodies, 2)
	first := bodies[0]["messages"].([]any)
	assert.Len(t, first, 4, "system, two displayable history messages, user")
	assert.Equal(t, "system", first[0].(map[string]any)["role"])

	second := bodies[1]["messages"].([]any)
	require.Len(t, second, 6)
	toolMsg := second[5].(map[string]any)
	assert.Equal(t, "tool", toolMsg["role"])
	assert.Equal(t, "call_1", toolMsg["tool_call_id"])
}

func TestOpenAIAgentStopsWhenConsumerLeaves(t *testing.T) {
	var bodies []map[string]any
	srv := newCompletionServer(t, &bodies)
	box := &recordingBox{}
	a := NewOpenAIAgent("test-key", srv.URL+"/v1", "test-model", box, nil)

	for item := range a.Stream(context.Background(), Request{Message: "where is 606?"}) {
		_, isCall := item.(ToolCall)
		require.True(t, isCall)
		break
	}
	assert.Empty(t, box.calls, "no tool runs after the consumer stopped")
	assert.Len(t, bodies, 1)
}

func TestOpenAIAgentSurfacesUpstreamErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
	}))
	defer srv.Close()
	a := NewOpenAIAgent("k", srv.URL+"/v1", "m", &recordingBox{}, nil)

	var errs []error
	for _, err := range a.Stream(context.Background(), Request{Message: "hi"}) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "failed to create chat completion stream")
}
