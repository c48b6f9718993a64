package api

import (
	"bufio"
	"context"
	"encoding/json"
	"iter"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gwi.com/fleet-copilot/internal/agent"
	"gwi.com/fleet-copilot/internal/auth"
	"gwi.com/fleet-copilot/internal/core"
	"gwi.com/fleet-copilot/internal/media"
	"gwi.com/fleet-copilot/internal/store"
)

type echoAgent struct{}

func (echoAgent) Stream(_ context.Context, req agent.Request) iter.Seq2[agent.Item, error] {
	return func(yield func(agent.Item, error) bool) {
		call := agent.Call{ID: "c1", Name: "GetVehicles", Args: json.RawMessage(`{}`)}
		items := []agent.Item{
			agent.ToolCall{Calls: []agent.Call{call}},
			agent.ToolResult{Results: []agent.Result{{Call: call, Output: json.RawMessage(`{"total_vehicles":0}`)}}},
			agent.TextChunk{Content: "You said: " + req.Message},
		}
		for _, it := range items {
			if !yield(it, nil) {
				return
			}
		}
	}
}

type testServer struct {
	handler http.Handler
	token   string
	blobs   *media.FSStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "copilot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	blobs, err := media.NewFSStore(filepath.Join(t.TempDir(), "blobs"), "/storage")
	require.NoError(t, err)

	signer := auth.NewSigner("test-secret", time.Hour)
	token, err := signer.GenerateJWT("user-1")
	require.NoError(t, err)

	svc := core.NewCopilotService(st, echoAgent{}, nil, nil)
	h := NewAPIHandler(svc, signer, blobs, nil)
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("# metrics")) })
	return &testServer{handler: NewRouter(h, metrics), token: token, blobs: blobs}
}

func (s *testServer) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+s.token)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func readEvents(t *testing.T, body string) []map[string]any {
	t.Helper()
	var events []map[string]any
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		require.True(t, strings.HasPrefix(line, "data: "), "unexpected line %q", line)
		var ev map[string]any
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		events = append(events, ev)
	}
	return events
}

func TestSendStreamsTurn(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/copilot/send", `{"message":"where is 606?","thread_id":null}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no", rec.Header().Get("X-Accel-Buffering"))

	events := readEvents(t, rec.Body.String())
	var types []string
	for _, ev := range events {
		types = append(types, ev["type"].(string))
	}
	assert.Equal(t, []string{"start", "tool_start", "tool_end", "chunk", "done"}, types)
	assert.Equal(t, true, events[0]["is_new_conversation"])
	assert.Equal(t, "GetVehicles", events[1]["tool"])
	assert.Equal(t, "You said: where is 606?", events[3]["content"])

	threadID := events[0]["thread_id"].(string)
	assert.Equal(t, threadID, events[4]["thread_id"])

	rec = s.do(t, http.MethodGet, "/api/copilot/threads/"+threadID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var thread struct {
		ThreadID string          `json:"thread_id"`
		Title    string          `json:"title"`
		Messages []store.Message `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &thread))
	assert.Equal(t, "where is 606?", thread.Title)
	assert.Len(t, thread.Messages, 2)

	rec = s.do(t, http.MethodGet, "/api/copilot/threads", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), threadID)

	rec = s.do(t, http.MethodDelete, "/api/copilot/threads/"+threadID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = s.do(t, http.MethodGet, "/api/copilot/threads/"+threadID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSendRejectsBeforeStreaming(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/copilot/send", `{"message":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "message is required")

	long := strings.Repeat("a", core.MaxMessageLength+1)
	rec = s.do(t, http.MethodPost, "/api/copilot/send", `{"message":"`+long+`"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/copilot/send", `{"message":"hi","thread_id":"nope"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	rec = s.do(t, http.MethodPost, "/api/copilot/send", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCopilotRoutesRequireToken(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/copilot/threads", nil)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/copilot/threads", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, "# metrics", rec.Body.String())
}

func TestStorageServesDashcamMediaOnly(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, s.blobs.Put(ctx, "dashcam-media/id-1/abc.jpg", strings.NewReader("jpeg-bytes")))
	require.NoError(t, s.blobs.Put(ctx, "private/secret.txt", strings.NewReader("secret")))

	rec := s.do(t, http.MethodGet, "/storage/dashcam-media/id-1/abc.jpg", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "jpeg-bytes", rec.Body.String())
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, "public, max-age=3600", rec.Header().Get("Cache-Control"))

	rec = s.do(t, http.MethodGet, "/storage/private/secret.txt", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodGet, "/storage/dashcam-media/../private/secret.txt", "")
	assert.NotEqual(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/storage/dashcam-media/id-1/missing.jpg", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/storage/dashcam-media/id-1/abc.jpg?token="+s.token, nil)
	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code, "media elements pass the token as a query parameter")
}
