package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"

	"gwi.com/fleet-copilot/internal/auth"
	"gwi.com/fleet-copilot/internal/core"
	"gwi.com/fleet-copilot/internal/media"
	"gwi.com/fleet-copilot/internal/store"
)

// Copilot is the conversation service behind the copilot routes.
type Copilot interface {
	BeginTurn(ctx context.Context, userID string, req core.SendRequest) (*core.Turn, error)
	RunTurn(ctx context.Context, turn *core.Turn, em core.Emitter) error
	ListConversations(ctx context.Context, userID string) ([]store.Conversation, error)
	GetConversation(ctx context.Context, userID, threadID string) (*store.Conversation, []store.Message, error)
	DeleteConversation(ctx context.Context, userID, threadID string) error
}

type TokenValidator interface {
	ValidateJWT(token string) (string, error)
}

type APIHandler struct {
	copilot Copilot
	tokens  TokenValidator
	blobs   media.BlobStore
	logger  *slog.Logger
}

func NewAPIHandler(c Copilot, tokens TokenValidator, blobs media.BlobStore, logger *slog.Logger) *APIHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &APIHandler{copilot: c, tokens: tokens, blobs: blobs, logger: logger}
}

// JWTAuthMiddleware accepts a bearer token, or a token query parameter so
// that media elements can load stored blobs.
func (h *APIHandler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if tokenString == "" {
			tokenString = r.URL.Query().Get("token")
		}
		if tokenString == "" {
			writeError(w, http.StatusUnauthorized, "Authorization header is required")
			return
		}

		userID, err := h.tokens.ValidateJWT(tokenString)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithUserID(r.Context(), userID)))
	})
}

func userID(r *http.Request) string {
	id, _ := auth.UserID(r.Context())
	return id
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeServiceError maps service errors onto HTTP statuses.
func (h *APIHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	switch {
	case errors.Is(err, core.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, strings.TrimPrefix(err.Error(), core.ErrInvalidRequest.Error()+": "))
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "Conversation not found")
	default:
		h.logger.Error(fallback, "path", r.URL.Path, "user_id", userID(r), "error", err)
		writeError(w, http.StatusInternalServerError, fallback)
	}
}

func (h *APIHandler) SendHandler(w http.ResponseWriter, r *http.Request) {
	var req core.SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	turn, err := h.copilot.BeginTurn(r.Context(), userID(r), req)
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to start conversation turn")
		return
	}

	em, err := newSSEEmitter(w)
	if err != nil {
		h.logger.Error("streaming unsupported", "error", err)
		writeError(w, http.StatusInternalServerError, "Streaming unsupported")
		return
	}
	if err := h.copilot.RunTurn(r.Context(), turn, em); err != nil {
		h.logger.Warn("turn ended early", "thread_id", turn.ThreadID, "error", err)
	}
}

type threadListResponse struct {
	Threads []store.Conversation `json:"threads"`
}

func (h *APIHandler) ListThreadsHandler(w http.ResponseWriter, r *http.Request) {
	convs, err := h.copilot.ListConversations(r.Context(), userID(r))
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to list conversations")
		return
	}
	if convs == nil {
		convs = []store.Conversation{}
	}
	writeJSON(w, http.StatusOK, threadListResponse{Threads: convs})
}

type threadResponse struct {
	*store.Conversation
	Messages []store.Message `json:"messages"`
}

func (h *APIHandler) GetThreadHandler(w http.ResponseWriter, r *http.Request) {
	conv, messages, err := h.copilot.GetConversation(r.Context(), userID(r), chi.URLParam(r, "threadID"))
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to get conversation")
		return
	}
	writeJSON(w, http.StatusOK, threadResponse{Conversation: conv, Messages: messages})
}

func (h *APIHandler) DeleteThreadHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.copilot.DeleteConversation(r.Context(), userID(r), chi.URLParam(r, "threadID")); err != nil {
		h.writeServiceError(w, r, err, "Failed to delete conversation")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// StorageHandler serves persisted dashcam media. Other storage paths are refused.
func (h *APIHandler) StorageHandler(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "*")
	clean := path.Clean("/" + raw)[1:]
	if strings.Contains(raw, "..") || !strings.HasPrefix(clean, media.Prefix+"/") {
		writeError(w, http.StatusForbidden, "Access denied to this storage path")
		return
	}

	rc, err := h.blobs.Open(r.Context(), clean)
	if err != nil {
		if errors.Is(err, media.ErrBlobNotFound) {
			writeError(w, http.StatusNotFound, "File not found")
			return
		}
		h.logger.Error("failed to open blob", "path", clean, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to read file")
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", media.ContentType(clean))
	w.Header().Set("Cache-Control", "public, max-age=3600")
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Debug("blob copy interrupted", "path", clean, "error", err)
	}
}

func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
