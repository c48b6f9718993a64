package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"gwi.com/fleet-copilot/internal/agent"
	"gwi.com/fleet-copilot/internal/store"
	"gwi.com/fleet-copilot/internal/tools"
	"gwi.com/fleet-copilot/internal/utils"
)

const (
	MaxMessageLength = 10000
	titleLength      = 50
	historySize      = 20
	transcriptLimit  = 200

	agentFailureMessage = "The assistant could not complete the answer. Please try again."
)

var ErrInvalidRequest = errors.New("invalid request")

type Store interface {
	UsageRecorder
	CreateConversation(ctx context.Context, threadID, userID, title string) (*store.Conversation, error)
	GetConversation(ctx context.Context, threadID, userID string) (*store.Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]store.Conversation, error)
	TouchConversation(ctx context.Context, threadID, userID string) error
	AddConversationTokens(ctx context.Context, threadID string, input, output int) error
	DeleteConversation(ctx context.Context, threadID, userID string) error
	CreateMessage(ctx context.Context, msg *store.Message) error
	GetMessagesByThreadID(ctx context.Context, threadID string, limit int, offset int) ([]store.Message, error)
	GetLastNMessagesByThreadID(ctx context.Context, threadID string, n int) ([]store.Message, error)
}

// TurnObserver is told how each turn ended ("ok", "error" or "cancelled")
// and about every billed completion.
type TurnObserver interface {
	ObserveTurn(outcome string, elapsed time.Duration)
	ObserveTokens(model string, input, output int)
}

type SendRequest struct {
	Message  string  `json:"message"`
	ThreadID *string `json:"thread_id"`
}

// Turn is a validated request, ready to stream.
type Turn struct {
	ThreadID string
	UserID   string
	Message  string
	IsNew    bool
	history  []store.Message
}

type CopilotService struct {
	store    Store
	agent    agent.Agent
	logger   *slog.Logger
	observer TurnObserver
}

func NewCopilotService(st Store, a agent.Agent, logger *slog.Logger, observer TurnObserver) *CopilotService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CopilotService{store: st, agent: a, logger: logger, observer: observer}
}

// BeginTurn validates the request and prepares its thread. Nothing has been
// streamed when it returns an error.
func (s *CopilotService) BeginTurn(ctx context.Context, userID string, req SendRequest) (*Turn, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, fmt.Errorf("%w: message is required", ErrInvalidRequest)
	}
	if utf8.RuneCountInString(req.Message) > MaxMessageLength {
		return nil, fmt.Errorf("%w: message must be at most %d characters", ErrInvalidRequest, MaxMessageLength)
	}

	turn := &Turn{UserID: userID, Message: req.Message}
	if req.ThreadID != nil && *req.ThreadID != "" {
		conv, err := s.store.GetConversation(ctx, *req.ThreadID, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to load thread: %w", err)
		}
		if conv == nil {
			return nil, fmt.Errorf("thread %s: %w", *req.ThreadID, store.ErrNotFound)
		}
		turn.ThreadID = conv.ThreadID
		if turn.history, err = s.store.GetLastNMessagesByThreadID(ctx, conv.ThreadID, historySize); err != nil {
			return nil, fmt.Errorf("failed to load history: %w", err)
		}
	} else {
		turn.ThreadID = uuid.NewString()
		turn.IsNew = true
		if _, err := s.store.CreateConversation(ctx, turn.ThreadID, userID, utils.TruncateRunes(req.Message, titleLength)); err != nil {
			return nil, fmt.Errorf("failed to create thread: %w", err)
		}
		s.logger.Info("conversation created", "thread_id", turn.ThreadID, "user_id", userID)
	}

	if err := s.store.CreateMessage(ctx, &store.Message{ThreadID: turn.ThreadID, Role: store.RoleUser, Content: req.Message}); err != nil {
		return nil, fmt.Errorf("failed to store user message: %w", err)
	}
	if err := s.store.TouchConversation(ctx, turn.ThreadID, userID); err != nil {
		return nil, fmt.Errorf("failed to refresh thread: %w", err)
	}
	return turn, nil
}

// RunTurn streams one agent turn: start, then chunks and tool events in the
// order the agent produces them, then done. An agent failure emits an error
// event instead of done. The first emit failure stops the agent.
func (s *CopilotService) RunTurn(ctx context.Context, turn *Turn, em Emitter) error {
	started := time.Now()
	outcome := "ok"
	defer func() {
		if s.observer != nil {
			s.observer.ObserveTurn(outcome, time.Since(started))
		}
	}()

	// writes after the client is gone still land
	persistCtx := context.WithoutCancel(ctx)

	if err := em.Emit(startEvent(turn.ThreadID, turn.IsNew)); err != nil {
		outcome = "cancelled"
		return fmt.Errorf("failed to emit start: %w", err)
	}

	tracker := NewTokenTracker(s.store, turn.UserID, turn.ThreadID, s.logger, s.observer)
	req := agent.Request{ThreadID: turn.ThreadID, History: turn.history, Message: turn.Message, Usage: tracker}

	var reply strings.Builder
	defer func() {
		s.finish(persistCtx, turn, reply.String(), tracker.Totals())
	}()

	for item, agentErr := range s.agent.Stream(ctx, req) {
		if agentErr != nil {
			if ctx.Err() != nil {
				outcome = "cancelled"
				return ctx.Err()
			}
			outcome = "error"
			s.logger.Error("agent failed", "thread_id", turn.ThreadID, "error", agentErr)
			if err := em.Emit(errorEvent(agentFailureMessage)); err != nil {
				s.logger.Debug("failed to emit error event", "thread_id", turn.ThreadID, "error", err)
			}
			return fmt.Errorf("agent failed: %w", agentErr)
		}

		var emitErr error
		switch it := item.(type) {
		case agent.TextChunk:
			reply.WriteString(it.Content)
			emitErr = em.Emit(chunkEvent(it.Content))
		case agent.ToolCall:
			s.saveToolMessage(persistCtx, turn.ThreadID, store.RoleToolCall, toolCallRecords(it.Calls))
			for _, c := range it.Calls {
				d := tools.DisplayFor(c.Name)
				if emitErr = em.Emit(toolStartEvent(c.Name, d.Label, d.Icon)); emitErr != nil {
					break
				}
			}
		case agent.ToolResult:
			s.saveToolMessage(persistCtx, turn.ThreadID, store.RoleToolCallResult, toolResultRecords(it.Results))
			emitErr = em.Emit(toolEndEvent())
		default:
			s.logger.Debug("dropping unknown agent item", "type", fmt.Sprintf("%T", item))
		}
		if emitErr != nil {
			outcome = "cancelled"
			return fmt.Errorf("failed to emit event: %w", emitErr)
		}
	}

	if err := ctx.Err(); err != nil {
		outcome = "cancelled"
		return err
	}
	if err := em.Emit(doneEvent(turn.ThreadID, tracker.Totals())); err != nil {
		outcome = "cancelled"
		return fmt.Errorf("failed to emit done: %w", err)
	}
	return nil
}

// finish stores the assistant reply and adds the turn's tokens to the thread.
func (s *CopilotService) finish(ctx context.Context, turn *Turn, reply string, totals Tokens) {
	if strings.TrimSpace(reply) != "" {
		msg := &store.Message{ThreadID: turn.ThreadID, Role: store.RoleAssistant, Content: reply}
		if err := s.store.CreateMessage(ctx, msg); err != nil {
			s.logger.Error("failed to store assistant message", "thread_id", turn.ThreadID, "error", err)
		}
	}
	if totals.Input > 0 || totals.Output > 0 {
		if err := s.store.AddConversationTokens(ctx, turn.ThreadID, totals.Input, totals.Output); err != nil {
			s.logger.Error("failed to add conversation tokens", "thread_id", turn.ThreadID, "error", err)
		}
	}
}

type toolRecord struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
}

func toolCallRecords(calls []agent.Call) []toolRecord {
	out := make([]toolRecord, 0, len(calls))
	for _, c := range calls {
		out = append(out, toolRecord{ID: c.ID, Name: c.Name, Arguments: c.Args})
	}
	return out
}

func toolResultRecords(results []agent.Result) []toolRecord {
	out := make([]toolRecord, 0, len(results))
	for _, r := range results {
		out = append(out, toolRecord{ID: r.Call.ID, Name: r.Call.Name, Result: r.Output})
	}
	return out
}

func (s *CopilotService) saveToolMessage(ctx context.Context, threadID, role string, records []toolRecord) {
	content, err := json.Marshal(records)
	if err != nil {
		s.logger.Warn("failed to encode tool message", "thread_id", threadID, "error", err)
		return
	}
	if err := s.store.CreateMessage(ctx, &store.Message{ThreadID: threadID, Role: role, Content: string(content)}); err != nil {
		s.logger.Warn("failed to store tool message", "thread_id", threadID, "role", role, "error", err)
	}
}

func (s *CopilotService) ListConversations(ctx context.Context, userID string) ([]store.Conversation, error) {
	convs, err := s.store.ListConversations(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	return convs, nil
}

// GetConversation returns the thread with its displayable messages, oldest first.
func (s *CopilotService) GetConversation(ctx context.Context, userID, threadID string) (*store.Conversation, []store.Message, error) {
	conv, err := s.store.GetConversation(ctx, threadID, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	if conv == nil {
		return nil, nil, fmt.Errorf("thread %s: %w", threadID, store.ErrNotFound)
	}
	all, err := s.store.GetMessagesByThreadID(ctx, threadID, transcriptLimit, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get messages: %w", err)
	}
	messages := make([]store.Message, 0, len(all))
	for _, m := range all {
		if m.Displayable() {
			messages = append(messages, m)
		}
	}
	return conv, messages, nil
}

func (s *CopilotService) DeleteConversation(ctx context.Context, userID, threadID string) error {
	if err := s.store.DeleteConversation(ctx, threadID, userID); err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	s.logger.Info("conversation deleted", "thread_id", threadID, "user_id", userID)
	return nil
}
