package core

import (
	"context"
	"log/slog"
	"sync"

	"gwi.com/fleet-copilot/internal/agent"
	"gwi.com/fleet-copilot/internal/store"
)

type UsageRecorder interface {
	RecordTokenUsage(ctx context.Context, u *store.TokenUsage) error
}

// TokenTracker records every usage event of one turn and keeps the turn totals.
type TokenTracker struct {
	mu       sync.Mutex
	store    UsageRecorder
	userID   string
	threadID string
	logger   *slog.Logger
	observer TurnObserver
	totals   Tokens
}

func NewTokenTracker(st UsageRecorder, userID, threadID string, logger *slog.Logger, observer TurnObserver) *TokenTracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenTracker{store: st, userID: userID, threadID: threadID, logger: logger, observer: observer}
}

func (t *TokenTracker) ObserveUsage(ctx context.Context, u agent.Usage) {
	t.mu.Lock()
	t.totals.Input += u.InputTokens
	t.totals.Output += u.OutputTokens
	t.totals.Total = t.totals.Input + t.totals.Output
	t.mu.Unlock()

	if t.observer != nil {
		t.observer.ObserveTokens(u.Model, u.InputTokens, u.OutputTokens)
	}
	if t.store == nil {
		return
	}
	err := t.store.RecordTokenUsage(context.WithoutCancel(ctx), &store.TokenUsage{
		UserID:       t.userID,
		ThreadID:     t.threadID,
		Model:        u.Model,
		InputTokens:  u.InputTokens,
		OutputTokens: u.OutputTokens,
		TotalTokens:  u.InputTokens + u.OutputTokens,
		RequestType:  u.RequestType,
	})
	if err != nil {
		t.logger.Warn("failed to record token usage", "thread_id", t.threadID, "error", err)
	}
}

func (t *TokenTracker) Totals() Tokens {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.totals
}
