// ABOUTME: Registry of in-flight turns, one at most per conversation
// ABOUTME: Provides begin/stop with cooperative cancellation handles

package gateway

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrTurnActive is returned when a conversation already has a running turn.
var ErrTurnActive = errors.New("a turn is already active for this conversation")

type turnSession struct {
	cancel    context.CancelFunc
	startedAt time.Time
}

// SessionRegistry enforces the one-active-turn-per-conversation rule and
// hands out cancellation handles for stop and delete.
type SessionRegistry struct {
	mu     sync.Mutex
	active map[string]*turnSession
	logger *slog.Logger
}

func NewSessionRegistry(logger *slog.Logger) *SessionRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionRegistry{
		active: make(map[string]*turnSession),
		logger: logger.With("component", "sessions"),
	}
}

// Begin registers a turn for the conversation and returns a cancellable
// context derived from parent plus a release func the caller must invoke when
// the turn finishes. Returns ErrTurnActive if a turn is already running.
func (r *SessionRegistry) Begin(parent context.Context, conversationID string) (context.Context, func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.active[conversationID]; ok {
		return nil, nil, ErrTurnActive
	}

	ctx, cancel := context.WithCancel(parent)
	r.active[conversationID] = &turnSession{cancel: cancel, startedAt: time.Now()}
	r.logger.Debug("turn started", "conversation_id", conversationID)

	release := func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if s, ok := r.active[conversationID]; ok {
			s.cancel()
			delete(r.active, conversationID)
		}
	}
	return ctx, release, nil
}

// Stop cancels the conversation's active turn, if any. Idempotent: stopping a
// conversation with no running turn reports false without error.
func (r *SessionRegistry) Stop(conversationID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.active[conversationID]
	if !ok {
		return false
	}
	r.logger.Info("turn stop requested",
		"conversation_id", conversationID, "running_for", time.Since(s.startedAt))
	s.cancel()
	return true
}

// Active reports whether the conversation has a running turn.
func (r *SessionRegistry) Active(conversationID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.active[conversationID]
	return ok
}
