// ABOUTME: Multiplexes live progress across conversations independent of focus
// ABOUTME: Snapshot map keyed by conversation id with lossless focus switching

package client

import (
	"log/slog"
	"sync"
)

// Multiplexer keeps one ProgressSnapshot per conversation, updated by every
// decoded event regardless of which conversation is focused. Focus switches
// read back out of the map, so background turns lose nothing.
type Multiplexer struct {
	mu        sync.Mutex
	snapshots map[string]ProgressSnapshot
	focused   string
	logger    *slog.Logger
}

func NewMultiplexer(logger *slog.Logger) *Multiplexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Multiplexer{
		snapshots: make(map[string]ProgressSnapshot),
		logger:    logger.With("component", "multiplexer"),
	}
}

// BeginTurn resets the conversation's snapshot for a fresh turn. Prior tool
// steps and stats belong to the previous turn and are discarded.
func (m *Multiplexer) BeginTurn(conversationID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[conversationID] = ProgressSnapshot{IsStreaming: true}
}

// Apply folds the event into its conversation's snapshot and returns the
// updated snapshot plus whether that conversation currently has focus.
func (m *Multiplexer) Apply(e Event) (ProgressSnapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := Apply(m.snapshots[e.ConversationID], e)
	m.snapshots[e.ConversationID] = next
	return next, e.ConversationID == m.focused
}

// Focus switches the rendered conversation and returns its snapshot, falling
// back to an empty one if no turn has run.
func (m *Multiplexer) Focus(conversationID string) ProgressSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.focused = conversationID
	return m.snapshots[conversationID]
}

// Focused returns the currently focused conversation id.
func (m *Multiplexer) Focused() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.focused
}

// Snapshot returns the conversation's current snapshot without changing
// focus.
func (m *Multiplexer) Snapshot(conversationID string) ProgressSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshots[conversationID]
}

// MarkStopped flips the conversation's snapshot out of streaming immediately,
// without waiting for the server to acknowledge the stop. Token events that
// arrive afterward are discarded by the reducer.
func (m *Multiplexer) MarkStopped(conversationID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.snapshots[conversationID]
	if !ok {
		return
	}
	s.IsStreaming = false
	s.Stopped = true
	m.snapshots[conversationID] = s
	m.logger.Debug("marked stopped", "conversation_id", conversationID)
}

// Forget drops the conversation's snapshot, for use when the conversation is
// deleted.
func (m *Multiplexer) Forget(conversationID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snapshots, conversationID)
}
