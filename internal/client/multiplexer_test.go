// ABOUTME: Tests for the progress multiplexer
// ABOUTME: Lossless focus switching, background merging, and stop handling

package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMultiplexerMergesBackgroundEvents(t *testing.T) {
	m := NewMultiplexer(testLogger())

	m.BeginTurn("a")
	m.Focus("a")

	eventA := tokenEv("from a")
	eventA.ConversationID = "a"
	snap, focused := m.Apply(eventA)
	assert.True(t, focused)
	assert.Equal(t, "from a", snap.StreamingContent)

	// switch away; a's turn keeps streaming in the background
	empty := m.Focus("b")
	assert.Empty(t, empty.StreamingContent)

	lateA := tokenEv(" still going")
	lateA.ConversationID = "a"
	_, focused = m.Apply(lateA)
	assert.False(t, focused)

	// switching back replays everything that arrived while away
	back := m.Focus("a")
	assert.Equal(t, "from a still going", back.StreamingContent)
	assert.True(t, back.IsStreaming)
}

func TestMultiplexerFocusSwitchIsIdempotent(t *testing.T) {
	m := NewMultiplexer(testLogger())
	m.BeginTurn("a")

	ev := toolStartEv("tc-1", "logs_search", 1)
	ev.ConversationID = "a"
	m.Apply(ev)

	before := m.Focus("a")
	m.Focus("b")
	after := m.Focus("a")
	assert.Equal(t, before, after)
}

func TestMultiplexerBeginTurnResetsSnapshot(t *testing.T) {
	m := NewMultiplexer(testLogger())
	m.BeginTurn("a")

	ev := toolStartEv("tc-1", "logs_search", 1)
	ev.ConversationID = "a"
	m.Apply(ev)
	require.Len(t, m.Snapshot("a").ToolSteps, 1)

	m.BeginTurn("a")
	fresh := m.Snapshot("a")
	assert.Empty(t, fresh.ToolSteps)
	assert.True(t, fresh.IsStreaming)
	assert.False(t, fresh.Stopped)
}

func TestMultiplexerMarkStoppedDiscardsLateTokens(t *testing.T) {
	m := NewMultiplexer(testLogger())
	m.BeginTurn("a")

	ev := tokenEv("before")
	ev.ConversationID = "a"
	m.Apply(ev)

	m.MarkStopped("a")
	assert.False(t, m.Snapshot("a").IsStreaming)

	late := tokenEv(" late")
	late.ConversationID = "a"
	snap, _ := m.Apply(late)
	assert.Equal(t, "before", snap.StreamingContent)
	assert.False(t, snap.IsStreaming)
}

func TestMultiplexerForget(t *testing.T) {
	m := NewMultiplexer(testLogger())
	m.BeginTurn("a")
	m.Forget("a")
	assert.Equal(t, ProgressSnapshot{}, m.Snapshot("a"))
}
