// ABOUTME: Tests for the progress snapshot reducer
// ABOUTME: Token accumulation, tool lifecycle, completion, and stop semantics

package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fixai/fixai-gateway/internal/agentloop"
)

func tokenEv(content string) Event {
	return Event{ConversationID: "c", Type: agentloop.EventToken, Token: &agentloop.TokenPayload{Content: content}}
}

func toolStartEv(id, tool string, n int) Event {
	return Event{ConversationID: "c", Type: agentloop.EventToolStart,
		ToolStart: &agentloop.ToolStartPayload{ID: id, Tool: tool, ToolNumber: n, ModelCall: 1}}
}

func toolEndEv(tool string, isErr bool) Event {
	return Event{ConversationID: "c", Type: agentloop.EventToolEnd,
		ToolEnd: &agentloop.ToolEndPayload{Tool: tool, ResultPreview: "out", ResultLength: 3, DurationMS: 7, IsError: isErr}}
}

func TestApplyAccumulatesTokens(t *testing.T) {
	var s ProgressSnapshot
	s = Apply(s, tokenEv("Root cause: "))
	s = Apply(s, tokenEv("DB timeouts."))

	assert.Equal(t, "Root cause: DB timeouts.", s.StreamingContent)
	assert.True(t, s.IsStreaming)
}

func TestApplyToolLifecycle(t *testing.T) {
	var s ProgressSnapshot
	s = Apply(s, toolStartEv("tc-1", "logs_search", 1))
	require.Len(t, s.ToolSteps, 1)
	assert.Equal(t, StepRunning, s.ToolSteps[0].Status)

	s = Apply(s, toolEndEv("logs_search", false))
	assert.Equal(t, StepDone, s.ToolSteps[0].Status)
	assert.Equal(t, "out", s.ToolSteps[0].ResultPreview)
	assert.Equal(t, int64(7), s.ToolSteps[0].DurationMS)

	s = Apply(s, toolStartEv("tc-2", "metrics_query", 2))
	s = Apply(s, toolEndEv("metrics_query", true))
	require.Len(t, s.ToolSteps, 2)
	assert.Equal(t, StepDone, s.ToolSteps[0].Status)
	assert.Equal(t, StepError, s.ToolSteps[1].Status)
	assert.Equal(t, 2, s.ToolSteps[1].Ordinal)
}

func TestApplyIsPure(t *testing.T) {
	var base ProgressSnapshot
	base = Apply(base, toolStartEv("tc-1", "logs_search", 1))

	next := Apply(base, toolEndEv("logs_search", false))

	// the earlier snapshot still shows the step running
	assert.Equal(t, StepRunning, base.ToolSteps[0].Status)
	assert.Equal(t, StepDone, next.ToolSteps[0].Status)
}

func TestApplyDoneClearsStreamingContentOnly(t *testing.T) {
	var s ProgressSnapshot
	s = Apply(s, toolStartEv("tc-1", "logs_search", 1))
	s = Apply(s, toolEndEv("logs_search", false))
	s = Apply(s, tokenEv("partial"))
	s = Apply(s, Event{Type: agentloop.EventStats,
		Stats: &agentloop.StatsPayload{AICalls: 2, ToolCalls: 1, Final: true}})
	s = Apply(s, Event{Type: agentloop.EventDone, Done: &agentloop.DonePayload{Content: "final answer"}})

	assert.Empty(t, s.StreamingContent)
	assert.Equal(t, "final answer", s.FinalText)
	assert.False(t, s.IsStreaming)
	require.Len(t, s.ToolSteps, 1)
	require.NotNil(t, s.Stats)
	assert.True(t, s.Stats.Final)
}

func TestApplyErrorStopsStreaming(t *testing.T) {
	var s ProgressSnapshot
	s = Apply(s, tokenEv("partial"))
	s = Apply(s, Event{Type: agentloop.EventError, Err: &agentloop.ErrorPayload{Error: "backend down"}})

	assert.Equal(t, "backend down", s.Error)
	assert.False(t, s.IsStreaming)
	assert.Equal(t, "partial", s.StreamingContent)
}

func TestApplyDiscardsTokensAfterStop(t *testing.T) {
	var s ProgressSnapshot
	s = Apply(s, tokenEv("before stop"))
	s.Stopped = true
	s.IsStreaming = false

	s = Apply(s, tokenEv(" after stop"))
	assert.Equal(t, "before stop", s.StreamingContent)
	assert.False(t, s.IsStreaming)

	// terminal events still land so the final state is recorded
	s = Apply(s, Event{Type: agentloop.EventDone, Done: &agentloop.DonePayload{Content: "partial summary"}})
	assert.Equal(t, "partial summary", s.FinalText)
}
