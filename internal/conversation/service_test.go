// ABOUTME: Tests for turn orchestration, summarized memory, and persistence
// ABOUTME: Scripted model against a real SQLite store in a temp directory

package conversation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fixai/fixai-gateway/internal/agentloop"
	"github.com/fixai/fixai-gateway/internal/model"
	"github.com/fixai/fixai-gateway/internal/store"
)

type scriptedModel struct {
	completions []*model.Completion
	completeErr error
	streamText  string

	summaryText  string
	summaryCalls int
}

func (f *scriptedModel) Complete(ctx context.Context, req model.CompletionRequest) (*model.Completion, error) {
	if req.System == summarySystem {
		f.summaryCalls++
		return &model.Completion{Text: f.summaryText}, nil
	}
	if f.completeErr != nil {
		return nil, f.completeErr
	}
	if len(f.completions) == 0 {
		return &model.Completion{Text: "default answer"}, nil
	}
	next := f.completions[0]
	f.completions = f.completions[1:]
	return next, nil
}

func (f *scriptedModel) Stream(ctx context.Context, req model.CompletionRequest, onToken func(string)) (*model.Completion, error) {
	if onToken != nil && f.streamText != "" {
		onToken(f.streamText)
	}
	return &model.Completion{Text: f.streamText}, nil
}

func newTestService(t *testing.T, m ModelClient) (*Service, store.Store) {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(st, m, agentloop.Budgets{
		MaxModelCalls:          15,
		MaxInputTokens:         80_000,
		TokenEstimationDivisor: 4,
		ToolResultMaxChars:     12_000,
		MaxTurnDuration:        time.Minute,
	}, 10*time.Second, ServiceDefaults{}, logger)
	return svc, st
}

func seedConversation(t *testing.T, st store.Store) (*store.Organization, *store.Conversation) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	org := &store.Organization{
		ID: uuid.New().String(), Name: "Acme", Slug: "acme-" + uuid.New().String()[:8],
		IsActive: true, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, st.CreateOrganization(ctx, org))

	conv := &store.Conversation{
		ID: uuid.New().String(), OrganizationID: org.ID,
		Title: "New Conversation", CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, st.CreateConversation(ctx, conv))
	return org, conv
}

func TestRunTurnPersistsFullTrace(t *testing.T) {
	m := &scriptedModel{completions: []*model.Completion{
		{ToolCalls: []model.ToolCall{{ID: "tc-1", Name: "logs_search", Args: map[string]any{"index": "prod"}}}},
		{Text: "order-service is failing due to DB timeouts."},
	}}
	svc, st := newTestService(t, m)
	org, conv := seedConversation(t, st)

	var events []agentloop.Event
	outcome, err := svc.RunTurn(context.Background(), org, conv,
		"order-service returning 500s in prod",
		&agentloop.UserContext{Service: "order-service", Environment: "prod"},
		func(e agentloop.Event) { events = append(events, e) })
	require.NoError(t, err)
	require.Len(t, outcome.Steps, 1)

	// no logs service configured, so the tool call fails but the turn continues
	assert.True(t, outcome.Steps[0].IsError)
	assert.Contains(t, outcome.FinalText, "DB timeouts")
	assert.Equal(t, agentloop.EventDone, events[len(events)-1].Type)

	msgs, err := st.ListMessages(context.Background(), conv.ID, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 4) // user, tool call, tool response, assistant

	assert.Equal(t, store.RoleUser, msgs[0].Role)
	assert.Contains(t, msgs[0].Context, "order-service")

	assert.Equal(t, store.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "logs_search", msgs[1].ToolName)
	assert.Equal(t, "tc-1", msgs[1].ToolCallID)
	assert.Equal(t, "Calling tool: logs_search", msgs[1].Content)

	assert.Equal(t, store.RoleTool, msgs[2].Role)
	assert.Equal(t, "tc-1", msgs[2].ToolCallID)

	assert.Equal(t, store.RoleAssistant, msgs[3].Role)
	assert.Empty(t, msgs[3].ToolName)
	assert.Contains(t, msgs[3].Content, "DB timeouts")

	// final stats cached on the conversation row
	updated, err := st.GetConversation(context.Background(), conv.ID)
	require.NoError(t, err)
	assert.Contains(t, updated.LastAgentStats, `"ai_calls":2`)

	// the reconstructed trace mirrors the live tool lifecycle
	trace := BuildDebugTrace(updated, msgs)
	assert.Equal(t, 1, trace.Summary.ToolCalls)
	assert.Equal(t, 1, trace.Summary.ToolResponses)
	assert.Equal(t, 1, trace.Summary.UserMessages)
	assert.Equal(t, 1, trace.Summary.AssistantMessages)

	var call TraceEntry
	for _, e := range trace.Trace {
		if e.Type == "tool_call" {
			call = e
		}
	}
	assert.Equal(t, "logs_search", call.Tool)
	assert.Equal(t, "tc-1", call.ToolCallID)
	args := call.Arguments.(map[string]any)
	assert.Equal(t, "prod", args["index"])
}

func TestRunTurnAutoTitlesFirstMessage(t *testing.T) {
	m := &scriptedModel{completions: []*model.Completion{{Text: "ok"}}}
	svc, st := newTestService(t, m)
	org, conv := seedConversation(t, st)

	long := strings.Repeat("checkout latency spiking ", 10)
	_, err := svc.RunTurn(context.Background(), org, conv, long, nil, func(agentloop.Event) {})
	require.NoError(t, err)

	updated, err := st.GetConversation(context.Background(), conv.ID)
	require.NoError(t, err)
	assert.Equal(t, long[:80]+"...", updated.Title)
	assert.Len(t, updated.Title, 83)
}

func TestRunTurnAutoTitlesMultibyteFirstMessage(t *testing.T) {
	m := &scriptedModel{completions: []*model.Completion{{Text: "ok"}}}
	svc, st := newTestService(t, m)
	org, conv := seedConversation(t, st)

	long := strings.Repeat("задержка платежей в проде растёт ", 6)
	require.Greater(t, len(long), titleMaxChars)

	_, err := svc.RunTurn(context.Background(), org, conv, long, nil, func(agentloop.Event) {})
	require.NoError(t, err)

	updated, err := st.GetConversation(context.Background(), conv.ID)
	require.NoError(t, err)
	// truncation counts characters, never splitting a multibyte rune
	assert.Equal(t, string([]rune(long)[:titleMaxChars])+"...", updated.Title)
	assert.True(t, utf8.ValidString(updated.Title))
	assert.Equal(t, titleMaxChars+3, utf8.RuneCountInString(updated.Title))
}

func TestRunTurnModelErrorPersistsOnlyUserMessage(t *testing.T) {
	m := &scriptedModel{completeErr: errors.New("backend down")}
	svc, st := newTestService(t, m)
	org, conv := seedConversation(t, st)

	_, err := svc.RunTurn(context.Background(), org, conv, "investigate", nil, func(agentloop.Event) {})
	require.Error(t, err)

	msgs, err := st.ListMessages(context.Background(), conv.ID, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, store.RoleUser, msgs[0].Role)
}

func seedMessages(t *testing.T, st store.Store, convID string, n int) []*store.Message {
	t.Helper()
	base := time.Now().UTC().Add(-time.Hour)
	msgs := make([]*store.Message, 0, n)
	for i := 0; i < n; i++ {
		role := store.RoleUser
		content := "question " + uuid.New().String()[:4]
		if i%2 == 1 {
			role = store.RoleAssistant
			content = "answer " + uuid.New().String()[:4]
		}
		m := &store.Message{
			ID: uuid.New().String(), ConversationID: convID,
			Role: role, Content: content,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, st.SaveMessage(context.Background(), m))
		msgs = append(msgs, m)
	}
	return msgs
}

func TestBuildHistorySmallChatPassesEverything(t *testing.T) {
	m := &scriptedModel{}
	svc, st := newTestService(t, m)
	_, conv := seedConversation(t, st)
	seedMessages(t, st, conv.ID, 4)

	existing, err := st.ListMessages(context.Background(), conv.ID, 0)
	require.NoError(t, err)

	history, summary := svc.buildHistory(context.Background(), conv, existing)
	assert.Len(t, history, 4)
	assert.Empty(t, summary)
	assert.Zero(t, m.summaryCalls)
}

func TestBuildHistorySummarizesAndCaches(t *testing.T) {
	m := &scriptedModel{summaryText: "User investigated checkout latency; logs showed timeouts."}
	svc, st := newTestService(t, m)
	_, conv := seedConversation(t, st)
	seedMessages(t, st, conv.ID, 8)

	existing, err := st.ListMessages(context.Background(), conv.ID, 0)
	require.NoError(t, err)

	history, summary := svc.buildHistory(context.Background(), conv, existing)
	assert.Len(t, history, recentMessageCount)
	assert.Equal(t, m.summaryText, summary)
	assert.Equal(t, 1, m.summaryCalls)

	// cached on the row
	updated, err := st.GetConversation(context.Background(), conv.ID)
	require.NoError(t, err)
	assert.Equal(t, m.summaryText, updated.Summary)
	assert.Equal(t, 4, updated.SummaryMessageCount)

	// same history size means the cache is reused, not regenerated
	_, summary2 := svc.buildHistory(context.Background(), updated, existing)
	assert.Equal(t, m.summaryText, summary2)
	assert.Equal(t, 1, m.summaryCalls)
}

func TestSummarizableTextSkipsToolMessages(t *testing.T) {
	msgs := []*store.Message{
		{Role: store.RoleUser, Content: "why is checkout slow?"},
		{Role: store.RoleTool, Content: `{"data":[]}`},
		{Role: store.RoleAssistant, Content: "DB contention."},
		{Role: store.RoleAssistant, Content: "   "},
	}
	text := summarizableText(msgs)
	assert.Equal(t, "User: why is checkout slow?\n\nAssistant: DB contention.", text)
}
