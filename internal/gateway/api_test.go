// ABOUTME: HTTP API tests covering organization CRUD, conversations, and SSE
// ABOUTME: Runs the chi router against a real SQLite store with a scripted model

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fixai/fixai-gateway/internal/agentloop"
	"github.com/fixai/fixai-gateway/internal/conversation"
	"github.com/fixai/fixai-gateway/internal/model"
	"github.com/fixai/fixai-gateway/internal/store"
)

type scriptedModel struct {
	completions []*model.Completion
	streamText  string
}

func (f *scriptedModel) Complete(ctx context.Context, req model.CompletionRequest) (*model.Completion, error) {
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

func newTestGateway(t *testing.T, m conversation.ModelClient) (*Gateway, http.Handler) {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := conversation.NewService(st, m, agentloop.Budgets{
		MaxModelCalls:          15,
		MaxInputTokens:         80_000,
		TokenEstimationDivisor: 4,
		ToolResultMaxChars:     12_000,
		MaxTurnDuration:        time.Minute,
	}, 10*time.Second, conversation.ServiceDefaults{}, logger)

	g := &Gateway{
		store:        st,
		conversation: svc,
		sessions:     NewSessionRegistry(logger),
		logger:       logger,
	}
	return g, g.router()
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func createOrg(t *testing.T, h http.Handler, slug string) OrganizationResponse {
	t.Helper()
	rec := doJSON(t, h, http.MethodPost, "/api/v1/organizations", map[string]any{
		"name": "Acme", "slug": slug,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	return decodeBody[OrganizationResponse](t, rec)
}

func createConversation(t *testing.T, h http.Handler, orgID string) ConversationResponse {
	t.Helper()
	rec := doJSON(t, h, http.MethodPost, "/api/v1/organizations/"+orgID+"/conversations", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	return decodeBody[ConversationResponse](t, rec)
}

func TestOrganizationCRUD(t *testing.T) {
	_, h := newTestGateway(t, &scriptedModel{})

	org := createOrg(t, h, "acme")
	assert.Equal(t, "Acme", org.Name)
	assert.True(t, org.IsActive)
	require.NotEmpty(t, org.ID)

	// duplicate slug rejected
	rec := doJSON(t, h, http.MethodPost, "/api/v1/organizations", map[string]any{
		"name": "Other", "slug": "acme",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	errBody := decodeBody[map[string]string](t, rec)
	assert.Equal(t, "Organization with slug 'acme' already exists", errBody["detail"])

	// fetch
	rec = doJSON(t, h, http.MethodGet, "/api/v1/organizations/"+org.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "acme", decodeBody[OrganizationResponse](t, rec).Slug)

	// missing
	rec = doJSON(t, h, http.MethodGet, "/api/v1/organizations/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Organization not found", decodeBody[map[string]string](t, rec)["detail"])

	// partial update leaves untouched fields alone
	rec = doJSON(t, h, http.MethodPatch, "/api/v1/organizations/"+org.ID, map[string]any{
		"description":          "prod org",
		"logs_explorer_org_id": "logs-42",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decodeBody[OrganizationResponse](t, rec)
	assert.Equal(t, "Acme", updated.Name)
	assert.Equal(t, "prod org", updated.Description)
	assert.Equal(t, "logs-42", updated.LogsExplorerOrgID)

	// list
	rec = doJSON(t, h, http.MethodGet, "/api/v1/organizations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]OrganizationResponse](t, rec), 1)

	// delete, then gone
	rec = doJSON(t, h, http.MethodDelete, "/api/v1/organizations/"+org.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = doJSON(t, h, http.MethodGet, "/api/v1/organizations/"+org.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOrganizationCreateValidation(t *testing.T) {
	_, h := newTestGateway(t, &scriptedModel{})

	rec := doJSON(t, h, http.MethodPost, "/api/v1/organizations", map[string]any{"name": "NoSlug"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConversationLifecycle(t *testing.T) {
	_, h := newTestGateway(t, &scriptedModel{})
	org := createOrg(t, h, "acme")

	conv := createConversation(t, h, org.ID)
	assert.Equal(t, "New Conversation", conv.Title)
	assert.Equal(t, 0, conv.MessageCount)
	assert.False(t, conv.TurnActive)

	rec := doJSON(t, h, http.MethodGet, "/api/v1/organizations/"+org.ID+"/conversations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[[]ConversationResponse](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, conv.ID, list[0].ID)

	rec = doJSON(t, h, http.MethodGet, "/api/v1/conversations/"+conv.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decodeBody[ConversationDetailResponse](t, rec)
	assert.Empty(t, detail.Messages)

	rec = doJSON(t, h, http.MethodDelete, "/api/v1/conversations/"+conv.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = doJSON(t, h, http.MethodGet, "/api/v1/conversations/"+conv.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Conversation not found", decodeBody[map[string]string](t, rec)["detail"])
}

// parseSSE splits a raw SSE body into (event, data) pairs.
func parseSSE(t *testing.T, body string) [][2]string {
	t.Helper()
	var frames [][2]string
	var event string
	for _, line := range strings.Split(body, "\n") {
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			frames = append(frames, [2]string{event, strings.TrimPrefix(line, "data: ")})
		}
	}
	return frames
}

func TestSendMessageStreamsSSE(t *testing.T) {
	m := &scriptedModel{completions: []*model.Completion{
		{Text: "checkout-service is healthy."},
	}}
	_, h := newTestGateway(t, m)
	org := createOrg(t, h, "acme")
	conv := createConversation(t, h, org.ID)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/conversations/"+conv.ID+"/messages", map[string]any{
		"content": "is checkout healthy?",
		"context": map[string]string{"service": "checkout-service"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	frames := parseSSE(t, rec.Body.String())
	require.NotEmpty(t, frames)
	assert.Equal(t, "stats", frames[0][0])
	last := frames[len(frames)-1]
	assert.Equal(t, "done", last[0])

	var done agentloop.DonePayload
	require.NoError(t, json.Unmarshal([]byte(last[1]), &done))
	assert.Equal(t, "checkout-service is healthy.", done.Content)

	// the turn persisted and released its session
	rec = doJSON(t, h, http.MethodGet, "/api/v1/conversations/"+conv.ID, nil)
	detail := decodeBody[ConversationDetailResponse](t, rec)
	require.Len(t, detail.Messages, 2)
	assert.False(t, detail.TurnActive)
}

func TestSendMessageRequiresContent(t *testing.T) {
	_, h := newTestGateway(t, &scriptedModel{})
	org := createOrg(t, h, "acme")
	conv := createConversation(t, h, org.ID)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/conversations/"+conv.ID+"/messages", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSendMessageConflictsWithActiveTurn(t *testing.T) {
	g, h := newTestGateway(t, &scriptedModel{})
	org := createOrg(t, h, "acme")
	conv := createConversation(t, h, org.ID)

	_, release, err := g.sessions.Begin(context.Background(), conv.ID)
	require.NoError(t, err)
	defer release()

	rec := doJSON(t, h, http.MethodPost, "/api/v1/conversations/"+conv.ID+"/messages", map[string]any{
		"content": "second question",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, decodeBody[map[string]string](t, rec)["detail"], "already active")
}

func TestStopWithoutActiveTurn(t *testing.T) {
	_, h := newTestGateway(t, &scriptedModel{})
	org := createOrg(t, h, "acme")
	conv := createConversation(t, h, org.ID)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/conversations/"+conv.ID+"/stop", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decodeBody[map[string]bool](t, rec)["stopped"])
}

func TestDeleteConversationCancelsActiveTurn(t *testing.T) {
	g, h := newTestGateway(t, &scriptedModel{})
	org := createOrg(t, h, "acme")
	conv := createConversation(t, h, org.ID)

	turnCtx, release, err := g.sessions.Begin(context.Background(), conv.ID)
	require.NoError(t, err)
	defer release()

	rec := doJSON(t, h, http.MethodDelete, "/api/v1/conversations/"+conv.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	select {
	case <-turnCtx.Done():
	default:
		t.Fatal("expected active turn context to be canceled by delete")
	}
}

func TestDebugTraceEndpoint(t *testing.T) {
	m := &scriptedModel{completions: []*model.Completion{
		{ToolCalls: []model.ToolCall{{ID: "tc-1", Name: "metrics_query", Args: map[string]any{"queries": []any{"up"}}}}},
		{Text: "All targets up."},
	}}
	_, h := newTestGateway(t, m)
	org := createOrg(t, h, "acme")
	conv := createConversation(t, h, org.ID)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/conversations/"+conv.ID+"/messages", map[string]any{
		"content": "check prometheus targets",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/v1/conversations/"+conv.ID+"/debug", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	trace := decodeBody[conversation.DebugTrace](t, rec)
	assert.Equal(t, conv.ID, trace.ConversationID)
	assert.Equal(t, 4, trace.Summary.TotalMessages)
	assert.Equal(t, 1, trace.Summary.ToolCalls)
	assert.Equal(t, 1, trace.Summary.ToolResponses)

	rec = doJSON(t, h, http.MethodGet, "/api/v1/conversations/"+conv.ID+"/debug?format=html", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "metrics_query")
}
