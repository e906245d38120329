// ABOUTME: Tests for the SQLite store implementation
// ABOUTME: Covers CRUD for organizations, conversations, messages and cascade deletes

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func makeOrg(slug string) *Organization {
	now := time.Now().UTC()
	return &Organization{
		ID:                     uuid.New().String(),
		Name:                   "Test Org",
		Slug:                   slug,
		IsActive:               true,
		CodeParserBaseURL:      "http://localhost:8000",
		CodeParserOrgID:        "cp-org-1",
		CodeParserRepoID:       "cp-repo-1",
		MetricsExplorerBaseURL: "http://localhost:8002",
		MetricsExplorerOrgID:   uuid.New().String(),
		LogsExplorerBaseURL:    "http://localhost:8003",
		LogsExplorerOrgID:      uuid.New().String(),
		CreatedAt:              now,
		UpdatedAt:              now,
	}
}

func makeConversation(orgID string) *Conversation {
	now := time.Now().UTC()
	return &Conversation{
		ID:             uuid.New().String(),
		OrganizationID: orgID,
		Title:          "New Conversation",
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestOrganizationCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	org := makeOrg("acme")
	require.NoError(t, s.CreateOrganization(ctx, org))

	got, err := s.GetOrganization(ctx, org.ID)
	require.NoError(t, err)
	assert.Equal(t, org.Slug, got.Slug)
	assert.Equal(t, org.CodeParserBaseURL, got.CodeParserBaseURL)
	assert.True(t, got.IsActive)

	bySlug, err := s.GetOrganizationBySlug(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, org.ID, bySlug.ID)

	got.Name = "Renamed"
	got.IsActive = false
	require.NoError(t, s.UpdateOrganization(ctx, got))

	updated, err := s.GetOrganization(ctx, org.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
	assert.False(t, updated.IsActive)

	require.NoError(t, s.DeleteOrganization(ctx, org.ID))
	_, err = s.GetOrganization(ctx, org.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListOrganizationsPaging(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		org := makeOrg(uuid.New().String()[:8])
		org.CreatedAt = base.Add(time.Duration(i) * time.Second)
		require.NoError(t, s.CreateOrganization(ctx, org))
	}

	all, err := s.ListOrganizations(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 5)

	page, err := s.ListOrganizations(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	// newest first, so offset 2 skips the two most recent
	assert.Equal(t, all[2].ID, page[0].ID)
	assert.Equal(t, all[3].ID, page[1].ID)
}

func TestOrganizationDuplicateSlug(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateOrganization(ctx, makeOrg("dup")))
	err := s.CreateOrganization(ctx, makeOrg("dup"))
	assert.ErrorIs(t, err, ErrDuplicateSlug)
}

func TestConversationCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	org := makeOrg("conv-org")
	require.NoError(t, s.CreateOrganization(ctx, org))

	conv := makeConversation(org.ID)
	require.NoError(t, s.CreateConversation(ctx, conv))

	got, err := s.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "New Conversation", got.Title)

	got.Title = "order-service returning 500s in prod"
	got.Summary = "Investigated 500s, found DB timeouts."
	got.SummaryMessageCount = 6
	require.NoError(t, s.UpdateConversation(ctx, got))

	updated, err := s.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, updated.SummaryMessageCount)
	assert.NotEmpty(t, updated.Summary)

	require.NoError(t, s.DeleteConversation(ctx, conv.ID))
	_, err = s.GetConversation(ctx, conv.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListConversationsOrderedByActivity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	org := makeOrg("list-org")
	require.NoError(t, s.CreateOrganization(ctx, org))

	first := makeConversation(org.ID)
	first.UpdatedAt = time.Now().UTC().Add(-time.Hour)
	require.NoError(t, s.CreateConversation(ctx, first))

	second := makeConversation(org.ID)
	require.NoError(t, s.CreateConversation(ctx, second))

	convs, err := s.ListConversations(ctx, org.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, second.ID, convs[0].ID, "most recently updated first")
}

func TestMessagesRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	org := makeOrg("msg-org")
	require.NoError(t, s.CreateOrganization(ctx, org))
	conv := makeConversation(org.ID)
	require.NoError(t, s.CreateConversation(ctx, conv))

	base := time.Now().UTC()
	msgs := []*Message{
		{
			ID: uuid.New().String(), ConversationID: conv.ID,
			Role: RoleUser, Content: "order-service returning 500s in prod",
			Context:   `{"service":"order-service","environment":"prod"}`,
			CreatedAt: base,
		},
		{
			ID: uuid.New().String(), ConversationID: conv.ID,
			Role: RoleAssistant, Content: "Calling tool: logs_search",
			ToolName: "logs_search", ToolCallID: "tc-1",
			Context:   `{"index":"prod","query":["500"]}`,
			CreatedAt: base.Add(time.Second),
		},
		{
			ID: uuid.New().String(), ConversationID: conv.ID,
			Role: RoleTool, Content: `{"data":[]}`,
			ToolName: "logs_search", ToolCallID: "tc-1",
			CreatedAt: base.Add(2 * time.Second),
		},
	}
	for _, m := range msgs {
		require.NoError(t, s.SaveMessage(ctx, m))
	}

	got, err := s.ListMessages(ctx, conv.ID, 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, RoleUser, got[0].Role)
	assert.Equal(t, "logs_search", got[1].ToolName)
	assert.Equal(t, "tc-1", got[2].ToolCallID)

	count, err := s.CountMessages(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestDeleteConversationCascadesMessages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	org := makeOrg("cascade-org")
	require.NoError(t, s.CreateOrganization(ctx, org))
	conv := makeConversation(org.ID)
	require.NoError(t, s.CreateConversation(ctx, conv))

	msg := &Message{
		ID: uuid.New().String(), ConversationID: conv.ID,
		Role: RoleUser, Content: "hello", CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.SaveMessage(ctx, msg))

	require.NoError(t, s.DeleteConversation(ctx, conv.ID))

	count, err := s.CountMessages(ctx, conv.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}
