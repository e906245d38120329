// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides organization/conversation/message persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS organizations (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			slug TEXT NOT NULL UNIQUE,
			description TEXT NOT NULL DEFAULT '',
			is_active INTEGER NOT NULL DEFAULT 1,
			code_parser_base_url TEXT NOT NULL DEFAULT '',
			code_parser_org_id TEXT NOT NULL DEFAULT '',
			code_parser_repo_id TEXT NOT NULL DEFAULT '',
			metrics_explorer_base_url TEXT NOT NULL DEFAULT '',
			metrics_explorer_org_id TEXT NOT NULL DEFAULT '',
			logs_explorer_base_url TEXT NOT NULL DEFAULT '',
			logs_explorer_org_id TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_organizations_slug ON organizations(slug);

		CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			organization_id TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT 'New Conversation',
			summary TEXT NOT NULL DEFAULT '',
			summary_message_count INTEGER NOT NULL DEFAULT 0,
			last_agent_stats TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			FOREIGN KEY (organization_id) REFERENCES organizations(id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_conversations_org
			ON conversations(organization_id, updated_at);

		CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			context TEXT NOT NULL DEFAULT '',
			tool_name TEXT NOT NULL DEFAULT '',
			tool_call_id TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE,
			CHECK (role IN ('user', 'assistant', 'tool'))
		);

		CREATE INDEX IF NOT EXISTS idx_messages_conversation
			ON messages(conversation_id, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the underlying database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Organizations ---

func (s *SQLiteStore) CreateOrganization(ctx context.Context, org *Organization) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO organizations (
			id, name, slug, description, is_active,
			code_parser_base_url, code_parser_org_id, code_parser_repo_id,
			metrics_explorer_base_url, metrics_explorer_org_id,
			logs_explorer_base_url, logs_explorer_org_id,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		org.ID, org.Name, org.Slug, org.Description, boolToInt(org.IsActive),
		org.CodeParserBaseURL, org.CodeParserOrgID, org.CodeParserRepoID,
		org.MetricsExplorerBaseURL, org.MetricsExplorerOrgID,
		org.LogsExplorerBaseURL, org.LogsExplorerOrgID,
		org.CreatedAt, org.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicateSlug
		}
		return fmt.Errorf("inserting organization: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetOrganization(ctx context.Context, id string) (*Organization, error) {
	return s.scanOrganization(s.db.QueryRowContext(ctx,
		selectOrgColumns+" FROM organizations WHERE id = ?", id))
}

func (s *SQLiteStore) GetOrganizationBySlug(ctx context.Context, slug string) (*Organization, error) {
	return s.scanOrganization(s.db.QueryRowContext(ctx,
		selectOrgColumns+" FROM organizations WHERE slug = ?", slug))
}

const selectOrgColumns = `SELECT id, name, slug, description, is_active,
	code_parser_base_url, code_parser_org_id, code_parser_repo_id,
	metrics_explorer_base_url, metrics_explorer_org_id,
	logs_explorer_base_url, logs_explorer_org_id,
	created_at, updated_at`

func (s *SQLiteStore) scanOrganization(row *sql.Row) (*Organization, error) {
	var org Organization
	var active int
	err := row.Scan(
		&org.ID, &org.Name, &org.Slug, &org.Description, &active,
		&org.CodeParserBaseURL, &org.CodeParserOrgID, &org.CodeParserRepoID,
		&org.MetricsExplorerBaseURL, &org.MetricsExplorerOrgID,
		&org.LogsExplorerBaseURL, &org.LogsExplorerOrgID,
		&org.CreatedAt, &org.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning organization: %w", err)
	}
	org.IsActive = active != 0
	return &org, nil
}

func (s *SQLiteStore) ListOrganizations(ctx context.Context, limit, offset int) ([]*Organization, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.QueryContext(ctx,
		selectOrgColumns+" FROM organizations ORDER BY created_at DESC LIMIT ? OFFSET ?", limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing organizations: %w", err)
	}
	defer rows.Close()

	var orgs []*Organization
	for rows.Next() {
		var org Organization
		var active int
		if err := rows.Scan(
			&org.ID, &org.Name, &org.Slug, &org.Description, &active,
			&org.CodeParserBaseURL, &org.CodeParserOrgID, &org.CodeParserRepoID,
			&org.MetricsExplorerBaseURL, &org.MetricsExplorerOrgID,
			&org.LogsExplorerBaseURL, &org.LogsExplorerOrgID,
			&org.CreatedAt, &org.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning organization: %w", err)
		}
		org.IsActive = active != 0
		orgs = append(orgs, &org)
	}
	return orgs, rows.Err()
}

func (s *SQLiteStore) UpdateOrganization(ctx context.Context, org *Organization) error {
	org.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE organizations SET
			name = ?, slug = ?, description = ?, is_active = ?,
			code_parser_base_url = ?, code_parser_org_id = ?, code_parser_repo_id = ?,
			metrics_explorer_base_url = ?, metrics_explorer_org_id = ?,
			logs_explorer_base_url = ?, logs_explorer_org_id = ?,
			updated_at = ?
		WHERE id = ?`,
		org.Name, org.Slug, org.Description, boolToInt(org.IsActive),
		org.CodeParserBaseURL, org.CodeParserOrgID, org.CodeParserRepoID,
		org.MetricsExplorerBaseURL, org.MetricsExplorerOrgID,
		org.LogsExplorerBaseURL, org.LogsExplorerOrgID,
		org.UpdatedAt, org.ID,
	)
	if err != nil {
		return fmt.Errorf("updating organization: %w", err)
	}
	return requireRowAffected(res)
}

func (s *SQLiteStore) DeleteOrganization(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM organizations WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting organization: %w", err)
	}
	return requireRowAffected(res)
}

// --- Conversations ---

func (s *SQLiteStore) CreateConversation(ctx context.Context, conv *Conversation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (
			id, organization_id, title, summary, summary_message_count,
			last_agent_stats, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		conv.ID, conv.OrganizationID, conv.Title, conv.Summary,
		conv.SummaryMessageCount, conv.LastAgentStats, conv.CreatedAt, conv.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting conversation: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	var conv Conversation
	err := s.db.QueryRowContext(ctx, `
		SELECT id, organization_id, title, summary, summary_message_count,
			last_agent_stats, created_at, updated_at
		FROM conversations WHERE id = ?`, id).Scan(
		&conv.ID, &conv.OrganizationID, &conv.Title, &conv.Summary,
		&conv.SummaryMessageCount, &conv.LastAgentStats, &conv.CreatedAt, &conv.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning conversation: %w", err)
	}
	return &conv, nil
}

func (s *SQLiteStore) ListConversations(ctx context.Context, orgID string, limit, offset int) ([]*Conversation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, organization_id, title, summary, summary_message_count,
			last_agent_stats, created_at, updated_at
		FROM conversations
		WHERE organization_id = ?
		ORDER BY updated_at DESC
		LIMIT ? OFFSET ?`, orgID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	defer rows.Close()

	var convs []*Conversation
	for rows.Next() {
		var conv Conversation
		if err := rows.Scan(
			&conv.ID, &conv.OrganizationID, &conv.Title, &conv.Summary,
			&conv.SummaryMessageCount, &conv.LastAgentStats, &conv.CreatedAt, &conv.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning conversation: %w", err)
		}
		convs = append(convs, &conv)
	}
	return convs, rows.Err()
}

func (s *SQLiteStore) UpdateConversation(ctx context.Context, conv *Conversation) error {
	conv.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE conversations SET
			title = ?, summary = ?, summary_message_count = ?,
			last_agent_stats = ?, updated_at = ?
		WHERE id = ?`,
		conv.Title, conv.Summary, conv.SummaryMessageCount,
		conv.LastAgentStats, conv.UpdatedAt, conv.ID,
	)
	if err != nil {
		return fmt.Errorf("updating conversation: %w", err)
	}
	return requireRowAffected(res)
}

func (s *SQLiteStore) DeleteConversation(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM conversations WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}
	return requireRowAffected(res)
}

// --- Messages ---

func (s *SQLiteStore) SaveMessage(ctx context.Context, msg *Message) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (
			id, conversation_id, role, content, context,
			tool_name, tool_call_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.ConversationID, msg.Role, msg.Content, msg.Context,
		msg.ToolName, msg.ToolCallID, msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}

	// Touch the parent conversation so ordering by updated_at stays correct
	_, err = s.db.ExecContext(ctx,
		"UPDATE conversations SET updated_at = ? WHERE id = ?",
		time.Now().UTC(), msg.ConversationID)
	if err != nil {
		s.logger.Warn("failed to touch conversation", "error", err, "conversation_id", msg.ConversationID)
	}
	return nil
}

func (s *SQLiteStore) ListMessages(ctx context.Context, conversationID string, limit int) ([]*Message, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, role, content, context,
			tool_name, tool_call_id, created_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at ASC, id ASC
		LIMIT ?`, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	defer rows.Close()

	var msgs []*Message
	for rows.Next() {
		var msg Message
		if err := rows.Scan(
			&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content, &msg.Context,
			&msg.ToolName, &msg.ToolCallID, &msg.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		msgs = append(msgs, &msg)
	}
	return msgs, rows.Err()
}

func (s *SQLiteStore) CountMessages(ctx context.Context, conversationID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM messages WHERE conversation_id = ?", conversationID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting messages: %w", err)
	}
	return count, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func requireRowAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
