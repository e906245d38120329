// ABOUTME: Store interface and data types for fixai-gateway persistence
// ABOUTME: Defines Organization, Conversation, Message structs and the Store interface

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateSlug is returned when creating an organization whose slug is taken
var ErrDuplicateSlug = errors.New("organization slug already exists")

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Organization maps a tenant to its diagnostic service endpoints.
type Organization struct {
	ID          string
	Name        string
	Slug        string
	Description string
	IsActive    bool

	// Code Parser service mapping
	CodeParserBaseURL string
	CodeParserOrgID   string
	CodeParserRepoID  string

	// Metrics Explorer service mapping
	MetricsExplorerBaseURL string
	MetricsExplorerOrgID   string

	// Logs Explorer service mapping
	LogsExplorerBaseURL string
	LogsExplorerOrgID   string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Conversation is an ordered sequence of messages owned by an organization.
// Summary and SummaryMessageCount hold the rolling summary used to keep long
// histories inside the agent's context budget.
type Conversation struct {
	ID                  string
	OrganizationID      string
	Title               string
	Summary             string
	SummaryMessageCount int
	LastAgentStats      string // JSON snapshot of the final AgentStats for the last turn
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Message is one immutable entry in a conversation.
// Context carries the optional user-provided triple (service, environment,
// file_path) for user messages, or the tool arguments for tool-call messages.
type Message struct {
	ID             string
	ConversationID string
	Role           string // "user", "assistant", "tool"
	Content        string
	Context        string // JSON, empty when absent
	ToolName       string // set for tool-role and tool-call messages
	ToolCallID     string // links a tool call to its result
	CreatedAt      time.Time
}

// Store defines the interface for organization/conversation/message persistence
type Store interface {
	// Organizations
	CreateOrganization(ctx context.Context, org *Organization) error
	GetOrganization(ctx context.Context, id string) (*Organization, error)
	GetOrganizationBySlug(ctx context.Context, slug string) (*Organization, error)
	ListOrganizations(ctx context.Context, limit, offset int) ([]*Organization, error)
	UpdateOrganization(ctx context.Context, org *Organization) error
	DeleteOrganization(ctx context.Context, id string) error

	// Conversations
	CreateConversation(ctx context.Context, conv *Conversation) error
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	ListConversations(ctx context.Context, orgID string, limit, offset int) ([]*Conversation, error)
	UpdateConversation(ctx context.Context, conv *Conversation) error
	DeleteConversation(ctx context.Context, id string) error

	// Messages
	SaveMessage(ctx context.Context, msg *Message) error
	ListMessages(ctx context.Context, conversationID string, limit int) ([]*Message, error)
	CountMessages(ctx context.Context, conversationID string) (int, error)

	// Close releases any resources held by the store
	Close() error
}
