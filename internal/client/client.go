// ABOUTME: HTTP client for the fixai-gateway API
// ABOUTME: Organization and conversation calls plus the turn event stream

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/fixai/fixai-gateway/internal/agentloop"
)

// Organization is the API's organization representation.
type Organization struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description,omitempty"`
	IsActive    bool   `json:"is_active"`
}

// Conversation is the API's conversation summary representation.
type Conversation struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Title          string    `json:"title"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	MessageCount   int       `json:"message_count"`
	TurnActive     bool      `json:"turn_active"`
}

// Message is one persisted conversation message.
type Message struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	ToolName  string    `json:"tool_name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ConversationDetail is a conversation with its message history.
type ConversationDetail struct {
	Conversation
	Messages []Message `json:"messages"`
}

// APIError is a non-2xx response from the gateway.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Detail)
}

// API talks to a running fixai-gateway over HTTP.
type API struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

func NewAPI(baseURL string, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{
		baseURL: baseURL,
		// no overall timeout: SendMessage holds a long-lived stream open
		http:   &http.Client{},
		logger: logger.With("component", "api-client"),
	}
}

func (a *API) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("calling gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	var body struct {
		Detail string `json:"detail"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Detail != "" {
		apiErr.Detail = body.Detail
	} else {
		apiErr.Detail = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

func (a *API) ListOrganizations(ctx context.Context) ([]Organization, error) {
	var orgs []Organization
	if err := a.do(ctx, http.MethodGet, "/api/v1/organizations", nil, &orgs); err != nil {
		return nil, err
	}
	return orgs, nil
}

func (a *API) ListConversations(ctx context.Context, orgID string) ([]Conversation, error) {
	var convs []Conversation
	path := "/api/v1/organizations/" + orgID + "/conversations"
	if err := a.do(ctx, http.MethodGet, path, nil, &convs); err != nil {
		return nil, err
	}
	return convs, nil
}

func (a *API) CreateConversation(ctx context.Context, orgID string) (*Conversation, error) {
	var conv Conversation
	path := "/api/v1/organizations/" + orgID + "/conversations"
	if err := a.do(ctx, http.MethodPost, path, map[string]string{}, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

func (a *API) GetConversation(ctx context.Context, conversationID string) (*ConversationDetail, error) {
	var detail ConversationDetail
	if err := a.do(ctx, http.MethodGet, "/api/v1/conversations/"+conversationID, nil, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

func (a *API) DeleteConversation(ctx context.Context, conversationID string) error {
	return a.do(ctx, http.MethodDelete, "/api/v1/conversations/"+conversationID, nil, nil)
}

// StopTurn asks the server to cancel the conversation's active turn. Reports
// whether a turn was actually running.
func (a *API) StopTurn(ctx context.Context, conversationID string) (bool, error) {
	var out map[string]bool
	path := "/api/v1/conversations/" + conversationID + "/stop"
	if err := a.do(ctx, http.MethodPost, path, map[string]string{}, &out); err != nil {
		return false, err
	}
	return out["stopped"], nil
}

// SendMessage starts a turn and returns the open event stream. The caller
// owns the body: feed it to Decode and close it to cancel the read side.
func (a *API) SendMessage(ctx context.Context, conversationID, content string, userCtx *agentloop.UserContext) (io.ReadCloser, error) {
	body := map[string]any{"content": content}
	if userCtx != nil && !userCtx.IsEmpty() {
		body["context"] = userCtx
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	path := "/api/v1/conversations/" + conversationID + "/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling gateway: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, decodeAPIError(resp)
	}
	return resp.Body, nil
}
