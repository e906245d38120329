// ABOUTME: HTTP handlers for organization and conversation APIs
// ABOUTME: CRUD endpoints plus the SSE message stream, stop, and debug trace

package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/yuin/goldmark"

	"github.com/fixai/fixai-gateway/internal/agentloop"
	"github.com/fixai/fixai-gateway/internal/conversation"
	"github.com/fixai/fixai-gateway/internal/store"
)

// OrganizationCreateRequest is the JSON body for POST /api/v1/organizations.
type OrganizationCreateRequest struct {
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description,omitempty"`

	CodeParserBaseURL string `json:"code_parser_base_url,omitempty"`
	CodeParserOrgID   string `json:"code_parser_org_id,omitempty"`
	CodeParserRepoID  string `json:"code_parser_repo_id,omitempty"`

	MetricsExplorerBaseURL string `json:"metrics_explorer_base_url,omitempty"`
	MetricsExplorerOrgID   string `json:"metrics_explorer_org_id,omitempty"`

	LogsExplorerBaseURL string `json:"logs_explorer_base_url,omitempty"`
	LogsExplorerOrgID   string `json:"logs_explorer_org_id,omitempty"`
}

// OrganizationUpdateRequest is the JSON body for PATCH; nil fields are left
// unchanged.
type OrganizationUpdateRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	IsActive    *bool   `json:"is_active,omitempty"`

	CodeParserBaseURL *string `json:"code_parser_base_url,omitempty"`
	CodeParserOrgID   *string `json:"code_parser_org_id,omitempty"`
	CodeParserRepoID  *string `json:"code_parser_repo_id,omitempty"`

	MetricsExplorerBaseURL *string `json:"metrics_explorer_base_url,omitempty"`
	MetricsExplorerOrgID   *string `json:"metrics_explorer_org_id,omitempty"`

	LogsExplorerBaseURL *string `json:"logs_explorer_base_url,omitempty"`
	LogsExplorerOrgID   *string `json:"logs_explorer_org_id,omitempty"`
}

// OrganizationResponse mirrors the stored organization.
type OrganizationResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description,omitempty"`
	IsActive    bool   `json:"is_active"`

	CodeParserBaseURL string `json:"code_parser_base_url,omitempty"`
	CodeParserOrgID   string `json:"code_parser_org_id,omitempty"`
	CodeParserRepoID  string `json:"code_parser_repo_id,omitempty"`

	MetricsExplorerBaseURL string `json:"metrics_explorer_base_url,omitempty"`
	MetricsExplorerOrgID   string `json:"metrics_explorer_org_id,omitempty"`

	LogsExplorerBaseURL string `json:"logs_explorer_base_url,omitempty"`
	LogsExplorerOrgID   string `json:"logs_explorer_org_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ConversationCreateRequest is the JSON body for creating a conversation.
type ConversationCreateRequest struct {
	Title string `json:"title,omitempty"`
}

// ConversationResponse is the summary form used in lists.
type ConversationResponse struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Title          string    `json:"title"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	MessageCount   int       `json:"message_count"`
	LastAgentStats any       `json:"last_agent_stats,omitempty"`
	TurnActive     bool      `json:"turn_active"`
}

// MessageResponse is one persisted message.
type MessageResponse struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	Context        any       `json:"context,omitempty"`
	ToolName       string    `json:"tool_name,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// ConversationDetailResponse is a conversation with its full message list.
type ConversationDetailResponse struct {
	ConversationResponse
	Messages []MessageResponse `json:"messages"`
}

// SendMessageRequest is the JSON body for POST .../messages.
type SendMessageRequest struct {
	Content string                 `json:"content"`
	Context *agentloop.UserContext `json:"context,omitempty"`
}

func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}

func (g *Gateway) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Error("failed to encode response", "error", err)
	}
}

func orgResponse(o *store.Organization) OrganizationResponse {
	return OrganizationResponse{
		ID:                     o.ID,
		Name:                   o.Name,
		Slug:                   o.Slug,
		Description:            o.Description,
		IsActive:               o.IsActive,
		CodeParserBaseURL:      o.CodeParserBaseURL,
		CodeParserOrgID:        o.CodeParserOrgID,
		CodeParserRepoID:       o.CodeParserRepoID,
		MetricsExplorerBaseURL: o.MetricsExplorerBaseURL,
		MetricsExplorerOrgID:   o.MetricsExplorerOrgID,
		LogsExplorerBaseURL:    o.LogsExplorerBaseURL,
		LogsExplorerOrgID:      o.LogsExplorerOrgID,
		CreatedAt:              o.CreatedAt,
		UpdatedAt:              o.UpdatedAt,
	}
}

// --- organizations ---

func (g *Gateway) handleCreateOrganization(w http.ResponseWriter, r *http.Request) {
	var req OrganizationCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Name == "" || req.Slug == "" {
		g.sendJSONError(w, http.StatusBadRequest, "name and slug are required")
		return
	}

	now := time.Now().UTC()
	org := &store.Organization{
		ID:                     uuid.New().String(),
		Name:                   req.Name,
		Slug:                   req.Slug,
		Description:            req.Description,
		IsActive:               true,
		CodeParserBaseURL:      req.CodeParserBaseURL,
		CodeParserOrgID:        req.CodeParserOrgID,
		CodeParserRepoID:       req.CodeParserRepoID,
		MetricsExplorerBaseURL: req.MetricsExplorerBaseURL,
		MetricsExplorerOrgID:   req.MetricsExplorerOrgID,
		LogsExplorerBaseURL:    req.LogsExplorerBaseURL,
		LogsExplorerOrgID:      req.LogsExplorerOrgID,
		CreatedAt:              now,
		UpdatedAt:              now,
	}

	if err := g.store.CreateOrganization(r.Context(), org); err != nil {
		if errors.Is(err, store.ErrDuplicateSlug) {
			g.sendJSONError(w, http.StatusConflict,
				fmt.Sprintf("Organization with slug '%s' already exists", req.Slug))
			return
		}
		g.logger.Error("failed to create organization", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	g.writeJSON(w, http.StatusCreated, orgResponse(org))
}

func (g *Gateway) handleListOrganizations(w http.ResponseWriter, r *http.Request) {
	limit, offset := paging(r, 100)
	orgs, err := g.store.ListOrganizations(r.Context(), limit, offset)
	if err != nil {
		g.logger.Error("failed to list organizations", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	out := make([]OrganizationResponse, 0, len(orgs))
	for _, o := range orgs {
		out = append(out, orgResponse(o))
	}
	g.writeJSON(w, http.StatusOK, out)
}

func (g *Gateway) handleGetOrganization(w http.ResponseWriter, r *http.Request) {
	org, ok := g.lookupOrg(w, r)
	if !ok {
		return
	}
	g.writeJSON(w, http.StatusOK, orgResponse(org))
}

func (g *Gateway) handleUpdateOrganization(w http.ResponseWriter, r *http.Request) {
	org, ok := g.lookupOrg(w, r)
	if !ok {
		return
	}

	var req OrganizationUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	applyString := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	applyString(&org.Name, req.Name)
	applyString(&org.Description, req.Description)
	if req.IsActive != nil {
		org.IsActive = *req.IsActive
	}
	applyString(&org.CodeParserBaseURL, req.CodeParserBaseURL)
	applyString(&org.CodeParserOrgID, req.CodeParserOrgID)
	applyString(&org.CodeParserRepoID, req.CodeParserRepoID)
	applyString(&org.MetricsExplorerBaseURL, req.MetricsExplorerBaseURL)
	applyString(&org.MetricsExplorerOrgID, req.MetricsExplorerOrgID)
	applyString(&org.LogsExplorerBaseURL, req.LogsExplorerBaseURL)
	applyString(&org.LogsExplorerOrgID, req.LogsExplorerOrgID)

	if err := g.store.UpdateOrganization(r.Context(), org); err != nil {
		g.logger.Error("failed to update organization", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	g.writeJSON(w, http.StatusOK, orgResponse(org))
}

func (g *Gateway) handleDeleteOrganization(w http.ResponseWriter, r *http.Request) {
	org, ok := g.lookupOrg(w, r)
	if !ok {
		return
	}
	if err := g.store.DeleteOrganization(r.Context(), org.ID); err != nil {
		g.logger.Error("failed to delete organization", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- conversations ---

func (g *Gateway) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	org, ok := g.lookupOrg(w, r)
	if !ok {
		return
	}

	var req ConversationCreateRequest
	if r.Body != nil {
		// an empty body is fine; the title defaults
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if req.Title == "" {
		req.Title = "New Conversation"
	}

	now := time.Now().UTC()
	conv := &store.Conversation{
		ID:             uuid.New().String(),
		OrganizationID: org.ID,
		Title:          req.Title,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := g.store.CreateConversation(r.Context(), conv); err != nil {
		g.logger.Error("failed to create conversation", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	g.writeJSON(w, http.StatusCreated, g.conversationResponse(r, conv, 0))
}

func (g *Gateway) handleListConversations(w http.ResponseWriter, r *http.Request) {
	org, ok := g.lookupOrg(w, r)
	if !ok {
		return
	}

	limit, offset := paging(r, 50)
	convs, err := g.store.ListConversations(r.Context(), org.ID, limit, offset)
	if err != nil {
		g.logger.Error("failed to list conversations", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	out := make([]ConversationResponse, 0, len(convs))
	for _, conv := range convs {
		count, err := g.store.CountMessages(r.Context(), conv.ID)
		if err != nil {
			count = 0
		}
		out = append(out, g.conversationResponse(r, conv, count))
	}
	g.writeJSON(w, http.StatusOK, out)
}

func (g *Gateway) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	conv, ok := g.lookupConversation(w, r)
	if !ok {
		return
	}
	msgs, err := g.store.ListMessages(r.Context(), conv.ID, 0)
	if err != nil {
		g.logger.Error("failed to list messages", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	detail := ConversationDetailResponse{
		ConversationResponse: g.conversationResponse(r, conv, len(msgs)),
		Messages:             make([]MessageResponse, 0, len(msgs)),
	}
	for _, m := range msgs {
		detail.Messages = append(detail.Messages, MessageResponse{
			ID:             m.ID,
			ConversationID: m.ConversationID,
			Role:           m.Role,
			Content:        m.Content,
			Context:        decodeJSONField(m.Context),
			ToolName:       m.ToolName,
			CreatedAt:      m.CreatedAt,
		})
	}
	g.writeJSON(w, http.StatusOK, detail)
}

// handleDeleteConversation removes a conversation and its messages. An active
// turn is cancelled first so its eventual writes fail cleanly against the
// deleted row instead of racing it.
func (g *Gateway) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	conv, ok := g.lookupConversation(w, r)
	if !ok {
		return
	}

	if g.sessions.Stop(conv.ID) {
		g.logger.Info("cancelled active turn for deleted conversation", "conversation_id", conv.ID)
	}
	if err := g.store.DeleteConversation(r.Context(), conv.ID); err != nil {
		g.logger.Error("failed to delete conversation", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (g *Gateway) handleStopTurn(w http.ResponseWriter, r *http.Request) {
	conv, ok := g.lookupConversation(w, r)
	if !ok {
		return
	}
	stopped := g.sessions.Stop(conv.ID)
	g.writeJSON(w, http.StatusOK, map[string]bool{"stopped": stopped})
}

func (g *Gateway) handleDebugTrace(w http.ResponseWriter, r *http.Request) {
	conv, ok := g.lookupConversation(w, r)
	if !ok {
		return
	}
	msgs, err := g.store.ListMessages(r.Context(), conv.ID, 0)
	if err != nil {
		g.logger.Error("failed to list messages", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	trace := conversation.BuildDebugTrace(conv, msgs)
	if r.URL.Query().Get("format") == "html" {
		g.renderTraceHTML(w, trace)
		return
	}
	g.writeJSON(w, http.StatusOK, trace)
}

// renderTraceHTML renders the trace as markdown and converts it for viewing
// in a browser.
func (g *Gateway) renderTraceHTML(w http.ResponseWriter, trace *conversation.DebugTrace) {
	var md bytes.Buffer
	fmt.Fprintf(&md, "# Debug trace: %s\n\n", trace.Title)
	fmt.Fprintf(&md, "Conversation `%s`, created %s\n\n", trace.ConversationID, trace.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(&md, "%d messages: %d user, %d assistant, %d tool calls, %d tool responses\n\n",
		trace.Summary.TotalMessages, trace.Summary.UserMessages, trace.Summary.AssistantMessages,
		trace.Summary.ToolCalls, trace.Summary.ToolResponses)

	for _, e := range trace.Trace {
		switch e.Type {
		case "user_message":
			fmt.Fprintf(&md, "## User (%s)\n\n%s\n\n", e.Timestamp.Format(time.TimeOnly), e.Content)
		case "assistant_response":
			fmt.Fprintf(&md, "## Assistant (%s)\n\n%s\n\n", e.Timestamp.Format(time.TimeOnly), e.Content)
		case "tool_call":
			args, _ := json.Marshal(e.Arguments)
			fmt.Fprintf(&md, "### Tool call: %s (%s)\n\n```json\n%s\n```\n\n", e.Tool, e.Timestamp.Format(time.TimeOnly), args)
		case "tool_response":
			fmt.Fprintf(&md, "### Tool result: %s\n\n```\n%s\n```\n\n", e.Tool, e.Content)
		}
	}

	var html bytes.Buffer
	if err := goldmark.Convert(md.Bytes(), &html); err != nil {
		g.logger.Error("failed to render trace", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(html.Bytes())
}

// --- message streaming ---

func (g *Gateway) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	conv, ok := g.lookupConversation(w, r)
	if !ok {
		return
	}
	org, err := g.store.GetOrganization(r.Context(), conv.OrganizationID)
	if err != nil {
		g.sendJSONError(w, http.StatusNotFound, "Organization not found")
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Content == "" {
		g.sendJSONError(w, http.StatusBadRequest, "content is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		g.logger.Error("streaming not supported")
		g.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// Client disconnect cancels the turn through r.Context; stop and delete
	// cancel it through the registry.
	turnCtx, release, err := g.sessions.Begin(r.Context(), conv.ID)
	if errors.Is(err, ErrTurnActive) {
		g.sendJSONError(w, http.StatusConflict, "A turn is already active for this conversation")
		return
	}
	defer release()

	setSSEHeaders(w)
	flusher.Flush()

	emitted := 0
	stream := g.sseEmitter(w, flusher)
	emit := func(e agentloop.Event) {
		emitted++
		stream(e)
	}

	if _, err := g.conversation.RunTurn(turnCtx, org, conv, req.Content, req.Context, emit); err != nil {
		g.logger.Error("turn failed", "conversation_id", conv.ID, "error", err)
		// loop failures already emitted a terminal error event; only
		// pre-loop failures leave the stream without one
		if emitted == 0 {
			g.writeSSEEvent(w, string(agentloop.EventError), agentloop.ErrorPayload{Error: err.Error()})
			flusher.Flush()
		}
	}
}

// --- helpers ---

func (g *Gateway) lookupOrg(w http.ResponseWriter, r *http.Request) (*store.Organization, bool) {
	org, err := g.store.GetOrganization(r.Context(), chi.URLParam(r, "orgID"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			g.sendJSONError(w, http.StatusNotFound, "Organization not found")
		} else {
			g.logger.Error("failed to load organization", "error", err)
			g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		}
		return nil, false
	}
	return org, true
}

func (g *Gateway) lookupConversation(w http.ResponseWriter, r *http.Request) (*store.Conversation, bool) {
	conv, err := g.store.GetConversation(r.Context(), chi.URLParam(r, "conversationID"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			g.sendJSONError(w, http.StatusNotFound, "Conversation not found")
		} else {
			g.logger.Error("failed to load conversation", "error", err)
			g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		}
		return nil, false
	}
	return conv, true
}

func (g *Gateway) conversationResponse(r *http.Request, conv *store.Conversation, messageCount int) ConversationResponse {
	return ConversationResponse{
		ID:             conv.ID,
		OrganizationID: conv.OrganizationID,
		Title:          conv.Title,
		CreatedAt:      conv.CreatedAt,
		UpdatedAt:      conv.UpdatedAt,
		MessageCount:   messageCount,
		LastAgentStats: decodeJSONField(conv.LastAgentStats),
		TurnActive:     g.sessions.Active(conv.ID),
	}
}

func decodeJSONField(raw string) any {
	if raw == "" {
		return nil
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return v
}

func paging(r *http.Request, defaultLimit int) (limit, offset int) {
	limit = defaultLimit
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		limit = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v >= 0 {
		offset = v
	}
	return limit, offset
}
