// ABOUTME: Turn orchestration: history building, agent loop execution, persistence
// ABOUTME: Owns auto-titling, summarized memory, and the post-turn message writes

package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/fixai/fixai-gateway/internal/agentloop"
	"github.com/fixai/fixai-gateway/internal/model"
	"github.com/fixai/fixai-gateway/internal/store"
	"github.com/fixai/fixai-gateway/internal/tools"
)

// ModelClient is the backend used for both agent turns and summarization.
type ModelClient = agentloop.ModelClient

const (
	// recentMessageCount is how many trailing messages stay verbatim when the
	// history is summarized: the last two user/assistant exchanges.
	recentMessageCount = 4

	// minMessagesForSummary is the history size at which summarization kicks in.
	minMessagesForSummary = 6

	titleMaxChars = 80

	noResponseText = "No response generated."
)

// ServiceDefaults are org-independent fallback base URLs for the three
// diagnostic providers. Per-org settings in the store take precedence.
type ServiceDefaults struct {
	CodeParserBaseURL      string
	MetricsExplorerBaseURL string
	LogsExplorerBaseURL    string
}

// Service runs conversation turns end to end.
type Service struct {
	store       store.Store
	model       ModelClient
	budgets     agentloop.Budgets
	toolTimeout time.Duration
	defaults    ServiceDefaults
	logger      *slog.Logger
}

func NewService(st store.Store, mc ModelClient, budgets agentloop.Budgets, toolTimeout time.Duration, defaults ServiceDefaults, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:       st,
		model:       mc,
		budgets:     budgets,
		toolTimeout: toolTimeout,
		defaults:    defaults,
		logger:      logger.With("component", "conversation"),
	}
}

// RunTurn executes one user turn: persists the user message, builds the
// (possibly summarized) history, runs the agent loop emitting progress events,
// and persists the turn's tool calls and final answer.
//
// A model-backend failure returns an error and persists nothing beyond the
// user message; the assistant reply is never stored partially.
func (s *Service) RunTurn(
	ctx context.Context,
	org *store.Organization,
	conv *store.Conversation,
	content string,
	userCtx *agentloop.UserContext,
	emit func(agentloop.Event),
) (*agentloop.Outcome, error) {
	existing, err := s.store.ListMessages(ctx, conv.ID, 0)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}

	contextJSON := ""
	if !userCtx.IsEmpty() {
		if b, err := json.Marshal(userCtx); err == nil {
			contextJSON = string(b)
		}
	}
	userMsg := &store.Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		Role:           store.RoleUser,
		Content:        content,
		Context:        contextJSON,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.store.SaveMessage(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("saving user message: %w", err)
	}

	if len(existing) == 0 {
		conv.Title = autoTitle(content)
		if err := s.store.UpdateConversation(ctx, conv); err != nil {
			s.logger.Warn("auto-title update failed", "conversation_id", conv.ID, "error", err)
		}
	}

	history, summary := s.buildHistory(ctx, conv, existing)

	loop := agentloop.New(s.model, s.registryForOrg(org), s.budgets, s.logger)
	outcome, err := loop.Run(ctx, agentloop.Request{
		History:     history,
		Summary:     summary,
		UserMessage: content,
		Context:     userCtx,
	}, emit)
	if err != nil {
		return nil, err
	}

	// Persist even when the user stopped mid-turn; detach from the request's
	// cancellation so completed work is not lost.
	s.persistTurn(context.WithoutCancel(ctx), conv, outcome)
	return outcome, nil
}

func autoTitle(content string) string {
	// count runes, not bytes, so multibyte text is never cut mid-character
	if runes := []rune(content); len(runes) > titleMaxChars {
		return string(runes[:titleMaxChars]) + "..."
	}
	return content
}

// buildHistory returns the model history for the turn. Small chats pass the
// full user/assistant history; large chats summarize everything but the last
// two exchanges, caching the summary on the conversation row so a turn only
// re-summarizes when older history has grown past the cached coverage.
func (s *Service) buildHistory(ctx context.Context, conv *store.Conversation, existing []*store.Message) ([]model.Message, string) {
	if len(existing) < minMessagesForSummary {
		return toModelMessages(existing), ""
	}

	toSummarize := existing[:len(existing)-recentMessageCount]
	recent := existing[len(existing)-recentMessageCount:]

	if conv.Summary == "" || conv.SummaryMessageCount < len(toSummarize) {
		conv.Summary = summarize(ctx, s.model, toSummarize, s.logger)
		conv.SummaryMessageCount = len(toSummarize)
		if err := s.store.UpdateConversation(ctx, conv); err != nil {
			s.logger.Warn("caching summary failed", "conversation_id", conv.ID, "error", err)
		}
	}

	return toModelMessages(recent), conv.Summary
}

// toModelMessages converts persisted messages to model history. Tool-role
// messages are dropped: stored tool output is for debugging, not re-feeding.
func toModelMessages(msgs []*store.Message) []model.Message {
	history := make([]model.Message, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case store.RoleUser:
			history = append(history, model.UserMessage(m.Content))
		case store.RoleAssistant:
			history = append(history, model.AssistantMessage(m.Content))
		}
	}
	return history
}

// registryForOrg wires tool clients from the org's service configuration,
// falling back to the gateway-wide default base URLs.
func (s *Service) registryForOrg(org *store.Organization) *tools.Registry {
	cfg := tools.Config{
		CallTimeout:        s.toolTimeout,
		FlowResultMaxChars: s.budgets.ToolResultMaxChars,
	}

	if base := firstNonEmpty(org.CodeParserBaseURL, s.defaults.CodeParserBaseURL); base != "" && org.CodeParserOrgID != "" {
		cfg.CodeParser = tools.NewCodeParserClient(base, org.CodeParserOrgID, org.CodeParserRepoID, s.logger)
	}
	if base := firstNonEmpty(org.MetricsExplorerBaseURL, s.defaults.MetricsExplorerBaseURL); base != "" && org.MetricsExplorerOrgID != "" {
		cfg.MetricsExplorer = tools.NewMetricsClient(base, org.MetricsExplorerOrgID, s.logger)
	}
	if base := firstNonEmpty(org.LogsExplorerBaseURL, s.defaults.LogsExplorerBaseURL); base != "" && org.LogsExplorerOrgID != "" {
		cfg.LogsExplorer = tools.NewLogsClient(base, org.LogsExplorerOrgID, s.logger)
	}

	return tools.NewRegistry(cfg, s.logger)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// persistTurn writes the turn's tool calls, tool responses, and final answer
// as messages, and caches the final stats on the conversation row. Timestamps
// are spaced a millisecond apart so ordering survives the round trip.
func (s *Service) persistTurn(ctx context.Context, conv *store.Conversation, outcome *agentloop.Outcome) {
	base := time.Now().UTC()
	seq := 0
	next := func() time.Time {
		t := base.Add(time.Duration(seq) * time.Millisecond)
		seq++
		return t
	}

	for _, step := range outcome.Steps {
		argsJSON := ""
		if b, err := json.Marshal(step.Args); err == nil {
			argsJSON = string(b)
		}
		call := &store.Message{
			ID:             uuid.New().String(),
			ConversationID: conv.ID,
			Role:           store.RoleAssistant,
			Content:        "Calling tool: " + step.Name,
			ToolName:       step.Name,
			ToolCallID:     step.ID,
			Context:        argsJSON,
			CreatedAt:      next(),
		}
		if err := s.store.SaveMessage(ctx, call); err != nil {
			s.logger.Error("saving tool call failed", "conversation_id", conv.ID, "tool", step.Name, "error", err)
			return
		}

		preview := step.Result
		if runes := []rune(preview); len(runes) > 2000 {
			preview = string(runes[:2000])
		}
		resp := &store.Message{
			ID:             uuid.New().String(),
			ConversationID: conv.ID,
			Role:           store.RoleTool,
			Content:        preview,
			ToolName:       step.Name,
			ToolCallID:     step.ID,
			CreatedAt:      next(),
		}
		if err := s.store.SaveMessage(ctx, resp); err != nil {
			s.logger.Error("saving tool response failed", "conversation_id", conv.ID, "tool", step.Name, "error", err)
			return
		}
	}

	finalText := outcome.FinalText
	if finalText == "" {
		finalText = noResponseText
	}
	assistant := &store.Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		Role:           store.RoleAssistant,
		Content:        finalText,
		CreatedAt:      next(),
	}
	if err := s.store.SaveMessage(ctx, assistant); err != nil {
		s.logger.Error("saving assistant response failed", "conversation_id", conv.ID, "error", err)
		return
	}

	if statsJSON, err := json.Marshal(outcome.Stats); err == nil {
		conv.LastAgentStats = string(statsJSON)
		if err := s.store.UpdateConversation(ctx, conv); err != nil {
			s.logger.Warn("caching agent stats failed", "conversation_id", conv.ID, "error", err)
		}
	}
}
