// ABOUTME: Summarization of older conversation history for long chat memory
// ABOUTME: Condenses prior exchanges into a short paragraph via a tool-free model call

package conversation

import (
	"context"
	"log/slog"
	"strings"

	"github.com/fixai/fixai-gateway/internal/model"
	"github.com/fixai/fixai-gateway/internal/store"
)

const summarySystem = `You are summarizing a prior SRE/on-call debugging chat session.
Produce a single short paragraph (2-4 sentences) that captures:
- What the user asked and any services/endpoints mentioned
- What was investigated (which tools: code, metrics, logs) and key findings
- Any conclusions or open questions
Keep it factual and concise. No markdown. Write in past tense.`

const summaryFallbackChars = 500

// summarizableText flattens user/assistant exchanges into plain text. Tool
// messages and empty content are skipped.
func summarizableText(messages []*store.Message) string {
	var parts []string
	for _, m := range messages {
		content := strings.TrimSpace(m.Content)
		if content == "" || m.Role == store.RoleTool {
			continue
		}
		switch m.Role {
		case store.RoleUser:
			parts = append(parts, "User: "+content)
		case store.RoleAssistant:
			parts = append(parts, "Assistant: "+content)
		}
	}
	return strings.Join(parts, "\n\n")
}

// summarize condenses the given messages into a short paragraph. On model
// failure it degrades to a truncated transcript rather than blocking the turn.
func summarize(ctx context.Context, client ModelClient, messages []*store.Message, logger *slog.Logger) string {
	if len(messages) == 0 {
		return ""
	}
	text := summarizableText(messages)
	if strings.TrimSpace(text) == "" {
		return ""
	}

	prompt := "Summarize the following conversation between the user and the SRE assistant.\n\n---\n" + text + "\n---"
	comp, err := client.Complete(ctx, model.CompletionRequest{
		System:   summarySystem,
		Messages: []model.Message{model.UserMessage(prompt)},
	})
	if err != nil {
		logger.Error("summarization failed, falling back to truncation", "error", err)
		if len(text) > summaryFallbackChars {
			return text[:summaryFallbackChars] + "..."
		}
		return text
	}

	summary := strings.TrimSpace(comp.Text)
	logger.Info("conversation summarized", "message_count", len(messages), "summary_len", len(summary))
	return summary
}
