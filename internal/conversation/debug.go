// ABOUTME: Debug trace reconstruction from persisted conversation messages
// ABOUTME: Produces typed timeline entries plus per-role counts

package conversation

import (
	"encoding/json"
	"time"

	"github.com/fixai/fixai-gateway/internal/store"
)

// TraceEntry is one typed event in a conversation's reconstructed timeline.
type TraceEntry struct {
	Type       string    `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	Content    string    `json:"content,omitempty"`
	Context    any       `json:"context,omitempty"`
	Tool       string    `json:"tool,omitempty"`
	ToolCallID string    `json:"tool_call_id,omitempty"`
	Arguments  any       `json:"arguments,omitempty"`
}

// TraceSummary counts the trace's entries by kind.
type TraceSummary struct {
	TotalMessages     int `json:"total_messages"`
	UserMessages      int `json:"user_messages"`
	AssistantMessages int `json:"assistant_messages"`
	ToolCalls         int `json:"tool_calls"`
	ToolResponses     int `json:"tool_responses"`
}

// DebugTrace is the full reconstructed history of a conversation, derived
// entirely from persisted messages, never from live turn state.
type DebugTrace struct {
	ConversationID string       `json:"conversation_id"`
	Title          string       `json:"title"`
	CreatedAt      time.Time    `json:"created_at"`
	Trace          []TraceEntry `json:"trace"`
	Summary        TraceSummary `json:"summary"`
}

// BuildDebugTrace reconstructs the timeline from stored messages. Assistant
// messages with a tool name are tool calls; plain assistant messages are
// responses.
func BuildDebugTrace(conv *store.Conversation, msgs []*store.Message) *DebugTrace {
	trace := make([]TraceEntry, 0, len(msgs))
	summary := TraceSummary{TotalMessages: len(msgs)}

	for _, m := range msgs {
		switch {
		case m.Role == store.RoleUser:
			summary.UserMessages++
			trace = append(trace, TraceEntry{
				Type:      "user_message",
				Timestamp: m.CreatedAt,
				Content:   m.Content,
				Context:   decodeJSON(m.Context),
			})

		case m.Role == store.RoleAssistant && m.ToolName != "":
			summary.ToolCalls++
			trace = append(trace, TraceEntry{
				Type:       "tool_call",
				Timestamp:  m.CreatedAt,
				Tool:       m.ToolName,
				ToolCallID: m.ToolCallID,
				Arguments:  decodeJSON(m.Context),
			})

		case m.Role == store.RoleAssistant:
			summary.AssistantMessages++
			trace = append(trace, TraceEntry{
				Type:      "assistant_response",
				Timestamp: m.CreatedAt,
				Content:   m.Content,
			})

		case m.Role == store.RoleTool:
			summary.ToolResponses++
			trace = append(trace, TraceEntry{
				Type:       "tool_response",
				Timestamp:  m.CreatedAt,
				Tool:       m.ToolName,
				ToolCallID: m.ToolCallID,
				Content:    m.Content,
			})
		}
	}

	return &DebugTrace{
		ConversationID: conv.ID,
		Title:          conv.Title,
		CreatedAt:      conv.CreatedAt,
		Trace:          trace,
		Summary:        summary,
	}
}

func decodeJSON(raw string) any {
	if raw == "" {
		return nil
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return v
}
