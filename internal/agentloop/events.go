// ABOUTME: Typed progress events emitted by the agent loop during a turn
// ABOUTME: Payload structs define the wire shape shared by server encoder and client decoder

package agentloop

// EventType identifies one kind of progress event within a turn.
type EventType string

const (
	EventToken     EventType = "token"
	EventToolStart EventType = "tool_start"
	EventToolEnd   EventType = "tool_end"
	EventStats     EventType = "stats"
	EventDone      EventType = "done"
	EventError     EventType = "error"
)

// Event is one progress notification. Payload is the type-specific struct
// below; the encoder marshals it as the event's data.
type Event struct {
	Type    EventType
	Payload any
}

// TokenPayload carries one streamed text fragment of the final answer.
type TokenPayload struct {
	Content string `json:"content"`
}

// ToolStartPayload announces a tool invocation before it runs. ToolNumber is
// the 1-based ordinal among tool calls in this turn; ModelCall is the ordinal
// of the model call that requested it.
type ToolStartPayload struct {
	ID         string         `json:"id"`
	Tool       string         `json:"tool"`
	Args       map[string]any `json:"args"`
	ToolNumber int            `json:"tool_number"`
	ModelCall  int            `json:"ai_call"`
}

// ToolEndPayload reports a finished tool invocation. ResultPreview is capped;
// ResultLength is the untruncated result's byte length.
type ToolEndPayload struct {
	Tool          string `json:"tool"`
	ResultPreview string `json:"result_preview"`
	ResultLength  int    `json:"result_length"`
	DurationMS    int64  `json:"duration_ms"`
	IsError       bool   `json:"is_error,omitempty"`
}

// StatsPayload carries the running budget counters. Final marks the last
// stats emission of the turn.
type StatsPayload struct {
	AICalls         int     `json:"ai_calls"`
	MaxAICalls      int     `json:"max_ai_calls"`
	ToolCalls       int     `json:"tool_calls"`
	ElapsedSeconds  float64 `json:"elapsed_seconds"`
	EstimatedTokens int     `json:"estimated_tokens"`
	MaxTokens       int     `json:"max_tokens"`
	Final           bool    `json:"final,omitempty"`
}

// DonePayload carries the complete final answer text.
type DonePayload struct {
	Content string `json:"content"`
}

// ErrorPayload carries a user-visible turn failure.
type ErrorPayload struct {
	Error string `json:"error"`
}

func tokenEvent(content string) Event {
	return Event{Type: EventToken, Payload: TokenPayload{Content: content}}
}

func statsEvent(s StatsPayload) Event {
	return Event{Type: EventStats, Payload: s}
}

func doneEvent(content string) Event {
	return Event{Type: EventDone, Payload: DonePayload{Content: content}}
}

func errorEvent(msg string) Event {
	return Event{Type: EventError, Payload: ErrorPayload{Error: msg}}
}
