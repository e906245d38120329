// ABOUTME: Message and tool types exchanged with the chat-completion backend
// ABOUTME: Defines the neutral history format the agent loop accumulates per turn

package model

// Message roles in a turn history. System instructions are carried separately
// on the request, matching the backend's wire format.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one entry in the history sent to the backend.
type Message struct {
	Role       string
	Content    string
	ToolCalls  []ToolCall // set on assistant messages that requested tools
	ToolCallID string     // set on tool messages, links the result to its call
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

// ToolDefinition describes one tool in the catalog offered to the model.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// Usage reports token consumption for a single backend call.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Completion is the backend's reply: either plain text, or one or more
// requested tool calls, executed sequentially in the order given.
type Completion struct {
	Text       string
	ToolCalls  []ToolCall
	StopReason string
	Usage      Usage
}

// UserMessage builds a user-role message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage builds an assistant-role message.
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// ToolResultMessage builds a tool-role message carrying a tool's output.
func ToolResultMessage(toolCallID, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: toolCallID}
}
