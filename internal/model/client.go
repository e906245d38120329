// ABOUTME: HTTP client for the Anthropic-style chat-completion backend
// ABOUTME: Converts neutral history to the wire format, supports blocking and token-streaming calls

package model

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Client calls the chat-completion backend over HTTP.
type Client struct {
	baseURL   string
	modelID   string
	apiKey    string
	maxTokens int
	http      *http.Client
	logger    *slog.Logger
}

// Options configures a Client. Zero values fall back to sensible defaults.
type Options struct {
	BaseURL   string
	ModelID   string
	APIKey    string
	MaxTokens int
	Timeout   time.Duration
}

// NewClient creates a backend client. Pass nil logger for default.
func NewClient(opts Options, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = 4096
	}
	if opts.Timeout == 0 {
		opts.Timeout = 120 * time.Second
	}
	return &Client{
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		modelID:   opts.ModelID,
		apiKey:    opts.APIKey,
		maxTokens: opts.MaxTokens,
		http:      &http.Client{Timeout: opts.Timeout},
		logger:    logger.With("component", "model"),
	}
}

// CompletionRequest is one backend call: system instructions, accumulated
// history, and an optional tool catalog. An empty Tools slice offers no tools,
// which is how forced synthesis prevents further tool requests.
type CompletionRequest struct {
	System   string
	Messages []Message
	Tools    []ToolDefinition
}

// Complete sends a blocking completion request and returns the parsed reply.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	body := c.buildBody(req, false)

	data, err := c.post(ctx, body)
	if err != nil {
		return nil, err
	}
	defer data.Close()

	var wire wireResponse
	if err := json.NewDecoder(data).Decode(&wire); err != nil {
		return nil, fmt.Errorf("decoding model response: %w", err)
	}
	return wire.toCompletion(), nil
}

// Stream sends a streaming completion request, invoking onToken for each text
// fragment as it arrives, and returns the assembled completion. Tool-use
// blocks in a streamed reply are ignored; Stream is used for final-answer
// calls where no tools are offered.
func (c *Client) Stream(ctx context.Context, req CompletionRequest, onToken func(string)) (*Completion, error) {
	body := c.buildBody(req, true)

	data, err := c.post(ctx, body)
	if err != nil {
		return nil, err
	}
	defer data.Close()

	var text strings.Builder
	var usage Usage
	stopReason := "end_turn"

	scanner := bufio.NewScanner(data)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" {
			continue
		}

		var evt wireStreamEvent
		if err := json.Unmarshal([]byte(payload), &evt); err != nil {
			// A corrupt frame must not abort the whole stream
			c.logger.Debug("skipping malformed stream frame", "error", err)
			continue
		}

		switch evt.Type {
		case "content_block_delta":
			if evt.Delta.Type == "text_delta" && evt.Delta.Text != "" {
				text.WriteString(evt.Delta.Text)
				if onToken != nil {
					onToken(evt.Delta.Text)
				}
			}
		case "message_delta":
			if evt.Delta.StopReason != "" {
				stopReason = evt.Delta.StopReason
			}
			if evt.Usage.OutputTokens > 0 {
				usage.OutputTokens = evt.Usage.OutputTokens
			}
		case "message_start":
			usage.InputTokens = evt.Message.Usage.InputTokens
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading model stream: %w", err)
	}

	return &Completion{Text: text.String(), StopReason: stopReason, Usage: usage}, nil
}

func (c *Client) buildBody(req CompletionRequest, stream bool) map[string]any {
	body := map[string]any{
		"model":       c.modelID,
		"max_tokens":  c.maxTokens,
		"temperature": 0.0,
		"messages":    toWireMessages(req.Messages),
	}
	if req.System != "" {
		body["system"] = req.System
	}
	if len(req.Tools) > 0 {
		tools := make([]map[string]any, 0, len(req.Tools))
		for _, t := range req.Tools {
			schema := t.InputSchema
			if schema == nil {
				schema = map[string]any{"type": "object", "properties": map[string]any{}}
			}
			tools = append(tools, map[string]any{
				"name":         t.Name,
				"description":  t.Description,
				"input_schema": schema,
			})
		}
		body["tools"] = tools
	}
	if stream {
		body["stream"] = true
	}
	return body
}

func (c *Client) post(ctx context.Context, body map[string]any) (io.ReadCloser, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling model request: %w", err)
	}

	url := c.baseURL + "/v1/messages"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating model request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	c.logger.Debug("model request", "model", c.modelID, "msg_count", len(body["messages"].([]map[string]any)))

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("calling model backend: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("model backend returned status %d: %s", resp.StatusCode, string(detail))
	}
	return resp.Body, nil
}

// toWireMessages converts the neutral history into the backend's format.
// Assistant tool calls become tool_use content blocks; tool results become
// user-role tool_result blocks.
func toWireMessages(messages []Message) []map[string]any {
	wire := make([]map[string]any, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case RoleUser:
			wire = append(wire, map[string]any{"role": "user", "content": msg.Content})

		case RoleAssistant:
			if len(msg.ToolCalls) == 0 {
				wire = append(wire, map[string]any{"role": "assistant", "content": msg.Content})
				continue
			}
			blocks := make([]map[string]any, 0, len(msg.ToolCalls)+1)
			if msg.Content != "" {
				blocks = append(blocks, map[string]any{"type": "text", "text": msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				args := tc.Args
				if args == nil {
					args = map[string]any{}
				}
				blocks = append(blocks, map[string]any{
					"type":  "tool_use",
					"id":    tc.ID,
					"name":  tc.Name,
					"input": args,
				})
			}
			wire = append(wire, map[string]any{"role": "assistant", "content": blocks})

		case RoleTool:
			wire = append(wire, map[string]any{
				"role": "user",
				"content": []map[string]any{{
					"type":        "tool_result",
					"tool_use_id": msg.ToolCallID,
					"content":     msg.Content,
				}},
			})
		}
	}
	return wire
}

// --- wire format ---

type wireContentBlock struct {
	Type  string          `json:"type"`
	Text  string          `json:"text,omitempty"`
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
}

type wireResponse struct {
	Content    []wireContentBlock `json:"content"`
	StopReason string             `json:"stop_reason"`
	Usage      Usage              `json:"usage"`
}

func (w *wireResponse) toCompletion() *Completion {
	comp := &Completion{
		StopReason: w.StopReason,
		Usage:      w.Usage,
	}
	if comp.StopReason == "" {
		comp.StopReason = "end_turn"
	}

	var textParts []string
	for _, block := range w.Content {
		switch block.Type {
		case "text":
			textParts = append(textParts, block.Text)
		case "tool_use":
			args := map[string]any{}
			if len(block.Input) > 0 {
				// Malformed tool input degrades to empty args rather than failing the call
				_ = json.Unmarshal(block.Input, &args)
			}
			comp.ToolCalls = append(comp.ToolCalls, ToolCall{
				ID:   block.ID,
				Name: block.Name,
				Args: args,
			})
		}
	}
	comp.Text = strings.Join(textParts, "\n")
	return comp
}

type wireStreamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type       string `json:"type"`
		Text       string `json:"text"`
		StopReason string `json:"stop_reason"`
	} `json:"delta"`
	Usage   Usage `json:"usage"`
	Message struct {
		Usage Usage `json:"usage"`
	} `json:"message"`
}
