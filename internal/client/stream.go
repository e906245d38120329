// ABOUTME: Line-oriented SSE decoder for agent progress streams
// ABOUTME: Produces a finite typed event sequence, skipping malformed lines

package client

import (
	"bufio"
	"encoding/json"
	"io"
	"log/slog"
	"strings"

	"github.com/fixai/fixai-gateway/internal/agentloop"
)

// Event is one decoded progress event, tagged with the conversation it
// belongs to. Exactly one payload pointer is set, matching Type.
type Event struct {
	ConversationID string
	Type           agentloop.EventType

	Token     *agentloop.TokenPayload
	ToolStart *agentloop.ToolStartPayload
	ToolEnd   *agentloop.ToolEndPayload
	Stats     *agentloop.StatsPayload
	Done      *agentloop.DonePayload
	Err       *agentloop.ErrorPayload
}

// connectionLostError is synthesized when the stream ends without a terminal
// done or error event.
const connectionLostError = "connection lost before the turn completed"

// maxLineBytes bounds a single SSE line; tool previews are capped server-side
// well below this.
const maxLineBytes = 1 << 20

// Decode reads SSE frames from r until a terminal event or the stream ends,
// invoking emit for each decoded event. The sequence is finite: done or error
// is always the last event emitted, and an abrupt close synthesizes a local
// error so consumers never wait on a dead channel. Malformed data lines are
// skipped. Cancel by closing r.
func Decode(r io.Reader, conversationID string, logger *slog.Logger, emit func(Event)) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "sse-decoder", "conversation_id", conversationID)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var eventName string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			eventName = strings.TrimPrefix(line, "event: ")

		case strings.HasPrefix(line, "data: "):
			ev, ok := decodeEvent(conversationID, eventName, strings.TrimPrefix(line, "data: "))
			if !ok {
				logger.Debug("skipping malformed event line", "event", eventName)
				continue
			}
			emit(ev)
			if ev.Type == agentloop.EventDone || ev.Type == agentloop.EventError {
				return
			}

		case line == "":
			// frame separator
		}
	}

	if err := scanner.Err(); err != nil {
		logger.Warn("stream read failed", "error", err)
	}
	emit(Event{
		ConversationID: conversationID,
		Type:           agentloop.EventError,
		Err:            &agentloop.ErrorPayload{Error: connectionLostError},
	})
}

func decodeEvent(conversationID, eventName, data string) (Event, bool) {
	ev := Event{ConversationID: conversationID}
	raw := []byte(data)

	switch agentloop.EventType(eventName) {
	case agentloop.EventToken:
		ev.Type = agentloop.EventToken
		ev.Token = &agentloop.TokenPayload{}
		return ev, json.Unmarshal(raw, ev.Token) == nil
	case agentloop.EventToolStart:
		ev.Type = agentloop.EventToolStart
		ev.ToolStart = &agentloop.ToolStartPayload{}
		return ev, json.Unmarshal(raw, ev.ToolStart) == nil
	case agentloop.EventToolEnd:
		ev.Type = agentloop.EventToolEnd
		ev.ToolEnd = &agentloop.ToolEndPayload{}
		return ev, json.Unmarshal(raw, ev.ToolEnd) == nil
	case agentloop.EventStats:
		ev.Type = agentloop.EventStats
		ev.Stats = &agentloop.StatsPayload{}
		return ev, json.Unmarshal(raw, ev.Stats) == nil
	case agentloop.EventDone:
		ev.Type = agentloop.EventDone
		ev.Done = &agentloop.DonePayload{}
		return ev, json.Unmarshal(raw, ev.Done) == nil
	case agentloop.EventError:
		ev.Type = agentloop.EventError
		ev.Err = &agentloop.ErrorPayload{}
		return ev, json.Unmarshal(raw, ev.Err) == nil
	default:
		return ev, false
	}
}
