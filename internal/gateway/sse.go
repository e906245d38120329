// ABOUTME: Server-sent events encoding for agent progress streams
// ABOUTME: Writes event/data frames and flushes after each one

package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/fixai/fixai-gateway/internal/agentloop"
)

// setSSEHeaders prepares the response for a long-lived event stream.
func setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// writeSSEEvent writes one event: <type>\ndata: <json>\n\n frame.
func (g *Gateway) writeSSEEvent(w http.ResponseWriter, event string, data any) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		g.logger.Error("failed to marshal SSE data", "event", event, "error", err)
		return
	}
	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", dataJSON)
}

// sseEmitter adapts agent loop events into SSE frames, flushing per event so
// progress reaches the client as it happens.
func (g *Gateway) sseEmitter(w http.ResponseWriter, flusher http.Flusher) func(agentloop.Event) {
	return func(e agentloop.Event) {
		g.writeSSEEvent(w, string(e.Type), e.Payload)
		flusher.Flush()
	}
}
