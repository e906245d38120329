// ABOUTME: Tests for the gateway HTTP client
// ABOUTME: Runs against httptest servers returning canned API responses

package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fixai/fixai-gateway/internal/agentloop"
)

func TestListConversations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/organizations/org-1/conversations", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]Conversation{
			{ID: "conv-1", OrganizationID: "org-1", Title: "New Conversation", MessageCount: 2},
		})
	}))
	defer srv.Close()

	api := NewAPI(srv.URL, testLogger())
	convs, err := api.ListConversations(context.Background(), "org-1")
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, "conv-1", convs[0].ID)
	assert.Equal(t, 2, convs[0].MessageCount)
}

func TestAPIErrorCarriesDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"detail": "Conversation not found"})
	}))
	defer srv.Close()

	api := NewAPI(srv.URL, testLogger())
	_, err := api.GetConversation(context.Background(), "nope")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "Conversation not found", apiErr.Detail)
}

func TestSendMessageStreamsAndDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/conversations/conv-1/messages", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "why is checkout slow?", body["content"])
		reqCtx := body["context"].(map[string]any)
		assert.Equal(t, "checkout", reqCtx["service"])

		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("event: token\ndata: {\"content\":\"DB \"}\n\n"))
		w.Write([]byte("event: token\ndata: {\"content\":\"contention.\"}\n\n"))
		w.Write([]byte("event: done\ndata: {\"content\":\"DB contention.\"}\n\n"))
	}))
	defer srv.Close()

	api := NewAPI(srv.URL, testLogger())
	body, err := api.SendMessage(context.Background(), "conv-1", "why is checkout slow?",
		&agentloop.UserContext{Service: "checkout"})
	require.NoError(t, err)
	defer body.Close()

	var events []Event
	Decode(body, "conv-1", testLogger(), func(e Event) { events = append(events, e) })
	require.Len(t, events, 3)
	assert.Equal(t, agentloop.EventDone, events[2].Type)
	assert.Equal(t, "DB contention.", events[2].Done.Content)
}

func TestSendMessageTurnConflict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"detail": "A turn is already active for this conversation"})
	}))
	defer srv.Close()

	api := NewAPI(srv.URL, testLogger())
	_, err := api.SendMessage(context.Background(), "conv-1", "again", nil)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
}

func TestStopTurn(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/conversations/conv-1/stop", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]bool{"stopped": true})
	}))
	defer srv.Close()

	api := NewAPI(srv.URL, testLogger())
	stopped, err := api.StopTurn(context.Background(), "conv-1")
	require.NoError(t, err)
	assert.True(t, stopped)
}
