package drafts

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"replydraft/internal/config"
	"replydraft/internal/extract"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func settingsFor(srv *httptest.Server) config.Settings {
	return config.Settings{Enabled: true, APIURL: srv.URL + "/", APISecret: "s3cret"}
}

func TestDraft_SendsSnakeCaseBodyWithBearer(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, DraftPath, r.URL.Path)
		assert.Equal(t, "Bearer s3cret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"needs_response":true,"draft_text":"Thursday works.","urgency":"medium"}`))
	}))
	defer srv.Close()

	snap := &extract.Snapshot{
		ConversationID: "abc123",
		SenderName:     "Dana Reyes",
		SenderHeadline: "Partner at Northwind",
		MessageText:    "Are you free Thursday?",
	}
	resp, err := NewClient().Draft(context.Background(), settingsFor(srv), RequestFromSnapshot(snap))
	require.NoError(t, err)
	assert.True(t, resp.NeedsResponse)
	assert.Equal(t, "Thursday works.", resp.DraftText)

	assert.Equal(t, "Dana Reyes", got["sender_name"])
	assert.Equal(t, "Partner at Northwind", got["sender_headline"])
	assert.Equal(t, "Are you free Thursday?", got["message_text"])
	assert.Equal(t, "abc123", got["conversation_id"])
	assert.Equal(t, []any{}, got["conversation_context"], "empty context is sent as []")
}

func TestDraft_MissingHeadlineIsOmitted(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"needs_response":false}`))
	}))
	defer srv.Close()

	snap := &extract.Snapshot{ConversationID: "abc123", SenderName: "Dana Reyes", MessageText: "hi"}
	_, err := NewClient().Draft(context.Background(), settingsFor(srv), RequestFromSnapshot(snap))
	require.NoError(t, err)

	assert.Equal(t, "Dana Reyes", got["sender_name"])
	assert.NotContains(t, got, "sender_headline", "no headline is sent as absent, never as an empty string")
}

func TestDraft_NoResponseVerdict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"needs_response":false,"summary":"Automated notification"}`))
	}))
	defer srv.Close()

	resp, err := NewClient().Draft(context.Background(), settingsFor(srv), Request{ConversationID: "x"})
	require.NoError(t, err)
	assert.False(t, resp.NeedsResponse)
	assert.Equal(t, "Automated notification", resp.Summary)
}

func TestDraft_NotConfiguredMakesNoRequest(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	c := NewClient()
	_, err := c.Draft(context.Background(), config.Settings{Enabled: true, APIURL: srv.URL}, Request{})
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = c.Draft(context.Background(), config.Settings{Enabled: true, APISecret: "s"}, Request{})
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.Zero(t, hits.Load())
}

func TestDraft_ServiceErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{"error field", http.StatusOK, `{"error":"quota exceeded"}`, "quota exceeded"},
		{"detail field", http.StatusUnauthorized, `{"detail":"Invalid API secret"}`, "Invalid API secret"},
		{"bare status", http.StatusBadGateway, `upstream down`, "Bad Gateway"},
		{"malformed", http.StatusOK, `{not json`, "malformed response"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewClient().Draft(context.Background(), settingsFor(srv), Request{ConversationID: "x"})
			var se *ServiceError
			require.True(t, errors.As(err, &se), "got %v", err)
			assert.Equal(t, tt.status, se.Status)
			assert.Contains(t, se.Message, tt.wantMsg)
		})
	}
}

func TestDraft_RequestTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := NewClient(WithTimeouts(50*time.Millisecond, 0))
	_, err := c.Draft(context.Background(), settingsFor(srv), Request{ConversationID: "slow"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, HealthPath, r.URL.Path)
		w.Write([]byte(`{"status":"ok","timestamp":"2026-01-01T00:00:00Z"}`))
	}))
	defer srv.Close()

	h, err := NewClient().Status(context.Background(), settingsFor(srv))
	require.NoError(t, err)
	assert.Equal(t, "ok", h.Status)
}

func TestStatus_Unhealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewClient().Status(context.Background(), settingsFor(srv))
	var se *ServiceError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusServiceUnavailable, se.Status)

	_, err = NewClient().Status(context.Background(), config.Settings{})
	assert.ErrorIs(t, err, ErrNotConfigured)
}
