package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	ierr "github.com/mark3labs/voiceops/internal/errors"
	"github.com/mark3labs/voiceops/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL + "/"})
}

func TestHealth(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/health", r.URL.Path)
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		_, _ = io.WriteString(w, `{"status":"healthy","jira_configured":true,"slack_configured":false,"indices":{"voiceops-tickets":12}}`)
	})

	h, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.True(t, h.Healthy())
	assert.True(t, h.JiraConfigured)
	assert.False(t, h.SlackConfigured)
	assert.Equal(t, 12, h.TicketCount())
}

func TestProcessCommand(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/command", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req CommandRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "AUTH-204", req.Text)
		assert.Equal(t, "Close the ticket", req.Context)

		_, _ = io.WriteString(w, `{"transcript":"Close the ticket AUTH-204","status":"pending_confirmation",
			"pipeline":{"step1_intent":{"intent":"close_ticket","entities":{"ticket_id":"AUTH-204"}},
			"step2_context":{"similar_tickets":[],"past_commands_found":0,"past_actions_found":0},
			"step3_plan":{"actions":[{"step":1,"type":"close_ticket","description":"Close"}],"confidence":"high","reasoning":"r"}}}`)
	})

	res, err := c.ProcessCommand(context.Background(), CommandRequest{Text: "AUTH-204", Context: "Close the ticket"})
	require.NoError(t, err)
	assert.Equal(t, model.StatusPendingConfirmation, res.Status)
	assert.Equal(t, "close_ticket", res.Pipeline.Intent.Intent)
	require.Len(t, res.Pipeline.Plan.Actions, 1)
}

func TestExecuteAction_FillsStepAndType(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req ActionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 2, req.Action.Step)
		_, _ = io.WriteString(w, `{"success":false,"message":"Slack unreachable"}`)
	})

	out, err := c.ExecuteAction(context.Background(), ActionRequest{
		Action: model.Action{Step: 2, Type: "notify_slack"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, out.Step)
	assert.Equal(t, "notify_slack", out.Type)
	assert.False(t, out.Success)
	assert.Equal(t, "Slack unreachable", out.MessageText())
}

func TestTranscribeAudio(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		f, hdr, err := r.FormFile("audio")
		require.NoError(t, err)
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "clip.wav", hdr.Filename)
		assert.Equal(t, []byte("RIFF"), data)
		_, _ = io.WriteString(w, `{"transcript":"create a ticket"}`)
	})

	text, err := c.TranscribeAudio(context.Background(), []byte("RIFF"), "clip.wav")
	require.NoError(t, err)
	assert.Equal(t, "create a ticket", text)
}

func TestStatusError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "elasticsearch down", http.StatusServiceUnavailable)
	})

	_, err := c.RunESQLQuery(context.Background(), "action-stats")
	require.Error(t, err)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusServiceUnavailable, se.StatusCode)
	assert.Equal(t, "/api/esql/action-stats", se.Path)
	assert.Contains(t, se.Error(), "elasticsearch down")
}

func TestReadModels(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/audit":
			_, _ = io.WriteString(w, `[{"id":"a1","command_text":"close AUTH-204","resulting_actions":[],"outcome_summary":"ok","timestamp":"2026-01-02T03:04:05Z"}]`)
		case "/api/tickets":
			_, _ = io.WriteString(w, `[{"ticket_id":"AUTH-204","summary":"login","priority":"high","status":"closed"}]`)
		case "/api/analytics":
			_, _ = io.WriteString(w, `{"total_actions":10,"success_rate":0.9}`)
		case "/api/impact":
			_, _ = io.WriteString(w, `{"commands_processed":4,"time_saved_minutes":12.5}`)
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	audit, err := c.AuditLog(ctx)
	require.NoError(t, err)
	require.Len(t, audit, 1)
	assert.Equal(t, "a1", audit[0].ID)

	tickets, err := c.Tickets(ctx)
	require.NoError(t, err)
	require.Len(t, tickets, 1)
	assert.Equal(t, "closed", tickets[0].Status)

	a, err := c.Analytics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, a.TotalActions)

	imp, err := c.Impact(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, imp.CommandsProcessed)
}

func TestTransportError(t *testing.T) {
	c := New(Config{BaseURL: "http://127.0.0.1:1"})
	_, err := c.Health(context.Background())
	require.Error(t, err)

	var se *StatusError
	assert.False(t, errors.As(err, &se), "connection failures are not status errors")
	assert.True(t, ierr.IsTransient(err))
}
