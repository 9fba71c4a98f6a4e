package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/mark3labs/voiceops/internal/model"
	"github.com/mark3labs/voiceops/internal/nats"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func pipeline(transcript, intent string, entities map[string]string, actions ...string) model.PipelineResult {
	ents := make(map[string]*string, len(entities))
	for k, v := range entities {
		ents[k] = model.StringPtr(v)
	}
	plan := make([]model.Action, len(actions))
	for i, a := range actions {
		plan[i] = model.Action{Step: i + 1, Type: a}
	}
	return model.PipelineResult{
		Transcript: transcript,
		Status:     model.StatusPendingConfirmation,
		Pipeline: model.Pipeline{
			Intent: model.IntentStep{Intent: intent, Entities: ents},
			Plan:   model.PlanStep{Actions: plan, Confidence: model.ConfidenceHigh},
		},
	}
}

func TestCloseTicketScenario(t *testing.T) {
	r := NewReconciler(Config{Session: "ops", Now: clock})
	result := pipeline("Close ticket AUTH-204", "close_ticket",
		map[string]string{"ticket_id": "AUTH-204"}, "close_ticket", "notify_slack")
	exec := model.ExecutionResult{Outcomes: []model.ActionOutcome{
		{Step: 1, Type: "close_ticket", Success: true},
		{Step: 2, Type: "notify_slack", Success: true},
	}}

	entry, err := r.Apply(context.Background(), 7, exec, result)
	require.NoError(t, err)

	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, "Close ticket AUTH-204", entry.CommandText)
	assert.Equal(t, "all 2 actions succeeded", entry.OutcomeSummary)
	assert.Equal(t, uint64(7), entry.Token)

	tickets := r.Tickets()
	require.Len(t, tickets, 1)
	want := model.Ticket{
		TicketID:  "AUTH-204",
		Status:    TicketClosed,
		CreatedAt: fixedNow,
		UpdatedAt: fixedNow,
	}
	if diff := cmp.Diff(want, tickets[0]); diff != "" {
		t.Errorf("ticket mismatch (-want +got):\n%s", diff)
	}

	require.Len(t, r.AuditLog(), 1)
}

func TestPartialFailureSummary(t *testing.T) {
	r := NewReconciler(Config{Session: "ops", Now: clock})
	result := pipeline("Create a P1 ticket for the login outage and page on-call", "create_ticket",
		map[string]string{"priority": "P1", "summary": "Login outage"}, "create_ticket", "page_oncall", "notify_slack")
	exec := model.ExecutionResult{Outcomes: []model.ActionOutcome{
		{Step: 1, Type: "create_ticket", Success: true, TicketID: "OPS-1"},
		{Step: 2, Type: "page_oncall", Success: false, Message: model.StringPtr("pager timeout")},
		{Step: 3, Type: "notify_slack", Success: true},
	}}

	entry, err := r.Apply(context.Background(), 1, exec, result)
	require.NoError(t, err)
	assert.Equal(t, "2 of 3 actions succeeded; failed: step 2 (page_oncall): pager timeout", entry.OutcomeSummary)

	tickets := r.Tickets()
	require.Len(t, tickets, 1)
	assert.Equal(t, "OPS-1", tickets[0].TicketID)
	assert.Equal(t, "Login outage", tickets[0].Summary)
	assert.Equal(t, "P1", tickets[0].Priority)
	assert.Equal(t, TicketOpen, tickets[0].Status)
}

func TestFailedTicketActionDoesNotUpsert(t *testing.T) {
	r := NewReconciler(Config{Session: "ops", Now: clock})
	result := pipeline("Close AUTH-9", "close_ticket", map[string]string{"ticket_id": "AUTH-9"}, "close_ticket")
	exec := model.ExecutionResult{Outcomes: []model.ActionOutcome{
		{Step: 1, Type: "close_ticket", Success: false, Message: model.StringPtr("not found")},
	}}

	entry, err := r.Apply(context.Background(), 1, exec, result)
	require.NoError(t, err)
	assert.Empty(t, r.Tickets())
	assert.Equal(t, "0 of 1 actions succeeded; failed: step 1 (close_ticket): not found", entry.OutcomeSummary)
	assert.Len(t, r.AuditLog(), 1)
}

func TestUpsertKeepsOneTicketPerID(t *testing.T) {
	r := NewReconciler(Config{Session: "ops", Now: clock})
	ctx := context.Background()

	create := pipeline("Open a ticket", "create_ticket", map[string]string{"priority": "P3"}, "create_ticket")
	_, err := r.Apply(ctx, 1, model.ExecutionResult{Outcomes: []model.ActionOutcome{
		{Step: 1, Type: "create_ticket", Success: true, TicketID: "NET-5"},
	}}, create)
	require.NoError(t, err)

	bump := pipeline("Bump NET-5 to P1", "update_priority",
		map[string]string{"ticket_id": "NET-5", "priority": "P1"}, "update_priority")
	_, err = r.Apply(ctx, 2, model.ExecutionResult{Outcomes: []model.ActionOutcome{
		{Step: 1, Type: "update_priority", Success: true},
	}}, bump)
	require.NoError(t, err)

	tickets := r.Tickets()
	require.Len(t, tickets, 1)
	assert.Equal(t, "P1", tickets[0].Priority)
	assert.Equal(t, TicketOpen, tickets[0].Status)
	assert.Equal(t, "Open a ticket", tickets[0].Summary)
	assert.Len(t, r.AuditLog(), 2)
}

func TestSeedsFromSimilarTickets(t *testing.T) {
	r := NewReconciler(Config{Session: "ops", Now: clock})
	result := pipeline("Reassign DB-12 to alice", "reassign_ticket",
		map[string]string{"ticket_id": "DB-12", "assignee": "alice"}, "reassign_ticket")
	result.Pipeline.Context.SimilarTickets = []model.TicketRef{
		{TicketID: "DB-12", Summary: "Replica lag", Priority: "P2", Status: "in_progress", RelevanceScore: 0.9},
	}

	_, err := r.Apply(context.Background(), 1, model.ExecutionResult{Outcomes: []model.ActionOutcome{
		{Step: 1, Type: "reassign_ticket", Success: true},
	}}, result)
	require.NoError(t, err)

	tickets := r.Tickets()
	require.Len(t, tickets, 1)
	assert.Equal(t, "Replica lag", tickets[0].Summary)
	assert.Equal(t, "P2", tickets[0].Priority)
	assert.Equal(t, "in_progress", tickets[0].Status)
	assert.Equal(t, "alice", tickets[0].Assignee)
}

func TestMissingTicketIDSkipsUpsert(t *testing.T) {
	r := NewReconciler(Config{Session: "ops", Now: clock})
	result := pipeline("Close the ticket", "close_ticket", nil, "close_ticket")
	_, err := r.Apply(context.Background(), 1, model.ExecutionResult{Outcomes: []model.ActionOutcome{
		{Step: 1, Type: "close_ticket", Success: true},
	}}, result)
	require.NoError(t, err)
	assert.Empty(t, r.Tickets())
	assert.Len(t, r.AuditLog(), 1)
}

func TestViewsAreCopies(t *testing.T) {
	r := NewReconciler(Config{Session: "ops", Now: clock})
	result := pipeline("Close AUTH-1", "close_ticket", map[string]string{"ticket_id": "AUTH-1"}, "close_ticket")
	_, err := r.Apply(context.Background(), 1, model.ExecutionResult{Outcomes: []model.ActionOutcome{
		{Step: 1, Type: "close_ticket", Success: true},
	}}, result)
	require.NoError(t, err)

	audit := r.AuditLog()
	audit[0].OutcomeSummary = "tampered"
	audit[0].ResultingActions[0].Success = false
	tickets := r.Tickets()
	tickets[0].Status = "tampered"

	assert.Equal(t, "all 1 action succeeded", r.AuditLog()[0].OutcomeSummary)
	assert.True(t, r.AuditLog()[0].ResultingActions[0].Success)
	assert.Equal(t, TicketClosed, r.Tickets()[0].Status)
}

func TestSummarize(t *testing.T) {
	tests := []struct {
		name     string
		outcomes []model.ActionOutcome
		want     string
	}{
		{"empty", nil, "no actions executed"},
		{"single", []model.ActionOutcome{{Step: 1, Type: "a", Success: true}}, "all 1 action succeeded"},
		{
			"failure without message",
			[]model.ActionOutcome{{Step: 1, Type: "a", Success: true}, {Step: 2, Type: "b"}},
			"1 of 2 actions succeeded; failed: step 2 (b): failed",
		},
		{
			"aborted",
			[]model.ActionOutcome{
				{Step: 1, Type: "a", Message: model.StringPtr("boom")},
				{Step: 2, Type: "b", Skipped: true},
				{Step: 3, Type: "c", Skipped: true},
			},
			"0 of 3 actions succeeded; failed: step 1 (a): boom; skipped: steps 2, 3",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Summarize(model.ExecutionResult{Outcomes: tt.outcomes})
			if got != tt.want {
				t.Errorf("Summarize() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestViewApplyRejectsUnknownEvents(t *testing.T) {
	v := NewView()
	assert.Error(t, v.Apply(Event{Type: "bogus"}))
	assert.Error(t, v.Apply(Event{Type: nats.EventTypeAudit, Action: ActionUpsert}))
	assert.Error(t, v.Apply(Event{Type: nats.EventTypeTicket, Action: ActionUpsert, Meta: json.RawMessage(`{}`)}))
}

type failingPublisher struct{}

func (failingPublisher) PublishEvent(context.Context, Event) (*jetstream.PubAck, error) {
	return nil, errors.New("journal offline")
}

func TestJournalFailureKeepsView(t *testing.T) {
	r := NewReconciler(Config{Session: "ops", Journal: failingPublisher{}, Now: clock})
	result := pipeline("Close AUTH-2", "close_ticket", map[string]string{"ticket_id": "AUTH-2"}, "close_ticket")

	entry, err := r.Apply(context.Background(), 1, model.ExecutionResult{Outcomes: []model.ActionOutcome{
		{Step: 1, Type: "close_ticket", Success: true},
	}}, result)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "journal offline")
	assert.NotEmpty(t, entry.ID)
	assert.Len(t, r.AuditLog(), 1)
	assert.Len(t, r.Tickets(), 1)
}

func setupJournal(t *testing.T) *Journal {
	t.Helper()
	ctx := context.Background()

	ns, err := nats.StartEmbeddedNATS(t.TempDir())
	require.NoError(t, err)
	nc, err := nats.ConnectInProcess(ns)
	require.NoError(t, err)
	t.Cleanup(func() { _ = nats.Shutdown(nc, ns) })

	js, err := nats.CreateJetStream(nc)
	require.NoError(t, err)
	stream, err := nats.SetupStream(ctx, js)
	require.NoError(t, err)

	return NewJournal(js, stream)
}

func followJournal(t *testing.T, journal *Journal, session string) *Follower {
	t.Helper()
	f, err := journal.Follow(context.Background(), session)
	require.NoError(t, err)
	t.Cleanup(f.Stop)
	return f
}

func TestReconcilerReadsViewFromJournal(t *testing.T) {
	ctx := context.Background()
	journal := setupJournal(t)
	live := followJournal(t, journal, "ops")

	r := NewReconciler(Config{Session: "ops", Journal: journal, Feed: live, Now: clock})
	create := pipeline("Create ticket for disk alerts", "create_ticket", map[string]string{"priority": "P2"}, "create_ticket")
	_, err := r.Apply(ctx, 1, model.ExecutionResult{Outcomes: []model.ActionOutcome{
		{Step: 1, Type: "create_ticket", Success: true, TicketID: "OPS-9"},
	}}, create)
	require.NoError(t, err)

	closeIt := pipeline("Close OPS-9", "close_ticket", map[string]string{"ticket_id": "OPS-9"}, "close_ticket")
	_, err = r.Apply(ctx, 2, model.ExecutionResult{Outcomes: []model.ActionOutcome{
		{Step: 1, Type: "close_ticket", Success: true},
	}}, closeIt)
	require.NoError(t, err)

	require.Len(t, r.AuditLog(), 2)
	ticket, ok := live.View().Ticket("OPS-9")
	require.True(t, ok)
	assert.Equal(t, TicketClosed, ticket.Status)
	assert.Equal(t, "P2", ticket.Priority)

	// Events written by another publisher reach the view as well.
	meta, err := json.Marshal(model.AuditEntry{ID: "external", CommandText: "imported", Timestamp: clock()})
	require.NoError(t, err)
	ack, err := journal.PublishEvent(ctx, Event{Session: "ops", Type: nats.EventTypeAudit, Action: ActionAppend, Meta: meta})
	require.NoError(t, err)
	require.NoError(t, live.WaitFor(ctx, ack.Sequence))
	entries := r.AuditLog()
	require.Len(t, entries, 3)
	assert.Equal(t, "external", entries[2].ID)
}

func TestJournalReplayRebuildsView(t *testing.T) {
	ctx := context.Background()
	journal := setupJournal(t)

	r := NewReconciler(Config{Session: "ops", Journal: journal, Feed: followJournal(t, journal, "ops"), Now: clock})
	create := pipeline("Create ticket for disk alerts", "create_ticket", map[string]string{"priority": "P2"}, "create_ticket")
	_, err := r.Apply(ctx, 1, model.ExecutionResult{Outcomes: []model.ActionOutcome{
		{Step: 1, Type: "create_ticket", Success: true, TicketID: "OPS-9"},
	}}, create)
	require.NoError(t, err)

	other := NewReconciler(Config{Session: "other", Journal: journal, Feed: followJournal(t, journal, "other"), Now: clock})
	_, err = other.Apply(ctx, 1, model.ExecutionResult{}, pipeline("Status report", "report", nil))
	require.NoError(t, err)

	replay := followJournal(t, journal, "ops")
	require.Eventually(t, func() bool {
		return len(replay.View().AuditLog()) == 1
	}, 5*time.Second, 10*time.Millisecond)

	if diff := cmp.Diff(r.AuditLog(), replay.View().AuditLog()); diff != "" {
		t.Errorf("replayed audit log mismatch (-live +replayed):\n%s", diff)
	}
	if diff := cmp.Diff(r.Tickets(), replay.View().Tickets()); diff != "" {
		t.Errorf("replayed tickets mismatch (-live +replayed):\n%s", diff)
	}
	assert.Len(t, other.AuditLog(), 1)
	assert.Empty(t, other.Tickets())
}

func TestFollowerStop(t *testing.T) {
	journal := setupJournal(t)
	f, err := journal.Follow(context.Background(), "ops")
	require.NoError(t, err)

	f.Stop()
	f.Stop()
	assert.ErrorIs(t, f.WaitFor(context.Background(), 1), ErrFollowerStopped)
}

func TestAuditLogCopiesMessages(t *testing.T) {
	r := NewReconciler(Config{Session: "ops", Now: clock})
	_, err := r.Apply(context.Background(), 1, model.ExecutionResult{Outcomes: []model.ActionOutcome{
		{Step: 1, Type: "slack_notify", Success: false, Message: model.StringPtr("channel not found")},
	}}, pipeline("Notify backend", "notify", nil, "slack_notify"))
	require.NoError(t, err)

	first := r.AuditLog()
	*first[0].ResultingActions[0].Message = "rewritten"
	first[0].ResultingActions[0].Success = true

	again := r.AuditLog()
	assert.Equal(t, "channel not found", again[0].ResultingActions[0].MessageText())
	assert.False(t, again[0].ResultingActions[0].Success)
}
