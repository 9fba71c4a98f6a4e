// Package store reconciles executed actions into the local audit log and
// ticket collection, optionally journalling every change to JetStream.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	ierr "github.com/mark3labs/voiceops/internal/errors"
	"github.com/mark3labs/voiceops/internal/model"
	"github.com/mark3labs/voiceops/internal/nats"
	"github.com/rs/xid"
)

// Ticket statuses written by the reconciler.
const (
	TicketOpen   = "open"
	TicketClosed = "closed"
)

// ticketActions are the action types that create or mutate a ticket.
var ticketActions = map[string]bool{
	"create_ticket":   true,
	"update_ticket":   true,
	"close_ticket":    true,
	"reopen_ticket":   true,
	"reassign_ticket": true,
	"update_priority": true,
	"assign_ticket":   true,
}

// IsTicketAction reports whether an action type mutates a ticket.
func IsTicketAction(actionType string) bool {
	return ticketActions[actionType]
}

// Feed delivers journalled events back into a view. *Follower implements it.
type Feed interface {
	View() *View
	WaitFor(ctx context.Context, seq uint64) error
}

// Config configures a Reconciler.
type Config struct {
	Session string
	Journal Publisher        // Optional; nil keeps the view in memory only
	Feed    Feed             // Optional; with Journal, the view is read back from the journal
	Now     func() time.Time // Defaults to time.Now
}

// Reconciler folds execution results into the view. It is safe for
// concurrent use.
type Reconciler struct {
	mu      sync.Mutex
	session string
	journal Publisher
	feed    Feed
	view    *View
	now     func() time.Time
}

// NewReconciler creates a Reconciler.
func NewReconciler(cfg Config) *Reconciler {
	view := NewView()
	if cfg.Feed != nil {
		view = cfg.Feed.View()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Reconciler{
		session: cfg.Session,
		journal: cfg.Journal,
		feed:    cfg.Feed,
		view:    view,
		now:     now,
	}
}

// Apply records one completed command: a ticket upsert for every successful
// ticket-mutating action followed by exactly one audit entry. The view is
// always updated; a non-nil error means some events could not be journalled.
func (r *Reconciler) Apply(ctx context.Context, token uint64, exec model.ExecutionResult, result model.PipelineResult) (model.AuditEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	var errs ierr.MultiError

	for _, outcome := range exec.Outcomes {
		if !outcome.Success || !IsTicketAction(outcome.Type) {
			continue
		}
		t, ok := r.ticketFor(outcome, result, now)
		if !ok {
			log.Warn("Step %d (%s) succeeded without a ticket id, skipping ticket upsert", outcome.Step, outcome.Type)
			continue
		}
		if err := r.record(ctx, nats.EventTypeTicket, ActionUpsert, t, now); err != nil {
			errs.Append(err)
		}
	}

	entry := model.AuditEntry{
		ID:               xid.New().String(),
		CommandText:      result.Transcript,
		Intent:           result.Pipeline.Intent.Intent,
		ResultingActions: append([]model.ActionOutcome(nil), exec.Outcomes...),
		OutcomeSummary:   Summarize(exec),
		Timestamp:        now,
		Token:            token,
	}
	if err := r.record(ctx, nats.EventTypeAudit, ActionAppend, entry, now); err != nil {
		errs.Append(err)
	}

	log.Info("Reconciled command %d: %s", token, entry.OutcomeSummary)
	return entry, errs.ErrorOrNil()
}

// record journals the change and waits for it to reach the view through the
// feed. Without a journal, or when publishing fails, the change is applied to
// the view directly so the completed command stays visible.
func (r *Reconciler) record(ctx context.Context, eventType, action string, v any, now time.Time) error {
	meta, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", eventType, err)
	}
	event := Event{
		ID:        xid.New().String(),
		Timestamp: now,
		Session:   r.session,
		Type:      eventType,
		Action:    action,
		Meta:      meta,
	}
	if r.journal == nil {
		return r.view.Apply(event)
	}

	ack, err := r.journal.PublishEvent(ctx, event)
	if err != nil {
		if applyErr := r.view.Apply(event); applyErr != nil {
			return applyErr
		}
		return err
	}
	if r.feed == nil {
		return r.view.Apply(event)
	}
	if err := r.feed.WaitFor(ctx, ack.Sequence); err != nil {
		return fmt.Errorf("waiting for journal seq=%d: %w", ack.Sequence, err)
	}
	return nil
}

// ticketFor derives the upserted ticket for a successful outcome.
func (r *Reconciler) ticketFor(outcome model.ActionOutcome, result model.PipelineResult, now time.Time) (model.Ticket, bool) {
	intent := result.Pipeline.Intent
	id := outcome.TicketID
	if id == "" {
		id = intent.Entity("ticket_id")
	}
	if id == "" {
		return model.Ticket{}, false
	}

	t, exists := r.view.Ticket(id)
	if !exists {
		t = model.Ticket{TicketID: id, Status: TicketOpen, CreatedAt: now}
		// Seed from the context stage when it already knew about the ticket.
		for _, ref := range result.Pipeline.Context.SimilarTickets {
			if ref.TicketID == id {
				t.Summary = ref.Summary
				t.Priority = ref.Priority
				if ref.Status != "" {
					t.Status = ref.Status
				}
				break
			}
		}
	}

	switch outcome.Type {
	case "create_ticket":
		t.Status = TicketOpen
		if t.Summary == "" {
			t.Summary = result.Transcript
		}
	case "reopen_ticket":
		t.Status = TicketOpen
	case "close_ticket":
		t.Status = TicketClosed
	default:
		if s := intent.Entity("status"); s != "" {
			t.Status = s
		}
	}

	if s := intent.Entity("summary"); s != "" {
		t.Summary = s
	}
	if p := intent.Entity("priority"); p != "" {
		t.Priority = p
	}
	if a := intent.Entity("assignee"); a != "" {
		t.Assignee = a
	}
	t.UpdatedAt = now
	return t, true
}

// AuditLog returns a copy of the audit log.
func (r *Reconciler) AuditLog() []model.AuditEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.view.AuditLog()
}

// Tickets returns a copy of the ticket collection.
func (r *Reconciler) Tickets() []model.Ticket {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.view.Tickets()
}

// Summarize renders the one-line outcome summary of an execution.
func Summarize(exec model.ExecutionResult) string {
	n := len(exec.Outcomes)
	if n == 0 {
		return "no actions executed"
	}
	ok := exec.Succeeded()
	if ok == n {
		if n == 1 {
			return "all 1 action succeeded"
		}
		return fmt.Sprintf("all %d actions succeeded", n)
	}

	var failed, skipped []string
	for _, o := range exec.Outcomes {
		switch {
		case o.Skipped:
			skipped = append(skipped, fmt.Sprintf("%d", o.Step))
		case !o.Success:
			msg := o.MessageText()
			if msg == "" {
				msg = "failed"
			}
			failed = append(failed, fmt.Sprintf("step %d (%s): %s", o.Step, o.Type, msg))
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d of %d actions succeeded", ok, n)
	if len(failed) > 0 {
		b.WriteString("; failed: ")
		b.WriteString(strings.Join(failed, ", "))
	}
	if len(skipped) > 0 {
		b.WriteString("; skipped: steps ")
		b.WriteString(strings.Join(skipped, ", "))
	}
	return b.String()
}
