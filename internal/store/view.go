package store

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mark3labs/voiceops/internal/model"
	"github.com/mark3labs/voiceops/internal/nats"
)

// View is the local audit log and ticket collection. It changes only
// through Apply and is safe for concurrent use.
type View struct {
	mu      sync.RWMutex
	audit   []model.AuditEntry
	tickets map[string]model.Ticket
	order   []string // Ticket IDs in first-seen order
}

// NewView returns an empty view.
func NewView() *View {
	return &View{tickets: make(map[string]model.Ticket)}
}

// Apply reduces one event into the view. Audit entries are appended and
// never touched again; tickets are keyed by ID with last write winning.
func (v *View) Apply(event Event) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	switch event.Type {
	case nats.EventTypeAudit:
		if event.Action != ActionAppend {
			return fmt.Errorf("unsupported audit action %q", event.Action)
		}
		var entry model.AuditEntry
		if err := json.Unmarshal(event.Meta, &entry); err != nil {
			return fmt.Errorf("decoding audit entry: %w", err)
		}
		v.audit = append(v.audit, entry)

	case nats.EventTypeTicket:
		if event.Action != ActionUpsert {
			return fmt.Errorf("unsupported ticket action %q", event.Action)
		}
		var t model.Ticket
		if err := json.Unmarshal(event.Meta, &t); err != nil {
			return fmt.Errorf("decoding ticket: %w", err)
		}
		if t.TicketID == "" {
			return fmt.Errorf("ticket event without ticket_id")
		}
		if _, seen := v.tickets[t.TicketID]; !seen {
			v.order = append(v.order, t.TicketID)
		}
		v.tickets[t.TicketID] = t

	default:
		return fmt.Errorf("unknown event type %q", event.Type)
	}
	return nil
}

// AuditLog returns a copy of the audit log in append order.
func (v *View) AuditLog() []model.AuditEntry {
	v.mu.RLock()
	defer v.mu.RUnlock()

	out := make([]model.AuditEntry, len(v.audit))
	for i, e := range v.audit {
		actions := make([]model.ActionOutcome, len(e.ResultingActions))
		for j, o := range e.ResultingActions {
			if o.Message != nil {
				o.Message = model.StringPtr(*o.Message)
			}
			actions[j] = o
		}
		if e.ResultingActions == nil {
			actions = nil
		}
		e.ResultingActions = actions
		out[i] = e
	}
	return out
}

// Tickets returns a copy of the tickets in first-seen order.
func (v *View) Tickets() []model.Ticket {
	v.mu.RLock()
	defer v.mu.RUnlock()

	out := make([]model.Ticket, 0, len(v.order))
	for _, id := range v.order {
		out = append(out, v.tickets[id])
	}
	return out
}

// Ticket looks up a ticket by ID.
func (v *View) Ticket(id string) (model.Ticket, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	t, ok := v.tickets[id]
	return t, ok
}
