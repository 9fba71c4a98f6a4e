package model

import (
	"time"
)

// ActionOutcome is the result of executing one planned action.
type ActionOutcome struct {
	Step     int     `json:"step"`
	Type     string  `json:"type,omitempty"`
	Success  bool    `json:"success"`
	Message  *string `json:"message,omitempty"`
	TicketID string  `json:"ticket_id,omitempty"` // Ticket created or touched by the action, if reported
	Skipped  bool    `json:"skipped,omitempty"`   // Not attempted because an earlier step aborted the batch
}

// MessageText returns the outcome message or "".
func (o ActionOutcome) MessageText() string {
	if o.Message == nil {
		return ""
	}
	return *o.Message
}

// ExecutionResult holds per-action outcomes aligned 1:1 with the plan.
type ExecutionResult struct {
	Outcomes []ActionOutcome `json:"results"`
}

// Succeeded counts successful outcomes.
func (r ExecutionResult) Succeeded() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Success {
			n++
		}
	}
	return n
}

// Failed counts unsuccessful outcomes, skipped steps included.
func (r ExecutionResult) Failed() int {
	return len(r.Outcomes) - r.Succeeded()
}

// AuditEntry is an immutable record of one completed command.
type AuditEntry struct {
	ID               string          `json:"id"`
	CommandText      string          `json:"command_text"`
	Intent           string          `json:"intent,omitempty"`
	ResultingActions []ActionOutcome `json:"resulting_actions"`
	OutcomeSummary   string          `json:"outcome_summary"`
	Timestamp        time.Time       `json:"timestamp"`
	Token            uint64          `json:"token,omitempty"`
}

// Ticket is the local view of a ticket touched by executed actions.
type Ticket struct {
	TicketID  string    `json:"ticket_id"`
	Summary   string    `json:"summary"`
	Priority  string    `json:"priority"`
	Status    string    `json:"status"`
	Assignee  string    `json:"assignee,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}
