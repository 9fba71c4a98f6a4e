// Package model holds the value types exchanged between the orchestrator and
// the backing services: pipeline results, execution outcomes, audit entries,
// tickets and health snapshots.
package model

import (
	"fmt"
)

// Status is the pipeline-reported state of a processed command.
type Status string

const (
	StatusPendingConfirmation Status = "pending_confirmation"
	StatusNeedsClarification  Status = "needs_clarification"
	StatusError               Status = "error"
)

// Confidence is the agent's self-reported certainty in its plan.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// PipelineResult is the three-stage output produced for one command.
type PipelineResult struct {
	Transcript string   `json:"transcript"`
	Pipeline   Pipeline `json:"pipeline"`
	Status     Status   `json:"status"`
	Error      string   `json:"error,omitempty"` // Pipeline-reported reason when Status is error
}

// Pipeline groups the intent, context and plan stages.
type Pipeline struct {
	Intent  IntentStep  `json:"step1_intent"`
	Context ContextStep `json:"step2_context"`
	Plan    PlanStep    `json:"step3_plan"`
}

// IntentStep is the output of intent extraction.
type IntentStep struct {
	Intent   string             `json:"intent"`
	Entities map[string]*string `json:"entities"`
}

// Entity returns the named entity value, or "" when absent or null.
func (i IntentStep) Entity(name string) string {
	if v, ok := i.Entities[name]; ok && v != nil {
		return *v
	}
	return ""
}

// ContextStep is the output of context retrieval.
type ContextStep struct {
	SimilarTickets    []TicketRef `json:"similar_tickets"`
	PastCommandsFound int         `json:"past_commands_found"`
	PastActionsFound  int         `json:"past_actions_found"`
}

// TicketRef is a ticket found similar to the current command.
type TicketRef struct {
	TicketID       string  `json:"ticket_id"`
	Summary        string  `json:"summary"`
	Priority       string  `json:"priority"`
	Status         string  `json:"status"`
	RelevanceScore float64 `json:"relevance_score"` // 0..1
}

// PlanStep is the ordered list of actions the agent proposes.
type PlanStep struct {
	Actions          []Action   `json:"actions"`
	Confidence       Confidence `json:"confidence"`
	Reasoning        string     `json:"reasoning"`
	DuplicateWarning *string    `json:"duplicate_warning,omitempty"`
}

// Action is one planned operation.
type Action struct {
	Step        int    `json:"step"` // 1-based, contiguous within a plan
	Type        string `json:"type"`
	Description string `json:"description"`
}

// Validate checks that the plan has at least one action and that steps are
// contiguous starting at 1.
func (p PlanStep) Validate() error {
	if len(p.Actions) == 0 {
		return fmt.Errorf("plan has no actions")
	}
	for i, a := range p.Actions {
		if a.Step != i+1 {
			return fmt.Errorf("plan step %d out of order: expected %d", a.Step, i+1)
		}
		if a.Type == "" {
			return fmt.Errorf("plan step %d has no type", a.Step)
		}
	}
	return nil
}

// HasDuplicateWarning reports whether the planner flagged a possible duplicate.
func (p PlanStep) HasDuplicateWarning() bool {
	return p.DuplicateWarning != nil && *p.DuplicateWarning != ""
}
