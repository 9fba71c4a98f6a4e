// Package gate decides whether a processed command may move on to execution.
// Nothing here executes anything: the strongest outcome is a request for
// explicit user confirmation.
package gate

import (
	"fmt"

	"github.com/mark3labs/voiceops/internal/model"
)

// Decision is the outcome of evaluating a pipeline result.
type Decision string

const (
	RequireConfirmation  Decision = "require_confirmation"
	RequireClarification Decision = "require_clarification"
	Reject               Decision = "reject"
)

// Emphasis tells the reviewer how closely to read the plan.
type Emphasis string

const (
	EmphasisNormal  Emphasis = "normal"
	EmphasisCareful Emphasis = "careful"
)

// Verdict contains the decision and why it was made.
type Verdict struct {
	Decision Decision `json:"decision,omitempty"`
	Emphasis Emphasis `json:"emphasis,omitempty"`
	Reason   string   `json:"reason,omitempty"`
}

// Decide maps a pipeline result onto a verdict. It has no side effects.
func Decide(result model.PipelineResult) Verdict {
	switch result.Status {
	case model.StatusPendingConfirmation:
		plan := result.Pipeline.Plan
		if err := plan.Validate(); err != nil {
			return Verdict{
				Decision: Reject,
				Emphasis: EmphasisNormal,
				Reason:   fmt.Sprintf("invalid plan: %v", err),
			}
		}
		return Verdict{
			Decision: RequireConfirmation,
			Emphasis: emphasisFor(plan),
			Reason:   fmt.Sprintf("%d action(s) awaiting confirmation (%s confidence)", len(plan.Actions), plan.Confidence),
		}

	case model.StatusNeedsClarification:
		return Verdict{
			Decision: RequireClarification,
			Emphasis: EmphasisNormal,
			Reason:   "command is too ambiguous to plan",
		}

	default:
		reason := result.Error
		if reason == "" {
			reason = fmt.Sprintf("pipeline reported status %q", result.Status)
		}
		return Verdict{
			Decision: Reject,
			Emphasis: EmphasisNormal,
			Reason:   reason,
		}
	}
}

// emphasisFor raises review emphasis for low or unknown confidence and for
// plans flagged as possible duplicates.
func emphasisFor(plan model.PlanStep) Emphasis {
	if plan.HasDuplicateWarning() {
		return EmphasisCareful
	}
	switch plan.Confidence {
	case model.ConfidenceHigh, model.ConfidenceMedium:
		return EmphasisNormal
	default:
		return EmphasisCareful
	}
}
