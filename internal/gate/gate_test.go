package gate

import (
	"testing"

	"github.com/mark3labs/voiceops/internal/model"
	"github.com/stretchr/testify/assert"
)

func resultWith(status model.Status, confidence model.Confidence, actions ...model.Action) model.PipelineResult {
	return model.PipelineResult{
		Transcript: "Close ticket AUTH-204",
		Status:     status,
		Pipeline: model.Pipeline{
			Plan: model.PlanStep{Actions: actions, Confidence: confidence},
		},
	}
}

var closeAndNotify = []model.Action{
	{Step: 1, Type: "close_ticket", Description: "Close AUTH-204"},
	{Step: 2, Type: "notify_slack", Description: "Tell #backend"},
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name     string
		result   model.PipelineResult
		decision Decision
		emphasis Emphasis
	}{
		{
			name:     "pending confirmation high confidence",
			result:   resultWith(model.StatusPendingConfirmation, model.ConfidenceHigh, closeAndNotify...),
			decision: RequireConfirmation,
			emphasis: EmphasisNormal,
		},
		{
			name:     "low confidence still requires confirmation",
			result:   resultWith(model.StatusPendingConfirmation, model.ConfidenceLow, closeAndNotify...),
			decision: RequireConfirmation,
			emphasis: EmphasisCareful,
		},
		{
			name:     "unknown confidence is reviewed carefully",
			result:   resultWith(model.StatusPendingConfirmation, "", closeAndNotify...),
			decision: RequireConfirmation,
			emphasis: EmphasisCareful,
		},
		{
			name:     "needs clarification",
			result:   resultWith(model.StatusNeedsClarification, model.ConfidenceLow),
			decision: RequireClarification,
			emphasis: EmphasisNormal,
		},
		{
			name:     "pipeline error",
			result:   resultWith(model.StatusError, model.ConfidenceHigh, closeAndNotify...),
			decision: Reject,
			emphasis: EmphasisNormal,
		},
		{
			name:     "unrecognised status is rejected",
			result:   resultWith("executed", model.ConfidenceHigh, closeAndNotify...),
			decision: Reject,
			emphasis: EmphasisNormal,
		},
		{
			name:     "empty plan is rejected",
			result:   resultWith(model.StatusPendingConfirmation, model.ConfidenceHigh),
			decision: Reject,
			emphasis: EmphasisNormal,
		},
		{
			name: "non contiguous plan is rejected",
			result: resultWith(model.StatusPendingConfirmation, model.ConfidenceHigh,
				model.Action{Step: 2, Type: "close_ticket"}),
			decision: Reject,
			emphasis: EmphasisNormal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Decide(tt.result)
			assert.Equal(t, tt.decision, v.Decision)
			assert.Equal(t, tt.emphasis, v.Emphasis)
			assert.NotEmpty(t, v.Reason)
		})
	}
}

func TestDecide_DuplicateWarningRaisesEmphasis(t *testing.T) {
	r := resultWith(model.StatusPendingConfirmation, model.ConfidenceHigh, closeAndNotify...)
	r.Pipeline.Plan.DuplicateWarning = model.StringPtr("AUTH-199 looks like the same issue")

	v := Decide(r)
	assert.Equal(t, RequireConfirmation, v.Decision)
	assert.Equal(t, EmphasisCareful, v.Emphasis)
}

func TestDecide_PipelineErrorReason(t *testing.T) {
	r := resultWith(model.StatusError, "")
	r.Error = "jira is not configured"
	assert.Equal(t, "jira is not configured", Decide(r).Reason)
}
