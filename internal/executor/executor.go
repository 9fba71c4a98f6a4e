// Package executor runs a confirmed plan against the action execution
// service, one action at a time in step order.
package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/mark3labs/voiceops/internal/client"
	"github.com/mark3labs/voiceops/internal/logger"
	"github.com/mark3labs/voiceops/internal/model"
)

var log = logger.Named("executor")

var (
	// ErrServiceUnreachable means no action in the batch could reach the
	// execution service.
	ErrServiceUnreachable = errors.New("execution service unreachable")

	// ErrInvalidPlan means the plan's steps are empty or not contiguous from 1.
	ErrInvalidPlan = errors.New("invalid plan")
)

// ActionExecutor executes a single action. *client.Client implements it.
type ActionExecutor interface {
	ExecuteAction(ctx context.Context, req client.ActionRequest) (model.ActionOutcome, error)
}

// Policy controls what happens to the remaining steps after a failure.
type Policy string

const (
	// ContinueOnFailure attempts every step regardless of earlier failures.
	ContinueOnFailure Policy = "continue"
	// AbortOnFailure skips every step after the first failure.
	AbortOnFailure Policy = "abort"
)

// ParsePolicy parses a policy name. Empty means ContinueOnFailure.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", ContinueOnFailure:
		return ContinueOnFailure, nil
	case AbortOnFailure:
		return AbortOnFailure, nil
	default:
		return "", fmt.Errorf("unknown failure policy %q", s)
	}
}

// Coordinator sequences plan execution.
type Coordinator struct {
	exec   ActionExecutor
	policy Policy
	onStep func(model.ActionOutcome)
}

// Config holds configuration for creating a new Coordinator.
type Config struct {
	Executor ActionExecutor
	Policy   Policy                    // Defaults to ContinueOnFailure
	OnStep   func(model.ActionOutcome) // Called after each step, including skipped ones
}

// New creates a new Coordinator.
func New(cfg Config) *Coordinator {
	policy := cfg.Policy
	if policy == "" {
		policy = ContinueOnFailure
	}
	return &Coordinator{
		exec:   cfg.Executor,
		policy: policy,
		onStep: cfg.OnStep,
	}
}

// Policy returns the coordinator's failure policy.
func (c *Coordinator) Policy() Policy {
	return c.policy
}

// Execute runs every action of the result's plan strictly in step order and
// never concurrently. The returned result always has one outcome per action.
// A failed action does not abort the batch under ContinueOnFailure.
// ErrServiceUnreachable is returned only when every action of the plan was
// attempted and failed at the transport level. A batch cut short by
// AbortOnFailure returns its outcomes instead.
func (c *Coordinator) Execute(ctx context.Context, result model.PipelineResult) (model.ExecutionResult, error) {
	plan := result.Pipeline.Plan
	if err := plan.Validate(); err != nil {
		return model.ExecutionResult{}, fmt.Errorf("%w: %v", ErrInvalidPlan, err)
	}

	outcomes := make([]model.ActionOutcome, 0, len(plan.Actions))
	unreachable := 0
	var lastErr error
	aborted := false

	for _, action := range plan.Actions {
		if err := ctx.Err(); err != nil {
			return model.ExecutionResult{}, err
		}

		if aborted {
			outcome := model.ActionOutcome{
				Step:    action.Step,
				Type:    action.Type,
				Success: false,
				Skipped: true,
				Message: model.StringPtr("skipped after an earlier step failed"),
			}
			outcomes = append(outcomes, outcome)
			c.notify(outcome)
			continue
		}

		log.Debug("Executing step %d (%s)", action.Step, action.Type)
		outcome, err := c.exec.ExecuteAction(ctx, client.ActionRequest{
			Transcript: result.Transcript,
			Intent:     result.Pipeline.Intent.Intent,
			Entities:   result.Pipeline.Intent.Entities,
			Action:     action,
		})
		if err != nil {
			if ctx.Err() != nil {
				return model.ExecutionResult{}, ctx.Err()
			}
			unreachable++
			lastErr = err
			log.Warn("Step %d (%s) failed to reach execution service: %v", action.Step, action.Type, err)
			outcome = model.ActionOutcome{Success: false, Message: model.StringPtr(err.Error())}
		}

		// Outcomes stay aligned with the plan whatever the service echoes back.
		outcome.Step = action.Step
		outcome.Type = action.Type
		outcome.Skipped = false
		outcomes = append(outcomes, outcome)
		c.notify(outcome)

		if !outcome.Success {
			log.Info("Step %d (%s) failed: %s", action.Step, action.Type, outcome.MessageText())
			if c.policy == AbortOnFailure {
				aborted = true
			}
		}
	}

	if unreachable == len(plan.Actions) {
		return model.ExecutionResult{}, fmt.Errorf("%w: %v", ErrServiceUnreachable, lastErr)
	}

	return model.ExecutionResult{Outcomes: outcomes}, nil
}

func (c *Coordinator) notify(o model.ActionOutcome) {
	if c.onStep != nil {
		c.onStep(o)
	}
}
