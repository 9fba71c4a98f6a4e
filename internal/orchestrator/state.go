// Package orchestrator owns the lifecycle of the single in-flight command.
//
// All transitions go through Reduce, a pure function of the current State
// and one Msg. Reduce never performs I/O: work it wants done is returned as
// an Effect, which the Engine runs and whose result comes back as another
// Msg. Every Msg produced by an effect carries the RequestToken it was
// issued under, and Reduce drops any whose token is no longer current.
package orchestrator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/voiceops/internal/gate"
	"github.com/mark3labs/voiceops/internal/health"
	"github.com/mark3labs/voiceops/internal/model"
)

// DefaultMaxClarifications bounds the clarification round-trips for one command.
const DefaultMaxClarifications = 2

var (
	ErrEmptyCommand            = errors.New("command is empty")
	ErrBusy                    = errors.New("a command is already in progress")
	ErrNotAwaitingConfirmation = errors.New("no plan is awaiting confirmation")
	ErrExecuting               = errors.New("cannot clear while actions are executing")
	ErrStopped                 = errors.New("orchestrator stopped")
)

// SampleCommands are example commands offered to new users.
var SampleCommands = []string{
	"Create a ticket for the login page freezing after 3 wrong passwords on Safari, high priority",
	"Find similar tickets to the database connection issue",
	"Close ticket AUTH-204 and notify the backend team on Slack",
	"Reassign ticket CORE-150 to james.wu",
}

// Phase is the orchestrator's position in the command lifecycle.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSubmitting
	PhaseAwaitingConfirmation
	PhaseAwaitingClarification
	PhaseExecuting
	PhaseCompleted
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseSubmitting:
		return "submitting"
	case PhaseAwaitingConfirmation:
		return "awaiting_confirmation"
	case PhaseAwaitingClarification:
		return "awaiting_clarification"
	case PhaseExecuting:
		return "executing"
	case PhaseCompleted:
		return "completed"
	case PhaseFailed:
		return "failed"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// MarshalText renders the phase name in JSON output.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// State is the orchestrator's complete observable state.
type State struct {
	Version           uint64                 `json:"version"` // Bumped on every accepted transition
	Phase             Phase                  `json:"phase"`
	Token             uint64                 `json:"token"` // RequestToken of the current command
	Command           string                 `json:"command,omitempty"`
	Result            *model.PipelineResult  `json:"result,omitempty"`
	Verdict           gate.Verdict           `json:"verdict"`
	Execution         *model.ExecutionResult `json:"execution,omitempty"`
	Error             string                 `json:"error,omitempty"`
	Clarifications    int                    `json:"clarifications"`
	MaxClarifications int                    `json:"max_clarifications"`
	Reconciling       int                    `json:"reconciling"` // Completed executions not yet recorded in the stores
	Health            health.State           `json:"health"`
}

// NewState returns the initial Idle state. Values below 1 use
// DefaultMaxClarifications; configuration rejects them before this point.
func NewState(maxClarifications int) State {
	if maxClarifications <= 0 {
		maxClarifications = DefaultMaxClarifications
	}
	return State{
		Phase:             PhaseIdle,
		MaxClarifications: maxClarifications,
		Health:            health.State{Status: health.StatusUnknown},
	}
}

// IsProcessing reports whether a service call for the current command is
// outstanding.
func (s State) IsProcessing() bool {
	return s.Phase == PhaseSubmitting || s.Phase == PhaseExecuting
}

// Settled reports whether nothing is in flight, recording included.
func (s State) Settled() bool {
	return !s.IsProcessing() && s.Reconciling == 0
}

// Msg is an input to Reduce.
type Msg interface{ isMsg() }

type (
	// SubmitMsg carries a new command or a clarification.
	SubmitMsg struct{ Text string }
	// ConfirmMsg approves the plan awaiting confirmation.
	ConfirmMsg struct{}
	// ClearMsg discards the active result and returns to Idle.
	ClearMsg struct{}

	// PipelineDoneMsg delivers the pipeline service response.
	PipelineDoneMsg struct {
		Token  uint64
		Result model.PipelineResult
	}
	// PipelineFailedMsg reports a pipeline transport failure.
	PipelineFailedMsg struct {
		Token uint64
		Err   error
	}
	// ExecutionDoneMsg delivers the outcomes of a confirmed plan.
	ExecutionDoneMsg struct {
		Token  uint64
		Result model.ExecutionResult
	}
	// ExecutionFailedMsg reports that the batch could not be executed.
	ExecutionFailedMsg struct {
		Token uint64
		Err   error
	}
	// ReconciledMsg reports that a completed execution has been recorded.
	ReconciledMsg struct {
		Token uint64
		Entry model.AuditEntry
	}
	// HealthMsg carries a connectivity update.
	HealthMsg struct{ State health.State }
)

func (SubmitMsg) isMsg()          {}
func (ConfirmMsg) isMsg()         {}
func (ClearMsg) isMsg()           {}
func (PipelineDoneMsg) isMsg()    {}
func (PipelineFailedMsg) isMsg()  {}
func (ExecutionDoneMsg) isMsg()   {}
func (ExecutionFailedMsg) isMsg() {}
func (ReconciledMsg) isMsg()      {}
func (HealthMsg) isMsg()          {}

// Effect is work requested by Reduce. A nil Effect means none.
type Effect interface{ isEffect() }

type (
	// ProcessEffect sends command text to the pipeline service. Context is
	// the prior transcript when answering a clarification.
	ProcessEffect struct {
		Token   uint64
		Text    string
		Context string
	}
	// ExecuteEffect runs the confirmed plan.
	ExecuteEffect struct {
		Token  uint64
		Result model.PipelineResult
	}
	// ReconcileEffect folds a completed execution into the stores. It is
	// emitted exactly once per completed execution.
	ReconcileEffect struct {
		Token     uint64
		Result    model.PipelineResult
		Execution model.ExecutionResult
	}
)

func (ProcessEffect) isEffect()   {}
func (ExecuteEffect) isEffect()   {}
func (ReconcileEffect) isEffect() {}

// Reduce applies msg to s. A non-nil error means the message was rejected
// and s is returned unchanged. Stale results are dropped the same way but
// without an error.
func Reduce(s State, msg Msg) (State, Effect, error) {
	switch m := msg.(type) {
	case SubmitMsg:
		return reduceSubmit(s, m)

	case PipelineDoneMsg:
		if m.Token != s.Token || s.Phase != PhaseSubmitting {
			return s, nil, nil
		}
		return reducePipelineDone(s, m.Result), nil, nil

	case PipelineFailedMsg:
		if m.Token != s.Token || s.Phase != PhaseSubmitting {
			return s, nil, nil
		}
		s.Phase = PhaseFailed
		s.Result = nil
		s.Error = fmt.Sprintf("command service unavailable: %v", m.Err)
		s.Version++
		return s, nil, nil

	case ConfirmMsg:
		if s.Phase != PhaseAwaitingConfirmation || s.Result == nil {
			return s, nil, ErrNotAwaitingConfirmation
		}
		s.Phase = PhaseExecuting
		s.Error = ""
		s.Version++
		return s, ExecuteEffect{Token: s.Token, Result: *s.Result}, nil

	case ExecutionDoneMsg:
		if m.Token != s.Token || s.Phase != PhaseExecuting {
			return s, nil, nil
		}
		exec := m.Result
		s.Phase = PhaseCompleted
		s.Execution = &exec
		s.Error = ""
		s.Reconciling++
		s.Version++
		return s, ReconcileEffect{Token: s.Token, Result: *s.Result, Execution: exec}, nil

	case ExecutionFailedMsg:
		if m.Token != s.Token || s.Phase != PhaseExecuting {
			return s, nil, nil
		}
		s.Phase = PhaseFailed
		s.Error = fmt.Sprintf("execution failed: %v", m.Err)
		s.Version++
		return s, nil, nil

	case ClearMsg:
		if s.Phase == PhaseExecuting {
			return s, nil, ErrExecuting
		}
		if s.Phase == PhaseSubmitting {
			// Abandon the request; its response will not match.
			s.Token++
		}
		s.Phase = PhaseIdle
		s.Command = ""
		s.Result = nil
		s.Verdict = gate.Verdict{}
		s.Execution = nil
		s.Error = ""
		s.Clarifications = 0
		s.Version++
		return s, nil, nil

	case ReconciledMsg:
		// Recording may finish after a newer command started.
		if s.Reconciling > 0 {
			s.Reconciling--
		}
		s.Version++
		return s, nil, nil

	case HealthMsg:
		s.Health = m.State
		s.Version++
		return s, nil, nil

	default:
		return s, nil, fmt.Errorf("unknown message %T", msg)
	}
}

func reduceSubmit(s State, m SubmitMsg) (State, Effect, error) {
	text := strings.TrimSpace(m.Text)
	if text == "" {
		return s, nil, ErrEmptyCommand
	}

	var context string
	switch s.Phase {
	case PhaseSubmitting, PhaseExecuting, PhaseAwaitingConfirmation:
		return s, nil, ErrBusy
	case PhaseAwaitingClarification:
		if s.Result != nil {
			context = s.Result.Transcript
		}
		if context == "" {
			context = s.Command
		}
		s.Clarifications++
	default:
		s.Clarifications = 0
	}

	s.Token++
	s.Phase = PhaseSubmitting
	s.Command = text
	s.Result = nil
	s.Verdict = gate.Verdict{}
	s.Execution = nil
	s.Error = ""
	s.Version++
	return s, ProcessEffect{Token: s.Token, Text: text, Context: context}, nil
}

func reducePipelineDone(s State, result model.PipelineResult) State {
	s.Result = &result
	s.Verdict = gate.Decide(result)
	s.Version++

	switch s.Verdict.Decision {
	case gate.RequireConfirmation:
		s.Phase = PhaseAwaitingConfirmation
		s.Error = ""
	case gate.RequireClarification:
		if s.Clarifications >= s.MaxClarifications {
			s.Phase = PhaseFailed
			s.Error = fmt.Sprintf("command still ambiguous after %d clarifications", s.Clarifications)
			return s
		}
		s.Phase = PhaseAwaitingClarification
		s.Error = ""
	default:
		s.Phase = PhaseFailed
		s.Error = s.Verdict.Reason
	}
	return s
}
