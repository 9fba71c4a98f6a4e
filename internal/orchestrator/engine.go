package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mark3labs/voiceops/internal/client"
	ierr "github.com/mark3labs/voiceops/internal/errors"
	"github.com/mark3labs/voiceops/internal/health"
	"github.com/mark3labs/voiceops/internal/hooks"
	"github.com/mark3labs/voiceops/internal/logger"
	"github.com/mark3labs/voiceops/internal/model"
	"github.com/mark3labs/voiceops/internal/voice"
)

var log = logger.Named("orchestrator")

// PipelineService turns command text into a pipeline result.
type PipelineService interface {
	ProcessCommand(ctx context.Context, req client.CommandRequest) (model.PipelineResult, error)
}

// PlanExecutor executes a confirmed plan. *executor.Coordinator implements it.
type PlanExecutor interface {
	Execute(ctx context.Context, result model.PipelineResult) (model.ExecutionResult, error)
}

// Recorder folds completed executions into the local stores.
// *store.Reconciler implements it.
type Recorder interface {
	Apply(ctx context.Context, token uint64, exec model.ExecutionResult, result model.PipelineResult) (model.AuditEntry, error)
	AuditLog() []model.AuditEntry
	Tickets() []model.Ticket
}

// EngineConfig wires an Engine to its collaborators. Pipeline, Executor and
// Recorder are required.
type EngineConfig struct {
	Session           string
	Pipeline          PipelineService
	Executor          PlanExecutor
	Recorder          Recorder
	Transcriber       voice.Transcriber // Optional, needed by SubmitAudio
	Monitor           *health.Monitor   // Optional connectivity source
	Hooks             *hooks.Runner     // Optional post-command hooks
	MaxClarifications int               // Defaults to DefaultMaxClarifications
}

// Snapshot is the published view of the orchestrator.
type Snapshot struct {
	State
	IsProcessing bool               `json:"is_processing"`
	AuditLog     []model.AuditEntry `json:"audit_log"`
	Tickets      []model.Ticket     `json:"tickets"`
}

type envelope struct {
	msg   Msg
	reply chan error
}

// Engine hosts Reduce on a single goroutine. Public methods post messages
// to it; effects run on their own goroutines and post their results back.
type Engine struct {
	cfg EngineConfig

	msgs   chan envelope
	ctx    context.Context
	cancel context.CancelFunc
	loop   sync.WaitGroup
	work   sync.WaitGroup // Effects and the health relay

	state State // Owned by the loop goroutine
	input voice.Input

	mu       sync.RWMutex
	snapshot Snapshot
	subs     map[int]chan Snapshot
	nextSub  int
	stopped  bool

	stopOnce sync.Once
}

// NewEngine creates an Engine and starts its loop.
func NewEngine(cfg EngineConfig) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		cfg:    cfg,
		msgs:   make(chan envelope),
		ctx:    ctx,
		cancel: cancel,
		state:  NewState(cfg.MaxClarifications),
		subs:   make(map[int]chan Snapshot),
	}
	e.snapshot = e.buildSnapshot()

	e.loop.Add(1)
	go e.run()

	if cfg.Monitor != nil {
		updates, unsubscribe := cfg.Monitor.Subscribe()
		e.work.Add(1)
		go func() {
			defer e.work.Done()
			defer unsubscribe()
			for {
				select {
				case st, ok := <-updates:
					if !ok {
						return
					}
					e.post(HealthMsg{State: st})
				case <-e.ctx.Done():
					return
				}
			}
		}()
	}

	log.Debug("Engine started for session '%s'", cfg.Session)
	return e
}

// Submit starts a new command or answers a clarification. It returns once
// the engine has accepted or rejected the request; the pipeline call itself
// runs in the background.
func (e *Engine) Submit(ctx context.Context, text string) error {
	return e.send(ctx, SubmitMsg{Text: text})
}

// SubmitAudio records from c, transcribes the audio and submits the
// transcript, which it returns. A failed transcription counts as an empty
// command and is rejected with ErrEmptyCommand.
func (e *Engine) SubmitAudio(ctx context.Context, c voice.Capture) (string, error) {
	if e.cfg.Transcriber == nil {
		return "", fmt.Errorf("no transcriber configured")
	}
	text, err := e.input.Listen(ctx, c, e.cfg.Transcriber)
	if err != nil {
		return "", err
	}
	defer e.input.Set(voice.StateIdle)
	return text, e.Submit(ctx, text)
}

// InputState reports where audio input currently is.
func (e *Engine) InputState() voice.InputState {
	return e.input.State()
}

// Confirm approves the plan awaiting confirmation and starts execution.
func (e *Engine) Confirm(ctx context.Context) error {
	return e.send(ctx, ConfirmMsg{})
}

// Clear discards the active result and returns to Idle.
func (e *Engine) Clear(ctx context.Context) error {
	return e.send(ctx, ClearMsg{})
}

// Snapshot returns the latest published snapshot.
func (e *Engine) Snapshot() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snapshot
}

// Subscribe returns a channel of published snapshots and a cancel function.
// A subscriber that falls behind skips to the most recent snapshots.
func (e *Engine) Subscribe() (<-chan Snapshot, func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ch := make(chan Snapshot, 8)
	if e.stopped {
		close(ch)
		return ch, func() {}
	}
	id := e.nextSub
	e.nextSub++
	e.subs[id] = ch

	return ch, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if c, ok := e.subs[id]; ok {
			delete(e.subs, id)
			close(c)
		}
	}
}

// Wait blocks until no command is in flight and every completed execution
// has been recorded, then returns that snapshot.
func (e *Engine) Wait(ctx context.Context) (Snapshot, error) {
	updates, cancel := e.Subscribe()
	defer cancel()

	if snap := e.Snapshot(); snap.Settled() {
		return snap, nil
	}
	for {
		select {
		case snap, ok := <-updates:
			if !ok {
				return e.Snapshot(), ErrStopped
			}
			if snap.Settled() {
				return snap, nil
			}
		case <-ctx.Done():
			return e.Snapshot(), ctx.Err()
		}
	}
}

// Stop ends the loop, waits for running effects and closes subscriptions.
// Results of effects still in flight are discarded.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		e.cancel()
		e.loop.Wait()
		e.work.Wait()

		e.mu.Lock()
		e.stopped = true
		for id, ch := range e.subs {
			delete(e.subs, id)
			close(ch)
		}
		e.mu.Unlock()
		log.Debug("Engine stopped for session '%s'", e.cfg.Session)
	})
}

func (e *Engine) send(ctx context.Context, msg Msg) error {
	reply := make(chan error, 1)
	select {
	case e.msgs <- envelope{msg: msg, reply: reply}:
	case <-e.ctx.Done():
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post delivers an effect result. It gives up once the engine stops.
func (e *Engine) post(msg Msg) {
	select {
	case e.msgs <- envelope{msg: msg}:
	case <-e.ctx.Done():
	}
}

func (e *Engine) run() {
	defer e.loop.Done()
	for {
		select {
		case env := <-e.msgs:
			next, effect, err := Reduce(e.state, env.msg)
			if err == nil && next.Version != e.state.Version {
				if next.Phase != e.state.Phase {
					log.Debug("Phase %s -> %s (token %d)", e.state.Phase, next.Phase, next.Token)
				}
				e.state = next
				e.publish()
			}
			if effect != nil {
				e.start(effect)
			}
			if env.reply != nil {
				env.reply <- err
			}
		case <-e.ctx.Done():
			return
		}
	}
}

func (e *Engine) start(effect Effect) {
	e.work.Add(1)
	go func() {
		defer e.work.Done()
		switch eff := effect.(type) {
		case ProcessEffect:
			e.process(eff)
		case ExecuteEffect:
			e.execute(eff)
		case ReconcileEffect:
			e.reconcile(eff)
		}
	}()
}

func (e *Engine) process(eff ProcessEffect) {
	var result model.PipelineResult
	err := ierr.Recover(func() error {
		var err error
		result, err = e.cfg.Pipeline.ProcessCommand(e.ctx, client.CommandRequest{Text: eff.Text, Context: eff.Context})
		return err
	})
	if err != nil {
		logEffectError("Pipeline call", eff.Token, err)
		e.post(PipelineFailedMsg{Token: eff.Token, Err: err})
		return
	}
	e.post(PipelineDoneMsg{Token: eff.Token, Result: result})
}

func (e *Engine) execute(eff ExecuteEffect) {
	var result model.ExecutionResult
	err := ierr.Recover(func() error {
		var err error
		result, err = e.cfg.Executor.Execute(e.ctx, eff.Result)
		return err
	})
	if err != nil {
		logEffectError("Execution", eff.Token, err)
		e.post(ExecutionFailedMsg{Token: eff.Token, Err: err})
		return
	}
	log.Info("Command %d executed: %d succeeded, %d failed", eff.Token, result.Succeeded(), result.Failed())
	e.post(ExecutionDoneMsg{Token: eff.Token, Result: result})
}

func (e *Engine) reconcile(eff ReconcileEffect) {
	var entry model.AuditEntry
	err := ierr.Recover(func() error {
		var err error
		entry, err = e.cfg.Recorder.Apply(e.ctx, eff.Token, eff.Execution, eff.Result)
		return err
	})
	if err != nil {
		// The in-memory view is updated even when journalling fails.
		logEffectError("Recording", eff.Token, err)
	}

	if e.cfg.Hooks != nil && entry.ID != "" {
		out, err := e.cfg.Hooks.PostCommand(e.ctx, hooks.Variables{
			Session: e.cfg.Session,
			Command: eff.Result.Transcript,
			Summary: entry.OutcomeSummary,
			Token:   eff.Token,
		})
		if err != nil {
			log.Warn("Post-command hooks interrupted: %v", err)
		} else if out != "" {
			log.Info("Post-command hook output:\n%s", out)
		}
	}

	e.post(ReconciledMsg{Token: eff.Token, Entry: entry})
}

func logEffectError(what string, token uint64, err error) {
	var panicErr *ierr.PanicError
	if errors.As(err, &panicErr) {
		log.Error("%s for command %d panicked: %v\n%s", what, token, panicErr.Value, panicErr.StackTrace)
		return
	}
	if !ierr.IsTransient(err) {
		log.Error("%s for command %d failed: %v", what, token, err)
		return
	}
	log.Warn("%s for command %d failed: %v", what, token, err)
}

// publish rebuilds the snapshot and fans it out. Called from the loop only.
func (e *Engine) publish() {
	snap := e.buildSnapshot()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.snapshot = snap
	for _, ch := range e.subs {
		select {
		case ch <- snap:
		default:
			// Drop the oldest so the newest always lands.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

func (e *Engine) buildSnapshot() Snapshot {
	return Snapshot{
		State:        e.state,
		IsProcessing: e.state.IsProcessing(),
		AuditLog:     e.cfg.Recorder.AuditLog(),
		Tickets:      e.cfg.Recorder.Tickets(),
	}
}
