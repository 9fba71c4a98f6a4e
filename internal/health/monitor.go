// Package health tracks backend connectivity and drives bounded-retry
// reconnection.
package health

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mark3labs/voiceops/internal/logger"
	"github.com/mark3labs/voiceops/internal/model"
)

var log = logger.Named("health")

// DefaultRetryDelay is the pause before the single automatic retry.
const DefaultRetryDelay = 3 * time.Second

// ErrClosed is returned by Reconnect after Close.
var ErrClosed = errors.New("health monitor closed")

// Status is the connectivity state published to subscribers.
type Status string

const (
	StatusUnknown      Status = "unknown"
	StatusHealthy      Status = "healthy"
	StatusUnhealthy    Status = "unhealthy"
	StatusReconnecting Status = "reconnecting"
)

// State is one published connectivity snapshot.
type State struct {
	Status    Status             `json:"status"`
	Health    model.HealthStatus `json:"health"`          // Last payload returned by the backend
	Error     string             `json:"error,omitempty"` // Last check failure, empty when healthy
	CheckedAt time.Time          `json:"checked_at"`
}

// Checker calls the backend health endpoint. *client.Client implements it.
type Checker interface {
	Health(ctx context.Context) (model.HealthStatus, error)
}

// Monitor owns the connectivity state. A reconnect makes one check and, if
// that fails, exactly one more after the retry delay.
type Monitor struct {
	checker Checker
	delay   time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	state   State
	subs    map[int]chan State
	nextSub int
	pending bool          // Reconnect outstanding, retry included
	done    chan struct{} // Closed when the outstanding reconnect settles
	timer   *time.Timer
	closed  bool
}

// New creates a Monitor. A non-positive delay uses DefaultRetryDelay.
func New(checker Checker, retryDelay time.Duration) *Monitor {
	if retryDelay <= 0 {
		retryDelay = DefaultRetryDelay
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Monitor{
		checker: checker,
		delay:   retryDelay,
		ctx:     ctx,
		cancel:  cancel,
		state:   State{Status: StatusUnknown},
		subs:    make(map[int]chan State),
	}
}

// State returns the current connectivity state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe returns a channel receiving every state update and a function
// that cancels the subscription. Updates are dropped for a subscriber that
// has fallen 16 updates behind.
func (m *Monitor) Subscribe() (<-chan State, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan State, 16)
	if m.closed {
		close(ch)
		return ch, func() {}
	}
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch

	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if c, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(c)
		}
	}
}

// CheckHealth checks the backend once and publishes the result. A healthy
// result also settles an outstanding reconnect.
func (m *Monitor) CheckHealth(ctx context.Context) (model.HealthStatus, error) {
	h, err := m.query(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return h, err
	}
	switch {
	case m.pending && err == nil:
		m.settleLocked(h, nil)
	case m.pending:
		m.setLocked(State{Status: StatusReconnecting, Health: h, Error: err.Error()})
	default:
		m.setLocked(stateFor(h, err))
	}
	return h, err
}

// Reconnect publishes reconnecting and checks the backend. On failure one
// retry is scheduled after the retry delay; if it fails as well the state
// settles to unhealthy until the next manual Reconnect. Calling Reconnect
// while one is outstanding does nothing.
func (m *Monitor) Reconnect(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.pending {
		m.mu.Unlock()
		log.Debug("Reconnect already in progress")
		return nil
	}
	m.pending = true
	m.done = make(chan struct{})
	cycle := m.done
	m.setLocked(State{Status: StatusReconnecting, Health: m.state.Health, Error: m.state.Error})
	m.mu.Unlock()

	h, err := m.query(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.current(cycle) {
		// Settled by CheckHealth or Close meanwhile, possibly with a newer
		// reconnect already outstanding.
		return err
	}
	if err == nil {
		m.settleLocked(h, nil)
		return nil
	}

	log.Warn("Reconnect failed, retrying in %s: %v", m.delay, err)
	m.setLocked(State{Status: StatusReconnecting, Health: h, Error: err.Error()})
	m.timer = time.AfterFunc(m.delay, func() { m.retry(cycle) })
	return err
}

// current reports whether the reconnect identified by cycle is still the
// outstanding one.
func (m *Monitor) current(cycle chan struct{}) bool {
	return m.pending && !m.closed && m.done == cycle
}

func (m *Monitor) retry(cycle chan struct{}) {
	m.mu.Lock()
	if !m.current(cycle) {
		m.mu.Unlock()
		return
	}
	ctx := m.ctx
	m.mu.Unlock()

	h, err := m.query(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.current(cycle) {
		return
	}
	if err != nil {
		log.Error("Reconnect retry failed, giving up: %v", err)
	}
	m.settleLocked(h, err)
}

// Wait blocks until no reconnect is outstanding.
func (m *Monitor) Wait(ctx context.Context) error {
	m.mu.Lock()
	pending, done := m.pending, m.done
	m.mu.Unlock()
	if !pending {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close cancels a pending retry and closes every subscription.
func (m *Monitor) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	if m.pending {
		m.pending = false
		close(m.done)
	}
	m.cancel()
	for id, ch := range m.subs {
		delete(m.subs, id)
		close(ch)
	}
}

func (m *Monitor) query(ctx context.Context) (model.HealthStatus, error) {
	h, err := m.checker.Health(ctx)
	if err != nil {
		return h, err
	}
	if !h.Healthy() {
		return h, fmt.Errorf("backend reported status %q", h.Status)
	}
	return h, nil
}

func (m *Monitor) settleLocked(h model.HealthStatus, err error) {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.pending = false
	close(m.done)
	m.setLocked(stateFor(h, err))
}

func (m *Monitor) setLocked(s State) {
	s.CheckedAt = time.Now()
	m.state = s
	for _, ch := range m.subs {
		select {
		case ch <- s:
		default:
			log.Warn("Dropping health update for slow subscriber")
		}
	}
}

func stateFor(h model.HealthStatus, err error) State {
	if err != nil {
		return State{Status: StatusUnhealthy, Health: h, Error: err.Error()}
	}
	return State{Status: StatusHealthy, Health: h}
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context) (model.HealthStatus, error)

// Health calls f.
func (f CheckerFunc) Health(ctx context.Context) (model.HealthStatus, error) {
	return f(ctx)
}
