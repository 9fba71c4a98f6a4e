package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mark3labs/voiceops/internal/logger"
	"github.com/mark3labs/voiceops/internal/nats"
	"github.com/nats-io/nats.go/jetstream"
)

var log = logger.Named("store")

// ErrFollowerStopped is returned by WaitFor once the follower is stopped.
var ErrFollowerStopped = errors.New("journal follower stopped")

// Event is one entry of the session journal. The journal is append-only:
// the audit log and ticket views are rebuilt by reducing events in order.
type Event struct {
	ID        string          `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Session   string          `json:"session"`
	Type      string          `json:"type"`   // audit, ticket
	Action    string          `json:"action"` // append, upsert
	Meta      json.RawMessage `json:"meta"`   // Serialized AuditEntry or Ticket
}

// Event actions
const (
	ActionAppend = "append"
	ActionUpsert = "upsert"
)

// Publisher appends events to a journal. *Journal implements it.
type Publisher interface {
	PublishEvent(ctx context.Context, event Event) (*jetstream.PubAck, error)
}

// Journal is the session event log on a JetStream stream.
type Journal struct {
	js     jetstream.JetStream
	stream jetstream.Stream
}

// NewJournal creates a Journal on an existing stream.
func NewJournal(js jetstream.JetStream, stream jetstream.Stream) *Journal {
	return &Journal{js: js, stream: stream}
}

// PublishEvent appends an event to subject voiceops.{session}.{type}.
func (j *Journal) PublishEvent(ctx context.Context, event Event) (*jetstream.PubAck, error) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}

	subject := nats.SubjectForEvent(event.Session, event.Type)
	ack, err := j.js.Publish(ctx, subject, data)
	if err != nil {
		log.Error("Failed to publish event to subject %s: %v", subject, err)
		return nil, fmt.Errorf("failed to publish event: %w", err)
	}

	log.Debug("Journalled %s/%s seq=%d", event.Type, event.Action, ack.Sequence)
	return ack, nil
}

// Follower keeps a View current with a session's journal. Events are
// applied in stream order as they are published.
type Follower struct {
	view *View
	cc   jetstream.ConsumeContext

	mu      sync.Mutex
	applied uint64        // Stream sequence of the last event applied
	advance chan struct{} // Closed and replaced whenever applied moves
	stopped bool
}

// Follow replays every journalled event of session into a new view and
// keeps applying new ones until Stop.
func (j *Journal) Follow(ctx context.Context, session string) (*Follower, error) {
	consumer, err := j.stream.OrderedConsumer(ctx, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{nats.SubjectForSession(session)},
		DeliverPolicy:  jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	f := &Follower{view: NewView(), advance: make(chan struct{})}
	cc, err := consumer.Consume(f.handle)
	if err != nil {
		return nil, fmt.Errorf("failed to consume journal: %w", err)
	}
	f.cc = cc

	log.Debug("Following journal for session %s", session)
	return f, nil
}

func (f *Follower) handle(msg jetstream.Msg) {
	md, err := msg.Metadata()
	if err != nil {
		log.Warn("Skipping journal message without metadata: %v", err)
		return
	}

	var event Event
	if err := json.Unmarshal(msg.Data(), &event); err != nil {
		log.Warn("Skipping malformed event seq=%d: %v", md.Sequence.Stream, err)
	} else if err := f.view.Apply(event); err != nil {
		log.Warn("Skipping unreadable %s event seq=%d: %v", event.Type, md.Sequence.Stream, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopped {
		return
	}
	f.applied = md.Sequence.Stream
	close(f.advance)
	f.advance = make(chan struct{})
}

// View returns the followed view.
func (f *Follower) View() *View {
	return f.view
}

// WaitFor blocks until the event at stream sequence seq has been applied.
func (f *Follower) WaitFor(ctx context.Context, seq uint64) error {
	for {
		f.mu.Lock()
		applied, advance, stopped := f.applied, f.advance, f.stopped
		f.mu.Unlock()

		if applied >= seq {
			return nil
		}
		if stopped {
			return ErrFollowerStopped
		}
		select {
		case <-advance:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Stop ends the subscription. Pending WaitFor calls return ErrFollowerStopped.
func (f *Follower) Stop() {
	f.mu.Lock()
	if f.stopped {
		f.mu.Unlock()
		return
	}
	f.stopped = true
	close(f.advance)
	f.mu.Unlock()

	f.cc.Stop()
}
