package nats

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"
)

const (
	streamName = "voiceops_events"

	// Event types
	EventTypeAudit  = "audit"
	EventTypeTicket = "ticket"
)

// SubjectForSession returns the wildcard subject pattern for all events in a session.
// Example: "voiceops.default.>"
func SubjectForSession(session string) string {
	return fmt.Sprintf("voiceops.%s.>", session)
}

// SubjectForEvent returns the specific subject for an event type in a session.
// Example: "voiceops.default.audit"
func SubjectForEvent(session, eventType string) string {
	return fmt.Sprintf("voiceops.%s.%s", session, eventType)
}

// SetupStream creates or updates the JetStream stream holding the journal.
// The stream lives in memory only: it is gone when the server shuts down.
func SetupStream(ctx context.Context, js jetstream.JetStream) (jetstream.Stream, error) {
	return js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      streamName,
		Subjects:  []string{"voiceops.>"},
		Storage:   jetstream.MemoryStorage,
		Retention: jetstream.LimitsPolicy,
		Discard:   jetstream.DiscardNew,
	})
}
