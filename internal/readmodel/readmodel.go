// Package readmodel fetches the read-only views served by the backend:
// preset ES|QL queries, the audit trail, tickets, analytics and impact.
package readmodel

import (
	"context"
	"fmt"

	"github.com/mark3labs/voiceops/internal/logger"
	"github.com/mark3labs/voiceops/internal/model"
	"golang.org/x/sync/errgroup"
)

var log = logger.Named("readmodel")

// Preset is a named ES|QL query exposed by the backend.
type Preset struct {
	ID          string
	Name        string
	Description string
}

var presets = []Preset{
	{ID: "recent-actions", Name: "Recent Actions", Description: "Latest agent actions with timing"},
	{ID: "action-stats", Name: "Action Statistics", Description: "Aggregate stats including success rate"},
	{ID: "tickets-by-priority", Name: "Tickets by Priority", Description: "Distribution of tickets by priority level"},
	{ID: "slow-actions", Name: "Slow Actions", Description: "Actions that took longer than 2 seconds"},
	{ID: "daily-summary", Name: "Daily Summary", Description: "Action counts and durations by day"},
}

// Presets returns the preset catalogue.
func Presets() []Preset {
	return append([]Preset(nil), presets...)
}

// LookupPreset finds a preset by ID.
func LookupPreset(id string) (Preset, bool) {
	for _, p := range presets {
		if p.ID == id {
			return p, true
		}
	}
	return Preset{}, false
}

// Source is the backend surface used by this package. *client.Client
// implements it.
type Source interface {
	RunESQLQuery(ctx context.Context, presetID string) (model.ESQLResult, error)
	AuditLog(ctx context.Context) ([]model.AuditEntry, error)
	Tickets(ctx context.Context) ([]model.Ticket, error)
	Analytics(ctx context.Context) (model.Analytics, error)
	Impact(ctx context.Context) (model.Impact, error)
}

// RunPreset runs a preset query. Failures, including unknown presets, are
// reported in the result's Error field.
func RunPreset(ctx context.Context, src Source, id string) model.ESQLResult {
	if _, ok := LookupPreset(id); !ok {
		return model.ESQLResult{Error: fmt.Sprintf("unknown preset %q", id)}
	}
	res, err := src.RunESQLQuery(ctx, id)
	if err != nil {
		log.Warn("ES|QL preset %s failed: %v", id, err)
		return model.ESQLResult{Error: err.Error()}
	}
	return res
}

// Snapshot is one consistent fetch of every backend view.
type Snapshot struct {
	AuditLog  []model.AuditEntry `json:"audit_log"`
	Tickets   []model.Ticket     `json:"tickets"`
	Analytics model.Analytics    `json:"analytics"`
	Impact    model.Impact       `json:"impact"`
}

// Fetch loads all views concurrently. The first failure cancels the rest.
func Fetch(ctx context.Context, src Source) (Snapshot, error) {
	var snap Snapshot
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		entries, err := src.AuditLog(gctx)
		if err != nil {
			return fmt.Errorf("audit log: %w", err)
		}
		snap.AuditLog = entries
		return nil
	})
	g.Go(func() error {
		tickets, err := src.Tickets(gctx)
		if err != nil {
			return fmt.Errorf("tickets: %w", err)
		}
		snap.Tickets = tickets
		return nil
	})
	g.Go(func() error {
		a, err := src.Analytics(gctx)
		if err != nil {
			return fmt.Errorf("analytics: %w", err)
		}
		snap.Analytics = a
		return nil
	})
	g.Go(func() error {
		i, err := src.Impact(gctx)
		if err != nil {
			return fmt.Errorf("impact: %w", err)
		}
		snap.Impact = i
		return nil
	})

	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}
