package events

import (
	"context"
	"log/slog"
	"time"
)

// Event types emitted by the engine.
const (
	TypeOrderCreated      = "order-created"
	TypeStatusUpdate      = "status-update"
	TypeAdminStatusUpdate = "admin-status-update"
)

// Scope addresses an event to the job's own audience or to everyone.
type Scope string

const (
	ScopeJob       Scope = "job"
	ScopeBroadcast Scope = "broadcast"
)

// Event describes a job state transition reported outward.
type Event struct {
	Type      string    `json:"type"`
	Scope     Scope     `json:"scope"`
	JobID     string    `json:"job_id"`
	Status    string    `json:"status"`
	UnitID    *string   `json:"unit_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Sink receives engine events. Delivery is best-effort: implementations log
// failures rather than failing the transition that produced the event.
type Sink interface {
	Publish(ctx context.Context, event Event)
}

// LogSink writes events to the structured log.
type LogSink struct{}

func (LogSink) Publish(ctx context.Context, event Event) {
	slog.Info("event",
		"type", event.Type,
		"scope", event.Scope,
		"job_id", event.JobID,
		"status", event.Status,
	)
}

// Fanout publishes to every sink in order.
type Fanout []Sink

func (f Fanout) Publish(ctx context.Context, event Event) {
	for _, sink := range f {
		sink.Publish(ctx, event)
	}
}
