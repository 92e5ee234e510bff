package audit

import (
	"context"

	"go.uber.org/zap"
)

// ZapSink writes events to a structured logger. Severity maps onto log
// levels so an operator can alert on critical entries out of band.
type ZapSink struct {
	log *zap.Logger
}

// NewZapSink wraps a logger as a sink.
func NewZapSink(log *zap.Logger) *ZapSink { return &ZapSink{log: log} }

// Write logs the event. Details are already PII-free by contract.
func (s *ZapSink) Write(_ context.Context, e Event) error {
	fields := []zap.Field{
		zap.String("event_id", e.ID.String()),
		zap.Time("at", e.Time),
		zap.String("action", string(e.Action)),
		zap.String("severity", string(e.Severity)),
		zap.String("resource_type", e.ResourceType),
		zap.String("result", string(e.Result)),
	}
	if e.ActorID != nil {
		fields = append(fields, zap.Int64("actor_id", *e.ActorID))
	}
	if e.ResourceID != nil {
		fields = append(fields, zap.Int64("resource_id", *e.ResourceID))
	}
	for k, v := range e.Details {
		fields = append(fields, zap.String("detail_"+k, v))
	}

	switch e.Severity {
	case SeverityCritical, SeverityHigh:
		s.log.Error("security event", fields...)
	case SeverityMedium:
		s.log.Warn("security event", fields...)
	default:
		s.log.Info("security event", fields...)
	}
	return nil
}

// EventInserter is satisfied by the security-events store.
type EventInserter interface {
	Insert(ctx context.Context, e Event) error
}

// StoreSink persists events to the append-only security_events table.
type StoreSink struct {
	store EventInserter
}

// NewStoreSink wraps an event store as a sink.
func NewStoreSink(store EventInserter) *StoreSink { return &StoreSink{store: store} }

func (s *StoreSink) Write(ctx context.Context, e Event) error {
	return s.store.Insert(ctx, e)
}
