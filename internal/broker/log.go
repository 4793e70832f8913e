package broker

import (
	"context"
	"log/slog"

	"pehlione.com/payrecon/internal/modules/outbox"
)

// Log writes events to the structured log. Used when no broker is configured.
type Log struct {
	log *slog.Logger
}

func NewLog(log *slog.Logger) *Log {
	if log == nil {
		log = slog.Default()
	}
	return &Log{log: log}
}

func (l *Log) Publish(ctx context.Context, msg outbox.Message) error {
	l.log.InfoContext(ctx, "domain event",
		"event_id", msg.ID,
		"event_type", msg.Type,
		"aggregate_id", msg.Key,
		"payload", string(msg.Payload),
	)
	return nil
}

func (l *Log) Close() error { return nil }
