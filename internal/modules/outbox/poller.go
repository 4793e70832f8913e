package outbox

import (
	"context"
	"log/slog"
	"time"
)

// Message is what a Publisher puts on the wire. Key carries the aggregate id
// so a partitioned broker keeps one order's events in sequence.
type Message struct {
	ID      string
	Key     string
	Type    string
	Payload []byte
}

type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	Close() error
}

// DefaultMaxAttempts is how many failed publishes an event gets before the
// poller stops picking it up. Parked rows keep their last_error.
const DefaultMaxAttempts = 10

type Poller struct {
	store       *Store
	pub         Publisher
	tick        time.Duration
	batchSize   int
	maxAttempts int
	log         *slog.Logger
}

func NewPoller(store *Store, pub Publisher, tick time.Duration, log *slog.Logger) *Poller {
	if tick <= 0 {
		tick = time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Poller{store: store, pub: pub, tick: tick, batchSize: 100, maxAttempts: DefaultMaxAttempts, log: log}
}

func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.Flush(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Flush publishes one batch of pending events and returns how many went out.
func (p *Poller) Flush(ctx context.Context) int {
	events, err := p.store.Unpublished(ctx, p.batchSize, p.maxAttempts)
	if err != nil {
		p.log.ErrorContext(ctx, "outbox fetch failed", "err", err)
		return 0
	}

	sent := 0
	for _, ev := range events {
		msg := Message{ID: ev.ID, Key: ev.AggregateID, Type: ev.EventType, Payload: ev.Payload}
		if err := p.pub.Publish(ctx, msg); err != nil {
			p.log.WarnContext(ctx, "outbox publish failed", "event_id", ev.ID, "event_type", ev.EventType, "err", err)
			if mErr := p.store.MarkFailed(ctx, ev.ID, err); mErr != nil {
				p.log.ErrorContext(ctx, "outbox mark failed", "event_id", ev.ID, "err", mErr)
			} else if ev.Attempts+1 >= p.maxAttempts {
				p.log.ErrorContext(ctx, "outbox event parked", "event_id", ev.ID, "event_type", ev.EventType, "attempts", ev.Attempts+1)
			}
			continue
		}
		if err := p.store.MarkPublished(ctx, ev.ID); err != nil {
			p.log.ErrorContext(ctx, "outbox mark published failed", "event_id", ev.ID, "err", err)
			continue
		}
		sent++
	}
	return sent
}
