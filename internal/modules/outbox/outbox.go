package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	TypeOrderPaid      = "order.paid"
	TypeOrderCancelled = "order.cancelled"
	TypeOrderRefunded  = "order.refunded"
)

// Event is a domain event recorded in the same transaction as the state
// change it describes. The poller publishes it afterwards.
type Event struct {
	ID          string `gorm:"type:char(36);primaryKey"`
	AggregateID string `gorm:"type:char(36);not null;index"`
	EventType   string `gorm:"type:varchar(64);not null"`
	Payload     datatypes.JSON
	Attempts    int        `gorm:"not null;default:0"`
	LastError   *string    `gorm:"type:varchar(255)"`
	PublishedAt *time.Time `gorm:"index"`
	CreatedAt   time.Time
}

func (Event) TableName() string { return "outbox_events" }

// Enqueue records an event on the caller's transaction.
func Enqueue(ctx context.Context, tx *gorm.DB, aggregateID, eventType string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	ev := Event{
		ID:          uuid.NewString(),
		AggregateID: aggregateID,
		EventType:   eventType,
		Payload:     datatypes.JSON(body),
		CreatedAt:   time.Now().UTC(),
	}
	return tx.WithContext(ctx).Create(&ev).Error
}

type Store struct{ db *gorm.DB }

func NewStore(db *gorm.DB) *Store { return &Store{db: db} }

// Unpublished returns pending events with fewer than maxAttempts failed
// publishes. Events that failed least come first so a run of broken rows
// cannot starve newer ones.
func (s *Store) Unpublished(ctx context.Context, limit, maxAttempts int) ([]Event, error) {
	var out []Event
	q := s.db.WithContext(ctx).Where("published_at IS NULL")
	if maxAttempts > 0 {
		q = q.Where("attempts < ?", maxAttempts)
	}
	err := q.Order("attempts ASC").
		Order("created_at ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (s *Store) MarkPublished(ctx context.Context, id string) error {
	now := time.Now().UTC()
	return s.db.WithContext(ctx).
		Model(&Event{}).
		Where("id = ? AND published_at IS NULL", id).
		Update("published_at", now).Error
}

func (s *Store) MarkFailed(ctx context.Context, id string, cause error) error {
	msg := cause.Error()
	if len(msg) > 255 {
		msg = msg[:255]
	}
	return s.db.WithContext(ctx).
		Model(&Event{}).
		Where("id = ?", id).
		Updates(map[string]any{"attempts": gorm.Expr("attempts + 1"), "last_error": msg}).Error
}

// ForAggregate lists events of one aggregate, oldest first.
func (s *Store) ForAggregate(ctx context.Context, aggregateID string) ([]Event, error) {
	var out []Event
	err := s.db.WithContext(ctx).
		Where("aggregate_id = ?", aggregateID).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}
