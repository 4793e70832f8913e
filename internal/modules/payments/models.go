package payments

import (
	"time"

	"gorm.io/datatypes"
)

const (
	StatusPending = "pending"
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Payment is one gateway attempt for an order. An attempt moves out of
// pending exactly once.
type Payment struct {
	ID             string  `gorm:"type:char(36);primaryKey"`
	OrderID        string  `gorm:"type:char(36);not null;uniqueIndex:ux_payments_order_attempt,priority:1"`
	Attempt        int     `gorm:"not null;uniqueIndex:ux_payments_order_attempt,priority:2"`
	Provider       string  `gorm:"type:varchar(64);not null"`
	GatewayTxnID   *string `gorm:"type:varchar(128);index"`
	Status         string  `gorm:"type:varchar(16);not null"`
	AmountCents    int     `gorm:"not null"`
	Currency       string  `gorm:"type:char(3);not null"`
	IdempotencyKey string  `gorm:"type:varchar(64);not null;index"`
	RedirectURL    *string `gorm:"type:varchar(1024)"`
	RawResponse    datatypes.JSON
	ErrorMessage   *string `gorm:"type:varchar(255)"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (Payment) TableName() string { return "payments" }

// ProviderEvent records every accepted callback body. The unique key makes a
// redelivered event a no-op.
type ProviderEvent struct {
	ID          string `gorm:"type:char(36);primaryKey"`
	Provider    string `gorm:"type:varchar(64);not null;uniqueIndex:ux_provider_events_provider_event,priority:1"`
	EventID     string `gorm:"type:varchar(128);not null;uniqueIndex:ux_provider_events_provider_event,priority:2"`
	EventType   string `gorm:"type:varchar(64);not null"`
	OrderRef    string `gorm:"type:varchar(32);index"`
	PayloadJSON datatypes.JSON

	ReceivedAt   time.Time
	ProcessedAt  *time.Time
	ProcessError *string `gorm:"type:varchar(255)"`
}

func (ProviderEvent) TableName() string { return "provider_events" }

const (
	RefundSucceeded = "succeeded"
	RefundPending   = "pending"
	RefundFailed    = "failed"
)

type Refund struct {
	ID        string `gorm:"type:char(36);primaryKey"`
	OrderID   string `gorm:"type:char(36);not null;index:ix_refunds_order_id"`
	PaymentID string `gorm:"type:char(36);not null;index:ix_refunds_payment_id"`

	Provider    string  `gorm:"type:varchar(64);not null"`
	ProviderRef *string `gorm:"type:varchar(128)"`

	Status      string `gorm:"type:varchar(32);not null"`
	AmountCents int    `gorm:"not null"`
	Currency    string `gorm:"type:char(3);not null"`

	Reason       *string `gorm:"type:varchar(255)"`
	ErrorMessage *string `gorm:"type:varchar(255)"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Refund) TableName() string { return "refunds" }
