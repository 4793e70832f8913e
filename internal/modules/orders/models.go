package orders

import (
	"time"

	"gorm.io/datatypes"
)

type Order struct {
	ID     string  `gorm:"type:char(36);primaryKey"`
	Ref    string  `gorm:"type:varchar(32);not null;uniqueIndex:ux_orders_ref"`
	UserID *string `gorm:"type:char(36);index"`
	CartID *string `gorm:"type:char(36)"`

	Currency      string `gorm:"type:char(3);not null"`
	SubtotalCents int    `gorm:"not null"`
	DiscountCents int    `gorm:"not null;default:0"`
	ShippingCents int    `gorm:"not null;default:0"`
	TotalCents    int    `gorm:"not null"`

	PaymentStatus PaymentStatus `gorm:"type:varchar(16);not null;index"`
	Status        Status        `gorm:"type:varchar(16);not null;index"`
	PaymentMethod string        `gorm:"type:varchar(32);not null;default:card"`
	GatewayTxnID  *string       `gorm:"type:varchar(128)"`

	PaidAt      *time.Time
	CancelledAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time

	Items []OrderItem `gorm:"foreignKey:OrderID"`
}

func (Order) TableName() string { return "orders" }

type OrderItem struct {
	ID          string  `gorm:"type:char(36);primaryKey"`
	OrderID     string  `gorm:"type:char(36);not null;index"`
	ProductID   string  `gorm:"type:char(36);not null"`
	VariantID   *string `gorm:"type:char(36)"`
	SKU         string  `gorm:"type:varchar(64);not null"`
	ProductName string  `gorm:"type:varchar(255);not null"`

	Quantity       int `gorm:"not null"`
	UnitPriceCents int `gorm:"not null"`
	LineTotalCents int `gorm:"not null"`

	PriceSnapshot datatypes.JSON
	CreatedAt     time.Time
}

func (OrderItem) TableName() string { return "order_items" }

// OrderEvent is the append-only history of an order. Rows are never updated.
type OrderEvent struct {
	ID      string `gorm:"type:char(36);primaryKey"`
	OrderID string `gorm:"type:char(36);not null;index"`
	Actor   string `gorm:"type:varchar(64);not null"`
	Action  string `gorm:"type:varchar(32);not null"`

	FromStatus  Status        `gorm:"type:varchar(16)"`
	ToStatus    Status        `gorm:"type:varchar(16)"`
	FromPayment PaymentStatus `gorm:"type:varchar(16)"`
	ToPayment   PaymentStatus `gorm:"type:varchar(16)"`

	Note      *string `gorm:"type:varchar(500)"`
	CreatedAt time.Time
}

func (OrderEvent) TableName() string { return "order_events" }
