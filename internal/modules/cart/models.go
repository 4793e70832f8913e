package cart

import "time"

const (
	StatusActive  = "active"
	StatusOrdered = "ordered"
)

type Cart struct {
	ID      string  `gorm:"type:char(36);primaryKey"`
	UserID  *string `gorm:"type:char(36);index"`
	Status  string  `gorm:"type:varchar(16);not null;default:active"`
	OrderID *string `gorm:"type:char(36);index:ix_carts_order_id"`

	Items []CartItem `gorm:"foreignKey:CartID"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Cart) TableName() string { return "carts" }

type CartItem struct {
	ID        string  `gorm:"type:char(36);primaryKey"`
	CartID    string  `gorm:"type:char(36);not null;index"`
	ProductID string  `gorm:"type:char(36);not null"`
	VariantID *string `gorm:"type:char(36)"`
	Quantity  int     `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (CartItem) TableName() string { return "cart_items" }
