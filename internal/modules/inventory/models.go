package inventory

import "time"

type Product struct {
	ID         string `gorm:"type:char(36);primaryKey"`
	Name       string `gorm:"size:255;not null"`
	SKU        string `gorm:"size:64;not null;uniqueIndex"`
	PriceCents int    `gorm:"not null"`
	Currency   string `gorm:"type:char(3);not null"`
	Active     bool   `gorm:"not null;default:true"`
	// Stock is the available counter. It is only mutated through stock ± n
	// expressions, never by writing back a value read earlier.
	Stock     int `gorm:"not null;default:0"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Product) TableName() string { return "products" }

type Variant struct {
	ID         string `gorm:"type:char(36);primaryKey"`
	ProductID  string `gorm:"type:char(36);not null;index"`
	SKU        string `gorm:"size:64;not null;uniqueIndex"`
	Name       string `gorm:"size:255"`
	PriceCents int    `gorm:"not null"`
	Currency   string `gorm:"type:char(3);not null"`
	Stock      int    `gorm:"not null;default:0"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (Variant) TableName() string { return "product_variants" }
