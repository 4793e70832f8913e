// Package database opens the relational store and owns the schema.
package database

import (
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"pehlione.com/payrecon/internal/modules/cart"
	"pehlione.com/payrecon/internal/modules/inventory"
	"pehlione.com/payrecon/internal/modules/orders"
	"pehlione.com/payrecon/internal/modules/outbox"
	"pehlione.com/payrecon/internal/modules/payments"
)

// Open connects to MySQL. The DSN should carry parseTime=true.
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Warn),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

// Models lists every persisted type in dependency order.
func Models() []any {
	return []any{
		&inventory.Product{},
		&inventory.Variant{},
		&cart.Cart{},
		&cart.CartItem{},
		&orders.Order{},
		&orders.OrderItem{},
		&orders.OrderEvent{},
		&payments.Payment{},
		&payments.ProviderEvent{},
		&payments.Refund{},
		&outbox.Event{},
	}
}

func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}
