package cart

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// ErrNotActive is returned when a cart that is already ordered is linked to
// another order.
var ErrNotActive = errors.New("cart is not active")

// Sync keeps a cart's lifecycle in step with the payment outcome of its
// linked order. Every method runs on the caller's transaction and is safe to
// repeat.
type Sync struct{}

func NewSync() *Sync { return &Sync{} }

// Link attaches an active cart to a freshly placed order.
func (s *Sync) Link(ctx context.Context, tx *gorm.DB, cartID, orderID string) error {
	res := tx.WithContext(ctx).
		Model(&Cart{}).
		Where("id = ? AND status = ?", cartID, StatusActive).
		Update("order_id", orderID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotActive
	}
	return nil
}

// MarkOrdered flips the cart linked to orderID to ordered. A cart already
// ordered, or no linked cart at all, is not an error.
func (s *Sync) MarkOrdered(ctx context.Context, tx *gorm.DB, orderID string) (bool, error) {
	res := tx.WithContext(ctx).
		Model(&Cart{}).
		Where("order_id = ? AND status <> ?", orderID, StatusOrdered).
		Update("status", StatusOrdered)
	return res.RowsAffected > 0, res.Error
}

// MarkActive reverts the cart linked to orderID to active and clears the
// link so the shopper can check out again.
func (s *Sync) MarkActive(ctx context.Context, tx *gorm.DB, orderID string) (bool, error) {
	res := tx.WithContext(ctx).
		Model(&Cart{}).
		Where("order_id = ?", orderID).
		Updates(map[string]any{"status": StatusActive, "order_id": nil})
	return res.RowsAffected > 0, res.Error
}

// Lookup returns the cart linked to orderID, if any.
func (s *Sync) Lookup(ctx context.Context, db *gorm.DB, orderID string) (*Cart, error) {
	var c Cart
	err := db.WithContext(ctx).Where("order_id = ?", orderID).Take(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
