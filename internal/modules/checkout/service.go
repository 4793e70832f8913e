package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"pehlione.com/payrecon/internal/modules/cart"
	"pehlione.com/payrecon/internal/modules/inventory"
	"pehlione.com/payrecon/internal/modules/orders"
	"pehlione.com/payrecon/internal/shared/dbtx"
)

type Service struct {
	db    *gorm.DB
	inv   *inventory.Adjuster
	carts *cart.Sync
	log   *slog.Logger
	now   func() time.Time
}

func NewService(db *gorm.DB, inv *inventory.Adjuster, carts *cart.Sync, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{db: db, inv: inv, carts: carts, log: log, now: time.Now}
}

type PlaceInput struct {
	CartID        string
	ShippingCents int
	DiscountCents int
	PaymentMethod string
}

type priced struct {
	item     cart.CartItem
	sku      string
	name     string
	price    int
	currency string
}

// Place turns an active cart into a pending order. Stock is reserved, the
// order written and the cart linked in one transaction.
func (s *Service) Place(ctx context.Context, in PlaceInput) (orders.Order, error) {
	if in.ShippingCents < 0 || in.DiscountCents < 0 {
		return orders.Order{}, ErrInvalidAmounts
	}
	method := in.PaymentMethod
	if method == "" {
		method = "card"
	}

	var out orders.Order
	err := dbtx.WithRetry(ctx, s.db, dbtx.DefaultPolicy, nil, func(tx *gorm.DB) error {
		var c cart.Cart
		if err := tx.WithContext(ctx).Preload("Items").First(&c, "id = ?", in.CartID).Error; err != nil {
			return err
		}
		if c.Status != cart.StatusActive || c.OrderID != nil {
			return ErrCartNotActive
		}
		if len(c.Items) == 0 {
			return ErrCartEmpty
		}

		rows := make([]priced, 0, len(c.Items))
		for _, it := range c.Items {
			p, err := s.price(ctx, tx, it)
			if err != nil {
				return err
			}
			rows = append(rows, p)
		}
		currency := rows[0].currency
		subtotal := 0
		for _, r := range rows {
			if r.currency != currency {
				return ErrCurrencyMismatch
			}
			subtotal += r.price * r.item.Quantity
		}
		total := subtotal - in.DiscountCents + in.ShippingCents
		if total < 0 {
			return ErrInvalidAmounts
		}

		lines := make([]inventory.Line, 0, len(rows))
		for _, r := range rows {
			lines = append(lines, inventory.Line{ProductID: r.item.ProductID, VariantID: r.item.VariantID, Qty: r.item.Quantity})
		}
		if err := s.inv.Reserve(ctx, tx, lines); err != nil {
			return err
		}

		now := s.now().UTC()
		o := orders.Order{
			ID:            uuid.NewString(),
			Ref:           orders.NewRef(now),
			UserID:        c.UserID,
			CartID:        &c.ID,
			Currency:      currency,
			SubtotalCents: subtotal,
			DiscountCents: in.DiscountCents,
			ShippingCents: in.ShippingCents,
			TotalCents:    total,
			PaymentStatus: orders.PaymentPending,
			Status:        orders.StatusPending,
			PaymentMethod: method,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := tx.WithContext(ctx).Omit("Items").Create(&o).Error; err != nil {
			return err
		}

		for _, r := range rows {
			snap, _ := json.Marshal(map[string]any{
				"sku":              r.sku,
				"name":             r.name,
				"unit_price_cents": r.price,
				"currency":         r.currency,
			})
			item := orders.OrderItem{
				ID:             uuid.NewString(),
				OrderID:        o.ID,
				ProductID:      r.item.ProductID,
				VariantID:      r.item.VariantID,
				SKU:            r.sku,
				ProductName:    r.name,
				Quantity:       r.item.Quantity,
				UnitPriceCents: r.price,
				LineTotalCents: r.price * r.item.Quantity,
				PriceSnapshot:  datatypes.JSON(snap),
				CreatedAt:      now,
			}
			if err := tx.WithContext(ctx).Create(&item).Error; err != nil {
				return err
			}
			o.Items = append(o.Items, item)
		}

		if err := orders.AppendEvent(ctx, tx, orders.OrderEvent{
			OrderID:   o.ID,
			Actor:     "system:checkout",
			Action:    "placed",
			ToStatus:  orders.StatusPending,
			ToPayment: orders.PaymentPending,
			CreatedAt: now,
		}); err != nil {
			return err
		}
		if err := s.carts.Link(ctx, tx, c.ID, o.ID); err != nil {
			if errors.Is(err, cart.ErrNotActive) {
				return ErrCartNotActive
			}
			return err
		}

		out = o
		return nil
	})
	if err != nil {
		return orders.Order{}, err
	}

	s.log.InfoContext(ctx, "order placed", "order_ref", out.Ref, "total_cents", out.TotalCents, "items", len(out.Items))
	return out, nil
}

func (s *Service) price(ctx context.Context, tx *gorm.DB, it cart.CartItem) (priced, error) {
	if it.Quantity < 1 {
		return priced{}, fmt.Errorf("%w: item=%s quantity=%d", ErrInvalidQuantity, it.ID, it.Quantity)
	}
	var p inventory.Product
	if err := tx.WithContext(ctx).First(&p, "id = ?", it.ProductID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return priced{}, ErrProductUnavailable
		}
		return priced{}, err
	}
	if !p.Active {
		return priced{}, ErrProductUnavailable
	}
	if it.VariantID == nil || *it.VariantID == "" {
		return priced{item: it, sku: p.SKU, name: p.Name, price: p.PriceCents, currency: p.Currency}, nil
	}

	var v inventory.Variant
	if err := tx.WithContext(ctx).First(&v, "id = ? AND product_id = ?", *it.VariantID, p.ID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return priced{}, ErrProductUnavailable
		}
		return priced{}, err
	}
	name := p.Name
	if v.Name != "" {
		name = p.Name + " / " + v.Name
	}
	return priced{item: it, sku: v.SKU, name: name, price: v.PriceCents, currency: v.Currency}, nil
}
