package checkout_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"pehlione.com/payrecon/internal/database"
	"pehlione.com/payrecon/internal/modules/cart"
	"pehlione.com/payrecon/internal/modules/checkout"
	"pehlione.com/payrecon/internal/modules/inventory"
	"pehlione.com/payrecon/internal/modules/orders"
	"pehlione.com/payrecon/internal/testutil"
)

func setup(t *testing.T) (*gorm.DB, *checkout.Service, *cart.Repo) {
	t.Helper()
	db := testutil.NewDB(t, database.Models()...)
	require.NoError(t, db.Create(&inventory.Product{ID: "p1", Name: "Mug", SKU: "MUG", PriceCents: 1500, Currency: "EUR", Stock: 5, Active: true}).Error)
	require.NoError(t, db.Create(&inventory.Product{ID: "p2", Name: "Shirt", SKU: "SHIRT", PriceCents: 4000, Currency: "EUR", Active: true}).Error)
	require.NoError(t, db.Create(&inventory.Variant{ID: "v1", ProductID: "p2", SKU: "SHIRT-L", Name: "L", PriceCents: 4200, Currency: "EUR", Stock: 2}).Error)
	require.NoError(t, db.Create(&inventory.Product{ID: "p3", Name: "Tea", SKU: "TEA", PriceCents: 900, Currency: "USD", Stock: 9, Active: true}).Error)
	return db, checkout.NewService(db, inventory.NewAdjuster(), cart.NewSync(), nil), cart.NewRepo(db)
}

func newCart(t *testing.T, repo *cart.Repo, items ...cart.CartItem) string {
	t.Helper()
	ctx := context.Background()
	c, err := repo.Create(ctx, nil)
	require.NoError(t, err)
	for _, it := range items {
		require.NoError(t, repo.AddItem(ctx, c.ID, it.ProductID, it.VariantID, it.Quantity))
	}
	return c.ID
}

func stock(t *testing.T, db *gorm.DB, table, id string) int {
	t.Helper()
	var row struct{ Stock int }
	require.NoError(t, db.Table(table).Select("stock").Where("id = ?", id).Take(&row).Error)
	return row.Stock
}

func TestPlace(t *testing.T) {
	db, svc, repo := setup(t)
	ctx := context.Background()
	cartID := newCart(t, repo,
		cart.CartItem{ProductID: "p1", Quantity: 2},
		cart.CartItem{ProductID: "p2", VariantID: testutil.Ptr("v1"), Quantity: 1},
	)

	o, err := svc.Place(ctx, checkout.PlaceInput{CartID: cartID, ShippingCents: 500, DiscountCents: 200})
	require.NoError(t, err)

	assert.Regexp(t, `^ORD-\d{8}-[0-9A-F]{8}$`, o.Ref)
	assert.Equal(t, 3000+4200, o.SubtotalCents)
	assert.Equal(t, 3000+4200+500-200, o.TotalCents)
	assert.Equal(t, "EUR", o.Currency)
	assert.Equal(t, orders.PaymentPending, o.PaymentStatus)
	assert.Equal(t, orders.StatusPending, o.Status)
	require.Len(t, o.Items, 2)

	assert.Equal(t, 3, stock(t, db, "products", "p1"))
	assert.Equal(t, 1, stock(t, db, "product_variants", "v1"))

	var c cart.Cart
	require.NoError(t, db.First(&c, "id = ?", cartID).Error)
	require.NotNil(t, c.OrderID)
	assert.Equal(t, o.ID, *c.OrderID)

	_, err = svc.Place(ctx, checkout.PlaceInput{CartID: cartID})
	assert.ErrorIs(t, err, checkout.ErrCartNotActive)
}

func TestPlace_Rejections(t *testing.T) {
	db, svc, repo := setup(t)
	ctx := context.Background()

	t.Run("empty cart", func(t *testing.T) {
		_, err := svc.Place(ctx, checkout.PlaceInput{CartID: newCart(t, repo)})
		assert.ErrorIs(t, err, checkout.ErrCartEmpty)
	})

	t.Run("mixed currency", func(t *testing.T) {
		id := newCart(t, repo, cart.CartItem{ProductID: "p1", Quantity: 1}, cart.CartItem{ProductID: "p3", Quantity: 1})
		_, err := svc.Place(ctx, checkout.PlaceInput{CartID: id})
		assert.ErrorIs(t, err, checkout.ErrCurrencyMismatch)
	})

	t.Run("negative shipping", func(t *testing.T) {
		id := newCart(t, repo, cart.CartItem{ProductID: "p1", Quantity: 1})
		_, err := svc.Place(ctx, checkout.PlaceInput{CartID: id, ShippingCents: -1})
		assert.ErrorIs(t, err, checkout.ErrInvalidAmounts)
	})

	t.Run("unknown product", func(t *testing.T) {
		id := newCart(t, repo, cart.CartItem{ProductID: "nope", Quantity: 1})
		_, err := svc.Place(ctx, checkout.PlaceInput{CartID: id})
		assert.ErrorIs(t, err, checkout.ErrProductUnavailable)
	})

	t.Run("zero quantity", func(t *testing.T) {
		id := newCart(t, repo,
			cart.CartItem{ProductID: "p1", Quantity: 1},
			cart.CartItem{ProductID: "p2", VariantID: testutil.Ptr("v1"), Quantity: 0},
		)
		_, err := svc.Place(ctx, checkout.PlaceInput{CartID: id})
		assert.ErrorIs(t, err, checkout.ErrInvalidQuantity)
		assert.Equal(t, 5, stock(t, db, "products", "p1"))
		assert.Equal(t, 2, stock(t, db, "product_variants", "v1"))
	})

	t.Run("out of stock reserves nothing", func(t *testing.T) {
		id := newCart(t, repo,
			cart.CartItem{ProductID: "p1", Quantity: 1},
			cart.CartItem{ProductID: "p2", VariantID: testutil.Ptr("v1"), Quantity: 3},
		)
		_, err := svc.Place(ctx, checkout.PlaceInput{CartID: id})
		var oos *inventory.OutOfStockError
		require.ErrorAs(t, err, &oos)
		assert.Equal(t, 5, stock(t, db, "products", "p1"))
		assert.Equal(t, 2, stock(t, db, "product_variants", "v1"))
	})

	var n int64
	require.NoError(t, db.Model(&orders.Order{}).Count(&n).Error)
	assert.Zero(t, n)
}
