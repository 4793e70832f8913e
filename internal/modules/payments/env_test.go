package payments_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"pehlione.com/payrecon/internal/database"
	"pehlione.com/payrecon/internal/gateway"
	"pehlione.com/payrecon/internal/modules/cart"
	"pehlione.com/payrecon/internal/modules/checkout"
	"pehlione.com/payrecon/internal/modules/inventory"
	"pehlione.com/payrecon/internal/modules/orders"
	"pehlione.com/payrecon/internal/modules/payments"
	"pehlione.com/payrecon/internal/shared/dbtx"
	"pehlione.com/payrecon/internal/storage"
	"pehlione.com/payrecon/internal/testutil"
)

const (
	webhookSecret = "whsec_test"
	tokenSecret   = "redirect_secret"
)

// fakeGateway counts outbound calls and can be told to fail them.
type fakeGateway struct {
	*gateway.Mock
	initiateCalls atomic.Int32
	statusCalls   atomic.Int32
	initiateErr   error
	statusErr     error

	mu         sync.Mutex
	refundReqs []gateway.RefundRequest
}

func (f *fakeGateway) Refund(ctx context.Context, req gateway.RefundRequest) (gateway.RefundResponse, error) {
	f.mu.Lock()
	f.refundReqs = append(f.refundReqs, req)
	f.mu.Unlock()
	return f.Mock.Refund(ctx, req)
}

func (f *fakeGateway) refundRequests() []gateway.RefundRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]gateway.RefundRequest(nil), f.refundReqs...)
}

func (f *fakeGateway) Initiate(ctx context.Context, req gateway.InitiateRequest) (gateway.InitiateResponse, error) {
	f.initiateCalls.Add(1)
	if f.initiateErr != nil {
		return gateway.InitiateResponse{}, f.initiateErr
	}
	return f.Mock.Initiate(ctx, req)
}

func (f *fakeGateway) GetStatus(ctx context.Context, ref string) (gateway.Status, error) {
	f.statusCalls.Add(1)
	if f.statusErr != nil {
		return gateway.Status{}, f.statusErr
	}
	return f.Mock.GetStatus(ctx, ref)
}

type env struct {
	db       *gorm.DB
	gw       *fakeGateway
	guard    *payments.Guard
	ingest   *payments.WebhookService
	resolver *payments.Resolver
	svc      *payments.Service
	refunds  *payments.RefundService
	tokens   *payments.RedirectTokens
	checkout *checkout.Service
	archive  *storage.Local
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db := testutil.NewDB(t, database.Models()...)
	gw := &fakeGateway{Mock: gateway.NewMock(webhookSecret, "http://gw.test")}
	inv := inventory.NewAdjuster()
	carts := cart.NewSync()
	guard := payments.NewGuard(db, inv, carts, gw.Name(), dbtx.Policy{Attempts: 3, Base: time.Millisecond}, nil)
	tokens := payments.NewRedirectTokens(tokenSecret, time.Hour)
	repo := orders.NewRepo(db)
	archive := storage.NewLocal(t.TempDir())

	return &env{
		db:       db,
		gw:       gw,
		guard:    guard,
		ingest:   payments.NewWebhookService(repo, gw, guard, archive),
		resolver: payments.NewResolver(repo, gw, guard, tokens, false, nil),
		svc:      payments.NewService(db, gw, guard, tokens, "http://shop.test", nil),
		refunds:  payments.NewRefundService(db, gw, guard),
		tokens:   tokens,
		checkout: checkout.NewService(db, inv, carts, nil),
		archive:  archive,
	}
}

type placed struct {
	order  orders.Order
	cartID string
}

// placeTwoItemOrder stocks a product (10) and a variant (5) and checks out
// qty 3 of the product and qty 1 of the variant.
func (e *env) placeTwoItemOrder(t *testing.T) placed {
	t.Helper()
	require.NoError(t, e.db.Create(&inventory.Product{ID: "p1", Name: "Mug", SKU: "MUG", PriceCents: 1500, Currency: "TRY", Stock: 10, Active: true}).Error)
	require.NoError(t, e.db.Create(&inventory.Product{ID: "p2", Name: "Shirt", SKU: "SHIRT", PriceCents: 4000, Currency: "TRY", Active: true}).Error)
	require.NoError(t, e.db.Create(&inventory.Variant{ID: "v1", ProductID: "p2", SKU: "SHIRT-M", Name: "M", PriceCents: 4000, Currency: "TRY", Stock: 5}).Error)

	return e.place(t, []cart.CartItem{
		{ProductID: "p1", Quantity: 3},
		{ProductID: "p2", VariantID: testutil.Ptr("v1"), Quantity: 1},
	}, 0)
}

// placeSingle checks out one unit priced at priceCents.
func (e *env) placeSingle(t *testing.T, priceCents int) placed {
	t.Helper()
	id := uuid.NewString()
	require.NoError(t, e.db.Create(&inventory.Product{ID: id, Name: "Phone", SKU: "SKU-" + id[:8], PriceCents: priceCents, Currency: "INR", Stock: 4, Active: true}).Error)
	return e.place(t, []cart.CartItem{{ProductID: id, Quantity: 1}}, 0)
}

func (e *env) place(t *testing.T, items []cart.CartItem, shipping int) placed {
	t.Helper()
	ctx := context.Background()
	repo := cart.NewRepo(e.db)
	c, err := repo.Create(ctx, nil)
	require.NoError(t, err)
	for _, it := range items {
		require.NoError(t, repo.AddItem(ctx, c.ID, it.ProductID, it.VariantID, it.Quantity))
	}
	o, err := e.checkout.Place(ctx, checkout.PlaceInput{CartID: c.ID, ShippingCents: shipping})
	require.NoError(t, err)
	return placed{order: o, cartID: c.ID}
}

func (e *env) callback(t *testing.T, eventID, event, ref string, amount int) (string, []byte) {
	t.Helper()
	body, err := json.Marshal(gateway.MockPayload{
		EventID: eventID,
		Event:   event,
		Payload: gateway.MockPayment{MerchantOrderID: ref, TransactionID: "txn_" + ref, Amount: amount, State: gateway.StateCompleted},
	})
	require.NoError(t, err)
	return gateway.SignMock([]byte(webhookSecret), time.Now(), body), body
}

func (e *env) order(t *testing.T, id string) orders.Order {
	t.Helper()
	o, err := orders.NewRepo(e.db).GetByID(context.Background(), id)
	require.NoError(t, err)
	return o
}

func (e *env) stock(t *testing.T, table, id string) int {
	t.Helper()
	var row struct{ Stock int }
	require.NoError(t, e.db.Table(table).Select("stock").Where("id = ?", id).Take(&row).Error)
	return row.Stock
}

func (e *env) cart(t *testing.T, id string) cart.Cart {
	t.Helper()
	var c cart.Cart
	require.NoError(t, e.db.First(&c, "id = ?", id).Error)
	return c
}

func (e *env) count(t *testing.T, model any, where string, args ...any) int64 {
	t.Helper()
	var n int64
	q := e.db.Model(model)
	if where != "" {
		q = q.Where(where, args...)
	}
	require.NoError(t, q.Count(&n).Error)
	return n
}

// snapshot counts rows in every table so a test can assert that nothing was
// written.
func (e *env) snapshot(t *testing.T) map[string]int64 {
	t.Helper()
	out := map[string]int64{}
	for _, m := range database.Models() {
		stmt := &gorm.Statement{DB: e.db}
		require.NoError(t, stmt.Parse(m))
		out[stmt.Schema.Table] = e.count(t, m, "")
	}
	return out
}

var errTransport = errors.New("dial tcp: connection refused")
