package payments_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pehlione.com/payrecon/internal/gateway"
	"pehlione.com/payrecon/internal/modules/orders"
	"pehlione.com/payrecon/internal/modules/outbox"
	"pehlione.com/payrecon/internal/modules/payments"
)

func TestRefundOrder(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p := e.placeTwoItemOrder(t)

	in := payments.RefundOrderInput{OrderRef: p.order.Ref, Actor: "admin:ops", Reason: "customer request"}
	_, err := e.refunds.RefundOrder(ctx, in)
	assert.ErrorIs(t, err, payments.ErrNotRefundable)

	e.gw.SetState(p.order.Ref, gateway.StateCompleted, p.order.TotalCents)
	_, err = e.resolver.Recheck(ctx, p.order.Ref, "admin:ops")
	require.NoError(t, err)

	res, err := e.refunds.RefundOrder(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, payments.RefundSucceeded, res.Status)
	assert.Equal(t, p.order.TotalCents, res.AmountCents)

	o := e.order(t, p.order.ID)
	assert.Equal(t, orders.PaymentRefunded, o.PaymentStatus)
	assert.Equal(t, orders.StatusConfirmed, o.Status)
	assert.EqualValues(t, 1, e.count(t, &payments.Refund{}, "order_id = ?", o.ID))
	assert.EqualValues(t, 1, e.count(t, &outbox.Event{}, "aggregate_id = ? AND event_type = ?", o.ID, outbox.TypeOrderRefunded))
	// Refunds do not return stock.
	assert.Equal(t, 7, e.stock(t, "products", "p1"))

	_, err = e.refunds.RefundOrder(ctx, in)
	assert.ErrorIs(t, err, payments.ErrNotRefundable)

	// A refunded order redirects as failed.
	token, _ := e.tokens.Issue(p.order.Ref)
	assert.Equal(t, payments.ResolveFailed, e.resolver.Resolve(ctx, payments.ResolveInput{Token: token}).Status)
}

func TestRefundOrder_RequiresActor(t *testing.T) {
	e := newEnv(t)
	_, err := e.refunds.RefundOrder(context.Background(), payments.RefundOrderInput{OrderRef: "ORD-1"})
	assert.ErrorIs(t, err, payments.ErrNotRefundable)
}

func TestRefundOrder_ConcurrentRefundsShareOneGatewayKey(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p := e.placeTwoItemOrder(t)

	e.gw.SetState(p.order.Ref, gateway.StateCompleted, p.order.TotalCents)
	_, err := e.resolver.Recheck(ctx, p.order.Ref, "admin:ops")
	require.NoError(t, err)

	in := payments.RefundOrderInput{OrderRef: p.order.Ref, Actor: "admin:ops"}
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.refunds.RefundOrder(ctx, in)
		}(i)
	}
	wg.Wait()

	ok, rejected := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, payments.ErrNotRefundable):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, rejected)

	reqs := e.gw.refundRequests()
	require.NotEmpty(t, reqs)
	for _, r := range reqs {
		assert.Equal(t, "refund:"+p.order.ID, r.IdempotencyKey)
	}
	assert.EqualValues(t, 1, e.count(t, &payments.Refund{}, "order_id = ?", p.order.ID))
}
