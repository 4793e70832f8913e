package payments_test

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pehlione.com/payrecon/internal/gateway"
	"pehlione.com/payrecon/internal/modules/orders"
	"pehlione.com/payrecon/internal/modules/payments"
)

func TestResolve_TokenChecks(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p := e.placeSingle(t, 5000)

	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"order_ref": p.order.Ref,
		"exp":       time.Now().Add(-time.Minute).Unix(),
	}).SignedString([]byte(tokenSecret))
	require.NoError(t, err)

	forged, err := payments.NewRedirectTokens("other-secret", time.Hour).Issue(p.order.Ref)
	require.NoError(t, err)

	good, err := e.tokens.Issue(p.order.Ref)
	require.NoError(t, err)

	cases := []struct {
		name string
		in   payments.ResolveInput
		want payments.ResolveStatus
	}{
		{"expired", payments.ResolveInput{Token: expired, OrderRef: p.order.Ref}, payments.ResolveExpired},
		{"bad signature", payments.ResolveInput{Token: forged, OrderRef: p.order.Ref}, payments.ResolveInvalid},
		{"garbage", payments.ResolveInput{Token: "not-a-jwt"}, payments.ResolveInvalid},
		{"ref mismatch", payments.ResolveInput{Token: good, OrderRef: "ORD-19700101-00000000"}, payments.ResolveInvalid},
		{"raw ref not allowed", payments.ResolveInput{OrderRef: p.order.Ref}, payments.ResolveInvalid},
		{"nothing", payments.ResolveInput{}, payments.ResolveInvalid},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := e.resolver.Resolve(ctx, tc.in)
			assert.Equal(t, tc.want, got.Status)
		})
	}
	assert.Zero(t, e.gw.statusCalls.Load())
}

func TestResolve_PollsAndApplies(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	t.Run("pending stays pending", func(t *testing.T) {
		p := e.placeSingle(t, 5000)
		token, _ := e.tokens.Issue(p.order.Ref)
		res := e.resolver.Resolve(ctx, payments.ResolveInput{Token: token, OrderRef: p.order.Ref})
		assert.Equal(t, payments.ResolvePending, res.Status)
		assert.Equal(t, orders.PaymentPending, e.order(t, p.order.ID).PaymentStatus)
	})

	t.Run("completed", func(t *testing.T) {
		p := e.placeSingle(t, 5000)
		e.gw.SetState(p.order.Ref, gateway.StateCompleted, 5000)
		token, _ := e.tokens.Issue(p.order.Ref)
		res := e.resolver.Resolve(ctx, payments.ResolveInput{Token: token})
		assert.Equal(t, payments.ResolveSuccess, res.Status)
		assert.Equal(t, p.order.Ref, res.OrderRef)

		o := e.order(t, p.order.ID)
		assert.Equal(t, orders.PaymentPaid, o.PaymentStatus)
		assert.EqualValues(t, 1, e.count(t, &orders.OrderEvent{}, "order_id = ? AND actor = ?", o.ID, "system:redirect"))
	})

	t.Run("failed", func(t *testing.T) {
		p := e.placeSingle(t, 5000)
		e.gw.SetState(p.order.Ref, gateway.StateFailed, 5000)
		token, _ := e.tokens.Issue(p.order.Ref)
		res := e.resolver.Resolve(ctx, payments.ResolveInput{Token: token, OrderRef: p.order.Ref})
		assert.Equal(t, payments.ResolveFailed, res.Status)
		assert.Equal(t, orders.StatusCancelled, e.order(t, p.order.ID).Status)
	})

	t.Run("amount mismatch does not pay", func(t *testing.T) {
		p := e.placeSingle(t, 5000)
		e.gw.SetState(p.order.Ref, gateway.StateCompleted, 4999)
		token, _ := e.tokens.Issue(p.order.Ref)
		res := e.resolver.Resolve(ctx, payments.ResolveInput{Token: token})
		assert.Equal(t, payments.ResolvePending, res.Status)
	})

	t.Run("gateway error reports stored state", func(t *testing.T) {
		p := e.placeSingle(t, 5000)
		e.gw.statusErr = errTransport
		defer func() { e.gw.statusErr = nil }()
		token, _ := e.tokens.Issue(p.order.Ref)
		res := e.resolver.Resolve(ctx, payments.ResolveInput{Token: token})
		assert.Equal(t, payments.ResolvePending, res.Status)
	})
}

func TestResolve_SettledOrderSkipsGateway(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p := e.placeSingle(t, 5000)

	header, body := e.callback(t, "evt_1", gateway.EventOrderCompleted, p.order.Ref, 5000)
	_, err := e.ingest.Ingest(ctx, header, body)
	require.NoError(t, err)

	// The gateway now claims failure; the stored paid state wins.
	e.gw.SetState(p.order.Ref, gateway.StateFailed, 5000)
	token, _ := e.tokens.Issue(p.order.Ref)
	res := e.resolver.Resolve(ctx, payments.ResolveInput{Token: token})
	assert.Equal(t, payments.ResolveSuccess, res.Status)
	assert.Zero(t, e.gw.statusCalls.Load())
}

func TestResolve_RawRefWhenAllowed(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p := e.placeSingle(t, 5000)
	e.gw.SetState(p.order.Ref, gateway.StateCompleted, 5000)

	r := payments.NewResolver(orders.NewRepo(e.db), e.gw, e.guard, e.tokens, true, nil)
	res := r.Resolve(ctx, payments.ResolveInput{OrderRef: p.order.Ref})
	assert.Equal(t, payments.ResolveSuccess, res.Status)

	res = r.Resolve(ctx, payments.ResolveInput{OrderRef: "ORD-19700101-00000000"})
	assert.Equal(t, payments.ResolveInvalid, res.Status)
}

func TestRecheck_ReportsGatewayErrors(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p := e.placeSingle(t, 5000)

	e.gw.statusErr = errTransport
	_, err := e.resolver.Recheck(ctx, p.order.Ref, "admin:ops")
	assert.ErrorIs(t, err, errTransport)

	e.gw.statusErr = nil
	e.gw.SetState(p.order.Ref, gateway.StateCompleted, 5000)
	o, err := e.resolver.Recheck(ctx, p.order.Ref, "admin:ops")
	require.NoError(t, err)
	assert.Equal(t, orders.PaymentPaid, o.PaymentStatus)
	assert.EqualValues(t, 1, e.count(t, &orders.OrderEvent{}, "order_id = ? AND actor = ?", o.ID, "admin:ops"))

	_, err = e.resolver.Recheck(ctx, "ORD-19700101-00000000", "admin:ops")
	assert.ErrorIs(t, err, orders.ErrNotFound)
}
