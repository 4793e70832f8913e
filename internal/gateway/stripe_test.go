package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/webhook"
)

func stripeEvent(typ, paymentStatus string) []byte {
	return []byte(`{
  "id": "evt_123",
  "object": "event",
  "type": "` + typ + `",
  "data": {
    "object": {
      "id": "cs_test_1",
      "object": "checkout.session",
      "client_reference_id": "ORD-20260101-ABCDEF12",
      "amount_total": 119900,
      "payment_status": "` + paymentStatus + `",
      "payment_intent": "pi_123",
      "metadata": {"order_ref": "ORD-20260101-ABCDEF12"}
    }
  }
}`)
}

func signStripe(t *testing.T, body []byte, secret string) string {
	t.Helper()
	sp := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   body,
		Secret:    secret,
		Timestamp: time.Now(),
	})
	require.NotNil(t, sp)
	return sp.Header
}

func TestStripe_VerifyCallback(t *testing.T) {
	s := NewStripe("sk_test", "whsec_test")

	tests := []struct {
		name, typ, paid string
		wantType        string
	}{
		{"paid session", "checkout.session.completed", "paid", EventOrderCompleted},
		{"unpaid session waits", "checkout.session.completed", "unpaid", "checkout.session.completed"},
		{"async success", "checkout.session.async_payment_succeeded", "paid", EventOrderCompleted},
		{"async failure", "checkout.session.async_payment_failed", "unpaid", EventOrderFailed},
		{"expired", "checkout.session.expired", "unpaid", EventOrderFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := stripeEvent(tt.typ, tt.paid)
			ev, err := s.VerifyCallback(signStripe(t, body, "whsec_test"), body)
			require.NoError(t, err)
			assert.Equal(t, "evt_123", ev.ID)
			assert.Equal(t, tt.wantType, ev.Type)
			assert.Equal(t, "ORD-20260101-ABCDEF12", ev.OrderRef)
			assert.Equal(t, "pi_123", ev.TransactionID)
			assert.Equal(t, 119900, ev.AmountCents)
		})
	}
}

func TestStripe_VerifyCallbackRejectsBadSignature(t *testing.T) {
	s := NewStripe("sk_test", "whsec_test")
	body := stripeEvent("checkout.session.completed", "paid")

	_, err := s.VerifyCallback(signStripe(t, body, "whsec_other"), body)
	assert.ErrorIs(t, err, ErrSignature)
}

func TestStripe_UnrelatedEventPassesThrough(t *testing.T) {
	s := NewStripe("sk_test", "whsec_test")
	body := []byte(`{"id":"evt_9","object":"event","type":"customer.created","data":{"object":{"id":"cus_1","object":"customer"}}}`)

	ev, err := s.VerifyCallback(signStripe(t, body, "whsec_test"), body)
	require.NoError(t, err)
	assert.Equal(t, "customer.created", ev.Type)
	assert.Empty(t, ev.OrderRef)
}

func TestIntentState(t *testing.T) {
	tests := []struct {
		name string
		pi   string
		want State
	}{
		{"succeeded", `{"id":"pi_1","status":"succeeded"}`, StateCompleted},
		{"canceled", `{"id":"pi_1","status":"canceled"}`, StateFailed},
		{"declined card can be retried", `{"id":"pi_1","status":"requires_payment_method","last_payment_error":{"type":"card_error","code":"card_declined"}}`, StatePending},
		{"awaiting payment method", `{"id":"pi_1","status":"requires_payment_method"}`, StatePending},
		{"processing", `{"id":"pi_1","status":"processing"}`, StatePending},
		{"requires action", `{"id":"pi_1","status":"requires_action"}`, StatePending},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var pi stripe.PaymentIntent
			require.NoError(t, json.Unmarshal([]byte(tt.pi), &pi))
			assert.Equal(t, tt.want, intentState(&pi))
		})
	}
}

// stripeAPI serves canned JSON for one path and records the query it saw.
type stripeAPI struct {
	mu      sync.Mutex
	query   string
	idemKey string
	body    string
}

func (a *stripeAPI) server(t *testing.T, path string) *Stripe {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != path {
			http.NotFound(w, r)
			return
		}
		a.mu.Lock()
		a.query = r.URL.Query().Get("query")
		a.idemKey = r.Header.Get("Idempotency-Key")
		a.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(a.body))
	}))
	t.Cleanup(srv.Close)

	b := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(srv.URL),
		MaxNetworkRetries: stripe.Int64(0),
		HTTPClient:        srv.Client(),
	})
	return newStripe(b, "sk_test", "whsec_test")
}

func intentSearch(data string) string {
	return `{"object":"search_result","url":"/v1/payment_intents/search","has_more":false,"data":[` + data + `]}`
}

func TestStripe_GetStatus(t *testing.T) {
	const ref = "ORD-20260101-ABCDEF12"
	tests := []struct {
		name    string
		data    string
		want    State
		wantTxn string
	}{
		{
			name: "no intent yet",
			want: StatePending,
		},
		{
			name:    "latest intent succeeded",
			data:    `{"id":"pi_old","object":"payment_intent","status":"canceled","amount":119900,"created":100},{"id":"pi_new","object":"payment_intent","status":"succeeded","amount":119900,"created":200}`,
			want:    StateCompleted,
			wantTxn: "pi_new",
		},
		{
			name:    "declined card stays pending",
			data:    `{"id":"pi_1","object":"payment_intent","status":"requires_payment_method","amount":119900,"created":100,"last_payment_error":{"type":"card_error","code":"card_declined"}}`,
			want:    StatePending,
			wantTxn: "pi_1",
		},
		{
			name:    "cancelled intent fails",
			data:    `{"id":"pi_1","object":"payment_intent","status":"canceled","amount":119900,"created":100}`,
			want:    StateFailed,
			wantTxn: "pi_1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &stripeAPI{body: intentSearch(tt.data)}
			s := api.server(t, "/v1/payment_intents/search")

			st, err := s.GetStatus(context.Background(), ref)
			require.NoError(t, err)
			assert.Equal(t, tt.want, st.State)
			assert.Equal(t, tt.wantTxn, st.TransactionID)
			if tt.wantTxn != "" {
				assert.Equal(t, 119900, st.AmountCents)
			}
			assert.Equal(t, "metadata['order_ref']:'"+ref+"'", api.query)
		})
	}
}

func TestStripe_RefundSendsIdempotencyKey(t *testing.T) {
	api := &stripeAPI{body: `{"id":"re_1","object":"refund","status":"succeeded","amount":119900}`}
	s := api.server(t, "/v1/refunds")

	rf, err := s.Refund(context.Background(), RefundRequest{
		OrderRef:       "ORD-20260101-ABCDEF12",
		TransactionID:  "pi_123",
		AmountCents:    119900,
		IdempotencyKey: "refund:order-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "re_1", rf.ProviderRef)
	assert.Equal(t, StateCompleted, rf.State)
	assert.Equal(t, "refund:order-1", api.idemKey)
}
