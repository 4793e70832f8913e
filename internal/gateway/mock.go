package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	MockName   = "mock"
	MockHeader = "X-Verify"

	mockTolerance = 5 * time.Minute
)

type mockOrder struct {
	state  State
	txnID  string
	amount int
}

// Mock is an in-process stand-in for the hosted gateway. It signs callbacks
// with HMAC-SHA256 over "<unix>.<body>" and keeps an order status table that
// tests and the dev tools drive through SetState.
type Mock struct {
	secret  []byte
	baseURL string
	now     func() time.Time

	mu      sync.Mutex
	orders  map[string]mockOrder
	refunds map[string]RefundResponse
}

func NewMock(secret, baseURL string) *Mock {
	return &Mock{
		secret:  []byte(secret),
		baseURL: strings.TrimRight(baseURL, "/"),
		now:     time.Now,
		orders:  map[string]mockOrder{},
		refunds: map[string]RefundResponse{},
	}
}

func (m *Mock) Name() string           { return MockName }
func (m *Mock) CallbackHeader() string { return MockHeader }

func (m *Mock) Initiate(_ context.Context, req InitiateRequest) (InitiateResponse, error) {
	if req.OrderRef == "" {
		return InitiateResponse{}, fmt.Errorf("mock gateway: order ref required")
	}
	txn := "mock_" + strings.ReplaceAll(uuid.NewString(), "-", "")

	m.mu.Lock()
	m.orders[req.OrderRef] = mockOrder{state: StatePending, txnID: txn, amount: req.AmountCents}
	m.mu.Unlock()

	q := url.Values{}
	q.Set("orderId", req.OrderRef)
	q.Set("amount", strconv.Itoa(req.AmountCents))
	q.Set("return", req.ReturnURL)
	redirect := m.baseURL + "/pay?" + q.Encode()

	raw, _ := json.Marshal(map[string]any{
		"merchantOrderId": req.OrderRef,
		"transactionId":   txn,
		"redirectUrl":     redirect,
		"state":           StatePending,
	})
	return InitiateResponse{RedirectURL: redirect, ProviderRef: txn, Raw: raw}, nil
}

func (m *Mock) GetStatus(_ context.Context, orderRef string) (Status, error) {
	m.mu.Lock()
	o, ok := m.orders[orderRef]
	m.mu.Unlock()
	if !ok {
		return Status{State: StatePending}, nil
	}
	raw, _ := json.Marshal(map[string]any{
		"merchantOrderId": orderRef,
		"transactionId":   o.txnID,
		"amount":          o.amount,
		"state":           o.state,
	})
	return Status{State: o.state, TransactionID: o.txnID, AmountCents: o.amount, Raw: raw}, nil
}

// SetState records the gateway-side outcome of an order and returns its
// transaction id.
func (m *Mock) SetState(orderRef string, state State, amountCents int) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	o := m.orders[orderRef]
	if o.txnID == "" {
		o.txnID = "mock_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	}
	o.state = state
	o.amount = amountCents
	m.orders[orderRef] = o
	return o.txnID
}

// MockPayload is the callback body the mock gateway sends.
type MockPayload struct {
	EventID string      `json:"event_id,omitempty"`
	Event   string      `json:"event"`
	Payload MockPayment `json:"payload"`
}

type MockPayment struct {
	MerchantOrderID string `json:"merchantOrderId"`
	TransactionID   string `json:"transactionId"`
	Amount          int    `json:"amount"`
	State           State  `json:"state"`
}

func (m *Mock) VerifyCallback(authHeader string, rawBody []byte) (Event, error) {
	if err := verifyMockSignature(m.secret, authHeader, rawBody, m.now(), mockTolerance); err != nil {
		return Event{}, err
	}

	var p MockPayload
	if err := json.Unmarshal(rawBody, &p); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if p.Event == "" {
		return Event{}, fmt.Errorf("%w: missing event", ErrMalformed)
	}
	return Event{
		ID:            p.EventID,
		Type:          p.Event,
		OrderRef:      strings.TrimSpace(p.Payload.MerchantOrderID),
		TransactionID: p.Payload.TransactionID,
		AmountCents:   p.Payload.Amount,
		Raw:           json.RawMessage(rawBody),
	}, nil
}

// SignMock builds the X-Verify header value for body at time t.
func SignMock(secret []byte, t time.Time, body []byte) string {
	ts := t.Unix()
	return fmt.Sprintf("t=%d,v1=%s", ts, mockSig(secret, ts, body))
}

func mockSig(secret []byte, ts int64, body []byte) string {
	h := hmac.New(sha256.New, secret)
	h.Write([]byte(strconv.FormatInt(ts, 10)))
	h.Write([]byte("."))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

func verifyMockSignature(secret []byte, header string, body []byte, now time.Time, tolerance time.Duration) error {
	if len(secret) == 0 || header == "" {
		return ErrSignature
	}

	var ts int64
	var sigs []string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return ErrSignature
			}
			ts = n
		case "v1":
			sigs = append(sigs, v)
		}
	}
	if ts == 0 || len(sigs) == 0 {
		return ErrSignature
	}

	age := now.Sub(time.Unix(ts, 0))
	if age > tolerance || age < -tolerance {
		return fmt.Errorf("%w: timestamp outside tolerance", ErrSignature)
	}

	want := mockSig(secret, ts, body)
	for _, s := range sigs {
		if hmac.Equal([]byte(s), []byte(want)) {
			return nil
		}
	}
	return ErrSignature
}

// Refund replays the first response for a repeated idempotency key.
func (m *Mock) Refund(_ context.Context, req RefundRequest) (RefundResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.refunds[req.IdempotencyKey]; ok && req.IdempotencyKey != "" {
		return r, nil
	}
	o, ok := m.orders[req.OrderRef]
	if !ok || o.state != StateCompleted {
		return RefundResponse{}, fmt.Errorf("mock gateway: order %s has no captured payment", req.OrderRef)
	}
	r := RefundResponse{ProviderRef: "mockrf_" + strings.ReplaceAll(uuid.NewString(), "-", ""), State: StateCompleted}
	if req.IdempotencyKey != "" {
		m.refunds[req.IdempotencyKey] = r
	}
	return r, nil
}
