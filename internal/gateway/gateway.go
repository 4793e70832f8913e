// Package gateway is the boundary to the external payment gateway. The rest
// of the engine sees only the Client interface.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
)

type State string

const (
	StateCompleted State = "COMPLETED"
	StateFailed    State = "FAILED"
	StatePending   State = "PENDING"
)

const (
	EventOrderCompleted = "CHECKOUT_ORDER_COMPLETED"
	EventOrderFailed    = "CHECKOUT_ORDER_FAILED"
)

var (
	// ErrSignature means the callback could not be authenticated.
	ErrSignature = errors.New("gateway callback signature invalid")
	// ErrMalformed means the callback was authentic but unparseable.
	ErrMalformed = errors.New("gateway callback malformed")
	// ErrUnavailable wraps transport failures and open-breaker rejections.
	ErrUnavailable = errors.New("gateway unavailable")
)

type InitiateRequest struct {
	OrderRef       string
	AmountCents    int
	Currency       string
	ReturnURL      string
	IdempotencyKey string
}

type InitiateResponse struct {
	RedirectURL string
	ProviderRef string
	Raw         json.RawMessage
}

type Status struct {
	State         State
	TransactionID string
	AmountCents   int
	Raw           json.RawMessage
}

// Event is an authenticated callback. ID may be empty when the gateway does
// not assign event ids.
type Event struct {
	ID            string
	Type          string
	OrderRef      string
	TransactionID string
	AmountCents   int
	Raw           json.RawMessage
}

type Client interface {
	Name() string
	// CallbackHeader names the request header carrying the callback signature.
	CallbackHeader() string
	Initiate(ctx context.Context, req InitiateRequest) (InitiateResponse, error)
	GetStatus(ctx context.Context, orderRef string) (Status, error)
	VerifyCallback(authHeader string, rawBody []byte) (Event, error)
}

// RefundRequest carries an IdempotencyKey so a repeated request for the same
// order returns the first refund instead of issuing another.
type RefundRequest struct {
	OrderRef       string
	TransactionID  string
	AmountCents    int
	Currency       string
	Reason         string
	IdempotencyKey string
}

type RefundResponse struct {
	ProviderRef string
	State       State
}

// Refunder is implemented by gateways that can return captured funds.
type Refunder interface {
	Refund(ctx context.Context, req RefundRequest) (RefundResponse, error)
}
