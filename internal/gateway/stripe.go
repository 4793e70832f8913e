package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/checkout/session"
	"github.com/stripe/stripe-go/v83/paymentintent"
	"github.com/stripe/stripe-go/v83/refund"
	"github.com/stripe/stripe-go/v83/webhook"
)

const (
	StripeName   = "stripe"
	StripeHeader = "Stripe-Signature"
)

// Stripe drives hosted Checkout Sessions. The order reference travels as the
// session's client_reference_id and as order_ref metadata on both the
// session and its payment intent.
type Stripe struct {
	sessions      session.Client
	intents       paymentintent.Client
	refunds       refund.Client
	webhookSecret string
	tolerance     time.Duration
}

func NewStripe(secretKey, webhookSecret string) *Stripe {
	return newStripe(stripe.GetBackend(stripe.APIBackend), secretKey, webhookSecret)
}

func newStripe(b stripe.Backend, secretKey, webhookSecret string) *Stripe {
	return &Stripe{
		sessions:      session.Client{B: b, Key: secretKey},
		intents:       paymentintent.Client{B: b, Key: secretKey},
		refunds:       refund.Client{B: b, Key: secretKey},
		webhookSecret: webhookSecret,
		tolerance:     webhook.DefaultTolerance,
	}
}

func (s *Stripe) Name() string           { return StripeName }
func (s *Stripe) CallbackHeader() string { return StripeHeader }

func (s *Stripe) Initiate(ctx context.Context, req InitiateRequest) (InitiateResponse, error) {
	meta := map[string]string{"order_ref": req.OrderRef}
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(req.OrderRef),
		SuccessURL:        stripe.String(req.ReturnURL),
		CancelURL:         stripe.String(req.ReturnURL),
		Metadata:          meta,
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{Metadata: meta},
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(strings.ToLower(req.Currency)),
				UnitAmount: stripe.Int64(int64(req.AmountCents)),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String("Order " + req.OrderRef),
				},
			},
		}},
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	cs, err := s.sessions.New(params)
	if err != nil {
		return InitiateResponse{}, fmt.Errorf("%w: stripe checkout session: %v", ErrUnavailable, err)
	}
	raw, _ := json.Marshal(cs)
	return InitiateResponse{RedirectURL: cs.URL, ProviderRef: cs.ID, Raw: raw}, nil
}

func (s *Stripe) GetStatus(ctx context.Context, orderRef string) (Status, error) {
	params := &stripe.PaymentIntentSearchParams{}
	params.Query = fmt.Sprintf("metadata['order_ref']:'%s'", strings.ReplaceAll(orderRef, "'", ""))
	params.Context = ctx

	it := s.intents.Search(params)
	var latest *stripe.PaymentIntent
	for it.Next() {
		pi := it.PaymentIntent()
		if latest == nil || pi.Created > latest.Created {
			latest = pi
		}
	}
	if err := it.Err(); err != nil {
		return Status{}, fmt.Errorf("%w: stripe payment intent search: %v", ErrUnavailable, err)
	}
	if latest == nil {
		return Status{State: StatePending}, nil
	}

	raw, _ := json.Marshal(latest)
	return Status{
		State:         intentState(latest),
		TransactionID: latest.ID,
		AmountCents:   int(latest.Amount),
		Raw:           raw,
	}, nil
}

// intentState reports failure only for a cancelled intent. A declined card
// leaves the intent in requires_payment_method while the Checkout Session
// stays open for another try, so it is still pending; session expiry and
// async_payment_failed callbacks settle the failure.
func intentState(pi *stripe.PaymentIntent) State {
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return StateCompleted
	case stripe.PaymentIntentStatusCanceled:
		return StateFailed
	}
	return StatePending
}

func (s *Stripe) VerifyCallback(authHeader string, rawBody []byte) (Event, error) {
	ev, err := webhook.ConstructEventWithOptions(rawBody, authHeader, s.webhookSecret, webhook.ConstructEventOptions{
		Tolerance:                s.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrSignature, err)
	}
	return mapStripeEvent(ev, rawBody)
}

func mapStripeEvent(ev stripe.Event, rawBody []byte) (Event, error) {
	out := Event{ID: ev.ID, Type: string(ev.Type), Raw: json.RawMessage(rawBody)}

	switch ev.Type {
	case "checkout.session.completed",
		"checkout.session.async_payment_succeeded",
		"checkout.session.async_payment_failed",
		"checkout.session.expired":
	default:
		return out, nil
	}

	var cs stripe.CheckoutSession
	if ev.Data == nil || json.Unmarshal(ev.Data.Raw, &cs) != nil {
		return Event{}, fmt.Errorf("%w: checkout session object", ErrMalformed)
	}
	out.OrderRef = cs.ClientReferenceID
	if out.OrderRef == "" {
		out.OrderRef = cs.Metadata["order_ref"]
	}
	out.AmountCents = int(cs.AmountTotal)
	out.TransactionID = cs.ID
	if cs.PaymentIntent != nil && cs.PaymentIntent.ID != "" {
		out.TransactionID = cs.PaymentIntent.ID
	}

	switch ev.Type {
	case "checkout.session.completed":
		// Delayed methods complete the session unpaid and settle later.
		if cs.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid {
			out.Type = EventOrderCompleted
		}
	case "checkout.session.async_payment_succeeded":
		out.Type = EventOrderCompleted
	default:
		out.Type = EventOrderFailed
	}
	return out, nil
}

func (s *Stripe) Refund(ctx context.Context, req RefundRequest) (RefundResponse, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.TransactionID),
		Amount:        stripe.Int64(int64(req.AmountCents)),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	params.Context = ctx
	params.AddMetadata("order_ref", req.OrderRef)
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	r, err := s.refunds.New(params)
	if err != nil {
		return RefundResponse{}, fmt.Errorf("stripe refund: %w", err)
	}
	state := StatePending
	switch r.Status {
	case stripe.RefundStatusSucceeded:
		state = StateCompleted
	case stripe.RefundStatusFailed, stripe.RefundStatusCanceled:
		state = StateFailed
	}
	return RefundResponse{ProviderRef: r.ID, State: state}, nil
}
