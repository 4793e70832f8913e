package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"pehlione.com/payrecon/internal/gateway"
	"pehlione.com/payrecon/internal/modules/orders"
	"pehlione.com/payrecon/internal/shared/dbtx"
)

type Service struct {
	db        *gorm.DB
	orders    *orders.Repo
	gw        gateway.Client
	guard     *Guard
	tokens    *RedirectTokens
	returnURL string
	log       *slog.Logger
}

// NewService wires payment initiation. publicBaseURL is where the gateway
// sends the customer back to.
func NewService(db *gorm.DB, gw gateway.Client, guard *Guard, tokens *RedirectTokens, publicBaseURL string, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		db:        db,
		orders:    orders.NewRepo(db),
		gw:        gw,
		guard:     guard,
		tokens:    tokens,
		returnURL: publicBaseURL + "/payments/return",
		log:       log,
	}
}

type InitiateInput struct {
	OrderRef       string
	AmountCents    int
	IdempotencyKey string
}

type InitiateResult struct {
	OrderRef    string
	PaymentID   string
	Attempt     int
	RedirectURL string
	Idempotent  bool
}

// Initiate starts a gateway attempt for an order. The amount must equal the
// stored order total; a mismatch is rejected before any write or gateway call.
func (s *Service) Initiate(ctx context.Context, in InitiateInput) (InitiateResult, error) {
	o, err := s.orders.GetByRef(ctx, in.OrderRef)
	if err != nil {
		return InitiateResult{}, err
	}
	if o.Settled() {
		return InitiateResult{}, ErrOrderNotPayable
	}
	if in.AmountCents != o.TotalCents {
		s.log.WarnContext(ctx, "initiation amount mismatch", "order_ref", o.Ref, "requested", in.AmountCents, "total", o.TotalCents)
		return InitiateResult{}, ErrAmountMismatch
	}
	if in.IdempotencyKey == "" {
		in.IdempotencyKey = uuid.NewString()
	}

	// Only legacy failed-but-open rows reach this; see Guard.Reopen.
	if o.PaymentStatus == orders.PaymentFailed {
		if _, err := s.guard.Reopen(ctx, o.ID, "system:initiate"); err != nil {
			return InitiateResult{}, err
		}
	}

	// Phase-1: idempotency check + pending attempt
	var pay Payment
	existing := false
	err = dbtx.WithRetry(ctx, s.db, dbtx.DefaultPolicy, nil, func(tx *gorm.DB) error {
		existing = false
		e := tx.WithContext(ctx).
			Where("order_id = ? AND idempotency_key = ?", o.ID, in.IdempotencyKey).
			Take(&pay).Error
		if e == nil {
			existing = true
			return nil
		}
		if !errors.Is(e, gorm.ErrRecordNotFound) {
			return e
		}

		next, err := nextAttempt(ctx, tx, o.ID)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		pay = Payment{
			ID:             uuid.NewString(),
			OrderID:        o.ID,
			Attempt:        next,
			Provider:       s.gw.Name(),
			Status:         StatusPending,
			AmountCents:    o.TotalCents,
			Currency:       o.Currency,
			IdempotencyKey: in.IdempotencyKey,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		return tx.WithContext(ctx).Create(&pay).Error
	})
	if err != nil {
		return InitiateResult{}, err
	}

	if existing {
		if pay.Status == StatusFailed {
			return InitiateResult{}, fmt.Errorf("%w: attempt %d failed", ErrGatewayUnavailable, pay.Attempt)
		}
		res := InitiateResult{OrderRef: o.Ref, PaymentID: pay.ID, Attempt: pay.Attempt, Idempotent: true}
		if pay.RedirectURL != nil {
			res.RedirectURL = *pay.RedirectURL
		}
		return res, nil
	}

	// Phase-2: gateway call outside any transaction
	token, err := s.tokens.Issue(o.Ref)
	if err != nil {
		return InitiateResult{}, err
	}
	q := url.Values{}
	q.Set("token", token)
	q.Set("orderId", o.Ref)

	resp, gerr := s.gw.Initiate(ctx, gateway.InitiateRequest{
		OrderRef:       o.Ref,
		AmountCents:    o.TotalCents,
		Currency:       o.Currency,
		ReturnURL:      s.returnURL + "?" + q.Encode(),
		IdempotencyKey: in.IdempotencyKey,
	})

	// Phase-3: finalize the attempt
	now := time.Now().UTC()
	updates := map[string]any{"updated_at": now}
	if gerr != nil {
		updates["status"] = StatusFailed
		updates["error_message"] = truncate(gerr.Error(), 250)
	} else {
		updates["redirect_url"] = resp.RedirectURL
		if resp.ProviderRef != "" {
			updates["gateway_txn_id"] = resp.ProviderRef
		}
		if len(resp.Raw) > 0 {
			updates["raw_response"] = datatypes.JSON(resp.Raw)
		}
	}
	if err := s.db.WithContext(ctx).
		Model(&Payment{}).
		Where("id = ? AND status = ?", pay.ID, StatusPending).
		Updates(updates).Error; err != nil {
		return InitiateResult{}, err
	}

	if gerr != nil {
		s.log.ErrorContext(ctx, "gateway initiation failed", "order_ref", o.Ref, "attempt", pay.Attempt, "err", gerr)
		return InitiateResult{}, fmt.Errorf("%w: %v", ErrGatewayUnavailable, gerr)
	}

	s.log.InfoContext(ctx, "payment initiated", "order_ref", o.Ref, "attempt", pay.Attempt, "provider", s.gw.Name())
	return InitiateResult{OrderRef: o.Ref, PaymentID: pay.ID, Attempt: pay.Attempt, RedirectURL: resp.RedirectURL}, nil
}

// Attempts lists the payment attempts of an order, oldest first.
func (s *Service) Attempts(ctx context.Context, orderID string) ([]Payment, error) {
	var out []Payment
	err := s.db.WithContext(ctx).Order("attempt ASC").Find(&out, "order_id = ?", orderID).Error
	return out, err
}
