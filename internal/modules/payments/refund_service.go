package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"pehlione.com/payrecon/internal/gateway"
	"pehlione.com/payrecon/internal/modules/orders"
)

var ErrNoSucceededPayment = errors.New("no succeeded payment found")

type RefundService struct {
	db    *gorm.DB
	gw    gateway.Client
	guard *Guard
}

func NewRefundService(db *gorm.DB, gw gateway.Client, guard *Guard) *RefundService {
	return &RefundService{db: db, gw: gw, guard: guard}
}

type RefundOrderInput struct {
	OrderRef string
	Actor    string
	Reason   string
}

type RefundOrderResult struct {
	RefundID    string
	Status      string
	AmountCents int
}

// refundKey is stable per order so concurrent refunds of one order reach
// the gateway as a single request.
func refundKey(orderID string) string { return "refund:" + orderID }

// RefundOrder returns the full order total through the gateway and then moves
// the order from paid to refunded.
func (s *RefundService) RefundOrder(ctx context.Context, in RefundOrderInput) (RefundOrderResult, error) {
	if in.OrderRef == "" || in.Actor == "" {
		return RefundOrderResult{}, ErrNotRefundable
	}
	refunder, ok := s.gw.(gateway.Refunder)
	if !ok {
		return RefundOrderResult{}, ErrRefundUnsupported
	}

	o, err := orders.NewRepo(s.db).GetByRef(ctx, in.OrderRef)
	if err != nil {
		return RefundOrderResult{}, err
	}
	if o.PaymentStatus != orders.PaymentPaid {
		return RefundOrderResult{}, ErrNotRefundable
	}

	var pay Payment
	if err := s.db.WithContext(ctx).
		Where("order_id = ? AND status = ?", o.ID, StatusSuccess).
		Order("attempt DESC").
		Take(&pay).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return RefundOrderResult{}, ErrNoSucceededPayment
		}
		return RefundOrderResult{}, err
	}

	txn := ""
	if o.GatewayTxnID != nil {
		txn = *o.GatewayTxnID
	} else if pay.GatewayTxnID != nil {
		txn = *pay.GatewayTxnID
	}

	resp, err := refunder.Refund(ctx, gateway.RefundRequest{
		OrderRef:       o.Ref,
		TransactionID:  txn,
		AmountCents:    o.TotalCents,
		Currency:       o.Currency,
		Reason:         in.Reason,
		IdempotencyKey: refundKey(o.ID),
	})
	if err != nil {
		return RefundOrderResult{}, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	status := RefundPending
	switch resp.State {
	case gateway.StateCompleted:
		status = RefundSucceeded
	case gateway.StateFailed:
		return RefundOrderResult{}, fmt.Errorf("%w: gateway declined refund", ErrNotRefundable)
	}

	now := time.Now().UTC()
	ref := Refund{
		ID:          uuid.NewString(),
		PaymentID:   pay.ID,
		Provider:    s.gw.Name(),
		ProviderRef: &resp.ProviderRef,
		Status:      status,
		AmountCents: o.TotalCents,
		Currency:    o.Currency,
		Reason:      notePtr(in.Reason),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	res, err := s.guard.MarkRefunded(ctx, o.ID, in.Actor, ref)
	if err != nil {
		return RefundOrderResult{}, err
	}
	if !res.Applied {
		return RefundOrderResult{}, ErrNotRefundable
	}

	return RefundOrderResult{RefundID: ref.ID, Status: ref.Status, AmountCents: ref.AmountCents}, nil
}
