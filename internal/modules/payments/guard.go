package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"pehlione.com/payrecon/internal/modules/cart"
	"pehlione.com/payrecon/internal/modules/inventory"
	"pehlione.com/payrecon/internal/modules/orders"
	"pehlione.com/payrecon/internal/modules/outbox"
	"pehlione.com/payrecon/internal/shared/dbtx"
)

// Path names the signal that observed a gateway outcome.
type Path string

const (
	PathWebhook  Path = "webhook"
	PathRedirect Path = "redirect"
	PathManual   Path = "manual"
)

// InboundEvent is a callback to record alongside the transition it causes.
type InboundEvent struct {
	Provider  string
	EventID   string
	EventType string
	OrderRef  string
	Payload   []byte
}

type Outcome struct {
	OrderID       string
	Path          Path
	Actor         string
	TransactionID string
	// AmountCents is the gateway-reported amount. Zero skips the check.
	AmountCents int
	Raw         json.RawMessage
	Reason      string
	Event       *InboundEvent
}

type Result struct {
	// Applied is true only for the caller whose conditional write won.
	Applied bool
	// Duplicate is true when Event had already been recorded.
	Duplicate bool
	// Mismatch is true when the reported amount differs from the order total.
	Mismatch bool
	Order    orders.Order
}

// Guard is the single place order payment state changes. Every path funnels
// through the same conditional writes, so concurrent observers of one
// outcome produce exactly one set of side effects.
type Guard struct {
	db       *gorm.DB
	inv      *inventory.Adjuster
	carts    *cart.Sync
	provider string
	policy   dbtx.Policy
	log      *slog.Logger
	now      func() time.Time
}

func NewGuard(db *gorm.DB, inv *inventory.Adjuster, carts *cart.Sync, provider string, policy dbtx.Policy, log *slog.Logger) *Guard {
	if log == nil {
		log = slog.Default()
	}
	return &Guard{db: db, inv: inv, carts: carts, provider: provider, policy: policy, log: log, now: time.Now}
}

func retryable(err error) bool {
	return dbtx.IsTransient(err) || errors.Is(err, inventory.ErrReleaseFailed)
}

// MarkPaid applies a completed payment. A loser of the race, or an order that
// is already paid, refunded or cancelled, yields Applied=false and no error.
func (g *Guard) MarkPaid(ctx context.Context, out Outcome) (Result, error) {
	var res Result
	err := dbtx.WithRetry(ctx, g.db, g.policy, retryable, func(tx *gorm.DB) error {
		res = Result{}
		dup, evID, err := g.recordEvent(ctx, tx, out.Event)
		if err != nil {
			return err
		}
		o, err := orders.GetInTx(ctx, tx, out.OrderID)
		if err != nil {
			return err
		}
		res.Order = o
		if dup {
			res.Duplicate = true
			return nil
		}

		if out.AmountCents > 0 && out.AmountCents != o.TotalCents {
			res.Mismatch = true
			return g.markEvent(ctx, tx, evID, fmt.Sprintf("amount mismatch: reported=%d total=%d", out.AmountCents, o.TotalCents))
		}

		now := g.now().UTC()
		updates := map[string]any{
			"payment_status": string(orders.PaymentPaid),
			"status":         string(orders.StatusConfirmed),
			"paid_at":        now,
			"updated_at":     now,
		}
		if out.TransactionID != "" {
			updates["gateway_txn_id"] = out.TransactionID
		}
		w := tx.WithContext(ctx).
			Model(&orders.Order{}).
			Where("id = ? AND payment_status NOT IN ? AND status <> ?", o.ID,
				[]string{string(orders.PaymentPaid), string(orders.PaymentRefunded)}, string(orders.StatusCancelled)).
			Updates(updates)
		if w.Error != nil {
			return w.Error
		}
		if w.RowsAffected == 0 {
			if o, err = orders.GetLatestInTx(ctx, tx, o.ID); err != nil {
				return err
			}
			res.Order = o
			if o.Status == orders.StatusCancelled && o.PaymentStatus != orders.PaymentPaid {
				g.log.WarnContext(ctx, "completed payment for cancelled order not applied",
					"order_ref", o.Ref, "path", out.Path, "txn_id", out.TransactionID)
			}
			return g.markEvent(ctx, tx, evID, "")
		}

		if err := g.settleAttempt(ctx, tx, o, StatusSuccess, out, now); err != nil {
			return err
		}
		if _, err := g.carts.MarkOrdered(ctx, tx, o.ID); err != nil {
			return err
		}
		if err := orders.AppendEvent(ctx, tx, orders.OrderEvent{
			OrderID:     o.ID,
			Actor:       g.actor(out),
			Action:      "payment_completed",
			FromStatus:  o.Status,
			ToStatus:    orders.StatusConfirmed,
			FromPayment: o.PaymentStatus,
			ToPayment:   orders.PaymentPaid,
			Note:        notePtr(out.Reason),
			CreatedAt:   now,
		}); err != nil {
			return err
		}
		if err := outbox.Enqueue(ctx, tx, o.ID, outbox.TypeOrderPaid, orderPayload(o, out, now)); err != nil {
			return err
		}
		if err := g.markEvent(ctx, tx, evID, ""); err != nil {
			return err
		}

		o.PaymentStatus = orders.PaymentPaid
		o.Status = orders.StatusConfirmed
		o.PaidAt = &now
		if out.TransactionID != "" {
			o.GatewayTxnID = &out.TransactionID
		}
		res.Order = o
		res.Applied = true
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("mark paid: %w", err)
	}
	g.logResult(ctx, "mark paid", out, res)
	return res, nil
}

// MarkFailed applies a failed payment and cancels the order. Stock release and
// cart reversion happen only for the caller whose write moved the order into
// cancelled. A paid order is left untouched.
func (g *Guard) MarkFailed(ctx context.Context, out Outcome) (Result, error) {
	var res Result
	err := dbtx.WithRetry(ctx, g.db, g.policy, retryable, func(tx *gorm.DB) error {
		res = Result{}
		dup, evID, err := g.recordEvent(ctx, tx, out.Event)
		if err != nil {
			return err
		}
		o, err := orders.GetInTx(ctx, tx, out.OrderID)
		if err != nil {
			return err
		}
		res.Order = o
		if dup {
			res.Duplicate = true
			return nil
		}

		now := g.now().UTC()
		w := tx.WithContext(ctx).
			Model(&orders.Order{}).
			Where("id = ? AND payment_status NOT IN ? AND status <> ?", o.ID,
				[]string{string(orders.PaymentPaid), string(orders.PaymentRefunded)}, string(orders.StatusCancelled)).
			Updates(map[string]any{
				"payment_status": string(orders.PaymentFailed),
				"status":         string(orders.StatusCancelled),
				"cancelled_at":   now,
				"updated_at":     now,
			})
		if w.Error != nil {
			return w.Error
		}
		if w.RowsAffected == 0 {
			if o, err = orders.GetLatestInTx(ctx, tx, o.ID); err != nil {
				return err
			}
			res.Order = o
			if o.PaymentStatus.IsTerminal() {
				g.log.WarnContext(ctx, "failure signal for settled payment ignored",
					"order_ref", o.Ref, "path", out.Path, "payment_status", o.PaymentStatus)
			}
			return g.markEvent(ctx, tx, evID, "")
		}

		items, err := orders.ItemsInTx(ctx, tx, o.ID)
		if err != nil {
			return err
		}
		if err := g.inv.Release(ctx, tx, lines(items)); err != nil {
			g.log.ErrorContext(ctx, "stock release failed", "order_ref", o.Ref, "path", out.Path, "err", err)
			return err
		}
		if _, err := g.carts.MarkActive(ctx, tx, o.ID); err != nil {
			return err
		}
		if err := g.settleAttempt(ctx, tx, o, StatusFailed, out, now); err != nil {
			return err
		}
		if err := orders.AppendEvent(ctx, tx, orders.OrderEvent{
			OrderID:     o.ID,
			Actor:       g.actor(out),
			Action:      "payment_failed",
			FromStatus:  o.Status,
			ToStatus:    orders.StatusCancelled,
			FromPayment: o.PaymentStatus,
			ToPayment:   orders.PaymentFailed,
			Note:        notePtr(out.Reason),
			CreatedAt:   now,
		}); err != nil {
			return err
		}
		if err := outbox.Enqueue(ctx, tx, o.ID, outbox.TypeOrderCancelled, orderPayload(o, out, now)); err != nil {
			return err
		}
		if err := g.markEvent(ctx, tx, evID, ""); err != nil {
			return err
		}

		o.PaymentStatus = orders.PaymentFailed
		o.Status = orders.StatusCancelled
		o.CancelledAt = &now
		res.Order = o
		res.Applied = true
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("mark failed: %w", err)
	}
	g.logResult(ctx, "mark failed", out, res)
	return res, nil
}

// Reopen returns a failed but not cancelled order to pending so a new attempt
// can start. MarkFailed always cancels, so the guard never produces such a row
// itself; Reopen repairs rows written before that rule or edited by hand.
// A cancelled order is never reopened.
func (g *Guard) Reopen(ctx context.Context, orderID, actor string) (bool, error) {
	applied := false
	err := dbtx.WithRetry(ctx, g.db, g.policy, dbtx.IsTransient, func(tx *gorm.DB) error {
		now := g.now().UTC()
		w := tx.WithContext(ctx).
			Model(&orders.Order{}).
			Where("id = ? AND payment_status = ? AND status <> ?", orderID, string(orders.PaymentFailed), string(orders.StatusCancelled)).
			Updates(map[string]any{"payment_status": string(orders.PaymentPending), "updated_at": now})
		if w.Error != nil || w.RowsAffected == 0 {
			return w.Error
		}
		applied = true
		return orders.AppendEvent(ctx, tx, orders.OrderEvent{
			OrderID:     orderID,
			Actor:       actor,
			Action:      "payment_retry",
			FromStatus:  orders.StatusPending,
			ToStatus:    orders.StatusPending,
			FromPayment: orders.PaymentFailed,
			ToPayment:   orders.PaymentPending,
			CreatedAt:   now,
		})
	})
	return applied, err
}

// MarkRefunded moves a paid order to refunded and records the refund row.
func (g *Guard) MarkRefunded(ctx context.Context, orderID, actor string, refund Refund) (Result, error) {
	var res Result
	err := dbtx.WithRetry(ctx, g.db, g.policy, dbtx.IsTransient, func(tx *gorm.DB) error {
		res = Result{}
		o, err := orders.GetInTx(ctx, tx, orderID)
		if err != nil {
			return err
		}
		res.Order = o

		now := g.now().UTC()
		w := tx.WithContext(ctx).
			Model(&orders.Order{}).
			Where("id = ? AND payment_status = ?", o.ID, string(orders.PaymentPaid)).
			Updates(map[string]any{"payment_status": string(orders.PaymentRefunded), "updated_at": now})
		if w.Error != nil {
			return w.Error
		}
		if w.RowsAffected == 0 {
			return nil
		}

		if refund.ID == "" {
			refund.ID = uuid.NewString()
		}
		refund.OrderID = o.ID
		if err := tx.WithContext(ctx).Create(&refund).Error; err != nil {
			return err
		}
		if err := orders.AppendEvent(ctx, tx, orders.OrderEvent{
			OrderID:     o.ID,
			Actor:       actor,
			Action:      "refund",
			FromStatus:  o.Status,
			ToStatus:    o.Status,
			FromPayment: orders.PaymentPaid,
			ToPayment:   orders.PaymentRefunded,
			Note:        refund.Reason,
			CreatedAt:   now,
		}); err != nil {
			return err
		}
		if err := outbox.Enqueue(ctx, tx, o.ID, outbox.TypeOrderRefunded, map[string]any{
			"order_id":     o.ID,
			"order_ref":    o.Ref,
			"amount_cents": refund.AmountCents,
			"currency":     refund.Currency,
			"refund_id":    refund.ID,
			"at":           now,
		}); err != nil {
			return err
		}

		o.PaymentStatus = orders.PaymentRefunded
		res.Order = o
		res.Applied = true
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("mark refunded: %w", err)
	}
	return res, nil
}

// recordEvent inserts the callback into provider_events. A conflicting
// (provider, event_id) means the event was processed before.
func (g *Guard) recordEvent(ctx context.Context, tx *gorm.DB, ev *InboundEvent) (dup bool, id string, err error) {
	if ev == nil {
		return false, "", nil
	}
	provider := ev.Provider
	if provider == "" {
		provider = g.provider
	}
	pe := ProviderEvent{
		ID:          uuid.NewString(),
		Provider:    provider,
		EventID:     ev.EventID,
		EventType:   ev.EventType,
		OrderRef:    ev.OrderRef,
		PayloadJSON: datatypes.JSON(ev.Payload),
		ReceivedAt:  g.now().UTC(),
	}
	w := tx.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&pe)
	if w.Error != nil {
		return false, "", w.Error
	}
	if w.RowsAffected == 0 {
		return true, "", nil
	}
	return false, pe.ID, nil
}

func (g *Guard) markEvent(ctx context.Context, tx *gorm.DB, id, processErr string) error {
	if id == "" {
		return nil
	}
	updates := map[string]any{"processed_at": g.now().UTC()}
	if processErr != "" {
		updates["process_error"] = truncate(processErr, 250)
	}
	return tx.WithContext(ctx).Model(&ProviderEvent{}).Where("id = ?", id).Updates(updates).Error
}

// settleAttempt closes the latest pending attempt of the order. When none is
// pending, a settled attempt is recorded so the payment trail stays complete.
func (g *Guard) settleAttempt(ctx context.Context, tx *gorm.DB, o orders.Order, status string, out Outcome, now time.Time) error {
	var p Payment
	err := tx.WithContext(ctx).
		Where("order_id = ? AND status = ?", o.ID, StatusPending).
		Order("attempt DESC").
		Take(&p).Error
	switch {
	case err == nil:
		updates := map[string]any{"status": status, "updated_at": now}
		if out.TransactionID != "" {
			updates["gateway_txn_id"] = out.TransactionID
		}
		if len(out.Raw) > 0 {
			updates["raw_response"] = datatypes.JSON(out.Raw)
		}
		if status == StatusFailed && out.Reason != "" {
			updates["error_message"] = truncate(out.Reason, 250)
		}
		return tx.WithContext(ctx).
			Model(&Payment{}).
			Where("id = ? AND status = ?", p.ID, StatusPending).
			Updates(updates).Error
	case errors.Is(err, gorm.ErrRecordNotFound):
		next, err := nextAttempt(ctx, tx, o.ID)
		if err != nil {
			return err
		}
		rec := Payment{
			ID:             uuid.NewString(),
			OrderID:        o.ID,
			Attempt:        next,
			Provider:       g.provider,
			Status:         status,
			AmountCents:    o.TotalCents,
			Currency:       o.Currency,
			IdempotencyKey: string(out.Path) + ":" + o.ID,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if out.TransactionID != "" {
			rec.GatewayTxnID = &out.TransactionID
		}
		if len(out.Raw) > 0 {
			rec.RawResponse = datatypes.JSON(out.Raw)
		}
		if status == StatusFailed && out.Reason != "" {
			msg := truncate(out.Reason, 250)
			rec.ErrorMessage = &msg
		}
		return tx.WithContext(ctx).Create(&rec).Error
	default:
		return err
	}
}

func nextAttempt(ctx context.Context, tx *gorm.DB, orderID string) (int, error) {
	var last int
	if err := tx.WithContext(ctx).
		Model(&Payment{}).
		Where("order_id = ?", orderID).
		Select("COALESCE(MAX(attempt), 0)").
		Scan(&last).Error; err != nil {
		return 0, err
	}
	return last + 1, nil
}

func (g *Guard) actor(out Outcome) string {
	if out.Actor != "" {
		return out.Actor
	}
	return "system:" + string(out.Path)
}

func (g *Guard) logResult(ctx context.Context, msg string, out Outcome, res Result) {
	g.log.InfoContext(ctx, msg,
		"order_ref", res.Order.Ref,
		"path", out.Path,
		"won", res.Applied,
		"duplicate", res.Duplicate,
		"mismatch", res.Mismatch,
		"payment_status", res.Order.PaymentStatus,
		"status", res.Order.Status,
	)
}

func lines(items []orders.OrderItem) []inventory.Line {
	out := make([]inventory.Line, 0, len(items))
	for _, it := range items {
		out = append(out, inventory.Line{ProductID: it.ProductID, VariantID: it.VariantID, Qty: it.Quantity})
	}
	return out
}

func orderPayload(o orders.Order, out Outcome, at time.Time) map[string]any {
	return map[string]any{
		"order_id":       o.ID,
		"order_ref":      o.Ref,
		"total_cents":    o.TotalCents,
		"currency":       o.Currency,
		"transaction_id": out.TransactionID,
		"path":           out.Path,
		"at":             at,
	}
}

func notePtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
