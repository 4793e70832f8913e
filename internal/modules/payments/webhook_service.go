package payments

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"pehlione.com/payrecon/internal/gateway"
	"pehlione.com/payrecon/internal/modules/orders"
	"pehlione.com/payrecon/internal/storage"
)

type AckStatus string

const (
	AckApplied      AckStatus = "applied"
	AckNoop         AckStatus = "noop"
	AckDuplicate    AckStatus = "duplicate"
	AckUnknownOrder AckStatus = "unknown_order"
	AckMismatch     AckStatus = "amount_mismatch"
	AckIgnored      AckStatus = "ignored"
)

// Ack is returned for every callback the gateway should not redeliver.
type Ack struct {
	Status   AckStatus
	OrderRef string
	EventID  string
}

type WebhookService struct {
	orders  *orders.Repo
	gw      gateway.Client
	guard   *Guard
	archive storage.Storage
	logger  *slog.Logger
}

func NewWebhookService(repo *orders.Repo, gw gateway.Client, guard *Guard, archive storage.Storage) *WebhookService {
	if archive == nil {
		archive = storage.Nop{}
	}
	return &WebhookService{orders: repo, gw: gw, guard: guard, archive: archive, logger: slog.Default()}
}

func (s *WebhookService) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

// Ingest authenticates a raw callback and applies it through the guard. A
// returned error other than ErrAuthenticity/ErrMalformed means nothing was
// committed and the gateway should retry.
func (s *WebhookService) Ingest(ctx context.Context, authHeader string, rawBody []byte) (Ack, error) {
	ev, err := s.gw.VerifyCallback(authHeader, rawBody)
	if err != nil {
		if errors.Is(err, gateway.ErrMalformed) {
			return Ack{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		s.logger.WarnContext(ctx, "webhook rejected", "provider", s.gw.Name(), "err", err)
		return Ack{}, fmt.Errorf("%w: %v", ErrAuthenticity, err)
	}
	if ev.Type == "" {
		return Ack{}, fmt.Errorf("%w: missing event type", ErrMalformed)
	}
	if ev.ID == "" {
		sum := sha256.Sum256(rawBody)
		ev.ID = "sha256:" + hex.EncodeToString(sum[:])
	}
	ack := Ack{OrderRef: ev.OrderRef, EventID: ev.ID}

	if ev.Type != gateway.EventOrderCompleted && ev.Type != gateway.EventOrderFailed {
		s.logger.InfoContext(ctx, "webhook event ignored", "event_type", ev.Type, "event_id", ev.ID)
		ack.Status = AckIgnored
		return ack, nil
	}
	if ev.OrderRef == "" {
		return Ack{}, fmt.Errorf("%w: missing order reference", ErrMalformed)
	}

	o, err := s.orders.GetByRef(ctx, ev.OrderRef)
	if errors.Is(err, orders.ErrNotFound) {
		s.logger.WarnContext(ctx, "webhook for unknown order", "order_ref", ev.OrderRef, "event_type", ev.Type, "event_id", ev.ID)
		ack.Status = AckUnknownOrder
		return ack, nil
	}
	if err != nil {
		return Ack{}, err
	}

	if o.Settled() {
		if ev.Type == gateway.EventOrderCompleted && o.Status == orders.StatusCancelled {
			s.logger.WarnContext(ctx, "completed payment for cancelled order not applied",
				"order_ref", o.Ref, "event_id", ev.ID, "txn_id", ev.TransactionID)
		}
		ack.Status = AckNoop
		return ack, nil
	}

	out := Outcome{
		OrderID:       o.ID,
		Path:          PathWebhook,
		TransactionID: ev.TransactionID,
		AmountCents:   ev.AmountCents,
		Raw:           ev.Raw,
		Event: &InboundEvent{
			Provider:  s.gw.Name(),
			EventID:   ev.ID,
			EventType: ev.Type,
			OrderRef:  ev.OrderRef,
			Payload:   rawBody,
		},
	}

	var res Result
	if ev.Type == gateway.EventOrderCompleted {
		res, err = s.guard.MarkPaid(ctx, out)
	} else {
		out.Reason = "gateway reported failure"
		res, err = s.guard.MarkFailed(ctx, out)
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "webhook apply failed", "order_ref", o.Ref, "event_type", ev.Type, "event_id", ev.ID, "err", err)
		return Ack{}, err
	}

	switch {
	case res.Duplicate:
		ack.Status = AckDuplicate
		return ack, nil
	case res.Mismatch:
		s.logger.WarnContext(ctx, "webhook amount mismatch", "order_ref", o.Ref, "event_id", ev.ID,
			"reported", ev.AmountCents, "total", o.TotalCents)
		ack.Status = AckMismatch
	case res.Applied:
		ack.Status = AckApplied
	default:
		ack.Status = AckNoop
	}

	s.archiveBody(ctx, ev.ID, rawBody)
	return ack, nil
}

func (s *WebhookService) archiveBody(ctx context.Context, eventID string, body []byte) {
	res, err := s.archive.Put(ctx, bytes.NewReader(body), storage.PutInput{
		Provider:    s.gw.Name(),
		EventID:     eventID,
		ContentType: "application/json",
		ReceivedAt:  time.Now(),
	})
	if err != nil {
		s.logger.WarnContext(ctx, "webhook archive failed", "event_id", eventID, "err", err)
		return
	}
	s.logger.DebugContext(ctx, "webhook archived", "event_id", eventID, "key", res.Key)
}
