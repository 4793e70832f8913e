package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"pehlione.com/payrecon/internal/gateway"
	"pehlione.com/payrecon/internal/modules/orders"
)

type ResolveStatus string

const (
	ResolveSuccess ResolveStatus = "success"
	ResolveFailed  ResolveStatus = "failed"
	ResolvePending ResolveStatus = "pending"
	ResolveInvalid ResolveStatus = "invalid"
	ResolveExpired ResolveStatus = "expired"
)

type ResolveInput struct {
	Token    string
	OrderRef string
}

type Resolution struct {
	Status   ResolveStatus
	OrderRef string
}

// Resolver answers the customer's return from the gateway. It never fails:
// every problem collapses into one of the documented statuses.
type Resolver struct {
	orders      *orders.Repo
	gw          gateway.Client
	guard       *Guard
	tokens      *RedirectTokens
	allowRawRef bool
	log         *slog.Logger
}

func NewResolver(repo *orders.Repo, gw gateway.Client, guard *Guard, tokens *RedirectTokens, allowRawRef bool, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{orders: repo, gw: gw, guard: guard, tokens: tokens, allowRawRef: allowRawRef, log: log}
}

func (r *Resolver) Resolve(ctx context.Context, in ResolveInput) Resolution {
	ref, st := r.authorize(in)
	if st != "" {
		return Resolution{Status: st, OrderRef: in.OrderRef}
	}

	o, err := r.orders.GetByRef(ctx, ref)
	if errors.Is(err, orders.ErrNotFound) {
		return Resolution{Status: ResolveInvalid, OrderRef: ref}
	}
	if err != nil {
		r.log.ErrorContext(ctx, "redirect order lookup failed", "order_ref", ref, "err", err)
		return Resolution{Status: ResolvePending, OrderRef: ref}
	}

	o, err = r.reconcile(ctx, o, PathRedirect, "")
	if err != nil {
		r.log.WarnContext(ctx, "redirect reconcile incomplete", "order_ref", ref, "err", err)
	}
	return Resolution{Status: statusOf(o), OrderRef: ref}
}

// Recheck is the manual reconciliation path. Unlike Resolve it reports
// gateway and guard errors to the caller.
func (r *Resolver) Recheck(ctx context.Context, ref, actor string) (orders.Order, error) {
	o, err := r.orders.GetByRef(ctx, ref)
	if err != nil {
		return orders.Order{}, err
	}
	return r.reconcile(ctx, o, PathManual, actor)
}

func (r *Resolver) authorize(in ResolveInput) (string, ResolveStatus) {
	if in.Token != "" {
		ref, err := r.tokens.Parse(in.Token)
		switch {
		case errors.Is(err, ErrTokenExpired):
			return "", ResolveExpired
		case err != nil:
			return "", ResolveInvalid
		}
		if in.OrderRef != "" && in.OrderRef != ref {
			return "", ResolveInvalid
		}
		return ref, ""
	}
	if r.allowRawRef && in.OrderRef != "" {
		return in.OrderRef, ""
	}
	return "", ResolveInvalid
}

// reconcile polls the gateway for an unsettled order and applies the answer.
// On error the last stored order is returned with the error.
func (r *Resolver) reconcile(ctx context.Context, o orders.Order, path Path, actor string) (orders.Order, error) {
	if o.Settled() {
		return o, nil
	}

	st, err := r.gw.GetStatus(ctx, o.Ref)
	if err != nil {
		return o, fmt.Errorf("gateway status %s: %w", o.Ref, err)
	}

	out := Outcome{
		OrderID:       o.ID,
		Path:          path,
		Actor:         actor,
		TransactionID: st.TransactionID,
		AmountCents:   st.AmountCents,
		Raw:           st.Raw,
	}

	var res Result
	switch st.State {
	case gateway.StateCompleted:
		res, err = r.guard.MarkPaid(ctx, out)
	case gateway.StateFailed:
		out.Reason = "gateway status failed"
		res, err = r.guard.MarkFailed(ctx, out)
	default:
		return o, nil
	}
	if err != nil {
		return o, err
	}
	if res.Mismatch {
		r.log.WarnContext(ctx, "gateway amount mismatch", "order_ref", o.Ref, "path", path,
			"reported", st.AmountCents, "total", o.TotalCents)
	}
	return res.Order, nil
}

func statusOf(o orders.Order) ResolveStatus {
	switch {
	case o.PaymentStatus == orders.PaymentPaid:
		return ResolveSuccess
	case o.PaymentStatus == orders.PaymentFailed,
		o.PaymentStatus == orders.PaymentRefunded,
		o.Status == orders.StatusCancelled:
		return ResolveFailed
	default:
		return ResolvePending
	}
}
