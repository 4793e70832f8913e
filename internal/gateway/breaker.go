package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Breaker guards the outbound calls of a Client. Callback verification is
// local and passes straight through.
type Breaker struct {
	Client
	timeout  time.Duration
	initiate *gobreaker.CircuitBreaker[InitiateResponse]
	status   *gobreaker.CircuitBreaker[Status]
}

// WithBreaker trips after maxFailures consecutive transport failures and
// stays open for 30s. timeout bounds every outbound call.
func WithBreaker(c Client, maxFailures int, timeout time.Duration) *Breaker {
	if maxFailures < 1 {
		maxFailures = 5
	}
	settings := func(name string) gobreaker.Settings {
		return gobreaker.Settings{
			Name:        c.Name() + "." + name,
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= uint32(maxFailures)
			},
		}
	}
	return &Breaker{
		Client:   c,
		timeout:  timeout,
		initiate: gobreaker.NewCircuitBreaker[InitiateResponse](settings("initiate")),
		status:   gobreaker.NewCircuitBreaker[Status](settings("status")),
	}
}

func (b *Breaker) Initiate(ctx context.Context, req InitiateRequest) (InitiateResponse, error) {
	ctx, cancel := b.bound(ctx)
	defer cancel()
	res, err := b.initiate.Execute(func() (InitiateResponse, error) {
		return b.Client.Initiate(ctx, req)
	})
	return res, unavailable(err)
}

func (b *Breaker) GetStatus(ctx context.Context, orderRef string) (Status, error) {
	ctx, cancel := b.bound(ctx)
	defer cancel()
	res, err := b.status.Execute(func() (Status, error) {
		return b.Client.GetStatus(ctx, orderRef)
	})
	return res, unavailable(err)
}

// Refund is forwarded unguarded when the wrapped client supports it.
func (b *Breaker) Refund(ctx context.Context, req RefundRequest) (RefundResponse, error) {
	r, ok := b.Client.(Refunder)
	if !ok {
		return RefundResponse{}, fmt.Errorf("%s: refunds not supported", b.Name())
	}
	ctx, cancel := b.bound(ctx)
	defer cancel()
	return r.Refund(ctx, req)
}

func (b *Breaker) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, b.timeout)
}

func unavailable(err error) error {
	if err == nil || errors.Is(err, ErrUnavailable) {
		return err
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) ||
		errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}
