package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyClient struct {
	*Mock
	calls int
	err   error
	delay time.Duration
}

func (f *flakyClient) GetStatus(ctx context.Context, ref string) (Status, error) {
	f.calls++
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return Status{}, ctx.Err()
		}
	}
	if f.err != nil {
		return Status{}, f.err
	}
	return f.Mock.GetStatus(ctx, ref)
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	inner := &flakyClient{Mock: NewMock("s", "http://gw"), err: errors.New("connection refused")}
	b := WithBreaker(inner, 2, time.Second)
	ctx := context.Background()

	_, err := b.GetStatus(ctx, "ORD-1")
	require.Error(t, err)
	_, err = b.GetStatus(ctx, "ORD-1")
	require.Error(t, err)

	_, err = b.GetStatus(ctx, "ORD-1")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 2, inner.calls, "open breaker must not reach the gateway")
}

func TestBreaker_TimeoutIsUnavailable(t *testing.T) {
	inner := &flakyClient{Mock: NewMock("s", "http://gw"), delay: time.Second}
	b := WithBreaker(inner, 5, 20*time.Millisecond)

	_, err := b.GetStatus(context.Background(), "ORD-1")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestBreaker_PassesThrough(t *testing.T) {
	m := NewMock("s", "http://gw")
	b := WithBreaker(m, 5, time.Second)
	ctx := context.Background()

	assert.Equal(t, MockName, b.Name())
	assert.Equal(t, MockHeader, b.CallbackHeader())

	_, err := b.Initiate(ctx, InitiateRequest{OrderRef: "ORD-1", AmountCents: 10})
	require.NoError(t, err)
	m.SetState("ORD-1", StateFailed, 10)

	st, err := b.GetStatus(ctx, "ORD-1")
	require.NoError(t, err)
	assert.Equal(t, StateFailed, st.State)
}
