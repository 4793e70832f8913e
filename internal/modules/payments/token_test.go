package payments

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedirectTokens_RoundTrip(t *testing.T) {
	tok := NewRedirectTokens("s3cret", time.Hour)
	raw, err := tok.Issue("ORD-20260101-ABCDEF12")
	require.NoError(t, err)

	ref, err := tok.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "ORD-20260101-ABCDEF12", ref)
}

func TestRedirectTokens_Expired(t *testing.T) {
	tok := NewRedirectTokens("s3cret", time.Hour)
	issued := time.Now()
	tok.now = func() time.Time { return issued }
	raw, err := tok.Issue("ORD-1")
	require.NoError(t, err)

	tok.now = func() time.Time { return issued.Add(61 * time.Minute) }
	_, err = tok.Parse(raw)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestRedirectTokens_Invalid(t *testing.T) {
	raw, err := NewRedirectTokens("other", time.Hour).Issue("ORD-1")
	require.NoError(t, err)

	tok := NewRedirectTokens("s3cret", time.Hour)
	_, err = tok.Parse(raw)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	_, err = tok.Parse("not-a-jwt")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}
