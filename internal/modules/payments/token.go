package payments

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrTokenExpired = errors.New("redirect token expired")
	ErrTokenInvalid = errors.New("redirect token invalid")
)

type redirectClaims struct {
	OrderRef string `json:"order_ref"`
	jwt.RegisteredClaims
}

// RedirectTokens signs the order reference carried through the gateway's
// return URL. Tokens expire hard after ttl.
type RedirectTokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewRedirectTokens(secret string, ttl time.Duration) *RedirectTokens {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedirectTokens{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (t *RedirectTokens) Issue(orderRef string) (string, error) {
	now := t.now()
	claims := redirectClaims{
		OrderRef: orderRef,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Parse returns the order reference of a valid token. An expired token is
// reported as ErrTokenExpired even when its signature is good.
func (t *RedirectTokens) Parse(raw string) (string, error) {
	var claims redirectClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(tok *jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return "", ErrTokenExpired
	default:
		return "", fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if claims.OrderRef == "" {
		return "", ErrTokenInvalid
	}
	return claims.OrderRef, nil
}
