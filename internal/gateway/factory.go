package gateway

import (
	"fmt"

	"pehlione.com/payrecon/internal/config"
)

// New builds the configured gateway client wrapped in a circuit breaker.
func New(cfg config.Config) (*Breaker, error) {
	var c Client
	switch cfg.GatewayDriver {
	case MockName, "":
		c = NewMock(cfg.MockWebhookSecret, cfg.MockGatewayBaseURL)
	case StripeName:
		c = NewStripe(cfg.StripeSecretKey, cfg.StripeWebhookSecret)
	default:
		return nil, fmt.Errorf("unknown gateway driver: %s", cfg.GatewayDriver)
	}
	return WithBreaker(c, cfg.BreakerFailures, cfg.GatewayTimeout), nil
}
