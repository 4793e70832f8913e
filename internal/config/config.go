package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr string
	DBDSN    string

	// mock|stripe
	GatewayDriver       string
	MockWebhookSecret   string
	MockGatewayBaseURL  string
	StripeSecretKey     string
	StripeWebhookSecret string
	GatewayTimeout      time.Duration
	BreakerFailures     int

	PublicBaseURL           string // used to build the gateway return URL
	FrontendConfirmationURL string
	RedirectTokenSecret     string
	RedirectTokenTTL        time.Duration
	RedirectAllowRawRef     bool

	AdminAPIToken      string
	CORSAllowedOrigins []string

	// log|kafka|redis
	EventsDriver       string
	KafkaBrokers       []string
	KafkaTopic         string
	RedisAddr          string
	RedisPassword      string
	RedisChannel       string
	OutboxPollInterval time.Duration

	// none|local|s3
	ArchiveDriver   string
	ArchiveLocalDir string
	S3Region        string
	S3Bucket        string
	S3Prefix        string

	ReleaseRetryAttempts int
	ReleaseRetryBase     time.Duration
}

// Load reads the process environment. Call godotenv.Load before it when a
// .env file should be honoured.
func Load() (Config, error) {
	c := Config{
		HTTPAddr: envOr("HTTP_ADDR", ":8080"),
		DBDSN:    os.Getenv("DB_DSN"),

		GatewayDriver:       envOr("GATEWAY_DRIVER", "mock"),
		MockWebhookSecret:   os.Getenv("MOCK_WEBHOOK_SECRET"),
		MockGatewayBaseURL:  envOr("MOCK_GATEWAY_BASE_URL", "http://localhost:8090"),
		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		GatewayTimeout:      envDuration("GATEWAY_TIMEOUT", 10*time.Second),
		BreakerFailures:     envInt("GATEWAY_BREAKER_FAILURES", 5),

		PublicBaseURL:           strings.TrimRight(envOr("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
		FrontendConfirmationURL: envOr("FRONTEND_CONFIRMATION_URL", "http://localhost:3000/order/confirmation"),
		RedirectTokenSecret:     os.Getenv("REDIRECT_TOKEN_SECRET"),
		RedirectTokenTTL:        envDuration("REDIRECT_TOKEN_TTL", time.Hour),
		RedirectAllowRawRef:     envBool("REDIRECT_ALLOW_RAW_REF", false),

		AdminAPIToken:      os.Getenv("ADMIN_API_TOKEN"),
		CORSAllowedOrigins: envList("CORS_ALLOWED_ORIGINS"),

		EventsDriver:       envOr("EVENTS_DRIVER", "log"),
		KafkaBrokers:       envList("KAFKA_BROKERS"),
		KafkaTopic:         envOr("KAFKA_TOPIC", "order-events"),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		RedisChannel:       envOr("REDIS_CHANNEL", "order-events"),
		OutboxPollInterval: envDuration("OUTBOX_POLL_INTERVAL", time.Second),

		ArchiveDriver:   envOr("ARCHIVE_DRIVER", "none"),
		ArchiveLocalDir: envOr("ARCHIVE_LOCAL_DIR", "./storage/webhooks"),
		S3Region:        os.Getenv("S3_REGION"),
		S3Bucket:        os.Getenv("S3_BUCKET"),
		S3Prefix:        envOr("S3_PREFIX", "webhooks"),

		ReleaseRetryAttempts: envInt("RELEASE_RETRY_ATTEMPTS", 5),
		ReleaseRetryBase:     envDuration("RELEASE_RETRY_BASE", 50*time.Millisecond),
	}
	return c, c.Validate()
}

func (c Config) Validate() error {
	var errs []error
	if c.DBDSN == "" {
		errs = append(errs, errors.New("DB_DSN is required"))
	}
	if c.RedirectTokenSecret == "" {
		errs = append(errs, errors.New("REDIRECT_TOKEN_SECRET is required"))
	}
	if c.RedirectTokenTTL <= 0 {
		errs = append(errs, errors.New("REDIRECT_TOKEN_TTL must be positive"))
	}

	switch c.GatewayDriver {
	case "mock":
		if c.MockWebhookSecret == "" {
			errs = append(errs, errors.New("MOCK_WEBHOOK_SECRET is required for the mock gateway"))
		}
	case "stripe":
		if c.StripeSecretKey == "" || c.StripeWebhookSecret == "" {
			errs = append(errs, errors.New("STRIPE_SECRET_KEY and STRIPE_WEBHOOK_SECRET are required for the stripe gateway"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown GATEWAY_DRIVER: %s", c.GatewayDriver))
	}

	switch c.EventsDriver {
	case "log":
	case "kafka":
		if len(c.KafkaBrokers) == 0 {
			errs = append(errs, errors.New("KAFKA_BROKERS is required for EVENTS_DRIVER=kafka"))
		}
	case "redis":
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("REDIS_ADDR is required for EVENTS_DRIVER=redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown EVENTS_DRIVER: %s", c.EventsDriver))
	}

	switch c.ArchiveDriver {
	case "none", "local":
	case "s3":
		if c.S3Region == "" || c.S3Bucket == "" {
			errs = append(errs, errors.New("S3_REGION and S3_BUCKET are required for ARCHIVE_DRIVER=s3"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown ARCHIVE_DRIVER: %s", c.ArchiveDriver))
	}

	if c.ReleaseRetryAttempts < 1 {
		errs = append(errs, errors.New("RELEASE_RETRY_ATTEMPTS must be >= 1"))
	}
	return errors.Join(errs...)
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envDuration(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func envBool(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envList(k string) []string {
	v := os.Getenv(k)
	if v == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
