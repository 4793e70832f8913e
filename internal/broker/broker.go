// Package broker ships outbox messages to the configured event transport.
package broker

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"pehlione.com/payrecon/internal/config"
	"pehlione.com/payrecon/internal/modules/outbox"
)

// New selects the publisher named by EVENTS_DRIVER.
func New(cfg config.Config, log *slog.Logger) (outbox.Publisher, error) {
	switch cfg.EventsDriver {
	case "kafka":
		return NewKafka(cfg.KafkaBrokers, cfg.KafkaTopic), nil
	case "redis":
		return NewRedisFromAddr(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisChannel), nil
	case "log", "":
		return NewLog(log), nil
	default:
		return nil, fmt.Errorf("unknown events driver: %s", cfg.EventsDriver)
	}
}

type envelope struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Key     string          `json:"key"`
	Payload json.RawMessage `json:"payload"`
}

func encode(msg outbox.Message) ([]byte, error) {
	payload := json.RawMessage(msg.Payload)
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	return json.Marshal(envelope{ID: msg.ID, Type: msg.Type, Key: msg.Key, Payload: payload})
}
