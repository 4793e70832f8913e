package broker

import (
	"context"

	"github.com/segmentio/kafka-go"

	"pehlione.com/payrecon/internal/modules/outbox"
)

type Kafka struct {
	writer *kafka.Writer
}

func NewKafka(brokers []string, topic string) *Kafka {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafka.RequireAll,
	}
	return &Kafka{writer: w}
}

func (k *Kafka) Publish(ctx context.Context, msg outbox.Message) error {
	return k.writer.WriteMessages(ctx, toKafka(msg))
}

func (k *Kafka) Close() error { return k.writer.Close() }

// toKafka keys by aggregate so one order's events land on one partition.
func toKafka(msg outbox.Message) kafka.Message {
	return kafka.Message{
		Key:   []byte(msg.Key),
		Value: msg.Payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(msg.Type)},
			{Key: "event_id", Value: []byte(msg.ID)},
		},
	}
}
