package broker

import (
	"context"

	"github.com/redis/go-redis/v9"

	"pehlione.com/payrecon/internal/modules/outbox"
)

type Redis struct {
	client  *redis.Client
	channel string
}

func NewRedis(client *redis.Client, channel string) *Redis {
	return &Redis{client: client, channel: channel}
}

func NewRedisFromAddr(addr, password, channel string) *Redis {
	return NewRedis(redis.NewClient(&redis.Options{Addr: addr, Password: password}), channel)
}

func (r *Redis) Publish(ctx context.Context, msg outbox.Message) error {
	body, err := encode(msg)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel, body).Err()
}

func (r *Redis) Close() error { return r.client.Close() }
