package events

import (
	"context"
	"fmt"

	"github.com/nat-prohmpiriya/fipe-garage/pkg/logger"
	"github.com/nat-prohmpiriya/fipe-garage/pkg/usersession"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultChannel is the pub/sub channel used when none is configured
const DefaultChannel = "auth:events"

// PubSubClient is the part of the shared Redis client the bus needs
type PubSubClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Subscribe(ctx context.Context, channels ...string) (*redis.PubSub, error)
}

// RedisBus carries auth events over Redis pub/sub
type RedisBus struct {
	*Hub
	client  PubSubClient
	channel string
	log     *logger.Logger
}

// NewRedisBus creates a new RedisBus
func NewRedisBus(client PubSubClient, channel string, log *logger.Logger) *RedisBus {
	if channel == "" {
		channel = DefaultChannel
	}
	if log == nil {
		log = logger.Get()
	}
	return &RedisBus{Hub: NewHub(), client: client, channel: channel, log: log}
}

// Publish implements Publisher
func (b *RedisBus) Publish(ctx context.Context, ev usersession.AuthEvent) error {
	data, err := Encode(ev)
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish auth event: %w", err)
	}
	return nil
}

// Run subscribes to the channel and dispatches until ctx is done
func (b *RedisBus) Run(ctx context.Context) error {
	pubsub, err := b.client.Subscribe(ctx, b.channel)
	if err != nil {
		return err
	}
	defer pubsub.Close()

	b.log.Info("Consuming auth events", zap.String("backend", "redis"), zap.String("channel", b.channel))
	return b.consume(ctx, pubsub.Channel())
}

func (b *RedisBus) consume(ctx context.Context, ch <-chan *redis.Message) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			ev, err := Decode([]byte(msg.Payload))
			if err != nil {
				b.log.Warn("Dropping malformed auth event", zap.Error(err))
				continue
			}
			b.Dispatch(ev)
		}
	}
}
