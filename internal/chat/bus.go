package chat

import (
	"context"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"echochat/internal/logger"
)

// Bus carries envelopes between server instances. Every instance publishes
// the events it produces and consumes everything published, including its
// own (the hub only writes to sockets from the consuming side, so local and
// remote events take the same path).
type Bus interface {
	Publish(ctx context.Context, payload []byte) error
	Subscribe(ctx context.Context) <-chan []byte
}

// RedisBus is the production bus: one pub/sub channel shared by all
// instances, same shape as a single-room Redis fan-out.
type RedisBus struct {
	rdb     *redis.Client
	channel string
}

func NewRedisBus(rdb *redis.Client, channel string) *RedisBus {
	return &RedisBus{rdb: rdb, channel: channel}
}

func (b *RedisBus) Publish(ctx context.Context, payload []byte) error {
	return b.rdb.Publish(ctx, b.channel, payload).Err()
}

func (b *RedisBus) Subscribe(ctx context.Context) <-chan []byte {
	pubsub := b.rdb.Subscribe(ctx, b.channel)
	out := make(chan []byte, 256)
	go func() {
		defer close(out)
		defer pubsub.Close()
		for {
			select {
			case msg, ok := <-pubsub.Channel():
				if !ok {
					return
				}
				out <- []byte(msg.Payload)
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// LocalBus loops published payloads straight back to the subscriber.
// Single-instance deployments and tests.
type LocalBus struct {
	ch chan []byte
}

func NewLocalBus() *LocalBus {
	return &LocalBus{ch: make(chan []byte, 256)}
}

// Publish is best effort: presence and notifications are advisory, so a
// full buffer drops the payload instead of blocking the hub loop.
func (b *LocalBus) Publish(_ context.Context, payload []byte) error {
	select {
	case b.ch <- payload:
	default:
		logger.Warn("local bus full, dropping event", zap.Int("size", len(payload)))
	}
	return nil
}

func (b *LocalBus) Subscribe(_ context.Context) <-chan []byte {
	return b.ch
}
