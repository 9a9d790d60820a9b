package observability

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/wfcore/engine/internal/logger"
)

// redisChannelPrefix namespaces pub/sub channels so the workflow engine
// can share a Redis instance with other tenants of the same cluster.
const redisChannelPrefix = "wfcore:events:"

// RedisObserver fans execution events out over Redis pub/sub so every
// replica of a horizontally-scaled engine observes events produced by
// the replica that actually ran the node, not just its own. It implements
// the same Observer interface shape as LoggerObserver/WebSocketObserver.
type RedisObserver struct {
	name    string
	filter  EventFilter
	log     *logger.Logger
	client  *redis.Client
	channel string
}

// RedisObserverOption configures a RedisObserver.
type RedisObserverOption func(*RedisObserver)

// WithRedisFilter sets the event filter.
func WithRedisFilter(filter EventFilter) RedisObserverOption {
	return func(o *RedisObserver) { o.filter = filter }
}

// WithRedisLogger sets the logger instance.
func WithRedisLogger(l *logger.Logger) RedisObserverOption {
	return func(o *RedisObserver) { o.log = l }
}

// WithRedisChannel overrides the default "wfcore:events:global" channel,
// e.g. to scope publication to a single tenant.
func WithRedisChannel(channel string) RedisObserverOption {
	return func(o *RedisObserver) { o.channel = redisChannelPrefix + channel }
}

// NewRedisObserver builds a RedisObserver publishing through client.
func NewRedisObserver(client *redis.Client, opts ...RedisObserverOption) *RedisObserver {
	obs := &RedisObserver{name: "redis", client: client, channel: redisChannelPrefix + "global"}
	for _, opt := range opts {
		opt(obs)
	}
	return obs
}

func (o *RedisObserver) Name() string        { return o.name }
func (o *RedisObserver) Filter() EventFilter { return o.filter }

func (o *RedisObserver) OnEvent(ctx context.Context, event Event) error {
	data, err := json.Marshal(eventPayloadFrom(event))
	if err != nil {
		return fmt.Errorf("marshal redis event payload: %w", err)
	}
	if err := o.client.Publish(ctx, o.channel, data).Err(); err != nil {
		if o.log != nil {
			o.log.ErrorContext(ctx, "redis publish failed", "channel", o.channel, "error", err)
		}
		return fmt.Errorf("publish event to redis: %w", err)
	}
	return nil
}

// RedisSubscription relays events published by other replicas to a local
// callback. Each replica subscribes once at startup, independent of its
// own RedisObserver publications (Redis pub/sub delivers to all
// subscribers including the publisher, so callers that also hold a
// local ObserverManager should expect to see their own events echoed
// back and dedupe on ExecutionID+Type+NodeID if that matters to them).
type RedisSubscription struct {
	client *redis.Client
	pubsub *redis.PubSub
	log    *logger.Logger
}

// SubscribeRedis opens a subscription to channel and starts a background
// goroutine delivering decoded payloads to handler until ctx is
// cancelled or Close is called.
func SubscribeRedis(ctx context.Context, client *redis.Client, channel string, log *logger.Logger, handler func(payload []byte)) *RedisSubscription {
	pubsub := client.Subscribe(ctx, redisChannelPrefix+channel)
	sub := &RedisSubscription{client: client, pubsub: pubsub, log: log}

	go func() {
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				handler([]byte(msg.Payload))
			}
		}
	}()

	return sub
}

// Close stops the subscription.
func (s *RedisSubscription) Close() error {
	return s.pubsub.Close()
}
