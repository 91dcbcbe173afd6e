package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/arloliu/baton/internal/logging"
	"github.com/arloliu/baton/types"
)

// redisEnvelope wraps a payload with its sender, since Redis Pub/Sub has no
// message headers.
type redisEnvelope struct {
	Sender  string `json:"sender"`
	Payload []byte `json:"payload"`
}

// Redis is a Transport over Redis Pub/Sub.
type Redis struct {
	client           redis.UniversalClient
	logger           types.Logger
	subscribeTimeout time.Duration
}

// Compile-time assertion that Redis implements Transport.
var _ types.Transport = (*Redis)(nil)

// RedisOption configures a Redis transport.
type RedisOption func(*Redis)

// WithRedisLogger sets the logger used for undecodable envelopes.
func WithRedisLogger(logger types.Logger) RedisOption {
	return func(r *Redis) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithSubscribeTimeout bounds how long Subscribe waits for the server to
// confirm a subscription (default 5s).
func WithSubscribeTimeout(d time.Duration) RedisOption {
	return func(r *Redis) {
		if d > 0 {
			r.subscribeTimeout = d
		}
	}
}

// NewRedis creates a Redis transport.
//
// Parameters:
//   - client: Redis client (single node, cluster or sentinel)
//   - opts: Optional logger and subscribe timeout
//
// Returns:
//   - *Redis: Transport instance
//   - error: ErrTransportRequired when client is nil
func NewRedis(client redis.UniversalClient, opts ...RedisOption) (*Redis, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: redis client is nil", types.ErrTransportRequired)
	}

	r := &Redis{
		client:           client,
		logger:           logging.NewNop(),
		subscribeTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}

	return r, nil
}

// Subscribe registers handler for topic and waits for the server to confirm.
func (r *Redis) Subscribe(topic string, handler types.MessageHandler) (types.Subscription, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.subscribeTimeout)
	defer cancel()

	ps := r.client.Subscribe(ctx, topic)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}

	sub := &redisSubscription{ps: ps}
	go sub.run(topic, handler, r.logger)

	return sub, nil
}

// Publish sends payload on topic wrapped in a sender envelope.
func (r *Redis) Publish(ctx context.Context, topic string, senderID string, payload []byte) error {
	data, err := json.Marshal(redisEnvelope{Sender: senderID, Payload: payload})
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}

	if err := r.client.Publish(ctx, topic, data).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}

	return nil
}

type redisSubscription struct {
	ps   *redis.PubSub
	once sync.Once
	err  error
}

func (s *redisSubscription) run(topic string, handler types.MessageHandler, logger types.Logger) {
	for msg := range s.ps.Channel() {
		var env redisEnvelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			logger.Warn("dropping malformed redis envelope", "topic", topic, "error", err)
			continue
		}
		handler(topic, env.Payload, env.Sender)
	}
}

// Unsubscribe closes the Pub/Sub connection. It does not wait for the
// delivery goroutine, so it is safe to call from inside the handler.
func (s *redisSubscription) Unsubscribe() error {
	s.once.Do(func() {
		s.err = s.ps.Close()
	})

	return s.err
}
