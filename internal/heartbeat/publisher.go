package heartbeat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/puzpuzpuz/xsync/v4"

	"github.com/arloliu/baton/internal/logging"
	"github.com/arloliu/baton/internal/metrics"
	"github.com/arloliu/baton/types"
)

// Common errors for heartbeat operations.
var (
	ErrNotStarted     = errors.New("publisher not started")
	ErrAlreadyStarted = errors.New("publisher already started")
	ErrEmptyKey       = errors.New("heartbeat key is empty")
)

// Publisher keeps a set of KV keys alive by re-putting them periodically.
//
// Each presence membership (baton key, participant) owns one KV key. The
// bucket TTL expires keys whose owner stopped publishing, so a crashed
// participant disappears from presence after roughly one TTL.
type Publisher struct {
	kv       jetstream.KeyValue
	ownerID  string
	interval time.Duration
	timeout  time.Duration
	metrics  types.MetricsCollector
	logger   types.Logger

	keys *xsync.Map[string, struct{}]

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithMetrics sets the metrics collector for heartbeat events.
func WithMetrics(m types.MetricsCollector) Option {
	return func(p *Publisher) {
		if m != nil {
			p.metrics = m
		}
	}
}

// WithLogger sets the publisher logger.
func WithLogger(logger types.Logger) Option {
	return func(p *Publisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithOwnerID sets the ID reported with heartbeat metrics.
func WithOwnerID(id string) Option {
	return func(p *Publisher) {
		p.ownerID = id
	}
}

// New creates a new heartbeat publisher.
//
// The KV bucket should be configured with a TTL of ~3x the heartbeat interval
// so a key survives two missed heartbeats.
//
// Parameters:
//   - kv: JetStream KV bucket for presence keys
//   - interval: Heartbeat interval (typically 2s)
//   - opts: Optional metrics, logger and owner ID
//
// Returns:
//   - *Publisher: New heartbeat publisher instance
//
// Example:
//
//	kv, _ := js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
//	    Bucket: "baton-presence",
//	    TTL:    6 * time.Second, // 3x interval
//	})
//	publisher := heartbeat.New(kv, 2*time.Second)
func New(kv jetstream.KeyValue, interval time.Duration, opts ...Option) *Publisher {
	p := &Publisher{
		kv:       kv,
		interval: interval,
		timeout:  5 * time.Second,
		metrics:  metrics.NewNop(),
		logger:   logging.NewNop(),
		keys:     xsync.NewMap[string, struct{}](),
	}
	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Add starts keeping key alive and publishes it immediately.
//
// Parameters:
//   - ctx: Context for the initial put
//   - key: KV key to keep alive
//
// Returns:
//   - error: Initial put error; the key stays registered and is retried on the next tick
func (p *Publisher) Add(ctx context.Context, key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	p.keys.Store(key, struct{}{})

	err := p.put(ctx, key)
	p.recordMetric(err == nil)

	return err
}

// Remove stops keeping key alive and deletes it from KV.
//
// Parameters:
//   - ctx: Context for the delete
//   - key: KV key to drop
//
// Returns:
//   - error: Delete error (the key then expires via TTL)
func (p *Publisher) Remove(ctx context.Context, key string) error {
	if _, ok := p.keys.LoadAndDelete(key); !ok {
		return nil
	}

	if err := p.kv.Delete(ctx, key); err != nil {
		return fmt.Errorf("failed to delete heartbeat %s: %w", key, err)
	}

	return nil
}

// Keys returns the number of keys currently kept alive.
func (p *Publisher) Keys() int {
	return p.keys.Size()
}

// Start begins re-publishing all registered keys in the background.
//
// A stopped publisher may be started again.
//
// Parameters:
//   - ctx: Context for cancellation
//
// Returns:
//   - error: ErrAlreadyStarted if already running
func (p *Publisher) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return ErrAlreadyStarted
	}
	p.started = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})

	go p.publishLoop(ctx, p.stopCh, p.doneCh)

	return nil
}

// Stop stops the publisher and deletes every registered key.
//
// Blocks until the publisher goroutine exits. Keys are deleted so other
// participants see the departure immediately instead of after the TTL.
//
// Returns:
//   - error: ErrNotStarted if not running, or joined delete errors
func (p *Publisher) Stop() error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return ErrNotStarted
	}
	close(p.stopCh)
	p.started = false
	doneCh := p.doneCh
	p.mu.Unlock()

	<-doneCh

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	var errs []error
	p.keys.Range(func(key string, _ struct{}) bool {
		if err := p.kv.Delete(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("failed to delete heartbeat %s: %w", key, err))
		}
		p.keys.Delete(key)

		return true
	})

	return errors.Join(errs...)
}

// IsStarted returns whether the publisher is currently running.
func (p *Publisher) IsStarted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.started
}

func (p *Publisher) publishLoop(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.publishAll(ctx)
		}
	}
}

func (p *Publisher) publishAll(ctx context.Context) {
	p.keys.Range(func(key string, _ struct{}) bool {
		putCtx, cancel := context.WithTimeout(ctx, p.timeout)
		err := p.put(putCtx, key)
		cancel()

		if err != nil {
			p.logger.Warn("heartbeat publish failed", "key", key, "error", err)
		}
		p.recordMetric(err == nil)

		return true
	})
}

func (p *Publisher) put(ctx context.Context, key string) error {
	value := []byte(time.Now().Format(time.RFC3339Nano))
	if _, err := p.kv.Put(ctx, key, value); err != nil {
		return fmt.Errorf("failed to publish heartbeat %s: %w", key, err)
	}

	return nil
}

func (p *Publisher) recordMetric(success bool) {
	p.metrics.RecordHeartbeat(p.ownerID, success)
}
