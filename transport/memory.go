package transport

import (
	"context"
	"sync"

	"github.com/arloliu/baton/types"
)

// DropFilter decides whether a message published by from on topic is lost
// before reaching participant to. Returning true drops the message.
type DropFilter func(topic, from, to string, payload []byte) bool

// MemoryBus is an in-process broadcast bus.
//
// Each participant gets its own endpoint from Endpoint. Delivery is
// asynchronous: every subscription owns a buffered queue drained by its own
// goroutine, so a publish never runs handlers on the publisher's stack. A full
// queue drops the message, matching the at-most-once contract of real buses.
type MemoryBus struct {
	mu     sync.RWMutex
	subs   map[string]map[*memorySubscription]struct{}
	filter DropFilter
	buffer int
}

// MemoryOption configures a MemoryBus.
type MemoryOption func(*MemoryBus)

// WithBufferSize sets the per-subscription queue length (default 1024).
func WithBufferSize(n int) MemoryOption {
	return func(b *MemoryBus) {
		if n > 0 {
			b.buffer = n
		}
	}
}

// WithDropFilter installs a loss filter at construction time.
func WithDropFilter(f DropFilter) MemoryOption {
	return func(b *MemoryBus) {
		b.filter = f
	}
}

// NewMemoryBus creates an empty in-process bus.
func NewMemoryBus(opts ...MemoryOption) *MemoryBus {
	b := &MemoryBus{
		subs:   make(map[string]map[*memorySubscription]struct{}),
		buffer: 1024,
	}
	for _, opt := range opts {
		opt(b)
	}

	return b
}

// SetDropFilter replaces the loss filter. A nil filter delivers everything.
func (b *MemoryBus) SetDropFilter(f DropFilter) {
	b.mu.Lock()
	b.filter = f
	b.mu.Unlock()
}

// Endpoint returns the transport view of participantID.
//
// Subscriptions made through the endpoint are identified as participantID
// when the drop filter is consulted.
func (b *MemoryBus) Endpoint(participantID string) *MemoryEndpoint {
	return &MemoryEndpoint{bus: b, id: participantID}
}

// SubscriberCount returns the number of live subscriptions on topic.
func (b *MemoryBus) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.subs[topic])
}

type delivery struct {
	topic   string
	payload []byte
	sender  string
}

type memorySubscription struct {
	bus   *MemoryBus
	topic string
	owner string
	queue chan delivery
	done  chan struct{}
	once  sync.Once
}

func (s *memorySubscription) run(handler types.MessageHandler) {
	for {
		select {
		case <-s.done:
			return
		case d := <-s.queue:
			select {
			case <-s.done:
				return
			default:
			}
			handler(d.topic, d.payload, d.sender)
		}
	}
}

// Unsubscribe stops delivery. Queued messages are discarded.
func (s *memorySubscription) Unsubscribe() error {
	s.once.Do(func() {
		s.bus.mu.Lock()
		if subs, ok := s.bus.subs[s.topic]; ok {
			delete(subs, s)
			if len(subs) == 0 {
				delete(s.bus.subs, s.topic)
			}
		}
		s.bus.mu.Unlock()
		close(s.done)
	})

	return nil
}

// MemoryEndpoint is one participant's connection to a MemoryBus.
type MemoryEndpoint struct {
	bus *MemoryBus
	id  string
}

// Compile-time assertion that MemoryEndpoint implements Transport.
var _ types.Transport = (*MemoryEndpoint)(nil)

// ID returns the participant ID the endpoint was created for.
func (e *MemoryEndpoint) ID() string {
	return e.id
}

// Subscribe registers handler for topic.
func (e *MemoryEndpoint) Subscribe(topic string, handler types.MessageHandler) (types.Subscription, error) {
	sub := &memorySubscription{
		bus:   e.bus,
		topic: topic,
		owner: e.id,
		queue: make(chan delivery, e.bus.buffer),
		done:  make(chan struct{}),
	}

	e.bus.mu.Lock()
	if e.bus.subs[topic] == nil {
		e.bus.subs[topic] = make(map[*memorySubscription]struct{})
	}
	e.bus.subs[topic][sub] = struct{}{}
	e.bus.mu.Unlock()

	go sub.run(handler)

	return sub, nil
}

// Publish broadcasts payload to every subscription on topic, including the
// publisher's own.
func (e *MemoryEndpoint) Publish(ctx context.Context, topic string, senderID string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e.bus.mu.RLock()
	defer e.bus.mu.RUnlock()

	for sub := range e.bus.subs[topic] {
		if e.bus.filter != nil && e.bus.filter(topic, senderID, sub.owner, payload) {
			continue
		}

		d := delivery{topic: topic, payload: append([]byte(nil), payload...), sender: senderID}
		select {
		case sub.queue <- d:
		default:
		}
	}

	return nil
}
