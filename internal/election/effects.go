package election

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/arloliu/baton/internal/protocol"
	"github.com/arloliu/baton/types"
)

// effects collects the work a locked handler decided on. It is flushed after
// the coordinator mutex is released.
type effects struct {
	sends     []protocol.Message
	hooks     []func(ctx context.Context) error
	reconcile bool
}

func (fx *effects) send(op protocol.Op, data protocol.Proposal) {
	fx.sends = append(fx.sends, protocol.Message{Op: op, Data: data})
}

// flush performs queued work in order: subscription changes that add
// interest, outbound messages, hooks, then subscription changes that drop
// interest. Callbacks do not go through effects; see enqueueCallback.
func (c *Coordinator) flush(fx *effects) {
	ctx := c.lifecycleContext()

	c.mu.Lock()
	subscribing := c.wantSub
	c.mu.Unlock()

	if fx.reconcile && subscribing {
		c.applySubscription(ctx)
	}
	c.flushSends(ctx, fx.sends)
	c.runHooks(fx.hooks)
	if fx.reconcile && !subscribing {
		c.applySubscription(ctx)
	}
}

// enqueueCallback schedules cb(key) behind every earlier callback. Must be
// called with mu held.
func (c *Coordinator) enqueueCallback(key string, cb Callback) {
	c.queue(func() { cb(key) })
}

// queue appends fn to the callback queue and starts the runner if idle.
// Must be called with mu held.
func (c *Coordinator) queue(fn func()) {
	c.cbMu.Lock()
	c.cbQueue = append(c.cbQueue, fn)
	start := !c.cbRunning
	c.cbRunning = true
	c.cbMu.Unlock()

	if start {
		go c.runCallbacks()
	}
}

// callbacksPending reports whether a callback is queued or running.
func (c *Coordinator) callbacksPending() bool {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()

	return c.cbRunning
}

// runCallbacks drains the callback queue, one callback at a time. It exits
// when the queue is empty; the next queue call starts a new runner.
func (c *Coordinator) runCallbacks() {
	for {
		c.cbMu.Lock()
		if len(c.cbQueue) == 0 {
			c.cbRunning = false
			c.cbMu.Unlock()

			return
		}
		fn := c.cbQueue[0]
		c.cbQueue[0] = nil
		c.cbQueue = c.cbQueue[1:]
		c.cbMu.Unlock()

		fn()
	}
}

func (c *Coordinator) applySubscription(ctx context.Context) {
	if err := c.reconcileSubscription(ctx); err != nil {
		c.logger.Error("failed to update baton subscription", "key", c.key, "error", err)
		c.reportError(err)
	}
}

func (c *Coordinator) lifecycleContext() context.Context {
	if c.ctx != nil {
		return c.ctx
	}

	return context.Background()
}

func (c *Coordinator) flushSends(ctx context.Context, msgs []protocol.Message) {
	for _, msg := range msgs {
		payload, err := protocol.Encode(msg)
		if err != nil {
			c.logger.Error("failed to encode message", "key", c.key, "op", string(msg.Op), "error", err)
			continue
		}

		pubCtx, cancel := context.WithTimeout(ctx, c.cfg.OperationTimeout)
		err = c.transport.Publish(pubCtx, c.topic, c.selfID, payload)
		cancel()
		if err != nil {
			c.metrics.RecordPublishError(string(msg.Op))
			c.logger.Warn("failed to publish message", "key", c.key, "op", string(msg.Op), "error", err)
			c.reportError(fmt.Errorf("%w: %s: %w", types.ErrPublishFailed, msg.Op, err))

			continue
		}
		c.metrics.RecordMessage(string(msg.Op), "out")
	}
}

func (c *Coordinator) runHooks(fns []func(ctx context.Context) error) {
	if len(fns) == 0 {
		return
	}

	ctx := c.lifecycleContext()
	go func() {
		for _, fn := range fns {
			if err := fn(ctx); err != nil {
				c.logger.Warn("hook failed", "key", c.key, "error", err)
			}
		}
	}()
}

func (c *Coordinator) reportError(err error) {
	ctx := c.lifecycleContext()
	go func() {
		if hookErr := c.hooks.OnError(ctx, err); hookErr != nil {
			c.logger.Warn("error hook failed", "key", c.key, "error", hookErr)
		}
	}()
}

// reconcileSubscription subscribes or unsubscribes to match wantSub.
func (c *Coordinator) reconcileSubscription(ctx context.Context) error {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	c.mu.Lock()
	want := c.wantSub
	c.mu.Unlock()

	switch {
	case want && c.sub == nil:
		sub, err := c.transport.Subscribe(c.topic, c.handle)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", types.ErrSubscribeFailed, c.topic, err)
		}
		c.sub = sub

		if err := c.presence.Join(ctx, c.key, c.selfID); err != nil {
			return fmt.Errorf("failed to join presence for %s: %w", c.key, err)
		}
		c.logger.Debug("subscribed to baton", "key", c.key, "topic", c.topic)

	case !want && c.sub != nil:
		errUnsub := c.sub.Unsubscribe()
		c.sub = nil
		errLeave := c.presence.Leave(ctx, c.key, c.selfID)
		c.logger.Debug("unsubscribed from baton", "key", c.key, "topic", c.topic)

		if err := errors.Join(errUnsub, errLeave); err != nil {
			return fmt.Errorf("failed to leave baton %s: %w", c.key, err)
		}
	}

	return nil
}

// jittered returns base * (1 + rand[0, jitter)).
func jittered(base time.Duration, jitter float64) time.Duration {
	if jitter <= 0 {
		return base
	}

	return base + time.Duration(float64(base)*jitter*rand.Float64()) //nolint:gosec // timing jitter, not security
}
