package presence

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/puzpuzpuz/xsync/v4"
	"github.com/zeebo/xxh3"

	"github.com/arloliu/baton/internal/heartbeat"
	"github.com/arloliu/baton/internal/logging"
	"github.com/arloliu/baton/internal/metrics"
	"github.com/arloliu/baton/types"
)

// KV is a presence directory backed by NATS JetStream KV heartbeats.
//
// Each (baton key, participant) membership is a KV key of the form
// "<xxh3(baton key)>.<participant token>". Joined memberships are re-put by a
// heartbeat publisher; the bucket TTL expires the memberships of crashed
// participants.
//
// Reads never touch the network. An in-memory snapshot is kept current by a
// KV watcher (fast path) and a periodic full scan (fallback, every TTL/2),
// which also notices TTL expiry that the watcher does not report.
type KV struct {
	kv       jetstream.KeyValue
	interval time.Duration
	ttl      time.Duration
	logger   types.Logger
	metrics  types.MetricsCollector

	publisher *heartbeat.Publisher

	// members maps a key token to an immutable set of participant tokens.
	members *xsync.Map[string, map[string]struct{}]
	// local holds the KV keys joined by this process.
	local *xsync.Map[string, struct{}]

	// updateMu serializes snapshot writes. While a scan is listing the
	// bucket, changed records the memberships the watcher or a local
	// Join/Leave touched, so the scan does not overwrite them.
	updateMu sync.Mutex
	scanning bool
	changed  map[string]struct{}
	// scanMu serializes full scans.
	scanMu sync.Mutex

	mu      sync.Mutex
	started bool
	stopped bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// Compile-time assertions that KV implements PresenceDirectory and Lifecycle.
var (
	_ types.PresenceDirectory = (*KV)(nil)
	_ types.Lifecycle         = (*KV)(nil)
)

// KVOption configures a KV directory.
type KVOption func(*KV)

// WithHeartbeat sets the heartbeat interval and the TTL the bucket was created with.
func WithHeartbeat(interval, ttl time.Duration) KVOption {
	return func(k *KV) {
		if interval > 0 {
			k.interval = interval
		}
		if ttl > 0 {
			k.ttl = ttl
		}
	}
}

// WithLogger sets the directory logger.
func WithLogger(logger types.Logger) KVOption {
	return func(k *KV) {
		if logger != nil {
			k.logger = logger
		}
	}
}

// WithMetrics sets the metrics collector used for heartbeats.
func WithMetrics(m types.MetricsCollector) KVOption {
	return func(k *KV) {
		if m != nil {
			k.metrics = m
		}
	}
}

// NewKV creates a KV presence directory.
//
// The bucket should have a TTL of about three heartbeat intervals
// (see kvutil.EnsureKVBucketWithRetry).
//
// Parameters:
//   - kv: JetStream KV bucket dedicated to presence
//   - opts: Optional heartbeat timing, logger and metrics
//
// Returns:
//   - *KV: Directory instance; call Start before use
func NewKV(kv jetstream.KeyValue, opts ...KVOption) *KV {
	k := &KV{
		kv:       kv,
		interval: 2 * time.Second,
		ttl:      6 * time.Second,
		logger:   logging.NewNop(),
		metrics:  metrics.NewNop(),
		members:  xsync.NewMap[string, map[string]struct{}](),
		local:    xsync.NewMap[string, struct{}](),
	}
	for _, opt := range opts {
		opt(k)
	}

	k.publisher = heartbeat.New(kv, k.interval,
		heartbeat.WithLogger(k.logger),
		heartbeat.WithMetrics(k.metrics),
	)

	return k
}

// Start begins heartbeating and snapshot maintenance. A stopped directory
// may be started again.
//
// Parameters:
//   - ctx: Context for cancellation of the background loops
//
// Returns:
//   - error: ErrPresenceAlreadyStarted, or heartbeat start error
func (k *KV) Start(ctx context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.started && !k.stopped {
		return types.ErrPresenceAlreadyStarted
	}
	if err := k.publisher.Start(ctx); err != nil {
		return fmt.Errorf("failed to start presence heartbeats: %w", err)
	}
	k.started, k.stopped = true, false
	k.stopCh = make(chan struct{})
	k.doneCh = make(chan struct{})

	if err := k.Refresh(ctx); err != nil {
		k.logger.Warn("initial presence scan failed", "error", err)
	}

	go k.monitor(ctx, k.stopCh, k.doneCh)

	return nil
}

// Stop halts the background loops and deletes every local membership.
//
// Returns:
//   - error: ErrPresenceNotStarted, or heartbeat cleanup error
func (k *KV) Stop() error {
	k.mu.Lock()
	if !k.started {
		k.mu.Unlock()
		return types.ErrPresenceNotStarted
	}
	if k.stopped {
		k.mu.Unlock()
		return nil
	}
	k.stopped = true
	stopCh, doneCh := k.stopCh, k.doneCh
	k.mu.Unlock()

	close(stopCh)
	<-doneCh

	// The publisher deletes the KV keys; forget them locally as well.
	k.local.Range(func(kvKey string, _ struct{}) bool {
		k.local.Delete(kvKey)
		k.apply(kvKey, false)

		return true
	})

	return k.publisher.Stop()
}

// ActiveCount returns the number of participants with a live heartbeat for key.
func (k *KV) ActiveCount(key string) int {
	set, _ := k.members.Load(KeyToken(key))

	return len(set)
}

// IsActive reports whether participantID has a live heartbeat for key.
func (k *KV) IsActive(key, participantID string) bool {
	set, _ := k.members.Load(KeyToken(key))
	_, ok := set[ParticipantToken(participantID)]

	return ok
}

// Join starts heartbeating participantID for key.
//
// The membership is visible locally right away, even if the first KV put
// fails; the heartbeat loop keeps retrying it.
func (k *KV) Join(ctx context.Context, key, participantID string) error {
	kvKey := MembershipKey(key, participantID)
	k.local.Store(kvKey, struct{}{})
	k.apply(kvKey, true)

	if err := k.publisher.Add(ctx, kvKey); err != nil {
		return fmt.Errorf("failed to announce presence for %s: %w", key, err)
	}

	return nil
}

// Leave stops heartbeating participantID for key and deletes its membership.
func (k *KV) Leave(ctx context.Context, key, participantID string) error {
	kvKey := MembershipKey(key, participantID)
	k.local.Delete(kvKey)
	k.apply(kvKey, false)

	if err := k.publisher.Remove(ctx, kvKey); err != nil {
		return fmt.Errorf("failed to withdraw presence for %s: %w", key, err)
	}

	return nil
}

// Refresh rebuilds the snapshot from a full scan of the bucket.
//
// Memberships that changed while the scan was listing keep their changed
// state: the listing may predate a delete or put seen by the watcher.
//
// Parameters:
//   - ctx: Context for the KV scan
//
// Returns:
//   - error: KV listing error; the previous snapshot is kept
func (k *KV) Refresh(ctx context.Context) error {
	k.scanMu.Lock()
	defer k.scanMu.Unlock()

	k.updateMu.Lock()
	k.scanning = true
	k.changed = make(map[string]struct{})
	k.updateMu.Unlock()

	keys, err := k.listKeys(ctx)

	k.updateMu.Lock()
	defer k.updateMu.Unlock()

	changed := k.changed
	k.scanning = false
	k.changed = nil
	if err != nil {
		return err
	}

	next := make(map[string]map[string]struct{})
	set := func(kvKey string, present bool) {
		keyTok, idTok, ok := strings.Cut(kvKey, ".")
		if !ok || keyTok == "" || idTok == "" {
			return
		}
		if !present {
			delete(next[keyTok], idTok)
			if len(next[keyTok]) == 0 {
				delete(next, keyTok)
			}

			return
		}
		if next[keyTok] == nil {
			next[keyTok] = make(map[string]struct{})
		}
		next[keyTok][idTok] = struct{}{}
	}
	for _, kvKey := range keys {
		set(kvKey, true)
	}
	k.local.Range(func(kvKey string, _ struct{}) bool {
		set(kvKey, true)
		return true
	})
	for kvKey := range changed {
		set(kvKey, k.inSnapshot(kvKey))
	}

	k.members.Range(func(keyTok string, _ map[string]struct{}) bool {
		if _, ok := next[keyTok]; !ok {
			k.members.Delete(keyTok)
		}

		return true
	})
	for keyTok, set := range next {
		k.members.Store(keyTok, set)
	}

	return nil
}

func (k *KV) listKeys(ctx context.Context) ([]string, error) {
	lister, err := k.kv.ListKeys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) || types.IsNoKeysFoundError(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to list presence keys: %w", err)
	}
	defer func() { _ = lister.Stop() }()

	var keys []string
	for key := range lister.Keys() {
		keys = append(keys, key)
	}

	return keys, nil
}

// inSnapshot reports whether kvKey is in the current snapshot. Must be
// called with updateMu held.
func (k *KV) inSnapshot(kvKey string) bool {
	keyTok, idTok, _ := strings.Cut(kvKey, ".")
	current, _ := k.members.Load(keyTok)
	_, ok := current[idTok]

	return ok
}

// apply updates one membership in the snapshot.
func (k *KV) apply(kvKey string, present bool) {
	keyTok, idTok, ok := strings.Cut(kvKey, ".")
	if !ok || keyTok == "" || idTok == "" {
		return
	}
	if !present {
		// Our own membership stays until Leave, whatever a stale event says.
		if _, local := k.local.Load(kvKey); local {
			return
		}
	}

	k.updateMu.Lock()
	defer k.updateMu.Unlock()

	if k.scanning {
		k.changed[kvKey] = struct{}{}
	}

	current, _ := k.members.Load(keyTok)
	_, has := current[idTok]
	if has == present {
		return
	}

	next := maps.Clone(current)
	if next == nil {
		next = make(map[string]struct{})
	}
	if present {
		next[idTok] = struct{}{}
	} else {
		delete(next, idTok)
	}

	if len(next) == 0 {
		k.members.Delete(keyTok)
	} else {
		k.members.Store(keyTok, next)
	}
}

// monitor runs the watcher and the polling fallback.
func (k *KV) monitor(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	var updates <-chan jetstream.KeyValueEntry
	watcher, err := k.kv.WatchAll(ctx)
	if err != nil {
		k.logger.Warn("presence watcher unavailable, polling only", "error", fmt.Errorf("%w: %w", types.ErrWatcherFailed, err))
	} else {
		defer func() { _ = watcher.Stop() }()
		updates = watcher.Updates()
	}

	poll := max(k.ttl/2, 10*time.Millisecond)
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case entry, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}
			if entry == nil {
				// Initial replay finished.
				continue
			}
			k.apply(entry.Key(), entry.Operation() == jetstream.KeyValuePut)
		case <-ticker.C:
			scanCtx, cancel := context.WithTimeout(ctx, poll)
			if err := k.Refresh(scanCtx); err != nil {
				k.logger.Warn("presence scan failed", "error", err)
			}
			cancel()
		}
	}
}

// MembershipKey returns the KV key for participantID's membership of key.
func MembershipKey(key, participantID string) string {
	return KeyToken(key) + "." + ParticipantToken(participantID)
}

// KeyToken returns the KV token for a baton key: its xxh3 hex digest.
func KeyToken(key string) string {
	return strconv.FormatUint(xxh3.HashString(key), 16)
}

// ParticipantToken returns the KV token for a participant ID.
//
// IDs made of [-_A-Za-z0-9] are used as is; anything else is replaced by
// "=" plus its xxh3 hex digest, which cannot collide with a plain ID.
func ParticipantToken(participantID string) string {
	if participantID != "" && isPlainToken(participantID) {
		return participantID
	}

	return "=" + strconv.FormatUint(xxh3.HashString(participantID), 16)
}

func isPlainToken(s string) bool {
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}

	return true
}
