package election

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/baton/internal/metrics"
	"github.com/arloliu/baton/internal/protocol"
	"github.com/arloliu/baton/presence"
	batontest "github.com/arloliu/baton/testing"
	"github.com/arloliu/baton/transport"
	"github.com/arloliu/baton/types"
)

func testConfig() Config {
	return Config{
		ElectionTimeout:  80 * time.Millisecond,
		TimeoutJitter:    0.5,
		HandoffAttempts:  2,
		Ordering:         protocol.OrderingStrict,
		OperationTimeout: time.Second,
	}
}

// group is a set of coordinators for one key on a shared in-process bus.
type group struct {
	bus    *transport.MemoryBus
	dir    *presence.Memory
	coords []*Coordinator
}

func newGroup(t *testing.T, n int, mutate func(*Config)) *group {
	t.Helper()

	g := &group{bus: transport.NewMemoryBus(), dir: presence.NewMemory()}
	for i := range n {
		cfg := testConfig()
		if mutate != nil {
			mutate(&cfg)
		}

		id := fmt.Sprintf("p%d", i+1)
		c, err := New("door", id, cfg, g.bus.Endpoint(id), g.dir)
		require.NoError(t, err)
		require.NoError(t, c.Start(t.Context()))
		g.coords = append(g.coords, c)
	}

	t.Cleanup(func() {
		for _, c := range g.coords {
			_ = c.Close(context.Background())
		}
	})

	return g
}

func (g *group) holding() []string {
	var ids []string
	for _, c := range g.coords {
		if c.State() == types.StateHolding {
			ids = append(ids, c.selfID)
		}
	}

	return ids
}

func waitState(t *testing.T, c *Coordinator, state types.State, timeout time.Duration) {
	t.Helper()

	require.Eventually(t, func() bool { return c.State() == state }, timeout, 5*time.Millisecond,
		"%s never reached %s (now %s)", c.selfID, state, c.State())
}

// isOp reports whether payload is a protocol message with op.
func isOp(payload []byte, op protocol.Op) (protocol.Proposal, bool) {
	msg, err := protocol.Decode(payload)
	if err != nil || msg.Op != op {
		return protocol.Proposal{}, false
	}

	return msg.Data, true
}

// proposalRecorder records proposal reasons.
type proposalRecorder struct {
	*metrics.NopMetrics

	mu      sync.Mutex
	reasons []string
}

func (r *proposalRecorder) RecordProposal(_ string, reason string) {
	r.mu.Lock()
	r.reasons = append(r.reasons, reason)
	r.mu.Unlock()
}

func (r *proposalRecorder) Reasons() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string(nil), r.reasons...)
}

func TestNew_Validation(t *testing.T) {
	bus := transport.NewMemoryBus()
	dir := presence.NewMemory()

	_, err := New("", "p1", testConfig(), bus.Endpoint("p1"), dir)
	require.ErrorIs(t, err, types.ErrEmptyKey)

	_, err = New("door", "", testConfig(), bus.Endpoint("p1"), dir)
	require.ErrorIs(t, err, types.ErrInvalidParticipantID)

	_, err = New("door", "p1", testConfig(), nil, dir)
	require.ErrorIs(t, err, types.ErrTransportRequired)

	_, err = New("door", "p1", testConfig(), bus.Endpoint("p1"), nil)
	require.ErrorIs(t, err, types.ErrInvalidConfig)

	c, err := New("door", "p1", Config{}, bus.Endpoint("p1"), dir)
	require.NoError(t, err)
	require.Equal(t, "virtualBaton:door", c.topic)
	require.Equal(t, types.StateIdle, c.State())
}

func TestCoordinator_Lifecycle(t *testing.T) {
	logger := batontest.NewRecordingLogger()
	bus := transport.NewMemoryBus()

	c, err := New("door", "p1", testConfig(), bus.Endpoint("p1"), presence.NewMemory(), WithLogger(logger))
	require.NoError(t, err)

	c.Claim(nil, nil)
	require.Equal(t, types.StateIdle, c.State())
	require.Equal(t, 1, logger.Count("WARN", "ignoring claim on inactive baton"))

	require.NoError(t, c.Start(t.Context()))
	require.ErrorIs(t, c.Start(t.Context()), types.ErrAlreadyStarted)
	require.Equal(t, 1, bus.SubscriberCount(c.topic))

	require.NoError(t, c.Close(t.Context()))
	require.NoError(t, c.Close(t.Context()))
	require.Zero(t, bus.SubscriberCount(c.topic))
	require.ErrorIs(t, c.Start(t.Context()), types.ErrCoordinatorClosed)

	c.Claim(nil, nil)
	require.Equal(t, 2, logger.Count("WARN", "ignoring claim on inactive baton"))
}

func TestCoordinator_SoleClaimantIsElected(t *testing.T) {
	g := newGroup(t, 1, nil)
	c := g.coords[0]

	elected := make(chan string, 2)
	c.Claim(func(key string) { elected <- key }, nil)

	select {
	case key := <-elected:
		require.Equal(t, "door", key)
	case <-time.After(2 * time.Second):
		t.Fatal("sole claimant was not elected")
	}
	require.Equal(t, types.StateHolding, c.State())
	require.Equal(t, "p1", c.Holder())

	time.Sleep(100 * time.Millisecond)
	require.Empty(t, elected, "onElected fires once")
}

var orderings = []protocol.Ordering{protocol.OrderingStrict, protocol.OrderingNumber}

func TestCoordinator_ConcurrentClaimsElectExactlyOne(t *testing.T) {
	for _, ordering := range orderings {
		t.Run(ordering.String(), func(t *testing.T) {
			g := newGroup(t, 5, func(cfg *Config) { cfg.Ordering = ordering })

			var elected atomic.Int32
			for _, c := range g.coords {
				c.Claim(func(string) { elected.Add(1) }, nil)
			}

			require.Eventually(t, func() bool { return len(g.holding()) == 1 }, 5*time.Second, 5*time.Millisecond)

			time.Sleep(300 * time.Millisecond)
			holders := g.holding()
			require.Len(t, holders, 1)
			require.Equal(t, int32(1), elected.Load())

			for _, c := range g.coords {
				require.Eventually(t, func() bool { return c.Holder() == holders[0] }, 2*time.Second, 5*time.Millisecond)
				if c.selfID != holders[0] {
					require.Equal(t, types.StateClaiming, c.State())
				}
			}
		})
	}
}

func TestCoordinator_ReleaseHandsOffToWaitingClaimant(t *testing.T) {
	g := newGroup(t, 3, nil)
	p1, p2, p3 := g.coords[0], g.coords[1], g.coords[2]

	p1.Claim(nil, nil)
	waitState(t, p1, types.StateHolding, 2*time.Second)

	elected := make(chan string, 1)
	p2.Claim(func(key string) { elected <- key }, nil)
	require.Eventually(t, func() bool { return p2.Holder() == "p1" }, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, types.StateClaiming, p2.State())

	var released atomic.Bool
	p1.Release(func(string) { released.Store(true) })
	require.True(t, released.Load())

	select {
	case <-elected:
	case <-time.After(3 * time.Second):
		t.Fatal("waiting claimant was not handed the baton")
	}
	waitState(t, p1, types.StateIdle, 2*time.Second)
	require.Equal(t, types.StateHolding, p2.State())
	require.Eventually(t, func() bool { return p3.Holder() == "p2" }, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, types.StateIdle, p3.State())
}

func TestCoordinator_ReleaseWithoutClaimantsSettlesIdle(t *testing.T) {
	g := newGroup(t, 3, nil)
	p1 := g.coords[0]

	p1.Claim(nil, nil)
	waitState(t, p1, types.StateHolding, 2*time.Second)

	p1.Release(nil)
	waitState(t, p1, types.StateIdle, 2*time.Second)

	for _, c := range g.coords {
		require.Eventually(t, func() bool { return c.Holder() == "" }, 2*time.Second, 5*time.Millisecond)
		require.Equal(t, types.StateIdle, c.State())
	}
}

func TestCoordinator_LostPrepareIsRetried(t *testing.T) {
	g := newGroup(t, 3, nil)
	p1 := g.coords[0]

	var dropped atomic.Int32
	g.bus.SetDropFilter(func(_, from, to string, payload []byte) bool {
		p, ok := isOp(payload, protocol.OpPrepare)
		if ok && from == "p1" && to != "p1" && p.Number == 1 {
			dropped.Add(1)
			return true
		}

		return false
	})

	p1.Claim(nil, nil)
	waitState(t, p1, types.StateHolding, 3*time.Second)

	require.Equal(t, int32(2), dropped.Load())
	require.GreaterOrEqual(t, p1.Snapshot().LastProposal, uint64(2))
}

func TestCoordinator_ProposalNumbersStrictlyIncrease(t *testing.T) {
	g := newGroup(t, 3, nil)
	p1 := g.coords[0]

	var mu sync.Mutex
	var numbers []uint64
	g.bus.SetDropFilter(func(_, from, to string, payload []byte) bool {
		p, ok := isOp(payload, protocol.OpPrepare)
		if !ok || from != "p1" {
			return false
		}
		mu.Lock()
		defer mu.Unlock()
		if to == "p1" {
			numbers = append(numbers, p.Number)
		}

		// Starve the first three rounds of votes.
		return to != "p1" && len(numbers) <= 3
	})

	p1.Claim(nil, nil)
	waitState(t, p1, types.StateHolding, 5*time.Second)

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(numbers), 4)
	for i := 1; i < len(numbers); i++ {
		require.Greater(t, numbers[i], numbers[i-1])
	}
}

func TestCoordinator_KeysAreIsolated(t *testing.T) {
	bus := transport.NewMemoryBus()
	dir := presence.NewMemory()

	open := func(key, id string) *Coordinator {
		c, err := New(key, id, testConfig(), bus.Endpoint(id), dir)
		require.NoError(t, err)
		require.NoError(t, c.Start(t.Context()))
		t.Cleanup(func() { _ = c.Close(context.Background()) })

		return c
	}
	door1, door2 := open("door", "p1"), open("door", "p2")
	gate1, gate2 := open("gate", "p1"), open("gate", "p2")

	door1.Claim(nil, nil)
	gate2.Claim(nil, nil)

	waitState(t, door1, types.StateHolding, 2*time.Second)
	waitState(t, gate2, types.StateHolding, 2*time.Second)
	require.Equal(t, "p1", door2.Holder())
	require.Equal(t, "p2", gate1.Holder())
	require.Equal(t, types.StateIdle, door2.State())
	require.Equal(t, types.StateIdle, gate1.State())
}

func TestCoordinator_DuplicateClaimIsIgnored(t *testing.T) {
	logger := batontest.NewRecordingLogger()
	bus := transport.NewMemoryBus()

	c, err := New("door", "p1", testConfig(), bus.Endpoint("p1"), presence.NewMemory(), WithLogger(logger))
	require.NoError(t, err)
	require.NoError(t, c.Start(t.Context()))
	t.Cleanup(func() { _ = c.Close(context.Background()) })

	var first, second atomic.Int32
	c.Claim(func(string) { first.Add(1) }, nil)
	c.Claim(func(string) { second.Add(1) }, nil)
	waitState(t, c, types.StateHolding, 2*time.Second)
	c.Claim(func(string) { second.Add(1) }, nil)

	require.Equal(t, 2, logger.Count("WARN", "ignoring duplicate claim"))
	require.Eventually(t, func() bool { return first.Load() == 1 }, time.Second, 5*time.Millisecond)
	require.Zero(t, second.Load())
}

func TestCoordinator_ReleaseWithoutHoldingIsIgnored(t *testing.T) {
	logger := batontest.NewRecordingLogger()
	bus := transport.NewMemoryBus()

	c, err := New("door", "p1", testConfig(), bus.Endpoint("p1"), presence.NewMemory(), WithLogger(logger))
	require.NoError(t, err)
	require.NoError(t, c.Start(t.Context()))
	t.Cleanup(func() { _ = c.Close(context.Background()) })

	var called atomic.Bool
	c.Release(func(string) { called.Store(true) })

	require.Equal(t, types.StateIdle, c.State())
	require.False(t, called.Load())
	require.Equal(t, 1, logger.Count("WARN", "ignoring release without holding"))
}

func TestCoordinator_ClaimInsideReleaseCallbackKeepsBaton(t *testing.T) {
	rec := &proposalRecorder{NopMetrics: metrics.NewNop()}
	bus := transport.NewMemoryBus()

	c, err := New("door", "p1", testConfig(), bus.Endpoint("p1"), presence.NewMemory(), WithMetrics(rec))
	require.NoError(t, err)
	require.NoError(t, c.Start(t.Context()))
	t.Cleanup(func() { _ = c.Close(context.Background()) })

	var elected atomic.Int32
	onElected := func(string) { elected.Add(1) }

	c.Claim(onElected, nil)
	waitState(t, c, types.StateHolding, 2*time.Second)

	c.Release(func(string) {
		c.Claim(onElected, nil)
	})

	waitState(t, c, types.StateHolding, 2*time.Second)
	require.Eventually(t, func() bool { return elected.Load() == 2 }, time.Second, 5*time.Millisecond)
	require.NotContains(t, rec.Reasons(), "handoff")
}

func TestCoordinator_AbandonedClaimIsNeverElected(t *testing.T) {
	g := newGroup(t, 2, nil)
	p1, p2 := g.coords[0], g.coords[1]

	p2.Claim(nil, nil)
	waitState(t, p2, types.StateHolding, 2*time.Second)

	var elected atomic.Bool
	p1.Claim(func(string) { elected.Store(true) }, nil)
	require.Eventually(t, func() bool { return p1.Holder() == "p2" }, 2*time.Second, 5*time.Millisecond)

	p1.Release(nil)
	require.Equal(t, types.StateReleasing, p1.State())
	waitState(t, p1, types.StateIdle, 2*time.Second)

	p2.Release(nil)
	waitState(t, p2, types.StateIdle, 2*time.Second)

	time.Sleep(200 * time.Millisecond)
	require.False(t, elected.Load())
	require.Equal(t, types.StateIdle, p1.State())
	require.Empty(t, p1.Holder())
}

func TestCoordinator_CloseReleasesHeldBaton(t *testing.T) {
	g := newGroup(t, 2, nil)
	p1, p2 := g.coords[0], g.coords[1]

	released := make(chan string, 1)
	p1.Claim(nil, func(key string) { released <- key })
	waitState(t, p1, types.StateHolding, 2*time.Second)

	p2.Claim(nil, nil)
	require.Eventually(t, func() bool { return p2.Holder() == "p1" }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, p1.Close(t.Context()))
	require.Len(t, released, 1, "release callback runs before Close returns")
	require.False(t, g.dir.IsActive("door", "p1"))

	waitState(t, p2, types.StateHolding, 3*time.Second)
}

func TestCoordinator_LivenessProbeReplacesVanishedHolder(t *testing.T) {
	g := newGroup(t, 3, func(cfg *Config) { cfg.LivenessProbeInterval = 40 * time.Millisecond })
	p1, p2 := g.coords[0], g.coords[1]

	p1.Claim(nil, nil)
	waitState(t, p1, types.StateHolding, 2*time.Second)

	p2.Claim(nil, nil)
	require.Eventually(t, func() bool { return p2.Holder() == "p1" }, 2*time.Second, 5*time.Millisecond)

	// p1 crashes: it stops talking and its heartbeat expires.
	g.bus.SetDropFilter(func(_, from, to string, _ []byte) bool {
		return from == "p1" || to == "p1"
	})
	g.dir.Evict("p1")

	waitState(t, p2, types.StateHolding, 3*time.Second)
	require.Equal(t, "p2", p2.Holder())
}

func TestCoordinator_WithoutProbeWaitsForHolder(t *testing.T) {
	g := newGroup(t, 3, nil)
	p1, p2 := g.coords[0], g.coords[1]

	p1.Claim(nil, nil)
	waitState(t, p1, types.StateHolding, 2*time.Second)
	p2.Claim(nil, nil)
	require.Eventually(t, func() bool { return p2.Holder() == "p1" }, 2*time.Second, 5*time.Millisecond)

	g.dir.Evict("p1")
	time.Sleep(300 * time.Millisecond)
	require.Equal(t, types.StateClaiming, p2.State())
}

func TestCoordinator_OnDemandSubscribesOnlyWhileInterested(t *testing.T) {
	g := newGroup(t, 1, func(cfg *Config) { cfg.AcceptorMode = AcceptorOnDemand })
	c := g.coords[0]

	require.Zero(t, g.bus.SubscriberCount(c.topic))
	require.False(t, g.dir.IsActive("door", "p1"))

	c.Claim(nil, nil)
	require.Equal(t, 1, g.bus.SubscriberCount(c.topic))
	require.True(t, g.dir.IsActive("door", "p1"))
	waitState(t, c, types.StateHolding, 2*time.Second)

	c.Release(nil)
	waitState(t, c, types.StateIdle, 2*time.Second)
	require.Eventually(t, func() bool {
		return g.bus.SubscriberCount(c.topic) == 0 && !g.dir.IsActive("door", "p1")
	}, 2*time.Second, 5*time.Millisecond)
	require.False(t, c.Snapshot().Subscribed)

	// A new claim subscribes again.
	c.Claim(nil, nil)
	waitState(t, c, types.StateHolding, 2*time.Second)
	require.Equal(t, 1, g.bus.SubscriberCount(c.topic))
}

func TestCoordinator_MessageLossNeverElectsTwo(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping randomized loss test in short mode")
	}

	for _, ordering := range orderings {
		t.Run(ordering.String(), func(t *testing.T) {
			g := newGroup(t, 5, func(cfg *Config) { cfg.Ordering = ordering })
			g.bus.SetDropFilter(func(_, _, _ string, _ []byte) bool {
				return rand.Float64() < 0.2 //nolint:gosec // loss injection
			})

			var mu sync.Mutex
			winners := make(map[string]struct{})
			for _, c := range g.coords {
				id := c.selfID
				c.Claim(func(string) {
					mu.Lock()
					winners[id] = struct{}{}
					mu.Unlock()
				}, nil)
			}

			require.Eventually(t, func() bool { return len(g.holding()) == 1 }, 10*time.Second, 10*time.Millisecond)

			deadline := time.Now().Add(500 * time.Millisecond)
			for time.Now().Before(deadline) {
				require.LessOrEqual(t, len(g.holding()), 1)
				time.Sleep(5 * time.Millisecond)
			}

			mu.Lock()
			defer mu.Unlock()
			require.Len(t, winners, 1)
		})
	}
}

func TestCoordinator_TwoClaimantsElectOne(t *testing.T) {
	g := newGroup(t, 2, nil)
	p1, p2 := g.coords[0], g.coords[1]

	var elected1, elected2 atomic.Int32
	p1.Claim(func(string) { elected1.Add(1) }, nil)
	p2.Claim(func(string) { elected2.Add(1) }, nil)

	require.Eventually(t, func() bool { return len(g.holding()) == 1 }, 5*time.Second, 5*time.Millisecond)
	time.Sleep(200 * time.Millisecond)

	require.Equal(t, int32(1), elected1.Load()+elected2.Load())
	holder := g.holding()[0]
	require.Eventually(t, func() bool {
		return p1.Holder() == holder && p2.Holder() == holder
	}, 2*time.Second, 5*time.Millisecond)
}

func TestCoordinator_LoneAcceptorMissesFirstPrepare(t *testing.T) {
	g := newGroup(t, 2, nil)
	p1 := g.coords[0]

	var once atomic.Bool
	g.bus.SetDropFilter(func(_, from, to string, payload []byte) bool {
		_, ok := isOp(payload, protocol.OpPrepare)
		return ok && from == "p1" && to == "p2" && once.CompareAndSwap(false, true)
	})

	elected := make(chan struct{})
	p1.Claim(func(string) { close(elected) }, nil)

	time.Sleep(40 * time.Millisecond)
	require.Equal(t, types.StateClaiming, p1.State(), "no quorum without the lone acceptor")
	require.Equal(t, uint64(1), p1.Snapshot().LastProposal)

	select {
	case <-elected:
	case <-time.After(2 * time.Second):
		t.Fatal("retry after the election timeout did not elect p1")
	}
	require.Equal(t, uint64(2), p1.Snapshot().LastProposal)
}

func TestCoordinator_ReleaseRunsAfterElectionCallback(t *testing.T) {
	g := newGroup(t, 1, nil)
	c := g.coords[0]

	var mu sync.Mutex
	var events []string
	record := func(event string) {
		mu.Lock()
		events = append(events, event)
		mu.Unlock()
	}
	recorded := func() []string {
		mu.Lock()
		defer mu.Unlock()

		return slices.Clone(events)
	}

	entered := make(chan struct{})
	unblock := make(chan struct{})
	c.Claim(func(string) {
		close(entered)
		<-unblock
		record("elected")
	}, nil)

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("sole claimant was not elected")
	}
	require.Equal(t, types.StateHolding, c.State())

	c.Release(func(string) { record("released") })
	require.Empty(t, recorded(), "release callback must wait for onElected")

	close(unblock)
	require.Eventually(t, func() bool { return len(recorded()) == 2 }, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, []string{"elected", "released"}, recorded())
	waitState(t, c, types.StateIdle, 2*time.Second)
}

func TestCoordinator_ReleaseFromElectionCallback(t *testing.T) {
	g := newGroup(t, 2, nil)
	p1, p2 := g.coords[0], g.coords[1]

	released := make(chan struct{})
	p1.Claim(func(string) {
		p1.Release(func(string) { close(released) })
	}, nil)

	select {
	case <-released:
	case <-time.After(3 * time.Second):
		t.Fatal("release from inside onElected never completed")
	}
	waitState(t, p1, types.StateIdle, 2*time.Second)
	require.Eventually(t, func() bool { return p2.Holder() == "" }, 2*time.Second, 5*time.Millisecond)
}
