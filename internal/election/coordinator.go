package election

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/arloliu/baton/internal/hooks"
	"github.com/arloliu/baton/internal/logging"
	"github.com/arloliu/baton/internal/metrics"
	"github.com/arloliu/baton/internal/protocol"
	"github.com/arloliu/baton/types"
)

// Callback is invoked with the baton key when the local participant is
// elected or stops holding the baton.
type Callback func(key string)

// claimRequest carries the callbacks of an outstanding claim. It exists only
// while the coordinator is Claiming or Holding.
type claimRequest struct {
	onElected  Callback
	onReleased Callback
	claimedAt  time.Time
}

// round is one proposal this participant started.
type round struct {
	proposal protocol.Proposal
	reason   string
	quorum   int
	votes    map[string]struct{}

	standing    protocol.Proposal
	hasStanding bool
	interested  string
	acceptSent  bool
}

// tallyEntry counts the distinct acceptors that reported one ballot.
type tallyEntry struct {
	record protocol.Proposal
	voters map[string]struct{}
}

// Snapshot is a point-in-time view of a coordinator's protocol state.
type Snapshot struct {
	State        types.State
	Holder       string
	LastProposal uint64
	HighestSeen  uint64
	Promised     protocol.Proposal
	Accepted     protocol.Proposal
	Chosen       protocol.Proposal
	Subscribed   bool
}

// Coordinator runs the local participant's side of the election for one key.
//
// All protocol fields are protected by mu. Handlers never perform I/O or run
// callbacks while holding mu; they queue work into an effects value that is
// flushed after unlocking. Election and release callbacks of one coordinator
// run one at a time, in the order they were decided.
type Coordinator struct {
	key       string
	selfID    string
	topic     string
	cfg       Config
	transport types.Transport
	presence  types.PresenceDirectory
	logger    types.Logger
	metrics   types.MetricsCollector
	hooks     types.Hooks

	// ctx is the lifecycle context used for publishes and hooks.
	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	state       types.State
	claim       *claimRequest
	claimGen    uint64
	started     bool
	closed      bool
	wantSub     bool
	best        protocol.Proposal
	accepted    protocol.Proposal
	chosen      protocol.Proposal
	holder      string
	lastOwn     uint64
	highestSeen uint64
	round       *round
	tally       map[protocol.Proposal]*tallyEntry
	handoffLeft int
	timer       *time.Timer
	timerGen    uint64
	probeStop   chan struct{}
	probeDone   chan struct{}

	// subMu serializes transport subscribe/unsubscribe and presence join/leave.
	subMu sync.Mutex
	sub   types.Subscription

	// cbMu guards the callback queue. Callbacks are queued under mu, so they
	// run in the order the state changes that produced them.
	cbMu      sync.Mutex
	cbQueue   []func()
	cbRunning bool
}

// Option configures optional Coordinator collaborators.
type Option func(*Coordinator)

// WithLogger sets the coordinator logger.
func WithLogger(logger types.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics sets the coordinator metrics collector.
func WithMetrics(m types.MetricsCollector) Option {
	return func(c *Coordinator) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithHooks sets the coordinator lifecycle hooks.
func WithHooks(h types.Hooks) Option {
	return func(c *Coordinator) {
		c.hooks = hooks.Fill(h)
	}
}

// New creates a coordinator for key.
//
// Parameters:
//   - key: Baton key (must be non-empty)
//   - selfID: Local participant ID (must be non-empty)
//   - cfg: Protocol tuning (zero fields take defaults)
//   - transport: Broadcast bus
//   - presence: Presence directory used for quorum sizing
//   - opts: Optional logger, metrics and hooks
//
// Returns:
//   - *Coordinator: New coordinator in Idle, not yet started
//   - error: Validation error
func New(
	key string,
	selfID string,
	cfg Config,
	transport types.Transport,
	presence types.PresenceDirectory,
	opts ...Option,
) (*Coordinator, error) {
	if key == "" {
		return nil, types.ErrEmptyKey
	}
	if selfID == "" {
		return nil, types.ErrInvalidParticipantID
	}
	if transport == nil {
		return nil, types.ErrTransportRequired
	}
	if presence == nil {
		return nil, fmt.Errorf("%w: presence directory is required", types.ErrInvalidConfig)
	}

	cfg.setDefaults()

	c := &Coordinator{
		key:       key,
		selfID:    selfID,
		topic:     protocol.Topic(cfg.Namespace, key),
		cfg:       cfg,
		transport: transport,
		presence:  presence,
		logger:    logging.NewNop(),
		metrics:   metrics.NewNop(),
		hooks:     hooks.NewNop(),
		state:     types.StateIdle,
		tally:     make(map[protocol.Proposal]*tallyEntry),
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Start binds the coordinator to its lifecycle context.
//
// In standing acceptor mode the coordinator subscribes to its topic and joins
// presence here. The liveness probe, if enabled, starts here too.
//
// Parameters:
//   - ctx: Lifecycle context; cancelling it stops hooks and publishes
//
// Returns:
//   - error: Subscribe error, or ErrAlreadyStarted
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return types.ErrCoordinatorClosed
	}
	if c.started {
		c.mu.Unlock()
		return types.ErrAlreadyStarted
	}
	c.started = true
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.wantSub = c.cfg.AcceptorMode == AcceptorStanding
	if c.cfg.LivenessProbeInterval > 0 {
		c.probeStop = make(chan struct{})
		c.probeDone = make(chan struct{})
		go c.runProbe(c.probeStop, c.probeDone)
	}
	c.mu.Unlock()

	return c.reconcileSubscription(ctx)
}

// Close stops the coordinator.
//
// A holding coordinator broadcasts a best-effort release and fires its
// release callback. The coordinator then unsubscribes and leaves presence.
// Close is idempotent.
//
// Parameters:
//   - ctx: Context bounding the final release publish and presence leave
//
// Returns:
//   - error: Unsubscribe or presence error
func (c *Coordinator) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.cancelWatchdog()

	var fx effects
	var cb Callback
	if c.state == types.StateHolding {
		cb = c.claim.onReleased
		c.sendReleaseNotice(&fx)
		if cb != nil && c.callbacksPending() {
			// The election callback has not finished; run after it.
			c.enqueueCallback(c.key, cb)
			cb = nil
		}
	}
	c.claim = nil
	c.round = nil
	c.wantSub = false
	c.setState(&fx, types.StateIdle)
	probeStop, probeDone := c.probeStop, c.probeDone
	c.probeStop = nil
	c.mu.Unlock()

	if probeStop != nil {
		close(probeStop)
		<-probeDone
	}

	c.flushSends(ctx, fx.sends)
	c.runHooks(fx.hooks)
	if cb != nil {
		cb(c.key)
	}

	err := c.reconcileSubscription(ctx)
	if c.cancel != nil {
		c.cancel()
	}

	return err
}

// Claim asks for the baton.
//
// onElected fires exactly once, asynchronously, when this participant is
// chosen. onReleased fires when the hold ends without an explicit Release
// callback (outvoted or Close). Calling Claim while a claim is already
// outstanding or held is a logged no-op.
//
// Parameters:
//   - onElected: Invoked once with the key when elected (may be nil)
//   - onReleased: Invoked when the hold ends (may be nil)
func (c *Coordinator) Claim(onElected, onReleased Callback) {
	c.mu.Lock()
	if c.closed || !c.started {
		closed := c.closed
		c.mu.Unlock()
		c.logger.Warn("ignoring claim on inactive baton", "key", c.key, "closed", closed)
		c.metrics.RecordIgnoredRequest(c.key, "claim")

		return
	}
	if c.state == types.StateClaiming || c.state == types.StateHolding {
		state := c.state
		c.mu.Unlock()
		c.logger.Warn("ignoring duplicate claim", "key", c.key, "state", state.String())
		c.metrics.RecordIgnoredRequest(c.key, "claim")

		return
	}

	var fx effects
	c.claim = &claimRequest{onElected: onElected, onReleased: onReleased, claimedAt: time.Now()}
	c.claimGen++
	c.handoffLeft = 0
	c.wantSub = true
	fx.reconcile = true
	c.setState(&fx, types.StateClaiming)
	c.propose(&fx, "claim")
	c.mu.Unlock()

	c.flush(&fx)
}

// Release gives up the baton or abandons a pending claim.
//
// While holding, the release notice is broadcast, the release callback runs,
// and the coordinator then hands the baton to an interested participant
// unless the callback claimed again. The release callback runs on the
// caller's goroutine when no earlier callback is outstanding; otherwise it is
// queued behind them (for example when Release is called from onElected). While claiming,
// the claim is abandoned: onElected will never fire and no callback runs.
// In any other state Release is a logged no-op.
//
// Parameters:
//   - onReleased: Overrides the claim's release callback when non-nil
func (c *Coordinator) Release(onReleased Callback) {
	c.mu.Lock()
	switch c.state {
	case types.StateHolding:
		var fx effects
		cb := c.claim.onReleased
		if onReleased != nil {
			cb = onReleased
		}
		c.sendReleaseNotice(&fx)
		c.claim = nil
		c.handoffLeft = 0
		c.setState(&fx, types.StateReleasing)
		gen := c.claimGen
		if c.callbacksPending() {
			// Earlier callbacks, such as this hold's onElected, are still
			// queued or running: release after them on the callback goroutine.
			c.queue(func() {
				if cb != nil {
					cb(c.key)
				}
				c.handoffAfterRelease(gen)
			})
			c.mu.Unlock()
			c.flush(&fx)

			return
		}
		c.mu.Unlock()

		c.flush(&fx)
		if cb != nil {
			cb(c.key)
		}
		c.handoffAfterRelease(gen)

	case types.StateClaiming:
		var fx effects
		c.claim = nil
		c.handoffLeft = 0
		c.setState(&fx, types.StateReleasing)
		// A round still in flight may elect us; the watchdog settles otherwise.
		c.armWatchdog()
		c.mu.Unlock()
		c.logger.Info("abandoned pending claim", "key", c.key)
		c.flush(&fx)

	default:
		state := c.state
		c.mu.Unlock()
		c.logger.Warn("ignoring release without holding", "key", c.key, "state", state.String())
		c.metrics.RecordIgnoredRequest(c.key, "release")
	}
}

// handoffAfterRelease hands the baton off once the release callback has run,
// unless the callback claimed again or the coordinator closed.
func (c *Coordinator) handoffAfterRelease(gen uint64) {
	c.mu.Lock()
	if c.closed || c.claimGen != gen || c.state != types.StateReleasing {
		c.mu.Unlock()
		return
	}
	var fx effects
	c.startHandoff(&fx)
	c.mu.Unlock()

	c.flush(&fx)
}

// Key returns the baton key.
func (c *Coordinator) Key() string {
	return c.key
}

// State returns the current coordinator state.
func (c *Coordinator) State() types.State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

// Holder returns the locally known holder, or "" when none is known.
func (c *Coordinator) Holder() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.holder
}

// Snapshot returns the current protocol state.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	snap := Snapshot{
		State:        c.state,
		Holder:       c.holder,
		LastProposal: c.lastOwn,
		HighestSeen:  c.highestSeen,
		Promised:     c.best,
		Accepted:     c.accepted,
		Chosen:       c.chosen,
	}
	c.mu.Unlock()

	c.subMu.Lock()
	snap.Subscribed = c.sub != nil
	c.subMu.Unlock()

	return snap
}

// setState moves to state to. Must be called with mu held.
func (c *Coordinator) setState(fx *effects, to types.State) {
	from := c.state
	if from == to {
		return
	}
	c.state = to
	c.metrics.RecordStateTransition(c.key, from, to)
	c.logger.Debug("baton state changed", "key", c.key, "from", from.String(), "to", to.String())

	key := c.key
	fx.hooks = append(fx.hooks, func(ctx context.Context) error {
		return c.hooks.OnStateChanged(ctx, key, from, to)
	})

	if to == types.StateIdle && c.cfg.AcceptorMode == AcceptorOnDemand && !c.closed {
		c.wantSub = false
		fx.reconcile = true
	}
}

// setHolder records the locally known holder. Must be called with mu held.
func (c *Coordinator) setHolder(fx *effects, holder string) {
	if c.holder == holder {
		return
	}
	c.holder = holder
	c.metrics.RecordHolderChange(c.key)

	key := c.key
	fx.hooks = append(fx.hooks, func(ctx context.Context) error {
		return c.hooks.OnHolderChanged(ctx, key, holder)
	})
}

// propose starts a new round. Must be called with mu held.
func (c *Coordinator) propose(fx *effects, reason string) {
	n := max(c.lastOwn, c.highestSeen, c.best.Number) + 1
	c.lastOwn = n

	active := c.presence.ActiveCount(c.key)
	c.round = &round{
		proposal: protocol.Proposal{Number: n, ProposerID: c.selfID},
		reason:   reason,
		quorum:   protocol.Quorum(active),
		votes:    make(map[string]struct{}),
	}
	if reason == "handoff" && c.handoffLeft > 0 {
		c.handoffLeft--
	}

	c.metrics.RecordProposal(c.key, reason)
	c.metrics.RecordActiveParticipants(c.key, active)
	c.logger.Debug("proposing", "key", c.key, "number", n, "reason", reason, "quorum", c.round.quorum)

	// A claim names its candidate; a hand-off leaves the winner to the promises.
	prepare := c.round.proposal.Ballot()
	if c.state == types.StateClaiming {
		prepare.Winner = c.selfID
	}
	fx.send(protocol.OpPrepare, prepare)
	c.armWatchdog()
}

// startHandoff begins handing the baton off as distinguished proposer.
// Must be called with mu held.
func (c *Coordinator) startHandoff(fx *effects) {
	c.handoffLeft = c.cfg.HandoffAttempts
	c.setState(fx, types.StateReleasing)
	c.propose(fx, "handoff")
}

// sendReleaseNotice broadcasts the record that elected this participant and
// forgets it locally. Must be called with mu held.
func (c *Coordinator) sendReleaseNotice(fx *effects) {
	record := c.chosen.Record()
	if record.Winner != c.selfID {
		record = protocol.Proposal{Number: c.accepted.Number, ProposerID: c.accepted.ProposerID, Winner: c.selfID}
	}
	fx.send(protocol.OpRelease, record)

	if c.accepted.Winner == c.selfID {
		c.accepted.Winner = ""
	}
	c.setHolder(fx, "")
}

// armWatchdog (re)starts the election timer. Must be called with mu held.
func (c *Coordinator) armWatchdog() {
	c.cancelWatchdog()
	if c.closed {
		return
	}

	gen := c.timerGen
	c.timer = time.AfterFunc(jittered(c.cfg.ElectionTimeout, c.cfg.TimeoutJitter), func() {
		c.onTimeout(gen)
	})
}

// cancelWatchdog stops the election timer. Must be called with mu held.
func (c *Coordinator) cancelWatchdog() {
	c.timerGen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Coordinator) onTimeout(gen uint64) {
	c.mu.Lock()
	if c.closed || gen != c.timerGen {
		c.mu.Unlock()
		return
	}
	c.timer = nil

	var fx effects
	switch c.state {
	case types.StateClaiming:
		c.logger.Debug("election timed out, retrying", "key", c.key, "number", c.lastOwn)
		c.propose(&fx, "retry")

	case types.StateReleasing:
		if c.handoffLeft > 0 {
			c.propose(&fx, "handoff")
		} else {
			c.round = nil
			c.logger.Debug("hand-off settled", "key", c.key)
			c.setState(&fx, types.StateIdle)
		}

	default:
		c.round = nil
	}
	c.mu.Unlock()

	c.flush(&fx)
}

// runProbe re-proposes for a claimant whose holder vanished from presence.
func (c *Coordinator) runProbe(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(c.cfg.LivenessProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.probe()
		}
	}
}

func (c *Coordinator) probe() {
	c.mu.Lock()
	if c.closed || c.state != types.StateClaiming || c.round != nil {
		c.mu.Unlock()
		return
	}

	var fx effects
	holder := c.holder
	if holder != "" && c.presence.IsActive(c.key, holder) {
		c.mu.Unlock()
		return
	}
	if holder != "" {
		c.logger.Info("holder left presence, re-electing", "key", c.key, "holder", holder)
		if c.accepted.Winner == holder {
			c.accepted.Winner = ""
		}
		c.setHolder(&fx, "")
	}
	c.propose(&fx, "probe")
	c.mu.Unlock()

	c.flush(&fx)
}
