package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/arloliu/baton/types"
)

// PrometheusCollector implements types.MetricsCollector backed by Prometheus.
//
// Collectors are created and registered lazily on first use, so constructing a
// PrometheusCollector that is never used leaves the registry untouched.
//
// Baton keys are used as label values. Deployments with unbounded key sets
// should prefer a custom collector that aggregates keys.
type PrometheusCollector struct {
	reg       prometheus.Registerer
	namespace string
	once      sync.Once

	stateTransitions   *prometheus.CounterVec
	proposals          *prometheus.CounterVec
	electionLatency    *prometheus.HistogramVec
	holderChanges      *prometheus.CounterVec
	ignoredRequests    *prometheus.CounterVec
	messages           *prometheus.CounterVec
	droppedMessages    *prometheus.CounterVec
	publishErrors      *prometheus.CounterVec
	heartbeats         *prometheus.CounterVec
	activeParticipants *prometheus.GaugeVec
}

// Compile-time assertion that PrometheusCollector implements MetricsCollector.
var _ types.MetricsCollector = (*PrometheusCollector)(nil)

// NewPrometheus creates a new Prometheus-backed metrics collector.
//
// Parameters:
//   - reg: Prometheus registerer interface (uses prometheus.DefaultRegisterer if nil)
//   - namespace: Prometheus metrics namespace (defaults to "baton" if empty)
//
// Returns:
//   - *PrometheusCollector: A MetricsCollector implementation using Prometheus
func NewPrometheus(reg prometheus.Registerer, namespace string) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "baton"
	}

	return &PrometheusCollector{reg: reg, namespace: namespace}
}

func (p *PrometheusCollector) ensureRegistered() {
	p.once.Do(func() {
		p.stateTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "election",
			Name:      "state_transitions_total",
			Help:      "Coordinator state transitions by key and states.",
		}, []string{"key", "from", "to"})

		p.proposals = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "election",
			Name:      "proposals_total",
			Help:      "Proposal rounds started by key and reason (claim,retry,handoff,probe).",
		}, []string{"key", "reason"})

		p.electionLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "election",
			Name:      "claim_to_elected_seconds",
			Help:      "Time from a local claim to the local participant being elected.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms .. ~10s
		}, []string{"key"})

		p.holderChanges = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "election",
			Name:      "holder_changes_total",
			Help:      "Changes of the locally known holder by key.",
		}, []string{"key"})

		p.ignoredRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "election",
			Name:      "ignored_requests_total",
			Help:      "Claim or release calls ignored because of the coordinator state.",
		}, []string{"key", "operation"})

		p.messages = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "transport",
			Name:      "messages_total",
			Help:      "Protocol messages by op and direction (in,out).",
		}, []string{"op", "direction"})

		p.droppedMessages = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "transport",
			Name:      "dropped_messages_total",
			Help:      "Inbound messages discarded by reason (decode,unknown_op,stale).",
		}, []string{"reason"})

		p.publishErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "transport",
			Name:      "publish_errors_total",
			Help:      "Failed publishes by op.",
		}, []string{"op"})

		p.heartbeats = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "presence",
			Name:      "heartbeats_total",
			Help:      "Presence heartbeat publishes by result (success,failure).",
		}, []string{"result"})

		p.activeParticipants = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "presence",
			Name:      "active_participants",
			Help:      "Participant count used for the most recent quorum by key.",
		}, []string{"key"})

		p.reg.MustRegister(
			p.stateTransitions,
			p.proposals,
			p.electionLatency,
			p.holderChanges,
			p.ignoredRequests,
			p.messages,
			p.droppedMessages,
			p.publishErrors,
			p.heartbeats,
			p.activeParticipants,
		)
	})
}

// ElectionMetrics implementation

// RecordStateTransition increments the transition counter.
func (p *PrometheusCollector) RecordStateTransition(key string, from, to types.State) {
	p.ensureRegistered()
	p.stateTransitions.WithLabelValues(key, from.String(), to.String()).Inc()
}

// RecordProposal increments the proposal counter.
func (p *PrometheusCollector) RecordProposal(key string, reason string) {
	p.ensureRegistered()
	p.proposals.WithLabelValues(key, reason).Inc()
}

// RecordElection observes claim-to-elected latency in seconds.
func (p *PrometheusCollector) RecordElection(key string, duration float64) {
	p.ensureRegistered()
	p.electionLatency.WithLabelValues(key).Observe(duration)
}

// RecordHolderChange increments the holder change counter.
func (p *PrometheusCollector) RecordHolderChange(key string) {
	p.ensureRegistered()
	p.holderChanges.WithLabelValues(key).Inc()
}

// RecordIgnoredRequest increments the ignored request counter.
func (p *PrometheusCollector) RecordIgnoredRequest(key string, operation string) {
	p.ensureRegistered()
	p.ignoredRequests.WithLabelValues(key, operation).Inc()
}

// TransportMetrics implementation

// RecordMessage increments the message counter.
func (p *PrometheusCollector) RecordMessage(op string, direction string) {
	p.ensureRegistered()
	p.messages.WithLabelValues(op, direction).Inc()
}

// RecordDroppedMessage increments the dropped message counter.
func (p *PrometheusCollector) RecordDroppedMessage(reason string) {
	p.ensureRegistered()
	p.droppedMessages.WithLabelValues(reason).Inc()
}

// RecordPublishError increments the publish error counter.
func (p *PrometheusCollector) RecordPublishError(op string) {
	p.ensureRegistered()
	p.publishErrors.WithLabelValues(op).Inc()
}

// PresenceMetrics implementation

// RecordHeartbeat increments the heartbeat counter.
//
// The participant ID is not used as a label to keep cardinality bounded.
func (p *PrometheusCollector) RecordHeartbeat(_ /* participantID */ string, success bool) {
	p.ensureRegistered()
	result := "success"
	if !success {
		result = "failure"
	}
	p.heartbeats.WithLabelValues(result).Inc()
}

// RecordActiveParticipants sets the active participant gauge.
func (p *PrometheusCollector) RecordActiveParticipants(key string, count int) {
	p.ensureRegistered()
	p.activeParticipants.WithLabelValues(key).Set(float64(count))
}
