// Package metrics provides types.MetricsCollector implementations.
package metrics

import "github.com/arloliu/baton/types"

// NopMetrics implements a no-op metrics collector.
//
// All metrics are discarded. Used as the default when no collector is configured.
type NopMetrics struct{}

// Compile-time assertion that NopMetrics implements MetricsCollector.
var _ types.MetricsCollector = (*NopMetrics)(nil)

// NewNop creates a new no-op metrics collector.
//
// Returns:
//   - *NopMetrics: A new no-op metrics collector instance
//
// Example:
//
//	mgr, err := baton.NewManager(&cfg, transport, baton.WithPresence(dir), baton.WithMetrics(metrics.NewNop()))
func NewNop() *NopMetrics {
	return &NopMetrics{}
}

// ElectionMetrics implementation

// RecordStateTransition discards the state transition metric.
func (n *NopMetrics) RecordStateTransition(_ /* key */ string, _ /* from */, _ /* to */ types.State) {}

// RecordProposal discards the proposal metric.
func (n *NopMetrics) RecordProposal(_ /* key */, _ /* reason */ string) {}

// RecordElection discards the election latency metric.
func (n *NopMetrics) RecordElection(_ /* key */ string, _ /* duration */ float64) {}

// RecordHolderChange discards the holder change metric.
func (n *NopMetrics) RecordHolderChange(_ /* key */ string) {}

// RecordIgnoredRequest discards the ignored request metric.
func (n *NopMetrics) RecordIgnoredRequest(_ /* key */, _ /* operation */ string) {}

// TransportMetrics implementation

// RecordMessage discards the message metric.
func (n *NopMetrics) RecordMessage(_ /* op */, _ /* direction */ string) {}

// RecordDroppedMessage discards the dropped message metric.
func (n *NopMetrics) RecordDroppedMessage(_ /* reason */ string) {}

// RecordPublishError discards the publish error metric.
func (n *NopMetrics) RecordPublishError(_ /* op */ string) {}

// PresenceMetrics implementation

// RecordHeartbeat discards the heartbeat metric.
func (n *NopMetrics) RecordHeartbeat(_ /* participantID */ string, _ /* success */ bool) {}

// RecordActiveParticipants discards the active participants metric.
func (n *NopMetrics) RecordActiveParticipants(_ /* key */ string, _ /* count */ int) {}
