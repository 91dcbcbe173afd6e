package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/baton/types"
)

func TestPrometheusCollector_LazyRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_ = NewPrometheus(reg, "")

	families, err := reg.Gather()
	require.NoError(t, err)
	require.Empty(t, families)
}

func TestPrometheusCollector_Election(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheus(reg, "test")

	p.RecordStateTransition("door", types.StateIdle, types.StateClaiming)
	p.RecordStateTransition("door", types.StateIdle, types.StateClaiming)
	p.RecordProposal("door", "claim")
	p.RecordProposal("door", "retry")
	p.RecordProposal("door", "retry")
	p.RecordHolderChange("door")
	p.RecordIgnoredRequest("door", "claim")
	p.RecordElection("door", 0.02)

	require.InDelta(t, 2, testutil.ToFloat64(p.stateTransitions.WithLabelValues("door", "Idle", "Claiming")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(p.proposals.WithLabelValues("door", "claim")), 0)
	require.InDelta(t, 2, testutil.ToFloat64(p.proposals.WithLabelValues("door", "retry")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(p.holderChanges.WithLabelValues("door")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(p.ignoredRequests.WithLabelValues("door", "claim")), 0)
	require.Equal(t, 1, testutil.CollectAndCount(p.electionLatency))
}

func TestPrometheusCollector_TransportAndPresence(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheus(reg, "test")

	p.RecordMessage("promise", "in")
	p.RecordDroppedMessage("unknown_op")
	p.RecordPublishError("release")
	p.RecordHeartbeat("p1", true)
	p.RecordHeartbeat("p1", false)
	p.RecordHeartbeat("p2", false)
	p.RecordActiveParticipants("door", 3)
	p.RecordActiveParticipants("door", 2)

	require.InDelta(t, 1, testutil.ToFloat64(p.messages.WithLabelValues("promise", "in")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(p.droppedMessages.WithLabelValues("unknown_op")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(p.publishErrors.WithLabelValues("release")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(p.heartbeats.WithLabelValues("success")), 0)
	require.InDelta(t, 2, testutil.ToFloat64(p.heartbeats.WithLabelValues("failure")), 0)
	require.InDelta(t, 2, testutil.ToFloat64(p.activeParticipants.WithLabelValues("door")), 0)

	families, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, families, 5)
}
