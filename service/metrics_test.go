package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMetricsCounters(t *testing.T) {
	mc := NewMetricsCollector()

	mc.RecordVoteAccepted()
	mc.RecordVoteAccepted()
	mc.RecordVoteRejected()
	mc.RecordTick()
	mc.RecordLogInjected()
	mc.RecordSnapshot(true)
	mc.RecordSnapshot(false)

	m := mc.GetMetrics()
	require.Equal(t, 2, m.VotesAccepted)
	require.Equal(t, 1, m.VotesRejected)
	require.Equal(t, 1, m.TicksApplied)
	require.Equal(t, 1, m.LogsInjected)
	require.Equal(t, 1, m.SnapshotsSaved)
	require.Equal(t, 1, m.SnapshotsFailed)
}

func TestMetricsVotingPhaseTiming(t *testing.T) {
	mc := NewMetricsCollector()

	// End without start is a no-op.
	mc.EndVotingPhase()
	require.Zero(t, mc.GetMetrics().VotingPhaseMs)

	mc.StartVotingPhase()
	time.Sleep(5 * time.Millisecond)
	mc.EndVotingPhase()

	m := mc.GetMetrics()
	require.GreaterOrEqual(t, m.VotingPhaseMs, int64(5))
	require.False(t, m.VotingPhaseStartTime.IsZero())
	require.False(t, m.VotingPhaseEndTime.IsZero())
}

func TestMetricsTallyTiming(t *testing.T) {
	mc := NewMetricsCollector()

	mc.RecordTallyStart()
	time.Sleep(2 * time.Millisecond)
	mc.RecordTallyEnd()

	require.GreaterOrEqual(t, mc.GetMetrics().TallyProcessingMs, int64(2))
}
