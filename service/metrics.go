package service

import (
	"sync"
	"time"
)

// MetricsCollector tracks operational counters and phase timings for the
// running election.
type MetricsCollector struct {
	mu sync.RWMutex

	votesAccepted int
	votesRejected int

	ticksApplied int
	logsInjected int

	snapshotsSaved  int
	snapshotsFailed int

	votingPhaseStarted   bool
	votingPhaseStartTime time.Time
	votingPhaseEndTime   time.Time
	votingPhaseDuration  time.Duration

	tallyStartTime      time.Time
	tallyEndTime        time.Time
	tallyProcessingTime time.Duration
}

// MetricsResponse is the read-out served by the metrics endpoint.
type MetricsResponse struct {
	VotesAccepted   int `json:"votes_accepted"`
	VotesRejected   int `json:"votes_rejected"`
	TicksApplied    int `json:"ticks_applied"`
	LogsInjected    int `json:"logs_injected"`
	SnapshotsSaved  int `json:"snapshots_saved"`
	SnapshotsFailed int `json:"snapshots_failed"`

	VotingPhaseStartTime time.Time `json:"voting_phase_start_time,omitempty"`
	VotingPhaseEndTime   time.Time `json:"voting_phase_end_time,omitempty"`
	VotingPhaseMs        int64     `json:"voting_phase_ms"`
	TallyProcessingMs    int64     `json:"tally_processing_ms"`
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{}
}

func (mc *MetricsCollector) StartVotingPhase() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.votingPhaseStarted = true
	mc.votingPhaseStartTime = time.Now()
}

func (mc *MetricsCollector) EndVotingPhase() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if mc.votingPhaseStarted {
		mc.votingPhaseEndTime = time.Now()
		mc.votingPhaseDuration = mc.votingPhaseEndTime.Sub(mc.votingPhaseStartTime)
	}
}

func (mc *MetricsCollector) RecordVoteAccepted() {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.votesAccepted++
}

func (mc *MetricsCollector) RecordVoteRejected() {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.votesRejected++
}

func (mc *MetricsCollector) RecordTick() {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.ticksApplied++
}

func (mc *MetricsCollector) RecordLogInjected() {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.logsInjected++
}

func (mc *MetricsCollector) RecordSnapshot(ok bool) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	if ok {
		mc.snapshotsSaved++
	} else {
		mc.snapshotsFailed++
	}
}

// RecordTallyStart marks the start of a tally operation
func (mc *MetricsCollector) RecordTallyStart() {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.tallyStartTime = time.Now()
}

// RecordTallyEnd marks the end of a tally operation
func (mc *MetricsCollector) RecordTallyEnd() {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.tallyEndTime = time.Now()
	mc.tallyProcessingTime = mc.tallyEndTime.Sub(mc.tallyStartTime)
}

// GetMetrics returns current counters and timings
func (mc *MetricsCollector) GetMetrics() MetricsResponse {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	return MetricsResponse{
		VotesAccepted:        mc.votesAccepted,
		VotesRejected:        mc.votesRejected,
		TicksApplied:         mc.ticksApplied,
		LogsInjected:         mc.logsInjected,
		SnapshotsSaved:       mc.snapshotsSaved,
		SnapshotsFailed:      mc.snapshotsFailed,
		VotingPhaseStartTime: mc.votingPhaseStartTime,
		VotingPhaseEndTime:   mc.votingPhaseEndTime,
		VotingPhaseMs:        mc.votingPhaseDuration.Milliseconds(),
		TallyProcessingMs:    mc.tallyProcessingTime.Milliseconds(),
	}
}
