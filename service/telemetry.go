package service

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"election-backend/models"
)

// TelemetryConfig tunes the booth health simulation.
type TelemetryConfig struct {
	TickInterval       time.Duration
	OfflineProbability float64
	LogProbability     float64
	MaxBatteryDrain    int
	Seed               int64
}

// DefaultTelemetryConfig returns the production simulation parameters: a
// tick every 2 time units, a 0.5% chance per booth of dropping offline for
// one tick, and a 1% chance per tick of injecting one security log entry.
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		TickInterval:       2 * time.Second,
		OfflineProbability: 0.005,
		LogProbability:     0.01,
		MaxBatteryDrain:    3,
	}
}

// TelemetrySimulator periodically mutates booth health while the election
// is ACTIVE. It is an explicit task owned by the ElectionService, never a
// free-floating timer: the controller starts it on ACTIVE-entry and cancels
// it synchronously on any transition away. Every tick is applied through
// the controller's serialized mutation path.
type TelemetrySimulator struct {
	svc         *ElectionService
	interval    time.Duration
	offlineProb float64
	logProb     float64
	maxDrain    int
	rng         *rand.Rand

	ctlMu   sync.Mutex
	started *atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}

	logger *zap.Logger
}

func newTelemetrySimulator(svc *ElectionService, cfg TelemetryConfig, logger *zap.Logger) *TelemetrySimulator {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 2 * time.Second
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	return &TelemetrySimulator{
		svc:         svc,
		interval:    cfg.TickInterval,
		offlineProb: cfg.OfflineProbability,
		logProb:     cfg.LogProbability,
		maxDrain:    cfg.MaxBatteryDrain,
		rng:         rand.New(rand.NewSource(seed)),
		started:     atomic.NewBool(false),
		logger:      logger,
	}
}

// Start launches the tick loop. Starting an already-running simulator is a
// no-op.
func (t *TelemetrySimulator) Start() {
	t.ctlMu.Lock()
	defer t.ctlMu.Unlock()

	if !t.started.CompareAndSwap(false, true) {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.done = make(chan struct{})
	go t.run(ctx, t.done)
}

// Stop cancels the tick loop and blocks until it has exited. After Stop
// returns no new tick can start; a tick already in flight has completed.
func (t *TelemetrySimulator) Stop() {
	t.ctlMu.Lock()
	defer t.ctlMu.Unlock()

	if !t.started.CompareAndSwap(true, false) {
		return
	}

	t.cancel()
	<-t.done
}

func (t *TelemetrySimulator) Running() bool {
	return t.started.Load()
}

func (t *TelemetrySimulator) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	t.logger.Info("telemetry simulator started", zap.Duration("interval", t.interval))

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("telemetry simulator stopped")
			return
		case <-time.After(t.interval):
			// The select picks randomly when both cases are ready, so
			// re-check cancellation before starting a tick.
			if ctx.Err() != nil {
				return
			}
			t.svc.applyTelemetryTick(t.sweep)
		}
	}
}

// sweep applies one tick to the aggregate. The caller holds the service
// lock. Returns the number of security log entries injected.
func (t *TelemetrySimulator) sweep(e *models.Election) int {
	now := time.Now()

	for i := range e.Booths {
		booth := &e.Booths[i]
		if booth.Status.Sticky() {
			continue
		}

		if t.rng.Float64() < t.offlineProb {
			// Offline for this tick: no heartbeat refresh.
			booth.Status = models.BoothOffline
		} else {
			booth.Status = models.BoothOnline
			hb := now
			booth.LastHeartbeat = &hb
		}

		if t.maxDrain > 0 {
			booth.BatteryLevel -= t.rng.Intn(t.maxDrain + 1)
			if booth.BatteryLevel < 0 {
				booth.BatteryLevel = 0
			}
		}
	}

	// With an empty booth set there is nothing to reference; degrade by
	// skipping the injection rather than halting the timer.
	if len(e.Booths) == 0 || t.rng.Float64() >= t.logProb {
		return 0
	}

	target := e.Booths[t.rng.Intn(len(e.Booths))]
	place := target.Location
	if place == "" {
		place = target.ID
	}
	e.AppendLog(models.SecurityLog{
		ID:        uuid.New().String(),
		Level:     models.LogWarning,
		Category:  models.CategorySecurity,
		Message:   fmt.Sprintf("latency spike detected at %s", place),
		BoothID:   target.ID,
		Timestamp: now.Unix(),
	})
	return 1
}
