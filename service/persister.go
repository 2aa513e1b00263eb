package service

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"election-backend/models"
	"election-backend/storage"
)

// Persister handles the asynchronous persistence of state snapshots. The
// core treats durable storage as fire-and-forget: a full queue drops the
// job and a failed save is logged, never surfaced to the mutation path.
type Persister struct {
	store      storage.Store
	snapshotCh chan *models.Snapshot
	shutdownCh chan struct{}
	workerWg   sync.WaitGroup
	metrics    *MetricsCollector
	logger     *zap.Logger
}

func NewPersister(store storage.Store, queueSize int, metrics *MetricsCollector, logger *zap.Logger) *Persister {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Persister{
		store:      store,
		snapshotCh: make(chan *models.Snapshot, queueSize),
		shutdownCh: make(chan struct{}),
		metrics:    metrics,
		logger:     logger,
	}
}

// Start begins processing queued snapshots
func (p *Persister) Start() {
	p.workerWg.Add(1)
	go p.worker()
}

// Enqueue schedules a snapshot write without blocking the caller. When the
// queue is full the snapshot is dropped; a later mutation will enqueue a
// fresher one.
func (p *Persister) Enqueue(snap *models.Snapshot) {
	select {
	case p.snapshotCh <- snap:
	default:
		p.logger.Warn("snapshot queue is full, dropping snapshot",
			zap.Int("queue_size", cap(p.snapshotCh)))
	}
}

// Stop drains the queue and shuts the worker down.
func (p *Persister) Stop() {
	close(p.shutdownCh)
	p.workerWg.Wait()
}

func (p *Persister) worker() {
	defer p.workerWg.Done()

	for {
		select {
		case snap := <-p.snapshotCh:
			p.save(snap)
		case <-p.shutdownCh:
			// Drain whatever is still queued before exiting.
			for {
				select {
				case snap := <-p.snapshotCh:
					p.save(snap)
				default:
					return
				}
			}
		}
	}
}

func (p *Persister) save(snap *models.Snapshot) {
	start := time.Now()
	err := p.store.SaveSnapshot(snap)
	if p.metrics != nil {
		p.metrics.RecordSnapshot(err == nil)
	}
	if err != nil {
		p.logger.Error("failed to persist snapshot",
			zap.Error(err),
			zap.Duration("elapsed", time.Since(start)))
		return
	}
	p.logger.Debug("snapshot persisted",
		zap.Int("blocks", len(snap.Blocks)),
		zap.Int("pending", len(snap.Pending)),
		zap.Duration("elapsed", time.Since(start)))
}
