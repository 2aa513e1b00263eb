package ledger

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"election-backend/models"
)

// DefaultMaxPendingRecords is the number of accepted votes accumulated
// before the pending list is sealed into a new block.
const DefaultMaxPendingRecords = 5

// Ledger is the append-only store of submitted vote records, kept as a
// hash-linked chain of sealed blocks plus a pending list. Records are never
// updated or removed once appended.
type Ledger struct {
	blocks     []models.VoteBlock
	pending    []models.VoteRecord
	maxPending int
	mu         sync.RWMutex
	logger     *zap.Logger
}

func New(maxPending int, logger *zap.Logger) *Ledger {
	if maxPending <= 0 {
		maxPending = DefaultMaxPendingRecords
	}

	genesis := models.VoteBlock{
		Index:     0,
		Timestamp: time.Now().Unix(),
		PrevHash:  "0",
		Records:   []models.VoteRecord{},
	}
	genesis.Hash = genesis.ComputeHash()

	return &Ledger{
		blocks:     []models.VoteBlock{genesis},
		pending:    make([]models.VoteRecord, 0),
		maxPending: maxPending,
		logger:     logger,
	}
}

// Restore replaces the chain with persisted state. The chain is validated
// before it is accepted so a tampered snapshot cannot seed the ledger.
func (l *Ledger) Restore(blocks []models.VoteBlock, pending []models.VoteRecord) error {
	if len(blocks) == 0 {
		return fmt.Errorf("restore requires at least the genesis block")
	}
	if broken := models.ValidateVoteChain(blocks); broken >= 0 {
		return fmt.Errorf("restored chain is broken at block %d", broken)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.blocks = append([]models.VoteBlock(nil), blocks...)
	l.pending = append([]models.VoteRecord(nil), pending...)
	return nil
}

// Append adds one record to the pending list, sealing a new block when the
// list reaches the configured size. Append never rejects a record;
// validation happens upstream on the submission path.
func (l *Ledger) Append(record models.VoteRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.pending = append(l.pending, record)
	if len(l.pending) >= l.maxPending {
		l.sealLocked()
	}
}

// CloseOut seals any remaining pending records. Called once when the
// election closes so the final chain covers every accepted vote.
func (l *Ledger) CloseOut() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.pending) > 0 {
		l.sealLocked()
	}
}

func (l *Ledger) sealLocked() {
	last := l.blocks[len(l.blocks)-1]

	block := models.VoteBlock{
		Index:     last.Index + 1,
		Timestamp: time.Now().Unix(),
		PrevHash:  last.Hash,
		Records:   l.pending,
	}
	block.Hash = block.ComputeHash()

	l.blocks = append(l.blocks, block)
	l.pending = make([]models.VoteRecord, 0)

	l.logger.Debug("sealed ledger block",
		zap.Uint64("index", block.Index),
		zap.Int("records", len(block.Records)),
		zap.String("hash", block.Hash))
}

// AllRecords returns every record, sealed and pending, so the tally sees
// each accepted vote regardless of block batching.
func (l *Ledger) AllRecords() []models.VoteRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var records []models.VoteRecord
	for _, block := range l.blocks {
		records = append(records, block.Records...)
	}
	return append(records, l.pending...)
}

func (l *Ledger) Size() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	n := len(l.pending)
	for _, block := range l.blocks {
		n += len(block.Records)
	}
	return n
}

// Blocks returns a copy of the sealed chain.
func (l *Ledger) Blocks() []models.VoteBlock {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]models.VoteBlock(nil), l.blocks...)
}

// PendingRecords returns a copy of the records not yet sealed into a block.
func (l *Ledger) PendingRecords() []models.VoteRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]models.VoteRecord(nil), l.pending...)
}

// Contains reports whether a record with the given vote id is present,
// sealed or pending.
func (l *Ledger) Contains(voteID string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, block := range l.blocks {
		for _, r := range block.Records {
			if r.VoteID == voteID {
				return true
			}
		}
	}
	for _, r := range l.pending {
		if r.VoteID == voteID {
			return true
		}
	}
	return false
}

// VerificationReport describes a full chain walk.
type VerificationReport struct {
	Intact         bool  `json:"intact"`
	Blocks         int   `json:"blocks"`
	SealedRecords  int   `json:"sealed_records"`
	PendingRecords int   `json:"pending_records"`
	BrokenBlock    int64 `json:"broken_block"`
}

// Verify re-hashes every block and checks the links. BrokenBlock is -1 when
// the chain is intact.
func (l *Ledger) Verify() VerificationReport {
	l.mu.RLock()
	defer l.mu.RUnlock()

	sealed := 0
	for _, block := range l.blocks {
		sealed += len(block.Records)
	}

	broken := models.ValidateVoteChain(l.blocks)
	if broken >= 0 {
		l.logger.Warn("ledger chain verification failed", zap.Int("block", broken))
	}

	return VerificationReport{
		Intact:         broken < 0,
		Blocks:         len(l.blocks),
		SealedRecords:  sealed,
		PendingRecords: len(l.pending),
		BrokenBlock:    int64(broken),
	}
}
