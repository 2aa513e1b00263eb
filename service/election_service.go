package service

import (
	"crypto/ecdsa"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"election-backend/encryption"
	"election-backend/ledger"
	"election-backend/models"
)

// Config fixes the election identity at startup: display text, the party
// registry, and the two authority reference secrets that gate the tally.
type Config struct {
	ElectionName      string
	ElectionType      string
	Parties           []models.Party
	Authority1Secret  string
	Authority2Secret  string
	MaxPendingRecords int
	Telemetry         TelemetryConfig
}

// BoothSpec is the operator payload for registering a polling booth.
type BoothSpec struct {
	ID                 string `json:"id"`
	Location           string `json:"location"`
	AccessibilityReady bool   `json:"accessibility_ready"`
}

// ElectionService owns the single election instance and its status state
// machine. Every mutation, whether operator command, telemetry tick or vote
// append, is serialized through the service mutex so concurrent updates
// compose as sequential reducers over the same prior state.
type ElectionService struct {
	mu            sync.RWMutex
	election      *models.Election
	voteLedger    *ledger.Ledger
	cryptoService *encryption.CryptoService
	electionKey   *ecdsa.PrivateKey

	// Authority reference values from config and the secrets supplied at
	// runtime. Validity is a pure predicate over the two; no flag is stored.
	authorityRefs   [2]string
	suppliedSecrets [2]string

	lastTally *models.TallySummary

	telemetry *TelemetrySimulator
	persister *Persister
	metrics   *MetricsCollector
	logger    *zap.Logger
}

// Constructor
func NewElectionService(cfg Config, electionKey *ecdsa.PrivateKey, persister *Persister, metrics *MetricsCollector, logger *zap.Logger) (*ElectionService, error) {
	if electionKey == nil {
		return nil, fmt.Errorf("election key is required")
	}
	if strings.TrimSpace(cfg.Authority1Secret) == "" || strings.TrimSpace(cfg.Authority2Secret) == "" {
		return nil, fmt.Errorf("both authority secrets must be configured")
	}
	if len(cfg.Parties) == 0 {
		return nil, fmt.Errorf("at least one party must be configured")
	}
	if metrics == nil {
		metrics = NewMetricsCollector()
	}

	cryptoService := encryption.NewCryptoService()

	name := cfg.ElectionName
	if name == "" {
		name = "General Election"
	}

	election := &models.Election{
		ID:         uuid.New().String(),
		Type:       cfg.ElectionType,
		Name:       name,
		Status:     models.StatusSetup,
		PublicKey:  cryptoService.PublicKeyHex(electionKey),
		Parties:    append([]models.Party(nil), cfg.Parties...),
		Candidates: []models.Candidate{},
		Booths:     []models.PollingBooth{},
		Logs:       []models.SecurityLog{},
	}

	s := &ElectionService{
		election:      election,
		voteLedger:    ledger.New(cfg.MaxPendingRecords, logger.Named("ledger")),
		cryptoService: cryptoService,
		electionKey:   electionKey,
		authorityRefs: [2]string{cfg.Authority1Secret, cfg.Authority2Secret},
		persister:     persister,
		metrics:       metrics,
		logger:        logger,
	}
	s.telemetry = newTelemetrySimulator(s, cfg.Telemetry, logger.Named("telemetry"))

	return s, nil
}

// Restore replaces the fresh election with persisted state. When the
// restored election is ACTIVE the telemetry task resumes; when it is
// PUBLISHED the tally summary is rebuilt so the results read stays served.
func (s *ElectionService) Restore(snap *models.Snapshot) error {
	if snap == nil || snap.Election == nil {
		return fmt.Errorf("snapshot has no election")
	}
	if snap.Election.PublicKey != s.cryptoService.PublicKeyHex(s.electionKey) {
		return fmt.Errorf("snapshot public key does not match the configured election key")
	}
	if err := s.voteLedger.Restore(snap.Blocks, snap.Pending); err != nil {
		return fmt.Errorf("failed to restore ledger: %w", err)
	}

	s.mu.Lock()
	s.election = snap.Election
	if s.election.Status == models.StatusPublished {
		s.lastTally = s.computeTallyLocked()
	}
	status := s.election.Status
	s.mu.Unlock()

	if status == models.StatusActive {
		s.telemetry.Start()
	}

	s.logger.Info("election state restored",
		zap.String("status", string(status)),
		zap.Int("booths", len(snap.Election.Booths)),
		zap.Int("ledger_blocks", len(snap.Blocks)))
	return nil
}

// StartElection transitions SETUP -> ACTIVE. It fails with a validation
// error naming the fix when fewer than two candidates are registered or any
// booth is not accessibility ready.
func (s *ElectionService) StartElection() (*models.Election, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.election.Status != models.StatusSetup {
		return nil, &InvalidTransitionError{
			From:    s.election.Status,
			Command: "start election",
			Reason:  "only an election in SETUP can be started",
		}
	}
	if len(s.election.Candidates) < 2 {
		return nil, &ValidationError{
			Field:  "candidates",
			Reason: fmt.Sprintf("%d registered, at least 2 required: add candidates before starting", len(s.election.Candidates)),
		}
	}
	var notReady []string
	for _, b := range s.election.Booths {
		if !b.AccessibilityReady {
			notReady = append(notReady, b.ID)
		}
	}
	if len(notReady) > 0 {
		return nil, &ValidationError{
			Field:  "booths",
			Reason: fmt.Sprintf("booths not accessibility ready: %s", strings.Join(notReady, ", ")),
		}
	}

	now := time.Now()
	s.election.Status = models.StatusActive
	s.election.StartTime = &now
	s.appendLogLocked(models.LogInfo, models.CategorySystem,
		fmt.Sprintf("election %q started with %d candidates and %d booths",
			s.election.Name, len(s.election.Candidates), len(s.election.Booths)), "")
	s.metrics.StartVotingPhase()
	s.telemetry.Start()
	s.persistLocked()

	s.logger.Info("election started",
		zap.Int("candidates", len(s.election.Candidates)),
		zap.Int("booths", len(s.election.Booths)))
	return s.election.Clone(), nil
}

// CloseElection transitions ACTIVE -> CLOSED as one atomic update: every
// booth is force-locked, the end time is stamped once, and a single SYSTEM
// log entry records the transition.
func (s *ElectionService) CloseElection() (*models.Election, error) {
	snapshot, err := s.closeElection()
	if err != nil {
		return nil, err
	}
	// Cancel the telemetry task after the status flip. Any tick that is
	// already in flight completes against a CLOSED election and is
	// discarded by the reducer; Stop does not return until the timer is
	// gone, so no tick survives past this call.
	s.telemetry.Stop()
	return snapshot, nil
}

func (s *ElectionService) closeElection() (*models.Election, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.election.Status != models.StatusActive {
		return nil, &InvalidTransitionError{
			From:    s.election.Status,
			Command: "close election",
			Reason:  "only an ACTIVE election can be closed",
		}
	}

	now := time.Now()
	s.election.Status = models.StatusClosed
	s.election.EndTime = &now
	for i := range s.election.Booths {
		s.election.Booths[i].Status = models.BoothLocked
	}
	s.voteLedger.CloseOut()
	s.appendLogLocked(models.LogWarning, models.CategorySystem,
		fmt.Sprintf("election closed: %d votes recorded across %d booths",
			s.voteLedger.Size(), len(s.election.Booths)), "")
	s.metrics.EndVotingPhase()
	s.persistLocked()

	s.logger.Info("election closed", zap.Int("votes", s.voteLedger.Size()))
	return s.election.Clone(), nil
}

// UpdateDetails edits the free-form election name and type, permitted only
// during SETUP.
func (s *ElectionService) UpdateDetails(name, electionType string) (*models.Election, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.election.Status != models.StatusSetup {
		return nil, &InvalidTransitionError{
			From:    s.election.Status,
			Command: "update election details",
			Reason:  "election configuration is frozen once the election starts",
		}
	}
	if strings.TrimSpace(name) == "" {
		return nil, &ValidationError{Field: "name", Reason: "required"}
	}

	s.election.Name = name
	s.election.Type = electionType
	s.persistLocked()
	return s.election.Clone(), nil
}

func (s *ElectionService) RegisterBooth(spec BoothSpec) (*models.Election, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.election.Status != models.StatusSetup {
		return nil, &InvalidTransitionError{
			From:    s.election.Status,
			Command: "register booth",
			Reason:  "booths can only be added during SETUP",
		}
	}
	if strings.TrimSpace(spec.ID) == "" {
		return nil, &ValidationError{Field: "booth_id", Reason: "required"}
	}
	if s.election.BoothByID(spec.ID) != nil {
		return nil, &ValidationError{Field: "booth_id", Reason: fmt.Sprintf("duplicate booth id %s", spec.ID)}
	}

	s.election.Booths = append(s.election.Booths, models.PollingBooth{
		ID:                 spec.ID,
		Location:           spec.Location,
		Status:             models.BoothOnline,
		BatteryLevel:       100,
		AccessibilityReady: spec.AccessibilityReady,
	})
	s.appendLogLocked(models.LogInfo, models.CategoryAccess,
		fmt.Sprintf("polling booth %s registered", spec.ID), spec.ID)
	s.persistLocked()
	return s.election.Clone(), nil
}

func (s *ElectionService) DeregisterBooth(boothID string) (*models.Election, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.election.Status != models.StatusSetup {
		return nil, &InvalidTransitionError{
			From:    s.election.Status,
			Command: "deregister booth",
			Reason:  "booths can only be removed during SETUP",
		}
	}

	for i := range s.election.Booths {
		if s.election.Booths[i].ID == boothID {
			s.election.Booths = append(s.election.Booths[:i], s.election.Booths[i+1:]...)
			s.appendLogLocked(models.LogInfo, models.CategoryAccess,
				fmt.Sprintf("polling booth %s deregistered", boothID), boothID)
			s.persistLocked()
			return s.election.Clone(), nil
		}
	}
	return nil, &ValidationError{Field: "booth_id", Reason: fmt.Sprintf("unknown booth %s", boothID)}
}

// SetBoothStatus is the operator path into and out of the sticky booth
// states. Permitted while the election is in SETUP or ACTIVE; once the
// election closes every booth stays LOCKED.
func (s *ElectionService) SetBoothStatus(boothID string, status models.BoothStatus) (*models.Election, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.election.Status {
	case models.StatusSetup, models.StatusActive:
	default:
		return nil, &InvalidTransitionError{
			From:    s.election.Status,
			Command: "set booth status",
			Reason:  "booth status is fixed after the election closes",
		}
	}

	switch status {
	case models.BoothOnline, models.BoothOffline, models.BoothMaintenance, models.BoothLocked, models.BoothTampered:
	default:
		return nil, &ValidationError{Field: "booth_status", Reason: fmt.Sprintf("unknown status %q", status)}
	}

	booth := s.election.BoothByID(boothID)
	if booth == nil {
		return nil, &ValidationError{Field: "booth_id", Reason: fmt.Sprintf("unknown booth %s", boothID)}
	}

	booth.Status = status

	level := models.LogInfo
	switch status {
	case models.BoothLocked:
		level = models.LogWarning
	case models.BoothTampered:
		level = models.LogCritical
	}
	s.appendLogLocked(level, models.CategoryAccess,
		fmt.Sprintf("booth %s status set to %s by operator", boothID, status), boothID)
	s.persistLocked()
	return s.election.Clone(), nil
}

func (s *ElectionService) AddCandidate(name, partyID string) (*models.Election, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.election.Status != models.StatusSetup {
		return nil, &InvalidTransitionError{
			From:    s.election.Status,
			Command: "add candidate",
			Reason:  "candidates can only be added during SETUP",
		}
	}
	if strings.TrimSpace(name) == "" {
		return nil, &ValidationError{Field: "candidate_name", Reason: "required"}
	}
	party, ok := s.election.PartyByID(partyID)
	if !ok {
		return nil, &ValidationError{Field: "party_id", Reason: fmt.Sprintf("unknown party %s", partyID)}
	}

	// Party display fields are denormalized here and intentionally never
	// re-synced with the party registry.
	s.election.Candidates = append(s.election.Candidates, models.Candidate{
		ID:          uuid.New().String(),
		Name:        name,
		PartyID:     party.ID,
		PartyName:   party.Name,
		PartySymbol: party.Symbol,
	})
	s.persistLocked()
	return s.election.Clone(), nil
}

func (s *ElectionService) RemoveCandidate(candidateID string) (*models.Election, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.election.Status != models.StatusSetup {
		return nil, &InvalidTransitionError{
			From:    s.election.Status,
			Command: "remove candidate",
			Reason:  "candidates can only be removed during SETUP",
		}
	}

	for i := range s.election.Candidates {
		if s.election.Candidates[i].ID == candidateID {
			s.election.Candidates = append(s.election.Candidates[:i], s.election.Candidates[i+1:]...)
			s.persistLocked()
			return s.election.Clone(), nil
		}
	}
	return nil, &ValidationError{Field: "candidate_id", Reason: fmt.Sprintf("unknown candidate %s", candidateID)}
}

// SubmitVote casts one anonymous ballot from the given booth. Encryption
// runs outside the lock so independent submissions proceed concurrently;
// the ledger append re-validates status under the lock because the election
// may have closed while the ballot was being encrypted.
func (s *ElectionService) SubmitVote(candidateID, boothID string) (*models.VoteRecord, error) {
	publicKey, err := s.precheckVote(candidateID, boothID)
	if err != nil {
		s.metrics.RecordVoteRejected()
		return nil, err
	}

	castAt := time.Now().Unix()
	encryptedData, integrityHash, err := s.cryptoService.EncryptVote(candidateID, publicKey, castAt)
	if err != nil {
		s.metrics.RecordVoteRejected()
		return nil, fmt.Errorf("failed to encrypt ballot: %w", err)
	}

	record := models.VoteRecord{
		VoteID:        uuid.New().String(),
		BoothID:       boothID,
		EncryptedData: encryptedData,
		IntegrityHash: integrityHash,
		Timestamp:     castAt,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.election.Status != models.StatusActive {
		s.metrics.RecordVoteRejected()
		return nil, &InvalidTransitionError{
			From:    s.election.Status,
			Command: "submit vote",
			Reason:  "votes are only accepted while the election is ACTIVE",
		}
	}
	booth := s.election.BoothByID(boothID)
	if booth == nil {
		s.metrics.RecordVoteRejected()
		return nil, &ValidationError{Field: "booth_id", Reason: fmt.Sprintf("unknown booth %s", boothID)}
	}

	s.voteLedger.Append(record)
	booth.TotalVotes++
	s.metrics.RecordVoteAccepted()
	s.persistLocked()

	s.logger.Debug("vote accepted",
		zap.String("vote_id", record.VoteID),
		zap.String("booth_id", boothID))
	return &record, nil
}

func (s *ElectionService) precheckVote(candidateID, boothID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.election.Status != models.StatusActive {
		return "", &InvalidTransitionError{
			From:    s.election.Status,
			Command: "submit vote",
			Reason:  "votes are only accepted while the election is ACTIVE",
		}
	}
	if _, ok := s.election.CandidateByID(candidateID); !ok {
		return "", &ValidationError{Field: "candidate_id", Reason: fmt.Sprintf("unknown candidate %s", candidateID)}
	}
	if s.election.BoothByID(boothID) == nil {
		return "", &ValidationError{Field: "booth_id", Reason: fmt.Sprintf("unknown booth %s", boothID)}
	}
	return s.election.PublicKey, nil
}

// SetAuthorityKey stores the secret supplied by authority 1 or 2. Validity
// is checked only when the tally runs.
func (s *ElectionService) SetAuthorityKey(which int, secret string) (*models.Election, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if which != 1 && which != 2 {
		return nil, &ValidationError{Field: "authority", Reason: "must be 1 or 2"}
	}
	if secret == "" {
		return nil, &ValidationError{Field: "secret", Reason: "required"}
	}

	s.suppliedSecrets[which-1] = secret
	s.appendLogLocked(models.LogInfo, models.CategoryAccess,
		fmt.Sprintf("authority %d key supplied", which), "")
	s.persistLocked()
	return s.election.Clone(), nil
}

// GetElection returns a read-only snapshot of the aggregate.
func (s *ElectionService) GetElection() *models.Election {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.election.Clone()
}

// Results returns the published tally. Before a successful tally there is
// nothing to read.
func (s *ElectionService) Results() (*models.TallySummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.election.Status != models.StatusPublished || s.lastTally == nil {
		return nil, &InvalidTransitionError{
			From:    s.election.Status,
			Command: "read results",
			Reason:  "results are available only after a successful tally",
		}
	}

	summary := *s.lastTally
	summary.Results = append([]models.TallyResult(nil), s.lastTally.Results...)
	return &summary, nil
}

// VerifyLedger re-hashes the vote chain and reports its integrity.
func (s *ElectionService) VerifyLedger() ledger.VerificationReport {
	return s.voteLedger.Verify()
}

func (s *ElectionService) Metrics() MetricsResponse {
	return s.metrics.GetMetrics()
}

// Shutdown cancels the telemetry task. The persister is owned and stopped
// by the caller that wired it.
func (s *ElectionService) Shutdown() {
	s.telemetry.Stop()
}

// applyTelemetryTick funnels one simulator sweep through the same
// serialized mutation path as operator commands. A tick that lands after
// the election left ACTIVE is discarded.
func (s *ElectionService) applyTelemetryTick(sweep func(*models.Election) int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.election.Status != models.StatusActive {
		return
	}

	injected := sweep(s.election)
	s.metrics.RecordTick()
	if injected > 0 {
		s.metrics.RecordLogInjected()
	}
	s.persistLocked()
}

func (s *ElectionService) appendLogLocked(level models.LogLevel, category models.LogCategory, message, boothID string) {
	s.election.AppendLog(models.SecurityLog{
		ID:        uuid.New().String(),
		Level:     level,
		Category:  category,
		Message:   message,
		BoothID:   boothID,
		Timestamp: time.Now().Unix(),
	})
}

// persistLocked enqueues a fire-and-forget snapshot of the aggregate and
// ledger. Called after every successful mutation; a persistence failure is
// logged by the worker, never surfaced here.
func (s *ElectionService) persistLocked() {
	if s.persister == nil {
		return
	}
	s.persister.Enqueue(&models.Snapshot{
		SavedAt:  time.Now().Unix(),
		Election: s.election.Clone(),
		Blocks:   s.voteLedger.Blocks(),
		Pending:  s.voteLedger.PendingRecords(),
	})
}
