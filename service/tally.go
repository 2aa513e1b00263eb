package service

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"election-backend/models"
)

// DecryptAndTally decrypts every ledger record and aggregates the counts
// per candidate. It is gated twice: the election must be CLOSED, and both
// authority secrets must validate against their references. On success the
// election transitions to PUBLISHED; invoking the command again after that
// is rejected, not re-tallied.
func (s *ElectionService) DecryptAndTally() (*models.TallySummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.election.Status {
	case models.StatusClosed:
	case models.StatusPublished:
		return nil, &InvalidTransitionError{
			From:    s.election.Status,
			Command: "decrypt and tally",
			Reason:  "results are already published",
		}
	default:
		return nil, &InvalidTransitionError{
			From:    s.election.Status,
			Command: "decrypt and tally",
			Reason:  "the election must be CLOSED before decryption",
		}
	}

	if err := s.authorizeTallyLocked(); err != nil {
		return nil, err
	}

	s.metrics.RecordTallyStart()
	summary := s.computeTallyLocked()
	s.metrics.RecordTallyEnd()

	s.election.Status = models.StatusPublished
	s.appendLogLocked(models.LogInfo, models.CategoryVote,
		fmt.Sprintf("decrypt and tally completed: %d of %d votes verified",
			summary.VerifiedVotes, summary.TotalRecords), "")
	s.lastTally = summary
	s.persistLocked()

	s.logger.Info("election results published",
		zap.Int("verified", summary.VerifiedVotes),
		zap.Int("total", summary.TotalRecords))
	return s.cloneTally(summary), nil
}

// authorizeTallyLocked checks the 2-of-2 threshold. Both authorities must
// have supplied a secret matching their configured reference value.
func (s *ElectionService) authorizeTallyLocked() error {
	var invalid []string
	for i := 0; i < 2; i++ {
		if !s.authorityValid(i) {
			invalid = append(invalid, fmt.Sprintf("authority %d", i+1))
		}
	}
	if len(invalid) > 0 {
		return &NotAuthorizedError{
			Reason: fmt.Sprintf("decryption requires valid secrets from both authorities; not validated: %s",
				strings.Join(invalid, ", ")),
		}
	}
	return nil
}

// authorityValid is a pure predicate over the currently supplied secret.
// No validity flag is stored anywhere.
func (s *ElectionService) authorityValid(i int) bool {
	return s.suppliedSecrets[i] != "" && s.suppliedSecrets[i] == s.authorityRefs[i]
}

// computeTallyLocked sweeps the ledger. Records that fail to decrypt or
// name an unknown candidate are excluded from the counts and tracked for
// the audit line; every known candidate appears in the result, zero votes
// included, in candidate registration order.
func (s *ElectionService) computeTallyLocked() *models.TallySummary {
	records := s.voteLedger.AllRecords()
	counts := make(map[string]int, len(s.election.Candidates))
	skipped := 0

	for _, record := range records {
		candidateID := s.cryptoService.DecryptVote(record.EncryptedData, s.electionKey)
		if candidateID == "" {
			skipped++
			decErr := &DecryptionError{VoteID: record.VoteID, Reason: "ballot failed to decrypt"}
			s.logger.Warn("vote excluded from tally", zap.Error(decErr))
			continue
		}
		if _, ok := s.election.CandidateByID(candidateID); !ok {
			skipped++
			s.logger.Warn("vote excluded from tally",
				zap.String("vote_id", record.VoteID),
				zap.String("reason", "decrypted ballot names an unknown candidate"))
			continue
		}
		counts[candidateID]++
	}

	results := make([]models.TallyResult, 0, len(s.election.Candidates))
	for _, c := range s.election.Candidates {
		results = append(results, models.TallyResult{
			CandidateID:   c.ID,
			CandidateName: c.Name,
			Votes:         counts[c.ID],
		})
	}

	return &models.TallySummary{
		Results:       results,
		TotalRecords:  len(records),
		VerifiedVotes: len(records) - skipped,
		TalliedAt:     time.Now().Unix(),
	}
}

func (s *ElectionService) cloneTally(summary *models.TallySummary) *models.TallySummary {
	clone := *summary
	clone.Results = append([]models.TallyResult(nil), summary.Results...)
	return &clone
}
