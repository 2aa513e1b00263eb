package service

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"election-backend/encryption"
	"election-backend/models"
)

func testConfig() Config {
	return Config{
		ElectionName: "Test Election",
		ElectionType: "general",
		Parties: []models.Party{
			{ID: "P1", Name: "Unity Party", Symbol: "tree"},
			{ID: "P2", Name: "Reform League", Symbol: "river"},
		},
		Authority1Secret: "alpha-secret",
		Authority2Secret: "beta-secret",
		// Keep the background timer out of unit tests.
		Telemetry: TelemetryConfig{TickInterval: time.Hour, Seed: 1},
	}
}

func newTestService(t *testing.T) *ElectionService {
	t.Helper()

	key, err := encryption.NewCryptoService().GenerateKeyPair()
	require.NoError(t, err)

	svc, err := NewElectionService(testConfig(), key, nil, NewMetricsCollector(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(svc.Shutdown)
	return svc
}

// setupReadyElection registers one accessible booth and two candidates so
// the election can start.
func setupReadyElection(t *testing.T, svc *ElectionService) (aliceID, bobID string) {
	t.Helper()

	_, err := svc.RegisterBooth(BoothSpec{ID: "B1", Location: "Central Library", AccessibilityReady: true})
	require.NoError(t, err)

	el, err := svc.AddCandidate("Alice", "P1")
	require.NoError(t, err)
	aliceID = el.Candidates[0].ID

	el, err = svc.AddCandidate("Bob", "P2")
	require.NoError(t, err)
	bobID = el.Candidates[1].ID
	return aliceID, bobID
}

func TestNewElectionServiceValidation(t *testing.T) {
	key, err := encryption.NewCryptoService().GenerateKeyPair()
	require.NoError(t, err)

	_, err = NewElectionService(testConfig(), nil, nil, nil, zap.NewNop())
	require.Error(t, err)

	cfg := testConfig()
	cfg.Authority1Secret = ""
	_, err = NewElectionService(cfg, key, nil, nil, zap.NewNop())
	require.Error(t, err)

	cfg = testConfig()
	cfg.Authority2Secret = "   "
	_, err = NewElectionService(cfg, key, nil, nil, zap.NewNop())
	require.Error(t, err)

	cfg = testConfig()
	cfg.Parties = nil
	_, err = NewElectionService(cfg, key, nil, nil, zap.NewNop())
	require.Error(t, err)
}

func TestNewElectionServiceDefaults(t *testing.T) {
	key, err := encryption.NewCryptoService().GenerateKeyPair()
	require.NoError(t, err)

	cfg := testConfig()
	cfg.ElectionName = ""
	svc, err := NewElectionService(cfg, key, nil, nil, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(svc.Shutdown)

	el := svc.GetElection()
	require.Equal(t, "General Election", el.Name)
	require.Equal(t, models.StatusSetup, el.Status)
	require.NotEmpty(t, el.ID)
	require.NotEmpty(t, el.PublicKey)
	require.Len(t, el.Parties, 2)
	require.Empty(t, el.Candidates)
	require.Empty(t, el.Booths)
	require.Nil(t, el.StartTime)
	require.Nil(t, el.EndTime)
}

func TestStartElectionRequiresTwoCandidates(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.StartElection()
	require.True(t, IsValidation(err))
	require.Contains(t, err.Error(), "add candidates before starting")

	_, err = svc.AddCandidate("Alice", "P1")
	require.NoError(t, err)
	_, err = svc.StartElection()
	require.True(t, IsValidation(err))
	require.Contains(t, err.Error(), "1 registered")
}

func TestStartElectionRequiresAccessibleBooths(t *testing.T) {
	svc := newTestService(t)
	setupReadyElection(t, svc)
	_, err := svc.RegisterBooth(BoothSpec{ID: "B2", Location: "Annex", AccessibilityReady: false})
	require.NoError(t, err)

	_, err = svc.StartElection()
	require.True(t, IsValidation(err))
	require.Contains(t, err.Error(), "B2")
	require.NotContains(t, err.Error(), "B1")

	// Removing the named booth unblocks the start.
	_, err = svc.DeregisterBooth("B2")
	require.NoError(t, err)
	_, err = svc.StartElection()
	require.NoError(t, err)
}

func TestStartElection(t *testing.T) {
	svc := newTestService(t)
	setupReadyElection(t, svc)

	el, err := svc.StartElection()
	require.NoError(t, err)
	require.Equal(t, models.StatusActive, el.Status)
	require.NotNil(t, el.StartTime)

	// Exactly one SYSTEM entry, prepended newest-first.
	entry := el.Logs[0]
	require.Equal(t, models.LogInfo, entry.Level)
	require.Equal(t, models.CategorySystem, entry.Category)
	require.Contains(t, entry.Message, "started")

	system := 0
	for _, lg := range el.Logs {
		if lg.Category == models.CategorySystem {
			system++
		}
	}
	require.Equal(t, 1, system)

	_, err = svc.StartElection()
	require.True(t, IsInvalidTransition(err))
}

func TestCloseElection(t *testing.T) {
	svc := newTestService(t)
	aliceID, _ := setupReadyElection(t, svc)
	_, err := svc.StartElection()
	require.NoError(t, err)
	_, err = svc.SubmitVote(aliceID, "B1")
	require.NoError(t, err)

	el, err := svc.CloseElection()
	require.NoError(t, err)
	require.Equal(t, models.StatusClosed, el.Status)
	require.NotNil(t, el.EndTime)
	for _, b := range el.Booths {
		require.Equal(t, models.BoothLocked, b.Status)
	}

	entry := el.Logs[0]
	require.Equal(t, models.LogWarning, entry.Level)
	require.Equal(t, models.CategorySystem, entry.Category)
	require.Contains(t, entry.Message, "1 votes recorded")

	// CLOSED accepts no more ballots and cannot close twice.
	_, err = svc.SubmitVote(aliceID, "B1")
	require.True(t, IsInvalidTransition(err))
	_, err = svc.CloseElection()
	require.True(t, IsInvalidTransition(err))
}

func TestCloseRequiresActive(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.CloseElection()
	require.True(t, IsInvalidTransition(err))
}

func TestUpdateDetails(t *testing.T) {
	svc := newTestService(t)

	el, err := svc.UpdateDetails("Renamed Election", "municipal")
	require.NoError(t, err)
	require.Equal(t, "Renamed Election", el.Name)
	require.Equal(t, "municipal", el.Type)

	_, err = svc.UpdateDetails("", "municipal")
	require.True(t, IsValidation(err))

	setupReadyElection(t, svc)
	_, err = svc.StartElection()
	require.NoError(t, err)
	_, err = svc.UpdateDetails("Too Late", "general")
	require.True(t, IsInvalidTransition(err))
}

func TestRegisterBooth(t *testing.T) {
	svc := newTestService(t)

	el, err := svc.RegisterBooth(BoothSpec{ID: "B1", Location: "Town Hall", AccessibilityReady: true})
	require.NoError(t, err)
	require.Len(t, el.Booths, 1)

	b := el.Booths[0]
	require.Equal(t, models.BoothOnline, b.Status)
	require.Equal(t, 100, b.BatteryLevel)
	require.Zero(t, b.TotalVotes)
	require.Nil(t, b.LastHeartbeat)

	require.Equal(t, models.CategoryAccess, el.Logs[0].Category)
	require.Equal(t, "B1", el.Logs[0].BoothID)

	_, err = svc.RegisterBooth(BoothSpec{ID: "B1"})
	require.True(t, IsValidation(err))
	_, err = svc.RegisterBooth(BoothSpec{ID: "   "})
	require.True(t, IsValidation(err))
}

func TestDeregisterBooth(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.RegisterBooth(BoothSpec{ID: "B1", AccessibilityReady: true})
	require.NoError(t, err)

	el, err := svc.DeregisterBooth("B1")
	require.NoError(t, err)
	require.Empty(t, el.Booths)

	_, err = svc.DeregisterBooth("B1")
	require.True(t, IsValidation(err))
}

func TestSetBoothStatus(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.RegisterBooth(BoothSpec{ID: "B1", AccessibilityReady: true})
	require.NoError(t, err)

	el, err := svc.SetBoothStatus("B1", models.BoothMaintenance)
	require.NoError(t, err)
	require.Equal(t, models.BoothMaintenance, el.Booths[0].Status)
	require.Equal(t, models.LogInfo, el.Logs[0].Level)

	el, err = svc.SetBoothStatus("B1", models.BoothTampered)
	require.NoError(t, err)
	require.Equal(t, models.LogCritical, el.Logs[0].Level)

	el, err = svc.SetBoothStatus("B1", models.BoothLocked)
	require.NoError(t, err)
	require.Equal(t, models.LogWarning, el.Logs[0].Level)

	_, err = svc.SetBoothStatus("B1", models.BoothStatus("BROKEN"))
	require.True(t, IsValidation(err))
	_, err = svc.SetBoothStatus("missing", models.BoothOnline)
	require.True(t, IsValidation(err))
}

func TestSetBoothStatusFrozenAfterClose(t *testing.T) {
	svc := newTestService(t)
	setupReadyElection(t, svc)
	_, err := svc.StartElection()
	require.NoError(t, err)
	_, err = svc.CloseElection()
	require.NoError(t, err)

	_, err = svc.SetBoothStatus("B1", models.BoothOnline)
	require.True(t, IsInvalidTransition(err))
}

func TestAddCandidate(t *testing.T) {
	svc := newTestService(t)

	el, err := svc.AddCandidate("Alice", "P1")
	require.NoError(t, err)
	require.Len(t, el.Candidates, 1)

	c := el.Candidates[0]
	require.NotEmpty(t, c.ID)
	require.Equal(t, "Alice", c.Name)
	require.Equal(t, "P1", c.PartyID)
	require.Equal(t, "Unity Party", c.PartyName)
	require.Equal(t, "tree", c.PartySymbol)

	_, err = svc.AddCandidate("", "P1")
	require.True(t, IsValidation(err))
	_, err = svc.AddCandidate("Bob", "NO-SUCH-PARTY")
	require.True(t, IsValidation(err))
}

func TestRemoveCandidate(t *testing.T) {
	svc := newTestService(t)
	el, err := svc.AddCandidate("Alice", "P1")
	require.NoError(t, err)
	id := el.Candidates[0].ID

	el, err = svc.RemoveCandidate(id)
	require.NoError(t, err)
	require.Empty(t, el.Candidates)

	_, err = svc.RemoveCandidate(id)
	require.True(t, IsValidation(err))
}

func TestConfigurationFrozenAfterStart(t *testing.T) {
	svc := newTestService(t)
	aliceID, _ := setupReadyElection(t, svc)
	_, err := svc.StartElection()
	require.NoError(t, err)

	_, err = svc.AddCandidate("Latecomer", "P1")
	require.True(t, IsInvalidTransition(err))
	_, err = svc.RemoveCandidate(aliceID)
	require.True(t, IsInvalidTransition(err))
	_, err = svc.RegisterBooth(BoothSpec{ID: "B9", AccessibilityReady: true})
	require.True(t, IsInvalidTransition(err))
	_, err = svc.DeregisterBooth("B1")
	require.True(t, IsInvalidTransition(err))
}

func TestSubmitVote(t *testing.T) {
	svc := newTestService(t)
	aliceID, _ := setupReadyElection(t, svc)
	_, err := svc.StartElection()
	require.NoError(t, err)

	record, err := svc.SubmitVote(aliceID, "B1")
	require.NoError(t, err)
	require.NotEmpty(t, record.VoteID)
	require.Equal(t, "B1", record.BoothID)
	require.NotEmpty(t, record.IntegrityHash)
	require.NotContains(t, record.EncryptedData, aliceID)

	require.True(t, svc.voteLedger.Contains(record.VoteID))
	require.Equal(t, 1, svc.GetElection().Booths[0].TotalVotes)
	require.Equal(t, 1, svc.Metrics().VotesAccepted)
}

func TestSubmitVoteValidation(t *testing.T) {
	svc := newTestService(t)
	aliceID, _ := setupReadyElection(t, svc)

	// Not started yet.
	_, err := svc.SubmitVote(aliceID, "B1")
	require.True(t, IsInvalidTransition(err))

	_, err = svc.StartElection()
	require.NoError(t, err)

	_, err = svc.SubmitVote("no-such-candidate", "B1")
	require.True(t, IsValidation(err))
	_, err = svc.SubmitVote(aliceID, "no-such-booth")
	require.True(t, IsValidation(err))

	require.Equal(t, 3, svc.Metrics().VotesRejected)
	require.Zero(t, svc.voteLedger.Size())
}

func TestSubmitVoteConcurrent(t *testing.T) {
	svc := newTestService(t)
	aliceID, bobID := setupReadyElection(t, svc)
	_, err := svc.StartElection()
	require.NoError(t, err)

	const voters = 40
	errCh := make(chan error, voters)
	var wg sync.WaitGroup
	for i := 0; i < voters; i++ {
		candidateID := aliceID
		if i%2 == 1 {
			candidateID = bobID
		}
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := svc.SubmitVote(id, "B1")
			errCh <- err
		}(candidateID)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		require.NoError(t, err)
	}

	require.Equal(t, voters, svc.voteLedger.Size())
	require.Equal(t, voters, svc.GetElection().Booths[0].TotalVotes)
	require.Equal(t, voters, svc.Metrics().VotesAccepted)
}

func TestSetAuthorityKeyValidation(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.SetAuthorityKey(0, "x")
	require.True(t, IsValidation(err))
	_, err = svc.SetAuthorityKey(3, "x")
	require.True(t, IsValidation(err))
	_, err = svc.SetAuthorityKey(1, "")
	require.True(t, IsValidation(err))

	el, err := svc.SetAuthorityKey(1, "anything")
	require.NoError(t, err)
	require.Contains(t, el.Logs[0].Message, "authority 1 key supplied")
}

func TestGetElectionReturnsCopy(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.RegisterBooth(BoothSpec{ID: "B1", AccessibilityReady: true})
	require.NoError(t, err)

	el := svc.GetElection()
	el.Name = "Mutated"
	el.Booths[0].Status = models.BoothTampered
	el.Booths[0].TotalVotes = 999
	el.Parties[0].Name = "Mutated"

	fresh := svc.GetElection()
	require.Equal(t, "Test Election", fresh.Name)
	require.Equal(t, models.BoothOnline, fresh.Booths[0].Status)
	require.Zero(t, fresh.Booths[0].TotalVotes)
	require.Equal(t, "Unity Party", fresh.Parties[0].Name)
}

func TestFullElectionLifecycle(t *testing.T) {
	svc := newTestService(t)
	aliceID, bobID := setupReadyElection(t, svc)

	_, err := svc.StartElection()
	require.NoError(t, err)

	for _, id := range []string{aliceID, bobID, aliceID} {
		_, err := svc.SubmitVote(id, "B1")
		require.NoError(t, err)
	}

	_, err = svc.CloseElection()
	require.NoError(t, err)

	_, err = svc.SetAuthorityKey(1, "alpha-secret")
	require.NoError(t, err)
	_, err = svc.SetAuthorityKey(2, "beta-secret")
	require.NoError(t, err)

	summary, err := svc.DecryptAndTally()
	require.NoError(t, err)
	require.Equal(t, 3, summary.TotalRecords)
	require.Equal(t, 3, summary.VerifiedVotes)
	require.Len(t, summary.Results, 2)
	require.Equal(t, "Alice", summary.Results[0].CandidateName)
	require.Equal(t, 2, summary.Results[0].Votes)
	require.Equal(t, "Bob", summary.Results[1].CandidateName)
	require.Equal(t, 1, summary.Results[1].Votes)

	require.Equal(t, models.StatusPublished, svc.GetElection().Status)

	results, err := svc.Results()
	require.NoError(t, err)
	require.Equal(t, summary.Results, results.Results)

	report := svc.VerifyLedger()
	require.True(t, report.Intact)
	require.Equal(t, 3, report.SealedRecords)
	require.Zero(t, report.PendingRecords)
}

func TestRestoreRoundTrip(t *testing.T) {
	key, err := encryption.NewCryptoService().GenerateKeyPair()
	require.NoError(t, err)

	first, err := NewElectionService(testConfig(), key, nil, NewMetricsCollector(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(first.Shutdown)

	aliceID, bobID := setupReadyElection(t, first)
	_, err = first.StartElection()
	require.NoError(t, err)
	for _, id := range []string{aliceID, bobID, aliceID} {
		_, err := first.SubmitVote(id, "B1")
		require.NoError(t, err)
	}
	_, err = first.CloseElection()
	require.NoError(t, err)
	_, err = first.SetAuthorityKey(1, "alpha-secret")
	require.NoError(t, err)
	_, err = first.SetAuthorityKey(2, "beta-secret")
	require.NoError(t, err)
	_, err = first.DecryptAndTally()
	require.NoError(t, err)

	snap := &models.Snapshot{
		SavedAt:  time.Now().Unix(),
		Election: first.GetElection(),
		Blocks:   first.voteLedger.Blocks(),
		Pending:  first.voteLedger.PendingRecords(),
	}

	second, err := NewElectionService(testConfig(), key, nil, NewMetricsCollector(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(second.Shutdown)
	require.NoError(t, second.Restore(snap))

	require.Equal(t, models.StatusPublished, second.GetElection().Status)
	require.Equal(t, 3, second.voteLedger.Size())

	// The tally summary is rebuilt from the restored ledger.
	results, err := second.Results()
	require.NoError(t, err)
	require.Equal(t, 2, results.Results[0].Votes)
	require.Equal(t, 1, results.Results[1].Votes)
}

func TestRestoreResumesTelemetry(t *testing.T) {
	key, err := encryption.NewCryptoService().GenerateKeyPair()
	require.NoError(t, err)

	first, err := NewElectionService(testConfig(), key, nil, nil, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(first.Shutdown)
	setupReadyElection(t, first)
	_, err = first.StartElection()
	require.NoError(t, err)

	snap := &models.Snapshot{
		SavedAt:  time.Now().Unix(),
		Election: first.GetElection(),
		Blocks:   first.voteLedger.Blocks(),
		Pending:  first.voteLedger.PendingRecords(),
	}

	second, err := NewElectionService(testConfig(), key, nil, nil, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(second.Shutdown)

	require.False(t, second.telemetry.Running())
	require.NoError(t, second.Restore(snap))
	require.True(t, second.telemetry.Running())
	require.Equal(t, models.StatusActive, second.GetElection().Status)
}

func TestRestoreRejectsKeyMismatch(t *testing.T) {
	cs := encryption.NewCryptoService()
	key1, err := cs.GenerateKeyPair()
	require.NoError(t, err)
	key2, err := cs.GenerateKeyPair()
	require.NoError(t, err)

	first, err := NewElectionService(testConfig(), key1, nil, nil, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(first.Shutdown)
	second, err := NewElectionService(testConfig(), key2, nil, nil, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(second.Shutdown)

	snap := &models.Snapshot{
		Election: first.GetElection(),
		Blocks:   first.voteLedger.Blocks(),
	}
	err = second.Restore(snap)
	require.Error(t, err)
	require.Contains(t, err.Error(), "public key")

	require.Error(t, second.Restore(nil))
	require.Error(t, second.Restore(&models.Snapshot{}))
}

func TestSubmitVoteBatchSealing(t *testing.T) {
	key, err := encryption.NewCryptoService().GenerateKeyPair()
	require.NoError(t, err)

	cfg := testConfig()
	cfg.MaxPendingRecords = 2
	svc, err := NewElectionService(cfg, key, nil, nil, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(svc.Shutdown)

	aliceID, _ := setupReadyElection(t, svc)
	_, err = svc.StartElection()
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := svc.SubmitVote(aliceID, "B1")
		require.NoError(t, err)
	}

	// 5 votes at batch size 2: genesis + 2 sealed blocks, 1 pending.
	report := svc.VerifyLedger()
	require.True(t, report.Intact)
	require.Equal(t, 3, report.Blocks)
	require.Equal(t, 4, report.SealedRecords)
	require.Equal(t, 1, report.PendingRecords)

	// Closing seals the remainder.
	_, err = svc.CloseElection()
	require.NoError(t, err)
	report = svc.VerifyLedger()
	require.Equal(t, 5, report.SealedRecords)
	require.Zero(t, report.PendingRecords)
}
