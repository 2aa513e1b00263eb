// Command demo drives a complete election lifecycle in process: booth
// registration, candidate setup, voting, close, the two-authority tally
// and a persistence round-trip. It is a smoke test for a fresh build
// that does not need the HTTP server running.
package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"election-backend/encryption"
	"election-backend/models"
	"election-backend/service"
	"election-backend/storage"
)

const (
	authorityOneSecret = "demo-authority-one"
	authorityTwoSecret = "demo-authority-two"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger, err := zap.NewDevelopment()
	if err != nil {
		return err
	}
	defer logger.Sync()

	dataDir, err := os.MkdirTemp("", "election-demo-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dataDir)

	store, err := storage.NewJSONStore(dataDir, 5, logger.Named("storage"))
	if err != nil {
		return err
	}

	cryptoService := encryption.NewCryptoService()
	electionKey, err := cryptoService.GenerateKeyPair()
	if err != nil {
		return err
	}

	metrics := service.NewMetricsCollector()
	persister := service.NewPersister(store, 16, metrics, logger.Named("persister"))
	persister.Start()

	cfg := service.Config{
		ElectionName: "Municipal Council Election",
		ElectionType: "municipal",
		Parties: []models.Party{
			{ID: "P1", Name: "Unity Party", Symbol: "tree"},
			{ID: "P2", Name: "Reform League", Symbol: "river"},
		},
		Authority1Secret: authorityOneSecret,
		Authority2Secret: authorityTwoSecret,
		Telemetry:        service.TelemetryConfig{Seed: 42},
	}

	svc, err := service.NewElectionService(cfg, electionKey, persister, metrics, logger.Named("election"))
	if err != nil {
		return err
	}

	fmt.Println("=== Setup ===")
	for _, spec := range []service.BoothSpec{
		{ID: "B1", Location: "Central Library", AccessibilityReady: true},
		{ID: "B2", Location: "Town Hall", AccessibilityReady: true},
	} {
		if _, err := svc.RegisterBooth(spec); err != nil {
			return err
		}
		fmt.Printf("Registered booth %s (%s)\n", spec.ID, spec.Location)
	}

	candidateIDs := make(map[string]string)
	for _, c := range []struct{ name, party string }{
		{"Asha Rao", "P1"},
		{"Ben Ortiz", "P2"},
	} {
		el, err := svc.AddCandidate(c.name, c.party)
		if err != nil {
			return err
		}
		added := el.Candidates[len(el.Candidates)-1]
		candidateIDs[added.Name] = added.ID
		fmt.Printf("Added candidate %s (%s)\n", added.Name, added.PartyName)
	}

	if _, err := svc.StartElection(); err != nil {
		return err
	}

	fmt.Println("\n=== Voting open ===")
	ballots := []struct{ candidate, booth string }{
		{"Asha Rao", "B1"},
		{"Ben Ortiz", "B2"},
		{"Asha Rao", "B1"},
	}
	for _, b := range ballots {
		record, err := svc.SubmitVote(candidateIDs[b.candidate], b.booth)
		if err != nil {
			return err
		}
		fmt.Printf("Accepted ballot %s at booth %s\n", record.VoteID[:8], b.booth)
	}

	if _, err := svc.CloseElection(); err != nil {
		return err
	}
	fmt.Println("\n=== Voting closed ===")

	// One authority alone must not be able to open the ballots.
	if _, err := svc.SetAuthorityKey(1, authorityOneSecret); err != nil {
		return err
	}
	if _, err := svc.DecryptAndTally(); err != nil {
		fmt.Printf("Tally with one authority rejected: %v\n", err)
	}
	if _, err := svc.SetAuthorityKey(2, authorityTwoSecret); err != nil {
		return err
	}

	summary, err := svc.DecryptAndTally()
	if err != nil {
		return err
	}

	fmt.Println("\n=== Results ===")
	for _, r := range summary.Results {
		fmt.Printf("  %-12s %d\n", r.CandidateName, r.Votes)
	}
	fmt.Printf("Verified %d of %d votes\n", summary.VerifiedVotes, summary.TotalRecords)

	report := svc.VerifyLedger()
	fmt.Printf("Ledger intact: %v (%d blocks, %d sealed records, %d pending)\n",
		report.Intact, report.Blocks, report.SealedRecords, report.PendingRecords)

	election := svc.GetElection()
	fmt.Println("\n=== Security log (newest first) ===")
	for _, entry := range election.Logs {
		fmt.Printf("  [%s/%s] %s\n", entry.Level, entry.Category, entry.Message)
	}

	svc.Shutdown()
	persister.Stop()

	// Reload the snapshot into a fresh service to show published results
	// survive a restart.
	snap, err := store.LoadSnapshot()
	if err != nil {
		return fmt.Errorf("loading snapshot back: %w", err)
	}
	restored, err := service.NewElectionService(cfg, electionKey, nil, service.NewMetricsCollector(), logger.Named("restored"))
	if err != nil {
		return err
	}
	defer restored.Shutdown()
	if err := restored.Restore(snap); err != nil {
		return err
	}
	results, err := restored.Results()
	if err != nil {
		return err
	}
	fmt.Printf("\nRestored election from snapshot: status=%s, %d results preserved\n",
		restored.GetElection().Status, len(results.Results))

	return nil
}
