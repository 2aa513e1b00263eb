package models

import (
	"time"
)

type ElectionStatus string

const (
	StatusSetup     ElectionStatus = "SETUP"
	StatusActive    ElectionStatus = "ACTIVE"
	StatusClosed    ElectionStatus = "CLOSED"
	StatusPublished ElectionStatus = "PUBLISHED"
)

type Party struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
}

// Candidate denormalizes the party display fields at insertion time.
// They are not re-synced if the party record changes later.
type Candidate struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	PartyID     string `json:"party_id"`
	PartyName   string `json:"party_name"`
	PartySymbol string `json:"party_symbol"`
}

// Election is the aggregate root. The vote ledger is a sibling aggregate
// and is never embedded here.
type Election struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Name       string         `json:"name"`
	Status     ElectionStatus `json:"status"`
	StartTime  *time.Time     `json:"start_time,omitempty"`
	EndTime    *time.Time     `json:"end_time,omitempty"`
	PublicKey  string         `json:"public_key"`
	Parties    []Party        `json:"parties"`
	Candidates []Candidate    `json:"candidates"`
	Booths     []PollingBooth `json:"booths"`
	Logs       []SecurityLog  `json:"logs"`
}

func (e *Election) PartyByID(id string) (Party, bool) {
	for _, p := range e.Parties {
		if p.ID == id {
			return p, true
		}
	}
	return Party{}, false
}

func (e *Election) CandidateByID(id string) (Candidate, bool) {
	for _, c := range e.Candidates {
		if c.ID == id {
			return c, true
		}
	}
	return Candidate{}, false
}

// BoothByID returns a pointer into the booth slice so callers holding the
// aggregate lock can mutate telemetry fields in place.
func (e *Election) BoothByID(id string) *PollingBooth {
	for i := range e.Booths {
		if e.Booths[i].ID == id {
			return &e.Booths[i]
		}
	}
	return nil
}

// AppendLog keeps the log sequence newest-first. Entries are never removed.
func (e *Election) AppendLog(entry SecurityLog) {
	e.Logs = append([]SecurityLog{entry}, e.Logs...)
}

// Clone returns a deep copy used as a read-only snapshot for callers
// outside the owning service.
func (e *Election) Clone() *Election {
	if e == nil {
		return nil
	}
	clone := *e
	if e.StartTime != nil {
		t := *e.StartTime
		clone.StartTime = &t
	}
	if e.EndTime != nil {
		t := *e.EndTime
		clone.EndTime = &t
	}
	clone.Parties = append([]Party(nil), e.Parties...)
	clone.Candidates = append([]Candidate(nil), e.Candidates...)
	clone.Booths = make([]PollingBooth, len(e.Booths))
	for i, b := range e.Booths {
		clone.Booths[i] = b
		if b.LastHeartbeat != nil {
			t := *b.LastHeartbeat
			clone.Booths[i].LastHeartbeat = &t
		}
	}
	clone.Logs = append([]SecurityLog(nil), e.Logs...)
	return &clone
}

// TallyResult is derived by a successful decrypt-and-tally. It is never
// part of the persisted aggregate.
type TallyResult struct {
	CandidateID   string `json:"candidate_id"`
	CandidateName string `json:"candidate_name"`
	Votes         int    `json:"votes"`
}

type TallySummary struct {
	Results       []TallyResult `json:"results"`
	TotalRecords  int           `json:"total_records"`
	VerifiedVotes int           `json:"verified_votes"`
	TalliedAt     int64         `json:"tallied_at"`
}
