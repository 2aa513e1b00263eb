package models

// VoteRecord is one cast ballot. It carries no voter-identifying field of
// any kind; anonymity is structural, not policy. BoothID attributes the
// record to a polling device, never to a person.
type VoteRecord struct {
	VoteID        string `json:"vote_id"`
	BoothID       string `json:"booth_id"`
	EncryptedData string `json:"encrypted_data"`
	IntegrityHash string `json:"integrity_hash"`
	Timestamp     int64  `json:"timestamp"`
}

// Snapshot is the unit of persistence: the full Election aggregate plus the
// full ledger, overwritten after every mutation and loaded once at startup.
type Snapshot struct {
	SavedAt  int64        `json:"saved_at"`
	Election *Election    `json:"election"`
	Blocks   []VoteBlock  `json:"blocks"`
	Pending  []VoteRecord `json:"pending"`
}
