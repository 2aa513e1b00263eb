package models

import (
	"encoding/hex"
	"encoding/json"

	"golang.org/x/crypto/sha3"
)

// VoteBlock is one sealed segment of the vote ledger. Blocks link by hash;
// once sealed, a block and its records are never modified.
type VoteBlock struct {
	Index     uint64       `json:"index"`
	Timestamp int64        `json:"timestamp"`
	PrevHash  string       `json:"prev_hash"`
	Hash      string       `json:"hash"`
	Records   []VoteRecord `json:"records"`
}

// Helper struct for hash calculation: the block without its own hash field.
type blockHashInput struct {
	Index     uint64       `json:"index"`
	Timestamp int64        `json:"timestamp"`
	PrevHash  string       `json:"prev_hash"`
	Records   []VoteRecord `json:"records"`
}

func (b VoteBlock) ComputeHash() string {
	input := blockHashInput{
		Index:     b.Index,
		Timestamp: b.Timestamp,
		PrevHash:  b.PrevHash,
		Records:   b.Records,
	}

	data, err := json.Marshal(input)
	if err != nil {
		return ""
	}

	hasher := sha3.NewLegacyKeccak256()
	hasher.Write(data)
	return hex.EncodeToString(hasher.Sum(nil))
}

func (b VoteBlock) Verify() bool {
	return b.Hash == b.ComputeHash()
}

// ValidateVoteChain walks the chain and reports the first broken block
// index, or -1 when the chain is intact. Index 0 is the genesis block.
func ValidateVoteChain(blocks []VoteBlock) int {
	for i := range blocks {
		if !blocks[i].Verify() {
			return i
		}
		if i == 0 {
			continue
		}
		if blocks[i].PrevHash != blocks[i-1].Hash {
			return i
		}
		if blocks[i].Index != blocks[i-1].Index+1 {
			return i
		}
	}
	return -1
}
