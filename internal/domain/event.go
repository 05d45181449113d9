package domain

import "github.com/ethereum/go-ethereum/common"

// LedgerEvent is a decoded contract log: the event name plus its argument
// values keyed by ABI input name, together with the log position used for
// idempotent, resumable consumption. Derived data only; never persisted
// beyond the outcome or cursor it feeds.
type LedgerEvent struct {
	Name        string
	Args        map[string]any
	Contract    common.Address
	TxHash      common.Hash
	BlockNumber uint64
	LogIndex    uint
}

// EligibilityProof is the ordered sequence of 32-byte hashes the minting
// contract requires to authorize creation of one player's asset. Fetched
// fresh per attempt; proofs rotate upstream and must not be cached.
type EligibilityProof [][32]byte
