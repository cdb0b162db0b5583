package yac

import "github.com/empower1/consensusd/internal/types"

// BlockStorage accumulates votes for a single YacHash within a round,
// ported from yac_block_storage.cpp. storageKey is fixed at construction;
// every inserted vote must vote for exactly that hash.
type BlockStorage struct {
	storageKey    types.YacHash
	peersInRound  int
	checker       SupermajorityChecker
	votes         []types.Vote
}

// NewBlockStorage constructs a BlockStorage for storageKey, sized for a
// round with peersInRound members.
func NewBlockStorage(storageKey types.YacHash, peersInRound int, checker SupermajorityChecker) *BlockStorage {
	return &BlockStorage{storageKey: storageKey, peersInRound: peersInRound, checker: checker}
}

// Insert adds vote if it votes for this storage's hash and is not already
// present, mirroring validScheme and uniqueVote from the original
// implementation. Returns true if the vote was newly inserted.
func (b *BlockStorage) Insert(vote types.Vote) bool {
	if !b.validScheme(vote) || !b.uniqueVote(vote) {
		return false
	}
	b.votes = append(b.votes, vote)
	return true
}

// InsertAll inserts each vote via Insert, in order.
func (b *BlockStorage) InsertAll(votes []types.Vote) int {
	n := 0
	for _, v := range votes {
		if b.Insert(v) {
			n++
		}
	}
	return n
}

func (b *BlockStorage) validScheme(vote types.Vote) bool {
	return b.storageKey.Equal(vote.Hash)
}

func (b *BlockStorage) uniqueVote(vote types.Vote) bool {
	for _, v := range b.votes {
		if v.Signature.PublicKey == vote.Signature.PublicKey {
			return false
		}
	}
	return true
}

// Votes returns every vote collected so far, in insertion order.
func (b *BlockStorage) Votes() []types.Vote {
	return b.votes
}

// Hash returns the YacHash this storage accumulates votes for.
func (b *BlockStorage) Hash() types.YacHash { return b.storageKey }

// GetState returns a Commit Answer if this hash's votes now hold
// supermajority over peersInRound, or AnswerNone otherwise.
func (b *BlockStorage) GetState() types.Answer {
	if b.checker.HasSupermajority(len(b.votes), b.peersInRound) {
		return types.Answer{Kind: types.AnswerCommit, Votes: append([]types.Vote(nil), b.votes...), Hash: b.storageKey}
	}
	return types.Answer{Kind: types.AnswerNone}
}
