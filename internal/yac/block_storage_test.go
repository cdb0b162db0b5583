package yac

import (
	"testing"

	"github.com/empower1/consensusd/internal/types"
)

func pk(b byte) types.PublicKey {
	var p types.PublicKey
	p[0] = b
	return p
}

func testRound() types.Round { return types.Round{BlockRound: 5, RejectRound: 0} }

func voteFor(hash types.YacHash, signer byte) types.Vote {
	return types.Vote{Hash: hash, Signature: types.Signature{PublicKey: pk(signer)}}
}

func TestBlockStorageInsertRejectsWrongHash(t *testing.T) {
	round := testRound()
	key := types.YacHash{Round: round, BlockHash: types.HashBytes([]byte("a"))}
	other := types.YacHash{Round: round, BlockHash: types.HashBytes([]byte("b"))}
	bs := NewBlockStorage(key, 4, BFTChecker{})
	if bs.Insert(voteFor(other, 1)) {
		t.Fatal("expected vote for a different hash to be rejected")
	}
	if len(bs.Votes()) != 0 {
		t.Fatal("expected no votes accepted")
	}
}

func TestBlockStorageInsertRejectsDuplicateSigner(t *testing.T) {
	round := testRound()
	key := types.YacHash{Round: round, BlockHash: types.HashBytes([]byte("a"))}
	bs := NewBlockStorage(key, 4, BFTChecker{})
	if !bs.Insert(voteFor(key, 1)) {
		t.Fatal("expected first vote to be accepted")
	}
	if bs.Insert(voteFor(key, 1)) {
		t.Fatal("expected duplicate signer vote to be rejected")
	}
	if len(bs.Votes()) != 1 {
		t.Fatalf("expected 1 vote, got %d", len(bs.Votes()))
	}
}

func TestBlockStorageGetStateCommitsAtThreshold(t *testing.T) {
	round := testRound()
	key := types.YacHash{Round: round, BlockHash: types.HashBytes([]byte("a"))}
	bs := NewBlockStorage(key, 4, BFTChecker{})
	bs.Insert(voteFor(key, 1))
	bs.Insert(voteFor(key, 2))
	if bs.GetState().Kind != types.AnswerNone {
		t.Fatal("expected no commit with only 2/4 votes")
	}
	bs.Insert(voteFor(key, 3))
	ans := bs.GetState()
	if ans.Kind != types.AnswerCommit {
		t.Fatal("expected commit at 3/4 votes under BFT")
	}
	if !ans.Hash.Equal(key) {
		t.Fatal("expected committed hash to equal the storage key")
	}
}
