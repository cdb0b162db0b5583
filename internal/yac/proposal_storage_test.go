package yac

import (
	"testing"

	"github.com/empower1/consensusd/internal/types"
)

func TestProposalStorageCommitsOnSupermajority(t *testing.T) {
	round := testRound()
	ps := NewProposalStorage(round, 4, BFTChecker{})
	hash := types.YacHash{Round: round, BlockHash: types.HashBytes([]byte("block"))}

	ps.Insert(voteFor(hash, 1))
	ps.Insert(voteFor(hash, 2))
	out := ps.Insert(voteFor(hash, 3))
	if out.Answer.Kind != types.AnswerCommit {
		t.Fatalf("expected commit, got %v", out.Answer.Kind)
	}
}

func TestProposalStorageRejectsWhenSplitBeyondRecovery(t *testing.T) {
	round := testRound()
	ps := NewProposalStorage(round, 4, BFTChecker{})
	hashA := types.YacHash{Round: round, BlockHash: types.HashBytes([]byte("a"))}
	hashB := types.YacHash{Round: round, BlockHash: types.HashBytes([]byte("b"))}

	ps.Insert(voteFor(hashA, 1))
	ps.Insert(voteFor(hashA, 2))
	ps.Insert(voteFor(hashB, 3))
	out := ps.Insert(voteFor(hashB, 4))
	if out.Answer.Kind != types.AnswerReject {
		t.Fatalf("expected reject once every hash is unreachable, got %v", out.Answer.Kind)
	}
	if len(out.Answer.Votes) != 4 {
		t.Fatalf("expected all 4 votes carried on the reject answer, got %d", len(out.Answer.Votes))
	}
}

func TestProposalStorageRoutesByHash(t *testing.T) {
	round := testRound()
	ps := NewProposalStorage(round, 4, BFTChecker{})
	hashA := types.YacHash{Round: round, BlockHash: types.HashBytes([]byte("a"))}
	hashB := types.YacHash{Round: round, BlockHash: types.HashBytes([]byte("b"))}
	ps.Insert(voteFor(hashA, 1))
	ps.Insert(voteFor(hashB, 2))
	if ps.VoteCount() != 2 {
		t.Fatalf("expected 2 total votes across both hashes, got %d", ps.VoteCount())
	}
}
