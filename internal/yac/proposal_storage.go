package yac

import "github.com/empower1/consensusd/internal/types"

// InsertOutcome reports what a ProposalStorage.Insert call discovered,
// driving whether the caller should propagate a GateObject upward.
type InsertOutcome struct {
	// Inserted reports whether any vote was newly accepted.
	Inserted bool
	Answer   types.Answer
}

// ProposalStorage accumulates votes for one round, routed by hash to a
// per-hash BlockStorage, and answers whether the round as a whole has
// committed or rejected. Ported from the round-scoped half of
// yac_vote_storage.cpp (the part that precedes the cross-round map).
type ProposalStorage struct {
	round        types.Round
	peersInRound int
	checker      SupermajorityChecker

	blocks []*BlockStorage // insertion order of distinct hashes seen
}

// NewProposalStorage constructs an empty ProposalStorage for round.
func NewProposalStorage(round types.Round, peersInRound int, checker SupermajorityChecker) *ProposalStorage {
	return &ProposalStorage{round: round, peersInRound: peersInRound, checker: checker}
}

// Round returns the round this storage accumulates votes for.
func (p *ProposalStorage) Round() types.Round { return p.round }

// Insert routes vote to the BlockStorage for its hash, creating one on
// demand, then recomputes the round's aggregate Answer.
func (p *ProposalStorage) Insert(vote types.Vote) InsertOutcome {
	bs := p.findOrCreate(vote.Hash)
	inserted := bs.Insert(vote)
	return InsertOutcome{Inserted: inserted, Answer: p.aggregate()}
}

// InsertAll inserts every vote and returns the outcome after the last one.
func (p *ProposalStorage) InsertAll(votes []types.Vote) InsertOutcome {
	out := InsertOutcome{Answer: types.Answer{Kind: types.AnswerNone}}
	for _, v := range votes {
		out = p.Insert(v)
	}
	return out
}

func (p *ProposalStorage) findOrCreate(hash types.YacHash) *BlockStorage {
	for _, bs := range p.blocks {
		if bs.Hash().Equal(hash) {
			return bs
		}
	}
	bs := NewBlockStorage(hash, p.peersInRound, p.checker)
	p.blocks = append(p.blocks, bs)
	return bs
}

// aggregate scans every hash's BlockStorage: if one has supermajority,
// Commit wins. Otherwise, if no hash can still reach supermajority given
// what remains uncast, the round is Reject, carrying every vote seen
// across all hashes (flattened in block-storage-then-insertion order).
func (p *ProposalStorage) aggregate() types.Answer {
	total := 0
	maxVotes := 0
	var all []types.Vote
	for _, bs := range p.blocks {
		if ans := bs.GetState(); ans.Kind == types.AnswerCommit {
			return ans
		}
		n := len(bs.Votes())
		total += n
		if n > maxVotes {
			maxVotes = n
		}
		all = append(all, bs.Votes()...)
	}
	if total > 0 && !p.checker.CanReachSupermajority(maxVotes, total, p.peersInRound) {
		return types.Answer{Kind: types.AnswerReject, Votes: all}
	}
	return types.Answer{Kind: types.AnswerNone}
}

// VoteCount returns the total number of votes accumulated across every
// hash in this round so far.
func (p *ProposalStorage) VoteCount() int {
	n := 0
	for _, bs := range p.blocks {
		n += len(bs.Votes())
	}
	return n
}
