package types

import "fmt"

// FirstReject is the reject-round sentinel value a block round starts at.
const FirstReject uint32 = 0

// Round identifies one consensus attempt as a (block_round, reject_round)
// pair. Rounds are totally ordered lexicographically: block_round first,
// then reject_round.
type Round struct {
	BlockRound  uint64
	RejectRound uint32
}

// String renders a round as "block:reject", matching the teacher's
// %d-style log formatting elsewhere in this module.
func (r Round) String() string {
	return fmt.Sprintf("%d:%d", r.BlockRound, r.RejectRound)
}

// Compare returns -1, 0 or 1 as r is lexicographically less than, equal to,
// or greater than other.
func (r Round) Compare(other Round) int {
	switch {
	case r.BlockRound < other.BlockRound:
		return -1
	case r.BlockRound > other.BlockRound:
		return 1
	case r.RejectRound < other.RejectRound:
		return -1
	case r.RejectRound > other.RejectRound:
		return 1
	default:
		return 0
	}
}

// Less reports whether r sorts strictly before other.
func (r Round) Less(other Round) bool { return r.Compare(other) < 0 }

// NextCommit is the round that follows a Commit outcome in round r: the
// block round advances and the reject round resets to FirstReject.
func (r Round) NextCommit() Round {
	return Round{BlockRound: r.BlockRound + 1, RejectRound: FirstReject}
}

// NextReject is the round that follows a Reject or Nothing outcome in round
// r: the reject round advances within the same block round.
func (r Round) NextReject() Round {
	return Round{BlockRound: r.BlockRound, RejectRound: r.RejectRound + 1}
}

// StepsAhead returns how many proposal-request "steps" other is ahead of r,
// used by the Ordering Service's two-steps-ahead admission rule. It counts
// reject-round distance within the same block round, and block-round
// distance across block rounds, matching
// OnDemandOrderingServiceImpl::onRequestProposal in the original
// implementation.
func (r Round) StepsAhead(other Round) uint64 {
	if other.BlockRound == r.BlockRound {
		if other.RejectRound < r.RejectRound {
			// Mirrors the unsigned-subtraction underflow in the original
			// implementation: a reject round behind the current one, within
			// the same block round, never counts as "within two steps".
			return ^uint64(0)
		}
		return uint64(other.RejectRound - r.RejectRound)
	}
	if other.BlockRound < r.BlockRound {
		return ^uint64(0)
	}
	return other.BlockRound - r.BlockRound
}
