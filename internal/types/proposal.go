package types

// Proposal is the ordered set of candidate transactions offered for a round.
type Proposal struct {
	Height      uint64
	CreatedTime uint64
	Transactions []*Transaction
}

// ProposalHash hashes the concatenation of member reduced hashes, in order.
func (p *Proposal) ProposalHash() Hash {
	hs := make([]Hash, len(p.Transactions))
	for i, tx := range p.Transactions {
		hs[i] = tx.ReducedHash()
	}
	return ConcatHash(hs...)
}

// RejectedTx pairs a rejected transaction's hash with why it failed.
type RejectedTx struct {
	Hash  Hash
	Error CommandError
}

// VerifiedProposal is a Proposal partitioned by stateful validation: the
// surviving transactions remain on Proposal, Rejected carries the rest.
type VerifiedProposal struct {
	Proposal *Proposal
	Rejected []RejectedTx
}

// Disjoint reports whether vp upholds the invariant that rejected hashes
// never also appear among the accepted transactions.
func (vp *VerifiedProposal) Disjoint() bool {
	accepted := make(map[Hash]struct{}, len(vp.Proposal.Transactions))
	for _, tx := range vp.Proposal.Transactions {
		accepted[tx.ReducedHash()] = struct{}{}
	}
	for _, r := range vp.Rejected {
		if _, ok := accepted[r.Hash]; ok {
			return false
		}
	}
	return true
}
