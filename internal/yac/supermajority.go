package yac

// SupermajorityChecker decides, given the current vote tally, whether a
// single hash has reached supermajority and whether the round can still
// reach one at all, per spec.md §4.5.
type SupermajorityChecker interface {
	// Threshold returns the number of votes a single hash needs to commit,
	// for a round with n peers.
	Threshold(n int) int
	// HasSupermajority reports whether votes (for one hash) meets the
	// threshold for n peers.
	HasSupermajority(votes, n int) bool
	// CanReachSupermajority reports whether maxSingleHashVotes out of
	// totalVotes received (out of n peers) could still reach supermajority
	// even if every remaining peer voted for that same hash.
	CanReachSupermajority(maxSingleHashVotes, totalVotes, n int) bool
}

// BFTChecker implements the BFT consistency model: threshold = ⌊2n/3⌋+1,
// reject when received_votes − max_single_hash_votes > n − ⌈2n/3⌉.
type BFTChecker struct{}

func (BFTChecker) Threshold(n int) int {
	return (2*n)/3 + 1
}

func (BFTChecker) HasSupermajority(votes, n int) bool {
	return votes >= BFTChecker{}.Threshold(n)
}

func (BFTChecker) CanReachSupermajority(maxSingleHashVotes, totalVotes, n int) bool {
	ceil2n3 := (2*n + 2) / 3 // ⌈2n/3⌉
	return totalVotes-maxSingleHashVotes <= n-ceil2n3
}

// CFTChecker implements the CFT consistency model: threshold = ⌊n/2⌋+1,
// reject once no hash can still reach a majority.
type CFTChecker struct{}

func (CFTChecker) Threshold(n int) int {
	return n/2 + 1
}

func (CFTChecker) HasSupermajority(votes, n int) bool {
	return votes >= CFTChecker{}.Threshold(n)
}

func (CFTChecker) CanReachSupermajority(maxSingleHashVotes, totalVotes, n int) bool {
	remaining := n - totalVotes
	return maxSingleHashVotes+remaining >= CFTChecker{}.Threshold(n)
}
