package yac

import "testing"

func TestBFTThreshold(t *testing.T) {
	cases := map[int]int{1: 1, 2: 2, 3: 3, 4: 3, 5: 4, 6: 5, 7: 5}
	for n, want := range cases {
		if got := (BFTChecker{}).Threshold(n); got != want {
			t.Errorf("BFT threshold(%d) = %d, want %d", n, got, want)
		}
	}
}

func TestBFTHasSupermajorityFourPeers(t *testing.T) {
	c := BFTChecker{}
	if c.HasSupermajority(2, 4) {
		t.Fatal("2/4 should not be a BFT supermajority")
	}
	if !c.HasSupermajority(3, 4) {
		t.Fatal("3/4 should be a BFT supermajority")
	}
}

func TestBFTCanReachSupermajorityRejectsWhenSplit(t *testing.T) {
	c := BFTChecker{}
	// 4 peers, 4 votes cast, split 2/2: neither hash can reach 3.
	if c.CanReachSupermajority(2, 4, 4) {
		t.Fatal("expected reject condition: no hash can still reach supermajority")
	}
}

func TestBFTCanReachSupermajorityWhenVotesOutstanding(t *testing.T) {
	c := BFTChecker{}
	// 4 peers, only 2 votes cast so far, both for the same hash: still
	// reachable.
	if !c.CanReachSupermajority(2, 2, 4) {
		t.Fatal("expected supermajority still reachable with votes outstanding")
	}
}

func TestCFTThreshold(t *testing.T) {
	if got := (CFTChecker{}).Threshold(4); got != 3 {
		t.Fatalf("CFT threshold(4) = %d, want 3", got)
	}
	if got := (CFTChecker{}).Threshold(5); got != 3 {
		t.Fatalf("CFT threshold(5) = %d, want 3", got)
	}
}

func TestCFTCanReachSupermajority(t *testing.T) {
	c := CFTChecker{}
	// 5 peers, threshold 3. 2 votes cast for one hash, 3 remain: reachable.
	if !c.CanReachSupermajority(2, 2, 5) {
		t.Fatal("expected majority still reachable")
	}
	// 5 peers, 4 votes cast, max single-hash 1 (split every way): 1 vote
	// remains, 1+1=2 < 3, unreachable.
	if c.CanReachSupermajority(1, 4, 5) {
		t.Fatal("expected majority unreachable once split too thin")
	}
}
