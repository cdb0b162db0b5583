package types

import "sort"

// Peer describes one member of the network known to the WSV at some height.
type Peer struct {
	PublicKey PublicKey
	Address   string
	TLSCert   string // empty when not configured
}

// PeerSet is a peer list ordered deterministically by public key, which
// defines the YAC gossip rotation for a round: index i gossips next to
// index (i+1)%len.
type PeerSet []Peer

// Sorted returns a copy of peers ordered by public key, matching the
// deterministic ordering spec.md §3 requires for leader rotation.
func Sorted(peers []Peer) PeerSet {
	out := make(PeerSet, len(peers))
	copy(out, peers)
	sort.Slice(out, func(i, j int) bool {
		return lessPK(out[i].PublicKey, out[j].PublicKey)
	})
	return out
}

func lessPK(a, b PublicKey) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// IndexOf returns the position of pk in the set, or -1 if absent.
func (s PeerSet) IndexOf(pk PublicKey) int {
	for i, p := range s {
		if p.PublicKey == pk {
			return i
		}
	}
	return -1
}

// Contains reports whether pk is a member of the set.
func (s PeerSet) Contains(pk PublicKey) bool {
	return s.IndexOf(pk) >= 0
}

// Next returns the peer that gossip should go to after peer at index i,
// wrapping around the set. Used by the YAC core's ClusterOrdering to pick a
// next peer for outgoing gossip; the set carries no leader, only rotation.
func (s PeerSet) Next(i int) (Peer, bool) {
	if len(s) == 0 {
		return Peer{}, false
	}
	return s[(i+1)%len(s)], true
}
