package types

// TopBlockInfo identifies the tip of the locally-known chain.
type TopBlockInfo struct {
	Height uint64
	Hash   Hash
}

// LedgerState is the WSV-derived context a round is decided against: the
// chain tip plus the two peer sets a gate decision must account for — the
// full ledger peer list and, during a validator-set transition, the
// narrower set still syncing onto the new list.
type LedgerState struct {
	TopBlock   TopBlockInfo
	LedgerPeers PeerSet
	SyncPeers   PeerSet
}

// Peers returns SyncPeers when non-empty (a peer-set transition is in
// flight), otherwise LedgerPeers.
func (l LedgerState) Peers() PeerSet {
	if len(l.SyncPeers) > 0 {
		return l.SyncPeers
	}
	return l.LedgerPeers
}
