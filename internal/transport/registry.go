package transport

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/empower1/consensusd/internal/types"
)

// Registry resolves a public key to a live outbound Peer, dialing lazily
// on first use and caching the connection for reuse by every consumer of
// the PeerResolver boundary (yac.Core's gossip, syncer.Synchronizer's
// catch-up fetches, round.Driver's proposal requests), following the
// indexed-peer-provider pattern over a raw address reference.
type Registry struct {
	dialer Dialer
	log    *zap.SugaredLogger

	mu    sync.RWMutex
	known map[types.PublicKey]types.Peer
	live  map[types.PublicKey]Peer
}

// NewRegistry constructs an empty Registry backed by dialer.
func NewRegistry(dialer Dialer, log *zap.SugaredLogger) *Registry {
	return &Registry{
		dialer: dialer,
		log:    log.Named("peer_registry"),
		known:  make(map[types.PublicKey]types.Peer),
		live:   make(map[types.PublicKey]Peer),
	}
}

// SetPeers replaces the set of addresses the Registry knows how to dial,
// called whenever the ledger's peer set changes.
func (r *Registry) SetPeers(peers types.PeerSet) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.known = make(map[types.PublicKey]types.Peer, len(peers))
	for _, p := range peers {
		r.known[p.PublicKey] = p
	}
}

// Resolve returns a connected Peer for pk, dialing it on first use.
func (r *Registry) Resolve(pk types.PublicKey) (Peer, bool) {
	r.mu.RLock()
	if peer, ok := r.live[pk]; ok {
		r.mu.RUnlock()
		return peer, true
	}
	addr, known := r.known[pk]
	r.mu.RUnlock()
	if !known {
		return nil, false
	}

	conn, err := r.dialer.Dial(context.Background(), addr)
	if err != nil {
		r.log.Debugw("dial failed", "peer", addr.Address, "error", err)
		return nil, false
	}

	r.mu.Lock()
	r.live[pk] = conn
	r.mu.Unlock()
	return conn, true
}

// Forget drops a cached connection, used after a send failure forces a
// redial on next use.
func (r *Registry) Forget(pk types.PublicKey) {
	r.mu.Lock()
	delete(r.live, pk)
	r.mu.Unlock()
}
