package transport

import (
	"context"

	"github.com/empower1/consensusd/internal/types"
)

// Loopback is an in-process Peer implementation that calls directly into a
// Handler, bypassing the network. It lets tests exercise the Round
// Driver/Ordering Service/Synchronizer wiring without opening sockets.
type Loopback struct {
	Handler Handler
	// Self is the public key this loopback peer presents as the sender on
	// every call.
	Self types.PublicKey

	blocks map[uint64]*types.Block
}

// NewLoopback wraps handler as a same-process Peer.
func NewLoopback(handler Handler, self types.PublicKey) *Loopback {
	return &Loopback{Handler: handler, Self: self}
}

func (l *Loopback) SendVotes(ctx context.Context, votes []types.Vote) error {
	l.Handler.OnVotes(l.Self, votes)
	return nil
}

func (l *Loopback) SendBatches(ctx context.Context, batches []types.Batch) error {
	l.Handler.OnBatches(l.Self, batches)
	return nil
}

func (l *Loopback) RequestProposal(ctx context.Context, round types.Round) (*types.Proposal, error) {
	return l.Handler.OnProposalRequest(l.Self, round), nil
}

func (l *Loopback) RetrieveBlock(ctx context.Context, height uint64) (*types.Block, error) {
	return l.Handler.OnBlockRequest(l.Self, height), nil
}

func (l *Loopback) RetrieveBlocks(ctx context.Context, fromHeight uint64) (<-chan *types.Block, error) {
	return l.Handler.OnBlockStreamRequest(l.Self, fromHeight), nil
}
