// Package blockloader implements the Block Loader boundary from spec.md
// §4.7: a single-block fetch and an ascending-height block stream, served
// from a small recent-block cache backed by persistent storage, and a thin
// client wrapper giving the transport.Peer calls the vocabulary spec.md
// uses (retrieve_block/retrieve_blocks).
package blockloader

import (
	"context"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/empower1/consensusd/internal/consensuserr"
	"github.com/empower1/consensusd/internal/storage"
	"github.com/empower1/consensusd/internal/transport"
	"github.com/empower1/consensusd/internal/types"
)

// recentCacheSize bounds how many of the most recently committed blocks are
// held in memory, sized to comfortably cover a lagging peer catching up
// across a handful of rounds without touching persistent storage.
const recentCacheSize = 256

// Server answers inbound block requests, implementing the two
// transport.Handler methods concerned with block retrieval.
type Server struct {
	storage storage.Adapter
	recent  *lru.Cache[uint64, *types.Block]
	log     *zap.SugaredLogger
}

// NewServer constructs a block-loader Server backed by st.
func NewServer(st storage.Adapter, log *zap.SugaredLogger) *Server {
	recent, err := lru.New[uint64, *types.Block](recentCacheSize)
	if err != nil {
		panic(err) // recentCacheSize is a fixed positive constant
	}
	return &Server{storage: st, recent: recent, log: log.Named("blockloader")}
}

// CacheBlock records a just-committed block in the recent-block cache,
// called by the Synchronizer right after a local commit so the very next
// lagging peer's retrieve_block doesn't need a storage round trip.
func (s *Server) CacheBlock(block *types.Block) {
	s.recent.Add(block.Height, block)
}

// OnBlockRequest implements transport.Handler: consults the recent cache
// first, falling back to persistent storage; any error (including a
// genuine NotFound) results in a nil response, since the wire contract
// only distinguishes "found" from "not found". Internal storage failures
// are logged here so they remain observable even though the wire response
// looks identical to NotFound.
func (s *Server) OnBlockRequest(from types.PublicKey, height uint64) *types.Block {
	if b, ok := s.recent.Get(height); ok {
		return b
	}
	block, err := s.storage.BlockByHeight(height)
	if err != nil {
		if !errors.Is(err, consensuserr.ErrBlockNotFound) {
			s.log.Warnw("block lookup failed", "height", height, "error", err)
		}
		return nil
	}
	s.recent.Add(height, block)
	return block
}

// OnBlockStreamRequest implements transport.Handler: walks
// [fromHeight, top] in ascending order, sending what is found and stopping
// at the first gap or the current top, whichever comes first.
func (s *Server) OnBlockStreamRequest(from types.PublicKey, fromHeight uint64) <-chan *types.Block {
	out := make(chan *types.Block)
	go func() {
		defer close(out)
		top, err := s.storage.TopBlockInfo()
		if err != nil {
			s.log.Warnw("top block lookup failed for stream request", "error", err)
			return
		}
		for h := fromHeight; h <= top.Height; h++ {
			block := s.OnBlockRequest(from, h)
			if block == nil {
				return
			}
			out <- block
		}
	}()
	return out
}

// RetrieveBlock fetches a single block from peer, mapping a nil response to
// ErrBlockNotFound so callers get a proper error rather than a silent nil.
func RetrieveBlock(ctx context.Context, peer transport.Peer, height uint64) (*types.Block, error) {
	block, err := peer.RetrieveBlock(ctx, height)
	if err != nil {
		return nil, fmt.Errorf("retrieve block %d: %w", height, err)
	}
	if block == nil {
		return nil, consensuserr.ErrBlockNotFound
	}
	return block, nil
}

// RetrieveBlocks streams blocks [fromHeight, peer's top] from peer, in
// ascending height order.
func RetrieveBlocks(ctx context.Context, peer transport.Peer, fromHeight uint64) (<-chan *types.Block, error) {
	ch, err := peer.RetrieveBlocks(ctx, fromHeight)
	if err != nil {
		return nil, fmt.Errorf("retrieve blocks from %d: %w", fromHeight, err)
	}
	return ch, nil
}
