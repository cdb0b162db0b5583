package blockloader

import (
	"testing"

	"github.com/empower1/consensusd/internal/logging"
	"github.com/empower1/consensusd/internal/storage"
	"github.com/empower1/consensusd/internal/types"
)

func seedChain(t *testing.T, st storage.Adapter, n uint64) {
	t.Helper()
	top, err := st.TopBlockInfo()
	if err != nil {
		t.Fatalf("TopBlockInfo: %v", err)
	}
	for h := top.Height + 1; h <= n; h++ {
		block := &types.Block{Height: h, PrevHash: top.Hash}
		if err := st.CommitBlock(block); err != nil {
			t.Fatalf("CommitBlock: %v", err)
		}
		top = types.TopBlockInfo{Height: block.Height, Hash: block.BlockHash()}
	}
}

func TestOnBlockRequestFallsBackToStorage(t *testing.T) {
	st := storage.NewMemoryAdapter(nil)
	seedChain(t, st, 3)
	srv := NewServer(st, logging.Nop())

	block := srv.OnBlockRequest(types.PublicKey{}, 2)
	if block == nil || block.Height != 2 {
		t.Fatalf("expected block at height 2, got %v", block)
	}
}

func TestOnBlockRequestReturnsNilForUnknownHeight(t *testing.T) {
	st := storage.NewMemoryAdapter(nil)
	seedChain(t, st, 1)
	srv := NewServer(st, logging.Nop())
	if b := srv.OnBlockRequest(types.PublicKey{}, 99); b != nil {
		t.Fatalf("expected nil for unknown height, got %v", b)
	}
}

func TestOnBlockRequestServesFromCacheAfterFirstLookup(t *testing.T) {
	st := storage.NewMemoryAdapter(nil)
	seedChain(t, st, 1)
	srv := NewServer(st, logging.Nop())

	first := srv.OnBlockRequest(types.PublicKey{}, 1)
	if first == nil {
		t.Fatal("expected first lookup to succeed")
	}
	if _, ok := srv.recent.Get(1); !ok {
		t.Fatal("expected block to populate the recent cache")
	}
}

func TestOnBlockStreamRequestWalksAscending(t *testing.T) {
	st := storage.NewMemoryAdapter(nil)
	seedChain(t, st, 4)
	srv := NewServer(st, logging.Nop())

	ch := srv.OnBlockStreamRequest(types.PublicKey{}, 2)
	var heights []uint64
	for b := range ch {
		heights = append(heights, b.Height)
	}
	if len(heights) != 3 || heights[0] != 2 || heights[2] != 4 {
		t.Fatalf("expected heights [2,3,4], got %v", heights)
	}
}

func TestCacheBlockPrepopulatesRecentCache(t *testing.T) {
	st := storage.NewMemoryAdapter(nil)
	srv := NewServer(st, logging.Nop())
	block := &types.Block{Height: 7}
	srv.CacheBlock(block)
	if got := srv.OnBlockRequest(types.PublicKey{}, 7); got != block {
		t.Fatal("expected cached block to be served directly")
	}
}
