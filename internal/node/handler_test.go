package node

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/empower1/consensusd/internal/blockloader"
	"github.com/empower1/consensusd/internal/crypto"
	"github.com/empower1/consensusd/internal/logging"
	"github.com/empower1/consensusd/internal/ordering"
	"github.com/empower1/consensusd/internal/presence"
	"github.com/empower1/consensusd/internal/storage"
	"github.com/empower1/consensusd/internal/transport"
	"github.com/empower1/consensusd/internal/types"
	"github.com/empower1/consensusd/internal/yac"
)

type fixedClock struct{ now uint64 }

func (c fixedClock) NowMillis() uint64 { return c.now }

// unreachableResolver satisfies yac.PeerResolver without ever having a
// live peer to hand back; these tests exercise single-node dispatch only.
type unreachableResolver struct{}

func (unreachableResolver) Resolve(types.PublicKey) (transport.Peer, bool) { return nil, false }

func newTestHandler(t *testing.T) (*Handler, types.PublicKey, *ordering.BatchStore) {
	t.Helper()
	signer, err := crypto.GenerateAdapter()
	require.NoError(t, err)
	self := signer.PublicKey()

	st := storage.NewMemoryAdapter(types.PeerSet{{PublicKey: self, Address: "local"}})
	presenceCache := presence.New(st)
	batchStore := ordering.NewBatchStore(presenceCache, 0)
	orderingSvc := ordering.NewService(batchStore, fixedClock{now: 1}, 100, 5, uint64((24*time.Hour).Milliseconds()), uint64((24*time.Hour).Milliseconds()), logging.Nop())
	yacCore := yac.NewCore(self, signer, yac.BFTChecker{}, unreachableResolver{}, logging.Nop())
	blocks := blockloader.NewServer(st, logging.Nop())

	h := New(yacCore, orderingSvc, blocks, logging.Nop())
	require.NoError(t, h.Start())
	t.Cleanup(func() { _ = h.Stop() })
	return h, self, batchStore
}

func TestOnBlockRequestAnswersSynchronously(t *testing.T) {
	h, _, _ := newTestHandler(t)
	if b := h.OnBlockRequest(types.PublicKey{}, 99); b != nil {
		t.Fatalf("expected nil for unknown height, got %v", b)
	}
}

func TestOnProposalRequestAnswersSynchronously(t *testing.T) {
	h, _, _ := newTestHandler(t)
	if p := h.OnProposalRequest(types.PublicKey{}, types.Round{BlockRound: 1}); p != nil {
		t.Fatalf("expected nil proposal from an empty batch store, got %v", p)
	}
}

// TestOnBatchesIsProcessedAsynchronously submits a batch through the
// transport-facing entry point and confirms it reaches the Ordering
// Service's Batch Store without the caller blocking on consensus work:
// OnBatches only hands the work to an executor, so the assertion below
// must poll rather than check immediately.
func TestOnBatchesIsProcessedAsynchronously(t *testing.T) {
	h, self, batchStore := newTestHandler(t)
	tx := &types.Transaction{Creator: types.AccountId("a@d"), CreatedTime: 1}
	batch, err := types.NewBatch([]*types.Transaction{tx})
	require.NoError(t, err)

	h.OnBatches(self, []types.Batch{*batch})

	require.Eventually(t, func() bool {
		return !batchStore.IsEmpty()
	}, time.Second, 10*time.Millisecond)

	p := h.OnProposalRequest(self, types.Round{BlockRound: 1})
	require.NotNil(t, p)
	require.Len(t, p.Transactions, 1)
}
