package ordering

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/empower1/consensusd/internal/logging"
	"github.com/empower1/consensusd/internal/presence"
	"github.com/empower1/consensusd/internal/storage"
	"github.com/empower1/consensusd/internal/types"
)

type fixedClock struct{ now uint64 }

func (c fixedClock) NowMillis() uint64 { return c.now }

func newTestService(t *testing.T, numberOfProposals int) (*Service, *BatchStore) {
	t.Helper()
	st := storage.NewMemoryAdapter(types.PeerSet{})
	store := NewBatchStore(presence.New(st), 0)
	svc := NewService(store, fixedClock{now: 1000}, 100, numberOfProposals, 24*60*60*1000, 24*60*60*1000, logging.Nop())
	return svc, store
}

func round(block uint64, reject uint32) types.Round {
	return types.Round{BlockRound: block, RejectRound: reject}
}

func TestOnRequestProposalPacksAvailableTransactions(t *testing.T) {
	svc, store := newTestService(t, 5)
	b, err := types.NewBatch([]*types.Transaction{tx("a@d", 1)})
	require.NoError(t, err)
	store.Insert(b)

	p := svc.OnRequestProposal(round(1, 0))
	require.NotNil(t, p)
	require.Len(t, p.Transactions, 1)
}

func TestOnRequestProposalReturnsNilForEmptyStore(t *testing.T) {
	svc, _ := newTestService(t, 5)
	p := svc.OnRequestProposal(round(1, 0))
	require.Nil(t, p)
}

func TestOnRequestProposalMemoizesPerRound(t *testing.T) {
	svc, store := newTestService(t, 5)
	p1 := svc.OnRequestProposal(round(1, 0))
	require.Nil(t, p1)

	b, err := types.NewBatch([]*types.Transaction{tx("a@d", 1)})
	require.NoError(t, err)
	store.Insert(b)

	// The round is already memoized as nil; a later batch arriving must
	// not retroactively change the answer for that round.
	p2 := svc.OnRequestProposal(round(1, 0))
	require.Nil(t, p2)
	require.True(t, svc.HasProposal(round(1, 0)))
}

func TestOnRequestProposalRejectsRoundsMoreThanTwoStepsAhead(t *testing.T) {
	svc, store := newTestService(t, 5)
	b, err := types.NewBatch([]*types.Transaction{tx("a@d", 1)})
	require.NoError(t, err)
	store.Insert(b)

	svc.OnCollaborationOutcome(round(1, 0))
	require.NotNil(t, svc.OnRequestProposal(round(1, 2)))
	require.Nil(t, svc.OnRequestProposal(round(1, 3)))
}

func TestOnCollaborationOutcomeErasesStaleProposals(t *testing.T) {
	svc, _ := newTestService(t, 2)
	for i := uint64(1); i <= 5; i++ {
		svc.OnCollaborationOutcome(round(i, 0))
		svc.OnRequestProposal(round(i, 0))
	}
	svc.OnCollaborationOutcome(round(6, 0))

	require.False(t, svc.HasProposal(round(1, 0)))
	require.False(t, svc.HasProposal(round(2, 0)))
	require.True(t, svc.HasProposal(round(4, 0)))
	require.True(t, svc.HasProposal(round(5, 0)))
}

func TestOnBatchesInsertsIntoStore(t *testing.T) {
	svc, store := newTestService(t, 5)
	b, err := types.NewBatch([]*types.Transaction{tx("a@d", 1)})
	require.NoError(t, err)

	svc.OnBatches([]*types.Batch{b})
	require.False(t, store.IsEmpty())
}

func TestOnBatchesDropsBatchWithTransactionOlderThanMaxPastCreated(t *testing.T) {
	st := storage.NewMemoryAdapter(types.PeerSet{})
	store := NewBatchStore(presence.New(st), 0)
	svc := NewService(store, fixedClock{now: 1_000_000}, 100, 5, 24*60*60*1000, 1000, logging.Nop())

	stale, err := types.NewBatch([]*types.Transaction{tx("a@d", 1)})
	require.NoError(t, err)

	svc.OnBatches([]*types.Batch{stale})
	require.True(t, store.IsEmpty())
}
