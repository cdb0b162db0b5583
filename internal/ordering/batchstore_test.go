package ordering

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/empower1/consensusd/internal/presence"
	"github.com/empower1/consensusd/internal/storage"
	"github.com/empower1/consensusd/internal/types"
)

func newTestStore() *BatchStore {
	return newTestStoreWithCap(0)
}

func newTestStoreWithCap(txCap int) *BatchStore {
	st := storage.NewMemoryAdapter(types.PeerSet{})
	return NewBatchStore(presence.New(st), txCap)
}

func tx(creator string, created uint64) *types.Transaction {
	return &types.Transaction{Creator: types.AccountId(creator), CreatedTime: created}
}

func TestNewAtomicBatchStampsSharedIDForMultipleTransactions(t *testing.T) {
	a, b := tx("alice@d", 1), tx("bob@d", 1)
	batch, err := NewAtomicBatch([]*types.Transaction{a, b})
	require.NoError(t, err)
	require.NotEmpty(t, a.BatchID)
	require.Equal(t, a.BatchID, b.BatchID)
	require.Len(t, batch.Transactions, 2)
}

func TestNewAtomicBatchLeavesSingletonUnstamped(t *testing.T) {
	a := tx("alice@d", 1)
	batch, err := NewAtomicBatch([]*types.Transaction{a})
	require.NoError(t, err)
	require.Empty(t, a.BatchID)
	require.Len(t, batch.Transactions, 1)
}

func TestNewAtomicBatchRejectsEmpty(t *testing.T) {
	_, err := NewAtomicBatch(nil)
	require.ErrorIs(t, err, types.ErrEmptyBatch)
}

func TestBatchStoreInsertAndTakeTransactionsPreservesOrder(t *testing.T) {
	store := newTestStore()
	b1, err := types.NewBatch([]*types.Transaction{tx("a@d", 1)})
	require.NoError(t, err)
	b2, err := types.NewBatch([]*types.Transaction{tx("b@d", 1)})
	require.NoError(t, err)

	store.Insert(b1)
	store.Insert(b2)
	require.False(t, store.IsEmpty())

	got := store.TakeTransactions(10)
	require.Len(t, got, 2)
	require.Equal(t, types.AccountId("a@d"), got[0].Creator)
	require.Equal(t, types.AccountId("b@d"), got[1].Creator)
}

func TestBatchStoreInsertDropsDuplicate(t *testing.T) {
	store := newTestStore()
	b, err := types.NewBatch([]*types.Transaction{tx("a@d", 1)})
	require.NoError(t, err)
	store.Insert(b)
	store.Insert(b)
	require.Len(t, store.TakeTransactions(10), 1)
}

func TestBatchStoreTakeTransactionsOnlyIncludesWholeBatches(t *testing.T) {
	store := newTestStore()
	pair, err := NewAtomicBatch([]*types.Transaction{tx("a@d", 1), tx("b@d", 1)})
	require.NoError(t, err)
	store.Insert(pair)

	require.Empty(t, store.TakeTransactions(1))
	require.Len(t, store.TakeTransactions(2), 2)
}

func TestBatchStoreRemoveByTxHashesEvictsWholeBatch(t *testing.T) {
	store := newTestStore()
	a, b := tx("a@d", 1), tx("b@d", 1)
	batch, err := NewAtomicBatch([]*types.Transaction{a, b})
	require.NoError(t, err)
	store.Insert(batch)

	store.RemoveByTxHashes([]types.Hash{a.ReducedHash()})
	require.True(t, store.IsEmpty())
}

func TestBatchStoreInsertDropsBatchExceedingTxCap(t *testing.T) {
	store := newTestStoreWithCap(2)
	a, err := types.NewBatch([]*types.Transaction{tx("a@d", 1)})
	require.NoError(t, err)
	store.Insert(a)

	over, err := NewAtomicBatch([]*types.Transaction{tx("b@d", 1), tx("c@d", 1)})
	require.NoError(t, err)
	store.Insert(over)

	got := store.TakeTransactions(10)
	require.Len(t, got, 1)
	require.Equal(t, types.AccountId("a@d"), got[0].Creator)
}

func TestBatchStoreInsertAcceptsBatchThatExactlyFillsTxCap(t *testing.T) {
	store := newTestStoreWithCap(2)
	pair, err := NewAtomicBatch([]*types.Transaction{tx("a@d", 1), tx("b@d", 1)})
	require.NoError(t, err)
	store.Insert(pair)

	require.Len(t, store.TakeTransactions(10), 2)
}

func TestBatchStoreRemoveByTxHashesFreesTxCapForNewBatches(t *testing.T) {
	store := newTestStoreWithCap(1)
	a, err := types.NewBatch([]*types.Transaction{tx("a@d", 1)})
	require.NoError(t, err)
	store.Insert(a)

	store.RemoveByTxHashes([]types.Hash{tx("a@d", 1).ReducedHash()})

	b, err := types.NewBatch([]*types.Transaction{tx("b@d", 1)})
	require.NoError(t, err)
	store.Insert(b)

	got := store.TakeTransactions(10)
	require.Len(t, got, 1)
	require.Equal(t, types.AccountId("b@d"), got[0].Creator)
}

func TestBatchStoreExpirySweepDropsOnlyFullyExpiredBatches(t *testing.T) {
	store := newTestStore()
	stale, err := types.NewBatch([]*types.Transaction{tx("a@d", 0)})
	require.NoError(t, err)
	fresh, err := types.NewBatch([]*types.Transaction{tx("b@d", 1600)})
	require.NoError(t, err)
	store.Insert(stale)
	store.Insert(fresh)

	store.ExpirySweep(2000, 500)

	got := store.TakeTransactions(10)
	require.Len(t, got, 1)
	require.Equal(t, types.AccountId("b@d"), got[0].Creator)
}
