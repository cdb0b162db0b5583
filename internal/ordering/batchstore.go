// Package ordering implements the On-Demand Ordering Service: the Batch
// Store (spec.md §4.2) and the per-round proposal factory (spec.md §4.3),
// ported from OnDemandOrderingServiceImpl in the original implementation
// (on_demand_ordering_service_impl.cpp) and its batches_cache_ /
// proposal_map_ fields, generalized to Go's sync.RWMutex in place of
// std::shared_timed_mutex.
package ordering

import (
	"sync"

	"github.com/google/uuid"

	"github.com/empower1/consensusd/internal/presence"
	"github.com/empower1/consensusd/internal/types"
)

// NewAtomicBatch groups txs into a single Batch. A lone transaction is
// left as a singleton batch (no BatchID); two or more are stamped with a
// shared uuid so presence and batch-store lookups recognize them as one
// atomic unit, matching an "all or none" commit within a single block.
func NewAtomicBatch(txs []*types.Transaction) (*types.Batch, error) {
	if len(txs) > 1 {
		id := uuid.NewString()
		for _, tx := range txs {
			tx.BatchID = id
		}
	}
	return types.NewBatch(txs)
}

// BatchStore is an in-memory set of pending transaction batches, keyed by
// reduced-batch-hash, preserving insertion order for take_transactions.
type BatchStore struct {
	mu     sync.RWMutex
	order  []types.Hash // insertion order of keys into byHash
	byHash map[types.Hash]*types.Batch
	cache  *presence.Cache

	txCap   int // 0 means unbounded
	txCount int
}

// NewBatchStore creates an empty store backed by cache for duplicate/
// already-processed checks. txCap bounds the total number of transactions
// held across every pending batch, matching spec.md §3's batch lifecycle
// rule that a batch is dropped once the store's transaction-count cap
// would be exceeded; txCap <= 0 means unbounded.
func NewBatchStore(cache *presence.Cache, txCap int) *BatchStore {
	return &BatchStore{byHash: make(map[types.Hash]*types.Batch), cache: cache, txCap: txCap}
}

// Insert adds batch unless it is already processed (any member hash is
// Committed or Rejected per the presence cache), already present, or would
// push the store's transaction count past txCap.
// Matches batchAlreadyProcessed: a presence-cache read failure (nil
// status) is conservatively treated as "already processed", so the batch
// is dropped rather than retried.
func (s *BatchStore) Insert(batch *types.Batch) {
	if s.alreadyProcessed(batch) {
		return
	}
	key := batch.ReducedBatchHash()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byHash[key]; exists {
		return
	}
	if s.txCap > 0 && s.txCount+len(batch.Transactions) > s.txCap {
		return
	}
	s.byHash[key] = batch
	s.order = append(s.order, key)
	s.txCount += len(batch.Transactions)
}

func (s *BatchStore) alreadyProcessed(batch *types.Batch) bool {
	for _, tx := range batch.Transactions {
		status := s.cache.Check(tx.ReducedHash())
		if status == nil {
			return true
		}
		if *status == presence.Committed || *status == presence.Rejected {
			return true
		}
	}
	return false
}

// RemoveByTxHashes evicts every batch containing any hash in hashes.
func (s *BatchStore) RemoveByTxHashes(hashes []types.Hash) {
	want := make(map[types.Hash]struct{}, len(hashes))
	for _, h := range hashes {
		want[h] = struct{}{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	newOrder := s.order[:0:0]
	for _, key := range s.order {
		batch := s.byHash[key]
		drop := false
		for _, tx := range batch.Transactions {
			if _, ok := want[tx.ReducedHash()]; ok {
				drop = true
				break
			}
		}
		if drop {
			delete(s.byHash, key)
			s.txCount -= len(batch.Transactions)
		} else {
			newOrder = append(newOrder, key)
		}
	}
	s.order = newOrder
}

// ExpirySweep drops batches whose every transaction has
// created_time+maxDelayMillis < now, under the exclusive lock, matching
// spec.md §4.2's pre-take_transactions sweep.
func (s *BatchStore) ExpirySweep(nowMillis uint64, maxDelayMillis uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	newOrder := s.order[:0:0]
	for _, key := range s.order {
		batch := s.byHash[key]
		if batch.AllExpired(nowMillis, maxDelayMillis) {
			delete(s.byHash, key)
			s.txCount -= len(batch.Transactions)
			continue
		}
		newOrder = append(newOrder, key)
	}
	s.order = newOrder
}

// IsEmpty reports whether the store currently holds no batches.
func (s *BatchStore) IsEmpty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order) == 0
}

// TakeTransactions returns up to limit transactions, walking batches in
// insertion order and including whole batches only: a batch that would
// push the running count past limit terminates the walk without being
// included.
func (s *BatchStore) TakeTransactions(limit int) []*types.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	collection := make([]*types.Transaction, 0, limit)
	for _, key := range s.order {
		batch := s.byHash[key]
		if len(collection)+len(batch.Transactions) > limit {
			break
		}
		collection = append(collection, batch.Transactions...)
	}
	return collection
}
