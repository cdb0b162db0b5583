package types

import "fmt"

// Batch is an ordered, non-empty sequence of transactions sharing a batch
// identifier. A singleton batch (one transaction, no BatchID) is valid too.
type Batch struct {
	Transactions []*Transaction
}

// ErrEmptyBatch is returned by NewBatch for a transaction-less batch.
var ErrEmptyBatch = fmt.Errorf("batch must contain at least one transaction")

// ErrMixedBatchID is returned when transactions in the same batch disagree
// about which batch they belong to.
var ErrMixedBatchID = fmt.Errorf("all transactions in a batch must share the same batch id or none")

// NewBatch validates and constructs a Batch, enforcing the invariant that
// every member shares the same batch id or none carries one.
func NewBatch(txs []*Transaction) (*Batch, error) {
	if len(txs) == 0 {
		return nil, ErrEmptyBatch
	}
	id := txs[0].BatchID
	for _, tx := range txs[1:] {
		if tx.BatchID != id {
			return nil, ErrMixedBatchID
		}
	}
	return &Batch{Transactions: txs}, nil
}

// ReducedBatchHash concatenates member ReducedHash values in order and
// hashes the result; order is significant.
func (b *Batch) ReducedBatchHash() Hash {
	hs := make([]Hash, len(b.Transactions))
	for i, tx := range b.Transactions {
		hs[i] = tx.ReducedHash()
	}
	return ConcatHash(hs...)
}

// TransactionHashes returns the ReducedHash of every member, in order.
func (b *Batch) TransactionHashes() []Hash {
	hs := make([]Hash, len(b.Transactions))
	for i, tx := range b.Transactions {
		hs[i] = tx.ReducedHash()
	}
	return hs
}

// HasTransaction reports whether any member's reduced hash equals h.
func (b *Batch) HasTransaction(h Hash) bool {
	for _, tx := range b.Transactions {
		if tx.ReducedHash() == h {
			return true
		}
	}
	return false
}

// OldestCreatedTime returns the oldest CreatedTime among members. The
// batch-level expiry sweep does not use it; it uses AllExpired.
func (b *Batch) OldestCreatedTime() uint64 {
	min := b.Transactions[0].CreatedTime
	for _, tx := range b.Transactions[1:] {
		if tx.CreatedTime < min {
			min = tx.CreatedTime
		}
	}
	return min
}

// AllExpired reports whether every member's created_time+maxDelay is
// already before now, matching spec.md §4.2's "batches with any expired
// transaction are removed whole" combined with §3's "expires by
// created_time + MAX_DELAY < now" per-transaction rule: a batch expires
// once all of its transactions individually would.
func (b *Batch) AllExpired(now uint64, maxDelay uint64) bool {
	for _, tx := range b.Transactions {
		if tx.CreatedTime+maxDelay >= now {
			return false
		}
	}
	return true
}
