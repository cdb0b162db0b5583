// Package presence answers "have I seen this transaction hash?" for the
// rest of the pipeline: the Batch Store consults it on insert, the
// Simulator on proposal verification, the Synchronizer when validating an
// incoming chain. It layers a small positive-only LRU cache (only final
// verdicts are cached, since those never change) over a storage-backed
// lookup.
package presence

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/empower1/consensusd/internal/storage"
	"github.com/empower1/consensusd/internal/types"
)

// finalCacheSize bounds the positive-verdict cache: Committed/Rejected
// verdicts never change, so eviction only ever costs a storage re-read,
// never a correctness issue.
const finalCacheSize = 100_000

// Status is the verdict for a transaction hash.
type Status int

const (
	// Missing means the hash has not been committed or rejected; it may
	// still become final later and is therefore never cached.
	Missing Status = iota
	Committed
	Rejected
)

func (s Status) String() string {
	switch s {
	case Committed:
		return "committed"
	case Rejected:
		return "rejected"
	default:
		return "missing"
	}
}

// Cache is the presence-cache adapter spec.md §6 lists as consumed:
// check(Hash) -> Option<Status>, where a nil *Status return means the
// backing storage was unavailable and the caller must treat the result as
// unknown rather than Missing.
type Cache struct {
	backing storage.Adapter
	final   *lru.Cache[types.Hash, Status]
}

// New wraps a storage Adapter with a positive-only, bounded LRU cache.
func New(backing storage.Adapter) *Cache {
	final, err := lru.New[types.Hash, Status](finalCacheSize)
	if err != nil {
		// Only invalid (non-positive) sizes cause New to fail; the
		// constant above is fixed and known-good.
		panic(err)
	}
	return &Cache{backing: backing, final: final}
}

// Check returns the status of hash, or nil if the backing storage could
// not be consulted and no cached verdict exists. Callers must treat a nil
// result as "do not act", never as Missing.
func (c *Cache) Check(hash types.Hash) *Status {
	if s, ok := c.final.Get(hash); ok {
		return &s
	}

	status, err := c.lookup(hash)
	if err != nil {
		return nil
	}
	if status == Committed || status == Rejected {
		c.final.Add(hash, status)
	}
	return &status
}

// CheckBatch checks every member hash in order, matching spec.md §4.1's
// check(batch) -> Vec<Status> contract. A nil element in the result
// signals an unknown verdict for that hash.
func (c *Cache) CheckBatch(hashes []types.Hash) []*Status {
	out := make([]*Status, len(hashes))
	for i, h := range hashes {
		out[i] = c.Check(h)
	}
	return out
}

// AlreadyProcessed reports whether hash is known Committed or Rejected.
// An unknown (storage-failure) result is treated conservatively as NOT
// already processed, per spec.md §7's Unknown error kind: callers that
// need the opposite conservatism (treat unknown as already processed, as
// the Ordering Service's batch cache does) must check Check's nil return
// themselves.
func (c *Cache) AlreadyProcessed(hash types.Hash) bool {
	s := c.Check(hash)
	return s != nil && (*s == Committed || *s == Rejected)
}

// MarkCommitted records hash as Committed directly, used right after a
// local block commit so the next lookup doesn't need a storage round
// trip.
func (c *Cache) MarkCommitted(hash types.Hash) {
	c.final.Add(hash, Committed)
}

// MarkRejected records hash as Rejected directly.
func (c *Cache) MarkRejected(hash types.Hash) {
	c.final.Add(hash, Rejected)
}

// lookup consults the storage-backed block index: hash is Committed if any
// persisted block's transactions contain it, Rejected if any persisted
// block's rejected_tx_hashes contain it, Missing otherwise. Scanning is
// bounded by the top height; a real deployment would maintain a
// height-independent index, left to the storage adapter's discretion.
func (c *Cache) lookup(hash types.Hash) (Status, error) {
	top, err := c.backing.TopBlockInfo()
	if err != nil {
		return Missing, err
	}
	for h := top.Height; h >= 1; h-- {
		block, err := c.backing.BlockByHeight(h)
		if err != nil {
			continue
		}
		for _, tx := range block.Transactions {
			if tx.ReducedHash() == hash {
				return Committed, nil
			}
		}
		for _, rh := range block.RejectedTxHashes {
			if rh == hash {
				return Rejected, nil
			}
		}
	}
	return Missing, nil
}
