// Package syncer implements the Synchronizer from spec.md §4.8: it
// reconciles the local ledger with a YAC GateObject, either committing a
// locally-produced candidate block or pulling a chain from peers when the
// node has fallen behind. The recursive "fetch prev block until connected"
// shape is grounded on xbee-dex/pkg/consensus/syncer.go's
// syncBlockAndConnectToChain, adapted here to fetch a contiguous range via
// the Block Loader's stream rather than walking prev-hash pointers one at a
// time.
package syncer

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/empower1/consensusd/internal/blockloader"
	"github.com/empower1/consensusd/internal/consensuserr"
	"github.com/empower1/consensusd/internal/crypto"
	"github.com/empower1/consensusd/internal/presence"
	"github.com/empower1/consensusd/internal/storage"
	"github.com/empower1/consensusd/internal/transport"
	"github.com/empower1/consensusd/internal/types"
	"github.com/empower1/consensusd/internal/yac"
)

// PeerResolver looks up a live outbound Peer handle for a public key, the
// same boundary yac.Core uses for vote gossip.
type PeerResolver interface {
	Resolve(pk types.PublicKey) (transport.Peer, bool)
}

// Synchronizer applies GateObjects to the local ledger.
type Synchronizer struct {
	storage  storage.Adapter
	checker  yac.SupermajorityChecker
	presence *presence.Cache
	cache    *blockloader.Server
	resolver PeerResolver
	log      *zap.SugaredLogger
}

// New constructs a Synchronizer. cache may be nil if block pre-caching
// after commit is not needed (e.g. in tests).
func New(st storage.Adapter, checker yac.SupermajorityChecker, presenceCache *presence.Cache, cache *blockloader.Server, resolver PeerResolver, log *zap.SugaredLogger) *Synchronizer {
	return &Synchronizer{
		storage:  st,
		checker:  checker,
		presence: presenceCache,
		cache:    cache,
		resolver: resolver,
		log:      log.Named("syncer"),
	}
}

// ProcessOutcome implements process_outcome(gate_object) -> Option<SynchronizationEvent>.
func (s *Synchronizer) ProcessOutcome(ctx context.Context, obj types.GateObject) (*types.SynchronizationEvent, error) {
	switch obj.Outcome {
	case types.OutcomeCommit:
		return s.processCommit(ctx, obj)
	case types.OutcomeReject:
		s.log.Debugw("round rejected, no ledger change", "round", obj.Round)
		return &types.SynchronizationEvent{Kind: types.SyncReject, LedgerState: obj.LedgerState}, nil
	case types.OutcomeNothing:
		s.log.Debugw("round produced nothing, no ledger change", "round", obj.Round)
		return &types.SynchronizationEvent{Kind: types.SyncNothing, LedgerState: obj.LedgerState}, nil
	default:
		return nil, nil
	}
}

func (s *Synchronizer) processCommit(ctx context.Context, obj types.GateObject) (*types.SynchronizationEvent, error) {
	top, err := s.storage.TopBlockInfo()
	if err != nil {
		return nil, fmt.Errorf("read top block info: %w", err)
	}

	votedHeight := obj.Round.BlockRound
	if votedHeight == top.Height+1 && obj.Block != nil && obj.Block.PrevHash == top.Hash && obj.Block.BlockHash() == obj.Hash.BlockHash {
		if err := s.applyBlock(obj.Block); err != nil {
			return nil, fmt.Errorf("apply local candidate block: %w", err)
		}
		newState, err := s.snapshotLedgerState(obj.LedgerState)
		if err != nil {
			return nil, err
		}
		return &types.SynchronizationEvent{Kind: types.SyncCommit, LedgerState: newState, Applied: []*types.Block{obj.Block}}, nil
	}

	if votedHeight <= top.Height {
		// Already caught up past this round; nothing to do.
		return &types.SynchronizationEvent{Kind: types.SyncCommit, LedgerState: obj.LedgerState}, nil
	}

	return s.syncFromPeers(ctx, obj, top)
}

// syncFromPeers fetches [top+1, votedHeight] from the peers whose votes
// formed the Commit supermajority, validates each candidate chain, and
// applies the first one whose final hash matches the committed hash. This
// works whether or not this node holds the committed block itself — the
// case a genuinely lagging node hits, where obj.Block is nil and the only
// trustworthy source of peers to ask is the Commit votes' signers.
func (s *Synchronizer) syncFromPeers(ctx context.Context, obj types.GateObject, top types.TopBlockInfo) (*types.SynchronizationEvent, error) {
	// Every candidate peer's failure is accumulated rather than discarded:
	// a single peer's refusal is routine, but if every signer candidate
	// fails the combined reasons matter for diagnosing why sync stalled.
	var attemptErrs error
	for _, pk := range signerCandidates(obj) {
		peer, ok := s.resolver.Resolve(pk)
		if !ok {
			continue
		}
		blocks, err := peer.RetrieveBlocks(ctx, top.Height+1)
		if err != nil {
			attemptErrs = multierr.Append(attemptErrs, fmt.Errorf("retrieve blocks from %x: %w", pk, err))
			continue
		}

		chain, err := s.validateChain(blocks, top)
		if err != nil {
			attemptErrs = multierr.Append(attemptErrs, fmt.Errorf("validate chain from %x: %w", pk, err))
			continue
		}
		if len(chain) == 0 || chain[len(chain)-1].BlockHash() != obj.Hash.BlockHash {
			attemptErrs = multierr.Append(attemptErrs, fmt.Errorf("%w: chain from %x does not end at committed hash", consensuserr.ErrChainDiscontinuity, pk))
			continue
		}

		for _, b := range chain {
			if err := s.applyBlock(b); err != nil {
				return nil, fmt.Errorf("apply synced block %d: %w", b.Height, err)
			}
		}
		newState, err := s.snapshotLedgerState(obj.LedgerState)
		if err != nil {
			return nil, err
		}
		return &types.SynchronizationEvent{Kind: types.SyncCommit, LedgerState: newState, Applied: chain}, nil
	}

	if attemptErrs == nil {
		attemptErrs = consensuserr.ErrBlockNotFound
	}
	return nil, fmt.Errorf("sync from peers failed: %w", attemptErrs)
}

// validateChain drains blocks, checking each against its predecessor's
// hash, signature supermajority, and stateful application, aborting at the
// first failure.
func (s *Synchronizer) validateChain(blocks <-chan *types.Block, top types.TopBlockInfo) ([]*types.Block, error) {
	// committee tracks the peer set as of prevHeight, evolved forward by
	// each block's AddPeer commands as the chain is walked: none of these
	// heights are committed to local storage yet, so PeersAt can't be
	// consulted beyond the local top.
	committee, err := s.storage.PeersAt(top.Height)
	if err != nil {
		return nil, fmt.Errorf("peer set at local top %d: %w", top.Height, err)
	}

	var chain []*types.Block
	prevHash := top.Hash
	prevHeight := top.Height
	for block := range blocks {
		if block.Height != prevHeight+1 {
			return nil, fmt.Errorf("%w: expected height %d, got %d", consensuserr.ErrChainDiscontinuity, prevHeight+1, block.Height)
		}
		if block.PrevHash != prevHash {
			return nil, fmt.Errorf("%w: prev_hash mismatch at height %d", consensuserr.ErrChainDiscontinuity, block.Height)
		}
		if !s.hasValidSupermajority(block, committee) {
			return nil, fmt.Errorf("%w: insufficient valid signatures at height %d", consensuserr.ErrInvalidBlockSig, block.Height)
		}
		if err := s.statefulApply(block); err != nil {
			return nil, fmt.Errorf("stateful validation failed at height %d: %w", block.Height, err)
		}
		chain = append(chain, block)
		prevHash = block.BlockHash()
		prevHeight = block.Height
		committee = nextCommittee(committee, block)
	}
	return chain, nil
}

// nextCommittee applies block's AddPeer commands to committee, matching how
// storage.Adapter.CommitBlock derives the following height's peer set.
func nextCommittee(committee types.PeerSet, block *types.Block) types.PeerSet {
	next := append(types.PeerSet(nil), committee...)
	for _, tx := range block.Transactions {
		for _, cmd := range tx.Commands {
			if cmd.Kind == "AddPeer" && cmd.AddPeer != nil {
				next = types.Sorted(append(next, *cmd.AddPeer))
			}
		}
	}
	return next
}

func (s *Synchronizer) hasValidSupermajority(block *types.Block, committee types.PeerSet) bool {
	hash := block.BlockHash()
	valid := 0
	seen := make(map[types.PublicKey]bool, len(block.Signatures))
	for _, sig := range block.Signatures {
		if seen[sig.PublicKey] || !committee.Contains(sig.PublicKey) {
			continue
		}
		if !crypto.VerifyWithKey(sig.PublicKey, hash, sig.Bytes) {
			continue
		}
		seen[sig.PublicKey] = true
		valid++
	}
	return s.checker.HasSupermajority(valid, len(committee))
}

// statefulApply replays block's transaction commands against a fresh
// temporary WSV; any command failure invalidates the whole block, since a
// finalized block is expected to already hold only accepted transactions.
func (s *Synchronizer) statefulApply(block *types.Block) error {
	wsv, err := s.storage.CreateTemporaryWSV()
	if err != nil {
		return err
	}
	defer wsv.Discard()
	for _, tx := range block.Transactions {
		for _, cmd := range tx.Commands {
			if err := wsv.ApplyCommand(cmd); err != nil {
				return fmt.Errorf("%w: tx %s: %v", consensuserr.ErrChainDiscontinuity, tx.ReducedHash(), err)
			}
		}
	}
	return nil
}

func (s *Synchronizer) applyBlock(block *types.Block) error {
	if err := s.storage.CommitBlock(block); err != nil {
		return err
	}
	for _, tx := range block.Transactions {
		s.presence.MarkCommitted(tx.ReducedHash())
	}
	for _, h := range block.RejectedTxHashes {
		s.presence.MarkRejected(h)
	}
	if s.cache != nil {
		s.cache.CacheBlock(block)
	}
	return nil
}

func (s *Synchronizer) snapshotLedgerState(prev types.LedgerState) (types.LedgerState, error) {
	top, err := s.storage.TopBlockInfo()
	if err != nil {
		return types.LedgerState{}, fmt.Errorf("read top block info: %w", err)
	}
	peers, err := s.storage.PeersAt(top.Height)
	if err != nil {
		return types.LedgerState{}, fmt.Errorf("read peer set at height %d: %w", top.Height, err)
	}
	return types.LedgerState{TopBlock: top, LedgerPeers: peers, SyncPeers: prev.SyncPeers}, nil
}

// signerCandidates returns the distinct public keys that cast a Commit
// vote for obj, in vote order, used to pick peers to fetch the missing
// chain from. These signers are known to hold the committed block, unlike
// this node's own (possibly nil, possibly diverging) candidate.
func signerCandidates(obj types.GateObject) []types.PublicKey {
	seen := make(map[types.PublicKey]bool, len(obj.Votes))
	var out []types.PublicKey
	for _, v := range obj.Votes {
		pk := v.Signature.PublicKey
		if seen[pk] {
			continue
		}
		seen[pk] = true
		out = append(out, pk)
	}
	return out
}

