// Package simulator implements the Verified-Proposal Simulator: applying
// a proposal against a temporary world-state view and producing a signed
// candidate block (spec.md §4.4), grounded on the stateful-validation
// split iroha's Simulator performs against a TemporaryWsv and command
// executor (irohad/simulator).
package simulator

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/empower1/consensusd/internal/crypto"
	"github.com/empower1/consensusd/internal/storage"
	"github.com/empower1/consensusd/internal/types"
)

// Simulator applies proposals to a temporary WSV and builds candidate
// blocks from the survivors.
type Simulator struct {
	storage storage.Adapter
	signer  crypto.Adapter
	log     *zap.SugaredLogger
}

// New constructs a Simulator backed by a storage Adapter and the node's
// signing identity.
func New(st storage.Adapter, signer crypto.Adapter, log *zap.SugaredLogger) *Simulator {
	return &Simulator{storage: st, signer: signer, log: log.Named("simulator")}
}

// ProcessProposal obtains a temporary WSV, applies each transaction's
// commands sequentially in proposal order, and partitions the result into
// surviving transactions and rejected ones. Application order is fixed
// and never parallelized, matching spec.md §4.4's determinism
// requirement.
func (s *Simulator) ProcessProposal(proposal *types.Proposal) (*types.VerifiedProposal, error) {
	wsv, err := s.storage.CreateTemporaryWSV()
	if err != nil {
		return nil, fmt.Errorf("create temporary wsv: %w", err)
	}
	defer wsv.Discard()

	verified := &types.Proposal{
		Height:      proposal.Height,
		CreatedTime: proposal.CreatedTime,
	}
	var rejected []types.RejectedTx

	for _, tx := range proposal.Transactions {
		if cmdErr := applyTransaction(wsv, tx); cmdErr != nil {
			rejected = append(rejected, types.RejectedTx{Hash: tx.ReducedHash(), Error: *cmdErr})
			continue
		}
		verified.Transactions = append(verified.Transactions, tx)
	}

	s.log.Debugw("processed proposal", "height", proposal.Height,
		"accepted", len(verified.Transactions), "rejected", len(rejected))
	return &types.VerifiedProposal{Proposal: verified, Rejected: rejected}, nil
}

// applyTransaction runs every command of tx against wsv, stopping at the
// first failing command and reporting it. Commands already applied before
// the failure are not rolled back individually; the caller discards the
// whole temporary view regardless.
func applyTransaction(wsv storage.TemporaryWSV, tx *types.Transaction) *types.CommandError {
	for i, cmd := range tx.Commands {
		if err := wsv.ApplyCommand(cmd); err != nil {
			return &types.CommandError{CommandIndex: i, Reason: err.Error()}
		}
	}
	return nil
}

// ProcessVerifiedProposal constructs a signed Block from verified's
// surviving transactions and rejected hashes, at
// height = ledgerState.TopBlock.Height + 1, prev_hash =
// ledgerState.TopBlock.Hash.
func (s *Simulator) ProcessVerifiedProposal(verified *types.VerifiedProposal, ledgerState types.LedgerState) (*types.Block, error) {
	rejectedHashes := make([]types.Hash, len(verified.Rejected))
	for i, r := range verified.Rejected {
		rejectedHashes[i] = r.Hash
	}

	block := &types.Block{
		Height:           ledgerState.TopBlock.Height + 1,
		PrevHash:         ledgerState.TopBlock.Hash,
		Transactions:     verified.Proposal.Transactions,
		RejectedTxHashes: rejectedHashes,
		CreatedTime:      verified.Proposal.CreatedTime,
	}

	sig, err := s.signer.Sign(block.BlockHash())
	if err != nil {
		return nil, fmt.Errorf("sign candidate block: %w", err)
	}
	block.Signatures = []types.Signature{sig}

	s.log.Debugw("built candidate block", "height", block.Height, "tx_count", len(block.Transactions))
	return block, nil
}
