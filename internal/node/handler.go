// Package node bridges the transport boundary's decoded inbound messages
// to the consensus pipeline, following spec.md's named-single-threaded-
// executor concurrency model: inbound votes and inbound batches are each
// submitted onto their own internal/executor.Executor so a slow round of
// vote processing never blocks the transport server's read loop for
// unrelated peers. Proposal and block requests are answered inline.
package node

import (
	"context"

	"go.uber.org/zap"

	"github.com/empower1/consensusd/internal/blockloader"
	"github.com/empower1/consensusd/internal/executor"
	"github.com/empower1/consensusd/internal/ordering"
	"github.com/empower1/consensusd/internal/types"
	"github.com/empower1/consensusd/internal/yac"
)

// queueDepth bounds how many inbound messages of one kind may wait for
// their executor before Submit starts blocking the transport read loop.
const queueDepth = 64

// Handler implements transport.Handler, dispatching the vote and batch
// callbacks onto dedicated executors instead of running them inline on the
// connection's goroutine. Proposal and block requests run on the caller's
// goroutine.
type Handler struct {
	yacCore  *yac.Core
	ordering *ordering.Service
	blocks   *blockloader.Server

	votes   *executor.Executor
	batches *executor.Executor
	log     *zap.SugaredLogger
}

// New constructs a Handler. Start must be called before any transport
// server begins dispatching to it.
func New(yacCore *yac.Core, orderingSvc *ordering.Service, blocks *blockloader.Server, log *zap.SugaredLogger) *Handler {
	log = log.Named("node")
	return &Handler{
		yacCore:  yacCore,
		ordering: orderingSvc,
		blocks:   blocks,
		votes:    executor.New("vote_process", queueDepth, log),
		batches:  executor.New("proposal_processing", queueDepth, log),
		log:      log,
	}
}

// Start launches the Handler's executors.
func (h *Handler) Start() error {
	if err := h.votes.Start(); err != nil {
		return err
	}
	return h.batches.Start()
}

// Stop halts the Handler's executors, waiting for any in-flight task;
// tasks still queued when Stop is called may not run.
func (h *Handler) Stop() error {
	voteErr := h.votes.Stop()
	batchErr := h.batches.Stop()
	if voteErr != nil {
		return voteErr
	}
	return batchErr
}

// OnVotes implements transport.Handler.
func (h *Handler) OnVotes(from types.PublicKey, votes []types.Vote) {
	if err := h.votes.Submit(func(ctx context.Context) { h.yacCore.OnVotes(from, votes) }); err != nil {
		h.log.Debugw("dropped inbound votes", "from", from, "error", err)
	}
}

// OnBatches implements transport.Handler.
func (h *Handler) OnBatches(from types.PublicKey, batches []types.Batch) {
	ptrs := make([]*types.Batch, len(batches))
	for i := range batches {
		b := batches[i]
		ptrs[i] = &b
	}
	if err := h.batches.Submit(func(ctx context.Context) { h.ordering.OnBatches(ptrs) }); err != nil {
		h.log.Debugw("dropped inbound batches", "from", from, "error", err)
	}
}

// OnProposalRequest implements transport.Handler. Proposal lookups are
// answered synchronously: the caller (Server.handleConn) writes the
// response on the same connection, so there is no separate executor to
// hand this off to.
func (h *Handler) OnProposalRequest(from types.PublicKey, round types.Round) *types.Proposal {
	return h.ordering.OnRequestProposal(round)
}

// OnBlockRequest implements transport.Handler.
func (h *Handler) OnBlockRequest(from types.PublicKey, height uint64) *types.Block {
	return h.blocks.OnBlockRequest(from, height)
}

// OnBlockStreamRequest implements transport.Handler.
func (h *Handler) OnBlockStreamRequest(from types.PublicKey, fromHeight uint64) <-chan *types.Block {
	return h.blocks.OnBlockStreamRequest(from, fromHeight)
}
