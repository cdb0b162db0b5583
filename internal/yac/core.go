// Package yac implements the YAC (Yet Another Consensus) leaderless BFT/CFT
// voting protocol described in spec.md §4.5-§4.6: a gossip-and-tally state
// machine that, for each round, converges every correct peer on the same
// Commit/Reject/Nothing outcome without a designated leader. Grounded on
// irohad/consensus/yac's vote-storage and outcome-delay sources, adapted to
// the teacher's goroutine-and-channel idiom rather than the original's
// rxcpp observable chains.
package yac

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/empower1/consensusd/internal/crypto"
	"github.com/empower1/consensusd/internal/metrics"
	"github.com/empower1/consensusd/internal/transport"
	"github.com/empower1/consensusd/internal/types"
)

// OutcomeTopic names an eventbus topic for finalized GateObjects. Core does
// not publish on it: outcomes are delivered on the Outcomes channel, which
// the Round Driver reads.
const OutcomeTopic = "yac.outcome"

// PeerResolver looks up a live outbound Peer handle for a public key,
// letting Core gossip votes without owning connection lifecycle itself.
type PeerResolver interface {
	Resolve(pk types.PublicKey) (transport.Peer, bool)
}

// Core is the per-node YAC state machine: one instance exists per running
// node and lives for the node's lifetime, reset to a new round by SetRound
// on every Round Driver iteration.
type Core struct {
	self     types.PublicKey
	signer   crypto.Adapter
	checker  SupermajorityChecker
	strategy CleanupStrategy
	votes    *VoteStorage
	resolver PeerResolver
	metrics  *metrics.Collectors
	clk      clock.Clock
	log      *zap.SugaredLogger

	mu           sync.Mutex
	voteDelay    time.Duration
	currentRound types.Round
	ledgerState  types.LedgerState
	peers        types.PeerSet
	candidates   map[types.Round]*types.Block
	sentTo       map[types.Round]map[types.PublicKey]bool
	future       map[types.Round][]types.Vote
	emitted      map[types.Round]bool

	outcomes chan types.GateObject
}

// NewCore constructs a Core using checker for supermajority decisions.
// Outcomes are delivered on the returned channel's buffer; callers should
// drain it via Outcomes().
func NewCore(self types.PublicKey, signer crypto.Adapter, checker SupermajorityChecker, resolver PeerResolver, log *zap.SugaredLogger) *Core {
	strategy := BufferedCleanupStrategy{}
	return &Core{
		self:       self,
		signer:     signer,
		checker:    checker,
		strategy:   strategy,
		votes:      NewVoteStorage(checker, strategy),
		resolver:   resolver,
		clk:        clock.New(),
		log:        log.Named("yac"),
		candidates: make(map[types.Round]*types.Block),
		sentTo:     make(map[types.Round]map[types.PublicKey]bool),
		future:     make(map[types.Round][]types.Vote),
		emitted:    make(map[types.Round]bool),
		outcomes:   make(chan types.GateObject, 16),
	}
}

// Outcomes returns the channel GateObjects are published to, one per round,
// exactly once.
func (c *Core) Outcomes() <-chan types.GateObject { return c.outcomes }

// SetMetrics attaches a Collectors set for vote counters; nil (the
// zero-value default) disables metrics recording entirely.
func (c *Core) SetMetrics(m *metrics.Collectors) {
	c.mu.Lock()
	c.metrics = m
	c.mu.Unlock()
}

// SetVoteDelay configures an artificial pause between signing this node's
// vote and broadcasting it, matching spec.md §6's vote_delay option.
func (c *Core) SetVoteDelay(d time.Duration) {
	c.mu.Lock()
	c.voteDelay = d
	c.mu.Unlock()
}

// SetClock substitutes the clock used for vote_delay, letting tests supply
// a clock.NewMock() instead of the real wall clock.
func (c *Core) SetClock(clk clock.Clock) {
	c.mu.Lock()
	c.clk = clk
	c.mu.Unlock()
}

// SetRound begins round, recording the ledger state snapshot and peer set
// votes will be evaluated against, and replays any future votes that were
// buffered for this round while it was still ahead of currentRound.
func (c *Core) SetRound(round types.Round, ledgerState types.LedgerState, peers types.PeerSet) {
	c.mu.Lock()
	c.currentRound = round
	c.ledgerState = ledgerState
	c.peers = peers
	buffered := c.future[round]
	delete(c.future, round)
	c.mu.Unlock()

	for _, v := range buffered {
		c.processVote(v)
	}
}

// Vote computes this node's YacHash for round (nothing_hash if block is
// nil), signs it, stores it locally and broadcasts it to every peer in
// round's cluster.
func (c *Core) Vote(ctx context.Context, round types.Round, proposalHash types.Hash, block *types.Block) error {
	hash := types.YacHash{Round: round}
	if block != nil {
		hash.ProposalHash = proposalHash
		hash.BlockHash = block.BlockHash()
		c.mu.Lock()
		c.candidates[round] = block
		c.mu.Unlock()
	}

	sig, err := c.signer.Sign(yacHashDigest(hash))
	if err != nil {
		return fmt.Errorf("sign vote: %w", err)
	}
	vote := types.Vote{Hash: hash, Signature: sig}

	c.processVote(vote)

	c.mu.Lock()
	delay, clk := c.voteDelay, c.clk
	c.mu.Unlock()
	if delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-clk.After(delay):
		}
	}

	c.gossip(ctx, round, []types.Vote{vote})
	return nil
}

// OnVotes implements transport.Handler's vote delivery: verifies each
// vote's signature and cluster membership before processing it.
func (c *Core) OnVotes(from types.PublicKey, votes []types.Vote) {
	c.mu.Lock()
	peers := c.peers
	c.mu.Unlock()

	var accepted []types.Vote
	var rejections error
	for _, v := range votes {
		if !crypto.VerifyWithKey(v.Signature.PublicKey, yacHashDigest(v.Hash), v.Signature.Bytes) {
			rejections = multierr.Append(rejections, fmt.Errorf("round %s: invalid vote signature", v.Hash.Round))
			continue
		}
		if len(peers) > 0 && !peers.Contains(v.Signature.PublicKey) {
			rejections = multierr.Append(rejections, fmt.Errorf("round %s: vote from non-cluster signer", v.Hash.Round))
			continue
		}
		accepted = append(accepted, v)
	}
	if rejections != nil {
		c.log.Warnw("dropped structurally invalid votes", "from", from, "errors", rejections)
	}
	if len(accepted) == 0 {
		return
	}
	c.mu.Lock()
	if c.metrics != nil {
		c.metrics.VotesReceived.Add(float64(len(accepted)))
	}
	c.mu.Unlock()
	// Each vote's creator already broadcasts it directly to every peer in
	// the round's cluster (see Vote), so OnVotes only needs to process
	// what arrived, not relay it onward.
	c.processVote(accepted...)
}

// processVote routes each vote to the right round bucket: future rounds are
// buffered, past rounds are answered with a sync-by-commit reply if known,
// and current-round votes are inserted into vote storage and evaluated.
func (c *Core) processVote(votes ...types.Vote) {
	for _, v := range votes {
		c.mu.Lock()
		current := c.currentRound
		peerCount := len(c.peers)
		c.mu.Unlock()

		switch v.Hash.Round.Compare(current) {
		case 1:
			c.mu.Lock()
			c.future[v.Hash.Round] = append(c.future[v.Hash.Round], v)
			c.mu.Unlock()
			continue
		case -1:
			c.replyWithFinalized(v)
			continue
		}

		outcome := c.votes.Store(v.Hash.Round, v, peerCount)
		c.emit(v.Hash.Round, outcome)
	}
}

// replyWithFinalized implements the sync-by-commit helper: if v's round is
// already finalized locally and its votes are still resident, the signer is
// sent the full vote set for that round so it can catch up without waiting
// on the Synchronizer's block-sync path.
func (c *Core) replyWithFinalized(v types.Vote) {
	if !c.votes.IsCommitted(v.Hash.Round) {
		return
	}
	votes, ok := c.votes.RoundVotes(v.Hash.Round)
	if !ok || len(votes) == 0 {
		return
	}
	peer, ok := c.resolver.Resolve(v.Signature.PublicKey)
	if !ok {
		return
	}
	if err := peer.SendVotes(context.Background(), votes); err != nil {
		c.log.Debugw("sync-by-commit reply failed", "round", v.Hash.Round, "error", err)
	}
}

// emit publishes a GateObject the first time round's outcome becomes Commit
// or Reject; subsequent calls for the same round are no-ops, per spec.md
// §4.5 step 4.
func (c *Core) emit(round types.Round, outcome InsertOutcome) {
	var kind types.GateOutcome
	switch {
	case outcome.Answer.Kind == types.AnswerCommit && outcome.Answer.Hash.IsNothing():
		kind = types.OutcomeNothing
	case outcome.Answer.Kind == types.AnswerCommit:
		kind = types.OutcomeCommit
	case outcome.Answer.Kind == types.AnswerReject:
		kind = types.OutcomeReject
	default:
		return
	}

	c.mu.Lock()
	if c.emitted[round] {
		c.mu.Unlock()
		return
	}
	c.emitted[round] = true
	ledgerState := c.ledgerState
	var block *types.Block
	if kind == types.OutcomeCommit {
		block = c.candidates[round]
	}
	c.mu.Unlock()

	obj := types.GateObject{
		Round:       round,
		Outcome:     kind,
		LedgerState: ledgerState,
		Hash:        outcome.Answer.Hash,
		Votes:       outcome.Answer.Votes,
		Block:       block,
	}
	c.log.Infow("round finalized", "round", round, "outcome", kind.String())
	select {
	case c.outcomes <- obj:
	default:
		c.log.Warnw("outcome channel full, dropping oldest", "round", round)
		select {
		case <-c.outcomes:
		default:
		}
		c.outcomes <- obj
	}
}

// gossip forwards votes to every peer in the round's cluster that this node
// has not already sent them to, tracked per round so a vote is relayed to
// each peer at most once. Sends fan out concurrently via errgroup since
// peers are independent and a slow or unreachable one must not delay
// delivery to the rest of the cluster.
func (c *Core) gossip(ctx context.Context, round types.Round, votes []types.Vote) {
	c.mu.Lock()
	peers := append(types.PeerSet(nil), c.peers...)
	sent, ok := c.sentTo[round]
	if !ok {
		sent = make(map[types.PublicKey]bool)
		c.sentTo[round] = sent
	}
	c.mu.Unlock()

	sort.Slice(peers, func(i, j int) bool { return string(peers[i].PublicKey[:]) < string(peers[j].PublicKey[:]) })

	g, gctx := errgroup.WithContext(ctx)
	for _, p := range peers {
		if p.PublicKey == c.self {
			continue
		}
		c.mu.Lock()
		already := sent[p.PublicKey]
		sent[p.PublicKey] = true
		c.mu.Unlock()
		if already {
			continue
		}
		peer, ok := c.resolver.Resolve(p.PublicKey)
		if !ok {
			continue
		}
		target := p
		dest := peer
		g.Go(func() error {
			if err := dest.SendVotes(gctx, votes); err != nil {
				c.log.Debugw("gossip send failed", "peer", target.Address, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// yacHashDigest hashes the fields a Vote's signature covers.
func yacHashDigest(h types.YacHash) types.Hash {
	return types.ConcatHash(h.ProposalHash, h.BlockHash, types.HashBytes([]byte(h.Round.String())))
}
