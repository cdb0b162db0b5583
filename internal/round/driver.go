// Package round implements the Round Driver from spec.md §4.9: the
// orchestration loop that sequences the Ordering Service, Simulator, YAC
// Core and Synchronizer through one consensus attempt after another,
// grounded on the teacher's internal/consensus.ConsensusEngine Start/Stop
// loop shape (context/cancel, WaitGroup, atomic running flag, Once
// guards), generalized from a fixed proposer-turn check into the nine-step
// sequence spec.md names.
package round

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/empower1/consensusd/internal/eventbus"
	"github.com/empower1/consensusd/internal/metrics"
	"github.com/empower1/consensusd/internal/ordering"
	"github.com/empower1/consensusd/internal/simulator"
	"github.com/empower1/consensusd/internal/storage"
	"github.com/empower1/consensusd/internal/syncer"
	"github.com/empower1/consensusd/internal/transport"
	"github.com/empower1/consensusd/internal/types"
	"github.com/empower1/consensusd/internal/yac"
)

// RoundSwitchTopic and SyncTopic carry the round-switch and sync events on
// a shared bus so any number of subscribers — metrics, a query-side
// projector, an operator console — can observe them without the Driver
// holding direct references. Blocks, proposals and verified proposals are
// not published on the bus.
const (
	RoundSwitchTopic = "driver.round_switch"
	SyncTopic        = "driver.sync"
)

// PeerResolver looks up a live outbound Peer handle, the same boundary
// yac.Core and syncer.Synchronizer use.
type PeerResolver interface {
	Resolve(pk types.PublicKey) (transport.Peer, bool)
}

// SwitchEvent is what RoundSwitchTopic carries: the round just entered and
// the ledger state it was computed against.
type SwitchEvent struct {
	Round       types.Round
	LedgerState types.LedgerState
}

// Driver owns "current round" and drives it forward, per spec.md §4.9 and
// the Testable Properties' round-monotonicity requirement.
type Driver struct {
	self     types.PublicKey
	ordering *ordering.Service
	simul    *simulator.Simulator
	yacCore  *yac.Core
	syncer   *syncer.Synchronizer
	resolver PeerResolver
	storage  storage.Adapter
	delay    *yac.OutcomeDelay
	bus      *eventbus.Bus[SwitchEvent]
	syncBus  *eventbus.Bus[types.SynchronizationEvent]
	metrics  *metrics.Collectors
	clk      clock.Clock
	log      *zap.SugaredLogger

	proposalTimeout time.Duration
	voteTimeout     time.Duration
	syncingMode     bool

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	running   atomic.Bool
	startOnce sync.Once
	stopOnce  sync.Once

	mu           sync.RWMutex
	currentRound types.Round
	stopRequested bool
}

// Deps bundles the collaborators a Driver sequences. Bus and SyncBus may
// be nil, in which case a private bus is created and simply has no
// external subscribers.
type Deps struct {
	Self            types.PublicKey
	Ordering        *ordering.Service
	Simulator       *simulator.Simulator
	YAC             *yac.Core
	Syncer          *syncer.Synchronizer
	Resolver        PeerResolver
	Storage         storage.Adapter
	MaxRoundsDelay  time.Duration
	ProposalTimeout time.Duration
	VoteTimeout     time.Duration
	SyncingMode     bool
	Bus             *eventbus.Bus[SwitchEvent]
	SyncBus         *eventbus.Bus[types.SynchronizationEvent]
	Metrics         *metrics.Collectors
	// Clock lets tests substitute clock.NewMock() for deterministic
	// back-off and timeout behavior; nil uses the real wall clock.
	Clock clock.Clock
}

// New constructs a Driver from Deps, starting at round (1, 0).
func New(d Deps, log *zap.SugaredLogger) *Driver {
	bus := d.Bus
	if bus == nil {
		bus = eventbus.New[SwitchEvent]()
	}
	syncBus := d.SyncBus
	if syncBus == nil {
		syncBus = eventbus.New[types.SynchronizationEvent]()
	}
	clk := d.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Driver{
		self:            d.Self,
		ordering:        d.Ordering,
		simul:           d.Simulator,
		yacCore:         d.YAC,
		syncer:          d.Syncer,
		resolver:        d.Resolver,
		storage:         d.Storage,
		delay:           yac.NewOutcomeDelay(d.MaxRoundsDelay),
		bus:             bus,
		syncBus:         syncBus,
		metrics:         d.Metrics,
		clk:             clk,
		log:             log.Named("round"),
		proposalTimeout: d.ProposalTimeout,
		voteTimeout:     d.VoteTimeout,
		syncingMode:     d.SyncingMode,
		currentRound:    types.Round{BlockRound: 1, RejectRound: types.FirstReject},
	}
}

// Bus returns the round-switch event bus, for subscribers set up before
// Start.
func (d *Driver) Bus() *eventbus.Bus[SwitchEvent] { return d.bus }

// SyncBus returns the synchronization-event bus.
func (d *Driver) SyncBus() *eventbus.Bus[types.SynchronizationEvent] { return d.syncBus }

// CurrentRound returns the round the Driver is presently working on.
func (d *Driver) CurrentRound() types.Round {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.currentRound
}

// Start launches the driver loop.
func (d *Driver) Start(ctx context.Context) error {
	var err error
	d.startOnce.Do(func() {
		if d.running.Load() {
			err = fmt.Errorf("round driver already running")
			return
		}
		d.ctx, d.cancel = context.WithCancel(ctx)
		d.running.Store(true)
		d.wg.Add(1)
		go d.loop()
		d.log.Info("round driver started")
	})
	return err
}

// Stop marks stop_requested under the exclusive lock last, so that no
// component consulting it under a shared lock observes a stale "still
// running" view after Stop returns, then cancels the loop and waits for
// it to exit.
func (d *Driver) Stop() error {
	var err error
	d.stopOnce.Do(func() {
		if !d.running.Load() {
			err = fmt.Errorf("round driver not running")
			return
		}
		d.mu.Lock()
		d.stopRequested = true
		d.mu.Unlock()
		d.cancel()
		d.wg.Wait()
		d.running.Store(false)
		d.log.Info("round driver stopped")
	})
	return err
}

func (d *Driver) stopping() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.stopRequested
}

func (d *Driver) loop() {
	defer d.wg.Done()
	for {
		if d.stopping() || d.ctx.Err() != nil {
			return
		}
		next, err := d.runRound(d.ctx, d.CurrentRound())
		if err != nil {
			if d.ctx.Err() != nil {
				return
			}
			d.log.Warnw("round attempt failed, retrying same round", "round", d.CurrentRound(), "error", err)
			continue
		}

		d.mu.Lock()
		d.currentRound = next.round
		d.mu.Unlock()

		select {
		case <-d.ctx.Done():
			return
		case <-d.clk.After(next.backoff):
		}
	}
}

type roundResult struct {
	round   types.Round
	backoff time.Duration
}

// runRound executes the nine steps of spec.md §4.9 for round R and returns
// the next round to enter plus the back-off delay to apply before
// entering it.
func (d *Driver) runRound(ctx context.Context, r types.Round) (roundResult, error) {
	ledgerState, err := d.snapshotLedgerState()
	if err != nil {
		return roundResult{}, fmt.Errorf("snapshot ledger state: %w", err)
	}

	// Step 1.
	d.ordering.OnCollaborationOutcome(r)
	d.yacCore.SetRound(r, ledgerState, ledgerState.Peers())

	if d.syncingMode {
		// A syncing node never proposes or votes; it only advances its
		// notion of current round so future commits it observes over
		// the sync path are admitted, and otherwise idles.
		select {
		case <-ctx.Done():
			return roundResult{}, ctx.Err()
		case <-d.clk.After(d.proposalTimeout):
		}
		return roundResult{round: r, backoff: 0}, nil
	}

	// Steps 2-3.
	proposal := d.obtainProposal(ctx, r, ledgerState)
	var block *types.Block
	var proposalHash types.Hash
	if proposal != nil {
		verified, err := d.simul.ProcessProposal(proposal)
		if err != nil {
			return roundResult{}, fmt.Errorf("process proposal: %w", err)
		}
		block, err = d.simul.ProcessVerifiedProposal(verified, ledgerState)
		if err != nil {
			return roundResult{}, fmt.Errorf("process verified proposal: %w", err)
		}
		proposalHash = proposal.ProposalHash()
	}

	// Step 4.
	if err := d.yacCore.Vote(ctx, r, proposalHash, block); err != nil {
		return roundResult{}, fmt.Errorf("cast vote: %w", err)
	}
	if d.metrics != nil {
		d.metrics.VotesCast.Inc()
	}

	// Step 5.
	gateObj, err := d.awaitOutcome(ctx, r)
	if err != nil {
		return roundResult{}, err
	}

	// Step 6.
	event, err := d.syncer.ProcessOutcome(ctx, gateObj)
	if err != nil {
		return roundResult{}, fmt.Errorf("process outcome: %w", err)
	}
	if event != nil {
		d.syncBus.Publish(SyncTopic, *event)
		if d.metrics != nil {
			d.metrics.SyncedBlocks.Add(float64(len(event.Applied)))
		}
	}

	if d.metrics != nil {
		switch gateObj.Outcome {
		case types.OutcomeCommit:
			d.metrics.RoundsCommitted.Inc()
		case types.OutcomeReject:
			d.metrics.RoundsRejected.Inc()
		case types.OutcomeNothing:
			d.metrics.RoundsNothing.Inc()
		}
	}

	// Step 7.
	var next types.Round
	switch gateObj.Outcome {
	case types.OutcomeCommit:
		next = r.NextCommit()
	default:
		next = r.NextReject()
	}

	// Step 8.
	var backoff time.Duration
	if gateObj.Outcome == types.OutcomeCommit {
		d.delay.OnCommit()
	} else {
		backoff = d.delay.OnRejectOrNothing()
	}

	nextLedgerState, err := d.snapshotLedgerState()
	if err != nil {
		return roundResult{}, fmt.Errorf("snapshot ledger state after outcome: %w", err)
	}
	d.bus.Publish(RoundSwitchTopic, SwitchEvent{Round: next, LedgerState: nextLedgerState})

	if d.metrics != nil {
		d.metrics.CurrentBlockRound.Set(float64(next.BlockRound))
		d.metrics.CurrentRejectRound.Set(float64(next.RejectRound))
		d.metrics.BackoffSeconds.Observe(backoff.Seconds())
	}

	return roundResult{round: next, backoff: backoff}, nil
}

// obtainProposal implements step 2: use a local candidate from the
// Ordering Service's proposal cache, or fall back to requesting one from
// the round's designated ordering peer over the network.
func (d *Driver) obtainProposal(ctx context.Context, r types.Round, ledgerState types.LedgerState) *types.Proposal {
	if p := d.ordering.OnRequestProposal(r); p != nil {
		return p
	}

	peers := ledgerState.Peers()
	if len(peers) == 0 {
		return nil
	}
	target := peers[roundProposerIndex(r, len(peers))]
	if target.PublicKey == d.self {
		// We are the designated proposer and our own cache already came
		// back empty; there is nothing more to request.
		return nil
	}
	peer, ok := d.resolver.Resolve(target.PublicKey)
	if !ok {
		return nil
	}

	reqCtx, cancel := context.WithTimeout(ctx, d.proposalTimeout)
	defer cancel()
	proposal, err := peer.RequestProposal(reqCtx, r)
	if err != nil {
		d.log.Debugw("proposal request failed", "round", r, "peer", target.PublicKey, "error", err)
		return nil
	}
	return proposal
}

// roundProposerIndex picks a deterministic index into peers for round r,
// rotating by block round so proposal-request load is spread across the
// cluster rather than always falling on peers[0].
func roundProposerIndex(r types.Round, n int) int {
	return int(r.BlockRound % uint64(n))
}

// awaitOutcome blocks on the YAC Core's outcome channel until it delivers
// a GateObject for round r, a vote-delay timeout elapses, or ctx is
// cancelled. A GateObject for a different round (a stale delivery from a
// round this Driver has already moved past) is discarded and waiting
// continues, since the channel is shared across the Core's lifetime.
func (d *Driver) awaitOutcome(ctx context.Context, r types.Round) (types.GateObject, error) {
	timeout := d.voteTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	deadline := d.clk.Timer(timeout)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return types.GateObject{}, ctx.Err()
		case <-deadline.C:
			return types.GateObject{Round: r, Outcome: types.OutcomeNothing}, nil
		case obj, ok := <-d.yacCore.Outcomes():
			if !ok {
				return types.GateObject{}, fmt.Errorf("yac outcome channel closed")
			}
			if obj.Round != r {
				continue
			}
			return obj, nil
		}
	}
}

func (d *Driver) snapshotLedgerState() (types.LedgerState, error) {
	top, err := d.storage.TopBlockInfo()
	if err != nil {
		return types.LedgerState{}, err
	}
	peers, err := d.storage.PeersAt(top.Height)
	if err != nil {
		return types.LedgerState{}, err
	}
	return types.LedgerState{TopBlock: top, LedgerPeers: peers}, nil
}
