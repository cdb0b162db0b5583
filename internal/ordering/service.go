package ordering

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/empower1/consensusd/internal/types"
)

// Clock abstracts "now" so tests can control proposal created_time and the
// expiry sweep deterministically, matching the teacher's preference for
// injected clocks over direct time.Now calls.
type Clock interface {
	NowMillis() uint64
}

// Service is the per-round proposal factory described in spec.md §4.3,
// ported from OnDemandOrderingServiceImpl.
type Service struct {
	transactionLimit     int
	numberOfProposals    int
	maxDelayMillis       uint64
	maxPastCreatedMillis uint64

	store *BatchStore
	clock Clock
	log   *zap.SugaredLogger

	mu           sync.Mutex
	currentRound types.Round
	proposalMap  map[types.Round]*types.Proposal
}

// NewService constructs an Ordering Service backed by store.
// numberOfProposals is N_PROPOSALS from spec.md §3 (default 5).
// maxPastCreatedMillis is max_past_created_hours (spec.md §6) converted to
// milliseconds: a batch with any transaction older than this, relative to
// clock.NowMillis() at submission time, is refused outright.
func NewService(store *BatchStore, clock Clock, transactionLimit, numberOfProposals int, maxDelayMillis, maxPastCreatedMillis uint64, log *zap.SugaredLogger) *Service {
	return &Service{
		transactionLimit:     transactionLimit,
		numberOfProposals:    numberOfProposals,
		maxDelayMillis:       maxDelayMillis,
		maxPastCreatedMillis: maxPastCreatedMillis,
		store:                store,
		clock:                clock,
		log:                  log.Named("ordering"),
		proposalMap:          make(map[types.Round]*types.Proposal),
	}
}

// OnCollaborationOutcome advances the service's notion of current round
// and triggers proposal-cache GC, per spec.md §4.3.
func (s *Service) OnCollaborationOutcome(round types.Round) {
	s.log.Debugw("collaboration outcome", "round", round)
	s.mu.Lock()
	s.currentRound = round
	s.mu.Unlock()
	s.tryErase(round)
}

// OnBatches inserts each batch into the Batch Store, first refusing any
// batch holding a transaction older than maxPastCreatedMillis (spec.md §6's
// max_past_created_hours) as a whole: a batch is all-or-nothing, so one
// stale transaction sinks the batch it travels with.
func (s *Service) OnBatches(batches []*types.Batch) {
	accepted := 0
	now := s.clock.NowMillis()
	for _, b := range batches {
		if s.maxPastCreatedMillis > 0 && s.hasStaleTransaction(b, now) {
			s.log.Debugw("dropped batch with a transaction past max_past_created_hours", "hash", b.ReducedBatchHash())
			continue
		}
		s.store.Insert(b)
		accepted++
	}
	s.log.Debugw("batches received", "count", len(batches), "accepted", accepted)
}

func (s *Service) hasStaleTransaction(b *types.Batch, now uint64) bool {
	for _, tx := range b.Transactions {
		if tx.CreatedTime+s.maxPastCreatedMillis < now {
			return true
		}
	}
	return false
}

// OnRequestProposal returns a cached proposal for round, or creates one
// iff round is within two steps of the current round (inclusive); returns
// nil if none is available.
func (s *Service) OnRequestProposal(round types.Round) *types.Proposal {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.proposalMap[round]; ok {
		return p
	}

	if s.currentRound.StepsAhead(round) > 2 {
		return nil
	}

	return s.packNextProposal(round)
}

// packNextProposal builds one proposal from the Batch Store's available
// transactions (after an expiry sweep) and memoizes it under round,
// including a nil entry when the store yields nothing — matching
// tryCreateProposal's unconditional proposal_map_.emplace.
func (s *Service) packNextProposal(round types.Round) *types.Proposal {
	s.store.ExpirySweep(s.clock.NowMillis(), s.maxDelayMillis)
	var txs []*types.Transaction
	if !s.store.IsEmpty() {
		txs = s.store.TakeTransactions(s.transactionLimit)
	}

	var proposal *types.Proposal
	if len(txs) > 0 {
		proposal = &types.Proposal{
			Height:       round.BlockRound,
			CreatedTime:  s.clock.NowMillis(),
			Transactions: txs,
		}
		s.log.Debugw("packed proposal", "round", round, "tx_count", len(txs))
	} else {
		s.log.Debugw("no transactions to create a proposal", "round", round)
	}
	s.proposalMap[round] = proposal
	return proposal
}

// tryErase keeps at most numberOfProposals rounds strictly before
// current_round, dropping everything older, mirroring the lower_bound
// walk-back in the original OnDemandOrderingServiceImpl::tryErase.
func (s *Service) tryErase(currentRound types.Round) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.proposalMap) == 0 {
		return
	}
	rounds := make([]types.Round, 0, len(s.proposalMap))
	for r := range s.proposalMap {
		rounds = append(rounds, r)
	}
	sort.Slice(rounds, func(i, j int) bool { return rounds[i].Less(rounds[j]) })

	// cutIdx is the index of the first round >= currentRound (lower_bound).
	cutIdx := len(rounds)
	for i, r := range rounds {
		if !r.Less(currentRound) {
			cutIdx = i
			break
		}
	}
	// Walk back up to numberOfProposals entries from cutIdx.
	keepFrom := cutIdx - s.numberOfProposals
	if keepFrom < 0 {
		keepFrom = 0
	}
	if keepFrom == 0 {
		// Nothing old enough to prune: the window [0, cutIdx) has at most
		// numberOfProposals entries already.
		return
	}
	for _, r := range rounds[:keepFrom] {
		delete(s.proposalMap, r)
		s.log.Debugw("erased stale proposal", "round", r)
	}
}

// HasProposal reports whether round already has a memoized proposal
// (possibly nil, meaning "checked and found nothing").
func (s *Service) HasProposal(round types.Round) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.proposalMap[round]
	return ok
}
