package yac

import (
	"sync"

	"github.com/empower1/consensusd/internal/types"
)

// ProcessingState is the one-way state machine VoteStorage keeps per round
// to prevent a gate from emitting the same outcome twice and to decide
// whether a round's outcome has already been broadcast.
type ProcessingState int

const (
	NotSentNotProcessed ProcessingState = iota
	SentNotProcessed
	SentProcessed
)

// nextProcessingState advances the one-way NotSentNotProcessed ->
// SentNotProcessed -> SentProcessed machine, ported from
// YacVoteStorage::nextProcessingState. Any other transition is rejected by
// staying put.
func nextProcessingState(s ProcessingState) ProcessingState {
	switch s {
	case NotSentNotProcessed:
		return SentNotProcessed
	case SentNotProcessed:
		return SentProcessed
	default:
		return s
	}
}

// CleanupStrategy decides which finalized rounds a VoteStorage should
// forget and whether a not-yet-seen round should get a new ProposalStorage
// at all. BufferedCleanupStrategy is the only implementation: it always
// creates new rounds and only garbage-collects a round once a later round
// has committed, keeping just enough history for isCommitted fallback.
type CleanupStrategy interface {
	ShouldCreateRound(round types.Round) bool
	// Finalize is called after an insert with the round just touched and
	// its outcome; it returns the set of rounds that should now be
	// removed from the storage.
	Finalize(round types.Round, outcome InsertOutcome, allRounds []types.Round) []types.Round
}

// BufferedCleanupStrategy keeps every round's ProposalStorage until a
// Commit occurs, at which point every round strictly before the committed
// one is dropped.
type BufferedCleanupStrategy struct{}

func (BufferedCleanupStrategy) ShouldCreateRound(types.Round) bool { return true }

func (BufferedCleanupStrategy) Finalize(round types.Round, outcome InsertOutcome, allRounds []types.Round) []types.Round {
	if outcome.Answer.Kind != types.AnswerCommit {
		return nil
	}
	var drop []types.Round
	for _, r := range allRounds {
		if r.Less(round) {
			drop = append(drop, r)
		}
	}
	return drop
}

// VoteStorage is the cross-round home for every round's ProposalStorage,
// ported from yac_vote_storage.cpp. It tracks the last finalized round so
// isCommitted can still answer correctly after a round's storage has been
// garbage-collected.
type VoteStorage struct {
	mu       sync.Mutex
	checker  SupermajorityChecker
	strategy CleanupStrategy

	rounds          map[types.Round]*ProposalStorage
	processingState map[types.Round]ProcessingState
	lastFinalized   types.Round
	haveFinalized   bool
}

// NewVoteStorage constructs an empty VoteStorage using checker for
// supermajority decisions and strategy for round lifecycle.
func NewVoteStorage(checker SupermajorityChecker, strategy CleanupStrategy) *VoteStorage {
	return &VoteStorage{
		checker:         checker,
		strategy:        strategy,
		rounds:          make(map[types.Round]*ProposalStorage),
		processingState: make(map[types.Round]ProcessingState),
	}
}

// getOrCreate returns round's ProposalStorage, creating one (sized for
// peersInRound) if the cleanup strategy allows it.
func (s *VoteStorage) getOrCreate(round types.Round, peersInRound int) *ProposalStorage {
	if ps, ok := s.rounds[round]; ok {
		return ps
	}
	if !s.strategy.ShouldCreateRound(round) {
		return nil
	}
	ps := NewProposalStorage(round, peersInRound, s.checker)
	s.rounds[round] = ps
	s.processingState[round] = NotSentNotProcessed
	return ps
}

// Store inserts vote into round's ProposalStorage (sized for
// peersInRound), runs the cleanup strategy's finalize step, and returns the
// outcome of this specific insert.
func (s *VoteStorage) Store(round types.Round, vote types.Vote, peersInRound int) InsertOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	ps := s.getOrCreate(round, peersInRound)
	if ps == nil {
		return InsertOutcome{Answer: types.Answer{Kind: types.AnswerNone}}
	}
	outcome := ps.Insert(vote)

	if outcome.Answer.Kind == types.AnswerCommit {
		s.lastFinalized = round
		s.haveFinalized = true
	}

	all := make([]types.Round, 0, len(s.rounds))
	for r := range s.rounds {
		all = append(all, r)
	}
	for _, drop := range s.strategy.Finalize(round, outcome, all) {
		delete(s.rounds, drop)
		delete(s.processingState, drop)
	}
	return outcome
}

// IsCommitted reports whether round has already produced a Commit, either
// because its (still-resident) ProposalStorage says so or because a later
// round was finalized and this round's storage was garbage-collected as a
// result (in which case it must have been superseded by a commit).
func (s *VoteStorage) IsCommitted(round types.Round) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ps, ok := s.rounds[round]; ok {
		return ps.aggregate().Kind == types.AnswerCommit
	}
	// The round's own storage was garbage-collected, which only happens
	// once a later round committed: fall back to comparing against the
	// last finalized round, mirroring last_round_ >= round.
	return s.haveFinalized && !s.lastFinalized.Less(round)
}

// GetProcessingState returns round's current processing state.
func (s *VoteStorage) GetProcessingState(round types.Round) ProcessingState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processingState[round]
}

// NextProcessingState advances round's processing state by one step and
// returns the new state.
func (s *VoteStorage) NextProcessingState(round types.Round) ProcessingState {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := nextProcessingState(s.processingState[round])
	s.processingState[round] = next
	return next
}

// RoundVotes returns every vote accumulated for round across all hashes, if
// that round's ProposalStorage is still resident. Used for the
// sync-by-commit reply to lagging peers.
func (s *VoteStorage) RoundVotes(round types.Round) ([]types.Vote, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ps, ok := s.rounds[round]
	if !ok {
		return nil, false
	}
	var all []types.Vote
	for _, bs := range ps.blocks {
		all = append(all, bs.Votes()...)
	}
	return all, true
}

// GetLastFinalizedRound returns the most recently committed round and
// whether any round has ever committed.
func (s *VoteStorage) GetLastFinalizedRound() (types.Round, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastFinalized, s.haveFinalized
}
