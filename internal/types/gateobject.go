package types

// GateOutcome enumerates what the YAC gate emits to the Round Driver at the
// close of a round.
type GateOutcome int

const (
	// OutcomeNothing means a supermajority voted for the nothing hash (no
	// block) in the round.
	OutcomeNothing GateOutcome = iota
	// OutcomeReject means votes split across incompatible hashes so that no
	// hash can still reach a supermajority.
	OutcomeReject
	// OutcomeCommit means a supermajority agreed on one non-nothing hash.
	OutcomeCommit
	// OutcomeFuture names the state of a vote addressed to a round after the
	// current one. yac.Core buffers every such vote and replays it when that
	// round begins; it never emits OutcomeFuture as a GateObject outcome.
	OutcomeFuture
)

func (o GateOutcome) String() string {
	switch o {
	case OutcomeNothing:
		return "nothing"
	case OutcomeReject:
		return "reject"
	case OutcomeCommit:
		return "commit"
	case OutcomeFuture:
		return "future"
	default:
		return "unknown"
	}
}

// GateObject is what the YAC Core publishes on its outcome topic at the end
// of a round: the round it concerns, what happened, the resulting ledger
// state, and — for a Commit — the committed hash, the Commit votes (whose
// signers are the peers that agreed on it), and the local candidate block
// if this node happened to have one (nil when the commit belongs to a
// round this node only learned about through other peers' votes).
type GateObject struct {
	Round       Round
	Outcome     GateOutcome
	LedgerState LedgerState
	Hash        YacHash // the agreed hash for Commit and Nothing (the nothing hash); zero value for Reject
	Votes       []Vote  // Commit/Nothing: the votes for Hash; Reject: every vote seen in the round
	Block       *Block  // non-nil iff this node holds the committed block locally
}
