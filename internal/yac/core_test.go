package yac

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/empower1/consensusd/internal/crypto"
	"github.com/empower1/consensusd/internal/logging"
	"github.com/empower1/consensusd/internal/transport"
	"github.com/empower1/consensusd/internal/types"
)

// fakePeer relays votes directly into another node's Core, skipping the
// wire entirely, mirroring transport.Loopback's in-process shape.
type fakePeer struct {
	target *Core
}

func (f *fakePeer) SendVotes(ctx context.Context, votes []types.Vote) error {
	f.target.OnVotes(types.PublicKey{}, votes)
	return nil
}
func (f *fakePeer) SendBatches(context.Context, []types.Batch) error { return errors.New("unused") }
func (f *fakePeer) RequestProposal(context.Context, types.Round) (*types.Proposal, error) {
	return nil, errors.New("unused")
}
func (f *fakePeer) RetrieveBlock(context.Context, uint64) (*types.Block, error) {
	return nil, errors.New("unused")
}
func (f *fakePeer) RetrieveBlocks(context.Context, uint64) (<-chan *types.Block, error) {
	return nil, errors.New("unused")
}

type fakeResolver struct {
	peers map[types.PublicKey]transport.Peer
}

func (r *fakeResolver) Resolve(pk types.PublicKey) (transport.Peer, bool) {
	p, ok := r.peers[pk]
	return p, ok
}

func newTestNetwork(t *testing.T, n int) ([]*Core, types.PeerSet) {
	t.Helper()
	cores := make([]*Core, n)
	signers := make([]crypto.Adapter, n)
	peerSet := make(types.PeerSet, n)
	resolver := &fakeResolver{peers: make(map[types.PublicKey]transport.Peer)}

	for i := 0; i < n; i++ {
		signer, err := crypto.GenerateAdapter()
		if err != nil {
			t.Fatalf("GenerateAdapter: %v", err)
		}
		signers[i] = signer
		peerSet[i] = types.Peer{PublicKey: signer.PublicKey()}
	}
	for i := 0; i < n; i++ {
		cores[i] = NewCore(signers[i].PublicKey(), signers[i], BFTChecker{}, resolver, logging.Nop())
		resolver.peers[signers[i].PublicKey()] = &fakePeer{target: cores[i]}
	}
	return cores, peerSet
}

func TestCoreCommitsOnSupermajorityAcrossNetwork(t *testing.T) {
	cores, peers := newTestNetwork(t, 4)
	round := types.Round{BlockRound: 1}
	ledgerState := types.LedgerState{TopBlock: types.TopBlockInfo{Height: 0}}
	for _, c := range cores {
		c.SetRound(round, ledgerState, peers)
	}

	block := &types.Block{Height: 1, CreatedTime: 1}
	proposalHash := types.HashBytes([]byte("proposal"))

	for _, c := range cores {
		if err := c.Vote(context.Background(), round, proposalHash, block); err != nil {
			t.Fatalf("Vote: %v", err)
		}
	}

	// Nodes 0-2 had cast their own votes when the third vote reached them,
	// so they hold the candidate block. Node 3 reached a supermajority from
	// the other three nodes' votes before calling Vote, so its GateObject
	// carries the committed hash but no local block.
	for i, c := range cores {
		select {
		case obj := <-c.Outcomes():
			if obj.Outcome != types.OutcomeCommit {
				t.Fatalf("node %d: expected commit, got %v", i, obj.Outcome)
			}
			if i < 3 {
				if obj.Block == nil || obj.Block.BlockHash() != block.BlockHash() {
					t.Fatalf("node %d: expected committed block to match", i)
				}
			} else {
				if obj.Block != nil || obj.Hash.BlockHash != block.BlockHash() {
					t.Fatalf("node %d: expected committed hash without a local block", i)
				}
			}
		case <-time.After(time.Second):
			t.Fatalf("node %d: timed out waiting for outcome", i)
		}
	}
}

func TestCoreEmitsOnlyOnceOnlinePerRound(t *testing.T) {
	cores, peers := newTestNetwork(t, 4)
	round := types.Round{BlockRound: 1}
	for _, c := range cores {
		c.SetRound(round, types.LedgerState{}, peers)
	}
	block := &types.Block{Height: 1}
	proposalHash := types.HashBytes([]byte("p"))
	for _, c := range cores {
		c.Vote(context.Background(), round, proposalHash, block)
	}
	select {
	case <-cores[0].Outcomes():
	case <-time.After(time.Second):
		t.Fatal("expected one outcome")
	}
	select {
	case obj := <-cores[0].Outcomes():
		t.Fatalf("expected no second outcome for the same round, got %v", obj)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCoreBuffersFutureVotesAndReplaysOnSetRound(t *testing.T) {
	cores, peers := newTestNetwork(t, 4)
	currentRound := types.Round{BlockRound: 1}
	futureRound := types.Round{BlockRound: 3}
	for _, c := range cores {
		c.SetRound(currentRound, types.LedgerState{}, peers)
	}

	block := &types.Block{Height: 3}
	proposalHash := types.HashBytes([]byte("future"))
	// Three of four nodes vote for a round well ahead of node0's current
	// round; node0 must buffer rather than evaluate them immediately.
	for i := 1; i < 4; i++ {
		if err := cores[i].Vote(context.Background(), futureRound, proposalHash, block); err != nil {
			t.Fatalf("Vote: %v", err)
		}
	}

	select {
	case obj := <-cores[0].Outcomes():
		t.Fatalf("expected no outcome before SetRound caught up, got %v", obj)
	case <-time.After(50 * time.Millisecond):
	}

	cores[0].SetRound(futureRound, types.LedgerState{}, peers)
	if err := cores[0].Vote(context.Background(), futureRound, proposalHash, block); err != nil {
		t.Fatalf("Vote: %v", err)
	}

	select {
	case obj := <-cores[0].Outcomes():
		if obj.Outcome != types.OutcomeCommit {
			t.Fatalf("expected commit once buffered votes replayed, got %v", obj.Outcome)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for replayed outcome")
	}
}

func TestCoreRejectsOnIncompatibleSplit(t *testing.T) {
	cores, peers := newTestNetwork(t, 4)
	round := types.Round{BlockRound: 1}
	for _, c := range cores {
		c.SetRound(round, types.LedgerState{}, peers)
	}
	blockA := &types.Block{Height: 1, CreatedTime: 1}
	blockB := &types.Block{Height: 1, CreatedTime: 2}
	hashA := types.HashBytes([]byte("a"))
	hashB := types.HashBytes([]byte("b"))

	cores[0].Vote(context.Background(), round, hashA, blockA)
	cores[1].Vote(context.Background(), round, hashA, blockA)
	cores[2].Vote(context.Background(), round, hashB, blockB)
	cores[3].Vote(context.Background(), round, hashB, blockB)

	select {
	case obj := <-cores[0].Outcomes():
		if obj.Outcome != types.OutcomeReject {
			t.Fatalf("expected reject, got %v", obj.Outcome)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for reject outcome")
	}
}
