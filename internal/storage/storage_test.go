package storage

import (
	"testing"

	"github.com/empower1/consensusd/internal/types"
)

func genesisPeer() types.Peer {
	var pk types.PublicKey
	pk[0] = 0x04
	pk[1] = 1
	return types.Peer{PublicKey: pk, Address: "127.0.0.1:10001"}
}

func TestMemoryAdapterCommitAndRead(t *testing.T) {
	a := NewMemoryAdapter(types.PeerSet{genesisPeer()})
	blk := &types.Block{Height: 1, CreatedTime: 1}
	if err := a.CommitBlock(blk); err != nil {
		t.Fatalf("CommitBlock: %v", err)
	}
	top, err := a.TopBlockInfo()
	if err != nil {
		t.Fatalf("TopBlockInfo: %v", err)
	}
	if top.Height != 1 || top.Hash != blk.BlockHash() {
		t.Fatalf("unexpected top block info: %+v", top)
	}
	got, err := a.BlockByHeight(1)
	if err != nil {
		t.Fatalf("BlockByHeight: %v", err)
	}
	if got.BlockHash() != blk.BlockHash() {
		t.Fatal("round-tripped block hash mismatch")
	}
}

func TestMemoryAdapterPeersAtUnknownHeight(t *testing.T) {
	a := NewMemoryAdapter(types.PeerSet{genesisPeer()})
	if _, err := a.PeersAt(99); err == nil {
		t.Fatal("expected error for unrecorded height")
	}
}

func TestMemoryAdapterAddPeerCommand(t *testing.T) {
	a := NewMemoryAdapter(types.PeerSet{genesisPeer()})
	var newPK types.PublicKey
	newPK[0] = 0x04
	newPK[1] = 2
	newPeer := types.Peer{PublicKey: newPK, Address: "127.0.0.1:10002"}
	tx := &types.Transaction{
		Commands: []types.Command{{Kind: "AddPeer", AddPeer: &newPeer}},
	}
	blk := &types.Block{Height: 1, Transactions: []*types.Transaction{tx}}
	if err := a.CommitBlock(blk); err != nil {
		t.Fatalf("CommitBlock: %v", err)
	}
	peers, err := a.PeersAt(1)
	if err != nil {
		t.Fatalf("PeersAt: %v", err)
	}
	if !peers.Contains(newPK) {
		t.Fatal("expected AddPeer command to be reflected in the post-block peer set")
	}
}
