package transport

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/empower1/consensusd/internal/logging"
	"github.com/empower1/consensusd/internal/types"
)

type fakePeer struct{ addr string }

func (fakePeer) SendVotes(context.Context, []types.Vote) error                { return nil }
func (fakePeer) SendBatches(context.Context, []types.Batch) error             { return nil }
func (fakePeer) RequestProposal(context.Context, types.Round) (*types.Proposal, error) {
	return nil, nil
}
func (fakePeer) RetrieveBlock(context.Context, uint64) (*types.Block, error) { return nil, nil }
func (fakePeer) RetrieveBlocks(context.Context, uint64) (<-chan *types.Block, error) {
	return nil, nil
}

type fakeDialer struct {
	dials int
	fail  bool
}

func (d *fakeDialer) Dial(_ context.Context, p types.Peer) (Peer, error) {
	d.dials++
	if d.fail {
		return nil, errors.New("dial refused")
	}
	return fakePeer{addr: p.Address}, nil
}

func pk(b byte) types.PublicKey {
	var k types.PublicKey
	k[0] = b
	return k
}

func TestRegistryResolveUnknownPeerFails(t *testing.T) {
	reg := NewRegistry(&fakeDialer{}, logging.Nop())
	_, ok := reg.Resolve(pk(1))
	require.False(t, ok)
}

func TestRegistryResolveDialsOnceAndCaches(t *testing.T) {
	dialer := &fakeDialer{}
	reg := NewRegistry(dialer, logging.Nop())
	reg.SetPeers(types.PeerSet{{PublicKey: pk(1), Address: "10.0.0.1:10001"}})

	peer1, ok := reg.Resolve(pk(1))
	require.True(t, ok)
	peer2, ok := reg.Resolve(pk(1))
	require.True(t, ok)

	require.Equal(t, peer1, peer2)
	require.Equal(t, 1, dialer.dials)
}

func TestRegistryResolveReturnsFalseOnDialFailure(t *testing.T) {
	dialer := &fakeDialer{fail: true}
	reg := NewRegistry(dialer, logging.Nop())
	reg.SetPeers(types.PeerSet{{PublicKey: pk(1), Address: "10.0.0.1:10001"}})

	_, ok := reg.Resolve(pk(1))
	require.False(t, ok)
}

func TestRegistryForgetForcesRedial(t *testing.T) {
	dialer := &fakeDialer{}
	reg := NewRegistry(dialer, logging.Nop())
	reg.SetPeers(types.PeerSet{{PublicKey: pk(1), Address: "10.0.0.1:10001"}})

	_, ok := reg.Resolve(pk(1))
	require.True(t, ok)
	reg.Forget(pk(1))
	_, ok = reg.Resolve(pk(1))
	require.True(t, ok)

	require.Equal(t, 2, dialer.dials)
}

func TestRegistrySetPeersReplacesKnownAddresses(t *testing.T) {
	dialer := &fakeDialer{}
	reg := NewRegistry(dialer, logging.Nop())
	reg.SetPeers(types.PeerSet{{PublicKey: pk(1), Address: "10.0.0.1:10001"}})
	reg.SetPeers(types.PeerSet{{PublicKey: pk(2), Address: "10.0.0.2:10001"}})

	_, ok := reg.Resolve(pk(1))
	require.False(t, ok)
	_, ok = reg.Resolve(pk(2))
	require.True(t, ok)
}
