// Package storage adapts the WSV/ledger persistence boundary spec.md §6
// names as "consumed" — create_temporary_wsv, commit_block, top_block_info,
// peers_at, block_by_height, insert_peer — behind a single Adapter
// interface, with an in-memory implementation for tests and a
// bolt-backed one for the embedded single-file deployment the teacher's
// go.mod already depends on (github.com/boltdb/bolt, pulled in
// transitively through its storage stack but never wired to an actual
// store).
package storage

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"sync"

	bolt "github.com/boltdb/bolt"

	"github.com/empower1/consensusd/internal/consensuserr"
	"github.com/empower1/consensusd/internal/types"
)

// TemporaryWSV is a scratch view of ledger state a Simulator run mutates
// without committing; Discard abandons it, nothing else observes its
// writes.
type TemporaryWSV interface {
	ApplyCommand(cmd types.Command) error
	Peers() types.PeerSet
	Discard()
}

// Adapter is the storage boundary every consensus component builds on.
type Adapter interface {
	CreateTemporaryWSV() (TemporaryWSV, error)
	CommitBlock(block *types.Block) error
	TopBlockInfo() (types.TopBlockInfo, error)
	PeersAt(height uint64) (types.PeerSet, error)
	BlockByHeight(height uint64) (*types.Block, error)
	InsertPeer(peer types.Peer) error
}

// MemoryAdapter is a process-local Adapter backed by in-memory maps, used
// by tests and single-node development runs.
type MemoryAdapter struct {
	mu     sync.RWMutex
	blocks map[uint64]*types.Block
	peers  map[uint64]types.PeerSet
	top    types.TopBlockInfo
}

// NewMemoryAdapter seeds storage with an initial peer set at height 0.
func NewMemoryAdapter(genesisPeers types.PeerSet) *MemoryAdapter {
	return &MemoryAdapter{
		blocks: make(map[uint64]*types.Block),
		peers:  map[uint64]types.PeerSet{0: types.Sorted(genesisPeers)},
	}
}

type memoryWSV struct {
	mu    sync.Mutex
	peers types.PeerSet
}

func (w *memoryWSV) ApplyCommand(cmd types.Command) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if cmd.Kind == "AddPeer" && cmd.AddPeer != nil {
		w.peers = types.Sorted(append(append(types.PeerSet(nil), w.peers...), *cmd.AddPeer))
	}
	return nil
}

func (w *memoryWSV) Peers() types.PeerSet {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append(types.PeerSet(nil), w.peers...)
}

func (w *memoryWSV) Discard() {}

func (m *MemoryAdapter) CreateTemporaryWSV() (TemporaryWSV, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return &memoryWSV{peers: append(types.PeerSet(nil), m.peers[m.top.Height]...)}, nil
}

func (m *MemoryAdapter) CommitBlock(block *types.Block) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if block.Height != m.top.Height+1 && !(m.top.Height == 0 && len(m.blocks) == 0 && block.Height == 1) {
		return fmt.Errorf("%w: block height %d does not follow top height %d", consensuserr.ErrChainDiscontinuity, block.Height, m.top.Height)
	}
	m.blocks[block.Height] = block
	prevPeers := m.peers[block.Height-1]
	next := append(types.PeerSet(nil), prevPeers...)
	for _, tx := range block.Transactions {
		for _, c := range tx.Commands {
			if c.Kind == "AddPeer" && c.AddPeer != nil {
				next = types.Sorted(append(next, *c.AddPeer))
			}
		}
	}
	m.peers[block.Height] = next
	m.top = types.TopBlockInfo{Height: block.Height, Hash: block.BlockHash()}
	return nil
}

func (m *MemoryAdapter) TopBlockInfo() (types.TopBlockInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.top, nil
}

func (m *MemoryAdapter) PeersAt(height uint64) (types.PeerSet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	peers, ok := m.peers[height]
	if !ok {
		return nil, fmt.Errorf("%w: no peer set recorded at height %d", consensuserr.ErrNotFound, height)
	}
	return append(types.PeerSet(nil), peers...), nil
}

func (m *MemoryAdapter) BlockByHeight(height uint64) (*types.Block, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.blocks[height]
	if !ok {
		return nil, fmt.Errorf("%w: height %d", consensuserr.ErrBlockNotFound, height)
	}
	return b, nil
}

func (m *MemoryAdapter) InsertPeer(peer types.Peer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.peers[m.top.Height] = types.Sorted(append(append(types.PeerSet(nil), m.peers[m.top.Height]...), peer))
	return nil
}

var (
	blocksBucket = []byte("blocks")
	peersBucket  = []byte("peers")
	metaBucket   = []byte("meta")
	topKey       = []byte("top")
)

// BoltAdapter persists committed blocks and peer-set history to a single
// bolt file, used for the node's durable single-process deployment.
type BoltAdapter struct {
	db *bolt.DB
	mu sync.Mutex
	// cache mirrors the top-block pointer to avoid a read transaction on
	// every TopBlockInfo call.
	top types.TopBlockInfo
}

// OpenBolt opens (creating if absent) a bolt-backed Adapter at path.
func OpenBolt(path string, genesisPeers types.PeerSet) (*BoltAdapter, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open bolt db %q: %w", path, err)
	}
	a := &BoltAdapter{db: db}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{blocksBucket, peersBucket, metaBucket} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		peers := tx.Bucket(peersBucket)
		if peers.Get(heightKey(0)) == nil {
			buf, err := encodeGob(types.Sorted(genesisPeers))
			if err != nil {
				return err
			}
			if err := peers.Put(heightKey(0), buf); err != nil {
				return err
			}
		}
		if raw := tx.Bucket(metaBucket).Get(topKey); raw != nil {
			return decodeGob(raw, &a.top)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize bolt buckets: %w", err)
	}
	return a, nil
}

// Close releases the underlying bolt file handle.
func (a *BoltAdapter) Close() error { return a.db.Close() }

func heightKey(h uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(h >> (56 - 8*i))
	}
	return b
}

func encodeGob(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("gob encode: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeGob(b []byte, v interface{}) error {
	dec := gob.NewDecoder(bytes.NewReader(b))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("gob decode: %w", err)
	}
	return nil
}

func (a *BoltAdapter) CreateTemporaryWSV() (TemporaryWSV, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	peers, err := a.peersAtLocked(a.top.Height)
	if err != nil {
		return nil, err
	}
	return &memoryWSV{peers: peers}, nil
}

func (a *BoltAdapter) CommitBlock(block *types.Block) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if block.Height != a.top.Height+1 && !(a.top.Height == 0 && block.Height == 1) {
		return fmt.Errorf("%w: block height %d does not follow top height %d", consensuserr.ErrChainDiscontinuity, block.Height, a.top.Height)
	}
	prevPeers, err := a.peersAtLocked(block.Height - 1)
	if err != nil {
		return err
	}
	next := append(types.PeerSet(nil), prevPeers...)
	for _, tx := range block.Transactions {
		for _, c := range tx.Commands {
			if c.Kind == "AddPeer" && c.AddPeer != nil {
				next = types.Sorted(append(next, *c.AddPeer))
			}
		}
	}
	top := types.TopBlockInfo{Height: block.Height, Hash: block.BlockHash()}
	err = a.db.Update(func(tx *bolt.Tx) error {
		bbuf, err := encodeGob(block)
		if err != nil {
			return err
		}
		if err := tx.Bucket(blocksBucket).Put(heightKey(block.Height), bbuf); err != nil {
			return err
		}
		pbuf, err := encodeGob(next)
		if err != nil {
			return err
		}
		if err := tx.Bucket(peersBucket).Put(heightKey(block.Height), pbuf); err != nil {
			return err
		}
		tbuf, err := encodeGob(top)
		if err != nil {
			return err
		}
		return tx.Bucket(metaBucket).Put(topKey, tbuf)
	})
	if err != nil {
		return fmt.Errorf("commit block %d: %w", block.Height, err)
	}
	a.top = top
	return nil
}

func (a *BoltAdapter) TopBlockInfo() (types.TopBlockInfo, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.top, nil
}

func (a *BoltAdapter) peersAtLocked(height uint64) (types.PeerSet, error) {
	var peers types.PeerSet
	err := a.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(peersBucket).Get(heightKey(height))
		if raw == nil {
			return fmt.Errorf("%w: no peer set recorded at height %d", consensuserr.ErrNotFound, height)
		}
		return decodeGob(raw, &peers)
	})
	return peers, err
}

func (a *BoltAdapter) PeersAt(height uint64) (types.PeerSet, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.peersAtLocked(height)
}

func (a *BoltAdapter) BlockByHeight(height uint64) (*types.Block, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var block types.Block
	err := a.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(blocksBucket).Get(heightKey(height))
		if raw == nil {
			return fmt.Errorf("%w: height %d", consensuserr.ErrBlockNotFound, height)
		}
		return decodeGob(raw, &block)
	})
	if err != nil {
		return nil, err
	}
	return &block, nil
}

func (a *BoltAdapter) InsertPeer(peer types.Peer) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	peers, err := a.peersAtLocked(a.top.Height)
	if err != nil {
		return err
	}
	next := types.Sorted(append(peers, peer))
	return a.db.Update(func(tx *bolt.Tx) error {
		buf, err := encodeGob(next)
		if err != nil {
			return err
		}
		return tx.Bucket(peersBucket).Put(heightKey(a.top.Height), buf)
	})
}
