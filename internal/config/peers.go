package config

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/empower1/consensusd/internal/types"
)

// PeerEntry is one line of a genesis peer file: the hex-encoded
// uncompressed P-256 public key and the TCP address to dial it at.
type PeerEntry struct {
	PublicKey string `json:"public_key"`
	Address   string `json:"address"`
}

// LoadPeers reads a JSON array of PeerEntry values from path, the genesis
// validator set a fresh node's storage.Adapter starts from at height 0.
func LoadPeers(path string) (types.PeerSet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read peers file %q: %w", path, err)
	}
	var entries []PeerEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse peers file %q: %w", path, err)
	}
	peers := make(types.PeerSet, 0, len(entries))
	for _, e := range entries {
		keyBytes, err := hex.DecodeString(e.PublicKey)
		if err != nil {
			return nil, fmt.Errorf("decode public key %q: %w", e.PublicKey, err)
		}
		var pk types.PublicKey
		if len(keyBytes) != len(pk) {
			return nil, fmt.Errorf("public key %q: expected %d bytes, got %d", e.PublicKey, len(pk), len(keyBytes))
		}
		copy(pk[:], keyBytes)
		peers = append(peers, types.Peer{PublicKey: pk, Address: e.Address})
	}
	return types.Sorted(peers), nil
}
