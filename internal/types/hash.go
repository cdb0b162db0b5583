// Package types holds the wire-level data model shared by every consensus
// component: rounds, peers, transactions, batches, proposals, blocks and the
// YAC vote types. Nothing in here talks to storage, the network or crypto
// key material directly; it is pure value types plus their hashing rules.
package types

import (
	"encoding/hex"
	"fmt"

	"lukechampine.com/blake3"
)

// HashSize is the width of every digest used by the consensus core.
const HashSize = 32

// Hash is a 32-byte opaque digest, hex-encoded at the wire boundary.
type Hash [HashSize]byte

// ZeroHash is the all-zero digest, used as the empty half of nothing_hash.
var ZeroHash Hash

// IsZero reports whether h is the all-zero digest.
func (h Hash) IsZero() bool {
	return h == ZeroHash
}

// String renders the hash as lowercase hex.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// MarshalText implements encoding.TextMarshaler for JSON/config round-trips.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hash) UnmarshalText(text []byte) error {
	b, err := hex.DecodeString(string(text))
	if err != nil {
		return fmt.Errorf("decode hash hex: %w", err)
	}
	if len(b) != HashSize {
		return fmt.Errorf("hash must be %d bytes, got %d", HashSize, len(b))
	}
	copy(h[:], b)
	return nil
}

// HashBytes returns the blake3-256 digest of b.
func HashBytes(b []byte) Hash {
	return blake3.Sum256(b)
}

// ConcatHash hashes the concatenation of hs, in order. Used for
// proposal_hash and reduced_batch_hash, where member order is significant.
func ConcatHash(hs ...Hash) Hash {
	buf := make([]byte, 0, len(hs)*HashSize)
	for _, h := range hs {
		buf = append(buf, h[:]...)
	}
	return HashBytes(buf)
}

// HashFromHex parses a hex string into a Hash.
func HashFromHex(s string) (Hash, error) {
	var h Hash
	err := h.UnmarshalText([]byte(s))
	return h, err
}
