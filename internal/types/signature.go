package types

// PublicKey is a peer's raw ECDSA P-256 public key, used both to identify
// peers and to verify signatures.
type PublicKey [65]byte

// String renders a short identifier for the key: the first 16 hex
// characters of its content hash.
func (p PublicKey) String() string { return HashBytes(p[:]).String()[:16] }

// Signature is a detached signature over a payload hash, produced by the
// crypto adapter (internal/crypto.Adapter).
type Signature struct {
	PublicKey PublicKey
	Bytes     []byte
}

// Equal reports value equality between two signatures.
func (s Signature) Equal(other Signature) bool {
	if s.PublicKey != other.PublicKey {
		return false
	}
	if len(s.Bytes) != len(other.Bytes) {
		return false
	}
	for i := range s.Bytes {
		if s.Bytes[i] != other.Bytes[i] {
			return false
		}
	}
	return true
}
