// Package crypto adapts the node's signing identity to the consensus core:
// key generation, PEM persistence and did:key identifiers, carried over from
// the teacher's internal/crypto package and narrowed to the P-256
// uncompressed-point key shape internal/types.PublicKey expects.
package crypto

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/multiformats/go-multibase"
	"github.com/multiformats/go-multicodec"

	"github.com/empower1/consensusd/internal/types"
)

var (
	ErrInvalidKeyFormat    = errors.New("invalid key format")
	ErrUnsupportedCurve    = errors.New("unsupported elliptic curve")
	ErrKeyGeneration       = errors.New("key generation failed")
	ErrPEMDecoding         = errors.New("pem decoding error")
	ErrUnsupportedPEMType  = errors.New("unsupported pem block type")
	ErrInvalidDIDKeyFormat = errors.New("invalid did:key string format")
	ErrUnexpectedEncoding  = errors.New("unexpected multibase encoding")
	ErrUnexpectedMulticodec = errors.New("unexpected multicodec type")
)

// CodecP256PubKeyUncompressed is the multicodec tag used for did:key
// identifiers minted from consensusd peer keys.
const CodecP256PubKeyUncompressed multicodec.Code = 0x1201

// Adapter signs payload hashes and exposes the signer's public key. Every
// consensus component that attaches a types.Signature does so through this
// interface, never by touching *ecdsa.PrivateKey directly.
type Adapter interface {
	PublicKey() types.PublicKey
	Sign(hash types.Hash) (types.Signature, error)
	Verify(hash types.Hash, sig types.Signature) bool
}

type ecdsaAdapter struct {
	priv *ecdsa.PrivateKey
	pub  types.PublicKey
}

// NewAdapter wraps an existing P-256 private key.
func NewAdapter(priv *ecdsa.PrivateKey) (Adapter, error) {
	if priv == nil || priv.Curve != elliptic.P256() {
		return nil, fmt.Errorf("%w: signer key must be P-256", ErrUnsupportedCurve)
	}
	raw := elliptic.Marshal(elliptic.P256(), priv.X, priv.Y)
	var pk types.PublicKey
	copy(pk[:], raw)
	return &ecdsaAdapter{priv: priv, pub: pk}, nil
}

// GenerateAdapter creates a fresh P-256 identity.
func GenerateAdapter() (Adapter, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyGeneration, err)
	}
	return NewAdapter(priv)
}

func (a *ecdsaAdapter) PublicKey() types.PublicKey { return a.pub }

func (a *ecdsaAdapter) Sign(hash types.Hash) (types.Signature, error) {
	sig, err := ecdsa.SignASN1(rand.Reader, a.priv, hash[:])
	if err != nil {
		return types.Signature{}, fmt.Errorf("sign hash: %w", err)
	}
	return types.Signature{PublicKey: a.pub, Bytes: sig}, nil
}

func (a *ecdsaAdapter) Verify(hash types.Hash, sig types.Signature) bool {
	return VerifyWithKey(sig.PublicKey, hash, sig.Bytes)
}

// VerifyWithKey checks a detached signature against an arbitrary public key,
// used to verify votes and signatures from peers the local adapter did not
// produce.
func VerifyWithKey(pk types.PublicKey, hash types.Hash, sig []byte) bool {
	pub, err := DeserializePublicKey(pk[:])
	if err != nil {
		return false
	}
	return ecdsa.VerifyASN1(pub, hash[:], sig)
}

// SerializePublicKey marshals an ECDSA public key to its uncompressed
// 65-byte representation.
func SerializePublicKey(pub *ecdsa.PublicKey) ([]byte, error) {
	if pub == nil {
		return nil, fmt.Errorf("%w: public key is nil", ErrInvalidKeyFormat)
	}
	if pub.Curve != elliptic.P256() {
		return nil, fmt.Errorf("%w: got %s", ErrUnsupportedCurve, pub.Curve.Params().Name)
	}
	return elliptic.Marshal(elliptic.P256(), pub.X, pub.Y), nil
}

// DeserializePublicKey unmarshals an uncompressed P-256 public key.
func DeserializePublicKey(b []byte) (*ecdsa.PublicKey, error) {
	if len(b) != len(types.PublicKey{}) {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidKeyFormat, len(types.PublicKey{}), len(b))
	}
	if b[0] != 0x04 {
		return nil, fmt.Errorf("%w: must be uncompressed (0x04 prefix)", ErrInvalidKeyFormat)
	}
	x, y := elliptic.Unmarshal(elliptic.P256(), b)
	if x == nil || y == nil {
		return nil, fmt.Errorf("%w: failed to unmarshal curve point", ErrInvalidKeyFormat)
	}
	return &ecdsa.PublicKey{Curve: elliptic.P256(), X: x, Y: y}, nil
}

// SavePEM writes priv as an unencrypted PKCS#8 PEM file with owner-only
// permissions.
func SavePEM(priv *ecdsa.PrivateKey, path string) error {
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return fmt.Errorf("marshal private key: %w", err)
	}
	block := &pem.Block{Type: "PRIVATE KEY", Bytes: der}
	return os.WriteFile(path, pem.EncodeToMemory(block), 0o600)
}

// LoadPEM reads a PKCS#8 or SEC1 unencrypted private key PEM file.
func LoadPEM(path string) (*ecdsa.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file %q: %w", path, err)
	}
	block, rest := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block found", ErrPEMDecoding)
	}
	if len(rest) > 0 {
		return nil, fmt.Errorf("%w: trailing data after PEM block", ErrPEMDecoding)
	}
	switch block.Type {
	case "EC PRIVATE KEY":
		return x509.ParseECPrivateKey(block.Bytes)
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse pkcs8 key: %w", err)
		}
		priv, ok := key.(*ecdsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("%w: key is not ECDSA", ErrInvalidKeyFormat)
		}
		return priv, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedPEMType, block.Type)
	}
}

// DIDKey mints a did:key identifier for a peer's public key, following the
// multicodec+multibase convention the teacher uses for peer identities.
func DIDKey(pk types.PublicKey) (string, error) {
	prefixed := append(multicodec.Header(CodecP256PubKeyUncompressed), pk[:]...)
	enc, err := multibase.Encode(multibase.Base58BTC, prefixed)
	if err != nil {
		return "", fmt.Errorf("encode did:key: %w", err)
	}
	return "did:key:" + enc, nil
}

// ParseDIDKey recovers the raw public key bytes from a did:key identifier.
func ParseDIDKey(did string) (types.PublicKey, error) {
	var pk types.PublicKey
	if !strings.HasPrefix(did, "did:key:") {
		return pk, ErrInvalidDIDKeyFormat
	}
	enc, data, err := multibase.Decode(strings.TrimPrefix(did, "did:key:"))
	if err != nil {
		return pk, fmt.Errorf("decode did:key: %w", err)
	}
	if enc != multibase.Base58BTC {
		return pk, fmt.Errorf("%w: got %c", ErrUnexpectedEncoding, enc)
	}
	codec, rest, err := multicodec.Consume(data)
	if err != nil {
		return pk, fmt.Errorf("consume multicodec: %w", err)
	}
	if multicodec.Code(codec) != CodecP256PubKeyUncompressed {
		return pk, fmt.Errorf("%w: got 0x%x", ErrUnexpectedMulticodec, uint64(codec))
	}
	if len(rest) != len(pk) {
		return pk, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidKeyFormat, len(pk), len(rest))
	}
	copy(pk[:], rest)
	return pk, nil
}
