package crypto

import (
	"testing"

	"github.com/empower1/consensusd/internal/types"
)

func TestGenerateAdapterSignAndVerify(t *testing.T) {
	a, err := GenerateAdapter()
	if err != nil {
		t.Fatalf("GenerateAdapter: %v", err)
	}
	hash := types.HashBytes([]byte("payload"))
	sig, err := a.Sign(hash)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if !a.Verify(hash, sig) {
		t.Fatal("expected signature to verify")
	}
	other := types.HashBytes([]byte("different payload"))
	if a.Verify(other, sig) {
		t.Fatal("signature must not verify against a different hash")
	}
}

func TestDIDKeyRoundTrip(t *testing.T) {
	a, err := GenerateAdapter()
	if err != nil {
		t.Fatalf("GenerateAdapter: %v", err)
	}
	did, err := DIDKey(a.PublicKey())
	if err != nil {
		t.Fatalf("DIDKey: %v", err)
	}
	pk, err := ParseDIDKey(did)
	if err != nil {
		t.Fatalf("ParseDIDKey: %v", err)
	}
	if pk != a.PublicKey() {
		t.Fatal("round-tripped public key does not match original")
	}
}

func TestParseDIDKeyRejectsBadPrefix(t *testing.T) {
	if _, err := ParseDIDKey("not-a-did"); err == nil {
		t.Fatal("expected error for malformed did:key string")
	}
}
