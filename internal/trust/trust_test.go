package trust

import "testing"

func TestSignVerifyRoundTrip(t *testing.T) {
	pub, priv, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	content := []byte("compiled artifact bytes")
	sig, err := Sign(content, priv)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if !Verify(content, sig, pub) {
		t.Fatal("expected signature to verify")
	}
	if Verify([]byte("tampered"), sig, pub) {
		t.Fatal("expected tampered content to fail verification")
	}
}

func TestKeyringVerifyAny(t *testing.T) {
	pub, priv, _ := GenerateKeyPair()
	kr := NewKeyring()
	kr.Add("key-1", pub)

	content := []byte("artifact")
	sig, _ := Sign(content, priv)

	id, ok := kr.VerifyAny(content, sig)
	if !ok || id != "key-1" {
		t.Fatalf("expected match on key-1, got id=%q ok=%v", id, ok)
	}
}

func TestChecksumDeterministic(t *testing.T) {
	a := ComputeChecksum([]byte("x"))
	b := ComputeChecksum([]byte("x"))
	if a != b {
		t.Fatalf("expected deterministic checksum, got %q vs %q", a, b)
	}
	if !VerifyChecksum([]byte("x"), a) {
		t.Fatal("expected checksum to verify")
	}
}

func TestPolicyAccepts(t *testing.T) {
	p := DefaultPolicy()
	if !p.Accepts(TrustLocal) {
		t.Fatal("default policy should accept TrustLocal")
	}
	if p.Accepts(TrustUntrusted) {
		t.Fatal("default policy should reject TrustUntrusted")
	}
}
