package auth

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"testing"
)

func TestBuildDeviceAuthPayload(t *testing.T) {
	got := BuildDeviceAuthPayload(DeviceAuthParams{
		DeviceID:   "dev",
		ClientID:   "exec-guard",
		ClientMode: "backend",
		Role:       "operator",
		Scopes:     []string{"operator.read", "operator.approvals"},
		SignedAtMs: 1700000000000,
		Token:      "tok",
	})
	want := "v1|dev|exec-guard|backend|operator|operator.read,operator.approvals|1700000000000|tok"
	if got != want {
		t.Fatalf("payload mismatch:\n got %q\nwant %q", got, want)
	}

	empty := BuildDeviceAuthPayload(DeviceAuthParams{DeviceID: "dev", SignedAtMs: 1})
	if empty != "v1|dev||||1|" {
		t.Fatalf("unexpected payload without token: %q", empty)
	}
}

func TestSignAndVerify(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	payload := "v1|dev|c|m|r|s|1|t"
	sig := SignPayload(priv, payload)
	if len(sig) != 86 {
		t.Fatalf("expected 86-char unpadded signature, got %d", len(sig))
	}

	pubB64 := EncodeBase64URL(pub)
	if len(pubB64) != 43 {
		t.Fatalf("expected 43-char unpadded public key, got %d", len(pubB64))
	}
	if !VerifySignature(pubB64, payload, sig) {
		t.Fatalf("expected signature to verify")
	}
	if VerifySignature(pubB64, payload+"x", sig) {
		t.Fatalf("expected tampered payload to fail")
	}
}

func TestVerifySignature_InvalidLengths(t *testing.T) {
	if VerifySignature("", "", "") {
		t.Fatalf("expected false")
	}

	// public key wrong length
	if err := VerifySignatureDetailed(EncodeBase64URL([]byte{1, 2, 3}), "p", EncodeBase64URL(make([]byte, 64))); err != ErrInvalidPublicKey {
		t.Fatalf("expected ErrInvalidPublicKey, got %v", err)
	}
}

func TestVerifySignature_InvalidBase64(t *testing.T) {
	if VerifySignature("not base64!", "payload", "not base64!") {
		t.Fatalf("expected false")
	}
}

func TestVerifySignature_AcceptsPadding(t *testing.T) {
	pub, priv, _ := ed25519.GenerateKey(rand.Reader)
	sig := ed25519.Sign(priv, []byte("p"))
	if !VerifySignature(base64.URLEncoding.EncodeToString(pub), "p", base64.URLEncoding.EncodeToString(sig)) {
		t.Fatalf("expected padded base64url to verify")
	}
}
