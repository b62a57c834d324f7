package webhook

import "testing"

func TestHashSecretDeterministic(t *testing.T) {
	a := HashSecret("hunter2")
	b := HashSecret("hunter2")
	if a != b {
		t.Error("same secret must hash identically")
	}
	if len(a) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(a))
	}
	if a == HashSecret("hunter3") {
		t.Error("different secrets must hash differently")
	}
}

func TestSignAndVerify(t *testing.T) {
	key := HashSecret("hunter2")
	body := []byte(`{"event":"order.status_changed"}`)

	sig := Sign(key, body)
	if sig != Sign(key, body) {
		t.Error("signing must be deterministic")
	}
	if !VerifySignature(key, body, sig) {
		t.Error("valid signature rejected")
	}
	if VerifySignature(key, []byte(`{"event":"tampered"}`), sig) {
		t.Error("signature over different body accepted")
	}
	if VerifySignature(HashSecret("wrong"), body, sig) {
		t.Error("signature under different key accepted")
	}
}
