package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// HashSecret derives the stored digest from a customer-supplied secret. The
// digest doubles as the HMAC signing key, so the plaintext never needs to be
// kept after registration.
func HashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// Sign computes the hex HMAC-SHA256 of body under the stored digest.
func Sign(secretHash string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secretHash))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a received signature in constant time. Receivers
// recompute the digest from their plaintext secret with HashSecret.
func VerifySignature(secretHash string, body []byte, signature string) bool {
	return hmac.Equal([]byte(Sign(secretHash, body)), []byte(signature))
}
