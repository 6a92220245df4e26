package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Signature computes the gateway's payment signature: the lowercase hex
// HMAC-SHA256 digest of "<gatewayOrderID>|<paymentID>" under the key secret.
func Signature(secret, gatewayOrderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(gatewayOrderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether the caller-supplied signature matches the
// expected digest. The comparison runs in constant time over the decoded
// bytes so a mismatch reveals nothing about where the digests diverge.
// Signatures that are not valid hex are rejected outright.
func VerifySignature(secret, gatewayOrderID, paymentID, signature string) bool {
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(gatewayOrderID + "|" + paymentID))
	return hmac.Equal(mac.Sum(nil), got)
}
