package gateway

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
)

// SignHMAC computes the hex HMAC-SHA-512 digest of body keyed by secret.
// The crypto processor authenticates every request with this signature in
// an HMAC header. The signer is pure.
func SignHMAC(body, secret string) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}
