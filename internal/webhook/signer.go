package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// signatureHeader carries the HMAC of the request body so subscribers can
// authenticate deliveries.
const signatureHeader = "X-Webhook-Signature"

// signPayload computes the hex-encoded HMAC-SHA256 of the payload under the
// shared secret, in the "sha256=<hex>" header format.
func signPayload(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
