package delta

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Sign computes the HMAC-SHA256 hex digest Delta expects over
// method + timestamp + path + body (body empty for GET).
func Sign(secret, method, timestamp, path, body string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(method + timestamp + path + body))
	return hex.EncodeToString(h.Sum(nil))
}
