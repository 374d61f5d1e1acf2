package squarewebhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"
)

// SignatureHeader carries Square's HMAC-SHA256 notification signature.
const SignatureHeader = "X-Square-Hmacsha256-Signature"

// Sign computes the signature Square sends for payload delivered to
// notificationURL.
func Sign(payload []byte, notificationURL, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(notificationURL))
	mac.Write(payload)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks header against the expected signature.
func VerifySignature(payload []byte, notificationURL, secret, header string) bool {
	header = strings.TrimSpace(header)
	if header == "" || secret == "" {
		return false
	}
	return hmac.Equal([]byte(Sign(payload, notificationURL, secret)), []byte(header))
}
