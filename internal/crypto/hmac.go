// Package crypto signs outbound webhook deliveries so receivers can verify
// they came from this process.
package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"
)

// Header names attached to signed webhook requests.
const (
	HeaderTimestamp = "X-Oddsync-Timestamp"
	HeaderSignature = "X-Oddsync-Signature"
)

// WebhookSigner computes HMAC-SHA256 signatures over timestamp+body.
type WebhookSigner struct {
	Secret string
}

// Headers returns the signature headers for body at the current time.
func (s *WebhookSigner) Headers(body []byte) map[string]string {
	return s.HeadersAt(body, time.Now().Unix())
}

// HeadersAt is like Headers but lets the caller supply the Unix timestamp
// (useful for deterministic testing).
func (s *WebhookSigner) HeadersAt(body []byte, unixTS int64) map[string]string {
	ts := strconv.FormatInt(unixTS, 10)
	return map[string]string{
		HeaderTimestamp: ts,
		HeaderSignature: hmacSHA256Base64([]byte(s.Secret), ts+string(body)),
	}
}

// Verify reports whether sig matches body signed at ts.
func (s *WebhookSigner) Verify(body []byte, ts, sig string) bool {
	want := hmacSHA256Base64([]byte(s.Secret), ts+string(body))
	return hmac.Equal([]byte(want), []byte(sig))
}

// String returns a redacted representation suitable for logging.
func (s *WebhookSigner) String() string {
	if len(s.Secret) <= 4 {
		return "WebhookSigner{secret=****}"
	}
	return fmt.Sprintf("WebhookSigner{secret=%s****}", s.Secret[:4])
}

// hmacSHA256Base64 computes HMAC-SHA256 of message using key and returns the
// result as a base64 standard-encoded string.
func hmacSHA256Base64(key []byte, message string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
