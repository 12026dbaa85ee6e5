package httphandler

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// ErrSignatureInvalid indicates a webhook delivery failed signature
// verification. The delivery is rejected before any dispatch.
var ErrSignatureInvalid = errors.New("invalid webhook signature")

// verifySignature checks a GitHub X-Hub-Signature-256 header against the
// HMAC-SHA256 of the request body. An empty secret disables verification.
func verifySignature(header, secret string, body []byte) error {
	if secret == "" {
		return nil
	}

	provided, ok := strings.CutPrefix(header, "sha256=")
	if !ok || provided == "" {
		return ErrSignatureInvalid
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	want := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(strings.TrimSpace(provided)), []byte(want)) {
		return ErrSignatureInvalid
	}
	return nil
}
