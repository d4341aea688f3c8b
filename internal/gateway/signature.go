package gateway

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"log"
	"strings"
)

// SignatureVerifier checks the HMAC-SHA512 signature the gateway puts on webhook bodies.
// Without a secret it rejects everything unless insecureSkip was set explicitly.
type SignatureVerifier struct {
	secret       []byte
	insecureSkip bool
}

func NewSignatureVerifier(secret string, insecureSkip bool) *SignatureVerifier {
	return &SignatureVerifier{secret: []byte(secret), insecureSkip: insecureSkip}
}

// Sign returns the lowercase hex HMAC-SHA512 of payload.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func (v *SignatureVerifier) Verify(payload []byte, signature string) bool {
	if v.insecureSkip {
		log.Println("SECURITY WARNING: webhook signature verification is disabled, accepting unsigned payload")
		return true
	}
	if len(v.secret) == 0 {
		log.Println("SECURITY: webhook rejected, no webhook secret configured")
		return false
	}

	provided, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil || len(provided) != sha512.Size {
		return false
	}

	mac := hmac.New(sha512.New, v.secret)
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), provided)
}
