package core

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const signaturePrefix = "sha256="

// Signer produces and verifies payload signatures. Implementations must
// sign exactly the bytes they are handed; the dispatcher stores, signs,
// and sends the same byte slice.
type Signer interface {
	Sign(secret string, payload []byte) string
	Verify(secret string, payload []byte, signature string) bool
}

// HMACSigner is the stock Signer: HMAC-SHA256 with the "sha256=" prefix.
type HMACSigner struct{}

func (HMACSigner) Sign(secret string, payload []byte) string {
	return SignPayload(secret, payload)
}

func (HMACSigner) Verify(secret string, payload []byte, signature string) bool {
	return VerifyPayload(secret, payload, signature)
}

var _ Signer = HMACSigner{}

// SignPayload computes the HMAC-SHA256 signature of payload with secret
// and returns it as "sha256=<hex>". An empty secret yields an empty
// signature, which means the delivery goes out unsigned.
func SignPayload(secret string, payload []byte) string {
	if secret == "" {
		return ""
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// VerifyPayload reports whether signature matches payload under secret.
// Comparison is constant time.
func VerifyPayload(secret string, payload []byte, signature string) bool {
	if secret == "" {
		return signature == ""
	}
	signature = strings.TrimSpace(signature)
	if !strings.HasPrefix(signature, signaturePrefix) {
		return false
	}
	expected := SignPayload(secret, payload)
	return hmac.Equal([]byte(expected), []byte(signature))
}
