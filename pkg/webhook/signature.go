package webhook

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"
)

// verifySignature verifies a webhook signature using HMAC. The signature
// may carry an "algo=" prefix or be the bare hex digest.
func verifySignature(body []byte, signature string, secret string, algorithm string) bool {
	expected, ok := computeSignature(body, secret, algorithm)
	if !ok {
		return false
	}

	signature = strings.TrimSpace(signature)
	if !strings.Contains(signature, "=") {
		signature = algorithm + "=" + signature
	}

	// Timing-safe comparison to prevent timing attacks
	return subtle.ConstantTimeCompare([]byte(signature), []byte(expected)) == 1
}

// computeSignature returns "algo=hexdigest" for body
func computeSignature(body []byte, secret string, algorithm string) (string, bool) {
	var fn func() hash.Hash
	switch algorithm {
	case "sha256":
		fn = sha256.New
	case "sha1":
		fn = sha1.New
	default:
		return "", false
	}

	h := hmac.New(fn, []byte(secret))
	h.Write(body)
	return fmt.Sprintf("%s=%s", algorithm, hex.EncodeToString(h.Sum(nil))), true
}

// Sign computes the signature header value a sender must attach. An empty
// algorithm means sha256.
func Sign(body []byte, secret, algorithm string) (string, error) {
	if algorithm == "" {
		algorithm = "sha256"
	}
	sig, ok := computeSignature(body, secret, algorithm)
	if !ok {
		return "", fmt.Errorf("unsupported signature algorithm %q", algorithm)
	}
	return sig, nil
}
