package webhook

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifySignatureSHA256(t *testing.T) {
	body := []byte(`{"description": "BTC crossed 50k"}`)
	secret := "my-secret-key"

	validSignature, err := Sign(body, secret, "")
	require.NoError(t, err)

	assert.True(t, verifySignature(body, validSignature, secret, "sha256"))

	// bare hex digest without the algorithm prefix
	assert.True(t, verifySignature(body, strings.TrimPrefix(validSignature, "sha256="), secret, "sha256"))

	assert.False(t, verifySignature(body, "sha256=invalid", secret, "sha256"))
	assert.False(t, verifySignature(body, validSignature, "wrong-secret", "sha256"))
	assert.False(t, verifySignature([]byte("different body"), validSignature, secret, "sha256"))
}

func TestVerifySignatureSHA1(t *testing.T) {
	body := []byte(`{"description": "BTC crossed 50k"}`)
	secret := "my-secret-key"

	validSignature, ok := computeSignature(body, secret, "sha1")
	assert.True(t, ok)

	assert.True(t, verifySignature(body, validSignature, secret, "sha1"))
	assert.False(t, verifySignature(body, "sha1=invalid", secret, "sha1"))
	assert.False(t, verifySignature(body, validSignature, "wrong-secret", "sha1"))

	// a sha256 signature never satisfies a sha1 hook
	sha256Signature, err := Sign(body, secret, "sha256")
	require.NoError(t, err)
	assert.False(t, verifySignature(body, sha256Signature, secret, "sha1"))
}

func TestSign(t *testing.T) {
	body := []byte(`{"description":"push"}`)

	sha1Signature, err := Sign(body, "key", "sha1")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sha1Signature, "sha1="))
	assert.True(t, verifySignature(body, sha1Signature, "key", "sha1"))

	_, err = Sign(body, "key", "md5")
	assert.ErrorContains(t, err, "unsupported signature algorithm")
}

func TestComputeSignature(t *testing.T) {
	body := []byte("test body")

	signature, ok := computeSignature(body, "secret", "sha256")
	assert.True(t, ok)
	assert.True(t, strings.HasPrefix(signature, "sha256="))
	assert.Len(t, strings.TrimPrefix(signature, "sha256="), 64)

	// deterministic
	again, _ := computeSignature(body, "secret", "sha256")
	assert.Equal(t, signature, again)

	other, _ := computeSignature([]byte("different body"), "secret", "sha256")
	assert.NotEqual(t, signature, other)

	_, ok = computeSignature(body, "secret", "md5")
	assert.False(t, ok)
}

func TestVerifySignatureInvalidAlgorithm(t *testing.T) {
	assert.False(t, verifySignature([]byte("test"), "test", "secret", "invalid"))
}
