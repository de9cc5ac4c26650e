package util

import (
	"encoding/base64"
	"testing"

	"github.com/tj/assert"
)

func TestGenerateReceipt(t *testing.T) {
	receipt, err := GenerateReceipt()
	assert.NoError(t, err)
	assert.Equal(t, ReceiptLength, len(receipt))
	for _, c := range receipt {
		assert.True(t, c >= '0' && c <= '9')
	}

	other, err := GenerateReceipt()
	assert.NoError(t, err)
	assert.NotEqual(t, receipt, other)
}

func TestScryptReceiptVerify(t *testing.T) {
	receipt := "1234567890123456"
	hash, err := ScryptReceipt(receipt, "sub-1")
	assert.NoError(t, err)

	assert.True(t, VerifyReceipt(receipt, "sub-1", hash))
	assert.False(t, VerifyReceipt("6543210987654321", "sub-1", hash))
	// same code, different submission, different salt
	assert.False(t, VerifyReceipt(receipt, "sub-2", hash))
}

func TestGenerateKeyPair(t *testing.T) {
	pub, priv, err := GenerateEd25519KeyPair()
	assert.NoError(t, err)

	pubBytes, err := base64.StdEncoding.DecodeString(*pub)
	assert.NoError(t, err)
	assert.Equal(t, 32, len(pubBytes))

	privBytes, err := base64.StdEncoding.DecodeString(*priv)
	assert.NoError(t, err)
	assert.Equal(t, 64, len(privBytes))
}

func TestGenerateNonce(t *testing.T) {
	nonce, err := GenerateNonce(32)
	assert.NoError(t, err)
	decoded, err := base64.RawURLEncoding.DecodeString(nonce)
	assert.NoError(t, err)
	assert.Equal(t, 32, len(decoded))
}
