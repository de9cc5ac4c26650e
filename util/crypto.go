package util

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"math/big"

	"golang.org/x/crypto/scrypt"
)

var (
	scryptN   = 32768 // N = CPU/memory cost parameter (suitable as of 2017)
	scryptR   = 8     // r and p must satisfy r * p < 2^30
	scryptP   = 1
	scryptLen = 32 // 32 bytes long
)

// ReceiptLength is the number of digits in a submitter receipt code
const ReceiptLength = 16

const receiptDigits = "0123456789"

// GenerateReceipt returns a random numeric receipt code. The code is shown
// to the submitter exactly once; only its scrypt hash is stored.
func GenerateReceipt() (string, error) {
	b := make([]byte, ReceiptLength)
	max := big.NewInt(int64(len(receiptDigits)))
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = receiptDigits[n.Int64()]
	}
	return string(b), nil
}

// ScryptReceipt hashes a receipt code with the submission id as salt
func ScryptReceipt(receipt string, submissionID string) (string, error) {
	dk, err := scrypt.Key([]byte(receipt), []byte(submissionID), scryptN, scryptR, scryptP, scryptLen)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(dk), nil
}

// VerifyReceipt compares a receipt code against a stored scrypt hash in
// constant time
func VerifyReceipt(receipt string, submissionID string, storedHash string) bool {
	computed, err := ScryptReceipt(receipt, submissionID)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(computed), []byte(storedHash)) == 1
}

// GenerateNonce returns n random bytes base64 url encoded, used for access
// challenges
func GenerateNonce(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Generated ed25519 signing key pair and returns base64 public key, private key
// returns publicKey, privateKey, error
func GenerateEd25519KeyPair() (*string, *string, error) {
	pubKey, privKey, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, nil, err
	}

	pubKeyBase64 := base64.StdEncoding.EncodeToString(pubKey)
	privKeyBase64 := base64.StdEncoding.EncodeToString(privKey)
	return &pubKeyBase64, &privKeyBase64, nil
}
