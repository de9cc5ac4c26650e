package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"io"

	"github.com/cloudflare/circl/kem/mlkem/mlkem768"
	"github.com/tipline/go-tipline-server/types"
	"golang.org/x/crypto/hkdf"
)

// Keypair is an ML-KEM-768 recipient keypair. The private key never reaches
// the server in normal operation; keypairs are generated client side or with
// the recipient-keys command.
type Keypair struct {
	PublicKey  []byte
	PrivateKey []byte
}

// GenerateKeypair creates a new ML-KEM-768 keypair
func GenerateKeypair() (*Keypair, error) {
	pub, priv, err := mlkem768.GenerateKeyPair(rand.Reader)
	if err != nil {
		return nil, err
	}
	// MarshalBinary never fails for valid keys from GenerateKeyPair
	pubBytes, _ := pub.MarshalBinary()
	privBytes, _ := priv.MarshalBinary()
	return &Keypair{PublicKey: pubBytes, PrivateKey: privBytes}, nil
}

// ValidatePublicKey reports whether raw parses as an ML-KEM-768 public key
func ValidatePublicKey(raw []byte) bool {
	_, err := parsePublicKey(raw)
	return err == nil
}

func parsePublicKey(raw []byte) (*mlkem768.PublicKey, error) {
	if len(raw) != PublicKeySize {
		return nil, types.ErrInvalidPublicKey
	}
	var pub mlkem768.PublicKey
	pub.Unpack(raw)
	return &pub, nil
}

// deriveKEK derives the key encryption key from the encapsulated shared
// secret, salted with the hash of the KEM ciphertext.
func deriveKEK(sharedSecret, kemCiphertext []byte) ([]byte, error) {
	saltHash := sha256.Sum256(kemCiphertext)
	reader := hkdf.New(sha512.New, sharedSecret, saltHash[:], []byte(hkdfContext))
	kek := make([]byte, KeySize)
	if _, err := io.ReadFull(reader, kek); err != nil {
		return nil, err
	}
	return kek, nil
}

func encryptAESGCM(key, nonce, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return gcm.Seal(nil, nonce, plaintext, nil), nil
}

func decryptAESGCM(key, nonce, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return gcm.Open(nil, nonce, ciphertext, nil)
}
