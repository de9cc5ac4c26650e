// Package envelope seals submission payloads: a fresh symmetric content key
// per submission encrypts the payload with AES-256-GCM, and the content key is
// wrapped once per recipient via ML-KEM-768 encapsulation and an HKDF-SHA-512
// derived key-encryption key. Recipient private keys are supplied per unseal
// call and never retained.
package envelope

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"io"

	"github.com/cloudflare/circl/kem/mlkem/mlkem768"
	"github.com/fxamacker/cbor/v2"
	"github.com/tipline/go-tipline-server/types"
)

const (
	// hkdfContext separates content-key wrapping from any other HKDF use
	hkdfContext = "tipline:wrap:v1"

	// KeySize is the size of the symmetric content key in bytes (AES-256)
	KeySize = 32
	// NonceSize is the AES-GCM nonce size in bytes
	NonceSize = 12

	// PublicKeySize is the size of an ML-KEM-768 public key in bytes
	PublicKeySize = mlkem768.PublicKeySize
	// PrivateKeySize is the size of an ML-KEM-768 private key in bytes
	PrivateKeySize = mlkem768.PrivateKeySize
	// kemCiphertextSize is the size of an ML-KEM-768 encapsulation in bytes
	kemCiphertextSize = mlkem768.CiphertextSize
	// sharedKeySize is the size of the encapsulated shared secret in bytes
	sharedKeySize = mlkem768.SharedKeySize
)

// SealedBox is the wire form of the encrypted payload
type SealedBox struct {
	Nonce      []byte `cbor:"1,keyasint"`
	Ciphertext []byte `cbor:"2,keyasint"`
}

// KeyCapsule is the wire form of one recipient's wrapped content key
type KeyCapsule struct {
	KemCiphertext []byte `cbor:"1,keyasint"`
	Nonce         []byte `cbor:"2,keyasint"`
	WrappedKey    []byte `cbor:"3,keyasint"`
}

// Sealed is the result of sealing a submission
type Sealed struct {
	// Box is the CBOR encoded SealedBox
	Box []byte
	// ContentHash is the sha256 hex of the plaintext
	ContentHash string
	// Capsules maps recipient id to its CBOR encoded KeyCapsule
	Capsules map[string][]byte
	// ContentKey is the plaintext content key, exposed only so the caller can
	// encrypt sibling blobs before persistence. Callers must Zero the result
	// before the intake operation returns; the key is never stored.
	ContentKey []byte
}

// Zero wipes the plaintext content key
func (s *Sealed) Zero() {
	zero(s.ContentKey)
}

// Seal encrypts plaintext under a fresh random content key and wraps the key
// once per recipient public key. Returns ErrCryptoFailure if any recipient
// key is malformed; in that case nothing is usable from the result.
func Seal(plaintext []byte, recipientPublicKeys map[string][]byte) (*Sealed, error) {
	if len(recipientPublicKeys) == 0 {
		return nil, types.ErrNoRoute
	}
	// validate all recipient keys before any work, a single malformed key
	// fails the whole operation
	pubs := make(map[string]*mlkem768.PublicKey, len(recipientPublicKeys))
	for id, raw := range recipientPublicKeys {
		pub, err := parsePublicKey(raw)
		if err != nil {
			return nil, types.ErrCryptoFailure
		}
		pubs[id] = pub
	}

	contentKey := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, contentKey); err != nil {
		return nil, types.ErrCryptoFailure
	}

	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, types.ErrCryptoFailure
	}

	ciphertext, err := encryptAESGCM(contentKey, nonce, plaintext)
	if err != nil {
		return nil, types.ErrCryptoFailure
	}

	box, err := cbor.Marshal(&SealedBox{Nonce: nonce, Ciphertext: ciphertext})
	if err != nil {
		return nil, types.ErrCryptoFailure
	}

	capsules := make(map[string][]byte, len(pubs))
	for id, pub := range pubs {
		capsule, err := wrapKey(contentKey, pub)
		if err != nil {
			return nil, types.ErrCryptoFailure
		}
		capsules[id] = capsule
	}

	return &Sealed{
		Box:         box,
		ContentHash: ContentHash(plaintext),
		Capsules:    capsules,
		ContentKey:  contentKey,
	}, nil
}

// EncryptBlob encrypts an attachment under the same content key as the
// submission body. The caller obtains the key from a prior Seal only
// transiently; this helper never stores it.
func EncryptBlob(contentKey, blob []byte) ([]byte, error) {
	if len(contentKey) != KeySize {
		return nil, types.ErrCryptoFailure
	}
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, types.ErrCryptoFailure
	}
	ciphertext, err := encryptAESGCM(contentKey, nonce, blob)
	if err != nil {
		return nil, types.ErrCryptoFailure
	}
	return cbor.Marshal(&SealedBox{Nonce: nonce, Ciphertext: ciphertext})
}

// Unseal recovers the plaintext from a sealed box using the recipient's
// wrapped key capsule and private key. Returns ErrKeyMismatch when the key
// cannot be unwrapped and ErrAuthenticationFailure when the payload fails its
// integrity check.
func Unseal(box, capsule, recipientPrivateKey []byte) ([]byte, error) {
	contentKey, err := UnwrapKey(capsule, recipientPrivateKey)
	if err != nil {
		return nil, err
	}
	defer zero(contentKey)
	return OpenBox(box, contentKey)
}

// OpenBox decrypts a sealed box with an already unwrapped content key
func OpenBox(box, contentKey []byte) ([]byte, error) {
	var sb SealedBox
	if err := cbor.Unmarshal(box, &sb); err != nil {
		return nil, types.ErrCryptoFailure
	}
	if len(sb.Nonce) != NonceSize {
		return nil, types.ErrCryptoFailure
	}
	plaintext, err := decryptAESGCM(contentKey, sb.Nonce, sb.Ciphertext)
	if err != nil {
		return nil, types.ErrAuthenticationFailure
	}
	return plaintext, nil
}

// UnwrapKey recovers the content key from a recipient's capsule
func UnwrapKey(capsule, recipientPrivateKey []byte) ([]byte, error) {
	if len(recipientPrivateKey) != PrivateKeySize {
		return nil, types.ErrInvalidPrivateKey
	}
	var kc KeyCapsule
	if err := cbor.Unmarshal(capsule, &kc); err != nil {
		return nil, types.ErrCryptoFailure
	}
	if len(kc.KemCiphertext) != kemCiphertextSize || len(kc.Nonce) != NonceSize {
		return nil, types.ErrCryptoFailure
	}

	var priv mlkem768.PrivateKey
	if err := priv.Unpack(recipientPrivateKey); err != nil {
		return nil, types.ErrInvalidPrivateKey
	}
	sharedSecret := make([]byte, sharedKeySize)
	priv.DecapsulateTo(sharedSecret, kc.KemCiphertext)
	defer zero(sharedSecret)

	kek, err := deriveKEK(sharedSecret, kc.KemCiphertext)
	if err != nil {
		return nil, types.ErrCryptoFailure
	}
	defer zero(kek)

	contentKey, err := decryptAESGCM(kek, kc.Nonce, kc.WrappedKey)
	if err != nil {
		// decapsulation with the wrong private key yields a garbage shared
		// secret, surfacing here as a failed unwrap
		return nil, types.ErrKeyMismatch
	}
	if len(contentKey) != KeySize {
		return nil, types.ErrKeyMismatch
	}
	return contentKey, nil
}

// ContentHash returns the sha256 hash of the data as a hex string
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func wrapKey(contentKey []byte, pub *mlkem768.PublicKey) ([]byte, error) {
	kemCt := make([]byte, kemCiphertextSize)
	sharedSecret := make([]byte, sharedKeySize)
	pub.EncapsulateTo(kemCt, sharedSecret, nil)
	defer zero(sharedSecret)

	kek, err := deriveKEK(sharedSecret, kemCt)
	if err != nil {
		return nil, err
	}
	defer zero(kek)

	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	wrapped, err := encryptAESGCM(kek, nonce, contentKey)
	if err != nil {
		return nil, err
	}
	return cbor.Marshal(&KeyCapsule{KemCiphertext: kemCt, Nonce: nonce, WrappedKey: wrapped})
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
