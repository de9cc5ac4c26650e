package envelope

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tipline/go-tipline-server/types"
)

func TestSealUnsealAllRecipients(t *testing.T) {
	plaintext := []byte("the facility dumps waste after midnight")

	kp1, err := GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}
	kp2, err := GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}

	sealed, err := Seal(plaintext, map[string][]byte{
		"r1": kp1.PublicKey,
		"r2": kp2.PublicKey,
	})
	if err != nil {
		t.Fatal(err)
	}
	assert.Len(t, sealed.Capsules, 2)
	assert.Equal(t, ContentHash(plaintext), sealed.ContentHash)

	for id, kp := range map[string]*Keypair{"r1": kp1, "r2": kp2} {
		out, err := Unseal(sealed.Box, sealed.Capsules[id], kp.PrivateKey)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(out, plaintext) {
			t.Fatalf("recipient %s recovered wrong plaintext", id)
		}
	}
}

func TestSealFreshKeyPerSubmission(t *testing.T) {
	kp, err := GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}
	recipients := map[string][]byte{"r1": kp.PublicKey}

	a, err := Seal([]byte("same plaintext"), recipients)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Seal([]byte("same plaintext"), recipients)
	if err != nil {
		t.Fatal(err)
	}
	assert.NotEqual(t, a.Box, b.Box)
	assert.NotEqual(t, a.Capsules["r1"], b.Capsules["r1"])
	assert.Equal(t, a.ContentHash, b.ContentHash)
}

func TestSealNoRecipients(t *testing.T) {
	_, err := Seal([]byte("orphan"), nil)
	assert.ErrorIs(t, err, types.ErrNoRoute)
}

func TestSealMalformedRecipientKey(t *testing.T) {
	kp, err := GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}
	_, err = Seal([]byte("payload"), map[string][]byte{
		"good": kp.PublicKey,
		"bad":  []byte("not a key"),
	})
	assert.ErrorIs(t, err, types.ErrCryptoFailure)
}

func TestUnsealTamperedCiphertext(t *testing.T) {
	kp, err := GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}
	sealed, err := Seal([]byte("payload"), map[string][]byte{"r1": kp.PublicKey})
	if err != nil {
		t.Fatal(err)
	}

	tampered := make([]byte, len(sealed.Box))
	copy(tampered, sealed.Box)
	tampered[len(tampered)-1] ^= 0xff

	_, err = Unseal(tampered, sealed.Capsules["r1"], kp.PrivateKey)
	assert.ErrorIs(t, err, types.ErrAuthenticationFailure)
}

func TestUnsealWrongPrivateKey(t *testing.T) {
	kp, err := GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}
	other, err := GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}
	sealed, err := Seal([]byte("payload"), map[string][]byte{"r1": kp.PublicKey})
	if err != nil {
		t.Fatal(err)
	}

	_, err = Unseal(sealed.Box, sealed.Capsules["r1"], other.PrivateKey)
	assert.ErrorIs(t, err, types.ErrKeyMismatch)
}

func TestUnsealShortPrivateKey(t *testing.T) {
	kp, err := GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}
	sealed, err := Seal([]byte("payload"), map[string][]byte{"r1": kp.PublicKey})
	if err != nil {
		t.Fatal(err)
	}
	_, err = Unseal(sealed.Box, sealed.Capsules["r1"], []byte("short"))
	assert.ErrorIs(t, err, types.ErrInvalidPrivateKey)
}

func TestEncryptBlobRoundtrip(t *testing.T) {
	kp, err := GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}
	sealed, err := Seal([]byte("body"), map[string][]byte{"r1": kp.PublicKey})
	if err != nil {
		t.Fatal(err)
	}
	contentKey, err := UnwrapKey(sealed.Capsules["r1"], kp.PrivateKey)
	if err != nil {
		t.Fatal(err)
	}

	blob := []byte("attachment bytes")
	encrypted, err := EncryptBlob(contentKey, blob)
	if err != nil {
		t.Fatal(err)
	}
	out, err := OpenBox(encrypted, contentKey)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, blob, out)
}

func TestValidatePublicKey(t *testing.T) {
	kp, err := GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}
	assert.True(t, ValidatePublicKey(kp.PublicKey))
	assert.False(t, ValidatePublicKey(kp.PublicKey[:10]))
	assert.False(t, ValidatePublicKey(nil))
}
