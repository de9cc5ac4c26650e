package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/spf13/cobra"
	"github.com/tipline/go-tipline-server/envelope"
)

var recipientOutputFile string

func init() {
	recipientKeysCmd.Flags().StringVarP(&recipientOutputFile, "output", "o", "", "output file (default is stdout)")
	rootCmd.AddCommand(recipientKeysCmd)
}

// recipientKeysCmd generates the keypairs a recipient needs: an ML-KEM-768
// encryption keypair for unwrapping submission keys and an ed25519 signing
// keypair for the challenge/response login. The public halves go into the
// registration request; the private halves stay with the recipient.
var recipientKeysCmd = &cobra.Command{
	Use:   "recipient-keys",
	Short: "Generate recipient keypairs",
	Long:  "Generate the ML-KEM-768 encryption keypair and ed25519 signing keypair for a new recipient",
	Run: func(cmd *cobra.Command, args []string) {
		encKeypair, err := envelope.GenerateKeypair()
		check(err)

		signPub, signPriv, err := ed25519.GenerateKey(rand.Reader)
		check(err)

		publicJwk, err := jwk.FromRaw(signPub)
		check(err)
		privateJwk, err := jwk.FromRaw(signPriv)
		check(err)
		publicJwkJson, err := json.Marshal(publicJwk)
		check(err)
		privateJwkJson, err := json.Marshal(privateJwk)
		check(err)

		keysJson := map[string]interface{}{
			"type": "tipline_recipient_keys",
			"registration": map[string]interface{}{
				"encryptionPublicKey": base64.StdEncoding.EncodeToString(encKeypair.PublicKey),
				"signingPublicKeyJwk": json.RawMessage(publicJwkJson),
			},
			"encryptionPrivateKey": base64.StdEncoding.EncodeToString(encKeypair.PrivateKey),
			"signingPrivateKeyJwk": json.RawMessage(privateJwkJson),
			"created":              time.Now().UnixMilli(),
		}
		fileBytes, err := json.MarshalIndent(keysJson, "", "  ")
		if recipientOutputFile != "" {
			// fail if file already exists
			if _, err := os.Stat(recipientOutputFile); !errors.Is(err, os.ErrNotExist) {
				fmt.Printf("File already exists: %s\n", recipientOutputFile)
				os.Exit(1)
			}
			check(err)
			err = os.WriteFile(recipientOutputFile, fileBytes, 0600)
			check(err)
			fmt.Printf("Output file: %s\n", recipientOutputFile)
		} else {
			fmt.Printf("\n%s\n", string(fileBytes))
		}
	},
}
