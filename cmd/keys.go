package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/tipline/go-tipline-server/util"
)

var outputFile string

func init() {
	keysCmd.Flags().StringVarP(&outputFile, "output", "o", "", "output file (default is stdout)")
	rootCmd.AddCommand(keysCmd)
}

// keysCmd generates the ed25519 signing keys the server uses to mint access tokens
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Generate ed25519 server keys",
	Long:  "Generate the ed25519 signing keys the server uses to mint and verify recipient access tokens",
	Run: func(cmd *cobra.Command, args []string) {
		// Generate ed25519 keys
		public, private, err := util.GenerateEd25519KeyPair()
		check(err)
		keysJson := map[string]interface{}{
			"type":       "tipline_server_keys_ed25519",
			"publicKey":  *public,
			"privateKey": *private,
			"created":    time.Now().UnixMilli(),
		}
		fileBytes, err := json.MarshalIndent(keysJson, "", "  ")
		if outputFile != "" {
			// save keys to disk in a file
			// fail if file already exists
			if _, err := os.Stat(outputFile); !errors.Is(err, os.ErrNotExist) {
				fmt.Printf("File already exists: %s\n", outputFile)
				os.Exit(1)
			}
			check(err)
			err = os.WriteFile(outputFile, fileBytes, 0600)
			check(err)
			fmt.Printf("Output file: %s\n", outputFile)
		} else {
			fmt.Printf("\n%s\n", string(fileBytes))
		}
	},
}
