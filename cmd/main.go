package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func check(e error) {
	if e != nil {
		fmt.Printf("%v\n", e.Error())
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "tipline",
	Short:   "Tipline is a secure anonymous submission intake and routing server",
	Long:    `Tipline accepts anonymous submissions, encrypts them for the recipients that handle their category, and routes them so that only those recipients can read them.`,
	Version: "0.1.0",
	Run: func(cmd *cobra.Command, args []string) {
		// empty
	},
}

func main() {
	Execute()
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		panic(err)
	}
}
