package main

import (
	"fmt"

	"github.com/alecgard/jauge/internal/auth"
	"github.com/spf13/cobra"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate an operator key and its hash",
	RunE:  runKeygen,
}

func init() {
	rootCmd.AddCommand(keygenCmd)
}

func runKeygen(cmd *cobra.Command, args []string) error {
	key, hash, err := auth.GenerateOperatorKey()
	if err != nil {
		return err
	}

	fmt.Printf("Operator key: %s\n", key)
	fmt.Printf("Key hash:     %s\n", hash)
	fmt.Printf("\nPut the hash in auth.operator_key_hash (or JAUGE_OPERATOR_KEY_HASH)\n")
	fmt.Printf("and give the key to whoever calls the mutating endpoints.\n")
	fmt.Printf("The key is not stored anywhere; keep it safe.\n")

	return nil
}
