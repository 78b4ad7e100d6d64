package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rohankatakam/repograph/internal/config"
)

var credentialItems = []string{config.KeyringNeo4jPasswordItem, config.KeyringPostgresDSNItem}

var credentialsCmd = &cobra.Command{
	Use:   "credentials",
	Short: "Manage secrets stored in the OS keychain",
}

var credentialsSetCmd = &cobra.Command{
	Use:       "set <item>",
	Short:     "Store a secret in the OS keychain",
	Long:      "Reads a secret from the terminal (or stdin) and saves it. Items: neo4j-password, postgres-dsn.",
	Args:      cobra.ExactArgs(1),
	ValidArgs: credentialItems,
	RunE:      runCredentialsSet,
}

var credentialsDeleteCmd = &cobra.Command{
	Use:       "delete <item>",
	Short:     "Remove a secret from the OS keychain",
	Args:      cobra.ExactArgs(1),
	ValidArgs: credentialItems,
	RunE:      runCredentialsDelete,
}

var credentialsStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show which secrets are stored",
	RunE:  runCredentialsStatus,
}

func init() {
	credentialsCmd.AddCommand(credentialsSetCmd)
	credentialsCmd.AddCommand(credentialsDeleteCmd)
	credentialsCmd.AddCommand(credentialsStatusCmd)
}

func checkItem(item string) error {
	for _, known := range credentialItems {
		if item == known {
			return nil
		}
	}
	return fmt.Errorf("unknown credential %q (expected one of %v)", item, credentialItems)
}

func runCredentialsSet(cmd *cobra.Command, args []string) error {
	if err := checkItem(args[0]); err != nil {
		return err
	}
	if err := config.NewCredentialManager().Store(args[0]); err != nil {
		return err
	}
	fmt.Printf("Saved %s to the OS keychain\n", args[0])
	return nil
}

func runCredentialsDelete(cmd *cobra.Command, args []string) error {
	if err := checkItem(args[0]); err != nil {
		return err
	}
	if err := config.NewKeyringManager().Delete(args[0]); err != nil {
		return err
	}
	fmt.Printf("Removed %s from the OS keychain\n", args[0])
	return nil
}

func runCredentialsStatus(cmd *cobra.Command, args []string) error {
	km := config.NewKeyringManager()
	if !km.IsAvailable() {
		return fmt.Errorf("OS keychain is not available on this system")
	}

	status := make(map[string]string, len(credentialItems))
	for _, item := range credentialItems {
		secret, err := km.Get(item)
		if err != nil {
			return err
		}
		status[item] = config.MaskSecret(secret)
	}

	return printResult(status, func() {
		for _, item := range credentialItems {
			fmt.Printf("  %-16s %s\n", item, status[item])
		}
	})
}
