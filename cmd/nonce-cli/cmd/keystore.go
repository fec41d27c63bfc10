package cmd

import (
	"fmt"

	"nonce-core/pkg/config"
	"nonce-core/pkg/errno"
	"nonce-core/pkg/keystore"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"
)

var keystoreCmd = &cobra.Command{
	Use:   "keystore",
	Short: "Manage encrypted keypair files",
}

var keystoreEncryptCmd = &cobra.Command{
	Use:   "encrypt",
	Short: "Encrypt a solana-keygen keypair into a password-protected keystore",
	RunE: func(cmd *cobra.Command, args []string) error {
		inputFile, _ := cmd.Flags().GetString("input")
		outputFile, _ := cmd.Flags().GetString("output")

		key, err := solana.PrivateKeyFromSolanaKeygenFile(inputFile)
		if err != nil {
			return fmt.Errorf("%w: %w", errno.ErrKeypair, err)
		}

		password := config.Global.Wallet.Password
		if password == "" {
			if password, err = promptPassword(); err != nil {
				return err
			}
			confirm, err := promptPassword()
			if err != nil {
				return err
			}
			if confirm != password {
				return fmt.Errorf("%w: passwords do not match", errno.ErrInput)
			}
		}
		if password == "" {
			return fmt.Errorf("%w: empty password", errno.ErrInput)
		}

		encrypted, err := keystore.EncryptKey(key, password)
		if err != nil {
			return err
		}
		if err := encrypted.SaveToFile(outputFile); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", encrypted.Address, outputFile)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(keystoreCmd)
	keystoreCmd.AddCommand(keystoreEncryptCmd)
	keystoreEncryptCmd.Flags().StringP("input", "i", "", "solana-keygen JSON keypair")
	keystoreEncryptCmd.Flags().StringP("output", "o", "keystore.json", "encrypted keystore file")
	_ = keystoreEncryptCmd.MarkFlagRequired("input")
}
