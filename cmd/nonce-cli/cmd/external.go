package cmd

import (
	"encoding/base64"
	"fmt"

	"nonce-core/pkg/errno"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"
)

var prepareCmd = &cobra.Command{
	Use:   "prepare <identity>",
	Short: "Build a nonce account creation transaction for an external wallet",
	Long: `Prints a new nonce account address and a base64 creation transaction
signed by the account's throwaway key. The identity must co-sign and send it
within the blockhash lifetime, then run adopt to register the account.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		identity, err := parseAddress("identity", args[0])
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		prepared, err := a.provisioner.PrepareCreate(cmd.Context(), identity)
		if err != nil {
			return err
		}
		raw, err := prepared.Transaction.MarshalBinary()
		if err != nil {
			return fmt.Errorf("encode transaction: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Nonce account:  %s\n", prepared.NonceAccount)
		fmt.Fprintf(out, "Transaction:    %s\n", base64.StdEncoding.EncodeToString(raw))
		return nil
	},
}

var adoptCmd = &cobra.Command{
	Use:   "adopt <identity> <nonce-account>",
	Short: "Register an existing nonce account controlled by identity",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		identity, err := parseAddress("identity", args[0])
		if err != nil {
			return err
		}
		account, err := parseAddress("nonce account", args[1])
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.provisioner.Adopt(cmd.Context(), identity, account); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", identity, account)
		return nil
	},
}

func parseAddress(what, s string) (solana.PublicKey, error) {
	key, err := solana.PublicKeyFromBase58(s)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("%w: %s %q: %w", errno.ErrInput, what, s, err)
	}
	return key, nil
}

func init() {
	rootCmd.AddCommand(prepareCmd)
	rootCmd.AddCommand(adoptCmd)
}
