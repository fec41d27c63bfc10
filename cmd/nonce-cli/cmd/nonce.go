package cmd

import (
	"fmt"

	"nonce-core/internal/durabletx"
	"nonce-core/pkg/amount"

	"github.com/spf13/cobra"
)

var nonceCmd = &cobra.Command{
	Use:   "nonce",
	Short: "Show the current nonce of the configured keypair",
	RunE: func(cmd *cobra.Command, args []string) error {
		signer, err := loadSigner("")
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		account, ok := a.registry.GetDurableNonce(cmd.Context(), signer.PublicKey())
		if !ok {
			return fmt.Errorf("%w: %s (run provision first)", durabletx.ErrNonceAccountMissing, signer.PublicKey())
		}
		data, err := a.ledger.GetNonceData(cmd.Context(), account)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Nonce account:  %s\n", account)
		fmt.Fprintf(out, "Authority:      %s\n", data.Authority)
		fmt.Fprintf(out, "Nonce:          %s\n", data.BlockhashSubstitute)
		fmt.Fprintf(out, "Fee per sig:    %s SOL\n", amount.FormatSOL(data.LamportsPerSignature))
		return nil
	},
}

var forgetCmd = &cobra.Command{
	Use:   "forget",
	Short: "Remove the registry entry of the configured keypair",
	Long: `Drops the local identity -> nonce account mapping. The on-chain account
is left as is; the next provision creates a new one.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		signer, err := loadSigner("")
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		a.registry.RemoveDurableNonce(cmd.Context(), signer.PublicKey())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(nonceCmd)
	rootCmd.AddCommand(forgetCmd)
}
