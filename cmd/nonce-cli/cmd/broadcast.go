package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"nonce-core/internal/durabletx"
	"nonce-core/pkg/errno"
	"nonce-core/pkg/wallet/types"

	"github.com/spf13/cobra"
)

var broadcastCmd = &cobra.Command{
	Use:   "broadcast",
	Short: "Submit a transaction file written by sign",
	Long: `Reads a signed durable-nonce transaction and submits it. If the nonce has
moved since signing, the transaction is stale and must be signed again.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		inputFile, _ := cmd.Flags().GetString("input")

		data, err := os.ReadFile(inputFile)
		if err != nil {
			return fmt.Errorf("%w: %w", errno.ErrInput, err)
		}
		var signed types.SignedTransaction
		if err := json.Unmarshal(data, &signed); err != nil {
			return fmt.Errorf("%w: parse %s: %w", errno.ErrInput, inputFile, err)
		}
		tx, err := signed.Transaction()
		if err != nil {
			return fmt.Errorf("%w: %w", errno.ErrInput, err)
		}
		prepared, err := durabletx.FromTransaction(tx)
		if err != nil {
			return fmt.Errorf("%w: %w", errno.ErrInput, err)
		}

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		sig, err := a.builder.Submit(cmd.Context(), prepared)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), sig)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(broadcastCmd)
	broadcastCmd.Flags().StringP("input", "i", "signed.json", "signed transaction file")
}
