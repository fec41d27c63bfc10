package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"nonce-core/pkg/amount"
	"nonce-core/pkg/errno"
	"nonce-core/pkg/wallet/types"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/spf13/cobra"
)

var transferCmd = &cobra.Command{
	Use:   "transfer",
	Short: "Send SOL with a durable-nonce transaction",
	Long: `Builds a transfer whose blockhash is the current durable nonce of the
configured keypair, submits it and waits for confirmation. Prints the
signature on success.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		signer, instruction, err := transferInstruction(cmd)
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		sig, err := a.builder.BuildAndSubmit(cmd.Context(), signer, []solana.Instruction{instruction})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), sig)
		return nil
	},
}

var signCmd = &cobra.Command{
	Use:   "sign",
	Short: "Build and sign a durable-nonce transfer without sending it",
	Long: `Writes a signed transaction file that stays valid until the nonce
account is advanced. Send it later with broadcast.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		outputFile, _ := cmd.Flags().GetString("output")

		signer, instruction, err := transferInstruction(cmd)
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		prepared, err := a.builder.Build(cmd.Context(), signer, []solana.Instruction{instruction})
		if err != nil {
			return err
		}

		signed, err := types.NewSignedTransaction(prepared.Transaction, prepared.NonceAccount)
		if err != nil {
			return err
		}
		data, err := json.MarshalIndent(signed, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(outputFile, data, 0o600); err != nil {
			return fmt.Errorf("write %s: %w", outputFile, err)
		}

		fmt.Fprintln(cmd.OutOrStdout(), signed.Signature)
		return nil
	},
}

// transferInstruction loads the signer and parses --to / --amount.
func transferInstruction(cmd *cobra.Command) (solana.PrivateKey, solana.Instruction, error) {
	to, _ := cmd.Flags().GetString("to")
	sol, _ := cmd.Flags().GetString("amount")

	recipient, err := solana.PublicKeyFromBase58(to)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: recipient %q: %w", errno.ErrInput, to, err)
	}
	lamports, err := amount.ParseSOL(sol)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", errno.ErrInput, err)
	}

	signer, err := loadSigner("")
	if err != nil {
		return nil, nil, err
	}
	return signer, system.NewTransferInstruction(lamports, signer.PublicKey(), recipient).Build(), nil
}

func init() {
	for _, c := range []*cobra.Command{transferCmd, signCmd} {
		c.Flags().String("to", "", "recipient address")
		c.Flags().String("amount", "", "amount in SOL, e.g. 0.001")
		_ = c.MarkFlagRequired("to")
		_ = c.MarkFlagRequired("amount")
		rootCmd.AddCommand(c)
	}
	signCmd.Flags().StringP("output", "o", "signed.json", "signed transaction file")
}
