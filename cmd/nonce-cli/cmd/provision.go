package cmd

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var provisionCmd = &cobra.Command{
	Use:   "provision [keypair files...]",
	Short: "Create and register a nonce account for each keypair",
	Long: `Ensures every given keypair (default: the configured one) has a durable
nonce account. Keypairs that already have one are skipped without touching
the network. Several keypairs are provisioned in parallel.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		paths := args
		if len(paths) == 0 {
			paths = []string{""}
		}

		signers := make([]solana.PrivateKey, len(paths))
		for i, path := range paths {
			key, err := loadSigner(path)
			if err != nil {
				return err
			}
			signers[i] = key
		}

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		accounts := make([]solana.PublicKey, len(signers))
		g, ctx := errgroup.WithContext(cmd.Context())
		for i, signer := range signers {
			g.Go(func() error {
				address, err := a.provisioner.EnsureNonceAccount(ctx, signer)
				if err != nil {
					return fmt.Errorf("%s: %w", signer.PublicKey(), err)
				}
				accounts[i] = address
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for i, signer := range signers {
			fmt.Fprintf(out, "%s\t%s\n", signer.PublicKey(), accounts[i])
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(provisionCmd)
}
