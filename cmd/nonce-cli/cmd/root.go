package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"nonce-core/pkg/config"
	"nonce-core/pkg/errno"
	"nonce-core/pkg/logger"
	"nonce-core/pkg/monitor"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var cfgFile string

// rootCmd is the base command when called without subcommands
var rootCmd = &cobra.Command{
	Use:   "nonce-cli",
	Short: "Durable-nonce transaction tool for Solana",
	Long: `nonce-cli provisions one durable nonce account per keypair and sends
transactions that use the nonce instead of a recent blockhash, so they can be
signed offline and broadcast later.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Init(cfgFile); err != nil {
			return fmt.Errorf("%w: %w", errno.ErrConfig, err)
		}
		logger.Init(config.Global.App.Env, logger.FileConfig{
			Path:      config.Global.Log.File,
			MaxSizeMB: config.Global.Log.MaxSizeMB,
		})
		return nil
	},
}

// Execute runs the CLI. Any failure is printed to stderr with its error code
// and the process exits non-zero.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := run(ctx, os.Args[1:])
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(ctx)

	if perr := monitor.Push(config.Global.Metrics.Pushgateway, config.Global.Metrics.Job); perr != nil {
		logger.Warn("metrics push failed", zap.Error(perr))
	}
	logger.Sync()

	if err != nil {
		code, msg := errno.Decode(err)
		fmt.Fprintf(rootCmd.ErrOrStderr(), "error %d: %s\n", code, msg)
	}
	return err
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default ./config.yaml)")
	flags.String("keypair", "", "payer / nonce authority keypair file")
	flags.String("rpc", "", "JSON-RPC endpoint")

	_ = viper.BindPFlag("wallet.keypair_path", flags.Lookup("keypair"))
	_ = viper.BindPFlag("rpc.endpoint", flags.Lookup("rpc"))
}
