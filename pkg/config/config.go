package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App     AppConfig     `mapstructure:"app"`
	RPC     RPCConfig     `mapstructure:"rpc"`
	Store   StoreConfig   `mapstructure:"store"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Wallet  WalletConfig  `mapstructure:"wallet"`
	Fee     FeeConfig     `mapstructure:"fee"`
	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type RPCConfig struct {
	Endpoint       string        `mapstructure:"endpoint"`
	Commitment     string        `mapstructure:"commitment"` // processed, confirmed, finalized
	RateLimit      float64       `mapstructure:"rate_limit"` // requests per second, 0 = unlimited
	ConfirmTimeout time.Duration `mapstructure:"confirm_timeout"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
}

type StoreConfig struct {
	Backend string `mapstructure:"backend"` // "file" or "redis"
	Path    string `mapstructure:"path"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Hash     string `mapstructure:"hash"`
}

type WalletConfig struct {
	KeypairPath string `mapstructure:"keypair_path"`
	Password    string `mapstructure:"password"` // only for encrypted keystores, usually WALLET_PASSWORD
}

type FeeConfig struct {
	ComputeUnitPrice uint64 `mapstructure:"compute_unit_price"` // micro-lamports per CU, 0 disables
}

type LogConfig struct {
	File      string `mapstructure:"file"`
	MaxSizeMB int    `mapstructure:"max_size_mb"`
}

type MetricsConfig struct {
	Pushgateway string `mapstructure:"pushgateway"`
	Job         string `mapstructure:"job"`
}

var Global Config

// Init loads config.yaml (or cfgFile when set), environment overrides and
// defaults into Global. A missing config file is not an error.
func Init(cfgFile string) error {
	v := viper.GetViper()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config") // name of config file (without extension)
		v.SetConfigType("yaml")   // REQUIRED if the config file does not have the extension in the name
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	Global = cfg
	return nil
}

// DefaultStorePath is where the Solana CLI keeps its own config.
func DefaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".config", "solana", "durable_nonce_file.json")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "development")

	v.SetDefault("rpc.endpoint", "https://api.devnet.solana.com")
	v.SetDefault("rpc.commitment", "confirmed")
	v.SetDefault("rpc.rate_limit", 10)
	v.SetDefault("rpc.confirm_timeout", 60*time.Second)
	v.SetDefault("rpc.poll_interval", 2*time.Second)

	v.SetDefault("store.backend", "file")
	v.SetDefault("store.path", DefaultStorePath())

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.hash", "durable_nonce")

	v.SetDefault("wallet.keypair_path", "test_keypair.json")

	v.SetDefault("fee.compute_unit_price", 500_000)

	v.SetDefault("log.max_size_mb", 10)

	v.SetDefault("metrics.job", "nonce_cli")
}
