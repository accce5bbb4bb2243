package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/xnrt-platform/xnrt_service/pkg/hdwallet"
)

// Config holds all configuration for the service
type Config struct {
	Environment string           `mapstructure:"environment"`
	LogLevel    string           `mapstructure:"log_level"`
	Server      ServerConfig     `mapstructure:"server"`
	Database    DatabaseConfig   `mapstructure:"database"`
	Redis       RedisConfig      `mapstructure:"redis"`
	Blockchain  BlockchainConfig `mapstructure:"blockchain"`
	Scanner     ScannerConfig    `mapstructure:"scanner"`
	Deposit     DepositConfig    `mapstructure:"deposit"`
	HDWallet    HDWalletConfig   `mapstructure:"hdwallet"`
}

type ServerConfig struct {
	Port            int      `mapstructure:"port"`
	Host            string   `mapstructure:"host"`
	ReadTimeout     int      `mapstructure:"read_timeout"`
	WriteTimeout    int      `mapstructure:"write_timeout"`
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	RateLimitPerMin int      `mapstructure:"rate_limit_per_min"`
}

type DatabaseConfig struct {
	URL             string `mapstructure:"url"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Name            string `mapstructure:"name"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// BlockchainConfig describes the chain endpoint and the token being watched
type BlockchainConfig struct {
	RPCURL          string `mapstructure:"rpc_url"`
	TokenContract   string `mapstructure:"token_contract"`
	TreasuryAddress string `mapstructure:"treasury_address"`
	TokenDecimals   int32  `mapstructure:"token_decimals"`
	RPCTimeout      int    `mapstructure:"rpc_timeout"` // seconds, per call
}

// ScannerConfig tunes the block-range scan loop
type ScannerConfig struct {
	Interval              int    `mapstructure:"interval"` // seconds between ticks
	BatchSize             uint64 `mapstructure:"batch_size"`
	RequiredConfirmations uint64 `mapstructure:"required_confirmations"`
	StartFromTip          bool   `mapstructure:"start_from_tip"`
	StartOffset           uint64 `mapstructure:"start_offset"` // blocks behind tip on first run
	PendingSweepSchedule  string `mapstructure:"pending_sweep_schedule"`
}

// DepositConfig holds credit arithmetic parameters
type DepositConfig struct {
	ExchangeRate   string `mapstructure:"exchange_rate"` // XNRT per USDT, decimal string
	PlatformFeeBps int64  `mapstructure:"platform_fee_bps"`
}

// HDWalletConfig holds the master seed and derivation scheme parameters
type HDWalletConfig struct {
	Mnemonic        string `mapstructure:"mnemonic"`
	DefaultCoinType uint32 `mapstructure:"default_coin_type"`
	AddressVersion  int    `mapstructure:"address_version"`
}

// Load reads configuration from config file and environment variables
func Load() (*Config, error) {
	// Load .env file if present
	_ = godotenv.Load()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	overrideFromEnv()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if config.Database.URL == "" {
		config.Database.URL = fmt.Sprintf(
			"postgres://%s:%s@%s:%d/%s?sslmode=%s",
			config.Database.User,
			config.Database.Password,
			config.Database.Host,
			config.Database.Port,
			config.Database.Name,
			config.Database.SSLMode,
		)
	}

	config.Blockchain.TokenContract = strings.ToLower(config.Blockchain.TokenContract)
	config.Blockchain.TreasuryAddress = strings.ToLower(config.Blockchain.TreasuryAddress)

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("environment", "development")
	viper.SetDefault("log_level", "info")

	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.read_timeout", 30)
	viper.SetDefault("server.write_timeout", 30)
	viper.SetDefault("server.allowed_origins", []string{"*"})
	viper.SetDefault("server.rate_limit_per_min", 120)

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.name", "xnrt_service")
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", 300)

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("blockchain.token_decimals", 18)
	viper.SetDefault("blockchain.rpc_timeout", 15)

	viper.SetDefault("scanner.interval", 60)
	viper.SetDefault("scanner.batch_size", 300)
	viper.SetDefault("scanner.required_confirmations", 12)
	viper.SetDefault("scanner.start_from_tip", true)
	viper.SetDefault("scanner.start_offset", 0)
	viper.SetDefault("scanner.pending_sweep_schedule", "*/5 * * * *")

	viper.SetDefault("deposit.exchange_rate", "100")
	viper.SetDefault("deposit.platform_fee_bps", 0)

	viper.SetDefault("hdwallet.default_coin_type", hdwallet.CoinTypeEther)
	viper.SetDefault("hdwallet.address_version", 2)
}

func overrideFromEnv() {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		viper.Set("database.url", url)
	}
	if url := os.Getenv("RPC_URL"); url != "" {
		viper.Set("blockchain.rpc_url", url)
	}
	if m := os.Getenv("MASTER_MNEMONIC"); m != "" {
		viper.Set("hdwallet.mnemonic", m)
	}
}

// validate refuses startup on fatal configuration errors: a broken deriver or
// a missing endpoint would corrupt address issuance and scanning for every
// user, so the process must not come up at all.
func validate(cfg *Config) error {
	if cfg.Blockchain.RPCURL == "" {
		return fmt.Errorf("blockchain.rpc_url is required")
	}
	if cfg.Blockchain.TokenContract == "" {
		return fmt.Errorf("blockchain.token_contract is required")
	}
	if cfg.Blockchain.TreasuryAddress == "" {
		return fmt.Errorf("blockchain.treasury_address is required")
	}
	if err := hdwallet.ValidateMnemonic(cfg.HDWallet.Mnemonic); err != nil {
		return fmt.Errorf("hdwallet.mnemonic: %w", err)
	}
	if cfg.Scanner.BatchSize == 0 {
		return fmt.Errorf("scanner.batch_size must be positive")
	}
	if cfg.Deposit.PlatformFeeBps < 0 || cfg.Deposit.PlatformFeeBps > 10000 {
		return fmt.Errorf("deposit.platform_fee_bps must be between 0 and 10000")
	}
	return nil
}
