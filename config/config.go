// Package config loads the daemon configuration from a YAML file with
// environment variable overrides. Every key can be set through the
// environment using the X402CHAT_ prefix, e.g. chain.rpc_url becomes
// X402CHAT_CHAIN_RPC_URL.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"

	"github.com/vitwit/x402-chat/utils"
)

const envPrefix = "X402CHAT"

// Config is the full daemon configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Chain    ChainConfig    `mapstructure:"chain"`
	Payment  PaymentConfig  `mapstructure:"payment"`
	Replay   ReplayConfig   `mapstructure:"replay"`
	Upstream UpstreamConfig `mapstructure:"upstream"`
	Models   ModelsConfig   `mapstructure:"models"`
	Log      LogConfig      `mapstructure:"log"`
}

// ServerConfig holds listener settings.
type ServerConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// ChainConfig points at the chain the oracle reads from.
type ChainConfig struct {
	RPCURL        string        `mapstructure:"rpc_url"`
	Network       string        `mapstructure:"network"`
	VerifyTimeout time.Duration `mapstructure:"verify_timeout"`
}

// PaymentConfig holds the payment terms offered in challenges.
// RecipientAddress may be left empty: the server still starts, but gated
// routes answer with a configuration error until it is set.
type PaymentConfig struct {
	RecipientAddress string `mapstructure:"recipient_address"`
	Price            string `mapstructure:"price"`
}

// ReplayConfig controls the one-payment-one-request layer.
type ReplayConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	TTL           time.Duration `mapstructure:"ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// UpstreamConfig points at the OpenAI-compatible completion service.
type UpstreamConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

// ModelsConfig maps caller-facing model ids to upstream model names.
type ModelsConfig struct {
	Default string            `mapstructure:"default"`
	Aliases map[string]string `mapstructure:"aliases"`
}

// LogConfig selects verbosity.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Load reads the configuration at path, falling back to config.yaml in the
// working directory when path is empty. A missing file is not an error;
// defaults and environment variables still apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/x402chat")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || path != "" {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.listen_addr", ":8080")
	v.SetDefault("chain.network", "eip155:10143")
	v.SetDefault("chain.verify_timeout", 15*time.Second)
	// Keys without a natural default still get an empty one registered, so
	// environment-only overrides bind even when no config file exists.
	v.SetDefault("chain.rpc_url", "")
	v.SetDefault("payment.recipient_address", "")
	v.SetDefault("upstream.api_key", "")
	v.SetDefault("payment.price", "1000000000000000")
	v.SetDefault("replay.enabled", true)
	v.SetDefault("replay.ttl", 24*time.Hour)
	v.SetDefault("replay.sweep_interval", time.Hour)
	v.SetDefault("upstream.base_url", "https://api.openai.com/v1")
	v.SetDefault("models.default", "gpt-4o-mini")
	v.SetDefault("log.level", "info")
}

// Validate checks cross-field consistency. A missing recipient address is
// deliberately allowed; a malformed one is not.
func (c *Config) Validate() error {
	if c.Payment.RecipientAddress != "" {
		if !common.IsHexAddress(c.Payment.RecipientAddress) {
			return fmt.Errorf("payment.recipient_address %q is not a valid address", c.Payment.RecipientAddress)
		}
		if c.Chain.RPCURL == "" {
			return errors.New("chain.rpc_url is required when payment.recipient_address is set")
		}
	}

	price, err := utils.ValidateBigInt(c.Payment.Price)
	if err != nil {
		return fmt.Errorf("payment.price: %w", err)
	}
	if price.Sign() <= 0 {
		return errors.New("payment.price must be positive")
	}

	if !strings.HasPrefix(c.Chain.Network, "eip155:") {
		return fmt.Errorf("chain.network %q is not an eip155 network", c.Chain.Network)
	}

	if c.Upstream.BaseURL == "" {
		return errors.New("upstream.base_url is required")
	}
	if c.Models.Default == "" {
		return errors.New("models.default is required")
	}

	if c.Replay.Enabled {
		if c.Replay.TTL <= 0 {
			return errors.New("replay.ttl must be positive")
		}
		if c.Replay.SweepInterval <= 0 {
			return errors.New("replay.sweep_interval must be positive")
		}
	}
	return nil
}
