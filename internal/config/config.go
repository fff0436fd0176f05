package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Node     NodeConfig     `mapstructure:"node"`
	Crypto   CryptoConfig   `mapstructure:"crypto"`
	Alerts   AlertsConfig   `mapstructure:"alerts"`
	Database DatabaseConfig `mapstructure:"database"`
	Issuer   IssuerConfig   `mapstructure:"issuer"`
}

type NodeConfig struct {
	ID      string `mapstructure:"id"`
	DataDir string `mapstructure:"data_dir"`
}

type CryptoConfig struct {
	HashAlgorithm      string `mapstructure:"hash_algorithm"`
	SignatureAlgorithm string `mapstructure:"signature_algorithm"`
}

type AlertsConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	SlackWebhook string `mapstructure:"slack_webhook"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

type IssuerConfig struct {
	ID             string `mapstructure:"id"`
	PublicKeyFile  string `mapstructure:"public_key_file"`
	PrivateKeyFile string `mapstructure:"private_key_file"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if expanded := os.ExpandEnv(val); expanded != val {
			v.Set(key, expanded)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Node.ID == "" {
		return fmt.Errorf("node.id is required")
	}
	if c.Node.DataDir == "" {
		return fmt.Errorf("node.data_dir is required")
	}

	if c.Crypto.HashAlgorithm == "" {
		c.Crypto.HashAlgorithm = "sha256"
	}
	if c.Crypto.HashAlgorithm != "sha256" {
		return fmt.Errorf("invalid hash algorithm: %s (valid options: sha256)", c.Crypto.HashAlgorithm)
	}

	if c.Crypto.SignatureAlgorithm == "" {
		c.Crypto.SignatureAlgorithm = "ed25519"
	}
	if c.Crypto.SignatureAlgorithm != "ed25519" {
		return fmt.Errorf("invalid signature algorithm: %s (valid options: ed25519)", c.Crypto.SignatureAlgorithm)
	}

	return nil
}

// HasDatabase reports whether a Postgres archive target is configured.
func (c *Config) HasDatabase() bool {
	return c.Database.Host != "" && c.Database.Database != ""
}

func (d *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=disable",
		d.Host, d.Port, d.Database, d.User, d.Password)
}
