package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

var (
	ErrNonPositiveTimeout = errors.New("config: transaction timeout must be positive")
)

// Config carries the store's tunables. Only the timeout affects
// semantics; the rest is sizing and scheduling.
type Config struct {
	// InitialCapacity pre-sizes the transaction log.
	InitialCapacity int `mapstructure:"initial-capacity"`
	// VacuumRate is the interval between automatic vacuum passes.
	VacuumRate  time.Duration `mapstructure:"vacuum-rate"`
	Transaction Transaction   `mapstructure:"transaction"`
}

type Transaction struct {
	// Timeout bounds lock acquisition inside update/delete paths.
	Timeout time.Duration `mapstructure:"timeout"`
}

func Default() *Config {
	return &Config{
		InitialCapacity: 1000,
		VacuumRate:      60 * time.Second,
		Transaction: Transaction{
			Timeout: time.Second,
		},
	}
}

// Load reads configuration from an optional YAML file, then applies
// environment overrides on top.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		viper.SetConfigFile(configPath)
		viper.SetConfigType("yaml")
		if err := viper.ReadInConfig(); err != nil {
			logrus.Warnf("could not read config file %s: %v, using defaults and environment", configPath, err)
		} else if err := viper.Unmarshal(cfg); err != nil {
			return nil, fmt.Errorf("unmarshal config: %w", err)
		}
	}

	applyEnvironmentOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvironmentOverrides(cfg *Config) {
	if capacity := os.Getenv("WIDGETSTORE_INITIAL_CAPACITY"); capacity != "" {
		if c, err := strconv.Atoi(capacity); err == nil {
			cfg.InitialCapacity = c
		}
	}
	if timeout := os.Getenv("WIDGETSTORE_TRANSACTION_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			cfg.Transaction.Timeout = d
		}
	}
	if rate := os.Getenv("WIDGETSTORE_VACUUM_RATE"); rate != "" {
		if d, err := time.ParseDuration(rate); err == nil {
			cfg.VacuumRate = d
		}
	}
}

func (cfg *Config) Validate() error {
	if cfg.Transaction.Timeout <= 0 {
		return ErrNonPositiveTimeout
	}
	return nil
}
