// Package config loads server and CLI configuration with viper.
//
// Priority (highest to lowest):
//  1. Environment variables with REVREC_ prefix (e.g. REVREC_DATABASE_PATH)
//  2. The config file (revrec.yaml / revrec.toml, or the --config path)
//  3. Built-in defaults
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"github.com/warp/revrec-engine/internal/logging"
	"github.com/warp/revrec-engine/ledger"
	"github.com/warp/revrec-engine/revrec"
)

const envPrefix = "REVREC"

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Log       logging.Config  `mapstructure:"log"`
	Policy    PolicyConfig    `mapstructure:"policy"`
	Accounts  ledger.Accounts `mapstructure:"accounts"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	// ConcurrencyLimit bounds parallel contract builds in consolidated reports.
	ConcurrencyLimit int `mapstructure:"concurrency_limit"`
}

// DatabaseConfig holds SQLite settings
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// SchedulerConfig holds month-end posting settings
type SchedulerConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

// PolicyConfig holds accounting policy elections
type PolicyConfig struct {
	ReturnsAssetRatio float64 `mapstructure:"returns_asset_ratio"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.concurrency_limit", 8)

	v.SetDefault("database.path", "revrec.db")

	v.SetDefault("scheduler.enabled", false)
	v.SetDefault("scheduler.interval", time.Hour)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stderr")
	v.SetDefault("log.development", false)

	v.SetDefault("policy.returns_asset_ratio", 0.60)

	accounts := ledger.DefaultAccounts()
	v.SetDefault("accounts.revenue", accounts.Revenue)
	v.SetDefault("accounts.deferred_revenue", accounts.DeferredRevenue)
	v.SetDefault("accounts.commission_expense", accounts.CommissionExpense)
	v.SetDefault("accounts.deferred_contract_costs", accounts.DeferredContractCosts)
	v.SetDefault("accounts.refund_liability", accounts.RefundLiability)
	v.SetDefault("accounts.returns_asset", accounts.ReturnsAsset)
	v.SetDefault("accounts.cost_of_goods_sold", accounts.CostOfGoodsSold)
	v.SetDefault("accounts.loyalty_liability", accounts.LoyaltyLiability)
}

// Load reads configuration. With an empty path it looks for revrec.{yaml,toml}
// in the working directory and tolerates its absence; an explicit path must
// exist.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	} else {
		v.SetConfigName("revrec")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values viper cannot constrain.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Policy.ReturnsAssetRatio < 0 || c.Policy.ReturnsAssetRatio > 1 {
		return fmt.Errorf("policy.returns_asset_ratio must be within [0, 1]: %v", c.Policy.ReturnsAssetRatio)
	}
	if c.Scheduler.Enabled && c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be positive: %v", c.Scheduler.Interval)
	}
	if c.Database.Path == "" {
		return errors.New("database.path is required")
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string { return fmt.Sprintf(":%d", c.Server.Port) }

// RevrecPolicy maps the configuration onto the builder policy.
func (c *Config) RevrecPolicy() revrec.Policy {
	p := revrec.DefaultPolicy()
	p.ReturnsAssetRatio = decimal.NewFromFloat(c.Policy.ReturnsAssetRatio)
	p.RevenueAccount = c.Accounts.Revenue
	p.DeferredRevenueAccount = c.Accounts.DeferredRevenue
	return p
}
