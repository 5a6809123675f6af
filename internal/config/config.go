// Package config provides configuration management using viper.
// It supports loading from YAML files and environment variable overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all engine configuration.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Market   MarketConfig   `mapstructure:"market"`
	Raid     RaidConfig     `mapstructure:"raid"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	PoolSize        int           `mapstructure:"pool_size"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// MarketConfig holds marketplace tuning.
type MarketConfig struct {
	FeePercent        int           `mapstructure:"fee_percent"`
	ListingTTL        time.Duration `mapstructure:"listing_ttl"`
	Currency          string        `mapstructure:"currency"`
	ExpirySweepPeriod time.Duration `mapstructure:"expiry_sweep_period"`
}

// RaidConfig holds raid orchestration tuning. Reward values are per zone
// rank; the schedule scales linearly with rank at raid creation.
type RaidConfig struct {
	PreparationLead           time.Duration `mapstructure:"preparation_lead"`
	DefaultDurationMinutes    int           `mapstructure:"default_duration_minutes"`
	WinnerXPPerRank           int64         `mapstructure:"winner_xp_per_rank"`
	WinnerCoinsPerRank        int64         `mapstructure:"winner_coins_per_rank"`
	ParticipationXPPerRank    int64         `mapstructure:"participation_xp_per_rank"`
	ParticipationCoinsPerRank int64         `mapstructure:"participation_coins_per_rank"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name,
	)
}

// Load reads configuration from file and environment variables.
// It looks for config.yaml in the config directory.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Environment variables use underscore separators and uppercase,
	// e.g. DATABASE_HOST, MARKET_FEE_PERCENT.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK - env vars can provide all config
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "territory")
	v.SetDefault("database.name", "territory")
	v.SetDefault("database.pool_size", 20)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")

	// Market defaults
	v.SetDefault("market.fee_percent", 5)
	v.SetDefault("market.listing_ttl", "168h") // 7 days
	v.SetDefault("market.currency", "COINS")
	v.SetDefault("market.expiry_sweep_period", "1m")

	// Raid defaults
	v.SetDefault("raid.preparation_lead", "1h")
	v.SetDefault("raid.default_duration_minutes", 60)
	v.SetDefault("raid.winner_xp_per_rank", 100)
	v.SetDefault("raid.winner_coins_per_rank", 50)
	v.SetDefault("raid.participation_xp_per_rank", 25)
	v.SetDefault("raid.participation_coins_per_rank", 10)
}
