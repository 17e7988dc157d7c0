// Package config defines the process-wide Config struct and its layered
// loader. A Config is built once at startup and passed by pointer to every
// workflow constructor; nothing reads it as a package-level singleton at
// call time.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/spf13/viper"
)

// StorageBackend selects which Storage implementation an engine instance
// uses.
type StorageBackend string

const (
	BackendFlatFile StorageBackend = "flatfile"
	BackendDatabase StorageBackend = "database"
)

// MonteCarloDefaults mirrors the SKU-level Monte Carlo parameters, used
// as the fallback when a SKU doesn't declare its own.
type MonteCarloDefaults struct {
	Distribution      string  `mapstructure:"distribution" json:"distribution"`
	NSimulations      int     `mapstructure:"n_simulations" json:"n_simulations"`
	RandomSeed        uint64  `mapstructure:"random_seed" json:"random_seed"`
	OutputStat        string  `mapstructure:"output_stat" json:"output_stat"`
	OutputPercentile  int     `mapstructure:"output_percentile" json:"output_percentile"`
	HorizonMode       string  `mapstructure:"horizon_mode" json:"horizon_mode"`
	HorizonDays       int     `mapstructure:"horizon_days" json:"horizon_days"`
	ExpectedWasteRate float64 `mapstructure:"expected_waste_rate" json:"expected_waste_rate"`
}

// ExpiryThresholds bounds how many days of residual shelf life trigger
// critical vs. warning alerts.
type ExpiryThresholds struct {
	CriticalDays int `mapstructure:"critical_days" json:"critical_days"`
	WarningDays  int `mapstructure:"warning_days" json:"warning_days"`
}

// Config holds application settings for one engine instance.
type Config struct {
	StorageBackend StorageBackend `mapstructure:"storage_backend" json:"storage_backend"`
	DataDir        string         `mapstructure:"data_dir" json:"data_dir"`
	DatabasePath   string         `mapstructure:"database_path" json:"database_path"`

	LeadTimeDaysDefault int      `mapstructure:"lead_time_days_default" json:"lead_time_days_default"`
	OrderDays           []string `mapstructure:"order_days" json:"order_days"`
	DeliveryDays        []string `mapstructure:"delivery_days" json:"delivery_days"`

	OOSLookbackDays int `mapstructure:"oos_lookback_days" json:"oos_lookback_days"`

	MonteCarloDefaults MonteCarloDefaults `mapstructure:"monte_carlo_defaults" json:"monte_carlo_defaults"`
	ExpiryThresholds   ExpiryThresholds   `mapstructure:"expiry_thresholds" json:"expiry_thresholds"`

	HolidayJSONPath string `mapstructure:"holiday_json_path" json:"holiday_json_path"`

	BackupRetention int `mapstructure:"backup_retention" json:"backup_retention"`

	HTTPAddr string `mapstructure:"http_addr" json:"http_addr"`
}

// Default returns a Config with sensible defaults. The oos_lookback clamp
// and backup retention floor are applied by Load, not here.
func Default() *Config {
	return &Config{
		StorageBackend:      BackendFlatFile,
		DataDir:             "./data",
		DatabasePath:        "./data/replenisher.db",
		LeadTimeDaysDefault: 2,
		OrderDays:           []string{"monday", "wednesday", "friday"},
		DeliveryDays:        []string{"tuesday", "thursday", "saturday", "monday"},
		OOSLookbackDays:     30,
		MonteCarloDefaults: MonteCarloDefaults{
			Distribution: "empirical",
			NSimulations: 1000,
			RandomSeed:   42,
			OutputStat:   "mean",
			HorizonMode:  "auto",
		},
		ExpiryThresholds: ExpiryThresholds{CriticalDays: 2, WarningDays: 5},
		BackupRetention:  5,
		HTTPAddr:         ":8089",
	}
}

// Load layers defaults -> optional YAML file at path -> REPL_-prefixed
// environment variables -> already-bound CLI flags (via v), returning a
// frozen Config. Passing an empty path skips the file layer; a missing
// file is not an error, but a malformed one is.
func Load(path string, v *viper.Viper) (*Config, error) {
	if v == nil {
		v = viper.New()
	}

	def := Default()
	bindDefaults(v, def)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config: reading %s: %w", path, err)
			}
		}
	}

	v.SetEnvPrefix("REPL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if cfg.OOSLookbackDays < 0 {
		cfg.OOSLookbackDays = 0
	}
	if cfg.BackupRetention < 2 {
		cfg.BackupRetention = 2
	}

	return cfg, nil
}

func bindDefaults(v *viper.Viper, def *Config) {
	v.SetDefault("storage_backend", string(def.StorageBackend))
	v.SetDefault("data_dir", def.DataDir)
	v.SetDefault("database_path", def.DatabasePath)
	v.SetDefault("lead_time_days_default", def.LeadTimeDaysDefault)
	v.SetDefault("order_days", def.OrderDays)
	v.SetDefault("delivery_days", def.DeliveryDays)
	v.SetDefault("oos_lookback_days", def.OOSLookbackDays)
	v.SetDefault("monte_carlo_defaults.distribution", def.MonteCarloDefaults.Distribution)
	v.SetDefault("monte_carlo_defaults.n_simulations", def.MonteCarloDefaults.NSimulations)
	v.SetDefault("monte_carlo_defaults.random_seed", def.MonteCarloDefaults.RandomSeed)
	v.SetDefault("monte_carlo_defaults.output_stat", def.MonteCarloDefaults.OutputStat)
	v.SetDefault("monte_carlo_defaults.horizon_mode", def.MonteCarloDefaults.HorizonMode)
	v.SetDefault("expiry_thresholds.critical_days", def.ExpiryThresholds.CriticalDays)
	v.SetDefault("expiry_thresholds.warning_days", def.ExpiryThresholds.WarningDays)
	v.SetDefault("holiday_json_path", def.HolidayJSONPath)
	v.SetDefault("backup_retention", def.BackupRetention)
	v.SetDefault("http_addr", def.HTTPAddr)
}
