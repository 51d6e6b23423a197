// Package config provides configuration management for the pattern scanner.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	"pattern-scanner/internal/analysis/patterns"
	"pattern-scanner/internal/errors"
	"pattern-scanner/internal/logging"
	"pattern-scanner/internal/marketdata"
)

// Cache backends.
const (
	CacheSQLite = "sqlite"
	CacheCSV    = "csv"
	CacheNone   = "none"
)

// Config holds all application configuration.
type Config struct {
	Detection DetectionConfig `mapstructure:"detection"`
	Data      DataConfig      `mapstructure:"data"`
	Watchlist WatchlistConfig `mapstructure:"watchlist"`
	Schedule  ScheduleConfig  `mapstructure:"schedule"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Logging   LoggingConfig   `mapstructure:"logging"`

	path string
}

// DetectionConfig holds the detector thresholds.
type DetectionConfig struct {
	Window            int     `mapstructure:"window"`
	BoringBodyRatio   float64 `mapstructure:"boring_body_ratio"`
	BoringVolumeRatio float64 `mapstructure:"boring_volume_ratio"`
}

// DataConfig holds market data and cache configuration.
type DataConfig struct {
	Provider       string        `mapstructure:"provider"` // yahoo
	Interval       string        `mapstructure:"interval"`
	LookbackDays   int           `mapstructure:"lookback_days"`
	Cache          string        `mapstructure:"cache"` // sqlite, csv, none
	CacheDir       string        `mapstructure:"cache_dir"`
	DBPath         string        `mapstructure:"db_path"`
	Proxy          string        `mapstructure:"proxy"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
}

// WatchlistConfig lists the symbols scanned by default.
type WatchlistConfig struct {
	Symbols     []string `mapstructure:"symbols"`
	Concurrency int      `mapstructure:"concurrency"`
}

// ScheduleConfig holds the watch schedule.
type ScheduleConfig struct {
	Cron       string `mapstructure:"cron"` // with seconds field
	RunOnStart bool   `mapstructure:"run_on_start"`
}

// MetricsConfig holds the Prometheus endpoint configuration.
type MetricsConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	ListenAddr string `mapstructure:"listen_addr"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	File     bool   `mapstructure:"file"`
	FilePath string `mapstructure:"file_path"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/pattern-scanner"
	}
	return filepath.Join(home, ".config", "pattern-scanner")
}

// Default returns the built-in configuration.
func Default() *Config {
	dir := DefaultConfigDir()
	opts := patterns.DefaultOptions()
	return &Config{
		Detection: DetectionConfig{
			Window:            opts.Window,
			BoringBodyRatio:   opts.BoringBodyRatio,
			BoringVolumeRatio: opts.BoringVolumeRatio,
		},
		Data: DataConfig{
			Provider:       "yahoo",
			Interval:       "1d",
			LookbackDays:   300,
			Cache:          CacheSQLite,
			CacheDir:       filepath.Join(dir, "data"),
			DBPath:         filepath.Join(dir, "scanner.db"),
			RequestTimeout: 30 * time.Second,
			MaxRetries:     3,
		},
		Watchlist: WatchlistConfig{
			Symbols:     []string{"BAJFINANCE.NS"},
			Concurrency: 4,
		},
		Schedule: ScheduleConfig{
			Cron: "0 30 16 * * 1-5",
		},
		Metrics: MetricsConfig{
			ListenAddr: ":9108",
		},
		Logging: LoggingConfig{
			Level:    "info",
			File:     true,
			FilePath: logging.DefaultLogPath(),
		},
	}
}

// Load loads config.toml from the specified directory.
// If configDir is empty, uses the default config directory. A missing file
// is replaced by the commented template and then read back.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}
	path := filepath.Join(configDir, "config.toml")

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := createTemplateConfig(configDir, "config"); err != nil {
			return nil, err
		}
	}

	return LoadFile(path)
}

// LoadFile loads configuration from an explicit TOML file.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	setDefaults(v, Default())

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	cfg.path = path

	applyEnvOverrides(cfg)
	cfg.expandPaths()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("detection.window", d.Detection.Window)
	v.SetDefault("detection.boring_body_ratio", d.Detection.BoringBodyRatio)
	v.SetDefault("detection.boring_volume_ratio", d.Detection.BoringVolumeRatio)

	v.SetDefault("data.provider", d.Data.Provider)
	v.SetDefault("data.interval", d.Data.Interval)
	v.SetDefault("data.lookback_days", d.Data.LookbackDays)
	v.SetDefault("data.cache", d.Data.Cache)
	v.SetDefault("data.cache_dir", d.Data.CacheDir)
	v.SetDefault("data.db_path", d.Data.DBPath)
	v.SetDefault("data.request_timeout", d.Data.RequestTimeout)
	v.SetDefault("data.max_retries", d.Data.MaxRetries)

	v.SetDefault("watchlist.symbols", d.Watchlist.Symbols)
	v.SetDefault("watchlist.concurrency", d.Watchlist.Concurrency)

	v.SetDefault("schedule.cron", d.Schedule.Cron)
	v.SetDefault("schedule.run_on_start", d.Schedule.RunOnStart)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.listen_addr", d.Metrics.ListenAddr)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.file", d.Logging.File)
	v.SetDefault("logging.file_path", d.Logging.FilePath)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SCANNER_INTERVAL"); v != "" {
		cfg.Data.Interval = v
	}
	if v := os.Getenv("SCANNER_DB_PATH"); v != "" {
		cfg.Data.DBPath = v
	}
	if v := os.Getenv("SCANNER_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Proxy: explicit setting wins over the generic variable
	if v := os.Getenv("SCANNER_PROXY"); v != "" {
		cfg.Data.Proxy = v
	} else if cfg.Data.Proxy == "" {
		if v := os.Getenv("HTTPS_PROXY"); v != "" {
			cfg.Data.Proxy = v
		}
	}
}

// expandPaths resolves a leading ~ in the configured file locations.
func (c *Config) expandPaths() {
	c.Data.CacheDir = expandHome(c.Data.CacheDir)
	c.Data.DBPath = expandHome(c.Data.DBPath)
	c.Logging.FilePath = expandHome(c.Logging.FilePath)
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.Detection.Options().Validate(); err != nil {
		return err
	}

	if c.Data.Provider != "yahoo" {
		return errors.NewValidationError("data.provider", c.Data.Provider, "must be 'yahoo'")
	}
	if !marketdata.ValidInterval(c.Data.Interval) {
		return errors.NewValidationError("data.interval", c.Data.Interval,
			"must be one of "+strings.Join(marketdata.Intervals(), ", "))
	}
	if c.Data.LookbackDays < 1 {
		return errors.NewValidationError("data.lookback_days", c.Data.LookbackDays, "must be at least 1")
	}
	switch c.Data.Cache {
	case CacheSQLite:
		if c.Data.DBPath == "" {
			return errors.NewValidationError("data.db_path", c.Data.DBPath, "required for the sqlite cache")
		}
	case CacheCSV:
		if c.Data.CacheDir == "" {
			return errors.NewValidationError("data.cache_dir", c.Data.CacheDir, "required for the csv cache")
		}
	case CacheNone:
	default:
		return errors.NewValidationError("data.cache", c.Data.Cache, "must be 'sqlite', 'csv' or 'none'")
	}
	if c.Data.RequestTimeout <= 0 {
		return errors.NewValidationError("data.request_timeout", c.Data.RequestTimeout, "must be positive")
	}
	if c.Data.MaxRetries < 0 {
		return errors.NewValidationError("data.max_retries", c.Data.MaxRetries, "must be non-negative")
	}

	if c.Watchlist.Concurrency < 1 {
		return errors.NewValidationError("watchlist.concurrency", c.Watchlist.Concurrency, "must be at least 1")
	}

	if _, err := ParseSchedule(c.Schedule.Cron); err != nil {
		return errors.NewValidationError("schedule.cron", c.Schedule.Cron, err.Error())
	}

	if c.Metrics.Enabled && c.Metrics.ListenAddr == "" {
		return errors.NewValidationError("metrics.listen_addr", c.Metrics.ListenAddr, "required when metrics are enabled")
	}

	if !logging.ValidLevel(c.Logging.Level) {
		return errors.NewValidationError("logging.level", c.Logging.Level, "must be debug, info, warn or error")
	}

	return nil
}

// Options converts the detection section to detector options.
func (d DetectionConfig) Options() patterns.Options {
	return patterns.Options{
		Window:            d.Window,
		BoringBodyRatio:   d.BoringBodyRatio,
		BoringVolumeRatio: d.BoringVolumeRatio,
	}
}

// LogConfig converts the logging section to a logger configuration.
func (l LoggingConfig) LogConfig() logging.LogConfig {
	cfg := logging.DefaultLogConfig()
	cfg.Level = l.Level
	cfg.File = l.File
	if l.FilePath != "" {
		cfg.FilePath = l.FilePath
	}
	return cfg
}

// Lookback returns the configured history span as a duration.
func (d DataConfig) Lookback() time.Duration {
	return time.Duration(d.LookbackDays) * 24 * time.Hour
}

// Path returns the file the configuration was read from, if any.
func (c *Config) Path() string {
	return c.path
}

// ParseSchedule parses a cron expression with a leading seconds field.
func ParseSchedule(expr string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	return parser.Parse(expr)
}
