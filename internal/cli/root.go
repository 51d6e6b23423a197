// Package cli provides the command-line interface for the pattern scanner.
package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"pattern-scanner/internal/config"
	"pattern-scanner/internal/errors"
	"pattern-scanner/internal/logging"
	"pattern-scanner/internal/marketdata"
	"pattern-scanner/internal/resilience"
	"pattern-scanner/internal/store"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2024-11-01"
)

// App holds the application dependencies.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Store  store.DataStore

	// breaker guards the download provider once Provider has been called.
	breaker *resilience.CircuitBreaker

	// fixed is set when the caller supplied the configuration, in which case
	// --config is ignored and the logger is kept as given.
	fixed bool
}

// NewRootCmd creates the root command for the CLI. A nil cfg is loaded from
// --config (a directory or a .toml file) before any command runs.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := &App{
		Config: cfg,
		Logger: logger,
		fixed:  cfg != nil,
	}

	rootCmd := &cobra.Command{
		Use:   "scanner",
		Short: "Price-action pattern scanner",
		Long: `Scanner fetches OHLCV candles and annotates them with price-action patterns:
fair value gaps, major highs and lows, breaks of structure and the most recent
boring (low-activity) candle.

Data comes from Yahoo Finance or a local CSV file and is cached locally.
Use 'scanner watch' to rescan a watchlist on a schedule.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := app.init(cmd); err != nil {
				return err
			}
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return app.Close()
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory or file (default: ~/.config/pattern-scanner)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("yaml", false, "output in YAML format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	rootCmd.AddCommand(newScanCmd(app))
	rootCmd.AddCommand(newFetchCmd(app))
	rootCmd.AddCommand(newHistoryCmd(app))
	rootCmd.AddCommand(newWatchCmd(app))

	return rootCmd
}

func (a *App) init(cmd *cobra.Command) error {
	if a.fixed {
		return nil
	}

	location, _ := cmd.Flags().GetString("config")
	var (
		cfg *config.Config
		err error
	)
	if strings.HasSuffix(location, ".toml") {
		cfg, err = config.LoadFile(location)
	} else {
		cfg, err = config.Load(location)
	}
	if err != nil {
		return err
	}

	a.Config = cfg
	a.Logger = logging.NewLoggerWithConfig(cfg.Logging.LogConfig())
	return nil
}

// OpenStore opens the SQLite store on first use.
func (a *App) OpenStore() (store.DataStore, error) {
	if a.Store != nil {
		return a.Store, nil
	}
	st, err := store.NewSQLiteStore(a.Config.Data.DBPath)
	if err != nil {
		return nil, err
	}
	a.Logger.Debug().Str("path", a.Config.Data.DBPath).Msg("SQLite store initialized")
	a.Store = st
	return st, nil
}

// Close releases the store, if one was opened.
func (a *App) Close() error {
	if a.Store == nil {
		return nil
	}
	err := a.Store.Close()
	a.Store = nil
	return err
}

// Provider builds the market data provider described by the configuration,
// wrapped in the configured cache unless noCache is set.
func (a *App) Provider(noCache bool) (marketdata.Provider, error) {
	d := a.Config.Data
	yahoo, err := marketdata.NewYahooProvider(marketdata.YahooConfig{
		Proxy:      d.Proxy,
		Timeout:    d.RequestTimeout,
		MaxRetries: d.MaxRetries,
	}, a.Logger)
	if err != nil {
		return nil, err
	}
	guarded := marketdata.NewGuardedProvider(yahoo, resilience.DefaultCircuitBreakerConfig())
	a.breaker = guarded.Breaker()
	if noCache {
		return guarded, nil
	}

	switch d.Cache {
	case config.CacheSQLite:
		st, err := a.OpenStore()
		if err != nil {
			return nil, err
		}
		return marketdata.NewCachedProvider(guarded, st, a.Logger), nil
	case config.CacheCSV:
		return marketdata.NewCachedProvider(guarded, marketdata.NewCSVCache(d.CacheDir), a.Logger), nil
	}
	return guarded, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsStructured() {
				return output.Structured(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			}
			output.Printf("Pattern Scanner v%s\n", Version)
			output.Dim("Build date: %s", BuildDate)
			return nil
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate the scanner configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsStructured() {
				return output.Structured(app.Config)
			}
			showConfig(output, app.Config)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			path := app.Config.Path()
			if path == "" {
				path = filepath.Join(config.DefaultConfigDir(), "config.toml")
			}
			if output.IsStructured() {
				return output.Structured(map[string]string{"path": path})
			}
			output.Println(path)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsStructured() {
				return output.Structured(map[string]bool{"valid": true})
			}
			output.Success("Configuration is valid")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "template",
		Short: "Print the commented configuration template",
		Run: func(cmd *cobra.Command, args []string) {
			NewOutput(cmd).Printf("%s", config.Template())
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) {
	output.Bold("Detection")
	output.Printf("  Window:          %d\n", cfg.Detection.Window)
	output.Printf("  Body ratio:      %.2f\n", cfg.Detection.BoringBodyRatio)
	output.Printf("  Volume ratio:    %.2f\n", cfg.Detection.BoringVolumeRatio)
	output.Println()

	output.Bold("Data")
	output.Printf("  Provider:        %s\n", cfg.Data.Provider)
	output.Printf("  Interval:        %s\n", cfg.Data.Interval)
	output.Printf("  Lookback:        %d days\n", cfg.Data.LookbackDays)
	output.Printf("  Cache:           %s\n", cfg.Data.Cache)
	switch cfg.Data.Cache {
	case config.CacheSQLite:
		output.Printf("  Database:        %s\n", cfg.Data.DBPath)
	case config.CacheCSV:
		output.Printf("  Cache dir:       %s\n", cfg.Data.CacheDir)
	}
	if cfg.Data.Proxy != "" {
		output.Printf("  Proxy:           %s\n", cfg.Data.Proxy)
	}
	output.Println()

	output.Bold("Watchlist")
	output.Printf("  Symbols:         %s\n", strings.Join(cfg.Watchlist.Symbols, ", "))
	output.Printf("  Concurrency:     %d\n", cfg.Watchlist.Concurrency)
	output.Printf("  Schedule:        %s\n", cfg.Schedule.Cron)
	output.Printf("  Run on start:    %v\n", cfg.Schedule.RunOnStart)
	output.Println()

	output.Bold("Metrics")
	output.Printf("  Enabled:         %v\n", cfg.Metrics.Enabled)
	output.Printf("  Listen:          %s\n", cfg.Metrics.ListenAddr)
	output.Println()

	output.Bold("Logging")
	output.Printf("  Level:           %s\n", cfg.Logging.Level)
	if cfg.Logging.File {
		output.Printf("  File:            %s\n", cfg.Logging.FilePath)
	}
}

// exitCode maps an error to the process exit status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errors.ErrConfigInvalid):
		return 2
	case errors.Is(err, errors.ErrMissingField), errors.Is(err, errors.ErrDataNotFound), errors.Is(err, errors.ErrSymbolNotFound):
		return 3
	}
	return 1
}

// Execute runs the root command and returns the process exit status.
func Execute(cmd *cobra.Command) int {
	err := cmd.Execute()
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
	}
	return exitCode(err)
}
