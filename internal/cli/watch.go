package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pattern-scanner/internal/analysis/patterns"
	"pattern-scanner/internal/errors"
	"pattern-scanner/internal/metrics"
	"pattern-scanner/internal/resilience"
	"pattern-scanner/internal/scanner"
)

func newWatchCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [symbols...]",
		Short: "Rescan a watchlist on a schedule",
		Long: `Run the scanner over the watchlist on a cron schedule (six fields, seconds
first) until interrupted. Every scan is stored in the history database.

When metrics are enabled, Prometheus metrics are served on /metrics and
component health on /healthz.`,
		Example: `  scanner watch
  scanner watch AAPL MSFT --schedule "0 */15 * * * *" --now
  scanner watch --metrics :9108`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			cfg := app.Config

			symbols := normalizeSymbols(args)
			if len(symbols) == 0 {
				symbols = normalizeSymbols(cfg.Watchlist.Symbols)
			}
			schedule, _ := cmd.Flags().GetString("schedule")
			if schedule == "" {
				schedule = cfg.Schedule.Cron
			}
			runNow, _ := cmd.Flags().GetBool("now")
			metricsAddr, _ := cmd.Flags().GetString("metrics")
			if metricsAddr == "" && cfg.Metrics.Enabled {
				metricsAddr = cfg.Metrics.ListenAddr
			}

			engine, err := patterns.NewEngine(cfg.Detection.Options(), app.Logger)
			if err != nil {
				return err
			}
			provider, err := app.Provider(false)
			if err != nil {
				return err
			}
			st, err := app.OpenStore()
			if err != nil {
				return err
			}

			opts := []scanner.Option{
				scanner.WithConcurrency(cfg.Watchlist.Concurrency),
				scanner.WithHistory(st),
			}
			var recorder *metrics.Recorder
			if metricsAddr != "" {
				recorder = metrics.New()
				opts = append(opts, scanner.WithMetrics(recorder))
			}
			svc := scanner.NewService(provider, engine, app.Logger, opts...)

			watcher, err := scanner.NewWatcher(svc, scanner.WatchConfig{
				Schedule:   schedule,
				Symbols:    symbols,
				Interval:   cfg.Data.Interval,
				Lookback:   cfg.Data.Lookback(),
				RunOnStart: runNow || cfg.Schedule.RunOnStart,
			}, app.Logger)
			if err != nil {
				return err
			}

			if !output.IsStructured() {
				watcher.OnScan(func(results []scanner.Result) {
					for _, res := range results {
						if res.Err != nil {
							output.Printf("%s  %s  %s\n", FormatDateTime(time.Now()), res.Symbol, output.Red(res.Err.Error()))
							continue
						}
						output.Printf("%s  %s  %s\n", FormatDateTime(time.Now()), res.Symbol, countSummary(res.Report.Counts()))
					}
				})
			} else {
				watcher.OnScan(func(results []scanner.Result) {
					if err := output.Structured(results); err != nil {
						app.Logger.Error().Err(err).Msg("Failed to write results")
					}
				})
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var server *http.Server
			if recorder != nil {
				health := resilience.NewHealthMonitor(5 * time.Second)
				health.RegisterComponent("database", resilience.DatabaseHealthCheck(st.Ping))
				if app.breaker != nil {
					health.RegisterComponent("provider", resilience.CircuitHealthCheck(app.breaker))
				}
				health.RegisterComponent("scans", resilience.FreshnessHealthCheck(watcher.LastRun, 2*watcher.Period()))
				server = newMetricsServer(metricsAddr, recorder, health)
				go func() {
					if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						app.Logger.Error().Err(err).Str("addr", metricsAddr).Msg("Metrics server failed")
					}
				}()
				app.Logger.Info().Str("addr", metricsAddr).Msg("Serving metrics")
			}

			watcher.Start(ctx)
			if !output.IsStructured() {
				output.Info("Watching %s (%s), next run %s. Press Ctrl+C to stop.",
					strings.Join(symbols, ", "), schedule, FormatDateTime(watcher.Next()))
			}

			<-ctx.Done()
			watcher.Stop()

			if server != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					app.Logger.Warn().Err(err).Msg("Metrics server shutdown")
				}
			}
			return nil
		},
	}

	cmd.Flags().String("schedule", "", "cron schedule with seconds field (default from config)")
	cmd.Flags().Bool("now", false, "run one scan immediately")
	cmd.Flags().String("metrics", "", "serve Prometheus metrics on this address")

	return cmd
}

func newMetricsServer(addr string, recorder *metrics.Recorder, health *resilience.HealthMonitor) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", recorder.Handler())
	mux.Handle("/healthz", health.HealthHTTPHandler())
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
