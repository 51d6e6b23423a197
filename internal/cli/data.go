package cli

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"pattern-scanner/internal/config"
	"pattern-scanner/internal/errors"
	"pattern-scanner/internal/marketdata"
	"pattern-scanner/internal/models"
	"pattern-scanner/internal/store"
)

func newFetchCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch <symbol>",
		Short: "Download historical OHLCV data",
		Long: `Download historical OHLCV (Open, High, Low, Close, Volume) candles for a
symbol and store them in the local cache.

With --out the candles are also written to a CSV file that 'scanner scan --file'
can read back.`,
		Example: `  scanner fetch BAJFINANCE.NS
  scanner fetch AAPL --interval 1h --days 30
  scanner fetch AAPL --out data/AAPL.csv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()

			interval, _ := cmd.Flags().GetString("interval")
			if interval == "" {
				interval = app.Config.Data.Interval
			}
			days, _ := cmd.Flags().GetInt("days")
			lookback := app.Config.Data.Lookback()
			if days > 0 {
				lookback = time.Duration(days) * 24 * time.Hour
			}
			req := marketdata.NewRequest(args[0], interval, time.Now().AddDate(0, 0, 1), lookback)
			if err := req.Validate(); err != nil {
				return err
			}

			noCache, _ := cmd.Flags().GetBool("no-cache")
			provider, err := app.Provider(noCache)
			if err != nil {
				return err
			}

			series, err := provider.GetHistorical(ctx, req)
			if err != nil {
				output.Error("Failed to get historical data: %v", err)
				return err
			}

			// Keep the plain candle table in step with what was fetched.
			if app.Config.Data.Cache == config.CacheSQLite {
				st, err := app.OpenStore()
				if err != nil {
					return err
				}
				if err := st.SaveCandles(ctx, series.Symbol, series.Interval, series.Candles); err != nil {
					app.Logger.Warn().Err(err).Msg("Failed to store candles")
				}
			}

			if out, _ := cmd.Flags().GetString("out"); out != "" {
				if err := writeSeriesFile(out, series); err != nil {
					return err
				}
				if !output.IsStructured() {
					output.Success("Wrote %d candles to %s", series.Len(), out)
				}
			}

			if output.IsStructured() {
				return output.Structured(newSeriesView(series))
			}

			limit, _ := cmd.Flags().GetInt("limit")
			displayCandles(output, series, limit)
			return nil
		},
	}

	cmd.Flags().StringP("interval", "i", "", "candle interval (default from config)")
	cmd.Flags().IntP("days", "d", 0, "days of history (default from config)")
	cmd.Flags().StringP("out", "o", "", "write the candles to this CSV file")
	cmd.Flags().IntP("limit", "l", 10, "number of recent candles to display")
	cmd.Flags().Bool("no-cache", false, "bypass the cache")

	return cmd
}

func writeSeriesFile(path string, series models.Series) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.Wrapf(err, "create %s", dir)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	if err := marketdata.WriteCSV(f, series); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// seriesView is the structured form of a series. Missing values become
// null since JSON has no NaN.
type seriesView struct {
	Symbol   string       `json:"symbol" yaml:"symbol"`
	Interval string       `json:"interval" yaml:"interval"`
	Columns  string       `json:"columns" yaml:"columns"`
	Candles  []candleView `json:"candles" yaml:"candles"`
}

type candleView struct {
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	Open      *float64  `json:"open" yaml:"open"`
	High      *float64  `json:"high" yaml:"high"`
	Low       *float64  `json:"low" yaml:"low"`
	Close     *float64  `json:"close" yaml:"close"`
	Volume    *float64  `json:"volume" yaml:"volume"`
}

func newSeriesView(series models.Series) seriesView {
	view := seriesView{
		Symbol:   series.Symbol,
		Interval: series.Interval,
		Columns:  series.Columns.String(),
		Candles:  make([]candleView, len(series.Candles)),
	}
	for i, c := range series.Candles {
		view.Candles[i] = candleView{
			Timestamp: c.Timestamp,
			Open:      present(c.Open, series.Has(models.ColumnOpen)),
			High:      present(c.High, series.Has(models.ColumnHigh)),
			Low:       present(c.Low, series.Has(models.ColumnLow)),
			Close:     present(c.Close, series.Has(models.ColumnClose)),
			Volume:    present(c.Volume, series.Has(models.ColumnVolume)),
		}
	}
	return view
}

func present(v float64, ok bool) *float64 {
	if !ok || math.IsNaN(v) {
		return nil
	}
	return &v
}

func displayCandles(output *Output, series models.Series, limit int) {
	output.Bold("%s  %s  (%d candles)", series.Symbol, series.Interval, series.Len())
	if missing := series.Columns.Missing(models.ColumnsAll); missing != 0 {
		output.Warning("Missing columns: %s", missing)
	}
	if series.Len() == 0 {
		return
	}
	output.Println()

	start := 0
	if limit > 0 && series.Len() > limit {
		start = series.Len() - limit
	}

	table := NewTable(output, "Time", "Open", "High", "Low", "Close", "Volume")
	for _, c := range series.Candles[start:] {
		table.AddRow(
			FormatCandleTime(c.Timestamp, series.Interval),
			FormatPrice(c.Open),
			FormatPrice(c.High),
			FormatPrice(c.Low),
			FormatPrice(c.Close),
			FormatVolume(c.Volume),
		)
	}
	table.Render()
}

func newHistoryCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [scan-id]",
		Short: "Show stored scans",
		Long: `List scans saved with 'scanner scan --save' or by 'scanner watch', newest
first. Pass a scan ID to show the full report of one scan.`,
		Example: `  scanner history
  scanner history --symbol AAPL --limit 5
  scanner history 3f2c9a4e-1b7d-4c1e-9f0a-2d8e6b5c4a31 --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := context.Background()

			st, err := app.OpenStore()
			if err != nil {
				return err
			}

			if len(args) == 1 {
				scan, err := st.GetScanByID(ctx, args[0])
				if err != nil {
					return err
				}
				if output.IsStructured() {
					return output.Structured(scan)
				}
				output.Dim("Scan %s at %s", scan.ID, FormatDateTime(scan.CreatedAt))
				if scan.Report != nil {
					displayReport(output, scan.Report)
				}
				return nil
			}

			symbol, _ := cmd.Flags().GetString("symbol")
			limit, _ := cmd.Flags().GetInt("limit")
			days, _ := cmd.Flags().GetInt("days")

			filter := store.ScanFilter{Symbol: strings.ToUpper(symbol), Limit: limit}
			if days > 0 {
				filter.Since = time.Now().AddDate(0, 0, -days)
			}
			scans, err := st.GetScans(ctx, filter)
			if err != nil {
				return err
			}

			if output.IsStructured() {
				return output.Structured(scans)
			}
			if len(scans) == 0 {
				output.Info("No scans stored")
				return nil
			}

			table := NewTable(output, "ID", "Time", "Symbol", "Interval", "Candles", "Patterns")
			for _, s := range scans {
				candles := 0
				if s.Report != nil {
					candles = s.Report.Candles
				}
				table.AddRow(
					s.ID,
					FormatDateTime(s.CreatedAt),
					s.Symbol,
					s.Interval,
					strconv.Itoa(candles),
					countSummary(s.Counts()),
				)
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().StringP("symbol", "s", "", "only scans of this symbol")
	cmd.Flags().IntP("limit", "l", 20, "maximum number of scans")
	cmd.Flags().Int("days", 0, "only scans from the last N days")

	return cmd
}
