package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"pattern-scanner/internal/analysis"
	"pattern-scanner/internal/analysis/patterns"
	"pattern-scanner/internal/errors"
	"pattern-scanner/internal/marketdata"
	"pattern-scanner/internal/scanner"
)

const dateLayout = "2006-01-02"

func newScanCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan [symbols...]",
		Short: "Detect price-action patterns",
		Long: `Fetch candles for each symbol and report fair value gaps, major highs and
lows, breaks of structure, median volume and body size, and the most recent
boring candle.

Without symbols the configured watchlist is scanned. With --file a single
local CSV (Date or Datetime index, Open/High/Low/Close/Volume columns) is
analyzed instead of downloading data.`,
		Example: `  scanner scan BAJFINANCE.NS
  scanner scan AAPL MSFT --interval 1h --days 30
  scanner scan --file data/AAPL_data_20240101_20241027_1d.csv --window 3
  scanner scan AAPL --from 2024-01-01 --to 2024-06-30 --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			opts, err := detectionOptions(cmd, app)
			if err != nil {
				return err
			}
			engine, err := patterns.NewEngine(opts, app.Logger)
			if err != nil {
				return err
			}

			interval, _ := cmd.Flags().GetString("interval")
			if interval == "" {
				interval = app.Config.Data.Interval
			}
			from, to, err := scanRange(cmd, app)
			if err != nil {
				return err
			}

			symbols := normalizeSymbols(args)
			file, _ := cmd.Flags().GetString("file")

			var provider marketdata.Provider
			if file != "" {
				if len(symbols) > 1 {
					return errors.NewValidationError("symbols", symbols, "--file scans a single series")
				}
				if len(symbols) == 0 {
					symbols = normalizeSymbols([]string{marketdata.SymbolFromPath(file)})
				}
				provider = marketdata.NewFileProvider(file)
				// A file is taken whole unless a range was asked for.
				if !cmd.Flags().Changed("from") && !cmd.Flags().Changed("to") && !cmd.Flags().Changed("days") {
					from, to = time.Time{}, time.Time{}
				}
			} else {
				if len(symbols) == 0 {
					symbols = normalizeSymbols(app.Config.Watchlist.Symbols)
				}
				if len(symbols) == 0 {
					return errors.NewValidationError("symbols", nil, "no symbols given and the watchlist is empty")
				}
				if !marketdata.ValidInterval(interval) {
					return errors.NewValidationError("interval", interval,
						"must be one of "+strings.Join(marketdata.Intervals(), ", "))
				}
				noCache, _ := cmd.Flags().GetBool("no-cache")
				if provider, err = app.Provider(noCache); err != nil {
					return err
				}
			}

			svcOpts := []scanner.Option{scanner.WithConcurrency(app.Config.Watchlist.Concurrency)}
			if save, _ := cmd.Flags().GetBool("save"); save {
				st, err := app.OpenStore()
				if err != nil {
					return err
				}
				svcOpts = append(svcOpts, scanner.WithHistory(st))
			}
			svc := scanner.NewService(provider, engine, app.Logger, svcOpts...)

			results := svc.ScanAll(ctx, symbols, interval, from, to)

			if output.IsStructured() {
				if err := output.Structured(results); err != nil {
					return err
				}
			} else {
				for i, res := range results {
					if i > 0 {
						output.Println()
					}
					displayResult(output, res)
				}
			}

			return scanner.JoinErrors(results)
		},
	}

	cmd.Flags().StringP("interval", "i", "", "candle interval (default from config)")
	cmd.Flags().IntP("days", "d", 0, "days of history (default from config)")
	cmd.Flags().String("from", "", "start date, YYYY-MM-DD")
	cmd.Flags().String("to", "", "end date, YYYY-MM-DD (default today)")
	cmd.Flags().StringP("file", "f", "", "analyze a local CSV file instead of downloading")
	cmd.Flags().IntP("window", "w", 0, "bars on each side of a major high/low (default from config)")
	cmd.Flags().Float64("body-ratio", 0, "boring candle body ratio (default from config)")
	cmd.Flags().Float64("volume-ratio", 0, "boring candle volume ratio (default from config)")
	cmd.Flags().Bool("no-cache", false, "always download fresh data")
	cmd.Flags().Bool("save", false, "store the scan in the history database")

	return cmd
}

// detectionOptions starts from the configured thresholds and applies any
// flags the user set.
func detectionOptions(cmd *cobra.Command, app *App) (patterns.Options, error) {
	opts := app.Config.Detection.Options()
	if cmd.Flags().Changed("window") {
		opts.Window, _ = cmd.Flags().GetInt("window")
	}
	if cmd.Flags().Changed("body-ratio") {
		opts.BoringBodyRatio, _ = cmd.Flags().GetFloat64("body-ratio")
	}
	if cmd.Flags().Changed("volume-ratio") {
		opts.BoringVolumeRatio, _ = cmd.Flags().GetFloat64("volume-ratio")
	}
	return opts, opts.Validate()
}

// scanRange resolves --from, --to and --days into a [from, to) range.
func scanRange(cmd *cobra.Command, app *App) (time.Time, time.Time, error) {
	to := time.Now().UTC()
	if s, _ := cmd.Flags().GetString("to"); s != "" {
		t, err := time.Parse(dateLayout, s)
		if err != nil {
			return time.Time{}, time.Time{}, errors.NewValidationError("to", s, "expected YYYY-MM-DD")
		}
		// The end date is inclusive on the command line.
		to = t.AddDate(0, 0, 1)
	}

	if s, _ := cmd.Flags().GetString("from"); s != "" {
		from, err := time.Parse(dateLayout, s)
		if err != nil {
			return time.Time{}, time.Time{}, errors.NewValidationError("from", s, "expected YYYY-MM-DD")
		}
		if !from.Before(to) {
			return time.Time{}, time.Time{}, errors.NewValidationError("from", s, "must be before --to")
		}
		return from, to, nil
	}

	days, _ := cmd.Flags().GetInt("days")
	if days <= 0 {
		days = app.Config.Data.LookbackDays
	}
	return to.AddDate(0, 0, -days), to, nil
}

func normalizeSymbols(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func displayResult(output *Output, res scanner.Result) {
	if res.Err != nil {
		output.Bold("%s", res.Symbol)
		output.Error("  Scan failed: %v", res.Err)
		return
	}
	displayReport(output, res.Report)
	output.Dim("  Scanned in %s%s", FormatDuration(res.Duration), savedSuffix(res.ScanID))
}

func savedSuffix(id string) string {
	if id == "" {
		return ""
	}
	return ", saved as " + id
}

func displayReport(output *Output, r *analysis.Report) {
	output.Bold("%s  %s", r.Symbol, r.Interval)
	if r.Candles == 0 {
		output.Warning("  No candles")
		return
	}
	output.Printf("  Candles: %d  (%s to %s)\n", r.Candles,
		FormatCandleTime(r.From, r.Interval), FormatCandleTime(r.To, r.Interval))
	for _, w := range r.Warnings {
		output.Warning("  %s", w)
	}
	output.Println()

	if r.Stats.HasMedianVolume {
		output.Printf("  Median volume:  %s\n", FormatVolume(r.Stats.MedianVolume))
	} else {
		output.Printf("  Median volume:  %s\n", output.DimText("could not be calculated"))
	}
	if r.Stats.HasMedianBody {
		output.Printf("  Median body:    %s\n", FormatPrice(r.Stats.MedianBody))
	} else {
		output.Printf("  Median body:    %s\n", output.DimText("could not be calculated"))
	}
	if r.BoringCandle != nil {
		output.Printf("  Boring candle:  #%d\n", *r.BoringCandle)
	} else {
		output.Printf("  Boring candle:  %s\n", output.DimText("none"))
	}
	output.Println()

	output.Printf("  Major highs: %s\n", formatIndices(r.MajorHighs))
	output.Printf("  Major lows:  %s\n", formatIndices(r.MajorLows))
	output.Println()

	if len(r.Gaps) > 0 {
		output.Bold("  Fair value gaps (%d)", len(r.Gaps))
		table := NewTable(output, "Candles", "Kind", "Range")
		for _, g := range r.Gaps {
			table.AddRow(fmt.Sprintf("%d-%d", g.Start, g.End), output.DirectionText(g.Kind), FormatRange(g.Lower, g.Upper))
		}
		table.Render()
		output.Println()
	}

	if len(r.StructureBreaks) > 0 {
		output.Bold("  Breaks of structure (%d)", len(r.StructureBreaks))
		table := NewTable(output, "Candle", "Kind", "Level", "Extremum")
		for _, b := range r.StructureBreaks {
			table.AddRow(fmt.Sprintf("%d", b.Index), output.DirectionText(b.Kind), FormatPrice(b.Level), fmt.Sprintf("#%d", b.Extremum))
		}
		table.Render()
	}
}

func formatIndices(idx []int) string {
	if len(idx) == 0 {
		return "none"
	}
	parts := make([]string, len(idx))
	for i, v := range idx {
		parts[i] = fmt.Sprintf("%d", v)
	}
	return strings.Join(parts, ", ")
}

// countSummary renders pattern counts as "fvg=3 bos=1 ...".
func countSummary(counts map[analysis.PatternType]int) string {
	order := []analysis.PatternType{
		analysis.PatternFairValueGap,
		analysis.PatternMajorHigh,
		analysis.PatternMajorLow,
		analysis.PatternStructureBreak,
		analysis.PatternBoringCandle,
	}
	parts := make([]string, 0, len(order))
	for _, p := range order {
		parts = append(parts, fmt.Sprintf("%s=%d", p, counts[p]))
	}
	return strings.Join(parts, " ")
}
