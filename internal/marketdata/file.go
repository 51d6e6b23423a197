package marketdata

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"pattern-scanner/internal/errors"
	"pattern-scanner/internal/models"
)

// FileProvider serves a series from a local CSV file.
type FileProvider struct {
	path string
}

// NewFileProvider creates a provider reading path.
func NewFileProvider(path string) *FileProvider {
	return &FileProvider{path: path}
}

func (p *FileProvider) Name() string { return "file" }

// SymbolFromPath derives a symbol from a cache-style file name such as
// "AAPL_data_20240101_20241027_1d.csv", or the bare file name otherwise.
func SymbolFromPath(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if i := strings.Index(base, "_data_"); i > 0 {
		return base[:i]
	}
	return base
}

// GetHistorical reads the whole file. Candles outside a non-zero From/To
// range are dropped.
func (p *FileProvider) GetHistorical(ctx context.Context, req HistoricalRequest) (models.Series, error) {
	if err := ctx.Err(); err != nil {
		return models.Series{}, err
	}

	f, err := os.Open(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return models.Series{}, errors.NewDataError("file", req.Symbol, p.path, errors.ErrDataNotFound)
		}
		return models.Series{}, errors.Wrapf(err, "open %s", p.path)
	}
	defer f.Close()

	series, err := ReadCSV(f)
	if err != nil {
		return models.Series{}, errors.Wrapf(err, "read %s", p.path)
	}

	series.Symbol = req.Symbol
	if series.Symbol == "" {
		series.Symbol = SymbolFromPath(p.path)
	}
	series.Interval = req.Interval

	if !req.From.IsZero() || !req.To.IsZero() {
		kept := make([]models.Candle, 0, len(series.Candles))
		for _, c := range series.Candles {
			if !req.From.IsZero() && c.Timestamp.Before(req.From) {
				continue
			}
			if !req.To.IsZero() && !c.Timestamp.Before(req.To) {
				continue
			}
			kept = append(kept, c)
		}
		series.Candles = kept
	}

	return series, nil
}
