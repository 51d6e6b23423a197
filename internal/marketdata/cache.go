package marketdata

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"pattern-scanner/internal/errors"
	"pattern-scanner/internal/logging"
	"pattern-scanner/internal/models"
)

// SeriesCache stores downloaded series under a request's cache key.
type SeriesCache interface {
	Load(ctx context.Context, key string) (models.Series, bool, error)
	Save(ctx context.Context, key string, series models.Series) error
}

// CSVCache keeps one CSV file per cache key in a directory.
type CSVCache struct {
	dir string
}

// NewCSVCache creates a cache rooted at dir. The directory is created on
// the first save.
func NewCSVCache(dir string) *CSVCache {
	return &CSVCache{dir: dir}
}

// Path returns the file backing key.
func (c *CSVCache) Path(key string) string {
	return filepath.Join(c.dir, key+".csv")
}

// Load reads the series stored under key. A missing file is a miss.
func (c *CSVCache) Load(ctx context.Context, key string) (models.Series, bool, error) {
	if err := ctx.Err(); err != nil {
		return models.Series{}, false, err
	}

	f, err := os.Open(c.Path(key))
	if os.IsNotExist(err) {
		return models.Series{}, false, nil
	}
	if err != nil {
		return models.Series{}, false, errors.Wrapf(err, "open cache %s", key)
	}
	defer f.Close()

	series, err := ReadCSV(f)
	if err != nil {
		return models.Series{}, false, errors.Wrapf(err, "read cache %s", key)
	}
	return series, true, nil
}

// Save writes the series under key, replacing any earlier copy atomically.
func (c *CSVCache) Save(ctx context.Context, key string, series models.Series) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return errors.Wrap(err, "create cache directory")
	}

	tmp, err := os.CreateTemp(c.dir, key+".*.tmp")
	if err != nil {
		return errors.Wrapf(err, "create cache %s", key)
	}
	defer os.Remove(tmp.Name())

	if err := WriteCSV(tmp, series); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "write cache %s", key)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "write cache %s", key)
	}
	return os.Rename(tmp.Name(), c.Path(key))
}

// CachedProvider serves requests from a cache and falls back to the
// wrapped provider, storing what it downloads.
type CachedProvider struct {
	provider Provider
	cache    SeriesCache
	logger   zerolog.Logger
	now      func() time.Time
}

// NewCachedProvider wraps provider with a read-through cache.
func NewCachedProvider(provider Provider, cache SeriesCache, logger zerolog.Logger) *CachedProvider {
	return &CachedProvider{
		provider: provider,
		cache:    cache,
		logger:   logger.With().Str("component", "cache").Logger(),
		now:      time.Now,
	}
}

func (p *CachedProvider) Name() string { return p.provider.Name() }

// GetHistorical returns the cached series for req if there is one.
// Cache read and write failures are logged and otherwise ignored. Ranges
// that reach into the current UTC day bypass the cache, since the cache key
// only carries dates and the last candle may still change.
func (p *CachedProvider) GetHistorical(ctx context.Context, req HistoricalRequest) (models.Series, error) {
	if err := req.Validate(); err != nil {
		return models.Series{}, err
	}
	if !req.Settled(p.now()) {
		p.logger.Debug().Str("symbol", req.Symbol).Time("to", req.To).Msg("Open range, skipping cache")
		return p.provider.GetHistorical(ctx, req)
	}
	key := req.CacheKey()

	start := time.Now()
	series, ok, err := p.cache.Load(ctx, key)
	switch {
	case err != nil:
		logger := logging.WithOperation(p.logger, "load")
		logger.Warn().Err(err).Str("key", key).Msg("Cache read failed")
	case ok:
		series.Symbol = req.Symbol
		series.Interval = req.Interval
		logging.LogFetch(p.logger, req.Symbol, "cache", series.Len(), time.Since(start), nil)
		return series, nil
	}

	series, err = p.provider.GetHistorical(ctx, req)
	if err != nil {
		return models.Series{}, err
	}

	if err := p.cache.Save(ctx, key, series); err != nil {
		logger := logging.WithOperation(p.logger, "save")
		logger.Warn().Err(err).Str("key", key).Msg("Cache write failed")
	}
	return series, nil
}
