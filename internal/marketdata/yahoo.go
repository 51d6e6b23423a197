package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"pattern-scanner/internal/errors"
	"pattern-scanner/internal/logging"
	"pattern-scanner/internal/models"
	"pattern-scanner/pkg/utils"
)

// DefaultYahooURL is the Yahoo Finance API host.
const DefaultYahooURL = "https://query1.finance.yahoo.com"

// YahooConfig configures the Yahoo Finance client.
type YahooConfig struct {
	BaseURL    string
	Proxy      string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
	Decimals   int32 // Price precision, 2 by default
}

// YahooProvider implements Provider using the Yahoo Finance chart API.
type YahooProvider struct {
	client   *http.Client
	baseURL  string
	retry    utils.RetryConfig
	decimals int32
	logger   zerolog.Logger
}

// NewYahooProvider creates a new Yahoo Finance provider.
func NewYahooProvider(cfg YahooConfig, logger zerolog.Logger) (*YahooProvider, error) {
	transport := &http.Transport{Proxy: http.ProxyFromEnvironment}
	if cfg.Proxy != "" {
		u, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, errors.NewValidationError("proxy", cfg.Proxy, err.Error())
		}
		transport.Proxy = http.ProxyURL(u)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultYahooURL
	}
	decimals := cfg.Decimals
	if decimals <= 0 {
		decimals = 2
	}

	retry := utils.DefaultRetryConfig()
	retry.MaxAttempts = cfg.MaxRetries + 1
	if cfg.RetryDelay > 0 {
		retry.InitialDelay = cfg.RetryDelay
	}
	retry.Retryable = isTemporary

	return &YahooProvider{
		client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		baseURL:  baseURL,
		retry:    retry,
		decimals: decimals,
		logger:   logger.With().Str("component", "yahoo").Logger(),
	}, nil
}

func (p *YahooProvider) Name() string { return "yahoo" }

// yahooChart is the response structure from Yahoo Finance chart API.
// Null entries decode as nil pointers.
type yahooChart struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol   string `json:"symbol"`
				Currency string `json:"currency"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// GetHistorical downloads candles in [req.From, req.To).
func (p *YahooProvider) GetHistorical(ctx context.Context, req HistoricalRequest) (models.Series, error) {
	if err := req.Validate(); err != nil {
		return models.Series{}, err
	}

	start := time.Now()
	chart, err := utils.RetryWithResult(ctx, p.retry, func() (*yahooChart, error) {
		return p.fetchChart(ctx, req)
	})
	if err != nil {
		logging.LogFetch(p.logger, req.Symbol, p.Name(), 0, time.Since(start), err)
		return models.Series{}, errors.Wrapf(err, "fetch %s", req.Symbol)
	}

	series, err := p.toSeries(req, chart)
	logging.LogFetch(p.logger, req.Symbol, p.Name(), series.Len(), time.Since(start), err)
	if err != nil {
		return models.Series{}, err
	}
	return series, nil
}

func (p *YahooProvider) fetchChart(ctx context.Context, req HistoricalRequest) (*yahooChart, error) {
	q := url.Values{}
	q.Set("period1", fmt.Sprintf("%d", req.From.Unix()))
	q.Set("period2", fmt.Sprintf("%d", req.To.Unix()))
	q.Set("interval", req.Interval)
	q.Set("events", "history")
	q.Set("includePrePost", "false")
	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s?%s", p.baseURL, url.PathEscape(req.Symbol), q.Encode())

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("User-Agent", "Mozilla/5.0")
	httpReq.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := p.client.Do(httpReq)
	if err != nil {
		logging.LogAPICall(p.logger, http.MethodGet, req.Symbol, time.Since(start), err)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.NewProviderError(p.Name(), 0, "request failed", errors.Join(errors.ErrConnectionFailed, err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	logging.LogAPICall(p.logger, http.MethodGet, req.Symbol, time.Since(start), err)
	if err != nil {
		return nil, errors.NewProviderError(p.Name(), 0, "read body", err)
	}

	var chart yahooChart
	decodeErr := json.Unmarshal(body, &chart)

	if resp.StatusCode != http.StatusOK {
		msg := truncate(string(body), 200)
		if decodeErr == nil && chart.Chart.Error != nil {
			msg = chart.Chart.Error.Description
		}
		return nil, errors.NewProviderError(p.Name(), resp.StatusCode, msg, nil)
	}
	if decodeErr != nil {
		return nil, errors.NewProviderError(p.Name(), resp.StatusCode, "decode response", decodeErr)
	}
	if chart.Chart.Error != nil {
		return nil, errors.NewProviderError(p.Name(), http.StatusNotFound, chart.Chart.Error.Description, nil)
	}
	return &chart, nil
}

func (p *YahooProvider) toSeries(req HistoricalRequest, chart *yahooChart) (models.Series, error) {
	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Timestamp) == 0 ||
		len(chart.Chart.Result[0].Indicators.Quote) == 0 {
		return models.Series{}, errors.NewDataError("historical", req.Symbol, "no data returned", errors.ErrDataNotFound)
	}

	result := chart.Chart.Result[0]
	quote := result.Indicators.Quote[0]

	columns := models.ColumnsPrice
	if len(quote.Volume) > 0 {
		columns |= models.ColumnVolume
	}

	candles := make([]models.Candle, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		o, h, l, c := at(quote.Open, i), at(quote.High, i), at(quote.Low, i), at(quote.Close, i)
		if math.IsNaN(o) && math.IsNaN(h) && math.IsNaN(l) && math.IsNaN(c) {
			continue // skip null bars (holidays etc.)
		}
		candles = append(candles, models.Candle{
			Timestamp: time.Unix(ts, 0).UTC(),
			Open:      p.round(o),
			High:      p.round(h),
			Low:       p.round(l),
			Close:     p.round(c),
			Volume:    at(quote.Volume, i),
		})
	}
	if len(candles) == 0 {
		return models.Series{}, errors.NewDataError("historical", req.Symbol, "only empty bars returned", errors.ErrDataNotFound)
	}

	sort.SliceStable(candles, func(i, j int) bool { return candles[i].Timestamp.Before(candles[j].Timestamp) })

	return models.Series{
		Symbol:   req.Symbol,
		Interval: req.Interval,
		Candles:  candles,
		Columns:  columns,
	}, nil
}

// round rounds a price half away from zero. NaN is kept.
func (p *YahooProvider) round(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	return decimal.NewFromFloat(v).Round(p.decimals).InexactFloat64()
}

func at(values []*float64, i int) float64 {
	if i >= len(values) || values[i] == nil {
		return math.NaN()
	}
	return *values[i]
}

func isTemporary(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var pe *errors.ProviderError
	if errors.As(err, &pe) {
		return pe.Temporary()
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
