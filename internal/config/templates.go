package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# Pattern Scanner Configuration

[detection]
# Candles on each side a major high/low must exceed
window = 5
# A boring candle's body must stay under this fraction of the median body
boring_body_ratio = 0.75
# A boring candle's volume must stay under this fraction of the median volume
boring_volume_ratio = 0.75

[data]
# Market data provider: "yahoo"
provider = "yahoo"
# Candle interval: 1m, 2m, 5m, 15m, 30m, 60m, 90m, 1h, 1d, 5d, 1wk, 1mo, 3mo
interval = "1d"
# History to download when no explicit range is given
lookback_days = 300
# Cache for downloaded series: "sqlite", "csv" or "none"
cache = "sqlite"
# Directory for the csv cache
cache_dir = "~/.config/pattern-scanner/data"
# Database for the sqlite cache and scan history
db_path = "~/.config/pattern-scanner/scanner.db"
# HTTP proxy for provider requests (falls back to HTTPS_PROXY)
proxy = ""
# Per-request timeout (e.g., "30s", "1m")
request_timeout = "30s"
# Retries on rate limits and server errors
max_retries = 3

[watchlist]
# Symbols scanned when none are given on the command line
symbols = ["BAJFINANCE.NS"]
# Symbols fetched and analysed in parallel
concurrency = 4

[schedule]
# Cron expression with a seconds field, used by "scanner watch"
cron = "0 30 16 * * 1-5"
# Scan once immediately when watch starts
run_on_start = false

[metrics]
# Expose Prometheus metrics while watching
enabled = false
listen_addr = ":9108"

[logging]
# Log level: debug, info, warn, error
level = "info"
# Write a rotating log file in addition to the console
file = true
file_path = "~/.config/pattern-scanner/logs/scanner.log"
`

func createTemplateConfig(configDir, name string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, name+".toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}

	return nil
}

// Template returns the commented default configuration file.
func Template() string {
	return configTemplate
}
