// Command scanner detects price-action patterns in OHLCV candle data.
package main

import (
	"os"

	"pattern-scanner/internal/cli"
	"pattern-scanner/internal/logging"
)

func main() {
	logger := logging.NewLogger()
	os.Exit(cli.Execute(cli.NewRootCmd(nil, logger)))
}
