package cli

import (
	"fmt"
	"math"
	"strings"
	"time"

	"pattern-scanner/internal/marketdata"
)

// FormatPrice formats a price with appropriate decimal places.
func FormatPrice(price float64) string {
	if math.IsNaN(price) {
		return "-"
	}
	if math.Abs(price) >= 10 {
		return fmt.Sprintf("%.2f", price)
	}
	return fmt.Sprintf("%.4f", price)
}

// FormatVolume formats volume in compact form.
func FormatVolume(volume float64) string {
	switch {
	case math.IsNaN(volume):
		return "-"
	case volume >= 1e9:
		return fmt.Sprintf("%.2f B", volume/1e9)
	case volume >= 1e6:
		return fmt.Sprintf("%.2f M", volume/1e6)
	case volume >= 1e3:
		return fmt.Sprintf("%.2f K", volume/1e3)
	}
	return fmt.Sprintf("%.0f", volume)
}

// FormatDateTime formats a datetime.
func FormatDateTime(t time.Time) string {
	return t.UTC().Format("02-Jan-2006 15:04:05")
}

// FormatCandleTime formats a candle timestamp for its interval.
func FormatCandleTime(t time.Time, interval string) string {
	if marketdata.IsIntraday(interval) {
		return t.UTC().Format("2006-01-02 15:04")
	}
	return t.UTC().Format("2006-01-02")
}

// FormatDuration formats a duration in human-readable form.
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	} else if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	} else if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	} else if d < 24*time.Hour {
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	return fmt.Sprintf("%dd %dh", days, hours)
}

// FormatRange formats a price band as "lower - upper".
func FormatRange(lower, upper float64) string {
	return FormatPrice(lower) + " - " + FormatPrice(upper)
}

// TruncateString truncates a string to maxLen with ellipsis.
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

// PadRight pads a string to the right.
func PadRight(s string, length int) string {
	if len(s) >= length {
		return s
	}
	return s + strings.Repeat(" ", length-len(s))
}
