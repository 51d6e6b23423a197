package marketdata

import (
	"bytes"
	"encoding/csv"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/gocarina/gocsv"

	"pattern-scanner/internal/errors"
	"pattern-scanner/internal/models"
)

// csvRow is one line of a price file. Values stay strings so that blank
// cells can be read as NaN.
type csvRow struct {
	Date     string `csv:"Date"`
	Datetime string `csv:"Datetime"`
	Open     string `csv:"Open"`
	High     string `csv:"High"`
	Low      string `csv:"Low"`
	Close    string `csv:"Close"`
	Volume   string `csv:"Volume"`
}

type dailyRow struct {
	Date   string `csv:"Date"`
	Open   string `csv:"Open"`
	High   string `csv:"High"`
	Low    string `csv:"Low"`
	Close  string `csv:"Close"`
	Volume string `csv:"Volume"`
}

type intradayRow struct {
	Datetime string `csv:"Datetime"`
	Open     string `csv:"Open"`
	High     string `csv:"High"`
	Low      string `csv:"Low"`
	Close    string `csv:"Close"`
	Volume   string `csv:"Volume"`
}

var timeLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05-07:00",
	"2006-01-02 15:04:05Z07:00",
	time.RFC3339,
}

// ReadCSV parses a price file with a Date or Datetime index column.
// Open, High, Low, Close and Volume columns are optional; the returned
// series records which ones were present. A column whose cells are all
// blank counts as absent. Timestamps are converted to UTC
// and rows are kept in file order.
func ReadCSV(r io.Reader) (models.Series, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return models.Series{}, errors.Wrap(err, "read csv")
	}

	header, err := csv.NewReader(bytes.NewReader(data)).Read()
	if err == io.EOF {
		return models.Series{}, errors.NewDataError("csv", "", "empty file", errors.ErrDataNotFound)
	}
	if err != nil {
		return models.Series{}, errors.Wrap(err, "read csv header")
	}

	var columns models.Column
	indexCol := ""
	for _, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		// Header names are matched exactly, as the decoder does
		if col, ok := models.ColumnByName(name); ok && col.String() == name {
			columns |= col
			continue
		}
		if indexCol == "" && (name == "Date" || name == "Datetime") {
			indexCol = name
		}
	}
	if indexCol == "" {
		return models.Series{}, errors.NewMissingFieldError("Date", "read csv index")
	}

	var rows []csvRow
	if err := gocsv.Unmarshal(bytes.NewReader(data), &rows); err != nil {
		return models.Series{}, errors.Wrap(err, "decode csv")
	}

	var filled models.Column
	candles := make([]models.Candle, 0, len(rows))
	for i, row := range rows {
		filled |= nonBlank(row)

		stamp := row.Date
		if stamp == "" {
			stamp = row.Datetime
		}
		ts, err := parseTimestamp(stamp)
		if err != nil {
			return models.Series{}, errors.NewDataError("csv", "", "row "+strconv.Itoa(i+1), err)
		}

		c := models.Candle{Timestamp: ts}
		if c.Open, err = parseValue(row.Open, columns&models.ColumnOpen != 0); err != nil {
			return models.Series{}, errors.NewDataError("csv", "", "row "+strconv.Itoa(i+1)+" Open", err)
		}
		if c.High, err = parseValue(row.High, columns&models.ColumnHigh != 0); err != nil {
			return models.Series{}, errors.NewDataError("csv", "", "row "+strconv.Itoa(i+1)+" High", err)
		}
		if c.Low, err = parseValue(row.Low, columns&models.ColumnLow != 0); err != nil {
			return models.Series{}, errors.NewDataError("csv", "", "row "+strconv.Itoa(i+1)+" Low", err)
		}
		if c.Close, err = parseValue(row.Close, columns&models.ColumnClose != 0); err != nil {
			return models.Series{}, errors.NewDataError("csv", "", "row "+strconv.Itoa(i+1)+" Close", err)
		}
		if c.Volume, err = parseValue(row.Volume, columns&models.ColumnVolume != 0); err != nil {
			return models.Series{}, errors.NewDataError("csv", "", "row "+strconv.Itoa(i+1)+" Volume", err)
		}
		candles = append(candles, c)
	}

	if len(rows) > 0 {
		columns &= filled
	}
	return models.Series{Candles: candles, Columns: columns}, nil
}

func nonBlank(row csvRow) models.Column {
	var cols models.Column
	for _, cell := range []struct {
		col   models.Column
		value string
	}{
		{models.ColumnOpen, row.Open},
		{models.ColumnHigh, row.High},
		{models.ColumnLow, row.Low},
		{models.ColumnClose, row.Close},
		{models.ColumnVolume, row.Volume},
	} {
		if strings.TrimSpace(cell.value) != "" {
			cols |= cell.col
		}
	}
	return cols
}

// WriteCSV writes the series with a Date index for daily and longer
// intervals and a Datetime index for intraday ones. Absent columns are
// written as blank cells.
func WriteCSV(w io.Writer, series models.Series) error {
	has := func(col models.Column) bool { return series.Columns&col != 0 }

	if IsIntraday(series.Interval) {
		rows := make([]intradayRow, len(series.Candles))
		for i, c := range series.Candles {
			rows[i] = intradayRow{
				Datetime: c.Timestamp.UTC().Format("2006-01-02 15:04:05-07:00"),
				Open:     formatValue(c.Open, has(models.ColumnOpen)),
				High:     formatValue(c.High, has(models.ColumnHigh)),
				Low:      formatValue(c.Low, has(models.ColumnLow)),
				Close:    formatValue(c.Close, has(models.ColumnClose)),
				Volume:   formatValue(c.Volume, has(models.ColumnVolume)),
			}
		}
		return gocsv.Marshal(&rows, w)
	}

	rows := make([]dailyRow, len(series.Candles))
	for i, c := range series.Candles {
		rows[i] = dailyRow{
			Date:   c.Timestamp.UTC().Format("2006-01-02"),
			Open:   formatValue(c.Open, has(models.ColumnOpen)),
			High:   formatValue(c.High, has(models.ColumnHigh)),
			Low:    formatValue(c.Low, has(models.ColumnLow)),
			Close:  formatValue(c.Close, has(models.ColumnClose)),
			Volume: formatValue(c.Volume, has(models.ColumnVolume)),
		}
	}
	return gocsv.Marshal(&rows, w)
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	var lastErr error
	for _, layout := range timeLayouts {
		ts, err := time.Parse(layout, s)
		if err == nil {
			return ts.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

func parseValue(s string, present bool) (float64, error) {
	s = strings.TrimSpace(s)
	if !present || s == "" {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

func formatValue(v float64, present bool) string {
	if !present || math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
