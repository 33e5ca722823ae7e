package backtest

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"ema-bracket-bot/types"
)

// LoadBarsCSV reads OHLCV bars from a CSV file with the columns
// timestamp,open,high,low,close,volume. The timestamp is either RFC3339 or
// epoch milliseconds. A header row is detected and skipped.
func LoadBarsCSV(path, symbol string) ([]types.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	bars := make([]types.Bar, 0, len(records))
	for i, rec := range records {
		if len(rec) < 6 {
			return nil, fmt.Errorf("%s line %d: want 6 columns, got %d", path, i+1, len(rec))
		}
		ts, err := parseTimestamp(rec[0])
		if err != nil {
			if i == 0 {
				continue // header row
			}
			return nil, fmt.Errorf("%s line %d: %w", path, i+1, err)
		}
		bar, err := parseBar(symbol, ts, rec[1], rec[2], rec[3], rec[4], rec[5])
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, i+1, err)
		}
		bars = append(bars, bar)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%s: no bars", path)
	}
	return bars, nil
}

func parseTimestamp(s string) (time.Time, error) {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	return time.Parse(time.RFC3339, s)
}

func parseBar(symbol string, ts time.Time, open, high, low, close, volume string) (types.Bar, error) {
	fields := [5]decimal.Decimal{}
	for i, s := range [5]string{open, high, low, close, volume} {
		v, err := decimal.NewFromString(s)
		if err != nil {
			return types.Bar{}, err
		}
		fields[i] = v
	}
	if fields[1].LessThan(fields[2]) {
		return types.Bar{}, fmt.Errorf("high %s below low %s", fields[1], fields[2])
	}
	return types.Bar{
		Symbol:    symbol,
		Open:      fields[0],
		High:      fields[1],
		Low:       fields[2],
		Close:     fields[3],
		Volume:    fields[4],
		Timestamp: ts,
	}, nil
}
