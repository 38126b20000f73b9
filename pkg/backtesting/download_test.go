package backtesting

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/raykavin/tideshift/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rangeFeeder records every requested window on top of the fixed history
type rangeFeeder struct {
	histFeeder
	ranges [][2]time.Time
}

func (f *rangeFeeder) CandlesByPeriod(ctx context.Context, pair, timeframe string, start, end time.Time) ([]core.Candle, error) {
	f.ranges = append(f.ranges, [2]time.Time{start, end})
	return f.histFeeder.CandlesByPeriod(ctx, pair, timeframe, start, end)
}

func downloadHistory(pair string, start time.Time, n int) []core.Candle {
	candles := make([]core.Candle, n)
	for i := 0; i < n; i++ {
		price := 100 + float64(i)*0.1
		candles[i] = core.Candle{
			Pair:     pair,
			Time:     start.Add(time.Duration(i) * time.Hour),
			Open:     price,
			Close:    price + 0.05,
			High:     price + 0.1,
			Low:      price - 0.1,
			Volume:   1000,
			Complete: true,
		}
	}
	return candles
}

func TestDownloader_WritesWindowToCSV(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)

	feeder := &rangeFeeder{histFeeder: *newHistFeeder()}
	feeder.history["BTCUSDT"] = downloadHistory("BTCUSDT", start, 241)

	outputPath := filepath.Join(t.TempDir(), "btc.csv")
	d := NewDownloader(feeder, btTestLogger())

	require.NoError(t, d.Download(context.Background(), "BTCUSDT", "1h", outputPath,
		WithInterval(start, end)))

	data, err := os.ReadFile(outputPath)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 242)
	assert.Equal(t, "time,open,close,low,high,volume", lines[0])

	fields := strings.Split(lines[1], ",")
	require.Len(t, fields, 6)
	assert.Equal(t, strconv.FormatInt(start.Unix(), 10), fields[0])
}

func TestDownloader_BatchesLongRanges(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)

	feeder := &rangeFeeder{histFeeder: *newHistFeeder()}
	feeder.history["BTCUSDT"] = downloadHistory("BTCUSDT", start, 721)

	outputPath := filepath.Join(t.TempDir(), "btc.csv")
	d := NewDownloader(feeder, btTestLogger())

	require.NoError(t, d.Download(context.Background(), "BTCUSDT", "1h", outputPath,
		WithInterval(start, end)))

	// 720 hours split into one full 500-candle batch plus the remainder
	require.Len(t, feeder.ranges, 2)
	assert.Equal(t, start.Add(500*time.Hour-time.Second), feeder.ranges[0][1])
	assert.Equal(t, start.Add(500*time.Hour), feeder.ranges[1][0])
	assert.Equal(t, end, feeder.ranges[1][1])

	data, err := os.ReadFile(outputPath)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Len(t, lines, 722)
}
