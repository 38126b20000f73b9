package tideshift

import (
	"context"
	"testing"
	"time"

	"github.com/raykavin/tideshift/pkg/core"
	"github.com/raykavin/tideshift/pkg/exchange"
	"github.com/raykavin/tideshift/pkg/ledger"
	"github.com/raykavin/tideshift/pkg/logger"
	zl "github.com/raykavin/tideshift/pkg/logger/zerolog"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var engineTapeBase = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func engineTestLogger() logger.Logger {
	nop := zerolog.Nop()
	return zl.NewAdapter(&nop)
}

// engineTape serves a fixed candle history per pair
type engineTape struct {
	history map[string][]core.Candle
}

func (f *engineTape) AssetsInfo(string) core.AssetInfo { return core.AssetInfo{} }

func (f *engineTape) LastQuote(_ context.Context, _ string) (float64, error) { return 0, nil }

func (f *engineTape) CandlesByPeriod(_ context.Context, pair, _ string, start, end time.Time) ([]core.Candle, error) {
	result := make([]core.Candle, 0)
	for _, candle := range f.history[pair] {
		if candle.Time.Before(start) || candle.Time.After(end) {
			continue
		}
		result = append(result, candle)
	}
	return result, nil
}

func (f *engineTape) CandlesByLimit(_ context.Context, pair, _ string, limit int) ([]core.Candle, error) {
	candles := f.history[pair]
	if len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}
	return append([]core.Candle(nil), candles...), nil
}

func engineTapeCandles(pair string, n int) []core.Candle {
	candles := make([]core.Candle, n)
	for i := 0; i < n; i++ {
		price := 100 + float64(i)*0.1
		candles[i] = core.Candle{
			Pair:     pair,
			Time:     engineTapeBase.Add(time.Duration(i) * time.Hour),
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

// tradeRecorder captures dispatched fills for assertions
type tradeRecorder struct {
	ch chan core.TradeRecord
}

func (r *tradeRecorder) OnTrade(trade core.TradeRecord) { r.ch <- trade }

func TestValidatePairs(t *testing.T) {
	assert.NoError(t, validatePairs([]string{"BTCUSDT", "ETHBTC"}))

	err := validatePairs([]string{"BTCUSDT", "XYZ"})
	require.Error(t, err)
	assert.ErrorContains(t, err, "invalid pair: XYZ")

	assert.ErrorContains(t, validatePairs(nil), "no trading pairs")
}

func TestNewEngine_RejectsInvalidPair(t *testing.T) {
	cfg := core.DefaultConfig()
	log := engineTestLogger()

	feeder := &engineTape{history: map[string][]core.Candle{}}
	paper := exchange.NewPaper(context.Background(), log,
		exchange.WithPaperAsset("USDT", cfg.InitialBalance),
		exchange.WithDataFeed(feeder),
	)

	settings := &core.Settings{Pairs: []string{"XYZ"}, Timeframe: "1h"}
	_, err := NewEngine(context.Background(), cfg, settings, paper, WithLogger(log))
	require.Error(t, err)
	assert.ErrorContains(t, err, "invalid pair")
}

// TestEngine_SubscribeTradesDispatchesFills registers a subscriber through
// the engine surface and checks the feed fans fills out across all
// configured pairs.
func TestEngine_SubscribeTradesDispatchesFills(t *testing.T) {
	cfg := core.DefaultConfig()
	log := engineTestLogger()

	feeder := &engineTape{history: map[string][]core.Candle{}}
	paper := exchange.NewPaper(context.Background(), log,
		exchange.WithPaperAsset("USDT", cfg.InitialBalance),
		exchange.WithDataFeed(feeder),
	)

	led, err := ledger.FromMemory(cfg)
	require.NoError(t, err)
	defer led.Close()

	settings := &core.Settings{Pairs: []string{"BTCUSDT", "ETHUSDT"}, Timeframe: "1h"}
	engine, err := NewEngine(context.Background(), cfg, settings, paper,
		WithLedger(led), WithLogger(log))
	require.NoError(t, err)

	got := make(chan core.TradeRecord, 4)
	engine.SubscribeTrades(&tradeRecorder{ch: got})

	feed := engine.stack.TradeFeed()
	feed.Start()
	defer feed.Stop()

	// the second configured pair proves the subscription covers all pairs
	feed.Publish(core.TradeRecord{Symbol: "ETHUSDT", Side: core.SideTypeTakeProfit, Price: 102})

	require.Eventually(t, func() bool { return len(got) == 1 }, time.Second, 10*time.Millisecond)
	trade := <-got
	assert.Equal(t, "ETHUSDT", trade.Symbol)
	assert.Equal(t, core.SideTypeTakeProfit, trade.Side)
}

// TestEngine_BacktestReplay runs the assembled engine in replay mode and
// checks the ledger recorded every candle.
func TestEngine_BacktestReplay(t *testing.T) {
	cfg := core.DefaultConfig()
	log := engineTestLogger()

	feeder := &engineTape{history: map[string][]core.Candle{
		"BTCUSDT": engineTapeCandles("BTCUSDT", 600),
	}}

	led, err := ledger.FromMemory(cfg)
	require.NoError(t, err)
	defer led.Close()

	paper := exchange.NewPaper(context.Background(), log,
		exchange.WithPaperAsset("USDT", cfg.InitialBalance),
		exchange.WithPaperFee(cfg.CommissionRate),
		exchange.WithDataFeed(feeder),
	)

	var seen int
	settings := &core.Settings{Pairs: []string{"BTCUSDT"}, Timeframe: "1h"}
	engine, err := NewEngine(context.Background(), cfg, settings, paper,
		WithBacktest(paper),
		WithLedger(led),
		WithLogger(log),
		WithCandleSink(func(core.Candle) { seen++ }),
	)
	require.NoError(t, err)

	require.NoError(t, engine.Run(context.Background()))

	records, err := led.Signals("BTCUSDT", 0)
	require.NoError(t, err)
	assert.Len(t, records, 600)
	assert.Equal(t, 600, seen)

	last, err := led.LastProcessed("BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, engineTapeBase.Add(599*time.Hour), last.UTC())

	// injected ledger stays open after Run returns
	_, err = led.PortfolioState()
	assert.NoError(t, err)
}
