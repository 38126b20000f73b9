package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/raykavin/tideshift/pkg/core"
	"github.com/tidwall/buntdb"
)

// Key layout. Trade and signal keys embed the candle time zero-padded so
// that lexical key order is chronological order.
const (
	keyPortfolio      = "portfolio"
	prefixSymbol      = "symbol:"
	prefixPosition    = "position:"
	prefixTrade       = "trade:"
	prefixSignal      = "signal:"
	prefixRegime      = "regime:"
	prefixSetting     = "setting:"
	timeKeyFormat     = "%015d"
	indexTradesByTime = "trades_by_time"
)

// BuntLedger implements core.Ledger on a single-file BuntDB store. It keeps
// every record as a JSON document and relies on the one-writer transaction
// model of BuntDB for commit atomicity.
type BuntLedger struct {
	db     *buntdb.DB
	cfg    core.Config
	lastID int64
}

// FromMemory creates an in-memory ledger, used by tests and backtests
func FromMemory(cfg core.Config) (*BuntLedger, error) {
	return NewBuntLedger(":memory:", cfg)
}

// FromFile creates a file-backed ledger
func FromFile(file string, cfg core.Config) (*BuntLedger, error) {
	return NewBuntLedger(file, cfg)
}

// NewBuntLedger opens the store, creates the time index, and seeds the ID
// counter from the persisted trade count
func NewBuntLedger(sourceFile string, cfg core.Config) (*BuntLedger, error) {
	db, err := buntdb.Open(sourceFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open buntdb: %w", err)
	}

	err = db.CreateIndex(indexTradesByTime, prefixTrade+"*", buntdb.IndexJSON("candle_time"))
	if err != nil {
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	ledger := &BuntLedger{db: db, cfg: cfg}

	err = db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(prefixTrade+"*", func(_, _ string) bool {
			ledger.lastID++
			return true
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to seed id counter: %w", err)
	}

	return ledger, nil
}

func (b *BuntLedger) nextID() int64 {
	return atomic.AddInt64(&b.lastID, 1)
}

// AddSymbol starts tracking a symbol, reactivating it when already known
func (b *BuntLedger) AddSymbol(symbol string) error {
	now := time.Now().UTC()

	return b.db.Update(func(tx *buntdb.Tx) error {
		record := core.TrackedSymbol{Symbol: symbol, Active: true, AddedAt: now, UpdatedAt: now}

		if raw, err := tx.Get(prefixSymbol + symbol); err == nil {
			if err := json.Unmarshal([]byte(raw), &record); err != nil {
				return fmt.Errorf("failed to unmarshal symbol %s: %w", symbol, err)
			}
			record.Active = true
			record.UpdatedAt = now
		}

		return setJSON(tx, prefixSymbol+symbol, record)
	})
}

// RemoveSymbol stops tracking a symbol
func (b *BuntLedger) RemoveSymbol(symbol string) error {
	err := b.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(prefixSymbol + symbol)
		return err
	})

	if errors.Is(err, buntdb.ErrNotFound) {
		return fmt.Errorf("symbol %s is not tracked", symbol)
	}

	return err
}

// SetSymbolActive flips the active flag without dropping history
func (b *BuntLedger) SetSymbolActive(symbol string, active bool) error {
	return b.db.Update(func(tx *buntdb.Tx) error {
		raw, err := tx.Get(prefixSymbol + symbol)
		if errors.Is(err, buntdb.ErrNotFound) {
			return fmt.Errorf("symbol %s is not tracked", symbol)
		}
		if err != nil {
			return err
		}

		var record core.TrackedSymbol
		if err := json.Unmarshal([]byte(raw), &record); err != nil {
			return fmt.Errorf("failed to unmarshal symbol %s: %w", symbol, err)
		}

		record.Active = active
		record.UpdatedAt = time.Now().UTC()

		return setJSON(tx, prefixSymbol+symbol, record)
	})
}

// TrackedSymbols returns every tracked symbol, active or not
func (b *BuntLedger) TrackedSymbols() ([]core.TrackedSymbol, error) {
	var symbols []core.TrackedSymbol

	err := b.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(prefixSymbol+"*", func(_, value string) bool {
			var record core.TrackedSymbol
			if err := json.Unmarshal([]byte(value), &record); err == nil {
				symbols = append(symbols, record)
			}
			return true
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to iterate symbols: %w", err)
	}

	return symbols, nil
}

// PortfolioState returns the singleton cash and performance record,
// initializing it from the configured starting balance on first read
func (b *BuntLedger) PortfolioState() (core.PortfolioState, error) {
	var state core.PortfolioState

	err := b.db.Update(func(tx *buntdb.Tx) error {
		raw, err := tx.Get(keyPortfolio)
		if errors.Is(err, buntdb.ErrNotFound) {
			state = initialPortfolioState(b.cfg.InitialBalance)
			return setJSON(tx, keyPortfolio, state)
		}
		if err != nil {
			return err
		}

		return json.Unmarshal([]byte(raw), &state)
	})
	if err != nil {
		return state, fmt.Errorf("failed to read portfolio state: %w", err)
	}

	return state, nil
}

// SavePortfolioState overwrites the singleton record
func (b *BuntLedger) SavePortfolioState(state core.PortfolioState) error {
	state.ID = 1
	state.UpdatedAt = time.Now().UTC()

	return b.db.Update(func(tx *buntdb.Tx) error {
		return setJSON(tx, keyPortfolio, state)
	})
}

// OpenPosition returns the open position for a symbol, nil when flat
func (b *BuntLedger) OpenPosition(symbol string) (*core.Position, error) {
	var position *core.Position

	err := b.db.View(func(tx *buntdb.Tx) error {
		raw, err := tx.Get(prefixPosition + symbol)
		if errors.Is(err, buntdb.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		position = &core.Position{}
		return json.Unmarshal([]byte(raw), position)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read position for %s: %w", symbol, err)
	}

	return position, nil
}

// OpenPositions returns every open position
func (b *BuntLedger) OpenPositions() ([]*core.Position, error) {
	var positions []*core.Position

	err := b.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(prefixPosition+"*", func(_, value string) bool {
			var position core.Position
			if err := json.Unmarshal([]byte(value), &position); err == nil {
				positions = append(positions, &position)
			}
			return true
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to iterate positions: %w", err)
	}

	return positions, nil
}

// RegimeState returns the persisted hysteresis state, nil when the symbol
// has never been evaluated
func (b *BuntLedger) RegimeState(symbol string) (*core.RegimeState, error) {
	var state *core.RegimeState

	err := b.db.View(func(tx *buntdb.Tx) error {
		raw, err := tx.Get(prefixRegime + symbol)
		if errors.Is(err, buntdb.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		state = &core.RegimeState{}
		return json.Unmarshal([]byte(raw), state)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read regime state for %s: %w", symbol, err)
	}

	return state, nil
}

// Trades returns the trade history, oldest first, narrowed by the filters
func (b *BuntLedger) Trades(filters ...core.TradeFilter) ([]core.TradeRecord, error) {
	var trades []core.TradeRecord

	err := b.db.View(func(tx *buntdb.Tx) error {
		return tx.Ascend(indexTradesByTime, func(_, value string) bool {
			var trade core.TradeRecord
			if err := json.Unmarshal([]byte(value), &trade); err != nil {
				return true
			}

			for _, filter := range filters {
				if !filter(trade) {
					return true
				}
			}

			trades = append(trades, trade)
			return true
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to iterate trades: %w", err)
	}

	return trades, nil
}

// RecentClosedTrades returns the latest closing fills, newest first
func (b *BuntLedger) RecentClosedTrades(limit int) ([]core.TradeRecord, error) {
	var trades []core.TradeRecord

	err := b.db.View(func(tx *buntdb.Tx) error {
		return tx.Descend(indexTradesByTime, func(_, value string) bool {
			var trade core.TradeRecord
			if err := json.Unmarshal([]byte(value), &trade); err != nil {
				return true
			}

			if !trade.Side.IsExit() {
				return true
			}

			trades = append(trades, trade)
			return limit <= 0 || len(trades) < limit
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to iterate trades: %w", err)
	}

	return trades, nil
}

// Signals returns the latest signal records, oldest first. An empty symbol
// selects all symbols.
func (b *BuntLedger) Signals(symbol string, limit int) ([]core.SignalRecord, error) {
	if symbol != "" {
		var signals []core.SignalRecord
		err := b.db.View(func(tx *buntdb.Tx) error {
			return tx.DescendKeys(signalKeyPrefix(symbol)+"*", func(_, value string) bool {
				var record core.SignalRecord
				if err := json.Unmarshal([]byte(value), &record); err != nil {
					return true
				}

				signals = append(signals, record)
				return limit <= 0 || len(signals) < limit
			})
		})
		if err != nil {
			return nil, fmt.Errorf("failed to iterate signals: %w", err)
		}

		reverseSignals(signals)
		return signals, nil
	}

	// Key order interleaves symbols, so the cross-symbol query collects
	// everything and sorts by time before trimming.
	var signals []core.SignalRecord
	err := b.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(prefixSignal+"*", func(_, value string) bool {
			var record core.SignalRecord
			if err := json.Unmarshal([]byte(value), &record); err != nil {
				return true
			}
			signals = append(signals, record)
			return true
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to iterate signals: %w", err)
	}

	sort.Slice(signals, func(i, j int) bool {
		return signals[i].CandleTime.Before(signals[j].CandleTime)
	})

	if limit > 0 && len(signals) > limit {
		signals = signals[len(signals)-limit:]
	}

	return signals, nil
}

func reverseSignals(signals []core.SignalRecord) {
	for i, j := 0, len(signals)-1; i < j; i, j = i+1, j-1 {
		signals[i], signals[j] = signals[j], signals[i]
	}
}

// LastProcessed returns the candle open time of the newest committed tick
// for a symbol; the zero time when none exists
func (b *BuntLedger) LastProcessed(symbol string) (time.Time, error) {
	var last time.Time

	err := b.db.View(func(tx *buntdb.Tx) error {
		return tx.DescendKeys(signalKeyPrefix(symbol)+"*", func(_, value string) bool {
			var record core.SignalRecord
			if err := json.Unmarshal([]byte(value), &record); err != nil {
				return true
			}
			last = record.CandleTime
			return false
		})
	})
	if err != nil {
		return last, fmt.Errorf("failed to read last processed time for %s: %w", symbol, err)
	}

	return last, nil
}

// TradingEnabled reports the persisted trading toggle, defaulting to on
func (b *BuntLedger) TradingEnabled() (bool, error) {
	enabled := true

	err := b.db.View(func(tx *buntdb.Tx) error {
		raw, err := tx.Get(prefixSetting + settingTradingEnabled)
		if errors.Is(err, buntdb.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		enabled = raw == "true"
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to read trading flag: %w", err)
	}

	return enabled, nil
}

// SetTradingEnabled persists the trading toggle
func (b *BuntLedger) SetTradingEnabled(enabled bool) error {
	return b.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(prefixSetting+settingTradingEnabled, fmt.Sprintf("%t", enabled), nil)
		return err
	})
}

// CommitTick persists one tick in a single write transaction. Replays are
// detected by the signal key and by trade idempotency keys, and return nil
// without writing.
func (b *BuntLedger) CommitTick(commit core.TickCommit) error {
	if err := commit.Validate(b.cfg.MaxTotalRiskMultiplier, b.cfg.MaxAveragingAttempts); err != nil {
		return err
	}

	err := b.db.Update(func(tx *buntdb.Tx) error {
		signalKey := signalKeyPrefix(commit.Symbol) + fmt.Sprintf(timeKeyFormat, commit.CandleTime.UnixMilli())
		if _, err := tx.Get(signalKey); err == nil {
			return errReplayed
		}

		for i := range commit.Trades {
			trade := commit.Trades[i]
			key := tradeKey(trade)
			if _, err := tx.Get(key); err == nil {
				return errReplayed
			}

			trade.ID = b.nextID()
			if err := setJSON(tx, key, trade); err != nil {
				return fmt.Errorf("failed to append trade %s: %w", trade.Key(), err)
			}
		}

		if commit.Position != nil {
			if err := setJSON(tx, prefixPosition+commit.Symbol, commit.Position); err != nil {
				return fmt.Errorf("failed to save position: %w", err)
			}
		} else {
			_, err := tx.Delete(prefixPosition + commit.Symbol)
			if err != nil && !errors.Is(err, buntdb.ErrNotFound) {
				return fmt.Errorf("failed to close position: %w", err)
			}
		}

		signal := commit.Signal
		signal.ID = b.nextID()
		if err := setJSON(tx, signalKey, signal); err != nil {
			return fmt.Errorf("failed to append signal: %w", err)
		}

		if err := setJSON(tx, prefixRegime+commit.Symbol, commit.Regime); err != nil {
			return fmt.Errorf("failed to save regime state: %w", err)
		}

		portfolio := commit.Portfolio
		portfolio.ID = 1
		if err := setJSON(tx, keyPortfolio, portfolio); err != nil {
			return fmt.Errorf("failed to save portfolio state: %w", err)
		}

		return nil
	})

	if errors.Is(err, errReplayed) {
		return nil
	}

	return err
}

// Close closes the database
func (b *BuntLedger) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

func setJSON(tx *buntdb.Tx, key string, v any) error {
	content, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}

	_, _, err = tx.Set(key, string(content), nil)
	return err
}

func signalKeyPrefix(symbol string) string {
	return prefixSignal + strings.ToUpper(symbol) + ":"
}

func tradeKey(t core.TradeRecord) string {
	return prefixTrade + strings.ToUpper(t.Symbol) + ":" +
		fmt.Sprintf(timeKeyFormat, t.CandleTime.UnixMilli()) + ":" + t.Reason
}
