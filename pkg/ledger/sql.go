// Package ledger provides the durable state stores behind core.Ledger:
// a SQL store via GORM for deployments and a BuntDB store for tests and
// single-file setups. Both enforce idempotent tick replay and position
// invariants at the commit boundary.
package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/raykavin/tideshift/pkg/core"
	"github.com/samber/lo"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// errReplayed signals that a commit was already persisted; callers treat it
// as success
var errReplayed = errors.New("tick already committed")

// SQLLedger implements core.Ledger on a relational database via GORM
type SQLLedger struct {
	db  *gorm.DB
	cfg core.Config
}

// FromSQLite opens a file-backed ledger
func FromSQLite(path string, cfg core.Config, opts ...gorm.Option) (*SQLLedger, error) {
	return FromSQL(sqlite.Open(path), cfg, opts...)
}

// FromSQL opens a ledger on the given GORM dialector and migrates the
// schema. TranslateError is on by default so unique violations surface as
// gorm.ErrDuplicatedKey regardless of driver.
func FromSQL(dialect gorm.Dialector, cfg core.Config, opts ...gorm.Option) (*SQLLedger, error) {
	opts = append([]gorm.Option{&gorm.Config{TranslateError: true}}, opts...)

	db, err := gorm.Open(dialect, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	err = db.AutoMigrate(
		&core.TrackedSymbol{},
		&core.Position{},
		&core.AveragingEntry{},
		&core.TradeRecord{},
		&core.SignalRecord{},
		&core.PortfolioState{},
		&core.RegimeState{},
		&core.Setting{},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLLedger{db: db, cfg: cfg}, nil
}

// AddSymbol starts tracking a symbol, reactivating it when already known
func (s *SQLLedger) AddSymbol(symbol string) error {
	now := time.Now().UTC()

	var existing core.TrackedSymbol
	err := s.db.First(&existing, "symbol = ?", symbol).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		record := core.TrackedSymbol{Symbol: symbol, Active: true, AddedAt: now, UpdatedAt: now}
		if err := s.db.Create(&record).Error; err != nil {
			return fmt.Errorf("failed to add symbol %s: %w", symbol, err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("failed to look up symbol %s: %w", symbol, err)
	}

	existing.Active = true
	existing.UpdatedAt = now
	if err := s.db.Save(&existing).Error; err != nil {
		return fmt.Errorf("failed to reactivate symbol %s: %w", symbol, err)
	}

	return nil
}

// RemoveSymbol stops tracking a symbol
func (s *SQLLedger) RemoveSymbol(symbol string) error {
	result := s.db.Delete(&core.TrackedSymbol{}, "symbol = ?", symbol)
	if result.Error != nil {
		return fmt.Errorf("failed to remove symbol %s: %w", symbol, result.Error)
	}

	if result.RowsAffected == 0 {
		return fmt.Errorf("symbol %s is not tracked", symbol)
	}

	return nil
}

// SetSymbolActive flips the active flag without dropping history
func (s *SQLLedger) SetSymbolActive(symbol string, active bool) error {
	result := s.db.Model(&core.TrackedSymbol{}).
		Where("symbol = ?", symbol).
		Updates(map[string]any{"active": active, "updated_at": time.Now().UTC()})
	if result.Error != nil {
		return fmt.Errorf("failed to update symbol %s: %w", symbol, result.Error)
	}

	if result.RowsAffected == 0 {
		return fmt.Errorf("symbol %s is not tracked", symbol)
	}

	return nil
}

// TrackedSymbols returns every tracked symbol, active or not
func (s *SQLLedger) TrackedSymbols() ([]core.TrackedSymbol, error) {
	var symbols []core.TrackedSymbol
	if err := s.db.Order("symbol").Find(&symbols).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch tracked symbols: %w", err)
	}

	return symbols, nil
}

// PortfolioState returns the singleton cash and performance record,
// initializing it from the configured starting balance on first read
func (s *SQLLedger) PortfolioState() (core.PortfolioState, error) {
	var state core.PortfolioState
	err := s.db.First(&state, "id = ?", 1).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		state = initialPortfolioState(s.cfg.InitialBalance)
		if err := s.db.Create(&state).Error; err != nil {
			return state, fmt.Errorf("failed to initialize portfolio state: %w", err)
		}
		return state, nil
	}
	if err != nil {
		return state, fmt.Errorf("failed to fetch portfolio state: %w", err)
	}

	return state, nil
}

// SavePortfolioState overwrites the singleton record; the reset command is
// the only caller outside CommitTick
func (s *SQLLedger) SavePortfolioState(state core.PortfolioState) error {
	state.ID = 1
	state.UpdatedAt = time.Now().UTC()
	if err := s.db.Save(&state).Error; err != nil {
		return fmt.Errorf("failed to save portfolio state: %w", err)
	}

	return nil
}

// OpenPosition returns the open position for a symbol, nil when flat
func (s *SQLLedger) OpenPosition(symbol string) (*core.Position, error) {
	var position core.Position
	err := s.db.Preload("AveragingEntries").First(&position, "symbol = ?", symbol).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch position for %s: %w", symbol, err)
	}

	return &position, nil
}

// OpenPositions returns every open position
func (s *SQLLedger) OpenPositions() ([]*core.Position, error) {
	var positions []*core.Position
	err := s.db.Preload("AveragingEntries").Order("symbol").Find(&positions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch open positions: %w", err)
	}

	return positions, nil
}

// RegimeState returns the persisted hysteresis state, nil when the symbol
// has never been evaluated
func (s *SQLLedger) RegimeState(symbol string) (*core.RegimeState, error) {
	var state core.RegimeState
	err := s.db.First(&state, "symbol = ?", symbol).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch regime state for %s: %w", symbol, err)
	}

	return &state, nil
}

// Trades returns the trade history, oldest first, narrowed by the filters.
// Filters run in memory; the history volume of a single portfolio does not
// justify translating them to SQL.
func (s *SQLLedger) Trades(filters ...core.TradeFilter) ([]core.TradeRecord, error) {
	var trades []core.TradeRecord
	err := s.db.Order("candle_time, id").Find(&trades).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch trades: %w", err)
	}

	return lo.Filter(trades, func(t core.TradeRecord, _ int) bool {
		for _, filter := range filters {
			if !filter(t) {
				return false
			}
		}
		return true
	}), nil
}

// RecentClosedTrades returns the latest closing fills, newest first
func (s *SQLLedger) RecentClosedTrades(limit int) ([]core.TradeRecord, error) {
	exits, err := s.Trades(core.WithExits())
	if err != nil {
		return nil, err
	}

	if limit > 0 && len(exits) > limit {
		exits = exits[len(exits)-limit:]
	}

	return lo.Reverse(exits), nil
}

// Signals returns the latest signal records, oldest first. An empty symbol
// selects all symbols.
func (s *SQLLedger) Signals(symbol string, limit int) ([]core.SignalRecord, error) {
	query := s.db.Order("candle_time desc, id desc")
	if symbol != "" {
		query = query.Where("symbol = ?", symbol)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var signals []core.SignalRecord
	if err := query.Find(&signals).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch signals: %w", err)
	}

	return lo.Reverse(signals), nil
}

// LastProcessed returns the candle open time of the newest committed tick
// for a symbol; the zero time when none exists
func (s *SQLLedger) LastProcessed(symbol string) (time.Time, error) {
	var record core.SignalRecord
	err := s.db.Where("symbol = ?", symbol).Order("candle_time desc").First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to fetch last processed time for %s: %w", symbol, err)
	}

	return record.CandleTime, nil
}

// TradingEnabled reports the persisted trading toggle, defaulting to on
func (s *SQLLedger) TradingEnabled() (bool, error) {
	var setting core.Setting
	err := s.db.First(&setting, "key = ?", settingTradingEnabled).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to fetch trading flag: %w", err)
	}

	return setting.Value == "true", nil
}

// SetTradingEnabled persists the trading toggle
func (s *SQLLedger) SetTradingEnabled(enabled bool) error {
	setting := core.Setting{
		Key:       settingTradingEnabled,
		Value:     fmt.Sprintf("%t", enabled),
		UpdatedAt: time.Now().UTC(),
	}

	err := s.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&setting).Error
	if err != nil {
		return fmt.Errorf("failed to save trading flag: %w", err)
	}

	return nil
}

// CommitTick persists one tick in a single transaction. A tick that was
// already committed (same symbol and candle time, or a duplicate trade key)
// rolls back and returns nil. A position that fails validation rolls back
// and returns the invariant error.
func (s *SQLLedger) CommitTick(commit core.TickCommit) error {
	if err := commit.Validate(s.cfg.MaxTotalRiskMultiplier, s.cfg.MaxAveragingAttempts); err != nil {
		return err
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var replayed int64
		err := tx.Model(&core.SignalRecord{}).
			Where("symbol = ? AND candle_time = ?", commit.Symbol, commit.CandleTime).
			Count(&replayed).Error
		if err != nil {
			return fmt.Errorf("failed to check for replay: %w", err)
		}
		if replayed > 0 {
			return errReplayed
		}

		for i := range commit.Trades {
			if err := tx.Create(&commit.Trades[i]).Error; err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					return errReplayed
				}
				return fmt.Errorf("failed to append trade %s: %w", commit.Trades[i].Key(), err)
			}
		}

		if err := s.savePosition(tx, commit); err != nil {
			return err
		}

		signal := commit.Signal
		if err := tx.Create(&signal).Error; err != nil {
			return fmt.Errorf("failed to append signal: %w", err)
		}

		regime := commit.Regime
		err = tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&regime).Error
		if err != nil {
			return fmt.Errorf("failed to save regime state: %w", err)
		}

		portfolio := commit.Portfolio
		portfolio.ID = 1
		err = tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&portfolio).Error
		if err != nil {
			return fmt.Errorf("failed to save portfolio state: %w", err)
		}

		return nil
	})

	if errors.Is(err, errReplayed) {
		return nil
	}

	return err
}

// savePosition upserts the post-tick position or clears it when the tick
// left the symbol flat
func (s *SQLLedger) savePosition(tx *gorm.DB, commit core.TickCommit) error {
	if commit.Position == nil {
		var existing core.Position
		err := tx.First(&existing, "symbol = ?", commit.Symbol).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to look up position for %s: %w", commit.Symbol, err)
		}

		if err := tx.Delete(&core.AveragingEntry{}, "position_id = ?", existing.ID).Error; err != nil {
			return fmt.Errorf("failed to clear averaging entries for %s: %w", commit.Symbol, err)
		}
		if err := tx.Delete(&existing).Error; err != nil {
			return fmt.Errorf("failed to close position for %s: %w", commit.Symbol, err)
		}

		return nil
	}

	position := commit.Position
	entries := position.AveragingEntries
	position.AveragingEntries = nil
	defer func() { position.AveragingEntries = entries }()

	if err := tx.Save(position).Error; err != nil {
		return fmt.Errorf("failed to save position for %s: %w", commit.Symbol, err)
	}

	for i := range entries {
		if entries[i].ID != 0 {
			continue
		}
		entries[i].PositionID = position.ID
		if err := tx.Create(&entries[i]).Error; err != nil {
			return fmt.Errorf("failed to append averaging entry for %s: %w", commit.Symbol, err)
		}
	}

	return nil
}

// Close releases the underlying connection pool
func (s *SQLLedger) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}

	return sqlDB.Close()
}

const settingTradingEnabled = "trading_enabled"

func initialPortfolioState(balance float64) core.PortfolioState {
	now := time.Now().UTC()
	return core.PortfolioState{
		ID:           1,
		Balance:      balance,
		StartBalance: balance,
		Equity:       balance,
		PeakEquity:   balance,
		UpdatedAt:    now,
	}
}
