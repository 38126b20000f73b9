package core

import (
	"fmt"
	"time"
)

// TradeRecord is an append-only fill record. The (symbol, candle time,
// reason) triple is unique so that replaying a tick after a crash cannot
// write the same fill twice.
type TradeRecord struct {
	ID          int64      `db:"id" json:"id" gorm:"primaryKey,autoIncrement"`
	Symbol      string     `db:"symbol" json:"symbol" gorm:"uniqueIndex:idx_trade_key;index:idx_trade_symbol_time,priority:1"`
	CandleTime  time.Time  `db:"candle_time" json:"candle_time" gorm:"uniqueIndex:idx_trade_key;index:idx_trade_symbol_time,priority:2"`
	Reason      string     `db:"reason" json:"reason" gorm:"uniqueIndex:idx_trade_key"`
	Side        SideType   `db:"side" json:"side"`
	Price       float64    `db:"price" json:"price"`
	Quantity    float64    `db:"quantity" json:"quantity"`
	Commission  float64    `db:"commission" json:"commission"`
	RealizedPnL float64    `db:"realized_pnl" json:"realized_pnl"`
	VotesDelta  int        `db:"votes_delta" json:"votes_delta"`
	Regime      RegimeType `db:"regime" json:"regime"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

// TableName maps the struct to its relational table
func (TradeRecord) TableName() string { return "trades_history" }

// Key returns the idempotency key of the trade
func (t TradeRecord) Key() string {
	return fmt.Sprintf("%s:%d:%s", t.Symbol, t.CandleTime.UnixMilli(), t.Reason)
}

func (t TradeRecord) String() string {
	return fmt.Sprintf("[%s] %s | price: %f, quantity: %f, pnl: %f (%s)",
		t.Side, t.Symbol, t.Price, t.Quantity, t.RealizedPnL, t.Reason)
}

// SignalRecord is the audit trail of one signal evaluation, including
// decisions that were blocked by an entry filter
type SignalRecord struct {
	ID          int64      `db:"id" json:"id" gorm:"primaryKey,autoIncrement"`
	Symbol      string     `db:"symbol" json:"symbol" gorm:"index:idx_signal_symbol_time,priority:1"`
	CandleTime  time.Time  `db:"candle_time" json:"candle_time" gorm:"index:idx_signal_symbol_time,priority:2"`
	Signal      SignalType `db:"signal" json:"signal"`
	Regime      RegimeType `db:"regime" json:"regime"`
	VotesDelta  int        `db:"votes_delta" json:"votes_delta"`
	TopReasons  []string   `db:"top_reasons" json:"top_reasons" gorm:"serializer:json"`
	Price       float64    `db:"price" json:"price"`
	BlockReason string     `db:"block_reason" json:"block_reason"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

// TableName maps the struct to its relational table
func (SignalRecord) TableName() string { return "signals" }

// Blocked reports whether an entry filter suppressed the raw signal
func (s SignalRecord) Blocked() bool {
	return s.BlockReason != ""
}

// TrackedSymbol is a symbol the scheduler polls. Inactive symbols stay in
// the ledger but are skipped until reactivated.
type TrackedSymbol struct {
	Symbol    string    `db:"symbol" json:"symbol" gorm:"primaryKey"`
	Active    bool      `db:"active" json:"active"`
	AddedAt   time.Time `db:"added_at" json:"added_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// TableName maps the struct to its relational table
func (TrackedSymbol) TableName() string { return "tracked_symbols" }

// PortfolioState is the single authoritative cash and performance record
type PortfolioState struct {
	ID           int64     `db:"id" json:"id" gorm:"primaryKey"`
	Balance      float64   `db:"balance" json:"balance"`
	StartBalance float64   `db:"start_balance" json:"start_balance"`
	Equity       float64   `db:"equity" json:"equity"`
	RealizedPnL  float64   `db:"realized_pnl" json:"realized_pnl"`
	WinCount     int       `db:"win_count" json:"win_count"`
	LossCount    int       `db:"loss_count" json:"loss_count"`
	PeakEquity   float64   `db:"peak_equity" json:"peak_equity"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// TableName maps the struct to its relational table
func (PortfolioState) TableName() string { return "portfolio_state" }

// WinRate returns the fraction of closed trades that were profitable
func (p PortfolioState) WinRate() float64 {
	total := p.WinCount + p.LossCount
	if total == 0 {
		return 0
	}
	return float64(p.WinCount) / float64(total)
}

// Drawdown returns the current drop from peak equity as a fraction
func (p PortfolioState) Drawdown() float64 {
	if p.PeakEquity <= 0 {
		return 0
	}
	return (p.PeakEquity - p.Equity) / p.PeakEquity
}

// RegimeState persists the hysteresis machine per symbol so that restarts
// keep the dwell clock instead of resetting it
type RegimeState struct {
	Symbol    string     `db:"symbol" json:"symbol" gorm:"primaryKey"`
	Mode      RegimeType `db:"mode" json:"mode"`
	EnteredAt time.Time  `db:"entered_at" json:"entered_at"`
	ADX       float64    `db:"adx" json:"adx"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}

// TableName maps the struct to its relational table
func (RegimeState) TableName() string { return "regime_state" }

// Setting is one persisted control flag, keyed by name
type Setting struct {
	Key       string    `db:"key" json:"key" gorm:"primaryKey"`
	Value     string    `db:"value" json:"value"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// TableName maps the struct to its relational table
func (Setting) TableName() string { return "settings" }
