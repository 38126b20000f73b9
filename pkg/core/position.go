package core

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvariant marks a position state that violates a structural invariant.
// A commit carrying such a position must be rolled back, never persisted.
var ErrInvariant = errors.New("position invariant violated")

// AveragingEntry records a single scale-in fill on an open position
type AveragingEntry struct {
	ID         int64     `db:"id" json:"id" gorm:"primaryKey,autoIncrement"`
	PositionID int64     `db:"position_id" json:"position_id" gorm:"index"`
	Symbol     string    `db:"symbol" json:"symbol"`
	Price      float64   `db:"price" json:"price"`
	Quantity   float64   `db:"quantity" json:"quantity"`
	Mode       SideType  `db:"mode" json:"mode"`
	Time       time.Time `db:"time" json:"time"`
}

// TableName maps the struct to its relational table
func (AveragingEntry) TableName() string { return "averaging_entries" }

// Position is an open long position in a single symbol.
// Quantity and prices are kept at 8-decimal precision.
type Position struct {
	ID               int64            `db:"id" json:"id" gorm:"primaryKey,autoIncrement"`
	Symbol           string           `db:"symbol" json:"symbol" gorm:"uniqueIndex"`
	Quantity         float64          `db:"quantity" json:"quantity"`
	AvgEntryPrice    float64          `db:"avg_entry_price" json:"avg_entry_price"`
	TotalInvested    float64          `db:"total_invested" json:"total_invested"`
	InitialInvested  float64          `db:"initial_invested" json:"initial_invested"`
	CommissionPaid   float64          `db:"commission_paid" json:"commission_paid"`
	StopLoss         float64          `db:"stop_loss" json:"stop_loss"`
	TakeProfit       float64          `db:"take_profit" json:"take_profit"`
	HighestPrice     float64          `db:"highest_price" json:"highest_price"`
	TrailingActive   bool             `db:"trailing_active" json:"trailing_active"`
	BreakevenActive  bool             `db:"breakeven_active" json:"breakeven_active"`
	PartialTPTaken   bool             `db:"partial_tp_taken" json:"partial_tp_taken"`
	EntryMode        RegimeType       `db:"entry_mode" json:"entry_mode"`
	EntryVotesDelta  int              `db:"entry_votes_delta" json:"entry_votes_delta"`
	EntryReasons     []string         `db:"entry_reasons" json:"entry_reasons" gorm:"serializer:json"`
	AveragingCount   int              `db:"averaging_count" json:"averaging_count"`
	AveragingEntries []AveragingEntry `db:"-" json:"averaging_entries" gorm:"foreignKey:PositionID"`
	CreatedAt        time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time        `db:"updated_at" json:"updated_at"`
}

// TableName maps the struct to its relational table
func (Position) TableName() string { return "positions" }

// CostBasis returns the average invested amount per unit, commission included
func (p Position) CostBasis() float64 {
	if p.Quantity <= 0 {
		return 0
	}
	return p.TotalInvested / p.Quantity
}

// UnrealizedPnL returns the mark-to-market result against the invested amount
func (p Position) UnrealizedPnL(price float64) float64 {
	return price*p.Quantity - p.TotalInvested
}

// UnrealizedPnLPct returns the mark-to-market result as a fraction of invested
func (p Position) UnrealizedPnLPct(price float64) float64 {
	if p.TotalInvested <= 0 {
		return 0
	}
	return p.UnrealizedPnL(price) / p.TotalInvested
}

// Age returns how long the position has been open
func (p Position) Age(now time.Time) time.Duration {
	return now.Sub(p.CreatedAt)
}

// Validate checks the structural invariants of an open position.
// Violations wrap ErrInvariant so callers can roll back the enclosing commit.
func (p Position) Validate(maxRiskMultiplier float64, maxAveraging int) error {
	const eps = 1e-8

	if p.Quantity <= 0 {
		return fmt.Errorf("%w: %s quantity %f", ErrInvariant, p.Symbol, p.Quantity)
	}

	if p.AvgEntryPrice <= 0 {
		return fmt.Errorf("%w: %s average entry price %f", ErrInvariant, p.Symbol, p.AvgEntryPrice)
	}

	if p.StopLoss > p.AvgEntryPrice+eps {
		return fmt.Errorf("%w: %s stop loss %f above average entry %f",
			ErrInvariant, p.Symbol, p.StopLoss, p.AvgEntryPrice)
	}

	if p.TakeProfit > 0 && p.TakeProfit < p.AvgEntryPrice-eps {
		return fmt.Errorf("%w: %s take profit %f below average entry %f",
			ErrInvariant, p.Symbol, p.TakeProfit, p.AvgEntryPrice)
	}

	if p.AveragingCount > maxAveraging {
		return fmt.Errorf("%w: %s averaging count %d exceeds limit %d",
			ErrInvariant, p.Symbol, p.AveragingCount, maxAveraging)
	}

	if p.InitialInvested > 0 && p.TotalInvested > p.InitialInvested*maxRiskMultiplier+eps {
		return fmt.Errorf("%w: %s total invested %f exceeds %.2fx of initial %f",
			ErrInvariant, p.Symbol, p.TotalInvested, maxRiskMultiplier, p.InitialInvested)
	}

	return nil
}
