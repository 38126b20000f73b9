package core

import (
	"fmt"
	"time"
)

// SideType identifies the direction and intent of a fill
type SideType string

// RegimeType identifies the market regime driving a decision
type RegimeType string

// SignalType is the outcome of a signal evaluation
type SignalType string

const (
	SideTypeBuy           SideType = "BUY"
	SideTypeSell          SideType = "SELL"
	SideTypeStopLoss      SideType = "STOP_LOSS"
	SideTypeTakeProfit    SideType = "TAKE_PROFIT"
	SideTypePartialTP     SideType = "PARTIAL_TP"
	SideTypeTrailingStop  SideType = "TRAILING_STOP"
	SideTypeBreakevenStop SideType = "BREAKEVEN_STOP"
	SideTypeAverageDown   SideType = "AVERAGE_DOWN"
	SideTypePyramidUp     SideType = "PYRAMID_UP"
	SideTypeSignalExit    SideType = "SIGNAL_EXIT"

	RegimeMeanReversion  RegimeType = "MR"
	RegimeTrendFollowing RegimeType = "TF"
	RegimeTransition     RegimeType = "TRANSITION"

	SignalBuy  SignalType = "BUY"
	SignalSell SignalType = "SELL"
	SignalHold SignalType = "HOLD"
)

// IsExit reports whether the side reduces or closes a long position
func (s SideType) IsExit() bool {
	switch s {
	case SideTypeSell, SideTypeStopLoss, SideTypeTakeProfit, SideTypePartialTP,
		SideTypeTrailingStop, SideTypeBreakevenStop, SideTypeSignalExit:
		return true
	}
	return false
}

// IsEntry reports whether the side adds exposure to a position
func (s SideType) IsEntry() bool {
	switch s {
	case SideTypeBuy, SideTypeAverageDown, SideTypePyramidUp:
		return true
	}
	return false
}

// OrderResult is the reconciled outcome of an atomic market order
type OrderResult struct {
	Pair       string
	Side       SideType
	Price      float64
	Quantity   float64
	Quote      float64
	Commission float64
	Time       time.Time
}

func (o OrderResult) String() string {
	return fmt.Sprintf("[%s] %s | price: %f, quantity: %f, commission: %f",
		o.Side, o.Pair, o.Price, o.Quantity, o.Commission)
}
