package exchange

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidQuantity   = errors.New("invalid quantity")
	ErrInsufficientFunds = errors.New("insufficient funds or locked")
	ErrInvalidAsset      = errors.New("invalid asset")
	ErrNoPriceData       = errors.New("no price data for pair")
	ErrNoDataFeed        = errors.New("no data feed attached")
	ErrInsufficientData  = errors.New("insufficient data")
)

// OrderError carries the pair and size of a refused or failed order
type OrderError struct {
	Err      error
	Pair     string
	Quantity float64
}

func (o *OrderError) Error() string {
	return fmt.Sprintf("order error: %v (%s, quantity %f)", o.Err, o.Pair, o.Quantity)
}

func (o *OrderError) Unwrap() error {
	return o.Err
}
