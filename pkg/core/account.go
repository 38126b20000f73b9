package core

import "fmt"

// Balance represents the available funds for a specific asset
type Balance struct {
	Asset string
	Free  float64
	Lock  float64
}

// Account represents a trading account with multiple asset balances
type Account struct {
	Balances []Balance
}

func NewAccount(balances []Balance) (Account, error) {
	if len(balances) == 0 {
		return Account{}, fmt.Errorf("invalid account balances")
	}

	return Account{Balances: balances}, nil
}

// Balance retrieves the balances for a specific base and quote asset pair
// If a balance is not found for either ticker, an empty Balance is returned
func (a Account) Balance(assetTick, quoteTick string) (Balance, Balance) {
	var assetBalance, quoteBalance Balance

	for _, balance := range a.Balances {
		switch balance.Asset {
		case assetTick:
			assetBalance = balance
		case quoteTick:
			quoteBalance = balance
		}
	}

	return assetBalance, quoteBalance
}

// Equity calculates the total equity in the account
// Equity is defined as the sum of free and locked amounts across all assets
func (a Account) Equity() float64 {
	var total float64

	for _, balance := range a.Balances {
		total += balance.Free + balance.Lock
	}

	return total
}
