package core

import (
	"context"
	"time"
)

type Exchange interface {
	Broker
	Feeder
}

type Feeder interface {
	AssetsInfo(pair string) AssetInfo
	LastQuote(ctx context.Context, pair string) (float64, error)
	CandlesByPeriod(ctx context.Context, pair, period string, start, end time.Time) ([]Candle, error)
	CandlesByLimit(ctx context.Context, pair, period string, limit int) ([]Candle, error)
}

type Broker interface {
	Account() (Account, error)
	Position(pair string) (asset, quote float64, err error)
	CreateOrderMarket(side SideType, pair string, quantity float64) (OrderResult, error)
	CreateOrderMarketQuote(side SideType, pair string, quote float64) (OrderResult, error)
}

type Notifier interface {
	Notify(string)
	OnTrade(trade TradeRecord)
	OnError(err error)
}

// TradeSubscriber consumes persisted fills from the trade feed
type TradeSubscriber interface {
	OnTrade(trade TradeRecord)
}

type NotifierWithStart interface {
	Notifier
	Start()
}
