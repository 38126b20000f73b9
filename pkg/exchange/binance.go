package exchange

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/raykavin/tideshift/pkg/core"
	"github.com/raykavin/tideshift/pkg/logger"
)

// Binance is the spot market client. Candles are fetched over REST by the
// polling scheduler; orders are atomic market orders reconciled from the
// FULL order response.
type Binance struct {
	ctx        context.Context
	client     *binance.Client
	log        logger.Logger
	assetsInfo map[string]core.AssetInfo
	heikinAshi bool
}

// BinanceOption configures the client before the connection test
type BinanceOption func(*Binance)

// WithBinanceCredentials sets the API credentials
func WithBinanceCredentials(key, secret string) BinanceOption {
	return func(b *Binance) {
		b.client = binance.NewClient(key, secret)
	}
}

// WithHeikinAshiCandles smooths fetched candles into Heikin-Ashi form
func WithHeikinAshiCandles() BinanceOption {
	return func(b *Binance) {
		b.heikinAshi = true
	}
}

// WithTestNet points the client at the binance spot testnet
func WithTestNet() BinanceOption {
	return func(_ *Binance) {
		binance.UseTestnet = true
	}
}

// NewBinance connects the spot client, loads exchange info for order
// precision and registers every symbol's pair split
func NewBinance(ctx context.Context, log logger.Logger, options ...BinanceOption) (*Binance, error) {
	exchange := &Binance{
		ctx:        ctx,
		client:     binance.NewClient("", ""),
		log:        log,
		assetsInfo: make(map[string]core.AssetInfo),
	}

	for _, option := range options {
		option(exchange)
	}

	if err := exchange.client.NewPingService().Do(ctx); err != nil {
		return nil, fmt.Errorf("binance ping fail: %w", err)
	}

	info, err := exchange.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get exchange info: %w", err)
	}

	pairs := make(map[string]AssetQuote, len(info.Symbols))
	for _, symbol := range info.Symbols {
		assetInfo := core.AssetInfo{
			BaseAsset:          symbol.BaseAsset,
			QuoteAsset:         symbol.QuoteAsset,
			BaseAssetPrecision: symbol.BaseAssetPrecision,
			QuotePrecision:     symbol.QuotePrecision,
		}

		for _, filter := range symbol.Filters {
			typ, ok := filter["filterType"]
			if !ok {
				continue
			}

			if typ == string(binance.SymbolFilterTypeLotSize) {
				assetInfo.MinQuantity, _ = strconv.ParseFloat(filter["minQty"].(string), 64)
				assetInfo.MaxQuantity, _ = strconv.ParseFloat(filter["maxQty"].(string), 64)
				assetInfo.StepSize, _ = strconv.ParseFloat(filter["stepSize"].(string), 64)
			}

			if typ == string(binance.SymbolFilterTypePriceFilter) {
				assetInfo.MinPrice, _ = strconv.ParseFloat(filter["minPrice"].(string), 64)
				assetInfo.MaxPrice, _ = strconv.ParseFloat(filter["maxPrice"].(string), 64)
				assetInfo.TickSize, _ = strconv.ParseFloat(filter["tickSize"].(string), 64)
			}
		}

		exchange.assetsInfo[symbol.Symbol] = assetInfo
		pairs[symbol.Symbol] = AssetQuote{Asset: symbol.BaseAsset, Quote: symbol.QuoteAsset}
	}
	RegisterPairs(pairs)

	log.Info("[SETUP] Using Binance Spot exchange")
	return exchange, nil
}

// AssetsInfo returns the precision and lot limits of a pair
func (b *Binance) AssetsInfo(pair string) core.AssetInfo {
	return b.assetsInfo[pair]
}

// LastQuote returns the close of the latest finished minute candle
func (b *Binance) LastQuote(ctx context.Context, pair string) (float64, error) {
	candles, err := b.CandlesByLimit(ctx, pair, "1m", 1)
	if err != nil || len(candles) < 1 {
		return 0, err
	}
	return candles[0].Close, nil
}

// CandlesByLimit fetches the most recent closed candles of a pair. One
// extra candle is requested and dropped because the newest one is still
// forming.
func (b *Binance) CandlesByLimit(ctx context.Context, pair, period string, limit int) ([]core.Candle, error) {
	heikinAshi := core.NewHeikinAshi()

	data, err := b.client.NewKlinesService().
		Symbol(pair).
		Interval(period).
		Limit(limit + 1).
		Do(ctx)
	if err != nil {
		return nil, err
	}

	candles := make([]core.Candle, 0, len(data))
	for i, d := range data {
		if i == len(data)-1 {
			break
		}

		candle := klineToCandle(pair, *d)
		if b.heikinAshi {
			candle = candle.ToHeikinAshi(heikinAshi)
		}

		candles = append(candles, candle)
	}

	return candles, nil
}

// CandlesByPeriod fetches the candles of a pair inside a closed time range
func (b *Binance) CandlesByPeriod(ctx context.Context, pair, period string,
	start, end time.Time) ([]core.Candle, error) {

	heikinAshi := core.NewHeikinAshi()

	data, err := b.client.NewKlinesService().
		Symbol(pair).
		Interval(period).
		StartTime(start.UnixMilli()).
		EndTime(end.UnixMilli()).
		Do(ctx)
	if err != nil {
		return nil, err
	}

	candles := make([]core.Candle, 0, len(data))
	for _, d := range data {
		candle := klineToCandle(pair, *d)
		if b.heikinAshi {
			candle = candle.ToHeikinAshi(heikinAshi)
		}

		candles = append(candles, candle)
	}

	return candles, nil
}

// CreateOrderMarket submits a market order sized in the base asset
func (b *Binance) CreateOrderMarket(side core.SideType, pair string, quantity float64) (core.OrderResult, error) {
	if err := b.validate(pair, quantity); err != nil {
		return core.OrderResult{}, err
	}

	order, err := b.client.NewCreateOrderService().
		Symbol(pair).
		Type(binance.OrderTypeMarket).
		Side(binanceSide(side)).
		Quantity(b.formatQuantity(pair, quantity)).
		NewOrderRespType(binance.NewOrderRespTypeFULL).
		Do(b.ctx)
	if err != nil {
		return core.OrderResult{}, err
	}

	return b.reconcile(pair, side, order)
}

// CreateOrderMarketQuote submits a market order sized in the quote currency
func (b *Binance) CreateOrderMarketQuote(side core.SideType, pair string, quote float64) (core.OrderResult, error) {
	if quote <= 0 {
		return core.OrderResult{}, &OrderError{Err: ErrInvalidQuantity, Pair: pair, Quantity: quote}
	}

	precision := 8
	if info, ok := b.assetsInfo[pair]; ok && info.QuotePrecision > 0 {
		precision = info.QuotePrecision
	}

	order, err := b.client.NewCreateOrderService().
		Symbol(pair).
		Type(binance.OrderTypeMarket).
		Side(binanceSide(side)).
		QuoteOrderQty(strconv.FormatFloat(quote, 'f', precision, 64)).
		NewOrderRespType(binance.NewOrderRespTypeFULL).
		Do(b.ctx)
	if err != nil {
		return core.OrderResult{}, err
	}

	return b.reconcile(pair, side, order)
}

// reconcile turns the FULL order response into the atomic fill view the
// position manager works with: executed quantity, volume weighted price and
// the commission expressed in the quote currency
func (b *Binance) reconcile(pair string, side core.SideType, order *binance.CreateOrderResponse) (core.OrderResult, error) {
	cost, err := strconv.ParseFloat(order.CummulativeQuoteQuantity, 64)
	if err != nil {
		return core.OrderResult{}, err
	}

	quantity, err := strconv.ParseFloat(order.ExecutedQuantity, 64)
	if err != nil {
		return core.OrderResult{}, err
	}
	if quantity <= 0 {
		return core.OrderResult{}, &OrderError{Err: ErrInvalidQuantity, Pair: pair, Quantity: quantity}
	}

	info := b.assetsInfo[pair]
	var commission float64
	for _, fill := range order.Fills {
		c, err := strconv.ParseFloat(fill.Commission, 64)
		if err != nil {
			continue
		}

		switch fill.CommissionAsset {
		case info.QuoteAsset:
			commission += c
		case info.BaseAsset:
			price, _ := strconv.ParseFloat(fill.Price, 64)
			commission += c * price
		default:
			// Commission paid in a third asset (BNB discounts) cannot be
			// expressed in the quote without another price lookup
			b.log.Warnf("ignoring %s commission %s on %s fill", fill.CommissionAsset, fill.Commission, pair)
		}
	}

	return core.OrderResult{
		Pair:       pair,
		Side:       side,
		Price:      cost / quantity,
		Quantity:   quantity,
		Quote:      cost,
		Commission: commission,
		Time:       time.Unix(0, order.TransactTime*int64(time.Millisecond)),
	}, nil
}

// Account returns the non-zero balances of the account
func (b *Binance) Account() (core.Account, error) {
	acc, err := b.client.NewGetAccountService().Do(b.ctx)
	if err != nil {
		return core.Account{}, err
	}

	balances := make([]core.Balance, 0, len(acc.Balances))
	for _, balance := range acc.Balances {
		free, err := strconv.ParseFloat(balance.Free, 64)
		if err != nil {
			return core.Account{}, err
		}
		locked, err := strconv.ParseFloat(balance.Locked, 64)
		if err != nil {
			return core.Account{}, err
		}

		if free == 0 && locked == 0 {
			continue
		}

		balances = append(balances, core.Balance{
			Asset: balance.Asset,
			Free:  free,
			Lock:  locked,
		})
	}

	return core.NewAccount(balances)
}

// Position returns the held base and quote amounts for a pair
func (b *Binance) Position(pair string) (asset, quote float64, err error) {
	assetTick, quoteTick := SplitAssetQuote(pair)

	acc, err := b.Account()
	if err != nil {
		return 0, 0, err
	}

	assetBalance, quoteBalance := acc.Balance(assetTick, quoteTick)
	return assetBalance.Free + assetBalance.Lock, quoteBalance.Free + quoteBalance.Lock, nil
}

// validate rejects base quantities outside the pair's lot limits
func (b *Binance) validate(pair string, quantity float64) error {
	info, ok := b.assetsInfo[pair]
	if !ok {
		return ErrInvalidAsset
	}

	if quantity > info.MaxQuantity || quantity < info.MinQuantity {
		return &OrderError{Err: ErrInvalidQuantity, Pair: pair, Quantity: quantity}
	}

	return nil
}

// formatQuantity floors a base quantity to the pair's lot step
func (b *Binance) formatQuantity(pair string, value float64) string {
	info, ok := b.assetsInfo[pair]
	if !ok {
		return strconv.FormatFloat(value, 'f', -1, 64)
	}

	return strconv.FormatFloat(core.FloorToLot(value, info.StepSize), 'f', -1, 64)
}

// binanceSide collapses the internal exit labels onto the wire sides
func binanceSide(side core.SideType) binance.SideType {
	if side.IsExit() {
		return binance.SideTypeSell
	}
	return binance.SideTypeBuy
}

func klineToCandle(pair string, k binance.Kline) core.Candle {
	t := time.Unix(0, k.OpenTime*int64(time.Millisecond))
	candle := core.Candle{
		Pair:      pair,
		Time:      t,
		UpdatedAt: t,
		Metadata:  make(map[string]float64),
		Complete:  true,
	}

	candle.Open, _ = strconv.ParseFloat(k.Open, 64)
	candle.Close, _ = strconv.ParseFloat(k.Close, 64)
	candle.High, _ = strconv.ParseFloat(k.High, 64)
	candle.Low, _ = strconv.ParseFloat(k.Low, 64)
	candle.Volume, _ = strconv.ParseFloat(k.Volume, 64)

	return candle
}
