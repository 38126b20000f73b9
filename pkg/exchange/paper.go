package exchange

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/raykavin/tideshift/pkg/core"
	"github.com/raykavin/tideshift/pkg/logger"
)

// Paper simulates market order execution against the close of the last
// candle seen for each pair. It only fills orders; budget and exposure
// decisions belong to the position manager, whose ledger survives
// restarts while this broker starts fresh. Holdings are tracked for
// inspection and may go negative when the ledger resumes a position the
// broker never saw opened.
type Paper struct {
	mu sync.Mutex

	ctx     context.Context
	log     logger.Logger
	feeder  core.Feeder
	feeRate float64

	assets     map[string]float64
	seedAssets map[string]float64
	lastCandle map[string]core.Candle
}

// PaperOption configures a Paper broker
type PaperOption func(*Paper)

// WithPaperAsset seeds the broker with an initial asset amount
func WithPaperAsset(asset string, amount float64) PaperOption {
	return func(p *Paper) {
		p.assets[asset] = amount
	}
}

// WithPaperFee sets the commission rate applied to every fill
func WithPaperFee(rate float64) PaperOption {
	return func(p *Paper) {
		p.feeRate = rate
	}
}

// WithDataFeed attaches a candle source used for asset filters and for
// pricing orders on pairs that have not produced a candle yet
func WithDataFeed(feeder core.Feeder) PaperOption {
	return func(p *Paper) {
		p.feeder = feeder
	}
}

// NewPaper creates a simulated broker
func NewPaper(ctx context.Context, log logger.Logger, options ...PaperOption) *Paper {
	paper := &Paper{
		ctx:        ctx,
		log:        log,
		assets:     make(map[string]float64),
		lastCandle: make(map[string]core.Candle),
	}

	for _, option := range options {
		option(paper)
	}

	paper.seedAssets = make(map[string]float64, len(paper.assets))
	for asset, amount := range paper.assets {
		paper.seedAssets[asset] = amount
	}

	log.Info("[SETUP] Using paper broker")
	for _, asset := range sortedKeys(paper.assets) {
		log.Infof("[SETUP] Seed balance = %f %s", paper.assets[asset], asset)
	}

	return paper
}

// OnCandle records the latest candle for a pair so later orders fill at
// its close
func (p *Paper) OnCandle(candle core.Candle) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.lastCandle[candle.Pair] = candle
}

// Reset restores the seed balances, discarding everything bought or
// earned since construction
func (p *Paper) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.assets = make(map[string]float64, len(p.seedAssets))
	for asset, amount := range p.seedAssets {
		p.assets[asset] = amount
	}

	p.log.Info("Paper broker balances restored to seed values")
}

// Account returns the current simulated balances
func (p *Paper) Account() (core.Account, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	balances := make([]core.Balance, 0, len(p.assets))
	for _, asset := range sortedKeys(p.assets) {
		balances = append(balances, core.Balance{Asset: asset, Free: p.assets[asset]})
	}

	return core.NewAccount(balances)
}

// Position returns the held base and quote amounts for a pair
func (p *Paper) Position(pair string) (asset, quote float64, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	assetTick, quoteTick := SplitAssetQuote(pair)
	return p.assets[assetTick], p.assets[quoteTick], nil
}

// CreateOrderMarket fills a market order for a base asset quantity at
// the last observed price. The returned Quote excludes the commission,
// which is charged on top in quote currency.
func (p *Paper) CreateOrderMarket(side core.SideType, pair string, quantity float64) (core.OrderResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if quantity <= 0 {
		return core.OrderResult{}, &OrderError{Err: ErrInvalidQuantity, Pair: pair, Quantity: quantity}
	}

	price, at, err := p.markPrice(pair)
	if err != nil {
		return core.OrderResult{}, err
	}

	quote := quantity * price
	commission := quote * p.feeRate

	assetTick, quoteTick := SplitAssetQuote(pair)
	if side.IsExit() {
		p.assets[assetTick] -= quantity
		p.assets[quoteTick] += quote - commission
	} else {
		p.assets[quoteTick] -= quote + commission
		p.assets[assetTick] += quantity
	}

	return core.OrderResult{
		Pair:       pair,
		Side:       side,
		Price:      price,
		Quantity:   quantity,
		Quote:      quote,
		Commission: commission,
		Time:       at,
	}, nil
}

// CreateOrderMarketQuote fills a market order sized in quote currency.
// The commission is taken out of the quote amount before conversion, so
// the returned Quote (spent cash, commission included) never exceeds
// the requested amount.
func (p *Paper) CreateOrderMarketQuote(side core.SideType, pair string, quote float64) (core.OrderResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if quote <= 0 {
		return core.OrderResult{}, &OrderError{Err: ErrInvalidQuantity, Pair: pair, Quantity: quote}
	}

	price, at, err := p.markPrice(pair)
	if err != nil {
		return core.OrderResult{}, err
	}

	info := p.AssetsInfo(pair)
	step := info.StepSize
	if step <= 0 {
		step = 0.00000001
	}

	commission := quote * p.feeRate
	quantity := core.FloorToLot((quote-commission)/price, step)
	if quantity <= 0 {
		return core.OrderResult{}, &OrderError{Err: ErrInvalidQuantity, Pair: pair, Quantity: quantity}
	}

	spent := core.Round8(quantity*price + commission)

	assetTick, quoteTick := SplitAssetQuote(pair)
	if side.IsExit() {
		p.assets[assetTick] -= quantity
		p.assets[quoteTick] += spent - commission
	} else {
		p.assets[quoteTick] -= spent
		p.assets[assetTick] += quantity
	}

	return core.OrderResult{
		Pair:       pair,
		Side:       side,
		Price:      price,
		Quantity:   quantity,
		Quote:      spent,
		Commission: commission,
		Time:       at,
	}, nil
}

// AssetsInfo returns exchange filters from the attached feed, or
// permissive defaults when no feed knows the pair
func (p *Paper) AssetsInfo(pair string) core.AssetInfo {
	if p.feeder != nil {
		if info := p.feeder.AssetsInfo(pair); info.StepSize > 0 {
			return info
		}
	}

	asset, quote := SplitAssetQuote(pair)
	return core.AssetInfo{
		BaseAsset:          asset,
		QuoteAsset:         quote,
		MaxPrice:           math.MaxFloat64,
		MaxQuantity:        math.MaxFloat64,
		StepSize:           0.00000001,
		TickSize:           0.00000001,
		QuotePrecision:     8,
		BaseAssetPrecision: 8,
	}
}

// LastQuote returns the close of the last candle seen for the pair,
// falling back to the attached feed
func (p *Paper) LastQuote(ctx context.Context, pair string) (float64, error) {
	p.mu.Lock()
	candle, ok := p.lastCandle[pair]
	p.mu.Unlock()

	if ok && candle.Close > 0 {
		return candle.Close, nil
	}

	if p.feeder != nil {
		return p.feeder.LastQuote(ctx, pair)
	}

	return 0, ErrNoPriceData
}

// CandlesByPeriod proxies to the attached feed
func (p *Paper) CandlesByPeriod(ctx context.Context, pair, period string, start, end time.Time) ([]core.Candle, error) {
	if p.feeder == nil {
		return nil, ErrNoDataFeed
	}
	return p.feeder.CandlesByPeriod(ctx, pair, period, start, end)
}

// CandlesByLimit proxies to the attached feed
func (p *Paper) CandlesByLimit(ctx context.Context, pair, period string, limit int) ([]core.Candle, error) {
	if p.feeder == nil {
		return nil, ErrNoDataFeed
	}
	return p.feeder.CandlesByLimit(ctx, pair, period, limit)
}

func (p *Paper) markPrice(pair string) (float64, time.Time, error) {
	if candle, ok := p.lastCandle[pair]; ok && candle.Close > 0 {
		return candle.Close, candle.Time, nil
	}

	if p.feeder != nil {
		price, err := p.feeder.LastQuote(p.ctx, pair)
		if err == nil && price > 0 {
			return price, time.Now().UTC(), nil
		}
	}

	return 0, time.Time{}, &OrderError{Err: ErrNoPriceData, Pair: pair}
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
