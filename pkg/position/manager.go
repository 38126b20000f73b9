package position

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/raykavin/tideshift/pkg/core"
	"github.com/raykavin/tideshift/pkg/indicator"
	"github.com/raykavin/tideshift/pkg/logger"
	"github.com/raykavin/tideshift/pkg/signal"
)

// Manager owns the open positions. On every closed candle it evaluates the
// exit protocol for the symbol, opens approved entries, and commits the
// whole tick outcome to the ledger as one atomic unit.
//
// A single mutex serializes ticks across symbols: the free cash read, the
// fills and the commit happen under the same critical section, so two
// symbols can never fund entries from the same cash twice.
type Manager struct {
	cfg       core.Config
	broker    core.Broker
	ledger    core.Ledger
	signals   *signal.Generator
	log       logger.Logger
	tradeFeed *Feed
	notifier  core.Notifier

	mu        sync.Mutex
	lastPrice map[string]float64
	Results   map[string]*Summary
}

// NewManager creates a new position manager
func NewManager(
	cfg core.Config,
	broker core.Broker,
	ledger core.Ledger,
	signals *signal.Generator,
	tradeFeed *Feed,
	log logger.Logger,
) *Manager {

	return &Manager{
		cfg:       cfg,
		broker:    broker,
		ledger:    ledger,
		signals:   signals,
		tradeFeed: tradeFeed,
		log:       log,
		lastPrice: make(map[string]float64),
		Results:   make(map[string]*Summary),
	}
}

// SetNotifier configures a notifier for trade and error events
func (m *Manager) SetNotifier(notifier core.Notifier) {
	m.notifier = notifier
}

// OnCandle updates the last known price for a symbol
func (m *Manager) OnCandle(candle core.Candle) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastPrice[candle.Pair] = candle.Close
}

// LastPrice returns the most recent close seen for a symbol
func (m *Manager) LastPrice(symbol string) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	price, ok := m.lastPrice[symbol]
	return price, ok
}

// Account retrieves the current trading account information
func (m *Manager) Account() (core.Account, error) {
	return m.broker.Account()
}

// ProcessCandle runs one closed candle through the signal layer and the
// exit protocol and commits the outcome. The returned decision carries the
// final signal kind including any block reason.
func (m *Manager) ProcessCandle(snap indicator.Snapshot, regime core.RegimeState) (signal.Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastPrice[snap.Pair] = snap.Close

	portfolio, err := m.ledger.PortfolioState()
	if err != nil {
		return signal.Decision{}, fmt.Errorf("portfolio state: %w", err)
	}

	open, err := m.ledger.OpenPositions()
	if err != nil {
		return signal.Decision{}, fmt.Errorf("open positions: %w", err)
	}

	pos := findPosition(open, snap.Pair)
	view := signal.PortfolioView{
		OpenPosition: pos,
		OpenCount:    len(open),
		FreeCash:     portfolio.Balance,
	}

	d := m.signals.Evaluate(snap, regime.Mode, view)

	enabled, err := m.ledger.TradingEnabled()
	if err != nil {
		m.notifyError(err)
		enabled = true
	}

	var trades []core.TradeRecord
	next := pos

	switch {
	case pos != nil:
		trades, next, err = m.manageOpen(*pos, snap, d, portfolio.Balance, enabled)
		if err != nil {
			m.notifyError(err)
			return d, err
		}

	case d.Kind != core.SignalBuy:
		// Flat and nothing to do; the signal is still recorded below

	case !enabled:
		d.Kind = core.SignalHold
		d.BlockReason = signal.BlockTradingDisabled

	default:
		outlay := core.Round8(portfolio.Balance * d.SizeFraction)
		if outlay < m.cfg.MinNotional {
			d.Kind = core.SignalHold
			d.BlockReason = signal.BlockInsufficientCash
			break
		}

		var trade core.TradeRecord
		trade, next, err = m.openNew(snap, d, outlay)
		if err != nil {
			m.notifyError(err)
			return d, err
		}
		trades = append(trades, trade)
	}

	commit := m.buildCommit(snap, d, regime, next, trades, portfolio, open)
	if err := m.ledger.CommitTick(commit); err != nil {
		if errors.Is(err, core.ErrInvariant) {
			m.log.WithFields(map[string]any{
				"symbol":   snap.Pair,
				"candle":   snap.Time,
				"signal":   d.Kind,
				"fills":    len(trades),
				"position": fmt.Sprintf("%+v", next),
			}).Error("tick commit rolled back")
		}
		m.notifyError(err)
		return d, err
	}

	m.afterCommit(trades)
	return d, nil
}

// ForceBuy opens a position outside the entry filters, for the manual
// entry command. The position cap and cash availability still apply.
func (m *Manager) ForceBuy(snap indicator.Snapshot, regime core.RegimeState) (core.TradeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastPrice[snap.Pair] = snap.Close

	portfolio, err := m.ledger.PortfolioState()
	if err != nil {
		return core.TradeRecord{}, fmt.Errorf("portfolio state: %w", err)
	}

	open, err := m.ledger.OpenPositions()
	if err != nil {
		return core.TradeRecord{}, fmt.Errorf("open positions: %w", err)
	}

	if findPosition(open, snap.Pair) != nil {
		return core.TradeRecord{}, fmt.Errorf("%s already has an open position", snap.Pair)
	}

	if len(open) >= m.cfg.MaxPositions {
		return core.TradeRecord{}, fmt.Errorf("position limit of %d reached", m.cfg.MaxPositions)
	}

	d := m.signals.ForceEntry(snap, regime.Mode)

	outlay := core.Round8(portfolio.Balance * d.SizeFraction)
	if outlay < m.cfg.MinNotional {
		return core.TradeRecord{}, fmt.Errorf("free cash %.2f cannot fund the %.2f minimum order",
			portfolio.Balance, m.cfg.MinNotional)
	}

	trade, next, err := m.openNew(snap, d, outlay)
	if err != nil {
		m.notifyError(err)
		return core.TradeRecord{}, err
	}

	commit := m.buildCommit(snap, d, regime, next, []core.TradeRecord{trade}, portfolio, open)
	if err := m.ledger.CommitTick(commit); err != nil {
		m.notifyError(err)
		return core.TradeRecord{}, err
	}

	m.afterCommit([]core.TradeRecord{trade})
	return trade, nil
}

// CloseAtMarket closes the open position of a symbol at the current market
// price, for the chat removal and reset paths. Flat symbols are a no-op and
// return a nil trade.
func (m *Manager) CloseAtMarket(symbol, reason string) (*core.TradeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.closeAtMarket(symbol, reason)
}

func (m *Manager) closeAtMarket(symbol, reason string) (*core.TradeRecord, error) {
	portfolio, err := m.ledger.PortfolioState()
	if err != nil {
		return nil, fmt.Errorf("portfolio state: %w", err)
	}

	open, err := m.ledger.OpenPositions()
	if err != nil {
		return nil, fmt.Errorf("open positions: %w", err)
	}

	pos := findPosition(open, symbol)
	if pos == nil {
		return nil, nil
	}

	m.log.Infof("Creating MARKET %s order for %s", core.SideTypeSell, symbol)
	result, err := m.broker.CreateOrderMarket(core.SideTypeSell, symbol, pos.Quantity)
	if err != nil {
		m.notifyError(err)
		return nil, err
	}

	// Manual closes happen between candles, so the wall clock keys the
	// commit instead of a candle open time
	now := time.Now().UTC()
	realized := core.Round8(result.Quote - result.Commission - pos.TotalInvested)

	trade := core.TradeRecord{
		Symbol:      symbol,
		CandleTime:  now,
		Reason:      reason,
		Side:        core.SideTypeSell,
		Price:       result.Price,
		Quantity:    result.Quantity,
		Commission:  result.Commission,
		RealizedPnL: realized,
		Regime:      pos.EntryMode,
		CreatedAt:   now,
	}

	portfolio.Balance = core.Round8(portfolio.Balance + result.Quote - result.Commission)
	portfolio.RealizedPnL = core.Round8(portfolio.RealizedPnL + realized)
	if realized > 0 {
		portfolio.WinCount++
	} else {
		portfolio.LossCount++
	}

	portfolio.Equity = portfolio.Balance
	for _, p := range open {
		if p.Symbol == symbol {
			continue
		}
		portfolio.Equity = core.Round8(portfolio.Equity + p.Quantity*m.markPrice(*p))
	}
	if portfolio.Equity > portfolio.PeakEquity {
		portfolio.PeakEquity = portfolio.Equity
	}
	portfolio.UpdatedAt = now

	regime := core.RegimeState{Symbol: symbol, Mode: pos.EntryMode, UpdatedAt: now}
	if rs, err := m.ledger.RegimeState(symbol); err == nil && rs != nil {
		regime = *rs
	}

	commit := core.TickCommit{
		Symbol:     symbol,
		CandleTime: now,
		Trades:     []core.TradeRecord{trade},
		Signal: core.SignalRecord{
			Symbol:     symbol,
			CandleTime: now,
			Signal:     core.SignalSell,
			Regime:     pos.EntryMode,
			TopReasons: []string{reason},
			Price:      result.Price,
			CreatedAt:  now,
		},
		Regime:    regime,
		Portfolio: portfolio,
	}

	if err := m.ledger.CommitTick(commit); err != nil {
		m.notifyError(err)
		return nil, err
	}

	m.afterCommit([]core.TradeRecord{trade})
	return &trade, nil
}

// Reset closes every open position at market and starts the paper portfolio
// over at the configured balance. History and tracked symbols are kept.
func (m *Manager) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	open, err := m.ledger.OpenPositions()
	if err != nil {
		return fmt.Errorf("open positions: %w", err)
	}

	for _, pos := range open {
		if _, err := m.closeAtMarket(pos.Symbol, "reset"); err != nil {
			return err
		}
	}

	fresh := core.PortfolioState{
		ID:           1,
		Balance:      m.cfg.InitialBalance,
		StartBalance: m.cfg.InitialBalance,
		Equity:       m.cfg.InitialBalance,
		PeakEquity:   m.cfg.InitialBalance,
		UpdatedAt:    time.Now().UTC(),
	}
	if err := m.ledger.SavePortfolioState(fresh); err != nil {
		return fmt.Errorf("reset portfolio: %w", err)
	}

	m.log.Infof("Paper state reset, balance back to %.2f", m.cfg.InitialBalance)
	return nil
}

// manageOpen applies the exit protocol to an open position in strict order.
// The first rule that closes wins; the partial take profit ends the tick by
// itself. Scaling in runs only when nothing above it fired.
func (m *Manager) manageOpen(pos core.Position, snap indicator.Snapshot, d signal.Decision,
	freeCash float64, allowScaling bool) ([]core.TradeRecord, *core.Position, error) {

	if _, err := StageOf(pos); err != nil {
		return nil, &pos, err
	}

	price := snap.Close

	// 1. Hard stop loss
	if price <= pos.StopLoss {
		return m.closeFull(&pos, snap, d, core.SideTypeStopLoss)
	}

	// 2. Break-even stop
	if pos.BreakevenActive && price <= pos.AvgEntryPrice {
		return m.closeFull(&pos, snap, d, core.SideTypeBreakevenStop)
	}

	// 3. Trailing stop: the peak moves first, then the drop is measured
	if pos.TrailingActive {
		if price > pos.HighestPrice {
			pos.HighestPrice = price
		}
		if price <= pos.HighestPrice*(1-m.cfg.TrailDistancePct) {
			return m.closeFull(&pos, snap, d, core.SideTypeTrailingStop)
		}
	}

	// 4. One-shot partial take profit for trend entries
	if !pos.PartialTPTaken && pos.EntryMode == core.RegimeTrendFollowing &&
		price >= pos.AvgEntryPrice*(1+m.cfg.PartialTPTrigger) {
		trade, err := m.partialClose(&pos, snap, d)
		if err != nil {
			return nil, &pos, err
		}
		// No rule below may fire on the candle that took the partial
		return []core.TradeRecord{trade}, &pos, nil
	}

	// 5. Trailing activation; a state change, not a fill
	if !pos.TrailingActive && price >= pos.AvgEntryPrice*(1+m.trailActivation(pos.EntryMode)) {
		armTrailing(&pos, price)
	}

	// 6. Take profit
	if pos.TakeProfit > 0 && price >= pos.TakeProfit {
		return m.closeFull(&pos, snap, d, core.SideTypeTakeProfit)
	}

	// 7. Signal exit
	if d.Kind == core.SignalSell {
		return m.closeFull(&pos, snap, d, core.SideTypeSignalExit)
	}

	// 8. Scaling in
	if !allowScaling {
		return nil, &pos, nil
	}

	trade, ok, err := m.scaleIn(&pos, snap, d, freeCash)
	if err != nil {
		return nil, &pos, err
	}
	if ok {
		return []core.TradeRecord{trade}, &pos, nil
	}

	return nil, &pos, nil
}

// openNew buys a fresh position with the given cash outlay. The broker
// resolves the quantity from the outlay net of commission.
func (m *Manager) openNew(snap indicator.Snapshot, d signal.Decision,
	outlay float64) (core.TradeRecord, *core.Position, error) {

	m.log.Infof("Creating MARKET %s order for %s", core.SideTypeBuy, snap.Pair)
	result, err := m.broker.CreateOrderMarketQuote(core.SideTypeBuy, snap.Pair, outlay)
	if err != nil {
		return core.TradeRecord{}, nil, err
	}

	pos := &core.Position{
		Symbol:          snap.Pair,
		Quantity:        result.Quantity,
		AvgEntryPrice:   result.Price,
		TotalInvested:   result.Quote,
		InitialInvested: result.Quote,
		CommissionPaid:  result.Commission,
		StopLoss:        d.StopLoss,
		TakeProfit:      d.TakeProfit,
		HighestPrice:    result.Price,
		EntryMode:       d.Mode,
		EntryVotesDelta: d.VotesDelta,
		EntryReasons:    d.Top3,
		CreatedAt:       snap.Time,
		UpdatedAt:       snap.Time,
	}

	trade := newTradeRecord(snap.Pair, snap.Time, core.SideTypeBuy, result, 0, d.VotesDelta, d.Mode)
	return trade, pos, nil
}

// closeFull sells the whole remaining quantity and realizes the result
// against everything invested, commissions included
func (m *Manager) closeFull(pos *core.Position, snap indicator.Snapshot, d signal.Decision,
	side core.SideType) ([]core.TradeRecord, *core.Position, error) {

	m.log.Infof("Creating MARKET %s order for %s", side, pos.Symbol)
	result, err := m.broker.CreateOrderMarket(side, pos.Symbol, pos.Quantity)
	if err != nil {
		return nil, pos, err
	}

	realized := core.Round8(result.Quote - result.Commission - pos.TotalInvested)
	trade := newTradeRecord(pos.Symbol, snap.Time, side, result, realized, d.VotesDelta, pos.EntryMode)

	return []core.TradeRecord{trade}, nil, nil
}

// partialClose sells the partial tranche, promotes the stop to break-even
// and lifts the remaining take profit target if the template is higher
func (m *Manager) partialClose(pos *core.Position, snap indicator.Snapshot,
	d signal.Decision) (core.TradeRecord, error) {

	quantity := core.Round8(pos.Quantity * m.cfg.PartialClosePct)

	m.log.Infof("Creating MARKET %s order for %s", core.SideTypePartialTP, pos.Symbol)
	result, err := m.broker.CreateOrderMarket(core.SideTypePartialTP, pos.Symbol, quantity)
	if err != nil {
		return core.TradeRecord{}, err
	}

	// The sold tranche carries its share of the invested amount
	share := result.Quantity / pos.Quantity
	invested := core.Round8(pos.TotalInvested * share)
	realized := core.Round8(result.Quote - result.Commission - invested)

	pos.Quantity = core.Round8(pos.Quantity - result.Quantity)
	pos.TotalInvested = core.Round8(pos.TotalInvested - invested)
	pos.CommissionPaid = core.Round8(pos.CommissionPaid + result.Commission)
	pos.UpdatedAt = snap.Time

	takePartial(pos)

	remaining := core.Round8(pos.AvgEntryPrice * (1 + m.cfg.PartialTPRemainingTP))
	if remaining > pos.TakeProfit {
		pos.TakeProfit = remaining
	}

	return newTradeRecord(pos.Symbol, snap.Time, core.SideTypePartialTP, result, realized,
		d.VotesDelta, pos.EntryMode), nil
}

// scaleIn adds to an open position: averaging down on a deep, aged discount
// or pyramiding up on trend strength with buy pressure in the votes. The
// risk cap may be reached exactly but never crossed.
func (m *Manager) scaleIn(pos *core.Position, snap indicator.Snapshot, d signal.Decision,
	freeCash float64) (core.TradeRecord, bool, error) {

	if pos.AveragingCount >= m.cfg.MaxAveragingAttempts {
		return core.TradeRecord{}, false, nil
	}

	price := snap.Close

	var side core.SideType
	var notional float64

	switch {
	case price <= pos.AvgEntryPrice*(1-m.cfg.AveragingDropPct) &&
		pos.Age(snap.Time) >= m.cfg.AveragingMinAge:
		side = core.SideTypeAverageDown
		notional = core.Round8(pos.InitialInvested * m.cfg.AveragingSizePct)

	case snap.ADX > m.cfg.PyramidADXMin &&
		price > pos.AvgEntryPrice*(1+m.cfg.PyramidGainPct) &&
		d.Intent == core.SignalBuy:
		side = core.SideTypePyramidUp
		strength := math.Abs(float64(d.VotesDelta)) / float64(m.cfg.PyramidStrongDelta)
		notional = core.Round8(pos.InitialInvested * m.cfg.PyramidSizePct * strength)

	default:
		return core.TradeRecord{}, false, nil
	}

	if notional <= 0 {
		return core.TradeRecord{}, false, nil
	}

	const eps = 1e-8
	if pos.TotalInvested+notional > pos.InitialInvested*m.cfg.MaxTotalRiskMultiplier+eps {
		return core.TradeRecord{}, false, nil
	}

	// Not enough free cash is a quiet skip, not an error
	if notional > freeCash {
		return core.TradeRecord{}, false, nil
	}

	m.log.Infof("Creating MARKET %s order for %s", side, pos.Symbol)
	result, err := m.broker.CreateOrderMarketQuote(side, pos.Symbol, notional)
	if err != nil {
		return core.TradeRecord{}, false, err
	}

	oldCost := pos.AvgEntryPrice * pos.Quantity
	newCost := result.Price * result.Quantity

	pos.Quantity = core.Round8(pos.Quantity + result.Quantity)
	pos.AvgEntryPrice = core.Round8((oldCost + newCost) / pos.Quantity)
	pos.TotalInvested = core.Round8(pos.TotalInvested + result.Quote)
	pos.CommissionPaid = core.Round8(pos.CommissionPaid + result.Commission)
	pos.AveragingCount++
	pos.UpdatedAt = snap.Time

	// The stop template is recomputed from the new average but the stop
	// itself never moves down
	slPct := math.Max(m.cfg.MRStopLossPct, snap.ATRPct*m.cfg.MRATRSLMult)
	pos.StopLoss = math.Max(pos.StopLoss, core.Round8(pos.AvgEntryPrice*(1-slPct)))
	pos.TakeProfit = core.Round8(pos.AvgEntryPrice * (1 + m.cfg.MRTakeProfitPct))

	pos.AveragingEntries = append(pos.AveragingEntries, core.AveragingEntry{
		PositionID: pos.ID,
		Symbol:     pos.Symbol,
		Price:      result.Price,
		Quantity:   result.Quantity,
		Mode:       side,
		Time:       snap.Time,
	})

	trade := newTradeRecord(pos.Symbol, snap.Time, side, result, 0, d.VotesDelta, pos.EntryMode)
	return trade, true, nil
}

// buildCommit folds the fills into the portfolio and assembles the atomic
// tick outcome. Equity marks open positions at their last seen close.
func (m *Manager) buildCommit(snap indicator.Snapshot, d signal.Decision, regime core.RegimeState,
	next *core.Position, trades []core.TradeRecord, portfolio core.PortfolioState,
	open []*core.Position) core.TickCommit {

	for _, t := range trades {
		notional := core.Round8(t.Price * t.Quantity)
		if t.Side.IsEntry() {
			portfolio.Balance = core.Round8(portfolio.Balance - notional - t.Commission)
			continue
		}

		portfolio.Balance = core.Round8(portfolio.Balance + notional - t.Commission)
		portfolio.RealizedPnL = core.Round8(portfolio.RealizedPnL + t.RealizedPnL)
		if t.RealizedPnL > 0 {
			portfolio.WinCount++
		} else {
			portfolio.LossCount++
		}
	}

	portfolio.Equity = portfolio.Balance
	for _, p := range open {
		if p.Symbol == snap.Pair {
			continue
		}
		portfolio.Equity = core.Round8(portfolio.Equity + p.Quantity*m.markPrice(*p))
	}
	if next != nil {
		portfolio.Equity = core.Round8(portfolio.Equity + next.Quantity*snap.Close)
	}
	if portfolio.Equity > portfolio.PeakEquity {
		portfolio.PeakEquity = portfolio.Equity
	}
	portfolio.UpdatedAt = snap.Time

	return core.TickCommit{
		Symbol:     snap.Pair,
		CandleTime: snap.Time,
		Position:   next,
		Trades:     trades,
		Signal: core.SignalRecord{
			Symbol:      snap.Pair,
			CandleTime:  snap.Time,
			Signal:      d.Kind,
			Regime:      d.Mode,
			VotesDelta:  d.VotesDelta,
			TopReasons:  d.Top3,
			Price:       snap.Close,
			BlockReason: d.BlockReason,
			CreatedAt:   time.Now(),
		},
		Regime:    regime,
		Portfolio: portfolio,
	}
}

// afterCommit runs the side effects of persisted fills: summaries, the
// fill feed and chat notifications
func (m *Manager) afterCommit(trades []core.TradeRecord) {
	for _, trade := range trades {
		m.log.Infof("[TRADE CREATED] %s", trade)
		m.recordResult(trade)

		if m.tradeFeed != nil {
			go m.tradeFeed.Publish(trade)
		}
		if m.notifier != nil {
			m.notifier.OnTrade(trade)
		}
	}
}

// recordResult updates the per-symbol summary with a persisted fill
func (m *Manager) recordResult(trade core.TradeRecord) {
	summary, ok := m.Results[trade.Symbol]
	if !ok {
		summary = &Summary{Symbol: trade.Symbol}
		m.Results[trade.Symbol] = summary
	}

	notional := trade.Price * trade.Quantity
	summary.Volume += notional

	if !trade.Side.IsExit() {
		return
	}

	// realized = notional - commission - invested, so the invested share
	// of this tranche falls out of the record itself
	invested := notional - trade.Commission - trade.RealizedPnL
	var pct float64
	if invested > 0 {
		pct = trade.RealizedPnL / invested
	}

	if trade.RealizedPnL > 0 {
		summary.Win = append(summary.Win, trade.RealizedPnL)
		summary.WinPercent = append(summary.WinPercent, pct)
	} else {
		summary.Lose = append(summary.Lose, trade.RealizedPnL)
		summary.LosePercent = append(summary.LosePercent, pct)
	}
}

func (m *Manager) trailActivation(mode core.RegimeType) float64 {
	if mode == core.RegimeMeanReversion {
		return m.cfg.TrailActivationMR
	}
	return m.cfg.TrailActivationTF
}

// markPrice values a position at its last seen close. Before the first
// candle arrives the entry price serves as the mark.
func (m *Manager) markPrice(p core.Position) float64 {
	if price, ok := m.lastPrice[p.Symbol]; ok {
		return price
	}
	return p.AvgEntryPrice
}

// notifyError sends an error through the logging system and notifier
func (m *Manager) notifyError(err error) {
	m.log.Error(err)
	if m.notifier != nil {
		m.notifier.OnError(err)
	}
}

func findPosition(open []*core.Position, symbol string) *core.Position {
	for _, p := range open {
		if p.Symbol == symbol {
			return p
		}
	}
	return nil
}

func newTradeRecord(symbol string, candleTime time.Time, side core.SideType,
	result core.OrderResult, realized float64, votesDelta int, mode core.RegimeType) core.TradeRecord {

	return core.TradeRecord{
		Symbol:      symbol,
		CandleTime:  candleTime,
		Reason:      string(side),
		Side:        side,
		Price:       result.Price,
		Quantity:    result.Quantity,
		Commission:  result.Commission,
		RealizedPnL: realized,
		VotesDelta:  votesDelta,
		Regime:      mode,
		CreatedAt:   time.Now(),
	}
}
