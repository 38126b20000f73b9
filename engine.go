// Package tideshift assembles the trading engine: feed, broker, ledger,
// the hybrid strategy stack and the poll scheduler, with optional
// telegram control and a replay mode for backtests.
package tideshift

import (
	"context"
	"fmt"

	"github.com/raykavin/tideshift/pkg/backtesting"
	"github.com/raykavin/tideshift/pkg/core"
	"github.com/raykavin/tideshift/pkg/exchange"
	"github.com/raykavin/tideshift/pkg/ledger"
	"github.com/raykavin/tideshift/pkg/logger"
	"github.com/raykavin/tideshift/pkg/notification"
	"github.com/raykavin/tideshift/pkg/position"
	"github.com/raykavin/tideshift/pkg/scheduler"
	"github.com/raykavin/tideshift/strategies"
)

// DefaultLog is the default logger instance
var DefaultLog logger.Logger

const defaultDatabase = "tideshift.db"

// Engine is the assembled trading engine
type Engine struct {
	cfg      core.Config
	settings *core.Settings
	exchange core.Exchange
	ledger   core.Ledger
	notifier core.Notifier
	telegram core.NotifierWithStart
	log      logger.Logger

	stack       *strategies.Hybrid
	scheduler   *scheduler.Scheduler
	paperWallet *exchange.Paper

	// sinks registered through options, wired once the scheduler exists
	pendingSinks []scheduler.CandleSink
	candleSinks  []scheduler.CandleSink

	ledgerOwned bool
	backtest    bool
}

// NewEngine wires a full engine around the given exchange. The exchange
// serves both candle data and order execution; in paper and backtest
// setups pass the paper broker, it proxies the data feed it was built on.
func NewEngine(
	ctx context.Context,
	cfg core.Config,
	settings *core.Settings,
	exch core.Exchange,
	options ...Option,
) (*Engine, error) {

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := validatePairs(settings.Pairs); err != nil {
		return nil, err
	}

	engine := &Engine{
		cfg:      cfg,
		settings: settings,
		exchange: exch,
		log:      DefaultLog,
	}

	// Apply custom options
	for _, option := range options {
		option(engine)
	}

	// Initialize the trade ledger
	if err := initializeLedger(engine); err != nil {
		return nil, err
	}

	// Assemble the strategy stack against the executing broker
	broker := core.Broker(exch)
	if engine.paperWallet != nil {
		broker = engine.paperWallet
	}
	engine.stack = strategies.NewHybrid(cfg, broker, engine.ledger, engine.log)

	sched, err := scheduler.New(cfg, exch, engine.ledger, engine.stack,
		engine.stack.Detector(), settings.Timeframe, engine.log)
	if err != nil {
		return nil, err
	}
	engine.scheduler = sched

	// The paper broker marks positions off the candle stream, so it sees
	// every candle before the strategy stack does
	if engine.paperWallet != nil {
		engine.addCandleSink(engine.paperWallet.OnCandle)
	}
	engine.addCandleSink(engine.stack.OnCandle)
	for _, sink := range engine.pendingSinks {
		engine.addCandleSink(sink)
	}
	engine.pendingSinks = nil

	// Initialize notification systems
	if err := initializeNotifications(engine, settings); err != nil {
		return nil, err
	}
	if engine.notifier != nil {
		engine.setNotifier(engine.notifier)
	}

	return engine, nil
}

// validatePairs ensures all trading pairs have valid asset and quote components
func validatePairs(pairs []string) error {
	if len(pairs) == 0 {
		return fmt.Errorf("no trading pairs configured")
	}
	for _, pair := range pairs {
		asset, quote := exchange.SplitAssetQuote(pair)
		if asset == "" || quote == "" {
			return fmt.Errorf("invalid pair: %s", pair)
		}
	}
	return nil
}

// initializeLedger opens the default database when none was injected
func initializeLedger(engine *Engine) error {
	if engine.ledger != nil {
		return nil
	}

	led, err := ledger.FromFile(defaultDatabase, engine.cfg)
	if err != nil {
		return err
	}

	engine.ledger = led
	engine.ledgerOwned = true
	return nil
}

// initializeNotifications sets up notification systems like Telegram
func initializeNotifications(engine *Engine, settings *core.Settings) error {
	if !settings.Telegram.Enabled {
		return nil
	}

	telegram, err := notification.NewTelegram(engine.cfg, settings,
		engine.scheduler, engine.stack.Manager(), engine.ledger, engine.log)
	if err != nil {
		return err
	}

	engine.telegram = telegram
	engine.setNotifier(telegram)
	return nil
}

// setNotifier points every layer that reports at the same notifier
func (e *Engine) setNotifier(notifier core.Notifier) {
	e.notifier = notifier
	e.stack.SetNotifier(notifier)
	e.scheduler.SetNotifier(notifier)
}

func (e *Engine) addCandleSink(sink scheduler.CandleSink) {
	e.candleSinks = append(e.candleSinks, sink)
	e.scheduler.AddCandleSink(sink)
}

// SubscribeTrades subscribes the given subscribers to persisted fills for
// all configured pairs. The feed starts dispatching when Run is called.
func (e *Engine) SubscribeTrades(subscriptions ...core.TradeSubscriber) {
	for _, pair := range e.settings.Pairs {
		for _, subscription := range subscriptions {
			e.stack.TradeFeed().Subscribe(pair, subscription.OnTrade, false)
		}
	}
}

// Manager returns the position manager driving entries and exits
func (e *Engine) Manager() *position.Manager {
	return e.stack.Manager()
}

// Ledger returns the trade ledger backing the engine
func (e *Engine) Ledger() core.Ledger {
	return e.ledger
}

// Scheduler returns the poll scheduler
func (e *Engine) Scheduler() *scheduler.Scheduler {
	return e.scheduler
}

// Run starts the engine and blocks until the context is cancelled. In
// backtest mode it replays the configured pairs instead and returns when
// the history is exhausted.
func (e *Engine) Run(ctx context.Context) error {
	defer e.closeLedger()

	// Track the configured pairs; AddSymbol is an idempotent upsert, so
	// restarts keep symbols added later through the control surface
	for _, pair := range e.settings.Pairs {
		if err := e.scheduler.AddSymbol(pair); err != nil {
			return err
		}
	}

	// Start dispatching persisted fills to trade feed subscribers
	e.stack.TradeFeed().Start()

	if e.backtest {
		return e.replay(ctx)
	}

	if e.telegram != nil {
		e.telegram.Start()
	}

	if err := e.scheduler.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	e.scheduler.Stop()
	return nil
}

// replay drives the configured pairs through the backtest runner
func (e *Engine) replay(ctx context.Context) error {
	e.log.Info("Starting backtesting")

	runner, err := backtesting.NewRunner(e.cfg, e.exchange, e.ledger,
		e.stack, e.stack.Detector(), e.settings.Timeframe, e.log)
	if err != nil {
		return err
	}

	for _, sink := range e.candleSinks {
		runner.AddCandleSink(sink)
	}

	return runner.Run(ctx, e.settings.Pairs...)
}

func (e *Engine) closeLedger() {
	if !e.ledgerOwned {
		return
	}
	if err := e.ledger.Close(); err != nil {
		e.log.Errorf("close ledger: %v", err)
	}
}
