package tideshift

import (
	"github.com/raykavin/tideshift/pkg/core"
	"github.com/raykavin/tideshift/pkg/exchange"
	"github.com/raykavin/tideshift/pkg/logger"
	"github.com/raykavin/tideshift/pkg/scheduler"
)

// Option is a functional option for configuring an Engine instance
type Option func(*Engine)

// WithBacktest sets the engine to replay mode. Run consumes the exchange
// history through the backtest runner instead of polling, and the paper
// wallet executes the fills.
func WithBacktest(wallet *exchange.Paper) Option {
	return func(engine *Engine) {
		engine.backtest = true
		opt := WithPaperWallet(wallet)
		opt(engine)
	}
}

// WithLedger sets the trade ledger, by default the engine opens a local
// file called tideshift.db and closes it when Run returns
func WithLedger(led core.Ledger) Option {
	return func(engine *Engine) {
		engine.ledger = led
	}
}

// WithLogger replaces the default logger for this engine
func WithLogger(log logger.Logger) Option {
	return func(engine *Engine) {
		engine.log = log
	}
}

// WithLogLevel sets the log level. eg: logger.DebugLevel, logger.InfoLevel, logger.WarnLevel, logger.ErrorLevel, logger.FatalLevel
func WithLogLevel(level logger.Level) Option {
	return func(engine *Engine) {
		engine.log.SetLevel(level)
	}
}

// WithNotifier registers a notifier to the engine, currently only email and telegram are supported
func WithNotifier(notifier core.Notifier) Option {
	return func(engine *Engine) {
		engine.notifier = notifier
	}
}

// WithCandleSink subscribes a consumer to every fresh closed candle
func WithCandleSink(sink scheduler.CandleSink) Option {
	return func(engine *Engine) {
		engine.pendingSinks = append(engine.pendingSinks, sink)
	}
}

// WithPaperWallet sets the paper wallet for the engine (used for backtesting and live simulation)
func WithPaperWallet(wallet *exchange.Paper) Option {
	return func(engine *Engine) {
		engine.paperWallet = wallet
	}
}
