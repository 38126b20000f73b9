// Package notification implements the engine's outbound notifiers and the
// telegram control surface.
package notification

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/raykavin/tideshift/pkg/core"
	"github.com/raykavin/tideshift/pkg/exchange"
	"github.com/raykavin/tideshift/pkg/logger"
	"github.com/raykavin/tideshift/pkg/position"
	"github.com/raykavin/tideshift/pkg/scheduler"
	"github.com/raykavin/tideshift/pkg/signal"
	tb "gopkg.in/tucnak/telebot.v2"
)

// Command pattern regex for argument-taking commands
var (
	addRegexp      = regexp.MustCompile(`/add\s+(?P<symbol>\w+)`)
	removeRegexp   = regexp.MustCompile(`/remove\s+(?P<symbol>\w+)`)
	forceBuyRegexp = regexp.MustCompile(`/force_buy\s+(?P<symbol>\w+)`)
	tradesRegexp   = regexp.MustCompile(`/trades(?:\s+(?P<limit>\d+))?`)
)

const (
	defaultTradesShown = 10
	maxTradesShown     = 50

	// signalStatsWindow bounds how much signal history the analytics
	// commands fold per symbol
	signalStatsWindow  = 500
	recentSignalsShown = 5
)

// telegram implements the core.NotifierWithStart interface
type telegram struct {
	cfg       core.Config
	settings  *core.Settings
	scheduler *scheduler.Scheduler
	manager   *position.Manager
	ledger    core.Ledger
	log       logger.Logger

	defaultMenu *tb.ReplyMarkup
	client      *tb.Bot
}

// Option is a function that configures a telegram instance
type Option func(telegram *telegram)

// NewTelegram creates and initializes a new Telegram control surface
func NewTelegram(
	cfg core.Config,
	settings *core.Settings,
	sched *scheduler.Scheduler,
	manager *position.Manager,
	ledger core.Ledger,
	log logger.Logger,
	options ...Option,
) (core.NotifierWithStart, error) {
	// Initialize menu and poller
	menu := &tb.ReplyMarkup{ResizeReplyKeyboard: true}
	poller := &tb.LongPoller{Timeout: 10 * time.Second}

	// Create user authorization middleware
	userMiddleware := createAuthMiddleware(poller, settings, log)

	// Initialize bot client
	client, err := tb.NewBot(tb.Settings{
		ParseMode: tb.ModeMarkdown,
		Token:     settings.Telegram.Token,
		Poller:    userMiddleware,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	// Setup keyboard and commands
	setupKeyboard(menu)
	if err := setupCommands(client); err != nil {
		return nil, fmt.Errorf("failed to set commands: %w", err)
	}

	bot := &telegram{
		cfg:         cfg,
		settings:    settings,
		scheduler:   sched,
		manager:     manager,
		ledger:      ledger,
		log:         log,
		client:      client,
		defaultMenu: menu,
	}

	// Apply custom options
	for _, option := range options {
		option(bot)
	}

	// Register command handlers
	registerHandlers(client, bot)

	return bot, nil
}

// createAuthMiddleware creates a middleware to validate authorized users
func createAuthMiddleware(poller *tb.LongPoller, settings *core.Settings, log logger.Logger) *tb.MiddlewarePoller {
	return tb.NewMiddlewarePoller(poller, func(u *tb.Update) bool {
		if u.Message == nil || u.Message.Sender == nil {
			log.Error("telegram: no message or sender on update")
			return false
		}

		if slices.Contains(settings.Telegram.Users, int(u.Message.Sender.ID)) {
			return true
		}

		log.Errorf("telegram: unauthorized user %d", u.Message.Sender.ID)
		return false
	})
}

// setupKeyboard configures the reply keyboard layout
func setupKeyboard(menu *tb.ReplyMarkup) {
	var (
		statusBtn   = menu.Text("/status")
		balanceBtn  = menu.Text("/balance")
		tradesBtn   = menu.Text("/trades")
		listBtn     = menu.Text("/list")
		statsBtn    = menu.Text("/signal_stats")
		analysisBtn = menu.Text("/signal_analysis")
		startBtn    = menu.Text("/start")
		stopBtn     = menu.Text("/stop")
	)

	menu.Reply(
		menu.Row(statusBtn, balanceBtn, tradesBtn),
		menu.Row(listBtn, statsBtn, analysisBtn),
		menu.Row(startBtn, stopBtn),
	)
}

// setupCommands configures available bot commands
func setupCommands(client *tb.Bot) error {
	return client.SetCommands([]tb.Command{
		{Text: "/help", Description: "Display help instructions"},
		{Text: "/add", Description: "Track a symbol"},
		{Text: "/remove", Description: "Stop tracking a symbol, closing any open position"},
		{Text: "/list", Description: "List tracked symbols"},
		{Text: "/status", Description: "Trading state and open positions"},
		{Text: "/balance", Description: "Wallet and portfolio balance"},
		{Text: "/trades", Description: "Latest fills"},
		{Text: "/start", Description: "Resume entries"},
		{Text: "/stop", Description: "Pause entries, exits keep running"},
		{Text: "/reset", Description: "Restart the paper portfolio"},
		{Text: "/force_buy", Description: "Open a position bypassing the entry filters"},
		{Text: "/signal_stats", Description: "Signal counters and block reasons"},
		{Text: "/signal_analysis", Description: "Vote distribution and entry reason performance"},
	})
}

// registerHandlers registers all command handlers
func registerHandlers(client *tb.Bot, bot *telegram) {
	client.Handle("/help", bot.HelpHandle)
	client.Handle("/add", bot.AddHandle)
	client.Handle("/remove", bot.RemoveHandle)
	client.Handle("/list", bot.ListHandle)
	client.Handle("/status", bot.StatusHandle)
	client.Handle("/balance", bot.BalanceHandle)
	client.Handle("/trades", bot.TradesHandle)
	client.Handle("/start", bot.StartHandle)
	client.Handle("/stop", bot.StopHandle)
	client.Handle("/reset", bot.ResetHandle)
	client.Handle("/force_buy", bot.ForceBuyHandle)
	client.Handle("/signal_stats", bot.SignalStatsHandle)
	client.Handle("/signal_analysis", bot.SignalAnalysisHandle)
}

// Start begins the Telegram bot and notifies all authorized users
func (t *telegram) Start() {
	go t.client.Start()
	t.sendMessageWithOptions("Bot initialized.", t.defaultMenu)
}

// Notify sends a message to all authorized users
func (t *telegram) Notify(text string) {
	for _, user := range t.settings.Telegram.Users {
		if _, err := t.client.Send(&tb.User{ID: int64(user)}, text); err != nil {
			t.log.Errorf("telegram: failed to send notification: %v", err)
		}
	}
}

// sendMessageWithOptions sends a message to all authorized users with additional options
func (t *telegram) sendMessageWithOptions(text string, options ...interface{}) {
	for _, user := range t.settings.Telegram.Users {
		if _, err := t.client.Send(&tb.User{ID: int64(user)}, text, options...); err != nil {
			t.log.Errorf("telegram: failed to send notification: %v", err)
		}
	}
}

// sendMessage sends a message to a specific user
func (t *telegram) sendMessage(to *tb.User, text string, options ...interface{}) {
	if _, err := t.client.Send(to, text, options...); err != nil {
		t.log.Errorf("telegram: failed to send message: %v", err)
	}
}

// HelpHandle displays available commands
func (t *telegram) HelpHandle(m *tb.Message) {
	commands, err := t.client.GetCommands()
	if err != nil {
		t.log.Errorf("telegram: failed to get commands: %v", err)
		t.OnError(err)
		return
	}

	lines := make([]string, 0, len(commands))
	for _, command := range commands {
		lines = append(lines, fmt.Sprintf("/%s - %s", command.Text, command.Description))
	}

	t.sendMessage(m.Sender, strings.Join(lines, "\n"))
}

// AddHandle starts tracking a new symbol
func (t *telegram) AddHandle(m *tb.Message) {
	match := addRegexp.FindStringSubmatch(m.Text)
	if len(match) == 0 {
		t.sendMessage(m.Sender, "Invalid command.\nExample of usage:\n`/add BTCUSDT`")
		return
	}

	symbol := strings.ToUpper(extractCommandParams(addRegexp, match)["symbol"])
	if err := t.scheduler.AddSymbol(symbol); err != nil {
		t.OnError(fmt.Errorf("add %s: %w", symbol, err))
		return
	}

	t.sendMessage(m.Sender, fmt.Sprintf("Now tracking `%s`.", symbol))
}

// RemoveHandle stops tracking a symbol, closing its position at market first
func (t *telegram) RemoveHandle(m *tb.Message) {
	match := removeRegexp.FindStringSubmatch(m.Text)
	if len(match) == 0 {
		t.sendMessage(m.Sender, "Invalid command.\nExample of usage:\n`/remove BTCUSDT`")
		return
	}

	symbol := strings.ToUpper(extractCommandParams(removeRegexp, match)["symbol"])

	trade, err := t.manager.CloseAtMarket(symbol, "removed")
	if err != nil {
		t.OnError(fmt.Errorf("close %s: %w", symbol, err))
		return
	}

	if err := t.scheduler.RemoveSymbol(symbol); err != nil {
		t.OnError(err)
		return
	}

	message := fmt.Sprintf("Stopped tracking `%s`.", symbol)
	if trade != nil {
		message += fmt.Sprintf("\nPosition closed: `%.6f` @ `%.4f`, PnL `%+.2f`",
			trade.Quantity, trade.Price, trade.RealizedPnL)
	}
	t.sendMessage(m.Sender, message)
}

// ListHandle shows the tracked symbols
func (t *telegram) ListHandle(m *tb.Message) {
	tracked, err := t.ledger.TrackedSymbols()
	if err != nil {
		t.OnError(err)
		return
	}

	if len(tracked) == 0 {
		t.sendMessage(m.Sender, "No symbols tracked. Add one with `/add BTCUSDT`.")
		return
	}

	t.sendMessage(m.Sender, formatSymbolList(tracked))
}

// StatusHandle shows the trading state and the open positions
func (t *telegram) StatusHandle(m *tb.Message) {
	enabled, err := t.ledger.TradingEnabled()
	if err != nil {
		t.OnError(err)
		return
	}

	portfolio, err := t.ledger.PortfolioState()
	if err != nil {
		t.OnError(err)
		return
	}

	open, err := t.ledger.OpenPositions()
	if err != nil {
		t.OnError(err)
		return
	}

	prices := make(map[string]float64, len(open))
	for _, pos := range open {
		if price, ok := t.manager.LastPrice(pos.Symbol); ok {
			prices[pos.Symbol] = price
		}
	}

	t.sendMessage(m.Sender, formatStatus(enabled, portfolio, open, prices))
}

// BalanceHandle shows the broker balances and the portfolio state
func (t *telegram) BalanceHandle(m *tb.Message) {
	account, err := t.manager.Account()
	if err != nil {
		t.OnError(err)
		return
	}

	portfolio, err := t.ledger.PortfolioState()
	if err != nil {
		t.OnError(err)
		return
	}

	t.sendMessage(m.Sender, formatBalance(account, portfolio))
}

// TradesHandle shows the latest fills, newest first
func (t *telegram) TradesHandle(m *tb.Message) {
	limit := defaultTradesShown
	if match := tradesRegexp.FindStringSubmatch(m.Text); len(match) > 0 {
		if raw := extractCommandParams(tradesRegexp, match)["limit"]; raw != "" {
			if n, err := strconv.Atoi(raw); err == nil {
				limit = min(max(n, 1), maxTradesShown)
			}
		}
	}

	trades, err := t.ledger.Trades()
	if err != nil {
		t.OnError(err)
		return
	}

	if len(trades) == 0 {
		t.sendMessage(m.Sender, "No trades registered.")
		return
	}

	if len(trades) > limit {
		trades = trades[len(trades)-limit:]
	}

	t.sendMessage(m.Sender, formatTrades(trades))
}

// StartHandle resumes entries
func (t *telegram) StartHandle(m *tb.Message) {
	enabled, err := t.ledger.TradingEnabled()
	if err != nil {
		t.OnError(err)
		return
	}

	if enabled {
		t.sendMessage(m.Sender, "Trading is already running.", t.defaultMenu)
		return
	}

	if err := t.ledger.SetTradingEnabled(true); err != nil {
		t.OnError(err)
		return
	}

	t.sendMessage(m.Sender, "Trading resumed.", t.defaultMenu)
}

// StopHandle pauses entries; open positions keep their exit protocol
func (t *telegram) StopHandle(m *tb.Message) {
	enabled, err := t.ledger.TradingEnabled()
	if err != nil {
		t.OnError(err)
		return
	}

	if !enabled {
		t.sendMessage(m.Sender, "Trading is already paused.", t.defaultMenu)
		return
	}

	if err := t.ledger.SetTradingEnabled(false); err != nil {
		t.OnError(err)
		return
	}

	t.sendMessage(m.Sender,
		"Trading paused. Open positions keep their exit protocol; new entries are blocked.",
		t.defaultMenu)
}

// ResetHandle closes everything and restarts the paper portfolio. Trading
// must be paused first so the poll loop cannot fill against a half-reset
// state.
func (t *telegram) ResetHandle(m *tb.Message) {
	enabled, err := t.ledger.TradingEnabled()
	if err != nil {
		t.OnError(err)
		return
	}

	if enabled {
		t.sendMessage(m.Sender, "Pause trading with /stop before a reset.")
		return
	}

	if err := t.manager.Reset(); err != nil {
		t.OnError(fmt.Errorf("reset: %w", err))
		return
	}

	t.sendMessage(m.Sender, fmt.Sprintf(
		"Paper state reset. Balance restarted at `%.2f`; trade history kept for audit.",
		t.cfg.InitialBalance))
}

// ForceBuyHandle opens a position bypassing the entry filters. The position
// cap and the cash check still apply.
func (t *telegram) ForceBuyHandle(m *tb.Message) {
	match := forceBuyRegexp.FindStringSubmatch(m.Text)
	if len(match) == 0 {
		t.sendMessage(m.Sender, "Invalid command.\nExample of usage:\n`/force_buy BTCUSDT`")
		return
	}

	symbol := strings.ToUpper(extractCommandParams(forceBuyRegexp, match)["symbol"])

	snap, state, err := t.scheduler.Snapshot(context.Background(), symbol)
	if err != nil {
		t.OnError(fmt.Errorf("force buy %s: %w", symbol, err))
		return
	}

	if !snap.Ready {
		t.sendMessage(m.Sender, fmt.Sprintf(
			"`%s` is still warming up, not enough candles for indicators.", symbol))
		return
	}

	trade, err := t.manager.ForceBuy(snap, state)
	if err != nil {
		t.sendMessage(m.Sender, fmt.Sprintf("Force buy rejected: %v", err))
		return
	}

	t.sendMessage(m.Sender, fmt.Sprintf(
		"*FORCED ENTRY* `%s`\nPrice: `%.4f`\nQuantity: `%.6f`\nInvested: `%.2f`\n\nThis is a debug order, exits follow the normal protocol.",
		symbol, trade.Price, trade.Quantity, trade.Price*trade.Quantity+trade.Commission))
}

// SignalStatsHandle shows per-symbol signal counters and block reasons
func (t *telegram) SignalStatsHandle(m *tb.Message) {
	tracked, err := t.ledger.TrackedSymbols()
	if err != nil {
		t.OnError(err)
		return
	}

	if len(tracked) == 0 {
		t.sendMessage(m.Sender, "No symbols tracked.")
		return
	}

	sections := make([]string, 0, len(tracked))
	for _, symbol := range tracked {
		records, err := t.ledger.Signals(symbol.Symbol, signalStatsWindow)
		if err != nil {
			t.OnError(err)
			return
		}
		if len(records) == 0 {
			continue
		}

		stats := signal.ComputeStats(records, recentSignalsShown)
		sections = append(sections, formatSignalStats(symbol.Symbol, stats))
	}

	if len(sections) == 0 {
		t.sendMessage(m.Sender, "No signals recorded yet.")
		return
	}

	t.sendMessage(m.Sender, strings.Join(sections, "\n\n"))
}

// SignalAnalysisHandle shows the vote delta distribution and the realized
// performance of each entry reason
func (t *telegram) SignalAnalysisHandle(m *tb.Message) {
	records, err := t.ledger.Signals("", 0)
	if err != nil {
		t.OnError(err)
		return
	}

	if len(records) == 0 {
		t.sendMessage(m.Sender, "No signals recorded yet.")
		return
	}

	window := records
	if len(window) > signalStatsWindow {
		window = window[len(window)-signalStatsWindow:]
	}

	message := formatDeltaAnalysis(signal.AnalyzeDeltas(window, t.cfg.MinVotesBuy), t.cfg.MinVotesBuy)

	trades, err := t.ledger.Trades()
	if err != nil {
		t.OnError(err)
		return
	}

	if perf := signal.ComputeReasonPerformance(trades, records); len(perf) > 0 {
		message += "\n\n" + formatReasonPerformance(perf)
	}

	t.sendMessage(m.Sender, message)
}

// OnTrade notifies users about a fill
func (t *telegram) OnTrade(trade core.TradeRecord) {
	t.Notify(formatTradeEvent(trade))
}

// OnError notifies users about errors
func (t *telegram) OnError(err error) {
	var sb strings.Builder
	sb.WriteString("🛑 ERROR\n")

	var orderError *exchange.OrderError
	if errors.As(err, &orderError) {
		sb.WriteString("-----\n")
		fmt.Fprintf(&sb, "Pair: %s\n", orderError.Pair)
		fmt.Fprintf(&sb, "Quantity: %.4f\n", orderError.Quantity)
		sb.WriteString("-----\n")
		sb.WriteString(orderError.Err.Error())

		t.Notify(sb.String())
		return
	}

	sb.WriteString("-----\n")
	sb.WriteString(err.Error())

	t.Notify(sb.String())
}

// Helper function to extract named groups from regex matches
func extractCommandParams(regex *regexp.Regexp, match []string) map[string]string {
	command := make(map[string]string)
	for i, name := range regex.SubexpNames() {
		if i != 0 && name != "" {
			command[name] = match[i]
		}
	}
	return command
}
