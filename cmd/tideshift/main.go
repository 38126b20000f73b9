package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/raykavin/tideshift"
	"github.com/raykavin/tideshift/pkg/backtesting"
	"github.com/raykavin/tideshift/pkg/core"
	"github.com/raykavin/tideshift/pkg/exchange"
	"github.com/raykavin/tideshift/pkg/ledger"
	"github.com/spf13/cobra"
)

const (
	dateLayout = "2006-01-02"
)

// Command line flags
var (
	// Run command flags
	pairs      []string
	database   string
	testnet    bool
	heikinAshi bool

	// Download command flags
	pair       string
	days       int
	startDate  string
	endDate    string
	timeframe  string
	outputFile string
)

func main() {
	// Create root command
	rootCmd := &cobra.Command{
		Use:     "tideshift",
		Short:   "Regime switching trading engine",
		Version: "1.0.0",
	}

	// Add commands
	rootCmd.AddCommand(buildRunCmd())
	rootCmd.AddCommand(buildDownloadCmd())

	// Execute
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the trading engine against binance spot",
		RunE:  runEngine,
	}

	// Add flags
	runCmd.Flags().StringSliceVarP(&pairs, "pair", "p", nil, "Trading pairs (e.g. BTCUSDT,ETHUSDT)")
	runCmd.Flags().StringVarP(&timeframe, "timeframe", "t", "15m", "Candle timeframe (e.g. 15m)")
	runCmd.Flags().StringVarP(&database, "database", "d", "tideshift.db", "Ledger database file")
	runCmd.Flags().BoolVar(&testnet, "testnet", false, "Use the binance spot testnet")
	runCmd.Flags().BoolVar(&heikinAshi, "heikin-ashi", false, "Smooth fetched candles into Heikin-Ashi form")

	// Required flags
	runCmd.MarkFlagRequired("pair")

	return runCmd
}

func runEngine(cmd *cobra.Command, args []string) error {
	cfg, err := core.ConfigFromEnv()
	if err != nil {
		return err
	}

	// Stop cleanly on SIGINT/SIGTERM; the engine drains in-flight ticks
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	settings := &core.Settings{
		Pairs:     pairs,
		Timeframe: timeframe,
		Telegram:  telegramFromEnv(),
	}

	// Initialize exchange
	binanceOptions := make([]exchange.BinanceOption, 0)
	if key := os.Getenv("TIDESHIFT_BINANCE_API_KEY"); key != "" {
		binanceOptions = append(binanceOptions,
			exchange.WithBinanceCredentials(key, os.Getenv("TIDESHIFT_BINANCE_API_SECRET")))
	}
	if testnet {
		binanceOptions = append(binanceOptions, exchange.WithTestNet())
	}
	if heikinAshi {
		binanceOptions = append(binanceOptions, exchange.WithHeikinAshiCandles())
	}

	exch, err := exchange.NewBinance(ctx, tideshift.DefaultLog, binanceOptions...)
	if err != nil {
		return err
	}

	led, err := ledger.FromFile(database, cfg)
	if err != nil {
		return err
	}
	defer led.Close()

	engine, err := tideshift.NewEngine(ctx, cfg, settings, exch,
		tideshift.WithLedger(led),
	)
	if err != nil {
		return err
	}

	return engine.Run(ctx)
}

// telegramFromEnv enables the control surface when a token and at least
// one authorized user are configured
func telegramFromEnv() core.TelegramSettings {
	token := os.Getenv("TIDESHIFT_TELEGRAM_TOKEN")
	users := parseTelegramUsers(os.Getenv("TIDESHIFT_TELEGRAM_USERS"))

	return core.TelegramSettings{
		Enabled: token != "" && len(users) > 0,
		Token:   token,
		Users:   users,
	}
}

// parseTelegramUsers parses a comma separated list of telegram user IDs
func parseTelegramUsers(raw string) []int {
	if raw == "" {
		return nil
	}

	users := make([]int, 0)
	for _, field := range strings.Split(raw, ",") {
		id, err := strconv.Atoi(strings.TrimSpace(field))
		if err != nil {
			continue
		}
		users = append(users, id)
	}
	return users
}

func buildDownloadCmd() *cobra.Command {
	downloadCmd := &cobra.Command{
		Use:   "download",
		Short: "Download historical data",
		RunE:  runDownload,
	}

	// Add flags
	downloadCmd.Flags().StringVarP(&pair, "pair", "p", "", "Trading pair (e.g. BTCUSDT)")
	downloadCmd.Flags().IntVarP(&days, "days", "d", 0, "Number of days to download (default 30 days)")
	downloadCmd.Flags().StringVarP(&startDate, "start", "s", "", "Start date (e.g. 2021-12-01)")
	downloadCmd.Flags().StringVarP(&endDate, "end", "e", "", "End date (e.g. 2020-12-31)")
	downloadCmd.Flags().StringVarP(&timeframe, "timeframe", "t", "", "Timeframe (e.g. 1h)")
	downloadCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file path (e.g. ./btc.csv)")

	// Required flags
	downloadCmd.MarkFlagRequired("pair")
	downloadCmd.MarkFlagRequired("timeframe")
	downloadCmd.MarkFlagRequired("output")

	return downloadCmd
}

func runDownload(cmd *cobra.Command, args []string) error {
	// Download only needs the public market data endpoints
	exch, err := exchange.NewBinance(cmd.Context(), tideshift.DefaultLog)
	if err != nil {
		return err
	}

	// Build download options
	options, err := buildDownloadOptions()
	if err != nil {
		return err
	}

	// Run the download
	return backtesting.NewDownloader(exch, tideshift.DefaultLog).Download(
		cmd.Context(),
		pair,
		timeframe,
		outputFile,
		options...,
	)
}

func buildDownloadOptions() ([]backtesting.Option, error) {
	var options []backtesting.Option

	// Add days option if specified
	if days > 0 {
		options = append(options, backtesting.WithDays(days))
	}

	// Handle date range options
	if startDate != "" || endDate != "" {
		// Both must be provided together
		if startDate == "" || endDate == "" {
			return nil, fmt.Errorf("START and END dates must be provided together")
		}

		// Parse dates
		start, err := time.Parse(dateLayout, startDate)
		if err != nil {
			return nil, fmt.Errorf("invalid start date format: %w", err)
		}

		end, err := time.Parse(dateLayout, endDate)
		if err != nil {
			return nil, fmt.Errorf("invalid end date format: %w", err)
		}

		options = append(options, backtesting.WithInterval(start, end))
	}

	return options, nil
}
