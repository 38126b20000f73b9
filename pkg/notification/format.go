package notification

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/raykavin/tideshift/pkg/core"
	"github.com/raykavin/tideshift/pkg/metric"
	"github.com/raykavin/tideshift/pkg/signal"
)

const maxBlockReasonsShown = 5

// renderTable renders rows as a monospace block so telegram's markdown
// keeps the columns aligned
func renderTable(headers []string, rows [][]string) string {
	buffer := bytes.NewBuffer(nil)
	table := tablewriter.NewWriter(buffer)
	table.SetHeader(headers)
	table.AppendBulk(rows)
	table.Render()
	return "```\n" + buffer.String() + "```"
}

func formatSymbolList(tracked []core.TrackedSymbol) string {
	rows := make([][]string, 0, len(tracked))
	for _, symbol := range tracked {
		state := "active"
		if !symbol.Active {
			state = "paused"
		}
		rows = append(rows, []string{
			symbol.Symbol,
			state,
			symbol.AddedAt.UTC().Format("2006-01-02"),
		})
	}

	return "*TRACKED SYMBOLS*\n" + renderTable([]string{"Symbol", "State", "Added"}, rows)
}

func formatStatus(enabled bool, portfolio core.PortfolioState, open []*core.Position, prices map[string]float64) string {
	state := "RUNNING"
	if !enabled {
		state = "PAUSED"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "*STATUS*: `%s`\n", state)
	fmt.Fprintf(&sb, "Free cash: `%.2f` | Equity: `%.2f`\n", portfolio.Balance, portfolio.Equity)
	fmt.Fprintf(&sb, "Realized PnL: `%+.2f` | Win rate: `%.1f%%` | Drawdown: `%.1f%%`\n",
		portfolio.RealizedPnL, portfolio.WinRate()*100, portfolio.Drawdown()*100)

	if len(open) == 0 {
		sb.WriteString("\nNo open positions.")
		return sb.String()
	}

	rows := make([][]string, 0, len(open))
	for _, pos := range open {
		price, ok := prices[pos.Symbol]
		if !ok {
			price = pos.AvgEntryPrice
		}

		rows = append(rows, []string{
			pos.Symbol,
			string(pos.EntryMode),
			core.TrimTrailingZeros(fmt.Sprintf("%.6f", pos.Quantity)),
			fmt.Sprintf("%.4f", pos.AvgEntryPrice),
			fmt.Sprintf("%.4f", price),
			fmt.Sprintf("%+.2f%%", pos.UnrealizedPnLPct(price)*100),
			fmt.Sprintf("%.4f", pos.StopLoss),
			positionFlags(pos),
		})
	}

	sb.WriteString("\n")
	sb.WriteString(renderTable(
		[]string{"Symbol", "Mode", "Qty", "Entry", "Mark", "PnL", "Stop", "Flags"}, rows))
	return sb.String()
}

func positionFlags(pos *core.Position) string {
	var flags []string
	if pos.PartialTPTaken {
		flags = append(flags, "partial")
	}
	if pos.BreakevenActive {
		flags = append(flags, "breakeven")
	}
	if pos.TrailingActive {
		flags = append(flags, "trailing")
	}
	if pos.AveragingCount > 0 {
		flags = append(flags, fmt.Sprintf("avg x%d", pos.AveragingCount))
	}
	if len(flags) == 0 {
		return "-"
	}
	return strings.Join(flags, ",")
}

func formatBalance(account core.Account, portfolio core.PortfolioState) string {
	rows := make([][]string, 0, len(account.Balances))
	for _, balance := range account.Balances {
		rows = append(rows, []string{
			balance.Asset,
			core.TrimTrailingZeros(fmt.Sprintf("%.8f", balance.Free)),
			core.TrimTrailingZeros(fmt.Sprintf("%.8f", balance.Lock)),
		})
	}

	var sb strings.Builder
	sb.WriteString("*BALANCE*\n")
	sb.WriteString(renderTable([]string{"Asset", "Free", "Locked"}, rows))
	fmt.Fprintf(&sb, "\nStart: `%.2f` | Free cash: `%.2f` | Equity: `%.2f`\n",
		portfolio.StartBalance, portfolio.Balance, portfolio.Equity)
	fmt.Fprintf(&sb, "Realized PnL: `%+.2f` (`%d` wins / `%d` losses)",
		portfolio.RealizedPnL, portfolio.WinCount, portfolio.LossCount)
	return sb.String()
}

// formatTrades renders fills newest first. Trades arrive in chronological
// order from the store.
func formatTrades(trades []core.TradeRecord) string {
	rows := make([][]string, 0, len(trades))
	for i := len(trades) - 1; i >= 0; i-- {
		trade := trades[i]
		pnl := "-"
		if trade.Side.IsExit() {
			pnl = fmt.Sprintf("%+.2f", trade.RealizedPnL)
		}
		rows = append(rows, []string{
			trade.CandleTime.UTC().Format("01-02 15:04"),
			string(trade.Side),
			trade.Symbol,
			fmt.Sprintf("%.4f", trade.Price),
			core.TrimTrailingZeros(fmt.Sprintf("%.6f", trade.Quantity)),
			pnl,
		})
	}

	return fmt.Sprintf("*LAST %d TRADES*\n", len(trades)) +
		renderTable([]string{"Time", "Side", "Symbol", "Price", "Qty", "PnL"}, rows)
}

func formatTradeEvent(trade core.TradeRecord) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s - %s\n", sideEmoji(trade.Side), trade.Side, trade.Symbol)
	sb.WriteString("-----\n")
	fmt.Fprintf(&sb, "Price: %s\n", core.FormatWithOptimalPrecision(trade.Price))
	fmt.Fprintf(&sb, "Quantity: %s\n", core.TrimTrailingZeros(fmt.Sprintf("%.6f", trade.Quantity)))
	if trade.Side.IsExit() {
		fmt.Fprintf(&sb, "PnL: %+.2f\n", trade.RealizedPnL)
	}
	if trade.Reason != "" {
		fmt.Fprintf(&sb, "Reason: %s\n", trade.Reason)
	}
	fmt.Fprintf(&sb, "Regime: %s", trade.Regime)
	return sb.String()
}

func sideEmoji(side core.SideType) string {
	switch side {
	case core.SideTypeBuy, core.SideTypeAverageDown, core.SideTypePyramidUp:
		return "🟢"
	case core.SideTypeStopLoss:
		return "🛑"
	case core.SideTypePartialTP, core.SideTypeTakeProfit:
		return "💎"
	case core.SideTypeTrailingStop, core.SideTypeBreakevenStop:
		return "🔻"
	default:
		return "🔴"
	}
}

func formatSignalStats(symbol string, stats signal.Stats) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "*SIGNALS* `%s` (last %d)\n", symbol, stats.Total)
	fmt.Fprintf(&sb, "BUY: `%d` (%.1f%%) | SELL: `%d` (%.1f%%) | HOLD: `%d` (%.1f%%)\n",
		stats.Buys, share(stats.Buys, stats.Total),
		stats.Sells, share(stats.Sells, stats.Total),
		stats.Holds, share(stats.Holds, stats.Total))

	if stats.LastBuyAt.IsZero() {
		sb.WriteString("No BUY signal in the window.\n")
	} else {
		fmt.Fprintf(&sb, "Last BUY: `%s`\n", stats.LastBuyAt.UTC().Format("2006-01-02 15:04"))
	}

	if len(stats.Blocked) > 0 {
		sb.WriteString("\nBlocked entries:\n")
		for i, blocked := range stats.Blocked {
			if i == maxBlockReasonsShown {
				break
			}
			fmt.Fprintf(&sb, "• %s: %dx\n", blocked.Reason, blocked.Count)
		}
	}

	if len(stats.Recent) > 0 {
		sb.WriteString("\nRecent:\n")
		for _, record := range stats.Recent {
			mark := "✅"
			if record.Blocked() {
				mark = "❌"
			}
			fmt.Fprintf(&sb, "%s %s %s (Δ%+d, %s)\n",
				mark, record.CandleTime.UTC().Format("01-02 15:04"),
				record.Signal, record.VotesDelta, record.Regime)
		}
	}

	return strings.TrimRight(sb.String(), "\n")
}

func share(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}

func formatDeltaAnalysis(analysis signal.DeltaAnalysis, buyThreshold int) string {
	var sb strings.Builder
	sb.WriteString("*VOTE DELTA DISTRIBUTION*\n")
	fmt.Fprintf(&sb, "Samples: `%d` | Min: `%+d` | Max: `%+d` | Mean: `%+.1f` | Median: `%+.1f`\n\n",
		analysis.Samples, analysis.Min, analysis.Max, analysis.Mean, analysis.Median)

	for _, bucket := range analysis.Buckets {
		fmt.Fprintf(&sb, "• %s: %d (%.1f%%)\n", bucket.Label, bucket.Count, bucket.Share*100)
	}

	sb.WriteString("\n")
	switch {
	case analysis.BuyReady == 0 && analysis.Max < buyThreshold:
		fmt.Fprintf(&sb, "Max delta `%+d` never reached the buy threshold `%d`; the tape is too quiet for entries.",
			analysis.Max, buyThreshold)
	case analysis.Mean < 0:
		sb.WriteString("Mean delta is negative; bearish tape, the entry filters are holding.")
	default:
		fmt.Fprintf(&sb, "`%d` samples (%.1f%%) at or above the buy threshold.",
			analysis.BuyReady, analysis.BuyReadyShare()*100)
	}
	return sb.String()
}

func formatReasonPerformance(perf []signal.ReasonPerformance) string {
	rows := make([][]string, 0, len(perf))
	for _, p := range perf {
		interval := "-"
		if p.Interval != (metric.BootstrapInterval{}) {
			interval = fmt.Sprintf("%.2f ~ %.2f", p.Interval.Lower, p.Interval.Upper)
		}
		rows = append(rows, []string{
			p.Reason,
			strconv.Itoa(p.Trades),
			fmt.Sprintf("%.0f%%", p.WinRate*100),
			fmt.Sprintf("%+.2f", p.NetPnL),
			interval,
		})
	}

	return "*ENTRY REASON PERFORMANCE*\n" +
		renderTable([]string{"Reason", "Trades", "Win", "PnL", "95% CI"}, rows)
}
