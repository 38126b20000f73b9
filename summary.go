package tideshift

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/aybabtme/uniplot/histogram"
	"github.com/olekukonko/tablewriter"
	"github.com/raykavin/tideshift/pkg/metric"
)

// Summary displays all realized results, accuracy and engine metrics in stdout
// To access the raw data, you may access `engine.Manager().Results`
func (e *Engine) Summary() {
	var (
		total  float64
		wins   int
		loses  int
		volume float64
		sqn    float64
	)

	buffer := bytes.NewBuffer(nil)
	table := tablewriter.NewWriter(buffer)
	table.SetHeader([]string{"Pair", "Trades", "Win", "Loss", "% Win", "Payoff", "Pr Fact.", "SQN", "Profit", "Volume"})
	table.SetFooterAlignment(tablewriter.ALIGN_RIGHT)
	avgPayoff := 0.0
	avgProfitFactor := 0.0

	results := e.stack.Manager().Results
	symbols := make([]string, 0, len(results))
	for symbol := range results {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	returns := make([]float64, 0)
	for _, symbol := range symbols {
		summary := results[symbol]
		trades := summary.Trades()
		avgPayoff += summary.Payoff() * float64(trades)
		avgProfitFactor += summary.ProfitFactor() * float64(trades)
		table.Append([]string{
			summary.Symbol,
			strconv.Itoa(trades),
			strconv.Itoa(len(summary.Win)),
			strconv.Itoa(len(summary.Lose)),
			fmt.Sprintf("%.1f %%", summary.WinRate()),
			fmt.Sprintf("%.3f", summary.Payoff()),
			fmt.Sprintf("%.3f", summary.ProfitFactor()),
			fmt.Sprintf("%.1f", summary.SQN()),
			fmt.Sprintf("%.2f", summary.Profit()),
			fmt.Sprintf("%.2f", summary.Volume),
		})
		total += summary.Profit()
		sqn += summary.SQN()
		wins += len(summary.Win)
		loses += len(summary.Lose)
		volume += summary.Volume

		returns = append(returns, summary.WinPercent...)
		returns = append(returns, summary.LosePercent...)
	}

	if wins+loses == 0 {
		fmt.Println("no closed trades in the session")
		e.portfolioSummary()
		return
	}

	table.SetFooter([]string{
		"TOTAL",
		strconv.Itoa(wins + loses),
		strconv.Itoa(wins),
		strconv.Itoa(loses),
		fmt.Sprintf("%.1f %%", float64(wins)/float64(wins+loses)*100),
		fmt.Sprintf("%.3f", avgPayoff/float64(wins+loses)),
		fmt.Sprintf("%.3f", avgProfitFactor/float64(wins+loses)),
		fmt.Sprintf("%.1f", sqn/float64(len(results))),
		fmt.Sprintf("%.2f", total),
		fmt.Sprintf("%.2f", volume),
	})
	table.Render()

	fmt.Println(buffer.String())
	fmt.Println("------ RETURN -------")
	totalReturn := 0.0
	returnsPercent := make([]float64, len(returns))
	for i, p := range returns {
		returnsPercent[i] = p * 100
		totalReturn += p
	}
	hist := histogram.Hist(15, returnsPercent)
	histogram.Fprint(os.Stdout, hist, histogram.Linear(10))
	fmt.Println()

	fmt.Println("------ CONFIDENCE INTERVAL (95%) -------")
	for _, symbol := range symbols {
		summary := results[symbol]
		fmt.Printf("| %s |\n", symbol)
		returns := append(append([]float64{}, summary.WinPercent...), summary.LosePercent...)
		returnsInterval := metric.Bootstrap(returns, metric.Mean, 10000, 0.95)
		payoffInterval := metric.Bootstrap(returns, metric.Payoff, 10000, 0.95)
		profitFactorInterval := metric.Bootstrap(returns, metric.ProfitFactor, 10000, 0.95)

		fmt.Printf("RETURN:      %.2f%% (%.2f%% ~ %.2f%%)\n",
			returnsInterval.Mean*100, returnsInterval.Lower*100, returnsInterval.Upper*100)
		fmt.Printf("PAYOFF:      %.2f (%.2f ~ %.2f)\n",
			payoffInterval.Mean, payoffInterval.Lower, payoffInterval.Upper)
		fmt.Printf("PROF.FACTOR: %.2f (%.2f ~ %.2f)\n",
			profitFactorInterval.Mean, profitFactorInterval.Lower, profitFactorInterval.Upper)
	}

	fmt.Println()
	e.portfolioSummary()
}

// portfolioSummary prints the authoritative cash record from the ledger
func (e *Engine) portfolioSummary() {
	portfolio, err := e.ledger.PortfolioState()
	if err != nil {
		e.log.Errorf("read portfolio state: %v", err)
		return
	}

	profit := portfolio.Equity - portfolio.StartBalance

	fmt.Println("----- PORTFOLIO -----")
	fmt.Printf("START BALANCE = %.2f\n", portfolio.StartBalance)
	fmt.Printf("FREE CASH     = %.2f\n", portfolio.Balance)
	fmt.Printf("FINAL EQUITY  = %.2f\n", portfolio.Equity)
	if portfolio.StartBalance > 0 {
		fmt.Printf("GROSS PROFIT  = %f (%.2f%%)\n", profit, profit/portfolio.StartBalance*100)
	}
	fmt.Println()

	fmt.Println("------ RISK -------")
	fmt.Printf("DRAWDOWN FROM PEAK = %.2f %%\n", portfolio.Drawdown()*100)
	fmt.Println()
}

// SaveReturns writes the realized returns of each pair as CSV files in the given directory
func (e *Engine) SaveReturns(outputDir string) error {
	for _, summary := range e.stack.Manager().Results {
		outputFile := fmt.Sprintf("%s/%s.csv", outputDir, summary.Symbol)
		if err := summary.SaveReturns(outputFile); err != nil {
			return err
		}
	}
	return nil
}
