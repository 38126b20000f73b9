package position

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/raykavin/tideshift/pkg/exchange"
	"gonum.org/v1/gonum/stat"
)

// Summary collects statistics about realized results for one symbol.
// The engine is long only, so wins and losses are single series.
type Summary struct {
	Symbol      string
	Win         []float64
	WinPercent  []float64
	Lose        []float64
	LosePercent []float64
	Volume      float64
}

// Returns joins the realized results of all closed tranches
func (s Summary) Returns() []float64 {
	return append(append([]float64{}, s.Win...), s.Lose...)
}

// Trades returns the number of realized results recorded
func (s Summary) Trades() int {
	return len(s.Win) + len(s.Lose)
}

// Profit calculates the total realized profit
func (s Summary) Profit() float64 {
	var total float64
	for _, v := range s.Returns() {
		total += v
	}
	return total
}

// SQN (System Quality Number) measures the quality of the result stream
// SQN = sqrt(n) * (average profit / standard deviation)
func (s Summary) SQN() float64 {
	returns := s.Returns()
	if len(returns) == 0 {
		return 0
	}

	mean, stdDev := stat.MeanStdDev(returns, nil)
	if stdDev == 0 || math.IsNaN(stdDev) {
		return 0
	}

	return math.Sqrt(float64(len(returns))) * (mean / stdDev)
}

// Payoff calculates the ratio of average win to average loss
func (s Summary) Payoff() float64 {
	if len(s.WinPercent) == 0 || len(s.LosePercent) == 0 {
		return 0
	}

	avgWin := stat.Mean(s.WinPercent, nil)
	avgLoss := stat.Mean(s.LosePercent, nil)
	if avgLoss == 0 {
		return 0
	}

	return avgWin / math.Abs(avgLoss)
}

// ProfitFactor calculates the ratio of gross profits to gross losses
func (s Summary) ProfitFactor() float64 {
	var grossProfit, grossLoss float64
	for _, v := range s.WinPercent {
		grossProfit += v
	}
	for _, v := range s.LosePercent {
		grossLoss += v
	}

	if grossLoss == 0 {
		return 0
	}

	return grossProfit / math.Abs(grossLoss)
}

// WinRate calculates the percentage of winning results
func (s Summary) WinRate() float64 {
	total := s.Trades()
	if total == 0 {
		return 0
	}

	return float64(len(s.Win)) / float64(total) * 100
}

// SaveReturns writes the percent returns, one per line, to a file
func (s Summary) SaveReturns(filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	for _, value := range s.WinPercent {
		if _, err = file.WriteString(fmt.Sprintf("%.4f\n", value)); err != nil {
			return err
		}
	}

	for _, value := range s.LosePercent {
		if _, err = file.WriteString(fmt.Sprintf("%.4f\n", value)); err != nil {
			return err
		}
	}

	return nil
}

// String formats the summary as a text table
func (s Summary) String() string {
	tableString := &strings.Builder{}
	table := tablewriter.NewWriter(tableString)

	_, quote := exchange.SplitAssetQuote(s.Symbol)

	data := [][]string{
		{"Coin", s.Symbol},
		{"Trades", strconv.Itoa(s.Trades())},
		{"Win", strconv.Itoa(len(s.Win))},
		{"Loss", strconv.Itoa(len(s.Lose))},
		{"% Win", fmt.Sprintf("%.1f", s.WinRate())},
		{"Payoff", fmt.Sprintf("%.1f", s.Payoff()*100)},
		{"Pr.Fact", fmt.Sprintf("%.1f", s.ProfitFactor()*100)},
		{"SQN", fmt.Sprintf("%.2f", s.SQN())},
		{"Profit", fmt.Sprintf("%.4f %s", s.Profit(), quote)},
		{"Volume", fmt.Sprintf("%.4f %s", s.Volume, quote)},
	}

	table.AppendBulk(data)
	table.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_RIGHT})
	table.Render()

	return tableString.String()
}
