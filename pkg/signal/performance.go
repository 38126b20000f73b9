package signal

import (
	"fmt"
	"sort"
	"time"

	"github.com/raykavin/tideshift/pkg/core"
	"github.com/raykavin/tideshift/pkg/metric"
)

// ReasonPerformance aggregates the realized outcomes of exits whose entry
// carried a given vote reason
type ReasonPerformance struct {
	Reason  string
	Trades  int
	Wins    int
	NetPnL  float64
	WinRate float64

	// Interval is the bootstrap confidence interval of the mean realized
	// PnL, computed only when the sample is large enough
	Interval metric.BootstrapInterval
}

const (
	// minIntervalSamples guards the bootstrap against tiny samples
	minIntervalSamples = 8

	intervalIterations = 2000
	intervalConfidence = 0.95
)

// ComputeReasonPerformance joins exit fills to the vote reasons recorded at
// their entry and aggregates realized PnL per reason. Both slices are
// expected in chronological order; entries reset the attribution for their
// symbol, partial exits keep it, full exits clear it.
func ComputeReasonPerformance(trades []core.TradeRecord, signals []core.SignalRecord) []ReasonPerformance {
	reasonsAt := make(map[string][]string)
	for _, s := range signals {
		if len(s.TopReasons) > 0 {
			reasonsAt[entryKey(s.Symbol, s.CandleTime)] = s.TopReasons
		}
	}

	entered := make(map[string][]string)
	outcomes := make(map[string][]float64)

	for _, t := range trades {
		switch {
		case t.Side == core.SideTypeBuy:
			entered[t.Symbol] = reasonsAt[entryKey(t.Symbol, t.CandleTime)]

		case t.Side.IsExit():
			for _, reason := range entered[t.Symbol] {
				outcomes[reason] = append(outcomes[reason], t.RealizedPnL)
			}
			if t.Side != core.SideTypePartialTP {
				delete(entered, t.Symbol)
			}
		}
	}

	perf := make([]ReasonPerformance, 0, len(outcomes))
	for reason, pnls := range outcomes {
		p := ReasonPerformance{
			Reason:  reason,
			Trades:  len(pnls),
			WinRate: metric.WinRate(pnls),
		}
		for _, pnl := range pnls {
			p.NetPnL += pnl
			if pnl > 0 {
				p.Wins++
			}
		}

		if len(pnls) >= minIntervalSamples {
			p.Interval = metric.Bootstrap(pnls, metric.Mean, intervalIterations, intervalConfidence)
		}

		perf = append(perf, p)
	}

	sort.Slice(perf, func(i, j int) bool {
		if perf[i].Trades != perf[j].Trades {
			return perf[i].Trades > perf[j].Trades
		}
		return perf[i].Reason < perf[j].Reason
	})

	return perf
}

func entryKey(symbol string, at time.Time) string {
	return fmt.Sprintf("%s:%d", symbol, at.UnixMilli())
}
