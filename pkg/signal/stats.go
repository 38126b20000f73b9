package signal

import (
	"sort"
	"time"

	"github.com/raykavin/tideshift/pkg/core"
	"gonum.org/v1/gonum/stat"
)

// Stats summarizes the recorded signal history: how often each decision
// kind fired and which filters blocked the buys that never happened.
type Stats struct {
	Total     int
	Buys      int
	Sells     int
	Holds     int
	LastBuyAt time.Time
	Blocked   []BlockCount
	Recent    []core.SignalRecord
}

// BlockCount is one block reason with its occurrence count
type BlockCount struct {
	Reason string
	Count  int
}

// ComputeStats folds the signal history into aggregate counters and keeps
// the recentN newest records for display. Records are expected oldest first.
func ComputeStats(records []core.SignalRecord, recentN int) Stats {
	s := Stats{Total: len(records)}

	blocked := make(map[string]int)
	for _, r := range records {
		switch r.Signal {
		case core.SignalBuy:
			s.Buys++
			if r.CandleTime.After(s.LastBuyAt) {
				s.LastBuyAt = r.CandleTime
			}
		case core.SignalSell:
			s.Sells++
		default:
			s.Holds++
		}

		if r.Blocked() {
			blocked[r.BlockReason]++
		}
	}

	for reason, count := range blocked {
		s.Blocked = append(s.Blocked, BlockCount{Reason: reason, Count: count})
	}
	sort.Slice(s.Blocked, func(i, j int) bool {
		if s.Blocked[i].Count != s.Blocked[j].Count {
			return s.Blocked[i].Count > s.Blocked[j].Count
		}
		return s.Blocked[i].Reason < s.Blocked[j].Reason
	})

	if recentN > 0 && len(records) > 0 {
		start := len(records) - recentN
		if start < 0 {
			start = 0
		}
		s.Recent = records[start:]
	}

	return s
}

// DeltaBucket is one band of the vote delta distribution
type DeltaBucket struct {
	Label string
	Count int
	Share float64
}

// DeltaAnalysis describes how vote deltas distribute relative to the buy
// threshold, to diagnose why a quiet market produces no entries
type DeltaAnalysis struct {
	Samples  int
	Min      int
	Max      int
	Mean     float64
	Median   float64
	Buckets  []DeltaBucket
	BuyReady int
}

// BuyReadyShare returns the fraction of samples at or above the threshold
func (a DeltaAnalysis) BuyReadyShare() float64 {
	if a.Samples == 0 {
		return 0
	}
	return float64(a.BuyReady) / float64(a.Samples)
}

// AnalyzeDeltas computes the vote delta distribution of the signal history
func AnalyzeDeltas(records []core.SignalRecord, buyThreshold int) DeltaAnalysis {
	a := DeltaAnalysis{Samples: len(records)}
	if len(records) == 0 {
		return a
	}

	deltas := make([]float64, len(records))
	a.Min, a.Max = records[0].VotesDelta, records[0].VotesDelta
	for i, r := range records {
		deltas[i] = float64(r.VotesDelta)
		if r.VotesDelta < a.Min {
			a.Min = r.VotesDelta
		}
		if r.VotesDelta > a.Max {
			a.Max = r.VotesDelta
		}
		if r.VotesDelta >= buyThreshold {
			a.BuyReady++
		}
	}

	sort.Float64s(deltas)
	a.Mean = stat.Mean(deltas, nil)
	a.Median = stat.Quantile(0.5, stat.Empirical, deltas, nil)

	bands := []struct {
		label    string
		lo, hi   float64
		openHigh bool
	}{
		{label: "strongly bearish (< -5)", lo: mathInfNeg, hi: -5},
		{label: "bearish (-5 .. -3)", lo: -5, hi: -3},
		{label: "weakly bearish (-3 .. 0)", lo: -3, hi: 0},
		{label: "weakly bullish (0 .. 3)", lo: 0, hi: 3},
		{label: "bullish (3 .. buy)", lo: 3, hi: float64(buyThreshold)},
		{label: "buy ready", lo: float64(buyThreshold), openHigh: true},
	}

	for _, b := range bands {
		count := 0
		for _, d := range deltas {
			if d >= b.lo && (b.openHigh || d < b.hi) {
				count++
			}
		}
		if count == 0 {
			continue
		}
		a.Buckets = append(a.Buckets, DeltaBucket{
			Label: b.label,
			Count: count,
			Share: float64(count) / float64(len(deltas)),
		})
	}

	return a
}

const mathInfNeg = -1 << 30
