package indicator

import (
	"time"

	"github.com/raykavin/tideshift/pkg/core"
)

// Metadata keys written by the pipeline. Downstream packages read these
// instead of recomputing series.
const (
	KeyEMAFast    = "ema_fast"
	KeyEMASlow    = "ema_slow"
	KeyEMALong    = "ema_long"
	KeyRSI        = "rsi"
	KeyMACD       = "macd"
	KeyMACDSignal = "macd_signal"
	KeyMACDHist   = "macd_hist"
	KeyADX        = "adx"
	KeyPlusDI     = "plus_di"
	KeyMinusDI    = "minus_di"
	KeyATRPct     = "atr_pct"
	KeyBBUpper    = "bb_upper"
	KeyBBMiddle   = "bb_middle"
	KeyBBLower    = "bb_lower"
	KeyZScore     = "zscore"
	KeyVolumeMean = "volume_mean"
	KeyWindowLow  = "window_low"
)

// Snapshot is the latest value of every pipeline output, sampled once per
// closed candle. Ready is false until the dataframe has warmed up; consumers
// must hold off trading decisions while it is false.
type Snapshot struct {
	Pair  string
	Time  time.Time
	Ready bool

	Close     float64
	PrevClose float64
	Volume    float64

	EMAFast      float64
	EMASlow      float64
	EMALong      float64
	EMALongSlope float64
	EMACrossedUp bool

	RSI     float64
	PrevRSI float64

	MACD            float64
	MACDSignal      float64
	MACDHist        float64
	MACDCrossedUp   bool
	MACDCrossedDown bool

	ADX     float64
	PlusDI  float64
	MinusDI float64

	// ATR as a fraction of the close, not an absolute price range
	ATRPct float64

	BBUpper  float64
	BBMiddle float64
	BBLower  float64

	ZScore     float64
	VolumeMean float64

	// Lowest low over roughly one day of candles
	WindowLow float64
}

// Pipeline computes the indicator set on a dataframe and samples it into
// snapshots. One pipeline instance serves one timeframe.
type Pipeline struct {
	cfg        core.Config
	lowCandles int
}

func NewPipeline(cfg core.Config, timeframe string) (*Pipeline, error) {
	lowCandles, err := cfg.LowWindowCandles(timeframe)
	if err != nil {
		return nil, err
	}

	return &Pipeline{cfg: cfg, lowCandles: lowCandles}, nil
}

// WarmupPeriod returns the number of candles needed before Fill produces a
// complete indicator set
func (p *Pipeline) WarmupPeriod() int {
	return p.cfg.WarmupPeriod()
}

// Fill computes every indicator series over the dataframe and stores them
// in df.Metadata. It is a no-op until the dataframe has warmed up.
func (p *Pipeline) Fill(df *core.Dataframe) {
	if df.Len() < p.WarmupPeriod() {
		return
	}

	closes := df.Close.Values()
	highs := df.High.Values()
	lows := df.Low.Values()
	volumes := df.Volume.Values()

	df.Metadata[KeyEMAFast] = EMA(closes, p.cfg.EMAFastPeriod)
	df.Metadata[KeyEMASlow] = EMA(closes, p.cfg.EMASlowPeriod)
	df.Metadata[KeyEMALong] = EMA(closes, p.cfg.EMALongPeriod)
	df.Metadata[KeyRSI] = RSI(closes, p.cfg.RSIPeriod)

	macd, macdSignal, macdHist := MACD(closes, p.cfg.EMAFastPeriod, p.cfg.EMASlowPeriod, p.cfg.MACDSignalPeriod)
	df.Metadata[KeyMACD] = macd
	df.Metadata[KeyMACDSignal] = macdSignal
	df.Metadata[KeyMACDHist] = macdHist

	df.Metadata[KeyADX] = ADX(highs, lows, closes, p.cfg.ADXPeriod)
	df.Metadata[KeyPlusDI] = PlusDI(highs, lows, closes, p.cfg.ADXPeriod)
	df.Metadata[KeyMinusDI] = MinusDI(highs, lows, closes, p.cfg.ADXPeriod)

	atr := ATR(highs, lows, closes, p.cfg.ATRPeriod)
	atrPct := make([]float64, len(atr))
	for i := range atr {
		if closes[i] > 0 {
			atrPct[i] = atr[i] / closes[i]
		}
	}
	df.Metadata[KeyATRPct] = atrPct

	upper, middle, lower := BB(closes, p.cfg.BBPeriod, p.cfg.BBStdDev, TypeSMA)
	df.Metadata[KeyBBUpper] = upper
	df.Metadata[KeyBBMiddle] = middle
	df.Metadata[KeyBBLower] = lower

	sma := SMA(closes, p.cfg.ZScoreWindow)
	std := StdDev(closes, p.cfg.ZScoreWindow, 1.0)
	zscore := make([]float64, len(closes))
	for i := range closes {
		if std[i] > 0 {
			zscore[i] = (closes[i] - sma[i]) / std[i]
		}
	}
	df.Metadata[KeyZScore] = zscore

	df.Metadata[KeyVolumeMean] = SMA(volumes, p.cfg.VolumeMeanPeriod)

	lowWindow := p.lowCandles
	if lowWindow > df.Len() {
		lowWindow = df.Len()
	}
	df.Metadata[KeyWindowLow] = Min(lows, lowWindow)
}

// Snap samples the latest pipeline values. The returned snapshot has
// Ready=false when the dataframe is still warming up.
func (p *Pipeline) Snap(df *core.Dataframe) Snapshot {
	snap := Snapshot{
		Pair: df.Pair,
		Time: df.LastTime(),
	}

	if df.Len() > 0 {
		snap.Close = df.Close.Last(0)
		snap.Volume = df.Volume.Last(0)
	}
	if df.Len() > 1 {
		snap.PrevClose = df.Close.Last(1)
	}

	emaLong, ok := df.Metadata[KeyEMALong]
	if df.Len() < p.WarmupPeriod() || !ok || emaLong.Length() != df.Len() {
		return snap
	}

	emaFast := df.Metadata[KeyEMAFast]
	emaSlow := df.Metadata[KeyEMASlow]
	rsi := df.Metadata[KeyRSI]
	macd := df.Metadata[KeyMACD]
	macdSignal := df.Metadata[KeyMACDSignal]

	snap.EMAFast = emaFast.Last(0)
	snap.EMASlow = emaSlow.Last(0)
	snap.EMALong = emaLong.Last(0)
	snap.EMACrossedUp = emaFast.CrossoverWithin(emaSlow, p.cfg.CrossLookback)

	if base := emaLong.Last(p.cfg.SlopeLookback); base != 0 {
		snap.EMALongSlope = (emaLong.Last(0) - base) / base
	}

	snap.RSI = rsi.Last(0)
	snap.PrevRSI = rsi.Last(1)

	snap.MACD = macd.Last(0)
	snap.MACDSignal = macdSignal.Last(0)
	snap.MACDHist = df.Metadata[KeyMACDHist].Last(0)
	snap.MACDCrossedUp = macd.CrossoverWithin(macdSignal, p.cfg.CrossLookback)
	snap.MACDCrossedDown = macd.CrossunderWithin(macdSignal, p.cfg.CrossLookback)

	snap.ADX = df.Metadata[KeyADX].Last(0)
	snap.PlusDI = df.Metadata[KeyPlusDI].Last(0)
	snap.MinusDI = df.Metadata[KeyMinusDI].Last(0)

	snap.ATRPct = df.Metadata[KeyATRPct].Last(0)

	snap.BBUpper = df.Metadata[KeyBBUpper].Last(0)
	snap.BBMiddle = df.Metadata[KeyBBMiddle].Last(0)
	snap.BBLower = df.Metadata[KeyBBLower].Last(0)

	snap.ZScore = df.Metadata[KeyZScore].Last(0)
	snap.VolumeMean = df.Metadata[KeyVolumeMean].Last(0)
	snap.WindowLow = df.Metadata[KeyWindowLow].Last(0)

	snap.Ready = true

	return snap
}
