package backtesting

import (
	"context"
	"fmt"
	"time"

	"github.com/raykavin/tideshift/pkg/core"
	"github.com/raykavin/tideshift/pkg/indicator"
	"github.com/raykavin/tideshift/pkg/logger"
	"github.com/raykavin/tideshift/pkg/regime"
	"github.com/raykavin/tideshift/pkg/scheduler"
	"github.com/schollz/progressbar/v3"
)

// backtestFrameSize keeps the rolling window at the size the indicator stack
// was tuned on, matching the live scheduler's window
const backtestFrameSize = 500

// Runner replays historical candles through the same pipeline, regime
// machine and processor the live scheduler drives. Candles from every pair
// go through one priority queue so the shared budget fills in global time
// order, the sequence it would have live. The ledger's processed watermark
// is honored, so rerunning against the same store resumes instead of
// double-filling.
type Runner struct {
	cfg       core.Config
	feeder    core.Feeder
	ledger    core.Ledger
	proc      scheduler.Processor
	detector  *regime.Detector
	pipe      *indicator.Pipeline
	log       logger.Logger
	timeframe string

	sinks []scheduler.CandleSink
}

// NewRunner creates a replay runner for the given timeframe
func NewRunner(
	cfg core.Config,
	feeder core.Feeder,
	ledger core.Ledger,
	proc scheduler.Processor,
	detector *regime.Detector,
	timeframe string,
	log logger.Logger,
) (*Runner, error) {

	pipe, err := indicator.NewPipeline(cfg, timeframe)
	if err != nil {
		return nil, err
	}

	return &Runner{
		cfg:       cfg,
		feeder:    feeder,
		ledger:    ledger,
		proc:      proc,
		detector:  detector,
		pipe:      pipe,
		log:       log,
		timeframe: timeframe,
	}, nil
}

// AddCandleSink registers a consumer for every replayed candle. Sinks run
// before the pipeline, in registration order.
func (r *Runner) AddCandleSink(sink scheduler.CandleSink) {
	r.sinks = append(r.sinks, sink)
}

// Run replays every candle the feeder serves for the given pairs. Use the
// feeder to bound the range; CSVFeed.Limit trims to a trailing duration.
func (r *Runner) Run(ctx context.Context, pairs ...string) error {
	if len(pairs) == 0 {
		return fmt.Errorf("no pairs to replay")
	}

	queue := core.NewPriorityQueue(nil)
	frames := make(map[string]*scheduler.Frame, len(pairs))

	for _, pair := range pairs {
		candles, err := r.feeder.CandlesByPeriod(ctx, pair, r.timeframe, time.Unix(0, 0), farFuture())
		if err != nil {
			return fmt.Errorf("load %s: %w", pair, err)
		}
		if len(candles) == 0 {
			return fmt.Errorf("no candles for %s %s", pair, r.timeframe)
		}

		if err := r.ledger.AddSymbol(pair); err != nil {
			return fmt.Errorf("track %s: %w", pair, err)
		}

		for _, candle := range candles {
			queue.Push(candle)
		}
		frames[pair] = scheduler.NewFrame(pair, r.frameLimit())
	}

	r.log.Infof("[SETUP] Replaying %d candles of %s across %d pairs",
		queue.Len(), r.timeframe, len(pairs))

	bar := progressbar.Default(int64(queue.Len()))

	for queue.Len() > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		candle := queue.Pop().(core.Candle)

		if err := r.step(frames[candle.Pair], candle); err != nil {
			return err
		}

		if err := bar.Add(1); err != nil {
			r.log.Warnf("Failed to update progress bar: %s", err.Error())
		}
	}

	if err := bar.Close(); err != nil {
		r.log.Warnf("Failed to close progress bar: %s", err.Error())
	}

	return nil
}

// step mirrors the live tick: watermark dedup, sinks, pipeline fill, regime
// evaluation once the window is warm, and the processor. Unlike the live
// loop a processor error aborts the replay; a backtest that cannot commit
// has nothing useful to report.
func (r *Runner) step(frame *scheduler.Frame, candle core.Candle) error {
	frame.Update(candle)

	last, err := r.ledger.LastProcessed(candle.Pair)
	if err == nil && !last.IsZero() && !candle.Time.After(last) {
		return nil
	}

	for _, sink := range r.sinks {
		sink(candle)
	}

	r.pipe.Fill(frame.Dataframe())
	snap := r.pipe.Snap(frame.Dataframe())

	state, known := r.detector.State(candle.Pair)
	if snap.Ready {
		state = r.detector.Evaluate(candle.Pair, snap.ADX, candle.Time)
	} else if !known {
		state = core.RegimeState{
			Symbol:    candle.Pair,
			Mode:      core.RegimeTransition,
			EnteredAt: candle.Time,
			ADX:       snap.ADX,
			UpdatedAt: candle.Time,
		}
	}

	if _, err := r.proc.ProcessCandle(snap, state); err != nil {
		return fmt.Errorf("process %s at %s: %w", candle.Pair, candle.Time, err)
	}

	return nil
}

func (r *Runner) frameLimit() int {
	if warmup := r.pipe.WarmupPeriod(); warmup > backtestFrameSize {
		return warmup
	}
	return backtestFrameSize
}

func farFuture() time.Time {
	return time.Now().AddDate(100, 0, 0)
}
