package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/StudioSol/set"
	"github.com/jpillora/backoff"
	"github.com/raykavin/tideshift/pkg/core"
	"github.com/raykavin/tideshift/pkg/indicator"
	"github.com/raykavin/tideshift/pkg/logger"
	"github.com/raykavin/tideshift/pkg/regime"
	"github.com/raykavin/tideshift/pkg/signal"
)

const (
	// pollBatch is how many trailing candles each tick fetches; gaps wider
	// than this trigger a full window rebuild
	pollBatch = 5

	// maxConsecutiveFailures is how many failed ticks in a row deactivate a
	// symbol
	maxConsecutiveFailures = 5

	// minFrameSize keeps the rolling window at the size the indicator stack
	// was tuned on even when the warmup period is short
	minFrameSize = 500
)

// CandleSink consumes every fresh closed candle before the pipeline runs
type CandleSink func(core.Candle)

// Processor runs the trading pipeline for one closed candle
type Processor interface {
	ProcessCandle(snap indicator.Snapshot, regime core.RegimeState) (signal.Decision, error)
}

// Scheduler polls the exchange for closed candles on every tracked symbol
// and drives the pipeline. One worker pool is shared across symbols: at most
// MaxConcurrentFetches ticks run at once, and a symbol never has two ticks
// in flight. A tick that fetches an already processed candle is dropped
// before it reaches the pipeline, so restarts and overlapping polls are
// harmless.
type Scheduler struct {
	cfg      core.Config
	feeder   core.Feeder
	ledger   core.Ledger
	proc     Processor
	detector *regime.Detector
	pipe     *indicator.Pipeline
	log      logger.Logger

	timeframe string

	mu       sync.Mutex
	symbols  *set.LinkedHashSetString
	inactive map[string]bool
	frames   map[string]*Frame
	inflight map[string]bool
	failures map[string]int
	sinks    []CandleSink
	notifier core.Notifier
	running  bool

	sem    chan struct{}
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New creates a scheduler polling the given timeframe
func New(
	cfg core.Config,
	feeder core.Feeder,
	ledger core.Ledger,
	proc Processor,
	detector *regime.Detector,
	timeframe string,
	log logger.Logger,
) (*Scheduler, error) {

	pipe, err := indicator.NewPipeline(cfg, timeframe)
	if err != nil {
		return nil, err
	}

	return &Scheduler{
		cfg:       cfg,
		feeder:    feeder,
		ledger:    ledger,
		proc:      proc,
		detector:  detector,
		pipe:      pipe,
		log:       log,
		timeframe: timeframe,
		symbols:   set.NewLinkedHashSetString(),
		inactive:  make(map[string]bool),
		frames:    make(map[string]*Frame),
		inflight:  make(map[string]bool),
		failures:  make(map[string]int),
		sem:       make(chan struct{}, cfg.MaxConcurrentFetches),
	}, nil
}

// AddCandleSink registers a consumer for every fresh closed candle. Sinks
// run before the pipeline, in registration order.
func (s *Scheduler) AddCandleSink(sink CandleSink) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sinks = append(s.sinks, sink)
}

// SetNotifier configures the notifier used for symbol deactivation and
// pipeline errors
func (s *Scheduler) SetNotifier(notifier core.Notifier) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.notifier = notifier
}

// Start loads the tracked symbols from the ledger, restores their regime
// states, and begins polling. It returns immediately; Stop waits for the
// in-flight ticks to finish their commits.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("scheduler already started")
	}
	s.running = true
	s.mu.Unlock()

	tracked, err := s.ledger.TrackedSymbols()
	if err != nil {
		return fmt.Errorf("tracked symbols: %w", err)
	}

	var states []core.RegimeState

	s.mu.Lock()
	for _, t := range tracked {
		s.symbols.Add(t.Symbol)
		if !t.Active {
			s.inactive[t.Symbol] = true
		}

		if st, err := s.ledger.RegimeState(t.Symbol); err == nil && st != nil {
			states = append(states, *st)
		}
	}
	s.mu.Unlock()

	s.detector.Restore(states)

	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.loop(ctx)

	s.log.Infof("[SETUP] Scheduler polling %d symbols on %s every %s",
		len(tracked), s.timeframe, s.cfg.PollInterval)

	return nil
}

// Stop cancels the poll loop and waits for in-flight ticks to finish their
// ledger commits
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.running = false
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

// AddSymbol starts tracking a symbol, reactivating it when already known.
// The warmup window is preloaded on the symbol's first tick.
func (s *Scheduler) AddSymbol(symbol string) error {
	symbol = normalizeSymbol(symbol)
	if symbol == "" {
		return errors.New("empty symbol")
	}

	if err := s.ledger.AddSymbol(symbol); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.symbols.Add(symbol)
	delete(s.inactive, symbol)
	delete(s.failures, symbol)

	s.log.Infof("Tracking %s", symbol)
	return nil
}

// RemoveSymbol stops tracking a symbol and drops its in-memory state. The
// caller is responsible for closing any open position first.
func (s *Scheduler) RemoveSymbol(symbol string) error {
	symbol = normalizeSymbol(symbol)

	if err := s.ledger.RemoveSymbol(symbol); err != nil {
		return err
	}

	s.mu.Lock()
	s.symbols.Remove(symbol)
	delete(s.inactive, symbol)
	delete(s.frames, symbol)
	delete(s.failures, symbol)
	s.mu.Unlock()

	s.detector.Forget(symbol)

	s.log.Infof("Stopped tracking %s", symbol)
	return nil
}

// SetSymbolActive pauses or resumes polling for a symbol without dropping
// its history
func (s *Scheduler) SetSymbolActive(symbol string, active bool) error {
	symbol = normalizeSymbol(symbol)

	if err := s.ledger.SetSymbolActive(symbol, active); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if active {
		delete(s.inactive, symbol)
		delete(s.failures, symbol)
	} else {
		s.inactive[symbol] = true
	}

	return nil
}

// Snapshot fetches a fresh candle window for a symbol and returns its
// pipeline snapshot with the regime currently in force, without touching
// the symbol's polling frame or advancing the regime machine. The manual
// entry path uses it to price and shape an order on demand.
func (s *Scheduler) Snapshot(ctx context.Context, symbol string) (indicator.Snapshot, core.RegimeState, error) {
	symbol = normalizeSymbol(symbol)

	ctx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()

	candles, err := s.fetchWithRetry(ctx, symbol, s.frameLimit())
	if err != nil {
		return indicator.Snapshot{}, core.RegimeState{}, err
	}
	if len(candles) == 0 {
		return indicator.Snapshot{}, core.RegimeState{}, fmt.Errorf("no candles returned for %s", symbol)
	}

	frame := NewFrame(symbol, s.frameLimit())
	for _, candle := range candles {
		frame.Update(candle)
	}

	s.pipe.Fill(frame.Dataframe())
	snap := s.pipe.Snap(frame.Dataframe())

	state, known := s.detector.State(symbol)
	if !known {
		state = core.RegimeState{
			Symbol:    symbol,
			Mode:      core.RegimeTransition,
			EnteredAt: snap.Time,
			ADX:       snap.ADX,
			UpdatedAt: snap.Time,
		}
	}

	return snap, state, nil
}

// Symbols returns the tracked symbols in tracking order
func (s *Scheduler) Symbols() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	symbols := make([]string, 0, s.symbols.Length())
	for symbol := range s.symbols.Iter() {
		symbols = append(symbols, symbol)
	}
	return symbols
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pollAll(ctx)
		}
	}
}

// pollAll launches one tick per due symbol. Symbols with a tick still in
// flight are skipped this round.
func (s *Scheduler) pollAll(ctx context.Context) {
	s.mu.Lock()
	var due []string
	for symbol := range s.symbols.Iter() {
		if s.inactive[symbol] || s.inflight[symbol] {
			continue
		}
		s.inflight[symbol] = true
		due = append(due, symbol)
	}
	s.mu.Unlock()

	for _, symbol := range due {
		s.wg.Add(1)
		go s.tick(ctx, symbol)
	}
}

func (s *Scheduler) tick(ctx context.Context, symbol string) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.inflight, symbol)
		s.mu.Unlock()
	}()

	select {
	case s.sem <- struct{}{}:
		defer func() { <-s.sem }()
	case <-ctx.Done():
		return
	}

	tickCtx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()

	frame, err := s.syncFrame(tickCtx, symbol)
	if err != nil {
		if ctx.Err() != nil {
			return // shutting down, not a symbol failure
		}
		s.recordFailure(symbol, err)
		return
	}
	s.clearFailures(symbol)

	if frame.Len() == 0 {
		return
	}
	candle := frame.LastCandle()

	last, err := s.ledger.LastProcessed(symbol)
	if err == nil && !last.IsZero() && !candle.Time.After(last) {
		return // candle already processed
	}

	s.mu.Lock()
	sinks := append([]CandleSink(nil), s.sinks...)
	s.mu.Unlock()

	for _, sink := range sinks {
		sink(candle)
	}

	s.pipe.Fill(frame.Dataframe())
	snap := s.pipe.Snap(frame.Dataframe())

	state, known := s.detector.State(symbol)
	if snap.Ready {
		state = s.detector.Evaluate(symbol, snap.ADX, candle.Time)
	} else if !known {
		state = core.RegimeState{
			Symbol:    symbol,
			Mode:      core.RegimeTransition,
			EnteredAt: candle.Time,
			ADX:       snap.ADX,
			UpdatedAt: candle.Time,
		}
	}

	if _, err := s.proc.ProcessCandle(snap, state); err != nil {
		s.log.Errorf("scheduler: process %s: %v", symbol, err)
		s.notifyError(err)
	}
}

// syncFrame brings the symbol's candle window up to date. An empty frame is
// preloaded with the full window; afterwards each tick fetches a small
// trailing batch and rebuilds the window when a gap exceeds it.
func (s *Scheduler) syncFrame(ctx context.Context, symbol string) (*Frame, error) {
	s.mu.Lock()
	frame, ok := s.frames[symbol]
	if !ok {
		frame = NewFrame(symbol, s.frameLimit())
		s.frames[symbol] = frame
	}
	s.mu.Unlock()

	if frame.Len() == 0 {
		return frame, s.preload(ctx, symbol, frame)
	}

	batch, err := s.fetchWithRetry(ctx, symbol, pollBatch)
	if err != nil {
		return nil, err
	}
	if len(batch) == 0 {
		return nil, fmt.Errorf("no candles returned for %s", symbol)
	}

	if batch[0].Time.After(frame.LastTime()) {
		// missed more candles than one batch covers
		frame.Clear()
		return frame, s.preload(ctx, symbol, frame)
	}

	for _, candle := range batch {
		frame.Update(candle)
	}

	return frame, nil
}

func (s *Scheduler) preload(ctx context.Context, symbol string, frame *Frame) error {
	candles, err := s.fetchWithRetry(ctx, symbol, frame.limit)
	if err != nil {
		return err
	}
	if len(candles) == 0 {
		return fmt.Errorf("no candles returned for %s", symbol)
	}

	s.log.Infof("preloading %d candles for %s-%s", len(candles), symbol, s.timeframe)
	for _, candle := range candles {
		frame.Update(candle)
	}

	return nil
}

// fetchWithRetry polls the feeder until it succeeds or the tick deadline
// expires. The last upstream error is returned, not the deadline error.
func (s *Scheduler) fetchWithRetry(ctx context.Context, symbol string, limit int) ([]core.Candle, error) {
	retry := setupBackoffRetry()

	for {
		candles, err := s.feeder.CandlesByLimit(ctx, symbol, s.timeframe, limit)
		if err == nil {
			return candles, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("fetch %s %s: %w", symbol, s.timeframe, err)
		case <-time.After(retry.Duration()):
		}
	}
}

func setupBackoffRetry() *backoff.Backoff {
	return &backoff.Backoff{
		Min:    100 * time.Millisecond,
		Max:    1 * time.Second,
		Jitter: true,
	}
}

// recordFailure counts consecutive failed ticks and deactivates the symbol
// once the limit is hit, with a single notification
func (s *Scheduler) recordFailure(symbol string, err error) {
	s.log.Warnf("scheduler: tick %s failed: %v", symbol, err)

	s.mu.Lock()
	s.failures[symbol]++
	count := s.failures[symbol]
	s.mu.Unlock()

	if count < maxConsecutiveFailures {
		return
	}

	if err := s.SetSymbolActive(symbol, false); err != nil {
		s.log.Errorf("scheduler: deactivate %s: %v", symbol, err)
		return
	}

	s.log.Errorf("scheduler: %s deactivated after %d consecutive failures", symbol, count)
	s.notifyError(fmt.Errorf("%s deactivated after %d consecutive fetch failures, last error: %v",
		symbol, count, err))
}

func (s *Scheduler) clearFailures(symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.failures, symbol)
}

func (s *Scheduler) notifyError(err error) {
	s.mu.Lock()
	notifier := s.notifier
	s.mu.Unlock()

	if notifier != nil {
		notifier.OnError(err)
	}
}

func (s *Scheduler) frameLimit() int {
	warmup := s.pipe.WarmupPeriod()
	if warmup+trimSlack > minFrameSize {
		return warmup + trimSlack
	}
	return minFrameSize
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
