package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"market-pulse/src/analysis"
	"market-pulse/src/config"
	"market-pulse/src/data_source/synthetic"
	"market-pulse/src/interfaces"
	"market-pulse/src/logger"
	"market-pulse/src/metrics"
	"market-pulse/src/models"
	"market-pulse/src/utils"

	"github.com/benbjohnson/clock"
)

// Cadence names, also used as metric labels
const (
	CadencePrice    = "price"
	CadenceMovers   = "movers"
	CadenceSignal   = "signal"
	CadenceTrending = "trending"
)

// maxConcurrentQuotes bounds the per-symbol fan-out of the price cadence
const maxConcurrentQuotes = 8

var errMarketsClosed = errors.New("all tracked markets are closed")

// -----------------------------------------------------------------------------

// Deps are the collaborators of the scheduler. Cache and Writer may be nil,
// in which case history is never read from or written to a store.
type Deps struct {
	Provider  interfaces.IQuoteProvider
	Publisher interfaces.IPublisher
	Cache     interfaces.ICache
	Writer    interfaces.ICacheWriter
	Analyzer  *analysis.AnalysisFacade
	Synthetic *synthetic.Generator
	Hours     *utils.MarketHours
}

// -----------------------------------------------------------------------------
// Scheduler
// -----------------------------------------------------------------------------

// Scheduler runs the four periodic cadences and serves on-demand requests.
// A failing or panicking tick is logged and the cadence carries on.
type Scheduler struct {
	Config  *config.Config
	Logger  *logger.Logger
	Metrics *metrics.Metrics

	provider  interfaces.IQuoteProvider
	publisher interfaces.IPublisher
	cache     interfaces.ICache
	writer    interfaces.ICacheWriter
	analyzer  *analysis.AnalysisFacade
	synthetic *synthetic.Generator
	hours     *utils.MarketHours
	clock     clock.Clock

	roster     []string
	strategies []string

	rotMu    sync.Mutex
	rotation int

	ticksMu   sync.RWMutex
	lastTicks map[string]time.Time

	mu         sync.Mutex
	cancelFunc context.CancelFunc
	isRunning  atomic.Bool
	wg         sync.WaitGroup
}

// -----------------------------------------------------------------------------

func NewScheduler(cfg *config.Config, deps Deps, log *logger.Logger, m *metrics.Metrics, clk clock.Clock) *Scheduler {
	if clk == nil {
		clk = clock.New()
	}
	if deps.Writer == nil {
		deps.Writer = discardWriter{}
	}
	if deps.Analyzer == nil {
		deps.Analyzer = analysis.NewAnalysisFacade(log.With("analysis"))
	}
	if deps.Synthetic == nil {
		deps.Synthetic = synthetic.NewGenerator()
	}

	roster := make([]string, 0, len(cfg.Scheduler.Roster))
	for _, sym := range cfg.Scheduler.Roster {
		if sym = models.NormalizeSymbol(sym); sym != "" {
			roster = append(roster, sym)
		}
	}

	return &Scheduler{
		Config:     cfg,
		Logger:     log,
		Metrics:    m,
		provider:   deps.Provider,
		publisher:  deps.Publisher,
		cache:      deps.Cache,
		writer:     deps.Writer,
		analyzer:   deps.Analyzer,
		synthetic:  deps.Synthetic,
		hours:      deps.Hours,
		clock:      clk,
		roster:     roster,
		strategies: append([]string(nil), cfg.Scheduler.Strategies...),
		lastTicks: map[string]time.Time{
			CadencePrice:    {},
			CadenceMovers:   {},
			CadenceSignal:   {},
			CadenceTrending: {},
		},
	}
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Start launches one goroutine per cadence. Each cadence ticks once right
// away and then on its own interval.
func (s *Scheduler) Start(parentCtx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning.Load() {
		return fmt.Errorf("scheduler is already running")
	}

	ctx, cancel := context.WithCancel(parentCtx)
	s.cancelFunc = cancel
	s.isRunning.Store(true)

	cadences := []struct {
		name     string
		interval time.Duration
		tick     func(context.Context) error
	}{
		{CadencePrice, s.Config.PriceInterval(), s.PriceTick},
		{CadenceMovers, s.Config.MoversInterval(), s.MoversTick},
		{CadenceSignal, s.Config.SignalInterval(), s.SignalTick},
		{CadenceTrending, s.Config.TrendingInterval(), s.TrendingTick},
	}

	for _, c := range cadences {
		// tickers are created here so that a mock clock sees them before Start returns
		ticker := s.clock.Ticker(c.interval)
		s.wg.Add(1)
		go s.runLoop(ctx, c.name, ticker, c.tick)
	}

	s.Logger.Info("Scheduler started: %d symbols, %d strategies (price %s, movers %s, signal %s, trending %s)",
		len(s.roster), len(s.strategies), s.Config.PriceInterval(), s.Config.MoversInterval(),
		s.Config.SignalInterval(), s.Config.TrendingInterval())
	return nil
}

// -----------------------------------------------------------------------------

// Stop cancels every cadence and waits for in-flight ticks
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning.Load() {
		s.mu.Unlock()
		return
	}
	s.cancelFunc()
	s.cancelFunc = nil
	s.isRunning.Store(false)
	s.mu.Unlock()

	s.wg.Wait()
	s.Logger.Info("Scheduler stopped")
}

// -----------------------------------------------------------------------------

// runLoop is the timer loop of one cadence
func (s *Scheduler) runLoop(ctx context.Context, name string, ticker *clock.Ticker, tick func(context.Context) error) {
	defer s.wg.Done()
	defer ticker.Stop()

	s.runTick(ctx, name, tick)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runTick(ctx, name, tick)
		}
	}
}

// -----------------------------------------------------------------------------

// runTick executes one tick, converting a panic into a logged failure
func (s *Scheduler) runTick(ctx context.Context, name string, tick func(context.Context) error) {
	start := s.clock.Now()
	status := "ok"

	defer func() {
		if r := recover(); r != nil {
			status = "panic"
			s.Logger.Error("%s tick panicked: %v", name, r)
		}
		s.Metrics.RecordTick(name, status, s.clock.Since(start))
		if status == "ok" {
			s.ticksMu.Lock()
			s.lastTicks[name] = s.clock.Now()
			s.ticksMu.Unlock()
		}
	}()

	if err := tick(ctx); err != nil {
		switch {
		case errors.Is(err, errMarketsClosed):
			status = "skipped"
			s.Logger.Debug("%s tick skipped: %v", name, err)
		case ctx.Err() != nil:
			status = "cancelled"
		default:
			status = "error"
			s.Logger.Warning("%s tick failed: %v", name, err)
		}
	}
}

// -----------------------------------------------------------------------------

// LastTicks reports the completion time of the last successful tick per
// cadence. A zero time means no tick has succeeded yet.
func (s *Scheduler) LastTicks() map[string]time.Time {
	s.ticksMu.RLock()
	defer s.ticksMu.RUnlock()

	out := make(map[string]time.Time, len(s.lastTicks))
	for k, v := range s.lastTicks {
		out[k] = v
	}
	return out
}

// -----------------------------------------------------------------------------

// upstreamContext bounds one upstream call
func (s *Scheduler) upstreamContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.Config.UpstreamTimeout())
}

// -----------------------------------------------------------------------------

type discardWriter struct{}

func (discardWriter) WriteQuote(models.Quote) bool           { return false }
func (discardWriter) WriteMovers(models.MoversSnapshot) bool { return false }
func (discardWriter) WriteBars(string, []models.Bar) bool    { return false }
func (discardWriter) WriteSignal(models.Signal) bool         { return false }
func (discardWriter) Cleanup(time.Duration) bool             { return false }
