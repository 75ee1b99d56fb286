package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"market-pulse/src/helpers"
	"market-pulse/src/models"
)

// -----------------------------------------------------------------------------
// Price cadence
// -----------------------------------------------------------------------------

// PriceTick fetches one quote per roster symbol. Each quote is published as
// soon as its own call returns; failed symbols are skipped.
func (s *Scheduler) PriceTick(ctx context.Context) error {
	if s.hours != nil && !s.hours.AnyMarketOpen(s.clock.Now()) {
		return errMarketsClosed
	}

	var (
		wg     sync.WaitGroup
		failed atomic.Int32
		sem    = make(chan struct{}, maxConcurrentQuotes)
	)

	for _, symbol := range s.roster {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					failed.Add(1)
					s.Logger.Error("Quote for %s panicked: %v", symbol, r)
				}
			}()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				failed.Add(1)
				return
			}

			callCtx, cancel := s.upstreamContext(ctx)
			quote, err := s.provider.GetQuote(callCtx, symbol)
			cancel()
			if err != nil {
				failed.Add(1)
				s.Logger.Debug("Quote for %s skipped: %v", symbol, err)
				return
			}

			s.publisher.Publish(models.EventPriceUpdate, models.NewPriceUpdate(quote), quote.Symbol)
			s.writer.WriteQuote(quote)
		}(symbol)
	}
	wg.Wait()

	if n := int(failed.Load()); n > 0 && n == len(s.roster) {
		return fmt.Errorf("all %d quotes failed", n)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Movers cadence
// -----------------------------------------------------------------------------

// MoversTick fetches gainers and losers together and publishes nothing
// unless both lists resolved.
func (s *Scheduler) MoversTick(ctx context.Context) error {
	count := s.Config.Scheduler.MoversCount

	var (
		wg                    sync.WaitGroup
		gainers, losers       []models.Mover
		gainersErr, losersErr error
	)

	fetch := func(kind models.MoverKind, out *[]models.Mover, outErr *error) {
		defer wg.Done()
		defer func() {
			if r := recover(); r != nil {
				*outErr = fmt.Errorf("%s panicked: %v", kind, r)
			}
		}()
		callCtx, cancel := s.upstreamContext(ctx)
		defer cancel()
		*out, *outErr = s.provider.GetMovers(callCtx, kind, count)
	}

	wg.Add(2)
	go fetch(models.MoverGainers, &gainers, &gainersErr)
	go fetch(models.MoverLosers, &losers, &losersErr)
	wg.Wait()

	if gainersErr != nil {
		return fmt.Errorf("gainers: %w", gainersErr)
	}
	if losersErr != nil {
		return fmt.Errorf("losers: %w", losersErr)
	}

	snapshot := models.MoversSnapshot{
		Gainers:   models.RankMovers(gainers),
		Losers:    models.RankMovers(losers),
		Timestamp: s.clock.Now().UnixMilli(),
	}
	s.publisher.Publish(models.EventMoversUpdate, models.NewMoversUpdate(snapshot), "")
	s.writer.WriteMovers(snapshot)
	return nil
}

// -----------------------------------------------------------------------------
// Signal cadence
// -----------------------------------------------------------------------------

// NextCombination advances the rotation over roster x strategies. Every
// symbol is visited with one strategy before the next strategy starts, so a
// full cycle covers each pair exactly once.
func (s *Scheduler) NextCombination() (symbol, strategy string) {
	s.rotMu.Lock()
	defer s.rotMu.Unlock()

	total := len(s.roster) * len(s.strategies)
	idx := s.rotation % total
	s.rotation = (s.rotation + 1) % total

	return s.roster[idx%len(s.roster)], s.strategies[idx/len(s.roster)]
}

// -----------------------------------------------------------------------------

// SignalTick computes and publishes one signal for the next combination
func (s *Scheduler) SignalTick(ctx context.Context) error {
	if len(s.roster) == 0 || len(s.strategies) == 0 {
		return fmt.Errorf("nothing to rotate over")
	}
	symbol, strategy := s.NextCombination()

	signal, err := s.computeSignal(ctx, symbol, strategy)
	if err != nil {
		return err
	}

	frame := models.NewSignalFrame(signal, s.clock.Now().UnixMilli())
	s.publisher.Publish(models.EventAISignal, frame, symbol)
	s.writer.WriteSignal(signal)
	return nil
}

// -----------------------------------------------------------------------------

func (s *Scheduler) computeSignal(ctx context.Context, symbol, strategy string) (models.Signal, error) {
	bars, source := s.loadHistory(ctx, symbol, s.Config.Scheduler.SignalHistoryDays)
	signal, err := s.analyzer.GenerateSignal(symbol, strategy, bars, source, s.clock.Now())
	if err != nil {
		return models.Signal{}, helpers.NewUpstreamError(symbol, "signal computation failed", err)
	}
	return signal, nil
}

// -----------------------------------------------------------------------------
// Trending cadence
// -----------------------------------------------------------------------------

// TrendingTick republishes the upstream trending list as received. It also
// queues the cache retention cleanup, being the least frequent cadence.
func (s *Scheduler) TrendingTick(ctx context.Context) error {
	if days := s.Config.Storage.RetentionDays; days > 0 {
		s.writer.Cleanup(time.Duration(days) * 24 * time.Hour)
	}

	callCtx, cancel := s.upstreamContext(ctx)
	defer cancel()

	entries, err := s.provider.GetTrending(callCtx, s.Config.Scheduler.TrendingCount)
	if err != nil {
		return fmt.Errorf("trending: %w", err)
	}

	s.publisher.Publish(models.EventTrending, models.NewTrendingUpdate(entries, s.clock.Now().UnixMilli()), "")
	return nil
}
