package scheduler

import (
	"context"
	"fmt"

	"market-pulse/src/analysis"
	"market-pulse/src/helpers"
	"market-pulse/src/models"
)

// Historical request window
const (
	DefaultHistoricalDays = 30
	MaxHistoricalDays     = 365
)

// -----------------------------------------------------------------------------

// ClampDays applies the default and bounds to a requested day count
func ClampDays(days int) int {
	switch {
	case days == 0:
		return DefaultHistoricalDays
	case days < 1:
		return 1
	case days > MaxHistoricalDays:
		return MaxHistoricalDays
	default:
		return days
	}
}

// -----------------------------------------------------------------------------

// RequestSignal computes a signal for symbol right away. The result goes to
// every connection interested in the symbol's signals and to the requester.
func (s *Scheduler) RequestSignal(ctx context.Context, requesterID, symbol, strategy string) error {
	symbol = models.NormalizeSymbol(symbol)
	if symbol == "" {
		return helpers.NewProtocolError(models.ErrCodeInvalidRequest, "symbol is required", nil)
	}
	if strategy == "" {
		if len(s.strategies) == 0 {
			return helpers.NewProtocolError(models.ErrCodeInvalidRequest, "no strategy configured", nil)
		}
		strategy = s.strategies[0]
	}
	if !analysis.IsKnownStrategy(strategy) {
		return helpers.NewProtocolError(models.ErrCodeInvalidRequest, fmt.Sprintf("unknown strategy: %s", strategy), nil)
	}

	signal, err := s.computeSignal(ctx, symbol, strategy)
	if err != nil {
		return err
	}

	frame := models.NewSignalFrame(signal, s.clock.Now().UnixMilli())
	s.publisher.PublishWith(models.EventAISignal, frame, symbol, requesterID)
	s.writer.WriteSignal(signal)
	return nil
}

// -----------------------------------------------------------------------------

// RequestHistorical fetches daily bars for the last days days (default 30,
// at most 365). Upstream is preferred; the cache answers when it fails.
func (s *Scheduler) RequestHistorical(ctx context.Context, requesterID, symbol string, days int) error {
	symbol = models.NormalizeSymbol(symbol)
	if symbol == "" {
		return helpers.NewProtocolError(models.ErrCodeInvalidRequest, "symbol is required", nil)
	}
	days = ClampDays(days)

	bars, err := s.upstreamBars(ctx, symbol, days)
	if err != nil || len(bars) == 0 {
		cached := s.cachedBars(ctx, symbol, days)
		if len(cached) == 0 {
			if err == nil {
				err = fmt.Errorf("no bars returned")
			}
			return helpers.NewUpstreamError(symbol, "historical data unavailable", err)
		}
		s.Logger.Debug("Serving cached history for %s: %v", symbol, err)
		bars = cached
	}

	now := s.clock.Now()
	series := models.HistoricalSeries{
		Symbol:   symbol,
		Interval: "1d",
		Bars:     trimToWindow(models.NormalizeBars(bars), now.AddDate(0, 0, -days)),
	}

	s.publisher.PublishWith(models.EventHistorical, models.NewHistoricalUpdate(series, now.UnixMilli()), symbol, requesterID)
	return nil
}
