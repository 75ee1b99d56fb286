package scheduler

import (
	"context"
	"time"

	"market-pulse/src/models"
)

// History origins recorded on signals
const (
	SourceCache     = "cache"
	SourceUpstream  = "upstream"
	SourceSynthetic = "synthetic"
)

// minCachedBars is the smallest cached window trusted for indicators; it
// covers the slow MACD leg plus its signal line.
const minCachedBars = 35

// -----------------------------------------------------------------------------

// RangeForDays maps a day count onto the upstream range labels
func RangeForDays(days int) string {
	switch {
	case days <= 5:
		return "5d"
	case days <= 30:
		return "1mo"
	case days <= 90:
		return "3mo"
	case days <= 180:
		return "6mo"
	default:
		return "1y"
	}
}

// -----------------------------------------------------------------------------

// loadHistory returns daily bars covering roughly the last days days from
// the best available origin: cache, then upstream, then synthetic. It never
// fails; the synthetic generator always answers.
func (s *Scheduler) loadHistory(ctx context.Context, symbol string, days int) ([]models.Bar, string) {
	now := s.clock.Now()

	if bars := s.cachedBars(ctx, symbol, days); len(bars) >= minCachedBars {
		return bars, SourceCache
	}

	if bars, err := s.upstreamBars(ctx, symbol, days); err == nil && len(bars) >= 2 {
		return bars, SourceUpstream
	} else if err != nil {
		s.Logger.Debug("History for %s unavailable upstream: %v", symbol, err)
	}

	lastPrice := 0.0
	if s.cache != nil {
		if q, ok, err := s.cache.LatestQuote(ctx, symbol); err == nil && ok {
			lastPrice = q.Price
		}
	}
	series := s.synthetic.History(symbol, now, days, lastPrice)
	s.Logger.Info("Using synthetic history for %s (%d bars)", symbol, len(series.Bars))
	return series.Bars, SourceSynthetic
}

// -----------------------------------------------------------------------------

// cachedBars reads the window from the cache; errors degrade to no bars
func (s *Scheduler) cachedBars(ctx context.Context, symbol string, days int) []models.Bar {
	if s.cache == nil {
		return nil
	}
	now := s.clock.Now()
	bars, err := s.cache.GetBars(ctx, symbol, now.AddDate(0, 0, -days), now)
	if err != nil {
		s.Logger.Debug("Cache read for %s failed: %v", symbol, err)
		return nil
	}
	return bars
}

// -----------------------------------------------------------------------------

// upstreamBars fetches history and queues it for the cache
func (s *Scheduler) upstreamBars(ctx context.Context, symbol string, days int) ([]models.Bar, error) {
	callCtx, cancel := s.upstreamContext(ctx)
	defer cancel()

	series, err := s.provider.GetHistory(callCtx, symbol, RangeForDays(days))
	if err != nil {
		return nil, err
	}
	if len(series.Bars) > 0 {
		s.writer.WriteBars(symbol, series.Bars)
	}
	return series.Bars, nil
}

// -----------------------------------------------------------------------------

// trimToWindow keeps the bars dated on or after from
func trimToWindow(bars []models.Bar, from time.Time) []models.Bar {
	cutoff := from.UTC().Format("2006-01-02")
	out := make([]models.Bar, 0, len(bars))
	for _, b := range bars {
		if b.Date >= cutoff {
			out = append(out, b)
		}
	}
	return out
}
