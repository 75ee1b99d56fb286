package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"market-pulse/src/models"
)

// MemoryCache keeps everything in process. Used for tests and for
// deployments that do not want a database file.
type MemoryCache struct {
	mu      sync.RWMutex
	quotes  map[string][]models.Quote
	movers  []models.MoversSnapshot
	bars    map[string]map[string]models.Bar
	signals []models.Signal
	now     func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		quotes: make(map[string][]models.Quote),
		bars:   make(map[string]map[string]models.Bar),
		now:    time.Now,
	}
}

// -----------------------------------------------------------------------------

func (c *MemoryCache) Name() string                         { return "memory" }
func (c *MemoryCache) Initialize(ctx context.Context) error { return nil }
func (c *MemoryCache) Close() error                         { return nil }

// -----------------------------------------------------------------------------

func (c *MemoryCache) PutQuote(ctx context.Context, q models.Quote) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.quotes[q.Symbol] = append(c.quotes[q.Symbol], q)
	return nil
}

func (c *MemoryCache) PutMovers(ctx context.Context, s models.MoversSnapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.movers = append(c.movers, s)
	return nil
}

func (c *MemoryCache) PutBars(ctx context.Context, symbol string, bars []models.Bar) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	byDate, ok := c.bars[symbol]
	if !ok {
		byDate = make(map[string]models.Bar)
		c.bars[symbol] = byDate
	}
	for _, b := range bars {
		byDate[b.Date] = b
	}
	return nil
}

func (c *MemoryCache) PutSignal(ctx context.Context, s models.Signal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.signals = append(c.signals, s)
	return nil
}

// -----------------------------------------------------------------------------

func (c *MemoryCache) GetBars(ctx context.Context, symbol string, from, to time.Time) ([]models.Bar, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	lo, hi := from.UTC().Format("2006-01-02"), to.UTC().Format("2006-01-02")
	var out []models.Bar
	for date, b := range c.bars[symbol] {
		if date >= lo && date <= hi {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

// -----------------------------------------------------------------------------

func (c *MemoryCache) LatestQuote(ctx context.Context, symbol string) (models.Quote, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	list := c.quotes[symbol]
	if len(list) == 0 {
		return models.Quote{}, false, nil
	}
	latest := list[0]
	for _, q := range list[1:] {
		if q.Timestamp >= latest.Timestamp {
			latest = q
		}
	}
	return latest, true, nil
}

// -----------------------------------------------------------------------------

// Signals returns a copy of the stored signals
func (c *MemoryCache) Signals() []models.Signal {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]models.Signal(nil), c.signals...)
}

// MoversSnapshots returns a copy of the stored snapshots
func (c *MemoryCache) MoversSnapshots() []models.MoversSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]models.MoversSnapshot(nil), c.movers...)
}

// -----------------------------------------------------------------------------

func (c *MemoryCache) CleanupOldData(ctx context.Context, retention time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now().UTC()
	cutoff := now.Add(-retention).UnixMilli()
	barCutoff := now.Add(-max(retention, barRetentionFloor)).Format("2006-01-02")

	for symbol, list := range c.quotes {
		kept := list[:0]
		for _, q := range list {
			if q.Timestamp >= cutoff {
				kept = append(kept, q)
			}
		}
		if len(kept) == 0 {
			delete(c.quotes, symbol)
		} else {
			c.quotes[symbol] = kept
		}
	}

	keptMovers := c.movers[:0]
	for _, s := range c.movers {
		if s.Timestamp >= cutoff {
			keptMovers = append(keptMovers, s)
		}
	}
	c.movers = keptMovers

	keptSignals := c.signals[:0]
	for _, s := range c.signals {
		if s.Timestamp >= cutoff {
			keptSignals = append(keptSignals, s)
		}
	}
	c.signals = keptSignals

	for _, byDate := range c.bars {
		for date := range byDate {
			if date < barCutoff {
				delete(byDate, date)
			}
		}
	}
	return nil
}
