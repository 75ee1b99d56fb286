package storage

import (
	"context"
	"time"

	"market-pulse/src/models"
)

// NoopCache discards writes and answers every read with nothing
type NoopCache struct{}

func (NoopCache) Name() string                                           { return "none" }
func (NoopCache) Initialize(context.Context) error                       { return nil }
func (NoopCache) PutQuote(context.Context, models.Quote) error           { return nil }
func (NoopCache) PutMovers(context.Context, models.MoversSnapshot) error { return nil }
func (NoopCache) PutBars(context.Context, string, []models.Bar) error    { return nil }
func (NoopCache) PutSignal(context.Context, models.Signal) error         { return nil }
func (NoopCache) CleanupOldData(context.Context, time.Duration) error    { return nil }
func (NoopCache) Close() error                                           { return nil }

func (NoopCache) GetBars(context.Context, string, time.Time, time.Time) ([]models.Bar, error) {
	return nil, nil
}

func (NoopCache) LatestQuote(context.Context, string) (models.Quote, bool, error) {
	return models.Quote{}, false, nil
}
