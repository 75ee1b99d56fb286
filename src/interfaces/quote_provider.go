package interfaces

import (
	"context"

	"market-pulse/src/models"
)

// -----------------------------------------------------------------------------
// IQuoteProvider is the upstream market data adapter.
// -----------------------------------------------------------------------------

type IQuoteProvider interface {

	// Name returns the unique identifier of the provider
	Name() string

	// -----------------------------------------------------------------------------

	// GetQuote fetches the latest quote for one symbol.
	GetQuote(ctx context.Context, symbol string) (models.Quote, error)

	// -----------------------------------------------------------------------------

	// GetMovers fetches one ranked list of gainers or losers.
	GetMovers(ctx context.Context, kind models.MoverKind, count int) ([]models.Mover, error)

	// -----------------------------------------------------------------------------

	// GetTrending fetches the ranked trending list.
	GetTrending(ctx context.Context, count int) ([]models.TrendingEntry, error)

	// -----------------------------------------------------------------------------

	// GetHistory fetches daily bars for symbol over a range label (5d, 1mo, ...).
	GetHistory(ctx context.Context, symbol string, rangeLabel string) (models.HistoricalSeries, error)
}
