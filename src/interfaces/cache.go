package interfaces

import (
	"context"
	"time"

	"market-pulse/src/models"
)

// -----------------------------------------------------------------------------
// ICache defines the best-effort store used behind the scheduler.
// -----------------------------------------------------------------------------

type ICache interface {

	// Name identifies the backend (sqlite, postgres, memory, none).
	Name() string

	// -----------------------------------------------------------------------------

	// Initialize sets up the schema.
	Initialize(ctx context.Context) error

	// -----------------------------------------------------------------------------

	PutQuote(ctx context.Context, quote models.Quote) error
	PutMovers(ctx context.Context, snapshot models.MoversSnapshot) error
	PutBars(ctx context.Context, symbol string, bars []models.Bar) error
	PutSignal(ctx context.Context, signal models.Signal) error

	// -----------------------------------------------------------------------------

	// GetBars returns bars for symbol with dates in [from, to], ascending.
	GetBars(ctx context.Context, symbol string, from, to time.Time) ([]models.Bar, error)

	// -----------------------------------------------------------------------------

	// LatestQuote returns the newest cached quote for symbol.
	LatestQuote(ctx context.Context, symbol string) (models.Quote, bool, error)

	// -----------------------------------------------------------------------------

	// CleanupOldData removes rows older than the retention window.
	CleanupOldData(ctx context.Context, retention time.Duration) error

	// -----------------------------------------------------------------------------

	Close() error
}

// -----------------------------------------------------------------------------
// ICacheWriter queues best-effort cache writes off the delivery path. Each
// method reports whether the write was accepted.
// -----------------------------------------------------------------------------

type ICacheWriter interface {
	WriteQuote(quote models.Quote) bool
	WriteMovers(snapshot models.MoversSnapshot) bool
	WriteBars(symbol string, bars []models.Bar) bool
	WriteSignal(signal models.Signal) bool
	Cleanup(retention time.Duration) bool
}
