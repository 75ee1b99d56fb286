package interfaces

import (
	"context"
	"time"
)

// -----------------------------------------------------------------------------
// IOnDemand serves client-triggered requests outside the cadence timers.
// Results are published by the implementation; a returned error is reported
// to the requesting connection only.
// -----------------------------------------------------------------------------

type IOnDemand interface {

	// RequestSignal computes one signal for symbol. An empty strategy picks
	// the first configured strategy.
	RequestSignal(ctx context.Context, requesterID, symbol, strategy string) error

	// -----------------------------------------------------------------------------

	// RequestHistorical fetches daily bars covering the last days days.
	RequestHistorical(ctx context.Context, requesterID, symbol string, days int) error

	// -----------------------------------------------------------------------------

	// LastTicks reports when each cadence last completed.
	LastTicks() map[string]time.Time
}
