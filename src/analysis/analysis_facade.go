package analysis

import (
	"fmt"
	"time"

	"market-pulse/src/logger"
	"market-pulse/src/models"

	"github.com/google/uuid"
)

// AnalysisFacade turns a history window into a Signal for a named strategy
type AnalysisFacade struct {
	Logger *logger.Logger
	newID  func() string
}

// -----------------------------------------------------------------------------

func NewAnalysisFacade(log *logger.Logger) *AnalysisFacade {
	return &AnalysisFacade{
		Logger: log,
		newID:  uuid.NewString,
	}
}

// -----------------------------------------------------------------------------

// IsKnownStrategy reports whether name is a built-in strategy
func IsKnownStrategy(name string) bool {
	_, ok := strategies[name]
	return ok
}

// -----------------------------------------------------------------------------

// GenerateSignal evaluates strategy over bars (ascending) and returns a
// signal stamped at now. source records where the bars came from.
func (a *AnalysisFacade) GenerateSignal(symbol, strategy string, bars []models.Bar, source string, now time.Time) (models.Signal, error) {
	fn, ok := strategies[strategy]
	if !ok {
		return models.Signal{}, fmt.Errorf("unknown strategy %q", strategy)
	}
	if len(bars) < 2 {
		return models.Signal{}, fmt.Errorf("need at least 2 bars for %s, got %d", symbol, len(bars))
	}

	snap := ComputeIndicators(models.Closes(bars))
	d := fn(bars, snap)
	last := bars[len(bars)-1].Close

	sig := models.Signal{
		ID:          a.newID(),
		Symbol:      symbol,
		Action:      d.action,
		Confidence:  models.ClampConfidence(float64(int(d.confidence*10)) / 10),
		Reason:      d.reason,
		Strategy:    strategy,
		Indicators:  snap,
		PriceTarget: priceTarget(d.action, last, snap),
		Source:      source,
		Timestamp:   now.UnixMilli(),
	}

	a.Logger.Debug("%s/%s -> %s (%.1f) from %d %s bars", symbol, strategy, sig.Action, sig.Confidence, len(bars), source)
	return sig, nil
}
