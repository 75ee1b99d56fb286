package synthetic

import (
	"hash/fnv"
	"math"
	"math/rand"
	"time"

	"market-pulse/src/models"
	"market-pulse/src/utils"
)

// Generator produces deterministic random-walk daily bars. It is the last
// resort for signal computation when neither the cache nor upstream can
// provide history. The same symbol, end date and length always produce the
// same series.
type Generator struct {
	// DailyVolatility is the standard deviation of daily log returns
	DailyVolatility float64
}

func NewGenerator() *Generator {
	return &Generator{DailyVolatility: 0.02}
}

// -----------------------------------------------------------------------------

func seed(symbol string, end time.Time) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(symbol))
	_, _ = h.Write([]byte(end.UTC().Format("2006-01-02")))
	return int64(h.Sum64() >> 1)
}

// -----------------------------------------------------------------------------

// BasePrice derives a stable pseudo price in [20, 520) for a symbol
func BasePrice(symbol string) float64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(symbol))
	return 20 + float64(h.Sum32()%50000)/100
}

// -----------------------------------------------------------------------------

// History returns n trading-day bars ending at end whose last close is
// anchored at lastPrice (BasePrice when lastPrice <= 0).
func (g *Generator) History(symbol string, end time.Time, n int, lastPrice float64) models.HistoricalSeries {
	series := models.HistoricalSeries{Symbol: symbol, Interval: "1d"}
	days := utils.TradingDaysBack(symbol, end, n)
	if len(days) == 0 {
		return series
	}
	if lastPrice <= 0 {
		lastPrice = BasePrice(symbol)
	}

	rng := rand.New(rand.NewSource(seed(symbol, end)))

	// walk backwards from the anchor so the newest close equals lastPrice
	closes := make([]float64, len(days))
	closes[len(closes)-1] = lastPrice
	for i := len(closes) - 2; i >= 0; i-- {
		closes[i] = closes[i+1] / math.Exp(rng.NormFloat64()*g.DailyVolatility)
	}

	bars := make([]models.Bar, len(days))
	prev := closes[0] * (1 + rng.NormFloat64()*g.DailyVolatility/2)
	for i, d := range days {
		c := closes[i]
		o := prev
		spread := math.Abs(rng.NormFloat64()) * g.DailyVolatility * c / 2
		bars[i] = models.Bar{
			Date:   d.Format("2006-01-02"),
			Open:   round2(o),
			High:   round2(math.Max(o, c) + spread),
			Low:    round2(math.Max(0.01, math.Min(o, c)-spread)),
			Close:  round2(c),
			Volume: int64(500_000 + rng.Intn(4_500_000)),
		}
		prev = c
	}

	series.Bars = bars
	return series
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
