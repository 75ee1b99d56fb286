package analysis

import (
	"math"

	"market-pulse/src/analysis/core"
	"market-pulse/src/models"
)

const (
	rsiPeriod        = 14
	macdFast         = 12
	macdSlow         = 26
	macdSignal       = 9
	bollingerPeriod  = 20
	bollingerK       = 2.0
	volatilityWindow = 20
)

// -----------------------------------------------------------------------------

// RSI computes Wilder's relative strength index over period. ok is false
// when there are fewer than period+1 prices.
func RSI(prices []float64, period int) (float64, bool) {
	if period <= 0 || len(prices) < period+1 {
		return 0, false
	}

	var gains, losses float64
	for i := 1; i <= period; i++ {
		change := prices[i] - prices[i-1]
		if change > 0 {
			gains += change
		} else {
			losses -= change
		}
	}
	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)

	// Wilder smoothing over the rest of the series
	for i := period + 1; i < len(prices); i++ {
		change := prices[i] - prices[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	if avgLoss == 0 {
		if avgGain == 0 {
			return 50, true
		}
		return 100, true
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs)), true
}

// -----------------------------------------------------------------------------

// SMA is the mean of the last period prices
func SMA(prices []float64, period int) (float64, bool) {
	if period <= 0 || len(prices) < period {
		return 0, false
	}
	mean, _ := core.CalculateMeanStd(prices[len(prices)-period:])
	return mean, true
}

// -----------------------------------------------------------------------------

// EMA returns the exponential moving average series seeded with the SMA of
// the first period values. Entries before index period-1 are zero.
func EMA(prices []float64, period int) []float64 {
	if period <= 0 || len(prices) < period {
		return nil
	}

	ema := make([]float64, len(prices))
	multiplier := 2.0 / float64(period+1)

	seed, _ := core.CalculateMeanStd(prices[:period])
	ema[period-1] = seed
	for i := period; i < len(prices); i++ {
		ema[i] = (prices[i]-ema[i-1])*multiplier + ema[i-1]
	}
	return ema
}

// -----------------------------------------------------------------------------

// MACD computes the 12/26/9 MACD triple for the last price. It needs at
// least slow+signal-1 prices.
func MACD(prices []float64) (models.MACDValue, bool) {
	if len(prices) < macdSlow+macdSignal-1 {
		return models.MACDValue{}, false
	}

	fast := EMA(prices, macdFast)
	slow := EMA(prices, macdSlow)

	line := make([]float64, 0, len(prices)-macdSlow+1)
	for i := macdSlow - 1; i < len(prices); i++ {
		line = append(line, fast[i]-slow[i])
	}

	signal := EMA(line, macdSignal)
	last := line[len(line)-1]
	sig := signal[len(signal)-1]
	return models.MACDValue{MACD: last, Signal: sig, Histogram: last - sig}, true
}

// -----------------------------------------------------------------------------

func Bollinger(prices []float64, period int, k float64) (models.BollingerBands, bool) {
	if period <= 0 || len(prices) < period {
		return models.BollingerBands{}, false
	}
	mean, std := core.CalculateMeanStd(prices[len(prices)-period:])
	return models.BollingerBands{Upper: mean + k*std, Middle: mean, Lower: mean - k*std}, true
}

// -----------------------------------------------------------------------------

// Volatility is the standard deviation of daily log returns over the last
// window bars, in percent.
func Volatility(prices []float64, window int) (float64, bool) {
	if len(prices) < 3 {
		return 0, false
	}
	if len(prices) > window+1 {
		prices = prices[len(prices)-window-1:]
	}
	_, std := core.CalculateMeanStd(core.LogReturns(prices))
	return std * 100, true
}

// -----------------------------------------------------------------------------

// ComputeIndicators fills every indicator the history is long enough for
func ComputeIndicators(closes []float64) models.IndicatorSnapshot {
	var snap models.IndicatorSnapshot

	if v, ok := RSI(closes, rsiPeriod); ok {
		snap.RSI = round(v)
	}
	if v, ok := MACD(closes); ok {
		snap.MACD = &models.MACDValue{MACD: *round(v.MACD), Signal: *round(v.Signal), Histogram: *round(v.Histogram)}
	}
	if v, ok := SMA(closes, 20); ok {
		snap.SMA20 = round(v)
	}
	if v, ok := SMA(closes, 50); ok {
		snap.SMA50 = round(v)
	}
	if v, ok := Bollinger(closes, bollingerPeriod, bollingerK); ok {
		snap.Bollinger = &models.BollingerBands{Upper: *round(v.Upper), Middle: *round(v.Middle), Lower: *round(v.Lower)}
	}
	if v, ok := Volatility(closes, volatilityWindow); ok {
		snap.Volatility = round(v)
	}
	return snap
}

func round(v float64) *float64 {
	r := math.Round(v*10000) / 10000
	return &r
}
