package analysis

import (
	"fmt"
	"io"
	"math"
	"testing"
	"time"

	"market-pulse/src/logger"
	"market-pulse/src/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func linear(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

func barsFrom(closes []float64) []models.Bar {
	bars := make([]models.Bar, len(closes))
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		bars[i] = models.Bar{
			Date:  day.AddDate(0, 0, i).Format("2006-01-02"),
			Open:  c,
			High:  c * 1.005,
			Low:   c * 0.995,
			Close: c,
		}
	}
	return bars
}

func TestSMA(t *testing.T) {
	tests := []struct {
		name   string
		prices []float64
		period int
		want   float64
		ok     bool
	}{
		{"exact", []float64{1, 2, 3, 4, 5}, 5, 3, true},
		{"tail only", []float64{100, 1, 2, 3}, 3, 2, true},
		{"too short", []float64{1, 2}, 3, 0, false},
		{"zero period", []float64{1, 2}, 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := SMA(tt.prices, tt.period)
			assert.Equal(t, tt.ok, ok)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestEMA(t *testing.T) {
	ema := EMA([]float64{2, 4, 6, 8}, 3)
	require.Len(t, ema, 4)
	assert.InDelta(t, 4.0, ema[2], 1e-9)
	assert.InDelta(t, 6.0, ema[3], 1e-9)

	assert.Nil(t, EMA([]float64{1, 2}, 3))
}

func TestRSI(t *testing.T) {
	up, ok := RSI(linear(30, 10, 1), 14)
	require.True(t, ok)
	assert.Equal(t, 100.0, up)

	down, ok := RSI(linear(30, 100, -1), 14)
	require.True(t, ok)
	assert.InDelta(t, 0.0, down, 1e-9)

	flat, ok := RSI(linear(30, 50, 0), 14)
	require.True(t, ok)
	assert.Equal(t, 50.0, flat)

	_, ok = RSI(linear(14, 1, 1), 14)
	assert.False(t, ok)
}

func TestMACDSignOnTrend(t *testing.T) {
	_, ok := MACD(linear(33, 10, 1))
	assert.False(t, ok)

	// accelerating series keeps the fast EMA pulling away
	prices := make([]float64, 60)
	for i := range prices {
		prices[i] = 100 + float64(i*i)/10
	}
	m, ok := MACD(prices)
	require.True(t, ok)
	assert.Greater(t, m.MACD, 0.0)
	assert.InDelta(t, m.MACD-m.Signal, m.Histogram, 1e-9)
}

func TestBollinger(t *testing.T) {
	bb, ok := Bollinger(linear(20, 10, 0), 20, 2)
	require.True(t, ok)
	assert.Equal(t, models.BollingerBands{Upper: 10, Middle: 10, Lower: 10}, bb)

	bb, ok = Bollinger([]float64{1, 3}, 2, 2)
	require.True(t, ok)
	assert.InDelta(t, 4.0, bb.Upper, 1e-9)
	assert.InDelta(t, 0.0, bb.Lower, 1e-9)
}

func TestVolatility(t *testing.T) {
	v, ok := Volatility(linear(30, 100, 0), 20)
	require.True(t, ok)
	assert.Equal(t, 0.0, v)

	_, ok = Volatility([]float64{1, 2}, 20)
	assert.False(t, ok)
}

func TestComputeIndicatorsPartialHistory(t *testing.T) {
	snap := ComputeIndicators(linear(25, 100, 0.5))
	assert.NotNil(t, snap.RSI)
	assert.NotNil(t, snap.SMA20)
	assert.NotNil(t, snap.Bollinger)
	assert.NotNil(t, snap.Volatility)
	assert.Nil(t, snap.SMA50)
	assert.Nil(t, snap.MACD)

	full := ComputeIndicators(linear(60, 100, 0.5))
	assert.NotNil(t, full.SMA50)
	assert.NotNil(t, full.MACD)
}

func newFacade() *AnalysisFacade {
	f := NewAnalysisFacade(logger.NewLoggerWithWriter(io.Discard, "ERROR", "analysis"))
	f.newID = func() string { return "fixed-id" }
	return f
}

func TestGenerateSignalStrategies(t *testing.T) {
	now := time.UnixMilli(1718000000000)
	uptrend := barsFrom(linear(60, 100, 1))
	downtrend := barsFrom(linear(60, 200, -1))

	tests := []struct {
		strategy string
		bars     []models.Bar
		want     models.SignalAction
	}{
		{StrategyTrendFollowing, uptrend, models.ActionBuy},
		{StrategyTrendFollowing, downtrend, models.ActionSell},
		{StrategyBreakout, uptrend, models.ActionBuy},
		{StrategyBreakout, downtrend, models.ActionSell},
		{StrategyMomentum, uptrend, models.ActionHold},
		{StrategyMeanReversion, uptrend, models.ActionSell},
		{StrategyMeanReversion, downtrend, models.ActionBuy},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%s", tt.strategy, tt.want), func(t *testing.T) {
			sig, err := newFacade().GenerateSignal("AAPL", tt.strategy, tt.bars, "cache", now)
			require.NoError(t, err)
			assert.Equal(t, tt.want, sig.Action, sig.Reason)
			assert.Equal(t, "fixed-id", sig.ID)
			assert.Equal(t, tt.strategy, sig.Strategy)
			assert.Equal(t, "cache", sig.Source)
			assert.Equal(t, now.UnixMilli(), sig.Timestamp)
			assert.GreaterOrEqual(t, sig.Confidence, 0.0)
			assert.LessOrEqual(t, sig.Confidence, 100.0)
			assert.NotEmpty(t, sig.Reason)

			if sig.Action == models.ActionHold {
				assert.Nil(t, sig.PriceTarget)
				return
			}
			require.NotNil(t, sig.PriceTarget)
			last := tt.bars[len(tt.bars)-1].Close
			assert.Equal(t, last, sig.PriceTarget.Entry)
			if sig.Action == models.ActionBuy {
				assert.Less(t, sig.PriceTarget.StopLoss, last)
				assert.Greater(t, sig.PriceTarget.TakeProfit, last)
			} else {
				assert.Greater(t, sig.PriceTarget.StopLoss, last)
				assert.Less(t, sig.PriceTarget.TakeProfit, last)
			}
		})
	}
}

func TestGenerateSignalShortHistoryHolds(t *testing.T) {
	sig, err := newFacade().GenerateSignal("AAPL", StrategyTrendFollowing, barsFrom([]float64{1, 2, 3}), "synthetic", time.Now())
	require.NoError(t, err)
	assert.Equal(t, models.ActionHold, sig.Action)
	assert.Contains(t, sig.Reason, "insufficient history")
}

func TestGenerateSignalErrors(t *testing.T) {
	_, err := newFacade().GenerateSignal("AAPL", "astrology", barsFrom(linear(60, 1, 1)), "cache", time.Now())
	assert.Error(t, err)

	_, err = newFacade().GenerateSignal("AAPL", StrategyMomentum, barsFrom([]float64{1}), "cache", time.Now())
	assert.Error(t, err)
}

func TestConfidenceNeverExceedsBounds(t *testing.T) {
	// a violent breakout would push raw confidence past 100
	closes := append(linear(30, 10, 0), 1000)
	sig, err := newFacade().GenerateSignal("X", StrategyBreakout, barsFrom(closes), "cache", time.Now())
	require.NoError(t, err)
	assert.False(t, math.IsNaN(sig.Confidence))
	assert.LessOrEqual(t, sig.Confidence, 100.0)
}

func TestStrategyNamesAreKnown(t *testing.T) {
	for _, name := range StrategyNames() {
		assert.True(t, IsKnownStrategy(name))
	}
	assert.False(t, IsKnownStrategy(""))
}
