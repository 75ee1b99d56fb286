package synthetic

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryIsDeterministic(t *testing.T) {
	g := NewGenerator()
	end := time.Date(2024, 6, 17, 0, 0, 0, 0, time.UTC)

	a := g.History("AAPL", end, 30, 0)
	b := g.History("AAPL", end, 30, 0)
	assert.Equal(t, a, b)

	c := g.History("MSFT", end, 30, 0)
	assert.NotEqual(t, a.Bars, c.Bars)
}

func TestHistoryShape(t *testing.T) {
	end := time.Date(2024, 6, 17, 0, 0, 0, 0, time.UTC)
	series := NewGenerator().History("TSLA", end, 60, 180.0)

	require.Len(t, series.Bars, 60)
	assert.Equal(t, "TSLA", series.Symbol)
	assert.Equal(t, "1d", series.Interval)
	assert.InDelta(t, 180.0, series.Bars[59].Close, 0.01)
	assert.Equal(t, "2024-06-17", series.Bars[59].Date)

	for i, b := range series.Bars {
		assert.GreaterOrEqual(t, b.High, b.Low)
		assert.GreaterOrEqual(t, b.High, b.Close)
		assert.LessOrEqual(t, b.Low, b.Close)
		assert.Positive(t, b.Volume)
		if i > 0 {
			assert.Less(t, series.Bars[i-1].Date, b.Date)
		}
	}
}

func TestHistoryZeroLength(t *testing.T) {
	series := NewGenerator().History("AAPL", time.Now(), 0, 0)
	assert.Empty(t, series.Bars)
}

func TestBasePriceRange(t *testing.T) {
	for _, s := range []string{"AAPL", "GOOGL", "X", "BRK.B"} {
		p := BasePrice(s)
		assert.GreaterOrEqual(t, p, 20.0)
		assert.Less(t, p, 520.0)
	}
}
