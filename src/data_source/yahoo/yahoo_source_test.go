package yahoo

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"market-pulse/src/config"
	"market-pulse/src/helpers"
	"market-pulse/src/logger"
	"market-pulse/src/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNetwork struct {
	responses map[string]string
	err       error
	lastURL   string
	lastQuery map[string]string
}

func (f *fakeNetwork) Get(ctx context.Context, url string, params map[string]string) ([]byte, error) {
	f.lastURL = url
	f.lastQuery = params
	if f.err != nil {
		return nil, f.err
	}
	for suffix, body := range f.responses {
		if strings.HasSuffix(url, suffix) {
			return []byte(body), nil
		}
	}
	return nil, errors.New("unexpected url " + url)
}

func newSource(net *fakeNetwork) *YahooFinanceSource {
	cfg := config.Default().MConfig
	s := NewYahooFinanceSource(cfg, net, logger.NewLoggerWithWriter(io.Discard, "ERROR", "yahoo"), nil)
	s.now = func() time.Time { return time.UnixMilli(1718000000000) }
	return s
}

const chartQuote = `{"chart":{"result":[{"meta":{"symbol":"AAPL","regularMarketPrice":110.0,
"chartPreviousClose":100.0,"regularMarketVolume":123456,"regularMarketDayHigh":111.5,
"regularMarketDayLow":99.5},"timestamp":[1718000000],"indicators":{"quote":[{}]}}],"error":null}}`

func TestGetQuote(t *testing.T) {
	net := &fakeNetwork{responses: map[string]string{"/chart/AAPL": chartQuote}}
	q, err := newSource(net).GetQuote(context.Background(), "AAPL")
	require.NoError(t, err)

	assert.Equal(t, "AAPL", q.Symbol)
	assert.InDelta(t, 110.0, q.Price, 1e-9)
	assert.InDelta(t, 10.0, q.Change, 1e-9)
	assert.InDelta(t, 10.0, q.ChangePercent, 1e-9)
	assert.Equal(t, int64(123456), q.Volume)
	require.NotNil(t, q.DayHigh)
	assert.InDelta(t, 111.5, *q.DayHigh, 1e-9)
	assert.Nil(t, q.MarketCap)
	assert.Equal(t, int64(1718000000000), q.Timestamp)
	assert.Equal(t, "https://query1.finance.yahoo.com/v8/finance/chart/AAPL", net.lastURL)
}

func TestGetQuoteWrapsUpstreamError(t *testing.T) {
	net := &fakeNetwork{err: errors.New("timeout")}
	_, err := newSource(net).GetQuote(context.Background(), "MSFT")
	require.Error(t, err)

	var ue *helpers.UpstreamError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, "MSFT", ue.Symbol)
}

func TestGetQuoteApiError(t *testing.T) {
	net := &fakeNetwork{responses: map[string]string{
		"/chart/NOPE": `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found"}}}`,
	}}
	_, err := newSource(net).GetQuote(context.Background(), "NOPE")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "No data found")
}

const screener = `{"finance":{"result":[{"quotes":[
{"symbol":"AAA","shortName":"Alpha","currency":"USD","regularMarketPrice":10.5,"regularMarketChange":1.25,"regularMarketChangePercent":13.5,"regularMarketVolume":1000},
{"symbol":"BBB","longName":"Beta Corp","regularMarketPrice":20,"regularMarketChangePercent":9.1},
{"symbol":"CCC","regularMarketChangePercent":8.0},
{"symbol":"DDD","shortName":"Delta","regularMarketPrice":5,"regularMarketChangePercent":7.5}
]}],"error":null}}`

func TestGetMoversRanksContiguously(t *testing.T) {
	net := &fakeNetwork{responses: map[string]string{"/predefined/saved": screener}}
	movers, err := newSource(net).GetMovers(context.Background(), models.MoverLosers, 10)
	require.NoError(t, err)
	assert.Equal(t, "day_losers", net.lastQuery["scrIds"])

	require.Len(t, movers, 3)
	for i, m := range movers {
		assert.Equal(t, i+1, m.Rank)
	}
	assert.Equal(t, "Alpha", movers[0].Name)
	assert.Equal(t, "+1.25", movers[0].Change)
	require.NotNil(t, movers[0].Volume)
	assert.Equal(t, int64(1000), *movers[0].Volume)
	assert.Equal(t, "Beta Corp", movers[1].Name)
	assert.Equal(t, "DDD", movers[2].Symbol)
}

func TestGetMoversHonoursCount(t *testing.T) {
	net := &fakeNetwork{responses: map[string]string{"/predefined/saved": screener}}
	movers, err := newSource(net).GetMovers(context.Background(), models.MoverGainers, 2)
	require.NoError(t, err)
	assert.Equal(t, "day_gainers", net.lastQuery["scrIds"])
	assert.Len(t, movers, 2)
}

func TestGetTrending(t *testing.T) {
	net := &fakeNetwork{responses: map[string]string{
		"/trending/US": `{"finance":{"result":[{"quotes":[{"symbol":"NVDA"},{"symbol":""},{"symbol":"PLTR"}]}],"error":null}}`,
	}}
	entries, err := newSource(net).GetTrending(context.Background(), 10)
	require.NoError(t, err)

	require.Len(t, entries, 2)
	assert.Equal(t, models.TrendingEntry{Symbol: "NVDA", Name: "NVDA", Rank: 1}, entries[0])
	assert.Equal(t, 2, entries[1].Rank)
}

const chartHistory = `{"chart":{"result":[{"meta":{"symbol":"AAPL","gmtoffset":-14400,"regularMarketPrice":3},
"timestamp":[1717767000,1717594200,1717680600,1717680601],
"indicators":{"quote":[{
"open":[3,1,2,2.5],"high":[3.5,1.5,2.5,2.6],"low":[2.5,0.5,1.5,2.4],"close":[3.2,1.2,2.2,2.45],"volume":[300,100,null,250]}]}}],"error":null}}`

func TestGetHistorySortsAndDedupes(t *testing.T) {
	net := &fakeNetwork{responses: map[string]string{"/chart/AAPL": chartHistory}}
	series, err := newSource(net).GetHistory(context.Background(), "AAPL", "1mo")
	require.NoError(t, err)
	assert.Equal(t, "1mo", net.lastQuery["range"])
	assert.Equal(t, "1d", series.Interval)

	require.Len(t, series.Bars, 3)
	assert.Equal(t, "2024-06-05", series.Bars[0].Date)
	assert.Equal(t, "2024-06-06", series.Bars[1].Date)
	assert.Equal(t, "2024-06-07", series.Bars[2].Date)
	// duplicate date keeps the last bar
	assert.InDelta(t, 2.45, series.Bars[1].Close, 1e-9)
	assert.Equal(t, int64(250), series.Bars[1].Volume)
}

func TestGetHistoryAlignmentError(t *testing.T) {
	net := &fakeNetwork{responses: map[string]string{
		"/chart/AAPL": `{"chart":{"result":[{"meta":{},"timestamp":[1,2],"indicators":{"quote":[{"open":[1],"high":[1],"low":[1],"close":[1],"volume":[1]}]}}]}}`,
	}}
	_, err := newSource(net).GetHistory(context.Background(), "AAPL", "5d")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "alignment")
}
