package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"market-pulse/src/helpers"
	"market-pulse/src/interfaces"
	"market-pulse/src/logger"
	"market-pulse/src/metrics"
	"market-pulse/src/models"
)

const ProviderName = "yahoo"

// YahooFinanceSource implements interfaces.IQuoteProvider against the public
// Yahoo Finance JSON endpoints.
type YahooFinanceSource struct {
	Config  *models.MConfig
	Network interfaces.INetworkManager
	Logger  *logger.Logger
	Metrics *metrics.Metrics
	baseURL string
	now     func() time.Time
}

// -----------------------------------------------------------------------------

func NewYahooFinanceSource(cfg *models.MConfig, netMgr interfaces.INetworkManager, log *logger.Logger, m *metrics.Metrics) *YahooFinanceSource {
	return &YahooFinanceSource{
		Config:  cfg,
		Network: netMgr,
		Logger:  log,
		Metrics: m,
		baseURL: strings.TrimRight(cfg.Network.BaseURL, "/"),
		now:     time.Now,
	}
}

// -----------------------------------------------------------------------------

func (s *YahooFinanceSource) Name() string {
	return ProviderName
}

// -----------------------------------------------------------------------------

func (s *YahooFinanceSource) get(ctx context.Context, operation, path string, params map[string]string) ([]byte, error) {
	start := time.Now()
	body, err := s.Network.Get(ctx, s.baseURL+path, params)
	s.Metrics.RecordUpstream(operation, err, time.Since(start))
	return body, err
}

// -----------------------------------------------------------------------------

// GetQuote reads the latest quote from the chart endpoint meta block
func (s *YahooFinanceSource) GetQuote(ctx context.Context, symbol string) (models.Quote, error) {
	params := map[string]string{
		"interval":       "1d",
		"range":          "1d",
		"includePrePost": "false",
	}

	respBytes, err := s.get(ctx, "quote", "/v8/finance/chart/"+symbol, params)
	if err != nil {
		return models.Quote{}, helpers.NewUpstreamError(symbol, "quote request failed", err)
	}

	quote, err := parseQuote(symbol, respBytes, s.now())
	if err != nil {
		return models.Quote{}, helpers.NewUpstreamError(symbol, "quote parse failed", err)
	}
	return quote, nil
}

// -----------------------------------------------------------------------------

// GetMovers fetches one predefined screener (day_gainers / day_losers)
func (s *YahooFinanceSource) GetMovers(ctx context.Context, kind models.MoverKind, count int) ([]models.Mover, error) {
	screener := "day_gainers"
	if kind == models.MoverLosers {
		screener = "day_losers"
	}

	params := map[string]string{
		"scrIds":    screener,
		"count":     fmt.Sprintf("%d", count),
		"formatted": "false",
	}

	respBytes, err := s.get(ctx, "movers", "/v1/finance/screener/predefined/saved", params)
	if err != nil {
		return nil, helpers.NewUpstreamError(string(kind), "movers request failed", err)
	}

	movers, err := parseMovers(respBytes, count)
	if err != nil {
		return nil, helpers.NewUpstreamError(string(kind), "movers parse failed", err)
	}
	return movers, nil
}

// -----------------------------------------------------------------------------

func (s *YahooFinanceSource) GetTrending(ctx context.Context, count int) ([]models.TrendingEntry, error) {
	params := map[string]string{"count": fmt.Sprintf("%d", count)}

	respBytes, err := s.get(ctx, "trending", "/v1/finance/trending/US", params)
	if err != nil {
		return nil, helpers.NewUpstreamError("", "trending request failed", err)
	}

	entries, err := parseTrending(respBytes, count)
	if err != nil {
		return nil, helpers.NewUpstreamError("", "trending parse failed", err)
	}
	return entries, nil
}

// -----------------------------------------------------------------------------

// GetHistory fetches daily bars for rangeLabel (5d, 1mo, 3mo, 6mo, 1y)
func (s *YahooFinanceSource) GetHistory(ctx context.Context, symbol string, rangeLabel string) (models.HistoricalSeries, error) {
	params := map[string]string{
		"interval":       "1d",
		"range":          rangeLabel,
		"includePrePost": "false",
	}

	respBytes, err := s.get(ctx, "history", "/v8/finance/chart/"+symbol, params)
	if err != nil {
		return models.HistoricalSeries{}, helpers.NewUpstreamError(symbol, "history request failed", err)
	}

	bars, err := s.parseChartBars(symbol, respBytes)
	if err != nil {
		return models.HistoricalSeries{}, helpers.NewUpstreamError(symbol, "history parse failed", err)
	}

	return models.HistoricalSeries{Symbol: symbol, Interval: "1d", Bars: bars}, nil
}

// -----------------------------------------------------------------------------

type YahooChartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Currency             string   `json:"currency"`
				Symbol               string   `json:"symbol"`
				RegularMarketTime    int64    `json:"regularMarketTime"`
				Gmtoffset            int64    `json:"gmtoffset"`
				RegularMarketPrice   float64  `json:"regularMarketPrice"`
				ChartPreviousClose   float64  `json:"chartPreviousClose"`
				PreviousClose        float64  `json:"previousClose"`
				RegularMarketVolume  int64    `json:"regularMarketVolume"`
				RegularMarketDayHigh *float64 `json:"regularMarketDayHigh"`
				RegularMarketDayLow  *float64 `json:"regularMarketDayLow"`
				MarketCap            *float64 `json:"marketCap"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Open   []*float64 `json:"open"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *yahooError `json:"error"`
	} `json:"chart"`
}

type yahooError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// -----------------------------------------------------------------------------

func decodeChart(data []byte) (*YahooChartResponse, error) {
	var resp YahooChartResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("json unmarshal failed: %w", err)
	}
	if resp.Chart.Error != nil {
		return nil, fmt.Errorf("yahoo api error: %s - %s", resp.Chart.Error.Code, resp.Chart.Error.Description)
	}
	if len(resp.Chart.Result) == 0 {
		return nil, fmt.Errorf("no result in response")
	}
	return &resp, nil
}

// -----------------------------------------------------------------------------

func parseQuote(symbol string, data []byte, now time.Time) (models.Quote, error) {
	resp, err := decodeChart(data)
	if err != nil {
		return models.Quote{}, err
	}

	meta := resp.Chart.Result[0].Meta
	if meta.RegularMarketPrice <= 0 {
		return models.Quote{}, fmt.Errorf("no market price for %s", symbol)
	}

	prevClose := meta.ChartPreviousClose
	if prevClose <= 0 {
		prevClose = meta.PreviousClose
	}

	quote := models.Quote{
		Symbol:    symbol,
		Price:     meta.RegularMarketPrice,
		Volume:    meta.RegularMarketVolume,
		MarketCap: meta.MarketCap,
		DayHigh:   meta.RegularMarketDayHigh,
		DayLow:    meta.RegularMarketDayLow,
		Timestamp: now.UnixMilli(),
	}
	if prevClose > 0 {
		quote.Change = meta.RegularMarketPrice - prevClose
		quote.ChangePercent = quote.Change / prevClose * 100
	}
	return quote, nil
}

// -----------------------------------------------------------------------------

func (s *YahooFinanceSource) parseChartBars(symbol string, data []byte) ([]models.Bar, error) {
	resp, err := decodeChart(data)
	if err != nil {
		return nil, err
	}

	result := resp.Chart.Result[0]
	if len(result.Timestamp) == 0 {
		return nil, fmt.Errorf("no timestamps in response for %s", symbol)
	}
	if len(result.Indicators.Quote) == 0 {
		return nil, fmt.Errorf("no quote data in response for %s", symbol)
	}

	quote := result.Indicators.Quote[0]
	n := len(result.Timestamp)
	if len(quote.Close) != n || len(quote.Open) != n || len(quote.High) != n || len(quote.Low) != n || len(quote.Volume) != n {
		s.Logger.Info("Data alignment error for %s: Mismatched array lengths", symbol)
		return nil, fmt.Errorf("data alignment error for %s", symbol)
	}

	bars := make([]models.Bar, 0, n)
	for i, ts := range result.Timestamp {
		if quote.Open[i] == nil || quote.High[i] == nil || quote.Low[i] == nil || quote.Close[i] == nil {
			s.Logger.Debug("Skipping null OHLC for %s at index %d", symbol, i)
			continue
		}
		if *quote.Close[i] <= 0 {
			continue
		}

		var volume int64
		if quote.Volume[i] != nil && *quote.Volume[i] > 0 {
			volume = int64(*quote.Volume[i])
		}

		// exchange-local calendar date
		date := time.Unix(ts+result.Meta.Gmtoffset, 0).UTC().Format("2006-01-02")
		bars = append(bars, models.Bar{
			Date:   date,
			Open:   *quote.Open[i],
			High:   *quote.High[i],
			Low:    *quote.Low[i],
			Close:  *quote.Close[i],
			Volume: volume,
		})
	}

	bars = models.NormalizeBars(bars)
	if len(bars) == 0 {
		return nil, fmt.Errorf("no valid data points for %s", symbol)
	}

	s.Logger.Debug("Fetched %s: %d bars [%s -> %s]", symbol, len(bars), bars[0].Date, bars[len(bars)-1].Date)
	return bars, nil
}

// -----------------------------------------------------------------------------

type yahooFinanceResponse struct {
	Finance struct {
		Result []struct {
			Quotes []yahooScreenerQuote `json:"quotes"`
		} `json:"result"`
		Error *yahooError `json:"error"`
	} `json:"finance"`
}

type yahooScreenerQuote struct {
	Symbol                     string   `json:"symbol"`
	ShortName                  string   `json:"shortName"`
	LongName                   string   `json:"longName"`
	Currency                   string   `json:"currency"`
	RegularMarketPrice         *float64 `json:"regularMarketPrice"`
	RegularMarketChange        *float64 `json:"regularMarketChange"`
	RegularMarketChangePercent *float64 `json:"regularMarketChangePercent"`
	RegularMarketVolume        *int64   `json:"regularMarketVolume"`
}

func (q yahooScreenerQuote) name() string {
	switch {
	case q.ShortName != "":
		return q.ShortName
	case q.LongName != "":
		return q.LongName
	default:
		return q.Symbol
	}
}

// -----------------------------------------------------------------------------

func decodeFinance(data []byte) ([]yahooScreenerQuote, error) {
	var resp yahooFinanceResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("json unmarshal failed: %w", err)
	}
	if resp.Finance.Error != nil {
		return nil, fmt.Errorf("yahoo api error: %s - %s", resp.Finance.Error.Code, resp.Finance.Error.Description)
	}
	if len(resp.Finance.Result) == 0 {
		return nil, fmt.Errorf("no result in response")
	}
	return resp.Finance.Result[0].Quotes, nil
}

// -----------------------------------------------------------------------------

func parseMovers(data []byte, count int) ([]models.Mover, error) {
	quotes, err := decodeFinance(data)
	if err != nil {
		return nil, err
	}

	movers := make([]models.Mover, 0, len(quotes))
	for _, q := range quotes {
		if q.Symbol == "" || q.RegularMarketPrice == nil {
			continue
		}
		m := models.Mover{
			Symbol:   q.Symbol,
			Name:     q.name(),
			Price:    *q.RegularMarketPrice,
			Volume:   q.RegularMarketVolume,
			Currency: q.Currency,
		}
		if q.RegularMarketChange != nil {
			m.Change = fmt.Sprintf("%+.2f", *q.RegularMarketChange)
		}
		if q.RegularMarketChangePercent != nil {
			m.ChangePercent = *q.RegularMarketChangePercent
		}
		movers = append(movers, m)
		if count > 0 && len(movers) == count {
			break
		}
	}
	return models.RankMovers(movers), nil
}

// -----------------------------------------------------------------------------

func parseTrending(data []byte, count int) ([]models.TrendingEntry, error) {
	quotes, err := decodeFinance(data)
	if err != nil {
		return nil, err
	}

	entries := make([]models.TrendingEntry, 0, len(quotes))
	for _, q := range quotes {
		if q.Symbol == "" {
			continue
		}
		entries = append(entries, models.TrendingEntry{
			Symbol:        q.Symbol,
			Name:          q.name(),
			Price:         q.RegularMarketPrice,
			ChangePercent: q.RegularMarketChangePercent,
		})
		if count > 0 && len(entries) == count {
			break
		}
	}
	return models.RankTrending(entries), nil
}
