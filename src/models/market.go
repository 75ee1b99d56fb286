package models

import (
	"sort"
)

// -----------------------------------------------------------------------------
// Quote
// -----------------------------------------------------------------------------

// Quote is one upstream price observation. Never mutated once built, only
// superseded by a newer Quote for the same symbol.
type Quote struct {
	Symbol        string   `json:"symbol"`
	Price         float64  `json:"price"`
	Change        float64  `json:"change"`
	ChangePercent float64  `json:"changePercent"`
	Volume        int64    `json:"volume"`
	MarketCap     *float64 `json:"marketCap,omitempty"`
	DayHigh       *float64 `json:"dayHigh,omitempty"`
	DayLow        *float64 `json:"dayLow,omitempty"`
	Timestamp     int64    `json:"timestamp"` // epoch millis
}

// -----------------------------------------------------------------------------
// Movers
// -----------------------------------------------------------------------------

type MoverKind string

const (
	MoverGainers MoverKind = "gainers"
	MoverLosers  MoverKind = "losers"
)

// Mover is a single gainer or loser entry. Rank is 1-based within its list
// and only meaningful inside the snapshot that produced it.
type Mover struct {
	Symbol        string  `json:"symbol"`
	Name          string  `json:"name"`
	Price         float64 `json:"price"`
	Change        string  `json:"change,omitempty"`
	ChangePercent float64 `json:"changePercent"`
	Volume        *int64  `json:"volume,omitempty"`
	Currency      string  `json:"currency,omitempty"`
	Rank          int     `json:"rank"`
}

// MoversSnapshot pairs both lists captured at one instant
type MoversSnapshot struct {
	Gainers   []Mover `json:"gainers"`
	Losers    []Mover `json:"losers"`
	Timestamp int64   `json:"timestamp"`
}

// RankMovers returns a copy of list with ranks rewritten to 1..len(list)
// in the given order.
func RankMovers(list []Mover) []Mover {
	out := make([]Mover, len(list))
	for i, m := range list {
		m.Rank = i + 1
		out[i] = m
	}
	return out
}

// -----------------------------------------------------------------------------
// Trending
// -----------------------------------------------------------------------------

type TrendingEntry struct {
	Symbol        string   `json:"symbol"`
	Name          string   `json:"name"`
	Rank          int      `json:"rank"`
	Price         *float64 `json:"price,omitempty"`
	ChangePercent *float64 `json:"changePercent,omitempty"`
}

// RankTrending rewrites ranks to 1..len(list)
func RankTrending(list []TrendingEntry) []TrendingEntry {
	out := make([]TrendingEntry, len(list))
	for i, e := range list {
		e.Rank = i + 1
		out[i] = e
	}
	return out
}

// -----------------------------------------------------------------------------
// Historical
// -----------------------------------------------------------------------------

// Bar is one OHLCV bar keyed by date (YYYY-MM-DD)
type Bar struct {
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
}

type HistoricalSeries struct {
	Symbol   string `json:"symbol"`
	Interval string `json:"interval"`
	Bars     []Bar  `json:"data"`
}

// NormalizeBars sorts bars ascending by date and keeps the last bar seen
// for any duplicated date.
func NormalizeBars(bars []Bar) []Bar {
	byDate := make(map[string]Bar, len(bars))
	for _, b := range bars {
		byDate[b.Date] = b
	}

	out := make([]Bar, 0, len(byDate))
	for _, b := range byDate {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

// Closes extracts closing prices in order
func Closes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}
