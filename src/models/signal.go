package models

import "math"

type SignalAction string

const (
	ActionBuy  SignalAction = "BUY"
	ActionSell SignalAction = "SELL"
	ActionHold SignalAction = "HOLD"
)

// MACDValue is the macd/signal/histogram triple
type MACDValue struct {
	MACD      float64 `json:"macd"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
}

type BollingerBands struct {
	Upper  float64 `json:"upper"`
	Middle float64 `json:"middle"`
	Lower  float64 `json:"lower"`
}

// IndicatorSnapshot fields are nil when the available history was too short
type IndicatorSnapshot struct {
	RSI        *float64        `json:"rsi,omitempty"`
	MACD       *MACDValue      `json:"macd,omitempty"`
	SMA20      *float64        `json:"sma20,omitempty"`
	SMA50      *float64        `json:"sma50,omitempty"`
	Bollinger  *BollingerBands `json:"bollinger,omitempty"`
	Volatility *float64        `json:"volatility,omitempty"`
}

type PriceTarget struct {
	Entry      float64 `json:"entry"`
	StopLoss   float64 `json:"stopLoss"`
	TakeProfit float64 `json:"takeProfit"`
}

type Signal struct {
	ID          string            `json:"id,omitempty"`
	Symbol      string            `json:"symbol"`
	Action      SignalAction      `json:"action"`
	Confidence  float64           `json:"confidence"`
	Reason      string            `json:"reason"`
	Strategy    string            `json:"strategy"`
	Indicators  IndicatorSnapshot `json:"indicators"`
	PriceTarget *PriceTarget      `json:"priceTarget,omitempty"`
	Source      string            `json:"source,omitempty"` // history origin: cache, upstream, synthetic
	Timestamp   int64             `json:"timestamp"`
}

// ClampConfidence bounds c to [0,100]; NaN maps to 0
func ClampConfidence(c float64) float64 {
	if math.IsNaN(c) || c < 0 {
		return 0
	}
	if c > 100 {
		return 100
	}
	return c
}
