package analysis

import (
	"fmt"
	"math"

	"market-pulse/src/analysis/core"
	"market-pulse/src/models"
)

const (
	StrategyMomentum       = "momentum"
	StrategyMeanReversion  = "mean_reversion"
	StrategyTrendFollowing = "trend_following"
	StrategyBreakout       = "breakout"

	breakoutLookback = 20
)

// decision is what a strategy concludes from one history window
type decision struct {
	action     models.SignalAction
	confidence float64
	reason     string
}

type strategyFunc func(bars []models.Bar, snap models.IndicatorSnapshot) decision

var strategies = map[string]strategyFunc{
	StrategyMomentum:       momentum,
	StrategyMeanReversion:  meanReversion,
	StrategyTrendFollowing: trendFollowing,
	StrategyBreakout:       breakout,
}

// StrategyNames lists the built-in strategies in rotation order
func StrategyNames() []string {
	return []string{StrategyMomentum, StrategyMeanReversion, StrategyTrendFollowing, StrategyBreakout}
}

func insufficient(what string) decision {
	return decision{action: models.ActionHold, confidence: 30, reason: "insufficient history for " + what}
}

// -----------------------------------------------------------------------------

func momentum(bars []models.Bar, snap models.IndicatorSnapshot) decision {
	if snap.RSI == nil || snap.MACD == nil {
		return insufficient("RSI/MACD")
	}
	rsi, hist := *snap.RSI, snap.MACD.Histogram

	switch {
	case hist > 0 && rsi > 50 && rsi < 70:
		return decision{models.ActionBuy, 55 + (rsi-50)*1.5, fmt.Sprintf("MACD histogram positive (%.3f) with RSI %.1f rising", hist, rsi)}
	case hist < 0 && rsi < 50 && rsi > 30:
		return decision{models.ActionSell, 55 + (50-rsi)*1.5, fmt.Sprintf("MACD histogram negative (%.3f) with RSI %.1f falling", hist, rsi)}
	case rsi >= 70:
		return decision{models.ActionHold, 45, fmt.Sprintf("RSI %.1f overbought, momentum stretched", rsi)}
	case rsi <= 30:
		return decision{models.ActionHold, 45, fmt.Sprintf("RSI %.1f oversold, momentum exhausted", rsi)}
	default:
		return decision{models.ActionHold, 40, "MACD and RSI disagree"}
	}
}

// -----------------------------------------------------------------------------

func meanReversion(bars []models.Bar, snap models.IndicatorSnapshot) decision {
	if snap.Bollinger == nil {
		return insufficient("Bollinger bands")
	}
	last := bars[len(bars)-1].Close
	bb := *snap.Bollinger
	halfWidth := (bb.Upper - bb.Lower) / 2
	if halfWidth <= 0 {
		return decision{models.ActionHold, 35, "price range is flat"}
	}
	z := (last - bb.Middle) / halfWidth * 2

	rsiOversold := snap.RSI != nil && *snap.RSI < 30
	rsiOverbought := snap.RSI != nil && *snap.RSI > 70

	switch {
	case last < bb.Lower || rsiOversold:
		return decision{models.ActionBuy, 50 + math.Min(45, math.Abs(z)*15), fmt.Sprintf("price %.2f below lower band %.2f, expecting reversion to %.2f", last, bb.Lower, bb.Middle)}
	case last > bb.Upper || rsiOverbought:
		return decision{models.ActionSell, 50 + math.Min(45, math.Abs(z)*15), fmt.Sprintf("price %.2f above upper band %.2f, expecting reversion to %.2f", last, bb.Upper, bb.Middle)}
	default:
		return decision{models.ActionHold, 40 + math.Min(20, (2-math.Abs(z))*10), "price inside Bollinger bands"}
	}
}

// -----------------------------------------------------------------------------

func trendFollowing(bars []models.Bar, snap models.IndicatorSnapshot) decision {
	if snap.SMA20 == nil || snap.SMA50 == nil {
		return insufficient("SMA20/SMA50")
	}
	last := bars[len(bars)-1].Close
	fast, slow := *snap.SMA20, *snap.SMA50
	spread := math.Abs(core.CalculateChangePercent(fast, slow))

	switch {
	case last > fast && fast > slow:
		return decision{models.ActionBuy, 55 + math.Min(40, spread*8), fmt.Sprintf("uptrend: price above SMA20 %.2f above SMA50 %.2f", fast, slow)}
	case last < fast && fast < slow:
		return decision{models.ActionSell, 55 + math.Min(40, spread*8), fmt.Sprintf("downtrend: price below SMA20 %.2f below SMA50 %.2f", fast, slow)}
	default:
		return decision{models.ActionHold, 40, "no established trend"}
	}
}

// -----------------------------------------------------------------------------

func breakout(bars []models.Bar, snap models.IndicatorSnapshot) decision {
	if len(bars) < breakoutLookback+1 {
		return insufficient(fmt.Sprintf("%d-day range", breakoutLookback))
	}
	window := bars[len(bars)-breakoutLookback-1 : len(bars)-1]
	highs := make([]float64, len(window))
	lows := make([]float64, len(window))
	for i, b := range window {
		highs[i], lows[i] = b.High, b.Low
	}
	_, rangeHigh := core.MinMax(highs)
	rangeLow, _ := core.MinMax(lows)
	last := bars[len(bars)-1].Close

	switch {
	case last > rangeHigh:
		pct := core.CalculateChangePercent(last, rangeHigh)
		return decision{models.ActionBuy, 60 + math.Min(35, pct*10), fmt.Sprintf("closed %.2f above %d-day high %.2f", last, breakoutLookback, rangeHigh)}
	case last < rangeLow:
		pct := -core.CalculateChangePercent(last, rangeLow)
		return decision{models.ActionSell, 60 + math.Min(35, pct*10), fmt.Sprintf("closed %.2f below %d-day low %.2f", last, breakoutLookback, rangeLow)}
	default:
		return decision{models.ActionHold, 40, fmt.Sprintf("inside %d-day range %.2f-%.2f", breakoutLookback, rangeLow, rangeHigh)}
	}
}

// -----------------------------------------------------------------------------

// priceTarget sizes stop and target from daily volatility (percent)
func priceTarget(action models.SignalAction, last float64, snap models.IndicatorSnapshot) *models.PriceTarget {
	if action == models.ActionHold || last <= 0 {
		return nil
	}
	vol := 2.0
	if snap.Volatility != nil && *snap.Volatility > 0 {
		vol = *snap.Volatility
	}
	risk := last * vol / 100 * 2
	reward := risk * 1.5

	target := &models.PriceTarget{Entry: last}
	if action == models.ActionBuy {
		target.StopLoss = last - risk
		target.TakeProfit = last + reward
	} else {
		target.StopLoss = last + risk
		target.TakeProfit = last - reward
	}
	target.StopLoss = math.Max(0.01, math.Round(target.StopLoss*100)/100)
	target.TakeProfit = math.Max(0.01, math.Round(target.TakeProfit*100)/100)
	return target
}
