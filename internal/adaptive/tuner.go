// Package adaptive nudges sizing and stop/target multipliers from
// recent trade outcomes and market conditions. All adjustments are
// bounded; only an explicit reset returns to identity.
package adaptive

import (
	"log"
	"sync"
)

const (
	historyLimit = 100
	minTrades    = 10

	posSizeMin = 0.5
	posSizeMax = 1.5
	stopMin    = 0.7
	stopMax    = 1.5
	targetMin  = 0.7
	targetMax  = 1.5
	offsetMax  = 0.1
)

// Params are the multipliers applied to subsequent orders. Identity is
// 1.0 for multipliers and 0 for the entry offset.
type Params struct {
	PositionSize float64
	StopLoss     float64
	TakeProfit   float64
	EntryOffset  float64
}

// MarketSnapshot is the current market condition used for
// market-driven nudges.
type MarketSnapshot struct {
	Volatility    float64
	TrendStrength float64 // [0,1], 0.5 is trendless
	VolumeRatio   float64
}

// Stats summarizes the rolling trade history.
type Stats struct {
	Trades       int
	WinRate      float64
	ProfitFactor float64
	AvgWin       float64
	AvgLoss      float64
	WinStreak    int
	LossStreak   int
}

// Tuner holds a bounded trade history and the tuned parameters.
type Tuner struct {
	mu         sync.Mutex
	profits    []float64
	winStreak  int
	lossStreak int
	params     Params
}

// NewTuner starts at identity parameters.
func NewTuner() *Tuner {
	return &Tuner{params: identity()}
}

func identity() Params {
	return Params{PositionSize: 1.0, StopLoss: 1.0, TakeProfit: 1.0}
}

// RecordTrade ingests a closed trade's profit, updates streaks and,
// once enough samples exist, applies the performance-driven nudges.
func (t *Tuner) RecordTrade(profit float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.profits = append(t.profits, profit)
	if len(t.profits) > historyLimit {
		t.profits = t.profits[len(t.profits)-historyLimit:]
	}
	if profit > 0 {
		t.winStreak++
		t.lossStreak = 0
	} else if profit < 0 {
		t.lossStreak++
		t.winStreak = 0
	}

	if len(t.profits) < minTrades {
		return
	}
	t.adjustFromPerformance()
}

// adjustFromPerformance applies win-rate, streak and profit-factor
// nudges. Caller holds t.mu.
func (t *Tuner) adjustFromPerformance() {
	st := t.statsLocked()

	switch {
	case st.WinRate >= 0.6:
		t.params.PositionSize = clamp(t.params.PositionSize*1.1, posSizeMin, posSizeMax)
	case st.WinRate <= 0.4:
		t.params.PositionSize = clamp(t.params.PositionSize*0.9, posSizeMin, posSizeMax)
	}

	if t.lossStreak >= 3 {
		old := t.params.PositionSize
		t.params.PositionSize = clamp(t.params.PositionSize*0.7, posSizeMin, posSizeMax)
		log.Printf("adaptive: %d consecutive losses, position size %.2f -> %.2f", t.lossStreak, old, t.params.PositionSize)
	} else if t.winStreak >= 3 {
		t.params.PositionSize = clamp(t.params.PositionSize*1.05, posSizeMin, posSizeMax)
	}

	switch {
	case st.ProfitFactor >= 2.0:
		t.params.StopLoss = clamp(t.params.StopLoss*1.05, stopMin, stopMax)
	case st.ProfitFactor <= 1.0:
		t.params.StopLoss = clamp(t.params.StopLoss*0.95, stopMin, stopMax)
	}
}

// AdjustForMarket applies the market-driven nudges: volatility widens
// or narrows stops, trend strength scales targets, and thin volume
// raises the entry threshold offset.
func (t *Tuner) AdjustForMarket(snap MarketSnapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if snap.Volatility > 0.02 {
		t.params.StopLoss = clamp(t.params.StopLoss*1.1, stopMin, stopMax)
	} else if snap.Volatility > 0 && snap.Volatility < 0.01 {
		t.params.StopLoss = clamp(t.params.StopLoss*0.9, stopMin, stopMax)
	}

	if snap.TrendStrength > 0.7 {
		t.params.TakeProfit = clamp(t.params.TakeProfit*1.1, targetMin, targetMax)
	} else if snap.TrendStrength > 0 && snap.TrendStrength < 0.3 {
		t.params.TakeProfit = clamp(t.params.TakeProfit*0.9, targetMin, targetMax)
	}

	if snap.VolumeRatio > 0 && snap.VolumeRatio < 0.5 {
		t.params.EntryOffset = clamp(t.params.EntryOffset+0.01, 0, offsetMax)
	} else if snap.VolumeRatio > 1.5 {
		t.params.EntryOffset = clamp(t.params.EntryOffset-0.005, 0, offsetMax)
	}
}

// Params returns the current multipliers.
func (t *Tuner) Params() Params {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.params
}

// Stats returns the rolling-history summary.
func (t *Tuner) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.statsLocked()
}

func (t *Tuner) statsLocked() Stats {
	st := Stats{
		Trades:     len(t.profits),
		WinStreak:  t.winStreak,
		LossStreak: t.lossStreak,
	}
	if st.Trades == 0 {
		return st
	}
	var wins, losses int
	var grossWin, grossLoss float64
	for _, p := range t.profits {
		if p > 0 {
			wins++
			grossWin += p
		} else if p < 0 {
			losses++
			grossLoss += -p
		}
	}
	st.WinRate = float64(wins) / float64(st.Trades)
	if wins > 0 {
		st.AvgWin = grossWin / float64(wins)
	}
	if losses > 0 {
		st.AvgLoss = grossLoss / float64(losses)
	}
	if grossLoss > 0 {
		st.ProfitFactor = grossWin / grossLoss
	} else if grossWin > 0 {
		st.ProfitFactor = grossWin // no losses yet; treat as strongly positive
	}
	return st
}

// Reset returns all parameters to identity and clears history.
func (t *Tuner) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.profits = nil
	t.winStreak = 0
	t.lossStreak = 0
	t.params = identity()
	log.Printf("adaptive: parameters reset to identity")
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
