// Package performance aggregates execution attempts and closed trades
// into rolling metrics that feed tuning and operator reports.
package performance

import (
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"execution-core/pkg/exchanges/common"
)

const (
	maxExecutions = 1000
	maxTrades     = 500
)

// Execution is one order submission outcome.
type Execution struct {
	OrderID     int64
	Symbol      string
	Status      common.OrderStatus
	FillLatency time.Duration // zero when unknown
	Slippage    float64       // fraction of expected price
	Fee         float64
	At          time.Time
}

// Trade is one closed position.
type Trade struct {
	Symbol      string
	Side        common.PositionSide
	EntryPrice  float64
	ExitPrice   float64
	Quantity    float64
	Profit      float64
	HoldingTime time.Duration
	EntryType   string
	ExitType    string
	At          time.Time
}

// Metrics is a snapshot of derived statistics.
type Metrics struct {
	TotalExecutions int
	TotalTrades     int
	FillRate        float64
	AvgSlippage     float64
	AvgFillLatency  time.Duration
	WinRate         float64
	LongWinRate     float64
	ShortWinRate    float64
	ProfitFactor    float64 // +Inf when no losses but positive profit
	TotalProfit     float64
	AvgProfit       float64
	AvgHoldingTime  time.Duration
	MaxDrawdown     float64
	Sharpe          float64
}

// MarshalJSON renders the +Inf profit-factor sentinel as null, since
// JSON has no representation for infinity.
func (m Metrics) MarshalJSON() ([]byte, error) {
	type alias Metrics
	out := struct {
		alias
		ProfitFactor any `json:"ProfitFactor"`
	}{alias: alias(m), ProfitFactor: m.ProfitFactor}
	if math.IsInf(m.ProfitFactor, 1) {
		out.ProfitFactor = nil
	}
	return json.Marshal(out)
}

// Tracker records outcomes in bounded rolling buffers.
type Tracker struct {
	mu         sync.RWMutex
	executions []Execution
	trades     []Trade
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// RecordExecution appends an execution outcome, evicting the oldest
// entry once the buffer is full.
func (t *Tracker) RecordExecution(e Execution) {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.executions = append(t.executions, e)
	if len(t.executions) > maxExecutions {
		t.executions = t.executions[len(t.executions)-maxExecutions:]
	}
}

// RecordTrade appends a closed trade, evicting the oldest entry once
// the buffer is full.
func (t *Tracker) RecordTrade(tr Trade) {
	if tr.At.IsZero() {
		tr.At = time.Now()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.trades = append(t.trades, tr)
	if len(t.trades) > maxTrades {
		t.trades = t.trades[len(t.trades)-maxTrades:]
	}
}

// Reset discards all recorded history.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.executions = nil
	t.trades = nil
}

// Metrics derives the current statistics snapshot.
func (t *Tracker) Metrics() Metrics {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var m Metrics
	m.TotalExecutions = len(t.executions)
	m.TotalTrades = len(t.trades)

	if n := len(t.executions); n > 0 {
		filled := 0
		var slippage float64
		var latency time.Duration
		latencyCount := 0
		for _, e := range t.executions {
			if e.Status == common.StatusFilled {
				filled++
			}
			slippage += math.Abs(e.Slippage)
			if e.FillLatency > 0 {
				latency += e.FillLatency
				latencyCount++
			}
		}
		m.FillRate = float64(filled) / float64(n)
		m.AvgSlippage = slippage / float64(n)
		if latencyCount > 0 {
			m.AvgFillLatency = latency / time.Duration(latencyCount)
		}
	}

	if len(t.trades) == 0 {
		return m
	}

	var (
		wins, longs, longWins, shorts, shortWins int
		grossWin, grossLoss, total               float64
		holding                                  time.Duration
		profits                                  = make([]float64, 0, len(t.trades))
	)
	for _, tr := range t.trades {
		total += tr.Profit
		holding += tr.HoldingTime
		profits = append(profits, tr.Profit)
		if tr.Profit > 0 {
			wins++
			grossWin += tr.Profit
		} else if tr.Profit < 0 {
			grossLoss += -tr.Profit
		}
		// Per-direction win rates are derived from each direction's
		// own trades, not the overall rate.
		switch tr.Side {
		case common.PositionLong:
			longs++
			if tr.Profit > 0 {
				longWins++
			}
		case common.PositionShort:
			shorts++
			if tr.Profit > 0 {
				shortWins++
			}
		}
	}

	n := float64(len(t.trades))
	m.WinRate = float64(wins) / n
	if longs > 0 {
		m.LongWinRate = float64(longWins) / float64(longs)
	}
	if shorts > 0 {
		m.ShortWinRate = float64(shortWins) / float64(shorts)
	}
	m.TotalProfit = total
	m.AvgProfit = total / n
	m.AvgHoldingTime = holding / time.Duration(len(t.trades))
	m.ProfitFactor = profitFactor(grossWin, grossLoss)
	m.MaxDrawdown = maxDrawdown(profits)
	m.Sharpe = sharpe(profits)
	return m
}

// profitFactor is gross wins over gross losses; +Inf when profitable
// with zero losses, 0 with nothing to measure.
func profitFactor(grossWin, grossLoss float64) float64 {
	if grossLoss == 0 {
		if grossWin > 0 {
			return math.Inf(1)
		}
		return 0
	}
	return grossWin / grossLoss
}

// maxDrawdown is the largest peak-to-trough decline of the cumulative
// profit series in trade order.
func maxDrawdown(profits []float64) float64 {
	var cum, peak, worst float64
	for _, p := range profits {
		cum += p
		if cum > peak {
			peak = cum
		}
		if dd := peak - cum; dd > worst {
			worst = dd
		}
	}
	return worst
}

// sharpe is mean profit over its standard deviation, 0 when profits do
// not vary.
func sharpe(profits []float64) float64 {
	n := len(profits)
	if n < 2 {
		return 0
	}
	var mean float64
	for _, p := range profits {
		mean += p
	}
	mean /= float64(n)
	var ss float64
	for _, p := range profits {
		d := p - mean
		ss += d * d
	}
	sd := math.Sqrt(ss / float64(n-1))
	if sd == 0 {
		return 0
	}
	return mean / sd
}

// Suggestions produces fixed-threshold improvement hints from the
// current metrics.
func (t *Tracker) Suggestions() []string {
	m := t.Metrics()
	var out []string

	if m.TotalExecutions > 0 && m.FillRate < 0.7 {
		out = append(out, fmt.Sprintf("fill rate %.0f%% is low; consider market orders or looser limit prices", m.FillRate*100))
	}
	if m.TotalExecutions > 0 && m.AvgSlippage > 0.001 {
		out = append(out, fmt.Sprintf("average slippage %.3f%% is high; consider limit entries or smaller size", m.AvgSlippage*100))
	}
	if m.TotalTrades == 0 {
		return out
	}
	if m.WinRate < 0.4 {
		out = append(out, fmt.Sprintf("win rate %.0f%% is low; review entry conditions", m.WinRate*100))
	}
	if !math.IsInf(m.ProfitFactor, 1) && m.ProfitFactor < 1.5 {
		out = append(out, fmt.Sprintf("profit factor %.2f is weak; widen targets or tighten stops", m.ProfitFactor))
	}
	if m.AvgHoldingTime < 5*time.Minute {
		out = append(out, fmt.Sprintf("average holding time %s is short; entries may be premature", m.AvgHoldingTime.Round(time.Second)))
	}
	if m.MaxDrawdown > 0.1 {
		out = append(out, fmt.Sprintf("max drawdown %.4f exceeds tolerance; reduce position size", m.MaxDrawdown))
	}
	return out
}
