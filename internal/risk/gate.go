// Package risk decides whether an order is safe to submit. Checks run
// in a fixed order and short-circuit on the first failure.
package risk

import (
	"fmt"
	"log"
	"math"

	"execution-core/pkg/exchanges/common"
)

// Market condition verdicts.
const (
	ConditionNormal           = "NORMAL"
	ConditionHighVolatility   = "HIGH_VOLATILITY"
	ConditionLowVolume        = "LOW_VOLUME"
	ConditionInsufficientData = "INSUFFICIENT_DATA"
)

// candleWindow is the lookback used for the market-condition check.
const candleWindow = 20

// Config bounds for the gate. Ratios are fractions, not percents.
type Config struct {
	MaxPriceDeviation float64 // order vs current price, default 0.005
	MinStopDistance   float64 // default 0.005
	MaxStopDistance   float64 // default 0.02
	MaxVolatility     float64 // default 0.02
	MinVolumeRatio    float64 // default 0.5
}

// DefaultConfig returns the standard production bounds.
func DefaultConfig() Config {
	return Config{
		MaxPriceDeviation: 0.005,
		MinStopDistance:   0.005,
		MaxStopDistance:   0.02,
		MaxVolatility:     0.02,
		MinVolumeRatio:    0.5,
	}
}

// ValidationError is a definitive risk rejection. It is returned
// synchronously and never retried.
type ValidationError struct {
	Check  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("risk check %s failed: %s", e.Check, e.Reason)
}

// Assessment captures the measured values behind a verdict.
type Assessment struct {
	PriceDeviation   float64
	StopLossDistance float64
	Volatility       float64
	VolumeRatio      float64
	MarketCondition  string
}

// Gate evaluates orders against the configured bounds.
type Gate struct {
	cfg Config
}

// NewGate creates a gate. Zero-valued config fields fall back to the
// defaults.
func NewGate(cfg Config) *Gate {
	def := DefaultConfig()
	if cfg.MaxPriceDeviation <= 0 {
		cfg.MaxPriceDeviation = def.MaxPriceDeviation
	}
	if cfg.MinStopDistance <= 0 {
		cfg.MinStopDistance = def.MinStopDistance
	}
	if cfg.MaxStopDistance <= 0 {
		cfg.MaxStopDistance = def.MaxStopDistance
	}
	if cfg.MaxVolatility <= 0 {
		cfg.MaxVolatility = def.MaxVolatility
	}
	if cfg.MinVolumeRatio <= 0 {
		cfg.MinVolumeRatio = def.MinVolumeRatio
	}
	return &Gate{cfg: cfg}
}

// Check runs the three ordered checks. stopLoss <= 0 skips the stop
// distance check; fewer than 20 candles passes the market check with
// INSUFFICIENT_DATA. A nil error means the order may be submitted.
func (g *Gate) Check(symbol string, side common.PositionSide, orderPrice, currentPrice, stopLoss float64, candles []common.Candle) (Assessment, error) {
	var a Assessment

	if currentPrice <= 0 || orderPrice <= 0 {
		return a, &ValidationError{Check: "price_sanity", Reason: fmt.Sprintf("non-positive price: order=%v current=%v", orderPrice, currentPrice)}
	}

	// 1. Directional sanity, then deviation magnitude.
	if side == common.PositionLong && orderPrice > currentPrice {
		return a, &ValidationError{Check: "price_sanity",
			Reason: fmt.Sprintf("LONG order price %.4f above current %.4f", orderPrice, currentPrice)}
	}
	if side == common.PositionShort && orderPrice < currentPrice {
		return a, &ValidationError{Check: "price_sanity",
			Reason: fmt.Sprintf("SHORT order price %.4f below current %.4f", orderPrice, currentPrice)}
	}
	a.PriceDeviation = math.Abs(orderPrice-currentPrice) / currentPrice
	if a.PriceDeviation > g.cfg.MaxPriceDeviation {
		return a, &ValidationError{Check: "price_deviation",
			Reason: fmt.Sprintf("deviation %.4f%% exceeds max %.4f%%", a.PriceDeviation*100, g.cfg.MaxPriceDeviation*100)}
	}

	// 2. Stop distance, direction-aware.
	if stopLoss > 0 {
		var dist float64
		if side == common.PositionLong {
			dist = (orderPrice - stopLoss) / orderPrice
		} else {
			dist = (stopLoss - orderPrice) / orderPrice
		}
		if dist <= 0 {
			return a, &ValidationError{Check: "stop_distance",
				Reason: fmt.Sprintf("stop %.4f on the wrong side of order price %.4f for %s", stopLoss, orderPrice, side)}
		}
		a.StopLossDistance = dist
		if dist < g.cfg.MinStopDistance || dist > g.cfg.MaxStopDistance {
			return a, &ValidationError{Check: "stop_distance",
				Reason: fmt.Sprintf("stop distance %.4f%% outside [%.4f%%, %.4f%%]", dist*100, g.cfg.MinStopDistance*100, g.cfg.MaxStopDistance*100)}
		}
	}

	// 3. Market condition over the last 20 candles.
	if len(candles) < candleWindow {
		a.MarketCondition = ConditionInsufficientData
		log.Printf("risk: %s market check skipped, %d/%d candles", symbol, len(candles), candleWindow)
		return a, nil
	}
	window := candles[len(candles)-candleWindow:]
	a.Volatility = CloseVolatility(window)
	a.VolumeRatio = VolumeRatio(window)

	if a.Volatility > g.cfg.MaxVolatility {
		a.MarketCondition = ConditionHighVolatility
		return a, &ValidationError{Check: "market_condition",
			Reason: fmt.Sprintf("volatility %.4f%% exceeds %.4f%%", a.Volatility*100, g.cfg.MaxVolatility*100)}
	}
	if a.VolumeRatio < g.cfg.MinVolumeRatio {
		a.MarketCondition = ConditionLowVolume
		return a, &ValidationError{Check: "market_condition",
			Reason: fmt.Sprintf("volume ratio %.2f below %.2f", a.VolumeRatio, g.cfg.MinVolumeRatio)}
	}
	a.MarketCondition = ConditionNormal
	return a, nil
}

// CloseVolatility is the sample standard deviation of close-to-close
// returns across the candles.
func CloseVolatility(candles []common.Candle) float64 {
	if len(candles) < 2 {
		return 0
	}
	returns := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		prev := candles[i-1].Close
		if prev == 0 {
			continue
		}
		returns = append(returns, (candles[i].Close-prev)/prev)
	}
	return stdev(returns)
}

// VolumeRatio compares the latest candle's volume to the window mean.
func VolumeRatio(candles []common.Candle) float64 {
	if len(candles) == 0 {
		return 0
	}
	var sum float64
	for _, c := range candles {
		sum += c.Volume
	}
	mean := sum / float64(len(candles))
	if mean == 0 {
		return 0
	}
	return candles[len(candles)-1].Volume / mean
}

// TrendStrength is the share of upward close-to-close moves in the
// window, in [0, 1]. 0.5 is trendless.
func TrendStrength(candles []common.Candle) float64 {
	if len(candles) < 2 {
		return 0.5
	}
	up := 0
	for i := 1; i < len(candles); i++ {
		if candles[i].Close > candles[i-1].Close {
			up++
		}
	}
	return float64(up) / float64(len(candles)-1)
}

func stdev(xs []float64) float64 {
	n := len(xs)
	if n < 2 {
		return 0
	}
	var mean float64
	for _, x := range xs {
		mean += x
	}
	mean /= float64(n)

	var ss float64
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(n-1))
}
