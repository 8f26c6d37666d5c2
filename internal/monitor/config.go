package monitor

import (
	"time"

	"execution-core/pkg/exchanges/common"
)

// TypeConfig holds the trigger thresholds for one order intent.
type TypeConfig struct {
	PriceAwayThreshold   float64       // fraction away from limit price
	Timeout              time.Duration // max age of a resting order
	RapidChangeThreshold float64       // fraction within the window
	RapidChangeWindow    time.Duration
}

// Config controls the watcher loops.
type Config struct {
	CheckInterval     time.Duration
	EmergencyInterval time.Duration
	Entry             TypeConfig
	TakeProfit        TypeConfig
}

// DefaultConfig returns the production thresholds. Entry orders give
// up quickly; take-profits are allowed to rest longer but react to
// larger rapid moves.
func DefaultConfig() Config {
	return Config{
		CheckInterval:     time.Second,
		EmergencyInterval: 500 * time.Millisecond,
		Entry: TypeConfig{
			PriceAwayThreshold:   0.005,
			Timeout:              30 * time.Second,
			RapidChangeThreshold: 0.003,
			RapidChangeWindow:    5 * time.Second,
		},
		TakeProfit: TypeConfig{
			PriceAwayThreshold:   0.005,
			Timeout:              60 * time.Second,
			RapidChangeThreshold: 0.01,
			RapidChangeWindow:    10 * time.Second,
		},
	}
}

// forIntent selects the thresholds for an order intent. Protective
// intents share the take-profit profile.
func (c Config) forIntent(intent common.Intent) TypeConfig {
	switch intent {
	case common.IntentTakeProfit, common.IntentStopLoss, common.IntentEmergencyClose:
		return c.TakeProfit
	default:
		return c.Entry
	}
}
