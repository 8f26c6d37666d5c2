// Package position tracks at most one open futures position per symbol
// and derives protective stop prices from a target ROI.
package position

import (
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"execution-core/pkg/exchanges/common"
)

// Position is a single open futures position.
type Position struct {
	Symbol       string
	Side         common.PositionSide
	EntryPrice   float64
	Quantity     float64
	Leverage     int
	EntryTime    time.Time
	StopLossROI  float64 // configured ROI at which the stop sits, e.g. 0.05
	StopLossDist float64 // derived price distance from entry
}

// StopLossPrice returns the protective stop derived from StopLossROI:
// the price change equals |roi| * entry / leverage, below entry for
// LONG and above for SHORT.
func (p *Position) StopLossPrice() float64 {
	if p.Side == common.PositionLong {
		return p.EntryPrice - p.StopLossDist
	}
	return p.EntryPrice + p.StopLossDist
}

// PnL returns the unrealized profit at currentPrice.
func (p *Position) PnL(currentPrice float64) float64 {
	if p.Side == common.PositionLong {
		return (currentPrice - p.EntryPrice) * p.Quantity
	}
	return (p.EntryPrice - currentPrice) * p.Quantity
}

// ROI returns the return on margin at currentPrice: the price-change
// rate scaled by leverage.
func (p *Position) ROI(currentPrice float64) float64 {
	if p.EntryPrice == 0 || p.Quantity == 0 {
		return 0
	}
	rate := p.PnL(currentPrice) / (p.EntryPrice * p.Quantity)
	return rate * float64(p.Leverage)
}

// CloseResult is the realized outcome of closing a position.
type CloseResult struct {
	Position    Position
	ExitPrice   float64
	PnL         float64
	ROI         float64
	HoldingTime time.Duration
	Forced      bool
}

// Store keeps the single-slot-per-symbol position book.
type Store struct {
	mu          sync.RWMutex
	positions   map[string]*Position
	stopLossROI float64
}

// NewStore creates a position store. stopLossROI is the default ROI
// distance for derived stops (e.g. 0.05 for 5% of margin).
func NewStore(stopLossROI float64) *Store {
	return &Store{
		positions:   make(map[string]*Position),
		stopLossROI: stopLossROI,
	}
}

// Open creates the position for symbol. If a position already exists
// it is force-closed at entryPrice first; that is a policy decision,
// not an error, and the realized result is returned alongside the new
// position so the caller can record it.
func (s *Store) Open(symbol string, side common.PositionSide, entryPrice, quantity float64, leverage int) (*Position, *CloseResult, error) {
	if entryPrice <= 0 || quantity <= 0 {
		return nil, nil, fmt.Errorf("open %s: invalid entry price %v / quantity %v", symbol, entryPrice, quantity)
	}
	if leverage < 1 {
		leverage = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var forced *CloseResult
	if prev, ok := s.positions[symbol]; ok {
		res := s.closeLocked(prev, entryPrice)
		res.Forced = true
		forced = &res
		log.Printf("position: %s already open (%s), force closed before new entry: pnl=%.4f roi=%.2f%%",
			symbol, prev.Side, res.PnL, res.ROI*100)
	}

	pos := &Position{
		Symbol:       symbol,
		Side:         side,
		EntryPrice:   entryPrice,
		Quantity:     quantity,
		Leverage:     leverage,
		EntryTime:    time.Now(),
		StopLossROI:  s.stopLossROI,
		StopLossDist: math.Abs(s.stopLossROI) * entryPrice / float64(leverage),
	}
	s.positions[symbol] = pos

	log.Printf("position: opened %s %s entry=%.4f qty=%v lev=%dx stop=%.4f",
		symbol, side, entryPrice, quantity, leverage, pos.StopLossPrice())
	return pos, forced, nil
}

// Close realizes the position at currentPrice and clears the slot.
func (s *Store) Close(symbol string, currentPrice float64) (CloseResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, ok := s.positions[symbol]
	if !ok {
		return CloseResult{}, fmt.Errorf("close %s: no open position", symbol)
	}
	res := s.closeLocked(pos, currentPrice)
	log.Printf("position: closed %s %s exit=%.4f pnl=%.4f roi=%.2f%% held=%s",
		symbol, pos.Side, currentPrice, res.PnL, res.ROI*100, res.HoldingTime.Round(time.Second))
	return res, nil
}

// closeLocked computes the realized outcome and clears the slot.
// Caller holds s.mu.
func (s *Store) closeLocked(pos *Position, exitPrice float64) CloseResult {
	res := CloseResult{
		Position:    *pos,
		ExitPrice:   exitPrice,
		PnL:         pos.PnL(exitPrice),
		ROI:         pos.ROI(exitPrice),
		HoldingTime: time.Since(pos.EntryTime),
	}
	delete(s.positions, pos.Symbol)
	return res
}

// ShouldStopLoss reports whether currentPrice has crossed the derived
// stop in the adverse direction.
func (s *Store) ShouldStopLoss(symbol string, currentPrice float64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pos, ok := s.positions[symbol]
	if !ok {
		return false
	}
	if pos.Side == common.PositionLong {
		return currentPrice <= pos.StopLossPrice()
	}
	return currentPrice >= pos.StopLossPrice()
}

// Get returns a copy of the position for symbol, if any.
func (s *Store) Get(symbol string) (Position, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pos, ok := s.positions[symbol]
	if !ok {
		return Position{}, false
	}
	return *pos, true
}

// All returns copies of every open position.
func (s *Store) All() []Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Position, 0, len(s.positions))
	for _, pos := range s.positions {
		out = append(out, *pos)
	}
	return out
}

// Count returns the number of open positions.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.positions)
}
