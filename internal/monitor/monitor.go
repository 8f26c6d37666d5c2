// Package monitor watches resting limit orders and cancels or converts
// them when the market moves away, the order times out, or the price
// moves too fast. Exactly one watcher runs per order at a time.
package monitor

import (
	"context"
	"log"
	"math"
	"sync"
	"time"

	"execution-core/pkg/exchanges/common"
)

// Trigger names for resolutions and logs.
const (
	TriggerPriceAway   = "price_away"
	TriggerTimeout     = "timeout"
	TriggerRapidChange = "rapid_change"
)

// Resolution outcomes.
const (
	OutcomeFilled           = "filled"
	OutcomeCanceled         = "canceled"
	OutcomeRejected         = "rejected"
	OutcomeConverted        = "converted"
	OutcomeConversionFailed = "conversion_failed"
)

// Order is a resting order under watch.
type Order struct {
	OrderID    int64
	ClientID   string
	Symbol     string
	Side       common.Side
	Intent     common.Intent
	LimitPrice float64
	Quantity   float64
	CreatedAt  time.Time
	Emergency  bool // poll at the faster emergency interval
}

// Resolution reports how a watched order left the monitor.
type Resolution struct {
	Order     Order
	Outcome   string
	Trigger   string // set when a trigger forced the outcome
	Detail    common.OrderDetail
	Converted *common.OrderResult // the market replacement, when any
}

// PriceFunc supplies the current price; when nil the monitor falls
// back to the gateway ticker.
type PriceFunc func(ctx context.Context, symbol string) (float64, error)

type pricePoint struct {
	at    time.Time
	price float64
}

type watcher struct {
	order  Order
	cfg    TypeConfig
	cancel context.CancelFunc

	history []pricePoint
}

// Monitor runs one watcher goroutine per resting order.
type Monitor struct {
	gateway    common.Gateway
	priceFn    PriceFunc
	cfg        Config
	onResolved func(Resolution)

	mu       sync.Mutex
	watchers map[int64]*watcher
	wg       sync.WaitGroup
}

// New creates a monitor. onResolved is invoked (on the watcher
// goroutine) whenever an order leaves monitoring; it may be nil.
func New(gateway common.Gateway, priceFn PriceFunc, cfg Config, onResolved func(Resolution)) *Monitor {
	if cfg.CheckInterval <= 0 {
		cfg = DefaultConfig()
	}
	return &Monitor{
		gateway:    gateway,
		priceFn:    priceFn,
		cfg:        cfg,
		onResolved: onResolved,
		watchers:   make(map[int64]*watcher),
	}
}

// Start begins watching an order. Starting an order that is already
// watched is a no-op and returns false.
func (m *Monitor) Start(ctx context.Context, order Order) bool {
	m.mu.Lock()
	if _, exists := m.watchers[order.OrderID]; exists {
		m.mu.Unlock()
		return false
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now()
	}
	wctx, cancel := context.WithCancel(ctx)
	w := &watcher{
		order:  order,
		cfg:    m.cfg.forIntent(order.Intent),
		cancel: cancel,
	}
	m.watchers[order.OrderID] = w
	m.mu.Unlock()

	m.wg.Add(1)
	go m.run(wctx, w)
	log.Printf("monitor: watching order %d (%s %s %s @ %.4f)",
		order.OrderID, order.Symbol, order.Side, order.Intent, order.LimitPrice)
	return true
}

// Stop tears down the watcher for orderID. A second Stop for the same
// order is a no-op.
func (m *Monitor) Stop(orderID int64) {
	m.mu.Lock()
	w, ok := m.watchers[orderID]
	if ok {
		delete(m.watchers, orderID)
	}
	m.mu.Unlock()
	if ok {
		w.cancel()
		log.Printf("monitor: stopped watching order %d", orderID)
	}
}

// Watching reports whether orderID has a live watcher.
func (m *Monitor) Watching(orderID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.watchers[orderID]
	return ok
}

// Active returns the number of live watchers.
func (m *Monitor) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.watchers)
}

// Shutdown stops every watcher and waits for them to exit.
func (m *Monitor) Shutdown() {
	m.mu.Lock()
	for id, w := range m.watchers {
		w.cancel()
		delete(m.watchers, id)
	}
	m.mu.Unlock()
	m.wg.Wait()
}

func (m *Monitor) run(ctx context.Context, w *watcher) {
	defer m.wg.Done()

	interval := m.cfg.CheckInterval
	if w.order.Emergency {
		interval = m.cfg.EmergencyInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if done := m.tick(ctx, w); done {
				return
			}
		}
	}
}

// tick runs one poll cycle; true means the watcher is finished.
func (m *Monitor) tick(ctx context.Context, w *watcher) bool {
	order := w.order

	detail, err := m.gateway.GetOrderStatus(ctx, order.Symbol, order.OrderID)
	if err != nil {
		// Conservative: treat as still pending, try again next tick.
		log.Printf("monitor: order %d status check failed: %v", order.OrderID, err)
		return false
	}
	if detail.Status.Terminal() {
		outcome := OutcomeCanceled
		switch detail.Status {
		case common.StatusFilled:
			outcome = OutcomeFilled
		case common.StatusRejected:
			outcome = OutcomeRejected
		}
		m.finish(Resolution{Order: order, Outcome: outcome, Detail: detail})
		return true
	}

	price, err := m.currentPrice(ctx, order.Symbol)
	if err != nil {
		log.Printf("monitor: order %d price fetch failed: %v", order.OrderID, err)
		return false
	}
	w.record(price)

	trigger := w.evaluate(price)
	if trigger == "" {
		return false
	}
	log.Printf("monitor: order %d triggered (%s) at price %.4f", order.OrderID, trigger, price)

	if err := m.gateway.CancelOrder(ctx, order.Symbol, order.OrderID); err != nil {
		// Never assume the cancel went through; keep watching and
		// re-evaluate next tick.
		log.Printf("monitor: order %d cancel failed, still monitoring: %v", order.OrderID, err)
		return false
	}

	res := Resolution{Order: order, Outcome: OutcomeConverted, Trigger: trigger, Detail: detail}
	converted, err := m.convert(ctx, order)
	if err != nil {
		log.Printf("monitor: order %d canceled but conversion failed: %v", order.OrderID, err)
		res.Outcome = OutcomeConversionFailed
	} else {
		res.Converted = &converted
		log.Printf("monitor: order %d converted to market order %d", order.OrderID, converted.OrderID)
	}
	m.finish(res)
	return true
}

// convert submits the market replacement after a successful cancel.
// The replacement keeps the original side and quantity; exit intents
// are sent reduce-only so they can never flip the position.
func (m *Monitor) convert(ctx context.Context, order Order) (common.OrderResult, error) {
	req := common.OrderRequest{
		Symbol:   order.Symbol,
		Side:     order.Side,
		Type:     common.OrderTypeMarket,
		Quantity: order.Quantity,
		Intent:   order.Intent,
	}
	if order.Intent != common.IntentEntry {
		req.ReduceOnly = true
	}
	return m.gateway.SubmitOrder(ctx, req)
}

func (m *Monitor) currentPrice(ctx context.Context, symbol string) (float64, error) {
	if m.priceFn != nil {
		if p, err := m.priceFn(ctx, symbol); err == nil {
			return p, nil
		}
		// Injected source failed; fall through to the ticker.
	}
	return m.gateway.TickerPrice(ctx, symbol)
}

func (m *Monitor) finish(res Resolution) {
	m.mu.Lock()
	delete(m.watchers, res.Order.OrderID)
	m.mu.Unlock()
	if m.onResolved != nil {
		m.onResolved(res)
	}
}

// record appends a price sample and prunes anything older than twice
// the rapid-change window.
func (w *watcher) record(price float64) {
	now := time.Now()
	w.history = append(w.history, pricePoint{at: now, price: price})
	horizon := now.Add(-2 * w.cfg.RapidChangeWindow)
	i := 0
	for i < len(w.history) && w.history[i].at.Before(horizon) {
		i++
	}
	w.history = w.history[i:]
}

// evaluate applies the three trigger conditions in precedence order:
// price-away, then timeout, then rapid change.
func (w *watcher) evaluate(price float64) string {
	order := w.order
	cfg := w.cfg

	if order.LimitPrice > 0 {
		if order.Side == common.SideBuy && price > order.LimitPrice*(1+cfg.PriceAwayThreshold) {
			return TriggerPriceAway
		}
		if order.Side == common.SideSell && price < order.LimitPrice*(1-cfg.PriceAwayThreshold) {
			return TriggerPriceAway
		}
	}

	if time.Since(order.CreatedAt) > cfg.Timeout {
		return TriggerTimeout
	}

	if ref, ok := w.priceAtWindowStart(); ok && ref > 0 {
		if math.Abs(price-ref)/ref > cfg.RapidChangeThreshold {
			return TriggerRapidChange
		}
	}
	return ""
}

// priceAtWindowStart returns the oldest sample inside the trailing
// rapid-change window.
func (w *watcher) priceAtWindowStart() (float64, bool) {
	cutoff := time.Now().Add(-w.cfg.RapidChangeWindow)
	for _, p := range w.history {
		if !p.at.Before(cutoff) {
			return p.price, true
		}
	}
	return 0, false
}
