// Package engine is the order execution facade. It composes the risk
// gate, priority scheduler, order ledger, monitors, position book and
// performance tracking behind one API so callers never touch the
// exchange gateway directly.
package engine

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"execution-core/internal/adaptive"
	"execution-core/internal/events"
	"execution-core/internal/monitor"
	"execution-core/internal/performance"
	"execution-core/internal/position"
	"execution-core/internal/risk"
	"execution-core/internal/scheduler"
	"execution-core/pkg/cache"
	"execution-core/pkg/db"
	"execution-core/pkg/exchanges/common"
	"execution-core/pkg/retry"

	"github.com/google/uuid"
)

// priceFreshness is how long a cached ticker price is trusted before
// the gateway is asked again.
const priceFreshness = time.Second

const candleInterval = "1m"
const candleLimit = 20

// Config wires the engine's collaborators. Gateway and Ledger are
// required; nil optional parts fall back to working defaults.
type Config struct {
	Gateway   common.Gateway
	Ledger    *db.Ledger
	Bus       *events.Bus
	Positions *position.Store
	Scheduler *scheduler.Scheduler
	Risk      *risk.Gate
	Monitor   monitor.Config
	Retry     *retry.Policy
	Tracker   *performance.Tracker
	Tuner     *adaptive.Tuner

	// DefaultLeverage applies to entries that do not carry their own.
	DefaultLeverage int
}

// Engine is the execution facade.
type Engine struct {
	gateway   common.Gateway
	ledger    *db.Ledger
	bus       *events.Bus
	positions *position.Store
	sched     *scheduler.Scheduler
	gate      *risk.Gate
	policy    *retry.Policy
	tracker   *performance.Tracker
	tuner     *adaptive.Tuner
	prices    *cache.PriceCache
	monitor   *monitor.Monitor
	leverage  int

	// baseCtx outlives individual requests so monitors keep running
	// after the placing call returns. Set by Start.
	baseCtx context.Context

	mu          sync.Mutex
	submittedAt map[int64]time.Time // order id -> submit time, for fill latency
	levSet      map[string]int      // symbol -> leverage already applied
	stopOrders  map[string]int64    // symbol -> resting protective stop order id
}

// New creates an engine from cfg. Call Start before placing orders.
func New(cfg Config) *Engine {
	if cfg.Positions == nil {
		cfg.Positions = position.NewStore(0.05)
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = scheduler.New(1)
	}
	if cfg.Risk == nil {
		cfg.Risk = risk.NewGate(risk.DefaultConfig())
	}
	if cfg.Retry == nil {
		cfg.Retry = retry.NewPolicy()
	}
	if cfg.Tracker == nil {
		cfg.Tracker = performance.NewTracker()
	}
	if cfg.Tuner == nil {
		cfg.Tuner = adaptive.NewTuner()
	}
	if cfg.DefaultLeverage <= 0 {
		cfg.DefaultLeverage = 10
	}

	e := &Engine{
		gateway:     cfg.Gateway,
		ledger:      cfg.Ledger,
		bus:         cfg.Bus,
		positions:   cfg.Positions,
		sched:       cfg.Scheduler,
		gate:        cfg.Risk,
		policy:      cfg.Retry,
		tracker:     cfg.Tracker,
		tuner:       cfg.Tuner,
		prices:      cache.NewPriceCache(),
		leverage:    cfg.DefaultLeverage,
		baseCtx:     context.Background(),
		submittedAt: make(map[int64]time.Time),
		levSet:      make(map[string]int),
		stopOrders:  make(map[string]int64),
	}
	e.monitor = monitor.New(cfg.Gateway, e.cachedPrice, cfg.Monitor, e.onResolved)
	return e
}

// Start binds the engine to ctx; watcher goroutines stop when it is
// canceled.
func (e *Engine) Start(ctx context.Context) {
	e.baseCtx = ctx
}

// Shutdown stops every order watcher and waits for them to exit.
func (e *Engine) Shutdown() {
	e.monitor.Shutdown()
}

// PlaceOrder validates, schedules and submits an order, then puts it
// under monitoring. The returned result carries the exchange order id.
func (e *Engine) PlaceOrder(ctx context.Context, req common.OrderRequest) (common.OrderResult, error) {
	if req.Symbol == "" || req.Quantity <= 0 {
		return common.OrderResult{}, &risk.ValidationError{Check: "request", Reason: "symbol and positive quantity required"}
	}
	if req.Intent == "" {
		req.Intent = common.IntentEntry
	}

	currentPrice, err := e.cachedPrice(ctx, req.Symbol)
	if err != nil {
		return common.OrderResult{}, err
	}

	// The market-condition check only gates entries; closes must go
	// through even when the market is hostile. Without candles the
	// gate passes that check as insufficient data.
	var candles []common.Candle
	if req.Intent == common.IntentEntry {
		candles, err = e.gateway.RecentCandles(ctx, req.Symbol, candleInterval, candleLimit)
		if err != nil {
			log.Printf("engine: %s candle fetch failed: %v", req.Symbol, err)
			candles = nil
		}
	}

	orderPrice := req.Price
	if req.Type == common.OrderTypeMarket || orderPrice <= 0 {
		orderPrice = currentPrice
	}
	assessment, err := e.gate.Check(req.Symbol, sideFor(req.Side), orderPrice, currentPrice, req.StopPrice, candles)
	if err != nil {
		e.publishRiskRejected(req.Symbol, err)
		return common.OrderResult{}, err
	}
	if len(candles) >= candleLimit {
		e.tuner.AdjustForMarket(adaptive.MarketSnapshot{
			Volatility:    assessment.Volatility,
			TrendStrength: risk.TrendStrength(candles),
			VolumeRatio:   assessment.VolumeRatio,
		})
	}

	if e.sched.Full() {
		return common.OrderResult{}, ErrSchedulerFull
	}

	if req.Intent == common.IntentEntry {
		req.Quantity *= e.tuner.Params().PositionSize
		e.applyLeverage(ctx, req.Symbol, req.Leverage)
	}

	// Client id stays stable across retries so the exchange can
	// deduplicate resubmissions.
	if req.ClientID == "" {
		req.ClientID = uuid.NewString()
	}

	result, err := retry.DoValue(ctx, e.policy, func(ctx context.Context) (common.OrderResult, error) {
		return e.gateway.SubmitOrder(ctx, req)
	})
	if err != nil {
		e.publishOrder(events.EventOrderRejected, 0, req, err.Error())
		return common.OrderResult{}, err
	}

	priority := scheduler.Assign(req.Intent, req.Strength, req.Urgent)
	if !e.sched.Add(result.OrderID, req.Symbol, req.Intent, priority) {
		log.Printf("engine: order %d not scheduled (capacity raced away)", result.OrderID)
	}

	e.mu.Lock()
	e.submittedAt[result.OrderID] = time.Now()
	e.mu.Unlock()

	if e.ledger != nil {
		if err := e.ledger.SaveOrder(ctx, recordFor(result.OrderID, req)); err != nil {
			log.Printf("engine: persist order %d: %v", result.OrderID, err)
		}
	}
	e.publishOrder(events.EventOrderPlaced, result.OrderID, req, "")
	log.Printf("engine: placed order %d %s %s %s qty=%.6f priority=%s",
		result.OrderID, req.Symbol, req.Side, req.Intent, req.Quantity, priority)

	if result.Status == common.StatusFilled {
		// Market orders come back filled; no watcher needed.
		e.sched.Remove(result.OrderID)
		e.settleFill(result.OrderID, req.Symbol, req.Side, req.Intent,
			fillPrice(result.AvgPrice, orderPrice), req.Quantity, req.Leverage)
		return result, nil
	}

	e.monitor.Start(e.baseCtx, monitor.Order{
		OrderID:    result.OrderID,
		ClientID:   req.ClientID,
		Symbol:     req.Symbol,
		Side:       req.Side,
		Intent:     req.Intent,
		LimitPrice: req.Price,
		Quantity:   req.Quantity,
		CreatedAt:  time.Now(),
		Emergency:  req.Urgent || req.Intent == common.IntentEmergencyClose,
	})
	return result, nil
}

// UpdatePrice feeds an externally streamed price into the shared
// cache, sparing the monitors a REST round trip.
func (e *Engine) UpdatePrice(symbol string, price float64) {
	e.prices.Set(symbol, price)
}

// cachedPrice serves the monitor and engine from one shared ticker
// cache so concurrent watchers on a symbol share fetches.
func (e *Engine) cachedPrice(ctx context.Context, symbol string) (float64, error) {
	if p, ok := e.prices.Fresh(symbol, priceFreshness); ok {
		return p, nil
	}
	p, err := e.gateway.TickerPrice(ctx, symbol)
	if err != nil {
		return 0, err
	}
	e.prices.Set(symbol, p)
	return p, nil
}

func (e *Engine) applyLeverage(ctx context.Context, symbol string, leverage int) {
	if leverage <= 0 {
		leverage = e.leverage
	}
	e.mu.Lock()
	applied := e.levSet[symbol]
	e.mu.Unlock()
	if applied == leverage {
		return
	}
	if err := e.gateway.SetLeverage(ctx, symbol, leverage); err != nil {
		log.Printf("engine: set leverage %dx on %s: %v", leverage, symbol, err)
		return
	}
	e.mu.Lock()
	e.levSet[symbol] = leverage
	e.mu.Unlock()
}

// sideFor maps the order side to the position direction used by the
// risk gate's directional sanity check.
func sideFor(s common.Side) common.PositionSide {
	if s == common.SideSell {
		return common.PositionShort
	}
	return common.PositionLong
}

func fillPrice(avg, fallback float64) float64 {
	if avg > 0 {
		return avg
	}
	return fallback
}

func recordFor(orderID int64, req common.OrderRequest) db.OrderRecord {
	return db.OrderRecord{
		OrderID:    orderID,
		Symbol:     req.Symbol,
		Side:       req.Side,
		OrderPrice: req.Price,
		Quantity:   req.Quantity,
		Timestamp:  time.Now(),
		Status:     common.StatusPending,
		Info: db.OrderInfo{
			ClientID:   req.ClientID,
			Intent:     req.Intent,
			OrderType:  string(req.Type),
			StopPrice:  req.StopPrice,
			ReduceOnly: req.ReduceOnly,
			Leverage:   req.Leverage,
			Strength:   req.Strength,
			Urgent:     req.Urgent,
		},
	}
}

func (e *Engine) publishOrder(topic events.Event, orderID int64, req common.OrderRequest, reason string) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(topic, events.OrderEvent{
		OrderID:  orderID,
		ClientID: req.ClientID,
		Symbol:   req.Symbol,
		Side:     string(req.Side),
		Intent:   string(req.Intent),
		Price:    req.Price,
		Quantity: req.Quantity,
		Reason:   reason,
		At:       time.Now(),
	})
}

func (e *Engine) publishRiskRejected(symbol string, err error) {
	if e.bus == nil {
		return
	}
	ev := events.RiskEvent{Symbol: symbol, Reason: err.Error(), At: time.Now()}
	var verr *risk.ValidationError
	if errors.As(err, &verr) {
		ev.Check = verr.Check
		ev.Reason = verr.Reason
	}
	e.bus.Publish(events.EventRiskRejected, ev)
}
