package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"execution-core/internal/adaptive"
	"execution-core/internal/events"
	"execution-core/internal/monitor"
	"execution-core/internal/performance"
	"execution-core/internal/position"
	"execution-core/internal/scheduler"
	"execution-core/pkg/db"
	"execution-core/pkg/exchanges/common"
)

// CancelOrder cancels a resting order on the exchange, then releases
// its watcher, scheduler slot and ledger row. The exchange cancel must
// succeed before any local state changes.
func (e *Engine) CancelOrder(ctx context.Context, symbol string, orderID int64) error {
	err := e.policy.DoCtx(ctx, func(ctx context.Context) error {
		return e.gateway.CancelOrder(ctx, symbol, orderID)
	})
	if err != nil {
		return fmt.Errorf("cancel order %d: %w", orderID, err)
	}

	e.monitor.Stop(orderID)
	e.sched.Remove(orderID)
	e.setStatus(ctx, orderID, common.StatusCanceled)
	e.recordExecution(orderID, symbol, common.StatusCanceled, 0, 0)
	if e.bus != nil {
		e.bus.Publish(events.EventOrderCanceled, events.OrderEvent{
			OrderID: orderID,
			Symbol:  symbol,
			Reason:  "canceled by request",
			At:      time.Now(),
		})
	}
	log.Printf("engine: canceled order %d on %s", orderID, symbol)
	return nil
}

// CancelAllOrders cancels every pending order and returns how many
// succeeded. Individual failures are joined into the returned error.
func (e *Engine) CancelAllOrders(ctx context.Context) (int, error) {
	if e.ledger == nil {
		return 0, fmt.Errorf("no order ledger configured")
	}
	pending, err := e.ledger.LoadPending(ctx)
	if err != nil {
		return 0, err
	}

	canceled := 0
	var errs []error
	for symbol, records := range pending {
		for _, rec := range records {
			if err := e.CancelOrder(ctx, symbol, rec.OrderID); err != nil {
				errs = append(errs, err)
				continue
			}
			canceled++
		}
	}
	return canceled, errors.Join(errs...)
}

// ModifyOrderPrice cancels a resting order and resubmits it at
// newPrice with its original parameters.
func (e *Engine) ModifyOrderPrice(ctx context.Context, orderID int64, newPrice float64) (common.OrderResult, error) {
	return e.replaceOrder(ctx, orderID, func(req *common.OrderRequest) {
		req.Price = newPrice
	})
}

// ModifyOrderQuantity cancels a resting order and resubmits it with
// newQty.
func (e *Engine) ModifyOrderQuantity(ctx context.Context, orderID int64, newQty float64) (common.OrderResult, error) {
	return e.replaceOrder(ctx, orderID, func(req *common.OrderRequest) {
		req.Quantity = newQty
	})
}

// replaceOrder implements cancel-then-resubmit. The replacement gets a
// fresh client id and goes through the full placement pipeline again.
func (e *Engine) replaceOrder(ctx context.Context, orderID int64, mutate func(*common.OrderRequest)) (common.OrderResult, error) {
	if e.ledger == nil {
		return common.OrderResult{}, fmt.Errorf("no order ledger configured")
	}
	rec, err := e.ledger.GetOrder(ctx, orderID)
	if err != nil {
		return common.OrderResult{}, err
	}
	if rec.Status != common.StatusPending {
		return common.OrderResult{}, fmt.Errorf("order %d is %s, only pending orders can be modified", orderID, rec.Status)
	}

	if err := e.CancelOrder(ctx, rec.Symbol, orderID); err != nil {
		return common.OrderResult{}, err
	}

	req := requestFor(*rec)
	mutate(&req)
	req.ClientID = ""
	return e.PlaceOrder(ctx, req)
}

// GetOrder returns the ledger row for orderID, refreshed against the
// exchange when it is still pending.
func (e *Engine) GetOrder(ctx context.Context, orderID int64) (*db.OrderRecord, error) {
	if e.ledger == nil {
		return nil, fmt.Errorf("no order ledger configured")
	}
	rec, err := e.ledger.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if rec.Status.Terminal() {
		return rec, nil
	}

	detail, err := e.gateway.GetOrderStatus(ctx, rec.Symbol, orderID)
	if err != nil {
		// Serve the ledger view when the exchange is unreachable.
		log.Printf("engine: refresh order %d: %v", orderID, err)
		return rec, nil
	}
	if detail.Status != rec.Status {
		e.setStatus(ctx, orderID, detail.Status)
		rec.Status = detail.Status
	}
	return rec, nil
}

// OrdersBySymbol lists ledger rows for a symbol, optionally filtered
// by status. limit <= 0 means no limit.
func (e *Engine) OrdersBySymbol(ctx context.Context, symbol string, status common.OrderStatus, limit int) ([]db.OrderRecord, error) {
	if e.ledger == nil {
		return nil, fmt.Errorf("no order ledger configured")
	}
	return e.ledger.OrdersBySymbol(ctx, symbol, status, limit)
}

// PendingOrders returns the pending book grouped by symbol.
func (e *Engine) PendingOrders(ctx context.Context) (map[string][]db.OrderRecord, error) {
	if e.ledger == nil {
		return nil, fmt.Errorf("no order ledger configured")
	}
	return e.ledger.LoadPending(ctx)
}

// Restore re-arms monitoring for orders that were pending when the
// process last stopped, reconciling fills that happened while down.
func (e *Engine) Restore(ctx context.Context) error {
	if e.ledger == nil {
		return nil
	}
	pending, err := e.ledger.LoadPending(ctx)
	if err != nil {
		return fmt.Errorf("load pending orders: %w", err)
	}

	restored, reconciled := 0, 0
	for symbol, records := range pending {
		for _, rec := range records {
			// Protective stops are never watched or scheduled; their
			// only lifecycle is the exchange's. Refresh the row and
			// remember the live ones so a later close releases them.
			if protective(rec) {
				if e.refreshStopRow(ctx, symbol, rec.OrderID) {
					reconciled++
					continue
				}
				e.mu.Lock()
				e.stopOrders[symbol] = rec.OrderID
				e.mu.Unlock()
				continue
			}

			detail, err := e.gateway.GetOrderStatus(ctx, symbol, rec.OrderID)
			if err != nil {
				log.Printf("engine: restore order %d status check failed, watching anyway: %v", rec.OrderID, err)
			} else if detail.Status.Terminal() {
				e.setStatus(ctx, rec.OrderID, detail.Status)
				if detail.Status == common.StatusFilled {
					e.settleFill(rec.OrderID, symbol, rec.Side, rec.Info.Intent,
						fillPrice(detail.AvgPrice, rec.OrderPrice), rec.Quantity, rec.Info.Leverage)
				}
				reconciled++
				continue
			}

			priority := scheduler.Assign(rec.Info.Intent, rec.Info.Strength, rec.Info.Urgent)
			e.sched.Add(rec.OrderID, symbol, rec.Info.Intent, priority)
			e.monitor.Start(e.baseCtx, monitor.Order{
				OrderID:    rec.OrderID,
				ClientID:   rec.Info.ClientID,
				Symbol:     symbol,
				Side:       rec.Side,
				Intent:     rec.Info.Intent,
				LimitPrice: rec.OrderPrice,
				Quantity:   rec.Quantity,
				CreatedAt:  rec.Timestamp,
				Emergency:  rec.Info.Urgent,
			})
			restored++
		}
	}
	log.Printf("engine: restore complete, %d orders re-armed, %d reconciled", restored, reconciled)
	return nil
}

// protective reports whether the ledger row is an exchange-side stop
// order. Stops carry no watcher and no scheduler slot.
func protective(rec db.OrderRecord) bool {
	switch common.OrderType(rec.Info.OrderType) {
	case common.OrderTypeStopMarket, common.OrderTypeTakeProfitMarket:
		return true
	}
	return false
}

// refreshStopRow reconciles a protective stop's ledger row against the
// exchange and reports whether it reached a terminal status.
func (e *Engine) refreshStopRow(ctx context.Context, symbol string, orderID int64) bool {
	detail, err := e.gateway.GetOrderStatus(ctx, symbol, orderID)
	if err != nil {
		log.Printf("engine: stop order %d status check: %v", orderID, err)
		return false
	}
	if !detail.Status.Terminal() {
		return false
	}
	e.setStatus(ctx, orderID, detail.Status)
	return true
}

// EvaluateStops closes any position whose mark price has crossed its
// protective level. It backstops the on-exchange stop orders.
func (e *Engine) EvaluateStops(ctx context.Context) {
	for _, pos := range e.positions.All() {
		price, err := e.cachedPrice(ctx, pos.Symbol)
		if err != nil {
			log.Printf("engine: stop check price fetch %s: %v", pos.Symbol, err)
			continue
		}
		if !e.positions.ShouldStopLoss(pos.Symbol, price) {
			continue
		}
		log.Printf("engine: stop loss hit on %s at %.4f, closing at market", pos.Symbol, price)
		_, err = e.PlaceOrder(ctx, common.OrderRequest{
			Symbol:     pos.Symbol,
			Side:       closingSide(pos.Side),
			Type:       common.OrderTypeMarket,
			Intent:     common.IntentStopLoss,
			Quantity:   pos.Quantity,
			ReduceOnly: true,
			Urgent:     true,
		})
		if err != nil {
			cerr := &CriticalError{Symbol: pos.Symbol, Op: "emergency stop close", Err: err}
			log.Printf("engine: %v", cerr)
			e.alert(pos.Symbol, cerr.Error())
		}
	}
}

// CleanupOldOrders purges terminal ledger rows older than the
// retention window and returns how many were removed.
func (e *Engine) CleanupOldOrders(ctx context.Context, olderThan time.Duration) (int64, error) {
	if e.ledger == nil {
		return 0, nil
	}
	// Stop rows have no watcher to settle them; refresh them here so
	// ones that filled or lapsed on the exchange leave PENDING.
	if pending, err := e.ledger.LoadPending(ctx); err == nil {
		for symbol, records := range pending {
			for _, rec := range records {
				if protective(rec) {
					e.refreshStopRow(ctx, symbol, rec.OrderID)
				}
			}
		}
	}
	removed, err := e.ledger.Cleanup(ctx, olderThan)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		log.Printf("engine: cleaned up %d old orders", removed)
	}
	return removed, nil
}

// Positions returns the open position book.
func (e *Engine) Positions() []position.Position {
	return e.positions.All()
}

// Performance returns the derived execution and trade metrics.
func (e *Engine) Performance() performance.Metrics {
	return e.tracker.Metrics()
}

// Suggestions returns tuning hints derived from recent performance.
func (e *Engine) Suggestions() []string {
	return e.tracker.Suggestions()
}

// TunerParams returns the current adaptive parameter multipliers.
func (e *Engine) TunerParams() adaptive.Params {
	return e.tuner.Params()
}

// Status is a point-in-time view of the whole execution system.
type Status struct {
	Time         time.Time           `json:"time"`
	Orders       map[string]int      `json:"orders"`
	Queue        map[string]int      `json:"queue"`
	Watchers     int                 `json:"watchers"`
	OpenPosition int                 `json:"open_positions"`
	Metrics      performance.Metrics `json:"metrics"`
	Tuner        adaptive.Params     `json:"tuner"`
	CachedPrices int                 `json:"cached_prices"`
	RateUsedPct  float64             `json:"rate_used_pct"`
	ClockOffset  int64               `json:"clock_offset_ms"`
}

// gatewayMeter is implemented by gateways that expose rate-limit and
// clock telemetry.
type gatewayMeter interface {
	RateUsage() (used, limit int, pct float64)
	ClockOffset() int64
}

// SystemStatus aggregates ledger, scheduler, monitor and gateway
// state.
func (e *Engine) SystemStatus(ctx context.Context) (Status, error) {
	st := Status{
		Time:         time.Now().UTC(),
		Queue:        e.sched.Summary(),
		Watchers:     e.monitor.Active(),
		OpenPosition: e.positions.Count(),
		Metrics:      e.tracker.Metrics(),
		Tuner:        e.tuner.Params(),
		CachedPrices: e.prices.Len(),
	}
	if e.ledger != nil {
		stats, err := e.ledger.Statistics(ctx)
		if err != nil {
			return st, err
		}
		st.Orders = stats
	}
	if m, ok := e.gateway.(gatewayMeter); ok {
		_, _, st.RateUsedPct = m.RateUsage()
		st.ClockOffset = m.ClockOffset()
	}
	return st, nil
}

// requestFor rebuilds the submission request stored in a ledger row.
func requestFor(rec db.OrderRecord) common.OrderRequest {
	return common.OrderRequest{
		Symbol:     rec.Symbol,
		Side:       rec.Side,
		Type:       common.OrderType(rec.Info.OrderType),
		Intent:     rec.Info.Intent,
		Quantity:   rec.Quantity,
		Price:      rec.OrderPrice,
		StopPrice:  rec.Info.StopPrice,
		ClientID:   rec.Info.ClientID,
		ReduceOnly: rec.Info.ReduceOnly,
		Leverage:   rec.Info.Leverage,
		Strength:   rec.Info.Strength,
		Urgent:     rec.Info.Urgent,
	}
}

func closingSide(side common.PositionSide) common.Side {
	if side == common.PositionLong {
		return common.SideSell
	}
	return common.SideBuy
}
