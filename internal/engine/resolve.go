package engine

import (
	"context"
	"log"
	"time"

	"execution-core/internal/events"
	"execution-core/internal/monitor"
	"execution-core/internal/performance"
	"execution-core/internal/position"
	"execution-core/pkg/exchanges/common"
	"execution-core/pkg/retry"
)

// onResolved runs on the watcher goroutine whenever an order leaves
// monitoring, and reconciles ledger, scheduler and position state.
func (e *Engine) onResolved(res monitor.Resolution) {
	ctx := e.baseCtx
	order := res.Order
	e.sched.Remove(order.OrderID)

	switch res.Outcome {
	case monitor.OutcomeFilled:
		e.setStatus(ctx, order.OrderID, common.StatusFilled)
		e.recordExecution(order.OrderID, order.Symbol, common.StatusFilled, order.LimitPrice, res.Detail.AvgPrice)
		e.publishMonitorOrder(events.EventOrderFilled, order, "")
		e.settleFill(order.OrderID, order.Symbol, order.Side, order.Intent,
			fillPrice(res.Detail.AvgPrice, order.LimitPrice), order.Quantity, 0)

	case monitor.OutcomeCanceled:
		status, reason := common.StatusCanceled, "canceled on exchange"
		if res.Detail.Status == common.StatusExpired {
			status, reason = common.StatusExpired, "expired on exchange"
		}
		e.setStatus(ctx, order.OrderID, status)
		e.recordExecution(order.OrderID, order.Symbol, status, 0, 0)
		e.publishMonitorOrder(events.EventOrderCanceled, order, reason)

	case monitor.OutcomeRejected:
		e.setStatus(ctx, order.OrderID, common.StatusRejected)
		e.recordExecution(order.OrderID, order.Symbol, common.StatusRejected, 0, 0)
		e.publishMonitorOrder(events.EventOrderRejected, order, "rejected on exchange")

	case monitor.OutcomeConverted:
		e.setStatus(ctx, order.OrderID, common.StatusCanceled)
		e.recordExecution(order.OrderID, order.Symbol, common.StatusCanceled, 0, 0)
		e.publishMonitorOrder(events.EventOrderConverted, order, res.Trigger)
		if res.Converted != nil {
			e.adoptConversion(ctx, order, *res.Converted)
		}

	case monitor.OutcomeConversionFailed:
		e.setStatus(ctx, order.OrderID, common.StatusCanceled)
		e.recordExecution(order.OrderID, order.Symbol, common.StatusCanceled, 0, 0)
		cerr := &CriticalError{Symbol: order.Symbol, Op: "convert order", Err: errConversionFailed}
		log.Printf("engine: %v", cerr)
		e.alert(order.Symbol, cerr.Error())
	}
}

// adoptConversion folds the market replacement into the ledger and,
// when it is not already filled, puts it under watch.
func (e *Engine) adoptConversion(ctx context.Context, orig monitor.Order, result common.OrderResult) {
	req := common.OrderRequest{
		Symbol:     orig.Symbol,
		Side:       orig.Side,
		Type:       common.OrderTypeMarket,
		Intent:     orig.Intent,
		Quantity:   orig.Quantity,
		ClientID:   result.ClientID,
		ReduceOnly: orig.Intent != common.IntentEntry,
	}
	if e.ledger != nil {
		if err := e.ledger.SaveOrder(ctx, recordFor(result.OrderID, req)); err != nil {
			log.Printf("engine: persist converted order %d: %v", result.OrderID, err)
		}
	}

	if result.Status == common.StatusFilled {
		e.setStatus(ctx, result.OrderID, common.StatusFilled)
		e.settleFill(result.OrderID, orig.Symbol, orig.Side, orig.Intent,
			fillPrice(result.AvgPrice, orig.LimitPrice), orig.Quantity, 0)
		return
	}
	e.monitor.Start(e.baseCtx, monitor.Order{
		OrderID:   result.OrderID,
		ClientID:  result.ClientID,
		Symbol:    orig.Symbol,
		Side:      orig.Side,
		Intent:    orig.Intent,
		Quantity:  orig.Quantity,
		CreatedAt: time.Now(),
		Emergency: true,
	})
}

// settleFill updates the position book after a confirmed fill and, for
// entries, places the protective stop.
func (e *Engine) settleFill(orderID int64, symbol string, side common.Side, intent common.Intent, price, qty float64, leverage int) {
	if intent == common.IntentEntry {
		if leverage <= 0 {
			leverage = e.leverage
		}
		pos, forced, err := e.positions.Open(symbol, sideFor(side), price, qty, leverage)
		if err != nil {
			log.Printf("engine: open position %s: %v", symbol, err)
			return
		}
		if forced != nil {
			e.settleClose(*forced, "force_closed")
			e.releaseStop(symbol)
			e.publishPosition(events.EventPositionForced, forced.Position, forced.ExitPrice, forced.PnL, forced.ROI, "replaced by new entry")
		}
		e.publishPosition(events.EventPositionOpened, *pos, 0, 0, 0, "")
		if err := e.protect(pos); err != nil {
			cerr := &CriticalError{Symbol: symbol, Op: "place stop loss", Err: err}
			log.Printf("engine: %v", cerr)
			e.alert(symbol, cerr.Error())
		}
		return
	}

	closed, err := e.positions.Close(symbol, price)
	if err != nil {
		log.Printf("engine: close position %s after order %d: %v", symbol, orderID, err)
		return
	}
	e.settleClose(closed, string(intent))
	e.releaseStop(symbol)
	topic := events.EventPositionClosed
	if intent == common.IntentStopLoss {
		topic = events.EventStopLossTriggered
	}
	e.publishPosition(topic, closed.Position, closed.ExitPrice, closed.PnL, closed.ROI, string(intent))
}

// settleClose feeds a realized close into performance tracking and the
// adaptive tuner.
func (e *Engine) settleClose(closed position.CloseResult, exitType string) {
	e.tracker.RecordTrade(performance.Trade{
		Symbol:      closed.Position.Symbol,
		Side:        closed.Position.Side,
		EntryPrice:  closed.Position.EntryPrice,
		ExitPrice:   closed.ExitPrice,
		Quantity:    closed.Position.Quantity,
		Profit:      closed.PnL,
		HoldingTime: closed.HoldingTime,
		ExitType:    exitType,
		At:          time.Now(),
	})
	e.tuner.RecordTrade(closed.PnL)
}

// protect submits the reduce-only protective stop for a fresh entry.
// The stop distance is scaled by the tuner's stop-loss multiplier.
func (e *Engine) protect(pos *position.Position) error {
	dist := pos.StopLossDist * e.tuner.Params().StopLoss
	stopPrice := pos.EntryPrice - dist
	side := common.SideSell
	if pos.Side == common.PositionShort {
		stopPrice = pos.EntryPrice + dist
		side = common.SideBuy
	}

	req := common.OrderRequest{
		Symbol:     pos.Symbol,
		Side:       side,
		Type:       common.OrderTypeStopMarket,
		Intent:     common.IntentStopLoss,
		Quantity:   pos.Quantity,
		StopPrice:  stopPrice,
		ClientID:   "sl-" + pos.Symbol + "-" + pos.EntryTime.UTC().Format("20060102150405"),
		ReduceOnly: true,
	}
	result, err := retry.DoValue(e.baseCtx, e.policy, func(ctx context.Context) (common.OrderResult, error) {
		return e.gateway.SubmitOrder(ctx, req)
	})
	if err != nil {
		return err
	}
	if e.ledger != nil {
		if err := e.ledger.SaveOrder(e.baseCtx, recordFor(result.OrderID, req)); err != nil {
			log.Printf("engine: persist stop order %d: %v", result.OrderID, err)
		}
	}
	e.mu.Lock()
	e.stopOrders[pos.Symbol] = result.OrderID
	e.mu.Unlock()
	log.Printf("engine: protective stop %d for %s at %.4f", result.OrderID, pos.Symbol, stopPrice)
	return nil
}

// releaseStop cancels the resting protective stop once its position is
// gone and settles the ledger row either way.
func (e *Engine) releaseStop(symbol string) {
	e.mu.Lock()
	orderID, ok := e.stopOrders[symbol]
	delete(e.stopOrders, symbol)
	e.mu.Unlock()
	if !ok {
		return
	}
	ctx := e.baseCtx
	if err := e.gateway.CancelOrder(ctx, symbol, orderID); err != nil {
		// The stop may already have filled or lapsed; take whatever
		// status the exchange reports.
		log.Printf("engine: release stop %d on %s: %v", orderID, symbol, err)
		e.refreshStopRow(ctx, symbol, orderID)
		return
	}
	e.setStatus(ctx, orderID, common.StatusCanceled)
}

func (e *Engine) setStatus(ctx context.Context, orderID int64, status common.OrderStatus) {
	if e.ledger == nil {
		return
	}
	if err := e.ledger.UpdateStatus(ctx, orderID, status); err != nil {
		log.Printf("engine: update order %d to %s: %v", orderID, status, err)
	}
}

func (e *Engine) recordExecution(orderID int64, symbol string, status common.OrderStatus, limitPrice, avgPrice float64) {
	exec := performance.Execution{
		OrderID: orderID,
		Symbol:  symbol,
		Status:  status,
		At:      time.Now(),
	}
	e.mu.Lock()
	if submitted, ok := e.submittedAt[orderID]; ok {
		exec.FillLatency = time.Since(submitted)
		delete(e.submittedAt, orderID)
	}
	e.mu.Unlock()
	if limitPrice > 0 && avgPrice > 0 {
		diff := avgPrice - limitPrice
		if diff < 0 {
			diff = -diff
		}
		exec.Slippage = diff / limitPrice
	}
	e.tracker.RecordExecution(exec)
}

func (e *Engine) publishMonitorOrder(topic events.Event, order monitor.Order, reason string) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(topic, events.OrderEvent{
		OrderID:  order.OrderID,
		ClientID: order.ClientID,
		Symbol:   order.Symbol,
		Side:     string(order.Side),
		Intent:   string(order.Intent),
		Price:    order.LimitPrice,
		Quantity: order.Quantity,
		Reason:   reason,
		At:       time.Now(),
	})
}

func (e *Engine) publishPosition(topic events.Event, pos position.Position, exit, pnl, roi float64, reason string) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(topic, events.PositionEvent{
		Symbol:     pos.Symbol,
		Side:       string(pos.Side),
		EntryPrice: pos.EntryPrice,
		ExitPrice:  exit,
		Quantity:   pos.Quantity,
		Leverage:   pos.Leverage,
		PnL:        pnl,
		ROI:        roi,
		Reason:     reason,
		At:         time.Now(),
	})
}

func (e *Engine) alert(symbol, message string) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(events.EventCriticalAlert, events.Alert{
		Symbol:  symbol,
		Message: message,
		At:      time.Now(),
	})
}
