// Package dryrun is an in-memory exchange simulator. It lets the
// execution core run against live market prices without sending real
// orders: resting orders fill when a fed price crosses them.
package dryrun

import (
	"context"
	"fmt"
	"sync"
	"time"

	"execution-core/pkg/exchanges/common"
)

// candleHistory caps the synthetic candle buffer per symbol.
const candleHistory = 120

type simOrder struct {
	detail    common.OrderDetail
	stopPrice float64
}

// Gateway implements common.Gateway against in-memory state. Prices
// arrive through SetPrice, typically wired to the mark price stream.
type Gateway struct {
	mu       sync.Mutex
	nextID   int64
	prices   map[string]float64
	orders   map[int64]*simOrder
	leverage map[string]int
	candles  map[string][]common.Candle
}

func New() *Gateway {
	return &Gateway{
		nextID:   1000,
		prices:   make(map[string]float64),
		orders:   make(map[int64]*simOrder),
		leverage: make(map[string]int),
		candles:  make(map[string][]common.Candle),
	}
}

// SetPrice feeds a market price, fills any resting order it crosses
// and extends the synthetic candle history.
func (g *Gateway) SetPrice(symbol string, price float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prices[symbol] = price

	hist := append(g.candles[symbol], common.Candle{
		OpenTime: time.Now(),
		Open:     price,
		High:     price,
		Low:      price,
		Close:    price,
		Volume:   1,
	})
	if len(hist) > candleHistory {
		hist = hist[len(hist)-candleHistory:]
	}
	g.candles[symbol] = hist

	for _, o := range g.orders {
		if o.detail.Symbol != symbol || o.detail.Status != common.StatusPending {
			continue
		}
		if fillAt, ok := crossed(o, price); ok {
			o.detail.Status = common.StatusFilled
			o.detail.ExecutedQty = o.detail.OrigQty
			o.detail.AvgPrice = fillAt
			o.detail.UpdateTime = time.Now()
		}
	}
}

// crossed reports whether price triggers the resting order and at what
// price it would fill.
func crossed(o *simOrder, price float64) (float64, bool) {
	switch o.detail.Type {
	case common.OrderTypeLimit:
		if o.detail.Side == common.SideBuy && price <= o.detail.Price {
			return o.detail.Price, true
		}
		if o.detail.Side == common.SideSell && price >= o.detail.Price {
			return o.detail.Price, true
		}
	case common.OrderTypeStopMarket, common.OrderTypeTakeProfitMarket:
		if o.detail.Side == common.SideBuy && price >= o.stopPrice {
			return price, true
		}
		if o.detail.Side == common.SideSell && price <= o.stopPrice {
			return price, true
		}
	}
	return 0, false
}

// SubmitOrder accepts the order into the book. Market orders fill
// immediately at the last fed price.
func (g *Gateway) SubmitOrder(_ context.Context, req common.OrderRequest) (common.OrderResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	price, havePrice := g.prices[req.Symbol]
	if req.Type == common.OrderTypeMarket && !havePrice {
		return common.OrderResult{}, fmt.Errorf("dryrun: no price for %s yet", req.Symbol)
	}

	g.nextID++
	o := &simOrder{
		detail: common.OrderDetail{
			OrderID:    g.nextID,
			ClientID:   req.ClientID,
			Symbol:     req.Symbol,
			Side:       req.Side,
			Type:       req.Type,
			Status:     common.StatusPending,
			Price:      req.Price,
			OrigQty:    req.Quantity,
			UpdateTime: time.Now(),
		},
		stopPrice: req.StopPrice,
	}
	if req.Type == common.OrderTypeMarket {
		o.detail.Status = common.StatusFilled
		o.detail.ExecutedQty = req.Quantity
		o.detail.AvgPrice = price
	}
	g.orders[o.detail.OrderID] = o

	return common.OrderResult{
		OrderID:     o.detail.OrderID,
		ClientID:    req.ClientID,
		Status:      o.detail.Status,
		ExecutedQty: o.detail.ExecutedQty,
		AvgPrice:    o.detail.AvgPrice,
	}, nil
}

// CancelOrder cancels a resting order. Canceling a filled or unknown
// order is rejected the way the real exchange rejects it.
func (g *Gateway) CancelOrder(_ context.Context, symbol string, orderID int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	o, ok := g.orders[orderID]
	if !ok || o.detail.Symbol != symbol {
		return &common.RejectedError{Op: "cancel order", Code: -2011, Reason: "unknown order"}
	}
	if o.detail.Status != common.StatusPending {
		return &common.RejectedError{Op: "cancel order", Code: -2011, Reason: fmt.Sprintf("order is %s", o.detail.Status)}
	}
	o.detail.Status = common.StatusCanceled
	o.detail.UpdateTime = time.Now()
	return nil
}

func (g *Gateway) GetOrderStatus(_ context.Context, symbol string, orderID int64) (common.OrderDetail, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	o, ok := g.orders[orderID]
	if !ok || o.detail.Symbol != symbol {
		return common.OrderDetail{}, &common.RejectedError{Op: "order status", Code: -2013, Reason: "order does not exist"}
	}
	return o.detail, nil
}

func (g *Gateway) TickerPrice(_ context.Context, symbol string) (float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	price, ok := g.prices[symbol]
	if !ok {
		return 0, fmt.Errorf("dryrun: no price for %s yet", symbol)
	}
	return price, nil
}

func (g *Gateway) RecentCandles(_ context.Context, symbol, _ string, limit int) ([]common.Candle, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	hist := g.candles[symbol]
	if len(hist) == 0 {
		return nil, fmt.Errorf("dryrun: no candles for %s yet", symbol)
	}
	if limit > 0 && len(hist) > limit {
		hist = hist[len(hist)-limit:]
	}
	out := make([]common.Candle, len(hist))
	copy(out, hist)
	return out, nil
}

func (g *Gateway) SetLeverage(_ context.Context, symbol string, leverage int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.leverage[symbol] = leverage
	return nil
}
