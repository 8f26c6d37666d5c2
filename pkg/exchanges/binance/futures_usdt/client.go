// Package futures_usdt adapts the Binance USDT-M futures API to the
// venue-neutral Gateway interface.
package futures_usdt

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/futures"

	"execution-core/pkg/exchanges/common"
)

// Config holds Binance USDT-M futures credentials.
type Config struct {
	APIKey    string
	APISecret string
	Testnet   bool
}

// Client handles Binance USDT-M futures.
type Client struct {
	api      *futures.Client
	throttle *common.Throttle
	timeSync *common.TimeSync
}

// NewClient creates a new USDT-M futures client.
func NewClient(cfg Config) *Client {
	if cfg.Testnet {
		futures.UseTestnet = true
	}
	c := &Client{
		api: binance.NewFuturesClient(cfg.APIKey, cfg.APISecret),
		// 2400 weight/min for futures
		throttle: common.NewThrottle(20, 40, 2400, time.Minute),
	}
	c.timeSync = common.NewTimeSync(func(ctx context.Context) (int64, error) {
		return c.api.NewServerTimeService().Do(ctx)
	})
	return c
}

// StartTimeSync begins periodic clock synchronization with the venue.
func (c *Client) StartTimeSync(ctx context.Context) {
	c.timeSync.Start(ctx)
}

// ClockOffset returns the measured server clock offset in milliseconds.
func (c *Client) ClockOffset() int64 {
	return c.timeSync.Offset()
}

// RateUsage returns current request weight usage.
func (c *Client) RateUsage() (used, limit int, pct float64) {
	return c.throttle.Usage()
}

// SubmitOrder places an order.
func (c *Client) SubmitOrder(ctx context.Context, req common.OrderRequest) (common.OrderResult, error) {
	if err := c.throttle.Acquire(ctx, 1); err != nil {
		return common.OrderResult{}, err
	}

	svc := c.api.NewCreateOrderService().
		Symbol(req.Symbol).
		Side(toBinanceSide(req.Side)).
		Type(toBinanceType(req.Type)).
		Quantity(formatFloat(req.Quantity))

	switch req.Type {
	case common.OrderTypeLimit:
		svc = svc.Price(formatFloat(req.Price)).TimeInForce(toBinanceTIF(req.TimeInForce))
	case common.OrderTypeStopMarket, common.OrderTypeTakeProfitMarket:
		svc = svc.StopPrice(formatFloat(req.StopPrice))
	}
	if req.ClientID != "" {
		svc = svc.NewClientOrderID(req.ClientID)
	}
	if req.ReduceOnly {
		svc = svc.ReduceOnly(true)
	}

	res, err := svc.Do(ctx)
	if err != nil {
		return common.OrderResult{}, classify("submit order", err)
	}
	executed, _ := strconv.ParseFloat(res.ExecutedQuantity, 64)
	avg, _ := strconv.ParseFloat(res.AvgPrice, 64)
	return common.OrderResult{
		OrderID:     res.OrderID,
		ClientID:    res.ClientOrderID,
		Status:      mapStatus(res.Status),
		ExecutedQty: executed,
		AvgPrice:    avg,
	}, nil
}

// CancelOrder cancels an order by symbol and ID.
func (c *Client) CancelOrder(ctx context.Context, symbol string, orderID int64) error {
	if err := c.throttle.Acquire(ctx, 1); err != nil {
		return err
	}
	_, err := c.api.NewCancelOrderService().Symbol(symbol).OrderID(orderID).Do(ctx)
	if err != nil {
		return classify("cancel order", err)
	}
	return nil
}

// GetOrderStatus queries a single order.
func (c *Client) GetOrderStatus(ctx context.Context, symbol string, orderID int64) (common.OrderDetail, error) {
	if err := c.throttle.Acquire(ctx, 1); err != nil {
		return common.OrderDetail{}, err
	}
	o, err := c.api.NewGetOrderService().Symbol(symbol).OrderID(orderID).Do(ctx)
	if err != nil {
		return common.OrderDetail{}, classify("get order", err)
	}
	price, _ := strconv.ParseFloat(o.Price, 64)
	orig, _ := strconv.ParseFloat(o.OrigQuantity, 64)
	executed, _ := strconv.ParseFloat(o.ExecutedQuantity, 64)
	avg, _ := strconv.ParseFloat(o.AvgPrice, 64)
	return common.OrderDetail{
		OrderID:     o.OrderID,
		ClientID:    o.ClientOrderID,
		Symbol:      o.Symbol,
		Side:        common.Side(o.Side),
		Type:        mapType(o.Type),
		Status:      mapStatus(o.Status),
		Price:       price,
		OrigQty:     orig,
		ExecutedQty: executed,
		AvgPrice:    avg,
		UpdateTime:  time.UnixMilli(o.UpdateTime),
	}, nil
}

// TickerPrice returns the latest traded price for symbol.
func (c *Client) TickerPrice(ctx context.Context, symbol string) (float64, error) {
	if err := c.throttle.Acquire(ctx, 2); err != nil {
		return 0, err
	}
	prices, err := c.api.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, classify("ticker price", err)
	}
	if len(prices) == 0 {
		return 0, fmt.Errorf("ticker price: no price for %s", symbol)
	}
	p, err := strconv.ParseFloat(prices[0].Price, 64)
	if err != nil {
		return 0, fmt.Errorf("ticker price: parse %q: %w", prices[0].Price, err)
	}
	return p, nil
}

// RecentCandles returns up to limit most recent OHLCV bars.
func (c *Client) RecentCandles(ctx context.Context, symbol, interval string, limit int) ([]common.Candle, error) {
	if err := c.throttle.Acquire(ctx, 2); err != nil {
		return nil, err
	}
	klines, err := c.api.NewKlinesService().
		Symbol(symbol).
		Interval(interval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, classify("klines", err)
	}
	candles := make([]common.Candle, 0, len(klines))
	for _, k := range klines {
		open, _ := strconv.ParseFloat(k.Open, 64)
		high, _ := strconv.ParseFloat(k.High, 64)
		low, _ := strconv.ParseFloat(k.Low, 64)
		cl, _ := strconv.ParseFloat(k.Close, 64)
		vol, _ := strconv.ParseFloat(k.Volume, 64)
		candles = append(candles, common.Candle{
			OpenTime: time.UnixMilli(k.OpenTime),
			Open:     open,
			High:     high,
			Low:      low,
			Close:    cl,
			Volume:   vol,
		})
	}
	return candles, nil
}

// SetLeverage sets leverage for a symbol.
func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	if err := c.throttle.Acquire(ctx, 1); err != nil {
		return err
	}
	_, err := c.api.NewChangeLeverageService().Symbol(symbol).Leverage(leverage).Do(ctx)
	if err != nil {
		return classify("set leverage", err)
	}
	return nil
}

func toBinanceSide(s common.Side) futures.SideType {
	if s == common.SideSell {
		return futures.SideTypeSell
	}
	return futures.SideTypeBuy
}

func toBinanceType(t common.OrderType) futures.OrderType {
	switch t {
	case common.OrderTypeLimit:
		return futures.OrderTypeLimit
	case common.OrderTypeStopMarket:
		return futures.OrderTypeStopMarket
	case common.OrderTypeTakeProfitMarket:
		return futures.OrderTypeTakeProfitMarket
	default:
		return futures.OrderTypeMarket
	}
}

func toBinanceTIF(tif common.TimeInForce) futures.TimeInForceType {
	switch tif {
	case common.TIFIOC:
		return futures.TimeInForceTypeIOC
	case common.TIFFOK:
		return futures.TimeInForceTypeFOK
	default:
		return futures.TimeInForceTypeGTC
	}
}

func mapType(t futures.OrderType) common.OrderType {
	switch t {
	case futures.OrderTypeLimit:
		return common.OrderTypeLimit
	case futures.OrderTypeStopMarket:
		return common.OrderTypeStopMarket
	case futures.OrderTypeTakeProfitMarket:
		return common.OrderTypeTakeProfitMarket
	default:
		return common.OrderTypeMarket
	}
}

func mapStatus(s futures.OrderStatusType) common.OrderStatus {
	switch s {
	case futures.OrderStatusTypeNew, futures.OrderStatusTypePartiallyFilled:
		return common.StatusPending
	case futures.OrderStatusTypeFilled:
		return common.StatusFilled
	case futures.OrderStatusTypeCanceled:
		return common.StatusCanceled
	case futures.OrderStatusTypeExpired:
		return common.StatusExpired
	case futures.OrderStatusTypeRejected:
		return common.StatusRejected
	default:
		return common.StatusUnknown
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
