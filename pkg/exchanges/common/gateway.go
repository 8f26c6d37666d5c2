package common

import "context"

// Gateway abstracts a trading venue.
type Gateway interface {
	SubmitOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	CancelOrder(ctx context.Context, symbol string, orderID int64) error
	GetOrderStatus(ctx context.Context, symbol string, orderID int64) (OrderDetail, error)
	TickerPrice(ctx context.Context, symbol string) (float64, error)
	RecentCandles(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)
	SetLeverage(ctx context.Context, symbol string, leverage int) error
}
