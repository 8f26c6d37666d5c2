package common

import "time"

// Side denotes order side.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the closing side for s.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// PositionSide denotes the direction of an open position.
type PositionSide string

const (
	PositionLong  PositionSide = "LONG"
	PositionShort PositionSide = "SHORT"
)

// Intent classifies why an order is being placed. It drives queue
// priority and monitoring behaviour, not the exchange order type.
type Intent string

const (
	IntentEntry          Intent = "ENTRY"
	IntentTakeProfit     Intent = "TAKE_PROFIT"
	IntentStopLoss       Intent = "STOP_LOSS"
	IntentEmergencyClose Intent = "EMERGENCY_CLOSE"
)

// OrderType denotes the exchange order type.
type OrderType string

const (
	OrderTypeMarket           OrderType = "MARKET"
	OrderTypeLimit            OrderType = "LIMIT"
	OrderTypeStopMarket       OrderType = "STOP_MARKET"
	OrderTypeTakeProfitMarket OrderType = "TAKE_PROFIT_MARKET"
)

// TimeInForce captures TIF semantics.
type TimeInForce string

const (
	TIFGTC TimeInForce = "GTC" // Good Till Cancelled
	TIFIOC TimeInForce = "IOC" // Immediate Or Cancel
	TIFFOK TimeInForce = "FOK" // Fill Or Kill
)

// OrderStatus normalizes exchange status into a small set.
type OrderStatus string

const (
	StatusPending  OrderStatus = "PENDING"
	StatusFilled   OrderStatus = "FILLED"
	StatusCanceled OrderStatus = "CANCELED"
	StatusExpired  OrderStatus = "EXPIRED"
	StatusRejected OrderStatus = "REJECTED"
	StatusUnknown  OrderStatus = "UNKNOWN"
)

// Terminal reports whether the status can no longer change.
func (s OrderStatus) Terminal() bool {
	switch s {
	case StatusFilled, StatusCanceled, StatusExpired, StatusRejected:
		return true
	}
	return false
}

// OrderRequest captures an order intent to be sent to an exchange.
type OrderRequest struct {
	Symbol      string
	Side        Side
	Type        OrderType
	Intent      Intent
	Quantity    float64
	Price       float64 // required for LIMIT
	StopPrice   float64 // required for STOP_MARKET/TAKE_PROFIT_MARKET
	TimeInForce TimeInForce
	ClientID    string // client order id, stable across retries
	ReduceOnly  bool
	Leverage    int // futures leverage (optional)

	// Signal metadata carried through to scheduling.
	Strength float64 // signal strength in [0,1]; <0 means absent
	Urgent   bool
}

// OrderResult returns the exchange ack.
type OrderResult struct {
	OrderID     int64
	ClientID    string
	Status      OrderStatus
	ExecutedQty float64
	AvgPrice    float64
}

// OrderDetail is a queried order snapshot.
type OrderDetail struct {
	OrderID     int64
	ClientID    string
	Symbol      string
	Side        Side
	Type        OrderType
	Status      OrderStatus
	Price       float64
	OrigQty     float64
	ExecutedQty float64
	AvgPrice    float64
	UpdateTime  time.Time
}

// Candle is a single OHLCV bar.
type Candle struct {
	OpenTime time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
}
