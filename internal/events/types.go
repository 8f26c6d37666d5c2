package events

import "time"

// Event enumerates high-level topics inside the execution core.
type Event string

const (
	EventOrderPlaced       Event = "order.placed"
	EventOrderFilled       Event = "order.filled"
	EventOrderCanceled     Event = "order.canceled"
	EventOrderRejected     Event = "order.rejected"
	EventOrderConverted    Event = "order.converted" // limit cancelled, market replacement sent
	EventPositionOpened    Event = "position.opened"
	EventPositionClosed    Event = "position.closed"
	EventPositionForced    Event = "position.force_closed"
	EventStopLossTriggered Event = "position.stop_loss"
	EventRiskRejected      Event = "risk.rejected"
	EventCriticalAlert     Event = "alert.critical"
)

// OrderEvent is the payload for order lifecycle topics.
type OrderEvent struct {
	OrderID  int64
	ClientID string
	Symbol   string
	Side     string
	Intent   string
	Price    float64
	Quantity float64
	Reason   string
	At       time.Time
}

// PositionEvent is the payload for position lifecycle topics.
type PositionEvent struct {
	Symbol     string
	Side       string
	EntryPrice float64
	ExitPrice  float64
	Quantity   float64
	Leverage   int
	PnL        float64
	ROI        float64
	Reason     string
	At         time.Time
}

// RiskEvent is the payload for risk rejections.
type RiskEvent struct {
	Symbol string
	Check  string
	Reason string
	At     time.Time
}

// Alert is the payload for critical alerts that need operator
// attention, e.g. an open position left without a protective stop.
type Alert struct {
	Symbol  string
	Message string
	At      time.Time
}
