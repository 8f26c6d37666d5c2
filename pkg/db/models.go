package db

import (
	"encoding/json"
	"fmt"
	"time"

	"execution-core/pkg/exchanges/common"
)

// OrderInfo is the request payload persisted alongside an order so a
// restart can rebuild monitoring state. Stored as JSON in order_info.
type OrderInfo struct {
	ClientID   string        `json:"client_id,omitempty"`
	Intent     common.Intent `json:"intent,omitempty"`
	OrderType  string        `json:"order_type,omitempty"`
	StopPrice  float64       `json:"stop_price,omitempty"`
	ReduceOnly bool          `json:"reduce_only,omitempty"`
	Leverage   int           `json:"leverage,omitempty"`
	Strength   float64       `json:"strength,omitempty"`
	Urgent     bool          `json:"urgent,omitempty"`
}

// OrderRecord is one row of the order ledger.
type OrderRecord struct {
	OrderID    int64
	Symbol     string
	Side       common.Side
	OrderPrice float64
	Quantity   float64
	Timestamp  time.Time
	Status     common.OrderStatus
	Info       OrderInfo
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (i OrderInfo) marshal() (string, error) {
	b, err := json.Marshal(i)
	if err != nil {
		return "", fmt.Errorf("marshal order info: %w", err)
	}
	return string(b), nil
}

func unmarshalInfo(s string) (OrderInfo, error) {
	var info OrderInfo
	if s == "" {
		return info, nil
	}
	if err := json.Unmarshal([]byte(s), &info); err != nil {
		return info, fmt.Errorf("unmarshal order info: %w", err)
	}
	return info, nil
}
