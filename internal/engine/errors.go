package engine

import "fmt"

// CriticalError marks a failure that leaves the system in an unsafe
// state, e.g. an open position without a protective stop. It is never
// retried automatically; operators are alerted instead.
type CriticalError struct {
	Symbol string
	Op     string
	Err    error
}

func (e *CriticalError) Error() string {
	return fmt.Sprintf("critical: %s %s: %v", e.Op, e.Symbol, e.Err)
}

func (e *CriticalError) Unwrap() error { return e.Err }

// ErrSchedulerFull is returned when the pending-order budget is
// exhausted; the order is rejected before reaching the exchange.
var ErrSchedulerFull = fmt.Errorf("pending order limit reached")

var errConversionFailed = fmt.Errorf("limit order canceled but market replacement was not placed")
