package futures_usdt

import (
	"context"
	"errors"

	binanceapi "github.com/adshao/go-binance/v2/common"

	"execution-core/pkg/exchanges/common"
)

// Binance error codes that indicate a transient condition.
const (
	codeDisconnected    = -1001
	codeTooManyRequests = -1003
	codeTimeout         = -1007
	codeServerBusy      = -1008
	codeBadRecvWindow   = -1021
)

// classify maps an API failure onto the gateway error taxonomy. API
// errors with a definitive code become rejections; everything else
// (network faults, 5xx, rate limiting) is transient.
func classify(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr *binanceapi.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case codeDisconnected, codeTooManyRequests, codeTimeout, codeServerBusy, codeBadRecvWindow:
			return common.Transient(op, err)
		}
		return &common.RejectedError{Op: op, Code: int(apiErr.Code), Reason: apiErr.Message}
	}

	// Raw transport failure, no structured response.
	return common.Transient(op, err)
}
