package exception

import "github.com/yanun0323/errors"

var (
	ErrOrderUnsupportedSide   = errors.New("order: unsupported side")
	ErrOrderInvalidRequest    = errors.New("order: invalid request")
	ErrOrderNilWorkerPool     = errors.New("order: nil worker pool")
	ErrOrderInvalidPoolConfig = errors.New("order: invalid worker pool config")
	ErrOrderQueueFull         = errors.New("order: queue full")
	ErrOrderPoolClosed        = errors.New("order: worker pool closed")
	ErrOrderEmptyResponseID   = errors.New("order: empty response order id")
	ErrOrderNotFound          = errors.New("order: not found")
	ErrOrderInsufficientFunds = errors.New("order: insufficient funds")
)

// ErrSubmissionFailure marks a single placement or cancellation the venue rejected.
// It never aborts a tick.
var ErrSubmissionFailure = errors.New("order: submission failure")

// ErrOrderBookNotReady is returned before the first successful order book refresh.
var ErrOrderBookNotReady = errors.New("order book: not refreshed yet")
