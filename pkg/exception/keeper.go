package exception

import "github.com/yanun0323/errors"

var (
	// ErrTransientNetwork is returned by venue adapters once their bounded retries are exhausted.
	ErrTransientNetwork = errors.New("venue: transient network failure")

	// ErrStaleFeed is returned by feeds older than their configured expiry.
	ErrStaleFeed = errors.New("feed: stale")

	// ErrFeedUnavailable is returned by feeds that have not produced a value yet.
	ErrFeedUnavailable = errors.New("feed: unavailable")

	// ErrUnconfirmedState is never returned from a tick. It labels the gate that
	// suppresses placement while a previous operation is unresolved.
	ErrUnconfirmedState = errors.New("keeper: unconfirmed order book state")

	// ErrFatalConfig aborts startup.
	ErrFatalConfig = errors.New("config: fatal")
)

var (
	ErrLiquidityNoPosition   = errors.New("liquidity: no position")
	ErrLiquidityTxReverted   = errors.New("liquidity: transaction reverted")
	ErrLiquidityTxTimeout    = errors.New("liquidity: confirmation timeout")
	ErrLiquidityInvalidPrice = errors.New("liquidity: invalid pool price")
)
