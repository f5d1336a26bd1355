// Package feed provides the external JSON feeds a keeper reads every tick:
// the target price, the band spreads and the buy/sell control switches.
package feed

import (
	"context"
	"sync"
	"time"

	"mmkeeper/internal/errors"
	"mmkeeper/pkg/exception"
	"mmkeeper/pkg/websocket"

	"go.uber.org/zap"
)

// Source yields the most recent JSON payload of a feed and when it was received.
type Source interface {
	Latest() (payload []byte, at time.Time, err error)
}

// Static always returns the same payload, stamped with the current time.
type Static []byte

func (s Static) Latest() ([]byte, time.Time, error) {
	return []byte(s), time.Now(), nil
}

// Expiring rejects payloads older than Expiry with exception.ErrStaleFeed.
type Expiring struct {
	Source Source
	Expiry time.Duration
	now    func() time.Time
}

func NewExpiring(src Source, expiry time.Duration) *Expiring {
	return &Expiring{Source: src, Expiry: expiry, now: time.Now}
}

func (e *Expiring) Latest() ([]byte, time.Time, error) {
	payload, at, err := e.Source.Latest()
	if err != nil {
		return nil, at, err
	}

	if e.Expiry > 0 && e.now().Sub(at) > e.Expiry {
		return nil, at, errors.Wrapf(exception.ErrStaleFeed, "age %s", e.now().Sub(at).Truncate(time.Millisecond))
	}

	return payload, at, nil
}

// WebSocket keeps the last message received on a websocket subscription.
type WebSocket struct {
	client *websocket.Client
	logger *zap.Logger

	mu      sync.RWMutex
	payload []byte
	at      time.Time
}

func NewWebSocket(url string, logger *zap.Logger) (*WebSocket, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	ws := &WebSocket{logger: logger.With(zap.String("feed", url))}
	client, err := websocket.NewClient(websocket.Option{
		URL:         url,
		ReadTimeout: time.Minute,
		OnConnect: func() {
			ws.logger.Info("feed_connected")
		},
		OnDisconnect: func(err error) {
			ws.logger.Warn("feed_disconnected", zap.Error(err))
		},
	}, ws.handle)
	if err != nil {
		return nil, errors.Wrap(err, "new websocket feed")
	}

	ws.client = client
	return ws, nil
}

// Run keeps the subscription alive until ctx is done.
func (w *WebSocket) Run(ctx context.Context) {
	w.client.Run(ctx)
}

func (w *WebSocket) handle(_ context.Context, payload []byte) error {
	cp := append([]byte(nil), payload...)

	w.mu.Lock()
	w.payload = cp
	w.at = time.Now()
	w.mu.Unlock()
	return nil
}

func (w *WebSocket) Latest() ([]byte, time.Time, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.payload == nil {
		return nil, time.Time{}, exception.ErrFeedUnavailable
	}

	return w.payload, w.at, nil
}
