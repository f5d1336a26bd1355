package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"mmkeeper/pkg/backoff"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientSubscribesAndReconnects(t *testing.T) {
	var dials atomic.Int32
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		dials.Add(1)

		_, sub, err := conn.ReadMessage()
		if err != nil || string(sub) != `{"op":"subscribe"}` {
			return
		}
		// One message per connection, then drop to force a reconnect.
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"price":"100"}`))
	}))
	defer srv.Close()

	var received atomic.Int32
	c, err := NewClient(Option{
		URL:       "ws" + strings.TrimPrefix(srv.URL, "http"),
		Subscribe: []byte(`{"op":"subscribe"}`),
		Backoff:   backoff.Backoff{Min: time.Millisecond, Max: 5 * time.Millisecond},
	}, func(_ context.Context, payload []byte) error {
		assert.JSONEq(t, `{"price":"100"}`, string(payload))
		received.Add(1)
		return nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		return received.Load() >= 2 && dials.Load() >= 2
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	<-done
	assert.False(t, c.Connected())
}

func TestNewClientInvalid(t *testing.T) {
	_, err := NewClient(Option{}, func(context.Context, []byte) error { return nil })
	assert.Error(t, err)

	_, err = NewClient(Option{URL: "ws://localhost"}, nil)
	assert.Error(t, err)
}
