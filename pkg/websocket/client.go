// Package websocket keeps a single reconnecting WebSocket subscription alive and
// hands every text message to a handler.
package websocket

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"mmkeeper/pkg/backoff"
	"mmkeeper/pkg/exception"

	"github.com/gorilla/websocket"
)

// Handler consumes one inbound message. Returning an error drops the connection.
type Handler func(ctx context.Context, payload []byte) error

type Option struct {
	URL    string
	Header http.Header

	// Subscribe is written once after every successful dial.
	Subscribe []byte

	// ReadTimeout drops a connection that stays silent for longer. Zero disables it.
	ReadTimeout time.Duration
	Backoff     backoff.Backoff

	OnConnect    func()
	OnDisconnect func(err error)
}

type Client struct {
	opt       Option
	handler   Handler
	dialer    *websocket.Dialer
	connected atomic.Bool
	running   atomic.Bool
}

func NewClient(opt Option, handler Handler) (*Client, error) {
	if opt.URL == "" || handler == nil {
		return nil, exception.ErrInvalidArgument
	}

	if opt.Backoff == (backoff.Backoff{}) {
		opt.Backoff = backoff.Default()
	}

	return &Client{
		opt:     opt,
		handler: handler,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
			Proxy:            http.ProxyFromEnvironment,
		},
	}, nil
}

// Connected reports whether a session is currently open.
func (c *Client) Connected() bool {
	return c.connected.Load()
}

// Run dials and re-dials with backoff until ctx is done.
func (c *Client) Run(ctx context.Context) {
	if !c.running.CompareAndSwap(false, true) {
		return
	}
	defer c.running.Store(false)

	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}

		conn, _, err := c.dialer.DialContext(ctx, c.opt.URL, c.opt.Header)
		if err != nil {
			attempt++
			if c.opt.OnDisconnect != nil {
				c.opt.OnDisconnect(err)
			}
			if c.opt.Backoff.Sleep(ctx, attempt) != nil {
				return
			}
			continue
		}

		attempt = 0
		err = c.runSession(ctx, conn)
		c.connected.Store(false)
		_ = conn.Close()
		if c.opt.OnDisconnect != nil {
			c.opt.OnDisconnect(err)
		}

		if ctx.Err() != nil {
			return
		}
		attempt++
		if c.opt.Backoff.Sleep(ctx, attempt) != nil {
			return
		}
	}
}

func (c *Client) runSession(ctx context.Context, conn *websocket.Conn) error {
	if len(c.opt.Subscribe) > 0 {
		if err := conn.WriteMessage(websocket.TextMessage, c.opt.Subscribe); err != nil {
			return err
		}
	}

	c.connected.Store(true)
	if c.opt.OnConnect != nil {
		c.opt.OnConnect()
	}

	stop := context.AfterFunc(ctx, func() {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"),
			time.Now().Add(time.Second))
		_ = conn.Close()
	})
	defer stop()

	for {
		if c.opt.ReadTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(c.opt.ReadTimeout))
		}

		msgType, payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}

		if err := c.handler(ctx, payload); err != nil {
			return err
		}
	}
}
