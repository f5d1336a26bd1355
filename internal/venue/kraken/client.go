// Package kraken adapts the Kraken spot REST API to venue.OrderBook.
package kraken

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"mmkeeper/internal/adapter"
	"mmkeeper/internal/errors"
	"mmkeeper/pkg/backoff"
	"mmkeeper/pkg/exception"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"
)

const (
	DefaultBaseURL = "https://api.kraken.com"
	DefaultTimeout = 9500 * time.Millisecond
	DefaultRetries = 3
)

type ClientOption struct {
	BaseURL string
	Token   adapter.Token
	Timeout time.Duration
	// Retries bounds attempts for calls that are safe to repeat.
	Retries int
	Backoff backoff.Backoff
}

// Client signs and sends Kraken REST requests.
type Client struct {
	opt    ClientOption
	http   *http.Client
	logger *zap.Logger
	nonce  atomic.Int64
}

func NewClient(opt ClientOption, httpClient *http.Client, logger *zap.Logger) (*Client, error) {
	if !opt.Token.Valid() {
		return nil, errors.Wrap(exception.ErrFatalConfig, "kraken: api key and secret are required")
	}

	if _, err := base64.StdEncoding.DecodeString(opt.Token.Secret); err != nil {
		return nil, errors.Wrap(exception.ErrFatalConfig, "kraken: secret is not base64")
	}

	if opt.BaseURL == "" {
		opt.BaseURL = DefaultBaseURL
	}
	if opt.Timeout <= 0 {
		opt.Timeout = DefaultTimeout
	}
	if opt.Retries <= 0 {
		opt.Retries = DefaultRetries
	}
	if opt.Backoff == (backoff.Backoff{}) {
		opt.Backoff = backoff.Default()
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		opt:    opt,
		http:   httpClient,
		logger: logger.Named("kraken"),
	}, nil
}

// public issues a GET against /0/public/<method>.
func public[T any](ctx context.Context, c *Client, method string, query url.Values) (T, error) {
	return do[T](ctx, c, true, func(ctx context.Context) (*http.Request, error) {
		u := c.opt.BaseURL + "/0/public/" + method
		if len(query) > 0 {
			u += "?" + query.Encode()
		}
		return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	})
}

// private issues a signed POST against /0/private/<method>. Only idempotent
// calls may set retry; a repeated AddOrder could place twice.
func private[T any](ctx context.Context, c *Client, method string, form url.Values, retry bool) (T, error) {
	return do[T](ctx, c, retry, func(ctx context.Context) (*http.Request, error) {
		path := "/0/private/" + method

		body := url.Values{}
		for k, v := range form {
			body[k] = v
		}
		nonce := c.nextNonce()
		body.Set("nonce", nonce)
		encoded := body.Encode()

		r, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opt.BaseURL+path, strings.NewReader(encoded))
		if err != nil {
			return nil, err
		}

		signed, err := Sign(c.opt.Token.Secret, path, nonce, encoded)
		if err != nil {
			return nil, err
		}

		r.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=utf-8")
		r.Header.Set("API-Key", c.opt.Token.Key)
		r.Header.Set("API-Sign", signed)
		return r, nil
	})
}

func do[T any](ctx context.Context, c *Client, retry bool, build func(context.Context) (*http.Request, error)) (T, error) {
	var zero T
	attempts := 1
	if retry {
		attempts = c.opt.Retries
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if err := c.opt.Backoff.Sleep(ctx, attempt-1); err != nil {
				return zero, err
			}
		}

		result, transient, err := send[T](ctx, c, build)
		if err == nil {
			return result, nil
		}
		if !transient {
			return zero, err
		}

		lastErr = err
		c.logger.Debug("kraken_retry", zap.Int("attempt", attempt), zap.Error(err))
	}

	return zero, errors.Wrap(exception.ErrTransientNetwork, lastErr.Error())
}

// send performs one request. transient marks failures worth retrying.
func send[T any](ctx context.Context, c *Client, build func(context.Context) (*http.Request, error)) (T, bool, error) {
	var zero T

	ctx, cancel := context.WithTimeout(ctx, c.opt.Timeout)
	defer cancel()

	r, err := build(ctx)
	if err != nil {
		return zero, false, err
	}

	resp, err := c.http.Do(r)
	if err != nil {
		// The caller's own cancellation is not a network problem.
		if ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled) {
			return zero, false, err
		}
		return zero, true, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return zero, true, err
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return zero, true, errors.Wrapf(exception.ErrVenueResponse, "http %d", resp.StatusCode)
	}

	var data Response[T]
	if err := sonic.Unmarshal(payload, &data); err != nil {
		return zero, false, errors.Wrapf(exception.ErrVenueResponse, "http %d: %s", resp.StatusCode, err.Error())
	}

	if data.failed() {
		return zero, data.transient(), errors.Wrap(exception.ErrVenueResponse, data.message())
	}

	return data.Result, false, nil
}

// Sign computes API-Sign: base64(HMAC-SHA512(base64dec(secret), path + SHA256(nonce + body))).
func Sign(secret, path, nonce, body string) (string, error) {
	key, err := base64.StdEncoding.DecodeString(secret)
	if err != nil {
		return "", err
	}

	sha := sha256.Sum256([]byte(nonce + body))
	mac := hmac.New(sha512.New, key)
	mac.Write([]byte(path))
	mac.Write(sha[:])
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}

func (c *Client) nextNonce() string {
	for {
		prev := c.nonce.Load()
		next := time.Now().UnixMicro()
		if next <= prev {
			next = prev + 1
		}
		if c.nonce.CompareAndSwap(prev, next) {
			return strconv.FormatInt(next, 10)
		}
	}
}
