package kraken

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"mmkeeper/internal/adapter"
	"mmkeeper/internal/adapter/enum"
	"mmkeeper/pkg/backoff"
	"mmkeeper/pkg/exception"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testSecret = base64.StdEncoding.EncodeToString([]byte("kraken-test-secret"))

func newTestVenue(t *testing.T, handler http.Handler) *Venue {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(ClientOption{
		BaseURL: srv.URL,
		Token:   adapter.NewToken("test-key", testSecret),
		Timeout: time.Second,
		Backoff: backoff.Backoff{Min: time.Millisecond, Max: time.Millisecond},
	}, srv.Client(), zap.NewNop())
	require.NoError(t, err)

	v, err := NewVenue(client, "ethusd")
	require.NoError(t, err)
	return v
}

// verifySignature recomputes API-Sign the way Kraken does.
func verifySignature(t *testing.T, r *http.Request, body string) {
	t.Helper()
	form, err := url.ParseQuery(body)
	require.NoError(t, err)

	key, _ := base64.StdEncoding.DecodeString(testSecret)
	sha := sha256.Sum256([]byte(form.Get("nonce") + body))
	mac := hmac.New(sha512.New, key)
	mac.Write([]byte(r.URL.Path))
	mac.Write(sha[:])

	assert.Equal(t, "test-key", r.Header.Get("API-Key"))
	assert.Equal(t, base64.StdEncoding.EncodeToString(mac.Sum(nil)), r.Header.Get("API-Sign"))
}

func TestNewClientRequiresCredentials(t *testing.T) {
	_, err := NewClient(ClientOption{}, nil, nil)
	assert.ErrorIs(t, err, exception.ErrFatalConfig)

	_, err = NewClient(ClientOption{Token: adapter.NewToken("k", "not base64!")}, nil, nil)
	assert.ErrorIs(t, err, exception.ErrFatalConfig)
}

func TestLoadProfile(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/0/public/Assets", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"error":[],"result":{"XETH":{"altname":"ETH"},"ZUSD":{"altname":"USD"},"DOT":{"altname":"DOT"}}}`)
	})
	mux.HandleFunc("/0/public/AssetPairs", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"error":[],"result":{"XETHZUSD":{"altname":"ETHUSD","base":"XETH","quote":"ZUSD","pair_decimals":2}}}`)
	})
	v := newTestVenue(t, mux)

	require.NoError(t, v.Load(t.Context()))
	p := v.Profile()
	assert.Equal(t, "ETHUSD", p.Pair())
	assert.Equal(t, int32(2), p.PricePrecision)
	assert.True(t, p.BalancesIncludeLocked)
	assert.Equal(t, map[string]string{"XETH": "ETH", "ZUSD": "USD"}, p.CurrencyAliases)

	normalized := p.Normalize(adapter.Balances{"XETH": decimal.NewFromInt(2), "ZUSD": decimal.NewFromInt(10)})
	assert.Equal(t, "2", normalized.Get("ETH").String())
	assert.Equal(t, "10", normalized.Get("USD").String())
}

func TestLoadUnknownPair(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/0/public/Assets", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"error":[],"result":{}}`)
	})
	mux.HandleFunc("/0/public/AssetPairs", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"error":[],"result":{"XXBTZUSD":{"altname":"XBTUSD","pair_decimals":1}}}`)
	})
	v := newTestVenue(t, mux)

	assert.ErrorIs(t, v.Load(t.Context()), exception.ErrVenueUnknownPair)
}

func TestOpenOrdersAndBalances(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/0/private/OpenOrders", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		verifySignature(t, r, string(body))
		_, _ = io.WriteString(w, `{"error":[],"result":{"open":{
			"O1":{"status":"open","opentm":1700000000.5,"vol":"1.5","vol_exec":"0.5","descr":{"pair":"ETHUSD","type":"sell","ordertype":"limit","price":"2010.5"}},
			"O2":{"status":"open","opentm":1700000001,"vol":"2","vol_exec":"0","descr":{"pair":"ETHUSD","type":"buy","ordertype":"limit","price":"1990"}},
			"O3":{"status":"open","opentm":1700000002,"vol":"1","vol_exec":"0","descr":{"pair":"XBTUSD","type":"buy","ordertype":"limit","price":"30000"}}
		}}}`)
	})
	mux.HandleFunc("/0/private/Balance", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		verifySignature(t, r, string(body))
		_, _ = io.WriteString(w, `{"error":[],"result":{"XETH":"3.25","ZUSD":"1000.0"}}`)
	})
	v := newTestVenue(t, mux)

	orders, err := v.OpenOrders(t.Context(), "ETHUSD")
	require.NoError(t, err)
	require.Len(t, orders, 2)

	sells := adapter.SellOrders(orders)
	require.Len(t, sells, 1)
	assert.Equal(t, "O1", sells[0].ID)
	assert.Equal(t, "2010.5", sells[0].Price.String())
	assert.Equal(t, "1", sells[0].Remaining().String())
	assert.Equal(t, int64(1700000000), sells[0].PlacedAt.Unix())
	assert.Len(t, adapter.BuyOrders(orders), 1)

	balances, err := v.Balances(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "3.25", balances.Get("XETH").String())
}

func TestOpenOrdersOldestFirst(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/0/private/OpenOrders", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"error":[],"result":{"open":{
			"OC":{"opentm":1700000003,"vol":"1","vol_exec":"0","descr":{"pair":"ETHUSD","type":"sell","price":"2030"}},
			"OB":{"opentm":1700000001,"vol":"1","vol_exec":"0","descr":{"pair":"ETHUSD","type":"sell","price":"2020"}},
			"OA":{"opentm":1700000001,"vol":"1","vol_exec":"0","descr":{"pair":"ETHUSD","type":"buy","price":"1990"}},
			"OD":{"opentm":1700000000,"vol":"1","vol_exec":"0","descr":{"pair":"ETHUSD","type":"buy","price":"1980"}}
		}}}`)
	})
	v := newTestVenue(t, mux)

	for range 5 {
		orders, err := v.OpenOrders(t.Context(), "ETHUSD")
		require.NoError(t, err)

		ids := make([]string, 0, len(orders))
		for _, o := range orders {
			ids = append(ids, o.ID)
		}
		assert.Equal(t, []string{"OD", "OA", "OB", "OC"}, ids)
	}
}

func TestPlaceAndCancel(t *testing.T) {
	var placed url.Values
	mux := http.NewServeMux()
	mux.HandleFunc("/0/private/AddOrder", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		verifySignature(t, r, string(body))
		placed, _ = url.ParseQuery(string(body))
		_, _ = io.WriteString(w, `{"error":[],"result":{"txid":["OABC-123"],"descr":{"order":"sell 1.25 ETHUSD @ limit 2000.12"}}}`)
	})
	mux.HandleFunc("/0/private/CancelOrder", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		form, _ := url.ParseQuery(string(body))
		if form.Get("txid") != "OABC-123" {
			_, _ = io.WriteString(w, `{"error":["EOrder:Unknown order"]}`)
			return
		}
		_, _ = io.WriteString(w, `{"error":[],"result":{"count":1}}`)
	})
	v := newTestVenue(t, mux)

	id, err := v.PlaceOrder(t.Context(), "ETHUSD", enum.OrderSideSell, decimal.RequireFromString("2000.12"), decimal.RequireFromString("1.25"))
	require.NoError(t, err)
	assert.Equal(t, "OABC-123", id)
	assert.Equal(t, "ETHUSD", placed.Get("pair"))
	assert.Equal(t, "sell", placed.Get("type"))
	assert.Equal(t, "limit", placed.Get("ordertype"))
	assert.Equal(t, "2000.12", placed.Get("price"))
	assert.Equal(t, "1.25", placed.Get("volume"))

	require.NoError(t, v.CancelOrder(t.Context(), "OABC-123"))
	assert.ErrorIs(t, v.CancelOrder(t.Context(), "missing"), exception.ErrVenueResponse)
}

func TestRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/0/private/Balance", func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = io.WriteString(w, `{"error":[],"result":{"ZUSD":"1"}}`)
	})
	v := newTestVenue(t, mux)

	_, err := v.Balances(t.Context())
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/0/private/OpenOrders", func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = io.WriteString(w, `{"error":["EService:Unavailable"]}`)
	})
	v := newTestVenue(t, mux)

	_, err := v.OpenOrders(t.Context(), "ETHUSD")
	assert.ErrorIs(t, err, exception.ErrTransientNetwork)
	assert.Equal(t, int32(DefaultRetries), calls.Load())
}

func TestAddOrderIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/0/private/AddOrder", func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	v := newTestVenue(t, mux)

	_, err := v.PlaceOrder(t.Context(), "ETHUSD", enum.OrderSideBuy, decimal.NewFromInt(1), decimal.NewFromInt(1))
	assert.ErrorIs(t, err, exception.ErrTransientNetwork)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCallerCancellationIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/0/private/Balance", func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
	})
	v := newTestVenue(t, mux)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err := v.Balances(ctx)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, exception.ErrTransientNetwork)
}

func TestSignIsDeterministic(t *testing.T) {
	a, err := Sign(testSecret, "/0/private/Balance", "1", "nonce=1")
	require.NoError(t, err)
	b, err := Sign(testSecret, "/0/private/Balance", "1", "nonce=1")
	require.NoError(t, err)
	c, err := Sign(testSecret, "/0/private/Balance", "2", "nonce=2")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
