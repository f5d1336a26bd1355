package kraken

import (
	"context"
	"math"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"mmkeeper/internal/adapter"
	"mmkeeper/internal/adapter/enum"
	"mmkeeper/internal/errors"
	"mmkeeper/internal/venue"
	"mmkeeper/pkg/exception"

	"github.com/shopspring/decimal"
)

var _ venue.OrderBook = (*Venue)(nil)

// Venue is a Kraken order book for a single pair such as "ETHUSD". Kraken
// reports balances including funds held by open orders.
type Venue struct {
	client *Client

	mu      sync.RWMutex
	profile venue.Profile
}

// NewVenue expects the pair as base followed by quote, e.g. "XBTUSD" or "ETH_USD".
func NewVenue(client *Client, pair string) (*Venue, error) {
	if client == nil {
		return nil, exception.ErrNilInstance
	}

	base, quote, ok := venue.SplitPair(strings.ToUpper(pair))
	if !ok {
		return nil, errors.Wrapf(exception.ErrFatalConfig, "kraken: cannot split pair %q", pair)
	}

	return &Venue{
		client: client,
		profile: venue.Profile{
			Name:                  "kraken",
			Base:                  base,
			Quote:                 quote,
			SymbolCase:            enum.SymbolCaseUpper,
			PricePrecision:        -1,
			BalancesIncludeLocked: true,
		},
	}, nil
}

func (v *Venue) Profile() venue.Profile {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.profile
}

// Load fetches asset aliases and the pair's price precision. Run it at startup
// before any order is placed.
func (v *Venue) Load(ctx context.Context) error {
	assets, err := public[map[string]ResponseAsset](ctx, v.client, "Assets", nil)
	if err != nil {
		return errors.Wrap(err, "kraken: load assets")
	}

	pairs, err := public[map[string]ResponseAssetPair](ctx, v.client, "AssetPairs", nil)
	if err != nil {
		return errors.Wrap(err, "kraken: load asset pairs")
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	pair := v.profile.Pair()
	found := false
	for name, p := range pairs {
		if p.AltName == pair || name == pair {
			v.profile.PricePrecision = p.PairDecimals
			found = true
			break
		}
	}
	if !found {
		return errors.Wrapf(exception.ErrVenueUnknownPair, "kraken: pair %s", pair)
	}

	aliases := make(map[string]string, len(assets))
	for symbol, a := range assets {
		if a.AltName != "" && a.AltName != symbol {
			aliases[symbol] = a.AltName
		}
	}
	v.profile.CurrencyAliases = aliases

	return nil
}

func (v *Venue) OpenOrders(ctx context.Context, pair string) ([]adapter.Order, error) {
	res, err := private[ResponseOpenOrders](ctx, v.client, "OpenOrders", nil, true)
	if err != nil {
		return nil, errors.Wrap(err, "kraken: open orders")
	}

	orders := make([]adapter.Order, 0, len(res.Open))
	for id, o := range res.Open {
		if !strings.EqualFold(o.Descr.Pair, pair) {
			continue
		}

		orders = append(orders, adapter.Order{
			ID:           id,
			Pair:         pair,
			Side:         enum.ParseOrderSide(o.Descr.Type),
			Price:        o.Descr.Price,
			Amount:       o.Vol,
			FilledAmount: o.VolExec,
			PlacedAt:     unixFloat(o.OpenTm),
		})
	}

	// Kraken keys open orders by txid; oldest first keeps policy tie-breaks stable.
	sort.Slice(orders, func(i, j int) bool {
		if !orders[i].PlacedAt.Equal(orders[j].PlacedAt) {
			return orders[i].PlacedAt.Before(orders[j].PlacedAt)
		}
		return orders[i].ID < orders[j].ID
	})

	return orders, nil
}

func (v *Venue) Balances(ctx context.Context) (adapter.Balances, error) {
	res, err := private[map[string]decimal.Decimal](ctx, v.client, "Balance", nil, true)
	if err != nil {
		return nil, errors.Wrap(err, "kraken: balances")
	}

	return adapter.Balances(res), nil
}

func (v *Venue) CancelOrder(ctx context.Context, orderID string) error {
	_, err := private[ResponseCancelOrder](ctx, v.client, "CancelOrder", url.Values{"txid": {orderID}}, true)
	return errors.Wrapf(err, "kraken: cancel %s", orderID)
}

func (v *Venue) PlaceOrder(ctx context.Context, pair string, side enum.OrderSide, price, amount decimal.Decimal) (string, error) {
	if !side.IsAvailable() {
		return "", exception.ErrOrderUnsupportedSide
	}

	form := url.Values{
		"pair":      {pair},
		"type":      {side.String()},
		"ordertype": {"limit"},
		"price":     {price.String()},
		"volume":    {amount.String()},
	}

	res, err := private[ResponseAddOrder](ctx, v.client, "AddOrder", form, false)
	if err != nil {
		return "", errors.Wrap(err, "kraken: add order")
	}

	if len(res.TxID) == 0 {
		return "", exception.ErrOrderEmptyResponseID
	}

	return res.TxID[0], nil
}

func unixFloat(sec float64) time.Time {
	whole, frac := math.Modf(sec)
	return time.Unix(int64(whole), int64(frac*1e9))
}
