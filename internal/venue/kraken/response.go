package kraken

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Response is Kraken's envelope for every REST call.
type Response[T any] struct {
	Error  []string `json:"error"`
	Result T        `json:"result"`
}

func (r Response[T]) failed() bool {
	return len(r.Error) > 0
}

func (r Response[T]) message() string {
	return strings.Join(r.Error, "; ")
}

// transient reports whether Kraken's error codes describe a temporary condition.
func (r Response[T]) transient() bool {
	for _, e := range r.Error {
		if strings.HasPrefix(e, "EService:") || strings.HasPrefix(e, "EGeneral:Temporary") {
			return true
		}
	}
	return false
}

type ResponseAsset struct {
	AClass   string `json:"aclass"`
	AltName  string `json:"altname"`
	Decimals int32  `json:"decimals"`
}

type ResponseAssetPair struct {
	AltName      string `json:"altname"`
	WSName       string `json:"wsname"`
	Base         string `json:"base"`
	Quote        string `json:"quote"`
	PairDecimals int32  `json:"pair_decimals"`
	LotDecimals  int32  `json:"lot_decimals"`
}

type ResponseOpenOrders struct {
	Open map[string]ResponseOrder `json:"open"`
}

type ResponseOrder struct {
	Status  string          `json:"status"`
	OpenTm  float64         `json:"opentm"`
	Vol     decimal.Decimal `json:"vol"`
	VolExec decimal.Decimal `json:"vol_exec"`
	Descr   struct {
		Pair      string          `json:"pair"`
		Type      string          `json:"type"`
		OrderType string          `json:"ordertype"`
		Price     decimal.Decimal `json:"price"`
	} `json:"descr"`
}

type ResponseAddOrder struct {
	TxID  []string `json:"txid"`
	Descr struct {
		Order string `json:"order"`
	} `json:"descr"`
}

type ResponseCancelOrder struct {
	Count int `json:"count"`
}
