package bands

import (
	"time"

	"mmkeeper/internal/errors"
	"mmkeeper/pkg/exception"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"
)

// Config is the JSON bands file.
type Config struct {
	BuyBands   []BandConfig  `json:"buyBands"`
	BuyLimits  []LimitConfig `json:"buyLimits"`
	SellBands  []BandConfig  `json:"sellBands"`
	SellLimits []LimitConfig `json:"sellLimits"`
}

// BandConfig describes one price band. Margins are fractions of the target price,
// amounts are in the token the orders pay with.
type BandConfig struct {
	MinMargin  decimal.Decimal `json:"minMargin"`
	AvgMargin  decimal.Decimal `json:"avgMargin"`
	MaxMargin  decimal.Decimal `json:"maxMargin"`
	MinAmount  decimal.Decimal `json:"minAmount"`
	AvgAmount  decimal.Decimal `json:"avgAmount"`
	MaxAmount  decimal.Decimal `json:"maxAmount"`
	DustCutoff decimal.Decimal `json:"dustCutoff"`
}

// LimitConfig caps how much may be placed on one side within Period.
type LimitConfig struct {
	Period Duration        `json:"period"`
	Amount decimal.Decimal `json:"amount"`
}

// Duration decodes "1h", "30m" style strings.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := sonic.Unmarshal(b, &s); err != nil {
		return err
	}

	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}

	*d = Duration(v)
	return nil
}

// ParseConfig decodes and validates a bands file.
func ParseConfig(b []byte) (Config, error) {
	var cfg Config
	if err := sonic.Unmarshal(b, &cfg); err != nil {
		return Config{}, errors.Wrap(exception.ErrFatalConfig, "decode bands: "+err.Error())
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks every band is well formed and that bands on a side do not overlap.
func (c Config) Validate() error {
	if err := validateSide("buy", c.BuyBands, c.BuyLimits); err != nil {
		return err
	}
	return validateSide("sell", c.SellBands, c.SellLimits)
}

func validateSide(side string, bands []BandConfig, limits []LimitConfig) error {
	for i, b := range bands {
		if b.MinMargin.IsNegative() ||
			b.MinMargin.GreaterThan(b.AvgMargin) ||
			b.AvgMargin.GreaterThan(b.MaxMargin) {
			return errors.Wrapf(exception.ErrFatalConfig, "%s band %d: margins must satisfy 0 <= min <= avg <= max", side, i)
		}

		if b.MinAmount.IsNegative() ||
			b.MinAmount.GreaterThan(b.AvgAmount) ||
			b.AvgAmount.GreaterThan(b.MaxAmount) {
			return errors.Wrapf(exception.ErrFatalConfig, "%s band %d: amounts must satisfy 0 <= min <= avg <= max", side, i)
		}

		if b.DustCutoff.IsNegative() {
			return errors.Wrapf(exception.ErrFatalConfig, "%s band %d: negative dust cutoff", side, i)
		}

		for j := range i {
			o := bands[j]
			if b.MinMargin.LessThan(o.MaxMargin) && o.MinMargin.LessThan(b.MaxMargin) {
				return errors.Wrapf(exception.ErrFatalConfig, "%s bands %d and %d overlap", side, j, i)
			}
		}
	}

	for i, l := range limits {
		if l.Period <= 0 || l.Amount.IsNegative() {
			return errors.Wrapf(exception.ErrFatalConfig, "%s limit %d: period must be positive and amount non-negative", side, i)
		}
	}

	return nil
}
