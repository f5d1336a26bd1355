package bands

import (
	"context"

	"mmkeeper/internal/feed"

	"go.uber.org/zap"
)

// Provider rebuilds the policy every tick from the current config and feeds.
type Provider struct {
	Config  func() Config
	Spread  feed.Source
	Control feed.Source
	History *History
	Logger  *zap.Logger
}

// Current assembles this tick's bands. An unreadable spread feed leaves the
// margins as configured; an unreadable control feed disables both sides so
// existing orders get cancelled and nothing new is placed.
func (p Provider) Current(ctx context.Context) (*Bands, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	adj := NoAdjustments()

	spread, ok, err := feed.ReadSpread(p.Spread)
	switch {
	case err != nil:
		logger.Warn("spread_feed_unavailable", zap.Error(err))
	case ok:
		adj.Spread = &spread
	}

	control, err := feed.ReadControl(p.Control)
	if err != nil {
		logger.Warn("control_feed_unavailable", zap.Error(err))
		control = feed.Control{}
	}
	adj.Control = control

	return New(p.Config(), adj, p.History), nil
}
