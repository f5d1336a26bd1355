// Package ops loads the bands configuration file and keeps it fresh while the
// keeper runs.
package ops

import (
	"context"
	"os"
	"sync/atomic"
	"time"

	"mmkeeper/internal/bands"
	"mmkeeper/internal/errors"
	"mmkeeper/pkg/exception"

	"go.uber.org/zap"
)

// Loaded is a parsed bands file and the modification time it was read at.
type Loaded struct {
	Path    string
	Bands   bands.Config
	ModTime time.Time
}

// Load reads and validates a bands file. Every failure wraps exception.ErrFatalConfig.
func Load(path string) (Loaded, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Loaded{}, errors.Wrap(exception.ErrFatalConfig, err.Error())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, errors.Wrap(exception.ErrFatalConfig, err.Error())
	}

	cfg, err := bands.ParseConfig(data)
	if err != nil {
		return Loaded{}, errors.Wrapf(err, "load %s", path)
	}

	return Loaded{Path: path, Bands: cfg, ModTime: info.ModTime()}, nil
}

// Reloader serves the latest valid bands config. A file that fails to parse on
// reload is logged and the previous config stays in effect.
type Reloader struct {
	v        atomic.Value
	interval time.Duration
	logger   *zap.Logger
}

// NewReloader performs the initial load. Its error is fatal.
func NewReloader(path string, interval time.Duration, logger *zap.Logger) (*Reloader, error) {
	loaded, err := Load(path)
	if err != nil {
		return nil, err
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	r := &Reloader{
		interval: interval,
		logger:   logger.Named("config"),
	}
	r.v.Store(loaded)
	return r, nil
}

func (r *Reloader) Load() Loaded {
	return r.v.Load().(Loaded)
}

// Current returns the bands config in effect.
func (r *Reloader) Current() bands.Config {
	return r.Load().Bands
}

// Run polls the file's modification time until ctx is done. A zero interval disables reloading.
func (r *Reloader) Run(ctx context.Context) {
	if r.interval <= 0 {
		return
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.reload()
		}
	}
}

func (r *Reloader) reload() bool {
	current := r.Load()

	info, err := os.Stat(current.Path)
	if err != nil {
		r.logger.Warn("config_stat_failed", zap.Error(err))
		return false
	}

	if !info.ModTime().After(current.ModTime) {
		return false
	}

	loaded, err := Load(current.Path)
	if err != nil {
		r.logger.Warn("config_reload_failed", zap.Error(err))
		// Remember the bad version so it is not re-parsed every interval.
		current.ModTime = info.ModTime()
		r.v.Store(current)
		return false
	}

	r.v.Store(loaded)
	r.logger.Info("config_reloaded", zap.String("path", current.Path))
	return true
}
