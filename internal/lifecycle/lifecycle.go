// Package lifecycle drives a keeper: an initial delay, startup hooks, a
// periodic non-overlapping tick and shutdown hooks on termination.
package lifecycle

import (
	"context"
	"time"

	"mmkeeper/internal/errors"

	"github.com/yanun0323/pkg/sys"
	"go.uber.org/zap"
)

const defaultShutdownTimeout = 30 * time.Second

type Hook func(ctx context.Context) error

type Lifecycle struct {
	logger          *zap.Logger
	initialDelay    time.Duration
	startup         []Hook
	every           time.Duration
	tick            Hook
	shutdown        []Hook
	shutdownTimeout time.Duration
	signals         bool
}

func New(logger *zap.Logger) *Lifecycle {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Lifecycle{
		logger:          logger.Named("lifecycle"),
		shutdownTimeout: defaultShutdownTimeout,
		signals:         true,
	}
}

// InitialDelay postpones startup, giving feeds and caches time to fill.
func (l *Lifecycle) InitialDelay(d time.Duration) *Lifecycle {
	l.initialDelay = d
	return l
}

func (l *Lifecycle) OnStartup(h Hook) *Lifecycle {
	l.startup = append(l.startup, h)
	return l
}

// Every runs h once per interval. A slow tick delays the next one instead of
// overlapping it.
func (l *Lifecycle) Every(interval time.Duration, h Hook) *Lifecycle {
	l.every = interval
	l.tick = h
	return l
}

func (l *Lifecycle) OnShutdown(h Hook) *Lifecycle {
	l.shutdown = append(l.shutdown, h)
	return l
}

func (l *Lifecycle) ShutdownTimeout(d time.Duration) *Lifecycle {
	if d > 0 {
		l.shutdownTimeout = d
	}
	return l
}

// WithoutSignals stops Run from listening for process termination, for tests.
func (l *Lifecycle) WithoutSignals() *Lifecycle {
	l.signals = false
	return l
}

// Run blocks until ctx is done or the process is asked to stop, then runs the
// shutdown hooks. A failing startup hook aborts Run with its error.
func (l *Lifecycle) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if l.signals {
		go func() {
			select {
			case <-sys.Shutdown():
				l.logger.Info("shutdown_signal")
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	defer l.runShutdown(ctx)

	if l.initialDelay > 0 {
		l.logger.Info("initial_delay", zap.Duration("delay", l.initialDelay))
		timer := time.NewTimer(l.initialDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}

	for _, h := range l.startup {
		if err := h(ctx); err != nil {
			return errors.Wrap(err, "startup")
		}
	}
	l.logger.Info("started")

	if l.tick == nil || l.every <= 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(l.every)
	defer ticker.Stop()

	for {
		if err := l.tick(ctx); err != nil && ctx.Err() == nil {
			l.logger.Warn("tick_failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (l *Lifecycle) runShutdown(parent context.Context) {
	if len(l.shutdown) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), l.shutdownTimeout)
	defer cancel()

	l.logger.Info("shutting_down")
	for _, h := range l.shutdown {
		if err := h(ctx); err != nil {
			l.logger.Error("shutdown_hook_failed", zap.Error(err))
		}
	}
	l.logger.Info("stopped")
}
