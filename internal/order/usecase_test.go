package order

import (
	"context"
	"errors"
	"sync"
	"testing"

	"mmkeeper/pkg/exception"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPoolInvalidConfig(t *testing.T) {
	_, err := NewPool(0, 1)
	require.ErrorIs(t, err, exception.ErrOrderInvalidPoolConfig)

	_, err = NewPool(1, 0)
	require.ErrorIs(t, err, exception.ErrOrderInvalidPoolConfig)
}

func TestPoolRunsEveryJob(t *testing.T) {
	p, err := NewPool(4, 16)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	p.Run(ctx)

	var (
		mu   sync.Mutex
		seen = make(map[int]bool)
		wg   sync.WaitGroup
	)
	for i := range 10 {
		wg.Add(1)
		require.NoError(t, p.Handle(func(context.Context) {
			defer wg.Done()
			mu.Lock()
			seen[i] = true
			mu.Unlock()
		}))
	}
	wg.Wait()

	assert.Len(t, seen, 10)

	cancel()
	p.Wait()
}

func TestPoolQueueFull(t *testing.T) {
	p, err := NewPool(1, 1)
	require.NoError(t, err)

	// workers are not running, so the single slot stays occupied
	require.NoError(t, p.Handle(func(context.Context) {}))
	err = p.Handle(func(context.Context) {})
	assert.True(t, errors.Is(err, exception.ErrOrderQueueFull))
	assert.Equal(t, 1, p.Pending())
}

func TestPoolClosed(t *testing.T) {
	p, err := NewPool(1, 4)
	require.NoError(t, err)

	p.Close()
	assert.ErrorIs(t, p.Handle(func(context.Context) {}), exception.ErrOrderPoolClosed)
}

func TestPoolRejectsNil(t *testing.T) {
	var p *Pool
	assert.ErrorIs(t, p.Handle(func(context.Context) {}), exception.ErrOrderNilWorkerPool)

	p, err := NewPool(1, 1)
	require.NoError(t, err)
	assert.ErrorIs(t, p.Handle(nil), exception.ErrOrderInvalidRequest)
}
