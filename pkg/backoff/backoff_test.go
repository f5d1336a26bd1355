package backoff

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextGrowsAndCaps(t *testing.T) {
	b := Backoff{Min: 10 * time.Millisecond, Max: 50 * time.Millisecond, Factor: 2}

	assert.Equal(t, 10*time.Millisecond, b.Next(0))
	assert.Equal(t, 10*time.Millisecond, b.Next(1))
	assert.Equal(t, 20*time.Millisecond, b.Next(2))
	assert.Equal(t, 40*time.Millisecond, b.Next(3))
	assert.Equal(t, 50*time.Millisecond, b.Next(4))
	assert.Equal(t, 50*time.Millisecond, b.Next(10))
}

func TestNextJitterBounds(t *testing.T) {
	b := Backoff{Min: 100 * time.Millisecond, Max: time.Second, Factor: 2, Jitter: 0.5}

	for range 100 {
		d := b.Next(1)
		assert.GreaterOrEqual(t, d, 50*time.Millisecond)
		assert.LessOrEqual(t, d, 150*time.Millisecond)
	}
}

func TestSleepCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	err := Backoff{Min: time.Hour}.Sleep(ctx, 1)
	assert.ErrorIs(t, err, context.Canceled)
}
