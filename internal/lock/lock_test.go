package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLocker(t *testing.T) {
	ctx := context.Background()
	l := NewLocalLocker()
	key := StepKey("e1", "n1")

	first, err := l.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)

	_, err = l.Acquire(ctx, key, time.Minute)
	assert.ErrorIs(t, err, ErrNotAcquired)

	other, err := l.Acquire(ctx, StepKey("e1", "n2"), time.Minute)
	require.NoError(t, err)
	require.NoError(t, other.Release(ctx))

	require.NoError(t, first.Release(ctx))
	assert.ErrorIs(t, first.Release(ctx), ErrNotHeld)

	again, err := l.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))
}

func TestLocalLocker_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewLocalLocker()
	l.clock = func() time.Time { return now }

	stale, err := l.Acquire(ctx, "k", time.Second)
	require.NoError(t, err)

	now = now.Add(2 * time.Second)
	fresh, err := l.Acquire(ctx, "k", time.Second)
	require.NoError(t, err, "expired lock can be taken over")

	assert.ErrorIs(t, stale.Release(ctx), ErrNotHeld, "old owner cannot release new owner's lock")
	require.NoError(t, fresh.Release(ctx))
}

func TestStepKey(t *testing.T) {
	assert.Equal(t, "craftflow:step:exec:node", StepKey("exec", "node"))
}
