package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckCeiling(t *testing.T) {
	l := New(3, time.Minute)
	for i := 0; i < 3; i++ {
		res := l.Check("caller-a")
		require.True(t, res.Allowed, "call %d should be allowed", i+1)
		assert.Equal(t, 2-i, res.Remaining)
	}
	res := l.Check("caller-a")
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.Greater(t, res.ResetInMs, int64(0))
}

func TestRejectionDoesNotExtendWindow(t *testing.T) {
	l := New(1, time.Minute)
	require.True(t, l.Check("c").Allowed)
	first := l.Check("c")
	second := l.Check("c")
	assert.False(t, first.Allowed)
	assert.False(t, second.Allowed)
	assert.LessOrEqual(t, second.ResetInMs, first.ResetInMs)
}

func TestWindowReset(t *testing.T) {
	now := time.Now()
	l := New(2, time.Minute)
	l.now = func() time.Time { return now }

	require.True(t, l.Check("c").Allowed)
	require.True(t, l.Check("c").Allowed)
	require.False(t, l.Check("c").Allowed)

	now = now.Add(61 * time.Second)
	res := l.Check("c")
	assert.True(t, res.Allowed)
	assert.Equal(t, 1, res.Remaining)
}

func TestAnonymousBypass(t *testing.T) {
	l := New(1, time.Minute)
	for i := 0; i < 10; i++ {
		assert.True(t, l.Check("").Allowed)
	}
	// anonymous traffic never consumes a named caller's budget
	assert.True(t, l.Check("named").Allowed)
}

func TestCallersAreIndependent(t *testing.T) {
	l := New(1, time.Minute)
	require.True(t, l.Check("a").Allowed)
	require.False(t, l.Check("a").Allowed)
	assert.True(t, l.Check("b").Allowed)
}

func TestSweepPurgesLapsedEntries(t *testing.T) {
	now := time.Now()
	l := New(1, time.Minute)
	l.now = func() time.Time { return now }

	l.Check("stale")
	now = now.Add(3 * time.Minute)
	l.Check("fresh")
	l.sweep()

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.NotContains(t, l.entries, "stale")
	assert.Contains(t, l.entries, "fresh")
}
