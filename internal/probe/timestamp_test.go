package probe

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/usprobe/internal/timeutil"
)

func TestReconcilerFirstFrameIsZero(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := NewReconciler(timeutil.NewMockClock(start))

	ts, err := r.Reconcile(123456789)
	require.NoError(t, err)
	assert.Equal(t, 0.0, ts)
	assert.Equal(t, start, r.Epoch())
	assert.Equal(t, start.Add(1500*time.Millisecond), r.HostTime(1.5))
}

func TestReconcilerAcrossWraps(t *testing.T) {
	r := NewReconciler(timeutil.NewMockClock(time.Unix(0, 0)))

	const step = uint32(1_000_000) // 16.7ms at 60MHz
	start := uint32(math.MaxUint32 - 50*1_000_000)
	prev := -1.0
	for i := 0; i < 10000; i++ {
		ticks := start + uint32(i)*step
		ts, err := r.Reconcile(ticks)
		require.NoError(t, err, "frame %d", i)
		require.Greater(t, ts, prev, "frame %d not increasing", i)
		assert.InDelta(t, float64(i)*float64(step)/ADCFrequencyHz, ts, 1e-6, "frame %d", i)
		prev = ts
	}
	last := uint64(start) + 9999*uint64(step)
	assert.Equal(t, last>>32, r.Wraps())
	assert.Equal(t, uint64(0), r.Degraded())
}

func TestReconcilerClampsJitter(t *testing.T) {
	r := NewReconciler(timeutil.NewMockClock(time.Unix(0, 0)))

	_, err := r.Reconcile(1_000_000)
	require.NoError(t, err)
	t1, err := r.Reconcile(2_000_000)
	require.NoError(t, err)

	// a step back within the wrap tolerance is clamped, not a wrap
	t2, err := r.Reconcile(1_990_000)
	assert.True(t, errors.Is(err, ErrDegradedTimestamp), "err = %v", err)
	assert.Equal(t, t1, t2)
	assert.Equal(t, uint64(1), r.Degraded())
	assert.Equal(t, uint64(0), r.Wraps())

	t3, err := r.Reconcile(3_000_000)
	require.NoError(t, err)
	assert.Greater(t, t3, t2)
	assert.Equal(t, t3, r.Last())
}

func TestReconcilerLargeBackwardStepIsWrap(t *testing.T) {
	r := NewReconciler(timeutil.NewMockClock(time.Unix(0, 0)))

	_, err := r.Reconcile(60_000_000) // 1s
	require.NoError(t, err)
	ts, err := r.Reconcile(0)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), r.Wraps())
	assert.InDelta(t, timerPeriod-1, ts, 1e-9)
}

func TestReconcilerReset(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(100, 0))
	r := NewReconciler(clock)

	r.Reconcile(60_000_000)
	r.Reconcile(0)
	require.Equal(t, uint64(1), r.Wraps())

	r.Reset()
	clock.Advance(time.Minute)
	assert.Equal(t, uint64(0), r.Wraps())
	assert.Equal(t, 0.0, r.Last())

	ts, err := r.Reconcile(500)
	require.NoError(t, err)
	assert.Equal(t, 0.0, ts)
	assert.Equal(t, time.Unix(160, 0), r.Epoch())
}
