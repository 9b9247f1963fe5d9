//go:build linux

package perf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang.org/x/sys/unix"
)

func testEvent(name string) *Event {
	return newEvent(name, unix.PerfEventAttr{}, -1, 0, PrivAll, 0)
}

func TestEventDelta(t *testing.T) {
	t.Run("fully_scheduled", func(t *testing.T) {
		ev := testEvent("cycles")
		ev.setCounts(1000, 100, 100)
		ev.setCounts(3000, 200, 200)
		// Δraw=2000, Δenabled=Δrunning=100 → no correction
		assert.Equal(t, uint64(2000), ev.Delta())
	})
	t.Run("multiplexed_scales_up", func(t *testing.T) {
		ev := testEvent("cycles")
		ev.setCounts(0, 0, 0)
		ev.setCounts(500, 200, 100)
		// counter ran half the window: 500 * 200/100 = 1000
		assert.Equal(t, uint64(1000), ev.Delta())
	})
	t.Run("zero_duration_window", func(t *testing.T) {
		ev := testEvent("cycles")
		ev.setCounts(1000, 100, 100)
		ev.setCounts(1000, 100, 100)
		// running did not advance → 0, no divide-by-zero
		assert.Equal(t, uint64(0), ev.Delta())
	})
	t.Run("running_regressed", func(t *testing.T) {
		ev := testEvent("cycles")
		ev.setCounts(1000, 100, 100)
		ev.setCounts(2000, 200, 50)
		assert.Equal(t, uint64(0), ev.Delta())
	})
	t.Run("large_counts_no_overflow", func(t *testing.T) {
		ev := testEvent("cycles")
		const big = uint64(1) << 62
		ev.setCounts(0, 0, 0)
		ev.setCounts(big, 2_000_000_000, 1_000_000_000)
		// the 64-bit product would overflow; float64 math must not
		assert.InEpsilon(t, float64(big)*2, float64(ev.Delta()), 1e-9)
	})
}

func TestEventScale(t *testing.T) {
	t.Run("no_multiplex", func(t *testing.T) {
		ev := testEvent("instructions")
		ev.setCounts(1234, 100, 100)
		assert.Equal(t, uint64(1234), ev.Scale())
	})
	t.Run("half_scheduled", func(t *testing.T) {
		ev := testEvent("instructions")
		ev.setCounts(1000, 300, 150)
		assert.Equal(t, uint64(2000), ev.Scale())
	})
	t.Run("never_ran", func(t *testing.T) {
		ev := testEvent("instructions")
		ev.setCounts(0, 100, 0)
		assert.Equal(t, uint64(0), ev.Scale())
	})
}

func TestEventReadRotation(t *testing.T) {
	ev := testEvent("cycles")
	ev.setCounts(10, 20, 20)
	ev.setCounts(30, 40, 40)

	curr, prev := ev.Counts()
	assert.Equal(t, Counts{Raw: 30, Enabled: 40, Running: 40}, curr)
	assert.Equal(t, Counts{Raw: 10, Enabled: 20, Running: 20}, prev)
}

func TestEventTimesMonotonic(t *testing.T) {
	// invariant: enabled and running are non-decreasing across observations
	ev := testEvent("cycles")
	ev.setCounts(1, 10, 5)
	ev.setCounts(2, 20, 9)
	curr, prev := ev.Counts()
	assert.GreaterOrEqual(t, curr.Enabled, prev.Enabled)
	assert.GreaterOrEqual(t, curr.Running, prev.Running)
	assert.LessOrEqual(t, curr.Running, curr.Enabled)
}

func TestEventCloseUnopened(t *testing.T) {
	ev := testEvent("cycles")
	require.NoError(t, ev.Close())
	require.NoError(t, ev.Close())
	assert.Equal(t, -1, ev.FD())
}

func TestEventIoctlClosed(t *testing.T) {
	ev := testEvent("cycles")
	assert.ErrorIs(t, ev.Start(), ErrClosed)
	assert.ErrorIs(t, ev.Stop(), ErrClosed)
	assert.ErrorIs(t, ev.Read(), ErrClosed)
}

func TestClassifyOpenErr(t *testing.T) {
	assert.ErrorIs(t, classifyOpenErr(unix.EACCES), ErrDenied)
	assert.ErrorIs(t, classifyOpenErr(unix.EPERM), ErrDenied)
	assert.ErrorIs(t, classifyOpenErr(unix.ENOENT), ErrUnsupported)
	assert.ErrorIs(t, classifyOpenErr(unix.ENOSYS), ErrUnsupported)
	assert.ErrorIs(t, classifyOpenErr(unix.ENOSPC), ErrNoResource)
	assert.ErrorIs(t, classifyOpenErr(unix.EBUSY), ErrNoResource)
	assert.ErrorIs(t, classifyOpenErr(unix.EINVAL), unix.EINVAL)
}
