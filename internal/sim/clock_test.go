package sim

import (
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestClockTicks(t *testing.T) {
	var ticks atomic.Int64
	c := NewClock(5*time.Millisecond, func() { ticks.Add(1) }, testLogger())

	c.Start()
	defer c.Stop()

	require.Eventually(t, func() bool {
		return ticks.Load() >= 3
	}, time.Second, time.Millisecond)
}

func TestClockStopSuspends(t *testing.T) {
	var ticks atomic.Int64
	c := NewClock(5*time.Millisecond, func() { ticks.Add(1) }, testLogger())

	c.Start()
	require.Eventually(t, func() bool {
		return ticks.Load() >= 1
	}, time.Second, time.Millisecond)

	c.Stop()
	assert.False(t, c.Running())

	// Let any in-flight tick drain before sampling
	time.Sleep(10 * time.Millisecond)
	after := ticks.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, ticks.Load(), "no ticks after Stop")
}

func TestClockStartIdempotent(t *testing.T) {
	c := NewClock(time.Hour, func() {}, testLogger())

	c.Start()
	c.Start()
	assert.True(t, c.Running())
	c.Stop()
}

func TestClockStopIdempotent(t *testing.T) {
	c := NewClock(time.Hour, func() {}, testLogger())

	c.Stop()
	c.Start()
	c.Stop()
	c.Stop()
	assert.False(t, c.Running())
}

func TestClockRestart(t *testing.T) {
	var ticks atomic.Int64
	c := NewClock(5*time.Millisecond, func() { ticks.Add(1) }, testLogger())

	c.Start()
	require.Eventually(t, func() bool {
		return ticks.Load() >= 1
	}, time.Second, time.Millisecond)
	c.Stop()

	before := ticks.Load()
	c.Start()
	defer c.Stop()

	require.Eventually(t, func() bool {
		return ticks.Load() > before
	}, time.Second, time.Millisecond)
}
