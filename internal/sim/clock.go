package sim

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Clock drives the simulation tick at a fixed interval, independent of any
// render loop. It is an owned resource: the owning view calls Stop on
// teardown. Stopping suspends ticking without touching simulation state;
// a later Start resumes from wherever the state was, missed ticks are not
// replayed.
type Clock struct {
	interval time.Duration
	tick     func()
	logger   *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
}

func NewClock(interval time.Duration, tick func(), logger *slog.Logger) *Clock {
	return &Clock{
		interval: interval,
		tick:     tick,
		logger:   logger.With("component", "sim_clock"),
	}
}

// Start begins ticking. Calling Start on a running clock is a no-op.
func (c *Clock) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.running = true

	go c.run(ctx)
	c.logger.Debug("clock started", "interval", c.interval)
}

// Stop suspends ticking immediately. Safe to call repeatedly.
func (c *Clock) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return
	}
	c.cancel()
	c.running = false
	c.logger.Debug("clock stopped")
}

func (c *Clock) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *Clock) run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.tick()
		}
	}
}
