package kernel

import (
	"context"
	"sync"
	"time"
)

const (
	// DefaultTickPeriod matches an 11 kHz sample clock.
	DefaultTickPeriod = time.Second / 11000

	// DefaultSecondPeriod is the period of the uptime counter.
	DefaultSecondPeriod = time.Second
)

// TickSource drives the two periodic interrupt sources of a [Scheduler]:
// the scheduling tick and the uptime counter.
type TickSource interface {
	Arm(ctx context.Context, tick func(), second func())
}

// WallClock is a [TickSource] backed by [time.Ticker].
type WallClock struct {
	Tick   time.Duration
	Second time.Duration
}

// NewWallClock returns a pointer to a new [WallClock]. Non-positive periods
// are replaced by [DefaultTickPeriod] and [DefaultSecondPeriod].
func NewWallClock(tick, second time.Duration) *WallClock {
	if tick <= 0 {
		tick = DefaultTickPeriod
	}
	if second <= 0 {
		second = DefaultSecondPeriod
	}

	return &WallClock{
		Tick:   tick,
		Second: second,
	}
}

// Arm starts both tickers; they stop when the context is done.
func (c *WallClock) Arm(ctx context.Context, tick func(), second func()) {
	go c.run(ctx, c.Tick, tick)
	go c.run(ctx, c.Second, second)
}

func (*WallClock) run(ctx context.Context, period time.Duration, fn func()) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}

// ManualClock is a [TickSource] whose interrupts are raised explicitly,
// used for deterministic tests.
type ManualClock struct {
	sync.Mutex
	tick   func()
	second func()
}

// Arm records the interrupt handlers.
func (c *ManualClock) Arm(_ context.Context, tick func(), second func()) {
	c.Lock()
	defer c.Unlock()

	c.tick = tick
	c.second = second
}

// Tick raises n scheduling ticks.
func (c *ManualClock) Tick(n int) {
	c.Lock()
	fn := c.tick
	c.Unlock()

	if fn == nil {
		return
	}

	for range n {
		fn()
	}
}

// Second raises one uptime interrupt.
func (c *ManualClock) Second() {
	c.Lock()
	fn := c.second
	c.Unlock()

	if fn != nil {
		fn()
	}
}
