package xpcap

import (
	"context"
	"sync"
	"time"
)

// MemoryAccumulator implements Accumulator in process, for tests and
// single-node runs. Totals roll over when the UTC date changes.
type MemoryAccumulator struct {
	mu     sync.Mutex
	day    string
	totals map[string]uint64
	clock  func() time.Time
}

// NewMemoryAccumulator creates an empty accumulator.
func NewMemoryAccumulator() *MemoryAccumulator {
	return &MemoryAccumulator{totals: make(map[string]uint64), clock: time.Now}
}

// WithClock overrides the clock for testing.
func (a *MemoryAccumulator) WithClock(clock func() time.Time) *MemoryAccumulator {
	a.clock = clock
	return a
}

// rollover resets totals when the UTC day has changed. Caller holds a.mu.
func (a *MemoryAccumulator) rollover() {
	day := DayKey(a.clock())
	if day != a.day {
		a.day = day
		a.totals = make(map[string]uint64)
	}
}

func (a *MemoryAccumulator) DailyTotal(ctx context.Context, learner string) (uint64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rollover()
	return a.totals[learner], nil
}

func (a *MemoryAccumulator) TryAdd(ctx context.Context, learner string, amount, limit uint64) (uint64, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rollover()

	total := a.totals[learner]
	if total+amount > limit {
		return total, false, nil
	}
	total += amount
	a.totals[learner] = total
	return total, true, nil
}

func (a *MemoryAccumulator) Rollback(ctx context.Context, learner string, amount uint64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rollover()

	if current := a.totals[learner]; current >= amount {
		a.totals[learner] = current - amount
	} else {
		a.totals[learner] = 0
	}
	return nil
}
