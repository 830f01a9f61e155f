// Package xpcap tracks per-learner daily XP totals and enforces the
// max-daily-xp cap with an atomic check-and-add, so two concurrent grants
// cannot both slip under the cap. Days roll over at UTC midnight.
package xpcap

import (
	"context"
	"time"
)

// Accumulator is the daily XP counter behind ValidateXPIssuance. TryAdd is
// the reservation step: it adds atomically only when the new total stays
// within cap. A grant whose ledger submission later fails must Rollback its
// reservation or the learner loses headroom for the day.
type Accumulator interface {
	DailyTotal(ctx context.Context, learner string) (uint64, error)
	TryAdd(ctx context.Context, learner string, amount, limit uint64) (total uint64, allowed bool, err error)
	Rollback(ctx context.Context, learner string, amount uint64) error
}

// DayKey returns the UTC date bucket for now, shared by all implementations.
func DayKey(now time.Time) string {
	return now.UTC().Format("2006-01-02")
}
