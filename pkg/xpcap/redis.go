package xpcap

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// tryAddScript performs the check-and-add atomically in Redis.
// KEYS[1] = daily counter key (e.g. "xp_daily:<wallet>:<yyyy-mm-dd>")
// ARGV[1] = amount to add
// ARGV[2] = cap (max daily XP)
// ARGV[3] = key TTL in seconds
// Returns {allowed, total-after}.
var tryAddScript = redis.NewScript(`
local key = KEYS[1]
local amount = tonumber(ARGV[1])
local cap = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local total = tonumber(redis.call("GET", key) or "0")
if total + amount > cap then
    return {0, total}
end

total = redis.call("INCRBY", key, amount)
redis.call("EXPIRE", key, ttl)
return {1, total}
`)

// RedisAccumulator implements Accumulator on Redis. Counter keys carry the
// UTC date, so the cap resets at UTC midnight; keys expire after 48h to
// self-clean.
type RedisAccumulator struct {
	client *redis.Client
	clock  func() time.Time
}

// NewRedisAccumulator creates an accumulator on the given Redis endpoint.
func NewRedisAccumulator(addr, password string, db int) *RedisAccumulator {
	return &RedisAccumulator{
		client: redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db}),
		clock:  time.Now,
	}
}

// WithClock overrides the clock for testing.
func (a *RedisAccumulator) WithClock(clock func() time.Time) *RedisAccumulator {
	a.clock = clock
	return a
}

func (a *RedisAccumulator) key(learner string) string {
	return "xp_daily:" + learner + ":" + DayKey(a.clock())
}

func (a *RedisAccumulator) DailyTotal(ctx context.Context, learner string) (uint64, error) {
	total, err := a.client.Get(ctx, a.key(learner)).Uint64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("xpcap: redis get failed: %w", err)
	}
	return total, nil
}

func (a *RedisAccumulator) TryAdd(ctx context.Context, learner string, amount, limit uint64) (uint64, bool, error) {
	res, err := tryAddScript.Run(ctx, a.client,
		[]string{a.key(learner)},
		amount, limit, int64(48*time.Hour/time.Second),
	).Int64Slice()
	if err != nil {
		return 0, false, fmt.Errorf("xpcap: redis script failed: %w", err)
	}
	if len(res) != 2 {
		return 0, false, fmt.Errorf("xpcap: unexpected script result: %v", res)
	}
	return uint64(res[1]), res[0] == 1, nil
}

func (a *RedisAccumulator) Rollback(ctx context.Context, learner string, amount uint64) error {
	if err := a.client.DecrBy(ctx, a.key(learner), int64(amount)).Err(); err != nil {
		return fmt.Errorf("xpcap: rollback failed: %w", err)
	}
	return nil
}
