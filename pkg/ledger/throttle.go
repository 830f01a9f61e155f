package ledger

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/Solstice-Labs/academy/core/pkg/model"
)

// Throttled wraps a Ledger with a client-side submission rate limit so a
// bulk operation cannot saturate the RPC endpoint. Reads are not limited.
type Throttled struct {
	inner   Ledger
	limiter *rate.Limiter
}

// NewThrottled limits mutations to rps submissions per second with the
// given burst.
func NewThrottled(inner Ledger, rps float64, burst int) *Throttled {
	return &Throttled{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

func (t *Throttled) wait(ctx context.Context) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (t *Throttled) Snapshot(ctx context.Context) (*model.Snapshot, error) {
	return t.inner.Snapshot(ctx)
}

func (t *Throttled) CreateSeason(ctx context.Context, number uint32) (SeasonResult, error) {
	if err := t.wait(ctx); err != nil {
		return SeasonResult{}, err
	}
	return t.inner.CreateSeason(ctx, number)
}

func (t *Throttled) CloseSeason(ctx context.Context) (Signature, error) {
	if err := t.wait(ctx); err != nil {
		return "", err
	}
	return t.inner.CloseSeason(ctx)
}

func (t *Throttled) CreateCourse(ctx context.Context, p CourseParams) (Signature, error) {
	if err := t.wait(ctx); err != nil {
		return "", err
	}
	return t.inner.CreateCourse(ctx, p)
}

func (t *Throttled) UpdateCourse(ctx context.Context, p CourseParams) (Signature, error) {
	if err := t.wait(ctx); err != nil {
		return "", err
	}
	return t.inner.UpdateCourse(ctx, p)
}

func (t *Throttled) RegisterMinter(ctx context.Context, p MinterParams) (Signature, error) {
	if err := t.wait(ctx); err != nil {
		return "", err
	}
	return t.inner.RegisterMinter(ctx, p)
}

func (t *Throttled) RevokeMinter(ctx context.Context, signer string) (Signature, error) {
	if err := t.wait(ctx); err != nil {
		return "", err
	}
	return t.inner.RevokeMinter(ctx, signer)
}

func (t *Throttled) CreateAchievementType(ctx context.Context, p AchievementParams) (AchievementResult, error) {
	if err := t.wait(ctx); err != nil {
		return AchievementResult{}, err
	}
	return t.inner.CreateAchievementType(ctx, p)
}

func (t *Throttled) DeactivateAchievementType(ctx context.Context, id string) (Signature, error) {
	if err := t.wait(ctx); err != nil {
		return "", err
	}
	return t.inner.DeactivateAchievementType(ctx, id)
}

func (t *Throttled) AwardAchievement(ctx context.Context, p AwardParams) (AwardResult, error) {
	if err := t.wait(ctx); err != nil {
		return AwardResult{}, err
	}
	return t.inner.AwardAchievement(ctx, p)
}

func (t *Throttled) RewardXP(ctx context.Context, p RewardParams) (Signature, error) {
	if err := t.wait(ctx); err != nil {
		return "", err
	}
	return t.inner.RewardXP(ctx, p)
}

func (t *Throttled) UpdateConfig(ctx context.Context, p ConfigParams) (Signature, error) {
	if err := t.wait(ctx); err != nil {
		return "", err
	}
	return t.inner.UpdateConfig(ctx, p)
}
