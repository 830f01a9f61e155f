// Package ledger defines the adapter boundary to the on-chain program that
// is authoritative for economic facts: XP totals, achievement supply and the
// season registry. Every call is network-fallible and must be safe to retry
// under its natural idempotency key (course id, achievement id, minter
// signer); the adapter, not the caller, deduplicates repeated submissions.
package ledger

import (
	"context"
	"errors"

	"github.com/Solstice-Labs/academy/core/pkg/model"
)

var (
	// ErrUnavailable wraps transport-level failures; the submission may or
	// may not have landed and the caller should retry with the same key.
	ErrUnavailable = errors.New("ledger: unavailable")
	// ErrRejected is a definitive on-chain rejection; retrying the identical
	// submission will fail the same way.
	ErrRejected = errors.New("ledger: transaction rejected")
	// ErrNotFound is returned for reads of unknown records.
	ErrNotFound = errors.New("ledger: record not found")
)

// Signature is a confirmed transaction signature.
type Signature string

// CourseParams registers or updates a course on the ledger. The course id
// is the idempotency key.
type CourseParams struct {
	ID                      string
	Active                  bool
	LessonCount             uint32
	XPPerLesson             uint64
	CreatorRewardXP         uint64
	MinCompletionsForReward uint32
	Prerequisite            string
	ArchiveID               string
}

// MinterParams registers an XP-issuing signer.
type MinterParams struct {
	Signer       string
	Label        string
	MaxXPPerCall uint64
}

// AchievementParams creates an achievement type with a bounded supply.
type AchievementParams struct {
	ID        string
	Name      string
	MaxSupply uint64
	XPReward  uint64
}

// AwardParams mints one achievement asset to a learner.
type AwardParams struct {
	AchievementID string
	Learner       string
	Minter        string
}

// RewardParams issues XP to a learner.
type RewardParams struct {
	Minter  string
	Learner string
	Amount  uint64
	Reason  string
}

// ConfigParams mutates the singleton config. Nil fields are left unchanged.
type ConfigParams struct {
	Authority        *string
	BackendSigner    *string
	MaxDailyXP       *uint64
	MaxAchievementXP *uint64
}

// SeasonResult is returned by CreateSeason: the confirmation signature plus
// the derived season XP mint address.
type SeasonResult struct {
	Signature   Signature
	MintAddress string
}

// AchievementResult is returned by CreateAchievementType with the derived
// collection address.
type AchievementResult struct {
	Signature         Signature
	CollectionAddress string
}

// AwardResult is returned by AwardAchievement with the minted asset address.
type AwardResult struct {
	Signature    Signature
	AssetAddress string
}

// Ledger is the on-chain program adapter.
type Ledger interface {
	// Snapshot reads the full authoritative state. Callers must fetch a
	// fresh snapshot per operation; caching one across calls reintroduces
	// the TOCTOU window the engine exists to avoid.
	Snapshot(ctx context.Context) (*model.Snapshot, error)

	CreateSeason(ctx context.Context, number uint32) (SeasonResult, error)
	CloseSeason(ctx context.Context) (Signature, error)

	CreateCourse(ctx context.Context, p CourseParams) (Signature, error)
	UpdateCourse(ctx context.Context, p CourseParams) (Signature, error)

	RegisterMinter(ctx context.Context, p MinterParams) (Signature, error)
	RevokeMinter(ctx context.Context, signer string) (Signature, error)

	CreateAchievementType(ctx context.Context, p AchievementParams) (AchievementResult, error)
	DeactivateAchievementType(ctx context.Context, id string) (Signature, error)
	AwardAchievement(ctx context.Context, p AwardParams) (AwardResult, error)

	RewardXP(ctx context.Context, p RewardParams) (Signature, error)
	UpdateConfig(ctx context.Context, p ConfigParams) (Signature, error)
}
