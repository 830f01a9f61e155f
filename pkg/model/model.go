// Package model defines the persistent shapes of the reward economy:
// the singleton Config, Seasons, Courses, AchievementTypes, Minters,
// Learners and Enrollments. Types here carry no behavior beyond small
// derivations; all mutation rules live in pkg/policy.
package model

import (
	"time"
)

// Config is the singleton economy configuration. Exactly one live Config
// exists; it is created at genesis and mutated only through UpdateConfig.
type Config struct {
	Authority       string `json:"authority"`
	BackendSigner   string `json:"backend_signer"`
	XPMint          string `json:"xp_mint"`
	CurrentSeason   uint32 `json:"current_season"`
	SeasonClosed    bool   `json:"season_closed"`
	MaxDailyXP      uint64 `json:"max_daily_xp"`
	MaxAchievementXP uint64 `json:"max_achievement_xp"`
	TotalCourses    uint64 `json:"total_courses_created"`
}

// Season is a bounded epoch of the reward economy. A season number is
// created once and never reused; closing is terminal.
type Season struct {
	Number      uint32    `json:"number"`
	MintAddress string    `json:"mint_address,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	ClosedAt    time.Time `json:"closed_at,omitempty"`
	Closed      bool      `json:"closed"`
}

// Course is a ledger-registered course record. ArchiveID is empty until
// the content has been copied into the immutable archive.
type Course struct {
	ID                    string    `json:"id"`
	Active                bool      `json:"active"`
	LessonCount           uint32    `json:"lesson_count"`
	XPPerLesson           uint64    `json:"xp_per_lesson"`
	CreatorRewardXP       uint64    `json:"creator_reward_xp"`
	MinCompletionsForReward uint32  `json:"min_completions_for_reward"`
	Prerequisite          string    `json:"prerequisite,omitempty"`
	ArchiveID             string    `json:"archive_id,omitempty"`
	CreatedAt             time.Time `json:"created_at"`
}

// CourseContent is the rich off-chain course document held by the content
// store. Lessons drive the derived lesson count on the ledger record.
type CourseContent struct {
	CourseID      string   `json:"course_id"`
	Title         string   `json:"title"`
	Description   string   `json:"description,omitempty"`
	SchemaVersion string   `json:"schema_version"`
	Lessons       []Lesson `json:"lessons"`
	ArchiveID     string   `json:"archive_id,omitempty"`
}

// Lesson is a single unit of course content.
type Lesson struct {
	Slug    string `json:"slug"`
	Title   string `json:"title"`
	Content string `json:"content,omitempty"`
}

// LessonCount returns the derived lesson count for the document.
func (c *CourseContent) LessonCount() uint32 {
	return uint32(len(c.Lessons))
}

// AchievementType is a mintable achievement with a bounded supply.
// Deactivation is terminal; a deactivated achievement can never award again.
type AchievementType struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	MaxSupply         uint64    `json:"max_supply"`
	XPReward          uint64    `json:"xp_reward"`
	Active            bool      `json:"active"`
	AwardedCount      uint64    `json:"awarded_count"`
	CollectionAddress string    `json:"collection_address,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// Remaining returns how many awards are left before MaxSupply is reached.
func (a *AchievementType) Remaining() uint64 {
	if a.AwardedCount >= a.MaxSupply {
		return 0
	}
	return a.MaxSupply - a.AwardedCount
}

// Minter is an authorized XP-issuing signer. Revocation is terminal for
// the signer id; re-registration creates a logically new record.
type Minter struct {
	Signer       string    `json:"signer"`
	Label        string    `json:"label"`
	MaxXPPerCall uint64    `json:"max_xp_per_call"`
	Revoked      bool      `json:"revoked"`
	RegisteredAt time.Time `json:"registered_at"`
	RevokedAt    time.Time `json:"revoked_at,omitempty"`
}

// Learner is a wallet-identified participant.
type Learner struct {
	Wallet  string `json:"wallet"`
	TotalXP uint64 `json:"total_xp"`
	Streak  uint32 `json:"streak"`
}

// Enrollment links a learner to a course. CompletedAt is set exactly once,
// when LessonsCompleted reaches TotalLessons.
type Enrollment struct {
	Wallet           string    `json:"wallet"`
	CourseID         string    `json:"course_id"`
	LessonsCompleted uint32    `json:"lessons_completed"`
	TotalLessons     uint32    `json:"total_lessons"`
	CompletedAt      time.Time `json:"completed_at,omitempty"`
}

// Completed reports whether the enrollment has reached its final lesson.
func (e *Enrollment) Completed() bool {
	return e.TotalLessons > 0 && e.LessonsCompleted >= e.TotalLessons
}

// Snapshot is the last-known economy state an operation validates against.
// It is fetched fresh per operation, never cached across calls; the ledger
// itself remains the final arbiter of any race the snapshot misses.
type Snapshot struct {
	Config       Config
	Seasons      map[uint32]*Season
	Courses      map[string]*Course
	Achievements map[string]*AchievementType
	Minters      map[string]*Minter
}

// OpenSeason returns the currently open season, if any.
func (s *Snapshot) OpenSeason() *Season {
	for _, season := range s.Seasons {
		if !season.Closed {
			return season
		}
	}
	return nil
}
