package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Solstice-Labs/academy/core/pkg/model"
)

func snapshot() *model.Snapshot {
	return &model.Snapshot{
		Config: model.Config{
			CurrentSeason:    1,
			MaxDailyXP:       100,
			MaxAchievementXP: 500,
		},
		Seasons: map[uint32]*model.Season{
			1: {Number: 1},
		},
		Courses:      map[string]*model.Course{},
		Achievements: map[string]*model.AchievementType{},
		Minters:      map[string]*model.Minter{},
	}
}

func TestValidateSeasonCreate(t *testing.T) {
	snap := snapshot()

	// Season 1 is open, so no new season can start.
	err := ValidateSeasonCreate(snap, 2)
	assert.ErrorIs(t, err, ErrPreviousSeasonOpen)

	snap.Seasons[1].Closed = true
	snap.Config.SeasonClosed = true

	assert.NoError(t, ValidateSeasonCreate(snap, 2))
	assert.ErrorIs(t, ValidateSeasonCreate(snap, 1), ErrSeasonExists)
	assert.ErrorIs(t, ValidateSeasonCreate(snap, 0), ErrSeasonNotMonotonic)
}

func TestValidateSeasonClose_Twice(t *testing.T) {
	snap := snapshot()
	require.NoError(t, ValidateSeasonClose(snap))

	snap.Seasons[1].Closed = true
	snap.Config.SeasonClosed = true
	assert.ErrorIs(t, ValidateSeasonClose(snap), ErrAlreadyClosed)
}

func TestValidateCourseCreate(t *testing.T) {
	snap := snapshot()
	snap.Courses["solana-basics"] = &model.Course{ID: "solana-basics"}

	tests := []struct {
		name    string
		course  model.Course
		content *model.CourseContent
		wantErr error
	}{
		{
			name:   "valid without content",
			course: model.Course{ID: "anchor-intro", LessonCount: 3},
		},
		{
			name:    "duplicate id",
			course:  model.Course{ID: "solana-basics"},
			wantErr: ErrDuplicateCourse,
		},
		{
			name:    "bad slug",
			course:  model.Course{ID: "Solana Basics!"},
			wantErr: ErrInvalidCourseID,
		},
		{
			name:    "unknown prerequisite",
			course:  model.Course{ID: "anchor-intro", Prerequisite: "missing"},
			wantErr: ErrUnknownPrerequisite,
		},
		{
			name:   "known prerequisite",
			course: model.Course{ID: "anchor-intro", Prerequisite: "solana-basics"},
		},
		{
			name:   "lesson count mismatch",
			course: model.Course{ID: "anchor-intro", LessonCount: 5},
			content: &model.CourseContent{
				CourseID: "anchor-intro",
				Lessons:  []model.Lesson{{Slug: "l1", Title: "One"}},
			},
			wantErr: ErrLessonCountMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCourseCreate(snap, &tt.course, tt.content)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateCourseUpdate_UnknownCourse(t *testing.T) {
	snap := snapshot()
	err := ValidateCourseUpdate(snap, &model.Course{ID: "ghost"}, nil)
	assert.ErrorIs(t, err, ErrInvalidCourseID)
}

func TestValidateAchievementAward(t *testing.T) {
	ach := &model.AchievementType{ID: "first-course", MaxSupply: 2, Active: true}

	assert.NoError(t, ValidateAchievementAward(ach, 1))

	ach.AwardedCount = 2
	assert.ErrorIs(t, ValidateAchievementAward(ach, 1), ErrSupplyExceeded)

	ach.AwardedCount = 0
	ach.Active = false
	assert.ErrorIs(t, ValidateAchievementAward(ach, 1), ErrAchievementInactive)
}

func TestValidateXPIssuance_DailyCap(t *testing.T) {
	snap := snapshot()
	minter := &model.Minter{Signer: "backend", MaxXPPerCall: 50}

	// First two 40 XP grants fit under the 100 XP daily cap.
	require.NoError(t, ValidateXPIssuance(snap, XPIssuance{Minter: minter, Amount: 40, LearnerDailyTotal: 0}))
	require.NoError(t, ValidateXPIssuance(snap, XPIssuance{Minter: minter, Amount: 40, LearnerDailyTotal: 40}))

	// The third grant would land at 120 and must be rejected.
	err := ValidateXPIssuance(snap, XPIssuance{Minter: minter, Amount: 40, LearnerDailyTotal: 80})
	assert.ErrorIs(t, err, ErrExceedsDailyCap)
}

func TestValidateXPIssuance(t *testing.T) {
	minter := &model.Minter{Signer: "backend", MaxXPPerCall: 50}

	tests := []struct {
		name    string
		mutate  func(*model.Snapshot)
		iss     XPIssuance
		wantErr error
	}{
		{
			name: "valid",
			iss:  XPIssuance{Minter: minter, Amount: 50},
		},
		{
			name:    "season closed",
			mutate:  func(s *model.Snapshot) { s.Config.SeasonClosed = true },
			iss:     XPIssuance{Minter: minter, Amount: 10},
			wantErr: ErrSeasonClosed,
		},
		{
			name:    "nil minter",
			iss:     XPIssuance{Amount: 10},
			wantErr: ErrMinterRevoked,
		},
		{
			name:    "revoked minter",
			iss:     XPIssuance{Minter: &model.Minter{Signer: "old", Revoked: true}, Amount: 10},
			wantErr: ErrMinterRevoked,
		},
		{
			name:    "per-call cap",
			iss:     XPIssuance{Minter: minter, Amount: 51},
			wantErr: ErrExceedsPerCallCap,
		},
		{
			name: "achievement cap",
			mutate: func(s *model.Snapshot) {
				s.Config.MaxAchievementXP = 20
				s.Minters["big"] = &model.Minter{Signer: "big", MaxXPPerCall: 1000}
			},
			iss:     XPIssuance{Minter: &model.Minter{Signer: "big", MaxXPPerCall: 1000}, Amount: 30, AchievementSourced: true},
			wantErr: ErrExceedsAchievementCap,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := snapshot()
			if tt.mutate != nil {
				tt.mutate(s)
			}
			err := ValidateXPIssuance(s, tt.iss)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateLessonProgress(t *testing.T) {
	enr := &model.Enrollment{Wallet: "w1", CourseID: "c1", TotalLessons: 5}

	assert.NoError(t, ValidateLessonProgress(enr, 3))
	assert.Error(t, ValidateLessonProgress(enr, 6))

	enr.LessonsCompleted = 5
	enr.CompletedAt = time.Now()
	assert.Error(t, ValidateLessonProgress(enr, 2))
	assert.NoError(t, ValidateLessonProgress(enr, 5))
}
