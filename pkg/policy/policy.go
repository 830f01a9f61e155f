// Package policy holds the pure invariant checks of the reward economy.
// Every function here is total and side-effect free: it takes a freshly
// read snapshot plus the proposed change and returns nil or a sentinel
// violation. No I/O, no clocks beyond what the caller passes in.
package policy

import (
	"errors"
	"fmt"

	"github.com/Solstice-Labs/academy/core/pkg/model"
)

var (
	// ErrSeasonExists is returned when the season number was already created.
	ErrSeasonExists = errors.New("policy: season number already exists")
	// ErrPreviousSeasonOpen is returned when a new season is requested while one is still open.
	ErrPreviousSeasonOpen = errors.New("policy: previous season still open")
	// ErrSeasonNotMonotonic is returned when the new season number does not advance.
	ErrSeasonNotMonotonic = errors.New("policy: season number must advance")
	// ErrAlreadyClosed is returned when closing a season that is already closed.
	ErrAlreadyClosed = errors.New("policy: season already closed")
	// ErrSeasonClosed is returned when XP issuance is attempted against a closed season.
	ErrSeasonClosed = errors.New("policy: season closed, no XP issuance")

	// ErrDuplicateCourse is returned when the course id is already registered.
	ErrDuplicateCourse = errors.New("policy: duplicate course id")
	// ErrUnknownPrerequisite is returned when a prerequisite references no existing course.
	ErrUnknownPrerequisite = errors.New("policy: unknown prerequisite course")
	// ErrInvalidCourseID is returned for malformed course slugs.
	ErrInvalidCourseID = errors.New("policy: invalid course id")
	// ErrLessonCountMismatch is returned when the declared lesson count does not
	// match the supplied content document.
	ErrLessonCountMismatch = errors.New("policy: lesson count does not match content")

	// ErrAchievementInactive is returned when awarding a deactivated achievement.
	ErrAchievementInactive = errors.New("policy: achievement inactive")
	// ErrSupplyExceeded is returned when an award would exceed max supply.
	ErrSupplyExceeded = errors.New("policy: achievement supply exceeded")

	// ErrMinterRevoked is returned when a revoked minter attempts issuance.
	ErrMinterRevoked = errors.New("policy: minter revoked")
	// ErrExceedsPerCallCap is returned when a single award exceeds the minter cap.
	ErrExceedsPerCallCap = errors.New("policy: amount exceeds minter per-call cap")
	// ErrExceedsDailyCap is returned when the learner's daily total would exceed the cap.
	ErrExceedsDailyCap = errors.New("policy: amount exceeds learner daily cap")
	// ErrExceedsAchievementCap is returned when achievement-sourced XP exceeds the config cap.
	ErrExceedsAchievementCap = errors.New("policy: amount exceeds achievement XP cap")
)

// ValidateSeasonCreate checks that newNumber can be opened: the number is
// unused, strictly advances the config counter, and no season is open.
func ValidateSeasonCreate(snap *model.Snapshot, newNumber uint32) error {
	if _, exists := snap.Seasons[newNumber]; exists {
		return fmt.Errorf("%w: %d", ErrSeasonExists, newNumber)
	}
	if newNumber <= snap.Config.CurrentSeason && snap.Config.CurrentSeason != 0 {
		return fmt.Errorf("%w: %d <= %d", ErrSeasonNotMonotonic, newNumber, snap.Config.CurrentSeason)
	}
	if open := snap.OpenSeason(); open != nil {
		return fmt.Errorf("%w: season %d", ErrPreviousSeasonOpen, open.Number)
	}
	return nil
}

// ValidateSeasonClose checks that the current season can be closed.
func ValidateSeasonClose(snap *model.Snapshot) error {
	if snap.Config.SeasonClosed || snap.OpenSeason() == nil {
		return ErrAlreadyClosed
	}
	return nil
}

// ValidateCourseCreate checks id uniqueness, slug shape and prerequisite
// existence. content may be nil when the course is registered without an
// off-chain document; when present its lesson count must match.
func ValidateCourseCreate(snap *model.Snapshot, course *model.Course, content *model.CourseContent) error {
	if !model.ValidSlug(course.ID) {
		return fmt.Errorf("%w: %q", ErrInvalidCourseID, course.ID)
	}
	if _, exists := snap.Courses[course.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateCourse, course.ID)
	}
	if course.Prerequisite != "" {
		if _, ok := snap.Courses[course.Prerequisite]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownPrerequisite, course.Prerequisite)
		}
	}
	if content != nil && content.LessonCount() != course.LessonCount {
		return fmt.Errorf("%w: declared %d, content has %d",
			ErrLessonCountMismatch, course.LessonCount, content.LessonCount())
	}
	return nil
}

// ValidateCourseUpdate mirrors ValidateCourseCreate for an existing course.
func ValidateCourseUpdate(snap *model.Snapshot, course *model.Course, content *model.CourseContent) error {
	if _, exists := snap.Courses[course.ID]; !exists {
		return fmt.Errorf("%w: %s", ErrInvalidCourseID, course.ID)
	}
	if course.Prerequisite != "" && course.Prerequisite != course.ID {
		if _, ok := snap.Courses[course.Prerequisite]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownPrerequisite, course.Prerequisite)
		}
	}
	if content != nil && content.LessonCount() != course.LessonCount {
		return fmt.Errorf("%w: declared %d, content has %d",
			ErrLessonCountMismatch, course.LessonCount, content.LessonCount())
	}
	return nil
}

// ValidateAchievementAward checks that amount awards can still be issued.
func ValidateAchievementAward(ach *model.AchievementType, amount uint64) error {
	if amount == 0 {
		amount = 1
	}
	if !ach.Active {
		return fmt.Errorf("%w: %s", ErrAchievementInactive, ach.ID)
	}
	if ach.AwardedCount+amount > ach.MaxSupply {
		return fmt.Errorf("%w: %s awarded %d of %d", ErrSupplyExceeded, ach.ID, ach.AwardedCount, ach.MaxSupply)
	}
	return nil
}

// XPIssuance describes a single proposed XP grant.
type XPIssuance struct {
	Minter           *model.Minter
	Amount           uint64
	LearnerDailyTotal uint64 // XP already issued to the learner today (UTC)
	AchievementSourced bool
}

// ValidateXPIssuance enforces the full cap stack for one grant: open season,
// live minter, per-call cap, learner daily cap and, for achievement-sourced
// grants, the achievement XP cap. The checks run in that order and the first
// violation wins.
func ValidateXPIssuance(snap *model.Snapshot, iss XPIssuance) error {
	if snap.Config.SeasonClosed {
		return ErrSeasonClosed
	}
	if iss.Minter == nil || iss.Minter.Revoked {
		return ErrMinterRevoked
	}
	if iss.Amount > iss.Minter.MaxXPPerCall {
		return fmt.Errorf("%w: %d > %d", ErrExceedsPerCallCap, iss.Amount, iss.Minter.MaxXPPerCall)
	}
	if iss.LearnerDailyTotal+iss.Amount > snap.Config.MaxDailyXP {
		return fmt.Errorf("%w: %d+%d > %d", ErrExceedsDailyCap, iss.LearnerDailyTotal, iss.Amount, snap.Config.MaxDailyXP)
	}
	if iss.AchievementSourced && iss.Amount > snap.Config.MaxAchievementXP {
		return fmt.Errorf("%w: %d > %d", ErrExceedsAchievementCap, iss.Amount, snap.Config.MaxAchievementXP)
	}
	return nil
}

// ValidateLessonProgress enforces lessons-completed <= total-lessons and the
// set-exactly-once completion timestamp.
func ValidateLessonProgress(e *model.Enrollment, completed uint32) error {
	if completed > e.TotalLessons {
		return fmt.Errorf("policy: lessons completed %d exceeds total %d", completed, e.TotalLessons)
	}
	if !e.CompletedAt.IsZero() && completed < e.TotalLessons {
		return errors.New("policy: completed enrollment cannot regress")
	}
	return nil
}
