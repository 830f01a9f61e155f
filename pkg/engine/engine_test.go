package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Solstice-Labs/academy/core/pkg/archive"
	"github.com/Solstice-Labs/academy/core/pkg/auth"
	"github.com/Solstice-Labs/academy/core/pkg/content"
	"github.com/Solstice-Labs/academy/core/pkg/ledger"
	"github.com/Solstice-Labs/academy/core/pkg/model"
	"github.com/Solstice-Labs/academy/core/pkg/policy"
	"github.com/Solstice-Labs/academy/core/pkg/xpcap"
)

const adminToken = auth.Capability("test-admin")

type testRig struct {
	engine  *Engine
	ledger  *ledger.Memory
	store   *content.MemoryStore
	archive *archive.MemoryArchive
	caps    *xpcap.MemoryAccumulator
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()
	rig := &testRig{
		ledger: ledger.NewMemory(model.Config{
			Authority:        "authority",
			MaxDailyXP:       100,
			MaxAchievementXP: 500,
			SeasonClosed:     true,
		}),
		store:   content.NewMemoryStore(),
		archive: archive.NewMemoryArchive(),
		caps:    xpcap.NewMemoryAccumulator(),
	}
	eng, err := New(Config{
		Ledger:  rig.ledger,
		Store:   rig.store,
		Archive: rig.archive,
		Caps:    rig.caps,
		Workers: 2,
	})
	require.NoError(t, err)
	rig.engine = eng
	return rig
}

func (r *testRig) openSeason(t *testing.T) {
	t.Helper()
	_, err := r.engine.CreateSeason(context.Background(), adminToken, 1)
	require.NoError(t, err)
}

func (r *testRig) registerMinter(t *testing.T, signer string, perCall uint64) {
	t.Helper()
	_, err := r.engine.RegisterMinter(context.Background(), adminToken,
		ledger.MinterParams{Signer: signer, Label: signer, MaxXPPerCall: perCall})
	require.NoError(t, err)
}

func courseDoc(id string, lessons int) *model.CourseContent {
	doc := &model.CourseContent{
		CourseID:      id,
		Title:         "Course " + id,
		SchemaVersion: "1.0.0",
		Lessons:       []model.Lesson{},
	}
	for i := 0; i < lessons; i++ {
		doc.Lessons = append(doc.Lessons, model.Lesson{
			Slug:  fmt.Sprintf("lesson-%d", i+1),
			Title: fmt.Sprintf("Lesson %d", i+1),
		})
	}
	return doc
}

func TestEngine_RequiresCapability(t *testing.T) {
	rig := newTestRig(t)

	_, err := rig.engine.CreateSeason(context.Background(), "", 1)
	var pv *PolicyViolation
	require.ErrorAs(t, err, &pv)
	assert.ErrorIs(t, err, ErrMissingCapability)
}

func TestEngine_CreateCourse_FullSuccess(t *testing.T) {
	rig := newTestRig(t)

	res, err := rig.engine.CreateCourse(context.Background(), adminToken, CourseRequest{
		Course:  model.Course{ID: "solana-basics", LessonCount: 2, Active: true},
		Content: courseDoc("solana-basics", 2),
	})
	require.NoError(t, err)

	assert.NotEmpty(t, res.ReceiptID)
	assert.NotEmpty(t, res.Signature)
	assert.Contains(t, res.ContentRef, "solana-basics@sha256:")
	assert.False(t, res.PartialFailure())

	// Both backends hold the course.
	_, err = rig.store.GetCourse(context.Background(), "solana-basics")
	assert.NoError(t, err)
	snap, err := rig.ledger.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Contains(t, snap.Courses, "solana-basics")
}

func TestEngine_CreateCourse_PolicyViolationTouchesNothing(t *testing.T) {
	rig := newTestRig(t)

	_, err := rig.engine.CreateCourse(context.Background(), adminToken, CourseRequest{
		Course:  model.Course{ID: "solana-basics", LessonCount: 5},
		Content: courseDoc("solana-basics", 2),
	})
	var pv *PolicyViolation
	require.ErrorAs(t, err, &pv)
	assert.ErrorIs(t, err, policy.ErrLessonCountMismatch)

	_, err = rig.store.GetCourse(context.Background(), "solana-basics")
	assert.ErrorIs(t, err, content.ErrNotFound)
	assert.Equal(t, 0, rig.ledger.Length())
}

func TestEngine_CreateCourse_ContentFailureAbortsBeforeLedger(t *testing.T) {
	rig := newTestRig(t)
	rig.store.FailNext(errors.New("connection refused"))

	_, err := rig.engine.CreateCourse(context.Background(), adminToken, CourseRequest{
		Course:  model.Course{ID: "c1", LessonCount: 1},
		Content: courseDoc("c1", 1),
	})
	var ce *ContentStoreError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 0, rig.ledger.Length())
}

func TestEngine_CreateCourse_PartialFailure(t *testing.T) {
	rig := newTestRig(t)
	rig.ledger.FailNext("create_course", ledger.ErrUnavailable)

	res, err := rig.engine.CreateCourse(context.Background(), adminToken, CourseRequest{
		Course:  model.Course{ID: "c1", LessonCount: 1},
		Content: courseDoc("c1", 1),
	})

	// A ledger failure after the content write is not an error: the result
	// reports both the stored revision and the on-chain failure.
	require.NoError(t, err)
	assert.True(t, res.PartialFailure())
	assert.Contains(t, res.ContentRef, "c1@sha256:")
	assert.Contains(t, res.OnChainError, "unavailable")
	assert.Empty(t, res.Signature)

	// Content store holds the document; the ledger does not.
	_, err = rig.store.GetCourse(context.Background(), "c1")
	assert.NoError(t, err)
	assert.Equal(t, 0, rig.ledger.Length())
}

func TestEngine_RetryCourseLedger_AfterPartial(t *testing.T) {
	rig := newTestRig(t)
	rig.ledger.FailNext("create_course", ledger.ErrUnavailable)

	course := model.Course{ID: "c1", LessonCount: 1, Active: true}
	res, err := rig.engine.CreateCourse(context.Background(), adminToken, CourseRequest{
		Course:  course,
		Content: courseDoc("c1", 1),
	})
	require.NoError(t, err)
	require.True(t, res.PartialFailure())

	// Retry re-attempts only the ledger step under the same key.
	retried, err := rig.engine.RetryCourseLedger(context.Background(), adminToken, course)
	require.NoError(t, err)
	assert.False(t, retried.PartialFailure())
	assert.NotEmpty(t, retried.Signature)
	assert.Equal(t, res.ContentRef, retried.ContentRef)
	assert.Equal(t, 1, rig.ledger.Length())

	// A second retry dedups on the ledger and never duplicates the record.
	again, err := rig.engine.RetryCourseLedger(context.Background(), adminToken, course)
	require.NoError(t, err)
	assert.Equal(t, retried.Signature, again.Signature)
	assert.Equal(t, 1, rig.ledger.Length())
}

func TestEngine_RetryCourseLedger_NoStoredContent(t *testing.T) {
	rig := newTestRig(t)

	_, err := rig.engine.RetryCourseLedger(context.Background(), adminToken,
		model.Course{ID: "ghost", LessonCount: 1})
	var ce *ContentStoreError
	require.ErrorAs(t, err, &ce)
	assert.ErrorIs(t, err, content.ErrNotFound)
}

func TestEngine_RetryCourseLedger_LessonCountDrift(t *testing.T) {
	rig := newTestRig(t)
	rig.ledger.FailNext("create_course", ledger.ErrUnavailable)

	_, err := rig.engine.CreateCourse(context.Background(), adminToken, CourseRequest{
		Course:  model.Course{ID: "c1", LessonCount: 1},
		Content: courseDoc("c1", 1),
	})
	require.NoError(t, err)

	// Retrying with a different declared count than the stored revision is a
	// policy violation, not a silent overwrite.
	_, err = rig.engine.RetryCourseLedger(context.Background(), adminToken,
		model.Course{ID: "c1", LessonCount: 4})
	var pv *PolicyViolation
	require.ErrorAs(t, err, &pv)
	assert.ErrorIs(t, err, policy.ErrLessonCountMismatch)
}

func TestEngine_CloseSeason_TwiceNoSecondWrite(t *testing.T) {
	rig := newTestRig(t)
	rig.openSeason(t)
	lengthAfterOpen := rig.ledger.Length()

	_, err := rig.engine.CloseSeason(context.Background(), adminToken)
	require.NoError(t, err)

	_, err = rig.engine.CloseSeason(context.Background(), adminToken)
	var pv *PolicyViolation
	require.ErrorAs(t, err, &pv)
	assert.ErrorIs(t, err, policy.ErrAlreadyClosed)

	// Exactly one close transaction was submitted.
	assert.Equal(t, lengthAfterOpen+1, rig.ledger.Length())
}

func TestEngine_RewardXP_DailyCapSequence(t *testing.T) {
	rig := newTestRig(t)
	rig.openSeason(t)
	rig.registerMinter(t, "backend", 50)

	grant := func() (*Result, error) {
		return rig.engine.RewardXP(context.Background(), adminToken,
			ledger.RewardParams{Minter: "backend", Learner: "w1", Amount: 40})
	}

	_, err := grant()
	require.NoError(t, err)
	_, err = grant()
	require.NoError(t, err)

	// 80 issued today; the third 40 would cross the 100 cap.
	_, err = grant()
	var pv *PolicyViolation
	require.ErrorAs(t, err, &pv)
	assert.ErrorIs(t, err, policy.ErrExceedsDailyCap)

	assert.Equal(t, uint64(80), rig.ledger.Learner("w1").TotalXP)
}

func TestEngine_RewardXP_PerCallCap(t *testing.T) {
	rig := newTestRig(t)
	rig.openSeason(t)
	rig.registerMinter(t, "backend", 50)

	_, err := rig.engine.RewardXP(context.Background(), adminToken,
		ledger.RewardParams{Minter: "backend", Learner: "w1", Amount: 51})
	assert.ErrorIs(t, err, policy.ErrExceedsPerCallCap)
}

func TestEngine_RewardXP_LedgerFailureReleasesReservation(t *testing.T) {
	rig := newTestRig(t)
	rig.openSeason(t)
	rig.registerMinter(t, "backend", 50)

	rig.ledger.FailNext("reward_xp", ledger.ErrUnavailable)
	_, err := rig.engine.RewardXP(context.Background(), adminToken,
		ledger.RewardParams{Minter: "backend", Learner: "w1", Amount: 40})
	var le *LedgerError
	require.ErrorAs(t, err, &le)

	// The reservation was rolled back, so the learner keeps full headroom.
	total, err := rig.caps.DailyTotal(context.Background(), "w1")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), total)

	_, err = rig.engine.RewardXP(context.Background(), adminToken,
		ledger.RewardParams{Minter: "backend", Learner: "w1", Amount: 40})
	assert.NoError(t, err)
}

func TestEngine_RewardXP_SeasonClosed(t *testing.T) {
	rig := newTestRig(t)
	rig.registerMinter(t, "backend", 50)

	_, err := rig.engine.RewardXP(context.Background(), adminToken,
		ledger.RewardParams{Minter: "backend", Learner: "w1", Amount: 10})
	assert.ErrorIs(t, err, policy.ErrSeasonClosed)
}

func TestEngine_AwardAchievement_ConcurrentSupplyOne(t *testing.T) {
	rig := newTestRig(t)

	_, err := rig.engine.CreateAchievementType(context.Background(), adminToken, AchievementRequest{
		Params: ledger.AchievementParams{ID: "pioneer", Name: "Pioneer", MaxSupply: 1},
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := rig.engine.AwardAchievement(context.Background(), adminToken,
				ledger.AwardParams{AchievementID: "pioneer", Learner: fmt.Sprintf("w%d", n)})
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	// Exactly one award lands regardless of how the snapshot race resolves.
	assert.Equal(t, 1, successes)
	snap, err := rig.ledger.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), snap.Achievements["pioneer"].AwardedCount)
}

func TestEngine_AwardAchievement_XPReservationRollsBack(t *testing.T) {
	rig := newTestRig(t)
	rig.openSeason(t)
	rig.registerMinter(t, "backend", 100)

	_, err := rig.engine.CreateAchievementType(context.Background(), adminToken, AchievementRequest{
		Params: ledger.AchievementParams{ID: "grad", Name: "Graduate", MaxSupply: 10, XPReward: 60},
	})
	require.NoError(t, err)

	rig.ledger.FailNext("award_achievement", ledger.ErrUnavailable)
	_, err = rig.engine.AwardAchievement(context.Background(), adminToken,
		ledger.AwardParams{AchievementID: "grad", Learner: "w1", Minter: "backend"})
	var le *LedgerError
	require.ErrorAs(t, err, &le)

	total, err := rig.caps.DailyTotal(context.Background(), "w1")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), total)
}

func TestEngine_CreateAchievement_PartialFailure(t *testing.T) {
	rig := newTestRig(t)
	rig.ledger.FailNext("create_achievement", ledger.ErrUnavailable)

	res, err := rig.engine.CreateAchievementType(context.Background(), adminToken, AchievementRequest{
		Params:   ledger.AchievementParams{ID: "pioneer", Name: "Pioneer", MaxSupply: 5},
		Metadata: []byte(`{"image":"ipfs://abc"}`),
	})
	require.NoError(t, err)
	assert.True(t, res.PartialFailure())

	// Metadata is durable and the create can be retried under the same id.
	meta, err := rig.store.GetAchievementMeta(context.Background(), "pioneer")
	require.NoError(t, err)
	assert.NotEmpty(t, meta)

	res, err = rig.engine.CreateAchievementType(context.Background(), adminToken, AchievementRequest{
		Params:   ledger.AchievementParams{ID: "pioneer", Name: "Pioneer", MaxSupply: 5},
		Metadata: []byte(`{"image":"ipfs://abc"}`),
	})
	require.NoError(t, err)
	assert.False(t, res.PartialFailure())
	assert.NotEmpty(t, res.CollectionAddress)
}

func TestEngine_RecordLessonProgress(t *testing.T) {
	rig := newTestRig(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	enr := &model.Enrollment{Wallet: "w1", CourseID: "c1", TotalLessons: 3}

	require.NoError(t, rig.engine.RecordLessonProgress(enr, 2, now))
	assert.True(t, enr.CompletedAt.IsZero())

	require.NoError(t, rig.engine.RecordLessonProgress(enr, 3, now))
	assert.Equal(t, now, enr.CompletedAt)

	// Re-applying completion never moves the timestamp.
	later := now.Add(time.Hour)
	require.NoError(t, rig.engine.RecordLessonProgress(enr, 3, later))
	assert.Equal(t, now, enr.CompletedAt)

	// Regression below total is refused once completed.
	err := rig.engine.RecordLessonProgress(enr, 1, later)
	var pv *PolicyViolation
	assert.ErrorAs(t, err, &pv)
}
