// Package engine orchestrates every administrative mutation across the
// three backends that cannot share a transaction: the authoritative
// on-chain ledger, the relational content store and the immutable archive.
//
// Each mutating operation follows the same sequence:
//
//	Validated → ContentStoreWritten → LedgerSubmitted → {Confirmed | LedgerFailed}
//
// Policy and content-store failures abort with nothing partially applied.
// A ledger failure after a content write is the one sanctioned partial
// state: the result carries both the content reference and the on-chain
// error so the admin can retry the ledger step alone under the same
// idempotency key. Nothing is ever rolled back across backends; a
// human-in-the-loop retry reconciles them.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Solstice-Labs/academy/core/pkg/archive"
	"github.com/Solstice-Labs/academy/core/pkg/auth"
	"github.com/Solstice-Labs/academy/core/pkg/content"
	"github.com/Solstice-Labs/academy/core/pkg/ledger"
	"github.com/Solstice-Labs/academy/core/pkg/model"
	"github.com/Solstice-Labs/academy/core/pkg/policy"
	"github.com/Solstice-Labs/academy/core/pkg/xpcap"
)

// Recorder receives per-operation telemetry. Implemented by
// observability.Provider; nil disables recording.
type Recorder interface {
	RecordOperation(ctx context.Context, op string, d time.Duration, outcome string)
}

// Config wires an Engine.
type Config struct {
	Ledger  ledger.Ledger
	Store   content.Store
	Archive archive.Archive
	Caps    xpcap.Accumulator
	Guard   *policy.Guard // optional CEL award guard
	Recorder Recorder     // optional
	Logger  *slog.Logger  // defaults to slog.Default()

	// Workers bounds bulk fan-out concurrency. Default 4.
	Workers int
	// OpTimeout bounds each operation end to end. Default 30s. A timed-out
	// ledger call is classified exactly like a network error.
	OpTimeout time.Duration
}

// Engine sequences admin operations across the adapters.
type Engine struct {
	ledger   ledger.Ledger
	store    content.Store
	archive  archive.Archive
	caps     xpcap.Accumulator
	guard    *policy.Guard
	recorder Recorder
	logger   *slog.Logger
	workers  int
	timeout  time.Duration
}

// New creates an Engine. Ledger, Store, Archive and Caps are required.
func New(cfg Config) (*Engine, error) {
	if cfg.Ledger == nil || cfg.Store == nil || cfg.Archive == nil || cfg.Caps == nil {
		return nil, errors.New("engine: ledger, store, archive and caps are all required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	timeout := cfg.OpTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Engine{
		ledger:   cfg.Ledger,
		store:    cfg.Store,
		archive:  cfg.Archive,
		caps:     cfg.Caps,
		guard:    cfg.Guard,
		recorder: cfg.Recorder,
		logger:   logger.With("component", "engine"),
		workers:  workers,
		timeout:  timeout,
	}, nil
}

func (e *Engine) begin(ctx context.Context, token auth.Capability) (context.Context, context.CancelFunc, error) {
	if token.Empty() {
		return nil, nil, &PolicyViolation{Err: ErrMissingCapability}
	}
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	return ctx, cancel, nil
}

func (e *Engine) record(ctx context.Context, op string, start time.Time, outcome string) {
	if e.recorder != nil {
		e.recorder.RecordOperation(ctx, op, time.Since(start), outcome)
	}
}

// snapshot fetches fresh authoritative state. Never cached across calls:
// two concurrent awards must both re-read awarded-count.
func (e *Engine) snapshot(ctx context.Context) (*model.Snapshot, error) {
	snap, err := e.ledger.Snapshot(ctx)
	if err != nil {
		return nil, &LedgerError{Err: err}
	}
	return snap, nil
}

func newReceiptID() string { return uuid.New().String() }

// CreateSeason opens a new season. Requires the previous season closed.
func (e *Engine) CreateSeason(ctx context.Context, token auth.Capability, number uint32) (*Result, error) {
	start := time.Now()
	ctx, cancel, err := e.begin(ctx, token)
	if err != nil {
		return nil, err
	}
	defer cancel()

	snap, err := e.snapshot(ctx)
	if err != nil {
		e.record(ctx, "create_season", start, "ledger_error")
		return nil, err
	}
	if err := policy.ValidateSeasonCreate(snap, number); err != nil {
		e.record(ctx, "create_season", start, "policy_violation")
		return nil, &PolicyViolation{Err: err}
	}

	res, err := e.ledger.CreateSeason(ctx, number)
	if err != nil {
		e.record(ctx, "create_season", start, "ledger_error")
		return nil, &LedgerError{Err: err}
	}

	e.logger.Info("season created", "number", number, "signature", res.Signature)
	e.record(ctx, "create_season", start, "ok")
	return &Result{
		ReceiptID:   newReceiptID(),
		Signature:   res.Signature,
		MintAddress: res.MintAddress,
	}, nil
}

// CloseSeason closes the open season. Closing twice is rejected by policy
// before any ledger write, so the second call never duplicates a
// transaction.
func (e *Engine) CloseSeason(ctx context.Context, token auth.Capability) (*Result, error) {
	start := time.Now()
	ctx, cancel, err := e.begin(ctx, token)
	if err != nil {
		return nil, err
	}
	defer cancel()

	snap, err := e.snapshot(ctx)
	if err != nil {
		e.record(ctx, "close_season", start, "ledger_error")
		return nil, err
	}
	if err := policy.ValidateSeasonClose(snap); err != nil {
		e.record(ctx, "close_season", start, "policy_violation")
		return nil, &PolicyViolation{Err: err}
	}

	sig, err := e.ledger.CloseSeason(ctx)
	if err != nil {
		e.record(ctx, "close_season", start, "ledger_error")
		return nil, &LedgerError{Err: err}
	}

	e.logger.Info("season closed", "signature", sig)
	e.record(ctx, "close_season", start, "ok")
	return &Result{ReceiptID: newReceiptID(), Signature: sig}, nil
}

// CourseRequest carries a course mutation: the ledger-side record plus the
// optional off-chain document.
type CourseRequest struct {
	Course  model.Course
	Content *model.CourseContent
}

// CreateCourse registers a course. The content document, when present, is
// written first: it is the cheap, reversible step and becomes the retry
// anchor if the ledger submission fails.
func (e *Engine) CreateCourse(ctx context.Context, token auth.Capability, req CourseRequest) (*Result, error) {
	start := time.Now()
	ctx, cancel, err := e.begin(ctx, token)
	if err != nil {
		return nil, err
	}
	defer cancel()

	snap, err := e.snapshot(ctx)
	if err != nil {
		e.record(ctx, "create_course", start, "ledger_error")
		return nil, err
	}
	if err := policy.ValidateCourseCreate(snap, &req.Course, req.Content); err != nil {
		e.record(ctx, "create_course", start, "policy_violation")
		return nil, &PolicyViolation{Err: err}
	}

	result := &Result{ReceiptID: newReceiptID()}
	if req.Content != nil {
		ref, err := e.store.UpsertCourse(ctx, req.Content)
		if err != nil {
			e.record(ctx, "create_course", start, "content_error")
			return nil, &ContentStoreError{Err: err}
		}
		result.ContentRef = ref
	}

	sig, err := e.ledger.CreateCourse(ctx, courseParams(&req.Course))
	if err != nil {
		if result.ContentRef != "" {
			// Content is durable; report the partial state instead of
			// rolling back. Retry re-attempts the ledger step only.
			result.OnChainError = err.Error()
			e.logger.Warn("course saved but ledger write failed",
				"course", req.Course.ID, "content_ref", result.ContentRef, "err", err)
			e.record(ctx, "create_course", start, "partial")
			return result, nil
		}
		e.record(ctx, "create_course", start, "ledger_error")
		return nil, &LedgerError{Err: err}
	}

	result.Signature = sig
	e.logger.Info("course created", "course", req.Course.ID, "signature", sig)
	e.record(ctx, "create_course", start, "ok")
	return result, nil
}

// UpdateCourse mutates an existing course with the same sequencing as
// CreateCourse.
func (e *Engine) UpdateCourse(ctx context.Context, token auth.Capability, req CourseRequest) (*Result, error) {
	start := time.Now()
	ctx, cancel, err := e.begin(ctx, token)
	if err != nil {
		return nil, err
	}
	defer cancel()

	snap, err := e.snapshot(ctx)
	if err != nil {
		e.record(ctx, "update_course", start, "ledger_error")
		return nil, err
	}
	if err := policy.ValidateCourseUpdate(snap, &req.Course, req.Content); err != nil {
		e.record(ctx, "update_course", start, "policy_violation")
		return nil, &PolicyViolation{Err: err}
	}

	result := &Result{ReceiptID: newReceiptID()}
	if req.Content != nil {
		ref, err := e.store.UpsertCourse(ctx, req.Content)
		if err != nil {
			e.record(ctx, "update_course", start, "content_error")
			return nil, &ContentStoreError{Err: err}
		}
		result.ContentRef = ref
	}

	sig, err := e.ledger.UpdateCourse(ctx, courseParams(&req.Course))
	if err != nil {
		if result.ContentRef != "" {
			result.OnChainError = err.Error()
			e.logger.Warn("course update saved but ledger write failed",
				"course", req.Course.ID, "content_ref", result.ContentRef, "err", err)
			e.record(ctx, "update_course", start, "partial")
			return result, nil
		}
		e.record(ctx, "update_course", start, "ledger_error")
		return nil, &LedgerError{Err: err}
	}

	result.Signature = sig
	e.record(ctx, "update_course", start, "ok")
	return result, nil
}

// RetryCourseLedger re-attempts the ledger step of a previously partial
// course create/update. It writes nothing to the content store: the stored
// document must already exist and is the revision being registered. The
// course id is the idempotency key, so a retry racing a late confirmation
// cannot create a duplicate record.
func (e *Engine) RetryCourseLedger(ctx context.Context, token auth.Capability, course model.Course) (*Result, error) {
	start := time.Now()
	ctx, cancel, err := e.begin(ctx, token)
	if err != nil {
		return nil, err
	}
	defer cancel()

	doc, err := e.store.GetCourse(ctx, course.ID)
	if err != nil {
		e.record(ctx, "retry_course_ledger", start, "content_error")
		return nil, &ContentStoreError{Err: err}
	}
	if doc.LessonCount() != course.LessonCount {
		e.record(ctx, "retry_course_ledger", start, "policy_violation")
		return nil, &PolicyViolation{Err: fmt.Errorf("%w: declared %d, content has %d",
			policy.ErrLessonCountMismatch, course.LessonCount, doc.LessonCount())}
	}
	ref, err := content.Ref(doc)
	if err != nil {
		e.record(ctx, "retry_course_ledger", start, "content_error")
		return nil, &ContentStoreError{Err: err}
	}

	result := &Result{ReceiptID: newReceiptID(), ContentRef: ref}

	snap, err := e.snapshot(ctx)
	if err != nil {
		result.OnChainError = err.Error()
		e.record(ctx, "retry_course_ledger", start, "partial")
		return result, nil
	}

	params := courseParams(&course)
	if doc.ArchiveID != "" {
		params.ArchiveID = doc.ArchiveID
	}

	var sig ledger.Signature
	if _, exists := snap.Courses[course.ID]; exists {
		sig, err = e.ledger.UpdateCourse(ctx, params)
	} else {
		sig, err = e.ledger.CreateCourse(ctx, params)
	}
	if err != nil {
		result.OnChainError = err.Error()
		e.record(ctx, "retry_course_ledger", start, "partial")
		return result, nil
	}

	result.Signature = sig
	e.logger.Info("course ledger retry confirmed", "course", course.ID, "signature", sig)
	e.record(ctx, "retry_course_ledger", start, "ok")
	return result, nil
}

// RegisterMinter authorizes an XP-issuing signer.
func (e *Engine) RegisterMinter(ctx context.Context, token auth.Capability, p ledger.MinterParams) (*Result, error) {
	start := time.Now()
	ctx, cancel, err := e.begin(ctx, token)
	if err != nil {
		return nil, err
	}
	defer cancel()

	sig, err := e.ledger.RegisterMinter(ctx, p)
	if err != nil {
		e.record(ctx, "register_minter", start, "ledger_error")
		return nil, &LedgerError{Err: err}
	}
	e.logger.Info("minter registered", "signer", p.Signer, "max_xp_per_call", p.MaxXPPerCall)
	e.record(ctx, "register_minter", start, "ok")
	return &Result{ReceiptID: newReceiptID(), Signature: sig}, nil
}

// RevokeMinter terminally revokes a signer.
func (e *Engine) RevokeMinter(ctx context.Context, token auth.Capability, signer string) (*Result, error) {
	start := time.Now()
	ctx, cancel, err := e.begin(ctx, token)
	if err != nil {
		return nil, err
	}
	defer cancel()

	sig, err := e.ledger.RevokeMinter(ctx, signer)
	if err != nil {
		e.record(ctx, "revoke_minter", start, "ledger_error")
		return nil, &LedgerError{Err: err}
	}
	e.logger.Info("minter revoked", "signer", signer)
	e.record(ctx, "revoke_minter", start, "ok")
	return &Result{ReceiptID: newReceiptID(), Signature: sig}, nil
}

// AchievementRequest carries an achievement creation: ledger params plus
// optional off-chain metadata (written first, like course content).
type AchievementRequest struct {
	Params   ledger.AchievementParams
	Metadata []byte
}

// CreateAchievementType creates a bounded-supply achievement.
func (e *Engine) CreateAchievementType(ctx context.Context, token auth.Capability, req AchievementRequest) (*Result, error) {
	start := time.Now()
	ctx, cancel, err := e.begin(ctx, token)
	if err != nil {
		return nil, err
	}
	defer cancel()

	snap, err := e.snapshot(ctx)
	if err != nil {
		e.record(ctx, "create_achievement", start, "ledger_error")
		return nil, err
	}
	if _, exists := snap.Achievements[req.Params.ID]; exists {
		e.record(ctx, "create_achievement", start, "policy_violation")
		return nil, &PolicyViolation{Err: fmt.Errorf("engine: achievement %s already exists", req.Params.ID)}
	}

	result := &Result{ReceiptID: newReceiptID()}
	if len(req.Metadata) > 0 {
		if err := e.store.UpsertAchievementMeta(ctx, req.Params.ID, req.Metadata); err != nil {
			e.record(ctx, "create_achievement", start, "content_error")
			return nil, &ContentStoreError{Err: err}
		}
		result.ContentRef = req.Params.ID + "@meta"
	}

	res, err := e.ledger.CreateAchievementType(ctx, req.Params)
	if err != nil {
		if result.ContentRef != "" {
			result.OnChainError = err.Error()
			e.logger.Warn("achievement metadata saved but ledger write failed",
				"achievement", req.Params.ID, "err", err)
			e.record(ctx, "create_achievement", start, "partial")
			return result, nil
		}
		e.record(ctx, "create_achievement", start, "ledger_error")
		return nil, &LedgerError{Err: err}
	}

	result.Signature = res.Signature
	result.CollectionAddress = res.CollectionAddress
	e.logger.Info("achievement created", "achievement", req.Params.ID, "max_supply", req.Params.MaxSupply)
	e.record(ctx, "create_achievement", start, "ok")
	return result, nil
}

// DeactivateAchievementType terminally deactivates an achievement.
func (e *Engine) DeactivateAchievementType(ctx context.Context, token auth.Capability, id string) (*Result, error) {
	start := time.Now()
	ctx, cancel, err := e.begin(ctx, token)
	if err != nil {
		return nil, err
	}
	defer cancel()

	sig, err := e.ledger.DeactivateAchievementType(ctx, id)
	if err != nil {
		e.record(ctx, "deactivate_achievement", start, "ledger_error")
		return nil, &LedgerError{Err: err}
	}
	e.record(ctx, "deactivate_achievement", start, "ok")
	return &Result{ReceiptID: newReceiptID(), Signature: sig}, nil
}

// AwardAchievement mints one achievement asset. The local supply check
// fails fast on a fresh snapshot; the ledger's own atomicity is what
// actually prevents over-issuance when two awards race.
func (e *Engine) AwardAchievement(ctx context.Context, token auth.Capability, p ledger.AwardParams) (*Result, error) {
	start := time.Now()
	ctx, cancel, err := e.begin(ctx, token)
	if err != nil {
		return nil, err
	}
	defer cancel()

	snap, err := e.snapshot(ctx)
	if err != nil {
		e.record(ctx, "award_achievement", start, "ledger_error")
		return nil, err
	}
	ach, ok := snap.Achievements[p.AchievementID]
	if !ok {
		e.record(ctx, "award_achievement", start, "policy_violation")
		return nil, &PolicyViolation{Err: fmt.Errorf("engine: unknown achievement %s", p.AchievementID)}
	}
	if err := policy.ValidateAchievementAward(ach, 1); err != nil {
		e.record(ctx, "award_achievement", start, "policy_violation")
		return nil, &PolicyViolation{Err: err}
	}

	reserved := uint64(0)
	if ach.XPReward > 0 {
		daily, err := e.caps.DailyTotal(ctx, p.Learner)
		if err != nil {
			e.record(ctx, "award_achievement", start, "content_error")
			return nil, &ContentStoreError{Err: err}
		}
		iss := policy.XPIssuance{
			Minter:             snap.Minters[p.Minter],
			Amount:             ach.XPReward,
			LearnerDailyTotal:  daily,
			AchievementSourced: true,
		}
		if err := policy.ValidateXPIssuance(snap, iss); err != nil {
			e.record(ctx, "award_achievement", start, "policy_violation")
			return nil, &PolicyViolation{Err: err}
		}
		if e.guard != nil {
			if err := e.guard.Check(iss, p.Learner); err != nil {
				e.record(ctx, "award_achievement", start, "policy_violation")
				return nil, &PolicyViolation{Err: err}
			}
		}
		_, allowed, err := e.caps.TryAdd(ctx, p.Learner, ach.XPReward, snap.Config.MaxDailyXP)
		if err != nil {
			e.record(ctx, "award_achievement", start, "content_error")
			return nil, &ContentStoreError{Err: err}
		}
		if !allowed {
			e.record(ctx, "award_achievement", start, "policy_violation")
			return nil, &PolicyViolation{Err: policy.ErrExceedsDailyCap}
		}
		reserved = ach.XPReward
	}

	res, err := e.ledger.AwardAchievement(ctx, p)
	if err != nil {
		if reserved > 0 {
			if rbErr := e.caps.Rollback(ctx, p.Learner, reserved); rbErr != nil {
				e.logger.Error("daily cap rollback failed", "learner", p.Learner, "err", rbErr)
			}
		}
		e.record(ctx, "award_achievement", start, "ledger_error")
		return nil, &LedgerError{Err: err}
	}

	e.logger.Info("achievement awarded",
		"achievement", p.AchievementID, "learner", p.Learner, "signature", res.Signature)
	e.record(ctx, "award_achievement", start, "ok")
	return &Result{
		ReceiptID:    newReceiptID(),
		Signature:    res.Signature,
		AssetAddress: res.AssetAddress,
	}, nil
}

// RewardXP issues XP to a learner through an authorized minter. The daily
// cap is reserved atomically before submission and released if the ledger
// rejects the grant.
func (e *Engine) RewardXP(ctx context.Context, token auth.Capability, p ledger.RewardParams) (*Result, error) {
	start := time.Now()
	ctx, cancel, err := e.begin(ctx, token)
	if err != nil {
		return nil, err
	}
	defer cancel()

	snap, err := e.snapshot(ctx)
	if err != nil {
		e.record(ctx, "reward_xp", start, "ledger_error")
		return nil, err
	}
	daily, err := e.caps.DailyTotal(ctx, p.Learner)
	if err != nil {
		e.record(ctx, "reward_xp", start, "content_error")
		return nil, &ContentStoreError{Err: err}
	}

	iss := policy.XPIssuance{
		Minter:            snap.Minters[p.Minter],
		Amount:            p.Amount,
		LearnerDailyTotal: daily,
	}
	if err := policy.ValidateXPIssuance(snap, iss); err != nil {
		e.record(ctx, "reward_xp", start, "policy_violation")
		return nil, &PolicyViolation{Err: err}
	}
	if e.guard != nil {
		if err := e.guard.Check(iss, p.Learner); err != nil {
			e.record(ctx, "reward_xp", start, "policy_violation")
			return nil, &PolicyViolation{Err: err}
		}
	}

	_, allowed, err := e.caps.TryAdd(ctx, p.Learner, p.Amount, snap.Config.MaxDailyXP)
	if err != nil {
		e.record(ctx, "reward_xp", start, "content_error")
		return nil, &ContentStoreError{Err: err}
	}
	if !allowed {
		e.record(ctx, "reward_xp", start, "policy_violation")
		return nil, &PolicyViolation{Err: policy.ErrExceedsDailyCap}
	}

	sig, err := e.ledger.RewardXP(ctx, p)
	if err != nil {
		if rbErr := e.caps.Rollback(ctx, p.Learner, p.Amount); rbErr != nil {
			e.logger.Error("daily cap rollback failed", "learner", p.Learner, "err", rbErr)
		}
		e.record(ctx, "reward_xp", start, "ledger_error")
		return nil, &LedgerError{Err: err}
	}

	e.logger.Info("xp rewarded", "minter", p.Minter, "learner", p.Learner, "amount", p.Amount)
	e.record(ctx, "reward_xp", start, "ok")
	return &Result{ReceiptID: newReceiptID(), Signature: sig}, nil
}

// UpdateConfig mutates the singleton config.
func (e *Engine) UpdateConfig(ctx context.Context, token auth.Capability, p ledger.ConfigParams) (*Result, error) {
	start := time.Now()
	ctx, cancel, err := e.begin(ctx, token)
	if err != nil {
		return nil, err
	}
	defer cancel()

	sig, err := e.ledger.UpdateConfig(ctx, p)
	if err != nil {
		e.record(ctx, "update_config", start, "ledger_error")
		return nil, &LedgerError{Err: err}
	}
	e.logger.Info("config updated", "signature", sig)
	e.record(ctx, "update_config", start, "ok")
	return &Result{ReceiptID: newReceiptID(), Signature: sig}, nil
}

// RecordLessonProgress applies lesson progress to an enrollment record,
// enforcing the monotonic bound and the set-exactly-once completion
// timestamp. The caller owns persistence of the record.
func (e *Engine) RecordLessonProgress(enr *model.Enrollment, completed uint32, now time.Time) error {
	if err := policy.ValidateLessonProgress(enr, completed); err != nil {
		return &PolicyViolation{Err: err}
	}
	enr.LessonsCompleted = completed
	if enr.Completed() && enr.CompletedAt.IsZero() {
		enr.CompletedAt = now.UTC()
	}
	return nil
}

func courseParams(c *model.Course) ledger.CourseParams {
	return ledger.CourseParams{
		ID:                      c.ID,
		Active:                  c.Active,
		LessonCount:             c.LessonCount,
		XPPerLesson:             c.XPPerLesson,
		CreatorRewardXP:         c.CreatorRewardXP,
		MinCompletionsForReward: c.MinCompletionsForReward,
		Prerequisite:            c.Prerequisite,
		ArchiveID:               c.ArchiveID,
	}
}
