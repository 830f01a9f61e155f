package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Solstice-Labs/academy/core/pkg/model"
)

// entry is one confirmed transaction in the in-memory chain. Entries are
// hash-chained to their predecessor; the chain head doubles as the source
// of transaction signatures.
type entry struct {
	Sequence  uint64         `json:"sequence"`
	TxType    string         `json:"tx_type"`
	Key       string         `json:"key"` // idempotency key
	PrevHash  string         `json:"prev_hash"`
	Hash      string         `json:"hash"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

// Memory is an in-process stand-in for the on-chain program. It applies the
// same atomicity the real program would: every mutation takes the write lock,
// re-checks its own invariants against current state, and appends exactly one
// hash-chained entry. Duplicate submissions under the same idempotency key
// return the original signature instead of a second record.
type Memory struct {
	mu       sync.Mutex
	config   model.Config
	seasons  map[uint32]*model.Season
	courses  map[string]*model.Course
	achievements map[string]*model.AchievementType
	minters  map[string]*model.Minter
	learners map[string]*model.Learner

	entries   []entry
	headHash  string
	byKey     map[string]Signature // txType/key -> first confirmed signature
	courseSig map[string]Signature // course id -> signature of the last applied write
	clock     func() time.Time

	failNext map[string]error
}

// NewMemory creates an empty in-memory ledger with a genesis config.
func NewMemory(cfg model.Config) *Memory {
	return &Memory{
		config:       cfg,
		seasons:      make(map[uint32]*model.Season),
		courses:      make(map[string]*model.Course),
		achievements: make(map[string]*model.AchievementType),
		minters:      make(map[string]*model.Minter),
		learners:     make(map[string]*model.Learner),
		headHash:     "genesis",
		byKey:        make(map[string]Signature),
		courseSig:    make(map[string]Signature),
		clock:        time.Now,
		failNext:     make(map[string]error),
	}
}

// WithClock overrides the clock for testing.
func (m *Memory) WithClock(clock func() time.Time) *Memory {
	m.clock = clock
	return m
}

// FailNext makes the next call of txType fail with err, simulating a
// network or program failure. State is not modified by the failed call.
func (m *Memory) FailNext(txType string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext[txType] = err
}

func (m *Memory) injected(txType string) error {
	if err, ok := m.failNext[txType]; ok {
		delete(m.failNext, txType)
		return err
	}
	return nil
}

// append records a confirmed transaction and returns its signature.
// Caller must hold m.mu.
func (m *Memory) append(txType, key string, data map[string]any) Signature {
	seq := uint64(len(m.entries)) + 1
	hashInput := struct {
		Seq  uint64         `json:"seq"`
		Type string         `json:"type"`
		Key  string         `json:"key"`
		Data map[string]any `json:"data"`
		Prev string         `json:"prev"`
	}{seq, txType, key, data, m.headHash}

	raw, _ := json.Marshal(hashInput)
	h := sha256.Sum256(raw)
	hash := hex.EncodeToString(h[:])

	m.entries = append(m.entries, entry{
		Sequence:  seq,
		TxType:    txType,
		Key:       key,
		PrevHash:  m.headHash,
		Hash:      hash,
		Timestamp: m.clock(),
		Data:      data,
	})
	m.headHash = hash

	sig := Signature(hash)
	if key != "" {
		m.byKey[txType+"/"+key] = sig
	}
	return sig
}

// address derives a deterministic pseudo-address from a seed, standing in
// for the PDA the real program would derive.
func address(kind, seed string) string {
	h := sha256.Sum256([]byte(kind + ":" + seed))
	return hex.EncodeToString(h[:16])
}

// Snapshot returns a deep copy of current state.
func (m *Memory) Snapshot(ctx context.Context) (*model.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("snapshot"); err != nil {
		return nil, err
	}

	snap := &model.Snapshot{
		Config:       m.config,
		Seasons:      make(map[uint32]*model.Season, len(m.seasons)),
		Courses:      make(map[string]*model.Course, len(m.courses)),
		Achievements: make(map[string]*model.AchievementType, len(m.achievements)),
		Minters:      make(map[string]*model.Minter, len(m.minters)),
	}
	for n, s := range m.seasons {
		c := *s
		snap.Seasons[n] = &c
	}
	for id, c := range m.courses {
		cc := *c
		snap.Courses[id] = &cc
	}
	for id, a := range m.achievements {
		ac := *a
		snap.Achievements[id] = &ac
	}
	for id, mt := range m.minters {
		mc := *mt
		snap.Minters[id] = &mc
	}
	return snap, nil
}

func (m *Memory) CreateSeason(ctx context.Context, number uint32) (SeasonResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("create_season"); err != nil {
		return SeasonResult{}, err
	}

	key := fmt.Sprintf("%d", number)
	if sig, ok := m.byKey["create_season/"+key]; ok {
		return SeasonResult{Signature: sig, MintAddress: m.seasons[number].MintAddress}, nil
	}
	if _, exists := m.seasons[number]; exists {
		return SeasonResult{}, fmt.Errorf("%w: season %d exists", ErrRejected, number)
	}
	for _, s := range m.seasons {
		if !s.Closed {
			return SeasonResult{}, fmt.Errorf("%w: season %d still open", ErrRejected, s.Number)
		}
	}

	mint := address("season-mint", key)
	m.seasons[number] = &model.Season{
		Number:      number,
		MintAddress: mint,
		CreatedAt:   m.clock(),
	}
	m.config.CurrentSeason = number
	m.config.SeasonClosed = false

	sig := m.append("create_season", key, map[string]any{"number": number, "mint": mint})
	return SeasonResult{Signature: sig, MintAddress: mint}, nil
}

func (m *Memory) CloseSeason(ctx context.Context) (Signature, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("close_season"); err != nil {
		return "", err
	}

	season := m.seasons[m.config.CurrentSeason]
	if season == nil || season.Closed {
		return "", fmt.Errorf("%w: no open season", ErrRejected)
	}
	season.Closed = true
	season.ClosedAt = m.clock()
	m.config.SeasonClosed = true

	return m.append("close_season", fmt.Sprintf("%d", season.Number), map[string]any{"number": season.Number}), nil
}

func (m *Memory) CreateCourse(ctx context.Context, p CourseParams) (Signature, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("create_course"); err != nil {
		return "", err
	}

	if sig, ok := m.byKey["create_course/"+p.ID]; ok {
		return sig, nil
	}
	if _, exists := m.courses[p.ID]; exists {
		return "", fmt.Errorf("%w: course %s exists", ErrRejected, p.ID)
	}
	if p.Prerequisite != "" {
		if _, ok := m.courses[p.Prerequisite]; !ok {
			return "", fmt.Errorf("%w: prerequisite %s", ErrRejected, p.Prerequisite)
		}
	}

	m.courses[p.ID] = &model.Course{
		ID:                      p.ID,
		Active:                  p.Active,
		LessonCount:             p.LessonCount,
		XPPerLesson:             p.XPPerLesson,
		CreatorRewardXP:         p.CreatorRewardXP,
		MinCompletionsForReward: p.MinCompletionsForReward,
		Prerequisite:            p.Prerequisite,
		ArchiveID:               p.ArchiveID,
		CreatedAt:               m.clock(),
	}
	m.config.TotalCourses++

	sig := m.append("create_course", p.ID, map[string]any{"id": p.ID, "lessons": p.LessonCount})
	m.courseSig[p.ID] = sig
	return sig, nil
}

// courseUnchanged reports whether applying p would leave the stored course
// as it is. An empty ArchiveID in p never clears a recorded one, so it is
// ignored for the comparison.
func courseUnchanged(c *model.Course, p CourseParams) bool {
	if p.ArchiveID != "" && c.ArchiveID != p.ArchiveID {
		return false
	}
	return c.Active == p.Active &&
		c.LessonCount == p.LessonCount &&
		c.XPPerLesson == p.XPPerLesson &&
		c.CreatorRewardXP == p.CreatorRewardXP &&
		c.MinCompletionsForReward == p.MinCompletionsForReward &&
		c.Prerequisite == p.Prerequisite
}

func (m *Memory) UpdateCourse(ctx context.Context, p CourseParams) (Signature, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("update_course"); err != nil {
		return "", err
	}

	course, ok := m.courses[p.ID]
	if !ok {
		return "", fmt.Errorf("%w: course %s", ErrNotFound, p.ID)
	}
	// Resubmitting a write that is already applied returns the signature
	// that confirmed it instead of appending a second record.
	if courseUnchanged(course, p) {
		if sig, ok := m.courseSig[p.ID]; ok {
			return sig, nil
		}
	}
	course.Active = p.Active
	course.LessonCount = p.LessonCount
	course.XPPerLesson = p.XPPerLesson
	course.CreatorRewardXP = p.CreatorRewardXP
	course.MinCompletionsForReward = p.MinCompletionsForReward
	course.Prerequisite = p.Prerequisite
	if p.ArchiveID != "" {
		course.ArchiveID = p.ArchiveID
	}

	sig := m.append("update_course", "", map[string]any{"id": p.ID})
	m.courseSig[p.ID] = sig
	return sig, nil
}

func (m *Memory) RegisterMinter(ctx context.Context, p MinterParams) (Signature, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("register_minter"); err != nil {
		return "", err
	}

	if existing, ok := m.minters[p.Signer]; ok && !existing.Revoked {
		return m.byKey["register_minter/"+p.Signer], nil
	}
	m.minters[p.Signer] = &model.Minter{
		Signer:       p.Signer,
		Label:        p.Label,
		MaxXPPerCall: p.MaxXPPerCall,
		RegisteredAt: m.clock(),
	}
	return m.append("register_minter", p.Signer, map[string]any{"signer": p.Signer, "cap": p.MaxXPPerCall}), nil
}

func (m *Memory) RevokeMinter(ctx context.Context, signer string) (Signature, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("revoke_minter"); err != nil {
		return "", err
	}

	minter, ok := m.minters[signer]
	if !ok {
		return "", fmt.Errorf("%w: minter %s", ErrNotFound, signer)
	}
	if minter.Revoked {
		return m.byKey["revoke_minter/"+signer], nil
	}
	minter.Revoked = true
	minter.RevokedAt = m.clock()
	return m.append("revoke_minter", signer, map[string]any{"signer": signer}), nil
}

func (m *Memory) CreateAchievementType(ctx context.Context, p AchievementParams) (AchievementResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("create_achievement"); err != nil {
		return AchievementResult{}, err
	}

	if sig, ok := m.byKey["create_achievement/"+p.ID]; ok {
		return AchievementResult{Signature: sig, CollectionAddress: m.achievements[p.ID].CollectionAddress}, nil
	}
	if _, exists := m.achievements[p.ID]; exists {
		return AchievementResult{}, fmt.Errorf("%w: achievement %s exists", ErrRejected, p.ID)
	}

	collection := address("achievement-collection", p.ID)
	m.achievements[p.ID] = &model.AchievementType{
		ID:                p.ID,
		Name:              p.Name,
		MaxSupply:         p.MaxSupply,
		XPReward:          p.XPReward,
		Active:            true,
		CollectionAddress: collection,
		CreatedAt:         m.clock(),
	}
	sig := m.append("create_achievement", p.ID, map[string]any{"id": p.ID, "supply": p.MaxSupply})
	return AchievementResult{Signature: sig, CollectionAddress: collection}, nil
}

func (m *Memory) DeactivateAchievementType(ctx context.Context, id string) (Signature, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("deactivate_achievement"); err != nil {
		return "", err
	}

	ach, ok := m.achievements[id]
	if !ok {
		return "", fmt.Errorf("%w: achievement %s", ErrNotFound, id)
	}
	if !ach.Active {
		return m.byKey["deactivate_achievement/"+id], nil
	}
	ach.Active = false
	return m.append("deactivate_achievement", id, map[string]any{"id": id}), nil
}

// AwardAchievement enforces the supply bound under the write lock; this is
// the atomicity that actually prevents over-issuance when concurrent awards
// race past the engine's fail-fast check.
func (m *Memory) AwardAchievement(ctx context.Context, p AwardParams) (AwardResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("award_achievement"); err != nil {
		return AwardResult{}, err
	}

	// Dedup before any state check: a resubmission of a confirmed award
	// must return the original signature even when that award consumed
	// the last supply unit or the achievement was deactivated since.
	key := p.AchievementID + "/" + p.Learner
	if sig, ok := m.byKey["award_achievement/"+key]; ok {
		return AwardResult{Signature: sig, AssetAddress: address("achievement-asset", key)}, nil
	}

	ach, ok := m.achievements[p.AchievementID]
	if !ok {
		return AwardResult{}, fmt.Errorf("%w: achievement %s", ErrNotFound, p.AchievementID)
	}
	if !ach.Active {
		return AwardResult{}, fmt.Errorf("%w: achievement %s inactive", ErrRejected, p.AchievementID)
	}
	if ach.AwardedCount >= ach.MaxSupply {
		return AwardResult{}, fmt.Errorf("%w: achievement %s supply exhausted", ErrRejected, p.AchievementID)
	}

	ach.AwardedCount++
	learner := m.learners[p.Learner]
	if learner == nil {
		learner = &model.Learner{Wallet: p.Learner}
		m.learners[p.Learner] = learner
	}
	learner.TotalXP += ach.XPReward

	asset := address("achievement-asset", key)
	sig := m.append("award_achievement", key, map[string]any{"id": p.AchievementID, "learner": p.Learner, "asset": asset})
	return AwardResult{Signature: sig, AssetAddress: asset}, nil
}

func (m *Memory) RewardXP(ctx context.Context, p RewardParams) (Signature, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("reward_xp"); err != nil {
		return "", err
	}

	if m.config.SeasonClosed {
		return "", fmt.Errorf("%w: season closed", ErrRejected)
	}
	minter, ok := m.minters[p.Minter]
	if !ok || minter.Revoked {
		return "", fmt.Errorf("%w: minter %s not authorized", ErrRejected, p.Minter)
	}
	if p.Amount > minter.MaxXPPerCall {
		return "", fmt.Errorf("%w: amount %d exceeds minter cap %d", ErrRejected, p.Amount, minter.MaxXPPerCall)
	}

	learner := m.learners[p.Learner]
	if learner == nil {
		learner = &model.Learner{Wallet: p.Learner}
		m.learners[p.Learner] = learner
	}
	learner.TotalXP += p.Amount

	return m.append("reward_xp", "", map[string]any{"minter": p.Minter, "learner": p.Learner, "amount": p.Amount}), nil
}

func (m *Memory) UpdateConfig(ctx context.Context, p ConfigParams) (Signature, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("update_config"); err != nil {
		return "", err
	}

	if p.Authority != nil {
		m.config.Authority = *p.Authority
	}
	if p.BackendSigner != nil {
		m.config.BackendSigner = *p.BackendSigner
	}
	if p.MaxDailyXP != nil {
		m.config.MaxDailyXP = *p.MaxDailyXP
	}
	if p.MaxAchievementXP != nil {
		m.config.MaxAchievementXP = *p.MaxAchievementXP
	}
	return m.append("update_config", "", map[string]any{}), nil
}

// Learner returns the current learner record, for tests and read surfaces.
func (m *Memory) Learner(wallet string) *model.Learner {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.learners[wallet]; ok {
		c := *l
		return &c
	}
	return nil
}

// Verify walks the entry chain and reports the first break, if any.
func (m *Memory) Verify() (bool, string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev := "genesis"
	for i, e := range m.entries {
		if e.PrevHash != prev {
			return false, fmt.Sprintf("chain broken at entry %d", i+1)
		}
		prev = e.Hash
	}
	return true, "chain verified"
}

// Length returns the number of confirmed transactions.
func (m *Memory) Length() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
