package content

import (
	"context"
	"sort"
	"sync"

	"github.com/Solstice-Labs/academy/core/pkg/model"
)

// MemoryStore is the in-process Store used in tests and local runs.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]*model.CourseContent
	meta map[string][]byte

	failNext error
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[string]*model.CourseContent),
		meta: make(map[string][]byte),
	}
}

// FailNext makes the next write fail with err, for partial-failure tests.
func (s *MemoryStore) FailNext(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = err
}

func (s *MemoryStore) takeInjected() error {
	if s.failNext != nil {
		err := s.failNext
		s.failNext = nil
		return err
	}
	return nil
}

func (s *MemoryStore) UpsertCourse(ctx context.Context, doc *model.CourseContent) (string, error) {
	if err := ValidateDocument(doc); err != nil {
		return "", err
	}
	ref, err := Ref(doc)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeInjected(); err != nil {
		return "", err
	}

	copied := *doc
	copied.Lessons = append([]model.Lesson(nil), doc.Lessons...)
	if existing, ok := s.docs[doc.CourseID]; ok && copied.ArchiveID == "" {
		copied.ArchiveID = existing.ArchiveID
	}
	s.docs[doc.CourseID] = &copied
	return ref, nil
}

func (s *MemoryStore) GetCourse(ctx context.Context, courseID string) (*model.CourseContent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[courseID]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *doc
	copied.Lessons = append([]model.Lesson(nil), doc.Lessons...)
	return &copied, nil
}

func (s *MemoryStore) ListCourses(ctx context.Context) ([]*model.CourseContent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*model.CourseContent, 0, len(s.docs))
	for _, doc := range s.docs {
		copied := *doc
		copied.Lessons = append([]model.Lesson(nil), doc.Lessons...)
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CourseID < out[j].CourseID })
	return out, nil
}

func (s *MemoryStore) SetArchiveID(ctx context.Context, courseID, archiveID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeInjected(); err != nil {
		return err
	}
	doc, ok := s.docs[courseID]
	if !ok {
		return ErrNotFound
	}
	doc.ArchiveID = archiveID
	return nil
}

func (s *MemoryStore) UpsertAchievementMeta(ctx context.Context, achievementID string, meta []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeInjected(); err != nil {
		return err
	}
	s.meta[achievementID] = append([]byte(nil), meta...)
	return nil
}

func (s *MemoryStore) GetAchievementMeta(ctx context.Context, achievementID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	meta, ok := s.meta[achievementID]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), meta...), nil
}

func (s *MemoryStore) ListMissingArchive(ctx context.Context) ([]*model.CourseContent, error) {
	all, err := s.ListCourses(ctx)
	if err != nil {
		return nil, err
	}
	missing := all[:0]
	for _, doc := range all {
		if doc.ArchiveID == "" {
			missing = append(missing, doc)
		}
	}
	return missing, nil
}
