package archive

import (
	"context"
	"sync"
)

// MemoryArchive is the in-process Archive used in tests.
type MemoryArchive struct {
	mu    sync.RWMutex
	blobs map[string][]byte

	failNext error
	writes   int
}

// NewMemoryArchive creates an empty in-memory archive.
func NewMemoryArchive() *MemoryArchive {
	return &MemoryArchive{blobs: make(map[string][]byte)}
}

// FailNext makes the next Write fail with err.
func (a *MemoryArchive) FailNext(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failNext = err
}

// Writes returns how many uploads actually happened (dedup hits excluded).
func (a *MemoryArchive) Writes() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.writes
}

func (a *MemoryArchive) Write(ctx context.Context, blob []byte) (string, error) {
	id := ContentID(blob)

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failNext != nil {
		err := a.failNext
		a.failNext = nil
		return "", err
	}
	if _, ok := a.blobs[id]; ok {
		return id, nil
	}
	a.blobs[id] = append([]byte(nil), blob...)
	a.writes++
	return id, nil
}

func (a *MemoryArchive) Get(ctx context.Context, contentID string) ([]byte, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	blob, ok := a.blobs[contentID]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), blob...), nil
}

func (a *MemoryArchive) Exists(ctx context.Context, contentID string) (bool, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.blobs[contentID]
	return ok, nil
}
