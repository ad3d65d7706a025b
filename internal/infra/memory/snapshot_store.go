package memory

import (
	"context"
	"sync"

	"live-quiz-service/internal/domain"
)

// SnapshotStore is an in-memory implementation of app.SnapshotStore, used when
// Redis is not configured.
type SnapshotStore struct {
	mu   sync.RWMutex
	snap domain.Snapshot
	ok   bool
}

func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{}
}

// SaveSnapshot keeps snap unless a newer version is already stored.
func (s *SnapshotStore) SaveSnapshot(_ context.Context, snap domain.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ok && s.snap.SessionID == snap.SessionID && s.snap.Version > snap.Version {
		return nil
	}
	s.snap = snap
	s.ok = true
	return nil
}

func (s *SnapshotStore) Latest() (domain.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap, s.ok
}
