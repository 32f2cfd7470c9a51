package storage

import (
	"context"
	"sync"
	"time"

	"github.com/NuvoWindows/window-quote-whatsapp-bot/internal/specification"
)

type memoryRecord struct {
	spec         specification.Specification
	pending      []byte
	lastActivity time.Time
	updatedAt    time.Time
}

// MemoryStore keeps conversations in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*memoryRecord
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	o := buildOptions(opts)
	return &MemoryStore{
		records: make(map[string]*memoryRecord),
		now:     o.now,
	}
}

func (s *MemoryStore) GetPartialSpecification(ctx context.Context, userID string) (specification.Specification, error) {
	id, err := normalizeUserID(userID)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.spec.Clone(), nil
}

func (s *MemoryStore) SavePartialSpecification(ctx context.Context, userID string, spec specification.Specification) error {
	id, err := normalizeUserID(userID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.recordLocked(id)
	rec.spec = spec.Clone()
	rec.updatedAt = s.now()
	return nil
}

func (s *MemoryStore) GetLastActivityTime(ctx context.Context, userID string) (time.Time, error) {
	id, err := normalizeUserID(userID)
	if err != nil {
		return time.Time{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok || rec.lastActivity.IsZero() {
		return time.Time{}, ErrNotFound
	}
	return rec.lastActivity, nil
}

func (s *MemoryStore) UpdateLastActivity(ctx context.Context, userID string) error {
	id, err := normalizeUserID(userID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.recordLocked(id)
	rec.lastActivity = s.now()
	rec.updatedAt = rec.lastActivity
	return nil
}

func (s *MemoryStore) ClearPartialSpecification(ctx context.Context, userID string) error {
	id, err := normalizeUserID(userID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	return nil
}

func (s *MemoryStore) SetPendingClarification(ctx context.Context, userID string, payload []byte) error {
	id, err := normalizeUserID(userID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.recordLocked(id)
	rec.pending = append([]byte(nil), payload...)
	rec.updatedAt = s.now()
	return nil
}

func (s *MemoryStore) GetPendingClarification(ctx context.Context, userID string) ([]byte, error) {
	id, err := normalizeUserID(userID)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok || len(rec.pending) == 0 {
		return nil, nil
	}
	return append([]byte(nil), rec.pending...), nil
}

func (s *MemoryStore) ClearPendingClarification(ctx context.Context, userID string) error {
	id, err := normalizeUserID(userID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[id]; ok {
		rec.pending = nil
		rec.updatedAt = s.now()
	}
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

// recordLocked returns the record for id, creating it. Callers hold s.mu.
func (s *MemoryStore) recordLocked(id string) *memoryRecord {
	rec, ok := s.records[id]
	if !ok {
		rec = &memoryRecord{spec: specification.Specification{}}
		s.records[id] = rec
	}
	return rec
}
