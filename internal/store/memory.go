package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/marminbh/toxicity-score-svc/internal/models"
)

// MemoryStore implements RecordStore using an in-memory map.
type MemoryStore struct {
	mu   sync.RWMutex
	byID map[string]models.CommentRecord
	now  func() time.Time
}

// NewMemoryStore constructs an empty memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID: make(map[string]models.CommentRecord),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (m *MemoryStore) EnsureSchema(context.Context) error { return nil }

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) Create(_ context.Context, record models.CommentRecord) (models.CommentRecord, error) {
	if !models.ValidScore(record.Score) {
		return models.CommentRecord{}, invalidScore("create", record.ID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if _, exists := m.byID[record.ID]; exists {
		return models.CommentRecord{}, conflict("create", record.ID, ErrConflict)
	}
	record.CreatedAt = m.now()
	record.UpdatedAt = nil
	record.DeletedAt = nil
	m.byID[record.ID] = record
	return record, nil
}

func (m *MemoryStore) UpdateScore(_ context.Context, id string, score float64) (models.CommentRecord, error) {
	if !models.ValidScore(score) {
		return models.CommentRecord{}, invalidScore("update", id)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.byID[id]
	if !ok {
		return models.CommentRecord{}, notFound("update", id)
	}
	now := m.now()
	existing.Score = score
	existing.UpdatedAt = &now
	m.byID[id] = existing
	return existing, nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byID[id]; !ok {
		return false, nil
	}
	delete(m.byID, id)
	return true, nil
}

func (m *MemoryStore) Find(_ context.Context, id string) (models.CommentRecord, error) {
	rec, ok := m.Get(id)
	if !ok {
		return models.CommentRecord{}, notFound("find", id)
	}
	return rec, nil
}

// Get returns a stored record by id.
func (m *MemoryStore) Get(id string) (models.CommentRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.byID[id]
	return rec, ok
}

// Len returns the number of stored records.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byID)
}
