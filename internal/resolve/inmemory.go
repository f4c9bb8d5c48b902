package resolve

import (
	"context"
	"sort"
	"sync"

	"github.com/ppiankov/cogito/internal/model"
)

// InMemoryRepository is a MemoryRepository backed by a slice
type InMemoryRepository struct {
	mu      sync.RWMutex
	records []model.MemoryRecord
}

// NewInMemoryRepository creates a repository seeded with records
func NewInMemoryRepository(records ...model.MemoryRecord) *InMemoryRepository {
	return &InMemoryRepository{records: records}
}

// Add appends records
func (m *InMemoryRepository) Add(records ...model.MemoryRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, records...)
}

func (m *InMemoryRepository) GetLongTermByUserID(_ context.Context, userID string, limit int) ([]model.MemoryRecord, error) {
	return m.byDimension(userID, model.MemoryLongTerm, limit), nil
}

func (m *InMemoryRepository) GetShortTermByUserID(_ context.Context, userID string, limit int) ([]model.MemoryRecord, error) {
	return m.byDimension(userID, model.MemoryShortTerm, limit), nil
}

func (m *InMemoryRepository) GetEpisodicByUserID(_ context.Context, userID string, limit int) ([]model.MemoryRecord, error) {
	return m.byDimension(userID, model.MemoryEpisodic, limit), nil
}

// byDimension returns the newest records first, like the sqlite repository
func (m *InMemoryRepository) byDimension(userID string, dim model.MemoryDimension, limit int) []model.MemoryRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []model.MemoryRecord{}
	for _, r := range m.records {
		if r.UserID == userID && r.Dimension == dim {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
