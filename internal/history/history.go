package history

import (
	"context"
	"sync"

	"driverhub/internal/model"
)

// Store is the completed-delivery log surfaced on the driver's history
// screen. Appends are best-effort from the engine's point of view.
type Store interface {
	Append(ctx context.Context, riderID int64, rec model.DeliveryRecord) error
	List(ctx context.Context, riderID int64, limit int) ([]model.DeliveryRecord, error)
}

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
	mu   sync.Mutex
	recs map[int64][]model.DeliveryRecord
}

func NewMemory() *Memory {
	return &Memory{recs: map[int64][]model.DeliveryRecord{}}
}

func (m *Memory) Append(ctx context.Context, riderID int64, rec model.DeliveryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs[riderID] = append(m.recs[riderID], rec)
	return nil
}

// List returns the newest records first.
func (m *Memory) List(ctx context.Context, riderID int64, limit int) ([]model.DeliveryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	recs := m.recs[riderID]
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	out := []model.DeliveryRecord{}
	for i := len(recs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, recs[i])
	}
	return out, nil
}
