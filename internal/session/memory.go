package session

import (
	"context"
	"sync"
)

// Memory is a simple in-memory store used when no REDIS_URL is set.
type Memory struct {
	mu    sync.Mutex
	snaps map[int64]Snapshot
}

func NewMemory() *Memory {
	return &Memory{snaps: map[int64]Snapshot{}}
}

func (m *Memory) Load(ctx context.Context, driverID int64) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snaps[driverID], nil
}

func (m *Memory) Save(ctx context.Context, driverID int64, snap Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps[driverID] = snap
	return nil
}
