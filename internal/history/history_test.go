package history

import (
	"context"
	"fmt"
	"testing"
	"time"

	"driverhub/internal/model"
)

func TestMemoryListNewestFirst(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		err := m.Append(ctx, 42, model.DeliveryRecord{
			ID:          fmt.Sprintf("d%d", i),
			OrderID:     fmt.Sprintf("%d", 100+i),
			CompletedAt: base.Add(time.Duration(i) * time.Hour),
		})
		if err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	recs, err := m.List(ctx, 42, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("records: got %d, want 3", len(recs))
	}
	if recs[0].ID != "d2" || recs[2].ID != "d0" {
		t.Fatalf("order: %v %v %v", recs[0].ID, recs[1].ID, recs[2].ID)
	}
}

func TestMemoryListLimits(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_ = m.Append(ctx, 42, model.DeliveryRecord{ID: fmt.Sprintf("d%d", i)})
	}

	recs, _ := m.List(ctx, 42, 2)
	if len(recs) != 2 {
		t.Fatalf("limit 2: got %d", len(recs))
	}

	// Out-of-range limits clamp to the default.
	recs, _ = m.List(ctx, 42, -1)
	if len(recs) != 5 {
		t.Fatalf("negative limit should clamp, got %d", len(recs))
	}

	recs, _ = m.List(ctx, 99, 10)
	if len(recs) != 0 {
		t.Fatalf("unknown rider: got %d", len(recs))
	}
}
