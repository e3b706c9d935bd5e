package session

import (
	"context"
	"time"

	"driverhub/internal/model"
)

// Snapshot is the durable slice of engine state, keyed per driver. Nil
// pointer fields mean "absent" and delete the corresponding key on Save.
type Snapshot struct {
	Status      model.DriverStatus `json:"status"`
	Vehicle     model.VehicleType  `json:"vehicle"`
	ShiftStart  *time.Time         `json:"shiftStart,omitempty"`
	ActiveOrder *model.ActiveOrder `json:"activeOrder,omitempty"`
}

// Store persists one snapshot per driver so a restart mid-delivery resumes
// in the same phase. Pure storage; no engine logic.
type Store interface {
	Load(ctx context.Context, driverID int64) (Snapshot, error)
	Save(ctx context.Context, driverID int64, snap Snapshot) error
}
