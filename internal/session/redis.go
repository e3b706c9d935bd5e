package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"driverhub/internal/model"
)

// Redis stores the snapshot one key per field, mirroring the browser
// client's localStorage layout:
//
//	driver:{id}:status        plain string
//	driver:{id}:vehicle       plain string
//	driver:{id}:shift_start   RFC3339
//	driver:{id}:active_order  JSON
type Redis struct {
	rdb *redis.Client
}

func NewRedis(url string) (*Redis, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("session: parse redis url: %w", err)
	}
	return &Redis{rdb: redis.NewClient(opt)}, nil
}

func (r *Redis) Load(ctx context.Context, driverID int64) (Snapshot, error) {
	var snap Snapshot

	if v, err := r.get(ctx, key(driverID, "status")); err != nil {
		return snap, err
	} else if v != "" {
		snap.Status = model.DriverStatus(v)
	}
	if v, err := r.get(ctx, key(driverID, "vehicle")); err != nil {
		return snap, err
	} else if v != "" {
		snap.Vehicle = model.VehicleType(v)
	}
	if v, err := r.get(ctx, key(driverID, "shift_start")); err != nil {
		return snap, err
	} else if v != "" {
		if ts, err := time.Parse(time.RFC3339Nano, v); err == nil {
			snap.ShiftStart = &ts
		}
	}
	if v, err := r.get(ctx, key(driverID, "active_order")); err != nil {
		return snap, err
	} else if v != "" {
		var order model.ActiveOrder
		if err := json.Unmarshal([]byte(v), &order); err == nil {
			snap.ActiveOrder = &order
		}
	}
	return snap, nil
}

func (r *Redis) Save(ctx context.Context, driverID int64, snap Snapshot) error {
	pipe := r.rdb.Pipeline()

	if snap.Status != "" {
		pipe.Set(ctx, key(driverID, "status"), string(snap.Status), 0)
	} else {
		pipe.Del(ctx, key(driverID, "status"))
	}
	if snap.Vehicle != "" {
		pipe.Set(ctx, key(driverID, "vehicle"), string(snap.Vehicle), 0)
	} else {
		pipe.Del(ctx, key(driverID, "vehicle"))
	}
	if snap.ShiftStart != nil {
		pipe.Set(ctx, key(driverID, "shift_start"), snap.ShiftStart.Format(time.RFC3339Nano), 0)
	} else {
		pipe.Del(ctx, key(driverID, "shift_start"))
	}
	if snap.ActiveOrder != nil {
		data, err := json.Marshal(snap.ActiveOrder)
		if err != nil {
			return fmt.Errorf("session: encode active order: %w", err)
		}
		pipe.Set(ctx, key(driverID, "active_order"), data, 0)
	} else {
		pipe.Del(ctx, key(driverID, "active_order"))
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("session: save: %w", err)
	}
	return nil
}

func (r *Redis) get(ctx context.Context, k string) (string, error) {
	v, err := r.rdb.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("session: load %s: %w", k, err)
	}
	return v, nil
}

func key(driverID int64, field string) string {
	return fmt.Sprintf("driver:%d:%s", driverID, field)
}
