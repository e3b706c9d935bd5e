package location

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"driverhub/internal/metrics"
	"driverhub/internal/model"
)

// Pusher is the backend call the reporter needs.
type Pusher interface {
	PushLocation(ctx context.Context, riderID int64, lat, lng float64) error
}

// Reporter periodically samples the device position and pushes it to the
// backend while the driver is online or busy. Fire-and-forget: sampling
// failures fall back to a fixed coordinate and push failures are swallowed.
type Reporter struct {
	Pusher   Pusher
	Locator  Locator
	RiderID  int64
	Fallback model.GeoPoint

	Interval      time.Duration
	SampleTimeout time.Duration
	OnceTimeout   time.Duration

	// StatusFn gates the periodic loop; OnSample (optional) receives every
	// reported point, fallback included, for the pickup geofence.
	StatusFn func() model.DriverStatus
	OnSample func(model.GeoPoint)

	Log *slog.Logger

	limiter  *rate.Limiter
	stop     chan struct{}
	stopOnce sync.Once
}

// NewReporter wires a reporter with the given cadence. The limiter bounds
// report frequency when status flaps or one-shot reports pile onto the loop.
func NewReporter(p Pusher, l Locator, riderID int64, fallback model.GeoPoint, interval, sampleTimeout, onceTimeout time.Duration, statusFn func() model.DriverStatus, log *slog.Logger) *Reporter {
	return &Reporter{
		Pusher:        p,
		Locator:       l,
		RiderID:       riderID,
		Fallback:      fallback,
		Interval:      interval,
		SampleTimeout: sampleTimeout,
		OnceTimeout:   onceTimeout,
		StatusFn:      statusFn,
		Log:           log,
		limiter:       rate.NewLimiter(rate.Every(time.Second), 2),
		stop:          make(chan struct{}),
	}
}

// Start launches the background loop. The first report fires immediately
// when the driver is already active.
func (r *Reporter) Start() {
	go func() {
		r.tick()
		ticker := time.NewTicker(r.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-r.stop:
				return
			case <-ticker.C:
				r.tick()
			}
		}
	}()
}

// Stop terminates the loop. Idempotent.
func (r *Reporter) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
}

// ReportOnce performs the one-shot "going online" report with the longer
// timeout. Best-effort: it never returns an error to the caller's flow.
func (r *Reporter) ReportOnce(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, r.OnceTimeout)
	defer cancel()
	r.report(ctx)
}

func (r *Reporter) tick() {
	st := r.StatusFn()
	if st != model.StatusOnline && st != model.StatusBusy {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.SampleTimeout)
	defer cancel()
	r.report(ctx)
}

func (r *Reporter) report(ctx context.Context) {
	if !r.limiter.Allow() {
		return
	}
	result := "ok"
	pt, err := r.Locator.Locate(ctx)
	if err != nil {
		pt = r.Fallback
		result = "fallback"
	}
	if r.OnSample != nil {
		r.OnSample(pt)
	}
	if err := r.Pusher.PushLocation(ctx, r.RiderID, pt.Lat, pt.Lng); err != nil {
		result = "error"
		r.Log.Debug("location push failed", "err", err)
	}
	metrics.LocationReports.WithLabelValues(result).Inc()
}
