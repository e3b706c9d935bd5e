package dispatch

import (
	"context"
	"time"

	"driverhub/internal/model"
)

// ToggleOnline flips between offline and online. Busy is never produced
// here: toggling while busy force-clears the active order and goes
// offline. Going online first performs the one-shot location report, then
// flips local state, then mirrors the status to the backend fire-and-forget
// — local state is optimistic and does not roll back on network failure.
func (e *Engine) ToggleOnline(ctx context.Context) {
	e.mu.Lock()
	cur := e.status
	e.mu.Unlock()

	next := model.StatusOffline
	if cur == model.StatusOffline {
		next = model.StatusOnline
	}

	if next == model.StatusOnline && e.opts.Reporter != nil {
		e.opts.Reporter.ReportOnce(ctx)
	}

	e.mu.Lock()
	e.status = next
	if next == model.StatusOnline {
		now := e.opts.Clock.Now()
		e.shiftStart = &now
	} else {
		e.shiftStart = nil
		e.clearOrderLocked()
		e.requests = nil
		e.setQueueGauge()
	}
	e.persistLocked()
	out := e.snapshotLocked()
	e.mu.Unlock()

	e.syncFeed()
	e.broker.publish(out)
	go e.mirrorStatus(next)
}

// SetVehicle records the driver's vehicle. Informational only.
func (e *Engine) SetVehicle(v model.VehicleType) {
	e.mu.Lock()
	e.vehicle = v
	e.persistLocked()
	out := e.snapshotLocked()
	e.mu.Unlock()
	e.broker.publish(out)
}

// mirrorStatus pushes the local status to the backend. Best-effort: a
// flaky network must not block the driver from toggling.
func (e *Engine) mirrorStatus(s model.DriverStatus) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.opts.Backend.UpdateStatus(ctx, e.opts.RiderID, s.BackendStatus()); err != nil {
		e.log.Warn("status mirror failed", "status", s, "err", err)
	}
}

// syncFeed reconciles the offer channels with the current status: both the
// socket and the poll loop run exactly while the driver is online. Must be
// called without e.mu held — closing the socket waits for its read loop,
// which may be inside Ingest.
func (e *Engine) syncFeed() {
	want := e.Status() == model.StatusOnline

	e.feedMu.Lock()
	defer e.feedMu.Unlock()

	if want && e.pollCancel == nil {
		ctx, cancel := context.WithCancel(context.Background())
		e.pollCancel = cancel
		if e.opts.NewFeed != nil {
			e.feed = e.opts.NewFeed(e.HandleFrame)
			e.feed.Start()
		}
		go e.pollLoop(ctx)
	}
	if !want && e.pollCancel != nil {
		e.pollCancel()
		e.pollCancel = nil
		if e.feed != nil {
			e.feed.Close()
			e.feed = nil
		}
	}
}

func (e *Engine) stopFeed() {
	e.feedMu.Lock()
	defer e.feedMu.Unlock()
	if e.pollCancel != nil {
		e.pollCancel()
		e.pollCancel = nil
	}
	if e.feed != nil {
		e.feed.Close()
		e.feed = nil
	}
}
