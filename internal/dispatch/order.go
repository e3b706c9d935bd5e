package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"driverhub/internal/model"
)

// AcceptOrder pursues one offer. The backend must confirm before any local
// state changes; on failure the queue and status are left untouched and
// the error is returned so the UI can surface it. On success the offer is
// promoted to an active order in pickup phase, the driver goes busy and
// the whole queue is cleared — only one order may be pursued at a time.
// The backend marks the rider busy itself, so no status mirror is sent.
// When the driver toggles away or the offer vanishes during the
// round-trip, the accept is abandoned and a compensating reject is sent.
func (e *Engine) AcceptOrder(ctx context.Context, requestID string) error {
	e.mu.Lock()
	if e.activeOrder != nil {
		e.mu.Unlock()
		return ErrOrderActive
	}
	var req *model.DeliveryRequest
	for i := range e.requests {
		if e.requests[i].RequestID == requestID {
			r := e.requests[i]
			req = &r
			break
		}
	}
	e.mu.Unlock()
	if req == nil {
		return ErrUnknownRequest
	}

	if err := e.opts.Backend.Respond(ctx, requestID, "accept", e.opts.RiderID); err != nil {
		return fmt.Errorf("accept request %s: %w", requestID, err)
	}

	e.mu.Lock()
	if e.activeOrder != nil {
		// Another accept won while we were in flight.
		e.mu.Unlock()
		return ErrOrderActive
	}
	stillQueued := false
	for i := range e.requests {
		if e.requests[i].RequestID == requestID {
			stillQueued = true
			break
		}
	}
	if e.status != model.StatusOnline || !stillQueued {
		// The driver toggled away, or the offer was declined or expired,
		// while the round-trip was in flight. The backend has already
		// recorded the accept, so undo it instead of materializing an
		// order the local state machine no longer allows.
		e.mu.Unlock()
		go e.rejectAccepted(requestID)
		return ErrUnknownRequest
	}
	e.activeOrder = &model.ActiveOrder{
		ID:       req.ID,
		Phase:    model.PhasePickup,
		Shop:     req.Shop,
		Items:    req.Items,
		Customer: req.Customer,
	}
	e.status = model.StatusBusy
	e.requests = nil
	e.setQueueGauge()
	e.persistLocked()
	out := e.snapshotLocked()
	e.mu.Unlock()

	e.log.Info("order accepted", "orderId", req.ID, "requestId", requestID)
	e.syncFeed()
	e.broker.publish(out)
	return nil
}

// rejectAccepted undoes a backend-side accept that local state could no
// longer honor. Best-effort, same as any other status mirror.
func (e *Engine) rejectAccepted(requestID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.opts.Backend.Respond(ctx, requestID, "reject", e.opts.RiderID); err != nil {
		e.log.Warn("compensating reject failed", "requestId", requestID, "err", err)
	}
}

// DeclineOrder rejects an offer. The reject call is best-effort and the
// local removal is unconditional — the offer disappears even when the
// network fails. The backend error is still returned for surfacing.
func (e *Engine) DeclineOrder(ctx context.Context, requestID string) error {
	e.mu.Lock()
	found := false
	kept := e.requests[:0]
	for _, r := range e.requests {
		if r.RequestID == requestID {
			found = true
			continue
		}
		kept = append(kept, r)
	}
	e.requests = kept
	e.setQueueGauge()
	out := e.snapshotLocked()
	e.mu.Unlock()

	if !found {
		return nil
	}
	e.broker.publish(out)
	e.log.Info("order declined", "requestId", requestID)

	if err := e.opts.Backend.Respond(ctx, requestID, "reject", e.opts.RiderID); err != nil {
		return fmt.Errorf("decline request %s: %w", requestID, err)
	}
	return nil
}

// ArrivedAtShop marks arrival at the pickup location. Valid only during
// pickup with no prior arrival; duplicate calls are no-ops. The pickup
// range flag is computed from the last reported position when the offer
// carried shop coordinates; otherwise a timed check stands in, so the flag
// is set immediately or within the configured arm delay.
func (e *Engine) ArrivedAtShop() {
	e.mu.Lock()
	o := e.activeOrder
	if o == nil || o.Phase != model.PhasePickup || o.ArrivedAtShopAt != nil {
		e.mu.Unlock()
		return
	}
	now := e.opts.Clock.Now()
	o.ArrivedAtShopAt = &now
	o.IsWithinPickupRange = e.withinPickupRangeLocked(o)
	e.armPickupRangeLocked()
	e.persistLocked()
	out := e.snapshotLocked()
	e.mu.Unlock()
	e.broker.publish(out)
}

// PickupOrder transitions pickup → dropoff. A no-op unless the driver has
// arrived and is within pickup range.
func (e *Engine) PickupOrder() {
	e.mu.Lock()
	o := e.activeOrder
	if o == nil || o.Phase != model.PhasePickup || o.ArrivedAtShopAt == nil || !o.IsWithinPickupRange {
		e.mu.Unlock()
		return
	}
	now := e.opts.Clock.Now()
	o.Phase = model.PhaseDropoff
	o.PickedUpAt = &now
	if e.armTimer != nil {
		e.armTimer.Stop()
		e.armTimer = nil
	}
	e.persistLocked()
	out := e.snapshotLocked()
	e.mu.Unlock()
	e.log.Info("order picked up", "orderId", o.ID)
	e.broker.publish(out)
}

// CompleteOrder is terminal: the order and chat are discarded and the
// driver returns online, re-enabling the offer channels. The completed
// delivery is appended to the history log best-effort.
func (e *Engine) CompleteOrder() {
	e.mu.Lock()
	done := e.activeOrder
	now := e.opts.Clock.Now()
	e.clearOrderLocked()
	e.messages = nil
	e.status = model.StatusOnline
	e.persistLocked()
	out := e.snapshotLocked()
	e.mu.Unlock()

	if done != nil {
		e.log.Info("order completed", "orderId", done.ID)
		e.appendHistory(done, now)
	}
	e.syncFeed()
	e.broker.publish(out)
}

// SendMessage appends a driver-authored chat entry. Purely local; no
// network call is modeled at this layer.
func (e *Engine) SendMessage(content string) model.Message {
	msg := model.Message{
		ID:        uuid.New().String(),
		SenderID:  "driver",
		Content:   content,
		Timestamp: e.opts.Clock.Now(),
		IsDriver:  true,
	}
	e.mu.Lock()
	e.messages = append(e.messages, msg)
	out := e.snapshotLocked()
	e.mu.Unlock()
	e.broker.publish(out)
	return msg
}

// UpdateLocation records the latest device position and refreshes the
// pickup geofence while an arrived pickup-phase order has shop
// coordinates.
func (e *Engine) UpdateLocation(pt model.GeoPoint) {
	e.mu.Lock()
	p := pt
	e.lastLocation = &p
	o := e.activeOrder
	if o == nil || o.Phase != model.PhasePickup || o.ArrivedAtShopAt == nil || o.IsWithinPickupRange {
		e.mu.Unlock()
		return
	}
	if !e.withinPickupRangeLocked(o) {
		e.mu.Unlock()
		return
	}
	o.IsWithinPickupRange = true
	if e.armTimer != nil {
		e.armTimer.Stop()
		e.armTimer = nil
	}
	e.persistLocked()
	out := e.snapshotLocked()
	e.mu.Unlock()
	e.broker.publish(out)
}

// withinPickupRangeLocked is the real geofence: distance from the last
// reported position to the shop against the configured radius. Without
// shop coordinates the check is optimistically true, matching the
// behavior this engine replaces.
func (e *Engine) withinPickupRangeLocked(o *model.ActiveOrder) bool {
	if o.Shop.Location == nil {
		return true
	}
	if e.lastLocation == nil {
		return false
	}
	return model.HaversineM(*e.lastLocation, *o.Shop.Location) <= e.opts.PickupRadiusM
}

// armPickupRangeLocked schedules the timed range check for an arrived
// order still outside range, so the flag matures even without fresh
// location samples. The timer is cancelled whenever the order changes.
func (e *Engine) armPickupRangeLocked() {
	o := e.activeOrder
	if o == nil || o.Phase != model.PhasePickup || o.ArrivedAtShopAt == nil || o.IsWithinPickupRange {
		return
	}
	if e.armTimer != nil {
		e.armTimer.Stop()
	}
	orderID := o.ID
	e.armTimer = time.AfterFunc(e.opts.PickupArmDelay, func() {
		e.mu.Lock()
		o := e.activeOrder
		if o == nil || o.ID != orderID || o.Phase != model.PhasePickup || o.ArrivedAtShopAt == nil || o.IsWithinPickupRange {
			e.mu.Unlock()
			return
		}
		o.IsWithinPickupRange = true
		e.armTimer = nil
		e.persistLocked()
		out := e.snapshotLocked()
		e.mu.Unlock()
		e.broker.publish(out)
	})
}

func (e *Engine) clearOrderLocked() {
	e.activeOrder = nil
	if e.armTimer != nil {
		e.armTimer.Stop()
		e.armTimer = nil
	}
}

func (e *Engine) appendHistory(o *model.ActiveOrder, completedAt time.Time) {
	if e.opts.History == nil {
		return
	}
	rec := model.DeliveryRecord{
		ID:           uuid.New().String(),
		OrderID:      o.ID,
		ShopName:     o.Shop.Name,
		CustomerName: o.Customer.Name,
		Distance:     o.Shop.Distance,
		PickedUpAt:   o.PickedUpAt,
		CompletedAt:  completedAt,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := e.opts.History.Append(ctx, e.opts.RiderID, rec); err != nil {
			e.log.Warn("history append failed", "orderId", rec.OrderID, "err", err)
		}
	}()
}
