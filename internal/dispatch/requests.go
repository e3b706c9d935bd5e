package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"driverhub/internal/backend"
	"driverhub/internal/metrics"
	"driverhub/internal/model"
)

// HandleFrame consumes one raw socket frame. Malformed payloads are
// dropped silently; only NEW_ORDER_REQUEST frames reach the queue.
func (e *Engine) HandleFrame(data []byte) {
	var raw backend.RawRequest
	if err := json.Unmarshal(data, &raw); err != nil {
		metrics.RequestsDropped.WithLabelValues("malformed").Inc()
		return
	}
	e.Ingest(raw, "push")
}

// Ingest normalizes a raw offer from either channel and merges it into the
// queue. One routine for both paths keeps push and poll from ever
// diverging in normalization rules. Merging is keyed by requestId and is
// commutative and idempotent: arrival order between channels does not
// affect the final queue, and a later copy fills fields the first one
// lacked.
func (e *Engine) Ingest(raw backend.RawRequest, source string) {
	if raw.Type != "" && raw.Type != backend.NewOrderRequestType {
		metrics.RequestsDropped.WithLabelValues("ignored").Inc()
		return
	}
	if raw.RequestID.String() == "" {
		metrics.RequestsDropped.WithLabelValues("malformed").Inc()
		return
	}

	e.mu.Lock()

	// New offers are not surfaced while offline or mid-delivery.
	if e.status != model.StatusOnline || e.activeOrder != nil {
		e.mu.Unlock()
		metrics.RequestsDropped.WithLabelValues("inactive").Inc()
		return
	}

	req := e.normalize(raw)
	if req.Expired(e.opts.Clock.Now()) {
		e.mu.Unlock()
		metrics.RequestsDropped.WithLabelValues("expired").Inc()
		return
	}

	merged := false
	for i := range e.requests {
		if e.requests[i].RequestID == req.RequestID {
			mergeRequest(&e.requests[i], req)
			metrics.RequestsDropped.WithLabelValues("duplicate").Inc()
			merged = true
			break
		}
	}
	if !merged {
		e.requests = append(e.requests, req)
		e.setQueueGauge()
		metrics.RequestsIngested.WithLabelValues(source).Inc()
		e.log.Info("offer queued", "requestId", req.RequestID, "orderId", req.ID, "source", source)
	}

	out := e.snapshotLocked()
	e.mu.Unlock()
	e.broker.publish(out)
}

// normalize maps the backend payload into the canonical offer shape,
// tolerating partial fields: names and addresses default to empty,
// distances to zero, the expiry to now + TTL.
func (e *Engine) normalize(raw backend.RawRequest) model.DeliveryRequest {
	now := e.opts.Clock.Now()

	items := make([]model.OrderItem, 0, len(raw.Items))
	for i, it := range raw.Items {
		name := it.Name
		if name == "" {
			name = "Item"
		}
		items = append(items, model.OrderItem{
			ID:       fmt.Sprintf("item-%d", i),
			Name:     name,
			Quantity: it.Quantity,
		})
	}

	distance := 0.0
	if raw.Distance != nil {
		distance = *raw.Distance
	}
	deliveryDistance := distance
	if raw.DistanceToCustomer != nil {
		deliveryDistance = *raw.DistanceToCustomer
	}

	shop := model.Shop{
		ID:       raw.OrderID.String(),
		Name:     raw.RestaurantName,
		Address:  raw.RestaurantAddress,
		Distance: distance,
	}
	if raw.RestaurantLat != nil && raw.RestaurantLng != nil {
		shop.Location = &model.GeoPoint{Lat: *raw.RestaurantLat, Lng: *raw.RestaurantLng}
	}

	expiresAt := now.Add(e.opts.OfferTTL)
	if raw.ExpiresAt != "" {
		if t, err := time.Parse(time.RFC3339, raw.ExpiresAt); err == nil {
			expiresAt = t
		}
	}

	return model.DeliveryRequest{
		ID:        raw.OrderID.String(),
		RequestID: raw.RequestID.String(),
		Shop:      shop,
		Items:     items,
		Customer: model.Customer{
			Name:    raw.CustomerName,
			Address: raw.DeliveryAddress,
		},
		DeliveryDistance:      deliveryDistance,
		EstimatedPickupTime:   5,
		EstimatedDeliveryTime: 15,
		ExpiresAt:             expiresAt,
		CreatedAt:             now,
	}
}

// mergeRequest fills fields of dst that src provided and dst lacks.
func mergeRequest(dst *model.DeliveryRequest, src model.DeliveryRequest) {
	if dst.ID == "" {
		dst.ID = src.ID
	}
	if dst.Shop.Name == "" {
		dst.Shop.Name = src.Shop.Name
	}
	if dst.Shop.Address == "" {
		dst.Shop.Address = src.Shop.Address
	}
	if dst.Shop.Distance == 0 {
		dst.Shop.Distance = src.Shop.Distance
	}
	if dst.Shop.Location == nil {
		dst.Shop.Location = src.Shop.Location
	}
	if len(dst.Items) == 0 {
		dst.Items = src.Items
	}
	if dst.Customer.Name == "" {
		dst.Customer.Name = src.Customer.Name
	}
	if dst.Customer.Address == "" {
		dst.Customer.Address = src.Customer.Address
	}
	if dst.DeliveryDistance == 0 {
		dst.DeliveryDistance = src.DeliveryDistance
	}
}

// pollLoop is the fallback half of the offer channel: the socket is
// best-effort, polling guarantees eventual consistency of the same data.
func (e *Engine) pollLoop(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(e.opts.PollInitialDelay):
	}
	e.pollOnce(ctx)

	ticker := time.NewTicker(e.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.pollOnce(ctx)
		}
	}
}

func (e *Engine) pollOnce(ctx context.Context) {
	raws, err := e.opts.Backend.FetchRequests(ctx, e.opts.RiderID)
	if err != nil {
		e.log.Debug("poll failed", "err", err)
		return
	}
	for _, raw := range raws {
		e.Ingest(raw, "poll")
	}

	e.mu.Lock()
	before := len(e.requests)
	e.pruneExpiredLocked()
	changed := len(e.requests) != before
	out := e.snapshotLocked()
	e.mu.Unlock()
	if changed {
		e.broker.publish(out)
	}
}

func (e *Engine) pruneExpiredLocked() {
	if len(e.requests) == 0 {
		return
	}
	now := e.opts.Clock.Now()
	kept := e.requests[:0]
	for _, r := range e.requests {
		if r.Expired(now) {
			metrics.RequestsDropped.WithLabelValues("expired").Inc()
			continue
		}
		kept = append(kept, r)
	}
	e.requests = kept
	e.setQueueGauge()
}
