package dispatch

import (
	"context"
	"testing"
	"time"

	"driverhub/internal/backend"
	"driverhub/internal/model"
	"driverhub/internal/session"
)

func f64(v float64) *float64 { return &v }

func TestIngestNormalizesPartialPayload(t *testing.T) {
	fb := &fakeBackend{}
	clk := newTestClock()
	e, _ := newTestEngine(t, fb, clk)
	e.ToggleOnline(context.Background())

	e.Ingest(backend.RawRequest{
		Type:      backend.NewOrderRequestType,
		OrderID:   "100",
		RequestID: "r1",
		Items:     []backend.RawItem{{Quantity: 2}},
	}, "push")

	snap := e.Snapshot()
	if len(snap.IncomingRequests) != 1 {
		t.Fatalf("queue: got %d, want 1", len(snap.IncomingRequests))
	}
	req := snap.IncomingRequests[0]
	if req.ID != "100" || req.RequestID != "r1" {
		t.Fatalf("ids: %+v", req)
	}
	if len(req.Items) != 1 || req.Items[0].Name != "Item" || req.Items[0].ID != "item-0" {
		t.Fatalf("item defaults: %+v", req.Items)
	}
	if req.EstimatedPickupTime != 5 || req.EstimatedDeliveryTime != 15 {
		t.Fatalf("eta defaults: %+v", req)
	}
	wantExpiry := clk.Now().Add(e.opts.OfferTTL)
	if !req.ExpiresAt.Equal(wantExpiry) {
		t.Fatalf("expiry default: got %v, want %v", req.ExpiresAt, wantExpiry)
	}
}

func TestIngestHonorsExplicitExpiry(t *testing.T) {
	fb := &fakeBackend{}
	clk := newTestClock()
	e, _ := newTestEngine(t, fb, clk)
	e.ToggleOnline(context.Background())

	at := clk.Now().Add(30 * time.Second).Format(time.RFC3339)
	raw := rawOffer("r1", "100")
	raw.ExpiresAt = at
	e.Ingest(raw, "poll")

	snap := e.Snapshot()
	if len(snap.IncomingRequests) != 1 {
		t.Fatalf("queue: got %d, want 1", len(snap.IncomingRequests))
	}
	if got := snap.IncomingRequests[0].ExpiresAt.Format(time.RFC3339); got != at {
		t.Fatalf("expiry: got %s, want %s", got, at)
	}
}

func TestIngestDropsAlreadyExpired(t *testing.T) {
	fb := &fakeBackend{}
	clk := newTestClock()
	e, _ := newTestEngine(t, fb, clk)
	e.ToggleOnline(context.Background())

	raw := rawOffer("r1", "100")
	raw.ExpiresAt = clk.Now().Add(-time.Second).Format(time.RFC3339)
	e.Ingest(raw, "push")

	if got := len(e.Snapshot().IncomingRequests); got != 0 {
		t.Fatalf("expired offer must not enter the queue, got %d", got)
	}
}

func TestIngestDropsWhileOffline(t *testing.T) {
	fb := &fakeBackend{}
	e, _ := newTestEngine(t, fb, newTestClock())

	e.Ingest(rawOffer("r1", "100"), "push")
	if got := len(e.Snapshot().IncomingRequests); got != 0 {
		t.Fatalf("offline driver must not see offers, got %d", got)
	}
}

func TestIngestDropsWhileBusy(t *testing.T) {
	fb := &fakeBackend{}
	e, _ := newTestEngine(t, fb, newTestClock())
	e.ToggleOnline(context.Background())
	e.Ingest(rawOffer("r1", "100"), "push")
	if err := e.AcceptOrder(context.Background(), "r1"); err != nil {
		t.Fatalf("accept: %v", err)
	}

	e.Ingest(rawOffer("r2", "101"), "poll")
	if got := len(e.Snapshot().IncomingRequests); got != 0 {
		t.Fatalf("busy driver must not see offers, got %d", got)
	}
}

func TestIngestMergesDuplicateFillingGaps(t *testing.T) {
	fb := &fakeBackend{}
	e, _ := newTestEngine(t, fb, newTestClock())
	e.ToggleOnline(context.Background())

	// Sparse push copy first.
	e.Ingest(backend.RawRequest{
		Type:      backend.NewOrderRequestType,
		OrderID:   "100",
		RequestID: "r1",
	}, "push")
	// Fuller poll copy of the same request.
	e.Ingest(backend.RawRequest{
		Type:              backend.NewOrderRequestType,
		OrderID:           "100",
		RequestID:         "r1",
		RestaurantName:    "Golden Bowl",
		RestaurantAddress: "5 Market Rd",
		RestaurantLat:     f64(16.8),
		RestaurantLng:     f64(96.1),
		CustomerName:      "Aye",
		DeliveryAddress:   "12 Main St",
		Distance:          f64(1.5),
		Items:             []backend.RawItem{{Name: "Noodles", Quantity: 2}},
	}, "poll")

	snap := e.Snapshot()
	if len(snap.IncomingRequests) != 1 {
		t.Fatalf("queue: got %d, want 1", len(snap.IncomingRequests))
	}
	req := snap.IncomingRequests[0]
	if req.Shop.Name != "Golden Bowl" || req.Shop.Address != "5 Market Rd" {
		t.Fatalf("shop fields not merged: %+v", req.Shop)
	}
	if req.Shop.Location == nil || req.Shop.Location.Lat != 16.8 {
		t.Fatalf("shop location not merged: %+v", req.Shop.Location)
	}
	if req.Customer.Name != "Aye" || len(req.Items) != 1 || req.Items[0].Name != "Noodles" {
		t.Fatalf("customer/items not merged: %+v", req)
	}
}

func TestIngestIgnoresOtherFrameTypes(t *testing.T) {
	fb := &fakeBackend{}
	e, _ := newTestEngine(t, fb, newTestClock())
	e.ToggleOnline(context.Background())

	e.HandleFrame([]byte(`{"type":"PING"}`))
	e.HandleFrame([]byte(`not json`))
	e.Ingest(backend.RawRequest{Type: backend.NewOrderRequestType}, "push") // no request_id

	if got := len(e.Snapshot().IncomingRequests); got != 0 {
		t.Fatalf("queue should stay empty, got %d", got)
	}
}

func TestSnapshotPrunesExpired(t *testing.T) {
	fb := &fakeBackend{}
	clk := newTestClock()
	e, _ := newTestEngine(t, fb, clk)
	e.ToggleOnline(context.Background())

	e.Ingest(rawOffer("r1", "100"), "push")
	if got := len(e.Snapshot().IncomingRequests); got != 1 {
		t.Fatalf("queue before expiry: got %d, want 1", got)
	}

	clk.Advance(2 * time.Minute)
	if got := len(e.Snapshot().IncomingRequests); got != 0 {
		t.Fatalf("queue after expiry: got %d, want 0", got)
	}
}

func TestPollLoopIngestsAndPrunes(t *testing.T) {
	fb := &fakeBackend{}
	clk := newTestClock()
	e := New(Options{
		DriverID:         7,
		RiderID:          42,
		Backend:          fb,
		Sessions:         session.NewMemory(),
		Clock:            clk,
		PollInterval:     20 * time.Millisecond,
		PollInitialDelay: 10 * time.Millisecond,
		PickupArmDelay:   time.Minute,
	})
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer e.Stop()

	ch := e.Subscribe()
	defer e.Unsubscribe(ch)

	waitQueue := func(want int, msg string) {
		t.Helper()
		deadline := time.After(2 * time.Second)
		for {
			select {
			case snap := <-ch:
				if len(snap.IncomingRequests) == want {
					return
				}
			case <-deadline:
				t.Fatalf("%s", msg)
			}
		}
	}

	fb.setFetched([]backend.RawRequest{rawOffer("r1", "100")})
	e.ToggleOnline(context.Background())
	waitQueue(1, "poll loop never ingested the fetched offer")

	// Once the offer ages past its TTL the next tick prunes it, even
	// with nothing else mutating the engine.
	fb.setFetched(nil)
	clk.Advance(2 * time.Minute)
	waitQueue(0, "poll tick never pruned the expired offer")
}

func TestGeofenceFromLocationSamples(t *testing.T) {
	fb := &fakeBackend{}
	e, _ := newTestEngine(t, fb, newTestClock())
	e.ToggleOnline(context.Background())

	shop := model.GeoPoint{Lat: 16.8661, Lng: 96.1951}
	raw := rawOffer("r1", "100")
	raw.RestaurantLat = f64(shop.Lat)
	raw.RestaurantLng = f64(shop.Lng)
	e.Ingest(raw, "push")

	// Roughly 1.1 km north of the shop.
	e.UpdateLocation(model.GeoPoint{Lat: shop.Lat + 0.01, Lng: shop.Lng})

	if err := e.AcceptOrder(context.Background(), "r1"); err != nil {
		t.Fatalf("accept: %v", err)
	}
	e.ArrivedAtShop()

	if e.Snapshot().ActiveOrder.IsWithinPickupRange {
		t.Fatalf("driver a kilometer away must be out of range")
	}

	// Pickup is refused out of range.
	e.PickupOrder()
	if e.Snapshot().ActiveOrder.Phase != model.PhasePickup {
		t.Fatalf("pickup must be a no-op out of range")
	}

	// A sample at the shop flips the flag.
	e.UpdateLocation(shop)
	if !e.Snapshot().ActiveOrder.IsWithinPickupRange {
		t.Fatalf("sample at the shop should enter range")
	}

	e.PickupOrder()
	if e.Snapshot().ActiveOrder.Phase != model.PhaseDropoff {
		t.Fatalf("pickup should succeed in range")
	}
}

func TestGeofenceTimerBackstop(t *testing.T) {
	fb := &fakeBackend{}
	e := New(Options{
		DriverID:         7,
		RiderID:          42,
		Backend:          fb,
		Sessions:         session.NewMemory(),
		Clock:            newTestClock(),
		PollInterval:     time.Hour,
		PollInitialDelay: time.Hour,
		PickupArmDelay:   20 * time.Millisecond,
	})
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer e.Stop()

	e.ToggleOnline(context.Background())
	raw := rawOffer("r1", "100")
	raw.RestaurantLat = f64(16.8661)
	raw.RestaurantLng = f64(96.1951)
	e.Ingest(raw, "push")
	if err := e.AcceptOrder(context.Background(), "r1"); err != nil {
		t.Fatalf("accept: %v", err)
	}

	// No location sample at all: out of range at arrival, flipped by the
	// timed check shortly after.
	e.ArrivedAtShop()
	if e.Snapshot().ActiveOrder.IsWithinPickupRange {
		t.Fatalf("no sample yet, should start out of range")
	}

	deadline := time.Now().Add(time.Second)
	for !e.Snapshot().ActiveOrder.IsWithinPickupRange {
		if time.Now().After(deadline) {
			t.Fatalf("timed range check never fired")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
