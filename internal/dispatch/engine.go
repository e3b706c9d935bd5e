package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"driverhub/internal/backend"
	"driverhub/internal/history"
	"driverhub/internal/metrics"
	"driverhub/internal/model"
	"driverhub/internal/session"
)

var (
	// ErrUnknownRequest is returned when the offer is no longer in the queue.
	ErrUnknownRequest = errors.New("dispatch: unknown request")
	// ErrOrderActive is returned when an accept races an existing order.
	ErrOrderActive = errors.New("dispatch: an order is already active")
)

// Backend is the slice of the REST client the engine calls.
type Backend interface {
	UpdateStatus(ctx context.Context, riderID int64, status string) error
	Respond(ctx context.Context, requestID string, action string, riderID int64) error
	FetchRequests(ctx context.Context, riderID int64) ([]backend.RawRequest, error)
}

// Feed is the push half of the offer channel: a socket opened while the
// driver is online and closed on any other status.
type Feed interface {
	Start()
	Close()
}

// OneShotReporter is the "going online" location push.
type OneShotReporter interface {
	ReportOnce(ctx context.Context)
}

// Snapshot is the engine state handed to subscribers and the HTTP surface.
type Snapshot struct {
	Status           model.DriverStatus      `json:"status"`
	Vehicle          model.VehicleType       `json:"vehicle"`
	ShiftStartTime   *time.Time              `json:"shiftStartTime,omitempty"`
	IncomingRequests []model.DeliveryRequest `json:"incomingRequests"`
	ActiveOrder      *model.ActiveOrder      `json:"activeOrder,omitempty"`
	Messages         []model.Message         `json:"messages"`
}

// Options configures an Engine. Backend and Sessions are required; Feed,
// Reporter and History are optional collaborators.
type Options struct {
	DriverID int64
	RiderID  int64

	Backend  Backend
	Sessions session.Store
	History  history.Store
	Reporter OneShotReporter

	// NewFeed builds the push socket around the engine's frame handler.
	// Nil disables the push path (polling still runs).
	NewFeed func(onFrame func([]byte)) Feed

	// BackendRiderStatus is the rider status reported at sign-in. It seeds
	// the state machine only when no locally saved status exists.
	BackendRiderStatus string

	PollInterval     time.Duration
	PollInitialDelay time.Duration
	OfferTTL         time.Duration
	PickupRadiusM    float64
	PickupArmDelay   time.Duration

	Clock Clock
	Log   *slog.Logger
}

// Engine is the dispatch coordinator: it owns the driver status machine,
// the deduplicated offer queue, the active-order phase machine and the
// session persistence. It is the single writer of all of that state; every
// mutation is serialized through one mutex.
type Engine struct {
	opts Options
	log  *slog.Logger

	mu           sync.Mutex
	status       model.DriverStatus
	vehicle      model.VehicleType
	shiftStart   *time.Time
	requests     []model.DeliveryRequest
	activeOrder  *model.ActiveOrder
	messages     []model.Message
	lastLocation *model.GeoPoint
	armTimer     *time.Timer
	hydrated     bool

	feedMu     sync.Mutex
	feed       Feed
	pollCancel context.CancelFunc

	broker *broker
}

// New constructs an engine for one authenticated driver session.
func New(opts Options) *Engine {
	if opts.Clock == nil {
		opts.Clock = RealClock{}
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 4 * time.Second
	}
	if opts.PollInitialDelay <= 0 {
		opts.PollInitialDelay = 500 * time.Millisecond
	}
	if opts.OfferTTL <= 0 {
		opts.OfferTTL = 60 * time.Second
	}
	if opts.PickupArmDelay <= 0 {
		opts.PickupArmDelay = 3 * time.Second
	}
	if opts.PickupRadiusM <= 0 {
		opts.PickupRadiusM = 150
	}
	return &Engine{
		opts:    opts,
		log:     opts.Log.With("component", "dispatch"),
		status:  model.StatusOffline,
		vehicle: model.VehicleBike,
		broker:  newBroker(),
	}
}

// SetReporter attaches the one-shot location reporter. Split from New
// because the reporter needs the engine's status getter first.
func (e *Engine) SetReporter(r OneShotReporter) {
	e.opts.Reporter = r
}

// Start hydrates persisted state and resumes whatever the driver was doing:
// an online driver gets the offer channels back, a busy driver resumes the
// active order in its saved phase. Locally saved status wins over the
// backend-reported one.
func (e *Engine) Start(ctx context.Context) error {
	snap, err := e.opts.Sessions.Load(ctx, e.opts.DriverID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	if snap.Status.Valid() && snap.Status != "" {
		e.status = snap.Status
	} else {
		e.status = model.StatusFromBackend(e.opts.BackendRiderStatus)
	}
	if snap.Vehicle != "" {
		e.vehicle = snap.Vehicle
	}
	e.shiftStart = snap.ShiftStart
	e.activeOrder = snap.ActiveOrder
	if e.activeOrder != nil && e.status != model.StatusBusy {
		// An order implies busy; trust the order over a stale status key.
		e.status = model.StatusBusy
	}
	e.hydrated = true
	e.armPickupRangeLocked()
	out := e.snapshotLocked()
	e.mu.Unlock()

	e.syncFeed()
	e.broker.publish(out)
	return nil
}

// Stop tears down channels, timers and subscribers.
func (e *Engine) Stop() {
	e.stopFeed()
	e.mu.Lock()
	if e.armTimer != nil {
		e.armTimer.Stop()
		e.armTimer = nil
	}
	e.mu.Unlock()
}

// Subscribe returns a channel receiving a snapshot after every mutation.
func (e *Engine) Subscribe() chan Snapshot {
	return e.broker.subscribe()
}

// Unsubscribe releases a subscriber channel.
func (e *Engine) Unsubscribe(ch chan Snapshot) {
	e.broker.unsubscribe(ch)
}

// Snapshot returns a copy of the current state. Expired offers are pruned
// on the way out.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// Status returns the current availability state.
func (e *Engine) Status() model.DriverStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

func (e *Engine) snapshotLocked() Snapshot {
	e.pruneExpiredLocked()

	reqs := make([]model.DeliveryRequest, len(e.requests))
	copy(reqs, e.requests)
	msgs := make([]model.Message, len(e.messages))
	copy(msgs, e.messages)

	snap := Snapshot{
		Status:           e.status,
		Vehicle:          e.vehicle,
		IncomingRequests: reqs,
		Messages:         msgs,
	}
	if e.shiftStart != nil {
		t := *e.shiftStart
		snap.ShiftStartTime = &t
	}
	if e.activeOrder != nil {
		o := *e.activeOrder
		snap.ActiveOrder = &o
	}
	return snap
}

// persistLocked mirrors the durable slice of state to the session store.
// Failures are logged, never surfaced: a broken cache must not block the
// driver.
func (e *Engine) persistLocked() {
	if !e.hydrated {
		return
	}
	snap := session.Snapshot{
		Status:  e.status,
		Vehicle: e.vehicle,
	}
	if e.shiftStart != nil {
		t := *e.shiftStart
		snap.ShiftStart = &t
	}
	if e.activeOrder != nil {
		o := *e.activeOrder
		snap.ActiveOrder = &o
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := e.opts.Sessions.Save(ctx, e.opts.DriverID, snap); err != nil {
		e.log.Warn("session save failed", "err", err)
	}
}

// setQueueGauge must be called whenever e.requests changes length.
func (e *Engine) setQueueGauge() {
	metrics.IncomingRequests.Set(float64(len(e.requests)))
}
