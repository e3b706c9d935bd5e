package location

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"driverhub/internal/model"
)

type recordingPusher struct {
	mu     sync.Mutex
	points []model.GeoPoint
	err    error
}

func (p *recordingPusher) PushLocation(ctx context.Context, riderID int64, lat, lng float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.points = append(p.points, model.GeoPoint{Lat: lat, Lng: lng})
	return p.err
}

func (p *recordingPusher) pushed() []model.GeoPoint {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.GeoPoint, len(p.points))
	copy(out, p.points)
	return out
}

func statusConst(s model.DriverStatus) func() model.DriverStatus {
	return func() model.DriverStatus { return s }
}

func newTestReporter(p Pusher, l Locator, status model.DriverStatus) *Reporter {
	fallback := model.GeoPoint{Lat: 16.8661, Lng: 96.1951}
	return NewReporter(p, l, 42, fallback, time.Hour, time.Second, time.Second, statusConst(status), slog.Default())
}

func TestReportOncePushesSample(t *testing.T) {
	p := &recordingPusher{}
	r := newTestReporter(p, Fixed{Point: model.GeoPoint{Lat: 1, Lng: 2}}, model.StatusOffline)

	r.ReportOnce(context.Background())

	got := p.pushed()
	if len(got) != 1 || got[0].Lat != 1 || got[0].Lng != 2 {
		t.Fatalf("pushed: %v", got)
	}
}

func TestLocatorFailureFallsBack(t *testing.T) {
	p := &recordingPusher{}
	failing := Func(func(ctx context.Context) (model.GeoPoint, error) {
		return model.GeoPoint{}, errors.New("no fix")
	})
	r := newTestReporter(p, failing, model.StatusOffline)

	var sampled []model.GeoPoint
	r.OnSample = func(pt model.GeoPoint) { sampled = append(sampled, pt) }

	r.ReportOnce(context.Background())

	got := p.pushed()
	if len(got) != 1 || got[0] != r.Fallback {
		t.Fatalf("fallback not pushed: %v", got)
	}
	if len(sampled) != 1 || sampled[0] != r.Fallback {
		t.Fatalf("OnSample should see the fallback too: %v", sampled)
	}
}

func TestLoopGatedByStatus(t *testing.T) {
	p := &recordingPusher{}
	r := newTestReporter(p, Fixed{Point: model.GeoPoint{Lat: 1, Lng: 2}}, model.StatusOffline)
	r.Interval = 10 * time.Millisecond

	r.Start()
	defer r.Stop()
	time.Sleep(60 * time.Millisecond)

	if got := p.pushed(); len(got) != 0 {
		t.Fatalf("offline driver must not report, got %d pushes", len(got))
	}
}

func TestLoopReportsWhileOnline(t *testing.T) {
	p := &recordingPusher{}
	r := newTestReporter(p, Fixed{Point: model.GeoPoint{Lat: 1, Lng: 2}}, model.StatusOnline)

	r.Start()
	defer r.Stop()

	deadline := time.Now().Add(time.Second)
	for len(p.pushed()) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("online driver never reported")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPushFailureIsSwallowed(t *testing.T) {
	p := &recordingPusher{err: errors.New("backend down")}
	r := newTestReporter(p, Fixed{Point: model.GeoPoint{Lat: 1, Lng: 2}}, model.StatusOffline)

	r.ReportOnce(context.Background())
	if len(p.pushed()) != 1 {
		t.Fatalf("push should still be attempted")
	}
}
