package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hamed0406/fleetcheck/internal/domain"
	"github.com/hamed0406/fleetcheck/internal/notify"
	"github.com/hamed0406/fleetcheck/internal/repo/memory"
)

// --- fakes ---

type checkFunc func(ctx context.Context, kind domain.Kind) domain.Result

func (f checkFunc) Check(ctx context.Context, kind domain.Kind) domain.Result { return f(ctx, kind) }

func alwaysOK() checkFunc {
	return func(ctx context.Context, kind domain.Kind) domain.Result {
		return domain.Result{Success: true, Code: 200, ResponseTimeUS: 1000, Message: "ok"}
	}
}

type fakeMetrics struct {
	mu    sync.Mutex
	calls map[uuid.UUID]int
	err   error
}

func (f *fakeMetrics) CalculateToday(ctx context.Context, id uuid.UUID) (domain.ServiceMetric, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[uuid.UUID]int)
	}
	f.calls[id]++
	return domain.ServiceMetric{}, f.err
}

type failingResults struct {
	*memory.Store
}

func (failingResults) Append(ctx context.Context, r *domain.Result) error {
	return errors.New("disk full")
}

type failingDue struct {
	*memory.Store
}

func (failingDue) Due(ctx context.Context, now time.Time) ([]domain.Service, error) {
	return nil, errors.New("connection refused")
}

var tickStart = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newScheduler(t *testing.T, chk checkFunc) (*Scheduler, *memory.Store, *fakeMetrics) {
	t.Helper()
	st := memory.New()
	fm := &fakeMetrics{}
	s := New(zap.NewNop(), st, chk, fm, nil, time.Millisecond, 0)
	s.Now = func() time.Time { return tickStart }
	return s, st, fm
}

func addService(t *testing.T, st *memory.Store, name string, interval time.Duration, next time.Time) *domain.Service {
	t.Helper()
	svc := &domain.Service{
		Name:     name,
		Kind:     &domain.HTTPCheck{URL: "https://" + name + ".example.com", Method: "GET", TimeoutSeconds: 1},
		Interval: interval,
		NextRun:  next,
	}
	if err := st.Create(context.Background(), svc); err != nil {
		t.Fatal(err)
	}
	return svc
}

// --- tests ---

func TestScheduler_ChecksDueServiceAndAdvancesNextRun(t *testing.T) {
	s, st, fm := newScheduler(t, alwaysOK())
	ctx := context.Background()
	svc := addService(t, st, "api", 30*time.Second, tickStart)
	later := addService(t, st, "later", 30*time.Second, tickStart.Add(time.Second))

	if n := s.runOnce(ctx); n != 1 {
		t.Fatalf("processed %d, want 1", n)
	}

	results, _ := st.Recent(ctx, svc.ID, 0)
	if len(results) != 1 || !results[0].Success || results[0].ServiceID != svc.ID {
		t.Fatalf("unexpected results: %+v", results)
	}
	got, _ := st.Get(ctx, svc.ID)
	if got.NextRun.Before(tickStart.Add(30 * time.Second)) {
		t.Fatalf("next_run %v is less than one interval after tick start", got.NextRun)
	}
	if fm.calls[svc.ID] != 1 {
		t.Fatalf("metrics recomputed %d times", fm.calls[svc.ID])
	}
	if notYet, _ := st.Recent(ctx, later.ID, 0); len(notYet) != 0 {
		t.Fatal("service not yet due was checked")
	}
}

func TestScheduler_NewServiceIsImmediatelyDue(t *testing.T) {
	s, st, _ := newScheduler(t, alwaysOK())
	s.Now = time.Now
	svc := &domain.Service{Name: "fresh", Kind: &domain.TCPCheck{Host: "h", Port: 1, TimeoutSeconds: 1}, Interval: 30 * time.Second}
	_ = st.Create(context.Background(), svc)

	if n := s.runOnce(context.Background()); n != 1 {
		t.Fatalf("fresh service should be due, processed %d", n)
	}
}

func TestScheduler_NextRunNeverDecreases(t *testing.T) {
	s, st, _ := newScheduler(t, alwaysOK())
	ctx := context.Background()
	// fell far behind
	svc := addService(t, st, "behind", time.Minute, tickStart.Add(-time.Hour))

	s.runOnce(ctx)
	first, _ := st.Get(ctx, svc.ID)
	if !first.NextRun.Equal(tickStart.Add(time.Minute)) {
		t.Fatalf("next_run should be now+interval, got %v", first.NextRun)
	}

	s.Now = func() time.Time { return tickStart.Add(2 * time.Minute) }
	s.runOnce(ctx)
	second, _ := st.Get(ctx, svc.ID)
	if second.NextRun.Before(first.NextRun) {
		t.Fatalf("next_run went backwards: %v -> %v", first.NextRun, second.NextRun)
	}
}

func TestScheduler_StoreErrorsDoNotBlockAdvance(t *testing.T) {
	s, st, fm := newScheduler(t, alwaysOK())
	fm.err = errors.New("metrics down")
	s.Results = failingResults{st}
	ctx := context.Background()

	a := addService(t, st, "a", time.Minute, tickStart)
	b := addService(t, st, "b", time.Minute, tickStart)

	if n := s.runOnce(ctx); n != 2 {
		t.Fatalf("processed %d, want 2", n)
	}
	for _, id := range []uuid.UUID{a.ID, b.ID} {
		got, _ := st.Get(ctx, id)
		if !got.NextRun.After(tickStart) {
			t.Fatalf("next_run not advanced for %s", id)
		}
		if fm.calls[id] != 1 {
			t.Fatalf("metrics should still be attempted for %s", id)
		}
	}
}

func TestScheduler_FailedCheckStillRecomputesMetrics(t *testing.T) {
	down := checkFunc(func(ctx context.Context, kind domain.Kind) domain.Result {
		return domain.Result{Message: "connection refused"}
	})
	s, st, fm := newScheduler(t, down)
	svc := addService(t, st, "down", time.Minute, tickStart)

	s.runOnce(context.Background())
	res, _ := st.Recent(context.Background(), svc.ID, 0)
	if len(res) != 1 || res[0].Success || res[0].Code != 0 {
		t.Fatalf("failure should be stored as data: %+v", res)
	}
	if fm.calls[svc.ID] != 1 {
		t.Fatal("metrics must be recomputed after a failed check")
	}
}

func TestScheduler_DueQueryFailureSkipsTick(t *testing.T) {
	var calls atomic.Int32
	s, st, _ := newScheduler(t, func(ctx context.Context, kind domain.Kind) domain.Result {
		calls.Add(1)
		return domain.Result{Success: true}
	})
	addService(t, st, "x", time.Minute, tickStart)
	s.Services = failingDue{st}

	if n := s.runOnce(context.Background()); n != 0 {
		t.Fatalf("processed %d, want 0", n)
	}
	if calls.Load() != 0 {
		t.Fatal("no check should run when the due query fails")
	}
}

func TestScheduler_ChecksRunConcurrently(t *testing.T) {
	const n = 4
	var started sync.WaitGroup
	started.Add(n)
	release := make(chan struct{})

	s, st, _ := newScheduler(t, func(ctx context.Context, kind domain.Kind) domain.Result {
		started.Done()
		<-release
		return domain.Result{Success: true}
	})
	for i := 0; i < n; i++ {
		addService(t, st, uuid.NewString(), time.Minute, tickStart)
	}

	done := make(chan int)
	go func() { done <- s.runOnce(context.Background()) }()

	allStarted := make(chan struct{})
	go func() { started.Wait(); close(allStarted) }()
	select {
	case <-allStarted:
	case <-time.After(2 * time.Second):
		t.Fatal("checks of one tick did not run concurrently")
	}

	select {
	case <-done:
		t.Fatal("tick finished before its checks completed")
	default:
	}
	close(release)
	if got := <-done; got != n {
		t.Fatalf("processed %d, want %d", got, n)
	}
}

func TestScheduler_ConcurrencyLimit(t *testing.T) {
	var inFlight, peak atomic.Int32
	s, st, _ := newScheduler(t, func(ctx context.Context, kind domain.Kind) domain.Result {
		cur := inFlight.Add(1)
		for {
			p := peak.Load()
			if cur <= p || peak.CompareAndSwap(p, cur) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		inFlight.Add(-1)
		return domain.Result{Success: true}
	})
	s.Concurrency = 2
	for i := 0; i < 6; i++ {
		addService(t, st, uuid.NewString(), time.Minute, tickStart)
	}

	s.runOnce(context.Background())
	if peak.Load() > 2 {
		t.Fatalf("peak concurrency %d exceeds limit", peak.Load())
	}
}

func TestScheduler_FullEventChannelDrops(t *testing.T) {
	s, st, _ := newScheduler(t, alwaysOK())
	events := make(chan notify.Event, 1)
	s.Events = events
	for i := 0; i < 3; i++ {
		addService(t, st, uuid.NewString(), time.Minute, tickStart)
	}

	done := make(chan struct{})
	go func() { s.runOnce(context.Background()); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("a full notification channel blocked the tick")
	}
	if len(events) != 1 {
		t.Fatalf("buffer should hold exactly one event, has %d", len(events))
	}
}

func TestScheduler_RunStopsOnCancel(t *testing.T) {
	s, st, _ := newScheduler(t, alwaysOK())
	s.Now = time.Now
	svc := &domain.Service{Name: "loop", Kind: &domain.TCPCheck{Host: "h", Port: 1, TimeoutSeconds: 1}, Interval: time.Hour}
	_ = st.Create(context.Background(), svc)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { s.Run(ctx); close(done) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		if res, _ := st.Recent(context.Background(), svc.ID, 0); len(res) == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("first tick never ran")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	// interval is an hour, so only one check should have happened
	if res, _ := st.Recent(context.Background(), svc.ID, 0); len(res) != 1 {
		t.Fatalf("service checked %d times", len(res))
	}
}
