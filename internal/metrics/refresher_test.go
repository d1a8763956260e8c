package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/hamed0406/fleetcheck/internal/domain"
)

func TestRefresher_ImmediatePassThenStops(t *testing.T) {
	e, st := newEngine(t)
	ctx, cancel := context.WithCancel(context.Background())

	s := &domain.Service{Name: "svc", Kind: &domain.TCPCheck{Host: "h", Port: 1, TimeoutSeconds: 1}, Interval: time.Minute}
	if err := st.Create(ctx, s); err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		NewRefresher(e, time.Hour).Run(ctx)
		close(done)
	}()

	day := domain.DateOf(fixedNow)
	deadline := time.Now().Add(2 * time.Second)
	for {
		rows, _ := st.MetricsFor(context.Background(), s.ID, day, day)
		if len(rows) == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("refresher did not run its first pass")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("refresher did not stop")
	}
}

func TestNewRefresher_DefaultInterval(t *testing.T) {
	r := NewRefresher(&Engine{}, 0)
	if r.Interval != 5*time.Minute {
		t.Fatalf("interval = %v", r.Interval)
	}
}
