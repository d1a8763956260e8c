package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hamed0406/fleetcheck/internal/domain"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping Postgres integration test")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := New(ctx, dsn, zap.NewNop())
	if err != nil {
		t.Fatalf("New store: %v", err)
	}
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	// twice, to prove the schema is idempotent
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("Migrate again: %v", err)
	}
	t.Cleanup(store.Close)
	return store
}

func TestPostgresStore_ServiceLifecycle(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Microsecond)
	svc := &domain.Service{
		Name:      "api-" + uuid.NewString(),
		Kind:      &domain.HTTPCheck{URL: "https://example.com/health", Method: "GET", TimeoutSeconds: 5, MaxRetries: 3},
		Interval:  30 * time.Second,
		CreatedAt: now,
	}
	if err := store.Create(ctx, svc); err != nil {
		t.Fatalf("Create: %v", err)
	}
	t.Cleanup(func() { _ = store.Delete(context.Background(), svc.ID) })

	got, err := store.Get(ctx, svc.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Interval != 30*time.Second || got.Kind.Name() != domain.KindHTTP {
		t.Fatalf("round trip lost data: %+v", got)
	}

	due, err := store.Due(ctx, now)
	if err != nil {
		t.Fatalf("Due: %v", err)
	}
	if !containsService(due, svc.ID) {
		t.Fatalf("new service should be due")
	}

	if err := store.UpdateNextRun(ctx, svc.ID, now.Add(time.Hour)); err != nil {
		t.Fatalf("UpdateNextRun: %v", err)
	}
	due, _ = store.Due(ctx, now)
	if containsService(due, svc.ID) {
		t.Fatalf("service should no longer be due")
	}

	if err := store.Delete(ctx, svc.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get(ctx, svc.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestPostgresStore_ResultsAndMetrics(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	id := uuid.New()
	day := domain.DateOf(time.Now())
	start, end := day.Bounds()

	for _, at := range []time.Time{start, start.Add(time.Hour), end} {
		if err := store.Append(ctx, &domain.Result{ServiceID: id, Success: true, Code: 200, ResponseTimeUS: 1500, CreatedAt: at}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	in, err := store.Between(ctx, id, start, end)
	if err != nil || len(in) != 2 {
		t.Fatalf("Between: %d rows, err=%v", len(in), err)
	}
	recent, _ := store.Recent(ctx, id, 1)
	if len(recent) != 1 || !recent[0].CreatedAt.Equal(end) {
		t.Fatalf("Recent: %+v", recent)
	}

	m := domain.Rollup(id, day, in)
	if err := store.Upsert(ctx, &m); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	again := domain.Rollup(id, day, in)
	if err := store.Upsert(ctx, &again); err != nil {
		t.Fatalf("Upsert again: %v", err)
	}
	if again.ID != m.ID {
		t.Fatalf("upsert must keep the row id: %s vs %s", again.ID, m.ID)
	}

	rows, err := store.MetricsFor(ctx, id, day, day)
	if err != nil || len(rows) != 1 {
		t.Fatalf("MetricsFor: %d rows, err=%v", len(rows), err)
	}
	if rows[0].TotalChecks != 2 || rows[0].UptimePercentage != 100 || rows[0].AverageLatencyMS != 1 {
		t.Fatalf("unexpected metric: %+v", rows[0])
	}
	if rows[0].Date.String() != day.String() {
		t.Fatalf("date mismatch: %s vs %s", rows[0].Date, day)
	}
}

func containsService(list []domain.Service, id uuid.UUID) bool {
	for _, s := range list {
		if s.ID == id {
			return true
		}
	}
	return false
}
