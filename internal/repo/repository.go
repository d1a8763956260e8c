package repo

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hamed0406/fleetcheck/internal/domain"
)

// Ports (interfaces). Lookups of a missing row return domain.ErrNotFound.
type ServiceStore interface {
	Create(ctx context.Context, s *domain.Service) error
	Get(ctx context.Context, id uuid.UUID) (*domain.Service, error)
	List(ctx context.Context) ([]domain.Service, error)
	Delete(ctx context.Context, id uuid.UUID) error
	// Due returns services whose next run is at or before now.
	Due(ctx context.Context, now time.Time) ([]domain.Service, error)
	UpdateNextRun(ctx context.Context, id uuid.UUID, next time.Time) error
}

type ResultStore interface {
	Append(ctx context.Context, r *domain.Result) error
	// Recent returns at most limit results, newest first. limit <= 0 means all.
	Recent(ctx context.Context, serviceID uuid.UUID, limit int) ([]domain.Result, error)
	// Between returns results created in [from, to).
	Between(ctx context.Context, serviceID uuid.UUID, from, to time.Time) ([]domain.Result, error)
}

type MetricStore interface {
	// Upsert replaces the row for (ServiceID, Date), keeping its ID and CreatedAt.
	Upsert(ctx context.Context, m *domain.ServiceMetric) error
	// MetricsFor returns rows with start <= date <= end, newest first.
	MetricsFor(ctx context.Context, serviceID uuid.UUID, start, end domain.Date) ([]domain.ServiceMetric, error)
	// AllMetrics is MetricsFor across services, ordered by service then date descending.
	AllMetrics(ctx context.Context, start, end domain.Date) ([]domain.ServiceMetric, error)
	DeleteMetricsBefore(ctx context.Context, cutoff domain.Date) (int64, error)
}

// Store is everything the engine needs from one backend.
type Store interface {
	ServiceStore
	ResultStore
	MetricStore
}
