package memory

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hamed0406/fleetcheck/internal/domain"
	"github.com/hamed0406/fleetcheck/internal/repo"
)

type metricKey struct {
	service uuid.UUID
	day     string
}

type Store struct {
	mu       sync.RWMutex
	services map[uuid.UUID]domain.Service
	results  []domain.Result
	metrics  map[metricKey]domain.ServiceMetric
	now      func() time.Time
}

func New() *Store {
	return &Store{
		services: make(map[uuid.UUID]domain.Service),
		results:  make([]domain.Result, 0, 128),
		metrics:  make(map[metricKey]domain.ServiceMetric),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ---- ServiceStore ----

func (m *Store) Create(ctx context.Context, s *domain.Service) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if _, ok := m.services[s.ID]; ok {
		return fmt.Errorf("service %s already exists", s.ID)
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = m.now()
	}
	if s.NextRun.IsZero() {
		s.NextRun = s.CreatedAt
	}
	m.services[s.ID] = *s
	return nil
}

func (m *Store) Get(ctx context.Context, id uuid.UUID) (*domain.Service, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.services[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &s, nil
}

func (m *Store) List(ctx context.Context) ([]domain.Service, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Service, 0, len(m.services))
	for _, s := range m.services {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *Store) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.services[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.services, id)
	return nil
}

func (m *Store) Due(ctx context.Context, now time.Time) ([]domain.Service, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Service
	for _, s := range m.services {
		if s.Due(now) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextRun.Before(out[j].NextRun) })
	return out, nil
}

func (m *Store) UpdateNextRun(ctx context.Context, id uuid.UUID, next time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.services[id]
	if !ok {
		return domain.ErrNotFound
	}
	s.NextRun = next
	m.services[id] = s
	return nil
}

// ---- ResultStore ----

func (m *Store) Append(ctx context.Context, r *domain.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = m.now()
	}
	m.results = append(m.results, *r)
	return nil
}

func (m *Store) Recent(ctx context.Context, serviceID uuid.UUID, limit int) ([]domain.Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Result
	for i := len(m.results) - 1; i >= 0; i-- {
		if m.results[i].ServiceID == serviceID {
			out = append(out, m.results[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Store) Between(ctx context.Context, serviceID uuid.UUID, from, to time.Time) ([]domain.Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Result
	for _, r := range m.results {
		if r.ServiceID == serviceID && !r.CreatedAt.Before(from) && r.CreatedAt.Before(to) {
			out = append(out, r)
		}
	}
	return out, nil
}

// ---- MetricStore ----

func (m *Store) Upsert(ctx context.Context, sm *domain.ServiceMetric) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := metricKey{sm.ServiceID, sm.Date.String()}
	now := m.now()
	if cur, ok := m.metrics[key]; ok {
		sm.ID = cur.ID
		sm.CreatedAt = cur.CreatedAt
	} else {
		if sm.ID == uuid.Nil {
			sm.ID = uuid.New()
		}
		sm.CreatedAt = now
	}
	sm.UpdatedAt = now
	m.metrics[key] = *sm
	return nil
}

func (m *Store) MetricsFor(ctx context.Context, serviceID uuid.UUID, start, end domain.Date) ([]domain.ServiceMetric, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.ServiceMetric, 0)
	for _, sm := range m.metrics {
		if sm.ServiceID == serviceID && inRange(sm.Date, start, end) {
			out = append(out, sm)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date.Time) })
	return out, nil
}

func (m *Store) AllMetrics(ctx context.Context, start, end domain.Date) ([]domain.ServiceMetric, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.ServiceMetric, 0)
	for _, sm := range m.metrics {
		if inRange(sm.Date, start, end) {
			out = append(out, sm)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if c := bytes.Compare(out[i].ServiceID[:], out[j].ServiceID[:]); c != 0 {
			return c < 0
		}
		return out[i].Date.After(out[j].Date.Time)
	})
	return out, nil
}

func (m *Store) DeleteMetricsBefore(ctx context.Context, cutoff domain.Date) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, sm := range m.metrics {
		if sm.Date.Before(cutoff.Time) {
			delete(m.metrics, k)
			n++
		}
	}
	return n, nil
}

func inRange(d, start, end domain.Date) bool {
	return !d.Before(start.Time) && !d.After(end.Time)
}

var _ repo.Store = (*Store)(nil)
