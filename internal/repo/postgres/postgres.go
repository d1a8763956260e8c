package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hamed0406/fleetcheck/internal/domain"
	"github.com/hamed0406/fleetcheck/internal/repo"
)

//go:embed schema.sql
var schemaSQL string

var _ repo.Store = (*Store)(nil)

type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

func New(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Store{pool: pool, log: log}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Migrate creates missing tables and indexes. It is safe to run repeatedly.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	s.log.Info("schema_applied")
	return nil
}

// ---- ServiceStore ----

const serviceCols = `id, name, kind, interval_seconds, next_run, created_at`

func (s *Store) Create(ctx context.Context, svc *domain.Service) error {
	if svc.ID == uuid.Nil {
		svc.ID = uuid.New()
	}
	if svc.CreatedAt.IsZero() {
		svc.CreatedAt = time.Now().UTC()
	}
	if svc.NextRun.IsZero() {
		svc.NextRun = svc.CreatedAt
	}
	kind, err := domain.EncodeKind(svc.Kind)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO services (`+serviceCols+`)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		svc.ID, svc.Name, kind, int64(svc.Interval/time.Second), svc.NextRun, svc.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert service: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (*domain.Service, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+serviceCols+` FROM services WHERE id = $1`, id)
	svc, err := scanService(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get service: %w", err)
	}
	return &svc, nil
}

func (s *Store) List(ctx context.Context) ([]domain.Service, error) {
	return s.queryServices(ctx, `SELECT `+serviceCols+` FROM services ORDER BY created_at DESC, id DESC`)
}

func (s *Store) Due(ctx context.Context, now time.Time) ([]domain.Service, error) {
	return s.queryServices(ctx, `SELECT `+serviceCols+` FROM services WHERE next_run <= $1 ORDER BY next_run`, now)
}

func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM services WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete service: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) UpdateNextRun(ctx context.Context, id uuid.UUID, next time.Time) error {
	tag, err := s.pool.Exec(ctx, `UPDATE services SET next_run = $2 WHERE id = $1`, id, next)
	if err != nil {
		return fmt.Errorf("update next_run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) queryServices(ctx context.Context, q string, args ...any) ([]domain.Service, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	defer rows.Close()

	var out []domain.Service
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			// skip rows whose kind no longer decodes
			s.log.Warn("service_scan_error", zap.Error(err))
			continue
		}
		out = append(out, svc)
	}
	return out, rows.Err()
}

func scanService(row pgx.Row) (domain.Service, error) {
	var (
		svc      domain.Service
		kind     []byte
		interval int64
	)
	if err := row.Scan(&svc.ID, &svc.Name, &kind, &interval, &svc.NextRun, &svc.CreatedAt); err != nil {
		return svc, err
	}
	k, err := domain.DecodeKind(kind)
	if err != nil {
		return svc, fmt.Errorf("service %s: %w", svc.ID, err)
	}
	svc.Kind = k
	svc.Interval = time.Duration(interval) * time.Second
	return svc, nil
}

// ---- ResultStore ----

const resultCols = `id, service_id, success, code, response_time, message, created_at`

func (s *Store) Append(ctx context.Context, r *domain.Result) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO healthcheck_results (`+resultCols+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.ID, r.ServiceID, r.Success, r.Code, r.ResponseTimeUS, r.Message, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

func (s *Store) Recent(ctx context.Context, serviceID uuid.UUID, limit int) ([]domain.Result, error) {
	q := `SELECT ` + resultCols + ` FROM healthcheck_results WHERE service_id = $1 ORDER BY created_at DESC`
	args := []any{serviceID}
	if limit > 0 {
		q += ` LIMIT $2`
		args = append(args, limit)
	}
	return s.queryResults(ctx, q, args...)
}

func (s *Store) Between(ctx context.Context, serviceID uuid.UUID, from, to time.Time) ([]domain.Result, error) {
	return s.queryResults(ctx,
		`SELECT `+resultCols+`
		   FROM healthcheck_results
		  WHERE service_id = $1 AND created_at >= $2 AND created_at < $3
		  ORDER BY created_at`,
		serviceID, from, to)
}

func (s *Store) queryResults(ctx context.Context, q string, args ...any) ([]domain.Result, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	var out []domain.Result
	for rows.Next() {
		var r domain.Result
		if err := rows.Scan(&r.ID, &r.ServiceID, &r.Success, &r.Code, &r.ResponseTimeUS, &r.Message, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ---- MetricStore ----

const metricCols = `id, service_id, date, uptime_percentage, average_latency_ms, total_checks, successful_checks, created_at, updated_at`

func (s *Store) Upsert(ctx context.Context, m *domain.ServiceMetric) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO service_metrics
		   (id, service_id, date, uptime_percentage, average_latency_ms, total_checks, successful_checks)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (service_id, date) DO UPDATE SET
		   uptime_percentage  = EXCLUDED.uptime_percentage,
		   average_latency_ms = EXCLUDED.average_latency_ms,
		   total_checks       = EXCLUDED.total_checks,
		   successful_checks  = EXCLUDED.successful_checks,
		   updated_at         = now()
		 RETURNING id, created_at, updated_at`,
		m.ID, m.ServiceID, m.Date.Time, m.UptimePercentage, m.AverageLatencyMS, m.TotalChecks, m.SuccessfulChecks,
	).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert metric: %w", err)
	}
	return nil
}

func (s *Store) MetricsFor(ctx context.Context, serviceID uuid.UUID, start, end domain.Date) ([]domain.ServiceMetric, error) {
	return s.queryMetrics(ctx,
		`SELECT `+metricCols+`
		   FROM service_metrics
		  WHERE service_id = $1 AND date >= $2 AND date <= $3
		  ORDER BY date DESC`,
		serviceID, start.Time, end.Time)
}

func (s *Store) AllMetrics(ctx context.Context, start, end domain.Date) ([]domain.ServiceMetric, error) {
	return s.queryMetrics(ctx,
		`SELECT `+metricCols+`
		   FROM service_metrics
		  WHERE date >= $1 AND date <= $2
		  ORDER BY service_id, date DESC`,
		start.Time, end.Time)
}

func (s *Store) DeleteMetricsBefore(ctx context.Context, cutoff domain.Date) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM service_metrics WHERE date < $1`, cutoff.Time)
	if err != nil {
		return 0, fmt.Errorf("delete metrics: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) queryMetrics(ctx context.Context, q string, args ...any) ([]domain.ServiceMetric, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list metrics: %w", err)
	}
	defer rows.Close()

	out := make([]domain.ServiceMetric, 0)
	for rows.Next() {
		var (
			m   domain.ServiceMetric
			day time.Time
		)
		if err := rows.Scan(&m.ID, &m.ServiceID, &day, &m.UptimePercentage, &m.AverageLatencyMS,
			&m.TotalChecks, &m.SuccessfulChecks, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan metric: %w", err)
		}
		m.Date = domain.DateOf(day)
		out = append(out, m)
	}
	return out, rows.Err()
}
