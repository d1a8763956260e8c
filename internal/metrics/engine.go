package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hamed0406/fleetcheck/internal/domain"
	"github.com/hamed0406/fleetcheck/internal/repo"
	"github.com/hamed0406/fleetcheck/internal/telemetry"
)

// Engine turns stored results into daily ServiceMetric rows. Every
// calculation reads from the store and upserts, so it can be repeated freely.
type Engine struct {
	Logger    *zap.Logger
	Services  repo.ServiceStore
	Results   repo.ResultStore
	Metrics   repo.MetricStore
	Telemetry *telemetry.Metrics
	Now       func() time.Time
}

func NewEngine(logger *zap.Logger, store repo.Store, tel *telemetry.Metrics) *Engine {
	return &Engine{
		Logger:    logger,
		Services:  store,
		Results:   store,
		Metrics:   store,
		Telemetry: tel,
		Now:       func() time.Time { return time.Now().UTC() },
	}
}

func (e *Engine) today() domain.Date { return domain.DateOf(e.Now()) }

// CalculateDaily writes the rollup for one service and day. A day without
// results still gets a zero-valued row.
func (e *Engine) CalculateDaily(ctx context.Context, serviceID uuid.UUID, day domain.Date) (domain.ServiceMetric, error) {
	from, to := day.Bounds()
	results, err := e.Results.Between(ctx, serviceID, from, to)
	if err != nil {
		return domain.ServiceMetric{}, fmt.Errorf("results for %s on %s: %w", serviceID, day, err)
	}
	m := domain.Rollup(serviceID, day, results)
	if err := e.Metrics.Upsert(ctx, &m); err != nil {
		return domain.ServiceMetric{}, fmt.Errorf("store metric for %s on %s: %w", serviceID, day, err)
	}
	e.Logger.Debug("metric_calculated",
		zap.String("service_id", serviceID.String()),
		zap.String("date", day.String()),
		zap.Int("total_checks", m.TotalChecks),
		zap.Float64("uptime", m.UptimePercentage),
	)
	return m, nil
}

func (e *Engine) CalculateToday(ctx context.Context, serviceID uuid.UUID) (domain.ServiceMetric, error) {
	return e.CalculateDaily(ctx, serviceID, e.today())
}

func (e *Engine) CalculateYesterday(ctx context.Context, serviceID uuid.UUID) (domain.ServiceMetric, error) {
	return e.CalculateDaily(ctx, serviceID, e.today().AddDays(-1))
}

// CalculateRange runs CalculateDaily for each day in [start, end], oldest first,
// stopping at the first failure.
func (e *Engine) CalculateRange(ctx context.Context, serviceID uuid.UUID, start, end domain.Date) error {
	for d := start; !d.After(end.Time); d = d.AddDays(1) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := e.CalculateDaily(ctx, serviceID, d); err != nil {
			return err
		}
	}
	return nil
}

// RefreshAll recomputes one day for every registered service. A failing
// service does not stop the others; all failures are returned together.
func (e *Engine) RefreshAll(ctx context.Context, day domain.Date) error {
	services, err := e.Services.List(ctx)
	if err != nil {
		return fmt.Errorf("list services: %w", err)
	}
	var errs error
	for _, s := range services {
		if _, err := e.CalculateDaily(ctx, s.ID, day); err != nil {
			e.Telemetry.MetricFailed("refresh")
			e.Logger.Warn("metric_refresh_error",
				zap.String("service_id", s.ID.String()),
				zap.String("name", s.Name),
				zap.Error(err),
			)
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

// window is [today-days, today]; negative days are treated as zero.
func (e *Engine) window(days int) (domain.Date, domain.Date) {
	if days < 0 {
		days = 0
	}
	end := e.today()
	return end.AddDays(-days), end
}

// ForService returns stored metrics for the last days, newest first.
func (e *Engine) ForService(ctx context.Context, serviceID uuid.UUID, days int) ([]domain.ServiceMetric, error) {
	start, end := e.window(days)
	return e.Metrics.MetricsFor(ctx, serviceID, start, end)
}

// All returns stored metrics for every service over the last days.
func (e *Engine) All(ctx context.Context, days int) ([]domain.ServiceMetric, error) {
	start, end := e.window(days)
	return e.Metrics.AllMetrics(ctx, start, end)
}

// Summary computes the requested window first, then reduces what is stored.
func (e *Engine) Summary(ctx context.Context, serviceID uuid.UUID, days int) (domain.Summary, error) {
	start, end := e.window(days)
	if err := e.CalculateRange(ctx, serviceID, start, end); err != nil {
		return domain.Summary{}, err
	}
	rows, err := e.Metrics.MetricsFor(ctx, serviceID, start, end)
	if err != nil {
		return domain.Summary{}, fmt.Errorf("read metrics for %s: %w", serviceID, err)
	}
	return domain.Summarize(serviceID, rows), nil
}

// Cleanup deletes metric rows dated more than days before today.
func (e *Engine) Cleanup(ctx context.Context, days int) (int64, error) {
	if days < 0 {
		return 0, fmt.Errorf("cleanup: days must not be negative, got %d", days)
	}
	cutoff := e.today().AddDays(-days)
	n, err := e.Metrics.DeleteMetricsBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup before %s: %w", cutoff, err)
	}
	e.Logger.Info("metrics_cleanup", zap.String("cutoff", cutoff.String()), zap.Int64("deleted", n))
	return n, nil
}
