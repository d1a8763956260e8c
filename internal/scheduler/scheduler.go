package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hamed0406/fleetcheck/internal/domain"
	"github.com/hamed0406/fleetcheck/internal/notify"
	"github.com/hamed0406/fleetcheck/internal/probe"
	"github.com/hamed0406/fleetcheck/internal/repo"
	"github.com/hamed0406/fleetcheck/internal/telemetry"
)

const DefaultTick = 2 * time.Second

// MetricsRecomputer is the part of the metrics engine the scheduler drives.
type MetricsRecomputer interface {
	CalculateToday(ctx context.Context, serviceID uuid.UUID) (domain.ServiceMetric, error)
}

// Scheduler polls the store for due services and checks them concurrently.
// It keeps no state between ticks; the store's next_run is the only clock.
type Scheduler struct {
	Logger    *zap.Logger
	Services  repo.ServiceStore
	Results   repo.ResultStore
	Checker   probe.Checker
	Metrics   MetricsRecomputer
	Events    chan<- notify.Event
	Telemetry *telemetry.Metrics

	Tick time.Duration
	// Concurrency caps checks in flight within one tick; 0 means one worker
	// per due service.
	Concurrency int
	// DiagnoseDNS logs a DNS classification when an HTTP check got no response.
	DiagnoseDNS bool
	Now         func() time.Time
}

func New(
	logger *zap.Logger,
	store repo.Store,
	checker probe.Checker,
	metrics MetricsRecomputer,
	events chan<- notify.Event,
	tick time.Duration,
	concurrency int,
) *Scheduler {
	if tick <= 0 {
		tick = DefaultTick
	}
	if concurrency < 0 {
		concurrency = 0
	}
	return &Scheduler{
		Logger:      logger,
		Services:    store,
		Results:     store,
		Checker:     checker,
		Metrics:     metrics,
		Events:      events,
		Tick:        tick,
		Concurrency: concurrency,
		Now:         func() time.Time { return time.Now().UTC() },
	}
}

// Run ticks until ctx is cancelled. The sleep starts only after every check
// of the previous tick has finished.
func (s *Scheduler) Run(ctx context.Context) {
	s.Logger.Info("scheduler_started",
		zap.Duration("tick", s.Tick),
		zap.Int("concurrency", s.Concurrency),
	)
	t := time.NewTimer(0)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Logger.Info("scheduler_stopped")
			return
		case <-t.C:
			s.runOnce(ctx)
			t.Reset(s.Tick)
		}
	}
}

// runOnce processes the services due at the start of the tick and returns
// how many there were.
func (s *Scheduler) runOnce(ctx context.Context) int {
	start := s.Now()
	due, err := s.Services.Due(ctx, start)
	if err != nil {
		s.Telemetry.TickFailed()
		s.Logger.Warn("scheduler_due_query_error", zap.Error(err))
		return 0
	}
	if len(due) == 0 {
		s.Telemetry.Tick(0, 0)
		return 0
	}

	var g errgroup.Group
	if s.Concurrency > 0 {
		g.SetLimit(s.Concurrency)
	}
	for _, svc := range due {
		g.Go(func() error {
			s.process(ctx, svc)
			return nil
		})
	}
	_ = g.Wait()

	s.Telemetry.Tick(len(due), s.Now().Sub(start))
	return len(due)
}

func (s *Scheduler) process(ctx context.Context, svc domain.Service) {
	log := s.Logger.With(
		zap.String("service_id", svc.ID.String()),
		zap.String("name", svc.Name),
	)
	kind := "unknown"
	if svc.Kind != nil {
		kind = svc.Kind.Name()
	}

	began := time.Now()
	res := s.Checker.Check(ctx, svc.Kind)
	s.Telemetry.CheckDone(kind, res.Success, time.Since(began))

	res.ID = uuid.New()
	res.ServiceID = svc.ID
	if res.CreatedAt.IsZero() {
		res.CreatedAt = s.Now()
	}

	if err := s.Results.Append(ctx, &res); err != nil {
		log.Warn("scheduler_persist_error", zap.Error(err))
	} else {
		log.Debug("scheduler_checked",
			zap.String("kind", kind),
			zap.Bool("up", res.Success),
			zap.Int("code", res.Code),
			zap.Int64("response_time_us", res.ResponseTimeUS),
			zap.String("message", res.Message),
		)
	}

	if s.Metrics != nil {
		if _, err := s.Metrics.CalculateToday(ctx, svc.ID); err != nil {
			s.Telemetry.MetricFailed("scheduler")
			log.Warn("scheduler_metrics_error", zap.Error(err))
		}
	}

	s.publish(notify.EventFrom(svc, res))

	next := s.Now().Add(svc.Interval)
	if err := s.Services.UpdateNextRun(ctx, svc.ID, next); err != nil {
		log.Warn("scheduler_next_run_error", zap.Error(err))
	}

	if s.DiagnoseDNS && !res.Success && res.Code == 0 && kind == domain.KindHTTP {
		if st, ok := probe.Diagnose(ctx, svc.Kind); ok {
			log.Info("dns_diagnosis",
				zap.String("domain", st.Domain),
				zap.String("class", st.Class),
				zap.String("cname", st.CNAME),
				zap.Strings("nameservers", st.Nameservers),
				zap.String("resolver_error", st.ResolverError),
			)
		}
	}
}

// publish never blocks; a full channel drops the event.
func (s *Scheduler) publish(ev notify.Event) {
	if s.Events == nil {
		return
	}
	select {
	case s.Events <- ev:
	default:
		s.Telemetry.EventDropped()
		s.Logger.Debug("notification_dropped", zap.String("service_id", ev.ServiceID.String()))
	}
}
