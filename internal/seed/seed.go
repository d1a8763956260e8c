package seed

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hamed0406/fleetcheck/internal/domain"
	"github.com/hamed0406/fleetcheck/internal/metrics"
	"github.com/hamed0406/fleetcheck/internal/registry"
	"github.com/hamed0406/fleetcheck/internal/repo"
)

// Fixture is a demo service plus the shape of its synthetic history.
type Fixture struct {
	Name     string
	Interval time.Duration
	Kind     domain.Kind
	// Reliability is the probability a synthetic check succeeds.
	Reliability float64
	LatencyMS   int
}

func Fixtures() []Fixture {
	return []Fixture{
		{
			Name:        "API Gateway",
			Interval:    30 * time.Second,
			Kind:        &domain.HTTPCheck{URL: "https://api.example.com/health", Method: "GET", TimeoutSeconds: 5, MaxRetries: 3},
			Reliability: 0.995,
			LatencyMS:   120,
		},
		{
			Name:        "Database Cluster",
			Interval:    time.Minute,
			Kind:        &domain.TCPCheck{Host: "db.example.com", Port: 5432, TimeoutSeconds: 5, MaxRetries: 3},
			Reliability: 0.999,
			LatencyMS:   8,
		},
		{
			Name:        "Auth Service",
			Interval:    30 * time.Second,
			Kind:        &domain.HTTPCheck{URL: "https://auth.example.com/healthz", Method: "GET", TimeoutSeconds: 5, MaxRetries: 3},
			Reliability: 0.98,
			LatencyMS:   200,
		},
		{
			Name:        "Cache Layer",
			Interval:    time.Minute,
			Kind:        &domain.TCPCheck{Host: "cache.example.com", Port: 6379, TimeoutSeconds: 2, MaxRetries: 1},
			Reliability: 0.99,
			LatencyMS:   3,
		},
		{
			Name:        "Payments Webhook",
			Interval:    2 * time.Minute,
			Kind:        &domain.HTTPCheck{URL: "https://payments.example.com/status", Method: "HEAD", TimeoutSeconds: 10, MaxRetries: 2},
			Reliability: 0.95,
			LatencyMS:   450,
		},
	}
}

// MinSpacing bounds how densely history is synthesized, whatever the
// service interval.
const MinSpacing = 5 * time.Minute

type Seeder struct {
	Logger   *zap.Logger
	Registry *registry.Registry
	Results  repo.ResultStore
	Engine   *metrics.Engine
	Fixtures []Fixture
	Now      func() time.Time

	mu  sync.Mutex
	rnd *rand.Rand
}

func New(logger *zap.Logger, reg *registry.Registry, results repo.ResultStore, eng *metrics.Engine, seed uint64) *Seeder {
	return &Seeder{
		Logger:   logger,
		Registry: reg,
		Results:  results,
		Engine:   eng,
		Fixtures: Fixtures(),
		Now:      time.Now,
		rnd:      rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

type Report struct {
	Services int
	Results  int
}

// Run registers every fixture (reusing one that already exists by name),
// writes synthetic results covering the last days, and computes metrics for
// [today-days, today]. Fixtures are seeded concurrently.
func (s *Seeder) Run(ctx context.Context, days int) (Report, error) {
	if days < 0 {
		return Report{}, fmt.Errorf("seed: days must not be negative, got %d", days)
	}
	now := s.Now().UTC()
	today := domain.DateOf(now)
	first := today.AddDays(-days)
	from, _ := first.Bounds()

	var (
		mu  sync.Mutex
		rep Report
	)
	g, ctx := errgroup.WithContext(ctx)
	for _, fx := range s.Fixtures {
		g.Go(func() error {
			id, err := s.ensure(ctx, fx)
			if err != nil {
				return err
			}
			n, err := s.history(ctx, id, fx, from, now)
			if err != nil {
				return err
			}
			if err := s.Engine.CalculateRange(ctx, id, first, today); err != nil {
				return fmt.Errorf("seed metrics for %q: %w", fx.Name, err)
			}
			s.Logger.Info("seed_service",
				zap.String("service_id", id.String()),
				zap.String("name", fx.Name),
				zap.Int("results", n),
			)
			mu.Lock()
			rep.Services++
			rep.Results += n
			mu.Unlock()
			return nil
		})
	}
	err := g.Wait()
	return rep, err
}

func (s *Seeder) ensure(ctx context.Context, fx Fixture) (uuid.UUID, error) {
	existing, err := s.Registry.FindByName(ctx, fx.Name)
	switch {
	case err == nil:
		return existing.ID, nil
	case !errors.Is(err, domain.ErrNotFound):
		return uuid.Nil, fmt.Errorf("seed lookup %q: %w", fx.Name, err)
	}
	id, err := s.Registry.Create(ctx, fx.Name, fx.Kind, fx.Interval)
	if err != nil {
		return uuid.Nil, fmt.Errorf("seed create %q: %w", fx.Name, err)
	}
	return id, nil
}

func (s *Seeder) history(ctx context.Context, id uuid.UUID, fx Fixture, from, to time.Time) (int, error) {
	step := fx.Interval
	if step < MinSpacing {
		step = MinSpacing
	}
	n := 0
	for at := from; at.Before(to); at = at.Add(step) {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		r := s.synth(id, fx, at)
		if err := s.Results.Append(ctx, &r); err != nil {
			return n, fmt.Errorf("seed result for %q: %w", fx.Name, err)
		}
		n++
	}
	return n, nil
}

// synth draws one result. Failures carry no latency and a code that fits
// the kind: 0 for TCP, 0 or a 5xx for HTTP.
func (s *Seeder) synth(id uuid.UUID, fx Fixture, at time.Time) domain.Result {
	s.mu.Lock()
	ok := s.rnd.Float64() < fx.Reliability
	jitter := s.rnd.NormFloat64() * float64(fx.LatencyMS) * 0.2
	roll := s.rnd.IntN(3)
	s.mu.Unlock()

	r := domain.Result{ID: uuid.New(), ServiceID: id, Success: ok, CreatedAt: at}
	_, isHTTP := fx.Kind.(*domain.HTTPCheck)
	if ok {
		ms := float64(fx.LatencyMS) + jitter
		if ms < 1 {
			ms = 1
		}
		r.ResponseTimeUS = int64(ms * 1000)
		r.Message = "ok"
		if isHTTP {
			r.Code = 200
		}
		return r
	}
	if isHTTP && roll > 0 {
		r.Code = []int{502, 503}[roll-1]
		r.Message = "upstream unavailable"
		return r
	}
	r.Message = "connection refused"
	return r
}
