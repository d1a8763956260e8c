package registry

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hamed0406/fleetcheck/internal/domain"
	"github.com/hamed0406/fleetcheck/internal/repo"
)

// Registry is the service CRUD surface shared by the API, CLI and loader.
// It never touches next_run after creation.
type Registry struct {
	Logger   *zap.Logger
	Services repo.ServiceStore
	Results  repo.ResultStore
	Now      func() time.Time
}

func New(logger *zap.Logger, store repo.Store) *Registry {
	return &Registry{
		Logger:   logger,
		Services: store,
		Results:  store,
		Now:      func() time.Time { return time.Now().UTC() },
	}
}

// Create validates and stores a service that is due immediately.
func (r *Registry) Create(ctx context.Context, name string, kind domain.Kind, interval time.Duration) (uuid.UUID, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return uuid.Nil, domain.ErrInvalidName
	}
	if kind == nil {
		return uuid.Nil, fmt.Errorf("%w: missing", domain.ErrInvalidKind)
	}
	if err := kind.Validate(); err != nil {
		return uuid.Nil, err
	}
	if interval < time.Second {
		return uuid.Nil, fmt.Errorf("%w: got %s", domain.ErrInvalidInterval, interval)
	}

	now := r.Now()
	svc := &domain.Service{
		ID:        uuid.New(),
		Name:      name,
		Kind:      kind,
		Interval:  interval.Truncate(time.Second),
		NextRun:   now,
		CreatedAt: now,
	}
	if err := r.Services.Create(ctx, svc); err != nil {
		return uuid.Nil, fmt.Errorf("create service %q: %w", name, err)
	}
	r.Logger.Info("service_created",
		zap.String("service_id", svc.ID.String()),
		zap.String("name", name),
		zap.String("kind", kind.Name()),
		zap.Duration("interval", svc.Interval),
	)
	return svc.ID, nil
}

func (r *Registry) Delete(ctx context.Context, id uuid.UUID) error {
	if err := r.Services.Delete(ctx, id); err != nil {
		return err
	}
	r.Logger.Info("service_deleted", zap.String("service_id", id.String()))
	return nil
}

func (r *Registry) List(ctx context.Context) ([]domain.Service, error) {
	return r.Services.List(ctx)
}

func (r *Registry) Get(ctx context.Context, id uuid.UUID) (*domain.Service, error) {
	return r.Services.Get(ctx, id)
}

// FindByName returns the first service with the given name, or ErrNotFound.
func (r *Registry) FindByName(ctx context.Context, name string) (*domain.Service, error) {
	all, err := r.Services.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].Name == name {
			return &all[i], nil
		}
	}
	return nil, domain.ErrNotFound
}

// ResultsFor returns up to limit results for a service, newest first. Results
// outlive their service, so a deleted id still returns its history.
func (r *Registry) ResultsFor(ctx context.Context, id uuid.UUID, limit int) ([]domain.Result, error) {
	return r.Results.Recent(ctx, id, limit)
}
