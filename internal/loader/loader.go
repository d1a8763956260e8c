package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/hamed0406/fleetcheck/internal/domain"
)

// DefaultPaths are tried in order by LoadDefault.
var DefaultPaths = []string{
	"config/services.yaml",
	"config/services.yml",
	"services.yaml",
	"services.yml",
}

// ServiceConfig is one entry of a services file. Interval is in seconds.
type ServiceConfig struct {
	Name     string            `yaml:"name"`
	Interval uint64            `yaml:"interval"`
	Kind     domain.KindConfig `yaml:"kind"`
}

// Registry is what the loader needs to create services.
type Registry interface {
	Create(ctx context.Context, name string, kind domain.Kind, interval time.Duration) (uuid.UUID, error)
	FindByName(ctx context.Context, name string) (*domain.Service, error)
}

type Loader struct {
	Logger   *zap.Logger
	Registry Registry
	// SkipDuplicates skips entries whose name is already registered.
	SkipDuplicates bool
}

func New(logger *zap.Logger, reg Registry, skipDuplicates bool) *Loader {
	return &Loader{Logger: logger, Registry: reg, SkipDuplicates: skipDuplicates}
}

// Parse decodes a YAML list of services. Unknown keys are rejected.
func Parse(r io.Reader) ([]ServiceConfig, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var out []ServiceConfig
	if err := dec.Decode(&out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("parse services: %w", err)
	}
	return out, nil
}

// LoadFile creates every service in path. It stops at the first entry that
// cannot be created and returns the ids created so far.
func (l *Loader) LoadFile(ctx context.Context, path string) ([]uuid.UUID, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfgs, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	l.Logger.Info("services_file_loaded", zap.String("path", path), zap.Int("count", len(cfgs)))

	var ids []uuid.UUID
	for i, c := range cfgs {
		if l.SkipDuplicates {
			_, err := l.Registry.FindByName(ctx, c.Name)
			if err == nil {
				l.Logger.Warn("service_exists_skipped", zap.String("name", c.Name))
				continue
			}
			if !errors.Is(err, domain.ErrNotFound) {
				return ids, fmt.Errorf("%s: lookup %q: %w", path, c.Name, err)
			}
		}
		id, err := l.create(ctx, c)
		if err != nil {
			return ids, fmt.Errorf("%s: entry %d (%q): %w", path, i, c.Name, err)
		}
		ids = append(ids, id)
	}
	l.Logger.Info("services_created", zap.String("path", path), zap.Int("created", len(ids)))
	return ids, nil
}

func (l *Loader) create(ctx context.Context, c ServiceConfig) (uuid.UUID, error) {
	kind, err := c.Kind.Kind()
	if err != nil {
		return uuid.Nil, err
	}
	return l.Registry.Create(ctx, c.Name, kind, time.Duration(c.Interval)*time.Second)
}

// LoadDir loads every *.yaml and *.yml file in dir, in name order. A failing
// file is logged and does not stop the others; all failures are returned.
func (l *Loader) LoadDir(ctx context.Context, dir string) ([]uuid.UUID, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var (
		ids  []uuid.UUID
		errs error
	)
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		got, err := l.LoadFile(ctx, path)
		ids = append(ids, got...)
		if err != nil {
			l.Logger.Warn("services_file_failed", zap.String("path", path), zap.Error(err))
			errs = multierr.Append(errs, err)
		}
	}
	return ids, errs
}

// LoadPath loads a file or a directory.
func (l *Loader) LoadPath(ctx context.Context, path string) ([]uuid.UUID, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return l.LoadDir(ctx, path)
	}
	return l.LoadFile(ctx, path)
}

// LoadDefault loads the first of DefaultPaths that exists. Finding none is
// not an error.
func (l *Loader) LoadDefault(ctx context.Context) ([]uuid.UUID, error) {
	for _, p := range DefaultPaths {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return l.LoadFile(ctx, p)
		}
	}
	l.Logger.Warn("services_default_missing", zap.Strings("tried", DefaultPaths))
	return nil, nil
}
