package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/hamed0406/fleetcheck/internal/config"
	"github.com/hamed0406/fleetcheck/internal/domain"
	"github.com/hamed0406/fleetcheck/internal/loader"
	"github.com/hamed0406/fleetcheck/internal/logging"
	"github.com/hamed0406/fleetcheck/internal/metrics"
	"github.com/hamed0406/fleetcheck/internal/registry"
	"github.com/hamed0406/fleetcheck/internal/repo/postgres"
	"github.com/hamed0406/fleetcheck/internal/seed"
)

const usage = `usage: fleetcheck-cli <command> [flags]

commands:
  config load -f FILE [--skip-duplicates=true]
  config load-dir -d DIR
  config load-default
  metrics calculate [-s SERVICE_ID]
  metrics yesterday
  metrics cleanup [-n DAYS]
  seed [-n DAYS]
`

var errUsage = errors.New("invalid usage")

type app struct {
	logger   *zap.Logger
	store    *postgres.Store
	registry *registry.Registry
	engine   *metrics.Engine
}

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatal(err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is required for the cli")
	}
	logger, err := logging.NewLogger(cfg.LogDir, cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := postgres.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Fatal("store_open_failed", zap.Error(err))
	}
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		logger.Fatal("store_migrate_failed", zap.Error(err))
	}

	a := &app{
		logger:   logger,
		store:    store,
		registry: registry.New(logger, store),
		engine:   metrics.NewEngine(logger, store, nil),
	}

	switch args[0] {
	case "config":
		err = a.config(ctx, args[1:])
	case "metrics":
		err = a.metrics(ctx, args[1:])
	case "seed":
		err = a.seed(ctx, args[1:])
	default:
		err = errUsage
	}
	if errors.Is(err, errUsage) {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func (a *app) config(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	fs := pflag.NewFlagSet("config "+args[0], pflag.ContinueOnError)
	file := fs.StringP("file", "f", "", "YAML file with services")
	dir := fs.StringP("dir", "d", "", "directory of YAML files")
	skip := fs.Bool("skip-duplicates", true, "skip services whose name already exists")
	if err := fs.Parse(args[1:]); err != nil {
		return errUsage
	}

	ld := loader.New(a.logger, a.registry, *skip)
	var (
		ids []uuid.UUID
		err error
	)
	switch args[0] {
	case "load":
		if *file == "" {
			return errUsage
		}
		ids, err = ld.LoadFile(ctx, *file)
	case "load-dir":
		if *dir == "" {
			return errUsage
		}
		ids, err = ld.LoadDir(ctx, *dir)
	case "load-default":
		ids, err = ld.LoadDefault(ctx)
		if err == nil && ids == nil {
			fmt.Println("no configuration file found in", loader.DefaultPaths)
			return nil
		}
	default:
		return errUsage
	}
	fmt.Printf("loaded %d services\n", len(ids))
	return err
}

func (a *app) metrics(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	fs := pflag.NewFlagSet("metrics "+args[0], pflag.ContinueOnError)
	service := fs.StringP("service", "s", "", "service id (default: all services)")
	days := fs.IntP("days", "n", 90, "keep metrics for this many days")
	if err := fs.Parse(args[1:]); err != nil {
		return errUsage
	}

	switch args[0] {
	case "calculate":
		if *service == "" {
			if err := a.engine.RefreshAll(ctx, a.today()); err != nil {
				return err
			}
			fmt.Println("today's metrics calculated for all services")
			return nil
		}
		id, err := uuid.Parse(*service)
		if err != nil {
			return fmt.Errorf("bad service id: %w", err)
		}
		m, err := a.engine.CalculateToday(ctx, id)
		if err != nil {
			return err
		}
		fmt.Printf("%s %s uptime=%.2f%% avg=%dms checks=%d/%d\n",
			m.ServiceID, m.Date, m.UptimePercentage, m.AverageLatencyMS, m.SuccessfulChecks, m.TotalChecks)
		return nil
	case "yesterday":
		if err := a.engine.RefreshAll(ctx, a.today().AddDays(-1)); err != nil {
			return err
		}
		fmt.Println("yesterday's metrics calculated for all services")
		return nil
	case "cleanup":
		n, err := a.engine.Cleanup(ctx, *days)
		if err != nil {
			return err
		}
		fmt.Printf("deleted %d metric rows older than %d days\n", n, *days)
		return nil
	}
	return errUsage
}

func (a *app) seed(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("seed", pflag.ContinueOnError)
	days := fs.IntP("days", "n", 30, "days of history to synthesize")
	rnd := fs.Uint64("rand", 1, "random seed")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	rep, err := seed.New(a.logger, a.registry, a.store, a.engine, *rnd).Run(ctx, *days)
	fmt.Printf("seeded %d services, %d results\n", rep.Services, rep.Results)
	return err
}

func (a *app) today() domain.Date { return domain.DateOf(a.engine.Now()) }
