package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hamed0406/fleetcheck/internal/config"
	"github.com/hamed0406/fleetcheck/internal/httpapi"
	apimw "github.com/hamed0406/fleetcheck/internal/httpapi/middleware"
	"github.com/hamed0406/fleetcheck/internal/loader"
	"github.com/hamed0406/fleetcheck/internal/logging"
	"github.com/hamed0406/fleetcheck/internal/metrics"
	"github.com/hamed0406/fleetcheck/internal/notify"
	"github.com/hamed0406/fleetcheck/internal/probe"
	"github.com/hamed0406/fleetcheck/internal/registry"
	"github.com/hamed0406/fleetcheck/internal/repo"
	"github.com/hamed0406/fleetcheck/internal/repo/memory"
	"github.com/hamed0406/fleetcheck/internal/repo/postgres"
	"github.com/hamed0406/fleetcheck/internal/scheduler"
	"github.com/hamed0406/fleetcheck/internal/telemetry"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatal(err)
	}
	logger, err := logging.NewLogger(cfg.LogDir, cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Fatal("store_open_failed", zap.Error(err))
	}
	defer closeStore()

	tel := telemetry.New()
	engine := metrics.NewEngine(logger, store, tel)
	reg := registry.New(logger, store)

	ld := loader.New(logger, reg, true)
	var loaded int
	if cfg.ServicesConfigPath != "" {
		ids, err := ld.LoadPath(ctx, cfg.ServicesConfigPath)
		if err != nil {
			logger.Fatal("services_load_failed", zap.String("path", cfg.ServicesConfigPath), zap.Error(err))
		}
		loaded = len(ids)
	} else {
		ids, err := ld.LoadDefault(ctx)
		if err != nil {
			logger.Warn("services_load_default_failed", zap.Error(err))
		}
		loaded = len(ids)
	}
	logger.Info("services_loaded", zap.Int("count", loaded))

	// notification sinks
	events := make(chan notify.Event, cfg.NotifyBuffer)
	hub := notify.NewHub(logger, cfg.AllowedOrigins)
	defer hub.Close()
	sinks := notify.Multi{hub}
	if k := notify.NewKafka(cfg.KafkaBrokers, cfg.KafkaTopic); k != nil {
		defer k.Close()
		sinks = append(sinks, k)
		logger.Info("notify_kafka_enabled", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	}
	if s := notify.NewSlack(cfg.SlackWebhookURL); s != nil {
		sinks = append(sinks, notify.NewTransitions(s, notify.TransitionConfig{
			AlertOnRecovery: cfg.AlertOnRecovery,
			Cooldown:        cfg.AlertCooldown,
		}))
		logger.Info("notify_slack_enabled")
	}
	dispatcher := &notify.Dispatcher{Logger: logger, Events: events, Sink: sinks}

	sched := scheduler.New(logger, store, probe.NewMultiChecker(cfg.RetryBackoff), engine, events, cfg.TickInterval, cfg.MaxConcurrentChecks)
	sched.Telemetry = tel
	sched.DiagnoseDNS = cfg.DNSDiagnosis

	refresher := metrics.NewRefresher(engine, cfg.MetricsRefreshInterval)

	api := httpapi.NewServer(logger, reg, engine, hub, tel.Handler())
	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: api.Router(httpapi.Options{
			Keys:           apimw.Keys{Public: cfg.PublicAPIKeys, Admin: cfg.AdminAPIKeys},
			AllowedOrigins: cfg.AllowedOrigins,
			PublicRPM:      cfg.PublicRPM,
			PublicBurst:    cfg.PublicBurst,
			AdminRPM:       cfg.AdminRPM,
			AdminBurst:     cfg.AdminBurst,
			DefaultDays:    cfg.SummaryDefaultDays,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { sched.Run(ctx); return nil })
	g.Go(func() error { refresher.Run(ctx); return nil })
	g.Go(func() error { dispatcher.Run(ctx); return nil })
	g.Go(func() error {
		logger.Info("api_listen", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("api_exit", zap.Error(err))
		return
	}
	logger.Info("api_stopped")
}

// openStore returns postgres when a DSN is configured, else the in-memory store.
func openStore(ctx context.Context, dsn string, logger *zap.Logger) (repo.Store, func(), error) {
	if dsn == "" {
		logger.Warn("store_memory", zap.String("reason", "DATABASE_URL not set"))
		return memory.New(), func() {}, nil
	}
	pg, err := postgres.New(ctx, dsn, logger)
	if err != nil {
		return nil, nil, err
	}
	if err := pg.Migrate(ctx); err != nil {
		pg.Close()
		return nil, nil, err
	}
	return pg, pg.Close, nil
}
