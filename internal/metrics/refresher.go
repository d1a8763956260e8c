package metrics

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Refresher recomputes today's metrics for every service on a fixed clock,
// independent of the scheduler.
type Refresher struct {
	Engine   *Engine
	Interval time.Duration
}

func NewRefresher(e *Engine, interval time.Duration) *Refresher {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Refresher{Engine: e, Interval: interval}
}

// Run does an immediate pass, then one per interval, until ctx is cancelled.
func (r *Refresher) Run(ctx context.Context) {
	log := r.Engine.Logger
	log.Info("metrics_refresher_started", zap.Duration("interval", r.Interval))

	t := time.NewTicker(r.Interval)
	defer t.Stop()

	r.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Info("metrics_refresher_stopped")
			return
		case <-t.C:
			r.runOnce(ctx)
		}
	}
}

func (r *Refresher) runOnce(ctx context.Context) {
	r.Engine.Telemetry.RefreshRan()
	if err := r.Engine.RefreshAll(ctx, r.Engine.today()); err != nil {
		r.Engine.Logger.Warn("metrics_refresh_incomplete", zap.Error(err))
	}
}
