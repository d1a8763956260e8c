package notify

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const sinkTimeout = 10 * time.Second

// Dispatcher drains the scheduler's event channel, logs every event and
// hands it to the sink. It returns when ctx is done or events is closed.
type Dispatcher struct {
	Logger *zap.Logger
	Events <-chan Event
	Sink   Notifier
}

func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-d.Events:
			if !ok {
				return
			}
			d.handle(ctx, ev)
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, ev Event) {
	fields := []zap.Field{
		zap.String("service_id", ev.ServiceID.String()),
		zap.String("name", ev.Name),
		zap.String("kind", ev.Kind),
		zap.String("target", ev.Target),
		zap.Bool("up", ev.Success),
		zap.Int("code", ev.Code),
		zap.Int64("response_time_us", ev.ResponseTimeUS),
	}
	if ev.Success {
		d.Logger.Info("check_event", fields...)
	} else {
		d.Logger.Warn("check_event", append(fields, zap.String("message", ev.Message))...)
	}

	if d.Sink == nil {
		return
	}
	sctx, cancel := context.WithTimeout(ctx, sinkTimeout)
	defer cancel()
	if err := d.Sink.Notify(sctx, ev); err != nil {
		d.Logger.Warn("notify_error", zap.String("service_id", ev.ServiceID.String()), zap.Error(err))
	}
}
