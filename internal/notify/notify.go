package notify

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/hamed0406/fleetcheck/internal/domain"
)

// Event is published once per completed check.
type Event struct {
	ServiceID      uuid.UUID `json:"service_id"`
	Name           string    `json:"name"`
	Kind           string    `json:"kind"`
	Target         string    `json:"target"`
	Success        bool      `json:"success"`
	Code           int       `json:"code"`
	ResponseTimeUS int64     `json:"response_time"`
	Message        string    `json:"message"`
	CheckedAt      time.Time `json:"checked_at"`
}

func EventFrom(s domain.Service, r domain.Result) Event {
	ev := Event{
		ServiceID:      s.ID,
		Name:           s.Name,
		Success:        r.Success,
		Code:           r.Code,
		ResponseTimeUS: r.ResponseTimeUS,
		Message:        r.Message,
		CheckedAt:      r.CreatedAt,
	}
	switch k := s.Kind.(type) {
	case *domain.HTTPCheck:
		ev.Kind, ev.Target = k.Name(), k.URL
	case *domain.TCPCheck:
		ev.Kind, ev.Target = k.Name(), net.JoinHostPort(k.Host, strconv.Itoa(k.Port))
	}
	return ev
}

type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// Multi delivers to every notifier and returns all failures combined.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, ev Event) error {
	var errs error
	for _, n := range m {
		if n == nil {
			continue
		}
		errs = multierr.Append(errs, n.Notify(ctx, ev))
	}
	return errs
}
