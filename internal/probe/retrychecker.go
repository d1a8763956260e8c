package probe

import (
	"context"
	"errors"
	"time"

	"github.com/hamed0406/fleetcheck/internal/domain"
)

// attemptFunc performs a single try. A non-nil error means no response was
// obtained (transport failure) and the try may be repeated.
type attemptFunc func(ctx context.Context) (domain.Result, error)

// RetryPolicy allows MaxRetries+1 tries in total. Only transport failures
// are retried; the first obtained response is final.
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
}

func (p RetryPolicy) Do(ctx context.Context, attempt attemptFunc) domain.Result {
	tries := p.MaxRetries + 1
	if tries < 1 {
		tries = 1
	}
	var lastErr error
	for i := 0; i < tries; i++ {
		res, err := attempt(ctx)
		if err == nil {
			res.CreatedAt = time.Now().UTC()
			return res
		}
		lastErr = err
		if i < tries-1 && p.Backoff > 0 {
			t := time.NewTimer(p.Backoff)
			select {
			case <-ctx.Done():
			case <-t.C:
			}
			t.Stop()
		}
	}
	if lastErr == nil {
		lastErr = errors.New("no attempt made")
	}
	return failed(lastErr)
}
