package probe

import (
	"context"
	"fmt"
	"time"

	"github.com/hamed0406/fleetcheck/internal/domain"
)

// MultiChecker dispatches a kind to its concrete checker.
type MultiChecker struct {
	HTTP *HTTPChecker
	TCP  *TCPChecker
}

func NewMultiChecker(backoff time.Duration) *MultiChecker {
	return &MultiChecker{
		HTTP: NewHTTPChecker(backoff),
		TCP:  NewTCPChecker(backoff),
	}
}

func (m *MultiChecker) Check(ctx context.Context, kind domain.Kind) domain.Result {
	switch k := kind.(type) {
	case *domain.HTTPCheck:
		return m.HTTP.CheckHTTP(ctx, k)
	case *domain.TCPCheck:
		return m.TCP.CheckTCP(ctx, k)
	}
	return failed(fmt.Errorf("%w: %T", domain.ErrInvalidKind, kind))
}

var _ Checker = (*MultiChecker)(nil)
