package probe

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/hamed0406/fleetcheck/internal/domain"
)

const tcpSuccessMessage = "connection successful"

type dialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// TCPChecker treats an established connection as healthy; nothing is sent.
type TCPChecker struct {
	Backoff time.Duration
	dial    dialFunc
}

func NewTCPChecker(backoff time.Duration) *TCPChecker {
	var d net.Dialer
	return &TCPChecker{Backoff: backoff, dial: d.DialContext}
}

func (c *TCPChecker) CheckTCP(ctx context.Context, cfg *domain.TCPCheck) domain.Result {
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	timeout := cfg.Timeout()

	policy := RetryPolicy{MaxRetries: cfg.MaxRetries, Backoff: c.Backoff}
	return policy.Do(ctx, func(ctx context.Context) (domain.Result, error) {
		actx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		start := time.Now()
		conn, err := c.dial(actx, "tcp", addr)
		elapsed := time.Since(start)
		if err != nil {
			return domain.Result{}, err
		}
		_ = conn.Close()

		return domain.Result{
			Success:        true,
			Code:           200,
			ResponseTimeUS: elapsed.Microseconds(),
			Message:        tcpSuccessMessage,
		}, nil
	})
}
