package probe

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/http/httpguts"

	"github.com/hamed0406/fleetcheck/internal/domain"
)

// maxBodyBytes caps how much of a response body is kept as the message.
const maxBodyBytes = 1 << 20

type HTTPChecker struct {
	Client  *http.Client
	Backoff time.Duration
}

// NewHTTPChecker uses a client without a global timeout; every attempt is
// bounded by the check's own timeout instead.
func NewHTTPChecker(backoff time.Duration) *HTTPChecker {
	return &HTTPChecker{
		Client:  &http.Client{},
		Backoff: backoff,
	}
}

func (h *HTTPChecker) CheckHTTP(ctx context.Context, cfg *domain.HTTPCheck) domain.Result {
	// Malformed configuration is final, never retried.
	if err := domain.ValidateHTTPURL(cfg.URL); err != nil {
		return failed(err)
	}
	method := strings.ToUpper(cfg.Method)
	if method == "" {
		method = http.MethodGet
	}
	if !httpguts.ValidHeaderFieldName(method) {
		return failed(errors.New("invalid method " + method))
	}
	headers := buildHeaders(cfg.Headers)
	timeout := cfg.Timeout()

	policy := RetryPolicy{MaxRetries: cfg.MaxRetries, Backoff: h.Backoff}
	return policy.Do(ctx, func(ctx context.Context) (domain.Result, error) {
		actx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		var body io.Reader
		if cfg.Body != nil {
			body = strings.NewReader(*cfg.Body)
		}
		req, err := http.NewRequestWithContext(actx, method, cfg.URL, body)
		if err != nil {
			return domain.Result{}, err
		}
		req.Header = headers.Clone()

		start := time.Now()
		resp, err := h.Client.Do(req)
		if err != nil {
			return domain.Result{}, err
		}
		msg, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		_ = resp.Body.Close()
		elapsed := time.Since(start)
		if readErr != nil {
			msg = nil
		}

		return domain.Result{
			Success:        resp.StatusCode >= 200 && resp.StatusCode < 300,
			Code:           resp.StatusCode,
			ResponseTimeUS: elapsed.Microseconds(),
			Message:        bodyText(msg),
		}, nil
	})
}

// bodyText decodes a body lossily into text a TEXT column accepts: invalid
// UTF-8 becomes U+FFFD and NUL bytes are dropped.
func bodyText(b []byte) string {
	return strings.ReplaceAll(strings.ToValidUTF8(string(b), "\uFFFD"), "\x00", "")
}

// buildHeaders drops names or values that are not valid on the wire.
func buildHeaders(in map[string]string) http.Header {
	out := make(http.Header, len(in))
	for k, v := range in {
		if !httpguts.ValidHeaderFieldName(k) || !httpguts.ValidHeaderFieldValue(v) {
			continue
		}
		out.Set(k, v)
	}
	return out
}
