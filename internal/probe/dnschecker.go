package probe

import (
	"context"
	"net"
	"net/url"

	"github.com/hamed0406/fleetcheck/internal/domain"
)

// Diagnose resolves the host behind a check kind. ok is false for kinds
// whose host is an IP literal or cannot be extracted.
func Diagnose(ctx context.Context, kind domain.Kind) (DNSStatus, bool) {
	var host string
	switch k := kind.(type) {
	case *domain.HTTPCheck:
		host = extractHost(k.URL)
	case *domain.TCPCheck:
		host = k.Host
	}
	if host == "" || net.ParseIP(host) != nil {
		return DNSStatus{}, false
	}
	return CheckDNS(ctx, host), true
}

func extractHost(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	return u.Hostname()
}
