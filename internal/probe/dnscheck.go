package probe

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"
)

const (
	DNSResolves        = "RESOLVES"
	DNSNoAddress       = "NO_A_RECORD"
	DNSNXDomain        = "NXDOMAIN"
	DNSServfailTimeout = "SERVFAIL_or_TIMEOUT"
	DNSInvalidName     = "INVALID_NAME"
)

type DNSStatus struct {
	Domain        string
	IPs           []net.IP
	CNAME         string
	Nameservers   []string
	Class         string
	ResolverError string
}

var dnsTimeout = 3 * time.Second

// CheckDNS classifies how a host name resolves. It is diagnostic only and
// never feeds into a stored result.
func CheckDNS(ctx context.Context, host string) DNSStatus {
	s := DNSStatus{Domain: strings.TrimSpace(host)}
	if s.Domain == "" || strings.Contains(s.Domain, "://") {
		s.Class = DNSInvalidName
		return s
	}

	ctx, cancel := context.WithTimeout(ctx, dnsTimeout)
	defer cancel()
	var r net.Resolver

	ips, err := r.LookupIP(ctx, "ip", s.Domain)
	s.IPs = ips
	if err != nil {
		s.ResolverError = err.Error()
	}
	if cname, err := r.LookupCNAME(ctx, s.Domain); err == nil && !strings.EqualFold(cname, s.Domain+".") {
		s.CNAME = strings.TrimSuffix(cname, ".")
	}
	if ns, err := r.LookupNS(ctx, s.Domain); err == nil {
		for _, n := range ns {
			s.Nameservers = append(s.Nameservers, strings.TrimSuffix(n.Host, "."))
		}
	}

	s.Class = classify(len(s.IPs) > 0, len(s.Nameservers) > 0, err)
	return s
}

func classify(hasAddr, hasNS bool, lookupErr error) string {
	switch {
	case hasAddr:
		return DNSResolves
	case hasNS:
		return DNSNoAddress
	}
	var de *net.DNSError
	if errors.As(lookupErr, &de) && (de.IsTemporary || de.Timeout()) {
		return DNSServfailTimeout
	}
	if lookupErr != nil && !errors.As(lookupErr, &de) {
		return DNSServfailTimeout
	}
	return DNSNXDomain
}
