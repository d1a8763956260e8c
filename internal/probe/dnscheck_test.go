package probe

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/hamed0406/fleetcheck/internal/domain"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name  string
		addr  bool
		ns    bool
		err   error
		class string
	}{
		{"resolves", true, false, nil, DNSResolves},
		{"ns only", false, true, nil, DNSNoAddress},
		{"nxdomain", false, false, &net.DNSError{Err: "no such host", IsNotFound: true}, DNSNXDomain},
		{"timeout", false, false, &net.DNSError{Err: "i/o timeout", IsTimeout: true}, DNSServfailTimeout},
		{"other", false, false, errors.New("weird"), DNSServfailTimeout},
	}
	for _, c := range cases {
		if got := classify(c.addr, c.ns, c.err); got != c.class {
			t.Errorf("%s: got %s want %s", c.name, got, c.class)
		}
	}
}

func TestCheckDNS_InvalidName(t *testing.T) {
	if s := CheckDNS(context.Background(), "http://x"); s.Class != DNSInvalidName {
		t.Fatalf("got %s", s.Class)
	}
}

func TestDiagnose_SkipsLiteralsAndTCP(t *testing.T) {
	if _, ok := Diagnose(context.Background(), &domain.HTTPCheck{URL: "http://127.0.0.1:9/x"}); ok {
		t.Fatal("ip literal should not be diagnosed")
	}
	if _, ok := Diagnose(context.Background(), &domain.TCPCheck{Host: "10.0.0.1", Port: 22}); ok {
		t.Fatal("ip literal should not be diagnosed")
	}
}
