package probe

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/hamed0406/fleetcheck/internal/domain"
)

// countingTransport counts round trips and can fail the first N of them.
type countingTransport struct {
	inner     http.RoundTripper
	calls     atomic.Int32
	failFirst int32
}

func (c *countingTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	n := c.calls.Add(1)
	if n <= c.failFirst {
		return nil, errors.New("connection reset by peer")
	}
	return c.inner.RoundTrip(r)
}

func newCountingChecker(failFirst int32) (*HTTPChecker, *countingTransport) {
	ct := &countingTransport{inner: http.DefaultTransport.(*http.Transport).Clone(), failFirst: failFirst}
	chk := NewHTTPChecker(0)
	chk.Client = &http.Client{Transport: ct}
	return chk, ct
}

func httpCfg(url string, retries int) *domain.HTTPCheck {
	return &domain.HTTPCheck{URL: url, Method: "GET", TimeoutSeconds: 2, MaxRetries: retries}
}

func TestHTTPChecker_StatusOK(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
		w.Write([]byte("ok"))
	}))
	defer s.Close()

	out := NewHTTPChecker(0).CheckHTTP(context.Background(), httpCfg(s.URL, 0))
	if !out.Success || out.Code != 200 {
		t.Fatalf("want success 200, got %+v", out)
	}
	if out.Message != "ok" {
		t.Fatalf("want body as message, got %q", out.Message)
	}
	if out.ResponseTimeUS < 0 || out.CreatedAt.IsZero() {
		t.Fatalf("bad timing fields: %+v", out)
	}
}

func TestHTTPChecker_Status500_NoRetry(t *testing.T) {
	var hits atomic.Int32
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "boom", 500)
	}))
	defer s.Close()

	out := NewHTTPChecker(0).CheckHTTP(context.Background(), httpCfg(s.URL, 2))
	if out.Success || out.Code != 500 {
		t.Fatalf("want failure with 500, got %+v", out)
	}
	if hits.Load() != 1 {
		t.Fatalf("a received response must not be retried; hits=%d", hits.Load())
	}
	if out.Message != "boom\n" {
		t.Fatalf("want body as message, got %q", out.Message)
	}
}

func TestHTTPChecker_ConnectionRefused_ExhaustsAttempts(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := l.Addr().String()
	l.Close()

	chk, ct := newCountingChecker(0)
	out := chk.CheckHTTP(context.Background(), httpCfg("http://"+addr+"/health", 2))
	if got := ct.calls.Load(); got != 3 {
		t.Fatalf("want 3 attempts, got %d", got)
	}
	if out.Success || out.Code != 0 || out.ResponseTimeUS != 0 {
		t.Fatalf("want zeroed failure, got %+v", out)
	}
	if out.Message == "" {
		t.Fatalf("want last transport error as message")
	}
}

func TestHTTPChecker_SucceedsAfterTransportFailure(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(204)
	}))
	defer s.Close()

	chk, ct := newCountingChecker(1)
	out := chk.CheckHTTP(context.Background(), httpCfg(s.URL, 3))
	if !out.Success || out.Code != 204 {
		t.Fatalf("want success on second attempt, got %+v", out)
	}
	if ct.calls.Load() != 2 {
		t.Fatalf("want 2 attempts, got %d", ct.calls.Load())
	}
}

func TestHTTPChecker_MalformedURL_NoAttempt(t *testing.T) {
	chk, ct := newCountingChecker(0)
	out := chk.CheckHTTP(context.Background(), httpCfg("ht!tp://nope", 5))
	if out.Success || out.Code != 0 || out.Message == "" {
		t.Fatalf("want hard failure, got %+v", out)
	}
	if ct.calls.Load() != 0 {
		t.Fatalf("malformed URL must not be attempted, got %d calls", ct.calls.Load())
	}
}

func TestHTTPChecker_TimeoutSetsStatusZero(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(3 * time.Second):
		}
		w.WriteHeader(200)
	}))
	defer s.Close()

	cfg := httpCfg(s.URL, 0)
	cfg.TimeoutSeconds = 1
	out := NewHTTPChecker(0).CheckHTTP(context.Background(), cfg)
	if out.Success || out.Code != 0 || out.ResponseTimeUS != 0 {
		t.Fatalf("want failure due to timeout, got %+v", out)
	}
	if out.Message == "" {
		t.Fatalf("want non-empty error message")
	}
}

func TestHTTPChecker_MethodBodyAndHeaders(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.Header.Get("X-Token") != "abc" {
			w.WriteHeader(400)
			return
		}
		if r.Header.Get("Bad Name") != "" {
			w.WriteHeader(400)
			return
		}
		b, _ := io.ReadAll(r.Body)
		w.WriteHeader(201)
		w.Write(b)
	}))
	defer s.Close()

	body := "ping"
	cfg := &domain.HTTPCheck{
		URL:    s.URL,
		Method: "post",
		Headers: map[string]string{
			"X-Token":  "abc",
			"Bad Name": "dropped",
			"X-Broken": "line\nbreak",
		},
		Body:           &body,
		TimeoutSeconds: 2,
	}
	out := NewHTTPChecker(0).CheckHTTP(context.Background(), cfg)
	if !out.Success || out.Code != 201 || out.Message != "ping" {
		t.Fatalf("unexpected result: %+v", out)
	}
}

func TestBuildHeaders_DropsInvalid(t *testing.T) {
	h := buildHeaders(map[string]string{
		"Accept":    "application/json",
		"bad name":  "x",
		"X-Control": "a\x00b",
	})
	if len(h) != 1 || h.Get("Accept") != "application/json" {
		t.Fatalf("unexpected headers: %v", h)
	}
}

func TestHTTPChecker_BinaryBodyBecomesValidText(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.WriteHeader(200)
		w.Write([]byte{0x89, 'P', 'N', 'G', 0x00, 0xff})
	}))
	defer s.Close()

	out := NewHTTPChecker(0).CheckHTTP(context.Background(), httpCfg(s.URL, 0))
	if !out.Success || out.Code != 200 {
		t.Fatalf("want success 200, got %+v", out)
	}
	if !utf8.ValidString(out.Message) {
		t.Fatalf("message is not valid UTF-8: %q", out.Message)
	}
	if strings.ContainsRune(out.Message, 0) {
		t.Fatalf("message contains NUL: %q", out.Message)
	}
	if !strings.Contains(out.Message, "PNG") {
		t.Fatalf("printable bytes should survive: %q", out.Message)
	}
}

func TestBodyText(t *testing.T) {
	cases := map[string]string{
		"ok":                "ok",
		"a\x00b":            "ab",
		"caf\xe9":           "caf�",
		"\xff\xfe\x00plain": "�plain",
	}
	for in, want := range cases {
		if got := bodyText([]byte(in)); got != want {
			t.Fatalf("bodyText(%q) = %q, want %q", in, got, want)
		}
	}
}
