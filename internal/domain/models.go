package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/http/httpguts"
)

var (
	ErrInvalidKind     = errors.New("invalid check kind")
	ErrInvalidInterval = errors.New("interval must be positive")
	ErrInvalidName     = errors.New("service name is required")
	ErrNotFound        = errors.New("not found")
)

const (
	DefaultMethod     = "GET"
	DefaultTimeout    = 5 // seconds
	DefaultMaxRetries = 3

	KindHTTP = "http"
	KindTCP  = "tcp"
)

// Service is a monitored target. NextRun is owned by the scheduler.
type Service struct {
	ID        uuid.UUID
	Name      string
	Kind      Kind
	Interval  time.Duration
	NextRun   time.Time
	CreatedAt time.Time
}

type serviceJSON struct {
	ID        uuid.UUID  `json:"id"`
	Name      string     `json:"name"`
	Kind      KindConfig `json:"kind"`
	Interval  int64      `json:"interval"` // seconds
	NextRun   time.Time  `json:"next_run"`
	CreatedAt time.Time  `json:"created_at"`
}

func (s Service) MarshalJSON() ([]byte, error) {
	return json.Marshal(serviceJSON{
		ID:        s.ID,
		Name:      s.Name,
		Kind:      ConfigOf(s.Kind),
		Interval:  int64(s.Interval / time.Second),
		NextRun:   s.NextRun,
		CreatedAt: s.CreatedAt,
	})
}

func (s *Service) UnmarshalJSON(b []byte) error {
	var raw serviceJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	k, err := raw.Kind.Kind()
	if err != nil {
		return err
	}
	*s = Service{
		ID:        raw.ID,
		Name:      raw.Name,
		Kind:      k,
		Interval:  time.Duration(raw.Interval) * time.Second,
		NextRun:   raw.NextRun,
		CreatedAt: raw.CreatedAt,
	}
	return nil
}

// Due reports whether the service should be checked at now.
func (s Service) Due(now time.Time) bool {
	return !s.NextRun.After(now)
}

// Kind is the closed set of probe configurations: *HTTPCheck or *TCPCheck.
type Kind interface {
	Name() string
	Validate() error
	Retries() int
	Timeout() time.Duration
}

type HTTPCheck struct {
	URL            string
	Method         string
	Headers        map[string]string
	Body           *string
	TimeoutSeconds int
	MaxRetries     int
}

func (h *HTTPCheck) Name() string { return KindHTTP }

func (h *HTTPCheck) Retries() int { return h.MaxRetries }

func (h *HTTPCheck) Timeout() time.Duration {
	return time.Duration(h.TimeoutSeconds) * time.Second
}

func (h *HTTPCheck) Validate() error {
	if err := ValidateHTTPURL(h.URL); err != nil {
		return err
	}
	if h.Method != "" && !httpguts.ValidHeaderFieldName(h.Method) {
		return fmt.Errorf("%w: bad method %q", ErrInvalidKind, h.Method)
	}
	return validateLimits(h.TimeoutSeconds, h.MaxRetries)
}

// ValidateHTTPURL accepts absolute http(s) URLs with a host.
func ValidateHTTPURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidKind, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: unsupported scheme %q", ErrInvalidKind, u.Scheme)
	}
	if u.Host == "" || u.Hostname() == "" {
		return fmt.Errorf("%w: missing host in %q", ErrInvalidKind, raw)
	}
	return nil
}

type TCPCheck struct {
	Host           string
	Port           int
	TimeoutSeconds int
	MaxRetries     int
}

func (t *TCPCheck) Name() string { return KindTCP }

func (t *TCPCheck) Retries() int { return t.MaxRetries }

func (t *TCPCheck) Timeout() time.Duration {
	return time.Duration(t.TimeoutSeconds) * time.Second
}

func (t *TCPCheck) Validate() error {
	if strings.TrimSpace(t.Host) == "" {
		return fmt.Errorf("%w: tcp host is required", ErrInvalidKind)
	}
	if t.Port < 1 || t.Port > 65535 {
		return fmt.Errorf("%w: tcp port %d out of range", ErrInvalidKind, t.Port)
	}
	return validateLimits(t.TimeoutSeconds, t.MaxRetries)
}

func validateLimits(timeout, retries int) error {
	if timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive", ErrInvalidKind)
	}
	if retries < 0 || retries > 255 {
		return fmt.Errorf("%w: max_retries must be within 0..255", ErrInvalidKind)
	}
	return nil
}

// KindConfig is the flat, internally tagged encoding of a Kind used by the
// API, the YAML loader and the services.config column.
type KindConfig struct {
	Type       string            `json:"type" yaml:"type"`
	URL        string            `json:"url,omitempty" yaml:"url,omitempty"`
	Method     string            `json:"method,omitempty" yaml:"method,omitempty"`
	Headers    map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Body       *string           `json:"body,omitempty" yaml:"body,omitempty"`
	Host       string            `json:"host,omitempty" yaml:"host,omitempty"`
	Port       int               `json:"port,omitempty" yaml:"port,omitempty"`
	Timeout    *int              `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	MaxRetries *int              `json:"max_retries,omitempty" yaml:"max_retries,omitempty"`
}

// Kind builds and validates the concrete check, filling defaults.
func (c KindConfig) Kind() (Kind, error) {
	timeout, retries := DefaultTimeout, DefaultMaxRetries
	if c.Timeout != nil {
		timeout = *c.Timeout
	}
	if c.MaxRetries != nil {
		retries = *c.MaxRetries
	}

	var k Kind
	switch strings.ToLower(strings.TrimSpace(c.Type)) {
	case KindHTTP:
		method := strings.ToUpper(strings.TrimSpace(c.Method))
		if method == "" {
			method = DefaultMethod
		}
		k = &HTTPCheck{
			URL:            strings.TrimSpace(c.URL),
			Method:         method,
			Headers:        c.Headers,
			Body:           c.Body,
			TimeoutSeconds: timeout,
			MaxRetries:     retries,
		}
	case KindTCP:
		k = &TCPCheck{
			Host:           strings.TrimSpace(c.Host),
			Port:           c.Port,
			TimeoutSeconds: timeout,
			MaxRetries:     retries,
		}
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidKind, c.Type)
	}
	if err := k.Validate(); err != nil {
		return nil, err
	}
	return k, nil
}

// ConfigOf is the inverse of KindConfig.Kind.
func ConfigOf(k Kind) KindConfig {
	switch v := k.(type) {
	case *HTTPCheck:
		t, r := v.TimeoutSeconds, v.MaxRetries
		return KindConfig{
			Type:       KindHTTP,
			URL:        v.URL,
			Method:     v.Method,
			Headers:    v.Headers,
			Body:       v.Body,
			Timeout:    &t,
			MaxRetries: &r,
		}
	case *TCPCheck:
		t, r := v.TimeoutSeconds, v.MaxRetries
		return KindConfig{
			Type:       KindTCP,
			Host:       v.Host,
			Port:       v.Port,
			Timeout:    &t,
			MaxRetries: &r,
		}
	}
	return KindConfig{}
}

// EncodeKind/DecodeKind are used for the JSONB config column.
func EncodeKind(k Kind) ([]byte, error) {
	return json.Marshal(ConfigOf(k))
}

func DecodeKind(b []byte) (Kind, error) {
	var c KindConfig
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKind, err)
	}
	return c.Kind()
}
