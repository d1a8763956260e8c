package probe

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hamed0406/fleetcheck/internal/domain"
)

// scripted attempt you can control
type scripted struct {
	steps []error
	i     int
}

func (s *scripted) attempt(ctx context.Context) (domain.Result, error) {
	if s.i >= len(s.steps) {
		s.i++
		return domain.Result{}, errors.New("no more")
	}
	err := s.steps[s.i]
	s.i++
	if err != nil {
		return domain.Result{}, err
	}
	return domain.Result{Success: true, Code: 200, Message: "ok"}, nil
}

func TestRetryPolicy_SucceedsAfterRetry(t *testing.T) {
	s := &scripted{steps: []error{errors.New("first fail"), nil}}
	out := RetryPolicy{MaxRetries: 3, Backoff: 10 * time.Millisecond}.Do(context.Background(), s.attempt)
	if !out.Success || out.Code != 200 {
		t.Fatalf("expected success after retry, got %+v", out)
	}
	if s.i != 2 {
		t.Fatalf("expected 2 attempts, got %d", s.i)
	}
}

func TestRetryPolicy_AllFailKeepsLastError(t *testing.T) {
	s := &scripted{steps: []error{errors.New("fail1"), errors.New("fail2")}}
	out := RetryPolicy{MaxRetries: 1}.Do(context.Background(), s.attempt)
	if out.Success || out.Code != 0 || out.ResponseTimeUS != 0 {
		t.Fatalf("expected zeroed failure, got %+v", out)
	}
	if out.Message != "fail2" {
		t.Fatalf("expected last error, got %q", out.Message)
	}
	if s.i != 2 {
		t.Fatalf("expected 2 attempts, got %d", s.i)
	}
}

func TestRetryPolicy_NegativeRetriesStillAttemptsOnce(t *testing.T) {
	s := &scripted{steps: []error{errors.New("x")}}
	RetryPolicy{MaxRetries: -4}.Do(context.Background(), s.attempt)
	if s.i != 1 {
		t.Fatalf("expected 1 attempt, got %d", s.i)
	}
}
