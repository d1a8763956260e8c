package probe

import (
	"context"
	"time"

	"github.com/hamed0406/fleetcheck/internal/domain"
)

// Checker runs one probe (including its retries) for a check kind.
//
// Check never fails: transport and configuration problems are folded into
// the returned Result (Success=false, Code=0, ResponseTimeUS=0). The caller
// assigns ID and ServiceID.
type Checker interface {
	Check(ctx context.Context, kind domain.Kind) domain.Result
}

func failed(err error) domain.Result {
	return domain.Result{
		Success:   false,
		Message:   err.Error(),
		CreatedAt: time.Now().UTC(),
	}
}
