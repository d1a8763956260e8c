package domain

import (
	"time"

	"github.com/google/uuid"
)

// Result is the immutable outcome of one check attempt sequence.
// Code is 0 and ResponseTimeUS is 0 when no response was ever obtained.
type Result struct {
	ID             uuid.UUID `json:"id"`
	ServiceID      uuid.UUID `json:"service_id"`
	Success        bool      `json:"success"`
	Code           int       `json:"code"`
	ResponseTimeUS int64     `json:"response_time"` // microseconds
	Message        string    `json:"message"`
	CreatedAt      time.Time `json:"created_at"`
}
