package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidContractor = errors.New("invalid_contractor")
	ErrNotContractor     = errors.New("user_is_not_a_contractor")
	ErrInvalidPageToken  = errors.New("invalid_page_token")
)

// LimitExceededError is an expected business outcome, not a defect: the
// contractor spent the window's pool. Carries the next reset for display.
type LimitExceededError struct {
	ResetAt time.Time
	Limit   int
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("lead limit of %d reached, resets at %s", e.Limit, e.ResetAt.Format(time.RFC3339))
}

// IsLimitExceeded reports whether err is a lead-limit denial.
func IsLimitExceeded(err error) bool {
	var target *LimitExceededError
	return errors.As(err, &target)
}
