package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidUser     = errors.New("invalid_user")
	ErrInvalidPlan     = errors.New("invalid_plan")
	ErrPlanNotFound    = errors.New("plan_not_found")
	ErrPeriodNotFound  = errors.New("membership_period_not_found")
	ErrNoActivePeriod  = errors.New("no_active_membership_period")
	ErrUpgradeInFlight = errors.New("upgrade_already_in_progress")
)

// PlanMismatchError rejects an upgrade before any write: cross-category
// plans, tier downgrades and no-op same-plan requests.
type PlanMismatchError struct {
	Reason string
}

func (e *PlanMismatchError) Error() string {
	return fmt.Sprintf("plan mismatch: %s", e.Reason)
}

func NewPlanMismatchError(reason string) error {
	return &PlanMismatchError{Reason: reason}
}

// IsPlanMismatch reports whether err is a plan-mismatch rejection.
func IsPlanMismatch(err error) bool {
	var target *PlanMismatchError
	return errors.As(err, &target)
}
