// Package domain defines the job visibility gate contracts: every denial is
// machine readable so callers can render upgrade prompts or countdowns.
package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	jobdomain "github.com/MnbNwz/aab-platform-sub003/internal/job/domain"
	"github.com/bwmarrin/snowflake"
)

// DenialReason identifies which gate rejected the contractor.
type DenialReason string

const (
	ReasonOffMarketRestricted DenialReason = "off_market_restricted"
	ReasonAccessDelay         DenialReason = "access_delay"
	ReasonOutsideRadius       DenialReason = "outside_radius"
)

// DeniedError is an expected business outcome carrying the gate that fired
// and, where meaningful, when or how far.
type DeniedError struct {
	Reason DenialReason `json:"reason"`

	// AccessAt is set for access_delay denials: the instant the job
	// unlocks for this contractor's tier.
	AccessAt *time.Time `json:"access_at,omitempty"`

	// DistanceKm is set for outside_radius denials.
	DistanceKm *float64 `json:"distance_km,omitempty"`
	RadiusKm   *float64 `json:"radius_km,omitempty"`
}

func (e *DeniedError) Error() string {
	switch e.Reason {
	case ReasonAccessDelay:
		if e.AccessAt != nil {
			return fmt.Sprintf("job locked until %s", e.AccessAt.Format(time.RFC3339))
		}
		return "job is still inside the access delay"
	case ReasonOutsideRadius:
		if e.DistanceKm != nil && e.RadiusKm != nil {
			return fmt.Sprintf("job is %.1f km away, radius is %.1f km", *e.DistanceKm, *e.RadiusKm)
		}
		return "job is outside the service radius"
	case ReasonOffMarketRestricted:
		return "off-market jobs require a plan with off-market access"
	default:
		return string(e.Reason)
	}
}

// IsDenied reports whether err is an access denial and returns it typed.
func IsDenied(err error) (*DeniedError, bool) {
	var target *DeniedError
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// VisibleJobsRequest filters the open-job listing before the gates run.
type VisibleJobsRequest struct {
	Filters jobdomain.ListRequest
	Page    int
	Limit   int
}

// VisibleJobsResponse carries one page of gate-passing jobs.
type VisibleJobsResponse struct {
	Jobs  []jobdomain.Job `json:"jobs"`
	Page  int             `json:"page"`
	Limit int             `json:"limit"`
	Total int             `json:"total"`
}

type Service interface {
	// CanAccessJob runs the off-market, delay and radius gates for one
	// job. nil means the contractor may view and bid; a *DeniedError
	// names the gate that fired.
	CanAccessJob(ctx context.Context, contractorID, jobID snowflake.ID) error

	// ListVisibleJobs lists open jobs the contractor can access, after
	// service matching, filters, the three gates and pagination.
	ListVisibleJobs(ctx context.Context, contractorID snowflake.ID, req VisibleJobsRequest) (*VisibleJobsResponse, error)
}
