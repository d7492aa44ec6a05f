package server

import (
	"errors"
	"net/http"

	accessdomain "github.com/MnbNwz/aab-platform-sub003/internal/access/domain"
	biddomain "github.com/MnbNwz/aab-platform-sub003/internal/bid/domain"
	jobdomain "github.com/MnbNwz/aab-platform-sub003/internal/job/domain"
	leaddomain "github.com/MnbNwz/aab-platform-sub003/internal/lead/domain"
	membershipdomain "github.com/MnbNwz/aab-platform-sub003/internal/membership/domain"
	userdomain "github.com/MnbNwz/aab-platform-sub003/internal/user/domain"
	"github.com/gin-gonic/gin"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`

	// Denial detail for machine-readable business outcomes.
	Reason     string   `json:"reason,omitempty"`
	ResetAt    string   `json:"reset_at,omitempty"`
	AccessAt   string   `json:"access_at,omitempty"`
	DistanceKm *float64 `json:"distance_km,omitempty"`

	Errors []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrInvalidRequest  = errors.New("invalid_request")
	ErrTooManyRequests = errors.New("too_many_requests")
)

// ErrorHandlingMiddleware converts errors collected on the gin context into
// one JSON error response. Business denials (limit, access, mismatch) keep
// their detail; everything unexpected collapses to a generic 500.
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	var limitErr *leaddomain.LimitExceededError
	if errors.As(err, &limitErr) {
		return http.StatusForbidden, errorPayload{
			Type:    "lead_limit_exceeded",
			Message: limitErr.Error(),
			Reason:  "lead_limit_exceeded",
			ResetAt: limitErr.ResetAt.UTC().Format(timeFormat),
		}
	}

	if denial, ok := accessdomain.IsDenied(err); ok {
		payload := errorPayload{
			Type:       "access_denied",
			Message:    denial.Error(),
			Reason:     string(denial.Reason),
			DistanceKm: denial.DistanceKm,
		}
		if denial.AccessAt != nil {
			payload.AccessAt = denial.AccessAt.UTC().Format(timeFormat)
		}
		return http.StatusForbidden, payload
	}

	var mismatch *membershipdomain.PlanMismatchError
	if errors.As(err, &mismatch) {
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "plan_mismatch",
			Message: mismatch.Error(),
			Reason:  "plan_mismatch",
		}
	}

	var saga *biddomain.SagaError
	if errors.As(err, &saga) {
		return http.StatusConflict, errorPayload{
			Type:    "bid_rolled_back",
			Message: saga.Error(),
			Reason:  "bid_rolled_back",
		}
	}

	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, biddomain.ErrInvalidBid),
		errors.Is(err, leaddomain.ErrInvalidPageToken),
		errors.Is(err, membershipdomain.ErrInvalidPlan):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "invalid request",
		}
	case errors.Is(err, membershipdomain.ErrInvalidUser),
		errors.Is(err, leaddomain.ErrInvalidContractor),
		errors.Is(err, userdomain.ErrNotFound),
		errors.Is(err, jobdomain.ErrNotFound),
		errors.Is(err, biddomain.ErrNotFound),
		errors.Is(err, membershipdomain.ErrPlanNotFound),
		errors.Is(err, membershipdomain.ErrPeriodNotFound):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, leaddomain.ErrNotContractor):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "only contractors consume leads",
		}
	case errors.Is(err, biddomain.ErrBidExists):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "a bid for this job already exists",
		}
	case errors.Is(err, biddomain.ErrJobNotOpen):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "job is not open for bids",
		}
	case errors.Is(err, membershipdomain.ErrUpgradeInFlight):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "an upgrade for this user is already in progress",
		}
	case errors.Is(err, ErrTooManyRequests):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog feeds the request logger a compact type/code pair
// without leaking internals into access logs.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	if status >= http.StatusInternalServerError {
		return "internal", payload.Type
	}
	return "business", payload.Type
}

const timeFormat = "2006-01-02T15:04:05Z07:00"
