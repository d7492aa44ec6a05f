package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

type UpgradeRequest struct {
	UserID        snowflake.ID
	NewPlanID     snowflake.ID
	BillingPeriod BillingPeriod
}

type UpgradeResponse struct {
	Period           MembershipPeriod `json:"period"`
	AccumulatedLeads *int             `json:"accumulated_leads"`
	PreviousPeriodID snowflake.ID     `json:"previous_period_id"`
}

type Service interface {
	// EffectivePlan resolves the merged benefit snapshot for a user.
	// Pure read; falls back to the default plan when no period is active.
	EffectivePlan(ctx context.Context, userID snowflake.ID) (*EffectivePlan, error)

	// Upgrade supersedes the active period with a new one carrying the
	// merged snapshot and the accumulated lead ceiling.
	Upgrade(ctx context.Context, req UpgradeRequest) (*UpgradeResponse, error)

	ListPlans(ctx context.Context, category UserCategory) ([]MembershipPlan, error)

	// ExpireDue closes periods whose end date has passed.
	ExpireDue(ctx context.Context, now time.Time) (int64, error)
}
