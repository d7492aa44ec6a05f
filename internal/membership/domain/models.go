// Package domain contains persistence models for membership plans and
// purchased membership periods.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// PlanTier orders the catalog tiers.
type PlanTier string

const (
	TierBasic    PlanTier = "basic"
	TierStandard PlanTier = "standard"
	TierPremium  PlanTier = "premium"
)

// Rank returns the ordering of a tier; unknown tiers rank lowest.
func (t PlanTier) Rank() int {
	switch t {
	case TierBasic:
		return 1
	case TierStandard:
		return 2
	case TierPremium:
		return 3
	default:
		return 0
	}
}

type UserCategory string

const (
	CategoryCustomer   UserCategory = "customer"
	CategoryContractor UserCategory = "contractor"
)

type BillingPeriod string

const (
	BillingMonthly BillingPeriod = "monthly"
	BillingYearly  BillingPeriod = "yearly"
)

type PropertyTypeTier string

const (
	PropertyTypeDomestic   PropertyTypeTier = "domestic"
	PropertyTypeCommercial PropertyTypeTier = "commercial"
)

// PeriodStatus represents lifecycle states for a membership period.
type PeriodStatus string

const (
	PeriodStatusActive    PeriodStatus = "active"
	PeriodStatusUpgraded  PeriodStatus = "upgraded"
	PeriodStatusCancelled PeriodStatus = "cancelled"
	PeriodStatusExpired   PeriodStatus = "expired"
)

// MembershipPlan is a static catalog entry. Nil on a numeric benefit means
// unlimited, never "unset": catalog rows are always fully populated.
type MembershipPlan struct {
	ID           snowflake.ID `gorm:"primaryKey"`
	Tier         PlanTier     `gorm:"type:text;not null;uniqueIndex:ux_membership_plans_tier_category,priority:1"`
	UserCategory UserCategory `gorm:"type:text;not null;uniqueIndex:ux_membership_plans_tier_category,priority:2"`
	Name         string       `gorm:"type:text;not null"`

	LeadsPerMonth      *int             `gorm:""`
	AccessDelayHours   int              `gorm:"not null"`
	RadiusKm           *float64         `gorm:""`
	MaxProperties      *int             `gorm:""`
	PlatformFeePercent float64          `gorm:"not null"`
	PropertyType       PropertyTypeTier `gorm:"type:text;not null"`
	OffMarketAccess    bool             `gorm:"not null;default:false"`
	FeaturedListing    bool             `gorm:"not null;default:false"`
	PrioritySupport    bool             `gorm:"not null;default:false"`

	MonthlyPriceCents int64 `gorm:"not null"`
	YearlyPriceCents  int64 `gorm:"not null"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (MembershipPlan) TableName() string { return "membership_plans" }

// MembershipPeriod is one purchase or upgrade event. The embedded benefit
// snapshot is immutable once written; reads always use the snapshot, never
// the raw plan, so upgrades can never regress a benefit.
type MembershipPeriod struct {
	ID            snowflake.ID  `gorm:"primaryKey"`
	UserID        snowflake.ID  `gorm:"not null;index"`
	PlanID        snowflake.ID  `gorm:"not null;index"`
	Status        PeriodStatus  `gorm:"type:text;not null;index"`
	BillingPeriod BillingPeriod `gorm:"type:text;not null"`
	StartAt       time.Time     `gorm:"not null"`
	EndAt         time.Time     `gorm:"not null"`

	Snapshot BenefitSnapshot `gorm:"embedded;embeddedPrefix:benefit_"`

	// Lead counters for the active reset window. Only one of the two is
	// live at a time, selected by BillingPeriod.
	LeadsUsedMonth  int       `gorm:"not null;default:0"`
	LeadsUsedYear   int       `gorm:"not null;default:0"`
	LeadResetAnchor time.Time `gorm:"not null"`
	LastResetAt     time.Time `gorm:"not null"`

	UpgradedFromID *snowflake.ID     `gorm:"index"`
	Metadata       datatypes.JSONMap `gorm:"type:jsonb"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (MembershipPeriod) TableName() string { return "membership_periods" }

// EffectivePlan is the resolver's read model: the active period's snapshot,
// or the hardcoded default for users without one.
type EffectivePlan struct {
	UserID        snowflake.ID    `json:"user_id"`
	PeriodID      *snowflake.ID   `json:"period_id,omitempty"`
	PlanID        *snowflake.ID   `json:"plan_id,omitempty"`
	Tier          PlanTier        `json:"tier"`
	UserCategory  UserCategory    `json:"user_category"`
	BillingPeriod BillingPeriod   `json:"billing_period"`
	StartAt       time.Time       `json:"start_at"`
	EndAt         *time.Time      `json:"end_at,omitempty"`
	Benefits      BenefitSnapshot `json:"benefits"`
}

// IsDefault reports whether the plan is the no-purchase fallback.
func (p EffectivePlan) IsDefault() bool { return p.PeriodID == nil }
