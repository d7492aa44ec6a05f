// Package domain contains the append-only lead consumption ledger and the
// limit read model.
package domain

import (
	"time"

	membershipdomain "github.com/MnbNwz/aab-platform-sub003/internal/membership/domain"
	"github.com/bwmarrin/snowflake"
)

// LeadAccessRecord is one consumed lead credit. Never mutated; deleted only
// as saga compensation.
type LeadAccessRecord struct {
	ID            snowflake.ID                   `gorm:"primaryKey"`
	ContractorID  snowflake.ID                   `gorm:"not null;index:idx_lead_access_contractor_time,priority:1"`
	JobID         snowflake.ID                   `gorm:"not null;index"`
	Tier          membershipdomain.PlanTier      `gorm:"type:text;not null"`
	BillingPeriod membershipdomain.BillingPeriod `gorm:"type:text;not null"`
	ConsumedAt    time.Time                      `gorm:"not null;index:idx_lead_access_contractor_time,priority:2"`
}

// TableName sets the database table name.
func (LeadAccessRecord) TableName() string { return "lead_access_records" }

// LimitResult reports the current window's consumption state.
type LimitResult struct {
	CanAccess bool `json:"can_access"`
	Unlimited bool `json:"unlimited"`

	Limit     *int       `json:"limit"`
	Used      int        `json:"used"`
	Remaining *int       `json:"remaining"`
	ResetAt   *time.Time `json:"reset_at,omitempty"`

	Tier          membershipdomain.PlanTier      `json:"tier"`
	BillingPeriod membershipdomain.BillingPeriod `json:"billing_period"`
}
