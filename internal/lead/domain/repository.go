package domain

import (
	"context"
	"time"

	membershipdomain "github.com/MnbNwz/aab-platform-sub003/internal/membership/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertRecord(ctx context.Context, db *gorm.DB, record *LeadAccessRecord) error
	DeleteRecord(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	CountInWindow(ctx context.Context, db *gorm.DB, contractorID snowflake.ID, from, to time.Time) (int64, error)

	// ListRecords pages the contractor's ledger newest first. beforeID
	// zero means start from the top; callers pass limit+1 semantics via
	// limit and trim themselves.
	ListRecords(ctx context.Context, db *gorm.DB, contractorID, beforeID snowflake.ID, limit int) ([]*LeadAccessRecord, error)

	// IncrementCounter bumps the window counter on the active period,
	// guarded by the limit when one exists. Returns false when the guard
	// rejected the increment.
	IncrementCounter(ctx context.Context, db *gorm.DB, periodID snowflake.ID, billing membershipdomain.BillingPeriod, limit *int) (bool, error)
	DecrementCounter(ctx context.Context, db *gorm.DB, periodID snowflake.ID, billing membershipdomain.BillingPeriod) error

	// ApplyReset persists a reconciled counter and the new last-reset
	// timestamp for the current window.
	ApplyReset(ctx context.Context, db *gorm.DB, periodID snowflake.ID, billing membershipdomain.BillingPeriod, used int, resetAt time.Time) error
}
