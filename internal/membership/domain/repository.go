package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindPlanByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*MembershipPlan, error)
	ListPlans(ctx context.Context, db *gorm.DB, category UserCategory) ([]MembershipPlan, error)

	InsertPeriod(ctx context.Context, db *gorm.DB, period *MembershipPeriod) error
	FindActivePeriodByUserID(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*MembershipPeriod, error)
	FindPeriodByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*MembershipPeriod, error)
	UpdatePeriodStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status PeriodStatus, at time.Time) error
	MarkExpiredDue(ctx context.Context, db *gorm.DB, now time.Time) (int64, error)
}
