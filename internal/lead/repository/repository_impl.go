package repository

import (
	"context"
	"time"

	"github.com/MnbNwz/aab-platform-sub003/internal/lead/domain"
	membershipdomain "github.com/MnbNwz/aab-platform-sub003/internal/membership/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type repository struct{}

func Provide() domain.Repository {
	return &repository{}
}

func (r *repository) InsertRecord(ctx context.Context, db *gorm.DB, record *domain.LeadAccessRecord) error {
	return db.WithContext(ctx).Create(record).Error
}

func (r *repository) DeleteRecord(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&domain.LeadAccessRecord{}).Error
}

func (r *repository) CountInWindow(ctx context.Context, db *gorm.DB, contractorID snowflake.ID, from, to time.Time) (int64, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&domain.LeadAccessRecord{}).
		Where("contractor_id = ? AND consumed_at >= ? AND consumed_at < ?", contractorID, from, to).
		Count(&count).Error
	return count, err
}

func (r *repository) ListRecords(ctx context.Context, db *gorm.DB, contractorID, beforeID snowflake.ID, limit int) ([]*domain.LeadAccessRecord, error) {
	query := db.WithContext(ctx).
		Where("contractor_id = ?", contractorID).
		Order("id DESC").
		Limit(limit)
	if beforeID != 0 {
		query = query.Where("id < ?", beforeID)
	}

	var records []*domain.LeadAccessRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// IncrementCounter performs the conditional bump in one statement so two
// concurrent bids cannot both pass a nearly-spent limit.
func (r *repository) IncrementCounter(ctx context.Context, db *gorm.DB, periodID snowflake.ID, billing membershipdomain.BillingPeriod, limit *int) (bool, error) {
	column := counterColumn(billing)
	query := db.WithContext(ctx).
		Model(&membershipdomain.MembershipPeriod{}).
		Where("id = ?", periodID)
	if limit != nil {
		query = query.Where(column+" < ?", *limit)
	}

	result := query.UpdateColumn(column, gorm.Expr(column+" + 1"))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) DecrementCounter(ctx context.Context, db *gorm.DB, periodID snowflake.ID, billing membershipdomain.BillingPeriod) error {
	column := counterColumn(billing)
	return db.WithContext(ctx).
		Model(&membershipdomain.MembershipPeriod{}).
		Where("id = ? AND "+column+" > 0", periodID).
		UpdateColumn(column, gorm.Expr(column+" - 1")).Error
}

func (r *repository) ApplyReset(ctx context.Context, db *gorm.DB, periodID snowflake.ID, billing membershipdomain.BillingPeriod, used int, resetAt time.Time) error {
	return db.WithContext(ctx).
		Model(&membershipdomain.MembershipPeriod{}).
		Where("id = ?", periodID).
		Updates(map[string]any{
			counterColumn(billing): used,
			"last_reset_at":        resetAt,
			"updated_at":           resetAt,
		}).Error
}

func counterColumn(billing membershipdomain.BillingPeriod) string {
	if billing == membershipdomain.BillingYearly {
		return "leads_used_year"
	}
	return "leads_used_month"
}
