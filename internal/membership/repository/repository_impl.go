package repository

import (
	"context"
	"errors"
	"time"

	"github.com/MnbNwz/aab-platform-sub003/internal/membership/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type repository struct{}

func Provide() domain.Repository {
	return &repository{}
}

func (r *repository) FindPlanByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.MembershipPlan, error) {
	var plan domain.MembershipPlan
	err := db.WithContext(ctx).
		Where("id = ?", id).
		First(&plan).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrPlanNotFound
	}
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

func (r *repository) ListPlans(ctx context.Context, db *gorm.DB, category domain.UserCategory) ([]domain.MembershipPlan, error) {
	query := db.WithContext(ctx).Model(&domain.MembershipPlan{})
	if category != "" {
		query = query.Where("user_category = ?", category)
	}

	var plans []domain.MembershipPlan
	if err := query.Order("tier").Find(&plans).Error; err != nil {
		return nil, err
	}
	return plans, nil
}

func (r *repository) InsertPeriod(ctx context.Context, db *gorm.DB, period *domain.MembershipPeriod) error {
	return db.WithContext(ctx).Create(period).Error
}

func (r *repository) FindActivePeriodByUserID(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*domain.MembershipPeriod, error) {
	var period domain.MembershipPeriod
	err := db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, domain.PeriodStatusActive).
		Order("start_at DESC").
		First(&period).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNoActivePeriod
	}
	if err != nil {
		return nil, err
	}
	return &period, nil
}

func (r *repository) FindPeriodByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.MembershipPeriod, error) {
	var period domain.MembershipPeriod
	err := db.WithContext(ctx).
		Where("id = ?", id).
		First(&period).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrPeriodNotFound
	}
	if err != nil {
		return nil, err
	}
	return &period, nil
}

func (r *repository) UpdatePeriodStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status domain.PeriodStatus, at time.Time) error {
	result := db.WithContext(ctx).
		Model(&domain.MembershipPeriod{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     status,
			"updated_at": at,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrPeriodNotFound
	}
	return nil
}

func (r *repository) MarkExpiredDue(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	result := db.WithContext(ctx).
		Model(&domain.MembershipPeriod{}).
		Where("status = ? AND end_at <= ?", domain.PeriodStatusActive, now).
		Updates(map[string]any{
			"status":     domain.PeriodStatusExpired,
			"updated_at": now,
		})
	return result.RowsAffected, result.Error
}
