package repository

import (
	"context"
	"errors"
	"time"

	"github.com/MnbNwz/aab-platform-sub003/internal/bid/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type repository struct{}

func Provide() domain.Repository {
	return &repository{}
}

func (r *repository) Insert(ctx context.Context, db *gorm.DB, bid *domain.Bid) error {
	return db.WithContext(ctx).Create(bid).Error
}

func (r *repository) UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status domain.BidStatus, at time.Time) error {
	result := db.WithContext(ctx).
		Model(&domain.Bid{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": status, "updated_at": at})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&domain.Bid{}).Error
}

func (r *repository) ExistsActive(ctx context.Context, db *gorm.DB, contractorID, jobID snowflake.ID) (bool, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&domain.Bid{}).
		Where("contractor_id = ? AND job_id = ?", contractorID, jobID).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Bid, error) {
	var bid domain.Bid
	err := db.WithContext(ctx).Where("id = ?", id).First(&bid).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &bid, nil
}
