package repository

import (
	"context"
	"errors"

	"github.com/MnbNwz/aab-platform-sub003/internal/job/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repository struct{}

func Provide() domain.Repository {
	return &repository{}
}

func (r *repository) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Job, error) {
	var job domain.Job
	err := db.WithContext(ctx).
		Preload("Property").
		Where("id = ?", id).
		First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *repository) ListOpen(ctx context.Context, db *gorm.DB, req domain.ListRequest) ([]domain.Job, error) {
	query := db.WithContext(ctx).
		Preload("Property").
		Where("status = ?", domain.JobStatusOpen)
	if req.Service != "" {
		query = query.Where("service = ?", req.Service)
	}
	if req.Type != "" {
		query = query.Where("type = ?", req.Type)
	}
	if req.Since != nil {
		query = query.Where("created_at >= ?", *req.Since)
	}

	var jobs []domain.Job
	if err := query.Order("created_at DESC, id DESC").Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// AppendBidRef pushes the bid onto the job's ref list. Read-modify-write
// under a row lock keeps the JSON array consistent across dialects.
func (r *repository) AppendBidRef(ctx context.Context, db *gorm.DB, jobID, bidID snowflake.ID) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job domain.Job
		if err := forUpdate(tx).
			Where("id = ?", jobID).
			First(&job).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrNotFound
			}
			return err
		}

		job.BidRefs = append(job.BidRefs, bidID.String())
		return tx.Model(&domain.Job{}).
			Where("id = ?", jobID).
			Updates(map[string]any{
				"bid_refs":  job.BidRefs,
				"bid_count": gorm.Expr("bid_count + 1"),
			}).Error
	})
}

// forUpdate adds a row lock on dialects that have one. SQLite is a single
// writer and rejects the clause.
func forUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

func (r *repository) RemoveBidRef(ctx context.Context, db *gorm.DB, jobID, bidID snowflake.ID) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job domain.Job
		if err := forUpdate(tx).
			Where("id = ?", jobID).
			First(&job).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrNotFound
			}
			return err
		}

		ref := bidID.String()
		kept := job.BidRefs[:0]
		removed := false
		for _, existing := range job.BidRefs {
			if !removed && existing == ref {
				removed = true
				continue
			}
			kept = append(kept, existing)
		}
		if !removed {
			return nil
		}

		return tx.Model(&domain.Job{}).
			Where("id = ? AND bid_count > 0", jobID).
			Updates(map[string]any{
				"bid_refs":  kept,
				"bid_count": gorm.Expr("bid_count - 1"),
			}).Error
	})
}
