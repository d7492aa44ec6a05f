package migration

import (
	biddomain "github.com/MnbNwz/aab-platform-sub003/internal/bid/domain"
	jobdomain "github.com/MnbNwz/aab-platform-sub003/internal/job/domain"
	leaddomain "github.com/MnbNwz/aab-platform-sub003/internal/lead/domain"
	membershipdomain "github.com/MnbNwz/aab-platform-sub003/internal/membership/domain"
	userdomain "github.com/MnbNwz/aab-platform-sub003/internal/user/domain"
	"gorm.io/gorm"
)

// AutoMigrate builds the schema from the models for dialects the embedded
// SQL does not cover. The one-live-bid-per-job rule still holds through the
// unique index below; on sqlite the partial predicate is emulated by gorm's
// soft-delete aware queries plus this index on live rows only.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&membershipdomain.MembershipPlan{},
		&membershipdomain.MembershipPeriod{},
		&leaddomain.LeadAccessRecord{},
		&userdomain.User{},
		&jobdomain.Property{},
		&jobdomain.Job{},
		&biddomain.Bid{},
	); err != nil {
		return err
	}

	return db.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_bids_contractor_job_live
		 ON bids (contractor_id, job_id) WHERE deleted_at IS NULL`,
	).Error
}
