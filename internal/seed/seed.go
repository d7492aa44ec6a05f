// Package seed installs the static membership plan catalog on startup so a
// fresh database is usable out of the box.
package seed

import (
	"context"
	"errors"

	membershipdomain "github.com/MnbNwz/aab-platform-sub003/internal/membership/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

// catalog returns the six shipped plans: three tiers per user category.
// Tier and category form the natural key; IDs are generated on insert.
func catalog() []membershipdomain.MembershipPlan {
	return []membershipdomain.MembershipPlan{
		{
			Tier:               membershipdomain.TierBasic,
			UserCategory:       membershipdomain.CategoryContractor,
			Name:               "Contractor Basic",
			LeadsPerMonth:      intPtr(25),
			AccessDelayHours:   24,
			RadiusKm:           floatPtr(15),
			MaxProperties:      intPtr(1),
			PlatformFeePercent: 20,
			PropertyType:       membershipdomain.PropertyTypeDomestic,
			MonthlyPriceCents:  2900,
			YearlyPriceCents:   29000,
		},
		{
			Tier:               membershipdomain.TierStandard,
			UserCategory:       membershipdomain.CategoryContractor,
			Name:               "Contractor Standard",
			LeadsPerMonth:      intPtr(50),
			AccessDelayHours:   12,
			RadiusKm:           floatPtr(30),
			MaxProperties:      intPtr(5),
			PlatformFeePercent: 15,
			PropertyType:       membershipdomain.PropertyTypeDomestic,
			FeaturedListing:    true,
			MonthlyPriceCents:  5900,
			YearlyPriceCents:   59000,
		},
		{
			Tier:               membershipdomain.TierPremium,
			UserCategory:       membershipdomain.CategoryContractor,
			Name:               "Contractor Premium",
			LeadsPerMonth:      nil,
			AccessDelayHours:   0,
			RadiusKm:           nil,
			MaxProperties:      nil,
			PlatformFeePercent: 10,
			PropertyType:       membershipdomain.PropertyTypeCommercial,
			OffMarketAccess:    true,
			FeaturedListing:    true,
			PrioritySupport:    true,
			MonthlyPriceCents:  9900,
			YearlyPriceCents:   99000,
		},
		{
			Tier:               membershipdomain.TierBasic,
			UserCategory:       membershipdomain.CategoryCustomer,
			Name:               "Customer Basic",
			LeadsPerMonth:      intPtr(0),
			AccessDelayHours:   0,
			RadiusKm:           nil,
			MaxProperties:      intPtr(1),
			PlatformFeePercent: 0,
			PropertyType:       membershipdomain.PropertyTypeDomestic,
			MonthlyPriceCents:  0,
			YearlyPriceCents:   0,
		},
		{
			Tier:               membershipdomain.TierStandard,
			UserCategory:       membershipdomain.CategoryCustomer,
			Name:               "Customer Standard",
			LeadsPerMonth:      intPtr(0),
			AccessDelayHours:   0,
			RadiusKm:           nil,
			MaxProperties:      intPtr(5),
			PlatformFeePercent: 0,
			PropertyType:       membershipdomain.PropertyTypeDomestic,
			PrioritySupport:    true,
			MonthlyPriceCents:  1900,
			YearlyPriceCents:   19000,
		},
		{
			Tier:               membershipdomain.TierPremium,
			UserCategory:       membershipdomain.CategoryCustomer,
			Name:               "Customer Premium",
			LeadsPerMonth:      intPtr(0),
			AccessDelayHours:   0,
			RadiusKm:           nil,
			MaxProperties:      nil,
			PlatformFeePercent: 0,
			PropertyType:       membershipdomain.PropertyTypeCommercial,
			OffMarketAccess:    true,
			PrioritySupport:    true,
			MonthlyPriceCents:  3900,
			YearlyPriceCents:   39000,
		},
	}
}

// EnsurePlanCatalog inserts any catalog plan missing from the database.
// Existing rows are left untouched: operators may tune benefits in place
// and the seeder will not fight them.
func EnsurePlanCatalog(db *gorm.DB, node *snowflake.Node) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}
	if node == nil {
		return errors.New("seed id node is required")
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, plan := range catalog() {
			var existing membershipdomain.MembershipPlan
			err := tx.Where("tier = ? AND user_category = ?", plan.Tier, plan.UserCategory).
				First(&existing).Error
			if err == nil {
				continue
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}

			plan.ID = node.Generate()
			if err := tx.Create(&plan).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
