package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	leadservice "github.com/MnbNwz/aab-platform-sub003/internal/lead/service"
	membershipdomain "github.com/MnbNwz/aab-platform-sub003/internal/membership/domain"
	userdomain "github.com/MnbNwz/aab-platform-sub003/internal/user/domain"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	monthlyDurationDays = 30
	yearlyDurationDays  = 365
	yearlyMultiplier    = 12

	defaultPlatformFeePercent = 20.0

	upgradeLockTTL = 10 * time.Second
)

// Upgrade supersedes the active period with a new one carrying the merged
// snapshot. A user without an active period gets a plain purchase instead:
// the new plan's benefits verbatim, no merge, no carry-over.
func (s *Service) Upgrade(ctx context.Context, req membershipdomain.UpgradeRequest) (*membershipdomain.UpgradeResponse, error) {
	if req.UserID == 0 {
		return nil, membershipdomain.ErrInvalidUser
	}
	if req.NewPlanID == 0 {
		return nil, membershipdomain.ErrInvalidPlan
	}
	if req.BillingPeriod != membershipdomain.BillingMonthly && req.BillingPeriod != membershipdomain.BillingYearly {
		return nil, membershipdomain.ErrInvalidPlan
	}

	if s.locker != nil {
		key := fmt.Sprintf("membership:upgrade:%s", req.UserID)
		token, ok, err := s.locker.TryLock(ctx, key, upgradeLockTTL)
		if err != nil {
			s.log.Warn("upgrade lock unavailable, proceeding unlocked", zap.Error(err))
		} else if !ok {
			return nil, membershipdomain.ErrUpgradeInFlight
		} else {
			defer func() {
				if rerr := s.locker.Release(ctx, key, token); rerr != nil {
					s.log.Warn("failed to release upgrade lock", zap.Error(rerr))
				}
			}()
		}
	}

	user, err := s.userRepo.FindByID(ctx, s.db, req.UserID)
	if err != nil {
		if errors.Is(err, userdomain.ErrNotFound) {
			return nil, membershipdomain.ErrInvalidUser
		}
		return nil, err
	}

	newPlan, err := s.repo.FindPlanByID(ctx, s.db, req.NewPlanID)
	if err != nil {
		return nil, err
	}
	if newPlan.UserCategory != user.Category {
		return nil, membershipdomain.NewPlanMismatchError(
			fmt.Sprintf("plan %s is for %s accounts", newPlan.Tier, newPlan.UserCategory))
	}

	now := s.clock.Now()

	current, err := s.repo.FindActivePeriodByUserID(ctx, s.db, req.UserID)
	if err != nil {
		if errors.Is(err, membershipdomain.ErrNoActivePeriod) {
			return s.purchase(ctx, req, newPlan, now)
		}
		return nil, err
	}

	currentPlan, err := s.repo.FindPlanByID(ctx, s.db, current.PlanID)
	if err != nil {
		return nil, err
	}
	if newPlan.Tier.Rank() < currentPlan.Tier.Rank() {
		return nil, membershipdomain.NewPlanMismatchError(
			fmt.Sprintf("cannot downgrade from %s to %s", currentPlan.Tier, newPlan.Tier))
	}
	if newPlan.Tier.Rank() == currentPlan.Tier.Rank() && req.BillingPeriod == current.BillingPeriod {
		return nil, membershipdomain.NewPlanMismatchError(
			fmt.Sprintf("already on %s %s", currentPlan.Tier, current.BillingPeriod))
	}

	used, err := s.currentWindowUsage(ctx, current, now)
	if err != nil {
		return nil, err
	}
	accumulated := accumulateLeads(current, used, newPlan, req.BillingPeriod)

	snapshot := current.Snapshot.Merge(snapshotFromPlan(newPlan, req.BillingPeriod))
	snapshot.LeadsLimit = accumulated

	endAt := now.Add(time.Duration(daysRemaining(current.EndAt, now)+durationDays(req.BillingPeriod)) * 24 * time.Hour)

	next := &membershipdomain.MembershipPeriod{
		ID:              s.genID.Generate(),
		UserID:          req.UserID,
		PlanID:          newPlan.ID,
		Status:          membershipdomain.PeriodStatusActive,
		BillingPeriod:   req.BillingPeriod,
		StartAt:         now,
		EndAt:           endAt,
		Snapshot:        snapshot,
		LeadResetAnchor: now,
		LastResetAt:     now,
		UpgradedFromID:  &current.ID,
		Metadata: datatypes.JSONMap{
			"upgraded_from_tier": string(currentPlan.Tier),
		},
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.UpdatePeriodStatus(ctx, tx, current.ID, membershipdomain.PeriodStatusUpgraded, now); err != nil {
			return err
		}
		return s.repo.InsertPeriod(ctx, tx, next)
	})
	if err != nil {
		return nil, err
	}

	s.planCache.Invalidate(req.UserID)
	s.metrics.RecordUpgrade(ctx, string(newPlan.Tier))
	s.log.Info("membership upgraded",
		zap.String("user_id", req.UserID.String()),
		zap.String("from_tier", string(currentPlan.Tier)),
		zap.String("to_tier", string(newPlan.Tier)),
		zap.String("billing_period", string(req.BillingPeriod)))

	return &membershipdomain.UpgradeResponse{
		Period:           *next,
		AccumulatedLeads: accumulated,
		PreviousPeriodID: current.ID,
	}, nil
}

func (s *Service) purchase(ctx context.Context, req membershipdomain.UpgradeRequest, plan *membershipdomain.MembershipPlan, now time.Time) (*membershipdomain.UpgradeResponse, error) {
	snapshot := snapshotFromPlan(plan, req.BillingPeriod)

	period := &membershipdomain.MembershipPeriod{
		ID:              s.genID.Generate(),
		UserID:          req.UserID,
		PlanID:          plan.ID,
		Status:          membershipdomain.PeriodStatusActive,
		BillingPeriod:   req.BillingPeriod,
		StartAt:         now,
		EndAt:           now.Add(time.Duration(durationDays(req.BillingPeriod)) * 24 * time.Hour),
		Snapshot:        snapshot,
		LeadResetAnchor: now,
		LastResetAt:     now,
	}
	if err := s.repo.InsertPeriod(ctx, s.db, period); err != nil {
		return nil, err
	}

	s.planCache.Invalidate(req.UserID)
	s.metrics.RecordUpgrade(ctx, string(plan.Tier))
	s.log.Info("membership purchased",
		zap.String("user_id", req.UserID.String()),
		zap.String("tier", string(plan.Tier)),
		zap.String("billing_period", string(req.BillingPeriod)))

	return &membershipdomain.UpgradeResponse{
		Period:           *period,
		AccumulatedLeads: snapshot.LeadsLimit,
	}, nil
}

// currentWindowUsage returns the period's usage within the reset window
// containing now. A counter last reset before the window still holds a
// prior window's usage, so it is recounted from the ledger instead of
// trusted.
func (s *Service) currentWindowUsage(ctx context.Context, period *membershipdomain.MembershipPeriod, now time.Time) (int, error) {
	used := period.LeadsUsedMonth
	if period.BillingPeriod == membershipdomain.BillingYearly {
		used = period.LeadsUsedYear
	}

	window := leadservice.CurrentWindow(period.LeadResetAnchor, now, period.BillingPeriod)
	if !period.LastResetAt.Before(window.Start) {
		return used, nil
	}

	count, err := s.leadRepo.CountInWindow(ctx, s.db, period.UserID, window.Start, window.End)
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

// accumulateLeads carries the old window's unused credits into the new
// period's ceiling. Unlimited on either side wins.
func accumulateLeads(current *membershipdomain.MembershipPeriod, used int, plan *membershipdomain.MembershipPlan, billing membershipdomain.BillingPeriod) *int {
	newAllocation := allocation(plan, billing)
	if current.Snapshot.UnlimitedLeads() || newAllocation == nil {
		return nil
	}

	leftover := *current.Snapshot.LeadsLimit - used
	if leftover < 0 {
		leftover = 0
	}

	total := leftover + *newAllocation
	return &total
}

// allocation is the plan's per-window lead grant: the monthly figure, or
// twelve of them pooled for yearly billing.
func allocation(plan *membershipdomain.MembershipPlan, billing membershipdomain.BillingPeriod) *int {
	if plan.LeadsPerMonth == nil {
		return nil
	}
	n := *plan.LeadsPerMonth
	if billing == membershipdomain.BillingYearly {
		n *= yearlyMultiplier
	}
	return &n
}

func snapshotFromPlan(plan *membershipdomain.MembershipPlan, billing membershipdomain.BillingPeriod) membershipdomain.BenefitSnapshot {
	return membershipdomain.BenefitSnapshot{
		LeadsLimit:         allocation(plan, billing),
		AccessDelayHours:   plan.AccessDelayHours,
		RadiusKm:           plan.RadiusKm,
		MaxProperties:      plan.MaxProperties,
		PlatformFeePercent: plan.PlatformFeePercent,
		PropertyType:       plan.PropertyType,
		OffMarketAccess:    plan.OffMarketAccess,
		FeaturedListing:    plan.FeaturedListing,
		PrioritySupport:    plan.PrioritySupport,
	}
}

// daysRemaining rounds partial days up so the contractor never loses a day
// they paid for.
func daysRemaining(endAt, now time.Time) int {
	if !endAt.After(now) {
		return 0
	}
	return int((endAt.Sub(now) + 24*time.Hour - 1) / (24 * time.Hour))
}

func durationDays(billing membershipdomain.BillingPeriod) int {
	if billing == membershipdomain.BillingYearly {
		return yearlyDurationDays
	}
	return monthlyDurationDays
}
