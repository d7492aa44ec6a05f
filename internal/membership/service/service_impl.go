package service

import (
	"context"
	"errors"
	"time"

	"github.com/MnbNwz/aab-platform-sub003/internal/cache"
	"github.com/MnbNwz/aab-platform-sub003/internal/clock"
	"github.com/MnbNwz/aab-platform-sub003/internal/config"
	leaddomain "github.com/MnbNwz/aab-platform-sub003/internal/lead/domain"
	membershipdomain "github.com/MnbNwz/aab-platform-sub003/internal/membership/domain"
	"github.com/MnbNwz/aab-platform-sub003/internal/observability/metrics"
	"github.com/MnbNwz/aab-platform-sub003/internal/ratelimit"
	userdomain "github.com/MnbNwz/aab-platform-sub003/internal/user/domain"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// defaultAnchorAge backdates the fallback plan's start so freshly signed-up
// contractors are not blocked by the access delay on day-old jobs.
const defaultAnchorAge = 24 * time.Hour

type ServiceParam struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	EngineCfg *config.EngineConfigHolder
	Metrics   *metrics.Metrics
	PlanCache cache.EffectivePlanCache
	Locker    *ratelimit.Locker `optional:"true"`
	Repo      membershipdomain.Repository
	UserRepo  userdomain.Repository
	LeadRepo  leaddomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock

	engineCfg *config.EngineConfigHolder
	metrics   *metrics.Metrics
	planCache cache.EffectivePlanCache
	locker    *ratelimit.Locker

	repo     membershipdomain.Repository
	userRepo userdomain.Repository
	leadRepo leaddomain.Repository
}

func NewService(p ServiceParam) membershipdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("membership.service"),
		genID: p.GenID,
		clock: p.Clock,

		engineCfg: p.EngineCfg,
		metrics:   p.Metrics,
		planCache: p.PlanCache,
		locker:    p.Locker,

		repo:     p.Repo,
		userRepo: p.UserRepo,
		leadRepo: p.LeadRepo,
	}
}

func (s *Service) EffectivePlan(ctx context.Context, userID snowflake.ID) (*membershipdomain.EffectivePlan, error) {
	if userID == 0 {
		return nil, membershipdomain.ErrInvalidUser
	}
	if cached, ok := s.planCache.Get(userID); ok {
		return &cached, nil
	}

	user, err := s.userRepo.FindByID(ctx, s.db, userID)
	if err != nil {
		if errors.Is(err, userdomain.ErrNotFound) {
			return nil, membershipdomain.ErrInvalidUser
		}
		return nil, err
	}

	period, err := s.repo.FindActivePeriodByUserID(ctx, s.db, userID)
	if err != nil {
		if errors.Is(err, membershipdomain.ErrNoActivePeriod) {
			plan := s.defaultPlan(user)
			s.planCache.Set(userID, plan)
			return &plan, nil
		}
		return nil, err
	}

	catalogPlan, err := s.repo.FindPlanByID(ctx, s.db, period.PlanID)
	if err != nil {
		return nil, err
	}

	plan := membershipdomain.EffectivePlan{
		UserID:        userID,
		PeriodID:      &period.ID,
		PlanID:        &period.PlanID,
		Tier:          catalogPlan.Tier,
		UserCategory:  user.Category,
		BillingPeriod: period.BillingPeriod,
		StartAt:       period.StartAt,
		EndAt:         &period.EndAt,
		Benefits:      period.Snapshot,
	}
	s.planCache.Set(userID, plan)
	return &plan, nil
}

func (s *Service) ListPlans(ctx context.Context, category membershipdomain.UserCategory) ([]membershipdomain.MembershipPlan, error) {
	return s.repo.ListPlans(ctx, s.db, category)
}

func (s *Service) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	count, err := s.repo.MarkExpiredDue(ctx, s.db, now)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		// Stale cache entries for the affected users age out within the
		// plan cache TTL.
		s.log.Info("expired due membership periods", zap.Int64("count", count))
	}
	return count, nil
}

// defaultPlan is the no-purchase fallback. Benefits come from the hot
// reloaded engine config; the start is backdated by defaultAnchorAge.
func (s *Service) defaultPlan(user *userdomain.User) membershipdomain.EffectivePlan {
	cfg := s.engineCfg.Get().DefaultPlan
	leads := cfg.LeadsPerMonth
	radius := cfg.RadiusKm
	maxProperties := 1

	return membershipdomain.EffectivePlan{
		UserID:        user.ID,
		Tier:          membershipdomain.TierBasic,
		UserCategory:  user.Category,
		BillingPeriod: membershipdomain.BillingMonthly,
		StartAt:       s.clock.Now().Add(-defaultAnchorAge),
		Benefits: membershipdomain.BenefitSnapshot{
			LeadsLimit:         &leads,
			AccessDelayHours:   cfg.AccessDelayHours,
			RadiusKm:           &radius,
			MaxProperties:      &maxProperties,
			PlatformFeePercent: defaultPlatformFeePercent,
			PropertyType:       membershipdomain.PropertyTypeDomestic,
		},
	}
}
