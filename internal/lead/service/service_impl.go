package service

import (
	"context"
	"errors"

	"github.com/MnbNwz/aab-platform-sub003/internal/clock"
	"github.com/MnbNwz/aab-platform-sub003/internal/config"
	leaddomain "github.com/MnbNwz/aab-platform-sub003/internal/lead/domain"
	membershipdomain "github.com/MnbNwz/aab-platform-sub003/internal/membership/domain"
	"github.com/MnbNwz/aab-platform-sub003/internal/observability/metrics"
	userdomain "github.com/MnbNwz/aab-platform-sub003/internal/user/domain"
	"github.com/MnbNwz/aab-platform-sub003/pkg/db/pagination"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB             *gorm.DB
	Log            *zap.Logger
	GenID          *snowflake.Node
	Clock          clock.Clock
	EngineCfg      *config.EngineConfigHolder
	Metrics        *metrics.Metrics
	Repo           leaddomain.Repository
	UserRepo       userdomain.Repository
	MembershipRepo membershipdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock

	engineCfg *config.EngineConfigHolder
	metrics   *metrics.Metrics

	repo           leaddomain.Repository
	userRepo       userdomain.Repository
	membershipRepo membershipdomain.Repository
}

func NewService(p ServiceParam) leaddomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("lead.service"),
		genID: p.GenID,
		clock: p.Clock,

		engineCfg: p.EngineCfg,
		metrics:   p.Metrics,

		repo:           p.Repo,
		userRepo:       p.UserRepo,
		membershipRepo: p.MembershipRepo,
	}
}

func (s *Service) CheckLimit(ctx context.Context, userID snowflake.ID) (*leaddomain.LimitResult, error) {
	if _, err := s.contractor(ctx, userID); err != nil {
		return nil, err
	}

	now := s.clock.Now()

	period, err := s.membershipRepo.FindActivePeriodByUserID(ctx, s.db, userID)
	if err != nil {
		if errors.Is(err, membershipdomain.ErrNoActivePeriod) {
			return s.defaultLimit(ctx, userID)
		}
		return nil, err
	}

	window := CurrentWindow(period.LeadResetAnchor, now, period.BillingPeriod)
	used, err := s.reconciledUsed(ctx, period, window)
	if err != nil {
		return nil, err
	}

	result := &leaddomain.LimitResult{
		Used:          used,
		Tier:          s.periodTier(ctx, period),
		BillingPeriod: period.BillingPeriod,
	}
	if period.Snapshot.UnlimitedLeads() {
		result.CanAccess = true
		result.Unlimited = true
		return result, nil
	}

	limit := *period.Snapshot.LeadsLimit
	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}
	result.Limit = &limit
	result.Remaining = &remaining
	result.ResetAt = &window.End
	result.CanAccess = remaining > 0
	return result, nil
}

func (s *Service) Consume(ctx context.Context, contractorID, jobID snowflake.ID) (*leaddomain.LeadAccessRecord, error) {
	if _, err := s.contractor(ctx, contractorID); err != nil {
		return nil, err
	}

	now := s.clock.Now()

	period, err := s.membershipRepo.FindActivePeriodByUserID(ctx, s.db, contractorID)
	if err != nil {
		if errors.Is(err, membershipdomain.ErrNoActivePeriod) {
			return s.consumeDefault(ctx, contractorID, jobID)
		}
		return nil, err
	}

	window := CurrentWindow(period.LeadResetAnchor, now, period.BillingPeriod)
	if _, err := s.reconciledUsed(ctx, period, window); err != nil {
		return nil, err
	}

	tier := s.periodTier(ctx, period)
	limit := period.Snapshot.LeadsLimit

	ok, err := s.repo.IncrementCounter(ctx, s.db, period.ID, period.BillingPeriod, limit)
	if err != nil {
		return nil, err
	}
	if !ok {
		// The guard rejected: either the pool really is spent, or the
		// counter drifted high. Recount the ledger and retry once.
		ok, err = s.retryAfterRecount(ctx, period, window, limit)
		if err != nil {
			return nil, err
		}
		if !ok {
			s.metrics.RecordLeadLimitDenied(ctx, string(tier))
			return nil, &leaddomain.LimitExceededError{ResetAt: window.End, Limit: derefInt(limit)}
		}
	}

	record := &leaddomain.LeadAccessRecord{
		ID:            s.genID.Generate(),
		ContractorID:  contractorID,
		JobID:         jobID,
		Tier:          tier,
		BillingPeriod: period.BillingPeriod,
		ConsumedAt:    now,
	}
	if err := s.repo.InsertRecord(ctx, s.db, record); err != nil {
		// Put the credit back so a failed insert does not leak one. The
		// insert may have failed on a cancelled context, so the rollback
		// runs detached from it.
		rbCtx := context.WithoutCancel(ctx)
		if derr := s.repo.DecrementCounter(rbCtx, s.db, period.ID, period.BillingPeriod); derr != nil {
			s.log.Error("failed to roll back lead counter",
				zap.String("period_id", period.ID.String()), zap.Error(derr))
		}
		return nil, err
	}

	s.metrics.RecordLeadConsumed(ctx, string(tier))
	return record, nil
}

func (s *Service) Release(ctx context.Context, contractorID, recordID snowflake.ID) error {
	if err := s.repo.DeleteRecord(ctx, s.db, recordID); err != nil {
		return err
	}

	period, err := s.membershipRepo.FindActivePeriodByUserID(ctx, s.db, contractorID)
	if err != nil {
		if errors.Is(err, membershipdomain.ErrNoActivePeriod) {
			// Default-tier usage is counted from the ledger, so the
			// record deletion alone returns the credit.
			return nil
		}
		return err
	}
	return s.repo.DecrementCounter(ctx, s.db, period.ID, period.BillingPeriod)
}

func (s *Service) History(ctx context.Context, userID snowflake.ID, page pagination.Pagination) (*leaddomain.HistoryResult, error) {
	if _, err := s.contractor(ctx, userID); err != nil {
		return nil, err
	}

	size := page.PageSize
	if size <= 0 {
		size = 10
	}

	var beforeID snowflake.ID
	if page.PageToken != "" {
		cursor, err := pagination.DecodeCursor(page.PageToken)
		if err != nil {
			return nil, leaddomain.ErrInvalidPageToken
		}
		id, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return nil, leaddomain.ErrInvalidPageToken
		}
		beforeID = id
	}

	// Fetch one extra row to learn whether another page exists.
	records, err := s.repo.ListRecords(ctx, s.db, userID, beforeID, size+1)
	if err != nil {
		return nil, err
	}

	pageInfo := pagination.BuildCursorPageInfo(records, int32(size), func(r *leaddomain.LeadAccessRecord) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{ID: r.ID.String()})
		if err != nil {
			return ""
		}
		return token
	})
	if len(records) > size {
		records = records[:size]
	}

	return &leaddomain.HistoryResult{Records: records, PageInfo: pageInfo}, nil
}

// reconciledUsed returns the window's consumption, recounting the ledger
// and rewriting the counter when the reset boundary has been crossed since
// the last reconciliation. Readers self-heal the counter this way instead
// of relying on a scheduled reset job.
func (s *Service) reconciledUsed(ctx context.Context, period *membershipdomain.MembershipPeriod, window Window) (int, error) {
	used := period.LeadsUsedMonth
	if period.BillingPeriod == membershipdomain.BillingYearly {
		used = period.LeadsUsedYear
	}

	if !period.LastResetAt.Before(window.Start) {
		return used, nil
	}

	count, err := s.repo.CountInWindow(ctx, s.db, period.UserID, window.Start, window.End)
	if err != nil {
		return 0, err
	}

	now := s.clock.Now()
	if err := s.repo.ApplyReset(ctx, s.db, period.ID, period.BillingPeriod, int(count), now); err != nil {
		return 0, err
	}

	s.log.Info("lead window reset",
		zap.String("period_id", period.ID.String()),
		zap.Int("previous_used", used),
		zap.Int64("recounted_used", count),
		zap.Time("window_start", window.Start))

	period.LastResetAt = now
	if period.BillingPeriod == membershipdomain.BillingYearly {
		period.LeadsUsedYear = int(count)
	} else {
		period.LeadsUsedMonth = int(count)
	}
	return int(count), nil
}

// retryAfterRecount handles a rejected increment by recounting the ledger.
// A drifted-high counter gets corrected and the increment retried; a true
// spent pool stays rejected.
func (s *Service) retryAfterRecount(ctx context.Context, period *membershipdomain.MembershipPeriod, window Window, limit *int) (bool, error) {
	count, err := s.repo.CountInWindow(ctx, s.db, period.UserID, window.Start, window.End)
	if err != nil {
		return false, err
	}
	if limit != nil && int(count) >= *limit {
		return false, nil
	}

	if err := s.repo.ApplyReset(ctx, s.db, period.ID, period.BillingPeriod, int(count), s.clock.Now()); err != nil {
		return false, err
	}
	s.log.Warn("lead counter drifted above ledger, reconciled",
		zap.String("period_id", period.ID.String()),
		zap.Int64("ledger_count", count))

	return s.repo.IncrementCounter(ctx, s.db, period.ID, period.BillingPeriod, limit)
}

// defaultLimit serves contractors without a purchased period. There is no
// counter row to reconcile; usage is counted straight from the ledger over
// the calendar month.
func (s *Service) defaultLimit(ctx context.Context, userID snowflake.ID) (*leaddomain.LimitResult, error) {
	window := calendarMonthWindow(s.clock.Now())
	count, err := s.repo.CountInWindow(ctx, s.db, userID, window.Start, window.End)
	if err != nil {
		return nil, err
	}

	limit := s.engineCfg.Get().DefaultPlan.LeadsPerMonth
	used := int(count)
	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}

	return &leaddomain.LimitResult{
		CanAccess:     remaining > 0,
		Limit:         &limit,
		Used:          used,
		Remaining:     &remaining,
		ResetAt:       &window.End,
		Tier:          membershipdomain.TierBasic,
		BillingPeriod: membershipdomain.BillingMonthly,
	}, nil
}

func (s *Service) consumeDefault(ctx context.Context, contractorID, jobID snowflake.ID) (*leaddomain.LeadAccessRecord, error) {
	now := s.clock.Now()
	window := calendarMonthWindow(now)
	count, err := s.repo.CountInWindow(ctx, s.db, contractorID, window.Start, window.End)
	if err != nil {
		return nil, err
	}

	limit := s.engineCfg.Get().DefaultPlan.LeadsPerMonth
	if int(count) >= limit {
		s.metrics.RecordLeadLimitDenied(ctx, string(membershipdomain.TierBasic))
		return nil, &leaddomain.LimitExceededError{ResetAt: window.End, Limit: limit}
	}

	record := &leaddomain.LeadAccessRecord{
		ID:            s.genID.Generate(),
		ContractorID:  contractorID,
		JobID:         jobID,
		Tier:          membershipdomain.TierBasic,
		BillingPeriod: membershipdomain.BillingMonthly,
		ConsumedAt:    now,
	}
	if err := s.repo.InsertRecord(ctx, s.db, record); err != nil {
		return nil, err
	}

	s.metrics.RecordLeadConsumed(ctx, string(membershipdomain.TierBasic))
	return record, nil
}

func (s *Service) contractor(ctx context.Context, userID snowflake.ID) (*userdomain.User, error) {
	if userID == 0 {
		return nil, leaddomain.ErrInvalidContractor
	}
	user, err := s.userRepo.FindByID(ctx, s.db, userID)
	if err != nil {
		if errors.Is(err, userdomain.ErrNotFound) {
			return nil, leaddomain.ErrInvalidContractor
		}
		return nil, err
	}
	if user.Category != membershipdomain.CategoryContractor {
		return nil, leaddomain.ErrNotContractor
	}
	return user, nil
}

func (s *Service) periodTier(ctx context.Context, period *membershipdomain.MembershipPeriod) membershipdomain.PlanTier {
	plan, err := s.membershipRepo.FindPlanByID(ctx, s.db, period.PlanID)
	if err != nil {
		s.log.Warn("failed to resolve plan tier for period",
			zap.String("period_id", period.ID.String()), zap.Error(err))
		return membershipdomain.TierBasic
	}
	return plan.Tier
}

func derefInt(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
