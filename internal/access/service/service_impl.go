package service

import (
	"context"
	"errors"
	"slices"
	"time"

	accessdomain "github.com/MnbNwz/aab-platform-sub003/internal/access/domain"
	"github.com/MnbNwz/aab-platform-sub003/internal/clock"
	jobdomain "github.com/MnbNwz/aab-platform-sub003/internal/job/domain"
	membershipdomain "github.com/MnbNwz/aab-platform-sub003/internal/membership/domain"
	"github.com/MnbNwz/aab-platform-sub003/internal/observability/metrics"
	userdomain "github.com/MnbNwz/aab-platform-sub003/internal/user/domain"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

type ServiceParam struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	Clock         clock.Clock
	Metrics       *metrics.Metrics
	MembershipSvc membershipdomain.Service
	UserRepo      userdomain.Repository
	JobRepo       jobdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock

	metrics       *metrics.Metrics
	membershipSvc membershipdomain.Service
	userRepo      userdomain.Repository
	jobRepo       jobdomain.Repository
}

func NewService(p ServiceParam) accessdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("access.service"),
		clock: p.Clock,

		metrics:       p.Metrics,
		membershipSvc: p.MembershipSvc,
		userRepo:      p.UserRepo,
		jobRepo:       p.JobRepo,
	}
}

func (s *Service) CanAccessJob(ctx context.Context, contractorID, jobID snowflake.ID) error {
	user, plan, err := s.contractorPlan(ctx, contractorID)
	if err != nil {
		return err
	}

	job, err := s.jobRepo.FindByID(ctx, s.db, jobID)
	if err != nil {
		return err
	}

	if denial := s.evaluate(user, plan, job); denial != nil {
		s.metrics.RecordAccessDenied(ctx, string(denial.Reason))
		return denial
	}
	return nil
}

func (s *Service) ListVisibleJobs(ctx context.Context, contractorID snowflake.ID, req accessdomain.VisibleJobsRequest) (*accessdomain.VisibleJobsResponse, error) {
	user, plan, err := s.contractorPlan(ctx, contractorID)
	if err != nil {
		return nil, err
	}

	jobs, err := s.jobRepo.ListOpen(ctx, s.db, req.Filters)
	if err != nil {
		return nil, err
	}

	visible := make([]jobdomain.Job, 0, len(jobs))
	for _, job := range jobs {
		if len(user.Services) > 0 && !slices.Contains([]string(user.Services), job.Service) {
			continue
		}
		if denial := s.evaluate(user, plan, &job); denial != nil {
			continue
		}
		visible = append(visible, job)
	}

	page, limit := normalizePage(req.Page, req.Limit)
	start := (page - 1) * limit
	if start > len(visible) {
		start = len(visible)
	}
	end := start + limit
	if end > len(visible) {
		end = len(visible)
	}

	return &accessdomain.VisibleJobsResponse{
		Jobs:  visible[start:end],
		Page:  page,
		Limit: limit,
		Total: len(visible),
	}, nil
}

// evaluate runs the three gates in order: off-market, access delay, radius.
// The predicates are independent; the first failing gate names the denial.
func (s *Service) evaluate(user *userdomain.User, plan *membershipdomain.EffectivePlan, job *jobdomain.Job) *accessdomain.DeniedError {
	if job.Type == jobdomain.JobTypeOffMarket && !plan.Benefits.OffMarketAccess {
		return &accessdomain.DeniedError{Reason: accessdomain.ReasonOffMarketRestricted}
	}

	accessAt := job.CreatedAt.Add(time.Duration(plan.Benefits.AccessDelayHours) * time.Hour)
	if s.clock.Now().Before(accessAt) {
		return &accessdomain.DeniedError{Reason: accessdomain.ReasonAccessDelay, AccessAt: &accessAt}
	}

	// The radius gate only fires when all three inputs are known: a
	// finite plan radius, a contractor home point and job coordinates.
	if plan.Benefits.RadiusKm != nil && user.HasHomeLocation() && job.Property != nil {
		distance := haversineKm(*user.HomeLat, *user.HomeLng, job.Property.Lat, job.Property.Lng)
		if distance > *plan.Benefits.RadiusKm {
			return &accessdomain.DeniedError{
				Reason:     accessdomain.ReasonOutsideRadius,
				DistanceKm: &distance,
				RadiusKm:   plan.Benefits.RadiusKm,
			}
		}
	}
	return nil
}

func (s *Service) contractorPlan(ctx context.Context, contractorID snowflake.ID) (*userdomain.User, *membershipdomain.EffectivePlan, error) {
	if contractorID == 0 {
		return nil, nil, membershipdomain.ErrInvalidUser
	}
	user, err := s.userRepo.FindByID(ctx, s.db, contractorID)
	if err != nil {
		if errors.Is(err, userdomain.ErrNotFound) {
			return nil, nil, membershipdomain.ErrInvalidUser
		}
		return nil, nil, err
	}
	plan, err := s.membershipSvc.EffectivePlan(ctx, contractorID)
	if err != nil {
		return nil, nil, err
	}
	return user, plan, nil
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	return page, limit
}
