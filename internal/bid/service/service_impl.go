package service

import (
	"context"
	"sync"

	accessdomain "github.com/MnbNwz/aab-platform-sub003/internal/access/domain"
	biddomain "github.com/MnbNwz/aab-platform-sub003/internal/bid/domain"
	"github.com/MnbNwz/aab-platform-sub003/internal/clock"
	"github.com/MnbNwz/aab-platform-sub003/internal/config"
	jobdomain "github.com/MnbNwz/aab-platform-sub003/internal/job/domain"
	leaddomain "github.com/MnbNwz/aab-platform-sub003/internal/lead/domain"
	"github.com/MnbNwz/aab-platform-sub003/internal/observability/metrics"
	"github.com/MnbNwz/aab-platform-sub003/pkg/db"
	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const (
	stepConsumeLead  = "consume_lead"
	stepAppendBidRef = "append_bid_ref"
	stepCommitBid    = "commit_bid"
)

type ServiceParam struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	EngineCfg *config.EngineConfigHolder
	Metrics   *metrics.Metrics
	Repo      biddomain.Repository
	JobRepo   jobdomain.Repository
	LeadSvc   leaddomain.Service
	AccessSvc accessdomain.Service
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock

	engineCfg *config.EngineConfigHolder
	metrics   *metrics.Metrics

	repo      biddomain.Repository
	jobRepo   jobdomain.Repository
	leadSvc   leaddomain.Service
	accessSvc accessdomain.Service
}

func NewService(p ServiceParam) biddomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("bid.service"),
		genID: p.GenID,
		clock: p.Clock,

		engineCfg: p.EngineCfg,
		metrics:   p.Metrics,

		repo:      p.Repo,
		jobRepo:   p.JobRepo,
		leadSvc:   p.LeadSvc,
		accessSvc: p.AccessSvc,
	}
}

// compensation undoes one landed saga write. Registered on success, run in
// reverse on failure.
type compensation struct {
	step string
	fn   func(ctx context.Context) error
}

func (s *Service) PlaceBid(ctx context.Context, req biddomain.PlaceBidRequest) (*biddomain.PlaceBidResponse, error) {
	if req.ContractorID == 0 || req.JobID == 0 || req.AmountCents <= 0 {
		return nil, biddomain.ErrInvalidBid
	}

	tracer := otel.Tracer("aabengine/bid")
	ctx, span := tracer.Start(ctx, "bid.place")
	defer span.End()
	span.SetAttributes(
		attribute.String("bid.contractor_id", req.ContractorID.String()),
		attribute.String("bid.job_id", req.JobID.String()),
	)

	ctx, cancel := context.WithTimeout(ctx, s.engineCfg.Get().SagaTimeout)
	defer cancel()

	// Preconditions are linear; typed denials pass through untouched so
	// the caller can tell a spent limit from a locked job.
	job, err := s.jobRepo.FindByID(ctx, s.db, req.JobID)
	if err != nil {
		return nil, err
	}
	if job.Status != jobdomain.JobStatusOpen {
		return nil, biddomain.ErrJobNotOpen
	}

	exists, err := s.repo.ExistsActive(ctx, s.db, req.ContractorID, req.JobID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, biddomain.ErrBidExists
	}

	if err := s.accessSvc.CanAccessJob(ctx, req.ContractorID, req.JobID); err != nil {
		return nil, err
	}

	limit, err := s.leadSvc.CheckLimit(ctx, req.ContractorID)
	if err != nil {
		return nil, err
	}
	if !limit.CanAccess {
		denial := &leaddomain.LimitExceededError{}
		if limit.ResetAt != nil {
			denial.ResetAt = *limit.ResetAt
		}
		if limit.Limit != nil {
			denial.Limit = *limit.Limit
		}
		return nil, denial
	}

	now := s.clock.Now()
	bid := &biddomain.Bid{
		ID:           s.genID.Generate(),
		JobID:        req.JobID,
		ContractorID: req.ContractorID,
		Status:       biddomain.BidStatusTentative,
		AmountCents:  req.AmountCents,
		Message:      req.Message,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Insert(ctx, s.db, bid); err != nil {
		// The partial unique index closes the check-then-insert race.
		if db.IsDuplicateKeyErr(err) {
			return nil, biddomain.ErrBidExists
		}
		return nil, err
	}

	var (
		mu     sync.Mutex
		comps  []compensation
		record *leaddomain.LeadAccessRecord
	)
	register := func(c compensation) {
		mu.Lock()
		comps = append(comps, c)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		_, stepSpan := tracer.Start(gctx, "bid.saga."+stepConsumeLead)
		defer stepSpan.End()
		rec, err := s.leadSvc.Consume(gctx, req.ContractorID, req.JobID)
		if err != nil {
			return &biddomain.SagaError{Step: stepConsumeLead, Err: err}
		}
		record = rec
		register(compensation{step: stepConsumeLead, fn: func(ctx context.Context) error {
			return s.leadSvc.Release(ctx, req.ContractorID, rec.ID)
		}})
		return nil
	})

	g.Go(func() error {
		_, stepSpan := tracer.Start(gctx, "bid.saga."+stepAppendBidRef)
		defer stepSpan.End()
		if err := s.jobRepo.AppendBidRef(gctx, s.db, req.JobID, bid.ID); err != nil {
			return &biddomain.SagaError{Step: stepAppendBidRef, Err: err}
		}
		register(compensation{step: stepAppendBidRef, fn: func(ctx context.Context) error {
			return s.jobRepo.RemoveBidRef(ctx, s.db, req.JobID, bid.ID)
		}})
		return nil
	})

	g.Go(func() error {
		_, stepSpan := tracer.Start(gctx, "bid.saga."+stepCommitBid)
		defer stepSpan.End()
		if err := s.repo.UpdateStatus(gctx, s.db, bid.ID, biddomain.BidStatusCommitted, now); err != nil {
			return &biddomain.SagaError{Step: stepCommitBid, Err: err}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		s.compensate(context.WithoutCancel(ctx), comps, bid.ID)
		if saga, ok := err.(*biddomain.SagaError); ok {
			s.metrics.RecordBidCompensated(ctx, saga.Step)
			s.log.Error("bid saga rolled back",
				zap.String("bid_id", bid.ID.String()),
				zap.String("step", saga.Step),
				zap.Error(saga.Err))
			return nil, saga
		}
		s.metrics.RecordBidCompensated(ctx, "unknown")
		return nil, &biddomain.SagaError{Step: "unknown", Err: err}
	}

	bid.Status = biddomain.BidStatusCommitted
	if record != nil {
		bid.LeadRecordID = &record.ID
		if err := s.db.WithContext(ctx).Model(&biddomain.Bid{}).
			Where("id = ?", bid.ID).
			UpdateColumn("lead_record_id", record.ID).Error; err != nil {
			s.log.Warn("failed to link lead record to bid",
				zap.String("bid_id", bid.ID.String()), zap.Error(err))
		}
	}

	fresh, err := s.leadSvc.CheckLimit(ctx, req.ContractorID)
	if err != nil {
		s.log.Warn("failed to refresh lead limit after bid",
			zap.String("contractor_id", req.ContractorID.String()), zap.Error(err))
		fresh = nil
	}

	s.metrics.RecordBidCommitted(ctx)
	s.log.Info("bid committed",
		zap.String("bid_id", bid.ID.String()),
		zap.String("job_id", req.JobID.String()),
		zap.String("contractor_id", req.ContractorID.String()))

	return &biddomain.PlaceBidResponse{Bid: *bid, Limit: fresh}, nil
}

// compensate undoes landed writes in reverse registration order, then
// removes the tentative bid. Failures are logged, not returned: rollback is
// best effort and the ledger recount self-heals any leaked counter.
func (s *Service) compensate(ctx context.Context, comps []compensation, bidID snowflake.ID) {
	for i := len(comps) - 1; i >= 0; i-- {
		if err := comps[i].fn(ctx); err != nil {
			s.log.Error("saga compensation failed",
				zap.String("bid_id", bidID.String()),
				zap.String("step", comps[i].step),
				zap.Error(err))
		}
	}
	if err := s.repo.Delete(ctx, s.db, bidID); err != nil {
		s.log.Error("failed to delete tentative bid",
			zap.String("bid_id", bidID.String()), zap.Error(err))
	}
}
