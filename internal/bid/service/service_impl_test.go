package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	accessdomain "github.com/MnbNwz/aab-platform-sub003/internal/access/domain"
	accessservice "github.com/MnbNwz/aab-platform-sub003/internal/access/service"
	biddomain "github.com/MnbNwz/aab-platform-sub003/internal/bid/domain"
	bidrepo "github.com/MnbNwz/aab-platform-sub003/internal/bid/repository"
	"github.com/MnbNwz/aab-platform-sub003/internal/cache"
	"github.com/MnbNwz/aab-platform-sub003/internal/clock"
	"github.com/MnbNwz/aab-platform-sub003/internal/config"
	jobdomain "github.com/MnbNwz/aab-platform-sub003/internal/job/domain"
	jobrepo "github.com/MnbNwz/aab-platform-sub003/internal/job/repository"
	leaddomain "github.com/MnbNwz/aab-platform-sub003/internal/lead/domain"
	leadrepo "github.com/MnbNwz/aab-platform-sub003/internal/lead/repository"
	leadservice "github.com/MnbNwz/aab-platform-sub003/internal/lead/service"
	membershipdomain "github.com/MnbNwz/aab-platform-sub003/internal/membership/domain"
	membershiprepo "github.com/MnbNwz/aab-platform-sub003/internal/membership/repository"
	membershipservice "github.com/MnbNwz/aab-platform-sub003/internal/membership/service"
	obsmetrics "github.com/MnbNwz/aab-platform-sub003/internal/observability/metrics"
	userdomain "github.com/MnbNwz/aab-platform-sub003/internal/user/domain"
	userrepo "github.com/MnbNwz/aab-platform-sub003/internal/user/repository"
	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func mustNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	return node
}

// flakyJobRepo delegates to the real repository but fails AppendBidRef on
// demand, to force the saga down the compensation path.
type flakyJobRepo struct {
	jobdomain.Repository

	mu          sync.Mutex
	failAppend  error
	appendCalls int
	removeCalls int
}

func (r *flakyJobRepo) AppendBidRef(ctx context.Context, db *gorm.DB, jobID, bidID snowflake.ID) error {
	r.mu.Lock()
	r.appendCalls++
	fail := r.failAppend
	r.mu.Unlock()
	if fail != nil {
		return fail
	}
	return r.Repository.AppendBidRef(ctx, db, jobID, bidID)
}

func (r *flakyJobRepo) RemoveBidRef(ctx context.Context, db *gorm.DB, jobID, bidID snowflake.ID) error {
	r.mu.Lock()
	r.removeCalls++
	r.mu.Unlock()
	return r.Repository.RemoveBidRef(ctx, db, jobID, bidID)
}

type bidFixture struct {
	svc     biddomain.Service
	db      *gorm.DB
	node    *snowflake.Node
	clk     *clock.FakeClock
	jobRepo *flakyJobRepo
}

func setupBidService(t *testing.T, now time.Time) *bidFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_loc=auto", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	require.NoError(t, db.AutoMigrate(
		&userdomain.User{},
		&membershipdomain.MembershipPlan{},
		&membershipdomain.MembershipPeriod{},
		&leaddomain.LeadAccessRecord{},
		&jobdomain.Property{},
		&jobdomain.Job{},
		&biddomain.Bid{},
	))

	m, err := obsmetrics.New(obsmetrics.Config{}, noop.NewMeterProvider())
	require.NoError(t, err)

	node := mustNode(t)
	clk := clock.NewFakeClock(now)
	holder := config.NewStaticEngineConfigHolder(config.DefaultEngineConfig())
	log := zap.NewNop()

	membershipSvc := membershipservice.NewService(membershipservice.ServiceParam{
		DB:        db,
		Log:       log,
		GenID:     node,
		Clock:     clk,
		EngineCfg: holder,
		Metrics:   m,
		PlanCache: cache.NewEffectivePlanCache(clk, time.Minute),
		Repo:      membershiprepo.Provide(),
		UserRepo:  userrepo.Provide(),
		LeadRepo:  leadrepo.Provide(),
	})

	leadSvc := leadservice.NewService(leadservice.ServiceParam{
		DB:             db,
		Log:            log,
		GenID:          node,
		Clock:          clk,
		EngineCfg:      holder,
		Metrics:        m,
		Repo:           leadrepo.Provide(),
		UserRepo:       userrepo.Provide(),
		MembershipRepo: membershiprepo.Provide(),
	})

	flaky := &flakyJobRepo{Repository: jobrepo.Provide()}

	accessSvc := accessservice.NewService(accessservice.ServiceParam{
		DB:            db,
		Log:           log,
		Clock:         clk,
		Metrics:       m,
		MembershipSvc: membershipSvc,
		UserRepo:      userrepo.Provide(),
		JobRepo:       flaky,
	})

	svc := NewService(ServiceParam{
		DB:        db,
		Log:       log,
		GenID:     node,
		Clock:     clk,
		EngineCfg: holder,
		Metrics:   m,
		Repo:      bidrepo.Provide(),
		JobRepo:   flaky,
		LeadSvc:   leadSvc,
		AccessSvc: accessSvc,
	})
	return &bidFixture{svc: svc, db: db, node: node, clk: clk, jobRepo: flaky}
}

func intp(v int) *int { return &v }

// seedContractor creates a contractor with an active standard period whose
// snapshot passes every access gate.
func (f *bidFixture) seedContractor(t *testing.T, now time.Time, leadLimit *int) (snowflake.ID, snowflake.ID) {
	t.Helper()
	user := userdomain.User{
		ID:       f.node.Generate(),
		Email:    fmt.Sprintf("%s@example.com", t.Name()),
		Category: membershipdomain.CategoryContractor,
	}
	require.NoError(t, f.db.Create(&user).Error)

	plan := membershipdomain.MembershipPlan{
		ID:           f.node.Generate(),
		Tier:         membershipdomain.TierStandard,
		UserCategory: membershipdomain.CategoryContractor,
		Name:         "Contractor Standard",
		PropertyType: membershipdomain.PropertyTypeDomestic,
	}
	require.NoError(t, f.db.Create(&plan).Error)

	anchor := now.AddDate(0, 0, -5)
	period := membershipdomain.MembershipPeriod{
		ID:            f.node.Generate(),
		UserID:        user.ID,
		PlanID:        plan.ID,
		Status:        membershipdomain.PeriodStatusActive,
		BillingPeriod: membershipdomain.BillingMonthly,
		StartAt:       anchor,
		EndAt:         anchor.AddDate(0, 1, 0),
		Snapshot: membershipdomain.BenefitSnapshot{
			LeadsLimit:       leadLimit,
			AccessDelayHours: 0,
			PropertyType:     membershipdomain.PropertyTypeDomestic,
		},
		LeadResetAnchor: anchor,
		LastResetAt:     anchor,
	}
	require.NoError(t, f.db.Create(&period).Error)
	return user.ID, period.ID
}

func (f *bidFixture) seedOpenJob(t *testing.T, createdAt time.Time) snowflake.ID {
	t.Helper()
	property := jobdomain.Property{
		ID:      f.node.Generate(),
		OwnerID: f.node.Generate(),
		Lat:     43.65,
		Lng:     -79.38,
	}
	require.NoError(t, f.db.Create(&property).Error)

	job := jobdomain.Job{
		ID:         f.node.Generate(),
		PropertyID: property.ID,
		Service:    "plumbing",
		Type:       jobdomain.JobTypeRegular,
		Status:     jobdomain.JobStatusOpen,
		CreatedAt:  createdAt,
	}
	require.NoError(t, f.db.Create(&job).Error)
	return job.ID
}

func (f *bidFixture) jobByID(t *testing.T, id snowflake.ID) jobdomain.Job {
	t.Helper()
	var job jobdomain.Job
	require.NoError(t, f.db.First(&job, "id = ?", id).Error)
	return job
}

func (f *bidFixture) periodByID(t *testing.T, id snowflake.ID) membershipdomain.MembershipPeriod {
	t.Helper()
	var period membershipdomain.MembershipPeriod
	require.NoError(t, f.db.First(&period, "id = ?", id).Error)
	return period
}

func TestPlaceBidCommits(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	f := setupBidService(t, now)
	contractorID, periodID := f.seedContractor(t, now, intp(10))
	jobID := f.seedOpenJob(t, now.Add(-48*time.Hour))

	resp, err := f.svc.PlaceBid(context.Background(), biddomain.PlaceBidRequest{
		ContractorID: contractorID,
		JobID:        jobID,
		AmountCents:  150_00,
		Message:      "can start monday",
	})
	require.NoError(t, err)

	assert.Equal(t, biddomain.BidStatusCommitted, resp.Bid.Status)
	require.NotNil(t, resp.Bid.LeadRecordID)
	require.NotNil(t, resp.Limit)
	assert.Equal(t, 9, *resp.Limit.Remaining)

	var stored biddomain.Bid
	require.NoError(t, f.db.First(&stored, "id = ?", resp.Bid.ID).Error)
	assert.Equal(t, biddomain.BidStatusCommitted, stored.Status)
	require.NotNil(t, stored.LeadRecordID)

	job := f.jobByID(t, jobID)
	assert.Equal(t, 1, job.BidCount)
	require.Len(t, job.BidRefs, 1)
	assert.Equal(t, resp.Bid.ID.String(), job.BidRefs[0])

	assert.Equal(t, 1, f.periodByID(t, periodID).LeadsUsedMonth)

	var ledger int64
	require.NoError(t, f.db.Model(&leaddomain.LeadAccessRecord{}).Count(&ledger).Error)
	assert.Equal(t, int64(1), ledger)
}

func TestPlaceBidCompensatesOnFailedWrite(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	f := setupBidService(t, now)
	contractorID, periodID := f.seedContractor(t, now, intp(10))
	jobID := f.seedOpenJob(t, now.Add(-48*time.Hour))

	f.jobRepo.failAppend = errors.New("job store unavailable")

	_, err := f.svc.PlaceBid(context.Background(), biddomain.PlaceBidRequest{
		ContractorID: contractorID,
		JobID:        jobID,
		AmountCents:  150_00,
	})
	require.Error(t, err)

	var saga *biddomain.SagaError
	require.ErrorAs(t, err, &saga)
	assert.Equal(t, "append_bid_ref", saga.Step)

	// Every landed write is undone: no live bid, empty ledger, counter
	// back at zero, job untouched.
	var liveBids int64
	require.NoError(t, f.db.Model(&biddomain.Bid{}).Count(&liveBids).Error)
	assert.Zero(t, liveBids)

	var ledger int64
	require.NoError(t, f.db.Model(&leaddomain.LeadAccessRecord{}).Count(&ledger).Error)
	assert.Zero(t, ledger)

	assert.Equal(t, 0, f.periodByID(t, periodID).LeadsUsedMonth)

	job := f.jobByID(t, jobID)
	assert.Zero(t, job.BidCount)
	assert.Empty(t, job.BidRefs)

	// The same request succeeds once the job store recovers.
	f.jobRepo.mu.Lock()
	f.jobRepo.failAppend = nil
	f.jobRepo.mu.Unlock()

	resp, err := f.svc.PlaceBid(context.Background(), biddomain.PlaceBidRequest{
		ContractorID: contractorID,
		JobID:        jobID,
		AmountCents:  150_00,
	})
	require.NoError(t, err)
	assert.Equal(t, biddomain.BidStatusCommitted, resp.Bid.Status)
}

func TestPlaceBidRejectsDuplicate(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	f := setupBidService(t, now)
	contractorID, _ := f.seedContractor(t, now, intp(10))
	jobID := f.seedOpenJob(t, now.Add(-48*time.Hour))

	_, err := f.svc.PlaceBid(context.Background(), biddomain.PlaceBidRequest{
		ContractorID: contractorID,
		JobID:        jobID,
		AmountCents:  150_00,
	})
	require.NoError(t, err)

	_, err = f.svc.PlaceBid(context.Background(), biddomain.PlaceBidRequest{
		ContractorID: contractorID,
		JobID:        jobID,
		AmountCents:  175_00,
	})
	assert.ErrorIs(t, err, biddomain.ErrBidExists)
}

func TestPlaceBidRejectsClosedJob(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	f := setupBidService(t, now)
	contractorID, _ := f.seedContractor(t, now, intp(10))
	jobID := f.seedOpenJob(t, now.Add(-48*time.Hour))
	require.NoError(t, f.db.Model(&jobdomain.Job{}).
		Where("id = ?", jobID).
		UpdateColumn("status", jobdomain.JobStatusClosed).Error)

	_, err := f.svc.PlaceBid(context.Background(), biddomain.PlaceBidRequest{
		ContractorID: contractorID,
		JobID:        jobID,
		AmountCents:  150_00,
	})
	assert.ErrorIs(t, err, biddomain.ErrJobNotOpen)
}

func TestPlaceBidDeniedOnSpentLimit(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	f := setupBidService(t, now)
	contractorID, _ := f.seedContractor(t, now, intp(0))
	jobID := f.seedOpenJob(t, now.Add(-48*time.Hour))

	_, err := f.svc.PlaceBid(context.Background(), biddomain.PlaceBidRequest{
		ContractorID: contractorID,
		JobID:        jobID,
		AmountCents:  150_00,
	})
	assert.True(t, leaddomain.IsLimitExceeded(err))

	// Nothing was written: the denial happened before the tentative bid.
	var bids int64
	require.NoError(t, f.db.Model(&biddomain.Bid{}).Count(&bids).Error)
	assert.Zero(t, bids)
}

func TestPlaceBidDeniedByAccessGate(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	f := setupBidService(t, now)
	contractorID, periodID := f.seedContractor(t, now, intp(10))

	// Raise the delay on the stored snapshot; a job created an hour ago is
	// then still locked.
	require.NoError(t, f.db.Model(&membershipdomain.MembershipPeriod{}).
		Where("id = ?", periodID).
		UpdateColumn("benefit_access_delay_hours", 24).Error)
	jobID := f.seedOpenJob(t, now.Add(-time.Hour))

	err := func() error {
		_, err := f.svc.PlaceBid(context.Background(), biddomain.PlaceBidRequest{
			ContractorID: contractorID,
			JobID:        jobID,
			AmountCents:  150_00,
		})
		return err
	}()
	denial, ok := accessdomain.IsDenied(err)
	require.True(t, ok)
	assert.Equal(t, accessdomain.ReasonAccessDelay, denial.Reason)
}

func TestPlaceBidValidatesInput(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	f := setupBidService(t, now)

	_, err := f.svc.PlaceBid(context.Background(), biddomain.PlaceBidRequest{
		ContractorID: f.node.Generate(),
		JobID:        f.node.Generate(),
		AmountCents:  0,
	})
	assert.ErrorIs(t, err, biddomain.ErrInvalidBid)
}
