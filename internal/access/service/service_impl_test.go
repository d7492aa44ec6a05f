package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	accessdomain "github.com/MnbNwz/aab-platform-sub003/internal/access/domain"
	"github.com/MnbNwz/aab-platform-sub003/internal/clock"
	jobdomain "github.com/MnbNwz/aab-platform-sub003/internal/job/domain"
	jobrepo "github.com/MnbNwz/aab-platform-sub003/internal/job/repository"
	membershipdomain "github.com/MnbNwz/aab-platform-sub003/internal/membership/domain"
	obsmetrics "github.com/MnbNwz/aab-platform-sub003/internal/observability/metrics"
	userdomain "github.com/MnbNwz/aab-platform-sub003/internal/user/domain"
	userrepo "github.com/MnbNwz/aab-platform-sub003/internal/user/repository"
	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Toronto city hall and two points at known distances from it.
const (
	homeLat = 43.6534
	homeLng = -79.3841

	nearbyLat = 43.7001 // ~5.6 km north
	nearbyLng = -79.4163

	hamiltonLat = 43.2557 // ~58 km southwest
	hamiltonLng = -79.8711
)

type stubMembershipService struct {
	plan *membershipdomain.EffectivePlan
	err  error
}

func (s *stubMembershipService) EffectivePlan(ctx context.Context, userID snowflake.ID) (*membershipdomain.EffectivePlan, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.plan, nil
}

func (s *stubMembershipService) Upgrade(ctx context.Context, req membershipdomain.UpgradeRequest) (*membershipdomain.UpgradeResponse, error) {
	return nil, nil
}

func (s *stubMembershipService) ListPlans(ctx context.Context, category membershipdomain.UserCategory) ([]membershipdomain.MembershipPlan, error) {
	return nil, nil
}

func (s *stubMembershipService) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

func mustNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	return node
}

type accessFixture struct {
	svc  accessdomain.Service
	db   *gorm.DB
	node *snowflake.Node
	clk  *clock.FakeClock
	plan *stubMembershipService
}

func setupAccessService(t *testing.T, now time.Time, benefits membershipdomain.BenefitSnapshot) *accessFixture {
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
		&jobdomain.Property{},
		&jobdomain.Job{},
	))

	m, err := obsmetrics.New(obsmetrics.Config{}, noop.NewMeterProvider())
	require.NoError(t, err)

	node := mustNode(t)
	clk := clock.NewFakeClock(now)
	stub := &stubMembershipService{
		plan: &membershipdomain.EffectivePlan{
			Tier:         membershipdomain.TierStandard,
			UserCategory: membershipdomain.CategoryContractor,
			Benefits:     benefits,
		},
	}

	svc := NewService(ServiceParam{
		DB:            db,
		Log:           zap.NewNop(),
		Clock:         clk,
		Metrics:       m,
		MembershipSvc: stub,
		UserRepo:      userrepo.Provide(),
		JobRepo:       jobrepo.Provide(),
	})
	return &accessFixture{svc: svc, db: db, node: node, clk: clk, plan: stub}
}

func (f *accessFixture) contractorAt(t *testing.T, lat, lng float64, services ...string) snowflake.ID {
	t.Helper()
	user := userdomain.User{
		ID:       f.node.Generate(),
		Email:    fmt.Sprintf("%s@example.com", t.Name()),
		Category: membershipdomain.CategoryContractor,
		HomeLat:  &lat,
		HomeLng:  &lng,
		Services: datatypes.JSONSlice[string](services),
	}
	require.NoError(t, f.db.Create(&user).Error)
	return user.ID
}

func (f *accessFixture) jobAt(t *testing.T, lat, lng float64, jobType jobdomain.JobType, createdAt time.Time, service string) snowflake.ID {
	t.Helper()
	property := jobdomain.Property{
		ID:      f.node.Generate(),
		OwnerID: f.node.Generate(),
		Lat:     lat,
		Lng:     lng,
	}
	require.NoError(t, f.db.Create(&property).Error)

	job := jobdomain.Job{
		ID:         f.node.Generate(),
		PropertyID: property.ID,
		Service:    service,
		Type:       jobType,
		Status:     jobdomain.JobStatusOpen,
		CreatedAt:  createdAt,
	}
	require.NoError(t, f.db.Create(&job).Error)
	return job.ID
}

func fptr(v float64) *float64 { return &v }

func TestCanAccessJobPassesAllGates(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	f := setupAccessService(t, now, membershipdomain.BenefitSnapshot{
		AccessDelayHours: 12,
		RadiusKm:         fptr(30),
		PropertyType:     membershipdomain.PropertyTypeDomestic,
	})
	contractorID := f.contractorAt(t, homeLat, homeLng)
	jobID := f.jobAt(t, nearbyLat, nearbyLng, jobdomain.JobTypeRegular, now.Add(-13*time.Hour), "plumbing")

	assert.NoError(t, f.svc.CanAccessJob(context.Background(), contractorID, jobID))
}

func TestCanAccessJobOffMarketGate(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	f := setupAccessService(t, now, membershipdomain.BenefitSnapshot{
		AccessDelayHours: 0,
		PropertyType:     membershipdomain.PropertyTypeDomestic,
	})
	contractorID := f.contractorAt(t, homeLat, homeLng)
	jobID := f.jobAt(t, nearbyLat, nearbyLng, jobdomain.JobTypeOffMarket, now.Add(-48*time.Hour), "plumbing")

	err := f.svc.CanAccessJob(context.Background(), contractorID, jobID)
	denial, ok := accessdomain.IsDenied(err)
	require.True(t, ok)
	assert.Equal(t, accessdomain.ReasonOffMarketRestricted, denial.Reason)

	// The same job passes once the plan carries off-market access.
	f.plan.plan.Benefits.OffMarketAccess = true
	assert.NoError(t, f.svc.CanAccessJob(context.Background(), contractorID, jobID))
}

func TestCanAccessJobDelayGate(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	f := setupAccessService(t, now, membershipdomain.BenefitSnapshot{
		AccessDelayHours: 24,
		PropertyType:     membershipdomain.PropertyTypeDomestic,
	})
	contractorID := f.contractorAt(t, homeLat, homeLng)
	createdAt := now.Add(-6 * time.Hour)
	jobID := f.jobAt(t, nearbyLat, nearbyLng, jobdomain.JobTypeRegular, createdAt, "plumbing")

	err := f.svc.CanAccessJob(context.Background(), contractorID, jobID)
	denial, ok := accessdomain.IsDenied(err)
	require.True(t, ok)
	assert.Equal(t, accessdomain.ReasonAccessDelay, denial.Reason)
	require.NotNil(t, denial.AccessAt)
	assert.Equal(t, createdAt.Add(24*time.Hour), *denial.AccessAt)

	// The gate opens once the delay elapses.
	f.clk.Advance(19 * time.Hour)
	assert.NoError(t, f.svc.CanAccessJob(context.Background(), contractorID, jobID))
}

func TestCanAccessJobRadiusGate(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	f := setupAccessService(t, now, membershipdomain.BenefitSnapshot{
		AccessDelayHours: 0,
		RadiusKm:         fptr(30),
		PropertyType:     membershipdomain.PropertyTypeDomestic,
	})
	contractorID := f.contractorAt(t, homeLat, homeLng)
	jobID := f.jobAt(t, hamiltonLat, hamiltonLng, jobdomain.JobTypeRegular, now.Add(-48*time.Hour), "plumbing")

	err := f.svc.CanAccessJob(context.Background(), contractorID, jobID)
	denial, ok := accessdomain.IsDenied(err)
	require.True(t, ok)
	assert.Equal(t, accessdomain.ReasonOutsideRadius, denial.Reason)
	require.NotNil(t, denial.DistanceKm)
	assert.InDelta(t, 58, *denial.DistanceKm, 3)
	assert.Equal(t, 30.0, *denial.RadiusKm)
}

func TestCanAccessJobUnlimitedRadius(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	f := setupAccessService(t, now, membershipdomain.BenefitSnapshot{
		AccessDelayHours: 0,
		RadiusKm:         nil,
		PropertyType:     membershipdomain.PropertyTypeCommercial,
	})
	contractorID := f.contractorAt(t, homeLat, homeLng)
	jobID := f.jobAt(t, hamiltonLat, hamiltonLng, jobdomain.JobTypeRegular, now.Add(-48*time.Hour), "plumbing")

	assert.NoError(t, f.svc.CanAccessJob(context.Background(), contractorID, jobID))
}

func TestCanAccessJobSkipsRadiusWithoutHomePoint(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	f := setupAccessService(t, now, membershipdomain.BenefitSnapshot{
		AccessDelayHours: 0,
		RadiusKm:         fptr(5),
		PropertyType:     membershipdomain.PropertyTypeDomestic,
	})

	user := userdomain.User{
		ID:       f.node.Generate(),
		Email:    "nohome@example.com",
		Category: membershipdomain.CategoryContractor,
	}
	require.NoError(t, f.db.Create(&user).Error)
	jobID := f.jobAt(t, hamiltonLat, hamiltonLng, jobdomain.JobTypeRegular, now.Add(-48*time.Hour), "plumbing")

	assert.NoError(t, f.svc.CanAccessJob(context.Background(), user.ID, jobID))
}

func TestCanAccessJobUnknownInputs(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	f := setupAccessService(t, now, membershipdomain.BenefitSnapshot{
		PropertyType: membershipdomain.PropertyTypeDomestic,
	})
	contractorID := f.contractorAt(t, homeLat, homeLng)

	err := f.svc.CanAccessJob(context.Background(), f.node.Generate(), f.node.Generate())
	assert.ErrorIs(t, err, membershipdomain.ErrInvalidUser)

	err = f.svc.CanAccessJob(context.Background(), contractorID, f.node.Generate())
	assert.ErrorIs(t, err, jobdomain.ErrNotFound)
}

func TestListVisibleJobsFiltersAndPages(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	f := setupAccessService(t, now, membershipdomain.BenefitSnapshot{
		AccessDelayHours: 12,
		RadiusKm:         fptr(30),
		PropertyType:     membershipdomain.PropertyTypeDomestic,
	})
	contractorID := f.contractorAt(t, homeLat, homeLng, "plumbing", "roofing")

	visible1 := f.jobAt(t, nearbyLat, nearbyLng, jobdomain.JobTypeRegular, now.Add(-20*time.Hour), "plumbing")
	visible2 := f.jobAt(t, nearbyLat, nearbyLng, jobdomain.JobTypeRegular, now.Add(-30*time.Hour), "roofing")
	f.jobAt(t, nearbyLat, nearbyLng, jobdomain.JobTypeRegular, now.Add(-20*time.Hour), "electrical")   // service mismatch
	f.jobAt(t, nearbyLat, nearbyLng, jobdomain.JobTypeRegular, now.Add(-2*time.Hour), "plumbing")      // inside the delay
	f.jobAt(t, hamiltonLat, hamiltonLng, jobdomain.JobTypeRegular, now.Add(-20*time.Hour), "plumbing") // outside radius
	f.jobAt(t, nearbyLat, nearbyLng, jobdomain.JobTypeOffMarket, now.Add(-20*time.Hour), "plumbing")   // off-market

	resp, err := f.svc.ListVisibleJobs(context.Background(), contractorID, accessdomain.VisibleJobsRequest{})
	require.NoError(t, err)

	require.Len(t, resp.Jobs, 2)
	assert.Equal(t, 2, resp.Total)
	got := []snowflake.ID{resp.Jobs[0].ID, resp.Jobs[1].ID}
	assert.ElementsMatch(t, []snowflake.ID{visible1, visible2}, got)

	// One per page.
	paged, err := f.svc.ListVisibleJobs(context.Background(), contractorID, accessdomain.VisibleJobsRequest{Page: 2, Limit: 1})
	require.NoError(t, err)
	require.Len(t, paged.Jobs, 1)
	assert.Equal(t, 2, paged.Total)
	assert.Equal(t, 2, paged.Page)

	// Past the end yields an empty page, not an error.
	empty, err := f.svc.ListVisibleJobs(context.Background(), contractorID, accessdomain.VisibleJobsRequest{Page: 9, Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, empty.Jobs)
}

func TestHaversineKnownDistances(t *testing.T) {
	// Toronto to Hamilton city centres.
	d := haversineKm(homeLat, homeLng, hamiltonLat, hamiltonLng)
	assert.InDelta(t, 58, d, 3)

	// Zero distance.
	assert.InDelta(t, 0, haversineKm(homeLat, homeLng, homeLat, homeLng), 0.001)

	// A degree of latitude is about 111 km.
	assert.InDelta(t, 111, haversineKm(0, 0, 1, 0), 1)
}
