package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	accessservice "github.com/MnbNwz/aab-platform-sub003/internal/access/service"
	bidrepo "github.com/MnbNwz/aab-platform-sub003/internal/bid/repository"
	bidservice "github.com/MnbNwz/aab-platform-sub003/internal/bid/service"
	"github.com/MnbNwz/aab-platform-sub003/internal/cache"
	"github.com/MnbNwz/aab-platform-sub003/internal/clock"
	"github.com/MnbNwz/aab-platform-sub003/internal/config"
	jobdomain "github.com/MnbNwz/aab-platform-sub003/internal/job/domain"
	jobrepo "github.com/MnbNwz/aab-platform-sub003/internal/job/repository"
	leadrepo "github.com/MnbNwz/aab-platform-sub003/internal/lead/repository"
	leadservice "github.com/MnbNwz/aab-platform-sub003/internal/lead/service"
	membershipdomain "github.com/MnbNwz/aab-platform-sub003/internal/membership/domain"
	membershiprepo "github.com/MnbNwz/aab-platform-sub003/internal/membership/repository"
	membershipservice "github.com/MnbNwz/aab-platform-sub003/internal/membership/service"
	"github.com/MnbNwz/aab-platform-sub003/internal/migration"
	"github.com/MnbNwz/aab-platform-sub003/internal/observability"
	obsmetrics "github.com/MnbNwz/aab-platform-sub003/internal/observability/metrics"
	"github.com/MnbNwz/aab-platform-sub003/internal/seed"
	"github.com/MnbNwz/aab-platform-sub003/internal/server"
	userdomain "github.com/MnbNwz/aab-platform-sub003/internal/user/domain"
	userrepo "github.com/MnbNwz/aab-platform-sub003/internal/user/repository"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type testEnv struct {
	db      *gorm.DB
	node    *snowflake.Node
	clk     *clock.FakeClock
	httpSrv *httptest.Server
	baseURL string
}

var env *testEnv

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)

	var err error
	env, err = startEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to start test environment:", err)
		os.Exit(1)
	}

	code := m.Run()
	env.httpSrv.Close()
	os.Exit(code)
}

func startEnv() (*testEnv, error) {
	db, err := gorm.Open(sqlite.Open("file:engine_e2e?mode=memory&cache=shared&_loc=auto"), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	if err := migration.AutoMigrate(db); err != nil {
		return nil, err
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return nil, err
	}
	if err := seed.EnsurePlanCatalog(db, node); err != nil {
		return nil, err
	}

	clk := clock.NewFakeClock(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	log := zap.NewNop()
	holder := config.NewStaticEngineConfigHolder(config.DefaultEngineConfig())

	provider := noop.NewMeterProvider()
	m, err := obsmetrics.New(obsmetrics.Config{}, provider)
	if err != nil {
		return nil, err
	}
	httpMetrics, err := obsmetrics.NewHTTPMetrics(obsmetrics.Config{}, provider)
	if err != nil {
		return nil, err
	}

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
	accessSvc := accessservice.NewService(accessservice.ServiceParam{
		DB:            db,
		Log:           log,
		Clock:         clk,
		Metrics:       m,
		MembershipSvc: membershipSvc,
		UserRepo:      userrepo.Provide(),
		JobRepo:       jobrepo.Provide(),
	})
	bidSvc := bidservice.NewService(bidservice.ServiceParam{
		DB:        db,
		Log:       log,
		GenID:     node,
		Clock:     clk,
		EngineCfg: holder,
		Metrics:   m,
		Repo:      bidrepo.Provide(),
		JobRepo:   jobrepo.Provide(),
		LeadSvc:   leadSvc,
		AccessSvc: accessSvc,
	})

	engine := server.NewEngine(observability.Config{Environment: "test"}, httpMetrics)
	server.NewServer(server.ServerParams{
		Gin:   engine,
		Cfg:   config.Config{AppName: "aabengine", Environment: "test"},
		DB:    db,
		Log:   log,
		GenID: node,

		MembershipSvc: membershipSvc,
		LeadSvc:       leadSvc,
		AccessSvc:     accessSvc,
		BidSvc:        bidSvc,
		ObsMetrics:    m,
	})

	httpSrv := httptest.NewServer(engine)
	return &testEnv{
		db:      db,
		node:    node,
		clk:     clk,
		httpSrv: httpSrv,
		baseURL: httpSrv.URL,
	}, nil
}

func getJSON(t *testing.T, path string, out any) int {
	t.Helper()
	resp, err := http.Get(env.baseURL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	decode(t, resp.Body, out)
	return resp.StatusCode
}

func postJSON(t *testing.T, path string, body any, out any) int {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	resp, err := http.Post(env.baseURL+path, "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()
	decode(t, resp.Body, out)
	return resp.StatusCode
}

func decode(t *testing.T, r io.Reader, out any) {
	t.Helper()
	if out == nil {
		return
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if len(raw) == 0 {
		return
	}
	if err := json.Unmarshal(raw, out); err != nil {
		t.Fatalf("decode body %q: %v", raw, err)
	}
}

func createContractor(t *testing.T) snowflake.ID {
	t.Helper()
	lat, lng := 43.6534, -79.3841
	user := userdomain.User{
		ID:       env.node.Generate(),
		Email:    fmt.Sprintf("%s@example.com", t.Name()),
		Category: membershipdomain.CategoryContractor,
		HomeLat:  &lat,
		HomeLng:  &lng,
	}
	if err := env.db.Create(&user).Error; err != nil {
		t.Fatalf("create contractor: %v", err)
	}
	return user.ID
}

func createOpenJob(t *testing.T, createdAt time.Time) snowflake.ID {
	t.Helper()
	property := jobdomain.Property{
		ID:      env.node.Generate(),
		OwnerID: env.node.Generate(),
		Lat:     43.7001,
		Lng:     -79.4163,
	}
	if err := env.db.Create(&property).Error; err != nil {
		t.Fatalf("create property: %v", err)
	}
	job := jobdomain.Job{
		ID:         env.node.Generate(),
		PropertyID: property.ID,
		Service:    "plumbing",
		Type:       jobdomain.JobTypeRegular,
		Status:     jobdomain.JobStatusOpen,
		CreatedAt:  createdAt,
	}
	if err := env.db.Create(&job).Error; err != nil {
		t.Fatalf("create job: %v", err)
	}
	return job.ID
}

func planID(t *testing.T, tier membershipdomain.PlanTier) snowflake.ID {
	t.Helper()
	var plan membershipdomain.MembershipPlan
	err := env.db.
		Where("tier = ? AND user_category = ?", tier, membershipdomain.CategoryContractor).
		First(&plan).Error
	if err != nil {
		t.Fatalf("seeded plan %s not found: %v", tier, err)
	}
	return plan.ID
}

func TestE2E_HealthCheck(t *testing.T) {
	resp, err := http.Get(env.baseURL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestE2E_PlanCatalogSeeded(t *testing.T) {
	var body struct {
		Plans []membershipdomain.MembershipPlan `json:"plans"`
	}
	status := getJSON(t, "/v1/plans?category=contractor", &body)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if len(body.Plans) != 3 {
		t.Fatalf("expected 3 contractor plans, got %d", len(body.Plans))
	}
}

func TestE2E_DefaultPlanThenUpgrade(t *testing.T) {
	contractorID := createContractor(t)

	var plan membershipdomain.EffectivePlan
	status := getJSON(t, fmt.Sprintf("/v1/memberships/%s/effective", contractorID), &plan)
	if status != http.StatusOK {
		t.Fatalf("effective plan: expected 200, got %d", status)
	}
	if plan.PeriodID != nil {
		t.Fatalf("expected the default plan, got period %v", plan.PeriodID)
	}
	if plan.Benefits.LeadsLimit == nil || *plan.Benefits.LeadsLimit != 25 {
		t.Fatalf("expected the default 25-lead ceiling, got %v", plan.Benefits.LeadsLimit)
	}

	// First purchase: basic monthly.
	var purchase membershipdomain.UpgradeResponse
	status = postJSON(t, fmt.Sprintf("/v1/memberships/%s/upgrade", contractorID), map[string]any{
		"plan_id":        planID(t, membershipdomain.TierBasic).String(),
		"billing_period": "monthly",
	}, &purchase)
	if status != http.StatusOK {
		t.Fatalf("purchase: expected 200, got %d", status)
	}
	if purchase.Period.Status != membershipdomain.PeriodStatusActive {
		t.Fatalf("expected active period, got %s", purchase.Period.Status)
	}

	// Then upgrade to standard; the snapshot must carry basic's unused
	// leads on top of standard's allocation.
	var upgrade membershipdomain.UpgradeResponse
	status = postJSON(t, fmt.Sprintf("/v1/memberships/%s/upgrade", contractorID), map[string]any{
		"plan_id":        planID(t, membershipdomain.TierStandard).String(),
		"billing_period": "monthly",
	}, &upgrade)
	if status != http.StatusOK {
		t.Fatalf("upgrade: expected 200, got %d", status)
	}
	if upgrade.AccumulatedLeads == nil || *upgrade.AccumulatedLeads != 75 {
		t.Fatalf("expected 25 leftover + 50 new = 75 leads, got %v", upgrade.AccumulatedLeads)
	}
	if upgrade.Period.UpgradedFromID == nil || *upgrade.Period.UpgradedFromID != purchase.Period.ID {
		t.Fatalf("upgrade must supersede the purchased period")
	}

	// A downgrade attempt is rejected with a 422.
	status = postJSON(t, fmt.Sprintf("/v1/memberships/%s/upgrade", contractorID), map[string]any{
		"plan_id":        planID(t, membershipdomain.TierBasic).String(),
		"billing_period": "monthly",
	}, nil)
	if status != http.StatusUnprocessableEntity {
		t.Fatalf("downgrade: expected 422, got %d", status)
	}
}

func TestE2E_JobAccessAndBidFlow(t *testing.T) {
	contractorID := createContractor(t)

	status := postJSON(t, fmt.Sprintf("/v1/memberships/%s/upgrade", contractorID), map[string]any{
		"plan_id":        planID(t, membershipdomain.TierStandard).String(),
		"billing_period": "monthly",
	}, nil)
	if status != http.StatusOK {
		t.Fatalf("purchase: expected 200, got %d", status)
	}

	// A job created just now is still inside standard's 12h delay.
	fresh := createOpenJob(t, env.clk.Now())
	var gate struct {
		Allowed bool `json:"allowed"`
		Denial  *struct {
			Reason string `json:"reason"`
		} `json:"denial"`
	}
	status = getJSON(t, fmt.Sprintf("/v1/jobs/%s/access?contractor_id=%s", fresh, contractorID), &gate)
	if status != http.StatusOK {
		t.Fatalf("job access: expected 200, got %d", status)
	}
	if gate.Allowed || gate.Denial == nil || gate.Denial.Reason != "access_delay" {
		t.Fatalf("expected an access_delay denial, got %+v", gate)
	}

	// An aged job passes the gates and takes the bid.
	aged := createOpenJob(t, env.clk.Now().Add(-48*time.Hour))
	var placed struct {
		Bid struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"bid"`
		Limit *struct {
			Used      int  `json:"used"`
			Remaining *int `json:"remaining"`
		} `json:"limit"`
	}
	status = postJSON(t, "/v1/bids", map[string]any{
		"contractor_id": contractorID.String(),
		"job_id":        aged.String(),
		"amount_cents":  25000,
		"message":       "available this week",
	}, &placed)
	if status != http.StatusCreated {
		t.Fatalf("place bid: expected 201, got %d", status)
	}
	if placed.Bid.Status != "committed" {
		t.Fatalf("expected a committed bid, got %q", placed.Bid.Status)
	}
	if placed.Limit == nil || placed.Limit.Used != 1 {
		t.Fatalf("expected one consumed lead, got %+v", placed.Limit)
	}

	// The lead shows up in the consumption history.
	var history struct {
		Records []struct {
			JobID string `json:"JobID"`
		} `json:"records"`
	}
	status = getJSON(t, fmt.Sprintf("/v1/leads/%s/history?page_size=10", contractorID), &history)
	if status != http.StatusOK {
		t.Fatalf("history: expected 200, got %d", status)
	}
	if len(history.Records) != 1 {
		t.Fatalf("expected one history record, got %d", len(history.Records))
	}

	// Bidding on the same job again is a conflict.
	status = postJSON(t, "/v1/bids", map[string]any{
		"contractor_id": contractorID.String(),
		"job_id":        aged.String(),
		"amount_cents":  26000,
	}, nil)
	if status != http.StatusConflict {
		t.Fatalf("duplicate bid: expected 409, got %d", status)
	}
}

func TestE2E_VisibleJobsListing(t *testing.T) {
	contractorID := createContractor(t)

	status := postJSON(t, fmt.Sprintf("/v1/memberships/%s/upgrade", contractorID), map[string]any{
		"plan_id":        planID(t, membershipdomain.TierPremium).String(),
		"billing_period": "monthly",
	}, nil)
	if status != http.StatusOK {
		t.Fatalf("purchase: expected 200, got %d", status)
	}

	jobID := createOpenJob(t, env.clk.Now().Add(-time.Hour))

	// Premium has no delay, so the hour-old job is already visible.
	var listing struct {
		Jobs []struct {
			ID string `json:"ID"`
		} `json:"jobs"`
		Total int `json:"total"`
	}
	status = getJSON(t, fmt.Sprintf("/v1/jobs?contractor_id=%s&service=plumbing", contractorID), &listing)
	if status != http.StatusOK {
		t.Fatalf("visible jobs: expected 200, got %d", status)
	}
	found := false
	for _, j := range listing.Jobs {
		if j.ID == jobID.String() {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected job %s in the listing, got %+v", jobID, listing)
	}
}
