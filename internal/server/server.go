package server

import (
	"context"
	"net/http"
	"time"

	accessdomain "github.com/MnbNwz/aab-platform-sub003/internal/access/domain"
	biddomain "github.com/MnbNwz/aab-platform-sub003/internal/bid/domain"
	"github.com/MnbNwz/aab-platform-sub003/internal/config"
	leaddomain "github.com/MnbNwz/aab-platform-sub003/internal/lead/domain"
	membershipdomain "github.com/MnbNwz/aab-platform-sub003/internal/membership/domain"
	"github.com/MnbNwz/aab-platform-sub003/internal/observability"
	obsmiddleware "github.com/MnbNwz/aab-platform-sub003/internal/observability/logger"
	obsmetrics "github.com/MnbNwz/aab-platform-sub003/internal/observability/metrics"
	obstracing "github.com/MnbNwz/aab-platform-sub003/internal/observability/tracing"
	"github.com/MnbNwz/aab-platform-sub003/internal/ratelimit"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine *gin.Engine
	cfg    config.Config
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node

	membershipSvc membershipdomain.Service
	leadSvc       leaddomain.Service
	accessSvc     accessdomain.Service
	bidSvc        biddomain.Service
	bidLimiter    *ratelimit.BidLimiter
	obsMetrics    *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin   *gin.Engine
	Cfg   config.Config
	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node

	MembershipSvc membershipdomain.Service
	LeadSvc       leaddomain.Service
	AccessSvc     accessdomain.Service
	BidSvc        biddomain.Service
	BidLimiter    *ratelimit.BidLimiter `optional:"true"`
	ObsMetrics    *obsmetrics.Metrics
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine: p.Gin,
		cfg:    p.Cfg,
		db:     p.DB,
		log:    p.Log.Named("server"),
		genID:  p.GenID,

		membershipSvc: p.MembershipSvc,
		leadSvc:       p.LeadSvc,
		accessSvc:     p.AccessSvc,
		bidSvc:        p.BidSvc,
		bidLimiter:    p.BidLimiter,
		obsMetrics:    p.ObsMetrics,
	}
	s.registerRoutes()
	return s
}

func (s *Server) Engine() *gin.Engine { return s.engine }

func (s *Server) registerRoutes() {
	v1 := s.engine.Group("/v1")

	v1.GET("/plans", s.listPlans)

	v1.GET("/memberships/:userID/effective", s.effectivePlan)
	v1.POST("/memberships/:userID/upgrade", s.upgradeMembership)

	v1.GET("/leads/:userID/limit", s.leadLimit)
	v1.GET("/leads/:userID/history", s.leadHistory)

	v1.GET("/jobs", s.listVisibleJobs)
	v1.GET("/jobs/:jobID/access", s.jobAccess)

	v1.POST("/bids", s.placeBid)
}
