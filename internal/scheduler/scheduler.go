// Package scheduler runs the periodic maintenance sweeps: expiring
// membership periods whose paid window has lapsed.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/MnbNwz/aab-platform-sub003/internal/clock"
	membershipdomain "github.com/MnbNwz/aab-platform-sub003/internal/membership/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("scheduler dependencies are incomplete")

// Config controls sweep cadence.
type Config struct {
	RunInterval time.Duration
}

func DefaultConfig() Config {
	return Config{RunInterval: time.Hour}
}

func (c Config) withDefaults() Config {
	if c.RunInterval <= 0 {
		c.RunInterval = DefaultConfig().RunInterval
	}
	return c
}

type Params struct {
	fx.In

	Log           *zap.Logger
	Clock         clock.Clock
	MembershipSvc membershipdomain.Service
	Config        Config `optional:"true"`
}

type Scheduler struct {
	log           *zap.Logger
	cfg           Config
	clock         clock.Clock
	membershipSvc membershipdomain.Service
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Clock == nil || p.MembershipSvc == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:           p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:           p.Config.withDefaults(),
		clock:         p.Clock,
		membershipSvc: p.MembershipSvc,
	}, nil
}

// RunOnce performs a single sweep. Errors are returned for tests; the loop
// logs and carries on.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	count, err := s.membershipSvc.ExpireDue(ctx, s.clock.Now())
	if err != nil {
		return err
	}
	if count > 0 {
		s.log.Info("membership expiry sweep", zap.Int64("expired", count))
	}
	return nil
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.log.Error("expiry sweep failed", zap.Error(err))
			}
		}
	}
}
