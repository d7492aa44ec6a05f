package cache

import (
	"time"

	"github.com/MnbNwz/aab-platform-sub003/internal/clock"
	membershipdomain "github.com/MnbNwz/aab-platform-sub003/internal/membership/domain"
	"github.com/bwmarrin/snowflake"
)

const defaultEffectivePlanTTL = 45 * time.Second

// EffectivePlanCache stores resolved effective plans for the hot bid path.
// Invalidate must be called whenever a user's active period changes.
type EffectivePlanCache interface {
	Get(userID snowflake.ID) (membershipdomain.EffectivePlan, bool)
	Set(userID snowflake.ID, plan membershipdomain.EffectivePlan)
	Invalidate(userID snowflake.ID)
}

type effectivePlanCache struct {
	plans Cache[snowflake.ID, membershipdomain.EffectivePlan]
	ttl   time.Duration
}

func NewEffectivePlanCache(clk clock.Clock, ttl time.Duration) EffectivePlanCache {
	if ttl <= 0 {
		ttl = defaultEffectivePlanTTL
	}
	return &effectivePlanCache{
		plans: NewTTLCache[snowflake.ID, membershipdomain.EffectivePlan](clk),
		ttl:   ttl,
	}
}

func (c *effectivePlanCache) Get(userID snowflake.ID) (membershipdomain.EffectivePlan, bool) {
	return c.plans.Get(userID)
}

func (c *effectivePlanCache) Set(userID snowflake.ID, plan membershipdomain.EffectivePlan) {
	if plan.UserID == 0 {
		return
	}
	c.plans.Set(userID, plan, c.ttl)
}

func (c *effectivePlanCache) Invalidate(userID snowflake.ID) {
	c.plans.Delete(userID)
}
