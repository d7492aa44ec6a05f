package cache

import (
	"github.com/MnbNwz/aab-platform-sub003/internal/clock"
	"github.com/MnbNwz/aab-platform-sub003/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("cache",
	fx.Provide(func(clk clock.Clock, holder *config.EngineConfigHolder) EffectivePlanCache {
		return NewEffectivePlanCache(clk, holder.Get().PlanCacheTTL)
	}),
)
