package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// EngineConfig carries tunables for the entitlement engine. The default
// plan section describes the benefits granted to contractors who never
// purchased a membership.
type EngineConfig struct {
	DefaultPlan DefaultPlanConfig `mapstructure:"defaultPlan"`

	SagaTimeout       time.Duration `mapstructure:"sagaTimeout"`
	PlanCacheTTL      time.Duration `mapstructure:"planCacheTTL"`
	ExpirySweepPeriod time.Duration `mapstructure:"expirySweepPeriod"`
}

type DefaultPlanConfig struct {
	LeadsPerMonth    int     `mapstructure:"leadsPerMonth"`
	AccessDelayHours int     `mapstructure:"accessDelayHours"`
	RadiusKm         float64 `mapstructure:"radiusKm"`
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		DefaultPlan: DefaultPlanConfig{
			LeadsPerMonth:    25,
			AccessDelayHours: 24,
			RadiusKm:         15,
		},
		SagaTimeout:       15 * time.Second,
		PlanCacheTTL:      45 * time.Second,
		ExpirySweepPeriod: time.Hour,
	}
}

// EngineConfigHolder exposes the current engine config and hot-reloads it
// when the backing file changes.
type EngineConfigHolder struct {
	current atomic.Value // holds EngineConfig
}

func NewEngineConfigHolder() (*EngineConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("engine")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/aabengine/config")
	v.AddConfigPath("/etc/aabengine")
	v.AddConfigPath(".")

	v.SetEnvPrefix("AABENGINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultEngineConfig()
	v.SetDefault("engine.defaultPlan.leadsPerMonth", defaults.DefaultPlan.LeadsPerMonth)
	v.SetDefault("engine.defaultPlan.accessDelayHours", defaults.DefaultPlan.AccessDelayHours)
	v.SetDefault("engine.defaultPlan.radiusKm", defaults.DefaultPlan.RadiusKm)
	v.SetDefault("engine.sagaTimeout", defaults.SagaTimeout)
	v.SetDefault("engine.planCacheTTL", defaults.PlanCacheTTL)
	v.SetDefault("engine.expirySweepPeriod", defaults.ExpirySweepPeriod)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg EngineConfig
	if err := v.UnmarshalKey("engine", &cfg); err != nil {
		return nil, err
	}
	if err := validateEngineConfig(cfg); err != nil {
		return nil, err
	}

	holder := &EngineConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated EngineConfig
		if err := v.UnmarshalKey("engine", &updated); err != nil {
			log.Printf("[engine-config] reload failed: %v", err)
			return
		}
		if err := validateEngineConfig(updated); err != nil {
			log.Printf("[engine-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[engine-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *EngineConfigHolder) Get() EngineConfig {
	return h.current.Load().(EngineConfig)
}

// NewStaticEngineConfigHolder returns a holder that never reloads. Used in
// tests and anywhere file watching is unwanted.
func NewStaticEngineConfigHolder(cfg EngineConfig) *EngineConfigHolder {
	holder := &EngineConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func validateEngineConfig(cfg EngineConfig) error {
	if cfg.DefaultPlan.LeadsPerMonth < 0 {
		return errors.New("engine.defaultPlan.leadsPerMonth cannot be negative")
	}
	if cfg.DefaultPlan.AccessDelayHours < 0 {
		return errors.New("engine.defaultPlan.accessDelayHours cannot be negative")
	}
	if cfg.DefaultPlan.RadiusKm <= 0 {
		return errors.New("engine.defaultPlan.radiusKm must be positive")
	}
	if cfg.SagaTimeout <= 0 {
		return errors.New("engine.sagaTimeout must be positive")
	}
	return nil
}
