package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// PricingConfig holds the scoring weights and eligibility windows used by the
// pricing engine and the asset state machine. Weights are policy, not code, so
// operators can tune them without a redeploy.
type PricingConfig struct {
	SurplusWeight    float64 `mapstructure:"surplusWeight"`
	SourceWeight     float64 `mapstructure:"sourceWeight"`
	RecencyWeight    float64 `mapstructure:"recencyWeight"`
	SurplusMedian    float64 `mapstructure:"surplusMedian"`
	MaxSourceCount   int     `mapstructure:"maxSourceCount"`
	VelocityHalfLife int     `mapstructure:"velocityHalfLife"`

	RestrictedWindowDays int      `mapstructure:"restrictedWindowDays"`
	ExpiryDays           int      `mapstructure:"expiryDays"`
	QualifyingTiers      []string `mapstructure:"qualifyingTiers"`
}

func DefaultPricingConfig() PricingConfig {
	return PricingConfig{
		SurplusWeight:    0.6,
		SourceWeight:     0.25,
		RecencyWeight:    0.15,
		SurplusMedian:    15_000,
		MaxSourceCount:   5,
		VelocityHalfLife: 30,

		RestrictedWindowDays: 90,
		ExpiryDays:           455,
		QualifyingTiers:      []string{"pro", "enterprise"},
	}
}

type PricingConfigHolder struct {
	current atomic.Value // holds PricingConfig
}

func NewPricingConfigHolder() (*PricingConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("pricing")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/claimlens/config") // Volume-mounted config
	v.AddConfigPath("/etc/claimlens")            // System config
	v.AddConfigPath(".")                         // Current directory (dev mode)

	v.SetEnvPrefix("CLAIMLENS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		defaults := DefaultPricingConfig()
		v.SetDefault("pricing.surplusWeight", defaults.SurplusWeight)
		v.SetDefault("pricing.sourceWeight", defaults.SourceWeight)
		v.SetDefault("pricing.recencyWeight", defaults.RecencyWeight)
		v.SetDefault("pricing.surplusMedian", defaults.SurplusMedian)
		v.SetDefault("pricing.maxSourceCount", defaults.MaxSourceCount)
		v.SetDefault("pricing.velocityHalfLife", defaults.VelocityHalfLife)
		v.SetDefault("pricing.restrictedWindowDays", defaults.RestrictedWindowDays)
		v.SetDefault("pricing.expiryDays", defaults.ExpiryDays)
		v.SetDefault("pricing.qualifyingTiers", defaults.QualifyingTiers)
	}

	var cfg PricingConfig
	if err := v.UnmarshalKey("pricing", &cfg); err != nil {
		return nil, err
	}
	if err := validatePricingConfig(cfg); err != nil {
		return nil, err
	}

	holder := &PricingConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated PricingConfig
		if err := v.UnmarshalKey("pricing", &updated); err != nil {
			log.Printf("[pricing-config] reload failed: %v", err)
			return
		}
		if err := validatePricingConfig(updated); err != nil {
			log.Printf("[pricing-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[pricing-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticPricingConfigHolder wraps a fixed config, used by tests.
func NewStaticPricingConfigHolder(cfg PricingConfig) *PricingConfigHolder {
	holder := &PricingConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *PricingConfigHolder) Get() PricingConfig {
	return h.current.Load().(PricingConfig)
}

func validatePricingConfig(cfg PricingConfig) error {
	total := cfg.SurplusWeight + cfg.SourceWeight + cfg.RecencyWeight
	if total <= 0 {
		return errors.New("pricing weights must sum to a positive value")
	}
	if cfg.SurplusMedian <= 0 {
		return errors.New("pricing.surplusMedian must be positive")
	}
	if cfg.RestrictedWindowDays <= 0 || cfg.ExpiryDays <= cfg.RestrictedWindowDays {
		return errors.New("pricing eligibility windows are out of order")
	}
	if len(cfg.QualifyingTiers) == 0 {
		return errors.New("pricing.qualifyingTiers cannot be empty")
	}
	return nil
}
