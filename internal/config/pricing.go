package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// PricingConfig is the billing policy record consumed by the invoice, late-fee
// and lifecycle engines. Values not present in the config file fall back to
// the documented defaults below.
type PricingConfig struct {
	SubscriptionPrice float64        `mapstructure:"subscriptionPrice"`
	LateFeeAmount     float64        `mapstructure:"lateFeeAmount"`
	GracePeriodDays   int            `mapstructure:"gracePeriodDays"`
	Discounts         []DiscountRate `mapstructure:"discounts"`

	// Lifecycle thresholds. CancelAfterSuspendedDays controls the
	// suspended -> cancelled sweep; ReactivationEnhancedAfterDays is the
	// boundary between the standard and enhanced reactivation paths.
	CancelAfterSuspendedDays      int `mapstructure:"cancelAfterSuspendedDays"`
	ReactivationEnhancedAfterDays int `mapstructure:"reactivationEnhancedAfterDays"`

	Verification VerificationConfig `mapstructure:"verification"`
}

type DiscountRate struct {
	Code string  `mapstructure:"code"`
	Rate float64 `mapstructure:"rate"`
}

// VerificationConfig configures the payment-proof verifier.
type VerificationConfig struct {
	CollectorName   string  `mapstructure:"collectorName"`
	CollectorNumber string  `mapstructure:"collectorNumber"`
	MinimumAmount   float64 `mapstructure:"minimumAmount"`
	AmountTolerance float64 `mapstructure:"amountTolerance"`
}

func DefaultPricingConfig() PricingConfig {
	return PricingConfig{
		SubscriptionPrice:             199,
		LateFeeAmount:                 50,
		GracePeriodDays:               7,
		CancelAfterSuspendedDays:      30,
		ReactivationEnhancedAfterDays: 90,
		Discounts: []DiscountRate{
			{Code: "senior", Rate: 0.20},
			{Code: "annual", Rate: 0.10},
		},
		Verification: VerificationConfig{
			CollectorNumber: "09000000000",
			MinimumAmount:   199,
			AmountTolerance: 1.0,
		},
	}
}

// PricingHolder serves the current pricing config and hot-reloads it when the
// underlying file changes. Readers always see a complete, validated snapshot.
type PricingHolder struct {
	current atomic.Value // holds PricingConfig
}

func NewPricingHolder() (*PricingHolder, error) {
	v := viper.New()

	v.SetConfigName("pricing")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/kolekta/config")
	v.AddConfigPath("/etc/kolekta")
	v.AddConfigPath(".")

	v.SetEnvPrefix("KOLEKTA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := DefaultPricingConfig()
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		// no config file: documented defaults
	} else {
		if err := v.UnmarshalKey("pricing", &cfg); err != nil {
			return nil, err
		}
		if err := validatePricingConfig(cfg); err != nil {
			return nil, err
		}
	}

	holder := &PricingHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated := DefaultPricingConfig()
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

// NewStaticPricingHolder wraps a fixed config, used in tests.
func NewStaticPricingHolder(cfg PricingConfig) *PricingHolder {
	holder := &PricingHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *PricingHolder) Get() PricingConfig {
	return h.current.Load().(PricingConfig)
}

func validatePricingConfig(cfg PricingConfig) error {
	if cfg.SubscriptionPrice <= 0 {
		return errors.New("pricing.subscriptionPrice must be positive")
	}
	if cfg.LateFeeAmount < 0 {
		return errors.New("pricing.lateFeeAmount cannot be negative")
	}
	if cfg.GracePeriodDays < 0 {
		return errors.New("pricing.gracePeriodDays cannot be negative")
	}
	if cfg.CancelAfterSuspendedDays <= 0 {
		return errors.New("pricing.cancelAfterSuspendedDays must be positive")
	}
	return nil
}
