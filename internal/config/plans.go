package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Plan describes one subscription tier in the catalog.
type Plan struct {
	Tier      string `mapstructure:"tier"`
	Metered   bool   `mapstructure:"metered"`
	Allotment int64  `mapstructure:"allotment"`
	ProductID string `mapstructure:"productId"`
}

// PlanCatalog is the full tier catalog.
type PlanCatalog struct {
	Plans []Plan `mapstructure:"plans"`
}

func DefaultPlanCatalog() PlanCatalog {
	return PlanCatalog{
		Plans: []Plan{
			{Tier: "free", Metered: true, Allotment: 10},
			{Tier: "starter", Metered: true, Allotment: 200, ProductID: "prod_starter"},
			{Tier: "pro", Metered: true, Allotment: 500, ProductID: "prod_pro"},
			{Tier: "flexible", Metered: false, ProductID: "prod_flexible"},
		},
	}
}

// PlanCatalogHolder exposes the current catalog and hot-reloads it from plans.yml.
type PlanCatalogHolder struct {
	current atomic.Value // holds PlanCatalog
}

func NewPlanCatalogHolder() (*PlanCatalogHolder, error) {
	v := viper.New()

	v.SetConfigName("plans")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/inkwise")
	v.AddConfigPath(".")

	v.SetEnvPrefix("INKWISE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	fromFile := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fromFile = false
	}

	cfg := DefaultPlanCatalog()
	if fromFile {
		if err := v.Unmarshal(&cfg); err != nil {
			return nil, err
		}
		if err := validatePlanCatalog(cfg); err != nil {
			return nil, err
		}
	}

	holder := &PlanCatalogHolder{}
	holder.current.Store(cfg)

	if fromFile {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			var updated PlanCatalog
			if err := v.Unmarshal(&updated); err != nil {
				log.Printf("[plan-catalog] reload failed: %v", err)
				return
			}
			if err := validatePlanCatalog(updated); err != nil {
				log.Printf("[plan-catalog] invalid catalog ignored: %v", err)
				return
			}
			holder.current.Store(updated)
			log.Printf("[plan-catalog] reloaded from %s", e.Name)
		})
	}

	return holder, nil
}

func (h *PlanCatalogHolder) Get() PlanCatalog {
	return h.current.Load().(PlanCatalog)
}

// FindByProduct resolves a payment-provider product id to a plan.
func (h *PlanCatalogHolder) FindByProduct(productID string) (Plan, bool) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return Plan{}, false
	}
	for _, plan := range h.Get().Plans {
		if plan.ProductID == productID {
			return plan, true
		}
	}
	return Plan{}, false
}

// FindByTier resolves a tier name to its catalog entry.
func (h *PlanCatalogHolder) FindByTier(tier string) (Plan, bool) {
	tier = strings.ToLower(strings.TrimSpace(tier))
	for _, plan := range h.Get().Plans {
		if plan.Tier == tier {
			return plan, true
		}
	}
	return Plan{}, false
}

func validatePlanCatalog(cfg PlanCatalog) error {
	if len(cfg.Plans) == 0 {
		return errors.New("plans cannot be empty")
	}
	seen := map[string]bool{}
	for _, plan := range cfg.Plans {
		tier := strings.ToLower(strings.TrimSpace(plan.Tier))
		if tier == "" {
			return errors.New("plan tier cannot be empty")
		}
		if seen[tier] {
			return errors.New("duplicate plan tier: " + tier)
		}
		seen[tier] = true
		if plan.Metered && plan.Allotment <= 0 {
			return errors.New("metered plan needs a positive allotment: " + tier)
		}
	}
	return nil
}
