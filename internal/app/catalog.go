/**
 * @description
 * The plan catalog: an immutable snapshot of the subscription tiers, built
 * once at startup. There is deliberately no mutation path — changing a tier
 * means shipping a new build, not calling an API.
 */
package app

import (
	"errors"

	"github.com/pipomarket/settlement-service/internal/domain"
)

// ErrTierNotFound is returned when a tier ID is not in the catalog.
var ErrTierNotFound = errors.New("plan tier not found")

// Catalog is a read-only lookup of plan tiers.
type Catalog struct {
	tiers     map[string]domain.PlanTier
	order     []string
	topTierID string
}

// NewCatalog builds a catalog snapshot from the given tiers. The top tier is
// the one granted promotionally during trials and carries the reduced
// commission rate.
func NewCatalog(tiers []domain.PlanTier, topTierID string) *Catalog {
	c := &Catalog{
		tiers:     make(map[string]domain.PlanTier, len(tiers)),
		topTierID: topTierID,
	}
	for _, t := range tiers {
		c.tiers[t.ID] = t
		c.order = append(c.order, t.ID)
	}
	return c
}

// DefaultCatalog returns the compiled-in tier table.
func DefaultCatalog() *Catalog {
	return NewCatalog([]domain.PlanTier{
		{
			ID:                    domain.TierStarter,
			DisplayName:           "Starter",
			MonthlyPrice:          2500,
			MaxProducts:           10,
			MaxOrdersPerPeriod:    50,
			CommissionRatePercent: 10,
			FeatureFlags:          []string{"storefront"},
		},
		{
			ID:                    domain.TierGrowth,
			DisplayName:           "Growth",
			MonthlyPrice:          6000,
			MaxProducts:           75,
			MaxOrdersPerPeriod:    400,
			CommissionRatePercent: 10,
			FeatureFlags:          []string{"storefront", "chat", "analytics"},
		},
		{
			ID:                    domain.TierPro,
			DisplayName:           "Pro",
			MonthlyPrice:          15000,
			MaxProducts:           domain.UnlimitedQuota,
			MaxOrdersPerPeriod:    domain.UnlimitedQuota,
			CommissionRatePercent: 7,
			FeatureFlags:          []string{"storefront", "chat", "analytics", "featured_listing"},
		},
	}, domain.TierPro)
}

// Tier returns the tier with the given ID.
func (c *Catalog) Tier(id string) (domain.PlanTier, error) {
	t, ok := c.tiers[id]
	if !ok {
		return domain.PlanTier{}, ErrTierNotFound
	}
	return t, nil
}

// TopTier returns the promotional trial-grant tier.
func (c *Catalog) TopTier() domain.PlanTier {
	return c.tiers[c.topTierID]
}

// Tiers returns all tiers in catalog order.
func (c *Catalog) Tiers() []domain.PlanTier {
	out := make([]domain.PlanTier, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.tiers[id])
	}
	return out
}
