/**
 * @description
 * This file defines the plan tier model. Tiers are catalog data compiled into
 * the binary and exposed through an immutable snapshot at startup; there is no
 * runtime mutation path. Changing a tier means shipping a new deployment.
 */
package domain

// Well-known tier IDs. "pro" is the top tier and is what a new merchant is
// granted promotionally during the trial window.
const (
	TierStarter = "starter"
	TierGrowth  = "growth"
	TierPro     = "pro"
)

// UnlimitedQuota marks a tier limit with no cap.
const UnlimitedQuota = -1

// PlanTier describes one subscription level. Prices are in XAF (no minor
// unit). Identified by ID; immutable at runtime.
type PlanTier struct {
	ID                    string   `json:"id"`
	DisplayName           string   `json:"display_name"`
	MonthlyPrice          int64    `json:"monthly_price"`
	MaxProducts           int      `json:"max_products"`
	MaxOrdersPerPeriod    int      `json:"max_orders_per_period"`
	CommissionRatePercent float64  `json:"commission_rate_percent"`
	FeatureFlags          []string `json:"feature_flags"`
}

// ResourceKind identifies the countable resources a tier limits.
type ResourceKind string

const (
	ResourceProduct ResourceKind = "product"
	ResourceOrder   ResourceKind = "order"
)

// Limit returns the tier's cap for the given resource kind.
// Unknown kinds are unlimited.
func (t PlanTier) Limit(kind ResourceKind) int {
	switch kind {
	case ResourceProduct:
		return t.MaxProducts
	case ResourceOrder:
		return t.MaxOrdersPerPeriod
	default:
		return UnlimitedQuota
	}
}

// QuotaCheck is the result of a tier-limit check. Current and Max are always
// populated so callers can render "used/max" without a second query.
type QuotaCheck struct {
	Allowed bool   `json:"allowed"`
	Current int    `json:"current"`
	Max     int    `json:"max"`
	Reason  string `json:"reason,omitempty"`
}
