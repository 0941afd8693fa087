package billing_services

import (
	"time"

	"github.com/priceworks/billing-engine/models"
	"github.com/priceworks/billing-engine/plans"
)

const (
	// fresh installs start on the free plan; avoid hammering billing APIs
	// right after install
	freshInstallWindow = time.Hour

	// local state older than this is considered stale regardless of plan
	staleAfter = 24 * time.Hour
)

// NeedsSync is a best-effort staleness heuristic, not a correctness
// guarantee: reconciliation itself stays idempotent either way.
func NeedsSync(sub *models.Subscription, now time.Time) bool {
	if sub.PlanName == plans.FreePlanName && now.Sub(sub.CreatedAt) < freshInstallWindow {
		return false
	}

	// A paid plan without a billing reference is provably inconsistent.
	if sub.PlanName != plans.FreePlanName && sub.SubscriptionID == nil {
		return true
	}

	if now.Sub(sub.UpdatedAt) > staleAfter {
		return true
	}

	return false
}
