package billing_services

import (
	"context"
	"fmt"

	"github.com/priceworks/billing-engine/models"
	"github.com/priceworks/billing-engine/plans"
	"github.com/priceworks/billing-engine/utils"
)

// UsageTracker accounts quota by distinct product identifiers, not by raw
// edit events. Re-editing an already tracked product costs no quota.
type UsageTracker struct {
	store models.SubscriptionStore
}

func NewUsageTracker(store models.SubscriptionStore) *UsageTracker {
	return &UsageTracker{
		store: store,
	}
}

// UsageImpact previews what tracking a batch of product ids would do to the
// shop's quota.
type UsageImpact struct {
	NewIDs         []string `json:"new_ids"`
	AlreadyTracked []string `json:"already_tracked"`
	TotalAfter     int      `json:"total_after"`
	WouldExceed    bool     `json:"would_exceed"`
	RemainingAfter int      `json:"remaining_after"`
}

// EstimateImpact is a pure preview. It never mutates state and is safe to
// call speculatively before committing a bulk operation.
func (s *UsageTracker) EstimateImpact(ctx context.Context, shop string, productIDs []string) utils.Result[UsageImpact] {
	getResult := s.store.GetOrCreate(ctx, shop)
	if getResult.Failure() {
		failed := utils.FailedResult[UsageImpact](getResult.Error())
		failed.Retryable = getResult.IsRetryable()
		failed.Capture = getResult.IsCapturable()
		if details := getResult.ErrorDetails(); details != nil {
			failed = failed.AddErrorDetails(details.Code, details.Message)
		}
		return failed
	}

	return utils.SuccessResult(computeImpact(getResult.Value(), productIDs))
}

// TrackModifications unions the supplied product ids into the shop's tracked
// set. The union and the cardinality check run against a row-locked snapshot
// so concurrent batches cannot jointly overshoot the limit. A rejected call
// leaves the set unchanged.
func (s *UsageTracker) TrackModifications(ctx context.Context, shop string, productIDs []string) utils.Result[*models.Subscription] {
	getResult := s.store.GetOrCreate(ctx, shop)
	if getResult.Failure() {
		return getResult
	}

	editEvents := countEditEvents(productIDs)
	if editEvents == 0 {
		return getResult
	}

	return s.store.ApplyQuotaChange(ctx, shop, func(sub *models.Subscription) utils.Result[models.QuotaFields] {
		impact := computeImpact(sub, productIDs)

		if impact.WouldExceed {
			err := fmt.Errorf(
				"tracking %d new products would exceed the limit of %d for shop %s",
				len(impact.NewIDs), sub.UsageLimit, shop,
			)
			return utils.FailedResult[models.QuotaFields](err).
				NonRetryable().
				NonCapturable().
				AddErrorDetails(models.ErrorCodeQuotaExceeded, "Unique product quota exceeded")
		}

		union := make(utils.StringArray, 0, len(sub.UniqueProductsModified)+len(impact.NewIDs))
		union = append(union, sub.UniqueProductsModified...)
		union = append(union, impact.NewIDs...)

		return utils.SuccessResult(models.QuotaFields{
			UniqueProductsModified: union,
			// usage count is always derived from the set, never incremented
			UsageCount:        len(union),
			TotalPriceChanges: sub.TotalPriceChanges + editEvents,
		})
	})
}

// ResetPeriod clears the tracked set and counters at billing-period
// rollover. Nothing else ever resets them.
func (s *UsageTracker) ResetPeriod(ctx context.Context, shop string) utils.Result[*models.Subscription] {
	return s.store.ApplyQuotaChange(ctx, shop, func(sub *models.Subscription) utils.Result[models.QuotaFields] {
		return utils.SuccessResult(models.QuotaFields{
			UniqueProductsModified: utils.StringArray{},
			UsageCount:             0,
			TotalPriceChanges:      0,
		})
	})
}

func computeImpact(sub *models.Subscription, productIDs []string) UsageImpact {
	tracked := make(map[string]struct{}, len(sub.UniqueProductsModified))
	for _, id := range sub.UniqueProductsModified {
		tracked[id] = struct{}{}
	}

	seen := make(map[string]struct{}, len(productIDs))
	newIDs := make([]string, 0, len(productIDs))
	alreadyTracked := make([]string, 0, len(productIDs))

	for _, id := range productIDs {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		if _, ok := tracked[id]; ok {
			alreadyTracked = append(alreadyTracked, id)
		} else {
			newIDs = append(newIDs, id)
		}
	}

	totalAfter := len(tracked) + len(newIDs)

	impact := UsageImpact{
		NewIDs:         newIDs,
		AlreadyTracked: alreadyTracked,
		TotalAfter:     totalAfter,
	}

	if sub.UsageLimit == plans.UnlimitedUsage {
		impact.RemainingAfter = plans.UnlimitedUsage
		return impact
	}

	impact.WouldExceed = totalAfter > sub.UsageLimit
	impact.RemainingAfter = sub.UsageLimit - totalAfter
	if impact.RemainingAfter < 0 {
		impact.RemainingAfter = 0
	}

	return impact
}

func countEditEvents(productIDs []string) int {
	count := 0
	for _, id := range productIDs {
		if id != "" {
			count++
		}
	}
	return count
}
