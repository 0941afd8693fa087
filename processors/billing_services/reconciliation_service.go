package billing_services

import (
	"context"
	"fmt"
	"time"

	"github.com/priceworks/billing-engine/models"
	"github.com/priceworks/billing-engine/plans"
	"github.com/priceworks/billing-engine/utils"
)

const (
	// fetches against upstream billing sources are bounded; a timeout is
	// treated exactly like a fetch error
	defaultFetchTimeout = 10 * time.Second

	// fallback when the billing record carries no period end
	defaultPeriodLength = 30 * 24 * time.Hour
)

// ReconciliationService aligns a shop's local subscription row with the
// external billing truth. Applies are idempotent, so at-least-once webhook
// redelivery is safe.
type ReconciliationService struct {
	catalog      *plans.Catalog
	store        models.SubscriptionStore
	sources      []models.BillingSourceAdapter
	fetchTimeout time.Duration
	now          func() time.Time
}

// NewReconciliationService wires the two upstream record families in their
// fixed priority order: subscription records first, charge records second.
func NewReconciliationService(
	catalog *plans.Catalog,
	store models.SubscriptionStore,
	subscriptionSource models.BillingSourceAdapter,
	chargeSource models.BillingSourceAdapter,
) *ReconciliationService {
	return &ReconciliationService{
		catalog:      catalog,
		store:        store,
		sources:      []models.BillingSourceAdapter{subscriptionSource, chargeSource},
		fetchTimeout: defaultFetchTimeout,
		now:          time.Now,
	}
}

// Reconcile computes the canonical subscription state for the shop and
// applies it through a single field-scoped update. Quota fields are never
// touched. On any fetch or match failure the stored state is left as is.
func (s *ReconciliationService) Reconcile(ctx context.Context, shop string) utils.Result[*models.Subscription] {
	record, fetchErrs := s.firstActiveRecord(ctx, shop)

	if record == nil && len(fetchErrs) > 0 {
		// No source produced a record and at least one failed: the local
		// state stays authoritative and the caller may retry.
		err := fmt.Errorf("billing sources unavailable for shop %s: %v", shop, fetchErrs)
		return utils.FailedResult[*models.Subscription](err).
			AddErrorDetails(models.ErrorCodeExternalFetch, "Error fetching billing records")
	}

	if record == nil {
		return s.applyFreeState(ctx, shop)
	}

	matchResult := s.catalog.MatchPlan(record.Amount)
	if matchResult.Failure() {
		// A paying shop must never be silently downgraded by a matching gap.
		return failedSubscriptionResult(
			matchResult,
			matchResult.ErrorCode(),
			fmt.Sprintf("No plan matches billing record %s", record.ID),
		)
	}
	plan := matchResult.Value()

	if plan.Name == plans.FreePlanName {
		return s.applyFreeState(ctx, shop)
	}

	periodEnd := record.CurrentPeriodEnd
	if !periodEnd.Valid {
		periodEnd = utils.NewNullTime(s.now().Add(defaultPeriodLength))
	}

	subscriptionID := record.ID
	fields := models.ReconciliationFields{
		PlanName:         plan.Name,
		Status:           models.StatusActive,
		SubscriptionID:   &subscriptionID,
		UsageLimit:       plan.UsageLimit,
		CurrentPeriodEnd: periodEnd,
	}

	return s.store.UpdateReconciliationFields(ctx, shop, fields)
}

// firstActiveRecord queries the sources in priority order and returns the
// first active record of the first source that yields any records at all.
// Results from the two sources are never merged.
func (s *ReconciliationService) firstActiveRecord(ctx context.Context, shop string) (*models.BillingRecord, []error) {
	var errs []error

	for _, source := range s.sources {
		fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
		result := source.FetchActiveRecords(fetchCtx, shop)
		cancel()

		if result.Failure() {
			errs = append(errs, fmt.Errorf("%s source: %w", source.SourceType(), result.Error()))
			continue
		}

		records := result.Value()
		if len(records) == 0 {
			continue
		}

		// This source wins; a record of a lower-priority source is ignored
		// even if this one carries no active record.
		for i := range records {
			if records[i].Active() {
				return &records[i], nil
			}
		}
		return nil, nil
	}

	return nil, errs
}

func (s *ReconciliationService) applyFreeState(ctx context.Context, shop string) utils.Result[*models.Subscription] {
	free := s.catalog.FreePlan()

	fields := models.ReconciliationFields{
		PlanName:       free.Name,
		Status:         models.StatusActive,
		SubscriptionID: nil,
		UsageLimit:     free.UsageLimit,
	}

	return s.store.UpdateReconciliationFields(ctx, shop, fields)
}
