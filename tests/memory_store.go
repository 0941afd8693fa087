package tests

import (
	"context"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/priceworks/billing-engine/models"
	"github.com/priceworks/billing-engine/plans"
	"github.com/priceworks/billing-engine/utils"
)

// MemoryStore is an in-memory SubscriptionStore with the same write
// semantics as the real one: field-scoped updates, no-op reconciliation
// skips, and quota changes serialized per store.
type MemoryStore struct {
	mu             sync.Mutex
	rows           map[string]*models.Subscription
	FreeUsageLimit int

	// write counters for idempotence assertions
	ReconciliationWrites int
	QuotaWrites          int

	Now func() time.Time
}

func NewMemoryStore(freeUsageLimit int) *MemoryStore {
	return &MemoryStore{
		rows:           make(map[string]*models.Subscription),
		FreeUsageLimit: freeUsageLimit,
		Now:            time.Now,
	}
}

func (ms *MemoryStore) GetOrCreate(_ context.Context, shop string) utils.Result[*models.Subscription] {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	return utils.SuccessResult(ms.snapshotLocked(ms.getOrCreateLocked(shop)))
}

func (ms *MemoryStore) UpdateReconciliationFields(_ context.Context, shop string, fields models.ReconciliationFields) utils.Result[*models.Subscription] {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	sub := ms.getOrCreateLocked(shop)
	if fields.Matches(sub) {
		return utils.SuccessResult(ms.snapshotLocked(sub))
	}

	sub.PlanName = fields.PlanName
	sub.Status = fields.Status
	sub.SubscriptionID = fields.SubscriptionID
	sub.UsageLimit = fields.UsageLimit
	sub.CurrentPeriodEnd = fields.CurrentPeriodEnd
	sub.UpdatedAt = ms.Now()
	ms.ReconciliationWrites++

	return utils.SuccessResult(ms.snapshotLocked(sub))
}

func (ms *MemoryStore) ApplyQuotaChange(_ context.Context, shop string, change func(*models.Subscription) utils.Result[models.QuotaFields]) utils.Result[*models.Subscription] {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	sub, ok := ms.rows[shop]
	if !ok {
		return utils.FailedResult[*models.Subscription](gorm.ErrRecordNotFound).
			NonRetryable().
			NonCapturable().
			AddErrorDetails(models.ErrorCodeRecordNotFound, "Subscription not found")
	}

	changeResult := change(ms.snapshotLocked(sub))
	if changeResult.Failure() {
		failed := utils.FailedResult[*models.Subscription](changeResult.Error())
		failed.Retryable = changeResult.IsRetryable()
		failed.Capture = changeResult.IsCapturable()
		if details := changeResult.ErrorDetails(); details != nil {
			failed = failed.AddErrorDetails(details.Code, details.Message)
		}
		return failed
	}

	fields := changeResult.Value()
	sub.UniqueProductsModified = fields.UniqueProductsModified
	sub.UsageCount = fields.UsageCount
	sub.TotalPriceChanges = fields.TotalPriceChanges
	sub.UpdatedAt = ms.Now()
	ms.QuotaWrites++

	return utils.SuccessResult(ms.snapshotLocked(sub))
}

func (ms *MemoryStore) Delete(_ context.Context, shop string) utils.Result[bool] {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	delete(ms.rows, shop)
	return utils.SuccessResult(true)
}

// Row returns a detached copy for assertions.
func (ms *MemoryStore) Row(shop string) *models.Subscription {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	sub, ok := ms.rows[shop]
	if !ok {
		return nil
	}
	return ms.snapshotLocked(sub)
}

func (ms *MemoryStore) getOrCreateLocked(shop string) *models.Subscription {
	if sub, ok := ms.rows[shop]; ok {
		return sub
	}

	now := ms.Now()
	sub := &models.Subscription{
		Shop:                   shop,
		PlanName:               plans.FreePlanName,
		Status:                 models.StatusActive,
		UsageLimit:             ms.FreeUsageLimit,
		UniqueProductsModified: utils.StringArray{},
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	ms.rows[shop] = sub
	return sub
}

func (ms *MemoryStore) snapshotLocked(sub *models.Subscription) *models.Subscription {
	out := *sub
	out.UniqueProductsModified = make(utils.StringArray, len(sub.UniqueProductsModified))
	copy(out.UniqueProductsModified, sub.UniqueProductsModified)
	return &out
}
