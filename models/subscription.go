package models

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/priceworks/billing-engine/plans"
	"github.com/priceworks/billing-engine/utils"
)

const (
	StatusActive    = "active"
	StatusPending   = "pending"
	StatusCancelled = "cancelled"
)

// Subscription is the per-shop local record of plan assignment, billing
// linkage and quota usage. Two writers touch it: the reconciliation path owns
// the billing fields, the usage path owns the quota fields. Updates are
// always column-scoped so neither path can clobber the other.
type Subscription struct {
	Shop                   string            `gorm:"column:shop;primaryKey"`
	PlanName               string            `gorm:"column:plan_name"`
	Status                 string            `gorm:"column:status"`
	SubscriptionID         *string           `gorm:"column:subscription_id"`
	UsageLimit             int               `gorm:"column:usage_limit"`
	UniqueProductsModified utils.StringArray `gorm:"column:unique_products_modified;type:jsonb"`
	UsageCount             int               `gorm:"column:usage_count"`
	TotalPriceChanges      int               `gorm:"column:total_price_changes"`
	CurrentPeriodEnd       utils.NullTime    `gorm:"column:current_period_end"`
	CreatedAt              time.Time         `gorm:"column:created_at"`
	UpdatedAt              time.Time         `gorm:"column:updated_at"`
}

func (Subscription) TableName() string {
	return "shop_subscriptions"
}

// ReconciliationFields is the column set owned by the reconciliation engine.
type ReconciliationFields struct {
	PlanName         string
	Status           string
	SubscriptionID   *string
	UsageLimit       int
	CurrentPeriodEnd utils.NullTime
}

// Matches reports whether applying the fields to the row would be a no-op.
// Reconcile re-runs rely on this to keep repeated applies byte-identical.
func (f ReconciliationFields) Matches(sub *Subscription) bool {
	if sub.PlanName != f.PlanName || sub.Status != f.Status || sub.UsageLimit != f.UsageLimit {
		return false
	}

	if (sub.SubscriptionID == nil) != (f.SubscriptionID == nil) {
		return false
	}
	if sub.SubscriptionID != nil && *sub.SubscriptionID != *f.SubscriptionID {
		return false
	}

	if sub.CurrentPeriodEnd.Valid != f.CurrentPeriodEnd.Valid {
		return false
	}
	if sub.CurrentPeriodEnd.Valid && !sub.CurrentPeriodEnd.Time.Equal(f.CurrentPeriodEnd.Time) {
		return false
	}

	return true
}

// QuotaFields is the column set owned by the usage tracker.
type QuotaFields struct {
	UniqueProductsModified utils.StringArray
	UsageCount             int
	TotalPriceChanges      int
}

// SubscriptionStore is the durable per-shop record consumed by the
// reconciliation engine and the usage tracker.
type SubscriptionStore interface {
	GetOrCreate(ctx context.Context, shop string) utils.Result[*Subscription]
	UpdateReconciliationFields(ctx context.Context, shop string, fields ReconciliationFields) utils.Result[*Subscription]
	ApplyQuotaChange(ctx context.Context, shop string, change func(*Subscription) utils.Result[QuotaFields]) utils.Result[*Subscription]
	Delete(ctx context.Context, shop string) utils.Result[bool]
}

// GetOrCreate returns the shop row, creating the free-plan default lazily.
// Racing creations converge through ON CONFLICT DO NOTHING plus a refetch.
func (store *ApiStore) GetOrCreate(ctx context.Context, shop string) utils.Result[*Subscription] {
	db := store.db.Connection.WithContext(ctx)

	var sub Subscription
	result := db.Where("shop = ?", shop).Limit(1).Find(&sub)
	if result.Error != nil {
		return failedSubscriptionResult(result.Error)
	}
	if sub.Shop != "" {
		return utils.SuccessResult(&sub)
	}

	fresh := Subscription{
		Shop:                   shop,
		PlanName:               plans.FreePlanName,
		Status:                 StatusActive,
		UsageLimit:             store.freeUsageLimit,
		UniqueProductsModified: utils.StringArray{},
	}

	result = db.Clauses(clause.OnConflict{DoNothing: true}).Create(&fresh)
	if result.Error != nil {
		return failedSubscriptionResult(result.Error)
	}

	result = db.Where("shop = ?", shop).Limit(1).Find(&sub)
	if result.Error != nil {
		return failedSubscriptionResult(result.Error)
	}
	if sub.Shop == "" {
		return failedSubscriptionResult(gorm.ErrRecordNotFound)
	}

	return utils.SuccessResult(&sub)
}

// UpdateReconciliationFields applies the reconciliation-owned columns in one
// atomic update. When the stored row already matches, no write is issued at
// all, so a no-op re-run cannot bump updated_at.
func (store *ApiStore) UpdateReconciliationFields(ctx context.Context, shop string, fields ReconciliationFields) utils.Result[*Subscription] {
	getResult := store.GetOrCreate(ctx, shop)
	if getResult.Failure() {
		return getResult
	}
	sub := getResult.Value()

	if fields.Matches(sub) {
		return utils.SuccessResult(sub)
	}

	updates := map[string]any{
		"current_period_end": fields.CurrentPeriodEnd,
		"plan_name":          fields.PlanName,
		"status":             fields.Status,
		"subscription_id":    fields.SubscriptionID,
		"usage_limit":        fields.UsageLimit,
	}

	db := store.db.Connection.WithContext(ctx)
	result := db.Model(&Subscription{}).Where("shop = ?", shop).Updates(updates)
	if result.Error != nil {
		return failedSubscriptionResult(result.Error)
	}

	sub.PlanName = fields.PlanName
	sub.Status = fields.Status
	sub.SubscriptionID = fields.SubscriptionID
	sub.UsageLimit = fields.UsageLimit
	sub.CurrentPeriodEnd = fields.CurrentPeriodEnd

	return utils.SuccessResult(sub)
}

// ApplyQuotaChange runs the change function against a row-locked snapshot of
// the subscription and persists the quota-owned columns it returns.
// Concurrent calls for the same shop serialize on the row lock, so the
// cardinality check always observes a consistent set.
func (store *ApiStore) ApplyQuotaChange(ctx context.Context, shop string, change func(*Subscription) utils.Result[QuotaFields]) utils.Result[*Subscription] {
	var updated Subscription
	var changeFailure utils.Result[QuotaFields]

	err := store.db.Connection.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sub Subscription
		result := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("shop = ?", shop).
			Limit(1).
			Find(&sub)
		if result.Error != nil {
			return result.Error
		}
		if sub.Shop == "" {
			return gorm.ErrRecordNotFound
		}

		changeResult := change(&sub)
		if changeResult.Failure() {
			changeFailure = changeResult
			return changeResult.Error()
		}
		fields := changeResult.Value()

		updates := map[string]any{
			"total_price_changes":      fields.TotalPriceChanges,
			"unique_products_modified": fields.UniqueProductsModified,
			"usage_count":              fields.UsageCount,
		}
		if err := tx.Model(&Subscription{}).Where("shop = ?", shop).Updates(updates).Error; err != nil {
			return err
		}

		sub.UniqueProductsModified = fields.UniqueProductsModified
		sub.UsageCount = fields.UsageCount
		sub.TotalPriceChanges = fields.TotalPriceChanges
		updated = sub
		return nil
	})

	if err != nil {
		if changeFailure.Failure() {
			failed := utils.FailedResult[*Subscription](changeFailure.Error())
			failed.Retryable = changeFailure.IsRetryable()
			failed.Capture = changeFailure.IsCapturable()
			if details := changeFailure.ErrorDetails(); details != nil {
				failed = failed.AddErrorDetails(details.Code, details.Message)
			}
			return failed
		}
		return failedSubscriptionResult(err)
	}

	return utils.SuccessResult(&updated)
}

// Delete removes the shop row, typically on a shop-redaction request.
func (store *ApiStore) Delete(ctx context.Context, shop string) utils.Result[bool] {
	db := store.db.Connection.WithContext(ctx)

	result := db.Where("shop = ?", shop).Delete(&Subscription{})
	if result.Error != nil {
		return utils.FailedResult[bool](result.Error).
			AddErrorDetails(ErrorCodePersistence, "Error deleting subscription")
	}

	return utils.SuccessResult(true)
}

func failedSubscriptionResult(err error) utils.Result[*Subscription] {
	result := utils.FailedResult[*Subscription](err)

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return result.NonCapturable().NonRetryable().
			AddErrorDetails(ErrorCodeRecordNotFound, "Subscription not found")
	}

	return result.AddErrorDetails(ErrorCodePersistence, "Error accessing subscription store")
}
