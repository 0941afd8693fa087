package processors

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/priceworks/billing-engine/models"
	"github.com/priceworks/billing-engine/plans"
	"github.com/priceworks/billing-engine/processors/billing_services"
	"github.com/priceworks/billing-engine/tests"
)

var (
	memoryStore  *tests.MemoryStore
	subSource    *tests.MockBillingSource
	chargeSource *tests.MockBillingSource
	flagStore    *tests.MockFlagStore
	dlqProducer  *tests.MockMessageProducer
)

func setupProcessorEnv(t *testing.T) {
	catalog, err := plans.Default()
	if err != nil {
		t.Fatalf("Failed to build catalog: %v", err)
	}

	logger = slog.New(slog.NewJSONHandler(io.Discard, nil))

	memoryStore = tests.NewMemoryStore(catalog.FreePlan().UsageLimit)
	subSource = &tests.MockBillingSource{Type: models.SourceTypeSubscription}
	chargeSource = &tests.MockBillingSource{Type: models.SourceTypeCharge}
	flagStore = &tests.MockFlagStore{}
	dlqProducer = &tests.MockMessageProducer{}

	subscriptionStore = memoryStore
	syncFlagStore = flagStore
	deadLetterProducer = dlqProducer
	reconciliationService = billing_services.NewReconciliationService(catalog, memoryStore, subSource, chargeSource)
	usageTracker = billing_services.NewUsageTracker(memoryStore)
}

func billingEventRecord(topic string, shop string) *kgo.Record {
	occurredAt := time.Now().UTC().Format("2006-01-02T15:04:05")
	payload := fmt.Sprintf(`{"shop":%q,"topic":%q,"occurred_at":%q}`, shop, topic, occurredAt)
	return &kgo.Record{Value: []byte(payload)}
}

func productEventRecord(shop string, productIDs []string) *kgo.Record {
	ids, _ := json.Marshal(productIDs)
	occurredAt := time.Now().UTC().Format("2006-01-02T15:04:05")
	payload := fmt.Sprintf(`{"id":"evt_1","shop":%q,"product_ids":%s,"occurred_at":%q}`, shop, ids, occurredAt)
	return &kgo.Record{Value: []byte(payload)}
}

func TestProcessBillingEvents(t *testing.T) {
	t.Run("reconciles on a subscription update", func(t *testing.T) {
		setupProcessorEnv(t)
		subSource.Records = []models.BillingRecord{
			{ID: "sub_1", SourceType: models.SourceTypeSubscription, Status: "active", Amount: decimal.RequireFromString("9.99")},
		}

		record := billingEventRecord(models.TopicSubscriptionUpdate, "shop-a.example.com")
		processed := processBillingEvents(context.Background(), []*kgo.Record{record})

		assert.Len(t, processed, 1)
		assert.Equal(t, "pro", memoryStore.Row("shop-a.example.com").PlanName)
		assert.Equal(t, 0, dlqProducer.ExecutionCount)
	})

	t.Run("dead-letters an unparseable payload", func(t *testing.T) {
		setupProcessorEnv(t)

		record := &kgo.Record{Value: []byte(`{not json`)}
		processed := processBillingEvents(context.Background(), []*kgo.Record{record})

		// a poison payload must never wedge the partition
		assert.Len(t, processed, 1)
		assert.Equal(t, 1, dlqProducer.ExecutionCount)

		failedEvent := models.FailedEvent{}
		assert.NoError(t, json.Unmarshal(dlqProducer.Value, &failedEvent))
		assert.Equal(t, "invalid_payload", failedEvent.ErrorCode)

		var original string
		assert.NoError(t, json.Unmarshal(failedEvent.Event, &original))
		assert.Equal(t, `{not json`, original)
	})

	t.Run("dead-letters an unknown topic", func(t *testing.T) {
		setupProcessorEnv(t)

		record := billingEventRecord("shop/uninstall", "shop-a.example.com")
		processed := processBillingEvents(context.Background(), []*kgo.Record{record})

		assert.Len(t, processed, 1)
		assert.Equal(t, 1, dlqProducer.ExecutionCount)
	})

	t.Run("leaves a retryable failure uncommitted and flags the shop", func(t *testing.T) {
		setupProcessorEnv(t)
		subSource.ReturnedError = fmt.Errorf("upstream down")
		chargeSource.ReturnedError = fmt.Errorf("upstream down")

		record := billingEventRecord(models.TopicSubscriptionUpdate, "shop-a.example.com")
		processed := processBillingEvents(context.Background(), []*kgo.Record{record})

		assert.Len(t, processed, 0)
		assert.Equal(t, 0, dlqProducer.ExecutionCount)
		assert.Equal(t, 1, flagStore.ExecutionCount)
		assert.Equal(t, "shop-a.example.com", flagStore.Key)
	})

	t.Run("dead-letters a retryable failure past the retry window", func(t *testing.T) {
		setupProcessorEnv(t)
		subSource.ReturnedError = fmt.Errorf("upstream down")
		chargeSource.ReturnedError = fmt.Errorf("upstream down")

		occurredAt := time.Now().UTC().Add(-48 * time.Hour).Format("2006-01-02T15:04:05")
		payload := fmt.Sprintf(`{"shop":"shop-a.example.com","topic":%q,"occurred_at":%q}`, models.TopicSubscriptionUpdate, occurredAt)
		record := &kgo.Record{Value: []byte(payload)}

		processed := processBillingEvents(context.Background(), []*kgo.Record{record})

		assert.Len(t, processed, 1)
		assert.Equal(t, 1, dlqProducer.ExecutionCount)
		assert.Equal(t, 0, flagStore.ExecutionCount)
	})

	t.Run("deletes the row on a redact request", func(t *testing.T) {
		setupProcessorEnv(t)
		memoryStore.GetOrCreate(context.Background(), "shop-a.example.com")

		record := billingEventRecord(models.TopicShopRedact, "shop-a.example.com")
		processed := processBillingEvents(context.Background(), []*kgo.Record{record})

		assert.Len(t, processed, 1)
		assert.Nil(t, memoryStore.Row("shop-a.example.com"))
	})

	t.Run("skips reconciliation for a fresh install on sync", func(t *testing.T) {
		setupProcessorEnv(t)
		memoryStore.GetOrCreate(context.Background(), "shop-a.example.com")

		record := billingEventRecord(models.TopicShopSync, "shop-a.example.com")
		processed := processBillingEvents(context.Background(), []*kgo.Record{record})

		assert.Len(t, processed, 1)
		assert.Equal(t, 0, subSource.ExecutionCount)
		assert.Equal(t, 0, chargeSource.ExecutionCount)
	})

	t.Run("reconciles a stale row on sync", func(t *testing.T) {
		setupProcessorEnv(t)

		memoryStore.Now = func() time.Time { return time.Now().Add(-30 * time.Hour) }
		memoryStore.GetOrCreate(context.Background(), "shop-a.example.com")
		memoryStore.Now = time.Now

		record := billingEventRecord(models.TopicShopSync, "shop-a.example.com")
		processed := processBillingEvents(context.Background(), []*kgo.Record{record})

		assert.Len(t, processed, 1)
		assert.Equal(t, 1, subSource.ExecutionCount)
	})
}

func TestProcessProductEvents(t *testing.T) {
	t.Run("tracks product modifications", func(t *testing.T) {
		setupProcessorEnv(t)

		record := productEventRecord("shop-a.example.com", []string{"p1", "p2"})
		processed := processProductEvents(context.Background(), []*kgo.Record{record})

		assert.Len(t, processed, 1)

		row := memoryStore.Row("shop-a.example.com")
		assert.Equal(t, 2, row.UsageCount)
		assert.Equal(t, 2, row.TotalPriceChanges)
	})

	t.Run("dead-letters a quota rejection without retrying", func(t *testing.T) {
		setupProcessorEnv(t)

		ids := make([]string, 20)
		for i := range ids {
			ids[i] = fmt.Sprintf("p%d", i)
		}
		seeded := usageTracker.TrackModifications(context.Background(), "shop-a.example.com", ids)
		assert.True(t, seeded.Success())

		record := productEventRecord("shop-a.example.com", []string{"p-extra"})
		processed := processProductEvents(context.Background(), []*kgo.Record{record})

		// rejection is deterministic, a redelivery could never succeed
		assert.Len(t, processed, 1)
		assert.Equal(t, 1, dlqProducer.ExecutionCount)
		assert.Equal(t, 0, flagStore.ExecutionCount)

		failedEvent := models.FailedEvent{}
		assert.NoError(t, json.Unmarshal(dlqProducer.Value, &failedEvent))
		assert.Equal(t, models.ErrorCodeQuotaExceeded, failedEvent.ErrorCode)
		assert.Equal(t, 20, memoryStore.Row("shop-a.example.com").UsageCount)
	})

	t.Run("dead-letters an invalid batch", func(t *testing.T) {
		setupProcessorEnv(t)

		record := productEventRecord("shop-a.example.com", []string{})
		processed := processProductEvents(context.Background(), []*kgo.Record{record})

		assert.Len(t, processed, 1)
		assert.Equal(t, 1, dlqProducer.ExecutionCount)
	})
}
