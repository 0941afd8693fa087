package processors

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.opentelemetry.io/otel/attribute"

	tracer "github.com/priceworks/billing-engine/config"
	"github.com/priceworks/billing-engine/config/kafka"
	"github.com/priceworks/billing-engine/models"
	"github.com/priceworks/billing-engine/processors/billing_services"
	"github.com/priceworks/billing-engine/utils"
)

// Events older than this are dead-lettered instead of redelivered.
const maxRetryWindow = 12 * time.Hour

func processBillingEvents(ctx context.Context, records []*kgo.Record) []*kgo.Record {
	span := tracer.GetTracerSpan(ctx, "billing_engine", "BillingEvents.ProcessRecords")
	span.SetAttributes(attribute.Int("records.length", len(records)))
	defer span.End()

	wg := sync.WaitGroup{}
	wg.Add(len(records))

	var mu sync.Mutex
	processedRecords := make([]*kgo.Record, 0, len(records))

	for _, record := range records {
		go func(record *kgo.Record) {
			defer wg.Done()

			sp := tracer.GetTracerSpan(ctx, "billing_engine", "BillingEvents.ProcessOne")
			defer sp.End()

			event := models.BillingEvent{}
			if err := json.Unmarshal(record.Value, &event); err != nil {
				logger.Error("Error unmarshalling billing event", slog.String("error", err.Error()))
				unmarshalFailure := utils.FailedResult[*models.Subscription](err).
					NonRetryable().
					NonCapturable().
					AddErrorDetails("invalid_payload", "Billing event payload is not valid JSON")
				produceToDeadLetterQueue(ctx, record.Value, unmarshalFailure)

				mu.Lock()
				processedRecords = append(processedRecords, record)
				mu.Unlock()
				return
			}

			result := processBillingEvent(ctx, &event)
			if !handleFailure(ctx, record, &event.OccurredAt, event.Shop, result) {
				// Left uncommitted for redelivery
				return
			}

			mu.Lock()
			processedRecords = append(processedRecords, record)
			mu.Unlock()
		}(record)
	}

	wg.Wait()

	return processedRecords
}

func processBillingEvent(ctx context.Context, event *models.BillingEvent) utils.Result[*models.Subscription] {
	if err := event.Validate(); err != nil {
		return utils.FailedResult[*models.Subscription](err).
			NonRetryable().
			NonCapturable().
			AddErrorDetails("invalid_payload", "Billing event failed validation")
	}

	switch event.Topic {
	case models.TopicShopRedact:
		deleteResult := subscriptionStore.Delete(ctx, event.Shop)
		if deleteResult.Failure() {
			failed := utils.FailedResult[*models.Subscription](deleteResult.Error())
			failed.Retryable = deleteResult.IsRetryable()
			failed.Capture = deleteResult.IsCapturable()
			if details := deleteResult.ErrorDetails(); details != nil {
				failed = failed.AddErrorDetails(details.Code, details.Message)
			}
			return failed
		}
		return utils.SuccessResult[*models.Subscription](nil)

	case models.TopicShopSync:
		getResult := subscriptionStore.GetOrCreate(ctx, event.Shop)
		if getResult.Failure() {
			return getResult
		}
		if !billing_services.NeedsSync(getResult.Value(), time.Now()) {
			return getResult
		}
		return reconciliationService.Reconcile(ctx, event.Shop)

	default:
		// billing-status-change webhooks always reconcile; the apply is
		// idempotent, so at-least-once delivery costs nothing
		return reconciliationService.Reconcile(ctx, event.Shop)
	}
}

func processProductEvents(ctx context.Context, records []*kgo.Record) []*kgo.Record {
	span := tracer.GetTracerSpan(ctx, "billing_engine", "ProductEvents.ProcessRecords")
	span.SetAttributes(attribute.Int("records.length", len(records)))
	defer span.End()

	wg := sync.WaitGroup{}
	wg.Add(len(records))

	var mu sync.Mutex
	processedRecords := make([]*kgo.Record, 0, len(records))

	for _, record := range records {
		go func(record *kgo.Record) {
			defer wg.Done()

			sp := tracer.GetTracerSpan(ctx, "billing_engine", "ProductEvents.ProcessOne")
			defer sp.End()

			event := models.ProductEvent{}
			if err := json.Unmarshal(record.Value, &event); err != nil {
				logger.Error("Error unmarshalling product event", slog.String("error", err.Error()))
				unmarshalFailure := utils.FailedResult[*models.Subscription](err).
					NonRetryable().
					NonCapturable().
					AddErrorDetails("invalid_payload", "Product event payload is not valid JSON")
				produceToDeadLetterQueue(ctx, record.Value, unmarshalFailure)

				mu.Lock()
				processedRecords = append(processedRecords, record)
				mu.Unlock()
				return
			}

			result := processProductEvent(ctx, &event)
			if !handleFailure(ctx, record, &event.OccurredAt, event.Shop, result) {
				return
			}

			mu.Lock()
			processedRecords = append(processedRecords, record)
			mu.Unlock()
		}(record)
	}

	wg.Wait()

	return processedRecords
}

func processProductEvent(ctx context.Context, event *models.ProductEvent) utils.Result[*models.Subscription] {
	if err := event.Validate(); err != nil {
		return utils.FailedResult[*models.Subscription](err).
			NonRetryable().
			NonCapturable().
			AddErrorDetails("invalid_payload", "Product event failed validation")
	}

	return usageTracker.TrackModifications(ctx, event.Shop, event.ProductIDs)
}

// handleFailure applies the shared redelivery discipline. It returns true
// when the record should be committed (success, dead-lettered, or expired),
// false when it must stay uncommitted for redelivery.
func handleFailure(ctx context.Context, record *kgo.Record, occurredAt *utils.CustomTime, shop string, result utils.Result[*models.Subscription]) bool {
	if result.Success() {
		return true
	}

	logger.Error(
		result.ErrorMessage(),
		slog.String("error_code", result.ErrorCode()),
		slog.String("error", result.ErrorMsg()),
		slog.String("shop", shop),
	)

	if result.IsCapturable() {
		utils.CaptureErrorResultWithExtra(result, "shop", shop)
	}

	if result.IsRetryable() && time.Since(occurredAt.Time()) < maxRetryWindow {
		if syncFlagStore != nil && shop != "" {
			if err := syncFlagStore.Flag(shop); err != nil {
				logger.Error("Error flagging shop for pending sync", slog.String("error", err.Error()))
				utils.CaptureError(err)
			}
		}
		return false
	}

	produceToDeadLetterQueue(ctx, record.Value, result)
	return true
}

func produceToDeadLetterQueue(ctx context.Context, payload []byte, result utils.AnyResult) {
	failedEvent := models.NewFailedEvent(payload, result)

	data, err := json.Marshal(failedEvent)
	if err != nil {
		logger.Error("Error marshalling failed event", slog.String("error", err.Error()))
		utils.CaptureError(err)
		return
	}

	deadLetterProducer.Produce(ctx, &kafka.ProducerMessage{
		Key:   []byte(failedEvent.ID),
		Value: data,
	})
}
