package models_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/priceworks/billing-engine/models"
	"github.com/priceworks/billing-engine/utils"
)

func TestBillingEventValidate(t *testing.T) {
	t.Run("accepts all known topics", func(t *testing.T) {
		topics := []string{
			models.TopicSubscriptionUpdate,
			models.TopicOneTimePurchaseUpdate,
			models.TopicShopSync,
			models.TopicShopRedact,
		}

		for _, topic := range topics {
			event := models.BillingEvent{Shop: "shop-a.example.com", Topic: topic}
			assert.NoError(t, event.Validate())
		}
	})

	t.Run("rejects a missing shop", func(t *testing.T) {
		event := models.BillingEvent{Topic: models.TopicShopSync}
		assert.Error(t, event.Validate())
	})

	t.Run("rejects an unknown topic", func(t *testing.T) {
		event := models.BillingEvent{Shop: "shop-a.example.com", Topic: "shop/uninstall"}
		assert.Error(t, event.Validate())
	})
}

func TestBillingEventUnmarshal(t *testing.T) {
	payload := `{
		"shop": "shop-a.example.com",
		"topic": "app_subscriptions/update",
		"subscription_id": "sub_1",
		"occurred_at": "2026-08-24T10:00:00"
	}`

	event := models.BillingEvent{}
	err := json.Unmarshal([]byte(payload), &event)

	assert.NoError(t, err)
	assert.Equal(t, "shop-a.example.com", event.Shop)
	assert.Equal(t, models.TopicSubscriptionUpdate, event.Topic)
	assert.Equal(t, "sub_1", event.SubscriptionID)
	assert.Equal(t, "2026-08-24T10:00:00", event.OccurredAt.String())
}

func TestProductEventValidate(t *testing.T) {
	t.Run("accepts a batch with product ids", func(t *testing.T) {
		event := models.ProductEvent{Shop: "shop-a.example.com", ProductIDs: []string{"p1"}}
		assert.NoError(t, event.Validate())
	})

	t.Run("rejects a missing shop", func(t *testing.T) {
		event := models.ProductEvent{ProductIDs: []string{"p1"}}
		assert.Error(t, event.Validate())
	})

	t.Run("rejects an empty batch", func(t *testing.T) {
		event := models.ProductEvent{Shop: "shop-a.example.com"}
		assert.Error(t, event.Validate())
	})
}

func TestNewFailedEvent(t *testing.T) {
	result := utils.FailedResult[*models.Subscription](errors.New("boom")).
		AddErrorDetails(models.ErrorCodeExternalFetch, "Error fetching billing records")

	t.Run("embeds a JSON payload verbatim", func(t *testing.T) {
		payload := []byte(`{"shop":"shop-a.example.com"}`)
		failedEvent := models.NewFailedEvent(payload, result)

		assert.NotEmpty(t, failedEvent.ID)
		assert.Equal(t, models.ErrorCodeExternalFetch, failedEvent.ErrorCode)
		assert.Equal(t, "Error fetching billing records", failedEvent.ErrorMessage)
		assert.Equal(t, "boom", failedEvent.InitialError)
		assert.False(t, failedEvent.FailedAt.IsZero())

		data, err := json.Marshal(failedEvent)
		assert.NoError(t, err)
		assert.Contains(t, string(data), `"event":{"shop":"shop-a.example.com"}`)
	})

	t.Run("carries a payload that is not valid JSON", func(t *testing.T) {
		payload := []byte(`{not json`)
		failedEvent := models.NewFailedEvent(payload, result)

		data, err := json.Marshal(failedEvent)
		assert.NoError(t, err)

		decoded := models.FailedEvent{}
		assert.NoError(t, json.Unmarshal(data, &decoded))

		var original string
		assert.NoError(t, json.Unmarshal(decoded.Event, &original))
		assert.Equal(t, `{not json`, original)
	})

	t.Run("carries an empty payload", func(t *testing.T) {
		failedEvent := models.NewFailedEvent(nil, result)

		data, err := json.Marshal(failedEvent)
		assert.NoError(t, err)
		assert.Contains(t, string(data), `"event":""`)
	})
}
