package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/priceworks/billing-engine/utils"
)

const (
	TopicSubscriptionUpdate    = "app_subscriptions/update"
	TopicOneTimePurchaseUpdate = "app_purchases_one_time/update"
	TopicShopSync              = "shop/sync"
	TopicShopRedact            = "shop/redact"
)

// BillingEvent is the relayed webhook notification that a shop's billing
// state may have changed. Delivery is at-least-once.
type BillingEvent struct {
	Shop           string           `json:"shop"`
	Topic          string           `json:"topic"`
	SubscriptionID string           `json:"subscription_id,omitempty"`
	OccurredAt     utils.CustomTime `json:"occurred_at"`
}

func (ev *BillingEvent) Validate() error {
	if ev.Shop == "" {
		return fmt.Errorf("billing event without shop")
	}

	switch ev.Topic {
	case TopicSubscriptionUpdate, TopicOneTimePurchaseUpdate, TopicShopSync, TopicShopRedact:
		return nil
	default:
		return fmt.Errorf("unknown billing event topic %q", ev.Topic)
	}
}

// ProductEvent reports a batch of product modifications made by a shop.
// ProductIDs may contain duplicates; each entry is one raw edit event.
type ProductEvent struct {
	ID         string           `json:"id"`
	Shop       string           `json:"shop"`
	ProductIDs []string         `json:"product_ids"`
	OccurredAt utils.CustomTime `json:"occurred_at"`
}

func (ev *ProductEvent) Validate() error {
	if ev.Shop == "" {
		return fmt.Errorf("product event without shop")
	}
	if len(ev.ProductIDs) == 0 {
		return fmt.Errorf("product event without product ids")
	}

	return nil
}

// FailedEvent wraps an event pushed to the dead letter queue.
type FailedEvent struct {
	ID           string          `json:"id"`
	Event        json.RawMessage `json:"event"`
	ErrorCode    string          `json:"error_code"`
	ErrorMessage string          `json:"error_message"`
	InitialError string          `json:"initial_error_message"`
	FailedAt     time.Time       `json:"failed_at"`
}

func NewFailedEvent(payload []byte, result utils.AnyResult) FailedEvent {
	// A payload that is not valid JSON is carried as a JSON string, so the
	// envelope itself always marshals and the original bytes survive the trip.
	event := json.RawMessage(payload)
	if !json.Valid(payload) {
		event, _ = json.Marshal(string(payload))
	}

	return FailedEvent{
		ID:           uuid.NewString(),
		Event:        event,
		ErrorCode:    result.ErrorCode(),
		ErrorMessage: result.ErrorMessage(),
		InitialError: result.ErrorMsg(),
		FailedAt:     time.Now().UTC(),
	}
}
