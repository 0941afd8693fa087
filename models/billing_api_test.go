package models_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/priceworks/billing-engine/models"
)

func newTestApiClient(handler http.HandlerFunc) (*models.BillingApiClient, *httptest.Server) {
	server := httptest.NewServer(handler)
	client := models.NewBillingApiClient(models.BillingApiConfig{
		BaseURL: server.URL,
		Token:   "test-token",
		Timeout: time.Second,
	})
	return client, server
}

func TestSubscriptionApiSource(t *testing.T) {
	t.Run("fetches and decodes subscription records", func(t *testing.T) {
		client, server := newTestApiClient(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/shops/shop-a.example.com/subscriptions", r.URL.Path)
			assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{
				"records": [
					{
						"id": "sub_1",
						"status": "active",
						"amount": "9.99",
						"currency": "USD",
						"current_period_end": "2026-09-01T00:00:00Z",
						"created_at": "2026-08-01T00:00:00"
					}
				]
			}`))
		})
		defer server.Close()

		source := models.NewSubscriptionApiSource(client)
		assert.Equal(t, models.SourceTypeSubscription, source.SourceType())

		result := source.FetchActiveRecords(context.Background(), "shop-a.example.com")
		assert.True(t, result.Success())

		records := result.Value()
		assert.Len(t, records, 1)
		assert.Equal(t, "sub_1", records[0].ID)
		assert.Equal(t, models.SourceTypeSubscription, records[0].SourceType)
		assert.True(t, records[0].Active())
		assert.Equal(t, "9.99", records[0].Amount.String())
		assert.True(t, records[0].CurrentPeriodEnd.Valid)
	})

	t.Run("treats a 404 as no billing history", func(t *testing.T) {
		client, server := newTestApiClient(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
		defer server.Close()

		result := models.NewSubscriptionApiSource(client).FetchActiveRecords(context.Background(), "shop-a.example.com")
		assert.True(t, result.Success())
		assert.Empty(t, result.Value())
	})

	t.Run("fails on server errors", func(t *testing.T) {
		client, server := newTestApiClient(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		})
		defer server.Close()

		result := models.NewSubscriptionApiSource(client).FetchActiveRecords(context.Background(), "shop-a.example.com")
		assert.True(t, result.Failure())
		assert.True(t, result.IsRetryable())
	})

	t.Run("fails on an unparseable amount", func(t *testing.T) {
		client, server := newTestApiClient(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"records":[{"id":"sub_1","status":"active","amount":"not-a-number"}]}`))
		})
		defer server.Close()

		result := models.NewSubscriptionApiSource(client).FetchActiveRecords(context.Background(), "shop-a.example.com")
		assert.True(t, result.Failure())
	})

	t.Run("times out through the request context", func(t *testing.T) {
		client, server := newTestApiClient(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(200 * time.Millisecond)
		})
		defer server.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		result := models.NewSubscriptionApiSource(client).FetchActiveRecords(ctx, "shop-a.example.com")
		assert.True(t, result.Failure())
	})
}

func TestChargeApiSource(t *testing.T) {
	client, server := newTestApiClient(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/shops/shop-a.example.com/charges", r.URL.Path)
		w.Write([]byte(`{"records":[{"id":"charge_1","status":"accepted","amount":"4.99","currency":"USD"}]}`))
	})
	defer server.Close()

	source := models.NewChargeApiSource(client)
	assert.Equal(t, models.SourceTypeCharge, source.SourceType())

	result := source.FetchActiveRecords(context.Background(), "shop-a.example.com")
	assert.True(t, result.Success())

	records := result.Value()
	assert.Len(t, records, 1)
	assert.Equal(t, models.SourceTypeCharge, records[0].SourceType)
	assert.True(t, records[0].Active())
	assert.False(t, records[0].CurrentPeriodEnd.Valid)
}
