package models

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/priceworks/billing-engine/utils"
)

// BillingApiClient talks to the platform billing admin API. Both record
// families are served by the same API under different resource paths.
type BillingApiClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

type BillingApiConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

func NewBillingApiClient(cfg BillingApiConfig) *BillingApiClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &BillingApiClient{
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type apiBillingRecord struct {
	ID               string           `json:"id"`
	Status           string           `json:"status"`
	Amount           string           `json:"amount"`
	Currency         string           `json:"currency"`
	CurrentPeriodEnd utils.NullTime   `json:"current_period_end"`
	CreatedAt        utils.CustomTime `json:"created_at"`
}

type apiBillingRecordsResponse struct {
	Records []apiBillingRecord `json:"records"`
}

func (c *BillingApiClient) fetchRecords(ctx context.Context, shop string, resource string, sourceType string) utils.Result[[]BillingRecord] {
	endpoint := fmt.Sprintf("%s/shops/%s/%s", c.baseURL, url.PathEscape(shop), resource)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return utils.FailedResult[[]BillingRecord](err).NonRetryable()
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return utils.FailedResult[[]BillingRecord](err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		// Shops without any billing history are not an error
		return utils.SuccessResult([]BillingRecord{})
	}
	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("billing api returned status %d for %s", resp.StatusCode, resource)
		return utils.FailedResult[[]BillingRecord](err)
	}

	var payload apiBillingRecordsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return utils.FailedResult[[]BillingRecord](err)
	}

	records := make([]BillingRecord, 0, len(payload.Records))
	for _, raw := range payload.Records {
		amount, err := decimal.NewFromString(raw.Amount)
		if err != nil {
			return utils.FailedResult[[]BillingRecord](fmt.Errorf("invalid amount %q on record %s: %w", raw.Amount, raw.ID, err))
		}

		records = append(records, BillingRecord{
			ID:               raw.ID,
			SourceType:       sourceType,
			Status:           raw.Status,
			Amount:           amount,
			Currency:         raw.Currency,
			CurrentPeriodEnd: raw.CurrentPeriodEnd,
			CreatedAt:        raw.CreatedAt.Time(),
		})
	}

	return utils.SuccessResult(records)
}

type subscriptionApiSource struct {
	client *BillingApiClient
}

func NewSubscriptionApiSource(client *BillingApiClient) BillingSourceAdapter {
	return &subscriptionApiSource{client: client}
}

func (s *subscriptionApiSource) SourceType() string {
	return SourceTypeSubscription
}

func (s *subscriptionApiSource) FetchActiveRecords(ctx context.Context, shop string) utils.Result[[]BillingRecord] {
	return s.client.fetchRecords(ctx, shop, "subscriptions", SourceTypeSubscription)
}

type chargeApiSource struct {
	client *BillingApiClient
}

func NewChargeApiSource(client *BillingApiClient) BillingSourceAdapter {
	return &chargeApiSource{client: client}
}

func (s *chargeApiSource) SourceType() string {
	return SourceTypeCharge
}

func (s *chargeApiSource) FetchActiveRecords(ctx context.Context, shop string) utils.Result[[]BillingRecord] {
	return s.client.fetchRecords(ctx, shop, "charges", SourceTypeCharge)
}
