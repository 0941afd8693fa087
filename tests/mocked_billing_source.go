package tests

import (
	"context"

	"github.com/priceworks/billing-engine/models"
	"github.com/priceworks/billing-engine/utils"
)

// MockBillingSource is a scriptable BillingSourceAdapter double.
type MockBillingSource struct {
	Type           string
	Records        []models.BillingRecord
	ReturnedError  error
	ExecutionCount int
	LastShop       string
}

func (m *MockBillingSource) SourceType() string {
	return m.Type
}

func (m *MockBillingSource) FetchActiveRecords(_ context.Context, shop string) utils.Result[[]models.BillingRecord] {
	m.ExecutionCount++
	m.LastShop = shop

	if m.ReturnedError != nil {
		return utils.FailedResult[[]models.BillingRecord](m.ReturnedError)
	}

	return utils.SuccessResult(m.Records)
}
