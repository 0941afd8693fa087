package billing_services

import (
	"github.com/priceworks/billing-engine/models"
	"github.com/priceworks/billing-engine/utils"
)

func failedSubscriptionResult(r utils.AnyResult, code string, message string) utils.Result[*models.Subscription] {
	result := utils.FailedResult[*models.Subscription](r.Error()).AddErrorDetails(code, message)
	result.Retryable = r.IsRetryable()
	result.Capture = r.IsCapturable()
	return result
}
