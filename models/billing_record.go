package models

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/priceworks/billing-engine/utils"
)

const (
	SourceTypeSubscription = "subscription"
	SourceTypeCharge       = "charge"
)

// acceptedStatuses normalizes the status vocabularies of the two upstream
// record families ("accepted" is the legacy charge wording).
var acceptedStatuses = map[string]struct{}{
	"active":   {},
	"accepted": {},
}

// BillingRecord is the external, authoritative representation of a payment
// arrangement. Read-only; the engine never writes billing records.
type BillingRecord struct {
	ID               string
	SourceType       string
	Status           string
	Amount           decimal.Decimal
	Currency         string
	CurrentPeriodEnd utils.NullTime
	CreatedAt        time.Time
}

func (r *BillingRecord) Active() bool {
	_, ok := acceptedStatuses[strings.ToLower(r.Status)]
	return ok
}

// BillingSourceAdapter fetches billing records of one upstream family.
type BillingSourceAdapter interface {
	SourceType() string
	FetchActiveRecords(ctx context.Context, shop string) utils.Result[[]BillingRecord]
}
