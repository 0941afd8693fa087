package plans

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/priceworks/billing-engine/utils"
)

const ErrorCodePlanUnmatched = "plan_unmatched"

// Exact matches tolerate sub-2-cent drift from rounding in upstream billing
// records.
var matchTolerance = decimal.RequireFromString("0.02")

// MatchPlan resolves a billed amount to a catalog plan. A positive amount
// with no matching plan fails with ErrorCodePlanUnmatched so callers can
// tell it apart from a legitimately free shop.
func (c *Catalog) MatchPlan(amount decimal.Decimal) utils.Result[*Plan] {
	if amount.IsZero() {
		return utils.SuccessResult(c.FreePlan())
	}

	if amount.IsNegative() {
		return unmatchedResult(amount)
	}

	for i := range c.plans {
		plan := &c.plans[i]
		if plan.Price.Sub(amount).Abs().LessThan(matchTolerance) {
			return utils.SuccessResult(plan)
		}
	}

	for _, pr := range c.history {
		if amount.GreaterThanOrEqual(pr.Min) && amount.LessThanOrEqual(pr.Max) {
			plan, _ := c.Plan(pr.PlanName)
			return utils.SuccessResult(plan)
		}
	}

	return unmatchedResult(amount)
}

func unmatchedResult(amount decimal.Decimal) utils.Result[*Plan] {
	err := fmt.Errorf("no plan matches amount %s", amount.String())
	return utils.FailedResult[*Plan](err).
		NonRetryable().
		AddErrorDetails(ErrorCodePlanUnmatched, "Billed amount does not correspond to any catalog plan")
}
