package plans

import (
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	FreePlanName = "free"

	// UnlimitedUsage disables the quota check for a plan.
	UnlimitedUsage = -1

	IntervalEvery30Days = "every_30_days"
	IntervalAnnual      = "annual"
)

type Plan struct {
	Name        string
	DisplayName string
	Price       decimal.Decimal
	Currency    string
	UsageLimit  int
	Interval    string
	TrialDays   int
	Features    []string
}

func (p *Plan) Unlimited() bool {
	return p.UsageLimit == UnlimitedUsage
}

// PriceRange maps a historical price window to a plan. Ranges only apply when
// no current plan price matches exactly.
type PriceRange struct {
	Min      decimal.Decimal
	Max      decimal.Decimal
	PlanName string
}

// Catalog is built once at process start and never mutated afterwards.
type Catalog struct {
	plans   []Plan
	byName  map[string]int
	history []PriceRange
}

func NewCatalog(planList []Plan, history []PriceRange) (*Catalog, error) {
	if len(planList) == 0 {
		return nil, fmt.Errorf("catalog requires at least one plan")
	}

	byName := make(map[string]int, len(planList))
	for i, plan := range planList {
		if plan.Name == "" {
			return nil, fmt.Errorf("catalog plan at position %d has no name", i)
		}
		if _, exists := byName[plan.Name]; exists {
			return nil, fmt.Errorf("duplicate plan name %q", plan.Name)
		}
		if plan.Price.IsNegative() {
			return nil, fmt.Errorf("plan %q has a negative price", plan.Name)
		}
		if plan.UsageLimit < UnlimitedUsage || plan.UsageLimit == 0 {
			return nil, fmt.Errorf("plan %q has an invalid usage limit %d", plan.Name, plan.UsageLimit)
		}
		byName[plan.Name] = i
	}

	freeIdx, ok := byName[FreePlanName]
	if !ok {
		return nil, fmt.Errorf("catalog requires a %q plan", FreePlanName)
	}
	if !planList[freeIdx].Price.IsZero() {
		return nil, fmt.Errorf("%q plan must have a zero price", FreePlanName)
	}

	for i, pr := range history {
		if _, ok := byName[pr.PlanName]; !ok {
			return nil, fmt.Errorf("price range references unknown plan %q", pr.PlanName)
		}
		if pr.Min.GreaterThan(pr.Max) {
			return nil, fmt.Errorf("price range for plan %q has min above max", pr.PlanName)
		}

		// Overlapping ranges would make matching ambiguous; reject at startup.
		for j := 0; j < i; j++ {
			other := history[j]
			if !pr.Min.GreaterThan(other.Max) && !other.Min.GreaterThan(pr.Max) {
				return nil, fmt.Errorf(
					"price ranges for plans %q and %q overlap",
					other.PlanName, pr.PlanName,
				)
			}
		}
	}

	return &Catalog{
		plans:   planList,
		byName:  byName,
		history: history,
	}, nil
}

func (c *Catalog) Plan(name string) (*Plan, bool) {
	idx, ok := c.byName[name]
	if !ok {
		return nil, false
	}
	return &c.plans[idx], true
}

func (c *Catalog) FreePlan() *Plan {
	plan, _ := c.Plan(FreePlanName)
	return plan
}

func (c *Catalog) Plans() []Plan {
	out := make([]Plan, len(c.plans))
	copy(out, c.plans)
	return out
}

// Default returns the production catalog.
func Default() (*Catalog, error) {
	return NewCatalog(
		[]Plan{
			{
				Name:        FreePlanName,
				DisplayName: "Free",
				Price:       decimal.Zero,
				Currency:    "USD",
				UsageLimit:  20,
				Interval:    IntervalEvery30Days,
				Features:    []string{"20 unique products per month", "Manual price edits"},
			},
			{
				Name:        "standard",
				DisplayName: "Standard",
				Price:       decimal.RequireFromString("4.99"),
				Currency:    "USD",
				UsageLimit:  100,
				Interval:    IntervalEvery30Days,
				TrialDays:   7,
				Features:    []string{"100 unique products per month", "Bulk price edits", "CSV export"},
			},
			{
				Name:        "pro",
				DisplayName: "Pro",
				Price:       decimal.RequireFromString("9.99"),
				Currency:    "USD",
				UsageLimit:  1000,
				Interval:    IntervalEvery30Days,
				TrialDays:   7,
				Features:    []string{"1000 unique products per month", "Bulk price edits", "CSV export", "Scheduled changes"},
			},
			{
				Name:        "unlimited",
				DisplayName: "Unlimited",
				Price:       decimal.RequireFromString("19.99"),
				Currency:    "USD",
				UsageLimit:  UnlimitedUsage,
				Interval:    IntervalEvery30Days,
				TrialDays:   14,
				Features:    []string{"Unlimited products", "Bulk price edits", "CSV export", "Scheduled changes", "Priority support"},
			},
		},
		[]PriceRange{
			// Prices billed before the 2024 re-pricing.
			{Min: decimal.RequireFromString("2.99"), Max: decimal.RequireFromString("4.49"), PlanName: "standard"},
			{Min: decimal.RequireFromString("6.99"), Max: decimal.RequireFromString("8.99"), PlanName: "pro"},
			{Min: decimal.RequireFromString("14.99"), Max: decimal.RequireFromString("17.99"), PlanName: "unlimited"},
		},
	)
}
