// Package reach estimates how many viewers a daily budget buys.
package reach

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/gloads/portal/internal/models"
)

// Budget bounds in whole rupees.
const (
	MinBudget  int64 = 80
	MaxBudget  int64 = 10000
	BudgetStep int64 = 10

	minViewsPerRupee = 9
	maxViewsPerRupee = 11

	// spendViewsPerRupee is the billing rate for delivered views.
	spendViewsPerRupee = 10
)

var (
	ErrBudgetOutOfRange = errors.New("budget out of range")
	ErrBudgetStep       = errors.New("budget must be a multiple of 10")
	ErrBudgetNotNumber  = errors.New("budget must be a whole number")
)

// Estimate returns the reach range for budget. Budgets outside [MinBudget, MaxBudget]
// or off the BudgetStep grid are rejected.
func Estimate(budget int64) (models.ReachRange, error) {
	if err := Validate(budget); err != nil {
		return models.ReachRange{}, err
	}
	return models.ReachRange{
		Min: budget * minViewsPerRupee,
		Max: budget * maxViewsPerRupee,
	}, nil
}

// Validate checks budget against the accepted range and step.
func Validate(budget int64) error {
	if budget < MinBudget || budget > MaxBudget {
		return fmt.Errorf("%w: %d not in [%d, %d]", ErrBudgetOutOfRange, budget, MinBudget, MaxBudget)
	}
	if budget%BudgetStep != 0 {
		return fmt.Errorf("%w: %d", ErrBudgetStep, budget)
	}
	return nil
}

// Clamp pulls budget into range and rounds it to the nearest step, the way the budget slider does.
func Clamp(budget int64) int64 {
	if budget < MinBudget {
		return MinBudget
	}
	if budget > MaxBudget {
		return MaxBudget
	}
	rem := budget % BudgetStep
	if rem == 0 {
		return budget
	}
	if rem*2 >= BudgetStep {
		budget += BudgetStep - rem
	} else {
		budget -= rem
	}
	if budget > MaxBudget {
		return MaxBudget
	}
	return budget
}

// ParseBudget parses a query or form value into a validated budget.
func ParseBudget(raw string) (int64, error) {
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, ErrBudgetNotNumber
	}
	if err := Validate(n); err != nil {
		return 0, err
	}
	return n, nil
}

// Spend derives the rupees consumed by a campaign from its delivered views:
// ten views per rupee, rounded up and capped at the budget.
func Spend(budget, views int64) int64 {
	if views <= 0 || budget <= 0 {
		return 0
	}
	spend := views / spendViewsPerRupee
	if views%spendViewsPerRupee != 0 {
		spend++
	}
	if spend > budget {
		return budget
	}
	return spend
}
