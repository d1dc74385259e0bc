package domain

import "github.com/shopspring/decimal"

// FloorToStep rounds value down to the nearest multiple of step.
// Negative values and non-positive steps yield zero.
func FloorToStep(value, step decimal.Decimal) decimal.Decimal {
	if !step.IsPositive() || !value.IsPositive() {
		return decimal.Zero
	}

	q, _ := value.QuoRem(step, 0)

	return q.Mul(step)
}

// CeilToStep rounds value up to the nearest multiple of step.
// Only used for explicit minimum bumps.
func CeilToStep(value, step decimal.Decimal) decimal.Decimal {
	if !step.IsPositive() || !value.IsPositive() {
		return decimal.Zero
	}

	q, r := value.QuoRem(step, 0)
	if r.IsPositive() {
		q = q.Add(decimal.NewFromInt(1))
	}

	return q.Mul(step)
}

// FloorQtyForQuote returns the largest step-aligned quantity whose cost at price
// does not exceed quote.
func FloorQtyForQuote(quote, price, step decimal.Decimal) decimal.Decimal {
	if !price.IsPositive() || !step.IsPositive() || !quote.IsPositive() {
		return decimal.Zero
	}

	units, _ := quote.QuoRem(price.Mul(step), 0)

	return units.Mul(step)
}

// CeilQtyForQuote returns the smallest step-aligned quantity whose cost at price
// reaches quote.
func CeilQtyForQuote(quote, price, step decimal.Decimal) decimal.Decimal {
	if !price.IsPositive() || !step.IsPositive() || !quote.IsPositive() {
		return decimal.Zero
	}

	units, rem := quote.QuoRem(price.Mul(step), 0)
	if rem.IsPositive() {
		units = units.Add(decimal.NewFromInt(1))
	}

	return units.Mul(step)
}
