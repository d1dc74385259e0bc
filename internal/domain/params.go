package domain

import (
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

var maxScore = decimal.NewFromInt(2)

// StrategyParams immutable decision parameters shared by scoring and sizing.
type StrategyParams struct {
	BuyThreshold  decimal.Decimal
	SellThreshold decimal.Decimal
	// MaxAllocationPercent share of the quote balance risked at full signal strength, 0..100.
	MaxAllocationPercent decimal.Decimal
	// MinOrderSize absolute floor for risked quote capital.
	MinOrderSize decimal.Decimal
}

// MaxScore upper bound of the score range; the lower bound is its negation.
func MaxScore() decimal.Decimal {
	return maxScore
}

// Validate checks parameter ranges.
func (p StrategyParams) Validate() error {
	if !p.BuyThreshold.IsPositive() || p.BuyThreshold.GreaterThanOrEqual(maxScore) {
		return errors.Errorf("buy threshold must be in (0, 2), got %s", p.BuyThreshold.String())
	}
	if !p.SellThreshold.IsNegative() || p.SellThreshold.LessThanOrEqual(maxScore.Neg()) {
		return errors.Errorf("sell threshold must be in (-2, 0), got %s", p.SellThreshold.String())
	}
	if !p.MaxAllocationPercent.IsPositive() || p.MaxAllocationPercent.GreaterThan(decimal.NewFromInt(100)) {
		return errors.Errorf("max allocation percent must be in (0, 100], got %s", p.MaxAllocationPercent.String())
	}
	if p.MinOrderSize.IsNegative() {
		return errors.Errorf("min order size must not be negative, got %s", p.MinOrderSize.String())
	}
	return nil
}

// Classify maps a score to a signal.
func (p StrategyParams) Classify(score decimal.Decimal) Signal {
	switch {
	case score.GreaterThanOrEqual(p.BuyThreshold):
		return SignalBuy
	case score.LessThanOrEqual(p.SellThreshold):
		return SignalSell
	default:
		return SignalNeutral
	}
}
