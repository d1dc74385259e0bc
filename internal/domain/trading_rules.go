package domain

import (
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// TradingRules exchange constraints of a single instrument.
// Built once by a market collaborator and never re-validated downstream.
type TradingRules struct {
	MinQty                   decimal.Decimal
	StepSize                 decimal.Decimal
	TickSize                 decimal.Decimal
	MinNotional              decimal.Decimal
	ApplyMinNotionalToMarket bool
	BaseAsset                string
	QuoteAsset               string
}

// NewTradingRules validates and returns trading rules.
func NewTradingRules(minQty, stepSize, tickSize, minNotional decimal.Decimal, applyToMarket bool, baseAsset, quoteAsset string) (TradingRules, error) {
	fields := []struct {
		name  string
		value decimal.Decimal
	}{
		{"min_qty", minQty},
		{"step_size", stepSize},
		{"tick_size", tickSize},
		{"min_notional", minNotional},
	}
	for _, f := range fields {
		if !f.value.IsPositive() {
			return TradingRules{}, errors.Errorf("%s must be positive, got %s", f.name, f.value.String())
		}
	}
	if baseAsset == "" || quoteAsset == "" {
		return TradingRules{}, errors.New("base and quote assets are required")
	}

	return TradingRules{
		MinQty:                   minQty,
		StepSize:                 stepSize,
		TickSize:                 tickSize,
		MinNotional:              minNotional,
		ApplyMinNotionalToMarket: applyToMarket,
		BaseAsset:                baseAsset,
		QuoteAsset:               quoteAsset,
	}, nil
}

// QuantizeQty floors quantity to the instrument step size.
func (r TradingRules) QuantizeQty(qty decimal.Decimal) decimal.Decimal {
	return FloorToStep(qty, r.StepSize)
}
