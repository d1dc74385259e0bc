// Package allocation sizes candidate orders from a score and instrument state.
package allocation

import (
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/signalbot/internal/domain"
	"go.uber.org/zap"
)

var hundred = decimal.NewFromInt(100)

// Strategy maps signal strength linearly onto position size.
//
// BUY:  fraction = (score - buy_threshold) / (2 - buy_threshold)
// SELL: fraction = (sell_threshold - score) / (sell_threshold + 2)
//
// Both are clamped to [0, 1].
type Strategy struct {
	params domain.StrategyParams
	l      *zap.Logger
}

// NewStrategy creates a sizing strategy.
func NewStrategy(params domain.StrategyParams, l *zap.Logger) (*Strategy, error) {
	if err := params.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid allocation params")
	}
	if l == nil {
		l = zap.NewNop()
	}

	return &Strategy{params: params, l: l}, nil
}

// CalculateAllocation returns a candidate order or nil when nothing should be traded.
func (s *Strategy) CalculateAllocation(score decimal.Decimal, signal domain.Signal, snapshot domain.MarketSnapshot) *domain.Allocation {
	if err := checkSnapshot(snapshot); err != nil {
		s.l.Error("allocation skipped", zap.Error(err))
		return nil
	}

	switch signal {
	case domain.SignalBuy:
		return s.buy(score, snapshot)
	case domain.SignalSell:
		return s.sell(score, snapshot)
	default:
		return nil
	}
}

// BuyFraction normalised buy strength in [0, 1].
func (s *Strategy) BuyFraction(score decimal.Decimal) decimal.Decimal {
	span := domain.MaxScore().Sub(s.params.BuyThreshold)
	return clamp(score.Sub(s.params.BuyThreshold).Div(span))
}

// SellFraction normalised liquidation share of the base balance in [0, 1].
func (s *Strategy) SellFraction(score decimal.Decimal) decimal.Decimal {
	span := s.params.SellThreshold.Add(domain.MaxScore())
	return clamp(s.params.SellThreshold.Sub(score).Div(span))
}

func (s *Strategy) buy(score decimal.Decimal, snap domain.MarketSnapshot) *domain.Allocation {
	if score.LessThan(s.params.BuyThreshold) {
		return nil
	}
	rules := snap.Rules

	fraction := s.BuyFraction(score)
	riskCapital := snap.QuoteBalance.Mul(s.params.MaxAllocationPercent).Div(hundred).Mul(fraction)
	if !riskCapital.IsPositive() || riskCapital.LessThan(s.params.MinOrderSize) {
		s.l.Info("risk capital below minimum order size",
			zap.String("risk_capital", riskCapital.String()),
			zap.String("min_order_size", s.params.MinOrderSize.String()))
		return nil
	}

	qty := domain.FloorQtyForQuote(riskCapital, snap.Price, rules.StepSize)
	notional := qty.Mul(snap.Price)

	if rules.ApplyMinNotionalToMarket && notional.LessThan(rules.MinNotional) {
		bumped := domain.CeilQtyForQuote(rules.MinNotional, snap.Price, rules.StepSize)
		cost := bumped.Mul(snap.Price)
		if cost.GreaterThan(snap.QuoteBalance) {
			s.l.Info("min notional not reachable with quote balance",
				zap.String("required", cost.String()),
				zap.String("quote_balance", snap.QuoteBalance.String()))
			return nil
		}
		qty, notional = bumped, cost
	}

	if qty.LessThan(rules.MinQty) || !qty.IsPositive() {
		s.l.Info("buy quantity below min qty",
			zap.String("qty", qty.String()),
			zap.String("min_qty", rules.MinQty.String()))
		return nil
	}

	return &domain.Allocation{Action: domain.SideBuy, Quantity: qty, EstimatedNotional: notional}
}

func (s *Strategy) sell(score decimal.Decimal, snap domain.MarketSnapshot) *domain.Allocation {
	if score.GreaterThan(s.params.SellThreshold) {
		return nil
	}
	rules := snap.Rules

	fraction := s.SellFraction(score)
	qty := rules.QuantizeQty(snap.BaseBalance.Mul(fraction))
	if qty.LessThan(rules.MinQty) || !qty.IsPositive() {
		s.l.Info("sell quantity below min qty",
			zap.String("qty", qty.String()),
			zap.String("min_qty", rules.MinQty.String()))
		return nil
	}

	notional := qty.Mul(snap.Price)
	if rules.ApplyMinNotionalToMarket && notional.LessThan(rules.MinNotional) {
		s.l.Info("sell notional below min notional",
			zap.String("notional", notional.String()),
			zap.String("min_notional", rules.MinNotional.String()))
		return nil
	}

	return &domain.Allocation{Action: domain.SideSell, Quantity: qty, EstimatedNotional: notional}
}

func checkSnapshot(snap domain.MarketSnapshot) error {
	if !snap.Price.IsPositive() {
		return errors.Errorf("price must be positive, got %s", snap.Price.String())
	}
	if !snap.Rules.StepSize.IsPositive() || !snap.Rules.MinQty.IsPositive() {
		return errors.New("trading rules are missing step size or min qty")
	}
	if snap.QuoteBalance.IsNegative() || snap.BaseBalance.IsNegative() {
		return errors.New("negative balance")
	}
	return nil
}

func clamp(v decimal.Decimal) decimal.Decimal {
	if v.IsNegative() {
		return decimal.Zero
	}
	if v.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.NewFromInt(1)
	}
	return v
}
