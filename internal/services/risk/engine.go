// Package risk re-validates candidate orders right before submission.
package risk

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/signalbot/internal/domain"
	"go.uber.org/zap"
)

type market interface {
	GetTradingRules(ctx context.Context, pair domain.Pair) (domain.TradingRules, error)
	GetPrice(ctx context.Context, pair domain.Pair) (decimal.Decimal, error)
	GetBalance(ctx context.Context, asset string) (domain.Balance, error)
}

// Engine last safety gate before money moves. Rules and price are cached for
// one decision cycle, balances are always read live.
type Engine struct {
	pair   domain.Pair
	market market
	l      *zap.Logger

	mu    sync.Mutex
	rules *domain.TradingRules
	price *decimal.Decimal
}

// NewEngine creates a risk engine for one pair.
func NewEngine(pair domain.Pair, market market, l *zap.Logger) *Engine {
	if l == nil {
		l = zap.NewNop()
	}
	return &Engine{pair: pair, market: market, l: l}
}

// ResetCycle drops cached rules and price. Call at the start of every cycle.
func (e *Engine) ResetCycle() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = nil
	e.price = nil
}

// ValidateQuantity returns the step-aligned quantity that may be sent for side,
// or false when the order must not be placed. The result never exceeds quantity.
func (e *Engine) ValidateQuantity(ctx context.Context, quantity decimal.Decimal, side domain.Side) (decimal.Decimal, bool) {
	if !quantity.IsPositive() {
		e.reject("non-positive quantity", quantity, side)
		return decimal.Zero, false
	}
	if side != domain.SideBuy && side != domain.SideSell {
		e.reject("unknown side", quantity, side)
		return decimal.Zero, false
	}

	rules, err := e.tradingRules(ctx)
	if err != nil {
		e.l.Warn("risk check failed to load trading rules", zap.Error(err))
		return decimal.Zero, false
	}

	if quantity.LessThan(rules.MinQty) {
		e.reject("below min qty", quantity, side, zap.String("min_qty", rules.MinQty.String()))
		return decimal.Zero, false
	}

	qty := rules.QuantizeQty(quantity)
	if !qty.IsPositive() {
		e.reject("quantized to zero", quantity, side)
		return decimal.Zero, false
	}

	var price decimal.Decimal
	if side == domain.SideBuy {
		price, err = e.currentPrice(ctx)
		if err != nil {
			e.l.Warn("risk check failed to load price", zap.Error(err))
			return decimal.Zero, false
		}
		if rules.ApplyMinNotionalToMarket && qty.Mul(price).LessThan(rules.MinNotional) {
			e.reject("below min notional", qty, side,
				zap.String("notional", qty.Mul(price).String()),
				zap.String("min_notional", rules.MinNotional.String()))
			return decimal.Zero, false
		}
	}

	asset := rules.BaseAsset
	if side == domain.SideBuy {
		asset = rules.QuoteAsset
	}
	balance, err := e.market.GetBalance(ctx, asset)
	if err != nil {
		e.l.Warn("risk check failed to load balance", zap.String("asset", asset), zap.Error(err))
		return decimal.Zero, false
	}

	required := qty
	if side == domain.SideBuy {
		required = qty.Mul(price)
	}
	if required.GreaterThan(balance.Free) {
		e.reject("insufficient balance", qty, side,
			zap.String("asset", asset),
			zap.String("required", required.String()),
			zap.String("available", balance.Free.String()))
		return decimal.Zero, false
	}

	return qty, true
}

func (e *Engine) tradingRules(ctx context.Context) (domain.TradingRules, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.rules != nil {
		return *e.rules, nil
	}

	rules, err := e.market.GetTradingRules(ctx, e.pair)
	if err != nil {
		return domain.TradingRules{}, errors.Wrapf(err, "get trading rules for %s", e.pair.String())
	}
	e.rules = &rules

	return rules, nil
}

func (e *Engine) currentPrice(ctx context.Context) (decimal.Decimal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.price != nil {
		return *e.price, nil
	}

	price, err := e.market.GetPrice(ctx, e.pair)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "get price for %s", e.pair.String())
	}
	if !price.IsPositive() {
		return decimal.Zero, errors.Errorf("non-positive price %s for %s", price.String(), e.pair.String())
	}
	e.price = &price

	return price, nil
}

func (e *Engine) reject(reason string, qty decimal.Decimal, side domain.Side, fields ...zap.Field) {
	fields = append([]zap.Field{
		zap.String("reason", reason),
		zap.String("pair", e.pair.String()),
		zap.String("side", string(side)),
		zap.String("qty", qty.String()),
	}, fields...)
	e.l.Info("risk check rejected order", fields...)
}
