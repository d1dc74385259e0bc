// Package decision runs one signal through sizing, risk, execution and bookkeeping.
package decision

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/signalbot/internal/domain"
	"github.com/vadiminshakov/signalbot/internal/services/position"
	"go.uber.org/zap"
)

const defaultOrderTimeout = 30 * time.Second

type market interface {
	GetTradingRules(ctx context.Context, pair domain.Pair) (domain.TradingRules, error)
	GetPrice(ctx context.Context, pair domain.Pair) (decimal.Decimal, error)
	GetBalance(ctx context.Context, asset string) (domain.Balance, error)
}

type executor interface {
	SubmitOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error)
	CancelOrder(ctx context.Context, pair domain.Pair, orderID string) error
}

type allocator interface {
	CalculateAllocation(score decimal.Decimal, signal domain.Signal, snapshot domain.MarketSnapshot) *domain.Allocation
}

type riskGate interface {
	ResetCycle()
	ValidateQuantity(ctx context.Context, quantity decimal.Decimal, side domain.Side) (decimal.Decimal, bool)
}

type positionBook interface {
	CreatePosition(entryPrice, quantity decimal.Decimal, typ domain.PositionType, trailingStop *decimal.Decimal) (string, error)
	ReducePositions(quantity decimal.Decimal) (position.Reduction, error)
}

// Maker turns a classified score into at most one market order per call.
type Maker struct {
	pair         domain.Pair
	market       market
	executor     executor
	allocator    allocator
	risk         riskGate
	positions    positionBook
	orderTimeout time.Duration
	l            *zap.Logger
}

// NewMaker creates a decision maker for one pair.
func NewMaker(
	pair domain.Pair,
	market market,
	executor executor,
	allocator allocator,
	risk riskGate,
	positions positionBook,
	orderTimeout time.Duration,
	l *zap.Logger,
) *Maker {
	if l == nil {
		l = zap.NewNop()
	}
	if orderTimeout <= 0 {
		orderTimeout = defaultOrderTimeout
	}

	return &Maker{
		pair:         pair,
		market:       market,
		executor:     executor,
		allocator:    allocator,
		risk:         risk,
		positions:    positions,
		orderTimeout: orderTimeout,
		l:            l.With(zap.String("pair", pair.String())),
	}
}

// ProcessSignal reports whether an order was placed and filled. It never
// returns an error: failures are logged and reported as false.
func (m *Maker) ProcessSignal(ctx context.Context, score decimal.Decimal, signal domain.Signal) (placed bool) {
	defer func() {
		if r := recover(); r != nil {
			m.l.Error("decision pipeline panicked", zap.String("panic", fmt.Sprint(r)))
			placed = false
		}
	}()

	placed, err := m.process(ctx, score, signal)
	if err != nil {
		m.l.Error("decision pipeline failed",
			zap.String("signal", signal.String()),
			zap.String("score", score.String()),
			zap.Error(err))
		return false
	}

	return placed
}

func (m *Maker) process(ctx context.Context, score decimal.Decimal, signal domain.Signal) (bool, error) {
	if _, ok := signal.Side(); !ok {
		return false, nil
	}

	m.risk.ResetCycle()

	snapshot, err := m.snapshot(ctx)
	if err != nil {
		return false, err
	}

	alloc := m.allocator.CalculateAllocation(score, signal, snapshot)
	if alloc == nil {
		m.l.Info("no allocation", zap.String("signal", signal.String()), zap.String("score", score.String()))
		return false, nil
	}

	qty, ok := m.risk.ValidateQuantity(ctx, alloc.Quantity, alloc.Action)
	if !ok {
		return false, nil
	}

	orderCtx, cancel := context.WithTimeout(ctx, m.orderTimeout)
	defer cancel()

	req := domain.OrderRequest{
		Pair:          m.pair,
		Side:          alloc.Action,
		Type:          domain.OrderTypeMarket,
		Quantity:      qty,
		ClientOrderID: uuid.NewString(),
	}
	res, err := m.executor.SubmitOrder(orderCtx, req)
	if err != nil {
		return false, errors.Wrapf(err, "submit %s order for %s", req.Side, qty.String())
	}
	if !res.Success {
		m.l.Warn("order not filled",
			zap.String("side", string(req.Side)),
			zap.String("qty", qty.String()),
			zap.String("status", string(res.Status)))
		return false, nil
	}
	if res.Working() && res.OrderID != "" {
		if err := m.executor.CancelOrder(orderCtx, m.pair, res.OrderID); err != nil {
			m.l.Warn("failed to cancel order remainder", zap.String("order_id", res.OrderID), zap.Error(err))
		}
	}

	filled := res.FilledQuantity
	if !filled.IsPositive() {
		filled = qty
	}

	m.l.Info("order filled",
		zap.String("order_id", res.OrderID),
		zap.String("side", string(req.Side)),
		zap.String("qty", filled.String()),
		zap.String("avg_price", res.AveragePrice.String()),
		zap.String("score", score.String()))

	if !res.AveragePrice.IsPositive() {
		m.l.Error("fill reported without a price, positions left for reconciliation",
			zap.String("order_id", res.OrderID))
		return true, nil
	}

	switch req.Side {
	case domain.SideBuy:
		if _, err := m.positions.CreatePosition(res.AveragePrice, filled, domain.PositionTypeLong, nil); err != nil {
			return false, errors.Wrap(err, "record bought position")
		}
	case domain.SideSell:
		reduction, err := m.positions.ReducePositions(filled)
		if err != nil {
			return false, errors.Wrap(err, "reduce positions after sell")
		}
		if reduction.Unmatched.IsPositive() {
			m.l.Warn("sold more than tracked positions hold",
				zap.String("unmatched", reduction.Unmatched.String()))
		}
	}

	return true, nil
}

func (m *Maker) snapshot(ctx context.Context) (domain.MarketSnapshot, error) {
	rules, err := m.market.GetTradingRules(ctx, m.pair)
	if err != nil {
		return domain.MarketSnapshot{}, errors.Wrap(err, "get trading rules")
	}
	price, err := m.market.GetPrice(ctx, m.pair)
	if err != nil {
		return domain.MarketSnapshot{}, errors.Wrap(err, "get price")
	}
	quote, err := m.market.GetBalance(ctx, rules.QuoteAsset)
	if err != nil {
		return domain.MarketSnapshot{}, errors.Wrapf(err, "get %s balance", rules.QuoteAsset)
	}
	base, err := m.market.GetBalance(ctx, rules.BaseAsset)
	if err != nil {
		return domain.MarketSnapshot{}, errors.Wrapf(err, "get %s balance", rules.BaseAsset)
	}

	return domain.MarketSnapshot{
		Rules:        rules,
		QuoteBalance: quote.Free,
		BaseBalance:  base.Free,
		Price:        price,
	}, nil
}
