package decision

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/signalbot/internal/domain"
	"github.com/vadiminshakov/signalbot/internal/services/allocation"
	"github.com/vadiminshakov/signalbot/internal/services/position"
	"github.com/vadiminshakov/signalbot/internal/services/risk"
	"github.com/vadiminshakov/signalbot/internal/storage/positions"
	marketmock "github.com/vadiminshakov/signalbot/mocks/market"
	tradermock "github.com/vadiminshakov/signalbot/mocks/trader"
	"go.uber.org/zap"
)

var pair = domain.Pair{From: "BTC", To: "USDT"}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decimalMatcher(expected string) interface{} {
	return mock.MatchedBy(func(req domain.OrderRequest) bool {
		return req.Quantity.Equal(dec(expected)) && req.Type == domain.OrderTypeMarket && req.ClientOrderID != ""
	})
}

func rules() domain.TradingRules {
	return domain.TradingRules{
		MinQty:                   dec("0.001"),
		StepSize:                 dec("0.001"),
		TickSize:                 dec("0.01"),
		MinNotional:              dec("10"),
		ApplyMinNotionalToMarket: true,
		BaseAsset:                "BTC",
		QuoteAsset:               "USDT",
	}
}

type fixture struct {
	maker    *Maker
	market   *marketmock.Market
	executor *tradermock.Executor
	manager  *position.Manager
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	l := zap.NewNop()

	m := marketmock.NewMarket(t)
	ex := tradermock.NewExecutor(t)

	store, err := positions.NewWALStore(t.TempDir(), pair)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	manager := position.NewManager(pair, store, m, []decimal.Decimal{dec("2"), dec("5"), dec("10")}, l)

	strategy, err := allocation.NewStrategy(domain.StrategyParams{
		BuyThreshold:         dec("1"),
		SellThreshold:        dec("-0.45"),
		MaxAllocationPercent: dec("5"),
		MinOrderSize:         dec("5"),
	}, l)
	require.NoError(t, err)

	maker := NewMaker(pair, m, ex, strategy, risk.NewEngine(pair, m, l), manager, time.Second, l)

	return fixture{maker: maker, market: m, executor: ex, manager: manager}
}

func (f fixture) marketState(price, quote, base string) {
	f.market.On("GetTradingRules", mock.Anything, pair).Return(rules(), nil)
	f.market.On("GetPrice", mock.Anything, pair).Return(dec(price), nil)
	f.market.On("GetBalance", mock.Anything, "USDT").Return(domain.Balance{Asset: "USDT", Free: dec(quote)}, nil)
	f.market.On("GetBalance", mock.Anything, "BTC").Return(domain.Balance{Asset: "BTC", Free: dec(base)}, nil)
}

func TestProcessSignal_BuyOpensPosition(t *testing.T) {
	f := newFixture(t)
	f.marketState("50000", "1000", "0")
	f.executor.On("SubmitOrder", mock.Anything, decimalMatcher("0.001")).
		Return(domain.OrderResult{
			Success:        true,
			OrderID:        "42",
			FilledQuantity: dec("0.001"),
			AveragePrice:   dec("50010.5"),
			Status:         domain.OrderStatusFilled,
		}, nil).Once()

	ok := f.maker.ProcessSignal(context.Background(), dec("2"), domain.SignalBuy)
	require.True(t, ok)

	active, err := f.manager.GetActivePositions()
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.True(t, dec("50010.5").Equal(active[0].EntryPrice))
	assert.True(t, dec("0.001").Equal(active[0].Quantity))
	assert.Equal(t, domain.PositionTypeLong, active[0].Type)
}

func TestProcessSignal_SellReducesFIFO(t *testing.T) {
	f := newFixture(t)
	first, err := f.manager.CreatePosition(dec("40000"), dec("0.3"), domain.PositionTypeLong, nil)
	require.NoError(t, err)
	second, err := f.manager.CreatePosition(dec("45000"), dec("0.5"), domain.PositionTypeLong, nil)
	require.NoError(t, err)

	f.marketState("50000", "0", "0.5")
	f.executor.On("SubmitOrder", mock.Anything, mock.MatchedBy(func(req domain.OrderRequest) bool {
		return req.Side == domain.SideSell && req.Quantity.Equal(dec("0.5"))
	})).Return(domain.OrderResult{
		Success:        true,
		OrderID:        "7",
		FilledQuantity: dec("0.5"),
		AveragePrice:   dec("49990"),
		Status:         domain.OrderStatusFilled,
	}, nil).Once()

	ok := f.maker.ProcessSignal(context.Background(), dec("-2"), domain.SignalSell)
	require.True(t, ok)

	closed, err := f.manager.GetPosition(first)
	require.NoError(t, err)
	assert.Equal(t, domain.PositionStatusClosed, closed.Status)

	reduced, err := f.manager.GetPosition(second)
	require.NoError(t, err)
	assert.Equal(t, domain.PositionStatusOpen, reduced.Status)
	assert.True(t, dec("0.3").Equal(reduced.Quantity), "got %s", reduced.Quantity)
}

func TestProcessSignal_NeutralDoesNothing(t *testing.T) {
	f := newFixture(t)

	assert.False(t, f.maker.ProcessSignal(context.Background(), dec("0.1"), domain.SignalNeutral))
	f.executor.AssertNotCalled(t, "SubmitOrder", mock.Anything, mock.Anything)
}

func TestProcessSignal_NoAllocation(t *testing.T) {
	f := newFixture(t)
	f.marketState("50000", "1000", "0")

	// buy signal with a score below threshold sizes to nothing
	assert.False(t, f.maker.ProcessSignal(context.Background(), dec("0.5"), domain.SignalBuy))
	f.executor.AssertNotCalled(t, "SubmitOrder", mock.Anything, mock.Anything)
}

func TestProcessSignal_RiskRejectsBalanceDrift(t *testing.T) {
	f := newFixture(t)
	f.market.On("GetTradingRules", mock.Anything, pair).Return(rules(), nil)
	f.market.On("GetPrice", mock.Anything, pair).Return(dec("50000"), nil)
	f.market.On("GetBalance", mock.Anything, "BTC").Return(domain.Balance{Asset: "BTC"}, nil)
	f.market.On("GetBalance", mock.Anything, "USDT").Return(domain.Balance{Asset: "USDT", Free: dec("1000")}, nil).Once()
	f.market.On("GetBalance", mock.Anything, "USDT").Return(domain.Balance{Asset: "USDT", Free: dec("20")}, nil).Once()

	assert.False(t, f.maker.ProcessSignal(context.Background(), dec("2"), domain.SignalBuy))
	f.executor.AssertNotCalled(t, "SubmitOrder", mock.Anything, mock.Anything)
}

func TestProcessSignal_ExecutionFailures(t *testing.T) {
	t.Run("submit error", func(t *testing.T) {
		f := newFixture(t)
		f.marketState("50000", "1000", "0")
		f.executor.On("SubmitOrder", mock.Anything, mock.Anything).
			Return(domain.OrderResult{}, errors.New("exchange unavailable")).Once()

		assert.False(t, f.maker.ProcessSignal(context.Background(), dec("2"), domain.SignalBuy))
		active, err := f.manager.GetActivePositions()
		require.NoError(t, err)
		assert.Empty(t, active)
	})

	t.Run("rejected order", func(t *testing.T) {
		f := newFixture(t)
		f.marketState("50000", "1000", "0")
		f.executor.On("SubmitOrder", mock.Anything, mock.Anything).
			Return(domain.OrderResult{Success: false, Status: domain.OrderStatusRejected}, nil).Once()

		assert.False(t, f.maker.ProcessSignal(context.Background(), dec("2"), domain.SignalBuy))
	})

	t.Run("market data error", func(t *testing.T) {
		f := newFixture(t)
		f.market.On("GetTradingRules", mock.Anything, pair).Return(domain.TradingRules{}, errors.New("timeout")).Once()

		assert.False(t, f.maker.ProcessSignal(context.Background(), dec("2"), domain.SignalBuy))
	})

	t.Run("panic is contained", func(t *testing.T) {
		f := newFixture(t)
		f.marketState("50000", "1000", "0")
		f.executor.On("SubmitOrder", mock.Anything, mock.Anything).
			Run(func(mock.Arguments) { panic("driver bug") }).
			Return(domain.OrderResult{}, nil).Once()

		assert.NotPanics(t, func() {
			assert.False(t, f.maker.ProcessSignal(context.Background(), dec("2"), domain.SignalBuy))
		})
	})
}

func TestProcessSignal_PartialFillCancelsRemainder(t *testing.T) {
	f := newFixture(t)
	f.marketState("50000", "1000", "0")
	f.executor.On("SubmitOrder", mock.Anything, mock.Anything).
		Return(domain.OrderResult{
			Success:        true,
			OrderID:        "99",
			FilledQuantity: dec("0.0005"),
			AveragePrice:   dec("50000"),
			Status:         domain.OrderStatusPartiallyFilled,
		}, nil).Once()
	f.executor.On("CancelOrder", mock.Anything, pair, "99").Return(nil).Once()

	require.True(t, f.maker.ProcessSignal(context.Background(), dec("2"), domain.SignalBuy))

	active, err := f.manager.GetActivePositions()
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.True(t, dec("0.0005").Equal(active[0].Quantity))
}

func TestProcessSignal_FillWithoutPrice(t *testing.T) {
	f := newFixture(t)
	f.marketState("50000", "1000", "0")
	f.executor.On("SubmitOrder", mock.Anything, mock.Anything).
		Return(domain.OrderResult{Success: true, OrderID: "1", FilledQuantity: dec("0.001"), Status: domain.OrderStatusFilled}, nil).Once()

	assert.True(t, f.maker.ProcessSignal(context.Background(), dec("2"), domain.SignalBuy))

	active, err := f.manager.GetActivePositions()
	require.NoError(t, err)
	assert.Empty(t, active)
}
