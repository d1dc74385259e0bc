package trader

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/signalbot/internal/domain"
	"github.com/vadiminshakov/signalbot/internal/storage/simstate"
	marketmock "github.com/vadiminshakov/signalbot/mocks/market"
	"go.uber.org/zap"
)

var btcUSDT = domain.Pair{From: "BTC", To: "USDT"}

func newPricer(t *testing.T, price string) *marketmock.Market {
	m := marketmock.NewMarket(t)
	m.On("GetPrice", mock.Anything, btcUSDT).Return(decimal.RequireFromString(price), nil).Maybe()
	return m
}

func newSimulate(t *testing.T, price string, store stateStore) *Simulate {
	sim, err := NewSimulate(btcUSDT, newPricer(t, price), store, decimal.NewFromInt(10000), zap.NewNop())
	require.NoError(t, err)
	return sim
}

func marketOrder(side domain.Side, qty string) domain.OrderRequest {
	return domain.OrderRequest{
		Pair:          btcUSDT,
		Side:          side,
		Type:          domain.OrderTypeMarket,
		Quantity:      decimal.RequireFromString(qty),
		ClientOrderID: "test",
	}
}

func balance(t *testing.T, sim *Simulate, asset string) decimal.Decimal {
	b, err := sim.GetBalance(context.Background(), asset)
	require.NoError(t, err)
	return b.Free
}

func TestSimulate_InitialBalance(t *testing.T) {
	sim := newSimulate(t, "50000", nil)

	assert.True(t, balance(t, sim, "BTC").IsZero())
	assert.True(t, balance(t, sim, "USDT").Equal(decimal.NewFromInt(10000)))
	assert.True(t, balance(t, sim, "ETH").IsZero())
}

func TestSimulate_BuyThenSell(t *testing.T) {
	sim := newSimulate(t, "50000", nil)
	ctx := context.Background()

	res, err := sim.SubmitOrder(ctx, marketOrder(domain.SideBuy, "0.1"))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, domain.OrderStatusFilled, res.Status)
	assert.True(t, decimal.RequireFromString("0.1").Equal(res.FilledQuantity))
	assert.True(t, decimal.NewFromInt(50000).Equal(res.AveragePrice))
	assert.NotEmpty(t, res.OrderID)

	assert.True(t, balance(t, sim, "BTC").Equal(decimal.RequireFromString("0.1")))
	assert.True(t, balance(t, sim, "USDT").Equal(decimal.NewFromInt(5000)))

	res, err = sim.SubmitOrder(ctx, marketOrder(domain.SideSell, "0.04"))
	require.NoError(t, err)
	assert.True(t, res.Success)

	assert.True(t, balance(t, sim, "BTC").Equal(decimal.RequireFromString("0.06")))
	assert.True(t, balance(t, sim, "USDT").Equal(decimal.NewFromInt(7000)))

	fills, err := sim.GetTradeHistory(ctx, btcUSDT)
	require.NoError(t, err)
	require.Len(t, fills, 2)
	assert.True(t, fills[0].IsBuyer)
	assert.False(t, fills[1].IsBuyer)
}

func TestSimulate_InsufficientBalance(t *testing.T) {
	sim := newSimulate(t, "50000", nil)
	ctx := context.Background()

	res, err := sim.SubmitOrder(ctx, marketOrder(domain.SideBuy, "1"))
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, domain.OrderStatusRejected, res.Status)

	res, err = sim.SubmitOrder(ctx, marketOrder(domain.SideSell, "0.01"))
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, domain.OrderStatusRejected, res.Status)

	assert.True(t, balance(t, sim, "USDT").Equal(decimal.NewFromInt(10000)))
}

func TestSimulate_LimitOrder(t *testing.T) {
	sim := newSimulate(t, "50000", nil)
	ctx := context.Background()

	req := marketOrder(domain.SideBuy, "0.01")
	req.Type = domain.OrderTypeLimit
	req.Price = decimal.NewFromInt(49000)

	res, err := sim.SubmitOrder(ctx, req)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, domain.OrderStatusExpired, res.Status)

	req.Price = decimal.NewFromInt(51000)
	res, err = sim.SubmitOrder(ctx, req)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, decimal.NewFromInt(50000).Equal(res.AveragePrice))
}

func TestSimulate_RejectsInvalidRequests(t *testing.T) {
	sim := newSimulate(t, "50000", nil)
	ctx := context.Background()

	_, err := sim.SubmitOrder(ctx, marketOrder(domain.SideBuy, "0"))
	assert.Error(t, err)

	other := marketOrder(domain.SideBuy, "0.1")
	other.Pair = domain.Pair{From: "ETH", To: "USDT"}
	_, err = sim.SubmitOrder(ctx, other)
	assert.Error(t, err)
}

func TestSimulate_StatePersistsAcrossRestarts(t *testing.T) {
	dir := t.TempDir()
	store, err := simstate.NewStore(dir, btcUSDT)
	require.NoError(t, err)

	sim := newSimulate(t, "20000", store)
	res, err := sim.SubmitOrder(context.Background(), marketOrder(domain.SideBuy, "0.25"))
	require.NoError(t, err)
	require.True(t, res.Success)

	reopened, err := simstate.NewStore(dir, btcUSDT)
	require.NoError(t, err)
	restored := newSimulate(t, "20000", reopened)

	assert.True(t, balance(t, restored, "BTC").Equal(decimal.RequireFromString("0.25")))
	assert.True(t, balance(t, restored, "USDT").Equal(decimal.NewFromInt(5000)))

	fills, err := restored.GetTradeHistory(context.Background(), btcUSDT)
	require.NoError(t, err)
	require.Len(t, fills, 1)
	assert.True(t, decimal.NewFromInt(20000).Equal(fills[0].Price))

	next, err := restored.SubmitOrder(context.Background(), marketOrder(domain.SideSell, "0.05"))
	require.NoError(t, err)
	assert.Equal(t, "2", next.OrderID)
}
