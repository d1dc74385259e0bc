package position

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/signalbot/internal/domain"
	"github.com/vadiminshakov/signalbot/internal/storage/positions"
	marketmock "github.com/vadiminshakov/signalbot/mocks/market"
	"go.uber.org/zap"
)

var pair = domain.Pair{From: "BTC", To: "USDT"}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func profitLevels() []decimal.Decimal {
	return []decimal.Decimal{dec("2.0"), dec("5.0"), dec("10.0")}
}

func newManager(t *testing.T, account account) (*Manager, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := positions.NewWALStore(dir, pair)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	m := NewManager(pair, store, account, profitLevels(), zap.NewNop())
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return m, dir
}

func TestCreatePosition(t *testing.T) {
	m, _ := newManager(t, nil)

	ts := dec("40000")
	id, err := m.CreatePosition(dec("42000.5"), dec("0.01"), domain.PositionTypeLong, &ts)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	p, err := m.GetPosition(id)
	require.NoError(t, err)
	assert.Equal(t, domain.PositionStatusOpen, p.Status)
	assert.Equal(t, "BTCUSDT", p.Symbol)
	assert.True(t, dec("42000.5").Equal(p.EntryPrice))
	assert.True(t, dec("0.01").Equal(p.Quantity))
	require.NotNil(t, p.TrailingStop)
	assert.Nil(t, p.ExitTime)
}

func TestCreatePosition_Invalid(t *testing.T) {
	m, _ := newManager(t, nil)

	tests := []struct {
		name  string
		price string
		qty   string
		typ   domain.PositionType
	}{
		{"zero price", "0", "1", domain.PositionTypeLong},
		{"negative qty", "100", "-1", domain.PositionTypeLong},
		{"zero qty", "100", "0", domain.PositionTypeShort},
		{"bad type", "100", "1", domain.PositionType("SIDEWAYS")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.CreatePosition(dec(tt.price), dec(tt.qty), tt.typ, nil)
			assert.True(t, errors.Is(err, ErrInvalidPositionData), "got %v", err)
		})
	}

	active, err := m.GetActivePositions()
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestClosePosition(t *testing.T) {
	m, _ := newManager(t, nil)

	id, err := m.CreatePosition(dec("100"), dec("1"), domain.PositionTypeLong, nil)
	require.NoError(t, err)

	require.NoError(t, m.ClosePosition(id))
	p, err := m.GetPosition(id)
	require.NoError(t, err)
	assert.Equal(t, domain.PositionStatusClosed, p.Status)
	require.NotNil(t, p.ExitTime)

	err = m.ClosePosition(id)
	assert.True(t, errors.Is(err, ErrPositionConflict), "got %v", err)

	err = m.ClosePosition("missing")
	assert.True(t, errors.Is(err, ErrPositionNotFound), "got %v", err)

	_, err = m.GetPosition("missing")
	assert.True(t, errors.Is(err, ErrPositionNotFound))
}

func TestUpdatePosition(t *testing.T) {
	m, _ := newManager(t, nil)
	id, err := m.CreatePosition(dec("100"), dec("1"), domain.PositionTypeLong, nil)
	require.NoError(t, err)

	p, err := m.UpdatePosition(id, Updates{
		FieldCurrentPrice: "105.5",
		FieldTrailingStop: "98",
		FieldQuantity:     "0.75",
	})
	require.NoError(t, err)
	assert.True(t, dec("105.5").Equal(p.CurrentPrice))
	assert.True(t, dec("0.75").Equal(p.Quantity))
	require.NotNil(t, p.TrailingStop)
	assert.True(t, dec("98").Equal(*p.TrailingStop))

	p, err = m.UpdatePosition(id, Updates{FieldTrailingStop: ""})
	require.NoError(t, err)
	assert.Nil(t, p.TrailingStop)

	p, err = m.UpdatePosition(id, Updates{FieldStatus: "closed"})
	require.NoError(t, err)
	assert.Equal(t, domain.PositionStatusClosed, p.Status)
	assert.NotNil(t, p.ExitTime)

	_, err = m.UpdatePosition(id, Updates{FieldStatus: "closed"})
	assert.True(t, errors.Is(err, ErrPositionConflict), "got %v", err)
}

func TestUpdatePosition_Rejects(t *testing.T) {
	m, _ := newManager(t, nil)
	id, err := m.CreatePosition(dec("100"), dec("1"), domain.PositionTypeLong, nil)
	require.NoError(t, err)

	_, err = m.UpdatePosition(id, Updates{FieldCurrentPrice: "101", "entry_price": "1"})
	assert.True(t, errors.Is(err, ErrInvalidPositionData), "got %v", err)

	_, err = m.UpdatePosition(id, Updates{FieldQuantity: "abc"})
	assert.True(t, errors.Is(err, ErrInvalidPositionData))

	_, err = m.UpdatePosition(id, Updates{FieldQuantity: "0"})
	assert.True(t, errors.Is(err, ErrInvalidPositionData))

	_, err = m.UpdatePosition(id, Updates{FieldStatus: "paused"})
	assert.True(t, errors.Is(err, ErrInvalidPositionData))

	_, err = m.UpdatePosition("missing", Updates{FieldCurrentPrice: "1"})
	assert.True(t, errors.Is(err, ErrPositionNotFound))

	// rejected updates leave the position untouched
	p, err := m.GetPosition(id)
	require.NoError(t, err)
	assert.True(t, dec("100").Equal(p.CurrentPrice))
	assert.True(t, dec("1").Equal(p.Quantity))
}

func TestAddProfitLevel(t *testing.T) {
	m, _ := newManager(t, nil)
	id, err := m.CreatePosition(dec("100"), dec("1"), domain.PositionTypeLong, nil)
	require.NoError(t, err)

	require.NoError(t, m.AddProfitLevel(id, dec("5")))

	err = m.AddProfitLevel(id, dec("5.00"))
	assert.True(t, errors.Is(err, ErrPositionConflict), "got %v", err)

	err = m.AddProfitLevel(id, dec("3"))
	assert.True(t, errors.Is(err, ErrInvalidPositionData), "got %v", err)

	err = m.AddProfitLevel("missing", dec("2"))
	assert.True(t, errors.Is(err, ErrPositionNotFound), "got %v", err)

	p, err := m.GetPosition(id)
	require.NoError(t, err)
	require.Len(t, p.ProfitLevels, 1)
	assert.True(t, dec("5").Equal(p.ProfitLevels[0]))
}

func TestAddProfitLevel_ClosedPosition(t *testing.T) {
	m, _ := newManager(t, nil)
	id, err := m.CreatePosition(dec("100"), dec("1"), domain.PositionTypeLong, nil)
	require.NoError(t, err)
	require.NoError(t, m.ClosePosition(id))

	err = m.AddProfitLevel(id, dec("2"))
	assert.True(t, errors.Is(err, ErrPositionConflict), "got %v", err)

	p, err := m.GetPosition(id)
	require.NoError(t, err)
	assert.Empty(t, p.ProfitLevels)
}

func TestReducePositions_FIFO(t *testing.T) {
	m, _ := newManager(t, nil)

	first, err := m.CreatePosition(dec("100"), dec("0.3"), domain.PositionTypeLong, nil)
	require.NoError(t, err)
	second, err := m.CreatePosition(dec("110"), dec("0.5"), domain.PositionTypeLong, nil)
	require.NoError(t, err)
	third, err := m.CreatePosition(dec("120"), dec("0.2"), domain.PositionTypeLong, nil)
	require.NoError(t, err)

	res, err := m.ReducePositions(dec("0.6"))
	require.NoError(t, err)
	assert.Equal(t, []string{first}, res.Closed)
	assert.Equal(t, []string{second}, res.Reduced)
	assert.True(t, res.Unmatched.IsZero())

	active, err := m.GetActivePositions()
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, second, active[0].ID)
	assert.True(t, dec("0.2").Equal(active[0].Quantity))
	assert.Equal(t, third, active[1].ID)

	res, err = m.ReducePositions(dec("1"))
	require.NoError(t, err)
	assert.Equal(t, []string{second, third}, res.Closed)
	assert.True(t, dec("0.6").Equal(res.Unmatched), "got %s", res.Unmatched)

	active, err = m.GetActivePositions()
	require.NoError(t, err)
	assert.Empty(t, active)

	_, err = m.ReducePositions(decimal.Zero)
	assert.True(t, errors.Is(err, ErrInvalidPositionData))
}

func TestManager_SurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	store, err := positions.NewWALStore(dir, pair)
	require.NoError(t, err)

	m := NewManager(pair, store, nil, profitLevels(), zap.NewNop())
	id, err := m.CreatePosition(dec("100.123456789"), dec("0.5"), domain.PositionTypeLong, nil)
	require.NoError(t, err)
	require.NoError(t, m.AddProfitLevel(id, dec("2")))
	require.NoError(t, m.MarkToMarket(dec("101")))
	require.NoError(t, store.Close())

	reopened, err := positions.NewWALStore(dir, pair)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	restored := NewManager(pair, reopened, nil, profitLevels(), zap.NewNop())
	p, err := restored.GetPosition(id)
	require.NoError(t, err)
	assert.Equal(t, "100.123456789", p.EntryPrice.String())
	assert.True(t, dec("101").Equal(p.CurrentPrice))
	assert.True(t, p.HasProfitLevel(dec("2")))
}

func TestManager_ConcurrentCreates(t *testing.T) {
	m, _ := newManager(t, nil)
	var clockMu sync.Mutex
	inner := m.now
	m.now = func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		return inner()
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.CreatePosition(dec("100"), dec("0.1"), domain.PositionTypeLong, nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	active, err := m.GetActivePositions()
	require.NoError(t, err)
	assert.Len(t, active, 20)
}

func TestSyncWithExchange_AdoptsUntrackedBalance(t *testing.T) {
	acc := marketmock.NewMarket(t)
	m, _ := newManager(t, acc)

	_, err := m.CreatePosition(dec("100"), dec("0.4"), domain.PositionTypeLong, nil)
	require.NoError(t, err)

	acc.On("GetBalance", mock.Anything, "BTC").Return(domain.Balance{Asset: "BTC", Free: dec("0.9"), Locked: dec("0.1")}, nil).Once()
	acc.On("GetTradeHistory", mock.Anything, pair).Return([]domain.TradeFill{
		{Quantity: dec("1"), Price: dec("100"), IsBuyer: true},
		{Quantity: dec("1"), Price: dec("200"), IsBuyer: true},
		{Quantity: dec("0.5"), Price: dec("900"), IsBuyer: false},
	}, nil).Once()

	m.SyncWithExchange(context.Background())

	active, err := m.GetActivePositions()
	require.NoError(t, err)
	require.Len(t, active, 2)
	adopted := active[1]
	assert.Equal(t, domain.PositionTypeLong, adopted.Type)
	assert.True(t, dec("0.6").Equal(adopted.Quantity), "got %s", adopted.Quantity)
	assert.True(t, dec("150").Equal(adopted.EntryPrice), "got %s", adopted.EntryPrice)
}

func TestSyncWithExchange_CountsPositionsOpenedDuringFetch(t *testing.T) {
	tests := []struct {
		name        string
		openedQty   string
		wantActive  int
		wantAdopted string
	}{
		{"partly covered", "0.4", 2, "0.6"},
		{"fully covered", "1", 1, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acc := marketmock.NewMarket(t)
			m, _ := newManager(t, acc)

			acc.On("GetBalance", mock.Anything, "BTC").Return(domain.Balance{Asset: "BTC", Free: dec("1")}, nil).Once()
			acc.On("GetTradeHistory", mock.Anything, pair).
				Run(func(mock.Arguments) {
					// a buy is booked while the history request is in flight
					_, err := m.CreatePosition(dec("120"), dec(tt.openedQty), domain.PositionTypeLong, nil)
					require.NoError(t, err)
				}).
				Return([]domain.TradeFill{{Quantity: dec("1"), Price: dec("100"), IsBuyer: true}}, nil).Once()

			m.SyncWithExchange(context.Background())

			active, err := m.GetActivePositions()
			require.NoError(t, err)
			require.Len(t, active, tt.wantActive)
			total := decimal.Zero
			for _, p := range active {
				total = total.Add(p.Quantity)
			}
			assert.True(t, dec("1").Equal(total), "tracked %s", total)
			if tt.wantAdopted != "" {
				assert.True(t, dec(tt.wantAdopted).Equal(active[1].Quantity), "got %s", active[1].Quantity)
				assert.True(t, dec("100").Equal(active[1].EntryPrice))
			}
		})
	}
}

func TestSyncWithExchange_NoOps(t *testing.T) {
	t.Run("zero balance", func(t *testing.T) {
		acc := marketmock.NewMarket(t)
		m, _ := newManager(t, acc)
		acc.On("GetBalance", mock.Anything, "BTC").Return(domain.Balance{Asset: "BTC"}, nil).Once()

		m.SyncWithExchange(context.Background())

		active, err := m.GetActivePositions()
		require.NoError(t, err)
		assert.Empty(t, active)
	})

	t.Run("empty history", func(t *testing.T) {
		acc := marketmock.NewMarket(t)
		m, _ := newManager(t, acc)
		acc.On("GetBalance", mock.Anything, "BTC").Return(domain.Balance{Asset: "BTC", Free: dec("1")}, nil).Once()
		acc.On("GetTradeHistory", mock.Anything, pair).Return(nil, nil).Once()

		m.SyncWithExchange(context.Background())

		active, err := m.GetActivePositions()
		require.NoError(t, err)
		assert.Empty(t, active)
	})

	t.Run("fully tracked", func(t *testing.T) {
		acc := marketmock.NewMarket(t)
		m, _ := newManager(t, acc)
		_, err := m.CreatePosition(dec("100"), dec("1"), domain.PositionTypeLong, nil)
		require.NoError(t, err)
		acc.On("GetBalance", mock.Anything, "BTC").Return(domain.Balance{Asset: "BTC", Free: dec("1")}, nil).Once()

		m.SyncWithExchange(context.Background())

		active, err := m.GetActivePositions()
		require.NoError(t, err)
		assert.Len(t, active, 1)
	})

	t.Run("collaborator errors are swallowed", func(t *testing.T) {
		acc := marketmock.NewMarket(t)
		m, _ := newManager(t, acc)
		acc.On("GetBalance", mock.Anything, "BTC").Return(domain.Balance{}, errors.New("unavailable")).Once()

		assert.NotPanics(t, func() { m.SyncWithExchange(context.Background()) })
	})
}
