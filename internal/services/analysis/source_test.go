package analysis

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/signalbot/internal/domain"
	"go.uber.org/zap"
)

type fakeProvider struct {
	candles map[string][]domain.MarketCandle
	errs    map[string]error
}

func (f *fakeProvider) GetKlines(_ context.Context, _ domain.Pair, timeframe string, _ int) ([]domain.MarketCandle, error) {
	if err := f.errs[timeframe]; err != nil {
		return nil, err
	}
	return f.candles[timeframe], nil
}

var btcUSDT = domain.Pair{From: "BTC", To: "USDT"}

func TestNewSource_Validation(t *testing.T) {
	_, err := NewSource(btcUSDT, &fakeProvider{}, nil, zap.NewNop())
	assert.Error(t, err)

	_, err = NewSource(btcUSDT, &fakeProvider{}, []string{"1h", "7x"}, zap.NewNop())
	assert.ErrorIs(t, err, domain.ErrInvalidTimeframe)
}

func TestSource_Collect(t *testing.T) {
	provider := &fakeProvider{
		candles: map[string][]domain.MarketCandle{
			"15m": candles(60, accelerating),
			"1h":  candles(60, collapsing),
			"4h":  candles(10, accelerating),
		},
		errs: map[string]error{"1D": errors.New("boom")},
	}
	src, err := NewSource(btcUSDT, provider, []string{"15m", "1h", "4h", "1D"}, zap.NewNop())
	require.NoError(t, err)

	collectedAt := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	src.now = func() time.Time { return collectedAt }

	batch, err := src.Collect(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "BTC_USDT", batch.Pair)
	assert.Equal(t, collectedAt, batch.CollectedAt)
	assert.Equal(t, domain.Observations{
		"15m": string(domain.RecommendationBuy),
		"1h":  string(domain.RecommendationSell),
	}, batch.Observations)
}

func TestSource_CollectNothing(t *testing.T) {
	provider := &fakeProvider{errs: map[string]error{"1h": errors.New("down")}}
	src, err := NewSource(btcUSDT, provider, []string{"1h"}, zap.NewNop())
	require.NoError(t, err)

	_, err = src.Collect(context.Background())
	assert.ErrorIs(t, err, ErrNoObservations)
}

func TestSource_CollectCancelled(t *testing.T) {
	provider := &fakeProvider{errs: map[string]error{"1h": context.Canceled}}
	src, err := NewSource(btcUSDT, provider, []string{"1h"}, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = src.Collect(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
