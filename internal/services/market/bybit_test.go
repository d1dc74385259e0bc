package market

import (
	"testing"
	"time"

	bybit "github.com/hirokisan/bybit/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bybitInstrument(minOrderAmt string) bybit.V5GetInstrumentsInfoSpotItem {
	return bybit.V5GetInstrumentsInfoSpotItem{
		Symbol:    "BTCUSDT",
		BaseCoin:  "BTC",
		QuoteCoin: "USDT",
		LotSizeFilter: bybit.SpotLotSizeFilterV5{
			BasePrecision: "0.000001",
			MinOrderQty:   "0.000048",
			MinOrderAmt:   minOrderAmt,
		},
		PriceFilter: bybit.SpotPriceFilterV5{TickSize: "0.01"},
	}
}

func TestBybitRules(t *testing.T) {
	tests := []struct {
		name            string
		item            bybit.V5GetInstrumentsInfoSpotItem
		wantMinNotional string
		wantErr         bool
	}{
		{
			name:            "min order amount",
			item:            bybitInstrument("1"),
			wantMinNotional: "1",
		},
		{
			name:            "no min order amount falls back to default",
			item:            bybitInstrument(""),
			wantMinNotional: DefaultMinNotional.String(),
		},
		{
			name:            "zero min order amount falls back to default",
			item:            bybitInstrument("0"),
			wantMinNotional: DefaultMinNotional.String(),
		},
		{
			name: "missing tick size",
			item: func() bybit.V5GetInstrumentsInfoSpotItem {
				item := bybitInstrument("1")
				item.PriceFilter.TickSize = ""
				return item
			}(),
			wantErr: true,
		},
		{
			name: "zero step rejected",
			item: func() bybit.V5GetInstrumentsInfoSpotItem {
				item := bybitInstrument("1")
				item.LotSizeFilter.BasePrecision = "0"
				return item
			}(),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rules, err := bybitRules(tt.item)
			if tt.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.True(t, decimal.RequireFromString("0.000048").Equal(rules.MinQty))
			assert.True(t, decimal.RequireFromString("0.000001").Equal(rules.StepSize))
			assert.True(t, decimal.RequireFromString("0.01").Equal(rules.TickSize))
			assert.True(t, decimal.RequireFromString(tt.wantMinNotional).Equal(rules.MinNotional), "got %s", rules.MinNotional)
			assert.True(t, rules.ApplyMinNotionalToMarket)
			assert.Equal(t, "BTC", rules.BaseAsset)
			assert.Equal(t, "USDT", rules.QuoteAsset)
		})
	}
}

func TestBybitBalance(t *testing.T) {
	accounts := []bybit.V5WalletBalanceList{{
		AccountType: "UNIFIED",
		Coin: []bybit.V5WalletBalanceCoin{
			{Coin: "USDT", WalletBalance: "1000.5", Locked: "200"},
			{Coin: "BTC", WalletBalance: "0.25", Locked: ""},
		},
	}}

	tests := []struct {
		name       string
		asset      string
		wantFree   string
		wantLocked string
	}{
		{"locked part excluded from free", "USDT", "800.5", "200"},
		{"empty locked is zero", "BTC", "0.25", "0"},
		{"missing coin is zero balance", "ETH", "0", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := bybitBalance(accounts, tt.asset)
			require.NoError(t, err)
			assert.Equal(t, tt.asset, b.Asset)
			assert.True(t, decimal.RequireFromString(tt.wantFree).Equal(b.Free), "got %s", b.Free)
			assert.True(t, decimal.RequireFromString(tt.wantLocked).Equal(b.Locked), "got %s", b.Locked)
		})
	}

	_, err := bybitBalance([]bybit.V5WalletBalanceList{{
		Coin: []bybit.V5WalletBalanceCoin{{Coin: "USDT", WalletBalance: "n/a"}},
	}}, "USDT")
	require.Error(t, err)
}

func TestBybitFills(t *testing.T) {
	fills, err := bybitFills([]bybit.V5GetExecutionListItem{
		{Side: bybit.SideSell, ExecQty: "0.1", ExecPrice: "51000", ExecTime: "1700000060000"},
		{Side: bybit.SideBuy, ExecQty: "0.2", ExecPrice: "50000.5", ExecTime: "1700000000000"},
	})
	require.NoError(t, err)
	require.Len(t, fills, 2)

	// newest first from the API, oldest first out
	assert.True(t, fills[0].IsBuyer)
	assert.True(t, decimal.RequireFromString("0.2").Equal(fills[0].Quantity))
	assert.True(t, decimal.RequireFromString("50000.5").Equal(fills[0].Price))
	assert.Equal(t, time.UnixMilli(1700000000000), fills[0].Time)
	assert.False(t, fills[1].IsBuyer)

	_, err = bybitFills([]bybit.V5GetExecutionListItem{{Side: bybit.SideBuy, ExecQty: "1", ExecPrice: "1", ExecTime: ""}})
	require.Error(t, err)

	fills, err = bybitFills(nil)
	require.NoError(t, err)
	assert.Empty(t, fills)
}
