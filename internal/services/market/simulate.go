package market

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/signalbot/internal/domain"
)

type paperAccount interface {
	GetBalance(ctx context.Context, asset string) (domain.Balance, error)
	GetTradeHistory(ctx context.Context, pair domain.Pair) ([]domain.TradeFill, error)
}

// Simulate serves public Binance rules, prices and candles together with
// balances and fills of a paper account.
type Simulate struct {
	public  *Binance
	account paperAccount
}

// NewSimulate creates a market reader for paper trading.
func NewSimulate(public *Binance, account paperAccount) *Simulate {
	return &Simulate{public: public, account: account}
}

func (s *Simulate) GetTradingRules(ctx context.Context, pair domain.Pair) (domain.TradingRules, error) {
	return s.public.GetTradingRules(ctx, pair)
}

func (s *Simulate) GetPrice(ctx context.Context, pair domain.Pair) (decimal.Decimal, error) {
	return s.public.GetPrice(ctx, pair)
}

func (s *Simulate) GetKlines(ctx context.Context, pair domain.Pair, timeframe string, limit int) ([]domain.MarketCandle, error) {
	return s.public.GetKlines(ctx, pair, timeframe, limit)
}

func (s *Simulate) GetBalance(ctx context.Context, asset string) (domain.Balance, error) {
	return s.account.GetBalance(ctx, asset)
}

func (s *Simulate) GetTradeHistory(ctx context.Context, pair domain.Pair) ([]domain.TradeFill, error) {
	return s.account.GetTradeHistory(ctx, pair)
}
