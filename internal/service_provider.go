package internal

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	binance "github.com/adshao/go-binance/v2"
	bybit "github.com/hirokisan/bybit/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/signalbot/config"
	"github.com/vadiminshakov/signalbot/internal/clients"
	"github.com/vadiminshakov/signalbot/internal/domain"
	"github.com/vadiminshakov/signalbot/internal/services/market"
	"github.com/vadiminshakov/signalbot/internal/services/trader"
	"github.com/vadiminshakov/signalbot/internal/storage/simstate"
)

type marketService interface {
	GetTradingRules(ctx context.Context, pair domain.Pair) (domain.TradingRules, error)
	GetPrice(ctx context.Context, pair domain.Pair) (decimal.Decimal, error)
	GetBalance(ctx context.Context, asset string) (domain.Balance, error)
	GetTradeHistory(ctx context.Context, pair domain.Pair) ([]domain.TradeFill, error)
	GetKlines(ctx context.Context, pair domain.Pair, timeframe string, limit int) ([]domain.MarketCandle, error)
}

type executorService interface {
	SubmitOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error)
	CancelOrder(ctx context.Context, pair domain.Pair, orderID string) error
}

// serviceProvider creates platform-specific services for one pair.
type serviceProvider interface {
	Market() (marketService, error)
	Executor() (executorService, error)
}

// newServiceProvider dispatches on the client type.
func newServiceProvider(client any, conf config.Config, l *zap.Logger) (serviceProvider, error) {
	switch c := client.(type) {
	case *binance.Client:
		return &binanceProvider{client: c}, nil
	case *bybit.Client:
		return &bybitProvider{client: c}, nil
	case *clients.SimulateClient:
		return &simulateProvider{client: c, conf: conf, l: l}, nil
	default:
		return nil, fmt.Errorf("unsupported client type: %T", client)
	}
}

type binanceProvider struct {
	client *binance.Client
}

func (p *binanceProvider) Market() (marketService, error) {
	return market.NewBinance(p.client), nil
}

func (p *binanceProvider) Executor() (executorService, error) {
	return trader.NewBinance(p.client), nil
}

type bybitProvider struct {
	client *bybit.Client
}

func (p *bybitProvider) Market() (marketService, error) {
	return market.NewBybit(p.client), nil
}

func (p *bybitProvider) Executor() (executorService, error) {
	return trader.NewBybit(p.client), nil
}

// simulateProvider shares one paper account between the market view and the
// executor, so balances seen by sizing reflect paper fills.
type simulateProvider struct {
	client *clients.SimulateClient
	conf   config.Config
	l      *zap.Logger

	once    sync.Once
	public  *market.Binance
	account *trader.Simulate
	err     error
}

func (p *simulateProvider) init() error {
	p.once.Do(func() {
		p.public = market.NewBinance(p.client.GetBinanceClient())

		store, err := simstate.NewStore(simulateDir(p.conf.WALDir), p.conf.Pair)
		if err != nil {
			p.err = errors.Wrap(err, "open paper account store")
			return
		}

		p.account, p.err = trader.NewSimulate(p.conf.Pair, p.public, store, p.conf.PaperBalance, p.l)
	})
	return p.err
}

func (p *simulateProvider) Market() (marketService, error) {
	if err := p.init(); err != nil {
		return nil, err
	}
	return market.NewSimulate(p.public, p.account), nil
}

func (p *simulateProvider) Executor() (executorService, error) {
	if err := p.init(); err != nil {
		return nil, err
	}
	return p.account, nil
}

// simulateDir empty result lets simstate pick its env or default dir.
func simulateDir(walDir string) string {
	if walDir == "" {
		return ""
	}
	return filepath.Join(walDir, "simulate")
}
