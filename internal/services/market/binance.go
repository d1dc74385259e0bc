package market

import (
	"context"
	"sort"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/signalbot/internal/domain"
)

// Binance market and account reader backed by the Binance spot REST API.
type Binance struct {
	client *binance.Client
	reader reader
}

// NewBinance creates a Binance reader.
func NewBinance(client *binance.Client) *Binance {
	return &Binance{client: client, reader: newReader()}
}

// GetTradingRules builds trading rules from exchange info filters.
func (b *Binance) GetTradingRules(ctx context.Context, pair domain.Pair) (domain.TradingRules, error) {
	info, err := read(ctx, b.reader, func(ctx context.Context) (*binance.ExchangeInfo, error) {
		return b.client.NewExchangeInfoService().Symbol(pair.Symbol()).Do(ctx)
	})
	if err != nil {
		return domain.TradingRules{}, errors.Wrapf(err, "get exchange info for %s", pair.String())
	}

	for i := range info.Symbols {
		s := &info.Symbols[i]
		if s.Symbol == pair.Symbol() {
			return binanceRules(s)
		}
	}

	return domain.TradingRules{}, errors.Errorf("symbol %s not found in exchange info", pair.Symbol())
}

func binanceRules(s *binance.Symbol) (domain.TradingRules, error) {
	lot := s.LotSizeFilter()
	if lot == nil {
		return domain.TradingRules{}, errors.Errorf("%s has no LOT_SIZE filter", s.Symbol)
	}
	priceFilter := s.PriceFilter()
	if priceFilter == nil {
		return domain.TradingRules{}, errors.Errorf("%s has no PRICE_FILTER", s.Symbol)
	}

	minQty, err := parseDecimal("min qty", lot.MinQuantity)
	if err != nil {
		return domain.TradingRules{}, err
	}
	step, err := parseDecimal("step size", lot.StepSize)
	if err != nil {
		return domain.TradingRules{}, err
	}
	tick, err := parseDecimal("tick size", priceFilter.TickSize)
	if err != nil {
		return domain.TradingRules{}, err
	}

	minNotional := DefaultMinNotional
	applyToMarket := true
	switch {
	case s.NotionalFilter() != nil:
		f := s.NotionalFilter()
		v, err := parseOptional("min notional", f.MinNotional)
		if err != nil {
			return domain.TradingRules{}, err
		}
		if v.IsPositive() {
			minNotional = v
		}
		applyToMarket = f.ApplyMinToMarket
	default:
		// older symbols still publish the MIN_NOTIONAL filter
		if raw, apply, ok := legacyMinNotional(s); ok {
			v, err := parseOptional("min notional", raw)
			if err != nil {
				return domain.TradingRules{}, err
			}
			if v.IsPositive() {
				minNotional = v
			}
			applyToMarket = apply
		}
	}

	return domain.NewTradingRules(minQty, step, tick, minNotional, applyToMarket, s.BaseAsset, s.QuoteAsset)
}

// GetPrice returns the last traded price.
func (b *Binance) GetPrice(ctx context.Context, pair domain.Pair) (decimal.Decimal, error) {
	prices, err := read(ctx, b.reader, func(ctx context.Context) ([]*binance.SymbolPrice, error) {
		return b.client.NewListPricesService().Symbol(pair.Symbol()).Do(ctx)
	})
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "get price for %s", pair.String())
	}

	for _, p := range prices {
		if p.Symbol == pair.Symbol() {
			return parseDecimal("price", p.Price)
		}
	}

	return decimal.Zero, errors.Errorf("binance API returned no price for %s", pair.String())
}

// GetBalance returns free and locked spot balance of asset.
func (b *Binance) GetBalance(ctx context.Context, asset string) (domain.Balance, error) {
	account, err := read(ctx, b.reader, func(ctx context.Context) (*binance.Account, error) {
		return b.client.NewGetAccountService().Do(ctx)
	})
	if err != nil {
		return domain.Balance{}, errors.Wrap(err, "get binance account")
	}

	for _, balance := range account.Balances {
		if balance.Asset != asset {
			continue
		}
		free, err := parseDecimal("free balance", balance.Free)
		if err != nil {
			return domain.Balance{}, err
		}
		locked, err := parseDecimal("locked balance", balance.Locked)
		if err != nil {
			return domain.Balance{}, err
		}
		return domain.Balance{Asset: asset, Free: free, Locked: locked}, nil
	}

	return domain.Balance{Asset: asset, Free: decimal.Zero, Locked: decimal.Zero}, nil
}

// GetTradeHistory returns account fills for pair, oldest first.
func (b *Binance) GetTradeHistory(ctx context.Context, pair domain.Pair) ([]domain.TradeFill, error) {
	trades, err := read(ctx, b.reader, func(ctx context.Context) ([]*binance.TradeV3, error) {
		return b.client.NewListTradesService().Symbol(pair.Symbol()).Do(ctx)
	})
	if err != nil {
		return nil, errors.Wrapf(err, "list binance trades for %s", pair.String())
	}

	sort.Slice(trades, func(i, j int) bool {
		return trades[i].Time < trades[j].Time
	})

	fills := make([]domain.TradeFill, 0, len(trades))
	for _, trade := range trades {
		qty, err := parseDecimal("trade quantity", trade.Quantity)
		if err != nil {
			return nil, err
		}
		price, err := parseDecimal("trade price", trade.Price)
		if err != nil {
			return nil, err
		}
		fills = append(fills, domain.TradeFill{
			Quantity: qty,
			Price:    price,
			IsBuyer:  trade.IsBuyer,
			Time:     time.UnixMilli(trade.Time),
		})
	}

	return fills, nil
}

// GetKlines fetches the latest candles for a timeframe label.
func (b *Binance) GetKlines(ctx context.Context, pair domain.Pair, timeframe string, limit int) ([]domain.MarketCandle, error) {
	interval, err := BinanceInterval(timeframe)
	if err != nil {
		return nil, err
	}

	klines, err := read(ctx, b.reader, func(ctx context.Context) ([]*binance.Kline, error) {
		return b.client.NewKlinesService().
			Symbol(pair.Symbol()).
			Interval(interval).
			Limit(limit).
			Do(ctx)
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch klines from Binance for %s", pair.String())
	}

	result := make([]domain.MarketCandle, len(klines))
	for i, k := range klines {
		c := domain.MarketCandle{
			OpenTime:  time.UnixMilli(k.OpenTime),
			CloseTime: time.UnixMilli(k.CloseTime),
		}
		if c.Open, err = parseDecimal("open", k.Open); err != nil {
			return nil, errors.Wrapf(err, "kline %d", i)
		}
		if c.High, err = parseDecimal("high", k.High); err != nil {
			return nil, errors.Wrapf(err, "kline %d", i)
		}
		if c.Low, err = parseDecimal("low", k.Low); err != nil {
			return nil, errors.Wrapf(err, "kline %d", i)
		}
		if c.Close, err = parseDecimal("close", k.Close); err != nil {
			return nil, errors.Wrapf(err, "kline %d", i)
		}
		if c.Volume, err = parseDecimal("volume", k.Volume); err != nil {
			return nil, errors.Wrapf(err, "kline %d", i)
		}
		result[i] = c
	}

	return result, nil
}

func legacyMinNotional(s *binance.Symbol) (string, bool, bool) {
	for _, filter := range s.Filters {
		if t, _ := filter["filterType"].(string); t != "MIN_NOTIONAL" {
			continue
		}
		raw, _ := filter["minNotional"].(string)
		apply, ok := filter["applyToMarket"].(bool)
		if !ok {
			apply = true
		}
		return raw, apply, true
	}
	return "", false, false
}
