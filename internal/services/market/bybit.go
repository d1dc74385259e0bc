package market

import (
	"context"
	"sort"
	"strconv"
	"time"

	bybit "github.com/hirokisan/bybit/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/signalbot/internal/domain"
)

const bybitMaxKlinesPerRequest = 200

// Bybit market and account reader backed by the Bybit v5 spot API.
type Bybit struct {
	client *bybit.Client
	reader reader
}

// NewBybit creates a Bybit reader.
func NewBybit(client *bybit.Client) *Bybit {
	return &Bybit{client: client, reader: newReader()}
}

// GetTradingRules builds trading rules from spot instrument info.
func (b *Bybit) GetTradingRules(ctx context.Context, pair domain.Pair) (domain.TradingRules, error) {
	symbol := bybit.SymbolV5(pair.Symbol())
	res, err := read(ctx, b.reader, func(ctx context.Context) (*bybit.V5GetInstrumentsInfoResponse, error) {
		return b.client.V5().Market().GetInstrumentsInfo(bybit.V5GetInstrumentsInfoParam{
			Category: bybit.CategoryV5Spot,
			Symbol:   &symbol,
		})
	})
	if err != nil {
		return domain.TradingRules{}, errors.Wrapf(err, "get instruments info for %s", pair.String())
	}
	if res.Result.Spot == nil || len(res.Result.Spot.List) == 0 {
		return domain.TradingRules{}, errors.Errorf("bybit returned no instrument info for %s", pair.String())
	}

	return bybitRules(res.Result.Spot.List[0])
}

func bybitRules(item bybit.V5GetInstrumentsInfoSpotItem) (domain.TradingRules, error) {
	minQty, err := parseDecimal("min order qty", item.LotSizeFilter.MinOrderQty)
	if err != nil {
		return domain.TradingRules{}, err
	}
	step, err := parseDecimal("base precision", item.LotSizeFilter.BasePrecision)
	if err != nil {
		return domain.TradingRules{}, err
	}
	tick, err := parseDecimal("tick size", item.PriceFilter.TickSize)
	if err != nil {
		return domain.TradingRules{}, err
	}
	minNotional, err := parseOptional("min order amount", item.LotSizeFilter.MinOrderAmt)
	if err != nil {
		return domain.TradingRules{}, err
	}
	if !minNotional.IsPositive() {
		minNotional = DefaultMinNotional
	}

	return domain.NewTradingRules(minQty, step, tick, minNotional, true, string(item.BaseCoin), string(item.QuoteCoin))
}

// GetPrice returns the last traded price.
func (b *Bybit) GetPrice(ctx context.Context, pair domain.Pair) (decimal.Decimal, error) {
	symbol := bybit.SymbolV5(pair.Symbol())
	result, err := read(ctx, b.reader, func(ctx context.Context) (*bybit.V5GetTickersResponse, error) {
		return b.client.V5().Market().GetTickers(bybit.V5GetTickersParam{
			Category: bybit.CategoryV5Spot,
			Symbol:   &symbol,
		})
	})
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "get ticker for %s", pair.String())
	}
	if result.Result.Spot == nil || len(result.Result.Spot.List) == 0 {
		return decimal.Zero, errors.Errorf("bybit API returned empty prices for %s", pair.String())
	}

	return parseDecimal("price", result.Result.Spot.List[0].LastPrice)
}

// GetBalance returns the unified account balance of asset.
func (b *Bybit) GetBalance(ctx context.Context, asset string) (domain.Balance, error) {
	res, err := read(ctx, b.reader, func(ctx context.Context) (*bybit.V5GetWalletBalanceResponse, error) {
		return b.client.V5().Account().GetWalletBalance(bybit.AccountTypeV5("UNIFIED"), []bybit.Coin{bybit.Coin(asset)})
	})
	if err != nil {
		return domain.Balance{}, errors.Wrap(err, "get bybit wallet balance")
	}

	return bybitBalance(res.Result.List, asset)
}

// bybitBalance picks asset out of the wallet lists. A missing coin is a zero balance.
func bybitBalance(accounts []bybit.V5WalletBalanceList, asset string) (domain.Balance, error) {
	for _, account := range accounts {
		for _, coin := range account.Coin {
			if string(coin.Coin) != asset {
				continue
			}
			total, err := parseOptional("wallet balance", coin.WalletBalance)
			if err != nil {
				return domain.Balance{}, err
			}
			locked, err := parseOptional("locked balance", coin.Locked)
			if err != nil {
				return domain.Balance{}, err
			}
			return domain.Balance{Asset: asset, Free: total.Sub(locked), Locked: locked}, nil
		}
	}

	return domain.Balance{Asset: asset, Free: decimal.Zero, Locked: decimal.Zero}, nil
}

// GetTradeHistory returns spot executions for pair, oldest first.
func (b *Bybit) GetTradeHistory(ctx context.Context, pair domain.Pair) ([]domain.TradeFill, error) {
	symbol := bybit.SymbolV5(pair.Symbol())
	res, err := read(ctx, b.reader, func(ctx context.Context) (*bybit.V5GetExecutionListResponse, error) {
		return b.client.V5().Execution().GetExecutionList(bybit.V5GetExecutionParam{
			Category: bybit.CategoryV5Spot,
			Symbol:   &symbol,
		})
	})
	if err != nil {
		return nil, errors.Wrapf(err, "list bybit executions for %s", pair.String())
	}

	return bybitFills(res.Result.List)
}

func bybitFills(executions []bybit.V5GetExecutionListItem) ([]domain.TradeFill, error) {
	fills := make([]domain.TradeFill, 0, len(executions))
	for _, e := range executions {
		qty, err := parseDecimal("exec qty", e.ExecQty)
		if err != nil {
			return nil, err
		}
		price, err := parseDecimal("exec price", e.ExecPrice)
		if err != nil {
			return nil, err
		}
		execTime, err := parseTimestamp(e.ExecTime)
		if err != nil {
			return nil, err
		}
		fills = append(fills, domain.TradeFill{
			Quantity: qty,
			Price:    price,
			IsBuyer:  e.Side == bybit.SideBuy,
			Time:     execTime,
		})
	}

	sort.Slice(fills, func(i, j int) bool {
		return fills[i].Time.Before(fills[j].Time)
	})

	return fills, nil
}

// GetKlines fetches the latest candles for a timeframe label, oldest first.
func (b *Bybit) GetKlines(ctx context.Context, pair domain.Pair, timeframe string, limit int) ([]domain.MarketCandle, error) {
	if limit <= 0 {
		return nil, errors.New("limit must be > 0")
	}
	interval, err := BybitInterval(timeframe)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid interval: %s", timeframe)
	}

	batch := limit
	if batch > bybitMaxKlinesPerRequest {
		batch = bybitMaxKlinesPerRequest
	}

	res, err := read(ctx, b.reader, func(ctx context.Context) (*bybit.V5GetKlineResponse, error) {
		return b.client.V5().Market().GetKline(bybit.V5GetKlineParam{
			Category: bybit.CategoryV5Spot,
			Symbol:   bybit.SymbolV5(pair.Symbol()),
			Interval: bybit.Interval(interval),
			Limit:    &batch,
		})
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch klines from Bybit for %s", pair.String())
	}
	if len(res.Result.List) == 0 {
		return nil, errors.Errorf("no kline data returned from Bybit for %s", pair.String())
	}

	// bybit returns newest first
	candles := make([]domain.MarketCandle, len(res.Result.List))
	for i, k := range res.Result.List {
		openTime, err := parseTimestamp(k.StartTime)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse start time at index %d", i)
		}
		c := domain.MarketCandle{OpenTime: openTime, CloseTime: openTime}
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
		candles[len(candles)-1-i] = c
	}

	return candles, nil
}

// parseTimestamp converts a Bybit millisecond timestamp string to time.Time.
func parseTimestamp(ts string) (time.Time, error) {
	if ts == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	msec, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "failed to parse timestamp: %s", ts)
	}
	return time.UnixMilli(msec), nil
}
