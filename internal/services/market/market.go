// Package market reads instrument rules, prices, balances, fills and candles
// from exchanges.
package market

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"github.com/adshao/go-binance/v2/common"
	"github.com/hirokisan/bybit/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/signalbot/internal/domain"
	"github.com/vadiminshakov/signalbot/pkg/retrier"
	"golang.org/x/time/rate"
)

// DefaultMinNotional used when an exchange publishes no min notional filter.
var DefaultMinNotional = decimal.NewFromInt(5)

const (
	defaultRequestsPerSecond = 10
	defaultBurst             = 5
)

// reader paces and retries idempotent REST reads.
type reader struct {
	limiter *rate.Limiter
	retrier *retrier.Retrier
}

func newReader() reader {
	return reader{
		limiter: rate.NewLimiter(rate.Limit(defaultRequestsPerSecond), defaultBurst),
		retrier: retrier.New(retrier.WithMaxRetries(3), retrier.WithRetryIf(retryableRead)),
	}
}

// Exchange error codes worth another attempt: server faults, timeouts and
// rate limits. Anything else the exchange rejects fails fast.
var (
	binanceRetryCodes = map[int64]struct{}{-1000: {}, -1001: {}, -1003: {}, -1007: {}, -1008: {}, -1015: {}}
	bybitRetryCodes   = map[int]struct{}{10000: {}, 10002: {}, 10006: {}, 10016: {}, 10018: {}}
)

// retryableRead classifies read errors. Transport errors are retried.
func retryableRead(err error) bool {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		_, ok := binanceRetryCodes[apiErr.Code]
		return ok
	}
	var bybitErr *bybit.ErrorResponse
	if errors.As(err, &bybitErr) {
		_, ok := bybitRetryCodes[bybitErr.RetCode]
		return ok
	}
	return true
}

func read[T any](ctx context.Context, r reader, fn func(ctx context.Context) (T, error)) (T, error) {
	return retrier.DoWithData(r.retrier, ctx, func(ctx context.Context) (T, error) {
		if err := r.limiter.Wait(ctx); err != nil {
			var zero T
			return zero, err
		}
		return fn(ctx)
	})
}

func parseDecimal(name, raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "parse %s %q", name, raw)
	}
	return d, nil
}

// parseOptional returns zero for empty strings.
func parseOptional(name, raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	return parseDecimal(name, raw)
}

var intervalPattern = regexp.MustCompile(`^(\d*)([mhDWM])$`)

func splitTimeframe(tf string) (int64, string, error) {
	if _, err := domain.ParseTimeframe(tf); err != nil {
		return 0, "", err
	}
	m := intervalPattern.FindStringSubmatch(tf)
	n := int64(1)
	if m[1] != "" {
		v, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return 0, "", errors.Wrapf(err, "timeframe %s", tf)
		}
		n = v
	}
	return n, m[2], nil
}

// BinanceInterval converts a timeframe label to a Binance kline interval.
func BinanceInterval(tf string) (string, error) {
	n, unit, err := splitTimeframe(tf)
	if err != nil {
		return "", err
	}
	switch unit {
	case "m", "h":
		return fmt.Sprintf("%d%s", n, unit), nil
	case "D":
		return fmt.Sprintf("%dd", n), nil
	case "W":
		return fmt.Sprintf("%dw", n), nil
	default:
		return fmt.Sprintf("%dM", n), nil
	}
}

// BybitInterval converts a timeframe label to a Bybit kline interval.
func BybitInterval(tf string) (string, error) {
	n, unit, err := splitTimeframe(tf)
	if err != nil {
		return "", err
	}
	switch unit {
	case "m":
		return strconv.FormatInt(n, 10), nil
	case "h":
		return strconv.FormatInt(n*60, 10), nil
	}
	if n != 1 {
		return "", errors.Errorf("bybit supports only single %s candles, got %s", unit, tf)
	}
	return unit, nil
}
