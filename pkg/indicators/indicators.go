// Package indicators computes EMA, MACD and RSI series over closing prices.
package indicators

import (
	"fmt"
	"math"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/momentum"
	"github.com/cinar/indicator/v2/trend"
	"github.com/shopspring/decimal"
)

const (
	macdSlow   = 26
	macdSignal = 9
)

// EMA returns the exponential moving average series for period.
func EMA(closes []decimal.Decimal, period int) ([]decimal.Decimal, error) {
	if period <= 0 {
		return nil, fmt.Errorf("invalid EMA period %d", period)
	}
	if len(closes) < period {
		return nil, fmt.Errorf("not enough data points: need %d, got %d", period, len(closes))
	}

	ema := trend.NewEmaWithPeriod[float64](period)
	out := helper.ChanToSlice(ema.Compute(helper.SliceToChan(toFloats(closes))))

	return toDecimals(out, 0), nil
}

// MACD returns aligned MACD line and signal line series (12, 26, 9).
func MACD(closes []decimal.Decimal) ([]decimal.Decimal, []decimal.Decimal, error) {
	if need := macdSlow + macdSignal - 1; len(closes) < need {
		return nil, nil, fmt.Errorf("not enough data points for MACD: need %d, got %d", need, len(closes))
	}

	macd := trend.NewMacd[float64]()
	lineChan, signalChan := macd.Compute(helper.SliceToChan(toFloats(closes)))

	// both outputs share a duplicated input and must be drained together
	signalDone := make(chan []float64, 1)
	go func() {
		signalDone <- helper.ChanToSlice(signalChan)
	}()
	line := helper.ChanToSlice(lineChan)
	signal := <-signalDone

	n := len(line)
	if len(signal) < n {
		n = len(signal)
	}

	return toDecimals(line[len(line)-n:], 0), toDecimals(signal[len(signal)-n:], 0), nil
}

// RSI returns the relative strength index series for period.
func RSI(closes []decimal.Decimal, period int) ([]decimal.Decimal, error) {
	if period <= 0 {
		return nil, fmt.Errorf("invalid RSI period %d", period)
	}
	if len(closes) < period+1 {
		return nil, fmt.Errorf("not enough data points for RSI: need %d, got %d", period+1, len(closes))
	}

	rsi := momentum.NewRsiWithPeriod[float64](period)
	out := helper.ChanToSlice(rsi.Compute(helper.SliceToChan(toFloats(closes))))

	// a flat series has no gains or losses, treat it as neutral
	return toDecimals(out, 50), nil
}

// Last returns the final element of a series.
func Last(series []decimal.Decimal) (decimal.Decimal, bool) {
	if len(series) == 0 {
		return decimal.Zero, false
	}
	return series[len(series)-1], true
}

func toFloats(decimals []decimal.Decimal) []float64 {
	result := make([]float64, len(decimals))
	for i, d := range decimals {
		result[i], _ = d.Float64()
	}
	return result
}

// toDecimals converts floats, replacing NaN and infinities with fallback.
func toDecimals(floats []float64, fallback float64) []decimal.Decimal {
	result := make([]decimal.Decimal, len(floats))
	for i, f := range floats {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			f = fallback
		}
		result[i] = decimal.NewFromFloat(f)
	}
	return result
}
