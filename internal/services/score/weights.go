package score

import (
	"sort"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/signalbot/internal/domain"
)

// ErrInvalidWeights returned when a timeframe weight set is unusable.
var ErrInvalidWeights = errors.New("invalid timeframe weights")

var weightTolerance = decimal.RequireFromString("0.01")

// Weights weight per timeframe label. Valid sets sum to 1 within 0.01.
type Weights map[string]decimal.Decimal

// CalculateWeights weighs every timeframe by its duration relative to the
// total duration of the set.
func CalculateWeights(timeframes []string) (Weights, error) {
	if len(timeframes) == 0 {
		return nil, errors.Wrap(ErrInvalidWeights, "empty timeframe set")
	}

	durations := make(map[string]int64, len(timeframes))
	var total int64
	for _, tf := range timeframes {
		if _, dup := durations[tf]; dup {
			continue
		}
		minutes, err := domain.ParseTimeframe(tf)
		if err != nil {
			return nil, err
		}
		durations[tf] = minutes
		total += minutes
	}
	if total == 0 {
		return nil, errors.Wrap(ErrInvalidWeights, "total timeframe duration is zero")
	}

	totalDec := decimal.NewFromInt(total)
	w := make(Weights, len(durations))
	for tf, minutes := range durations {
		w[tf] = decimal.NewFromInt(minutes).Div(totalDec)
	}

	return w, w.Validate()
}

// NewWeights validates an explicitly configured weight set.
func NewWeights(raw map[string]decimal.Decimal) (Weights, error) {
	w := make(Weights, len(raw))
	for tf, weight := range raw {
		if _, err := domain.ParseTimeframe(tf); err != nil {
			return nil, err
		}
		w[tf] = weight
	}

	return w, w.Validate()
}

// Validate checks that weights are non-negative and sum to 1 within tolerance.
func (w Weights) Validate() error {
	if len(w) == 0 {
		return errors.Wrap(ErrInvalidWeights, "no weights")
	}
	for tf, weight := range w {
		if weight.IsNegative() {
			return errors.Wrapf(ErrInvalidWeights, "negative weight %s for %s", weight.String(), tf)
		}
	}

	sum := w.Sum()
	if sum.Sub(decimal.NewFromInt(1)).Abs().GreaterThan(weightTolerance) {
		return errors.Wrapf(ErrInvalidWeights, "weights sum to %s, expected 1", sum.String())
	}

	return nil
}

// Sum returns the total weight.
func (w Weights) Sum() decimal.Decimal {
	sum := decimal.Zero
	for _, tf := range w.Timeframes() {
		sum = sum.Add(w[tf])
	}
	return sum
}

// Timeframes returns the weighted labels in sorted order.
func (w Weights) Timeframes() []string {
	res := make([]string, 0, len(w))
	for tf := range w {
		res = append(res, tf)
	}
	sort.Strings(res)
	return res
}
