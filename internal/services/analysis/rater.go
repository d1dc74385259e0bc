// Package analysis turns exchange candles into per-timeframe recommendations.
package analysis

import (
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/signalbot/internal/domain"
	"github.com/vadiminshakov/signalbot/pkg/indicators"
)

// MinCandles is the shortest history the rater accepts.
const MinCandles = 50

var (
	// ErrNotEnoughCandles is returned when the history is too short to rate.
	ErrNotEnoughCandles = errors.New("not enough candles")

	rsiOversold   = decimal.NewFromInt(30)
	rsiOverbought = decimal.NewFromInt(70)
	volumeSpike   = decimal.NewFromFloat(1.5)
)

const volumePeriod = 20

// Rating is the recommendation with the votes behind it.
type Rating struct {
	Recommendation domain.Recommendation
	Votes          int
	Trend          int
	Momentum       int
	Oscillator     int
	VolumeSpike    bool
}

// IndicatorRater votes with EMA trend, MACD momentum and RSI extremes.
// A volume spike on the latest candle doubles the trend vote.
type IndicatorRater struct{}

// NewIndicatorRater creates a rater.
func NewIndicatorRater() *IndicatorRater {
	return &IndicatorRater{}
}

// Rate rates candles ordered oldest first.
func (r *IndicatorRater) Rate(candles []domain.MarketCandle) (Rating, error) {
	if len(candles) < MinCandles {
		return Rating{}, errors.Wrapf(ErrNotEnoughCandles, "need %d, got %d", MinCandles, len(candles))
	}

	closes := make([]decimal.Decimal, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	price := closes[len(closes)-1]

	ema20, err := indicators.EMA(closes, 20)
	if err != nil {
		return Rating{}, errors.Wrap(err, "EMA20")
	}
	ema50, err := indicators.EMA(closes, 50)
	if err != nil {
		return Rating{}, errors.Wrap(err, "EMA50")
	}
	line, signal, err := indicators.MACD(closes)
	if err != nil {
		return Rating{}, errors.Wrap(err, "MACD")
	}
	rsi, err := indicators.RSI(closes, 14)
	if err != nil {
		return Rating{}, errors.Wrap(err, "RSI14")
	}

	fast, _ := indicators.Last(ema20)
	slow, _ := indicators.Last(ema50)
	macd, _ := indicators.Last(line)
	macdSignal, _ := indicators.Last(signal)
	strength, _ := indicators.Last(rsi)

	rating := Rating{VolumeSpike: relativeVolume(candles).GreaterThanOrEqual(volumeSpike)}

	switch {
	case price.GreaterThan(fast) && fast.GreaterThan(slow):
		rating.Trend = 1
	case price.LessThan(fast) && fast.LessThan(slow):
		rating.Trend = -1
	}
	if rating.VolumeSpike {
		rating.Trend *= 2
	}

	switch {
	case macd.GreaterThan(macdSignal):
		rating.Momentum = 1
	case macd.LessThan(macdSignal):
		rating.Momentum = -1
	}

	switch {
	case strength.LessThan(rsiOversold):
		rating.Oscillator = 1
	case strength.GreaterThan(rsiOverbought):
		rating.Oscillator = -1
	}

	rating.Votes = rating.Trend + rating.Momentum + rating.Oscillator
	rating.Recommendation = recommendationFor(rating.Votes)

	return rating, nil
}

func recommendationFor(votes int) domain.Recommendation {
	switch {
	case votes >= 3:
		return domain.RecommendationStrongBuy
	case votes >= 1:
		return domain.RecommendationBuy
	case votes <= -3:
		return domain.RecommendationStrongSell
	case votes <= -1:
		return domain.RecommendationSell
	default:
		return domain.RecommendationNeutral
	}
}

// relativeVolume is the latest volume over the average of the last volumePeriod candles.
func relativeVolume(candles []domain.MarketCandle) decimal.Decimal {
	period := volumePeriod
	if len(candles) < period {
		period = len(candles)
	}
	if period == 0 {
		return decimal.Zero
	}

	sum := decimal.Zero
	for i := len(candles) - period; i < len(candles); i++ {
		sum = sum.Add(candles[i].Volume)
	}
	avg := sum.Div(decimal.NewFromInt(int64(period)))
	if !avg.IsPositive() {
		return decimal.Zero
	}

	return candles[len(candles)-1].Volume.Div(avg)
}
