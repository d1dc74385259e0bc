// Package score aggregates per-timeframe recommendations into a single score.
package score

import (
	"sort"

	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/signalbot/internal/domain"
)

const reportPrecision = 4

// Contribution diagnostic breakdown for one timeframe.
type Contribution struct {
	Timeframe      string
	Recommendation domain.Recommendation
	Weight         decimal.Decimal
	// Value weighted contribution, rounded to 4 places.
	Value decimal.Decimal
}

// Result of processing one observation batch.
type Result struct {
	// Score total, rounded to 4 places.
	Score         decimal.Decimal
	Signal        domain.Signal
	Contributions []Contribution
}

// Processor turns observations into a score and a signal.
type Processor struct {
	weights Weights
	params  domain.StrategyParams
}

// NewProcessor validates weights and creates a processor.
func NewProcessor(weights Weights, params domain.StrategyParams) (*Processor, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}

	w := make(Weights, len(weights))
	for tf, v := range weights {
		w[tf] = v
	}

	return &Processor{weights: w, params: params}, nil
}

// Weights returns a copy of the weight set.
func (p *Processor) Weights() Weights {
	w := make(Weights, len(p.weights))
	for tf, v := range p.weights {
		w[tf] = v
	}
	return w
}

// CalculateScore sums recommendation values weighted by timeframe.
// Timeframes without a weight contribute nothing.
func (p *Processor) CalculateScore(observations domain.Observations) decimal.Decimal {
	score := decimal.Zero
	for _, tf := range sortedKeys(observations) {
		score = score.Add(p.contribution(tf, observations[tf]))
	}
	return score
}

// Classify maps a score to a signal using the configured thresholds.
func (p *Processor) Classify(score decimal.Decimal) domain.Signal {
	return p.params.Classify(score)
}

// Process scores and classifies observations and reports each timeframe's share.
func (p *Processor) Process(observations domain.Observations) Result {
	keys := sortedKeys(observations)
	contributions := make([]Contribution, 0, len(keys))
	score := decimal.Zero
	for _, tf := range keys {
		c := p.contribution(tf, observations[tf])
		score = score.Add(c)
		contributions = append(contributions, Contribution{
			Timeframe:      tf,
			Recommendation: domain.NormalizeRecommendation(observations[tf]),
			Weight:         p.weights[tf],
			Value:          c.Round(reportPrecision),
		})
	}

	// classify what is reported: derived weights are rounded repeating
	// decimals, so a unanimous set can sum to just under 1
	rounded := score.Round(reportPrecision)
	return Result{
		Score:         rounded,
		Signal:        p.Classify(rounded),
		Contributions: contributions,
	}
}

func (p *Processor) contribution(timeframe, recommendation string) decimal.Decimal {
	weight, ok := p.weights[timeframe]
	if !ok {
		return decimal.Zero
	}
	value := domain.NormalizeRecommendation(recommendation).Value()
	return decimal.NewFromInt(value).Mul(weight)
}

func sortedKeys(o domain.Observations) []string {
	keys := o.Timeframes()
	sort.Strings(keys)
	return keys
}
