package domain

import "strings"

// Recommendation per-timeframe technical analysis verdict.
type Recommendation string

const (
	RecommendationStrongSell Recommendation = "STRONG_SELL"
	RecommendationSell       Recommendation = "SELL"
	RecommendationNeutral    Recommendation = "NEUTRAL"
	RecommendationBuy        Recommendation = "BUY"
	RecommendationStrongBuy  Recommendation = "STRONG_BUY"
)

// NormalizeRecommendation maps an arbitrary string to a known recommendation.
// Matching is case-insensitive, anything unrecognised is NEUTRAL.
func NormalizeRecommendation(s string) Recommendation {
	switch r := Recommendation(strings.ToUpper(strings.TrimSpace(s))); r {
	case RecommendationStrongSell, RecommendationSell, RecommendationBuy, RecommendationStrongBuy:
		return r
	default:
		return RecommendationNeutral
	}
}

// Value numeric value of the recommendation in [-2, 2].
func (r Recommendation) Value() int64 {
	switch NormalizeRecommendation(string(r)) {
	case RecommendationStrongSell:
		return -2
	case RecommendationSell:
		return -1
	case RecommendationBuy:
		return 1
	case RecommendationStrongBuy:
		return 2
	default:
		return 0
	}
}

// Signal discrete trading signal derived from a score.
type Signal int

const (
	SignalNeutral Signal = iota
	SignalBuy
	SignalSell
)

// String returns the string representation of the signal.
func (s Signal) String() string {
	switch s {
	case SignalBuy:
		return "BUY"
	case SignalSell:
		return "SELL"
	case SignalNeutral:
		return "NEUTRAL"
	default:
		return "unknown"
	}
}

// Side returns the order side for actionable signals.
func (s Signal) Side() (Side, bool) {
	switch s {
	case SignalBuy:
		return SideBuy, true
	case SignalSell:
		return SideSell, true
	default:
		return "", false
	}
}
