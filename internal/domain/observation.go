package domain

import "time"

// Observations raw recommendation per timeframe label.
type Observations map[string]string

// ObservationBatch observations collected for a pair at one point in time.
type ObservationBatch struct {
	Pair         string
	CollectedAt  time.Time
	Observations Observations
}

// Stale reports whether the batch is older than maxAge at now.
func (b ObservationBatch) Stale(now time.Time, maxAge time.Duration) bool {
	if maxAge <= 0 {
		return false
	}
	return now.Sub(b.CollectedAt) > maxAge
}

// Timeframes returns the observed timeframe labels.
func (o Observations) Timeframes() []string {
	res := make([]string, 0, len(o))
	for tf := range o {
		res = append(res, tf)
	}
	return res
}
