package domain

import (
	"regexp"
	"strconv"

	"github.com/pkg/errors"
)

// ErrInvalidTimeframe returned for labels outside the <n><unit> grammar.
var ErrInvalidTimeframe = errors.New("invalid timeframe")

var timeframePattern = regexp.MustCompile(`^(\d*)([mhDWM])$`)

var timeframeUnitMinutes = map[string]int64{
	"m": 1,
	"h": 60,
	"D": 1440,
	"W": 10080,
	"M": 43200, // 30 days
}

// Timeframe analysis interval label such as 15m, 4h, 1D or W.
type Timeframe string

// ParseTimeframe returns the duration of a timeframe label in minutes.
func ParseTimeframe(label string) (int64, error) {
	m := timeframePattern.FindStringSubmatch(label)
	if m == nil {
		return 0, errors.Wrapf(ErrInvalidTimeframe, "%q", label)
	}

	n := int64(1)
	if m[1] != "" {
		v, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return 0, errors.Wrapf(ErrInvalidTimeframe, "%q: %v", label, err)
		}
		n = v
	}

	return n * timeframeUnitMinutes[m[2]], nil
}

// Minutes returns the duration of the timeframe in minutes.
func (t Timeframe) Minutes() (int64, error) {
	return ParseTimeframe(string(t))
}
