package score

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/signalbot/internal/domain"
)

func TestCalculateWeights(t *testing.T) {
	w, err := CalculateWeights([]string{"5m", "1h"})
	require.NoError(t, err)

	assert.True(t, w["5m"].Round(4).Equal(dec("0.0769")))
	assert.True(t, w["1h"].Round(4).Equal(dec("0.9231")))
	assert.True(t, w.Sum().Sub(decimal.NewFromInt(1)).Abs().LessThanOrEqual(dec("0.01")))
}

func TestCalculateWeights_SumsToOne(t *testing.T) {
	sets := [][]string{
		{"1m"},
		{"1m", "3m", "7m"},
		{"15m", "1h", "4h", "1D", "W", "M"},
		{"2h", "2h", "1D"},
	}
	for _, set := range sets {
		w, err := CalculateWeights(set)
		require.NoError(t, err)
		assert.True(t, w.Sum().Sub(decimal.NewFromInt(1)).Abs().LessThanOrEqual(dec("0.01")), "set %v sum %s", set, w.Sum())
	}
}

func TestCalculateWeights_Errors(t *testing.T) {
	_, err := CalculateWeights(nil)
	assert.True(t, errors.Is(err, ErrInvalidWeights))

	_, err = CalculateWeights([]string{"0m"})
	assert.True(t, errors.Is(err, ErrInvalidWeights))

	_, err = CalculateWeights([]string{"1h", "1d"})
	assert.True(t, errors.Is(err, domain.ErrInvalidTimeframe))
}

func TestNewWeights(t *testing.T) {
	tests := []struct {
		name    string
		raw     map[string]decimal.Decimal
		wantErr error
	}{
		{"exact", map[string]decimal.Decimal{"1h": dec("0.3"), "4h": dec("0.7")}, nil},
		{"within tolerance", map[string]decimal.Decimal{"1h": dec("0.3"), "4h": dec("0.705")}, nil},
		{"too low", map[string]decimal.Decimal{"1h": dec("0.3"), "4h": dec("0.68")}, ErrInvalidWeights},
		{"too high", map[string]decimal.Decimal{"1h": dec("0.5"), "4h": dec("0.52")}, ErrInvalidWeights},
		{"negative", map[string]decimal.Decimal{"1h": dec("-0.5"), "4h": dec("1.5")}, ErrInvalidWeights},
		{"bad label", map[string]decimal.Decimal{"1x": dec("1")}, domain.ErrInvalidTimeframe},
		{"empty", map[string]decimal.Decimal{}, ErrInvalidWeights},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewWeights(tt.raw)
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}
