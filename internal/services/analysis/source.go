package analysis

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/signalbot/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultCandleLimit candles fetched per timeframe.
	DefaultCandleLimit = 100
	maxParallelFetches = 4
)

// ErrNoObservations is returned when no timeframe could be rated.
var ErrNoObservations = errors.New("no observations collected")

type klineProvider interface {
	GetKlines(ctx context.Context, pair domain.Pair, timeframe string, limit int) ([]domain.MarketCandle, error)
}

type rater interface {
	Rate(candles []domain.MarketCandle) (Rating, error)
}

// Source collects one recommendation per configured timeframe.
type Source struct {
	pair       domain.Pair
	provider   klineProvider
	rater      rater
	timeframes []string
	limit      int
	l          *zap.Logger
	now        func() time.Time
}

// NewSource creates an observation source for pair.
func NewSource(pair domain.Pair, provider klineProvider, timeframes []string, l *zap.Logger) (*Source, error) {
	if l == nil {
		l = zap.NewNop()
	}
	if len(timeframes) == 0 {
		return nil, errors.New("at least one timeframe is required")
	}
	for _, tf := range timeframes {
		if _, err := domain.ParseTimeframe(tf); err != nil {
			return nil, err
		}
	}

	return &Source{
		pair:       pair,
		provider:   provider,
		rater:      NewIndicatorRater(),
		timeframes: append([]string(nil), timeframes...),
		limit:      DefaultCandleLimit,
		l:          l,
		now:        time.Now,
	}, nil
}

// Collect fetches candles for every timeframe and rates them. Timeframes that
// fail are logged and left out of the batch.
func (s *Source) Collect(ctx context.Context) (domain.ObservationBatch, error) {
	var (
		mu           sync.Mutex
		observations = make(domain.Observations, len(s.timeframes))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelFetches)

	for _, tf := range s.timeframes {
		g.Go(func() error {
			candles, err := s.provider.GetKlines(gctx, s.pair, tf, s.limit)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				s.l.Warn("failed to fetch candles",
					zap.String("pair", s.pair.String()),
					zap.String("timeframe", tf),
					zap.Error(err))
				return nil
			}

			rating, err := s.rater.Rate(candles)
			if err != nil {
				s.l.Warn("failed to rate candles",
					zap.String("pair", s.pair.String()),
					zap.String("timeframe", tf),
					zap.Int("candles", len(candles)),
					zap.Error(err))
				return nil
			}

			s.l.Debug("timeframe rated",
				zap.String("pair", s.pair.String()),
				zap.String("timeframe", tf),
				zap.String("recommendation", string(rating.Recommendation)),
				zap.Int("votes", rating.Votes))

			mu.Lock()
			observations[tf] = string(rating.Recommendation)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return domain.ObservationBatch{}, errors.Wrap(err, "collect observations")
	}
	if len(observations) == 0 {
		return domain.ObservationBatch{}, errors.Wrapf(ErrNoObservations, "pair %s", s.pair.String())
	}

	return domain.ObservationBatch{
		Pair:         s.pair.String(),
		CollectedAt:  s.now(),
		Observations: observations,
	}, nil
}
