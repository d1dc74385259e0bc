package internal

import (
	"context"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/signalbot/config"
	"github.com/vadiminshakov/signalbot/internal/domain"
	"github.com/vadiminshakov/signalbot/internal/services/allocation"
	"github.com/vadiminshakov/signalbot/internal/services/analysis"
	"github.com/vadiminshakov/signalbot/internal/services/decision"
	"github.com/vadiminshakov/signalbot/internal/services/position"
	"github.com/vadiminshakov/signalbot/internal/services/risk"
	"github.com/vadiminshakov/signalbot/internal/services/score"
	"github.com/vadiminshakov/signalbot/internal/storage/decisions"
	"github.com/vadiminshakov/signalbot/internal/storage/observations"
	"github.com/vadiminshakov/signalbot/internal/storage/positions"
)

// ErrNoFreshData is returned by a cycle that has neither a new nor a recent
// stored observation batch.
var ErrNoFreshData = errors.New("no fresh observations")

type observationSource interface {
	Collect(ctx context.Context) (domain.ObservationBatch, error)
}

type observationStore interface {
	Save(batch domain.ObservationBatch) error
	Fresh(pair string, now time.Time, maxAge time.Duration) (domain.ObservationBatch, bool)
}

type positionTracker interface {
	SyncWithExchange(ctx context.Context)
	MarkToMarket(price decimal.Decimal) error
}

type signalMaker interface {
	ProcessSignal(ctx context.Context, score decimal.Decimal, signal domain.Signal) bool
}

type pricer interface {
	GetPrice(ctx context.Context, pair domain.Pair) (decimal.Decimal, error)
}

type decisionJournal interface {
	Save(event decisions.Event) error
}

type closer interface {
	Close() error
}

// TradingBot runs the decision pipeline for a single pair.
type TradingBot struct {
	Config config.Config

	pricer       pricer
	source       observationSource
	observations observationStore
	positions    positionTracker
	maker        signalMaker
	journal      decisionJournal
	closers      []closer

	processor           *score.Processor
	processorTimeframes []string

	l   *zap.Logger
	now func() time.Time
}

// NewTradingBot wires platform services, stores and pipeline stages for conf.
func NewTradingBot(conf config.Config, client any, l *zap.Logger) (*TradingBot, error) {
	if l == nil {
		l = zap.NewNop()
	}
	l = l.With(zap.String("pair", conf.Pair.String()), zap.String("platform", conf.Platform))

	switch conf.Platform {
	case config.PlatformBinance, config.PlatformBybit, config.PlatformSimulate:
	default:
		return nil, errors.Errorf("unsupported platform: %s", conf.Platform)
	}

	provider, err := newServiceProvider(client, conf, l)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create service provider")
	}
	mkt, err := provider.Market()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create market service")
	}
	executor, err := provider.Executor()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create executor")
	}

	source, err := analysis.NewSource(conf.Pair, mkt, conf.Timeframes, l)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create observation source")
	}
	allocator, err := allocation.NewStrategy(conf.Params, l)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create allocation strategy")
	}

	positionStore, err := positions.NewWALStore(storeDir(conf.WALDir, "positions"), conf.Pair)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open position store")
	}
	obsStore, err := observations.NewWALStore(pairDir(conf, "observations", observations.DefaultDir))
	if err != nil {
		_ = positionStore.Close()
		return nil, errors.Wrap(err, "failed to open observation store")
	}
	journal, err := decisions.NewWALStore(pairDir(conf, "decisions", decisions.DefaultDir))
	if err != nil {
		_ = positionStore.Close()
		_ = obsStore.Close()
		return nil, errors.Wrap(err, "failed to open decision journal")
	}

	if last, ok := lastDecision(journal); ok {
		l.Info("resuming after journaled decision",
			zap.Time("time", last.Time),
			zap.String("score", last.Score),
			zap.String("signal", last.Signal),
			zap.String("outcome", string(last.Outcome)))
	}

	manager := position.NewManager(conf.Pair, positionStore, mkt, conf.ProfitTakeLevels, l)
	maker := decision.NewMaker(
		conf.Pair,
		mkt,
		executor,
		allocator,
		risk.NewEngine(conf.Pair, mkt, l),
		manager,
		conf.OrderTimeout,
		l,
	)

	bot := &TradingBot{
		Config:       conf,
		pricer:       mkt,
		source:       source,
		observations: obsStore,
		positions:    manager,
		maker:        maker,
		journal:      journal,
		closers:      []closer{positionStore, obsStore, journal},
		l:            l,
		now:          time.Now,
	}

	if conf.TimeframeWeights != nil {
		bot.processor, err = score.NewProcessor(conf.TimeframeWeights, conf.Params)
		if err != nil {
			_ = bot.Close()
			return nil, errors.Wrap(err, "invalid timeframe weights")
		}
	}

	return bot, nil
}

// Close releases the stores of the bot.
func (b *TradingBot) Close() error {
	var first error
	for _, c := range b.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Run reconciles positions and then runs one cycle per poll interval until
// ctx is done.
func (b *TradingBot) Run(ctx context.Context) error {
	b.positions.SyncWithExchange(ctx)

	ticker := time.NewTicker(b.Config.PollInterval)
	defer ticker.Stop()

	b.l.Info("starting trading loop", zap.Duration("poll_interval", b.Config.PollInterval))

	for {
		if err := b.cycle(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, ErrNoFreshData) {
				b.l.Warn("skipping cycle", zap.Error(err))
			} else {
				b.l.Error("trading cycle failed", zap.Error(err))
			}
		}

		select {
		case <-ctx.Done():
			b.l.Info("context done, stopping trading loop")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// cycle collects observations, scores them and hands actionable signals to
// the decision maker.
func (b *TradingBot) cycle(ctx context.Context) error {
	now := b.now()
	pair := b.Config.Pair.String()

	batch, err := b.source.Collect(ctx)
	switch {
	case err == nil:
		if err := b.observations.Save(batch); err != nil {
			b.l.Warn("failed to persist observations", zap.Error(err))
		}
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		stored, ok := b.observations.Fresh(pair, now, b.Config.DataStaleAfter)
		if !ok {
			return errors.Wrap(ErrNoFreshData, err.Error())
		}
		b.l.Warn("collection failed, using stored observations",
			zap.Time("collected_at", stored.CollectedAt), zap.Error(err))
		batch = stored
	}
	if batch.Stale(now, b.Config.DataStaleAfter) {
		return errors.Wrapf(ErrNoFreshData, "observations collected at %s", batch.CollectedAt.Format(time.RFC3339))
	}

	processor, err := b.processorFor(batch.Observations)
	if err != nil {
		return errors.Wrap(err, "build score processor")
	}
	result := processor.Process(batch.Observations)

	fields := []zap.Field{
		zap.String("score", result.Score.String()),
		zap.String("signal", result.Signal.String()),
	}
	for _, c := range result.Contributions {
		fields = append(fields, zap.String("tf_"+c.Timeframe, string(c.Recommendation)+"="+c.Value.String()))
	}
	b.l.Info("signal evaluated", fields...)

	b.markToMarket(ctx)
	defer b.positions.SyncWithExchange(ctx)

	outcome := decisions.OutcomeNeutral
	switch {
	case result.Signal == domain.SignalNeutral:
	case result.Score.Abs().LessThan(b.Config.MinScoreForExecution):
		outcome = decisions.OutcomeBelowMinimum
		b.l.Info("score below execution minimum",
			zap.String("score", result.Score.String()),
			zap.String("min", b.Config.MinScoreForExecution.String()))
	case b.maker.ProcessSignal(ctx, result.Score, result.Signal):
		outcome = decisions.OutcomeExecuted
		b.l.Info("order executed", zap.String("signal", result.Signal.String()))
	default:
		outcome = decisions.OutcomeNotExecuted
	}
	b.record(now, batch, result, outcome)

	return nil
}

func (b *TradingBot) record(now time.Time, batch domain.ObservationBatch, result score.Result, outcome decisions.Outcome) {
	if b.journal == nil {
		return
	}

	contributions := make(map[string]string, len(result.Contributions))
	for _, c := range result.Contributions {
		contributions[c.Timeframe] = c.Value.String()
	}
	err := b.journal.Save(decisions.Event{
		Pair:          b.Config.Pair.String(),
		Time:          now,
		ObservedAt:    batch.CollectedAt,
		Score:         result.Score.String(),
		Signal:        result.Signal.String(),
		Contributions: contributions,
		Outcome:       outcome,
	})
	if err != nil {
		b.l.Warn("failed to journal decision", zap.Error(err))
	}
}

// processorFor returns the configured processor, or one weighted over the
// timeframes actually observed.
func (b *TradingBot) processorFor(obs domain.Observations) (*score.Processor, error) {
	if b.Config.TimeframeWeights != nil && b.processor != nil {
		return b.processor, nil
	}

	timeframes := obs.Timeframes()
	slices.Sort(timeframes)
	if b.processor != nil && slices.Equal(timeframes, b.processorTimeframes) {
		return b.processor, nil
	}

	weights, err := score.CalculateWeights(timeframes)
	if err != nil {
		return nil, err
	}
	processor, err := score.NewProcessor(weights, b.Config.Params)
	if err != nil {
		return nil, err
	}
	b.processor, b.processorTimeframes = processor, timeframes

	return processor, nil
}

func (b *TradingBot) markToMarket(ctx context.Context) {
	price, err := b.pricer.GetPrice(ctx, b.Config.Pair)
	if err != nil {
		b.l.Warn("failed to get price for mark to market", zap.Error(err))
		return
	}
	if err := b.positions.MarkToMarket(price); err != nil {
		b.l.Warn("mark to market failed", zap.Error(err))
	}
}

// lastDecision reads the newest event of the journal, if any.
func lastDecision(journal *decisions.WALStore) (decisions.Event, bool) {
	idx := journal.CurrentIndex()
	if idx == 0 {
		return decisions.Event{}, false
	}
	records, err := journal.EventsAfter(idx - 1)
	if err != nil || len(records) == 0 {
		return decisions.Event{}, false
	}
	return records[len(records)-1].Event, true
}

// pairDir per-pair store directory under the configured WAL dir, or under def.
func pairDir(conf config.Config, name, def string) string {
	dir := storeDir(conf.WALDir, name)
	if dir == "" {
		dir = def
	}
	return filepath.Join(dir, strings.ToLower(conf.Pair.String()))
}

func storeDir(walDir, name string) string {
	if walDir == "" {
		return ""
	}
	return filepath.Join(walDir, name)
}
