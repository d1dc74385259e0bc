// Command signalbot trades spot pairs on aggregated multi-timeframe
// technical signals. It supports Binance, Bybit and a paper account fed by
// Binance public prices.
//
// Usage:
//
//	signalbot --config config.yaml
//	signalbot --setup
//	signalbot --platform simulate --pair BTC_USDT --timeframes 15m,1h,4h,1D
//
// Required environment variables (a .env file is read when present):
//
//	For Binance: BINANCE_API_KEY, BINANCE_API_SECRET
//	For Bybit: BYBIT_API_KEY, BYBIT_API_SECRET
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vadiminshakov/signalbot/config"
	"github.com/vadiminshakov/signalbot/internal"
	"github.com/vadiminshakov/signalbot/internal/clients"
	"github.com/vadiminshakov/signalbot/internal/setup"
)

const restartWait = 30 * time.Second

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Warn("failed to read .env", zap.Error(err))
	}

	flags := config.ParseFlags()
	if flags.Setup {
		path, err := setup.RunTUI()
		if err != nil {
			logger.Fatal("setup failed", zap.Error(err))
		}
		flags.ConfigPath = path
	}

	configs, err := config.Load(flags)
	if err != nil {
		logger.Fatal("failed to get configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	for _, conf := range configs {
		client, err := clients.FromEnv(conf.Platform, nil)
		if err != nil {
			logger.Fatal("failed to create exchange client", zap.String("pair", conf.Pair.String()), zap.Error(err))
		}

		g.Go(func() error {
			return runPair(ctx, conf, client, logger)
		})
		logger.Info("started", zap.String("pair", conf.Pair.String()), zap.String("platform", conf.Platform))
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("stopped with error", zap.Error(err))
	}
}

// runPair keeps one bot alive, recreating it after failures until ctx is done.
func runPair(ctx context.Context, conf config.Config, client any, logger *zap.Logger) error {
	for {
		bot, err := internal.NewTradingBot(conf, client, logger)
		if err != nil {
			logger.Error("failed to create trading bot, retrying",
				zap.String("pair", conf.Pair.String()),
				zap.Duration("after", 2*restartWait),
				zap.Error(err))
			if !sleep(ctx, 2*restartWait) {
				return ctx.Err()
			}
			continue
		}

		err = bot.Run(ctx)
		if cerr := bot.Close(); cerr != nil {
			logger.Warn("failed to close trading bot", zap.String("pair", conf.Pair.String()), zap.Error(cerr))
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		logger.Error("trading bot stopped, recreating",
			zap.String("pair", conf.Pair.String()),
			zap.Duration("after", restartWait),
			zap.Error(err))
		if !sleep(ctx, restartWait) {
			return ctx.Err()
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
