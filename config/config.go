// Package config loads per-pair bot settings from YAML or flags.
package config

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/signalbot/internal/domain"
	"github.com/vadiminshakov/signalbot/internal/services/score"
	"gopkg.in/yaml.v3"
)

const (
	PlatformBinance  = "binance"
	PlatformBybit    = "bybit"
	PlatformSimulate = "simulate"
)

// defaults
const (
	DefaultBuyThreshold         = "1"
	DefaultSellThreshold        = "-0.45"
	DefaultMaxAllocationPercent = "5"
	DefaultMinOrderSize         = "5"
	DefaultMinScore             = "0"
	DefaultPollInterval         = 5 * time.Minute
	DefaultDataStaleAfter       = 30 * time.Minute
	DefaultOrderTimeout         = 30 * time.Second
)

var (
	DefaultTimeframes   = []string{"15m", "1h", "4h", "1D"}
	DefaultProfitLevels = []string{"2", "5", "10"}
)

// Config settings of one traded pair.
type Config struct {
	Platform             string
	Pair                 domain.Pair
	Params               domain.StrategyParams
	ProfitTakeLevels     []decimal.Decimal
	Timeframes           []string
	TimeframeWeights     score.Weights // nil means duration-derived weights
	PollInterval         time.Duration
	MinScoreForExecution decimal.Decimal
	DataStaleAfter       time.Duration
	OrderTimeout         time.Duration
	PaperBalance         decimal.Decimal
	WALDir               string
}

// ConfigTmp raw YAML form of Config. Decimals are strings to keep them exact.
type ConfigTmp struct {
	Platform             string            `yaml:"platform"`
	Pair                 string            `yaml:"pair"`
	BuyThreshold         string            `yaml:"buy_threshold,omitempty"`
	SellThreshold        string            `yaml:"sell_threshold,omitempty"`
	MaxAllocationPercent string            `yaml:"max_allocation_percent,omitempty"`
	MinOrderSize         string            `yaml:"min_order_size,omitempty"`
	ProfitTakeLevels     []string          `yaml:"profit_take_levels,omitempty"`
	Timeframes           []string          `yaml:"timeframes,omitempty"`
	TimeframeWeights     map[string]string `yaml:"timeframe_weights,omitempty"`
	PollInterval         time.Duration     `yaml:"poll_interval,omitempty"`
	MinScoreForExecution string            `yaml:"min_score_for_execution,omitempty"`
	DataStaleAfter       time.Duration     `yaml:"data_stale_after,omitempty"`
	OrderTimeout         time.Duration     `yaml:"order_timeout,omitempty"`
	PaperBalance         string            `yaml:"paper_balance,omitempty"`
	WALDir               string            `yaml:"wal_dir,omitempty"`
}

// Flags command line options.
type Flags struct {
	ConfigPath string
	Setup      bool
	Platform   string
	Pair       string
	Timeframes string
}

// ParseFlags parses os.Args.
func ParseFlags() Flags {
	return parseFlags(flag.CommandLine, os.Args[1:])
}

func parseFlags(fs *flag.FlagSet, args []string) Flags {
	var f Flags
	fs.StringVar(&f.ConfigPath, "config", "", "path to yaml config")
	fs.BoolVar(&f.Setup, "setup", false, "run the interactive configuration wizard")
	fs.StringVar(&f.Platform, "platform", PlatformSimulate, "binance, bybit or simulate")
	fs.StringVar(&f.Pair, "pair", "BTC_USDT", "trade pair, example: BTC_USDT")
	fs.StringVar(&f.Timeframes, "timeframes", "", "comma separated timeframes, example: 15m,1h,4h,1D")
	_ = fs.Parse(args)
	return f
}

// Load builds configs from the YAML file in f, or a single pair from flags.
func Load(f Flags) ([]Config, error) {
	if f.ConfigPath != "" {
		return getYaml(f.ConfigPath)
	}

	tmp := ConfigTmp{Platform: f.Platform, Pair: f.Pair}
	if f.Timeframes != "" {
		tmp.Timeframes = splitList(f.Timeframes)
	}
	c, err := tmp.ToConfig()
	if err != nil {
		return nil, err
	}

	return []Config{c}, nil
}

func getYaml(path string) ([]Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}

	return Parse(data)
}

// Parse decodes a YAML list of pair configs.
func Parse(data []byte) ([]Config, error) {
	var configsTmp []ConfigTmp
	if err := yaml.Unmarshal(data, &configsTmp); err != nil {
		return nil, errors.Wrap(err, "decode yaml config")
	}
	if len(configsTmp) == 0 {
		return nil, errors.New("config contains no pairs")
	}

	configs := make([]Config, 0, len(configsTmp))
	seen := make(map[string]struct{}, len(configsTmp))
	for i, c := range configsTmp {
		cfg, err := c.ToConfig()
		if err != nil {
			return nil, errors.Wrapf(err, "config entry %d", i)
		}
		// stores are keyed by pair, one bot per pair across all platforms
		key := cfg.Pair.String()
		if _, dup := seen[key]; dup {
			return nil, errors.Errorf("duplicate pair %s: a pair can be traded by one platform only", key)
		}
		seen[key] = struct{}{}
		configs = append(configs, cfg)
	}

	return configs, nil
}

// ToConfig applies defaults and validates.
func (c ConfigTmp) ToConfig() (Config, error) {
	platform := c.Platform
	if platform == "" {
		platform = PlatformSimulate
	}
	switch platform {
	case PlatformBinance, PlatformBybit, PlatformSimulate:
	default:
		return Config{}, errors.Errorf("unsupported platform %q", platform)
	}

	pair, err := domain.ParsePair(c.Pair)
	if err != nil {
		return Config{}, errors.Wrapf(err, "incorrect 'pair' param %q", c.Pair)
	}

	buy, err := decimalOr("buy_threshold", c.BuyThreshold, DefaultBuyThreshold)
	if err != nil {
		return Config{}, err
	}
	sell, err := decimalOr("sell_threshold", c.SellThreshold, DefaultSellThreshold)
	if err != nil {
		return Config{}, err
	}
	maxAlloc, err := decimalOr("max_allocation_percent", c.MaxAllocationPercent, DefaultMaxAllocationPercent)
	if err != nil {
		return Config{}, err
	}
	minOrder, err := decimalOr("min_order_size", c.MinOrderSize, DefaultMinOrderSize)
	if err != nil {
		return Config{}, err
	}
	minScore, err := decimalOr("min_score_for_execution", c.MinScoreForExecution, DefaultMinScore)
	if err != nil {
		return Config{}, err
	}
	if minScore.IsNegative() {
		return Config{}, errors.Errorf("min_score_for_execution must be >= 0, got %s", minScore)
	}
	paperBalance, err := decimalOr("paper_balance", c.PaperBalance, "0")
	if err != nil {
		return Config{}, err
	}

	params := domain.StrategyParams{
		BuyThreshold:         buy,
		SellThreshold:        sell,
		MaxAllocationPercent: maxAlloc,
		MinOrderSize:         minOrder,
	}
	if err := params.Validate(); err != nil {
		return Config{}, err
	}

	levels, err := profitLevels(c.ProfitTakeLevels)
	if err != nil {
		return Config{}, err
	}

	var weights score.Weights
	if len(c.TimeframeWeights) > 0 {
		raw := make(map[string]decimal.Decimal, len(c.TimeframeWeights))
		for tf, w := range c.TimeframeWeights {
			d, err := decimal.NewFromString(w)
			if err != nil {
				return Config{}, errors.Wrapf(err, "incorrect weight %q for %s", w, tf)
			}
			raw[tf] = d
		}
		if weights, err = score.NewWeights(raw); err != nil {
			return Config{}, err
		}
	}

	timeframes := c.Timeframes
	switch {
	case len(timeframes) == 0 && weights != nil:
		timeframes = weights.Timeframes()
	case len(timeframes) == 0:
		timeframes = DefaultTimeframes
	}
	for _, tf := range timeframes {
		if _, err := domain.ParseTimeframe(tf); err != nil {
			return Config{}, err
		}
	}

	return Config{
		Platform:             platform,
		Pair:                 pair,
		Params:               params,
		ProfitTakeLevels:     levels,
		Timeframes:           append([]string(nil), timeframes...),
		TimeframeWeights:     weights,
		PollInterval:         durationOr(c.PollInterval, DefaultPollInterval),
		MinScoreForExecution: minScore,
		DataStaleAfter:       durationOr(c.DataStaleAfter, DefaultDataStaleAfter),
		OrderTimeout:         durationOr(c.OrderTimeout, DefaultOrderTimeout),
		PaperBalance:         paperBalance,
		WALDir:               c.WALDir,
	}, nil
}

func profitLevels(raw []string) ([]decimal.Decimal, error) {
	if len(raw) == 0 {
		raw = DefaultProfitLevels
	}

	levels := make([]decimal.Decimal, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, r := range raw {
		l, err := decimal.NewFromString(r)
		if err != nil {
			return nil, errors.Wrapf(err, "incorrect profit take level %q", r)
		}
		if !l.IsPositive() {
			return nil, errors.Errorf("profit take level must be positive, got %s", r)
		}
		if _, dup := seen[l.String()]; dup {
			return nil, errors.Errorf("duplicate profit take level %s", r)
		}
		seen[l.String()] = struct{}{}
		levels = append(levels, l)
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i].LessThan(levels[j]) })

	return levels, nil
}

func decimalOr(name, raw, def string) (decimal.Decimal, error) {
	if raw == "" {
		raw = def
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("incorrect '%s' param in yaml config (must be a decimal), error: %w", name, err)
	}
	return d, nil
}

func durationOr(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
