// Package setup is the interactive configuration wizard.
package setup

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/vadiminshakov/signalbot/config"
	"github.com/vadiminshakov/signalbot/internal/domain"
)

// OutputFile written by RunTUI.
const OutputFile = "config.gen.yaml"

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Background(highlight).
			Padding(1, 2).
			Bold(true).
			MarginBottom(1)

	stepStyle = lipgloss.NewStyle().
			Foreground(special).
			Bold(true).
			MarginTop(1).
			MarginBottom(0)
)

// answers collected by the wizard, all as typed.
type answers struct {
	platform      string
	pair          string
	timeframes    string
	pollInterval  string
	buyThreshold  string
	sellThreshold string
	maxAllocation string
	minOrderSize  string
	paperBalance  string
}

func defaultAnswers() answers {
	return answers{
		platform:      config.PlatformSimulate,
		pair:          "BTC_USDT",
		timeframes:    strings.Join(config.DefaultTimeframes, ","),
		pollInterval:  config.DefaultPollInterval.String(),
		buyThreshold:  config.DefaultBuyThreshold,
		sellThreshold: config.DefaultSellThreshold,
		maxAllocation: config.DefaultMaxAllocationPercent,
		minOrderSize:  config.DefaultMinOrderSize,
		paperBalance:  "10000",
	}
}

func header(step string) {
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("SIGNALBOT CONFIG WIZARD"))
	fmt.Println(stepStyle.Render(step))
}

// RunTUI asks for one pair config and writes it to OutputFile.
// It returns the path written.
func RunTUI() (string, error) {
	a := defaultAnswers()
	var confirm bool

	header("STEP 1: PLATFORM")
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("Simulation trades a paper account on live Binance prices.\n"))
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Select Exchange Platform").
				Options(
					huh.NewOption("Simulation", config.PlatformSimulate),
					huh.NewOption("Binance", config.PlatformBinance),
					huh.NewOption("Bybit", config.PlatformBybit),
				).
				Value(&a.platform),
		),
	).Run()
	if err != nil {
		return "", err
	}

	header("STEP 2: ASSET")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Trading Pair").
				Description("BASE_QUOTE, e.g. BTC_USDT").
				Value(&a.pair).
				Validate(validatePair),
			huh.NewInput().
				Title("Timeframes").
				Description("Comma separated, e.g. 15m,1h,4h,1D").
				Value(&a.timeframes).
				Validate(validateTimeframes),
			huh.NewInput().
				Title("Poll Interval").
				Description("Duration string (e.g. 1m, 5m, 15m)").
				Value(&a.pollInterval).
				Validate(validateInterval),
		),
	).Run()
	if err != nil {
		return "", err
	}

	header("STEP 3: STRATEGY")
	fields := []huh.Field{
		huh.NewInput().
			Title("Buy Threshold").
			Description("Score at or above which the bot buys").
			Value(&a.buyThreshold).
			Validate(validateDecimal),
		huh.NewInput().
			Title("Sell Threshold").
			Description("Score at or below which the bot sells").
			Value(&a.sellThreshold).
			Validate(validateDecimal),
		huh.NewInput().
			Title("Max Allocation %").
			Description("Share of quote balance spent on the strongest buy (1-100)").
			Value(&a.maxAllocation).
			Validate(validateAllocation),
		huh.NewInput().
			Title("Min Order Size").
			Description("Smallest order value in quote currency").
			Value(&a.minOrderSize).
			Validate(validateDecimal),
	}
	if a.platform == config.PlatformSimulate {
		fields = append(fields, huh.NewInput().
			Title("Paper Balance").
			Description("Starting quote balance of the paper account").
			Value(&a.paperBalance).
			Validate(validateDecimal))
	}
	if err = huh.NewForm(huh.NewGroup(fields...)).Run(); err != nil {
		return "", err
	}

	header("FINAL CONFIRMATION")
	summary := fmt.Sprintf(
		"Platform: %s\nPair: %s\nTimeframes: %s\nInterval: %s\nThresholds: buy %s / sell %s\nMax allocation: %s%%\n",
		a.platform, a.pair, a.timeframes, a.pollInterval, a.buyThreshold, a.sellThreshold, a.maxAllocation,
	)
	fmt.Println(lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(1).Render(summary))

	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save Configuration?").
				Affirmative("Yes, save and start").
				Negative("No, exit").
				Value(&confirm),
		),
	).Run()
	if err != nil {
		return "", err
	}
	if !confirm {
		return "", errors.New("setup cancelled by user")
	}

	data, err := render(a)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(OutputFile, data, 0o644); err != nil {
		return "", errors.Wrap(err, "failed to save config file")
	}

	fmt.Println(lipgloss.NewStyle().Foreground(special).Render(fmt.Sprintf("\n✓ Configuration saved to %s\nStarting bot...", OutputFile)))
	time.Sleep(1500 * time.Millisecond)

	return OutputFile, nil
}

// render builds and validates the YAML document for a.
func render(a answers) ([]byte, error) {
	poll, err := time.ParseDuration(a.pollInterval)
	if err != nil {
		return nil, errors.Wrap(err, "poll interval")
	}

	tmp := config.ConfigTmp{
		Platform:             a.platform,
		Pair:                 strings.ToUpper(strings.TrimSpace(a.pair)),
		BuyThreshold:         a.buyThreshold,
		SellThreshold:        a.sellThreshold,
		MaxAllocationPercent: a.maxAllocation,
		MinOrderSize:         a.minOrderSize,
		Timeframes:           splitTimeframes(a.timeframes),
		PollInterval:         poll,
	}
	if a.platform == config.PlatformSimulate {
		tmp.PaperBalance = a.paperBalance
	}
	if _, err := tmp.ToConfig(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	data, err := yaml.Marshal([]config.ConfigTmp{tmp})
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate yaml")
	}
	return data, nil
}

func splitTimeframes(s string) []string {
	var out []string
	for _, tf := range strings.Split(s, ",") {
		if tf = strings.TrimSpace(tf); tf != "" {
			out = append(out, tf)
		}
	}
	return out
}

func validatePair(s string) error {
	if s == "" {
		return errors.New("pair cannot be empty")
	}
	if _, err := domain.ParsePair(strings.ToUpper(strings.TrimSpace(s))); err != nil {
		return errors.New("invalid format: must be BASE_QUOTE (e.g. BTC_USDT)")
	}
	return nil
}

func validateTimeframes(s string) error {
	tfs := splitTimeframes(s)
	if len(tfs) == 0 {
		return errors.New("at least one timeframe is required")
	}
	for _, tf := range tfs {
		if _, err := domain.ParseTimeframe(tf); err != nil {
			return err
		}
	}
	return nil
}

func validateInterval(s string) error {
	d, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	if d <= 0 {
		return errors.New("must be positive")
	}
	return nil
}

func validateDecimal(s string) error {
	if _, err := decimal.NewFromString(s); err != nil {
		return errors.New("must be a valid number")
	}
	return nil
}

func validateAllocation(s string) error {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return errors.New("must be a valid number")
	}
	if d.LessThan(decimal.NewFromInt(1)) || d.GreaterThan(decimal.NewFromInt(100)) {
		return errors.New("must be between 1 and 100")
	}
	return nil
}
