// fairvalue estimates the intrinsic value per share of public companies
// with a discounted free-cash-flow-to-firm model.
//
// Main CLI entrypoint using cobra command framework.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/seenimoa/fairvalue/internal/analysis/valuation"
	"github.com/seenimoa/fairvalue/internal/config"
	"github.com/seenimoa/fairvalue/internal/fairvalue"
	"github.com/seenimoa/fairvalue/internal/logging"
	"github.com/seenimoa/fairvalue/internal/provider"
	"github.com/seenimoa/fairvalue/internal/providers"
	"github.com/seenimoa/fairvalue/internal/providers/file"
	"github.com/seenimoa/fairvalue/internal/report"
	"github.com/seenimoa/fairvalue/pkg/models"
	"github.com/seenimoa/fairvalue/pkg/utils"
)

// Build-time variables (set via -ldflags).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Global config
var cfg *config.Config

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "fairvalue",
	Short: "DCF fair value estimates from annual statements",
	Long: `fairvalue derives trailing growth, margin, tax and capital-intensity
rates from the last four annual statements of a company, projects free cash
flow to the firm over a finite horizon and discounts it back at the CAPM cost
of equity to estimate equity value per share.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		configFile, _ := cmd.Flags().GetString("config")
		if configFile != "" {
			cfg, err = config.LoadFromFile(configFile)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
			cfg.Logging.Level = lvl
		}
		if name, _ := cmd.Flags().GetString("provider"); name != "" {
			cfg.Provider.Name = name
		}
		if dir, _ := cmd.Flags().GetString("data-dir"); dir != "" {
			cfg.Provider.DataDir = dir
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		return logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file path (default: ./config/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("provider", "", "statement provider override (yfinance, file, fmp)")
	rootCmd.PersistentFlags().String("data-dir", "", "directory of ticker documents for the file provider")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(valueCmd)
	rootCmd.AddCommand(metricsCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(providersCmd)
	rootCmd.AddCommand(statusCmd)
}

// newValuer builds the configured provider chain and a valuer over it.
func newValuer() (*fairvalue.Valuer, *provider.Registry, error) {
	p, reg, err := providers.Build(cfg)
	if err != nil {
		return nil, nil, err
	}
	log.Debug().Str("provider", p.Info().Name).Msg("provider chain ready")
	return fairvalue.New(p, fairvalue.Options{
		Timeout:     cfg.Provider.Timeout,
		Retry:       cfg.RetryPolicy(),
		Concurrency: cfg.Batch.Concurrency,
	}), reg, nil
}

// paramsFor returns the parameters for ticker: the watchlist entry when
// there is one, the configured defaults otherwise.
func paramsFor(ticker string) valuation.Params {
	if t, ok := cfg.Ticker(ticker); ok {
		return cfg.Params(t)
	}
	return cfg.BaseParams()
}

func addFormatFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("format", "o", string(report.FormatText), "output format (text, json)")
}

// reportFormat parses the --format flag of cmd.
func reportFormat(cmd *cobra.Command) (report.Format, error) {
	s, _ := cmd.Flags().GetString("format")
	return report.ParseFormat(s)
}

// applyParamFlags overrides p with every model flag the user passed.
func applyParamFlags(flags *pflag.FlagSet, p valuation.Params) (valuation.Params, error) {
	if flags.Changed("period") {
		v, err := flags.GetInt("period")
		if err != nil {
			return p, err
		}
		p.Period = v
	}
	floats := []struct {
		name string
		set  func(float64)
	}{
		{"risk-free", func(v float64) { p.RiskFree = v }},
		{"erp", func(v float64) { p.ERP = v }},
		{"growth-decay", func(v float64) { p.GrowthDecay = v }},
		{"terminal", func(v float64) { p.Terminal = v }},
		{"growth", func(v float64) { p.RevGrowthOverride = models.NewOverride(v) }},
		{"capex", func(v float64) { p.CapexRateOverride = models.NewOverride(v) }},
	}
	for _, f := range floats {
		if !flags.Changed(f.name) {
			continue
		}
		v, err := flags.GetFloat64(f.name)
		if err != nil {
			return p, err
		}
		f.set(v)
	}
	return p, p.Validate()
}

func addParamFlags(cmd *cobra.Command) {
	d := valuation.DefaultParams()
	cmd.Flags().Int("period", d.Period, "projection horizon in years")
	cmd.Flags().Float64("risk-free", d.RiskFree, "risk-free rate")
	cmd.Flags().Float64("erp", d.ERP, "equity risk premium")
	cmd.Flags().Float64("growth-decay", d.GrowthDecay, "yearly step down of revenue growth")
	cmd.Flags().Float64("terminal", d.Terminal, "terminal growth rate")
	cmd.Flags().Float64("growth", 0, "initial revenue growth override")
	cmd.Flags().Float64("capex", 0, "capex rate override")
}

// --- Version Command ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	// Skip config loading.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "fairvalue %s\n", version)
		fmt.Fprintf(out, "  commit:  %s\n", commit)
		fmt.Fprintf(out, "  built:   %s\n", date)
	},
}

// --- Value Command ---

var valueCmd = &cobra.Command{
	Use:   "value [ticker]",
	Short: "Estimate the fair value of one stock",
	Long: `Estimate the fair value per share of one stock.

Model flags override the configured defaults and any watchlist entry for the
ticker. --growth and --capex replace the derived rates only when passed.

Examples:
  fairvalue value MSFT
  fairvalue value AMZN --growth 0.17 --capex 0.08 --terminal 0.03
  fairvalue value NVDA --detail
  fairvalue value SAP --format json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ticker := utils.NormalizeTicker(args[0])
		p, err := applyParamFlags(cmd.Flags(), paramsFor(ticker))
		if err != nil {
			return err
		}
		format, err := reportFormat(cmd)
		if err != nil {
			return err
		}

		v, _, err := newValuer()
		if err != nil {
			return err
		}
		out, valueErr := v.Value(cmd.Context(), ticker, p)

		detail, _ := cmd.Flags().GetBool("detail")
		if format == report.FormatJSON {
			err = report.JSON(cmd.OutOrStdout(), out)
		} else {
			err = report.Valuation(cmd.OutOrStdout(), out, detail)
		}
		if err != nil {
			return err
		}
		if valueErr != nil {
			return fmt.Errorf("value %s: %w", ticker, valueErr)
		}
		return nil
	},
}

func init() {
	addParamFlags(valueCmd)
	addFormatFlag(valueCmd)
	valueCmd.Flags().Bool("detail", false, "print the per-year projection table")
}

// --- Metrics Command ---

var metricsCmd = &cobra.Command{
	Use:   "metrics [ticker...]",
	Short: "Print the derived metrics of one or more stocks",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := reportFormat(cmd)
		if err != nil {
			return err
		}
		v, _, err := newValuer()
		if err != nil {
			return err
		}
		asJSON := format == report.FormatJSON

		var all []models.Metrics
		for _, arg := range args {
			ticker := utils.NormalizeTicker(arg)
			m, err := v.Metrics(cmd.Context(), ticker)
			if err != nil {
				return fmt.Errorf("metrics %s: %w", ticker, err)
			}
			if asJSON {
				all = append(all, m)
				continue
			}
			if err := report.Metrics(cmd.OutOrStdout(), m); err != nil {
				return err
			}
		}
		if asJSON {
			return report.JSON(cmd.OutOrStdout(), all)
		}
		return nil
	},
}

func init() {
	addFormatFlag(metricsCmd)
}

// --- Batch Command ---

var batchCmd = &cobra.Command{
	Use:   "batch [ticker...]",
	Short: "Value the watchlist or the given tickers",
	Long: `Value several stocks concurrently. With no arguments the configured
watchlist (batch.tickers) is valued, each ticker with its own overrides.

A failing ticker is reported with its error kind and does not stop the
others. The command fails only when every ticker failed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := reportFormat(cmd)
		if err != nil {
			return err
		}
		var jobs []fairvalue.Job
		if len(args) == 0 {
			for _, t := range cfg.Batch.Tickers {
				jobs = append(jobs, fairvalue.Job{Ticker: t.Symbol, Params: cfg.Params(t)})
			}
		} else {
			for _, arg := range args {
				ticker := utils.NormalizeTicker(arg)
				jobs = append(jobs, fairvalue.Job{Ticker: ticker, Params: paramsFor(ticker)})
			}
		}
		if len(jobs) == 0 {
			return fmt.Errorf("no tickers given and the watchlist is empty")
		}

		v, _, err := newValuer()
		if err != nil {
			return err
		}
		started := time.Now()
		outcomes := v.Batch(cmd.Context(), jobs)

		if format == report.FormatJSON {
			err = report.JSON(cmd.OutOrStdout(), outcomes)
		} else {
			err = report.Batch(cmd.OutOrStdout(), outcomes, time.Since(started))
		}
		if err != nil {
			return err
		}

		for _, o := range outcomes {
			if o.OK() {
				return nil
			}
		}
		return fmt.Errorf("all %d tickers failed", len(outcomes))
	},
}

func init() {
	addFormatFlag(batchCmd)
}

// --- Snapshot Command ---

var snapshotCmd = &cobra.Command{
	Use:   "snapshot [ticker...]",
	Short: "Save statement rows to the data directory for offline use",
	Long: `Fetch every statement row and the beta of each ticker from a live
provider and write them as documents the file provider reads.

Examples:
  fairvalue snapshot MSFT NVDA
  fairvalue snapshot SAP --from fmp --data-dir ./testdata
  fairvalue value MSFT --provider file`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Provider.DataDir == "" {
			return fmt.Errorf("snapshot needs a data directory (--data-dir)")
		}
		from, _ := cmd.Flags().GetString("from")

		_, reg, err := newValuer()
		if err != nil {
			return err
		}
		src, err := reg.Get(from)
		if err != nil {
			return err
		}
		dst := file.New(cfg.Provider.DataDir)

		for _, arg := range args {
			ticker := utils.NormalizeTicker(arg)
			snap, err := file.Capture(cmd.Context(), src, ticker, models.Lookback)
			if err != nil {
				return fmt.Errorf("snapshot %s: %w", ticker, err)
			}
			path, err := dst.Save(snap)
			if err != nil {
				return err
			}
			if err := report.Snapshot(cmd.OutOrStdout(), snap, path); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	snapshotCmd.Flags().String("from", config.ProviderYFinance, "provider to capture from")
}

// --- Providers Command ---

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List the registered statement providers",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, reg, err := newValuer()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, info := range reg.List() {
			fmt.Fprintf(out, "  %-10s %s\n", info.Name, info.Description)
		}
		return nil
	},
}

// --- Status Command ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration and API key status",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		p := cfg.BaseParams()

		fmt.Fprintln(out, "═══════════════════════════════════════")
		fmt.Fprintln(out, "  fairvalue: System Status")
		fmt.Fprintln(out, "═══════════════════════════════════════")
		fmt.Fprintf(out, "  Version:       %s (%s)\n", version, commit)
		fmt.Fprintln(out)

		fmt.Fprintln(out, "  Configuration:")
		fmt.Fprintf(out, "    Providers:     %v\n", cfg.ProviderChain())
		fmt.Fprintf(out, "    Data dir:      %s\n", cfg.Provider.DataDir)
		fmt.Fprintf(out, "    Timeout:       %s (retries: %d)\n", cfg.Provider.Timeout, cfg.Provider.MaxRetries)
		fmt.Fprintf(out, "    Horizon:       %d years\n", p.Period)
		fmt.Fprintf(out, "    Risk-free:     %s  ERP: %s\n", utils.FormatRate(p.RiskFree), utils.FormatRate(p.ERP))
		fmt.Fprintf(out, "    Terminal:      %s  Decay: %s\n", utils.FormatRate(p.Terminal), utils.FormatRate(p.GrowthDecay))
		fmt.Fprintf(out, "    Watchlist:     %d tickers (concurrency %d)\n", len(cfg.Batch.Tickers), cfg.Batch.Concurrency)
		fmt.Fprintln(out)

		fmt.Fprintln(out, "  API Keys:")
		for _, k := range config.CheckAPIKeys(cfg) {
			status := "not set"
			if k.IsSet {
				status = fmt.Sprintf("set (%s: %s)", k.Source, k.Masked)
			}
			fmt.Fprintf(out, "    %-25s %s\n", k.Name+":", status)
		}

		fmt.Fprintln(out, "═══════════════════════════════════════")
		return nil
	},
}
