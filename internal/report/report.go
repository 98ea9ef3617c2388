package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/seenimoa/fairvalue/internal/analysis/valuation"
	"github.com/seenimoa/fairvalue/internal/fairvalue"
	"github.com/seenimoa/fairvalue/internal/provider"
	"github.com/seenimoa/fairvalue/internal/providers/file"
	"github.com/seenimoa/fairvalue/pkg/models"
	"github.com/seenimoa/fairvalue/pkg/utils"
)

// ════════════════════════════════════════════════════════════════════
// Report Rendering: valuation summaries for the terminal or as JSON
// ════════════════════════════════════════════════════════════════════

// Format specifies the output format.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ParseFormat maps a flag value to a Format. Empty means text.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown report format %q (want text or json)", s)
	}
}

var (
	line     = strings.Repeat("═", 60)
	thinLine = strings.Repeat("─", 60)
)

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func header(sb *strings.Builder, title string) {
	sb.WriteString(line + "\n")
	sb.WriteString(fmt.Sprintf("  %s\n", title))
	sb.WriteString(line + "\n")
}

// ════════════════════════════════════════════════════════════════════
// Text
// ════════════════════════════════════════════════════════════════════

// Metrics writes the derived metrics record of one ticker.
func Metrics(w io.Writer, m models.Metrics) error {
	var sb strings.Builder
	header(&sb, fmt.Sprintf("%s: derived metrics", m.Ticker))

	tw := newTable(&sb)
	rows := []struct{ label, value string }{
		{"Revenue", utils.FormatBillions(m.Revenue)},
		{"Beta", utils.FormatNumber(m.Beta, 3)},
		{"Net debt", utils.FormatBillions(m.NetDebt)},
		{"Shares outstanding", utils.FormatBillions(m.OutstandingShares)},
		{"Revenue growth", utils.FormatRate(m.RevGrowthRate)},
		{"EBITDA margin", utils.FormatRate(m.EBITDAMarginRate)},
		{"Tax rate", utils.FormatRate(m.TaxRate)},
		{"D&A / revenue", utils.FormatRate(m.DARate)},
		{"Capex / revenue", utils.FormatRate(m.CapexRate)},
		{"ΔWC / revenue", utils.FormatRate(m.DeltaWorkCapRate)},
	}
	for _, r := range rows {
		fmt.Fprintf(tw, "  %s\t%s\n", r.label, r.value)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	sb.WriteString(line + "\n")

	_, err := io.WriteString(w, sb.String())
	return err
}

// Valuation writes the summary of one valued ticker. With detail set the
// per-year projection table is included.
func Valuation(w io.Writer, out *fairvalue.Outcome, detail bool) error {
	if out == nil {
		return fmt.Errorf("outcome is nil")
	}
	var sb strings.Builder
	header(&sb, fmt.Sprintf("%s: DCF fair value", out.Ticker))

	if !out.OK() {
		sb.WriteString(fmt.Sprintf("  Failed (%s): %s\n", out.Kind, out.Error))
		sb.WriteString(line + "\n")
		_, err := io.WriteString(w, sb.String())
		return err
	}

	res, p := out.Result, out.Params
	tw := newTable(&sb)
	fmt.Fprintf(tw, "  Horizon\t%d years\n", p.Period)
	fmt.Fprintf(tw, "  Discount rate\t%s\t(rf %s + β %s × ERP %s)\n",
		utils.FormatRate(res.DiscountRate), utils.FormatRate(p.RiskFree),
		utils.FormatNumber(out.Metrics.Beta, 3), utils.FormatRate(p.ERP))
	fmt.Fprintf(tw, "  Initial growth\t%s%s\n", utils.FormatRate(res.GrowthRate), overridden(p.RevGrowthOverride))
	fmt.Fprintf(tw, "  Capex rate\t%s%s\n", utils.FormatRate(res.CapexRate), overridden(p.CapexRateOverride))
	fmt.Fprintf(tw, "  Terminal growth\t%s\n", utils.FormatRate(p.Terminal))
	if err := tw.Flush(); err != nil {
		return err
	}
	sb.WriteString(thinLine + "\n")

	if detail {
		if err := projection(&sb, res, p.Terminal); err != nil {
			return err
		}
		sb.WriteString(thinLine + "\n")
	}

	tw = newTable(&sb)
	fmt.Fprintf(tw, "  PV of horizon FCFF\t%s\n", utils.FormatBillions(res.PeriodPV))
	fmt.Fprintf(tw, "  Terminal value\t%s\t(PV %s)\n", utils.FormatBillions(res.Terminal.Value), utils.FormatBillions(res.Terminal.PV))
	fmt.Fprintf(tw, "  Enterprise value\t%s\n", utils.FormatBillions(res.EnterpriseValue))
	if res.NetDebtApplied {
		fmt.Fprintf(tw, "  Net debt\t%s\n", utils.FormatBillions(out.Metrics.NetDebt))
	} else {
		fmt.Fprintf(tw, "  Net debt\t%s\t(not applied)\n", utils.NotAvailable)
	}
	fmt.Fprintf(tw, "  Equity value\t%s\n", utils.FormatBillions(res.EquityValue))
	fmt.Fprintf(tw, "  Shares outstanding\t%s\n", utils.FormatBillions(out.Metrics.OutstandingShares))
	if err := tw.Flush(); err != nil {
		return err
	}
	sb.WriteString(thinLine + "\n")
	sb.WriteString(fmt.Sprintf("  ★ Fair value per share: %s\n", utils.FormatUSD(res.FairValue)))
	sb.WriteString(line + "\n")

	_, err := io.WriteString(w, sb.String())
	return err
}

func projection(sb *strings.Builder, res *valuation.Result, terminal float64) error {
	tw := newTable(sb)
	fmt.Fprintln(tw, "  Year\tGrowth\tRevenue\tEBITDA\tCapex\tFCFF\tDiscount\tPV")
	for _, y := range res.Years {
		fmt.Fprintf(tw, "  %d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			y.Year,
			utils.FormatRate(y.GrowthRate),
			utils.FormatBillions(y.Revenue),
			utils.FormatBillions(y.EBITDA),
			utils.FormatBillions(y.Capex),
			utils.FormatBillions(y.FCFF),
			utils.FormatNumber(y.Discount, 4),
			utils.FormatBillions(y.PV),
		)
	}
	fmt.Fprintf(tw, "  TV\t%s\t\t\t\t%s\t%s\t%s\n",
		utils.FormatRate(terminal),
		utils.FormatBillions(res.Terminal.NextFCFF),
		fmt.Sprintf("^%d", res.Terminal.Exponent),
		utils.FormatBillions(res.Terminal.PV),
	)
	return tw.Flush()
}

func overridden(o models.Override) string {
	if o.Set {
		return " (override)"
	}
	return ""
}

// Batch writes one row per outcome followed by a totals line.
func Batch(w io.Writer, outcomes []fairvalue.Outcome, took time.Duration) error {
	var sb strings.Builder
	title := "Batch valuation"
	if len(outcomes) > 0 && outcomes[0].RunID != "" {
		title += " " + outcomes[0].RunID
	}
	header(&sb, title)

	tw := newTable(&sb)
	fmt.Fprintln(tw, "  Ticker\tFair value\tDiscount\tGrowth\tEV\tStatus")
	failed := 0
	for _, o := range outcomes {
		if !o.OK() {
			failed++
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t%s\t%s\n", o.Ticker,
				utils.NotAvailable, utils.NotAvailable, utils.NotAvailable, utils.NotAvailable, o.Kind)
			continue
		}
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t%s\tok\n", o.Ticker,
			utils.FormatUSD(o.Result.FairValue),
			utils.FormatRate(o.Result.DiscountRate),
			utils.FormatRate(o.Result.GrowthRate),
			utils.FormatBillions(o.Result.EnterpriseValue),
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	sb.WriteString(thinLine + "\n")
	sb.WriteString(fmt.Sprintf("  %d valued, %d failed in %s\n", len(outcomes)-failed, failed, FormatDuration(took)))

	for _, o := range outcomes {
		if !o.OK() {
			sb.WriteString(fmt.Sprintf("    %s: %s\n", o.Ticker, o.Error))
		}
	}
	sb.WriteString(line + "\n")

	_, err := io.WriteString(w, sb.String())
	return err
}

// Snapshot writes one line for a saved snapshot: where it went, the latest
// revenue and how many periods of revenue were reported.
func Snapshot(w io.Writer, snap *file.Snapshot, path string) error {
	rev := snap.Rows[provider.TotalRevenue]
	latest := models.Missing()
	if len(rev) > 0 {
		latest = rev[0]
	}
	_, err := fmt.Fprintf(w, "%s → %s  revenue %s (%d/%d periods)  beta %s\n",
		snap.Ticker, path, utils.FormatCompact(latest), rev.Present(), len(rev), utils.FormatNumber(snap.Beta, 2))
	return err
}

// ════════════════════════════════════════════════════════════════════
// JSON
// ════════════════════════════════════════════════════════════════════

// JSON writes v as indented JSON.
func JSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// FormatDuration formats a duration for display.
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%.1fm", d.Minutes())
	}
	return fmt.Sprintf("%.1fh", d.Hours())
}
