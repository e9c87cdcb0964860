package estimate

import (
	"fmt"
	"strings"
	"time"

	"github.com/joelkehle/solarsite/internal/calculator"
	"github.com/joelkehle/solarsite/internal/format"
)

const Disclaimer = "_Indicative estimate only. Final system size, pricing and subsidy eligibility are confirmed after a site survey._"

// Estimate pairs the inputs a visitor entered with the derived figures.
type Estimate struct {
	Input       calculator.Input
	Output      calculator.Output
	GeneratedAt time.Time
}

func New(in calculator.Input) Estimate {
	return Estimate{Input: in, Output: calculator.Compute(in), GeneratedAt: time.Now()}
}

// BuildMarkdown renders the estimate as a GFM document.
func BuildMarkdown(e Estimate, f *format.Formatter) string {
	in, out := e.Input, e.Output

	var b strings.Builder
	fmt.Fprintf(&b, "# Solar Savings Estimate\n\n")
	fmt.Fprintf(&b, "- Audience: %s\n", in.Audience.Label())
	if !e.GeneratedAt.IsZero() {
		fmt.Fprintf(&b, "- Date: %s\n", e.GeneratedAt.Format("January 2, 2006"))
	}
	fmt.Fprintf(&b, "\n%s\n\n", Disclaimer)

	fmt.Fprintf(&b, "## Your Inputs\n\n")
	fmt.Fprintf(&b, "| Input | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Average monthly bill | %s |\n", f.Currency(in.MonthlyBill))
	fmt.Fprintf(&b, "| Tariff per unit | %s |\n", f.Currency(in.TariffPerUnit))
	fmt.Fprintf(&b, "| Coverage goal | %s |\n", f.Percent(in.CoverageGoalPercent))
	fmt.Fprintf(&b, "| Installed price per kW | %s |\n", f.Currency(in.PricePerKW))
	fmt.Fprintf(&b, "| Subsidy | %s |\n\n", f.Currency(in.SubsidyAmount))

	fmt.Fprintf(&b, "## Recommended System\n\n")
	fmt.Fprintf(&b, "| Figure | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Monthly consumption | %s |\n", f.KWh(out.MonthlyConsumptionKWh))
	fmt.Fprintf(&b, "| Solar target per month | %s |\n", f.KWh(out.TargetMonthlyKWh))
	fmt.Fprintf(&b, "| Recommended size | %s |\n", f.KW(out.RecommendedSizeKW))
	fmt.Fprintf(&b, "| Total capex | %s |\n", f.Currency(out.TotalCapex))
	fmt.Fprintf(&b, "| Net capex after subsidy | %s |\n", f.Currency(out.NetCapexAfterSubsidy))
	fmt.Fprintf(&b, "| Monthly savings | %s |\n", f.Currency(out.GrossMonthlySavings))
	fmt.Fprintf(&b, "| Payback | %s |\n", f.Years(out.PaybackYears))
	fmt.Fprintf(&b, "| First-year ROI | %s |\n\n", f.Percent(out.FirstYearROIPercent))

	if out.PaybackNever() {
		fmt.Fprintf(&b, "> With no projected savings this system does not pay for itself. Raise the coverage goal to see a payback period.\n\n")
	}

	fmt.Fprintf(&b, "## Assumptions\n\n")
	fmt.Fprintf(&b, "- Each installed kW generates about %.0f kWh per year.\n", calculator.AnnualYieldPerKW)
	fmt.Fprintf(&b, "- Consumption is derived from your bill divided by the tariff.\n")
	fmt.Fprintf(&b, "- Savings assume the covered share of your bill is offset in full; net metering credits are not modelled.\n")
	fmt.Fprintf(&b, "- The subsidy is a flat amount credited against capex.\n")
	return b.String()
}
