package calculator

import (
	"encoding/json"
	"math"
)

// AnnualYieldPerKW is the assumed yearly generation of one installed kW, in kWh.
const AnnualYieldPerKW = 1400.0

// Compute derives the sizing and financial estimate for in. It is total:
// degenerate denominators resolve to +Inf payback or 0 ROI, never a panic.
func Compute(in Input) Output {
	bill := finite(in.MonthlyBill)
	tariff := finite(in.TariffPerUnit)
	coverage := finite(in.CoverageGoalPercent) / 100.0
	price := finite(in.PricePerKW)
	subsidy := finite(in.SubsidyAmount)

	consumption := 0.0
	if tariff > 0 {
		consumption = finite(bill / tariff)
	}
	target := finite(consumption * coverage)

	size := finite(math.Round(target * 12 / AnnualYieldPerKW))
	if size < 0 {
		size = 0
	}

	capex := finite(size * price)
	netCapex := math.Max(0, finite(capex-subsidy))
	savings := finite(bill * coverage)

	// Overflowing intermediates collapse to 0 above, so payback is either
	// finite or +Inf and never NaN.
	payback := math.Inf(1)
	if savings > 0 {
		payback = netCapex / (savings * 12)
	}

	roi := 0.0
	if netCapex > 0 {
		roi = finite(savings * 12 / netCapex * 100)
	}

	return Output{
		MonthlyConsumptionKWh: consumption,
		TargetMonthlyKWh:      target,
		RecommendedSizeKW:     size,
		TotalCapex:            capex,
		NetCapexAfterSubsidy:  netCapex,
		GrossMonthlySavings:   savings,
		PaybackYears:          payback,
		FirstYearROIPercent:   roi,
	}
}

// PaybackNever reports whether the system never pays for itself.
func (o Output) PaybackNever() bool {
	return math.IsInf(o.PaybackYears, 0) || math.IsNaN(o.PaybackYears)
}

// MarshalJSON encodes an infinite payback as null with paybackNever set,
// since JSON has no representation for infinity.
func (o Output) MarshalJSON() ([]byte, error) {
	type plain Output
	var payback *float64
	if !o.PaybackNever() {
		v := o.PaybackYears
		payback = &v
	}
	return json.Marshal(struct {
		plain
		PaybackYears *float64 `json:"paybackYears"`
		PaybackNever bool     `json:"paybackNever"`
	}{
		plain:        plain(o),
		PaybackYears: payback,
		PaybackNever: payback == nil,
	})
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
