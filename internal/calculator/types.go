package calculator

import (
	"fmt"
	"strings"
)

type Audience string

const (
	AudienceHome       Audience = "home"
	AudienceCommercial Audience = "commercial"
)

// Audiences lists every supported audience in display order.
var Audiences = []Audience{AudienceHome, AudienceCommercial}

// ParseAudience accepts the audience names case-insensitively.
func ParseAudience(s string) (Audience, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "home", "residential":
		return AudienceHome, nil
	case "commercial", "business":
		return AudienceCommercial, nil
	default:
		return "", fmt.Errorf("unknown audience %q", s)
	}
}

func (a Audience) Label() string {
	switch a {
	case AudienceCommercial:
		return "Commercial"
	default:
		return "Home"
	}
}

// Field names one of the user-editable numeric inputs.
type Field string

const (
	FieldMonthlyBill   Field = "monthlyBillInCurrency"
	FieldTariff        Field = "tariffPerUnit"
	FieldCoverageGoal  Field = "coverageGoalPercent"
	FieldPricePerKW    Field = "pricePerKilowatt"
	FieldSubsidyAmount Field = "subsidyAmount"
)

// Fields lists the numeric inputs in form order.
var Fields = []Field{FieldMonthlyBill, FieldTariff, FieldCoverageGoal, FieldPricePerKW, FieldSubsidyAmount}

func ParseField(s string) (Field, error) {
	for _, f := range Fields {
		if strings.EqualFold(string(f), strings.TrimSpace(s)) {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown calculator field %q", s)
}

type Input struct {
	Audience            Audience `json:"audience"`
	MonthlyBill         float64  `json:"monthlyBillInCurrency"`
	TariffPerUnit       float64  `json:"tariffPerUnit"`
	CoverageGoalPercent float64  `json:"coverageGoalPercent"`
	PricePerKW          float64  `json:"pricePerKilowatt"`
	SubsidyAmount       float64  `json:"subsidyAmount"`
}

// Get returns the value of a numeric field.
func (in Input) Get(f Field) float64 {
	switch f {
	case FieldMonthlyBill:
		return in.MonthlyBill
	case FieldTariff:
		return in.TariffPerUnit
	case FieldCoverageGoal:
		return in.CoverageGoalPercent
	case FieldPricePerKW:
		return in.PricePerKW
	case FieldSubsidyAmount:
		return in.SubsidyAmount
	default:
		return 0
	}
}

// Output is fully derived from Input. PaybackYears is +Inf when there are no savings.
type Output struct {
	MonthlyConsumptionKWh float64 `json:"monthlyConsumptionKWh"`
	TargetMonthlyKWh      float64 `json:"targetMonthlyKWh"`
	RecommendedSizeKW     float64 `json:"recommendedSizeKW"`
	TotalCapex            float64 `json:"totalCapex"`
	NetCapexAfterSubsidy  float64 `json:"netCapexAfterSubsidy"`
	GrossMonthlySavings   float64 `json:"grossMonthlySavings"`
	PaybackYears          float64 `json:"paybackYears"`
	FirstYearROIPercent   float64 `json:"firstYearROIPercent"`
}

// Preset holds the audience-dependent pricing defaults.
type Preset struct {
	PricePerKW    float64 `json:"pricePerKilowatt" yaml:"price_per_kw"`
	SubsidyAmount float64 `json:"subsidyAmount" yaml:"subsidy_amount"`
}
