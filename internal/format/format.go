// Package format renders calculator figures for display: whole-unit
// currency with locale grouping, one-decimal percentages and years.
package format

import (
	"math"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// DefaultLocale matches the rupee pricing used by the presets.
const DefaultLocale = "en-IN"

// Never is shown when a payback period does not exist.
const Never = "never"

type Formatter struct {
	printer *message.Printer
	symbol  string
}

// New returns a formatter for a BCP 47 locale tag. Unknown tags fall back to
// DefaultLocale.
func New(locale, currencySymbol string) *Formatter {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.MustParse(DefaultLocale)
	}
	return &Formatter{printer: message.NewPrinter(tag), symbol: currencySymbol}
}

// Currency rounds half away from zero to a whole unit and groups digits per locale.
func (f *Formatter) Currency(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "-"
	}
	n := decimal.NewFromFloat(v).Round(0).IntPart()
	if n < 0 {
		return "-" + f.symbol + f.printer.Sprintf("%d", -n)
	}
	return f.symbol + f.printer.Sprintf("%d", n)
}

// Number groups an integer-rounded value without a currency symbol.
func (f *Formatter) Number(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "-"
	}
	return f.printer.Sprintf("%d", decimal.NewFromFloat(v).Round(0).IntPart())
}

func (f *Formatter) Percent(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "-"
	}
	return f.printer.Sprintf("%.1f%%", v)
}

// Years formats a payback period, or Never when it is not finite.
func (f *Formatter) Years(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Never
	}
	return f.printer.Sprintf("%.1f years", v)
}

func (f *Formatter) KW(v float64) string {
	return f.Number(v) + " kW"
}

func (f *Formatter) KWh(v float64) string {
	return f.Number(v) + " kWh"
}
