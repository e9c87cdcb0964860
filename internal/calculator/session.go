package calculator

import (
	"math"
	"strconv"
	"strings"
)

// Session is the mutable form state behind one calculator view. It is owned
// by a single caller and is not safe for concurrent use.
type Session struct {
	presets PresetTable
	input   Input
}

// NewSession starts a session with the defaults for audience a.
func NewSession(presets PresetTable, a Audience) *Session {
	if presets == nil {
		presets = DefaultPresets()
	}
	return &Session{presets: presets, input: presets.DefaultInput(a)}
}

// SessionFromInput resumes a session from previously submitted form state.
func SessionFromInput(presets PresetTable, in Input) *Session {
	if presets == nil {
		presets = DefaultPresets()
	}
	if in.Audience == "" {
		in.Audience = AudienceHome
	}
	return &Session{presets: presets, input: in}
}

func (s *Session) Input() Input { return s.input }

// Output recomputes the estimate from the current input.
func (s *Session) Output() Output { return Compute(s.input) }

// SetAudience switches audience and resets price and subsidy to the
// audience's preset. Bill, tariff and coverage are left untouched.
func (s *Session) SetAudience(a Audience) {
	p := s.presets.Apply(a)
	s.input.Audience = a
	s.input.PricePerKW = p.PricePerKW
	s.input.SubsidyAmount = p.SubsidyAmount
}

// SetField overwrites one numeric field. Values are not clamped; only
// non-finite values are coerced to 0.
func (s *Session) SetField(f Field, v float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		v = 0
	}
	switch f {
	case FieldMonthlyBill:
		s.input.MonthlyBill = v
	case FieldTariff:
		s.input.TariffPerUnit = v
	case FieldCoverageGoal:
		s.input.CoverageGoalPercent = v
	case FieldPricePerKW:
		s.input.PricePerKW = v
	case FieldSubsidyAmount:
		s.input.SubsidyAmount = v
	}
}

// SetFieldText sets a field from raw control text; empty or malformed text
// counts as 0.
func (s *Session) SetFieldText(f Field, raw string) {
	s.SetField(f, ParseNumber(raw))
}

// ParseNumber converts form text to a number, treating anything unparsable
// as 0. Thousands separators and surrounding spaces are ignored.
func ParseNumber(raw string) float64 {
	raw = strings.TrimSpace(strings.ReplaceAll(raw, ",", ""))
	if raw == "" {
		return 0
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
