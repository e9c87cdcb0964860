package site

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/joelkehle/solarsite/internal/calculator"
)

// calcResponse is the JSON body for every calculator endpoint.
type calcResponse struct {
	Input   calculator.Input  `json:"input"`
	Output  calculator.Output `json:"output"`
	Display map[string]string `json:"display"`
}

func (s *Server) result(in calculator.Input) calcResponse {
	out := calculator.Compute(in)
	return calcResponse{Input: in, Output: out, Display: s.display(out)}
}

func (s *Server) display(out calculator.Output) map[string]string {
	return map[string]string{
		"monthlyConsumption":   s.fmt.KWh(out.MonthlyConsumptionKWh),
		"targetMonthly":        s.fmt.KWh(out.TargetMonthlyKWh),
		"recommendedSize":      s.fmt.KW(out.RecommendedSizeKW),
		"totalCapex":           s.fmt.Currency(out.TotalCapex),
		"netCapexAfterSubsidy": s.fmt.Currency(out.NetCapexAfterSubsidy),
		"grossMonthlySavings":  s.fmt.Currency(out.GrossMonthlySavings),
		"paybackYears":         s.fmt.Years(out.PaybackYears),
		"firstYearRoiPercent":  s.fmt.Percent(out.FirstYearROIPercent),
	}
}

// decodeInput reads calculator input from a JSON body or a form post.
func (s *Server) decodeInput(r *http.Request) (calculator.Input, error) {
	ct := r.Header.Get("Content-Type")
	if ct == "" || strings.HasPrefix(ct, "application/json") {
		var raw map[string]json.RawMessage
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&raw); err != nil {
			return calculator.Input{}, fmt.Errorf("invalid json body")
		}
		return parseInput(raw, s.presets.Table())
	}
	if strings.HasPrefix(ct, "multipart/form-data") {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			return calculator.Input{}, fmt.Errorf("invalid multipart form")
		}
		return s.formInput(r)
	}
	if err := r.ParseForm(); err != nil {
		return calculator.Input{}, fmt.Errorf("invalid form")
	}
	return s.formInput(r)
}

// parseInput builds an Input from loosely typed JSON. Missing fields take the
// audience defaults; present fields may be numbers, numeric strings or null,
// and anything unparsable counts as 0.
func parseInput(raw map[string]json.RawMessage, presets calculator.PresetTable) (calculator.Input, error) {
	a := calculator.AudienceHome
	if v, ok := raw["audience"]; ok {
		var name string
		if err := json.Unmarshal(v, &name); err != nil {
			return calculator.Input{}, fmt.Errorf("audience must be a string")
		}
		if name != "" {
			parsed, err := calculator.ParseAudience(name)
			if err != nil {
				return calculator.Input{}, err
			}
			a = parsed
		}
	}
	sess := calculator.SessionFromInput(presets, presets.DefaultInput(a))
	for _, f := range calculator.Fields {
		v, ok := raw[string(f)]
		if !ok {
			continue
		}
		sess.SetField(f, looseNumber(v))
	}
	return sess.Input(), nil
}

func looseNumber(v json.RawMessage) float64 {
	var n float64
	if err := json.Unmarshal(v, &n); err == nil {
		return n
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return calculator.ParseNumber(s)
	}
	return 0
}

// formInput reads the calculator form. When audience differs from
// previousAudience the audience preset is applied after the other fields,
// so a switch overrides whatever price and subsidy were posted.
func (s *Server) formInput(r *http.Request) (calculator.Input, error) {
	presets := s.presets.Table()
	prev := calculator.AudienceHome
	if raw := r.FormValue("previousAudience"); raw != "" {
		p, err := calculator.ParseAudience(raw)
		if err != nil {
			return calculator.Input{}, err
		}
		prev = p
	}
	next := prev
	if raw := r.FormValue("audience"); raw != "" {
		a, err := calculator.ParseAudience(raw)
		if err != nil {
			return calculator.Input{}, err
		}
		next = a
	}

	sess := calculator.SessionFromInput(presets, presets.DefaultInput(prev))
	for _, f := range calculator.Fields {
		if _, ok := r.Form[string(f)]; ok {
			sess.SetFieldText(f, r.FormValue(string(f)))
		}
	}
	if next != prev {
		sess.SetAudience(next)
	}
	return sess.Input(), nil
}
