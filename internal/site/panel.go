package site

import (
	"net/http"

	g "maragu.dev/gomponents"
	h "maragu.dev/gomponents/html"

	"github.com/joelkehle/solarsite/internal/calculator"
	"github.com/joelkehle/solarsite/internal/format"
)

// handlePanel recomputes from the posted calculator form and returns the
// result panel as an HTML fragment for in-place swapping.
func (s *Server) handlePanel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	in, err := s.formInput(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.metrics.Calculation(in.Audience)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_ = resultPanel(in, calculator.Compute(in), s.fmt).Render(w)
}

func resultPanel(in calculator.Input, out calculator.Output, f *format.Formatter) g.Node {
	return h.Section(h.ID("roi-result"), h.Class("roi-result"),
		g.Attr("data-audience", string(in.Audience)),
		h.H3(g.Text(in.Audience.Label()+" solar estimate")),
		h.Table(h.TBody(
			panelRow("Monthly consumption", f.KWh(out.MonthlyConsumptionKWh)),
			panelRow("Solar target", f.KWh(out.TargetMonthlyKWh)),
			panelRow("Recommended system", f.KW(out.RecommendedSizeKW)),
			panelRow("System cost", f.Currency(out.TotalCapex)),
			panelRow("Cost after subsidy", f.Currency(out.NetCapexAfterSubsidy)),
			panelRow("Monthly savings", f.Currency(out.GrossMonthlySavings)),
			panelRow("Payback", f.Years(out.PaybackYears)),
			panelRow("First-year return", f.Percent(out.FirstYearROIPercent)),
		)),
		g.If(out.PaybackNever(),
			h.P(h.Class("roi-note"), g.Text("At these inputs the system does not pay for itself. Try a higher coverage goal.")),
		),
		h.P(h.Class("roi-disclaimer"), g.Text("Indicative only. A site survey confirms final sizing and pricing.")),
	)
}

func panelRow(label, value string) g.Node {
	return h.Tr(h.Th(g.Text(label)), h.Td(g.Text(value)))
}
