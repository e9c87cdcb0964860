package site

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/joelkehle/solarsite/internal/calculator"
	"github.com/joelkehle/solarsite/internal/leads"
)

// Metrics owns a private registry so several servers can coexist in tests.
type Metrics struct {
	registry     *prometheus.Registry
	calculations *prometheus.CounterVec
	leadOutcomes *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		calculations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "solarsite_calculations_total",
			Help: "Calculator estimates computed, by audience.",
		}, []string{"audience"}),
		leadOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "solarsite_lead_outcomes_total",
			Help: "Lead submissions by terminal or interim status.",
		}, []string{"status"}),
	}
	m.registry.MustRegister(
		m.calculations,
		m.leadOutcomes,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Calculation(a calculator.Audience) {
	m.calculations.WithLabelValues(string(a)).Inc()
}

// LeadOutcome matches leads.Hooks.OnOutcome.
func (m *Metrics) LeadOutcome(st leads.Status) {
	m.leadOutcomes.WithLabelValues(string(st)).Inc()
}
