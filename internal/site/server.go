package site

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"go.uber.org/zap"

	"github.com/joelkehle/solarsite/internal/calculator"
	"github.com/joelkehle/solarsite/internal/estimate"
	"github.com/joelkehle/solarsite/internal/format"
	"github.com/joelkehle/solarsite/internal/leads"
)

// pages maps clean URLs to HTML files in the web directory.
var pages = map[string]string{
	"/":           "index.html",
	"/index.html": "index.html",
	"/about":      "about.html",
	"/services":   "services.html",
	"/projects":   "projects.html",
	"/contact":    "contact.html",
}

type ReportPDFRenderer interface {
	Render(ctx context.Context, markdown string) ([]byte, error)
}

// Options wires the server's collaborators. Leads and PDF may be nil, in
// which case their endpoints answer 503.
type Options struct {
	WebDir    string
	Presets   *calculator.PresetRegistry
	Leads     *leads.Service
	Formatter *format.Formatter
	PDF       ReportPDFRenderer
	Metrics   *Metrics
	Logger    *zap.Logger
	AccessLog io.Writer
}

type Server struct {
	webDir  string
	presets *calculator.PresetRegistry
	leads   *leads.Service
	fmt     *format.Formatter
	pdf     ReportPDFRenderer
	metrics *Metrics
	logger  *zap.Logger
}

func NewServer(opts Options) http.Handler {
	s := &Server{
		webDir:  opts.WebDir,
		presets: opts.Presets,
		leads:   opts.Leads,
		fmt:     opts.Formatter,
		pdf:     opts.PDF,
		metrics: opts.Metrics,
		logger:  opts.Logger,
	}
	if s.presets == nil {
		s.presets = calculator.NewPresetRegistry(nil)
	}
	if s.fmt == nil {
		s.fmt = format.New(format.DefaultLocale, "₹")
	}
	if s.metrics == nil {
		s.metrics = NewMetrics()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/calculator", s.handleCalculate)
	mux.HandleFunc("/api/calculator/presets", s.handlePresets)
	mux.HandleFunc("/api/calculator/defaults", s.handleDefaults)
	mux.HandleFunc("/api/calculator/audience", s.handleAudience)
	mux.HandleFunc("/calculator/panel", s.handlePanel)
	mux.HandleFunc("/estimate.pdf", s.handleEstimatePDF)
	mux.HandleFunc("/api/leads", s.handleLeads)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", s.metrics.Handler())
	mux.HandleFunc("/", s.handleRoot)

	var h http.Handler = mux
	h = handlers.CompressHandler(h)
	if opts.AccessLog != nil {
		h = handlers.CombinedLoggingHandler(opts.AccessLog, h)
	}
	return handlers.RecoveryHandler(handlers.RecoveryLogger(zap.NewStdLog(s.logger)))(h)
}

// writeJSON encodes payload before touching the response so an encoding
// failure still reaches the client as a 500.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"error":"failed to encode response"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if file, ok := pages[r.URL.Path]; ok {
		// Prevent stale page bundles after deploys.
		w.Header().Set("Cache-Control", "no-store")
		http.ServeFile(w, r, filepath.Join(s.webDir, file))
		return
	}
	// Serve static assets from the web directory.
	rel := strings.TrimPrefix(filepath.Clean(r.URL.Path), "/")
	if info, err := fs.Stat(os.DirFS(s.webDir), rel); err == nil && !info.IsDir() {
		http.ServeFile(w, r, filepath.Join(s.webDir, rel))
		return
	}
	http.NotFound(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, 200, map[string]any{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)})
}

func (s *Server) handlePresets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	table := s.presets.Table()
	out := make(map[string]calculator.Preset, len(table))
	for a, p := range table {
		out[string(a)] = p
	}
	writeJSON(w, 200, map[string]any{
		"presets":          out,
		"annualYieldPerKW": calculator.AnnualYieldPerKW,
	})
}

func (s *Server) handleDefaults(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	a := calculator.AudienceHome
	if raw := r.URL.Query().Get("audience"); raw != "" {
		parsed, err := calculator.ParseAudience(raw)
		if err != nil {
			writeError(w, 400, err.Error())
			return
		}
		a = parsed
	}
	in := s.presets.Table().DefaultInput(a)
	writeJSON(w, 200, s.result(in))
}

func (s *Server) handleCalculate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	in, err := s.decodeInput(r)
	if err != nil {
		writeError(w, 400, err.Error())
		return
	}
	s.metrics.Calculation(in.Audience)
	writeJSON(w, 200, s.result(in))
}

// handleAudience applies the audience preset transition to submitted form state.
func (s *Server) handleAudience(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Input    map[string]json.RawMessage `json:"input"`
		Audience string                     `json:"audience"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, 400, "invalid json body")
		return
	}
	a, err := calculator.ParseAudience(req.Audience)
	if err != nil {
		writeError(w, 400, err.Error())
		return
	}
	in, err := parseInput(req.Input, s.presets.Table())
	if err != nil {
		writeError(w, 400, err.Error())
		return
	}
	sess := calculator.SessionFromInput(s.presets.Table(), in)
	sess.SetAudience(a)
	writeJSON(w, 200, s.result(sess.Input()))
}

func (s *Server) handleEstimatePDF(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.pdf == nil {
		writeError(w, 503, "pdf renderer unavailable")
		return
	}
	in, err := s.decodeInput(r)
	if err != nil {
		writeError(w, 400, err.Error())
		return
	}
	md := estimate.BuildMarkdown(estimate.New(in), s.fmt)
	pdf, err := s.pdf.Render(r.Context(), md)
	if err != nil {
		s.logger.Error("render estimate pdf failed", zap.Error(err))
		writeError(w, 500, "failed to render pdf")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="solar-estimate.pdf"`)
	w.WriteHeader(200)
	_, _ = w.Write(pdf)
}

func (s *Server) handleLeads(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.leads == nil {
		writeJSON(w, 503, map[string]any{"success": false, "error": "lead capture unavailable"})
		return
	}
	sub, err := decodeSubmission(r)
	if err != nil {
		writeJSON(w, 400, map[string]any{"success": false, "error": err.Error()})
		return
	}

	lead, err := s.leads.Submit(r.Context(), sub)
	var ve *leads.ValidationError
	switch {
	case err == nil:
		writeJSON(w, 200, map[string]any{"success": true, "id": lead.ID, "message": "Thank you, our team will be in touch shortly."})
	case errors.As(err, &ve):
		writeJSON(w, 400, map[string]any{"success": false, "error": "invalid submission", "fields": ve.Fields})
	case errors.Is(err, leads.ErrRelayFailed) && lead != nil && lead.Status == leads.StatusPending:
		// Stored and queued for the retrier.
		writeJSON(w, 202, map[string]any{"success": true, "id": lead.ID, "queued": true, "message": "Thank you, our team will be in touch shortly."})
	case errors.Is(err, leads.ErrRelayFailed):
		writeJSON(w, 502, map[string]any{"success": false, "error": "could not deliver your message, please try again"})
	default:
		s.logger.Error("lead submission failed", zap.Error(err))
		writeJSON(w, 500, map[string]any{"success": false, "error": "internal error"})
	}
}

func decodeSubmission(r *http.Request) (leads.Submission, error) {
	var sub leads.Submission
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&sub); err != nil {
			return sub, errors.New("invalid json body")
		}
		return sub, nil
	}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			return sub, errors.New("invalid multipart form")
		}
	} else if err := r.ParseForm(); err != nil {
		return sub, errors.New("invalid form")
	}
	sub = leads.Submission{
		Name:     r.FormValue("name"),
		Email:    r.FormValue("email"),
		Phone:    r.FormValue("phone"),
		Message:  r.FormValue("message"),
		Audience: r.FormValue("audience"),
		Honeypot: r.FormValue("botcheck"),
		Source:   r.FormValue("source"),
	}
	return sub, nil
}
