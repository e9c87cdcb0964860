package site

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/joelkehle/solarsite/internal/calculator"
	"github.com/joelkehle/solarsite/internal/format"
	"github.com/joelkehle/solarsite/internal/leads"
)

type stubRelay struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (s *stubRelay) Relay(context.Context, *leads.Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.err
}

type stubPDF struct {
	markdown string
	err      error
}

func (s *stubPDF) Render(_ context.Context, markdown string) ([]byte, error) {
	s.markdown = markdown
	if s.err != nil {
		return nil, s.err
	}
	return []byte("%PDF-1.4 stub"), nil
}

type testEnv struct {
	handler http.Handler
	relay   *stubRelay
	pdf     *stubPDF
	webDir  string
}

func setupServer(t *testing.T) *testEnv {
	t.Helper()
	webDir := t.TempDir()
	for name, body := range map[string]string{
		"index.html":   "<h1>Home</h1>",
		"contact.html": "<h1>Contact</h1>",
		"style.css":    "body{}",
	} {
		if err := os.WriteFile(filepath.Join(webDir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	store, err := leads.OpenStore("sqlite", filepath.Join(t.TempDir(), "leads.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	metrics := NewMetrics()
	relay := &stubRelay{}
	svc := leads.NewService(store, relay, nil, leads.WithHooks(leads.Hooks{OnOutcome: metrics.LeadOutcome}))
	pdf := &stubPDF{}

	handler := NewServer(Options{
		WebDir:    webDir,
		Presets:   calculator.NewPresetRegistry(nil),
		Leads:     svc,
		Formatter: format.New("en-US", "$"),
		PDF:       pdf,
		Metrics:   metrics,
	})
	return &testEnv{handler: handler, relay: relay, pdf: pdf, webDir: webDir}
}

func (e *testEnv) do(t *testing.T, method, target, contentType string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v body=%s", err, rr.Body.String())
	}
	return resp
}

func TestHandleCalculateHomeDefaults(t *testing.T) {
	env := setupServer(t)
	rr := env.do(t, http.MethodPost, "/api/calculator", "application/json", []byte(`{"audience":"home"}`))
	if rr.Code != 200 {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	resp := decodeBody(t, rr)
	out := resp["output"].(map[string]any)
	if out["recommendedSizeKW"] != 4.0 {
		t.Fatalf("expected 4 kW, got %v", out["recommendedSizeKW"])
	}
	if out["netCapexAfterSubsidy"] != 142000.0 {
		t.Fatalf("expected net capex 142000, got %v", out["netCapexAfterSubsidy"])
	}
	display := resp["display"].(map[string]any)
	if display["totalCapex"] != "$220,000" {
		t.Fatalf("unexpected capex display %v", display["totalCapex"])
	}
	if display["paybackYears"] != "3.0 years" {
		t.Fatalf("unexpected payback display %v", display["paybackYears"])
	}
	if display["firstYearRoiPercent"] != "33.8%" {
		t.Fatalf("unexpected roi display %v", display["firstYearRoiPercent"])
	}
}

func TestHandleCalculateAcceptsTextFields(t *testing.T) {
	env := setupServer(t)
	body := `{"audience":"home","monthlyBillInCurrency":"10,000","coverageGoalPercent":"","tariffPerUnit":"abc"}`
	rr := env.do(t, http.MethodPost, "/api/calculator", "application/json", []byte(body))
	if rr.Code != 200 {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	resp := decodeBody(t, rr)
	in := resp["input"].(map[string]any)
	if in["monthlyBillInCurrency"] != 10000.0 {
		t.Fatalf("expected grouped bill to parse, got %v", in["monthlyBillInCurrency"])
	}
	if in["tariffPerUnit"] != 0.0 || in["coverageGoalPercent"] != 0.0 {
		t.Fatalf("expected invalid text to coerce to 0, got %v", in)
	}
	out := resp["output"].(map[string]any)
	if out["paybackYears"] != nil || out["paybackNever"] != true {
		t.Fatalf("expected never payback, got %v", out)
	}
	if resp["display"].(map[string]any)["paybackYears"] != format.Never {
		t.Fatalf("expected never display, got %v", resp["display"])
	}
}

func TestHandleCalculateRejectsUnknownAudience(t *testing.T) {
	env := setupServer(t)
	rr := env.do(t, http.MethodPost, "/api/calculator", "application/json", []byte(`{"audience":"industrial"}`))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestHandleCalculateMethodNotAllowed(t *testing.T) {
	env := setupServer(t)
	rr := env.do(t, http.MethodGet, "/api/calculator", "", nil)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
}

func TestHandleCalculateSubnormalTariffStaysFinite(t *testing.T) {
	env := setupServer(t)
	rr := env.do(t, http.MethodPost, "/api/calculator", "application/json", []byte(`{"audience":"home","tariffPerUnit":1e-320}`))
	if rr.Code != 200 {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	out := decodeBody(t, rr)["output"].(map[string]any)
	for _, key := range []string{"monthlyConsumptionKWh", "recommendedSizeKW", "totalCapex", "netCapexAfterSubsidy", "firstYearROIPercent"} {
		if _, ok := out[key].(float64); !ok {
			t.Fatalf("expected numeric %s, got %v", key, out[key])
		}
	}
}

func TestHandleCalculateMultipartForm(t *testing.T) {
	env := setupServer(t)
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range map[string]string{
		"audience":              "home",
		"monthlyBillInCurrency": "10000",
	} {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close form: %v", err)
	}
	rr := env.do(t, http.MethodPost, "/api/calculator", w.FormDataContentType(), body.Bytes())
	if rr.Code != 200 {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	in := decodeBody(t, rr)["input"].(map[string]any)
	if in["monthlyBillInCurrency"] != 10000.0 {
		t.Fatalf("expected multipart bill to be read, got %v", in)
	}
	if in["pricePerKilowatt"] != 55000.0 {
		t.Fatalf("expected home price default, got %v", in)
	}
}

func TestWriteJSONEncodeFailureIs500(t *testing.T) {
	rr := httptest.NewRecorder()
	writeJSON(rr, http.StatusOK, map[string]any{"value": math.NaN()})
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	if decodeBody(t, rr)["error"] != "failed to encode response" {
		t.Fatalf("unexpected body %s", rr.Body.String())
	}
}

func TestHandleDefaultsAndPresets(t *testing.T) {
	env := setupServer(t)
	rr := env.do(t, http.MethodGet, "/api/calculator/defaults?audience=commercial", "", nil)
	if rr.Code != 200 {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	in := decodeBody(t, rr)["input"].(map[string]any)
	if in["pricePerKilowatt"] != 45000.0 || in["subsidyAmount"] != 0.0 {
		t.Fatalf("unexpected commercial defaults %v", in)
	}

	rr = env.do(t, http.MethodGet, "/api/calculator/presets", "", nil)
	if rr.Code != 200 {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	presets := decodeBody(t, rr)["presets"].(map[string]any)
	home := presets["home"].(map[string]any)
	if home["subsidyAmount"] != 78000.0 || home["pricePerKilowatt"] != 55000.0 {
		t.Fatalf("unexpected home preset %v", home)
	}

	rr = env.do(t, http.MethodGet, "/api/calculator/defaults?audience=nope", "", nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestHandleAudienceResetsOnlyPriceAndSubsidy(t *testing.T) {
	env := setupServer(t)
	body := `{"audience":"commercial","input":{"audience":"home","monthlyBillInCurrency":7000,"pricePerKilowatt":1,"subsidyAmount":5}}`
	rr := env.do(t, http.MethodPost, "/api/calculator/audience", "application/json", []byte(body))
	if rr.Code != 200 {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	in := decodeBody(t, rr)["input"].(map[string]any)
	if in["audience"] != "commercial" {
		t.Fatalf("expected commercial, got %v", in["audience"])
	}
	if in["pricePerKilowatt"] != 45000.0 || in["subsidyAmount"] != 0.0 {
		t.Fatalf("expected commercial preset, got %v", in)
	}
	if in["monthlyBillInCurrency"] != 7000.0 {
		t.Fatalf("bill should be kept, got %v", in["monthlyBillInCurrency"])
	}
}

func TestHandlePanelRendersFragment(t *testing.T) {
	env := setupServer(t)
	form := url.Values{
		"previousAudience":    {"home"},
		"audience":            {"commercial"},
		"pricePerKilowatt":    {"1"},
		"coverageGoalPercent": {"80"},
	}
	rr := env.do(t, http.MethodPost, "/calculator/panel", "application/x-www-form-urlencoded", []byte(form.Encode()))
	if rr.Code != 200 {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	html := rr.Body.String()
	for _, want := range []string{`id="roi-result"`, `data-audience="commercial"`, "$180,000", "4 kW"} {
		if !strings.Contains(html, want) {
			t.Fatalf("expected %q in panel: %s", want, html)
		}
	}
	if strings.Contains(html, "roi-note") {
		t.Fatalf("did not expect never-payback note: %s", html)
	}
}

func TestHandlePanelNeverPaybackNote(t *testing.T) {
	env := setupServer(t)
	form := url.Values{"audience": {"home"}, "coverageGoalPercent": {""}}
	rr := env.do(t, http.MethodPost, "/calculator/panel", "application/x-www-form-urlencoded", []byte(form.Encode()))
	if rr.Code != 200 {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "roi-note") || !strings.Contains(rr.Body.String(), "never") {
		t.Fatalf("expected never-payback note: %s", rr.Body.String())
	}
}

func TestHandleEstimatePDF(t *testing.T) {
	env := setupServer(t)
	rr := env.do(t, http.MethodPost, "/estimate.pdf", "application/json", []byte(`{"audience":"home"}`))
	if rr.Code != 200 {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if rr.Header().Get("Content-Type") != "application/pdf" {
		t.Fatalf("unexpected content type %q", rr.Header().Get("Content-Type"))
	}
	if !strings.HasPrefix(rr.Body.String(), "%PDF") {
		t.Fatalf("expected pdf body")
	}
	if !strings.Contains(env.pdf.markdown, "| Recommended size | 4 kW |") {
		t.Fatalf("renderer got unexpected markdown: %s", env.pdf.markdown)
	}
}

func TestHandleEstimatePDFRenderFailure(t *testing.T) {
	env := setupServer(t)
	env.pdf.err = errors.New("chrome missing")
	rr := env.do(t, http.MethodPost, "/estimate.pdf", "application/json", []byte(`{}`))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
}

func TestHandleEstimatePDFUnavailable(t *testing.T) {
	handler := NewServer(Options{WebDir: t.TempDir()})
	req := httptest.NewRequest(http.MethodPost, "/estimate.pdf", strings.NewReader(`{}`))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func leadForm(t *testing.T) (string, []byte) {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range map[string]string{
		"name":     "Asha Rao",
		"email":    "asha@example.com",
		"phone":    "+91 98450 12345",
		"message":  "Rooftop for a 3BHK in Pune.",
		"audience": "home",
	} {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close form: %v", err)
	}
	return w.FormDataContentType(), body.Bytes()
}

func TestHandleLeadsMultipartSuccess(t *testing.T) {
	env := setupServer(t)
	ct, body := leadForm(t)
	rr := env.do(t, http.MethodPost, "/api/leads", ct, body)
	if rr.Code != 200 {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	resp := decodeBody(t, rr)
	if resp["success"] != true || resp["id"] == "" {
		t.Fatalf("unexpected response %v", resp)
	}
	if env.relay.calls != 1 {
		t.Fatalf("expected one relay call, got %d", env.relay.calls)
	}

	metrics := env.do(t, http.MethodGet, "/metrics", "", nil)
	if !strings.Contains(metrics.Body.String(), `solarsite_lead_outcomes_total{status="relayed"} 1`) {
		t.Fatalf("expected relayed outcome metric")
	}
}

func TestHandleLeadsValidationErrors(t *testing.T) {
	env := setupServer(t)
	rr := env.do(t, http.MethodPost, "/api/leads", "application/json", []byte(`{"name":"Asha","email":"not-an-email"}`))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	resp := decodeBody(t, rr)
	fields, ok := resp["fields"].(map[string]any)
	if !ok {
		t.Fatalf("expected field errors, got %v", resp)
	}
	if _, ok := fields["email"]; !ok {
		t.Fatalf("expected email error, got %v", fields)
	}
	if _, ok := fields["phone"]; !ok {
		t.Fatalf("expected phone error, got %v", fields)
	}
	if env.relay.calls != 0 {
		t.Fatalf("invalid lead must not be relayed")
	}
}

func TestHandleLeadsTransientFailureIsQueued(t *testing.T) {
	env := setupServer(t)
	env.relay.err = &leads.RelayError{Status: 503, Message: "unavailable", Transient: true}
	ct, body := leadForm(t)
	rr := env.do(t, http.MethodPost, "/api/leads", ct, body)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d body=%s", rr.Code, rr.Body.String())
	}
	if decodeBody(t, rr)["queued"] != true {
		t.Fatalf("expected queued flag")
	}
}

func TestHandleLeadsPermanentFailure(t *testing.T) {
	env := setupServer(t)
	env.relay.err = &leads.RelayError{Status: 400, Message: "invalid access key"}
	ct, body := leadForm(t)
	rr := env.do(t, http.MethodPost, "/api/leads", ct, body)
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d body=%s", rr.Code, rr.Body.String())
	}
	if decodeBody(t, rr)["success"] != false {
		t.Fatalf("expected success=false")
	}
}

func TestHandleLeadsUnavailable(t *testing.T) {
	handler := NewServer(Options{WebDir: t.TempDir()})
	req := httptest.NewRequest(http.MethodPost, "/api/leads", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestHandleRootPagesAndAssets(t *testing.T) {
	env := setupServer(t)

	rr := env.do(t, http.MethodGet, "/", "", nil)
	if rr.Code != 200 || !strings.Contains(rr.Body.String(), "Home") {
		t.Fatalf("expected index page, got %d %s", rr.Code, rr.Body.String())
	}
	if rr.Header().Get("Cache-Control") != "no-store" {
		t.Fatalf("expected no-store on pages")
	}

	rr = env.do(t, http.MethodGet, "/contact", "", nil)
	if rr.Code != 200 || !strings.Contains(rr.Body.String(), "Contact") {
		t.Fatalf("expected contact page, got %d", rr.Code)
	}

	rr = env.do(t, http.MethodGet, "/style.css", "", nil)
	if rr.Code != 200 {
		t.Fatalf("expected stylesheet, got %d", rr.Code)
	}

	rr = env.do(t, http.MethodGet, "/missing", "", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestHandleHealthAndMetrics(t *testing.T) {
	env := setupServer(t)
	rr := env.do(t, http.MethodGet, "/healthz", "", nil)
	if rr.Code != 200 || decodeBody(t, rr)["status"] != "ok" {
		t.Fatalf("unexpected health response %d %s", rr.Code, rr.Body.String())
	}

	env.do(t, http.MethodPost, "/api/calculator", "application/json", []byte(`{"audience":"commercial"}`))
	rr = env.do(t, http.MethodGet, "/metrics", "", nil)
	if !strings.Contains(rr.Body.String(), `solarsite_calculations_total{audience="commercial"} 1`) {
		t.Fatalf("expected calculation counter, got:\n%s", rr.Body.String())
	}
}
