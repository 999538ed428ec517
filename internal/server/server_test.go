package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ppiankov/phishlens/internal/classify"
	"github.com/ppiankov/phishlens/internal/model"
	"github.com/ppiankov/phishlens/internal/server"
)

type fakeScanner struct {
	lastObs *model.Observation
	lastURL string
}

func (f *fakeScanner) ScanURL(_ context.Context, rawURL string) (*model.ScanResult, error) {
	f.lastURL = rawURL
	if !strings.HasPrefix(rawURL, "http") {
		return nil, errors.New("invalid URL: scheme must be http or https")
	}
	return &model.ScanResult{URL: rawURL, RiskScore: 12, RiskTier: model.TierLow}, nil
}

func (f *fakeScanner) ScanObservation(_ context.Context, obs model.Observation) *model.ScanResult {
	f.lastObs = &obs
	return &model.ScanResult{URL: obs.URL, RiskScore: 77, RiskTier: model.TierHigh}
}

type fakeStatus struct {
	state classify.LoadState
}

func (f fakeStatus) State() classify.LoadState { return f.state }
func (f fakeStatus) Describe() string          { return "test-model@1" }

type fakeHistory struct {
	limit int
}

func (f *fakeHistory) Recent(_ context.Context, limit int) ([]model.ScanResult, error) {
	f.limit = limit
	return []model.ScanResult{{URL: "https://a.test"}}, nil
}

func newTestServer(t *testing.T, history server.HistoryReader, state classify.LoadState) (*server.Server, *fakeScanner) {
	t.Helper()
	scanner := &fakeScanner{}
	return server.New(server.Config{ListenAddr: ":0", History: history}, scanner, fakeStatus{state: state}), scanner
}

func doJSON(t *testing.T, s http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode JSON response: %v (body: %s)", err, rec.Body.String())
	}
}

func TestServer_CORS(t *testing.T) {
	s, _ := newTestServer(t, nil, classify.StateLoaded)

	rec := doJSON(t, s, http.MethodGet, "/healthz", "")
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("expected CORS origin *, got %q", got)
	}

	rec = doJSON(t, s, http.MethodOptions, "/v1/scan", "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204 for preflight, got %d", rec.Code)
	}
}

func TestServer_Health(t *testing.T) {
	s, _ := newTestServer(t, nil, classify.StateNotLoaded)
	rec := doJSON(t, s, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp server.HealthResponse
	decodeJSON(t, rec, &resp)
	if resp.Status != "ok" || resp.State != "not_loaded" {
		t.Errorf("unexpected health: %+v", resp)
	}

	s, _ = newTestServer(t, nil, classify.StateFailed)
	rec = doJSON(t, s, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 after failed load, got %d", rec.Code)
	}
}

func TestServer_ScanURL(t *testing.T) {
	s, scanner := newTestServer(t, nil, classify.StateLoaded)

	rec := doJSON(t, s, http.MethodPost, "/v1/scan", `{"url":" https://example.com/ "}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var result model.ScanResult
	decodeJSON(t, rec, &result)
	if result.RiskScore != 12 {
		t.Errorf("expected risk score 12, got %d", result.RiskScore)
	}
	if scanner.lastURL != "https://example.com/" {
		t.Errorf("expected trimmed URL, got %q", scanner.lastURL)
	}
	if scanner.lastObs != nil {
		t.Error("expected URL scan, not observation scan")
	}
}

func TestServer_ScanObservation(t *testing.T) {
	s, scanner := newTestServer(t, nil, classify.StateLoaded)

	body := `{"url":"https://login.example.com/a","page":{"title":"Sign in","hyperlinks":["https://login.example.com/b"]}}`
	rec := doJSON(t, s, http.MethodPost, "/v1/scan", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if scanner.lastObs == nil {
		t.Fatal("expected observation scan")
	}
	if scanner.lastObs.Hostname != "login.example.com" || scanner.lastObs.Title != "Sign in" || len(scanner.lastObs.Hyperlinks) != 1 {
		t.Errorf("unexpected observation: %+v", scanner.lastObs)
	}
}

func TestServer_ScanErrors(t *testing.T) {
	s, _ := newTestServer(t, nil, classify.StateLoaded)

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{"url":`},
		{"missing url", `{}`},
		{"bad scheme", `{"url":"ftp://example.com"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, s, http.MethodPost, "/v1/scan", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", rec.Code)
			}
			var resp server.ErrorResponse
			decodeJSON(t, rec, &resp)
			if resp.Error == "" {
				t.Error("expected error message")
			}
		})
	}
}

func TestServer_Features(t *testing.T) {
	s, _ := newTestServer(t, nil, classify.StateLoaded)

	rec := doJSON(t, s, http.MethodPost, "/v1/features", `{"url":"http://192.168.1.1/login","title":""}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp server.FeaturesResponse
	decodeJSON(t, rec, &resp)
	if len(resp.Features) != 20 {
		t.Fatalf("expected 20 features, got %d", len(resp.Features))
	}
	if resp.Features[0].Name != "length_url" || resp.Features[19].Name != "domain_in_title" {
		t.Errorf("features out of canonical order: %v", resp.Features.Names())
	}
	if v, _ := resp.Features.Get("ip"); v != 1 {
		t.Errorf("expected ip=1, got %v", v)
	}

	found := false
	for _, e := range resp.Significant {
		if e.Name == "ip" && e.Description != "" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected ip among significant features: %+v", resp.Significant)
	}
}

func TestServer_Descriptions(t *testing.T) {
	s, _ := newTestServer(t, nil, classify.StateLoaded)

	rec := doJSON(t, s, http.MethodGet, "/v1/descriptions", "")
	var descs []server.FeatureDescription
	decodeJSON(t, rec, &descs)

	if len(descs) != 20 {
		t.Fatalf("expected 20 descriptions, got %d", len(descs))
	}
	for _, d := range descs {
		if d.Description == "" {
			t.Errorf("missing description for %s", d.Name)
		}
	}
}

func TestServer_History(t *testing.T) {
	s, _ := newTestServer(t, nil, classify.StateLoaded)
	if rec := doJSON(t, s, http.MethodGet, "/v1/history", ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 with history disabled, got %d", rec.Code)
	}

	history := &fakeHistory{}
	s, _ = newTestServer(t, history, classify.StateLoaded)

	rec := doJSON(t, s, http.MethodGet, "/v1/history?limit=5", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if history.limit != 5 {
		t.Errorf("expected limit 5, got %d", history.limit)
	}

	if rec := doJSON(t, s, http.MethodGet, "/v1/history?limit=abc", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad limit, got %d", rec.Code)
	}
}
