// Package server exposes the scanner over a local HTTP API for a browser extension shell.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ppiankov/phishlens/internal/classify"
	"github.com/ppiankov/phishlens/internal/explain"
	"github.com/ppiankov/phishlens/internal/extract"
	"github.com/ppiankov/phishlens/internal/model"
)

const maxRequestBytes = 1 << 20

// Scanner is the part of the pipeline the API drives
type Scanner interface {
	ScanURL(ctx context.Context, rawURL string) (*model.ScanResult, error)
	ScanObservation(ctx context.Context, obs model.Observation) *model.ScanResult
}

// ModelStatus reports classifier readiness
type ModelStatus interface {
	State() classify.LoadState
	Describe() string
}

// HistoryReader lists recorded scans
type HistoryReader interface {
	Recent(ctx context.Context, limit int) ([]model.ScanResult, error)
}

// Config holds server settings
type Config struct {
	ListenAddr string
	Logger     *slog.Logger
	History    HistoryReader // optional
}

// Server is the HTTP API surface
type Server struct {
	cfg     Config
	scanner Scanner
	status  ModelStatus
	router  chi.Router
	logger  *slog.Logger
}

// New creates a server around a scanner
func New(cfg Config, scanner Scanner, status ModelStatus) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:     cfg,
		scanner: scanner,
		status:  status,
		router:  chi.NewRouter(),
		logger:  logger,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router

	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	r.Use(corsMiddleware)

	r.Get("/healthz", s.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/scan", s.handleScan)
		r.Post("/features", s.handleFeatures)
		r.Get("/descriptions", s.handleDescriptions)
		r.Get("/history", s.handleHistory)
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Max-Age", "86400")
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http_request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start))
	})
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// HTTPServer creates an *http.Server ready to ListenAndServe.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
	}
}

// Run serves until ctx is done, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	srv := s.HTTPServer()
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	s.logger.Info("listening", "addr", s.cfg.ListenAddr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	return true
}

// --- HTTP handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	state := s.status.State()
	resp := HealthResponse{
		Status: "ok",
		Model:  s.status.Describe(),
		State:  state.String(),
	}

	status := http.StatusOK
	if state == classify.StateFailed {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	if req.Page != nil {
		obs := model.ObservationFromURL(req.URL, req.Page.Title, req.Page.Hyperlinks)
		writeJSON(w, http.StatusOK, s.scanner.ScanObservation(r.Context(), obs))
		return
	}

	result, err := s.scanner.ScanURL(r.Context(), req.URL)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleFeatures(w http.ResponseWriter, r *http.Request) {
	var req FeaturesRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	vector := extract.Extract(model.ObservationFromURL(req.URL, req.Title, req.Hyperlinks))
	writeJSON(w, http.StatusOK, FeaturesResponse{
		Features:    vector.Map(),
		Significant: explain.Explain(explain.SignificantFeatures(vector)),
	})
}

func (s *Server) handleDescriptions(w http.ResponseWriter, r *http.Request) {
	out := make([]FeatureDescription, 0, len(extract.Names))
	for _, name := range extract.Names {
		out = append(out, FeatureDescription{Name: name, Description: explain.Descriptions[name]})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.cfg.History == nil {
		writeError(w, http.StatusNotFound, "history is disabled")
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	scans, err := s.cfg.History.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Warn("listing history", "error", err)
		writeError(w, http.StatusInternalServerError, "history unavailable")
		return
	}
	writeJSON(w, http.StatusOK, scans)
}
