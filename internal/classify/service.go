package classify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"

	"github.com/ppiankov/phishlens/internal/extract"
)

// LoadState distinguishes "not yet loaded" from "load failed" from "loaded"
type LoadState int

const (
	StateNotLoaded LoadState = iota
	StateLoading
	StateLoaded
	StateFailed
)

func (s LoadState) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	case StateFailed:
		return "failed"
	default:
		return "not_loaded"
	}
}

// Service owns the classifier and scaler for the life of the process.
// Concurrent LoadOnce callers share one in-flight load; the outcome,
// success or failure, is kept until Reset.
type Service struct {
	loader     Loader
	timeout    time.Duration
	retryAfter time.Duration
	logger     *slog.Logger

	group singleflight.Group

	mu         sync.RWMutex
	state      LoadState
	classifier Classifier
	scaler     *Scaler
	loadErr    error
	failedAt   time.Time

	attempts atomic.Int64

	loadCounter    metric.Int64Counter
	predictCounter metric.Int64Counter
	latency        metric.Float64Histogram
}

// Option configures a Service
type Option func(*Service)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithLoadTimeout bounds a single load attempt
func WithLoadTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

// WithRetryAfter lets a failed load be retried once d has elapsed since the failure.
// Zero keeps the failure until Reset is called.
func WithRetryAfter(d time.Duration) Option {
	return func(s *Service) { s.retryAfter = d }
}

// NewService creates a service around loader. Nothing is loaded until LoadOnce or Predict.
func NewService(loader Loader, opts ...Option) *Service {
	s := &Service{
		loader:  loader,
		timeout: 30 * time.Second,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	meter := otel.Meter("github.com/ppiankov/phishlens/internal/classify")
	s.loadCounter, _ = meter.Int64Counter("phishlens_model_loads_total")
	s.predictCounter, _ = meter.Int64Counter("phishlens_predictions_total")
	s.latency, _ = meter.Float64Histogram("phishlens_predict_latency_ms")

	return s
}

// State returns the current load state
func (s *Service) State() LoadState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// LoadAttempts returns how many times the underlying loader has been invoked
func (s *Service) LoadAttempts() int64 {
	return s.attempts.Load()
}

// LoadOnce loads the classifier and scaler if that has not happened yet.
// A caller whose ctx ends stops waiting; the shared load keeps going.
func (s *Service) LoadOnce(ctx context.Context) error {
	if done, err := s.settled(); done {
		return err
	}

	ch := s.group.DoChan("load", func() (any, error) {
		return nil, s.load(ctx)
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return fmt.Errorf("wait for model load: %w", ctx.Err())
	}
}

// Reset forgets a settled load so the next LoadOnce tries again.
// It has no effect while a load is in flight.
func (s *Service) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateLoading {
		return
	}
	s.state = StateNotLoaded
	s.classifier = nil
	s.scaler = nil
	s.loadErr = nil
	s.failedAt = time.Time{}
}

// Infer runs the classifier on an already normalized vector
func (s *Service) Infer(normalized []float64) (float64, error) {
	if err := checkLength(normalized, extract.NumFeatures); err != nil {
		return 0, err
	}

	clf, _, err := s.loaded()
	if err != nil {
		return 0, err
	}
	return clf.Infer(normalized)
}

// Predict normalizes a raw feature vector and returns the phishing probability,
// loading the model first if needed.
func (s *Service) Predict(ctx context.Context, raw []float64) (float64, error) {
	start := time.Now()

	prob, err := s.predict(ctx, raw)

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	s.predictCounter.Add(ctx, 1, attrs)
	s.latency.Record(ctx, float64(time.Since(start).Microseconds())/1000, attrs)

	return prob, err
}

func (s *Service) predict(ctx context.Context, raw []float64) (float64, error) {
	if err := checkLength(raw, extract.NumFeatures); err != nil {
		return 0, err
	}
	if err := s.LoadOnce(ctx); err != nil {
		return 0, err
	}

	clf, scaler, err := s.loaded()
	if err != nil {
		return 0, err
	}

	normalized, err := Normalize(raw, scaler)
	if err != nil {
		return 0, fmt.Errorf("normalize: %w", err)
	}

	prob, err := clf.Infer(normalized)
	if err != nil {
		return 0, fmt.Errorf("infer: %w", err)
	}
	return prob, nil
}

func (s *Service) loaded() (Classifier, *Scaler, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.state != StateLoaded {
		return nil, nil, &ModelUnavailableError{State: s.state, Err: s.loadErr}
	}
	return s.classifier, s.scaler, nil
}

// settled reports whether a previous load finished and what it returned
func (s *Service) settled() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateLoaded:
		return true, nil
	case StateFailed:
		if s.retryAfter > 0 && time.Since(s.failedAt) >= s.retryAfter {
			s.state = StateNotLoaded
			return false, nil
		}
		return true, &ModelUnavailableError{State: StateFailed, Err: s.loadErr}
	default:
		return false, nil
	}
}

func (s *Service) load(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateLoaded:
		s.mu.Unlock()
		return nil
	case StateFailed:
		err := &ModelUnavailableError{State: StateFailed, Err: s.loadErr}
		s.mu.Unlock()
		return err
	}
	s.state = StateLoading
	s.mu.Unlock()

	loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	s.attempts.Add(1)
	start := time.Now()

	clf, scaler, err := s.loader.Load(loadCtx)
	if err == nil && (clf == nil || scaler == nil) {
		err = errors.New("loader returned no classifier or scaler")
	}
	if err == nil {
		err = scaler.Validate()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.state = StateFailed
		s.loadErr = err
		s.failedAt = time.Now()
		s.loadCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "failed")))
		s.logger.Error("model load failed", "error", err, "duration", time.Since(start))
		return &ModelUnavailableError{State: StateFailed, Err: err}
	}

	s.state = StateLoaded
	s.classifier = clf
	s.scaler = scaler
	s.loadErr = nil
	s.loadCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "loaded")))
	s.logger.Debug("model loaded", "duration", time.Since(start), "model", describe(clf))
	return nil
}

// Describe names the loaded model, or the load state when nothing is loaded
func (s *Service) Describe() string {
	clf, _, err := s.loaded()
	if err != nil {
		return s.State().String()
	}
	return describe(clf)
}

func describe(clf Classifier) string {
	if n, ok := clf.(*Network); ok && n.Name != "" {
		return fmt.Sprintf("%s@%s (%d layers)", n.Name, n.Version, len(n.Layers))
	}
	return fmt.Sprintf("%T", clf)
}
