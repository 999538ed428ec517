package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/net/idna"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/ppiankov/phishlens/internal/cache"
	"github.com/ppiankov/phishlens/internal/classify"
	"github.com/ppiankov/phishlens/internal/explain"
	"github.com/ppiankov/phishlens/internal/extract"
	"github.com/ppiankov/phishlens/internal/model"
	"github.com/ppiankov/phishlens/internal/reputation"
	"github.com/ppiankov/phishlens/internal/score"
)

// SourcePipeline names the orchestrator as the source of a degraded result
const SourcePipeline = "Scan Pipeline"

// DefaultScanTimeout bounds a shared URL scan once detached from its callers
const DefaultScanTimeout = 2 * time.Minute

// maxPageLinks caps how many hyperlinks page inspection collects
const maxPageLinks = 5000

// Predictor turns a raw feature vector into a phishing probability
type Predictor interface {
	Predict(ctx context.Context, raw []float64) (float64, error)
}

// PageFetcher downloads the page behind a URL
type PageFetcher interface {
	FetchWithRetry(ctx context.Context, rawURL string) (*FetchResult, error)
}

// Narrator writes an optional explanation of a finished result
type Narrator interface {
	Narrate(ctx context.Context, result *model.ScanResult) (*model.Narrative, error)
}

// HistoryWriter records finished scans
type HistoryWriter interface {
	Save(ctx context.Context, result *model.ScanResult) error
}

// Pipeline orchestrates a scan: fetch, inspect, extract, predict alongside
// reputation lookups, score, explain. It holds no per-URL state apart from
// the optional result cache.
type Pipeline struct {
	predictor Predictor
	scorer    *score.Scorer
	inspector *extract.PageInspector

	fetcher  PageFetcher
	sources  []reputation.Source
	results  *cache.ResultStore
	history  HistoryWriter
	narrator Narrator
	logger   *slog.Logger

	group       singleflight.Group
	scanTimeout time.Duration
	now         func() time.Time

	scans    metric.Int64Counter
	duration metric.Float64Histogram
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithFetcher enables page fetching for ScanURL
func WithFetcher(f PageFetcher) Option {
	return func(p *Pipeline) { p.fetcher = f }
}

// WithSources adds external signal sources
func WithSources(sources ...reputation.Source) Option {
	return func(p *Pipeline) { p.sources = append(p.sources, sources...) }
}

// WithResultStore caches finished results per URL
func WithResultStore(s *cache.ResultStore) Option {
	return func(p *Pipeline) { p.results = s }
}

// WithHistory records every finished scan
func WithHistory(h HistoryWriter) Option {
	return func(p *Pipeline) { p.history = h }
}

// WithNarrator attaches an LLM narrative to each result
func WithNarrator(n Narrator) Option {
	return func(p *Pipeline) { p.narrator = n }
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

// WithScanTimeout bounds each shared URL scan
func WithScanTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.scanTimeout = d
		}
	}
}

// WithClock overrides the result timestamp source
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New creates a pipeline around a predictor and scorer
func New(predictor Predictor, scorer *score.Scorer, opts ...Option) *Pipeline {
	p := &Pipeline{
		predictor: predictor,
		scorer:    scorer,
		inspector: extract.NewPageInspector(maxPageLinks),
		logger:      slog.Default(),
		scanTimeout: DefaultScanTimeout,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}

	meter := otel.Meter("github.com/ppiankov/phishlens/internal/pipeline")
	p.scans, _ = meter.Int64Counter("phishlens_scans_total")
	p.duration, _ = meter.Float64Histogram("phishlens_scan_duration_ms")

	return p
}

// ScanURL scans a single http(s) URL. The page is fetched when a fetcher is
// configured; a fetch failure degrades to URL-only features. Concurrent scans
// of the same URL share one execution.
func (p *Pipeline) ScanURL(ctx context.Context, rawURL string) (*model.ScanResult, error) {
	rawURL = strings.TrimSpace(rawURL)
	if err := validateURL(rawURL); err != nil {
		return nil, err
	}

	if p.results != nil {
		if cached, ok := p.results.Get(rawURL); ok {
			p.logger.Debug("cache hit", "url", rawURL)
			return cached, nil
		}
	}

	// the shared scan outlives any single caller; each caller stops waiting on its own ctx
	ch := p.group.DoChan(cache.Key(rawURL), func() (any, error) {
		scanCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.scanTimeout)
		defer cancel()
		obs := p.observe(scanCtx, rawURL)
		return p.ScanObservation(scanCtx, obs), nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			p.logger.Debug("scan shared with concurrent caller", "url", rawURL)
		}
		return res.Val.(*model.ScanResult), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("scan %s: %w", rawURL, ctx.Err())
	}
}

// observe builds the observation for rawURL, inspecting the page when possible.
// Features always describe the requested URL, not the redirect target.
func (p *Pipeline) observe(ctx context.Context, rawURL string) model.Observation {
	if p.fetcher == nil {
		return model.ObservationFromURL(rawURL, "", nil)
	}

	fetched, err := p.fetcher.FetchWithRetry(ctx, rawURL)
	if err != nil {
		p.logger.Warn("page fetch failed, using URL features only", "url", rawURL, "error", err)
		return model.ObservationFromURL(rawURL, "", nil)
	}
	if fetched.Redirected {
		p.logger.Debug("page redirected", "url", rawURL, "final_url", fetched.FinalURL)
	}

	page, err := p.inspector.Inspect(fetched.HTML, fetched.FinalURL)
	if err != nil {
		p.logger.Warn("page inspection failed, using URL features only", "url", rawURL, "error", err)
		return model.ObservationFromURL(rawURL, "", nil)
	}
	return model.ObservationFromURL(rawURL, page.Title, page.Hyperlinks)
}

// ScanObservation scores an observation the caller already holds.
// It never fails: classifier errors produce a zero-risk result with Error set.
func (p *Pipeline) ScanObservation(ctx context.Context, obs model.Observation) *model.ScanResult {
	start := time.Now()
	vector := extract.Extract(obs)

	var (
		prob       float64
		predictErr error
		perSource  = make([][]score.Signal, len(p.sources))
	)

	// Prediction and lookups are independent; signals are combined only after both finish.
	var g errgroup.Group
	g.Go(func() error {
		prob, predictErr = p.predictor.Predict(ctx, vector.Slice())
		return nil
	})
	for i, src := range p.sources {
		g.Go(func() error {
			signals, err := src.Signals(ctx, obs.URL)
			if err != nil {
				p.logger.Warn("signal source failed", "source", src.Name(), "url", obs.URL, "error", err)
				return nil
			}
			perSource[i] = signals
			return nil
		})
	}
	_ = g.Wait()

	var result *model.ScanResult
	if predictErr != nil {
		result = p.degraded(obs, vector, predictErr)
	} else {
		var signals []score.Signal
		for _, s := range perSource {
			signals = append(signals, s...)
		}
		assessment := p.scorer.Score(prob, signals)
		result = &model.ScanResult{
			URL:                   obs.URL,
			RiskScore:             assessment.RiskScore,
			RiskTier:              assessment.Tier,
			ClassifierProbability: prob,
			SignificantFeatures:   explain.SignificantFeatures(vector),
			Threats:               assessment.Threats,
			Sources:               assessment.Sources,
			Blocked:               assessment.Blocked,
		}
	}
	result.ID = uuid.NewString()
	result.DisplayHost = displayHost(obs.Hostname)
	result.Timestamp = p.now().UTC()

	if p.narrator != nil && result.Error == "" {
		narrative, err := p.narrator.Narrate(ctx, result)
		if err != nil {
			p.logger.Warn("narrative skipped", "url", obs.URL, "error", err)
		} else {
			result.Narrative = narrative
		}
	}

	p.record(ctx, result)

	attrs := metric.WithAttributes(
		attribute.String("tier", result.RiskTier.String()),
		attribute.Bool("degraded", result.Error != ""),
		attribute.Bool("blocked", result.Blocked),
	)
	p.scans.Add(ctx, 1, attrs)
	p.duration.Record(ctx, float64(time.Since(start).Microseconds())/1000, attrs)

	p.logger.Debug("scan complete",
		"url", obs.URL,
		"risk_score", result.RiskScore,
		"tier", result.RiskTier,
		"blocked", result.Blocked,
		"duration", time.Since(start))

	return result
}

// degraded builds the safe default: unknown risk, never blocked
func (p *Pipeline) degraded(obs model.Observation, vector extract.Vector, err error) *model.ScanResult {
	threat := "Risk could not be assessed: " + err.Error()
	switch {
	case errors.Is(err, classify.ErrInvalidInput):
		p.logger.Error("feature vector rejected by classifier", "url", obs.URL, "error", err)
	case errors.Is(err, classify.ErrModelUnavailable):
		threat = "Risk could not be assessed: detection model unavailable"
		p.logger.Warn("model unavailable, reporting unknown risk", "url", obs.URL, "error", err)
	default:
		p.logger.Warn("prediction failed, reporting unknown risk", "url", obs.URL, "error", err)
	}

	return &model.ScanResult{
		URL:                 obs.URL,
		RiskScore:           0,
		RiskTier:            model.TierLow,
		SignificantFeatures: explain.SignificantFeatures(vector),
		Threats:             []string{threat},
		Sources:             []string{SourcePipeline},
		Error:               err.Error(),
	}
}

func (p *Pipeline) record(ctx context.Context, result *model.ScanResult) {
	if p.results != nil {
		if err := p.results.Put(result); err != nil {
			p.logger.Warn("cache write failed", "url", result.URL, "error", err)
		}
	}
	if p.history != nil {
		if err := p.history.Save(context.WithoutCancel(ctx), result); err != nil {
			p.logger.Warn("history write failed", "url", result.URL, "error", err)
		}
	}
}

// validateURL accepts absolute http(s) URLs with a host
func validateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid URL %q: scheme must be http or https", rawURL)
	}
	if u.Hostname() == "" {
		return fmt.Errorf("invalid URL %q: missing host", rawURL)
	}
	return nil
}

// displayHost returns the Unicode form of a punycode hostname, or "" when
// it has none.
func displayHost(hostname string) string {
	if !strings.Contains(strings.ToLower(hostname), "xn--") {
		return ""
	}
	unicode, err := idna.ToUnicode(hostname)
	if err != nil || unicode == hostname {
		return ""
	}
	return unicode
}
