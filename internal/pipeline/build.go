package pipeline

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/ppiankov/phishlens/internal/cache"
	"github.com/ppiankov/phishlens/internal/classify"
	"github.com/ppiankov/phishlens/internal/llm"
	"github.com/ppiankov/phishlens/internal/model"
	"github.com/ppiankov/phishlens/internal/reputation"
	"github.com/ppiankov/phishlens/internal/score"
	"github.com/ppiankov/phishlens/internal/store"
	"github.com/ppiankov/phishlens/internal/util"
)

// Components is a fully wired scanner built from configuration
type Components struct {
	Pipeline   *Pipeline
	Model      *classify.Service
	Scorer     *score.Scorer
	History    *store.History  // nil when history is disabled
	Summarizer *llm.Summarizer // nil when narration is disabled
}

// BuildOptions adjusts Build for a particular command
type BuildOptions struct {
	Version   string
	Logger    *slog.Logger
	NoFetch   bool // score URLs without downloading pages
	NoCache   bool
	NoHistory bool
}

// Build wires the model service, signal sources, cache, history and
// narrator described by cfg.
func Build(cfg *model.Config, opts BuildOptions) (*Components, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	service := classify.NewService(
		classify.NewResourceLoader(cfg.Model.Weights, cfg.Model.Scaler, cfg.Model.LoadTimeout),
		classify.WithLogger(logger),
		classify.WithLoadTimeout(cfg.Model.LoadTimeout),
		classify.WithRetryAfter(cfg.Model.RetryAfter),
	)
	scorer := score.NewScorer(cfg.Thresholds)

	c := &Components{Model: service, Scorer: scorer}
	pipelineOpts := []Option{WithLogger(logger)}

	if !opts.NoFetch {
		fetcher := NewFetcher(cfg.HTTP.Timeout, cfg.HTTP.UserAgent, cfg.HTTP.MaxBodyBytes, cfg.HTTP.InsecureTLS,
			cfg.HTTP.HTTPProxy, cfg.HTTP.HTTPSProxy, cfg.HTTP.NoProxy)
		if cfg.HTTP.RespectRobots {
			fetcher.RespectRobots()
		}
		pipelineOpts = append(pipelineOpts, WithFetcher(fetcher))
	}

	blocklist, err := reputation.NewBlocklist(cfg.Blocklist)
	if err != nil {
		return nil, fmt.Errorf("blocklist: %w", err)
	}
	if !blocklist.Empty() {
		pipelineOpts = append(pipelineOpts, WithSources(blocklist))
	}
	if cfg.Reputation.Enabled {
		pipelineOpts = append(pipelineOpts, WithSources(reputation.NewClient(cfg.Reputation, opts.Version, logger)))
	}

	if cfg.Cache.Enabled && !opts.NoCache {
		layered := cache.NewLayeredCache(cfg.Cache.MemoryTTL, util.ExpandHome(cfg.Cache.Dir), cfg.Cache.DiskTTL)
		pipelineOpts = append(pipelineOpts, WithResultStore(cache.NewResultStore(layered, 0)))
	}

	if cfg.History.Enabled && !opts.NoHistory {
		history, err := store.Open(util.ExpandHome(cfg.History.Path))
		if err != nil {
			return nil, fmt.Errorf("history: %w", err)
		}
		c.History = history
		pipelineOpts = append(pipelineOpts, WithHistory(history))
	}

	if cfg.LLM.Provider != "" {
		summarizer, err := llm.NewSummarizer(llm.ConfigFromModel(cfg.LLM, cfg.HTTP), logger)
		if err != nil {
			logger.Warn("narration disabled", "provider", cfg.LLM.Provider, "error", err)
		} else {
			c.Summarizer = summarizer
			pipelineOpts = append(pipelineOpts, WithNarrator(summarizer))
		}
	}

	c.Pipeline = New(service, scorer, pipelineOpts...)
	return c, nil
}

// Close releases the history database
func (c *Components) Close() error {
	var errs []error
	if c.History != nil {
		errs = append(errs, c.History.Close())
	}
	return errors.Join(errs...)
}
